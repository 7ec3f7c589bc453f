// Package sender delivers staged files to mail and chat destinations.
package sender

import "fmt"

const (
	DestinationMail  = "mail"
	DestinationSlack = "slack"
)

// SendError wraps a provider failure. Code carries the SMTP reply code when
// the server returned one.
type SendError struct {
	Destination string
	Temporary   bool
	Code        int
	Err         error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("%s: %v", e.Destination, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}
