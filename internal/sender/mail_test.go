package sender

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomail "github.com/wneessen/go-mail"

	"filerelay/internal/config"
	"filerelay/internal/models"
)

func newTestMail(t *testing.T, deliver deliverFunc) *Mail {
	t.Helper()
	m, err := NewMail(config.MailConfig{
		Username:  "relay@example.com",
		Password:  "secret",
		Recipient: "inbox@example.com",
		Host:      "smtp.example.com",
		Port:      2525,
		TLS:       config.TLSStartTLS,
	}, nil)
	require.NoError(t, err)
	m.deliver = deliver
	return m
}

func TestMailComposesAttachments(t *testing.T) {
	var sent *gomail.Msg
	m := newTestMail(t, func(_ context.Context, msg *gomail.Msg) error {
		sent = msg
		return nil
	})

	status, err := m.Send(context.Background(), MailMessage{
		Subject: "[u1] report",
		Text:    "see attached",
		Attachments: []*models.StagedFile{
			{Handle: "h1", FileName: "a.txt", Content: []byte("hi")},
			{Handle: "h2", FileName: "b.csv", Content: []byte("x,y")},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, status, "inbox@example.com")
	require.NotNil(t, sent)

	var buf bytes.Buffer
	_, err = sent.WriteTo(&buf)
	require.NoError(t, err)
	raw := buf.String()
	assert.Contains(t, raw, "Subject: [u1] report")
	assert.Contains(t, raw, "relay@example.com")
	assert.Contains(t, raw, "inbox@example.com")
	assert.Contains(t, raw, `filename="a.txt"`)
	assert.Contains(t, raw, `filename="b.csv"`)
}

func TestMailWrapsProviderError(t *testing.T) {
	m := newTestMail(t, func(context.Context, *gomail.Msg) error {
		return errors.New("535 authentication failed")
	})

	_, err := m.Send(context.Background(), MailMessage{Subject: "[u1] ", Text: "body"})
	require.Error(t, err)
	var sendErr *SendError
	require.ErrorAs(t, err, &sendErr)
	assert.Equal(t, DestinationMail, sendErr.Destination)
	assert.Contains(t, err.Error(), "535")
}

func TestNewMailPlainMode(t *testing.T) {
	_, err := NewMail(config.MailConfig{
		Username: "relay@example.com", Password: "secret", Recipient: "relay@example.com",
		Host: "localhost", TLS: config.TLSPlain,
	}, nil)
	assert.NoError(t, err)
}
