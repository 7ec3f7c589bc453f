package sender

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"filerelay/internal/config"
	"filerelay/internal/logging"
	"filerelay/internal/models"
)

// Chat posts messages and threaded file uploads to one Slack channel.
type Chat struct {
	api     *slack.Client
	channel string
	logger  *zap.Logger
}

// NewChat builds a Slack sender. APIURL overrides the Slack endpoint.
func NewChat(cfg config.SlackConfig, logger *zap.Logger) *Chat {
	var opts []slack.Option
	if cfg.APIURL != "" {
		url := cfg.APIURL
		if url[len(url)-1] != '/' {
			url += "/"
		}
		opts = append(opts, slack.OptionAPIURL(url))
	}
	return &Chat{
		api:     slack.New(cfg.Token, opts...),
		channel: cfg.Channel,
		logger:  logging.OrNop(logger).Named("slack"),
	}
}

// PostMessage posts text to the channel and returns its thread timestamp.
func (c *Chat) PostMessage(ctx context.Context, text string) (string, error) {
	_, ts, err := c.api.PostMessageContext(ctx, c.channel,
		slack.MsgOptionText(text, false),
		slack.MsgOptionDisableMarkdown(),
	)
	if err != nil {
		return "", &SendError{Destination: DestinationSlack, Temporary: isTemporary(err), Err: err}
	}
	if ts == "" {
		return "", &SendError{Destination: DestinationSlack, Err: errors.New("chat.postMessage returned no timestamp")}
	}
	c.logger.Debug("message posted", zap.String("channel", c.channel), zap.String("ts", ts))
	return ts, nil
}

// Upload sends one file into the thread started by ts.
func (c *Chat) Upload(ctx context.Context, ts string, file *models.StagedFile) error {
	if file == nil {
		return errors.New("file required")
	}
	summary, err := c.api.UploadFileV2Context(ctx, slack.UploadFileV2Parameters{
		Reader:          bytes.NewReader(file.Content),
		FileSize:        len(file.Content),
		Filename:        file.FileName,
		Title:           file.FileName,
		Channel:         c.channel,
		ThreadTimestamp: ts,
	})
	if err != nil {
		return &SendError{Destination: DestinationSlack, Temporary: isTemporary(err), Err: fmt.Errorf("upload %s: %w", file.FileName, err)}
	}
	c.logger.Debug("file uploaded", zap.String("handle", file.Handle), zap.String("file_id", summary.ID))
	return nil
}

func isTemporary(err error) bool {
	var rateLimited *slack.RateLimitedError
	if errors.As(err, &rateLimited) {
		return true
	}
	var statusErr slack.StatusCodeError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= 500
	}
	return false
}
