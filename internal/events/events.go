// Package events publishes staging and delivery lifecycle events.
//
// Events are advisory. A publish failure is logged and never changes the
// outcome of the request that produced it.
package events

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"filerelay/internal/logging"
)

type Type string

const (
	TypeStaged     Type = "staged"
	TypeEvicted    Type = "evicted"
	TypeDelivered  Type = "delivered"
	TypeNotFound   Type = "not_found"
	TypeSendFailed Type = "send_failed"
)

// Event describes one transition of a staged file.
type Event struct {
	Type        Type      `json:"type"`
	Handle      string    `json:"handle"`
	FileName    string    `json:"file_name,omitempty"`
	Size        int64     `json:"size,omitempty"`
	Destination string    `json:"destination,omitempty"`
	Error       string    `json:"error,omitempty"`
	At          time.Time `json:"at"`
}

// Publisher emits events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) {}

// Nop returns a publisher that drops every event.
func Nop() Publisher {
	return nopPublisher{}
}

type channelClient interface {
	Publish(ctx context.Context, channel string, payload []byte) (int64, error)
}

// RedisPublisher sends events as JSON over a Redis pub/sub channel.
type RedisPublisher struct {
	client  channelClient
	channel string
	timeout time.Duration
	logger  *zap.Logger
}

const defaultPublishTimeout = 2 * time.Second

// NewRedisPublisher builds a publisher on top of client.
func NewRedisPublisher(client channelClient, channel string, logger *zap.Logger) *RedisPublisher {
	return &RedisPublisher{
		client:  client,
		channel: channel,
		timeout: defaultPublishTimeout,
		logger:  logging.OrNop(logger).Named("events"),
	}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev Event) {
	if p == nil || p.client == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Warn("marshal event failed", zap.String("type", string(ev.Type)), zap.Error(err))
		return
	}
	// the request may already be finished; keep its values but not its deadline
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	if _, err := p.client.Publish(pubCtx, p.channel, payload); err != nil {
		p.logger.Warn("publish event failed",
			zap.String("type", string(ev.Type)),
			zap.String("handle", ev.Handle),
			zap.Error(err))
	}
}
