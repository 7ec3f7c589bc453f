package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestPublishReachesSubscribers(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer client.Close()

	sub := mr.NewSubscriber()
	defer sub.Close()
	sub.Subscribe("relay:test")

	n, err := client.Publish(context.Background(), "relay:test", []byte(`{"type":"staged"}`))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one receiver, got %d", n)
	}
	select {
	case msg := <-sub.Messages():
		if msg.Message != `{"type":"staged"}` {
			t.Fatalf("unexpected payload %q", msg.Message)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for message")
	}
}

func TestNewRedisClientErrors(t *testing.T) {
	if _, err := NewRedisClient(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty url")
	}
	if _, err := NewRedisClient(context.Background(), "http://not-redis"); err == nil {
		t.Fatalf("expected error for bad scheme")
	}
}

func TestNilClient(t *testing.T) {
	var c *Client
	if _, err := c.Publish(context.Background(), "x", nil); err == nil {
		t.Fatalf("expected error from nil client")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close nil client: %v", err)
	}
}
