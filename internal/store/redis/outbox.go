package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/opentrusty/tenantgate/internal/mail"
)

// envelope is the JSON stored in the outbox list
type envelope struct {
	Invitation mail.Invitation `json:"invitation"`
	Attempts   int             `json:"attempts"`
}

// pusher is the subset of the client the outbox writes with
type pusher interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// Outbox queues invitation mail for the worker. It implements the
// membership notifier.
type Outbox struct {
	client pusher
	key    string
}

// NewOutbox creates an outbox writing to the given list key
func NewOutbox(client pusher, key string) *Outbox {
	return &Outbox{client: client, key: key}
}

// Notify appends the invitation to the outbox list
func (o *Outbox) Notify(ctx context.Context, inv mail.Invitation) error {
	return o.push(ctx, envelope{Invitation: inv})
}

func (o *Outbox) push(ctx context.Context, env envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode invitation: %w", err)
	}
	if err := o.client.RPush(ctx, o.key, payload).Err(); err != nil {
		return fmt.Errorf("failed to queue invitation: %w", err)
	}
	return nil
}
