package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opentrusty/tenantgate/internal/mail"
	"github.com/opentrusty/tenantgate/internal/observability/logger"
)

const (
	defaultPollTimeout = 5 * time.Second
	maxAttempts        = 3
)

// queue is the subset of the client the worker reads and requeues with
type queue interface {
	pusher
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

// Worker drains the outbox and renders and sends each invitation.
// A failed send is requeued until maxAttempts, then dropped with an error log.
type Worker struct {
	client      queue
	outbox      *Outbox
	direct      *mail.Direct
	key         string
	pollTimeout time.Duration
	log         *slog.Logger
}

// NewWorker creates a worker over the given list key that delivers through sender
func NewWorker(client queue, key string, sender mail.Sender, log *slog.Logger) *Worker {
	return &Worker{
		client:      client,
		outbox:      NewOutbox(client, key),
		direct:      mail.NewDirect(sender),
		key:         key,
		pollTimeout: defaultPollTimeout,
		log:         log.With(logger.Component("mail_worker"), logger.Queue(key)),
	}
}

// Run blocks until ctx is cancelled
func (w *Worker) Run(ctx context.Context) {
	w.log.Info("mail worker started")
	for {
		if ctx.Err() != nil {
			w.log.Info("mail worker stopped")
			return
		}
		if _, err := w.ProcessOne(ctx); err != nil && ctx.Err() == nil {
			w.log.Error("mail worker poll failed", logger.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
}

// ProcessOne waits up to the poll timeout for one invitation and sends it.
// It reports whether an item was taken off the list.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	res, err := w.client.BLPop(ctx, w.pollTimeout, w.key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	// BLPOP returns [key, value]
	if len(res) != 2 {
		return false, nil
	}

	var env envelope
	if err := json.Unmarshal([]byte(res[1]), &env); err != nil {
		w.log.Error("dropping malformed outbox entry", logger.Error(err))
		return true, nil
	}

	if err := w.direct.Notify(ctx, env.Invitation); err != nil {
		env.Attempts++
		attrs := []any{logger.Error(err), logger.TenantID(env.Invitation.TenantID), logger.UserID(env.Invitation.ActorID)}
		if env.Attempts >= maxAttempts {
			w.log.Error("invitation mail dropped", attrs...)
			return true, nil
		}
		w.log.Warn("invitation mail failed, requeueing", attrs...)
		if perr := w.outbox.push(ctx, env); perr != nil {
			w.log.Error("failed to requeue invitation", logger.Error(perr))
		}
		return true, nil
	}

	w.log.Info("invitation mail sent", logger.TenantID(env.Invitation.TenantID), logger.UserID(env.Invitation.ActorID))
	return true, nil
}
