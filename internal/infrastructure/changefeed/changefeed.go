// Package changefeed delivers snapshot-style change streams: every change
// signal on a collection triggers a reload of the whole collection, and
// subscribers receive the complete current set rather than a diff.
//
// Writers announce changes with Publisher.Touch; the signal travels over
// Redis Pub/Sub so every instance watching the collection reloads.
package changefeed

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "guestlist:changes:"

// Set is one delivery: the complete collection, or the error that
// prevented loading it.
type Set[T any] struct {
	Items []T
	Err   error
}

// Loader reads the full current contents of a collection.
type Loader[T any] func(ctx context.Context) ([]T, error)

// Publisher announces that a collection changed.
type Publisher struct {
	client *redis.Client
	log    *slog.Logger
}

func NewPublisher(client *redis.Client, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{client: client, log: log}
}

// Touch signals watchers of collection. Delivery is best effort: a failed
// publish is logged and the next write will signal again.
func (p *Publisher) Touch(ctx context.Context, collection string) {
	if p == nil || p.client == nil {
		return
	}
	if err := p.client.Publish(ctx, channelPrefix+collection, "changed").Err(); err != nil {
		p.log.Warn("changefeed publish failed", "collection", collection, "err", err)
	}
}

// Watch loads collection once, then reloads it on every change signal until
// ctx is done. The returned channel is closed when the watch ends.
//
// Signals that arrive while a reload is in flight coalesce into one
// follow-up reload. When client is nil the collection is loaded once and
// the channel stays open until ctx is done.
func Watch[T any](ctx context.Context, client *redis.Client, collection string, load Loader[T]) <-chan Set[T] {
	out := make(chan Set[T], 1)

	var signals <-chan *redis.Message
	var sub *redis.PubSub
	if client != nil {
		sub = client.Subscribe(ctx, channelPrefix+collection)
		signals = sub.Channel()
	}

	go func() {
		defer close(out)
		if sub != nil {
			defer sub.Close()
		}

		deliver := func() bool {
			items, err := load(ctx)
			select {
			case out <- Set[T]{Items: items, Err: err}:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !deliver() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-signals:
				if !ok {
					return
				}
				drain(signals)
				if !deliver() {
					return
				}
			}
		}
	}()
	return out
}

// drain discards signals already queued, since one reload covers them all.
func drain(signals <-chan *redis.Message) {
	for {
		select {
		case <-signals:
		default:
			return
		}
	}
}
