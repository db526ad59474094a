// Package feed receives change notifications for the monitored collections
// and hands them, normalized, to a handler.  The wire transport is pluggable;
// Redis Pub/Sub and RabbitMQ implementations are provided.
package feed

import (
	"context"

	"github.com/iliyamo/community-events/internal/model"
)

// Topic selects the notifications of one collection, optionally narrowed
// to the rows of a single event.
type Topic struct {
	Table   model.Table
	EventID string
}

func (t Topic) String() string {
	if t.EventID == "" {
		return string(t.Table)
	}
	return string(t.Table) + ":" + t.EventID
}

// Match reports whether m belongs to the topic.  Transports filter on the
// server side already; this guards against brokers that over-deliver.
func (t Topic) Match(m Message) bool {
	if m.Table != t.Table {
		return false
	}
	return t.EventID == "" || t.EventID == m.EventID
}

// Transport opens subscriptions on a message broker.
type Transport interface {
	Open(ctx context.Context, topic Topic) (Stream, error)
}

// Stream delivers the messages of one open subscription.  Next returns an
// error wrapping ErrMalformed for a bad payload; any other error means the
// stream is dead and must be closed.
type Stream interface {
	Next(ctx context.Context) (Message, error)
	Close() error
}

// Publisher emits change notifications after a durable write.
type Publisher interface {
	Publish(ctx context.Context, m Message) error
}
