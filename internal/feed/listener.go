package feed

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/iliyamo/community-events/internal/model"
)

// ErrSubscriptionDropped is reported through Options.OnDropped once a
// subscription has failed MaxFailures times in a row.
var ErrSubscriptionDropped = errors.New("subscription dropped")

// Handler receives normalized changes.  It is called from the subscription's
// own goroutine, one change at a time.
type Handler func(model.Change)

// Options tune reconnect behaviour.  Zero values fall back to defaults.
type Options struct {
	MinBackoff  time.Duration // first retry delay, default 1s
	MaxBackoff  time.Duration // retry delay ceiling, default 30s
	MaxFailures int           // consecutive failures before OnDropped, default 5

	// OnDropped is told when resubscribing keeps failing.  The listener keeps
	// retrying afterwards.
	OnDropped func(Topic, error)
	// OnRestored runs after a dropped subscription is open again.  Changes
	// made while disconnected are not replayed.
	OnRestored func(Topic)
}

func (o Options) withDefaults() Options {
	if o.MinBackoff <= 0 {
		o.MinBackoff = time.Second
	}
	if o.MaxBackoff < o.MinBackoff {
		o.MaxBackoff = 30 * time.Second
		if o.MaxBackoff < o.MinBackoff {
			o.MaxBackoff = o.MinBackoff
		}
	}
	if o.MaxFailures <= 0 {
		o.MaxFailures = 5
	}
	return o
}

// Listener opens subscriptions on a transport and keeps them alive.
type Listener struct {
	transport Transport
	opts      Options
}

func NewListener(t Transport, opts Options) *Listener {
	return &Listener{transport: t, opts: opts.withDefaults()}
}

// Subscription is one live topic subscription.  It is owned by whoever
// called Subscribe and must be closed by them.
type Subscription struct {
	topic  Topic
	cancel context.CancelFunc
	ready  chan struct{}
	done   chan struct{}
	once   sync.Once
}

func (s *Subscription) Topic() Topic { return s.topic }

// Ready is closed once the first stream has been opened.
func (s *Subscription) Ready() <-chan struct{} { return s.ready }

// Done is closed once the delivery goroutine has exited.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Close tears the subscription down and waits until no further change will
// be handed to the handler.  It is safe to call more than once.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	<-s.done
	return nil
}

// Subscribe starts delivering changes for topic to h until the returned
// subscription is closed or ctx is cancelled.
func (l *Listener) Subscribe(ctx context.Context, topic Topic, h Handler) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{topic: topic, cancel: cancel, ready: make(chan struct{}), done: make(chan struct{})}
	go l.run(ctx, s, h)
	return s
}

func (l *Listener) run(ctx context.Context, s *Subscription, h Handler) {
	defer close(s.done)
	backoff := l.opts.MinBackoff
	failures := 0
	dropped, opened := false, false
	for ctx.Err() == nil {
		stream, err := l.transport.Open(ctx, s.topic)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			log.Printf("feed: open %s failed: %v; retrying in %s", s.topic, err, backoff)
			l.reportDrop(s.topic, failures, err)
			dropped = true
			if !sleep(ctx, backoff) {
				return
			}
			backoff = l.next(backoff)
			continue
		}
		if !opened {
			opened = true
			close(s.ready)
		}
		if dropped && l.opts.OnRestored != nil {
			l.opts.OnRestored(s.topic)
		}
		failures, dropped = 0, false
		backoff = l.opts.MinBackoff

		err = consume(ctx, s.topic, stream, h)
		_ = stream.Close()
		if ctx.Err() != nil {
			return
		}
		failures++
		dropped = true
		log.Printf("feed: %s dropped: %v; resubscribing in %s", s.topic, err, backoff)
		l.reportDrop(s.topic, failures, err)
		if !sleep(ctx, backoff) {
			return
		}
		backoff = l.next(backoff)
	}
}

func consume(ctx context.Context, topic Topic, stream Stream, h Handler) error {
	for {
		msg, err := stream.Next(ctx)
		if err != nil {
			if errors.Is(err, ErrMalformed) {
				log.Printf("feed: %s skipping message: %v", topic, err)
				continue
			}
			return err
		}
		if !topic.Match(msg) {
			continue
		}
		ch, err := msg.Decode()
		if err != nil {
			log.Printf("feed: %s skipping message: %v", topic, err)
			continue
		}
		h(ch)
	}
}

func (l *Listener) reportDrop(topic Topic, failures int, err error) {
	if failures != l.opts.MaxFailures || l.opts.OnDropped == nil {
		return
	}
	l.opts.OnDropped(topic, fmt.Errorf("%w: %s after %d attempts: %w", ErrSubscriptionDropped, topic, failures, err))
}

func (l *Listener) next(d time.Duration) time.Duration {
	d *= 2
	if d > l.opts.MaxBackoff {
		d = l.opts.MaxBackoff
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
