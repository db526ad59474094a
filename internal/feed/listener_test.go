package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/community-events/internal/model"
)

// fakeTransport hands out streams fed through channels.  Each call to Open
// consumes the next entry of opens: an error fails the attempt, otherwise a
// fresh stream is returned and published on streams.
type fakeTransport struct {
	mu      sync.Mutex
	opens   []error
	streams chan *fakeStream
}

func newFakeTransport(opens ...error) *fakeTransport {
	return &fakeTransport{opens: opens, streams: make(chan *fakeStream, 16)}
}

func (t *fakeTransport) Open(ctx context.Context, topic Topic) (Stream, error) {
	t.mu.Lock()
	var err error
	if len(t.opens) > 0 {
		err, t.opens = t.opens[0], t.opens[1:]
	}
	t.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s := &fakeStream{msgs: make(chan Message, 16), errs: make(chan error, 1), closed: make(chan struct{})}
	t.streams <- s
	return s, nil
}

type fakeStream struct {
	msgs   chan Message
	errs   chan error
	closed chan struct{}
	once   sync.Once
}

func (s *fakeStream) Next(ctx context.Context) (Message, error) {
	select {
	case m := <-s.msgs:
		return m, nil
	case err := <-s.errs:
		return Message{}, err
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func rsvpMsg(t *testing.T, kind model.Kind, eventID, userID string) Message {
	t.Helper()
	m, err := NewMessage(kind, &model.Rsvp{EventID: eventID, UserID: userID}, nil)
	require.NoError(t, err)
	return m
}

func nextStream(t *testing.T, tr *fakeTransport) *fakeStream {
	t.Helper()
	select {
	case s := <-tr.streams:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no stream opened")
		return nil
	}
}

func recv(t *testing.T, ch <-chan model.Change) model.Change {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no change delivered")
		return model.Change{}
	}
}

func fastOptions() Options {
	return Options{MinBackoff: time.Millisecond, MaxBackoff: 4 * time.Millisecond}
}

func TestListenerDelivers(t *testing.T) {
	tr := newFakeTransport()
	got := make(chan model.Change, 4)
	l := NewListener(tr, fastOptions())
	sub := l.Subscribe(context.Background(), Topic{Table: model.TableRsvps}, func(c model.Change) { got <- c })
	defer sub.Close()

	s := nextStream(t, tr)
	s.msgs <- Message{Kind: model.KindInsert, Table: model.TableRsvps, New: []byte("not json")}
	s.msgs <- rsvpMsg(t, model.KindInsert, "1", "u")

	c := recv(t, got)
	assert.Equal(t, &model.Rsvp{EventID: "1", UserID: "u"}, c.New)
}

func TestListenerFiltersTopic(t *testing.T) {
	tr := newFakeTransport()
	got := make(chan model.Change, 4)
	l := NewListener(tr, fastOptions())
	sub := l.Subscribe(context.Background(), Topic{Table: model.TableRsvps, EventID: "2"}, func(c model.Change) { got <- c })
	defer sub.Close()

	s := nextStream(t, tr)
	s.msgs <- rsvpMsg(t, model.KindInsert, "1", "u")
	s.msgs <- rsvpMsg(t, model.KindInsert, "2", "v")
	c := recv(t, got)
	assert.Equal(t, "v", c.New.(*model.Rsvp).UserID)
}

func TestListenerResubscribes(t *testing.T) {
	tr := newFakeTransport()
	got := make(chan model.Change, 4)
	restored := make(chan Topic, 1)
	opts := fastOptions()
	opts.OnRestored = func(tp Topic) { restored <- tp }
	l := NewListener(tr, opts)
	sub := l.Subscribe(context.Background(), Topic{Table: model.TableRsvps}, func(c model.Change) { got <- c })
	defer sub.Close()

	first := nextStream(t, tr)
	first.errs <- errors.New("connection reset")
	second := nextStream(t, tr)
	<-first.closed

	select {
	case tp := <-restored:
		assert.Equal(t, model.TableRsvps, tp.Table)
	case <-time.After(2 * time.Second):
		t.Fatal("restore not reported")
	}
	second.msgs <- rsvpMsg(t, model.KindDelete, "1", "u")
	c := recv(t, got)
	assert.Equal(t, model.KindDelete, c.Kind)
}

func TestListenerReportsRepeatedFailures(t *testing.T) {
	boom := errors.New("broker down")
	tr := newFakeTransport(boom, boom, boom)
	dropped := make(chan error, 1)
	opts := fastOptions()
	opts.MaxFailures = 3
	opts.OnDropped = func(_ Topic, err error) { dropped <- err }
	l := NewListener(tr, opts)
	sub := l.Subscribe(context.Background(), Topic{Table: model.TableEvents}, func(model.Change) {})
	defer sub.Close()

	select {
	case err := <-dropped:
		assert.ErrorIs(t, err, ErrSubscriptionDropped)
		assert.ErrorIs(t, err, boom)
	case <-time.After(2 * time.Second):
		t.Fatal("drop not reported")
	}
	nextStream(t, tr) // keeps retrying after reporting
}

func TestSubscriptionClose(t *testing.T) {
	tr := newFakeTransport()
	l := NewListener(tr, fastOptions())
	sub := l.Subscribe(context.Background(), Topic{Table: model.TableEvents}, func(model.Change) {})
	s := nextStream(t, tr)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	<-s.closed
	select {
	case <-sub.Done():
	default:
		t.Fatal("subscription still running")
	}
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, time.Second, o.MinBackoff)
	assert.Equal(t, 30*time.Second, o.MaxBackoff)
	assert.Equal(t, 5, o.MaxFailures)

	l := NewListener(nil, Options{MinBackoff: time.Second, MaxBackoff: 3 * time.Second})
	assert.Equal(t, 2*time.Second, l.next(time.Second))
	assert.Equal(t, 3*time.Second, l.next(2*time.Second))
}
