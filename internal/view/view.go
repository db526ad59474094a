// Package view assembles one live session over the community data: an
// entity store owned by a single loop goroutine, the optimistic coordinator
// that writes through to the durable store, the reconciler that merges the
// change feed, and the feed subscriptions themselves.
package view

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/community-events/internal/feed"
	"github.com/iliyamo/community-events/internal/identity"
	"github.com/iliyamo/community-events/internal/loop"
	"github.com/iliyamo/community-events/internal/model"
	"github.com/iliyamo/community-events/internal/optimistic"
	"github.com/iliyamo/community-events/internal/reconcile"
	"github.com/iliyamo/community-events/internal/store"
)

// Source is the durable store a view reads from and writes through.
type Source interface {
	optimistic.Durable
	FetchEvents(ctx context.Context) ([]model.Event, error)
	FetchComments(ctx context.Context, eventID string) ([]model.Comment, error)
	CreatorName(ctx context.Context, userID string) (string, error)
}

// Options configure a view.  Source and Transport are required.
type Options struct {
	Source    Source
	Transport feed.Transport
	Identity  identity.Provider // nil means anonymous
	Feed      feed.Options      // backoff knobs; the view installs its own hooks

	// ReadyTimeout bounds how long Open and OpenEvent wait for a new
	// subscription before fetching anyway.  Default 5s.
	ReadyTimeout time.Duration

	// OnDropped is told when a subscription keeps failing.
	OnDropped func(feed.Topic, error)
	// OnDecision observes every reconciled change.  It runs on the loop
	// goroutine and must not call back into the view.
	OnDecision func(model.Change, reconcile.Decision)
}

// Snapshot is a consistent copy of the store.
type Snapshot struct {
	Version uint64        `json:"version"`
	Events  []model.Event `json:"events"`
}

// View is one session.  Its methods are safe for concurrent use but must
// not be called from a Watch or OnDecision callback.
type View struct {
	id       string
	opts     Options
	src      Source
	loop     *loop.Loop
	store    *store.Store
	coord    *optimistic.Coordinator
	rec      *reconcile.Reconciler
	listener *feed.Listener

	ctx    context.Context
	cancel context.CancelFunc

	refetchMu sync.Mutex
	detailMu  sync.Mutex

	// owned by the loop
	buffering int
	buffered  []model.Change

	mu       sync.Mutex
	closed   bool
	subs     []*feed.Subscription
	detail   *feed.Subscription
	detailID string
}

// Open subscribes to events and RSVPs, performs the initial fetch and
// returns the live view.
func Open(ctx context.Context, opts Options) (*View, error) {
	if opts.Identity == nil {
		opts.Identity = identity.Anonymous
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 5 * time.Second
	}
	v := &View{
		id:    uuid.NewString(),
		opts:  opts,
		src:   opts.Source,
		loop:  loop.New(),
		store: store.New(nil),
	}
	v.coord = optimistic.NewCoordinator(v.loop, v.store, opts.Source, opts.Identity)
	v.rec = reconcile.New(v.store, opts.Identity, v.coord)
	v.ctx, v.cancel = context.WithCancel(context.Background())

	fo := opts.Feed
	fo.OnRestored = v.restored
	fo.OnDropped = v.dropped
	v.listener = feed.NewListener(opts.Transport, fo)

	v.mu.Lock()
	for _, t := range []model.Table{model.TableEvents, model.TableRsvps} {
		v.subs = append(v.subs, v.listener.Subscribe(v.ctx, feed.Topic{Table: t}, v.handle))
	}
	subs := v.subs
	v.mu.Unlock()
	v.awaitReady(ctx, subs...)

	if err := v.Refetch(ctx); err != nil {
		_ = v.Close()
		return nil, err
	}
	log.Printf("view %s: opened", v.id)
	return v, nil
}

// ID identifies the session in logs.
func (v *View) ID() string { return v.id }

// Refetch reloads every event (and the comments of the open event) from
// the durable store and replaces the store contents.  Changes delivered
// while the fetch is in flight are replayed on top of the result, and
// optimistic writes still pending are re-applied.
func (v *View) Refetch(ctx context.Context) error {
	v.refetchMu.Lock()
	defer v.refetchMu.Unlock()

	if err := v.loop.Do(func() { v.buffering++ }); err != nil {
		return err
	}
	err := v.load(ctx)
	if derr := v.loop.Do(v.endBuffering); err == nil {
		err = derr
	}
	return err
}

func (v *View) load(ctx context.Context) error {
	evs, err := v.src.FetchEvents(ctx)
	if err != nil {
		return fmt.Errorf("fetch events: %w", err)
	}
	v.resolveCreators(ctx, evs)

	v.mu.Lock()
	detailID := v.detailID
	v.mu.Unlock()
	if detailID != "" {
		cs, err := v.src.FetchComments(ctx, detailID)
		if err != nil {
			return fmt.Errorf("fetch comments of %s: %w", detailID, err)
		}
		for i := range evs {
			if evs[i].ID == detailID {
				evs[i].Comments = cs
			}
		}
	}
	return v.loop.Do(func() {
		v.store.Reset(evs)
		v.coord.Rebase()
	})
}

func (v *View) endBuffering() {
	v.buffering--
	if v.buffering > 0 {
		return
	}
	changes := v.buffered
	v.buffered = nil
	for _, ch := range changes {
		v.apply(ch)
	}
}

// handle runs on a subscription goroutine.
func (v *View) handle(ch model.Change) {
	if ev, ok := ch.New.(*model.Event); ok {
		v.resolveCreator(v.ctx, ev, nil)
	}
	_ = v.loop.Post(func() {
		if v.buffering > 0 {
			v.buffered = append(v.buffered, ch)
			return
		}
		v.apply(ch)
	})
}

func (v *View) apply(ch model.Change) {
	d := v.rec.Reconcile(ch)
	if v.opts.OnDecision != nil {
		v.opts.OnDecision(ch, d)
	}
}

func (v *View) resolveCreators(ctx context.Context, evs []model.Event) {
	names := make(map[string]string)
	for i := range evs {
		v.resolveCreator(ctx, &evs[i], names)
	}
}

// resolveCreator fills in the creator name when the payload lacks it.
// names, if not nil, memoizes lookups.
func (v *View) resolveCreator(ctx context.Context, ev *model.Event, names map[string]string) {
	if ev.CreatedBy == "" || (ev.CreatorName != "" && ev.CreatorName != model.AnonymousName) {
		return
	}
	if name, ok := names[ev.CreatedBy]; ok {
		ev.CreatorName = name
		return
	}
	name, err := v.src.CreatorName(ctx, ev.CreatedBy)
	if err != nil {
		log.Printf("view %s: creator name of user %s: %v", v.id, ev.CreatedBy, err)
		return
	}
	if names != nil {
		names[ev.CreatedBy] = name
	}
	ev.CreatorName = name
}

func (v *View) restored(t feed.Topic) {
	log.Printf("view %s: %s restored, refetching", v.id, t)
	if err := v.Refetch(v.ctx); err != nil && v.ctx.Err() == nil {
		log.Printf("view %s: refetch after restore failed: %v", v.id, err)
	}
}

func (v *View) dropped(t feed.Topic, err error) {
	log.Printf("view %s: %v", v.id, err)
	if v.opts.OnDropped != nil {
		v.opts.OnDropped(t, err)
	}
}

func (v *View) awaitReady(ctx context.Context, subs ...*feed.Subscription) {
	timer := time.NewTimer(v.opts.ReadyTimeout)
	defer timer.Stop()
	for _, s := range subs {
		select {
		case <-s.Ready():
		case <-timer.C:
			log.Printf("view %s: %s not ready after %s, fetching anyway", v.id, s.Topic(), v.opts.ReadyTimeout)
			return
		case <-ctx.Done():
			return
		}
	}
}

// OpenEvent makes eventID the detail event: its comments are fetched and
// kept live.  A previously opened event stops receiving comments and its
// comment list is cleared.
func (v *View) OpenEvent(ctx context.Context, eventID string) error {
	v.detailMu.Lock()
	defer v.detailMu.Unlock()

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return loop.ErrClosed
	}
	prev, prevID := v.detail, v.detailID
	sub := v.listener.Subscribe(v.ctx, feed.Topic{Table: model.TableComments, EventID: eventID}, v.handle)
	v.detail, v.detailID = sub, eventID
	v.mu.Unlock()

	if prev != nil {
		_ = prev.Close()
		if err := v.loop.Do(func() { v.clearComments(prevID) }); err != nil {
			return err
		}
	}
	v.awaitReady(ctx, sub)

	cs, err := v.src.FetchComments(ctx, eventID)
	if err != nil {
		return fmt.Errorf("fetch comments of %s: %w", eventID, err)
	}
	return v.loop.Do(func() {
		for _, c := range cs {
			v.store.Apply(store.InsertComment{Comment: c})
		}
	})
}

// CloseEvent leaves the detail event, if any.
func (v *View) CloseEvent() error {
	v.detailMu.Lock()
	defer v.detailMu.Unlock()

	v.mu.Lock()
	prev, prevID := v.detail, v.detailID
	v.detail, v.detailID = nil, ""
	v.mu.Unlock()
	if prev == nil {
		return nil
	}
	_ = prev.Close()
	return v.loop.Do(func() { v.clearComments(prevID) })
}

// DetailID returns the event opened with OpenEvent, or "".
func (v *View) DetailID() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.detailID
}

func (v *View) clearComments(eventID string) {
	ev, ok := v.store.Event(eventID)
	if !ok || len(ev.Comments) == 0 {
		return
	}
	ev.Comments = nil
	v.store.Apply(store.RestoreEvent{EventID: eventID, Event: ev})
}

// AddRsvp marks the current user as attending.  The store shows the RSVP
// before the write completes; it is rolled back if the write fails.
func (v *View) AddRsvp(ctx context.Context, eventID string) error {
	return v.coord.AddRsvp(ctx, eventID)
}

// RemoveRsvp cancels the current user's RSVP, optimistically.
func (v *View) RemoveRsvp(ctx context.Context, eventID string) error {
	return v.coord.RemoveRsvp(ctx, eventID)
}

// AddComment posts a comment and returns it as stored.
func (v *View) AddComment(ctx context.Context, eventID, body string) (model.Comment, error) {
	return v.coord.AddComment(ctx, eventID, body)
}

// Snapshot returns a copy of the store contents.
func (v *View) Snapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := v.loop.DoContext(ctx, func() {
		s = Snapshot{Version: v.store.Version(), Events: v.store.Events()}
	})
	return s, err
}

// Event returns a copy of one event.
func (v *View) Event(ctx context.Context, id string) (model.Event, bool, error) {
	var (
		ev *model.Event
		ok bool
	)
	err := v.loop.DoContext(ctx, func() { ev, ok = v.store.Event(id) })
	if err != nil || !ok {
		return model.Event{}, false, err
	}
	return *ev, true, nil
}

// Pending returns the optimistic writes still in flight.
func (v *View) Pending(ctx context.Context) ([]optimistic.Record, error) {
	var out []optimistic.Record
	err := v.loop.DoContext(ctx, func() { out = v.coord.Pending() })
	return out, err
}

// Watch calls fn with the new store version after every change.  fn runs
// on the loop goroutine and must return quickly.  The returned cancel must
// not be called from fn.
func (v *View) Watch(fn func(version uint64)) (cancel func(), err error) {
	var stop func()
	if err := v.loop.Do(func() { stop = v.store.Observe(fn) }); err != nil {
		return func() {}, err
	}
	return func() { _ = v.loop.Do(stop) }, nil
}

// Close releases every subscription and stops the loop.  It is idempotent.
func (v *View) Close() error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.closed = true
	subs := v.subs
	if v.detail != nil {
		subs = append(subs, v.detail)
	}
	v.subs, v.detail, v.detailID = nil, nil, ""
	v.mu.Unlock()

	v.cancel()
	for _, s := range subs {
		_ = s.Close()
	}
	v.loop.Stop()
	log.Printf("view %s: closed", v.id)
	return nil
}
