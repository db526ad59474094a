// Package reconcile decides what an incoming change-feed notification does
// to a view's store.
package reconcile

import (
	"github.com/iliyamo/community-events/internal/identity"
	"github.com/iliyamo/community-events/internal/model"
	"github.com/iliyamo/community-events/internal/store"
)

// Decision is the outcome of reconciling one change.
type Decision int

const (
	// Ignored: the change did not alter the store.
	Ignored Decision = iota
	// Applied: the change was merged into the store.
	Applied
	// DroppedSelfEcho: the change reports the current user's own RSVP and
	// was discarded.
	DroppedSelfEcho
	// Superseded: the change matched a pending optimistic record.
	Superseded
)

func (d Decision) String() string {
	switch d {
	case Applied:
		return "applied"
	case DroppedSelfEcho:
		return "dropped_self_echo"
	case Superseded:
		return "superseded"
	}
	return "ignored"
}

// EchoMatcher recognises changes caused by the local user's in-flight
// mutations.  The optimistic coordinator implements it.
type EchoMatcher interface {
	MatchEcho(ch model.Change) bool
}

// Reconciler applies the merge policy.  Like the store it works on, it must
// only be used from the store's owning goroutine.
type Reconciler struct {
	store    *store.Store
	identity identity.Provider
	echoes   EchoMatcher
}

// New returns a reconciler for s.  echoes may be nil.
func New(s *store.Store, id identity.Provider, echoes EchoMatcher) *Reconciler {
	if id == nil {
		id = identity.Anonymous
	}
	return &Reconciler{store: s, identity: id, echoes: echoes}
}

// Reconcile merges ch into the store according to its table.
func (r *Reconciler) Reconcile(ch model.Change) Decision {
	switch ch.Table {
	case model.TableRsvps:
		return r.rsvp(ch)
	case model.TableEvents:
		return r.event(ch)
	case model.TableComments:
		return r.comment(ch)
	}
	return Ignored
}

func (r *Reconciler) self(userID string) bool {
	cur, ok := r.identity.CurrentUserID()
	return ok && cur == userID
}

// rsvp drops every notification about the current user's own RSVPs: the
// local state already reflects them, and the store's idempotent RSVP
// mutations make the arrival order against the local write irrelevant.
// Another session of the same user is suppressed as well.
func (r *Reconciler) rsvp(ch model.Change) Decision {
	subj, ok := ch.Subject().(*model.Rsvp)
	if !ok {
		return Ignored
	}
	if r.self(subj.UserID) {
		if r.echoes != nil && r.echoes.MatchEcho(ch) {
			return Superseded
		}
		return DroppedSelfEcho
	}
	changed := false
	switch ch.Kind {
	case model.KindInsert:
		changed = r.store.Apply(store.InsertRsvp{EventID: subj.EventID, UserID: subj.UserID})
	case model.KindDelete:
		changed = r.store.Apply(store.RemoveRsvp{EventID: subj.EventID, UserID: subj.UserID})
	case model.KindUpdate:
		if old, ok := ch.Old.(*model.Rsvp); ok && old.Key() != subj.Key() && !r.self(old.UserID) {
			changed = r.store.Apply(store.RemoveRsvp{EventID: old.EventID, UserID: old.UserID})
		}
		if r.store.Apply(store.InsertRsvp{EventID: subj.EventID, UserID: subj.UserID}) {
			changed = true
		}
	}
	return decided(changed)
}

func (r *Reconciler) event(ch model.Change) Decision {
	switch ch.Kind {
	case model.KindInsert, model.KindUpdate:
		ev, ok := ch.New.(*model.Event)
		if !ok {
			return Ignored
		}
		return decided(r.store.Apply(store.InsertEvent{Event: *ev}))
	case model.KindDelete:
		ev, ok := ch.Old.(*model.Event)
		if !ok {
			return Ignored
		}
		return decided(r.store.Apply(store.RemoveEvent{EventID: ev.ID}))
	}
	return Ignored
}

// comment applies inserts only; comments are immutable.  A comment id is
// authoritative, so the store's dedupe on id absorbs the echo of a comment
// this session posted, whichever of echo and write response lands first.
func (r *Reconciler) comment(ch model.Change) Decision {
	if ch.Kind != model.KindInsert {
		return Ignored
	}
	c, ok := ch.New.(*model.Comment)
	if !ok {
		return Ignored
	}
	changed := r.store.Apply(store.InsertComment{Comment: *c})
	if r.self(c.UserID) && r.echoes != nil && r.echoes.MatchEcho(ch) {
		return Superseded
	}
	return decided(changed)
}

func decided(changed bool) Decision {
	if changed {
		return Applied
	}
	return Ignored
}
