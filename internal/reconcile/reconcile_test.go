package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/community-events/internal/identity"
	"github.com/iliyamo/community-events/internal/model"
	"github.com/iliyamo/community-events/internal/store"
)

type stubEchoes struct{ match bool }

func (s *stubEchoes) MatchEcho(model.Change) bool { return s.match }

func newStore(rsvps ...string) *store.Store {
	ev := model.Event{ID: "1", Title: "Go meetup"}
	for _, u := range rsvps {
		ev.Rsvps = append(ev.Rsvps, model.Rsvp{EventID: "1", UserID: u})
	}
	return store.New([]model.Event{ev})
}

func users(t *testing.T, s *store.Store) []string {
	t.Helper()
	ev, ok := s.Event("1")
	require.True(t, ok)
	out := []string{}
	for _, r := range ev.Rsvps {
		out = append(out, r.UserID)
	}
	return out
}

func rsvpChange(kind model.Kind, user string) model.Change {
	r := &model.Rsvp{EventID: "1", UserID: user}
	if kind == model.KindDelete {
		return model.Change{Kind: kind, Table: model.TableRsvps, Old: r}
	}
	return model.Change{Kind: kind, Table: model.TableRsvps, New: r}
}

func TestSelfEchoSuppressed(t *testing.T) {
	// the local optimistic insert already happened
	s := newStore("U")
	r := New(s, identity.Static("U"), nil)
	assert.Equal(t, DroppedSelfEcho, r.Reconcile(rsvpChange(model.KindInsert, "U")))
	assert.Equal(t, []string{"U"}, users(t, s))
}

func TestSelfDeleteDropped(t *testing.T) {
	s := newStore("U")
	r := New(s, identity.Static("U"), nil)
	assert.Equal(t, DroppedSelfEcho, r.Reconcile(rsvpChange(model.KindDelete, "U")))
	assert.Equal(t, []string{"U"}, users(t, s))
}

func TestSelfEchoSupersedesPending(t *testing.T) {
	s := newStore("U")
	r := New(s, identity.Static("U"), &stubEchoes{match: true})
	v := s.Version()
	assert.Equal(t, Superseded, r.Reconcile(rsvpChange(model.KindInsert, "U")))
	assert.Equal(t, v, s.Version())
}

func TestNonSelfApplied(t *testing.T) {
	s := newStore("U")
	// a pending local mutation must not block other users' changes
	r := New(s, identity.Static("U"), &stubEchoes{match: true})
	assert.Equal(t, Applied, r.Reconcile(rsvpChange(model.KindInsert, "V")))
	assert.Equal(t, []string{"U", "V"}, users(t, s))
	assert.Equal(t, Ignored, r.Reconcile(rsvpChange(model.KindInsert, "V")))
	assert.Equal(t, Applied, r.Reconcile(rsvpChange(model.KindDelete, "V")))
	assert.Equal(t, []string{"U"}, users(t, s))
	assert.Equal(t, Ignored, r.Reconcile(rsvpChange(model.KindDelete, "V")))
}

func TestAnonymousAppliesEverything(t *testing.T) {
	s := newStore()
	r := New(s, nil, nil)
	assert.Equal(t, Applied, r.Reconcile(rsvpChange(model.KindInsert, "U")))
	assert.Equal(t, []string{"U"}, users(t, s))
}

func TestRsvpUpdate(t *testing.T) {
	s := newStore("V")
	r := New(s, identity.Static("U"), nil)
	ch := model.Change{
		Kind:  model.KindUpdate,
		Table: model.TableRsvps,
		Old:   &model.Rsvp{EventID: "1", UserID: "V"},
		New:   &model.Rsvp{EventID: "1", UserID: "W"},
	}
	assert.Equal(t, Applied, r.Reconcile(ch))
	assert.Equal(t, []string{"W"}, users(t, s))
}

func TestOutOfOrderRows(t *testing.T) {
	s := newStore()
	r := New(s, identity.Static("U"), nil)
	// a delete for V overtaken by an insert for W, then V's insert arrives late
	r.Reconcile(rsvpChange(model.KindInsert, "W"))
	r.Reconcile(rsvpChange(model.KindDelete, "V"))
	r.Reconcile(rsvpChange(model.KindInsert, "V"))
	r.Reconcile(rsvpChange(model.KindInsert, "W"))
	assert.ElementsMatch(t, []string{"W", "V"}, users(t, s))
}

func TestEventChanges(t *testing.T) {
	s := newStore("V")
	r := New(s, identity.Static("U"), nil)
	ins := model.Change{Kind: model.KindInsert, Table: model.TableEvents, New: &model.Event{ID: "2", Title: "Docker night"}}
	assert.Equal(t, Applied, r.Reconcile(ins))
	assert.Equal(t, 2, s.Len())

	upd := model.Change{Kind: model.KindUpdate, Table: model.TableEvents, New: &model.Event{ID: "1", Title: "Go meetup (moved)"}}
	assert.Equal(t, Applied, r.Reconcile(upd))
	ev, _ := s.Event("1")
	assert.Equal(t, "Go meetup (moved)", ev.Title)
	assert.Len(t, ev.Rsvps, 1)

	del := model.Change{Kind: model.KindDelete, Table: model.TableEvents, Old: &model.Event{ID: "2"}}
	assert.Equal(t, Applied, r.Reconcile(del))
	assert.Equal(t, Ignored, r.Reconcile(del))
	assert.Equal(t, 1, s.Len())
}

func TestCommentChanges(t *testing.T) {
	s := newStore()
	r := New(s, identity.Static("U"), nil)
	c := &model.Comment{ID: "5", EventID: "1", UserID: "V", Body: "hi", CreatedAt: time.Now()}
	ins := model.Change{Kind: model.KindInsert, Table: model.TableComments, New: c}
	assert.Equal(t, Applied, r.Reconcile(ins))
	assert.Equal(t, Ignored, r.Reconcile(ins))
	assert.Equal(t, Ignored, r.Reconcile(model.Change{Kind: model.KindDelete, Table: model.TableComments, Old: c}))

	ev, _ := s.Event("1")
	assert.Len(t, ev.Comments, 1)
}

func TestSelfCommentEcho(t *testing.T) {
	s := newStore()
	r := New(s, identity.Static("U"), &stubEchoes{match: true})
	c := &model.Comment{ID: "6", EventID: "1", UserID: "U", Body: "mine", CreatedAt: time.Now()}
	assert.Equal(t, Superseded, r.Reconcile(model.Change{Kind: model.KindInsert, Table: model.TableComments, New: c}))
	ev, _ := s.Event("1")
	assert.Len(t, ev.Comments, 1, "echo carries the authoritative comment")

	// the write response lands afterwards and changes nothing
	assert.False(t, s.Apply(store.InsertComment{Comment: *c}))
}

func TestMismatchedPayloadIgnored(t *testing.T) {
	s := newStore()
	r := New(s, identity.Static("U"), nil)
	assert.Equal(t, Ignored, r.Reconcile(model.Change{Kind: model.KindInsert, Table: model.TableRsvps, New: &model.Comment{ID: "1"}}))
	assert.Equal(t, Ignored, r.Reconcile(model.Change{Kind: model.KindInsert, Table: "users"}))
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "applied", Applied.String())
	assert.Equal(t, "dropped_self_echo", DroppedSelfEcho.String())
	assert.Equal(t, "superseded", Superseded.String())
	assert.Equal(t, "ignored", Ignored.String())
}
