package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/community-events/internal/feed"
	"github.com/iliyamo/community-events/internal/model"
	"github.com/iliyamo/community-events/internal/repository"
)

type fakeEvents struct{ evs []model.Event }

func (f *fakeEvents) List(ctx context.Context) ([]model.Event, error) {
	return append([]model.Event{}, f.evs...), nil
}

func (f *fakeEvents) GetByID(ctx context.Context, id string) (model.Event, error) {
	for _, ev := range f.evs {
		if ev.ID == id {
			return ev, nil
		}
	}
	return model.Event{}, repository.ErrEventNotFound
}

func (f *fakeEvents) Search(ctx context.Context, q repository.EventSearchQuery) ([]model.Event, int64, error) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	out := []model.Event{}
	for _, ev := range f.evs {
		if q.Match(&ev, now) {
			out = append(out, ev)
		}
	}
	return out, int64(len(out)), nil
}

type fakeRsvps struct {
	rows map[model.RsvpKey]bool
	err  error
}

func (f *fakeRsvps) ListAll(ctx context.Context) (map[string][]model.Rsvp, error) {
	out := map[string][]model.Rsvp{}
	for k := range f.rows {
		out[k.EventID] = append(out[k.EventID], model.Rsvp{EventID: k.EventID, UserID: k.UserID})
	}
	return out, nil
}

func (f *fakeRsvps) ListByEvent(ctx context.Context, eventID string) ([]model.Rsvp, error) {
	out := []model.Rsvp{}
	for k := range f.rows {
		if k.EventID == eventID {
			out = append(out, model.Rsvp{EventID: k.EventID, UserID: k.UserID})
		}
	}
	return out, nil
}

func (f *fakeRsvps) Insert(ctx context.Context, eventID, userID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	k := model.RsvpKey{EventID: eventID, UserID: userID}
	if f.rows[k] {
		return false, nil
	}
	f.rows[k] = true
	return true, nil
}

func (f *fakeRsvps) Delete(ctx context.Context, eventID, userID string) (bool, error) {
	k := model.RsvpKey{EventID: eventID, UserID: userID}
	if !f.rows[k] {
		return false, nil
	}
	delete(f.rows, k)
	return true, nil
}

type fakeComments struct{ n int }

func (f *fakeComments) ListByEvent(ctx context.Context, eventID string) ([]model.Comment, error) {
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return []model.Comment{
		{ID: "1", EventID: eventID, CreatedAt: t},
		{ID: "2", EventID: eventID, CreatedAt: t.Add(time.Minute)},
	}, nil
}

func (f *fakeComments) Insert(ctx context.Context, eventID, userID, body string) (model.Comment, error) {
	f.n++
	return model.Comment{ID: "c1", EventID: eventID, UserID: userID, Body: body, AuthorName: "Ann"}, nil
}

type fakeUsers struct{}

func (fakeUsers) DisplayName(ctx context.Context, userID string) (string, error) {
	if userID == "u1" {
		return "Ann", nil
	}
	return model.AnonymousName, nil
}

type recorder struct {
	msgs []feed.Message
	err  error
}

func (r *recorder) Publish(ctx context.Context, m feed.Message) error {
	r.msgs = append(r.msgs, m)
	return r.err
}

func newCommunity(pub feed.Publisher) (*Community, *fakeRsvps) {
	d := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	evs := &fakeEvents{evs: []model.Event{
		{ID: "2", Title: "Later", Date: d.Add(24 * time.Hour)},
		{ID: "1", Title: "Sooner", Date: d},
	}}
	rs := &fakeRsvps{rows: map[model.RsvpKey]bool{{EventID: "1", UserID: "u1"}: true}}
	return NewCommunity(evs, rs, &fakeComments{}, fakeUsers{}, pub), rs
}

func TestFetchEventsAttachesRsvps(t *testing.T) {
	c, _ := newCommunity(nil)
	evs, err := c.FetchEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, "1", evs[0].ID)
	assert.Equal(t, []model.Rsvp{{EventID: "1", UserID: "u1"}}, evs[0].Rsvps)
	assert.Empty(t, evs[1].Rsvps)
}

func TestFetchEvent(t *testing.T) {
	c, _ := newCommunity(nil)
	ev, err := c.FetchEvent(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "Sooner", ev.Title)
	assert.Len(t, ev.Rsvps, 1)

	_, err = c.FetchEvent(context.Background(), "404")
	assert.ErrorIs(t, err, repository.ErrEventNotFound)
}

func TestFetchCommentsNewestFirst(t *testing.T) {
	c, _ := newCommunity(nil)
	cs, err := c.FetchComments(context.Background(), "1")
	require.NoError(t, err)
	require.Len(t, cs, 2)
	assert.Equal(t, "2", cs[0].ID)
}

func TestInsertRsvpPublishesOnlyOnChange(t *testing.T) {
	rec := &recorder{}
	c, _ := newCommunity(rec)
	ctx := context.Background()

	require.NoError(t, c.InsertRsvp(ctx, "2", "u1"))
	require.NoError(t, c.InsertRsvp(ctx, "2", "u1"))
	require.Len(t, rec.msgs, 1)
	assert.Equal(t, model.KindInsert, rec.msgs[0].Kind)
	assert.Equal(t, model.TableRsvps, rec.msgs[0].Table)
	assert.Equal(t, "2", rec.msgs[0].EventID)
}

func TestDeleteRsvpPublishesOldRow(t *testing.T) {
	rec := &recorder{}
	c, _ := newCommunity(rec)

	require.NoError(t, c.DeleteRsvp(context.Background(), "1", "u1"))
	require.NoError(t, c.DeleteRsvp(context.Background(), "1", "u1"))
	require.Len(t, rec.msgs, 1)

	ch, err := rec.msgs[0].Decode()
	require.NoError(t, err)
	assert.Nil(t, ch.New)
	assert.Equal(t, &model.Rsvp{EventID: "1", UserID: "u1"}, ch.Old)
}

func TestWriteErrorSkipsPublish(t *testing.T) {
	rec := &recorder{}
	c, rs := newCommunity(rec)
	rs.err = errors.New("db down")

	err := c.InsertRsvp(context.Background(), "2", "u1")
	assert.EqualError(t, err, "db down")
	assert.Empty(t, rec.msgs)
}

func TestPublishErrorIsSwallowed(t *testing.T) {
	rec := &recorder{err: errors.New("broker down")}
	c, _ := newCommunity(rec)

	cm, err := c.InsertComment(context.Background(), "1", "u1", "hi")
	require.NoError(t, err)
	assert.Equal(t, "c1", cm.ID)
	assert.Len(t, rec.msgs, 1)
}

func TestCreatorName(t *testing.T) {
	c, _ := newCommunity(nil)
	name, err := c.CreatorName(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ann", name)
}

func TestSearchEventsAttachesRsvps(t *testing.T) {
	c, _ := newCommunity(nil)
	evs, total, err := c.SearchEvents(context.Background(), repository.EventSearchQuery{
		EventFilter: model.EventFilter{Text: "soon"},
		Page:        1,
		PageSize:    20,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, evs, 1)
	assert.Equal(t, "1", evs[0].ID)
	assert.Equal(t, []model.Rsvp{{EventID: "1", UserID: "u1"}}, evs[0].Rsvps)

	evs, total, err = c.SearchEvents(context.Background(), repository.EventSearchQuery{
		EventFilter: model.EventFilter{When: model.WhenUpcoming},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, "1", evs[0].ID)
	assert.Empty(t, evs[1].Rsvps)
}
