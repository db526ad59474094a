package feed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/community-events/internal/model"
)

func TestMemoryRoutesByTopic(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	all, err := m.Open(ctx, Topic{Table: model.TableRsvps})
	require.NoError(t, err)
	one, err := m.Open(ctx, Topic{Table: model.TableRsvps, EventID: "2"})
	require.NoError(t, err)
	assert.Equal(t, 2, m.Len())

	require.NoError(t, m.Publish(ctx, rsvpMsg(t, model.KindInsert, "1", "u")))
	require.NoError(t, m.Publish(ctx, rsvpMsg(t, model.KindInsert, "2", "v")))

	got, err := all.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1", got.EventID)
	got, err = all.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2", got.EventID)

	got, err = one.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2", got.EventID)

	require.NoError(t, one.Close())
	assert.Equal(t, 1, m.Len())
}

func TestMemoryResetEndsStreams(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	s, err := m.Open(ctx, Topic{Table: model.TableEvents})
	require.NoError(t, err)

	m.Reset()
	_, err = s.Next(ctx)
	assert.ErrorIs(t, err, errStreamReset)
	assert.Equal(t, 0, m.Len())
}

func TestListenerRestoresOnMemoryReset(t *testing.T) {
	m := NewMemory()
	restored := make(chan Topic, 1)
	opts := fastOptions()
	opts.OnRestored = func(tp Topic) { restored <- tp }
	got := make(chan model.Change, 4)
	sub := NewListener(m, opts).Subscribe(context.Background(), Topic{Table: model.TableRsvps}, func(c model.Change) { got <- c })
	defer sub.Close()

	select {
	case <-sub.Ready():
	case <-time.After(time.Second):
		t.Fatal("subscription never became ready")
	}
	m.Reset()
	select {
	case tp := <-restored:
		assert.Equal(t, model.TableRsvps, tp.Table)
	case <-time.After(time.Second):
		t.Fatal("no restore")
	}
	require.NoError(t, m.Publish(context.Background(), rsvpMsg(t, model.KindInsert, "1", "u")))
	assert.Equal(t, "u", recv(t, got).New.(*model.Rsvp).UserID)
}
