package loop

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoRunsSerially(t *testing.T) {
	l := New()
	defer l.Stop()

	n := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, l.Do(func() { n++ }))
		}()
	}
	wg.Wait()
	require.NoError(t, l.Do(func() {}))
	assert.Equal(t, 50, n)
}

func TestPostOrder(t *testing.T) {
	l := New()
	defer l.Stop()

	var got []int
	for i := 0; i < 10; i++ {
		i := i
		require.NoError(t, l.Post(func() { got = append(got, i) }))
	}
	require.NoError(t, l.Do(func() {}))
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestStopped(t *testing.T) {
	l := New()
	l.Stop()
	l.Stop()
	assert.ErrorIs(t, l.Do(func() {}), ErrClosed)
	assert.ErrorIs(t, l.Post(func() {}), ErrClosed)
}

func TestDoContextCancelled(t *testing.T) {
	l := New()
	defer l.Stop()

	block := make(chan struct{})
	require.NoError(t, l.Post(func() { <-block }))
	// fill the queue so the next enqueue has to wait
	for i := 0; i < cap(l.work); i++ {
		require.NoError(t, l.Post(func() {}))
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.DoContext(ctx, func() {}), context.Canceled)
	close(block)
}
