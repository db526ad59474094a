package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/community-events/internal/config"
)

func TestNewWithoutRedisIsUnlimited(t *testing.T) {
	l := New(config.RateLimitConfig{Enabled: true}, nil)
	res, err := l.Allow(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestParseResult(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want Result
		err  bool
	}{
		{"allowed", []interface{}{int64(1), int64(4), int64(0)}, Result{Allowed: true, Remaining: 4}, false},
		{"blocked", []interface{}{int64(0), int64(0), int64(750)}, Result{RetryAfter: 750 * time.Millisecond}, false},
		{"strings", []interface{}{"1", "2", "0"}, Result{Allowed: true, Remaining: 2}, false},
		{"short", []interface{}{int64(1)}, Result{}, true},
		{"scalar", "OK", Result{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseResult(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKey(t *testing.T) {
	assert.Equal(t, "rl:user:7:cmd", Key("rl", "user", "7", "cmd"))
	assert.Equal(t, "rl", Key("rl"))
}
