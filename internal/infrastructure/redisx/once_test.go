package redisx

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOnceGuard_WithoutRedisAlwaysGrants(t *testing.T) {
	var nilGuard *OnceGuard
	ok, err := nilGuard.Claim(context.Background(), "e1/u1/invited")
	require.NoError(t, err)
	assert.True(t, ok)

	g := NewOnceGuard(nil, "guestlist:notified:", time.Hour)
	for i := 0; i < 2; i++ {
		ok, err := g.Claim(context.Background(), "e1/u1/invited")
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestOnceGuard_ReleaseWithoutRedisIsNoop(t *testing.T) {
	var nilGuard *OnceGuard
	assert.NoError(t, nilGuard.Release(context.Background(), "e1/u1/invited"))
	assert.NoError(t, NewOnceGuard(nil, "p:", time.Hour).Release(context.Background()))
}

func TestNewClient_RejectsBadURL(t *testing.T) {
	_, err := NewClient(context.Background(), "not-a-redis-url")
	assert.Error(t, err)
}
