package router

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tickethub/whatsapp-bridge/pkg/redis"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	// Use unique connection name per test to avoid global adapter caching issues
	connName := t.Name() + "-" + mr.Addr()
	adapter, err := redis.NewRedisAdapter(connName, "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	return mr, adapter
}

func TestDeduper_Acquire(t *testing.T) {
	mr, adapter := setupTestRedis(t)
	defer mr.Close()

	d := NewDeduper(adapter, time.Hour)

	t.Run("first delivery wins", func(t *testing.T) {
		assert.True(t, d.Acquire("wamid.A"))
	})

	t.Run("redelivery is suppressed", func(t *testing.T) {
		assert.False(t, d.Acquire("wamid.A"))
	})

	t.Run("different message id is independent", func(t *testing.T) {
		assert.True(t, d.Acquire("wamid.B"))
	})

	t.Run("empty id is always acquired", func(t *testing.T) {
		assert.True(t, d.Acquire(""))
		assert.True(t, d.Acquire(""))
	})

	t.Run("marker expires", func(t *testing.T) {
		require.True(t, d.Acquire("wamid.C"))
		mr.FastForward(2 * time.Hour)
		assert.True(t, d.Acquire("wamid.C"))
	})
}

func TestDeduper_Release(t *testing.T) {
	mr, adapter := setupTestRedis(t)
	defer mr.Close()

	d := NewDeduper(adapter, time.Hour)

	require.True(t, d.Acquire("wamid.X"))
	d.Release("wamid.X")

	// A redelivery after a failed attempt gets through again.
	assert.True(t, d.Acquire("wamid.X"))
}

func TestDeduper_Disabled(t *testing.T) {
	d := NewDeduper(nil, 0)

	assert.True(t, d.Acquire("wamid.A"))
	assert.True(t, d.Acquire("wamid.A"))
	d.Release("wamid.A")
}
