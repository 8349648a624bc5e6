package lease

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aobuilder/aob/pkg/aoberrors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// managerCases exercises the Manager contract against every implementation
// so the Redis-backed and in-memory managers can never drift apart.
func managerCases(t *testing.T, newManager func() Manager) {
	t.Helper()
	ctx := context.Background()

	t.Run("acquire then busy", func(t *testing.T) {
		m := newManager()
		token, err := m.Acquire(ctx, "run-1", time.Minute)
		require.NoError(t, err)
		assert.NotEmpty(t, token)

		_, err = m.Acquire(ctx, "run-1", time.Minute)
		assert.ErrorIs(t, err, aoberrors.ErrLeaseBusy)
	})

	t.Run("renew with correct token succeeds", func(t *testing.T) {
		m := newManager()
		token, err := m.Acquire(ctx, "run-2", time.Minute)
		require.NoError(t, err)

		err = m.Renew(ctx, "run-2", token, time.Minute)
		assert.NoError(t, err)
	})

	t.Run("renew with stale token fails", func(t *testing.T) {
		m := newManager()
		_, err := m.Acquire(ctx, "run-3", time.Minute)
		require.NoError(t, err)

		err = m.Renew(ctx, "run-3", "not-the-real-token", time.Minute)
		assert.ErrorIs(t, err, aoberrors.ErrLeaseLost)
	})

	t.Run("release frees the lease for another holder", func(t *testing.T) {
		m := newManager()
		token, err := m.Acquire(ctx, "run-4", time.Minute)
		require.NoError(t, err)

		require.NoError(t, m.Release(ctx, "run-4", token))

		_, err = m.Acquire(ctx, "run-4", time.Minute)
		assert.NoError(t, err)
	})

	t.Run("release with wrong token is a no-op", func(t *testing.T) {
		m := newManager()
		token, err := m.Acquire(ctx, "run-5", time.Minute)
		require.NoError(t, err)

		require.NoError(t, m.Release(ctx, "run-5", "wrong-token"))

		_, err = m.Acquire(ctx, "run-5", time.Minute)
		assert.ErrorIs(t, err, aoberrors.ErrLeaseBusy)

		require.NoError(t, m.Release(ctx, "run-5", token))
	})
}

func TestMemoryManager(t *testing.T) {
	managerCases(t, func() Manager { return NewMemory() })
}

func TestRedisManager(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	managerCases(t, func() Manager { return NewRedisManager(client) })
}
