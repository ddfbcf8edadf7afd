package mqtt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySessionStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore()
	defer store.Close()

	t.Run("load missing", func(t *testing.T) {
		_, err := store.Load(ctx, "nobody")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("save and load", func(t *testing.T) {
		state := &SessionState{
			ClientID:       "c1",
			Version:        MQTTv50,
			ExpiryInterval: 300,
			Subscriptions:  []Subscription{{TopicFilter: "a/#", QoS: 1}},
			UpdatedAt:      time.Now(),
		}
		require.NoError(t, store.Save(ctx, state))

		got, err := store.Load(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, state, got)
		assert.Equal(t, 1, store.Count())
	})

	t.Run("save replaces", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, &SessionState{ClientID: "c1", ExpiryInterval: 60, UpdatedAt: time.Now()}))

		got, err := store.Load(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, uint32(60), got.ExpiryInterval)
		assert.Equal(t, 1, store.Count())
	})

	t.Run("list and delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, &SessionState{ClientID: "c2", UpdatedAt: time.Now()}))

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"c1", "c2"}, ids)

		require.NoError(t, store.Delete(ctx, "c2"))
		require.NoError(t, store.Delete(ctx, "c2"))
		assert.Equal(t, 1, store.Count())
	})
}

func TestMemorySessionStoreCleanup(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore()

	require.NoError(t, store.Save(ctx, &SessionState{
		ClientID:       "expired",
		ExpiryInterval: 10,
		UpdatedAt:      time.Now().Add(-time.Minute),
	}))
	require.NoError(t, store.Save(ctx, &SessionState{
		ClientID:       "fresh",
		ExpiryInterval: 600,
		UpdatedAt:      time.Now(),
	}))
	require.NoError(t, store.Save(ctx, &SessionState{
		ClientID:       "persistent",
		ExpiryInterval: 0xFFFFFFFF,
		UpdatedAt:      time.Now().Add(-24 * 365 * time.Hour),
	}))

	n, err := store.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = store.Load(ctx, "expired")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = store.Load(ctx, "persistent")
	assert.NoError(t, err)
}
