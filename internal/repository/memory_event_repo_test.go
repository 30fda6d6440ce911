package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"mps-dashboard/internal/event"
)

func TestMemoryAuthEventRepository(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewMemoryAuthEventRepository(5)

	for i := 0; i < 4; i++ {
		require.NoError(t, repo.Insert(ctx, event.New(event.TypeTokenRefreshed, "u-1", map[string]any{"n": i})))
	}
	require.NoError(t, repo.Insert(ctx, event.New(event.TypeSessionCreated, "u-2", nil)))

	t.Run("newest first per actor", func(t *testing.T) {
		got, err := repo.Recent(ctx, "u-1", 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		require.Equal(t, 3, got[0].Payload["n"])
		require.Equal(t, 2, got[1].Payload["n"])
	})

	t.Run("other actors are invisible", func(t *testing.T) {
		got, err := repo.Recent(ctx, "u-2", 0)
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, event.TypeSessionCreated, got[0].Type)
	})

	t.Run("capacity evicts oldest", func(t *testing.T) {
		overflow := NewMemoryAuthEventRepository(3)
		for i := 0; i < 5; i++ {
			require.NoError(t, overflow.Insert(ctx, event.New(event.TypeAuthExpired, "u-1", map[string]any{"n": fmt.Sprint(i)})))
		}

		got, err := overflow.Recent(ctx, "u-1", 10)
		require.NoError(t, err)
		require.Len(t, got, 3)
		require.Equal(t, "4", got[0].Payload["n"])
		require.Equal(t, "2", got[2].Payload["n"])
	})
}

func TestClampLimit(t *testing.T) {
	t.Parallel()

	require.Equal(t, defaultRecentLimit, clampLimit(0))
	require.Equal(t, defaultRecentLimit, clampLimit(-3))
	require.Equal(t, 7, clampLimit(7))
	require.Equal(t, maxRecentLimit, clampLimit(maxRecentLimit+1))
}
