package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bloomline-ai/promoflow/convengine/record"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("load missing session", func(t *testing.T) {
		s := NewMemory()
		_, err := s.Load(ctx, "sess_missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("save and load", func(t *testing.T) {
		s := NewMemory()
		rec := record.New("sess_a", "user_a", record.HandlerMarketing)
		rec.MergeFields(map[string]string{"business_type": "카페/음료"})
		require.NoError(t, s.Save(ctx, rec))

		got, err := s.Load(ctx, "sess_a")
		require.NoError(t, err)
		assert.Equal(t, rec.SessionID, got.SessionID)
		assert.Equal(t, "카페/음료", got.CollectedFields["business_type"])
	})

	t.Run("no aliasing with stored state", func(t *testing.T) {
		s := NewMemory()
		rec := record.New("sess_b", "user_b", record.HandlerContent)
		require.NoError(t, s.Save(ctx, rec))

		// Mutating the original after save must not leak into the store.
		rec.MergeFields(map[string]string{"channel": "유튜브"})
		got, err := s.Load(ctx, "sess_b")
		require.NoError(t, err)
		assert.False(t, got.HasField("channel"))

		// Mutating a loaded copy must not leak either.
		got.Terminate()
		again, err := s.Load(ctx, "sess_b")
		require.NoError(t, err)
		assert.False(t, again.ShouldTerminate)
	})

	t.Run("delete", func(t *testing.T) {
		s := NewMemory()
		rec := record.New("sess_c", "user_c", record.HandlerMarketing)
		require.NoError(t, s.Save(ctx, rec))
		require.NoError(t, s.Delete(ctx, "sess_c"))

		_, err := s.Load(ctx, "sess_c")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Zero(t, s.Len())
	})
}
