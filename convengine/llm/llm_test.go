package llm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTimeout(t *testing.T) {
	t.Run("passes through fast calls", func(t *testing.T) {
		g := WithTimeout(GeneratorFunc(func(ctx context.Context, sys, usr string) (string, error) {
			return "ok", nil
		}), time.Second)

		out, err := g.Generate(context.Background(), "sys", "usr")
		require.NoError(t, err)
		assert.Equal(t, "ok", out)
	})

	t.Run("maps deadline overrun to ErrTimeout", func(t *testing.T) {
		g := WithTimeout(GeneratorFunc(func(ctx context.Context, sys, usr string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}), 10*time.Millisecond)

		_, err := g.Generate(context.Background(), "sys", "usr")
		assert.ErrorIs(t, err, ErrTimeout)
	})

	t.Run("preserves other errors", func(t *testing.T) {
		boom := errors.New("boom")
		g := WithTimeout(GeneratorFunc(func(ctx context.Context, sys, usr string) (string, error) {
			return "", boom
		}), time.Second)

		_, err := g.Generate(context.Background(), "sys", "usr")
		assert.ErrorIs(t, err, boom)
	})
}

func TestDenied(t *testing.T) {
	g := Denied(ErrRateLimited)
	_, err := g.Generate(context.Background(), "sys", "usr")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestCached(t *testing.T) {
	t.Run("identical prompts hit the cache", func(t *testing.T) {
		var calls atomic.Int64
		c := NewCached(GeneratorFunc(func(ctx context.Context, sys, usr string) (string, error) {
			calls.Add(1)
			return "answer", nil
		}), 8, time.Minute)

		for i := 0; i < 3; i++ {
			out, err := c.Generate(context.Background(), "classify", "김밥천국 신메뉴")
			require.NoError(t, err)
			assert.Equal(t, "answer", out)
		}
		assert.Equal(t, int64(1), calls.Load())
	})

	t.Run("different content misses", func(t *testing.T) {
		var calls atomic.Int64
		c := NewCached(GeneratorFunc(func(ctx context.Context, sys, usr string) (string, error) {
			calls.Add(1)
			return usr, nil
		}), 8, time.Minute)

		_, err := c.Generate(context.Background(), "sys", "first")
		require.NoError(t, err)
		_, err = c.Generate(context.Background(), "sys", "second")
		require.NoError(t, err)
		assert.Equal(t, int64(2), calls.Load())
	})

	t.Run("errors are not cached", func(t *testing.T) {
		var calls atomic.Int64
		c := NewCached(GeneratorFunc(func(ctx context.Context, sys, usr string) (string, error) {
			if calls.Add(1) == 1 {
				return "", errors.New("transient")
			}
			return "recovered", nil
		}), 8, time.Minute)

		_, err := c.Generate(context.Background(), "sys", "usr")
		require.Error(t, err)

		out, err := c.Generate(context.Background(), "sys", "usr")
		require.NoError(t, err)
		assert.Equal(t, "recovered", out)
		assert.Equal(t, int64(2), calls.Load())
	})

	t.Run("bounded size", func(t *testing.T) {
		c := NewCached(GeneratorFunc(func(ctx context.Context, sys, usr string) (string, error) {
			return "v", nil
		}), 4, time.Minute)

		for _, usr := range []string{"a", "b", "c", "d", "e", "f"} {
			_, err := c.Generate(context.Background(), "sys", usr)
			require.NoError(t, err)
		}
		assert.LessOrEqual(t, c.Len(), 4)
	})
}
