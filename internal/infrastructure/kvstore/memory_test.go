package kvstore

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, found, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, m.Set(ctx, "k", "v1"))
	require.NoError(t, m.Set(ctx, "k", "v2"))
	v, found, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v2", v)

	require.NoError(t, m.Set(ctx, "empty", ""))
	_, found, _ = m.Get(ctx, "empty")
	assert.True(t, found, "empty values are still present")

	require.NoError(t, m.Delete(ctx, "k"))
	require.NoError(t, m.Delete(ctx, "never-set"))
	_, found, _ = m.Get(ctx, "k")
	assert.False(t, found)
	assert.Equal(t, 1, m.Len())
}

func TestMemory_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := NewMemory()

	assert.ErrorIs(t, m.Set(ctx, "k", "v"), context.Canceled)
	_, _, err := m.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, m.Delete(ctx, "k"), context.Canceled)
}

func TestMemory_Concurrent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%4)
			_ = m.Set(ctx, key, "v")
			_, _, _ = m.Get(ctx, key)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 4, m.Len())
}
