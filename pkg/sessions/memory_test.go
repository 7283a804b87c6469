package sessions

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_Lifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	active, err := m.Active(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, active)

	ok, err := m.Begin(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.Begin(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok, "second login must be rejected")

	active, _ = m.Active(ctx, "alice")
	assert.True(t, active)

	ok, err = m.End(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.End(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_Reset(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_, _ = m.Begin(ctx, "alice")
	_, _ = m.Begin(ctx, "bob")

	require.NoError(t, m.Reset(ctx))

	for _, u := range []string{"alice", "bob"} {
		active, _ := m.Active(ctx, u)
		assert.False(t, active, u)
	}
}

func TestMemory_ConcurrentBegin(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := m.Begin(ctx, "alice"); ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}
