package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAssignsSequentialIDs(t *testing.T) {
	r := New()

	assert.Equal(t, "handle_1", r.Register("a"))
	assert.Equal(t, "handle_2", r.Register("b"))
	assert.Equal(t, "handle_3", r.Register("c"))
	assert.Equal(t, 3, r.Size())
}

func TestGet(t *testing.T) {
	r := New()
	id := r.Register(42)

	v, ok := r.Get(id)
	require.True(t, ok)
	assert.Equal(t, 42, v)

	_, ok = r.Get("handle_99")
	assert.False(t, ok)
}

func TestDeleteDoesNotResetCounter(t *testing.T) {
	r := New()
	first := r.Register("a")

	assert.True(t, r.Delete(first))
	assert.False(t, r.Delete(first), "second delete is a no-op")
	assert.False(t, r.Has(first))

	assert.Equal(t, "handle_2", r.Register("b"))
}

func TestClearDoesNotResetCounter(t *testing.T) {
	r := New()
	r.Register("a")
	r.Register("b")

	r.Clear()
	assert.Equal(t, 0, r.Size())

	// Ids issued after a clear never alias ids issued before it.
	assert.Equal(t, "handle_3", r.Register("c"))
}

func TestIsHandleID(t *testing.T) {
	assert.True(t, IsHandleID("handle_1"))
	assert.True(t, IsHandleID("handle_120"))
	assert.False(t, IsHandleID("handle_"))
	assert.False(t, IsHandleID("page"))
	assert.False(t, IsHandleID("handle_1x"))
	assert.False(t, IsHandleID("xhandle_1"))
}

func TestConcurrentRegister(t *testing.T) {
	r := New()

	var wg sync.WaitGroup
	ids := make([]string, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = r.Register(i)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 100, r.Size())
	seen := make(map[string]bool)
	for _, id := range ids {
		require.False(t, seen[id], fmt.Sprintf("duplicate id %s", id))
		seen[id] = true
	}
}
