package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_Basics(t *testing.T) {
	r := NewRegistry()
	a := newConnection("a", nil)

	_, ok := r.Get("a")
	assert.False(t, ok)

	r.Put("a", a)
	got, ok := r.Get("a")
	assert.True(t, ok)
	assert.Same(t, a, got)
	assert.Equal(t, 1, r.Count())
	assert.Equal(t, []string{"a"}, r.IDs())

	r.Remove("a")
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_RemoveIf(t *testing.T) {
	r := NewRegistry()
	old := newConnection("a", nil)
	replacement := newConnection("a", nil)
	r.Put("a", replacement)

	assert.False(t, r.RemoveIf("a", old))
	assert.Equal(t, 1, r.Count())

	assert.True(t, r.RemoveIf("a", replacement))
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_ConcurrentSessions(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("s-%d", i)
			for j := 0; j < 100; j++ {
				r.Put(id, newConnection(id, nil))
				r.Get(id)
				if j%2 == 0 {
					r.Remove(id)
				}
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, r.Count())
}

func TestRegistry_LockSerializesPerID(t *testing.T) {
	r := NewRegistry()
	var (
		wg      sync.WaitGroup
		counter int
	)

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := r.Lock("a")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, counter)

	// independent ids do not contend
	unlockA := r.Lock("a")
	unlockB := r.Lock("b")
	unlockB()
	unlockA()
}
