// ABOUTME: Tests for the idempotency claim set guarding at-most-once work execution.
// ABOUTME: Validates claim/release semantics, TTL expiry, eviction, and concurrency safety.

package claim

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSet_Claim_New(t *testing.T) {
	s := New(5*time.Minute, 100)
	defer s.Close()

	assert.True(t, s.Claim("conv-1"), "first claim should succeed")
	assert.True(t, s.Has("conv-1"))
}

func TestSet_Claim_AlreadyHeld(t *testing.T) {
	s := New(5*time.Minute, 100)
	defer s.Close()

	assert.True(t, s.Claim("conv-1"))
	assert.False(t, s.Claim("conv-1"), "second claim on held key should fail")
}

func TestSet_Release_AllowsRetry(t *testing.T) {
	s := New(5*time.Minute, 100)
	defer s.Close()

	assert.True(t, s.Claim("conv-1"))
	s.Release("conv-1")

	assert.False(t, s.Has("conv-1"))
	assert.True(t, s.Claim("conv-1"), "claim should succeed again after release")
}

func TestSet_Release_UnknownKey(t *testing.T) {
	s := New(5*time.Minute, 100)
	defer s.Close()

	// Releasing a key that was never claimed must not panic.
	s.Release("never-claimed")
	assert.False(t, s.Has("never-claimed"))
}

func TestSet_Claim_Expired(t *testing.T) {
	s := New(10*time.Millisecond, 100)
	defer s.Close()

	assert.True(t, s.Claim("conv-1"))
	assert.False(t, s.Claim("conv-1"))

	time.Sleep(20 * time.Millisecond)

	assert.False(t, s.Has("conv-1"), "claim should expire after TTL")
	assert.True(t, s.Claim("conv-1"), "expired claim can be re-taken")
}

func TestSet_Eviction(t *testing.T) {
	s := New(5*time.Minute, 3)
	defer s.Close()

	s.Claim("a")
	s.Claim("b")
	s.Claim("c")
	s.Claim("d") // evicts "a", the oldest

	assert.False(t, s.Has("a"), "oldest claim should be evicted at capacity")
	assert.True(t, s.Has("b"))
	assert.True(t, s.Has("c"))
	assert.True(t, s.Has("d"))
}

func TestSet_RunCleanup(t *testing.T) {
	s := New(10*time.Millisecond, 100)
	defer s.Close()

	s.Claim("x")
	s.Claim("y")

	time.Sleep(20 * time.Millisecond)
	s.runCleanup()

	s.mu.Lock()
	held := len(s.held)
	s.mu.Unlock()
	assert.Equal(t, 0, held, "cleanup should remove expired claims from the map")
}

func TestSet_Claim_Atomic(t *testing.T) {
	s := New(5*time.Minute, 100)
	defer s.Close()

	const numGoroutines = 100

	var mu sync.Mutex
	winners := 0
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			if s.Claim("contested") {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners, "exactly one goroutine should win the claim")
}

func TestSet_Close(t *testing.T) {
	s := New(5*time.Minute, 100)

	s.Claim("before-close")
	assert.True(t, s.Has("before-close"))

	s.Close()
	s.Close() // multiple closes must not panic
}
