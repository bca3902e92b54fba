package correlation

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratuswatch/detect-engine/internal/models"
)

func seqEvent(eventType string, at time.Time) *models.NormalizedEvent {
	return &models.NormalizedEvent{
		EventID:    fmt.Sprintf("%s-%d", eventType, at.UnixNano()),
		TenantID:   "tenant-a",
		EventType:  eventType,
		AssetID:    "asset-1",
		IdentityID: "user-1",
		OccurredAt: at,
		Attributes: map[string]interface{}{},
	}
}

func TestMatchStateStoreObserve(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	sequence := []string{"auth.login.failure", "auth.login.success"}
	window := 10 * time.Minute

	t.Run("matches ordered sequence within window", func(t *testing.T) {
		store := NewMatchStateStore(64)
		failure := seqEvent("auth.login.failure", base)
		require.Nil(t, store.Observe("k", failure, sequence, window))

		success := seqEvent("auth.login.success", base.Add(2*time.Minute))
		matched := store.Observe("k", success, sequence, window)
		require.Len(t, matched, 2)
		assert.Equal(t, failure, matched[0])
		assert.Equal(t, success, matched[1])
	})

	t.Run("no match when completion arrives outside window", func(t *testing.T) {
		store := NewMatchStateStore(64)
		store.Observe("k", seqEvent("auth.login.failure", base), sequence, window)

		late := seqEvent("auth.login.success", base.Add(700*time.Second))
		assert.Nil(t, store.Observe("k", late, sequence, window))
	})

	t.Run("consumed events do not fire twice", func(t *testing.T) {
		store := NewMatchStateStore(64)
		store.Observe("k", seqEvent("auth.login.failure", base), sequence, window)
		store.Observe("k", seqEvent("auth.login.failure", base.Add(time.Minute)), sequence, window)

		first := store.Observe("k", seqEvent("auth.login.success", base.Add(2*time.Minute)), sequence, window)
		require.Len(t, first, 2)

		// One failure remains unconsumed; a second success completes a new
		// sequence with it rather than reusing the consumed events.
		second := store.Observe("k", seqEvent("auth.login.success", base.Add(3*time.Minute)), sequence, window)
		require.Len(t, second, 2)
		assert.Equal(t, base.Add(time.Minute), second[0].OccurredAt)

		third := store.Observe("k", seqEvent("auth.login.success", base.Add(4*time.Minute)), sequence, window)
		assert.Nil(t, third, "no failure left to pair with")
	})

	t.Run("out of order arrival still matches by occurred_at", func(t *testing.T) {
		store := NewMatchStateStore(64)
		// Success arrives first but occurred after the failure.
		success := seqEvent("auth.login.success", base.Add(2*time.Minute))
		require.Nil(t, store.Observe("k", success, sequence, window))

		failure := seqEvent("auth.login.failure", base)
		matched := store.Observe("k", failure, sequence, window)
		require.Len(t, matched, 2)
		assert.Equal(t, failure, matched[0])
		assert.Equal(t, success, matched[1])
	})

	t.Run("keys are isolated", func(t *testing.T) {
		store := NewMatchStateStore(64)
		store.Observe("k1", seqEvent("auth.login.failure", base), sequence, window)
		matched := store.Observe("k2", seqEvent("auth.login.success", base.Add(time.Minute)), sequence, window)
		assert.Nil(t, matched)
	})

	t.Run("capacity drops oldest", func(t *testing.T) {
		store := NewMatchStateStore(2)
		store.Observe("k", seqEvent("auth.login.failure", base), sequence, window)
		store.Observe("k", seqEvent("auth.login.other", base.Add(time.Second)), sequence, window)
		store.Observe("k", seqEvent("auth.login.other", base.Add(2*time.Second)), sequence, window)

		// The failure was evicted by capacity, so the success cannot match.
		matched := store.Observe("k", seqEvent("auth.login.success", base.Add(3*time.Second)), sequence, window)
		assert.Nil(t, matched)
	})
}

func TestMatchStateStoreSweep(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	sequence := []string{"auth.login.failure", "auth.login.success"}
	store := NewMatchStateStore(64)

	store.Observe("stale", seqEvent("auth.login.failure", base), sequence, time.Hour)
	store.Observe("fresh", seqEvent("auth.login.failure", base.Add(50*time.Minute)), sequence, time.Hour)
	require.Equal(t, 2, store.ActiveBuffers())

	removed := store.Sweep(base.Add(time.Hour), 30*time.Minute)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, store.ActiveBuffers())
}

func TestMatchStateStoreConcurrentObserve(t *testing.T) {
	store := NewMatchStateStore(256)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	sequence := []string{"auth.login.failure", "auth.login.success"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("key-%d", n)
			for j := 0; j < 100; j++ {
				store.Observe(key, seqEvent("auth.login.failure", base.Add(time.Duration(j)*time.Second)), sequence, time.Hour)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 8, store.ActiveBuffers())
}
