package conversation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreGetSetClear(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore(time.Hour)

	_, err := st.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrNoState)

	require.NoError(t, st.Set(ctx, 1, State{Flow: FlowSubmission, Step: AwaitingText, ProductCode: "p1"}))
	got, err := st.Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, got.In(FlowSubmission, AwaitingText))
	assert.Equal(t, "p1", got.ProductCode)
	assert.False(t, got.UpdatedAt.IsZero())

	require.NoError(t, st.Clear(ctx, 1))
	_, err = st.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrNoState)
}

func TestMemoryStoreExpiresIdleStates(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	st := NewMemoryStore(24 * time.Hour)
	st.now = func() time.Time { return now }

	require.NoError(t, st.Set(ctx, 1, State{Flow: FlowBroadcast, Step: Composing}))
	require.NoError(t, st.Set(ctx, 2, State{Flow: FlowSubmission, Step: AwaitingRating}))

	now = now.Add(23 * time.Hour)
	require.NoError(t, st.Set(ctx, 2, State{Flow: FlowSubmission, Step: AwaitingPhotoOrSkip}))

	now = now.Add(2 * time.Hour)
	_, err := st.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrNoState)

	got, err := st.Get(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, AwaitingPhotoOrSkip, got.Step)
}

func TestMemoryStoreSweep(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	st := NewMemoryStore(time.Minute)
	st.now = func() time.Time { return now }

	for id := int64(1); id <= 3; id++ {
		require.NoError(t, st.Set(ctx, id, State{Flow: FlowSubmission, Step: AwaitingProduct}))
	}
	now = now.Add(2 * time.Minute)
	require.NoError(t, st.Set(ctx, 4, State{Flow: FlowSubmission, Step: AwaitingProduct}))

	assert.Equal(t, 3, st.Sweep())
	assert.Equal(t, 1, st.Len())
}

func TestLookup(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore(0)

	_, ok, err := Lookup(ctx, st, 5)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, st.Set(ctx, 5, State{Flow: FlowTemplate, Step: AwaitingTemplateName}))
	s, ok, err := Lookup(ctx, st, 5)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, FlowTemplate, s.Flow)
}

func TestLockerSerialisesPerChat(t *testing.T) {
	l := NewLocker()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		running int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock(7)
			defer unlock()

			mu.Lock()
			running++
			if running > maxSeen {
				maxSeen = running
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			running--
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestLockerIndependentChats(t *testing.T) {
	l := NewLocker()
	unlockA := l.Lock(1)
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := l.Lock(2)
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on chat 2 blocked behind chat 1")
	}
}
