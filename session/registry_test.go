package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/teddyvoice/types"
)

// =============================================================================
// 📋 注册表测试
// =============================================================================

func TestRegistry_CreateAssignsUniqueIDs(t *testing.T) {
	h := newHarness(t)
	ids := []string{"dup", "dup", "dup", "fresh"}
	var n int
	var mu sync.Mutex
	r := h.newRegistry(t, DefaultRegistryConfig(), WithIDGenerator(func() string {
		mu.Lock()
		defer mu.Unlock()
		id := ids[n%len(ids)]
		n++
		return id
	}))

	id1, c1, err := r.Create(ConnInfo{DeviceID: "a"})
	require.NoError(t, err)
	id2, c2, err := r.Create(ConnInfo{DeviceID: "b"})
	require.NoError(t, err)

	assert.Equal(t, "dup", id1)
	assert.Equal(t, "fresh", id2)
	assert.NotSame(t, c1, c2)

	got, ok := r.Get(id2)
	require.True(t, ok)
	assert.Same(t, c2, got)
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_ConcurrentCreateUnique(t *testing.T) {
	h := newHarness(t)
	r := h.newRegistry(t, RegistryConfig{})

	const n = 50
	var wg sync.WaitGroup
	ids := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, _, err := r.Create(ConnInfo{DeviceID: fmt.Sprintf("dev-%d", i)})
			if assert.NoError(t, err) {
				ids <- id
			}
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
	assert.Equal(t, n, r.Len())
}

func TestRegistry_SessionLimit(t *testing.T) {
	h := newHarness(t)
	r := h.newRegistry(t, RegistryConfig{MaxSessions: 2})

	_, _, err := r.Create(ConnInfo{})
	require.NoError(t, err)
	id, _, err := r.Create(ConnInfo{})
	require.NoError(t, err)

	_, _, err = r.Create(ConnInfo{})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrSessionLimit))
	assert.True(t, types.IsRetryable(err))

	require.True(t, r.Remove(id))
	_, _, err = r.Create(ConnInfo{})
	assert.NoError(t, err)

	stats := r.Stats()
	assert.Equal(t, 2, stats.Active)
	assert.Equal(t, uint64(3), stats.Created)
	assert.Equal(t, uint64(1), stats.Rejected)
	assert.Equal(t, uint64(1), stats.Closed)
}

func TestRegistry_CheckCapacity(t *testing.T) {
	h := newHarness(t)
	r := h.newRegistry(t, RegistryConfig{MaxSessions: 1})
	assert.NoError(t, r.CheckCapacity(context.Background()))

	id, _, err := r.Create(ConnInfo{})
	require.NoError(t, err)
	err = r.CheckCapacity(context.Background())
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrSessionLimit))
	assert.Contains(t, err.Error(), "1/1")

	require.True(t, r.Remove(id))
	assert.NoError(t, r.CheckCapacity(context.Background()))

	unlimited := h.newRegistry(t, RegistryConfig{})
	assert.NoError(t, unlimited.CheckCapacity(context.Background()))
}

func TestRegistry_ConcurrentRemoveClosesOnce(t *testing.T) {
	h := newHarness(t)
	var closes atomic.Int32
	r := h.newRegistry(t, DefaultRegistryConfig(), WithCloseHook(func(*Client) { closes.Add(1) }))

	id, c, err := r.Create(ConnInfo{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var removed atomic.Int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				if r.Remove(id) {
					removed.Add(1)
				}
				return
			}
			// 空闲清理与断开竞争
			if r.SweepIdle(time.Now().Add(time.Hour)) > 0 {
				removed.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), closes.Load())
	assert.Equal(t, int32(1), removed.Load())
	assert.False(t, r.Remove(id))
	<-c.Done()

	_, ok := r.Get(id)
	assert.False(t, ok)
}

func TestRegistry_SweepIdle(t *testing.T) {
	h := newHarness(t)
	r := h.newRegistry(t, RegistryConfig{IdleTimeout: time.Minute})

	staleID, stale, err := r.Create(ConnInfo{})
	require.NoError(t, err)
	freshID, _, err := r.Create(ConnInfo{})
	require.NoError(t, err)

	stale.lastActive.Store(time.Now().Add(-2 * time.Minute).UnixNano())

	assert.Equal(t, 1, r.SweepIdle(time.Now()))
	_, ok := r.Get(staleID)
	assert.False(t, ok)
	_, ok = r.Get(freshID)
	assert.True(t, ok)
	assert.Equal(t, uint64(1), r.Stats().IdleClosed)

	assert.Equal(t, 0, r.SweepIdle(time.Now()))
}

func TestRegistry_RunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	r := h.newRegistry(t, RegistryConfig{IdleTimeout: time.Millisecond, SweepInterval: 10 * time.Millisecond})

	_, _, err := r.Create(ConnInfo{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return r.Len() == 0 }, 3*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRegistry_TerminalSessionRemoved(t *testing.T) {
	h := newHarness(t)
	h.synth.MaxReconnectAttempts = 1
	h.dialer.WithDialErrors(errors.New("refused"), errors.New("refused"))
	var closed atomic.Int32
	r := h.newRegistry(t, DefaultRegistryConfig(), WithCloseHook(func(*Client) { closed.Add(1) }))

	id, c, err := r.Create(ConnInfo{})
	require.NoError(t, err)
	require.NoError(t, c.OnText("hello"))

	ev := nextEvent(t, c, EventTerminated)
	assert.Equal(t, string(types.ErrReconnectExhausted), ev.Reason)

	require.Eventually(t, func() bool { return closed.Load() == 1 }, 3*time.Second, 5*time.Millisecond)
	_, ok := r.Get(id)
	assert.False(t, ok)
}

func TestRegistry_ListSortedByCreation(t *testing.T) {
	h := newHarness(t)
	r := h.newRegistry(t, DefaultRegistryConfig())

	first, _, err := r.Create(ConnInfo{DeviceID: "first"})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, _, err := r.Create(ConnInfo{DeviceID: "second"})
	require.NoError(t, err)

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, first, list[0].ID)
	assert.Equal(t, second, list[1].ID)
	assert.Equal(t, "first", list[0].DeviceID)
}

func TestRegistry_CloseAll(t *testing.T) {
	h := newHarness(t)
	var closes atomic.Int32
	r := h.newRegistry(t, DefaultRegistryConfig(), WithCloseHook(func(*Client) { closes.Add(1) }))

	for i := 0; i < 5; i++ {
		_, _, err := r.Create(ConnInfo{})
		require.NoError(t, err)
	}
	r.CloseAll()

	assert.Equal(t, 0, r.Len())
	assert.Equal(t, int32(5), closes.Load())
	assert.Equal(t, uint64(5), r.Stats().Closed)
}
