package rpcrouter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantablack-labs/arbengine"
)

func fakeProber(latencies map[string]time.Duration, fail map[string]bool) Prober {
	return func(_ context.Context, url string) (time.Duration, error) {
		if fail[url] {
			return 0, errors.New("probe failed")
		}
		return latencies[url], nil
	}
}

func TestHandle_CriticalAlwaysPremium(t *testing.T) {
	r := New("premium.example", []string{"f1", "f2"}, fakeProber(nil, nil))
	ep, err := r.Handle(true)
	require.NoError(t, err)
	assert.Equal(t, "premium.example", ep.URL)
}

func TestHandle_PrefersLowestLatencyFree(t *testing.T) {
	r := New("premium.example", []string{"f1", "f2"}, fakeProber(nil, nil))
	r.free[0].Latency = 200 * time.Millisecond
	r.free[1].Latency = 50 * time.Millisecond
	r.unblacklistTestHook()

	ep, err := r.Handle(false)
	require.NoError(t, err)
	assert.Equal(t, "f2", ep.URL)
}

// unblacklistTestHook exposes the private re-sort for test setup without
// mutating blacklist state.
func (r *Router) unblacklistTestHook() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unblacklistExpired()
}

func TestBackoffCorrectness_ThreeStrikesBlacklists(t *testing.T) {
	r := New("", []string{"f1"}, fakeProber(nil, nil))
	fixed := time.Unix(1_700_000_000, 0)
	r.SetClock(func() time.Time { return fixed }, func(time.Duration) {})

	ep := r.free[0]
	r.OnRateLimited(ep)
	r.OnRateLimited(ep)
	assert.False(t, ep.Blacklisted, "should not blacklist before 3rd strike")

	r.OnRateLimited(ep)
	assert.True(t, ep.Blacklisted)
	assert.True(t, ep.BlacklistUntil.Equal(fixed.Add(freeBlacklistDuration)))
}

func TestBlacklistedFreeEndpointNotReturned(t *testing.T) {
	r := New("premium.example", []string{"f1"}, fakeProber(nil, nil))
	fixed := time.Unix(1_700_000_000, 0)
	r.SetClock(func() time.Time { return fixed }, func(time.Duration) {})

	ep := r.free[0]
	r.OnRateLimited(ep)
	r.OnRateLimited(ep)
	r.OnRateLimited(ep)
	require.True(t, ep.Blacklisted)

	got, err := r.Handle(false)
	require.NoError(t, err)
	assert.Equal(t, "premium.example", got.URL, "degrades to premium when all free blacklisted")
}

func TestAllFreeBlacklisted_NoPremium_ReturnsError(t *testing.T) {
	r := New("", []string{"f1"}, fakeProber(nil, nil))
	fixed := time.Unix(1_700_000_000, 0)
	r.SetClock(func() time.Time { return fixed }, func(time.Duration) {})
	ep := r.free[0]
	r.OnRateLimited(ep)
	r.OnRateLimited(ep)
	r.OnRateLimited(ep)

	_, err := r.Handle(false)
	assert.ErrorIs(t, err, ErrAllFreeBlacklisted)
}

func TestBlacklistExpiryResetsStrikesAndLatency(t *testing.T) {
	r := New("", []string{"f1"}, fakeProber(nil, nil))
	start := time.Unix(1_700_000_000, 0)
	cur := start
	r.SetClock(func() time.Time { return cur }, func(time.Duration) {})

	ep := r.free[0]
	ep.Latency = 10 * time.Millisecond
	r.OnRateLimited(ep)
	r.OnRateLimited(ep)
	r.OnRateLimited(ep)
	require.True(t, ep.Blacklisted)

	cur = start.Add(freeBlacklistDuration + time.Second)
	got, err := r.Handle(false)
	require.NoError(t, err)
	assert.Equal(t, "f1", got.URL)
	assert.False(t, ep.Blacklisted)
	assert.Equal(t, 0, ep.Strikes)
}

func TestRankOnce_TimeoutSetsInfiniteLatency(t *testing.T) {
	r := New("", []string{"f1", "f2"}, fakeProber(
		map[string]time.Duration{"f2": 30 * time.Millisecond},
		map[string]bool{"f1": true},
	))
	r.rankOnce(context.Background())

	snap := r.Snapshot()
	byURL := map[string]time.Duration{}
	for _, e := range snap {
		byURL[e.URL] = e.Latency
	}
	assert.Equal(t, arbengine.InfiniteLatency, byURL["f1"])
	assert.Equal(t, 30*time.Millisecond, byURL["f2"])
}
