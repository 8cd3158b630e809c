package sentinel

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantablack-labs/arbengine"
)

func newTestSentinel(t *testing.T, fetch PriceFetcher, sink chan arbengine.Event) *Sentinel {
	t.Helper()
	dir := t.TempDir()
	var opts []Option
	if sink != nil {
		opts = append(opts, WithSink(sink))
	}
	s := New("ETHUSDT", 0.08, time.Minute, 20*time.Minute,
		filepath.Join(dir, ".system_state"), filepath.Join(dir, ".price_cache.txt"),
		fetch, opts...)
	return s
}

func TestShouldScan_FirstCallAlwaysTrue(t *testing.T) {
	s := newTestSentinel(t, func(context.Context) (float64, error) { return 3000, nil }, nil)
	assert.True(t, s.ShouldScan(context.Background()))
}

func TestShouldScan_HeartbeatForcesRescan(t *testing.T) {
	calls := 0
	s := newTestSentinel(t, func(context.Context) (float64, error) {
		calls++
		return 3000, nil
	}, nil)
	cur := time.Unix(1_700_000_000, 0)
	s.SetClock(func() time.Time { return cur })

	require.True(t, s.ShouldScan(context.Background()))
	s.UpdateLastPrice()

	cur = cur.Add(30 * time.Second)
	assert.False(t, s.ShouldScan(context.Background()), "price unchanged, heartbeat not elapsed")

	cur = cur.Add(time.Minute)
	assert.True(t, s.ShouldScan(context.Background()), "heartbeat elapsed")
}

func TestShouldScan_VolatilitySpikeTriggersWar(t *testing.T) {
	price := 3000.0
	events := make(chan arbengine.Event, 4)
	s := newTestSentinel(t, func(context.Context) (float64, error) { return price, nil }, events)
	cur := time.Unix(1_700_000_000, 0)
	s.SetClock(func() time.Time { return cur })

	require.True(t, s.ShouldScan(context.Background()))
	s.UpdateLastPrice()
	assert.Equal(t, arbengine.StatePeace, s.State())

	cur = cur.Add(2 * time.Second)
	price = 3300 // +10%, above 0.08% threshold
	assert.True(t, s.ShouldScan(context.Background()))
	assert.Equal(t, arbengine.StateWar, s.State())

	select {
	case evt := <-events:
		assert.Equal(t, arbengine.EventStateChange, evt.Kind)
		assert.Equal(t, "WAR", evt.Message)
	default:
		t.Fatal("expected state-change event on sink")
	}
}

func TestShouldScan_CooldownReturnsToPeace(t *testing.T) {
	price := 3000.0
	s := newTestSentinel(t, func(context.Context) (float64, error) { return price, nil }, nil)
	cur := time.Unix(1_700_000_000, 0)
	s.SetClock(func() time.Time { return cur })

	require.True(t, s.ShouldScan(context.Background()))
	s.UpdateLastPrice()

	cur = cur.Add(2 * time.Second)
	price = 3300
	require.True(t, s.ShouldScan(context.Background()))
	require.Equal(t, arbengine.StateWar, s.State())
	s.UpdateLastPrice()

	// Stay quiet (price unchanged) until heartbeat forces a fetch after cooldown.
	cur = cur.Add(time.Minute + 21*time.Minute)
	assert.True(t, s.ShouldScan(context.Background()))
	assert.Equal(t, arbengine.StatePeace, s.State())
}

func TestShouldScan_FetchFailureFailsOpen(t *testing.T) {
	s := newTestSentinel(t, func(context.Context) (float64, error) {
		return 0, assertErr
	}, nil)
	cur := time.Unix(1_700_000_000, 0)
	s.SetClock(func() time.Time { return cur })

	require.True(t, s.ShouldScan(context.Background()))
	s.UpdateLastPrice()

	cur = cur.Add(5 * time.Second)
	assert.True(t, s.ShouldScan(context.Background()), "fetch error must fail open")
}

func TestCachedFetch_ReusesFreshDiskCache(t *testing.T) {
	calls := 0
	s := newTestSentinel(t, func(context.Context) (float64, error) {
		calls++
		return 3000, nil
	}, nil)
	cur := time.Unix(1_700_000_000, 0)
	s.SetClock(func() time.Time { return cur })

	p1, err := s.cachedFetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3000.0, p1)
	require.Equal(t, 1, calls)

	cur = cur.Add(2 * time.Second)
	p2, err := s.cachedFetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3000.0, p2)
	assert.Equal(t, 1, calls, "second fetch within TTL should hit the disk cache")

	_, err = os.Stat(s.cacheFile)
	require.NoError(t, err)
}

var assertErr = &fetchError{}

type fetchError struct{}

func (*fetchError) Error() string { return "upstream unavailable" }
