package blockbus

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublish_StrictlyIncreasingAtMostOncePerHeight(t *testing.T) {
	b := New(nil)
	sub := b.Subscribe()

	b.publish(100)
	b.publish(100) // duplicate, dropped
	b.publish(99)  // stale, dropped
	b.publish(101)

	close(sub) // safe: no further publish will touch this channel directly
	var got []uint64
	for h := range sub {
		got = append(got, h)
	}
	assert.Equal(t, []uint64{100, 101}, got)
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	b := New(nil)
	sub := b.Subscribe()
	b.Unsubscribe(sub)

	b.publish(5)
	_, open := <-sub
	assert.False(t, open)
}

func TestRun_BackoffOnFetchError(t *testing.T) {
	var calls int32
	fetch := func(_ context.Context) (uint64, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			return 0, errors.New("rpc down")
		}
		return 42, nil
	}
	b := New(fetch)
	sub := b.Subscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go b.Run(ctx)

	select {
	case h := <-sub:
		assert.Equal(t, uint64(42), h)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for height after backoff")
	}
	require.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(2))
}
