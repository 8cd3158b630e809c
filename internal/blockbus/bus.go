// Package blockbus fans new Arbitrum block heights out to every hunter
// goroutine. Go has no native broadcast channel, so the Bus keeps one
// buffered channel per subscriber (same non-blocking-send-or-drop shape
// as events.EventBus in the OCX backend) and polls a single upstream
// height source instead of the source's ZeroMQ PUB/SUB socket.
package blockbus

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// pollInterval mirrors block_emitter.py's POLL_INTERVAL.
	pollInterval = 500 * time.Millisecond
	// failureBackoff is the fixed cooldown after a height-fetch failure.
	failureBackoff = 2 * time.Second
	subscriberBuffer = 8
)

// HeightFetcher returns the current chain head height. Implementations
// are expected to route through an RPC router so Transient errors are
// already retried/rotated before the Bus ever sees a failure.
type HeightFetcher func(ctx context.Context) (uint64, error)

// Bus polls fetch for new block heights and delivers each height at
// most once, in strictly increasing order, to every subscriber.
type Bus struct {
	mu          sync.Mutex
	fetch       HeightFetcher
	subscribers map[chan uint64]struct{}
	lastHeight  uint64
	seeded      bool
}

// New builds a Bus around fetch. The Bus does not start polling until
// Run is called.
func New(fetch HeightFetcher) *Bus {
	return &Bus{
		fetch:       fetch,
		subscribers: make(map[chan uint64]struct{}),
	}
}

// Subscribe returns a buffered channel of block heights. Callers must
// call Unsubscribe when done to avoid leaking the channel slot.
func (b *Bus) Subscribe() chan uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan uint64, subscriberBuffer)
	b.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes ch from the fan-out set and closes it.
func (b *Bus) Unsubscribe(ch chan uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
}

// Run polls fetch until ctx is cancelled, publishing each strictly
// increasing height to all current subscribers. A fetch error pauses
// for failureBackoff before retrying; it never terminates the loop.
func (b *Bus) Run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			height, err := b.fetch(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("blockbus: height fetch failed, backing off")
				select {
				case <-ctx.Done():
					return
				case <-time.After(failureBackoff):
				}
				continue
			}
			b.publish(height)
		}
	}
}

func (b *Bus) publish(height uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.seeded && height <= b.lastHeight {
		return
	}
	b.seeded = true
	b.lastHeight = height

	for ch := range b.subscribers {
		select {
		case ch <- height:
		default:
			log.Warn().Uint64("height", height).Msg("blockbus: subscriber slow, dropping tick")
		}
	}
}

// LastHeight reports the most recently published height, or 0 before
// the first successful fetch.
func (b *Bus) LastHeight() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastHeight
}
