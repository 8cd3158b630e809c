// Package sink fans a single stream of arbengine.Event out to every
// consumer this engine reports to: structured logs, Prometheus
// metrics, a durable store, and best-effort chat alerts. Producers only
// send on a channel; Drain reads off that one channel in its own
// goroutine and hands each event to every sink in turn, so a slow sink
// delays the sinks after it but not the hunter/executor goroutine that
// produced the event (until the channel's buffer fills).
package sink

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/vantablack-labs/arbengine"
)

// Sink consumes one event. Implementations must not block for long —
// Drain calls every sink sequentially per event, so a slow sink (e.g.
// a webhook POST) delays the others; wrap slow sinks in their own
// goroutine internally if needed (WebhookSink does exactly this).
type Sink interface {
	Record(evt arbengine.Event)
}

// Fanout drains a single event channel to every registered Sink.
type Fanout struct {
	mu    sync.RWMutex
	sinks []Sink
}

// NewFanout builds a Fanout over the given sinks.
func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks}
}

// Add registers an additional sink at runtime.
func (f *Fanout) Add(s Sink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, s)
}

// Drain reads events off ch until it closes or ctx is cancelled,
// dispatching each to every registered sink.
func (f *Fanout) Drain(ctx context.Context, ch <-chan arbengine.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			f.dispatch(evt)
		}
	}
}

func (f *Fanout) dispatch(evt arbengine.Event) {
	f.mu.RLock()
	sinks := f.sinks
	f.mu.RUnlock()

	for _, s := range sinks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Msg("sink: recovered panic in sink.Record")
				}
			}()
			s.Record(evt)
		}()
	}
}
