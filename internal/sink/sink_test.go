package sink

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantablack-labs/arbengine"
)

type recordingSink struct {
	mu     sync.Mutex
	events []arbengine.Event
}

func (r *recordingSink) Record(evt arbengine.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestFanout_DispatchesToEverySink(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	fanout := NewFanout(a, b)

	ch := make(chan arbengine.Event, 1)
	ctx, cancel := context.WithCancel(context.Background())
	go fanout.Drain(ctx, ch)

	ch <- arbengine.Event{Kind: arbengine.EventSpread}
	require.Eventually(t, func() bool { return a.count() == 1 && b.count() == 1 }, time.Second, time.Millisecond)
	cancel()
}

func TestFanout_PanickingSinkDoesNotBlockOthers(t *testing.T) {
	panicky := panicSink{}
	normal := &recordingSink{}
	fanout := NewFanout(panicky, normal)

	ch := make(chan arbengine.Event, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fanout.Drain(ctx, ch)

	ch <- arbengine.Event{Kind: arbengine.EventError}
	require.Eventually(t, func() bool { return normal.count() == 1 }, time.Second, time.Millisecond)
}

type panicSink struct{}

func (panicSink) Record(arbengine.Event) { panic("boom") }

func TestWebhookSink_ErrorCooldownSuppressesDuplicates(t *testing.T) {
	var hits int
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	w := NewWebhookSink("", "", server.URL)
	msg := "same error message"

	w.Record(arbengine.Event{Kind: arbengine.EventError, Message: msg})
	w.Record(arbengine.Event{Kind: arbengine.EventError, Message: msg})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return hits == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, 1, hits)
	mu.Unlock()
}

func TestWebhookSink_DisabledChannelsAreNoOps(t *testing.T) {
	w := NewWebhookSink("", "", "")
	w.Record(arbengine.Event{Kind: arbengine.EventExecution, Message: "ok"})
	// no panic, no network call attempted — success is the absence of a crash
}

func TestMetricsSink_RecordDoesNotPanic(t *testing.T) {
	m := NewMetricsSink()
	m.Record(arbengine.Event{Kind: arbengine.EventExecution, GrossUSD: 10, NetUSD: 8, Height: 100})
	m.Record(arbengine.Event{Kind: arbengine.EventSpread, GrossUSD: 5})
	require.NotNil(t, m.Handler())
}

func TestLogSink_RecordDoesNotPanic(t *testing.T) {
	l := NewLogSink()
	l.Record(arbengine.Event{Kind: arbengine.EventError, Message: "boom"})
}
