// Package sentinel gates expensive scan cycles behind observed market
// volatility: the internal/arb hunters only run a pass when the
// sentinel's ShouldScan reports true, while the internal/liquidation
// sniper and scout passes run on every block. This is the Go
// analogue of market_sentinel.py's MarketSentinel, with one deliberate
// boundary change: the sentinel never shells out to a process
// supervisor on a state transition, it only emits a state-change event
// to whatever sinks are wired up (see SPEC_FULL.md's WAR/PEACE note).
package sentinel

import (
	"context"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vantablack-labs/arbengine"
)

const (
	defaultCacheTTL = 5 * time.Second
	failRetryGate   = 10 * time.Second
)

// PriceFetcher performs the raw, uncached price lookup (Binance ticker
// in production, a stub in tests).
type PriceFetcher func(ctx context.Context) (float64, error)

// Sentinel decides when a block-height tick is worth a full scan pass.
type Sentinel struct {
	mu sync.Mutex

	symbol            string
	thresholdPct      float64
	heartbeat         time.Duration
	volatilityCooldown time.Duration
	stateFile         string
	cacheFile         string
	cacheTTL          time.Duration

	fetch PriceFetcher
	sink  chan<- arbengine.Event

	now func() time.Time

	lastPrice          float64
	currentPrice       float64
	lastScanTime       time.Time
	lastFailTime       time.Time
	isHighVolatility   bool
	volatilityTime     time.Time
	currentState       arbengine.SystemState
}

// Option configures a Sentinel at construction time.
type Option func(*Sentinel)

// WithSink attaches the channel state-change events are published on.
// Publishing is non-blocking; a full channel drops the event with a
// warning rather than stalling the caller.
func WithSink(sink chan<- arbengine.Event) Option {
	return func(s *Sentinel) { s.sink = sink }
}

// WithCacheTTL overrides the on-disk price-cache freshness window.
func WithCacheTTL(d time.Duration) Option {
	return func(s *Sentinel) { s.cacheTTL = d }
}

// New builds a Sentinel. stateFile and cacheFile are paths to the
// durable WAR/PEACE marker and the cross-process price cache
// respectively; both default to dotfiles in the working directory when
// empty, matching market_sentinel.py's .system_state /
// .<symbol>_price_cache.txt.
func New(symbol string, thresholdPct float64, heartbeat, volatilityCooldown time.Duration, stateFile, cacheFile string, fetch PriceFetcher, opts ...Option) *Sentinel {
	if stateFile == "" {
		stateFile = ".system_state"
	}
	if cacheFile == "" {
		cacheFile = fmt.Sprintf(".%s_price_cache.txt", strings.ToLower(symbol))
	}
	s := &Sentinel{
		symbol:             symbol,
		thresholdPct:       thresholdPct,
		heartbeat:          heartbeat,
		volatilityCooldown: volatilityCooldown,
		stateFile:          stateFile,
		cacheFile:          cacheFile,
		cacheTTL:           defaultCacheTTL,
		fetch:              fetch,
		now:                time.Now,
		currentState:       arbengine.StatePeace,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetClock overrides the time source; used by tests.
func (s *Sentinel) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// ShouldScan reports whether the caller should run a full scan pass
// this tick: on the first call or once the heartbeat has expired (after
// taking a fresh, uncached price so UpdateLastPrice has a baseline to
// commit), when the price moved beyond thresholdPct since the last
// committed baseline, or when this call's fetch fails (fail-open, since
// a quote error should never starve scanning). Within failRetryGate of
// a failed fetch it returns false without fetching, unless the
// heartbeat has expired.
func (s *Sentinel) ShouldScan(ctx context.Context) bool {
	s.mu.Lock()
	now := s.now()

	if s.lastScanTime.IsZero() || now.Sub(s.lastScanTime) >= s.heartbeat {
		s.mu.Unlock()
		price, err := s.fetch(ctx)
		s.mu.Lock()
		defer s.mu.Unlock()
		if err == nil && price > 0 {
			s.currentPrice = price
		}
		if s.isHighVolatility && s.now().Sub(s.volatilityTime) >= s.volatilityCooldown {
			s.isHighVolatility = false
			s.setState(arbengine.StatePeace)
			log.Info().Msg("sentinel: market relaxed, state -> PEACE")
		}
		return true
	}

	if !s.lastFailTime.IsZero() && now.Sub(s.lastFailTime) < failRetryGate {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	price, err := s.cachedFetch(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	now = s.now()
	s.currentPrice = price

	if err != nil || price == 0 {
		s.lastFailTime = now
		log.Warn().Err(err).Msg("sentinel: price fetch failed, scanning to be safe")
		return true
	}

	if s.lastPrice == 0 {
		return true
	}

	diffPct := math.Abs(price-s.lastPrice) / s.lastPrice * 100.0
	if diffPct > s.thresholdPct {
		log.Info().Str("symbol", s.symbol).Float64("pct", diffPct).Float64("price", price).Msg("sentinel: volatility spike")
		s.isHighVolatility = true
		s.volatilityTime = now
		s.setState(arbengine.StateWar)
		return true
	}

	if s.isHighVolatility && now.Sub(s.volatilityTime) >= s.volatilityCooldown {
		s.isHighVolatility = false
		s.setState(arbengine.StatePeace)
		log.Info().Msg("sentinel: market relaxed, state -> PEACE")
	}

	return false
}

// UpdateLastPrice commits the current observation as the new baseline.
// Callers invoke this strictly after a scan pass completes successfully.
func (s *Sentinel) UpdateLastPrice() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastScanTime = s.now()
	if s.currentPrice > 0 {
		s.lastPrice = s.currentPrice
	}
}

// setState writes the WAR/PEACE marker and emits a state-change event.
// Must be called with s.mu held.
func (s *Sentinel) setState(state arbengine.SystemState) {
	if state == s.currentState {
		return
	}
	s.currentState = state

	if err := os.WriteFile(s.stateFile, []byte(state), 0o644); err != nil {
		log.Error().Err(err).Str("file", s.stateFile).Msg("sentinel: failed to write state file")
	}

	if s.sink == nil {
		return
	}
	evt := arbengine.Event{
		Kind:      arbengine.EventStateChange,
		Timestamp: s.now(),
		Message:   string(state),
	}
	select {
	case s.sink <- evt:
	default:
		log.Warn().Msg("sentinel: sink channel full, dropping state-change event")
	}
}

// cachedFetch consults the on-disk price cache before hitting fetch,
// matching fetch_price's cross-process cache so multiple engine
// instances sharing a host don't double-hit the upstream API.
func (s *Sentinel) cachedFetch(ctx context.Context) (float64, error) {
	if price, ok := s.readCache(); ok {
		return price, nil
	}

	price, err := s.fetch(ctx)
	if err != nil {
		return 0, err
	}

	s.writeCache(price)
	return price, nil
}

func (s *Sentinel) readCache() (float64, bool) {
	data, err := os.ReadFile(s.cacheFile)
	if err != nil {
		return 0, false
	}
	parts := strings.SplitN(string(data), ",", 2)
	if len(parts) != 2 {
		return 0, false
	}
	ts, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, false
	}
	price, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, false
	}
	age := time.Duration(float64(time.Second) * (float64(s.now().Unix()) - ts))
	if age < 0 || age >= s.cacheTTL {
		return 0, false
	}
	return price, true
}

func (s *Sentinel) writeCache(price float64) {
	line := fmt.Sprintf("%d,%f", s.now().Unix(), price)
	if err := os.WriteFile(s.cacheFile, []byte(line), 0o644); err != nil {
		log.Debug().Err(err).Msg("sentinel: price cache write failed")
	}
}

// State reports the current WAR/PEACE marker.
func (s *Sentinel) State() arbengine.SystemState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentState
}
