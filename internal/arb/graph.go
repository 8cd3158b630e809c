// Package arb hosts the two-leg and tri-leg cross-DEX arbitrage
// hunters: both scan by batching leg quotes through Multicall3, score
// candidate routes in Go (the only per-candidate RPC is the gas-price
// lookup for routes with positive gross profit), and emit
// Opportunity values for the executor to act on. Scan never executes —
// that separation keeps the hunters testable without a signer.
package arb

import (
	"math/big"
	"sync"
	"time"

	"github.com/vantablack-labs/arbengine"
)

// MaxRouteFailures and RouteCooldown mirror arb_engine.py's
// MAX_ROUTE_FAILURES / ROUTE_COOLDOWN_SECONDS: a route that fails
// simulation/broadcast 3 times running is skipped for 10 minutes.
const (
	MaxRouteFailures = 3
	RouteCooldown    = 600 * time.Second
)

// Graph is the static configuration a hunter scans over: the token
// universe, the venue registry, and the base token every route starts
// and ends on (USDC on Arbitrum).
type Graph struct {
	Tokens    map[string]arbengine.Token
	Venues    map[string]arbengine.Venue
	BaseToken string
}

// VenueNames returns the configured venue names in map-iteration order;
// callers that need determinism should sort the result themselves.
func (g *Graph) VenueNames() []string {
	names := make([]string, 0, len(g.Venues))
	for name := range g.Venues {
		names = append(names, name)
	}
	return names
}

// RouteLedger tracks consecutive execution failures per route
// fingerprint and blacklists routes that fail too often, matching
// arb_engine.py's module-level route_failures/route_blacklist dicts.
type RouteLedger struct {
	mu      sync.Mutex
	entries map[string]*arbengine.RouteFailureEntry
	now     func() time.Time
}

// NewRouteLedger builds an empty ledger.
func NewRouteLedger() *RouteLedger {
	return &RouteLedger{entries: make(map[string]*arbengine.RouteFailureEntry), now: time.Now}
}

// SetClock overrides the time source; used by tests.
func (l *RouteLedger) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// IsBlacklisted reports whether fingerprint is currently cooling down,
// clearing the entry once the cooldown has elapsed.
func (l *RouteLedger) IsBlacklisted(fingerprint string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[fingerprint]
	if !ok || entry.BlacklistUntil.IsZero() {
		return false
	}
	if l.now().After(entry.BlacklistUntil) {
		delete(l.entries, fingerprint)
		return false
	}
	return true
}

// RecordFailure increments fingerprint's consecutive-failure count and
// blacklists it once MaxRouteFailures is reached.
func (l *RouteLedger) RecordFailure(fingerprint string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[fingerprint]
	if !ok {
		entry = &arbengine.RouteFailureEntry{}
		l.entries[fingerprint] = entry
	}
	entry.ConsecutiveFailures++
	if entry.ConsecutiveFailures >= MaxRouteFailures {
		entry.BlacklistUntil = l.now().Add(RouteCooldown)
	}
}

// RecordSuccess clears fingerprint's failure history.
func (l *RouteLedger) RecordSuccess(fingerprint string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, fingerprint)
}

// Opportunity is a scored, not-yet-executed candidate route.
type Opportunity struct {
	Route           arbengine.Route
	FlashloanAmount *big.Int
	AmountOut       *big.Int
	GrossProfitUSD  float64
	NetProfitUSD    float64
}
