// Package rpcrouter implements the tiered RPC endpoint pool described in
// spec component C1: health-ranked selection over premium/free
// endpoints, strike-based blacklisting, and exponential backoff for the
// premium lane. It is the single place Transient.RateLimited and
// Transient.Network errors are absorbed — callers above this package
// never see them.
package rpcrouter

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vantablack-labs/arbengine"
)

const (
	freeBlacklistDuration = 300 * time.Second
	freeStrikesToBlacklist = 3
	maxPremiumBackoff      = 30 * time.Second
	rankerPeriod           = 60 * time.Second
	probeTimeout           = 3 * time.Second
)

// ErrAllFreeBlacklisted is returned by Handle for a non-critical request
// when every free endpoint is blacklisted and no premium endpoint is
// configured; with a premium endpoint Handle degrades to it instead.
var ErrAllFreeBlacklisted = errors.New("rpcrouter: all free endpoints blacklisted")

// Prober performs the lightweight read used to rank a free endpoint.
// In production this calls eth_blockNumber; tests supply a fake.
type Prober func(ctx context.Context, url string) (time.Duration, error)

// Router multiplexes read/write traffic over a pool of endpoints.
type Router struct {
	mu        sync.Mutex
	premium   *arbengine.Endpoint
	free      []*arbengine.Endpoint
	prober    Prober
	premiumStrikes int
	now       func() time.Time
	sleep     func(time.Duration)
	stopCh    chan struct{}
}

// New builds a Router. premiumURL may be empty if no premium lane is
// configured, in which case Handle never returns premium: a critical
// request gets an error, and a non-critical one gets a free endpoint or
// ErrAllFreeBlacklisted.
func New(premiumURL string, freeURLs []string, prober Prober) *Router {
	var premium *arbengine.Endpoint
	if premiumURL != "" {
		premium = &arbengine.Endpoint{URL: premiumURL, Tier: arbengine.TierPremium}
	}
	free := make([]*arbengine.Endpoint, 0, len(freeURLs))
	for _, u := range freeURLs {
		free = append(free, &arbengine.Endpoint{URL: u, Tier: arbengine.TierFree, Latency: arbengine.InfiniteLatency})
	}
	return &Router{
		premium: premium,
		free:    free,
		prober:  prober,
		now:     time.Now,
		sleep:   time.Sleep,
		stopCh:  make(chan struct{}),
	}
}

// Handle returns the currently preferred endpoint. If critical is true,
// or no free endpoint is usable, it returns the premium endpoint.
func (r *Router) Handle(critical bool) (*arbengine.Endpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if critical {
		if r.premium == nil {
			return nil, errors.New("rpcrouter: no premium endpoint configured")
		}
		return r.premium, nil
	}

	r.unblacklistExpired()

	for _, ep := range r.free {
		if !ep.Blacklisted {
			return ep, nil
		}
	}

	if r.premium == nil {
		return nil, ErrAllFreeBlacklisted
	}
	log.Warn().Msg("rpcrouter: all free endpoints blacklisted, degrading to premium")
	return r.premium, nil
}

// unblacklistExpired clears blacklist/strikes on entries whose
// blacklist_until has passed, resetting latency so the next probe
// re-ranks them, then re-sorts with a stable sort (blacklisted sink to
// the bottom, equal latencies keep configured order).
func (r *Router) unblacklistExpired() {
	now := r.now()
	for _, ep := range r.free {
		if ep.Blacklisted && !ep.BlacklistUntil.After(now) {
			ep.Blacklisted = false
			ep.Strikes = 0
			ep.Latency = arbengine.InfiniteLatency
		}
	}
	sort.SliceStable(r.free, func(i, j int) bool {
		a, b := r.free[i], r.free[j]
		if a.Blacklisted != b.Blacklisted {
			return !a.Blacklisted
		}
		return a.Latency < b.Latency
	})
}

// OnRateLimited handles 429/403/quota/-32001 responses.
func (r *Router) OnRateLimited(ep *arbengine.Endpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strike(ep)
}

// OnHardError handles network-level failures (disconnects, resets,
// DNS failures, 413, timeouts). Policy mirrors OnRateLimited.
func (r *Router) OnHardError(ep *arbengine.Endpoint, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strike(ep)
}

func (r *Router) strike(ep *arbengine.Endpoint) {
	if r.premium != nil && ep.URL == r.premium.URL {
		r.premiumStrikes++
		backoffSeconds := math.Min(float64(maxPremiumBackoff/time.Second), math.Pow(2, float64(r.premiumStrikes)))
		backoff := time.Duration(backoffSeconds * float64(time.Second))
		jitter := time.Duration(100+rand.Intn(900)) * time.Millisecond
		log.Warn().Dur("backoff", backoff+jitter).Msg("rpcrouter: premium endpoint backing off")
		r.sleep(backoff + jitter)
		return
	}

	ep.Strikes++
	if ep.Strikes >= freeStrikesToBlacklist {
		ep.Blacklisted = true
		ep.BlacklistUntil = r.now().Add(freeBlacklistDuration)
		ep.Strikes = 0
		log.Warn().Str("url", ep.URL).Time("until", ep.BlacklistUntil).Msg("rpcrouter: free endpoint blacklisted")
	}
}

// StartRanker launches the background ranker: every 60s it probes each
// non-blacklisted free endpoint at a 3s hard timeout, updates latency
// (infinity on failure), and re-sorts. It runs until Stop is called.
func (r *Router) StartRanker(ctx context.Context) {
	ticker := time.NewTicker(rankerPeriod)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopCh:
				return
			case <-ticker.C:
				r.rankOnce(ctx)
			}
		}
	}()
}

// Stop terminates the background ranker.
func (r *Router) Stop() {
	close(r.stopCh)
}

func (r *Router) rankOnce(ctx context.Context) {
	r.mu.Lock()
	targets := make([]*arbengine.Endpoint, 0, len(r.free))
	for _, ep := range r.free {
		if !ep.Blacklisted {
			targets = append(targets, ep)
		}
	}
	r.mu.Unlock()

	for _, ep := range targets {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		latency, err := r.prober(probeCtx, ep.URL)
		cancel()

		r.mu.Lock()
		if err != nil {
			ep.Latency = arbengine.InfiniteLatency
		} else {
			ep.Latency = latency
		}
		r.mu.Unlock()
	}

	r.mu.Lock()
	r.unblacklistExpired()
	r.mu.Unlock()
}

// SetClock overrides the time source and sleep function; used by tests
// to exercise backoff/blacklist-expiry deterministically.
func (r *Router) SetClock(now func() time.Time, sleep func(time.Duration)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
	r.sleep = sleep
}

// Snapshot returns a read-only copy of the current free-endpoint
// ranking, for diagnostics/tests.
func (r *Router) Snapshot() []arbengine.Endpoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]arbengine.Endpoint, len(r.free))
	for i, ep := range r.free {
		out[i] = *ep
	}
	return out
}
