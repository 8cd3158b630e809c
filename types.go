// Package arbengine is the root package of the Arbitrum MEV discovery and
// dispatch engine: the on-chain data model shared by every hunter,
// the RPC router, the quote engine, and the executor.
package arbengine

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Token is a compile-time-configured ERC20 the engine trades against.
type Token struct {
	Symbol   string
	Address  common.Address
	Decimals uint8
}

// VenueKind distinguishes the quoter/router ABI shape a DEX exposes.
type VenueKind string

const (
	KindConstantProductV3 VenueKind = "constant-product-v3"
	KindAlgebraDynamicFee VenueKind = "algebra-dynamic-fee"
	KindStableCurvePool   VenueKind = "stable-curve-pool"
)

// Venue is a single DEX: its quoter/router pair, ABI kind, and fee tiers.
// StableSlots maps a token symbol to its integer slot index in a
// stable-curve pool; it is nil/empty for non-curve venues.
type Venue struct {
	Name           string
	QuoterAddress  common.Address
	RouterAddress  common.Address
	Kind           VenueKind
	FeeTiers       []uint32
	StableSlots    map[string]int
}

// SlotOf reports the curve-pool slot index for symbol, if any.
func (v Venue) SlotOf(symbol string) (int, bool) {
	if v.StableSlots == nil {
		return 0, false
	}
	slot, ok := v.StableSlots[symbol]
	return slot, ok
}

// RouteLeg is a single quoted hop: tokenIn -> tokenOut on (venue, fee).
type RouteLeg struct {
	TokenIn    string
	TokenOut   string
	Venue      string
	Fee        uint32
	AmountOut  *big.Int // last quoted amountOut, base units
}

// Route is an ordered chain of 2 or 3 legs, always USDC -> ... -> USDC.
type Route struct {
	Legs []RouteLeg
}

// Fingerprint returns the canonical route-failure-ledger key: the first
// leg's TokenIn followed by every leg's TokenOut, then every leg's
// venue, e.g. "USDC-WETH-USDC/uniswap-v3-camelot".
func (r Route) Fingerprint() string {
	if len(r.Legs) == 0 {
		return ""
	}
	syms := r.Legs[0].TokenIn
	venues := ""
	for i, leg := range r.Legs {
		syms += "-" + leg.TokenOut
		if i == 0 {
			venues = leg.Venue
		} else {
			venues += "-" + leg.Venue
		}
	}
	return syms + "/" + venues
}

// RPCTier distinguishes premium (paid, low-latency) from free endpoints.
type RPCTier string

const (
	TierPremium RPCTier = "premium"
	TierFree    RPCTier = "free"
)

// InfiniteLatency is the sentinel value for "latency unknown/unreachable".
const InfiniteLatency = time.Duration(1<<63 - 1)

// Endpoint is one entry in the RPC router's pool.
type Endpoint struct {
	URL            string
	Tier           RPCTier
	Latency        time.Duration
	Blacklisted    bool
	BlacklistUntil time.Time
	Strikes        int
}

// BorrowerTier is the danger/watchlist cohort a borrower currently sits in.
type BorrowerTier int

const (
	TierNone BorrowerTier = iota
	Tier1Danger
	Tier2Watchlist
)

// T1Max and T2Max are the health-factor cutoffs separating the danger
// tier from the watchlist tier, and the watchlist from exited borrowers.
const (
	T1Max = 1.050
	T2Max = 1.200
)

// BorrowerRecord tracks one address's last observed health factor.
type BorrowerRecord struct {
	Address      common.Address
	Tier         BorrowerTier
	HealthFactor float64
}

// AssetBalance is one reserve's position for a borrower: underlying
// balance, variable/stable debt, and the asset's oracle price (18-decimal
// fixed point, matching Aave-style price oracles).
type AssetBalance struct {
	Asset         common.Address
	Underlying    *big.Int
	VariableDebt  *big.Int
	StableDebt    *big.Int
	PriceUSD18    *big.Int
}

// UserAssetSnapshot is the full per-reserve picture for one borrower,
// used to pick the largest-debt and largest-collateral assets.
type UserAssetSnapshot struct {
	Borrower common.Address
	Assets   []AssetBalance
}

// RouteFailureEntry is one row of the route-failure ledger.
type RouteFailureEntry struct {
	ConsecutiveFailures int
	BlacklistUntil      time.Time
}

// SystemState is the sentinel's durable WAR/PEACE marker.
type SystemState string

const (
	StateWar   SystemState = "WAR"
	StatePeace SystemState = "PEACE"
)

// EventKind categorizes a structured sink event.
type EventKind string

const (
	EventSpread       EventKind = "spread"
	EventExecution    EventKind = "execution"
	EventStateChange  EventKind = "state-change"
	EventError        EventKind = "error"
)

// Event is the structured record every hunter/executor emits to sinks.
// Sinks consume it asynchronously and must never block the caller.
type Event struct {
	Kind        EventKind
	Timestamp   time.Time
	Height      uint64
	Fingerprint string
	GrossUSD    float64
	NetUSD      float64
	TxHash      common.Hash
	Message     string
}
