package arb

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vantablack-labs/arbengine"
	"github.com/vantablack-labs/arbengine/internal/quote"
	"github.com/vantablack-labs/arbengine/internal/util"
)

// triLegGasCostBaseline and triLegSlippageBps mirror tri_arb_engine.py's
// fixed 1_000_000-gas padding estimate and 50 bps intermediate-leg
// slippage allowance.
const (
	triLegGasCostBaseline = 1_000_000
	triLegSlippageBps     = 50
)

// TriLegHunter scans USDC -> hub -> target -> USDC (route 1) and
// USDC -> target -> hub -> USDC (route 2) across three staged
// Multicall3 batches, dispatching at most one — the single highest-net
// — opportunity per block, matching tri_arb_engine.py's
// scan_triangular_spreads best-of-block selection.
type TriLegHunter struct {
	graph           *Graph
	engine          *quote.Engine
	ledger          *RouteLedger
	hubTokens       []string
	flashloanAmount *big.Int
	minProfitUSD    float64
	sink            chan<- arbengine.Event
	ethPriceUSD     func() float64
	gasPriceWei     func(ctx context.Context) (*big.Int, error)
}

// NewTriLegHunter builds a TriLegHunter. hubTokens is the liquid
// intermediate set (default {WETH, ARB}); every other configured token
// is a target.
func NewTriLegHunter(graph *Graph, engine *quote.Engine, ledger *RouteLedger, hubTokens []string, flashloanAmount *big.Int, minProfitUSD float64, sink chan<- arbengine.Event, ethPriceUSD func() float64, gasPriceWei func(ctx context.Context) (*big.Int, error)) *TriLegHunter {
	return &TriLegHunter{
		graph:           graph,
		engine:          engine,
		ledger:          ledger,
		hubTokens:       hubTokens,
		flashloanAmount: flashloanAmount,
		minProfitUSD:    minProfitUSD,
		sink:            sink,
		ethPriceUSD:     ethPriceUSD,
		gasPriceWei:     gasPriceWei,
	}
}

func (h *TriLegHunter) isHub(symbol string) bool {
	for _, s := range h.hubTokens {
		if s == symbol {
			return true
		}
	}
	return false
}

// targets returns every token that is neither the base token nor a hub.
func (h *TriLegHunter) targets() []string {
	var out []string
	for symbol := range h.graph.Tokens {
		if symbol == h.graph.BaseToken || h.isHub(symbol) {
			continue
		}
		out = append(out, symbol)
	}
	return out
}

type leg1Leg struct {
	symbol string
	venue  string
	fee    uint32
}

// buildLeg1Calls quotes USDC->TOKEN for every non-base token and every
// (venue, fee) edge, identical in shape to the two-leg hunter's Leg A.
func (h *TriLegHunter) buildLeg1Calls() ([]arbengine.RouteLeg, []leg1Leg) {
	var legs []arbengine.RouteLeg
	var meta []leg1Leg
	for symbol := range h.graph.Tokens {
		if symbol == h.graph.BaseToken {
			continue
		}
		for venueName, venue := range h.graph.Venues {
			for _, fee := range venue.FeeTiers {
				legs = append(legs, arbengine.RouteLeg{TokenIn: h.graph.BaseToken, TokenOut: symbol, Venue: venueName, Fee: fee})
				meta = append(meta, leg1Leg{symbol: symbol, venue: venueName, fee: fee})
			}
		}
	}
	return legs, meta
}

type bestQuote struct {
	amountOut *big.Int
	fee       uint32
}

// bestLeg1Outputs reduces per-(symbol,venue) to the best amountOut
// across fee tiers, remembering the winning fee so it can be threaded
// into the leg-1 swap payload later.
func bestLeg1Outputs(meta []leg1Leg, amountsOut []*big.Int) map[string]map[string]bestQuote {
	best := make(map[string]map[string]bestQuote)
	for i, m := range meta {
		out := amountsOut[i]
		if out == nil || out.Sign() <= 0 {
			continue
		}
		if best[m.symbol] == nil {
			best[m.symbol] = make(map[string]bestQuote)
		}
		cur, ok := best[m.symbol][m.venue]
		if !ok || out.Cmp(cur.amountOut) > 0 {
			best[m.symbol][m.venue] = bestQuote{amountOut: out, fee: m.fee}
		}
	}
	return best
}

type leg2Leg struct {
	routeType int // 1: hub->target, 2: target->hub
	sym1      string
	sym2      string
	dex1      string
	fee1      uint32
	dex2      string
	amountIn  *big.Int // leg1's winning amountOut
}

// buildLeg2Calls enumerates both route shapes' middle hop: for route 1,
// hub->target; for route 2, target->hub. Each uses the matching leg-1
// winner's amountOut as amountIn.
func (h *TriLegHunter) buildLeg2Calls(best1 map[string]map[string]bestQuote) ([]arbengine.RouteLeg, []leg2Leg) {
	var legs []arbengine.RouteLeg
	var meta []leg2Leg
	venueNames := h.graph.VenueNames()
	targets := h.targets()

	appendShape := func(routeType int, firstLegTokens []string, secondLegTokens []string) {
		for _, sym1 := range firstLegTokens {
			for dex1, q1 := range best1[sym1] {
				if q1.amountOut == nil || q1.amountOut.Sign() <= 0 {
					continue
				}
				for _, sym2 := range secondLegTokens {
					if sym2 == sym1 {
						continue
					}
					for _, dex2 := range venueNames {
						venue2 := h.graph.Venues[dex2]
						for _, fee2 := range venue2.FeeTiers {
							legs = append(legs, arbengine.RouteLeg{TokenIn: sym1, TokenOut: sym2, Venue: dex2, Fee: fee2})
							meta = append(meta, leg2Leg{routeType: routeType, sym1: sym1, sym2: sym2, dex1: dex1, fee1: q1.fee, dex2: dex2, amountIn: q1.amountOut})
						}
					}
				}
			}
		}
	}

	appendShape(1, h.hubTokens, targets)
	appendShape(2, targets, h.hubTokens)

	return legs, meta
}

type leg2Result struct {
	amountOut *big.Int
	fee1      uint32
	fee2      uint32
	leg1Out   *big.Int // amount leg1 produced / leg2 consumed
}

func leg2Key(routeType int, sym1, sym2, dex1, dex2 string) string {
	return fmt.Sprintf("%d|%s|%s|%s|%s", routeType, sym1, sym2, dex1, dex2)
}

// bestLeg2Outputs reduces per-(routeType,sym1,sym2,dex1,dex2) to the
// best amountOut across leg2 fee tiers.
func bestLeg2Outputs(meta []leg2Leg, legs []arbengine.RouteLeg, amountsOut []*big.Int) map[string]leg2Result {
	best := make(map[string]leg2Result)
	for i, m := range meta {
		out := amountsOut[i]
		if out == nil || out.Sign() <= 0 {
			continue
		}
		key := leg2Key(m.routeType, m.sym1, m.sym2, m.dex1, m.dex2)
		cur, ok := best[key]
		if !ok || out.Cmp(cur.amountOut) > 0 {
			best[key] = leg2Result{amountOut: out, fee1: m.fee1, fee2: legs[i].Fee, leg1Out: m.amountIn}
		}
	}
	return best
}

type leg3Leg struct {
	routeType int
	sym1      string
	sym2      string
	dex1      string
	fee1      uint32
	dex2      string
	fee2      uint32
	dex3      string
	fee3      uint32
	leg1Out   *big.Int // amount fed into leg2
	leg2Out   *big.Int // amount fed into leg3 (this leg's amountIn)
}

// blacklistFingerprint mirrors tri_arb_engine.py's 2-dex route key,
// deliberately excluding the terminal leg-3 venue from the fingerprint.
func blacklistFingerprint(sym1, sym2, dex1, dex2 string) string {
	route := arbengine.Route{Legs: []arbengine.RouteLeg{
		{TokenIn: "USDC", TokenOut: sym1, Venue: dex1},
		{TokenIn: sym1, TokenOut: sym2, Venue: dex2},
	}}
	return route.Fingerprint()
}

// buildLeg3Calls quotes the terminal TOKEN->USDC hop for every leg-2
// winner, skipping any (sym1,sym2,dex1,dex2) pairing currently
// blacklisted in the ledger.
func (h *TriLegHunter) buildLeg3Calls(best2 map[string]leg2Result) ([]arbengine.RouteLeg, []leg3Leg) {
	var legs []arbengine.RouteLeg
	var meta []leg3Leg
	venueNames := h.graph.VenueNames()

	for key, r := range best2 {
		parts := splitLeg2Key(key)
		routeType, sym1, sym2, dex1, dex2 := parts.routeType, parts.sym1, parts.sym2, parts.dex1, parts.dex2

		if h.ledger.IsBlacklisted(blacklistFingerprint(sym1, sym2, dex1, dex2)) {
			continue
		}

		for _, dex3 := range venueNames {
			venue3 := h.graph.Venues[dex3]
			for _, fee3 := range venue3.FeeTiers {
				legs = append(legs, arbengine.RouteLeg{TokenIn: sym2, TokenOut: h.graph.BaseToken, Venue: dex3, Fee: fee3})
				meta = append(meta, leg3Leg{
					routeType: routeType, sym1: sym1, sym2: sym2,
					dex1: dex1, fee1: r.fee1, dex2: dex2, fee2: r.fee2, dex3: dex3, fee3: fee3,
					leg1Out: r.leg1Out, leg2Out: r.amountOut,
				})
			}
		}
	}
	return legs, meta
}

type leg2KeyParts struct {
	routeType              int
	sym1, sym2, dex1, dex2 string
}

func splitLeg2Key(key string) leg2KeyParts {
	var p leg2KeyParts
	fields := strings.Split(key, "|")
	if len(fields) != 5 {
		return p
	}
	fmt.Sscanf(fields[0], "%d", &p.routeType)
	p.sym1, p.sym2, p.dex1, p.dex2 = fields[1], fields[2], fields[3], fields[4]
	return p
}

// Scan runs the full three-stage pass and returns at most one
// opportunity: the single highest-net-profit route, matching the
// best-of-block execution policy. Every route clearing the spread-log
// threshold still emits a spread event even when it isn't the winner.
func (h *TriLegHunter) Scan(ctx context.Context, height uint64) ([]Opportunity, error) {
	tokens := h.graph.Tokens

	leg1Legs, leg1Meta := h.buildLeg1Calls()
	if len(leg1Legs) == 0 {
		return nil, nil
	}
	leg1Amounts, err := h.engine.QuoteLegsUniform(ctx, tokens, leg1Legs, h.flashloanAmount, quote.TriLegGas)
	if err != nil {
		return nil, fmt.Errorf("arb: tri-leg stage 1: %w", err)
	}
	best1 := bestLeg1Outputs(leg1Meta, leg1Amounts)

	leg2Legs, leg2Meta := h.buildLeg2Calls(best1)
	if len(leg2Legs) == 0 {
		return nil, nil
	}
	leg2AmountsIn := make([]*big.Int, len(leg2Meta))
	for i, m := range leg2Meta {
		leg2AmountsIn[i] = m.amountIn
	}
	leg2Amounts, err := h.engine.QuoteLegs(ctx, tokens, leg2Legs, leg2AmountsIn, quote.TriLegGas)
	if err != nil {
		return nil, fmt.Errorf("arb: tri-leg stage 2: %w", err)
	}
	best2 := bestLeg2Outputs(leg2Meta, leg2Legs, leg2Amounts)

	leg3Legs, leg3Meta := h.buildLeg3Calls(best2)
	if len(leg3Legs) == 0 {
		return nil, nil
	}
	leg3AmountsIn := make([]*big.Int, len(leg3Meta))
	for i, m := range leg3Meta {
		leg3AmountsIn[i] = m.leg2Out
	}
	leg3Amounts, err := h.engine.QuoteLegs(ctx, tokens, leg3Legs, leg3AmountsIn, quote.TriLegGas)
	if err != nil {
		return nil, fmt.Errorf("arb: tri-leg stage 3: %w", err)
	}

	flashloanFee := new(big.Int).Div(new(big.Int).Mul(h.flashloanAmount, big.NewInt(AaveFlashloanFeeBps)), big.NewInt(10000))
	totalRepay := new(big.Int).Add(h.flashloanAmount, flashloanFee)

	var best *Opportunity
	for i, m := range leg3Meta {
		outUSDC := leg3Amounts[i]
		if outUSDC == nil || outUSDC.Sign() <= 0 {
			continue
		}

		grossProfitRaw := new(big.Int).Sub(outUSDC, totalRepay)
		grossProfitUSD := usdcToFloat(grossProfitRaw)
		spreadPct := new(big.Float).Quo(new(big.Float).SetInt(grossProfitRaw), new(big.Float).SetInt(h.flashloanAmount))
		spreadPctF, _ := new(big.Float).Mul(spreadPct, big.NewFloat(100)).Float64()

		route := h.legRoute(m, outUSDC)

		if spreadPctF > minSpreadPctLogged {
			h.emit(arbengine.EventSpread, height, route.Fingerprint(), grossProfitUSD, 0, "")
		}

		if grossProfitUSD <= 0 {
			continue
		}

		gasPrice, err := h.gasPriceWei(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("arb: gas price lookup failed, skipping tri-leg profit check")
			continue
		}
		gasCostWei := new(big.Int).Mul(big.NewInt(triLegGasCostBaseline), gasPrice)
		netProfitUSD := util.EstimateNetProfitUSD(grossProfitUSD, gasCostWei, h.ethPriceUSD())

		if netProfitUSD < h.minProfitUSD {
			continue
		}
		if best == nil || netProfitUSD > best.NetProfitUSD {
			best = &Opportunity{
				Route:           route,
				FlashloanAmount: h.flashloanAmount,
				AmountOut:       outUSDC,
				GrossProfitUSD:  grossProfitUSD,
				NetProfitUSD:    netProfitUSD,
			}
		}
	}

	if best == nil {
		return nil, nil
	}
	return []Opportunity{*best}, nil
}

// legRoute reconstructs the full 3-leg Route (including the slippage
// minimums a winning route needs downstream) from a leg3Leg's metadata.
func (h *TriLegHunter) legRoute(m leg3Leg, finalOut *big.Int) arbengine.Route {
	return arbengine.Route{Legs: []arbengine.RouteLeg{
		{TokenIn: h.graph.BaseToken, TokenOut: m.sym1, Venue: m.dex1, Fee: m.fee1, AmountOut: m.leg1Out},
		{TokenIn: m.sym1, TokenOut: m.sym2, Venue: m.dex2, Fee: m.fee2, AmountOut: m.leg2Out},
		{TokenIn: m.sym2, TokenOut: h.graph.BaseToken, Venue: m.dex3, Fee: m.fee3, AmountOut: finalOut},
	}}
}

func (h *TriLegHunter) emit(kind arbengine.EventKind, height uint64, fingerprint string, gross, net float64, msg string) {
	if h.sink == nil {
		return
	}
	evt := arbengine.Event{
		Kind:        kind,
		Timestamp:   time.Now(),
		Height:      height,
		Fingerprint: fingerprint,
		GrossUSD:    gross,
		NetUSD:      net,
		Message:     msg,
	}
	select {
	case h.sink <- evt:
	default:
		log.Warn().Msg("arb: sink channel full, dropping event")
	}
}
