package arb

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vantablack-labs/arbengine"
	"github.com/vantablack-labs/arbengine/internal/quote"
	"github.com/vantablack-labs/arbengine/internal/util"
)

// AaveFlashloanFeeBps is the Aave V2/V3 flashloan premium on Arbitrum,
// matching arb_engine.py's AAVE_FLASHLOAN_FEE_BPS.
const AaveFlashloanFeeBps = 5

// minSpreadPctLogged is the threshold above which a spread is logged
// even if it doesn't clear the profit bar, for visibility.
const minSpreadPctLogged = 0.05

// TwoLegHunter scans USDC -> TOKEN -> USDC across every (venue, fee)
// permutation via two staged Multicall3 batches, exactly the shape of
// arb_engine.py's scan_and_execute but decomposed into pure Go helpers
// so each stage is independently testable.
type TwoLegHunter struct {
	graph           *Graph
	engine          *quote.Engine
	ledger          *RouteLedger
	flashloanAmount *big.Int
	minProfitUSD    float64
	sink            chan<- arbengine.Event
	ethPriceUSD     func() float64
	gasPriceWei     func(ctx context.Context) (*big.Int, error)
}

// NewTwoLegHunter builds a TwoLegHunter. ethPriceUSD and gasPriceWei
// are late-bound so the hunter never has to own an RPC client directly.
func NewTwoLegHunter(graph *Graph, engine *quote.Engine, ledger *RouteLedger, flashloanAmount *big.Int, minProfitUSD float64, sink chan<- arbengine.Event, ethPriceUSD func() float64, gasPriceWei func(ctx context.Context) (*big.Int, error)) *TwoLegHunter {
	return &TwoLegHunter{
		graph:           graph,
		engine:          engine,
		ledger:          ledger,
		flashloanAmount: flashloanAmount,
		minProfitUSD:    minProfitUSD,
		sink:            sink,
		ethPriceUSD:     ethPriceUSD,
		gasPriceWei:     gasPriceWei,
	}
}

type legALeg struct {
	symbol string
	venue  string
	fee    uint32
}

// buildLegACalls enumerates one USDC->TOKEN quote call per
// (token, venue, fee-tier) triple.
func (h *TwoLegHunter) buildLegACalls() ([]arbengine.RouteLeg, []legALeg) {
	var legs []arbengine.RouteLeg
	var meta []legALeg
	for symbol := range h.graph.Tokens {
		if symbol == h.graph.BaseToken {
			continue
		}
		for venueName, venue := range h.graph.Venues {
			for _, fee := range venue.FeeTiers {
				legs = append(legs, arbengine.RouteLeg{TokenIn: h.graph.BaseToken, TokenOut: symbol, Venue: venueName, Fee: fee})
				meta = append(meta, legALeg{symbol: symbol, venue: venueName, fee: fee})
			}
		}
	}
	return legs, meta
}

// legAQuote is the winning amountOut and the fee tier that produced it.
type legAQuote struct {
	amountOut *big.Int
	fee       uint32
}

// bestLegAOutputs reduces per-(symbol,venue) to the best amountOut
// observed across fee tiers, remembering the winning fee so it can be
// threaded into the leg-A swap payload later, mirroring best_leg_a in
// the source.
func bestLegAOutputs(meta []legALeg, amountsOut []*big.Int) map[string]map[string]legAQuote {
	best := make(map[string]map[string]legAQuote)
	for i, m := range meta {
		out := amountsOut[i]
		if out == nil || out.Sign() <= 0 {
			continue
		}
		if best[m.symbol] == nil {
			best[m.symbol] = make(map[string]legAQuote)
		}
		cur, ok := best[m.symbol][m.venue]
		if !ok || out.Cmp(cur.amountOut) > 0 {
			best[m.symbol][m.venue] = legAQuote{amountOut: out, fee: m.fee}
		}
	}
	return best
}

type legBLeg struct {
	symbol        string
	buyVenue      string
	buyFee        uint32
	sellVenue     string
	sellFee       uint32
	amountInToken *big.Int
}

// buildLegBCalls enumerates TOKEN->USDC quote calls for every
// (buyVenue, sellVenue) permutation that produced a Leg A output,
// skipping routes currently blacklisted in the ledger.
func (h *TwoLegHunter) buildLegBCalls(bestLegA map[string]map[string]legAQuote) ([]arbengine.RouteLeg, []legBLeg) {
	var legs []arbengine.RouteLeg
	var meta []legBLeg
	venueNames := h.graph.VenueNames()

	for symbol, byVenue := range bestLegA {
		for _, buyVenue := range venueNames {
			legAResult, ok := byVenue[buyVenue]
			if !ok {
				continue
			}
			for _, sellVenue := range venueNames {
				if sellVenue == buyVenue {
					continue
				}
				route := arbengine.Route{Legs: []arbengine.RouteLeg{
					{TokenIn: h.graph.BaseToken, TokenOut: symbol, Venue: buyVenue},
					{TokenIn: symbol, TokenOut: h.graph.BaseToken, Venue: sellVenue},
				}}
				if h.ledger.IsBlacklisted(route.Fingerprint()) {
					continue
				}

				sellConfig := h.graph.Venues[sellVenue]
				for _, fee := range sellConfig.FeeTiers {
					legs = append(legs, arbengine.RouteLeg{TokenIn: symbol, TokenOut: h.graph.BaseToken, Venue: sellVenue, Fee: fee})
					meta = append(meta, legBLeg{
						symbol: symbol, buyVenue: buyVenue, buyFee: legAResult.fee,
						sellVenue: sellVenue, sellFee: fee, amountInToken: legAResult.amountOut,
					})
				}
			}
		}
	}
	return legs, meta
}

// Scan runs one full two-stage pass and returns every opportunity
// whose net profit clears minProfitUSD, after emitting a spread event
// for every route that clears minSpreadPctLogged regardless of
// profitability.
func (h *TwoLegHunter) Scan(ctx context.Context, height uint64) ([]Opportunity, error) {
	legAQuotes, legAMeta := h.buildLegACalls()
	if len(legAQuotes) == 0 {
		return nil, nil
	}

	tokens := h.graph.Tokens
	legAAmounts, err := h.engine.QuoteLegsUniform(ctx, tokens, legAQuotes, h.flashloanAmount, quote.TwoLegGas)
	if err != nil {
		return nil, fmt.Errorf("arb: leg A batch: %w", err)
	}

	bestLegA := bestLegAOutputs(legAMeta, legAAmounts)

	legBQuotes, legBMeta := h.buildLegBCalls(bestLegA)
	if len(legBQuotes) == 0 {
		return nil, nil
	}

	legBAmountsIn := make([]*big.Int, len(legBMeta))
	for i, m := range legBMeta {
		legBAmountsIn[i] = m.amountInToken
	}
	legBAmounts, err := h.engine.QuoteLegs(ctx, tokens, legBQuotes, legBAmountsIn, quote.TwoLegGas)
	if err != nil {
		return nil, fmt.Errorf("arb: leg B batch: %w", err)
	}

	var opportunities []Opportunity
	flashloanFee := new(big.Int).Div(new(big.Int).Mul(h.flashloanAmount, big.NewInt(AaveFlashloanFeeBps)), big.NewInt(10000))
	totalRepay := new(big.Int).Add(h.flashloanAmount, flashloanFee)

	for i, m := range legBMeta {
		amountOutUSDC := legBAmounts[i]
		if amountOutUSDC == nil || amountOutUSDC.Sign() <= 0 {
			continue
		}

		grossProfitRaw := new(big.Int).Sub(amountOutUSDC, totalRepay)
		grossProfitUSD := usdcToFloat(grossProfitRaw)
		spreadPct := new(big.Float).Quo(new(big.Float).SetInt(grossProfitRaw), new(big.Float).SetInt(h.flashloanAmount))
		spreadPctF, _ := new(big.Float).Mul(spreadPct, big.NewFloat(100)).Float64()

		route := arbengine.Route{Legs: []arbengine.RouteLeg{
			{TokenIn: h.graph.BaseToken, TokenOut: m.symbol, Venue: m.buyVenue, Fee: m.buyFee},
			{TokenIn: m.symbol, TokenOut: h.graph.BaseToken, Venue: m.sellVenue, Fee: m.sellFee},
		}}

		if spreadPctF > minSpreadPctLogged {
			h.emit(arbengine.EventSpread, height, route.Fingerprint(), grossProfitUSD, 0, "")
		}

		if grossProfitUSD <= 0 {
			continue
		}

		gasPrice, err := h.gasPriceWei(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("arb: gas price lookup failed, skipping profit check")
			continue
		}
		gasCostWei := new(big.Int).Mul(big.NewInt(500_000), gasPrice)
		netProfitUSD := util.EstimateNetProfitUSD(grossProfitUSD, gasCostWei, h.ethPriceUSD())

		if netProfitUSD >= h.minProfitUSD {
			opportunities = append(opportunities, Opportunity{
				Route:           route,
				FlashloanAmount: h.flashloanAmount,
				AmountOut:       amountOutUSDC,
				GrossProfitUSD:  grossProfitUSD,
				NetProfitUSD:    netProfitUSD,
			})
		}
	}

	return opportunities, nil
}

func usdcToFloat(raw *big.Int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(raw), big.NewFloat(1_000_000)).Float64()
	return f
}

func (h *TwoLegHunter) emit(kind arbengine.EventKind, height uint64, fingerprint string, gross, net float64, msg string) {
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
