package quote

import (
	"context"
	"fmt"
	"math/big"

	"github.com/vantablack-labs/arbengine"
	"github.com/vantablack-labs/arbengine/pkg/contractclient"
)

// Gas overrides for tryAggregate batches, sized for the worst-case
// leg count per route shape (two-leg scans one hop per DEX per token,
// tri-leg scans two hops across three stages).
const (
	TwoLegGas = 50_000_000
	TriLegGas = 300_000_000
)

// Engine quotes route legs across a venue set via Multicall3.
type Engine struct {
	client  *contractclient.Client
	venues  map[string]arbengine.Venue
	quoters map[arbengine.VenueKind]Quoter
}

// NewEngine builds an Engine bound to a Multicall3 contractclient and a
// venue registry keyed by venue name (matching arb_engine.py's DEXES).
func NewEngine(client *contractclient.Client, venues map[string]arbengine.Venue) *Engine {
	return &Engine{client: client, venues: venues, quoters: Registry()}
}

// QuoteLegsUniform applies the same amountIn to every leg — the shape
// of a Leg A batch, where every quote starts from the fixed flashloan
// size.
func (e *Engine) QuoteLegsUniform(ctx context.Context, tokens map[string]arbengine.Token, legs []arbengine.RouteLeg, amountIn *big.Int, gas uint64) ([]*big.Int, error) {
	amounts := make([]*big.Int, len(legs))
	for i := range amounts {
		amounts[i] = amountIn
	}
	return e.QuoteLegs(ctx, tokens, legs, amounts, gas)
}

// QuoteLegs packs one quote call per leg using the matching entry of
// amountsIn, aggregates them in one (or several, if over ChunkSize)
// tryAggregate batches at gas, and decodes each result. A reverted or
// malformed call decodes to amountOut=0 rather than failing the whole
// batch — callers filter zero quotes.
func (e *Engine) QuoteLegs(ctx context.Context, tokens map[string]arbengine.Token, legs []arbengine.RouteLeg, amountsIn []*big.Int, gas uint64) ([]*big.Int, error) {
	if len(amountsIn) != len(legs) {
		return nil, fmt.Errorf("quote: amountsIn length %d does not match legs length %d", len(amountsIn), len(legs))
	}

	calls := make([]Call, len(legs))
	legQuoters := make([]Quoter, len(legs))

	for i, leg := range legs {
		venue, ok := e.venues[leg.Venue]
		if !ok {
			return nil, fmt.Errorf("quote: unknown venue %q", leg.Venue)
		}
		quoter, ok := e.quoters[venue.Kind]
		if !ok {
			return nil, fmt.Errorf("quote: no quoter registered for venue kind %q", venue.Kind)
		}
		tokenIn, ok := tokens[leg.TokenIn]
		if !ok {
			return nil, fmt.Errorf("quote: unknown token %q", leg.TokenIn)
		}
		tokenOut, ok := tokens[leg.TokenOut]
		if !ok {
			return nil, fmt.Errorf("quote: unknown token %q", leg.TokenOut)
		}

		data, err := quoter.EncodeQuote(venue, leg, tokenIn, tokenOut, amountsIn[i])
		if err != nil {
			return nil, fmt.Errorf("quote: encode leg %s->%s on %s: %w", leg.TokenIn, leg.TokenOut, leg.Venue, err)
		}

		calls[i] = Call{Target: venue.QuoterAddress, CallData: data}
		legQuoters[i] = quoter
	}

	results, err := TryAggregate(ctx, e.client, false, calls, gas)
	if err != nil {
		return nil, err
	}

	amountsOut := make([]*big.Int, len(legs))
	for i, r := range results {
		if !r.Success {
			amountsOut[i] = big.NewInt(0)
			continue
		}
		amountsOut[i], err = legQuoters[i].DecodeQuote(r.ReturnData)
		if err != nil {
			amountsOut[i] = big.NewInt(0)
		}
	}
	return amountsOut, nil
}

// Venue looks up a configured venue by name.
func (e *Engine) Venue(name string) (arbengine.Venue, bool) {
	v, ok := e.venues[name]
	return v, ok
}
