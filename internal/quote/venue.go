// Package quote encodes/decodes DEX quote calls across the three ABI
// shapes this engine trades against — UniV3-style QuoterV2, Algebra's
// dynamic-fee quoter, and Curve-style stable pools — and aggregates
// them through Multicall3, matching arb_engine.py's DEXES registry and
// quoteExactInputSingle callers but dispatched through one Quoter
// interface per arbengine.VenueKind instead of an if/elif ladder.
package quote

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/vantablack-labs/arbengine"
)

// Quoter packs and unpacks a single-hop quote call for one venue kind.
type Quoter interface {
	Kind() arbengine.VenueKind
	EncodeQuote(venue arbengine.Venue, leg arbengine.RouteLeg, tokenIn, tokenOut arbengine.Token, amountIn *big.Int) ([]byte, error)
	DecodeQuote(data []byte) (*big.Int, error)
}

const quoterV2ABIJSON = `[
	{
		"inputs": [
			{
				"components": [
					{"name": "tokenIn", "type": "address"},
					{"name": "tokenOut", "type": "address"},
					{"name": "amountIn", "type": "uint256"},
					{"name": "fee", "type": "uint24"},
					{"name": "sqrtPriceLimitX96", "type": "uint160"}
				],
				"name": "params",
				"type": "tuple"
			}
		],
		"name": "quoteExactInputSingle",
		"outputs": [
			{"name": "amountOut", "type": "uint256"},
			{"name": "sqrtPriceX96After", "type": "uint160"},
			{"name": "initializedTicksCrossed", "type": "uint32"},
			{"name": "gasEstimate", "type": "uint256"}
		],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

const algebraQuoterABIJSON = `[
	{
		"inputs": [
			{"name": "tokenIn", "type": "address"},
			{"name": "tokenOut", "type": "address"},
			{"name": "amountIn", "type": "uint256"},
			{"name": "limitSqrtPrice", "type": "uint160"}
		],
		"name": "quoteExactInputSingle",
		"outputs": [
			{"name": "amountOut", "type": "uint256"},
			{"name": "fee", "type": "uint16"}
		],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

const curvePoolABIJSON = `[
	{
		"inputs": [
			{"name": "i", "type": "int128"},
			{"name": "j", "type": "int128"},
			{"name": "dx", "type": "uint256"}
		],
		"name": "get_dy",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

func mustParseABI(jsonStr string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(jsonStr))
	if err != nil {
		panic(fmt.Sprintf("quote: invalid ABI literal: %v", err))
	}
	return parsed
}

var (
	quoterV2ABI    = mustParseABI(quoterV2ABIJSON)
	algebraQuoterABI = mustParseABI(algebraQuoterABIJSON)
	curvePoolABI   = mustParseABI(curvePoolABIJSON)
)

// ConstantProductV3Quoter covers UniV3-fork QuoterV2 contracts
// (Uniswap V3, SushiSwap V3 on Arbitrum): quoteExactInputSingle with an
// explicit fee tier and a zero sqrtPriceLimitX96 for unconstrained
// quoting.
type ConstantProductV3Quoter struct{}

func (ConstantProductV3Quoter) Kind() arbengine.VenueKind { return arbengine.KindConstantProductV3 }

func (ConstantProductV3Quoter) EncodeQuote(_ arbengine.Venue, leg arbengine.RouteLeg, tokenIn, tokenOut arbengine.Token, amountIn *big.Int) ([]byte, error) {
	params := struct {
		TokenIn           common.Address
		TokenOut          common.Address
		AmountIn          *big.Int
		Fee               *big.Int
		SqrtPriceLimitX96 *big.Int
	}{
		TokenIn:           tokenIn.Address,
		TokenOut:          tokenOut.Address,
		AmountIn:          amountIn,
		Fee:               new(big.Int).SetUint64(uint64(leg.Fee)),
		SqrtPriceLimitX96: big.NewInt(0),
	}
	return quoterV2ABI.Pack("quoteExactInputSingle", params)
}

func (ConstantProductV3Quoter) DecodeQuote(data []byte) (*big.Int, error) {
	vals, err := quoterV2ABI.Methods["quoteExactInputSingle"].Outputs.Unpack(data)
	if err != nil {
		return big.NewInt(0), nil // failed decode treated as a zero quote, never an error
	}
	amountOut, ok := vals[0].(*big.Int)
	if !ok {
		return big.NewInt(0), nil
	}
	return amountOut, nil
}

// AlgebraDynamicFeeQuoter covers Camelot's Algebra-fork quoter, which
// has no fee parameter since fees are computed dynamically on-pool.
type AlgebraDynamicFeeQuoter struct{}

func (AlgebraDynamicFeeQuoter) Kind() arbengine.VenueKind { return arbengine.KindAlgebraDynamicFee }

func (AlgebraDynamicFeeQuoter) EncodeQuote(_ arbengine.Venue, _ arbengine.RouteLeg, tokenIn, tokenOut arbengine.Token, amountIn *big.Int) ([]byte, error) {
	return algebraQuoterABI.Pack("quoteExactInputSingle", tokenIn.Address, tokenOut.Address, amountIn, big.NewInt(0))
}

func (AlgebraDynamicFeeQuoter) DecodeQuote(data []byte) (*big.Int, error) {
	vals, err := algebraQuoterABI.Methods["quoteExactInputSingle"].Outputs.Unpack(data)
	if err != nil {
		return big.NewInt(0), nil
	}
	amountOut, ok := vals[0].(*big.Int)
	if !ok {
		return big.NewInt(0), nil
	}
	return amountOut, nil
}

// StableCurvePoolQuoter covers Curve-style stable pools addressed by
// integer slot rather than token address; Venue.StableSlots maps a
// token symbol to its slot.
type StableCurvePoolQuoter struct{}

func (StableCurvePoolQuoter) Kind() arbengine.VenueKind { return arbengine.KindStableCurvePool }

func (StableCurvePoolQuoter) EncodeQuote(venue arbengine.Venue, leg arbengine.RouteLeg, _, _ arbengine.Token, amountIn *big.Int) ([]byte, error) {
	i, ok := venue.SlotOf(leg.TokenIn)
	if !ok {
		return nil, fmt.Errorf("quote: no curve slot for %s on venue %s", leg.TokenIn, venue.Name)
	}
	j, ok := venue.SlotOf(leg.TokenOut)
	if !ok {
		return nil, fmt.Errorf("quote: no curve slot for %s on venue %s", leg.TokenOut, venue.Name)
	}
	return curvePoolABI.Pack("get_dy", big.NewInt(int64(i)), big.NewInt(int64(j)), amountIn)
}

func (StableCurvePoolQuoter) DecodeQuote(data []byte) (*big.Int, error) {
	vals, err := curvePoolABI.Unpack("get_dy", data)
	if err != nil {
		return big.NewInt(0), nil
	}
	amountOut, ok := vals[0].(*big.Int)
	if !ok {
		return big.NewInt(0), nil
	}
	return amountOut, nil
}

// Registry maps a VenueKind to the Quoter that speaks its ABI.
func Registry() map[arbengine.VenueKind]Quoter {
	return map[arbengine.VenueKind]Quoter{
		arbengine.KindConstantProductV3: ConstantProductV3Quoter{},
		arbengine.KindAlgebraDynamicFee: AlgebraDynamicFeeQuoter{},
		arbengine.KindStableCurvePool:   StableCurvePoolQuoter{},
	}
}
