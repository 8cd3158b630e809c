// Package executor turns a scored arb.Opportunity or a
// liquidation.Candidate into a signed, broadcast, and confirmed
// on-chain transaction: building flashloan calldata the way
// arb_engine.py's execute_arbitrage/tri_arb_engine.py's
// execute_triangular_arb/radiant_bot.py's execute_liquidation do, then
// simulating with eth_call before ever signing.
package executor

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/vantablack-labs/arbengine"
)

func mustParseABI(jsonStr string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(jsonStr))
	if err != nil {
		panic(fmt.Sprintf("executor: invalid ABI literal: %v", err))
	}
	return parsed
}

// SwapRouterABI is UniV3 SwapRouter02's exactInputSingle, the router
// call two-leg payloads and non-Curve tri-leg hops embed.
var SwapRouterABI = mustParseABI(`[{
	"inputs": [{
		"components": [
			{"name": "tokenIn", "type": "address"},
			{"name": "tokenOut", "type": "address"},
			{"name": "fee", "type": "uint24"},
			{"name": "recipient", "type": "address"},
			{"name": "amountIn", "type": "uint256"},
			{"name": "amountOutMinimum", "type": "uint256"},
			{"name": "sqrtPriceLimitX96", "type": "uint160"}
		],
		"name": "params",
		"type": "tuple"
	}],
	"name": "exactInputSingle",
	"outputs": [{"name": "amountOut", "type": "uint256"}],
	"stateMutability": "payable",
	"type": "function"
}]`)

// CurvePoolABI is the stable-pool exchange() signature tri-leg routes
// fall back to for a Curve-type hop.
var CurvePoolABI = mustParseABI(`[{
	"inputs": [
		{"name": "i", "type": "int128"},
		{"name": "j", "type": "int128"},
		{"name": "dx", "type": "uint256"},
		{"name": "min_dy", "type": "uint256"}
	],
	"name": "exchange",
	"outputs": [{"name": "", "type": "uint256"}],
	"stateMutability": "payable",
	"type": "function"
}]`)

// DexArbitrageurABI is the two-leg flashloan receiver's
// requestFlashLoan(token, amount, params) signature.
var DexArbitrageurABI = mustParseABI(`[{
	"inputs": [
		{"name": "_token", "type": "address"},
		{"name": "_amount", "type": "uint256"},
		{"name": "_params", "type": "bytes"}
	],
	"name": "requestFlashLoan",
	"outputs": [],
	"stateMutability": "nonpayable",
	"type": "function"
}]`)

// TriArbitrageurABI is the tri-leg flashloan receiver's
// requestFlashLoan(token, amount, routes[]) signature, where each
// route is (router, tokenIn, payload).
var TriArbitrageurABI = mustParseABI(`[{
	"inputs": [
		{"name": "_token", "type": "address"},
		{"name": "_amount", "type": "uint256"},
		{
			"components": [
				{"name": "router", "type": "address"},
				{"name": "tokenIn", "type": "address"},
				{"name": "payload", "type": "bytes"}
			],
			"name": "_routes",
			"type": "tuple[]"
		}
	],
	"name": "requestFlashLoan",
	"outputs": [],
	"stateMutability": "nonpayable",
	"type": "function"
}]`)

// LiquidatorFlashLoanABI is the Aave-V2/Compound-V2-style liquidator
// contract's requestFlashLoan(user, debtAsset, collateralAsset,
// debtAmount, fee, amountOutMinimum, sqrtPriceLimitX96) signature,
// shared by both radiant_bot.py and lodestar_bot.py's contracts.
var LiquidatorFlashLoanABI = mustParseABI(`[{
	"inputs": [
		{"name": "_userToLiquidate", "type": "address"},
		{"name": "_debtAsset", "type": "address"},
		{"name": "_collateralAsset", "type": "address"},
		{"name": "_debtAmount", "type": "uint256"},
		{"name": "_fee", "type": "uint24"},
		{"name": "_amountOutMinimum", "type": "uint256"},
		{"name": "_sqrtPriceLimitX96", "type": "uint160"}
	],
	"name": "requestFlashLoan",
	"outputs": [],
	"stateMutability": "nonpayable",
	"type": "function"
}]`)

// legASlippageBps is the 0.5% tolerance shaved off a quoted amountOut
// before it becomes the on-chain amountOutMinimum, matching
// arb_engine.py's LEG_A_SLIPPAGE_BPS / tri_arb_engine.py's identical
// constant.
const legASlippageBps = 50

// AaveFlashloanFeeBps mirrors arb.AaveFlashloanFeeBps; duplicated here
// (not imported) so executor has no compile-time dependency on the
// hunter package, only on the Opportunity/Route values it receives.
const AaveFlashloanFeeBps = 5

func applySlippage(amount *big.Int, toleranceBps int64) *big.Int {
	out := new(big.Int).Mul(amount, big.NewInt(10000-toleranceBps))
	return out.Div(out, big.NewInt(10000))
}

// BuildV3SwapPayload encodes an exactInputSingle call against a UniV3
// fork router, recipient set to the flashloan contract itself so the
// swap's output lands back in the contract's custody for the next hop
// or the final repay.
func BuildV3SwapPayload(tokenIn, tokenOut, recipient common.Address, fee uint32, amountIn, amountOutMinimum *big.Int) ([]byte, error) {
	params := struct {
		TokenIn           common.Address
		TokenOut          common.Address
		Fee               *big.Int
		Recipient         common.Address
		AmountIn          *big.Int
		AmountOutMinimum  *big.Int
		SqrtPriceLimitX96 *big.Int
	}{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		Fee:               new(big.Int).SetUint64(uint64(fee)),
		Recipient:         recipient,
		AmountIn:          amountIn,
		AmountOutMinimum:  amountOutMinimum,
		SqrtPriceLimitX96: big.NewInt(0),
	}
	data, err := SwapRouterABI.Pack("exactInputSingle", params)
	if err != nil {
		return nil, fmt.Errorf("executor: pack exactInputSingle: %w", err)
	}
	return data, nil
}

// BuildCurveSwapPayload encodes a Curve-style exchange(i, j, dx,
// min_dy) call for a stable-pool hop.
func BuildCurveSwapPayload(slotIn, slotOut int, amountIn, amountOutMinimum *big.Int) ([]byte, error) {
	data, err := CurvePoolABI.Pack("exchange", big.NewInt(int64(slotIn)), big.NewInt(int64(slotOut)), amountIn, amountOutMinimum)
	if err != nil {
		return nil, fmt.Errorf("executor: pack curve exchange: %w", err)
	}
	return data, nil
}

// TwoLegPayload is the fully-resolved calldata and routers needed to
// assemble a DexArbitrageur.requestFlashLoan call.
type TwoLegPayload struct {
	BuyRouter, SellRouter common.Address
	DataA, DataB          []byte
	TokenOut              common.Address
}

// ArbParamsABI matches ArbParams' tuple shape — (buyRouter, dataA,
// sellRouter, dataB, tokenOut) — encoded as opaque bytes and passed as
// requestFlashLoan's _params argument.
var ArbParamsABI = mustParseABI(`[{
	"inputs": [{
		"components": [
			{"name": "buyRouter", "type": "address"},
			{"name": "dataA", "type": "bytes"},
			{"name": "sellRouter", "type": "address"},
			{"name": "dataB", "type": "bytes"},
			{"name": "tokenOut", "type": "address"}
		],
		"name": "p",
		"type": "tuple"
	}],
	"name": "encode",
	"outputs": [],
	"stateMutability": "pure",
	"type": "function"
}]`)

// BuildTwoLegFlashLoanCalldata assembles a full
// DexArbitrageur.requestFlashLoan(USDC, flashloanAmount, arbParams)
// call from a scored two-leg opportunity. buyRouter/sellRouter are the
// venues' RouterAddress, tokenOut is the intermediate token's address;
// feeA/feeB are each leg's own winning fee tier, threaded through
// independently rather than shared across both legs.
func BuildTwoLegFlashLoanCalldata(contract, usdc, buyRouter, sellRouter, tokenOut common.Address, flashloanAmount, legAOut *big.Int, feeA, feeB uint32) ([]byte, error) {
	legAMinOut := applySlippage(legAOut, legASlippageBps)
	dataA, err := BuildV3SwapPayload(usdc, tokenOut, contract, feeA, flashloanAmount, legAMinOut)
	if err != nil {
		return nil, err
	}

	flashloanFee := new(big.Int).Div(new(big.Int).Mul(flashloanAmount, big.NewInt(AaveFlashloanFeeBps)), big.NewInt(10000))
	minRepay := new(big.Int).Add(flashloanAmount, flashloanFee)
	dataB, err := BuildV3SwapPayload(tokenOut, usdc, contract, feeB, legAOut, minRepay)
	if err != nil {
		return nil, err
	}

	argsData, err := ArbParamsABI.Methods["encode"].Inputs.Pack(struct {
		BuyRouter  common.Address
		DataA      []byte
		SellRouter common.Address
		DataB      []byte
		TokenOut   common.Address
	}{buyRouter, dataA, sellRouter, dataB, tokenOut})
	if err != nil {
		return nil, fmt.Errorf("executor: pack arb params: %w", err)
	}

	calldata, err := DexArbitrageurABI.Pack("requestFlashLoan", usdc, flashloanAmount, argsData)
	if err != nil {
		return nil, fmt.Errorf("executor: pack requestFlashLoan: %w", err)
	}
	return calldata, nil
}

// TriLegRoute is one hop of a tri-leg flashloan's route array.
type TriLegRoute struct {
	Router   common.Address
	TokenIn  common.Address
	Payload  []byte
}

// BuildTriLegFlashLoanCalldata assembles
// TriArbitrageur.requestFlashLoan(USDC, flashloanAmount, routes) from
// three already-encoded hop payloads, matching
// execute_triangular_arb's route_structs assembly.
func BuildTriLegFlashLoanCalldata(usdc common.Address, flashloanAmount *big.Int, routes []TriLegRoute) ([]byte, error) {
	if len(routes) != 3 {
		return nil, fmt.Errorf("executor: tri-leg flashloan requires exactly 3 routes, got %d", len(routes))
	}

	tupleRoutes := make([]struct {
		Router  common.Address
		TokenIn common.Address
		Payload []byte
	}, len(routes))
	for i, r := range routes {
		tupleRoutes[i] = struct {
			Router  common.Address
			TokenIn common.Address
			Payload []byte
		}{r.Router, r.TokenIn, r.Payload}
	}

	calldata, err := TriArbitrageurABI.Pack("requestFlashLoan", usdc, flashloanAmount, tupleRoutes)
	if err != nil {
		return nil, fmt.Errorf("executor: pack tri-leg requestFlashLoan: %w", err)
	}
	return calldata, nil
}

// BuildLiquidationCalldata assembles a
// Liquidator.requestFlashLoan(user, debtAsset, collateralAsset,
// debtAmount, fee, amountOutMinimum, sqrtPriceLimitX96) call from a
// resolved liquidation candidate, matching both bots'
// execute_liquidation transaction construction.
func BuildLiquidationCalldata(user, debtAsset, collateralAsset common.Address, debtAmount *big.Int, fee uint32, amountOutMinimum, sqrtPriceLimitX96 *big.Int) ([]byte, error) {
	calldata, err := LiquidatorFlashLoanABI.Pack(
		"requestFlashLoan",
		user, debtAsset, collateralAsset, debtAmount,
		new(big.Int).SetUint64(uint64(fee)), amountOutMinimum, sqrtPriceLimitX96,
	)
	if err != nil {
		return nil, fmt.Errorf("executor: pack liquidation requestFlashLoan: %w", err)
	}
	return calldata, nil
}

// RouteLeg thinly re-exports arbengine.RouteLeg so callers building a
// TwoLegPayload from an arb.Opportunity's Route don't need an extra
// conversion type.
type RouteLeg = arbengine.RouteLeg

// BuildTriLegRoutes resolves a scored tri-leg arbengine.Route (3 legs,
// USDC -> sym1 -> sym2 -> USDC) against the live token/venue registry
// into the three swap payloads ExecuteTriLeg needs, applying 50 bps
// slippage on the first two hops and a flashloan-plus-fee minimum on
// the terminal hop, matching execute_triangular_arb's per-leg
// tolerance. Each leg dispatches through a V3-style exactInputSingle
// or a Curve-style exchange() depending on that leg's venue kind.
func BuildTriLegRoutes(route arbengine.Route, tokens map[string]arbengine.Token, venues map[string]arbengine.Venue, contract common.Address, flashloanAmount, totalRepayMin *big.Int) ([]TriLegRoute, error) {
	if len(route.Legs) != 3 {
		return nil, fmt.Errorf("executor: tri-leg route requires exactly 3 legs, got %d", len(route.Legs))
	}

	amountIn := flashloanAmount
	routes := make([]TriLegRoute, 3)
	for i, leg := range route.Legs {
		venue, ok := venues[leg.Venue]
		if !ok {
			return nil, fmt.Errorf("executor: unknown venue %q", leg.Venue)
		}
		tokenIn, ok := tokens[leg.TokenIn]
		if !ok {
			return nil, fmt.Errorf("executor: unknown token %q", leg.TokenIn)
		}
		tokenOut, ok := tokens[leg.TokenOut]
		if !ok {
			return nil, fmt.Errorf("executor: unknown token %q", leg.TokenOut)
		}

		var amountOutMinimum *big.Int
		if i == len(route.Legs)-1 {
			amountOutMinimum = totalRepayMin
		} else {
			amountOutMinimum = applySlippage(leg.AmountOut, legASlippageBps)
		}

		var payload []byte
		var err error
		switch venue.Kind {
		case arbengine.KindStableCurvePool:
			slotIn, ok := venue.SlotOf(leg.TokenIn)
			if !ok {
				return nil, fmt.Errorf("executor: venue %q has no curve slot for %q", leg.Venue, leg.TokenIn)
			}
			slotOut, ok := venue.SlotOf(leg.TokenOut)
			if !ok {
				return nil, fmt.Errorf("executor: venue %q has no curve slot for %q", leg.Venue, leg.TokenOut)
			}
			payload, err = BuildCurveSwapPayload(slotIn, slotOut, amountIn, amountOutMinimum)
		default:
			payload, err = BuildV3SwapPayload(tokenIn.Address, tokenOut.Address, contract, leg.Fee, amountIn, amountOutMinimum)
		}
		if err != nil {
			return nil, fmt.Errorf("executor: tri-leg hop %d: %w", i, err)
		}

		routes[i] = TriLegRoute{Router: venue.RouterAddress, TokenIn: tokenIn.Address, Payload: payload}
		amountIn = leg.AmountOut
	}
	return routes, nil
}
