package main

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/vantablack-labs/arbengine"
	"github.com/vantablack-labs/arbengine/internal/arb"
)

// buildGraph returns the static token/venue universe: USDC-anchored
// routes across Arbitrum One's largest constant-product, Algebra-style,
// and Curve-style venues, matching arb_engine.py/tri_arb_engine.py's
// DEXES/TOKENS registries. Both arb hunters build one quote per entry
// in a venue's FeeTiers; camelot and curve-usdc-usdt list no fee tiers,
// so scans quote uniswap-v3 only.
func buildGraph() *arb.Graph {
	tokens := map[string]arbengine.Token{
		"USDC": {Symbol: "USDC", Address: common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831"), Decimals: 6},
		"WETH": {Symbol: "WETH", Address: common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1"), Decimals: 18},
		"WBTC": {Symbol: "WBTC", Address: common.HexToAddress("0x2f2a2543B76A4166549F7aaB2e75Bef0aefC5B0f"), Decimals: 8},
		"ARB":  {Symbol: "ARB", Address: common.HexToAddress("0x912CE59144191C1204E64559FE8253a0e49E6548"), Decimals: 18},
		"USDT": {Symbol: "USDT", Address: common.HexToAddress("0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9"), Decimals: 6},
	}

	venues := map[string]arbengine.Venue{
		"uniswap-v3": {
			Name:          "uniswap-v3",
			QuoterAddress: common.HexToAddress("0x61fFE014bA17989E743c5F6cB21bF9697530B21e"),
			RouterAddress: common.HexToAddress("0xE592427A0AEce92De3Edee1F18E0157C05861564"),
			Kind:          arbengine.KindConstantProductV3,
			FeeTiers:      []uint32{100, 500, 3000, 10000},
		},
		"camelot": {
			Name:          "camelot",
			QuoterAddress: common.HexToAddress("0x0Fc73040b26E9bC8514fA028D998E73A254Fa76E"),
			RouterAddress: common.HexToAddress("0x1F721E2E82F6676FCE4eA07A5958cF098D339e18"),
			Kind:          arbengine.KindAlgebraDynamicFee,
		},
		"curve-usdc-usdt": {
			Name:          "curve-usdc-usdt",
			QuoterAddress: common.HexToAddress("0x7f90122BF0700F9E7e1F688fe926940E8839F353"),
			RouterAddress: common.HexToAddress("0x7f90122BF0700F9E7e1F688fe926940E8839F353"),
			Kind:          arbengine.KindStableCurvePool,
			StableSlots:   map[string]int{"USDC": 0, "USDT": 1},
		},
	}

	return &arb.Graph{Tokens: tokens, Venues: venues, BaseToken: "USDC"}
}

// hubTokens are the intermediate symbols tri-leg routes are allowed to
// pass through besides the base token, matching tri_arb_engine.py's
// HUB_TOKENS.
func hubTokens() []string {
	return []string{"WETH", "ARB"}
}

// aaveReserves/compoundCTokens are the lending markets each liquidation
// hunter watches, matching radiant_bot.py/lodestar_bot.py's RESERVES/
// CTOKENS constants.
func aaveReserves() []common.Address {
	return []common.Address{
		common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831"), // USDC
		common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1"), // WETH
		common.HexToAddress("0x2f2a2543B76A4166549F7aaB2e75Bef0aefC5B0f"), // WBTC
	}
}

func compoundCTokens() []common.Address {
	return []common.Address{
		common.HexToAddress("0x1ca530f02DD0487cef4943c674342c5aEa08922F"), // usdcArb cToken
		common.HexToAddress("0xC37896BF3EE5a2c62Cdbd674035069776f721668"), // ethArb cToken
	}
}

func aavePool() common.Address {
	return common.HexToAddress("0x794a61358D6845594F94dc1DB02A252b5b4814aD")
}

func aaveDataProvider() common.Address {
	return common.HexToAddress("0x69FA688f1Dc47d4B5d8029D5a35FB7a548310654")
}

func compoundComptroller() common.Address {
	return common.HexToAddress("0x60f4c440f68e69EF7bb7eB1Bef0BbFA7a4e0Dca0")
}
