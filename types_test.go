package arbengine

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoute_Fingerprint_TwoLeg(t *testing.T) {
	route := Route{Legs: []RouteLeg{
		{TokenIn: "USDC", TokenOut: "WETH", Venue: "uniswap-v3"},
		{TokenIn: "WETH", TokenOut: "USDC", Venue: "camelot"},
	}}
	assert.Equal(t, "USDC-WETH-USDC/uniswap-v3-camelot", route.Fingerprint())
}

func TestRoute_Fingerprint_TriLeg(t *testing.T) {
	route := Route{Legs: []RouteLeg{
		{TokenIn: "USDC", TokenOut: "WETH", Venue: "uniswap-v3"},
		{TokenIn: "WETH", TokenOut: "WBTC", Venue: "camelot"},
		{TokenIn: "WBTC", TokenOut: "USDC", Venue: "uniswap-v3"},
	}}
	assert.Equal(t, "USDC-WETH-WBTC-USDC/uniswap-v3-camelot-uniswap-v3", route.Fingerprint())
}

func TestRoute_Fingerprint_EmptyRoute(t *testing.T) {
	assert.Equal(t, "", Route{}.Fingerprint())
}

func TestVenue_SlotOf(t *testing.T) {
	venue := Venue{
		Name:        "curve-usdc-usdt",
		Kind:        KindStableCurvePool,
		StableSlots: map[string]int{"USDC": 0, "USDT": 1},
	}

	slot, ok := venue.SlotOf("USDT")
	assert.True(t, ok)
	assert.Equal(t, 1, slot)

	_, ok = venue.SlotOf("WETH")
	assert.False(t, ok)
}

func TestVenue_SlotOf_NilSlotsMap(t *testing.T) {
	venue := Venue{Name: "uniswap-v3", Kind: KindConstantProductV3}
	_, ok := venue.SlotOf("USDC")
	assert.False(t, ok)
}

func TestAssetBalance_FieldsSurviveRoundTrip(t *testing.T) {
	balance := AssetBalance{
		Underlying:   big.NewInt(1000),
		VariableDebt: big.NewInt(500),
		StableDebt:   big.NewInt(0),
		PriceUSD18:   big.NewInt(2000),
	}
	assert.Equal(t, 0, balance.Underlying.Cmp(big.NewInt(1000)))
}
