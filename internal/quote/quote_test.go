package quote

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantablack-labs/arbengine"
	"github.com/vantablack-labs/arbengine/pkg/contractclient"
)

func TestConstantProductV3Quoter_RoundTrip(t *testing.T) {
	q := ConstantProductV3Quoter{}
	weth := arbengine.Token{Symbol: "WETH", Address: common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1")}
	usdc := arbengine.Token{Symbol: "USDC", Address: common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831")}
	leg := arbengine.RouteLeg{TokenIn: "WETH", TokenOut: "USDC", Venue: "Uniswap_V3", Fee: 500}

	data, err := q.EncodeQuote(arbengine.Venue{}, leg, weth, usdc, big.NewInt(1e18))
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	packedOut, err := quoterV2ABI.Methods["quoteExactInputSingle"].Outputs.Pack(big.NewInt(3000_000000), big.NewInt(0), uint32(0), big.NewInt(0))
	require.NoError(t, err)

	amountOut, err := q.DecodeQuote(packedOut)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(3000_000000), amountOut)
}

func TestConstantProductV3Quoter_FailedDecodeReturnsZero(t *testing.T) {
	q := ConstantProductV3Quoter{}
	amountOut, err := q.DecodeQuote([]byte{0xde, 0xad})
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(0), amountOut)
}

func TestAlgebraDynamicFeeQuoter_RoundTrip(t *testing.T) {
	q := AlgebraDynamicFeeQuoter{}
	weth := arbengine.Token{Address: common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1")}
	grail := arbengine.Token{Address: common.HexToAddress("0x3d9907F9a368ad0a51Be60f7Da3b97cf940982D8")}

	data, err := q.EncodeQuote(arbengine.Venue{}, arbengine.RouteLeg{}, weth, grail, big.NewInt(1e18))
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	packedOut, err := algebraQuoterABI.Methods["quoteExactInputSingle"].Outputs.Pack(big.NewInt(500_000000000000000), uint16(300))
	require.NoError(t, err)

	amountOut, err := q.DecodeQuote(packedOut)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(500_000000000000000), amountOut)
}

func TestStableCurvePoolQuoter_UsesSlots(t *testing.T) {
	q := StableCurvePoolQuoter{}
	venue := arbengine.Venue{Name: "CurveUSD", StableSlots: map[string]int{"USDC": 0, "USDT": 1}}
	leg := arbengine.RouteLeg{TokenIn: "USDC", TokenOut: "USDT"}

	data, err := q.EncodeQuote(venue, leg, arbengine.Token{}, arbengine.Token{}, big.NewInt(1_000000))
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestStableCurvePoolQuoter_MissingSlotErrors(t *testing.T) {
	q := StableCurvePoolQuoter{}
	venue := arbengine.Venue{Name: "CurveUSD", StableSlots: map[string]int{"USDC": 0}}
	leg := arbengine.RouteLeg{TokenIn: "USDC", TokenOut: "DAI"}

	_, err := q.EncodeQuote(venue, leg, arbengine.Token{}, arbengine.Token{}, big.NewInt(1))
	assert.Error(t, err)
}

// fakeMulticallBackend answers CallContract for the Multicall3 address
// with a pre-baked tryAggregate response, regardless of the packed
// call data, so engine-level batching/decoding can be tested without a
// live node.
type fakeMulticallBackend struct {
	results []Result
}

func (f *fakeMulticallBackend) CallContract(_ context.Context, _ ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	type item struct {
		Success    bool
		ReturnData []byte
	}
	items := make([]item, len(f.results))
	for i, r := range f.results {
		items[i] = item{Success: r.Success, ReturnData: r.ReturnData}
	}
	return Multicall3ABI.Methods["tryAggregate"].Outputs.Pack(items)
}

func (f *fakeMulticallBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) { return 0, nil }
func (f *fakeMulticallBackend) SuggestGasTipCap(context.Context) (*big.Int, error)              { return big.NewInt(0), nil }
func (f *fakeMulticallBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{BaseFee: big.NewInt(0)}, nil
}
func (f *fakeMulticallBackend) SendTransaction(context.Context, *types.Transaction) error { return nil }
func (f *fakeMulticallBackend) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return nil, nil
}
func (f *fakeMulticallBackend) ChainID(context.Context) (*big.Int, error)               { return big.NewInt(42161), nil }
func (f *fakeMulticallBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) { return 0, nil }

func TestEngine_QuoteLegs_FailedCallDecodesToZero(t *testing.T) {
	okData, err := quoterV2ABI.Methods["quoteExactInputSingle"].Outputs.Pack(big.NewInt(42), big.NewInt(0), uint32(0), big.NewInt(0))
	require.NoError(t, err)

	backend := &fakeMulticallBackend{results: []Result{
		{Success: true, ReturnData: okData},
		{Success: false, ReturnData: nil},
	}}
	client := contractclient.New(backend, Multicall3Address, Multicall3ABI)

	venues := map[string]arbengine.Venue{
		"Uniswap_V3": {Name: "Uniswap_V3", Kind: arbengine.KindConstantProductV3, QuoterAddress: common.HexToAddress("0x1")},
	}
	tokens := map[string]arbengine.Token{
		"WETH": {Symbol: "WETH", Address: common.HexToAddress("0x2")},
		"USDC": {Symbol: "USDC", Address: common.HexToAddress("0x3")},
	}
	engine := NewEngine(client, venues)

	legs := []arbengine.RouteLeg{
		{TokenIn: "WETH", TokenOut: "USDC", Venue: "Uniswap_V3", Fee: 500},
		{TokenIn: "WETH", TokenOut: "USDC", Venue: "Uniswap_V3", Fee: 3000},
	}

	amountsOut, err := engine.QuoteLegsUniform(context.Background(), tokens, legs, big.NewInt(1e18), TwoLegGas)
	require.NoError(t, err)
	require.Len(t, amountsOut, 2)
	assert.Equal(t, big.NewInt(42), amountsOut[0])
	assert.Equal(t, big.NewInt(0), amountsOut[1])
}

func TestEngine_QuoteLegs_UnknownVenueErrors(t *testing.T) {
	backend := &fakeMulticallBackend{}
	client := contractclient.New(backend, Multicall3Address, Multicall3ABI)
	engine := NewEngine(client, map[string]arbengine.Venue{})

	_, err := engine.QuoteLegsUniform(context.Background(), map[string]arbengine.Token{}, []arbengine.RouteLeg{{Venue: "ghost"}}, big.NewInt(1), TwoLegGas)
	assert.Error(t, err)
}
