package arb

import (
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantablack-labs/arbengine"
	"github.com/vantablack-labs/arbengine/internal/quote"
	"github.com/vantablack-labs/arbengine/pkg/contractclient"
)

// quoterOutputsABI mirrors QuoterV2's quoteExactInputSingle outputs
// shape so tests can pack a fake return value without reaching into
// the quote package's unexported ABI literal.
var quoterOutputsABI = mustParseTestABI(`[{
	"inputs": [],
	"name": "quoteExactInputSingle",
	"outputs": [
		{"name": "amountOut", "type": "uint256"},
		{"name": "sqrtPriceX96After", "type": "uint160"},
		{"name": "initializedTicksCrossed", "type": "uint32"},
		{"name": "gasEstimate", "type": "uint256"}
	],
	"stateMutability": "view",
	"type": "function"
}]`)

func mustParseTestABI(jsonStr string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(jsonStr))
	if err != nil {
		panic(err)
	}
	return parsed
}

func testGraph() *Graph {
	return &Graph{
		BaseToken: "USDC",
		Tokens: map[string]arbengine.Token{
			"USDC": {Symbol: "USDC", Address: common.HexToAddress("0x1"), Decimals: 6},
			"WETH": {Symbol: "WETH", Address: common.HexToAddress("0x2"), Decimals: 18},
		},
		Venues: map[string]arbengine.Venue{
			"DexA": {Name: "DexA", Kind: arbengine.KindConstantProductV3, QuoterAddress: common.HexToAddress("0xa"), FeeTiers: []uint32{500}},
			"DexB": {Name: "DexB", Kind: arbengine.KindConstantProductV3, QuoterAddress: common.HexToAddress("0xb"), FeeTiers: []uint32{500}},
		},
	}
}

func TestBestLegAOutputs_PicksMaxPerVenue(t *testing.T) {
	meta := []legALeg{
		{symbol: "WETH", venue: "DexA", fee: 500},
		{symbol: "WETH", venue: "DexA", fee: 3000},
		{symbol: "WETH", venue: "DexB", fee: 500},
	}
	amounts := []*big.Int{big.NewInt(100), big.NewInt(150), big.NewInt(90)}

	best := bestLegAOutputs(meta, amounts)
	assert.Equal(t, big.NewInt(150), best["WETH"]["DexA"].amountOut)
	assert.Equal(t, uint32(3000), best["WETH"]["DexA"].fee)
	assert.Equal(t, big.NewInt(90), best["WETH"]["DexB"].amountOut)
}

func TestBestLegAOutputs_IgnoresZeroOrNil(t *testing.T) {
	meta := []legALeg{{symbol: "WETH", venue: "DexA", fee: 500}}
	amounts := []*big.Int{big.NewInt(0)}
	best := bestLegAOutputs(meta, amounts)
	assert.Empty(t, best["WETH"])
}

func TestBuildLegBCalls_SkipsBlacklistedRoute(t *testing.T) {
	graph := testGraph()
	ledger := NewRouteLedger()
	h := &TwoLegHunter{graph: graph, ledger: ledger}

	route := arbengine.Route{Legs: []arbengine.RouteLeg{
		{TokenIn: "USDC", TokenOut: "WETH", Venue: "DexA"},
		{TokenIn: "WETH", TokenOut: "USDC", Venue: "DexB"},
	}}
	for i := 0; i < MaxRouteFailures; i++ {
		ledger.RecordFailure(route.Fingerprint())
	}
	require.True(t, ledger.IsBlacklisted(route.Fingerprint()))

	bestLegA := map[string]map[string]legAQuote{"WETH": {"DexA": {amountOut: big.NewInt(100), fee: 500}}}
	legs, meta := h.buildLegBCalls(bestLegA)
	assert.Empty(t, legs)
	assert.Empty(t, meta)
}

// fakeQuoterBackend answers every tryAggregate call with a fixed
// amountOut for every leg in the batch, letting Scan's full pipeline
// run end to end against a synthetic profitable spread.
type fakeQuoterBackend struct {
	amountOut *big.Int
}

func (f *fakeQuoterBackend) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	inputs, err := quote.Multicall3ABI.Methods["tryAggregate"].Inputs.Unpack(call.Data[4:])
	if err != nil {
		return nil, err
	}
	calls := inputs[1].([]struct {
		Target   common.Address
		CallData []byte
	})

	outData, err := quoterOutputsABI.Methods["quoteExactInputSingle"].Outputs.Pack(f.amountOut, big.NewInt(0), uint32(0), big.NewInt(0))
	if err != nil {
		return nil, err
	}
	type item struct {
		Success    bool
		ReturnData []byte
	}
	items := make([]item, len(calls))
	for i := range calls {
		items[i] = item{Success: true, ReturnData: outData}
	}
	return quote.Multicall3ABI.Methods["tryAggregate"].Outputs.Pack(items)
}

func (f *fakeQuoterBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) { return 0, nil }
func (f *fakeQuoterBackend) SuggestGasTipCap(context.Context) (*big.Int, error)              { return big.NewInt(0), nil }
func (f *fakeQuoterBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{BaseFee: big.NewInt(0)}, nil
}
func (f *fakeQuoterBackend) SendTransaction(context.Context, *types.Transaction) error { return nil }
func (f *fakeQuoterBackend) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return nil, nil
}
func (f *fakeQuoterBackend) ChainID(context.Context) (*big.Int, error)               { return big.NewInt(42161), nil }
func (f *fakeQuoterBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) { return 0, nil }

func TestTwoLegHunter_Scan_FindsProfitableRoute(t *testing.T) {
	backend := &fakeQuoterBackend{amountOut: big.NewInt(2_000_000_000)} // 2000 USDC out per leg, always
	client := contractclient.New(backend, quote.Multicall3Address, quote.Multicall3ABI)
	graph := testGraph()
	engine := quote.NewEngine(client, graph.Venues)
	ledger := NewRouteLedger()

	events := make(chan arbengine.Event, 16)
	hunter := NewTwoLegHunter(graph, engine, ledger, big.NewInt(1_000_000_000), 0.01, events,
		func() float64 { return 3000 },
		func(context.Context) (*big.Int, error) { return big.NewInt(100_000_000), nil },
	)

	opps, err := hunter.Scan(context.Background(), 100)
	require.NoError(t, err)
	require.NotEmpty(t, opps)
	assert.Greater(t, opps[0].NetProfitUSD, 0.0)
}

func TestRouteLedger_BlacklistExpiresAfterCooldown(t *testing.T) {
	ledger := NewRouteLedger()
	cur := time.Unix(1_700_000_000, 0)
	ledger.SetClock(func() time.Time { return cur })

	for i := 0; i < MaxRouteFailures; i++ {
		ledger.RecordFailure("fp")
	}
	require.True(t, ledger.IsBlacklisted("fp"))

	cur = cur.Add(RouteCooldown + time.Second)
	assert.False(t, ledger.IsBlacklisted("fp"))
}
