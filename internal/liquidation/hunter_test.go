package liquidation

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
	"github.com/vantablack-labs/arbengine/internal/quote"
	"github.com/vantablack-labs/arbengine/pkg/contractclient"
)

var (
	poolAddr         = common.HexToAddress("0x1001")
	dataProviderAddr = common.HexToAddress("0xda7a")
	usdcAddr         = common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831")
	wethAddr         = common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1")
)

func TestLoadTargets_EnforcesTierExclusivity(t *testing.T) {
	h := NewAaveHunter(nil, poolAddr, dataProviderAddr, nil, nil, nil)
	addrA := common.HexToAddress("0xA")
	addrB := common.HexToAddress("0xB")

	h.LoadTargets([]common.Address{addrA}, []common.Address{addrA, addrB})

	assert.Equal(t, []common.Address{addrA}, h.Tier1())
	assert.Equal(t, []common.Address{addrB}, h.Tier2())
}

// aaveHealthBackend answers every tryAggregate batch by inspecting each
// call's 4-byte selector: getUserAccountData replies with a
// per-borrower health factor from healthByUser, getUserReserveData
// replies with a per-(asset,borrower) balance pair from reserveData.
type aaveHealthBackend struct {
	healthByUser map[common.Address]float64
	reserveData  map[common.Address]map[common.Address][2]*big.Int // asset -> user -> [aTokenBalance, variableDebt]
}

func (f *aaveHealthBackend) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	inputs, err := quote.Multicall3ABI.Methods["tryAggregate"].Inputs.Unpack(call.Data[4:])
	if err != nil {
		return nil, err
	}
	calls := inputs[1].([]struct {
		Target   common.Address
		CallData []byte
	})

	getUserAccountDataID := AavePoolABI.Methods["getUserAccountData"].ID
	getUserReserveDataID := AaveDataProviderABI.Methods["getUserReserveData"].ID

	type item struct {
		Success    bool
		ReturnData []byte
	}
	items := make([]item, len(calls))

	for i, c := range calls {
		selector := c.CallData[:4]
		switch {
		case string(selector) == string(getUserAccountDataID):
			args, err := AavePoolABI.Methods["getUserAccountData"].Inputs.Unpack(c.CallData[4:])
			if err != nil {
				return nil, err
			}
			user := args[0].(common.Address)
			hf := f.healthByUser[user]
			hfWei, _ := new(big.Float).Mul(big.NewFloat(hf), big.NewFloat(1e18)).Int(nil)
			out, err := AavePoolABI.Methods["getUserAccountData"].Outputs.Pack(
				big.NewInt(0), big.NewInt(0), big.NewInt(0), big.NewInt(0), big.NewInt(0), hfWei,
			)
			if err != nil {
				return nil, err
			}
			items[i] = item{Success: true, ReturnData: out}

		case string(selector) == string(getUserReserveDataID):
			args, err := AaveDataProviderABI.Methods["getUserReserveData"].Inputs.Unpack(c.CallData[4:])
			if err != nil {
				return nil, err
			}
			asset := args[0].(common.Address)
			user := args[1].(common.Address)
			bal := f.reserveData[asset][user]
			if bal[0] == nil {
				bal[0], bal[1] = big.NewInt(0), big.NewInt(0)
			}
			out, err := AaveDataProviderABI.Methods["getUserReserveData"].Outputs.Pack(
				bal[0], big.NewInt(0), bal[1], big.NewInt(0), big.NewInt(0), big.NewInt(0), big.NewInt(0), big.NewInt(0), false,
			)
			if err != nil {
				return nil, err
			}
			items[i] = item{Success: true, ReturnData: out}

		default:
			items[i] = item{Success: false}
		}
	}

	return quote.Multicall3ABI.Methods["tryAggregate"].Outputs.Pack(items)
}

func (f *aaveHealthBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) { return 0, nil }
func (f *aaveHealthBackend) SuggestGasTipCap(context.Context) (*big.Int, error)              { return big.NewInt(0), nil }
func (f *aaveHealthBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{BaseFee: big.NewInt(0)}, nil
}
func (f *aaveHealthBackend) SendTransaction(context.Context, *types.Transaction) error { return nil }
func (f *aaveHealthBackend) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return nil, nil
}
func (f *aaveHealthBackend) ChainID(context.Context) (*big.Int, error) { return big.NewInt(42161), nil }
func (f *aaveHealthBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 0, nil
}

func TestScoutScan_PromotesBelowT1MaxKeepsBelowT2Max(t *testing.T) {
	addr2 := common.HexToAddress("0x2")
	addr3 := common.HexToAddress("0x3")

	backend := &aaveHealthBackend{healthByUser: map[common.Address]float64{
		addr2: 1.03,
		addr3: 1.15,
	}}
	client := contractclient.New(backend, quote.Multicall3Address, quote.Multicall3ABI)
	h := NewAaveHunter(client, poolAddr, dataProviderAddr, nil, nil, nil)
	h.LoadTargets(nil, []common.Address{addr2, addr3})

	err := h.ScoutScan(context.Background(), 1)
	require.NoError(t, err)

	assert.ElementsMatch(t, []common.Address{addr2}, h.Tier1())
	assert.ElementsMatch(t, []common.Address{addr3}, h.Tier2())
}

func TestSniperScan_LiquidatesUnderwaterBorrower(t *testing.T) {
	borrower := common.HexToAddress("0xB0")

	backend := &aaveHealthBackend{
		healthByUser: map[common.Address]float64{borrower: 0.95},
		reserveData: map[common.Address]map[common.Address][2]*big.Int{
			usdcAddr: {borrower: [2]*big.Int{big.NewInt(0), big.NewInt(500_000000)}},   // 500 USDC variable debt
			wethAddr: {borrower: [2]*big.Int{big.NewInt(1e17), big.NewInt(0)}}, // 0.1 WETH aToken collateral
		},
	}
	client := contractclient.New(backend, quote.Multicall3Address, quote.Multicall3ABI)

	liquidator := &fakeLiquidator{}
	h := NewAaveHunter(client, poolAddr, dataProviderAddr, []common.Address{usdcAddr, wethAddr}, liquidator, nil)
	h.SetDecimals(map[common.Address]uint8{usdcAddr: 6, wethAddr: 18})
	h.SetPrices(map[common.Address]*big.Int{
		usdcAddr: big.NewInt(1e18),
		wethAddr: new(big.Int).Mul(big.NewInt(3000), big.NewInt(1e18)),
	})
	h.LoadTargets([]common.Address{borrower}, nil)

	err := h.SniperScan(context.Background(), 1)
	require.NoError(t, err)

	require.Len(t, liquidator.calls, 1)
	cand := liquidator.calls[0]
	assert.Equal(t, usdcAddr, cand.DebtAsset)
	assert.Equal(t, wethAddr, cand.CollateralAsset)
	assert.Equal(t, big.NewInt(500_000000), cand.DebtAmount)
	assert.Equal(t, big.NewInt(490_000000), cand.AmountOutMinimum)
	assert.InDelta(t, 500.0, cand.DebtValueUSD, 0.01)
}

type fakeLiquidator struct {
	calls []Candidate
}

func (f *fakeLiquidator) Liquidate(_ context.Context, c Candidate) error {
	f.calls = append(f.calls, c)
	return nil
}

func TestDecodeCompoundHealthFactor_BucketsByShortfallAndLiquidity(t *testing.T) {
	pack := func(errCode, liquidity, shortfall int64) []byte {
		data, err := ComptrollerABI.Methods["getAccountLiquidity"].Outputs.Pack(
			big.NewInt(errCode), big.NewInt(liquidity), big.NewInt(shortfall),
		)
		require.NoError(t, err)
		return data
	}

	hf, err := DecodeCompoundHealthFactor(pack(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, compoundShortfallHF, hf)

	hf, err = DecodeCompoundHealthFactor(pack(0, 100, 0))
	require.NoError(t, err)
	assert.Equal(t, compoundThinHF, hf)

	big500e18 := new(big.Int).Mul(big.NewInt(500), big.NewInt(1e18))
	data, err := ComptrollerABI.Methods["getAccountLiquidity"].Outputs.Pack(big.NewInt(0), big500e18, big.NewInt(0))
	require.NoError(t, err)
	hf, err = DecodeCompoundHealthFactor(data)
	require.NoError(t, err)
	assert.Equal(t, compoundSafeHF, hf)
}

func TestToAddresses_ParsesHexAddresses(t *testing.T) {
	t1, t2 := toAddresses([]string{usdcAddr.Hex()}), toAddresses([]string{wethAddr.Hex()})
	assert.Len(t, t1, 1)
	assert.Len(t, t2, 1)
}
