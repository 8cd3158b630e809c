// Package liquidation hunts undercollateralized borrowers across two
// lending-protocol shapes on Arbitrum — Aave V2 style (Radiant) and
// Compound V2 style (Lodestar) — using the same tiered sniper/scout
// cadence and Multicall3 batching pattern as the arb hunters, adapted
// from radiant_bot.py and lodestar_bot.py.
package liquidation

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ProtocolKind distinguishes the account-health ABI shape a lending
// market exposes.
type ProtocolKind string

const (
	ProtocolAaveV2     ProtocolKind = "aave-v2"
	ProtocolCompoundV2 ProtocolKind = "compound-v2"
)

// compoundProxyHF are the fixed health-factor stand-ins Compound V2's
// getAccountLiquidity maps to, since it reports (error, liquidity,
// shortfall) rather than a single ratio. Matches lodestar_bot.py's
// multicall_scan.
const (
	compoundShortfallHF = 0.5
	compoundThinHF      = 1.1
	compoundSafeHF      = 2.0
	compoundThinLiquidityWei = 500 // * 1e18, below which a thin-liquidity account is watched
)

func mustParseABI(jsonStr string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(jsonStr))
	if err != nil {
		panic(fmt.Sprintf("liquidation: invalid ABI: %v", err))
	}
	return parsed
}

// Aave V2 (Radiant) ABIs.
var (
	AavePoolABI = mustParseABI(`[
		{
			"inputs": [{"name": "user", "type": "address"}],
			"name": "getUserAccountData",
			"outputs": [
				{"name": "totalCollateralETH", "type": "uint256"},
				{"name": "totalDebtETH", "type": "uint256"},
				{"name": "availableBorrowsETH", "type": "uint256"},
				{"name": "currentLiquidationThreshold", "type": "uint256"},
				{"name": "ltv", "type": "uint256"},
				{"name": "healthFactor", "type": "uint256"}
			],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [],
			"name": "getReservesList",
			"outputs": [{"name": "", "type": "address[]"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`)

	AaveDataProviderABI = mustParseABI(`[
		{
			"inputs": [
				{"name": "asset", "type": "address"},
				{"name": "user", "type": "address"}
			],
			"name": "getUserReserveData",
			"outputs": [
				{"name": "currentATokenBalance", "type": "uint256"},
				{"name": "currentStableDebt", "type": "uint256"},
				{"name": "currentVariableDebt", "type": "uint256"},
				{"name": "principalStableDebt", "type": "uint256"},
				{"name": "scaledVariableDebt", "type": "uint256"},
				{"name": "stableBorrowRate", "type": "uint256"},
				{"name": "liquidityRate", "type": "uint256"},
				{"name": "stableRateLastUpdated", "type": "uint40"},
				{"name": "usageAsCollateralEnabled", "type": "bool"}
			],
			"stateMutability": "view",
			"type": "function"
		}
	]`)

	AaveOracleABI = mustParseABI(`[
		{
			"inputs": [{"name": "assets", "type": "address[]"}],
			"name": "getAssetsPrices",
			"outputs": [{"name": "", "type": "uint256[]"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`)

	AaveAddressesProviderABI = mustParseABI(`[
		{"inputs": [], "name": "getPriceOracle", "outputs": [{"name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
		{"inputs": [], "name": "getLendingPool", "outputs": [{"name": "", "type": "address"}], "stateMutability": "view", "type": "function"}
	]`)
)

// Compound V2 (Lodestar) ABIs.
var (
	ComptrollerABI = mustParseABI(`[
		{
			"inputs": [{"name": "account", "type": "address"}],
			"name": "getAccountLiquidity",
			"outputs": [
				{"name": "", "type": "uint256"},
				{"name": "", "type": "uint256"},
				{"name": "", "type": "uint256"}
			],
			"stateMutability": "view",
			"type": "function"
		},
		{"inputs": [], "name": "oracle", "outputs": [{"name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
		{"inputs": [], "name": "getAllMarkets", "outputs": [{"name": "", "type": "address[]"}], "stateMutability": "view", "type": "function"}
	]`)

	CTokenABI = mustParseABI(`[
		{
			"inputs": [{"name": "account", "type": "address"}],
			"name": "getAccountSnapshot",
			"outputs": [
				{"name": "", "type": "uint256"},
				{"name": "", "type": "uint256"},
				{"name": "", "type": "uint256"},
				{"name": "", "type": "uint256"}
			],
			"stateMutability": "view",
			"type": "function"
		},
		{"inputs": [], "name": "underlying", "outputs": [{"name": "", "type": "address"}], "stateMutability": "view", "type": "function"}
	]`)

	CompoundOracleABI = mustParseABI(`[
		{
			"inputs": [{"name": "cToken", "type": "address"}],
			"name": "getUnderlyingPrice",
			"outputs": [{"name": "", "type": "uint256"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`)
)

// ERC20DecimalsABI exposes decimals() for Aave-side USD normalization;
// Compound's oracle already pre-scales by the underlying's decimals so
// its valuation path never needs this lookup.
var ERC20DecimalsABI = mustParseABI(`[
	{"inputs": [], "name": "decimals", "outputs": [{"name": "", "type": "uint8"}], "stateMutability": "view", "type": "function"}
]`)

// LiquidatorABI is the shared requestFlashLoan signature both the
// Radiant and Lodestar liquidator contracts expose, per
// radiant_bot.py/lodestar_bot.py's LIQUIDATOR_ABI.
var LiquidatorABI = mustParseABI(`[
	{
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
	}
]`)

// aaveAccountDataOut matches getUserAccountData's six-value return for
// UnpackIntoInterface.
type aaveAccountDataOut struct {
	TotalCollateralETH          *big.Int
	TotalDebtETH                *big.Int
	AvailableBorrowsETH         *big.Int
	CurrentLiquidationThreshold *big.Int
	Ltv                         *big.Int
	HealthFactor                *big.Int
}

// DecodeAaveHealthFactor unpacks a getUserAccountData return value into
// a health factor, scaled down from its 18-decimal fixed point.
func DecodeAaveHealthFactor(data []byte) (float64, error) {
	var out aaveAccountDataOut
	if err := AavePoolABI.UnpackIntoInterface(&out, "getUserAccountData", data); err != nil {
		return 0, fmt.Errorf("liquidation: decode getUserAccountData: %w", err)
	}
	hf := new(big.Float).Quo(new(big.Float).SetInt(out.HealthFactor), big.NewFloat(1e18))
	f, _ := hf.Float64()
	return f, nil
}

// DecodeCompoundHealthFactor unpacks a getAccountLiquidity return value
// into the same proxy health-factor buckets lodestar_bot.py's
// multicall_scan uses: Compound V2 never reports a ratio directly, only
// (error, liquidity, shortfall), so a shortfall account is pinned below
// Tier 1's cutoff, a thin-liquidity account is pinned into Tier 2, and
// everything else is treated as safe.
func DecodeCompoundHealthFactor(data []byte) (float64, error) {
	vals, err := ComptrollerABI.Methods["getAccountLiquidity"].Outputs.Unpack(data)
	if err != nil {
		return 0, fmt.Errorf("liquidation: decode getAccountLiquidity: %w", err)
	}
	errorCode := vals[0].(*big.Int)
	liquidity := vals[1].(*big.Int)
	shortfall := vals[2].(*big.Int)

	if errorCode.Sign() != 0 {
		return 0, fmt.Errorf("liquidation: getAccountLiquidity error code %s", errorCode)
	}

	thinLiquidity := new(big.Int).Mul(big.NewInt(compoundThinLiquidityWei), big.NewInt(1e18))
	switch {
	case shortfall.Sign() > 0:
		return compoundShortfallHF, nil
	case liquidity.Cmp(thinLiquidity) < 0:
		return compoundThinHF, nil
	default:
		return compoundSafeHF, nil
	}
}

// aaveUserReserveDataOut matches getUserReserveData's 9-field return.
type aaveUserReserveDataOut struct {
	CurrentATokenBalance     *big.Int
	CurrentStableDebt        *big.Int
	CurrentVariableDebt      *big.Int
	PrincipalStableDebt      *big.Int
	ScaledVariableDebt       *big.Int
	StableBorrowRate         *big.Int
	LiquidityRate            *big.Int
	StableRateLastUpdated    *big.Int
	UsageAsCollateralEnabled bool
}

// DecodeAaveReserveData unpacks a getUserReserveData return into the
// aToken (collateral) balance and variable debt balance, the two fields
// analyze_user_assets in radiant_bot.py actually compares.
func DecodeAaveReserveData(data []byte) (collateral, variableDebt *big.Int, err error) {
	var out aaveUserReserveDataOut
	if err := AaveDataProviderABI.UnpackIntoInterface(&out, "getUserReserveData", data); err != nil {
		return nil, nil, fmt.Errorf("liquidation: decode getUserReserveData: %w", err)
	}
	return out.CurrentATokenBalance, out.CurrentVariableDebt, nil
}

// DecodeCompoundSnapshot unpacks a getAccountSnapshot return into the
// underlying collateral balance (cTokenBalance * exchangeRate / 1e18)
// and the raw borrow balance. getAccountSnapshot's four outputs are all
// unnamed in the ABI, so this decodes positionally via Unpack rather
// than UnpackIntoInterface, which requires named outputs to map onto
// struct fields.
func DecodeCompoundSnapshot(data []byte) (collateralUnderlying, borrowBalance *big.Int, err error) {
	vals, err := CTokenABI.Methods["getAccountSnapshot"].Outputs.Unpack(data)
	if err != nil {
		return nil, nil, fmt.Errorf("liquidation: decode getAccountSnapshot: %w", err)
	}
	errorCode := vals[0].(*big.Int)
	cTokenBalance := vals[1].(*big.Int)
	borrowBal := vals[2].(*big.Int)
	exchangeRate := vals[3].(*big.Int)

	if errorCode.Sign() != 0 {
		return nil, nil, fmt.Errorf("liquidation: getAccountSnapshot error code %s", errorCode)
	}

	underlying := new(big.Int).Mul(cTokenBalance, exchangeRate)
	underlying.Div(underlying, big.NewInt(1e18))
	return underlying, borrowBal, nil
}

// DecodeAddress unpacks a single-address return value, used for
// getLendingPool/getPriceOracle/oracle/underlying lookups.
func DecodeAddress(data []byte) (common.Address, error) {
	if len(data) < 32 {
		return common.Address{}, fmt.Errorf("liquidation: address return too short")
	}
	return common.BytesToAddress(data[12:32]), nil
}

// DecodeAddressList unpacks an address[] return, used for
// getReservesList/getAllMarkets.
func DecodeAddressList(abiObj abi.ABI, method string, data []byte) ([]common.Address, error) {
	vals, err := abiObj.Methods[method].Outputs.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("liquidation: decode %s: %w", method, err)
	}
	list, ok := vals[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("liquidation: %s did not decode to []common.Address", method)
	}
	return list, nil
}

// DecodeUint256List unpacks a uint256[] return, used for
// getAssetsPrices.
func DecodeUint256List(data []byte) ([]*big.Int, error) {
	vals, err := AaveOracleABI.Methods["getAssetsPrices"].Outputs.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("liquidation: decode getAssetsPrices: %w", err)
	}
	list, ok := vals[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("liquidation: getAssetsPrices did not decode to []*big.Int")
	}
	return list, nil
}

// DecodeUint256 unpacks a single uint256 return, used for
// getUnderlyingPrice.
func DecodeUint256(data []byte) (*big.Int, error) {
	if len(data) < 32 {
		return nil, fmt.Errorf("liquidation: uint256 return too short")
	}
	return new(big.Int).SetBytes(data[:32]), nil
}

// DecodeUint8 unpacks a single uint8 return, used for ERC20 decimals().
func DecodeUint8(data []byte) (uint8, error) {
	if len(data) < 32 {
		return 0, fmt.Errorf("liquidation: uint8 return too short")
	}
	return uint8(new(big.Int).SetBytes(data[:32]).Uint64()), nil
}
