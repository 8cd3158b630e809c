package liquidation

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/vantablack-labs/arbengine"
	"github.com/vantablack-labs/arbengine/internal/quote"
	"github.com/vantablack-labs/arbengine/pkg/contractclient"
)

// ScoutInterval is how many blocks separate one Tier 2 sweep from the
// next, matching radiant_bot.py/lodestar_bot.py's SCOUT_INTERVAL.
const ScoutInterval = 10

// HunterGas caps the eth_call gas for a sniper/scout Multicall3 batch;
// a borrower set is small relative to a quote batch so this is modest.
const HunterGas = 30_000_000

// minLiquidationValueUSD is the heuristic floor radiant_bot.py/
// lodestar_bot.py apply before spending gas on a flash loan — below
// this the expected liquidation bonus can't cover gas plus flashloan
// fee. Radiant's bot uses 50, Lodestar's uses 1; this engine applies
// the more conservative Radiant floor to both protocols.
const minLiquidationValueUSD = 50.0

// slippageToleranceBps mirrors both bots' SLIPPAGE_TOLERANCE (0.98):
// the amountOutMinimum on the liquidator's internal swap is 98% of the
// seized debt amount, computed in integer basis points to avoid
// floating-point drift on the on-chain minimum.
const slippageToleranceBps = 9800

// liquidationFeeTier is the Uniswap V3 fee tier both liquidator
// contracts hardcode for their internal collateral->debt swap.
const liquidationFeeTier = 3000

// Candidate is a scored, not-yet-executed liquidation: a borrower whose
// health factor has dropped below 1.0, with its most valuable debt and
// collateral assets resolved.
type Candidate struct {
	Borrower          common.Address
	DebtAsset         common.Address
	CollateralAsset   common.Address
	DebtAmount        *big.Int
	DebtValueUSD      float64
	AmountOutMinimum  *big.Int
	Fee               uint32
	SqrtPriceLimitX96 *big.Int
}

// Liquidator executes a requestFlashLoan call for a Candidate; the
// liquidation hunter never holds a signer itself, matching the
// scan/execute separation the arb hunters use.
type Liquidator interface {
	Liquidate(ctx context.Context, c Candidate) error
}

// Hunter manages one lending protocol's tiered borrower watch list and
// runs the sniper (every block, Tier 1) and scout (every ScoutInterval
// blocks, Tier 2) passes described in radiant_bot.py/lodestar_bot.py.
type Hunter struct {
	protocol ProtocolKind

	// multicall is bound to the Multicall3 contract; accountDataTarget
	// is the Pool (Aave) or Comptroller (Compound) every account-health
	// call in a batch is addressed to.
	multicall         *contractclient.Client
	accountDataTarget common.Address
	accountDataABI    abi.ABI
	accountDataMethod string

	// dataProviderTarget/market addresses resolve per-asset balances.
	// For Aave, reserves are underlying assets read through the shared
	// DataProvider; for Compound, reserves are the cTokens themselves.
	dataProviderTarget common.Address
	reserves           []common.Address
	decimals           map[common.Address]uint8

	mu          sync.RWMutex
	prices      map[common.Address]*big.Int
	underlyings map[common.Address]common.Address

	tierMu sync.Mutex
	t1, t2 []common.Address

	blocksSinceScout int

	liquidator Liquidator
	sink       chan<- arbengine.Event
}

// NewAaveHunter builds a Hunter for an Aave-V2-shaped protocol (Radiant):
// pool is the lending pool, dataProvider the protocol data provider,
// reserves the asset list from getReservesList.
func NewAaveHunter(multicall *contractclient.Client, pool, dataProvider common.Address, reserves []common.Address, liquidator Liquidator, sink chan<- arbengine.Event) *Hunter {
	return &Hunter{
		protocol:           ProtocolAaveV2,
		multicall:          multicall,
		accountDataTarget:  pool,
		accountDataABI:     AavePoolABI,
		accountDataMethod:  "getUserAccountData",
		dataProviderTarget: dataProvider,
		reserves:           reserves,
		decimals:           make(map[common.Address]uint8),
		prices:             make(map[common.Address]*big.Int),
		liquidator:         liquidator,
		sink:               sink,
	}
}

// NewCompoundHunter builds a Hunter for a Compound-V2-shaped protocol
// (Lodestar): comptroller is the Comptroller contract, cTokens the
// market list from getAllMarkets.
func NewCompoundHunter(multicall *contractclient.Client, comptroller common.Address, cTokens []common.Address, liquidator Liquidator, sink chan<- arbengine.Event) *Hunter {
	return &Hunter{
		protocol:          ProtocolCompoundV2,
		multicall:         multicall,
		accountDataTarget: comptroller,
		accountDataABI:    ComptrollerABI,
		accountDataMethod: "getAccountLiquidity",
		reserves:          cTokens,
		decimals:          make(map[common.Address]uint8),
		prices:            make(map[common.Address]*big.Int),
		liquidator:        liquidator,
		sink:              sink,
	}
}

// SetPrices overwrites the oracle price cache keyed by asset/cToken
// address. For Aave this is getAssetsPrices's 18-decimal ETH/USD-base
// price; for Compound this is getUnderlyingPrice's 1e(36-decimals)
// pre-scaled price. Called once per block from outside the hot batching
// path, matching both bots' update_prices.
func (h *Hunter) SetPrices(prices map[common.Address]*big.Int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.prices = prices
}

func (h *Hunter) price(asset common.Address) *big.Int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if p, ok := h.prices[asset]; ok {
		return p
	}
	return big.NewInt(1e18) // fallback to parity, matching both bots' price.get(asset, 10**18)
}

// SetDecimals seeds the ERC20-decimals cache; Aave valuation needs it,
// Compound valuation doesn't.
func (h *Hunter) SetDecimals(decimals map[common.Address]uint8) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for asset, d := range decimals {
		h.decimals[asset] = d
	}
}

func (h *Hunter) decimalsOf(asset common.Address) uint8 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if d, ok := h.decimals[asset]; ok {
		return d
	}
	return 18
}

// Tier1 and Tier2 return snapshots of the current tiered watch lists.
func (h *Hunter) Tier1() []common.Address {
	h.tierMu.Lock()
	defer h.tierMu.Unlock()
	return append([]common.Address(nil), h.t1...)
}

func (h *Hunter) Tier2() []common.Address {
	h.tierMu.Lock()
	defer h.tierMu.Unlock()
	return append([]common.Address(nil), h.t2...)
}

// LoadTargets replaces both tiers wholesale, e.g. from a hot-reloaded
// target file or a fallback seed list. Addresses already present in
// t1 take precedence: an address named in both tiers is kept in
// Tier 1, enforcing tier exclusivity at load time too.
func (h *Hunter) LoadTargets(t1, t2 []common.Address) {
	h.tierMu.Lock()
	defer h.tierMu.Unlock()

	inT1 := make(map[common.Address]bool, len(t1))
	for _, a := range t1 {
		inT1[a] = true
	}
	filtered := make([]common.Address, 0, len(t2))
	for _, a := range t2 {
		if !inT1[a] {
			filtered = append(filtered, a)
		}
	}
	h.t1 = t1
	h.t2 = filtered
}

// healthResult is one borrower's decoded health factor from a sniper or
// scout batch.
type healthResult struct {
	borrower common.Address
	hf       float64
}

// batchHealth runs one Multicall3 batch of account-health calls over
// targets and decodes each result per h.protocol, skipping entries that
// fail to decode exactly as both bots' multicall_scan does.
func (h *Hunter) batchHealth(ctx context.Context, targets []common.Address) ([]healthResult, error) {
	if len(targets) == 0 {
		return nil, nil
	}

	calls := make([]quote.Call, len(targets))
	for i, addr := range targets {
		data, err := h.accountDataABI.Pack(h.accountDataMethod, addr)
		if err != nil {
			return nil, fmt.Errorf("liquidation: pack %s: %w", h.accountDataMethod, err)
		}
		calls[i] = quote.Call{Target: h.accountDataTarget, CallData: data}
	}

	results, err := quote.TryAggregate(ctx, h.multicall, false, calls, HunterGas)
	if err != nil {
		return nil, fmt.Errorf("liquidation: batchHealth: %w", err)
	}

	out := make([]healthResult, 0, len(targets))
	for i, r := range results {
		if !r.Success {
			continue
		}
		var hf float64
		var decodeErr error
		switch h.protocol {
		case ProtocolAaveV2:
			hf, decodeErr = DecodeAaveHealthFactor(r.ReturnData)
		case ProtocolCompoundV2:
			hf, decodeErr = DecodeCompoundHealthFactor(r.ReturnData)
		}
		if decodeErr != nil {
			log.Warn().Err(decodeErr).Str("borrower", targets[i].Hex()).Msg("liquidation: health decode failed")
			continue
		}
		out = append(out, healthResult{borrower: targets[i], hf: hf})
	}
	return out, nil
}

// SniperScan runs one Tier 1 pass: every borrower below the liquidation
// threshold (0 < hf < 1.0) gets its assets analyzed and, if a viable
// debt/collateral pair exists above minLiquidationValueUSD, is
// liquidated immediately.
func (h *Hunter) SniperScan(ctx context.Context, height uint64) error {
	results, err := h.batchHealth(ctx, h.Tier1())
	if err != nil {
		return err
	}

	for _, r := range results {
		if r.hf <= 0 || r.hf >= 1.0 {
			continue
		}

		cand, err := h.analyzeBorrower(ctx, r.borrower, r.hf)
		if err != nil {
			log.Warn().Err(err).Str("borrower", r.borrower.Hex()).Msg("liquidation: asset analysis failed")
			continue
		}
		if cand == nil {
			continue
		}

		h.emit(arbengine.EventSpread, height, r.borrower, cand.DebtValueUSD, 0)

		if h.liquidator == nil {
			continue
		}
		if err := h.liquidator.Liquidate(ctx, *cand); err != nil {
			log.Warn().Err(err).Str("borrower", r.borrower.Hex()).Msg("liquidation: execute failed")
			h.emit(arbengine.EventError, height, r.borrower, 0, 0)
			continue
		}
		h.emit(arbengine.EventExecution, height, r.borrower, cand.DebtValueUSD, cand.DebtValueUSD)
	}
	return nil
}

// ScoutScan runs one Tier 2 pass, every ScoutInterval blocks: a
// watchlist borrower whose health factor drops below T1Max is promoted
// to Tier 1, one whose health factor rises above T2Max (or decodes to
// the zero/"immune" sentinel) is dropped entirely, and everyone else
// stays on the watchlist. Call sites should gate this on
// h.DueForScout(); ScoutScan itself always runs the batch.
func (h *Hunter) ScoutScan(ctx context.Context, height uint64) error {
	results, err := h.batchHealth(ctx, h.Tier2())
	if err != nil {
		return err
	}

	var promoted []common.Address
	var remaining []common.Address
	for _, r := range results {
		switch {
		case r.hf > 0 && r.hf < arbengine.T1Max:
			promoted = append(promoted, r.borrower)
		case r.hf == 0 || r.hf > arbengine.T2Max:
			// drops off the watchlist entirely
		default:
			remaining = append(remaining, r.borrower)
		}
	}

	h.tierMu.Lock()
	if len(promoted) > 0 {
		h.t1 = append(h.t1, promoted...)
	}
	h.t2 = remaining
	h.tierMu.Unlock()

	if len(promoted) > 0 {
		log.Info().Int("count", len(promoted)).Uint64("height", height).Msg("liquidation: promoted to tier 1")
		for _, addr := range promoted {
			h.emit(arbengine.EventStateChange, height, addr, 0, 0)
		}
	}
	return nil
}

// DueForScout advances the per-block scout counter and reports whether
// this block should run a scout pass, resetting the counter when it
// does — the caller drives the cadence, the Hunter only tracks it.
func (h *Hunter) DueForScout() bool {
	h.tierMu.Lock()
	defer h.tierMu.Unlock()
	h.blocksSinceScout++
	if h.blocksSinceScout >= ScoutInterval {
		h.blocksSinceScout = 0
		return true
	}
	return false
}

// analyzeBorrower fans out one getUserReserveData/getAccountSnapshot
// call per reserve for borrower, picks the largest-USD-value debt and
// collateral assets, and returns a Candidate if both are present and
// the debt value clears minLiquidationValueUSD.
func (h *Hunter) analyzeBorrower(ctx context.Context, borrower common.Address, hf float64) (*Candidate, error) {
	if len(h.reserves) == 0 {
		return nil, nil
	}

	calls := make([]quote.Call, len(h.reserves))
	for i, reserve := range h.reserves {
		switch h.protocol {
		case ProtocolAaveV2:
			data, err := AaveDataProviderABI.Pack("getUserReserveData", reserve, borrower)
			if err != nil {
				return nil, fmt.Errorf("liquidation: pack getUserReserveData: %w", err)
			}
			calls[i] = quote.Call{Target: h.dataProviderTarget, CallData: data}
		case ProtocolCompoundV2:
			data, err := CTokenABI.Pack("getAccountSnapshot", borrower)
			if err != nil {
				return nil, fmt.Errorf("liquidation: pack getAccountSnapshot: %w", err)
			}
			calls[i] = quote.Call{Target: reserve, CallData: data}
		}
	}

	results, err := quote.TryAggregate(ctx, h.multicall, false, calls, HunterGas)
	if err != nil {
		return nil, fmt.Errorf("liquidation: analyzeBorrower batch: %w", err)
	}

	var bestDebtAsset, bestCollateralAsset common.Address
	var bestDebtAmount *big.Int
	maxDebtUSD := new(big.Float)
	maxCollateralUSD := new(big.Float)
	haveDebt, haveCollateral := false, false

	for i, r := range results {
		if !r.Success {
			continue
		}
		reserve := h.reserves[i]

		var collateralRaw, debtRaw *big.Int
		switch h.protocol {
		case ProtocolAaveV2:
			collateralRaw, debtRaw, err = DecodeAaveReserveData(r.ReturnData)
		case ProtocolCompoundV2:
			collateralRaw, debtRaw, err = DecodeCompoundSnapshot(r.ReturnData)
		}
		if err != nil {
			continue
		}

		collateralUSD, debtUSD := h.valueUSD(reserve, collateralRaw), h.valueUSD(reserve, debtRaw)

		if collateralRaw.Sign() > 0 && collateralUSD.Cmp(maxCollateralUSD) > 0 {
			maxCollateralUSD = collateralUSD
			bestCollateralAsset = h.underlyingOf(reserve)
			haveCollateral = true
		}
		if debtRaw.Sign() > 0 && debtUSD.Cmp(maxDebtUSD) > 0 {
			maxDebtUSD = debtUSD
			bestDebtAsset = h.underlyingOf(reserve)
			bestDebtAmount = debtRaw
			haveDebt = true
		}
	}

	if !haveDebt || !haveCollateral {
		return nil, nil
	}

	debtValueUSD, _ := maxDebtUSD.Float64()
	if debtValueUSD < minLiquidationValueUSD {
		return nil, nil
	}

	amountOutMinimum := new(big.Int).Mul(bestDebtAmount, big.NewInt(slippageToleranceBps))
	amountOutMinimum.Div(amountOutMinimum, big.NewInt(10000))

	return &Candidate{
		Borrower:          borrower,
		DebtAsset:         bestDebtAsset,
		CollateralAsset:   bestCollateralAsset,
		DebtAmount:        bestDebtAmount,
		DebtValueUSD:      debtValueUSD,
		AmountOutMinimum:  amountOutMinimum,
		Fee:               liquidationFeeTier,
		SqrtPriceLimitX96: big.NewInt(0),
	}, nil
}

// SetUnderlyings seeds the cToken->underlying map a Compound Hunter
// needs to report a liquidatable asset by its real ERC20 address rather
// than its cToken wrapper; resolved once at startup via each market's
// underlying() call, matching lodestar_bot.py's per-ctoken lookup in
// analyze_user_assets. Aave reserves are already underlying-keyed and
// never need this.
func (h *Hunter) SetUnderlyings(underlyings map[common.Address]common.Address) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.underlyings = underlyings
}

// underlyingOf resolves the liquidation-relevant asset address for a
// reserve entry: for Aave, the reserve already IS the underlying asset;
// for Compound, the reserve is a cToken wrapper and the liquidator
// contract wants the underlying it wraps.
func (h *Hunter) underlyingOf(reserve common.Address) common.Address {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if u, ok := h.underlyings[reserve]; ok {
		return u
	}
	return reserve
}

// valueUSD normalizes a raw balance for reserve into a USD-denominated
// big.Float, resolving Open Question #2 (per spec.md's design notes)
// by explicitly decimal-adjusting on both sides rather than comparing
// ETH-denominated and USD-denominated bots' raw price fields directly:
//   - Aave: price is an 18-decimal USD-per-token fixed point, so value
//     = (raw / 10^decimals) * (price / 1e18).
//   - Compound: price is pre-scaled to 1e(36-decimals) by the protocol
//     itself, so value = raw * price / 1e36 with no decimals lookup.
func (h *Hunter) valueUSD(reserve common.Address, raw *big.Int) *big.Float {
	if raw == nil || raw.Sign() == 0 {
		return new(big.Float)
	}
	price := h.price(reserve)

	switch h.protocol {
	case ProtocolCompoundV2:
		value := new(big.Float).SetInt(new(big.Int).Mul(raw, price))
		return value.Quo(value, big.NewFloat(1e36))
	default: // ProtocolAaveV2
		decimals := h.decimalsOf(reserve)
		scale := new(big.Float).SetInt(pow10(decimals))
		amount := new(big.Float).Quo(new(big.Float).SetInt(raw), scale)
		priceF := new(big.Float).Quo(new(big.Float).SetInt(price), big.NewFloat(1e18))
		return amount.Mul(amount, priceF)
	}
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

func (h *Hunter) emit(kind arbengine.EventKind, height uint64, borrower common.Address, gross, net float64) {
	if h.sink == nil {
		return
	}
	evt := arbengine.Event{
		Kind:        kind,
		Timestamp:   time.Now(),
		Height:      height,
		Fingerprint: borrower.Hex(),
		GrossUSD:    gross,
		NetUSD:      net,
	}
	select {
	case h.sink <- evt:
	default:
		log.Warn().Msg("liquidation: sink channel full, dropping event")
	}
}
