package executor

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog/log"

	"github.com/vantablack-labs/arbengine"
	"github.com/vantablack-labs/arbengine/internal/liquidation"
	"github.com/vantablack-labs/arbengine/pkg/contractclient"
	"github.com/vantablack-labs/arbengine/pkg/txlistener"
)

// Gas fallbacks used when EstimateGas itself fails (node rejects the
// simulated call, or the RPC is degraded) — static per execution
// class, matching execute_arbitrage's gas=800_000,
// execute_triangular_arb's gas=1_200_000, and both liquidation bots'
// gas_limit=2_500_000 fallback.
const (
	TwoLegGasLimit      = 800_000
	TriLegGasLimit      = 1_200_000
	LiquidationGasLimit = 2_500_000
)

// gasEstimateBuffer inflates a successful EstimateGas result before
// use, matching both liquidation bots' "estimated_gas * 1.2".
const gasEstimateBuffer = 1.2

// Executor owns the single signer every execution path (two-leg,
// tri-leg, and both liquidation protocols) broadcasts through. Its
// nonce mutex is the one serialization point across all of them —
// two concurrent hunters racing to execute must never request the
// same pending nonce.
type Executor struct {
	backend    contractclient.ChainReader
	listener   *txlistener.Listener
	privateKey *ecdsa.PrivateKey
	from       common.Address
	sink       chan<- arbengine.Event

	nonceMu sync.Mutex
}

// New builds an Executor bound to one signer and one receipt listener,
// shared by every payload builder in this package.
func New(backend contractclient.ChainReader, listener *txlistener.Listener, privateKey *ecdsa.PrivateKey, sink chan<- arbengine.Event) *Executor {
	return &Executor{
		backend:    backend,
		listener:   listener,
		privateKey: privateKey,
		from:       contractclient.Address(privateKey),
		sink:       sink,
	}
}

// From returns the executor's signing address.
func (e *Executor) From() common.Address {
	return e.from
}

// simulate runs calldata against contract as an eth_call, the
// "Simulation Shield" every bot runs immediately before signing.
func (e *Executor) simulate(ctx context.Context, contract common.Address, calldata []byte) error {
	_, err := e.backend.CallContract(ctx, ethereum.CallMsg{From: e.from, To: &contract, Data: calldata}, nil)
	return err
}

// resolveGas estimates gas for calldata, buffers it by
// gasEstimateBuffer, and falls back to fallbackGas if estimation
// itself fails — a degraded RPC should not block execution outright.
func (e *Executor) resolveGas(ctx context.Context, contract common.Address, calldata []byte, fallbackGas uint64) uint64 {
	estimate, err := e.backend.EstimateGas(ctx, ethereum.CallMsg{From: e.from, To: &contract, Data: calldata})
	if err != nil || estimate == 0 {
		return fallbackGas
	}
	return uint64(float64(estimate) * gasEstimateBuffer)
}

// dispatch is the shared simulate -> sign -> broadcast -> confirm
// pipeline every execution path in this package funnels through.
func (e *Executor) dispatch(ctx context.Context, contract common.Address, calldata []byte, fallbackGas uint64, height uint64, fingerprint string, grossUSD, netUSD float64) (common.Hash, error) {
	e.nonceMu.Lock()
	defer e.nonceMu.Unlock()

	if err := e.simulate(ctx, contract, calldata); err != nil {
		e.emit(arbengine.EventError, height, fingerprint, grossUSD, 0, common.Hash{}, fmt.Sprintf("simulation reverted: %v", err))
		return common.Hash{}, fmt.Errorf("executor: simulation reverted: %w", err)
	}

	gasLimit := e.resolveGas(ctx, contract, calldata, fallbackGas)

	client := contractclient.New(e.backend, contract, abi.ABI{})
	txHash, err := client.SendRaw(ctx, e.privateKey, e.from, gasLimit, nil, calldata)
	if err != nil {
		e.emit(arbengine.EventError, height, fingerprint, grossUSD, 0, common.Hash{}, fmt.Sprintf("broadcast failed: %v", err))
		return common.Hash{}, fmt.Errorf("executor: broadcast: %w", err)
	}

	receipt, err := e.listener.WaitForTransaction(ctx, txHash)
	if err != nil {
		e.emit(arbengine.EventError, height, fingerprint, grossUSD, 0, txHash, fmt.Sprintf("receipt wait failed: %v", err))
		return txHash, fmt.Errorf("executor: receipt: %w", err)
	}
	if receipt.Status == types.ReceiptStatusFailed {
		e.emit(arbengine.EventError, height, fingerprint, grossUSD, 0, txHash, "transaction reverted on-chain")
		return txHash, fmt.Errorf("executor: transaction %s reverted", txHash.Hex())
	}

	e.emit(arbengine.EventExecution, height, fingerprint, grossUSD, netUSD, txHash, "")
	return txHash, nil
}

// ExecuteTwoLeg builds and dispatches a DexArbitrageur.requestFlashLoan
// call for a scored two-leg opportunity. feeA/feeB are each leg's own
// winning fee tier.
func (e *Executor) ExecuteTwoLeg(ctx context.Context, contract, usdc, buyRouter, sellRouter, tokenOut common.Address, flashloanAmount, legAOut *big.Int, feeA, feeB uint32, height uint64, fingerprint string, grossUSD, netUSD float64) (common.Hash, error) {
	calldata, err := BuildTwoLegFlashLoanCalldata(contract, usdc, buyRouter, sellRouter, tokenOut, flashloanAmount, legAOut, feeA, feeB)
	if err != nil {
		return common.Hash{}, err
	}
	return e.dispatch(ctx, contract, calldata, TwoLegGasLimit, height, fingerprint, grossUSD, netUSD)
}

// ExecuteTriLeg builds and dispatches a
// TriArbitrageur.requestFlashLoan call for a scored tri-leg
// opportunity's three pre-built hop payloads.
func (e *Executor) ExecuteTriLeg(ctx context.Context, contract, usdc common.Address, flashloanAmount *big.Int, routes []TriLegRoute, height uint64, fingerprint string, grossUSD, netUSD float64) (common.Hash, error) {
	calldata, err := BuildTriLegFlashLoanCalldata(usdc, flashloanAmount, routes)
	if err != nil {
		return common.Hash{}, err
	}
	return e.dispatch(ctx, contract, calldata, TriLegGasLimit, height, fingerprint, grossUSD, netUSD)
}

// emit pushes a structured event to the sink without ever blocking
// the caller, the same pattern the arb hunters and the liquidation
// hunter use.
func (e *Executor) emit(kind arbengine.EventKind, height uint64, fingerprint string, gross, net float64, txHash common.Hash, msg string) {
	if e.sink == nil {
		return
	}
	evt := arbengine.Event{
		Kind:        kind,
		Timestamp:   time.Now(),
		Height:      height,
		Fingerprint: fingerprint,
		GrossUSD:    gross,
		NetUSD:      net,
		TxHash:      txHash,
		Message:     msg,
	}
	select {
	case e.sink <- evt:
	default:
		log.Warn().Msg("executor: sink channel full, dropping event")
	}
}

// LiquidatorAdapter implements liquidation.Liquidator over a shared
// Executor, binding it to one liquidator contract address (Radiant's
// or Lodestar's) so both protocol hunters can execute through the same
// signer and nonce sequence without the liquidation package importing
// this one.
type LiquidatorAdapter struct {
	exec     *Executor
	contract common.Address
}

// NewLiquidatorAdapter binds exec to a single liquidator contract.
func NewLiquidatorAdapter(exec *Executor, contract common.Address) *LiquidatorAdapter {
	return &LiquidatorAdapter{exec: exec, contract: contract}
}

var _ liquidation.Liquidator = (*LiquidatorAdapter)(nil)

// Liquidate builds and dispatches a requestFlashLoan call from a
// resolved liquidation candidate.
func (a *LiquidatorAdapter) Liquidate(ctx context.Context, c liquidation.Candidate) error {
	calldata, err := BuildLiquidationCalldata(c.Borrower, c.DebtAsset, c.CollateralAsset, c.DebtAmount, c.Fee, c.AmountOutMinimum, c.SqrtPriceLimitX96)
	if err != nil {
		return err
	}
	_, err = a.exec.dispatch(ctx, a.contract, calldata, LiquidationGasLimit, 0, c.Borrower.Hex(), c.DebtValueUSD, c.DebtValueUSD)
	return err
}
