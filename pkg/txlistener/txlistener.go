// Package txlistener polls for transaction receipts after a broadcast,
// used by every flashloan and liquidation call this engine submits.
package txlistener

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrTimeout is returned when a transaction's receipt does not appear
// before the configured deadline.
var ErrTimeout = errors.New("txlistener: timed out waiting for receipt")

// ReceiptFetcher is the subset of ethclient.Client used for polling.
type ReceiptFetcher interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Listener polls ReceiptFetcher for a transaction's receipt.
type Listener struct {
	backend      ReceiptFetcher
	pollInterval time.Duration
	timeout      time.Duration
}

// Option configures a Listener at construction time.
type Option func(*Listener)

// WithPollInterval overrides the default 2s poll cadence.
func WithPollInterval(d time.Duration) Option {
	return func(l *Listener) { l.pollInterval = d }
}

// WithTimeout overrides the default 30s receipt deadline.
func WithTimeout(d time.Duration) Option {
	return func(l *Listener) { l.timeout = d }
}

// New builds a Listener over backend.
func New(backend ReceiptFetcher, opts ...Option) *Listener {
	l := &Listener{
		backend:      backend,
		pollInterval: 2 * time.Second,
		timeout:      30 * time.Second,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// WaitForTransaction blocks until txHash's receipt is mined, the
// listener's timeout elapses, or ctx is cancelled. A reverted
// transaction (status 0) is returned as a receipt, not an error — the
// caller decides whether revert is fatal in its context.
func (l *Listener) WaitForTransaction(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	deadline := time.Now().Add(l.timeout)
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := l.backend.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("txlistener: receipt fetch for %s: %w", txHash.Hex(), err)
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrTimeout, txHash.Hex())
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
