package txlistener

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	notFoundUntil int
	calls         int
	receipt       *types.Receipt
	err           error
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, _ common.Hash) (*types.Receipt, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.calls <= f.notFoundUntil {
		return nil, ethereum.NotFound
	}
	return f.receipt, nil
}

func TestWaitForTransaction_SucceedsAfterPolling(t *testing.T) {
	backend := &fakeBackend{notFoundUntil: 2, receipt: &types.Receipt{Status: 1}}
	l := New(backend, WithPollInterval(5*time.Millisecond), WithTimeout(time.Second))

	receipt, err := l.WaitForTransaction(context.Background(), common.HexToHash("0x1"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), receipt.Status)
	assert.Equal(t, 3, backend.calls)
}

func TestWaitForTransaction_Timeout(t *testing.T) {
	backend := &fakeBackend{notFoundUntil: 1000}
	l := New(backend, WithPollInterval(5*time.Millisecond), WithTimeout(20*time.Millisecond))

	_, err := l.WaitForTransaction(context.Background(), common.HexToHash("0x1"))
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestWaitForTransaction_HardErrorPropagates(t *testing.T) {
	backend := &fakeBackend{err: errors.New("connection reset")}
	l := New(backend, WithPollInterval(5*time.Millisecond), WithTimeout(time.Second))

	_, err := l.WaitForTransaction(context.Background(), common.HexToHash("0x1"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrTimeout)
}
