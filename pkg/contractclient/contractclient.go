// Package contractclient is a thin, ABI-bound wrapper around
// ethclient.Client: one value per on-chain contract, exposing typed
// Call/Send/ParseReceipt methods callers invoke directly rather than
// hand-rolling eth_call/eth_sendRawTransaction plumbing. The quote
// engine uses it for read-only Multicall3 aggregation; the executor
// uses it to sign and broadcast flashloan calls.
package contractclient

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ChainReader is the subset of ethclient.Client the wrapper needs;
// narrowed to an interface so tests can substitute a fake backend.
type ChainReader interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	ChainID(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
}

var _ ChainReader = (*ethclient.Client)(nil)

// Client binds one contract address to one ABI over a shared backend.
type Client struct {
	backend ChainReader
	address common.Address
	abi     abi.ABI
}

// New builds a Client for address using the given parsed ABI.
func New(backend ChainReader, address common.Address, parsedABI abi.ABI) *Client {
	return &Client{backend: backend, address: address, abi: parsedABI}
}

// ContractAddress returns the bound contract's address.
func (c *Client) ContractAddress() common.Address {
	return c.address
}

// Abi exposes the parsed ABI, e.g. for Multicall3 call-data packing.
func (c *Client) Abi() *abi.ABI {
	return &c.abi
}

// Call performs a read-only eth_call against method and unpacks the
// single-or-tuple return value into dest via abi.ABI.UnpackIntoInterface.
func (c *Client) Call(ctx context.Context, dest interface{}, method string, args ...interface{}) error {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("contractclient: pack %s: %w", method, err)
	}

	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &c.address, Data: data}, nil)
	if err != nil {
		return fmt.Errorf("contractclient: call %s: %w", method, err)
	}

	if err := c.abi.UnpackIntoInterface(dest, method, out); err != nil {
		return fmt.Errorf("contractclient: unpack %s: %w", method, err)
	}
	return nil
}

// CallWithGas is Call with an explicit gas override, used by the
// Multicall3 aggregator whose tryAggregate batches can exceed a node's
// default eth_call gas cap.
func (c *Client) CallWithGas(ctx context.Context, dest interface{}, gas uint64, method string, args ...interface{}) error {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("contractclient: pack %s: %w", method, err)
	}

	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &c.address, Data: data, Gas: gas}, nil)
	if err != nil {
		return fmt.Errorf("contractclient: call %s: %w", method, err)
	}

	if err := c.abi.UnpackIntoInterface(dest, method, out); err != nil {
		return fmt.Errorf("contractclient: unpack %s: %w", method, err)
	}
	return nil
}

// CallRaw packs method(args...) and returns the encoded calldata
// without making a call, for building Multicall3 sub-calls.
func (c *Client) CallRaw(method string, args ...interface{}) ([]byte, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("contractclient: pack %s: %w", method, err)
	}
	return data, nil
}

// Send signs and broadcasts a call to method with EIP-1559 fee fields,
// returning the transaction hash. gasLimit of 0 triggers estimation.
func (c *Client) Send(ctx context.Context, privateKey *ecdsa.PrivateKey, from common.Address, gasLimit uint64, value *big.Int, method string, args ...interface{}) (common.Hash, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("contractclient: pack %s: %w", method, err)
	}
	return c.SendRaw(ctx, privateKey, from, gasLimit, value, data)
}

// SendRaw signs and broadcasts pre-encoded calldata; used by the
// executor's flashloan payload builders which assemble calldata
// themselves rather than through this client's own ABI.
func (c *Client) SendRaw(ctx context.Context, privateKey *ecdsa.PrivateKey, from common.Address, gasLimit uint64, value *big.Int, data []byte) (common.Hash, error) {
	chainID, err := c.backend.ChainID(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("contractclient: chain id: %w", err)
	}

	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("contractclient: nonce: %w", err)
	}

	tipCap, err := c.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("contractclient: tip cap: %w", err)
	}

	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("contractclient: head header: %w", err)
	}
	feeCap := new(big.Int).Add(tipCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	if gasLimit == 0 {
		estimate, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &c.address, Value: value, Data: data})
		if err != nil {
			return common.Hash{}, fmt.Errorf("contractclient: estimate gas: %w", err)
		}
		gasLimit = estimate
	}

	if value == nil {
		value = big.NewInt(0)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &c.address,
		Value:     value,
		Data:      data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), privateKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("contractclient: sign: %w", err)
	}

	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("contractclient: broadcast: %w", err)
	}
	return signed.Hash(), nil
}

// ParseReceipt decodes every log in receipt that matches this
// contract's address and ABI into a flat event-name -> fields map,
// used to extract flashloan/liquidation event parameters after
// confirmation.
func (c *Client) ParseReceipt(receipt *types.Receipt) ([]map[string]interface{}, error) {
	var events []map[string]interface{}
	for _, vLog := range receipt.Logs {
		if vLog.Address != c.address || len(vLog.Topics) == 0 {
			continue
		}
		event, err := c.abi.EventByID(vLog.Topics[0])
		if err != nil {
			continue // not an event this ABI knows about
		}
		fields := make(map[string]interface{})
		if err := c.abi.UnpackIntoMap(fields, event.Name, vLog.Data); err != nil {
			return nil, fmt.Errorf("contractclient: unpack event %s: %w", event.Name, err)
		}
		events = append(events, map[string]interface{}{
			"name":       event.Name,
			"parameters": fields,
		})
	}
	return events, nil
}

// Address derives the checksummed address of a private key, used when
// the executor needs the signer's own address for nonce/tx fields.
func Address(privateKey *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(privateKey.PublicKey)
}
