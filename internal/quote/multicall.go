package quote

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/vantablack-labs/arbengine/pkg/contractclient"
)

// Multicall3Address is the canonical cross-chain deployment used on
// Arbitrum One, matching arb_engine.py's MULTICALL3_ADDRESS.
var Multicall3Address = common.HexToAddress("0xcA11bde05977b3631167028862bE2a173976CA11")

// ChunkSize caps calls per tryAggregate batch; larger batches risk
// exceeding node eth_call gas caps.
const ChunkSize = 15

const multicall3ABIJSON = `[
	{
		"inputs": [
			{"name": "requireSuccess", "type": "bool"},
			{
				"components": [
					{"name": "target", "type": "address"},
					{"name": "callData", "type": "bytes"}
				],
				"name": "calls",
				"type": "tuple[]"
			}
		],
		"name": "tryAggregate",
		"outputs": [
			{
				"components": [
					{"name": "success", "type": "bool"},
					{"name": "returnData", "type": "bytes"}
				],
				"name": "returnData",
				"type": "tuple[]"
			}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

// Multicall3ABI is parsed once at package init.
var Multicall3ABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(multicall3ABIJSON))
	if err != nil {
		panic(fmt.Sprintf("quote: invalid multicall3 ABI: %v", err))
	}
	Multicall3ABI = parsed
}

// Call is one leg of a tryAggregate batch: the target contract and its
// pre-packed calldata.
type Call struct {
	Target   common.Address
	CallData []byte
}

// Result mirrors Multicall3's per-call outcome. A failed call (when
// requireSuccess is false) decodes to the zero value rather than an
// error, per the engine's decode policy.
type Result struct {
	Success    bool
	ReturnData []byte
}

// multicallOut matches tryAggregate's single tuple[] return value for
// abi.UnpackIntoInterface.
type multicallOut struct {
	ReturnData []struct {
		Success    bool
		ReturnData []byte
	}
}

// TryAggregate batches calls into chunks of ChunkSize and issues one
// tryAggregate eth_call per chunk with the given gas override. Chunks
// are dispatched concurrently so a multi-stage scan pays one
// round-trip's latency per stage rather than one per chunk; results
// are flattened back into call order regardless of completion order.
func TryAggregate(ctx context.Context, client *contractclient.Client, requireSuccess bool, calls []Call, gas uint64) ([]Result, error) {
	type chunkResult struct {
		results []Result
		err     error
	}

	numChunks := (len(calls) + ChunkSize - 1) / ChunkSize
	chunkResults := make([]chunkResult, numChunks)

	var wg sync.WaitGroup
	for ci, start := 0, 0; start < len(calls); ci, start = ci+1, start+ChunkSize {
		end := start + ChunkSize
		if end > len(calls) {
			end = len(calls)
		}
		chunk := calls[start:end]

		wg.Add(1)
		go func(ci, start, end int, chunk []Call) {
			defer wg.Done()

			type rawCall struct {
				Target   common.Address
				CallData []byte
			}
			rawCalls := make([]rawCall, len(chunk))
			for i, c := range chunk {
				rawCalls[i] = rawCall{Target: c.Target, CallData: c.CallData}
			}

			var out multicallOut
			if err := client.CallWithGas(ctx, &out, gas, "tryAggregate", requireSuccess, rawCalls); err != nil {
				chunkResults[ci] = chunkResult{err: fmt.Errorf("quote: tryAggregate chunk [%d:%d]: %w", start, end, err)}
				return
			}

			res := make([]Result, len(out.ReturnData))
			for i, r := range out.ReturnData {
				res[i] = Result{Success: r.Success, ReturnData: r.ReturnData}
			}
			chunkResults[ci] = chunkResult{results: res}
		}(ci, start, end, chunk)
	}
	wg.Wait()

	results := make([]Result, 0, len(calls))
	for _, cr := range chunkResults {
		if cr.err != nil {
			return nil, cr.err
		}
		results = append(results, cr.results...)
	}
	return results, nil
}
