package pricing

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/prism-fi/prism-router/multicall"
)

// RateSource yields on-chain exchange rates of tokens against the network's
// wrapped-native asset, in 1e18 fixed point per whole token.
type RateSource interface {
	Rates(ctx context.Context, network string, oracle common.Address, wrappedNative common.Address, tokens []common.Address) (map[common.Address]*big.Int, error)
}

var (
	addressType, _ = abi.NewType("address", "", nil)
	boolType, _    = abi.NewType("bool", "", nil)

	getRateArgs     = abi.Arguments{{Type: addressType}, {Type: addressType}, {Type: boolType}}
	getRateSelector = crypto.Keccak256([]byte("getRate(address,address,bool)"))[:4]
)

// OracleClient reads spot rates from a deployed offchain-oracle contract
// through the multicall collaborator, in fixed-size concurrent batches.
type OracleClient struct {
	caller    multicall.Caller
	batchSize int
}

// NewOracleClient builds a rate source over the given batched caller.
// batchSize is the number of getRate calls packed into one multicall.
func NewOracleClient(caller multicall.Caller, batchSize int) *OracleClient {
	if batchSize <= 0 {
		batchSize = 25
	}
	return &OracleClient{caller: caller, batchSize: batchSize}
}

// Rates queries the oracle for every token's rate against wrappedNative.
// Tokens whose individual call reverts are simply absent from the result;
// only a whole-batch transport failure is an error.
func (o *OracleClient) Rates(
	ctx context.Context,
	network string,
	oracle common.Address,
	wrappedNative common.Address,
	tokens []common.Address,
) (map[common.Address]*big.Int, error) {
	calls := make([]multicall.Call, 0, len(tokens))
	for _, token := range tokens {
		data, err := getRateArgs.Pack(token, wrappedNative, true)
		if err != nil {
			return nil, fmt.Errorf("failed to pack getRate call: %w", err)
		}
		calls = append(calls, multicall.Call{
			To:        oracle,
			Data:      append(append([]byte{}, getRateSelector...), data...),
			Reference: token.Hex(),
		})
	}

	rates := make(map[common.Address]*big.Int, len(tokens))
	var mu sync.Mutex
	var wg sync.WaitGroup
	errs := make(chan error, (len(calls)/o.batchSize)+1)

	for start := 0; start < len(calls); start += o.batchSize {
		end := start + o.batchSize
		if end > len(calls) {
			end = len(calls)
		}
		batch := calls[start:end]

		wg.Add(1)
		go func(batch []multicall.Call) {
			defer wg.Done()
			results, err := o.caller.Call(ctx, network, batch)
			if err != nil {
				errs <- err
				return
			}
			mu.Lock()
			defer mu.Unlock()
			for _, res := range results {
				if !res.Success || len(res.Data) == 0 {
					continue
				}
				rates[common.HexToAddress(res.Reference)] = new(big.Int).SetBytes(res.Data)
			}
		}(batch)
	}
	wg.Wait()
	close(errs)

	if err := <-errs; err != nil {
		return nil, fmt.Errorf("oracle batch failed on %s: %w", network, err)
	}
	return rates, nil
}
