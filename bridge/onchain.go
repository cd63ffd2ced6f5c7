package bridge

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/prism-fi/prism-router/config"
	"github.com/prism-fi/prism-router/models"
	"github.com/prism-fi/prism-router/multicall"
)

var (
	addressType, _ = abi.NewType("address", "", nil)
	uint256Type, _ = abi.NewType("uint256", "", nil)

	quoteBridgeArgs     = abi.Arguments{{Type: addressType}, {Type: addressType}, {Type: uint256Type}, {Type: uint256Type}}
	quoteBridgeSelector = crypto.Keccak256([]byte("quoteBridge(address,address,uint256,uint256)"))[:4]
	quoteBridgeReturn   = abi.Arguments{{Type: uint256Type}}

	bridgeTokensArgs     = abi.Arguments{{Type: addressType}, {Type: addressType}, {Type: uint256Type}, {Type: uint256Type}, {Type: addressType}}
	bridgeTokensSelector = crypto.Keccak256([]byte("bridgeTokens(address,address,uint256,uint256,address)"))[:4]
)

// ContractQuoter quotes the deployed bridge contract directly. It is the
// deterministic last resort behind the external aggregators: worse pricing,
// but it only needs the source network's RPC to be up.
type ContractQuoter struct {
	cfg    *config.Config
	caller multicall.Caller
}

// NewContractQuoter builds the on-chain fallback provider.
func NewContractQuoter(cfg *config.Config, caller multicall.Caller) *ContractQuoter {
	return &ContractQuoter{cfg: cfg, caller: caller}
}

func (q *ContractQuoter) Name() string { return "onchain" }

// Quote asks the source network's bridge contract what it would pay out on
// the destination, and packs the matching send transaction.
func (q *ContractQuoter) Quote(ctx context.Context, req Request) (Quote, error) {
	src, ok := q.cfg.Networks[req.TokenIn.Network]
	if !ok || src.BridgeContract == "" {
		return Quote{}, fmt.Errorf("no bridge contract configured on %s", req.TokenIn.Network)
	}
	dst, ok := q.cfg.Networks[req.TokenOut.Network]
	if !ok {
		return Quote{}, fmt.Errorf("unknown destination network %s", req.TokenOut.Network)
	}

	dstChainID := new(big.Int).SetUint64(dst.ChainID)
	packed, err := quoteBridgeArgs.Pack(req.TokenIn.Address, req.TokenOut.Address, req.AmountIn.Raw(), dstChainID)
	if err != nil {
		return Quote{}, fmt.Errorf("failed to pack bridge quote: %w", err)
	}

	contract := common.HexToAddress(src.BridgeContract)
	results, err := q.caller.Call(ctx, req.TokenIn.Network, []multicall.Call{{
		To:   contract,
		Data: append(append([]byte{}, quoteBridgeSelector...), packed...),
	}})
	if err != nil {
		return Quote{}, fmt.Errorf("bridge contract call failed on %s: %w", req.TokenIn.Network, err)
	}
	if len(results) == 0 || !results[0].Success || len(results[0].Data) == 0 {
		return Quote{}, fmt.Errorf("bridge contract quote reverted on %s", req.TokenIn.Network)
	}

	values, err := quoteBridgeReturn.Unpack(results[0].Data)
	if err != nil {
		return Quote{}, fmt.Errorf("failed to decode bridge quote: %w", err)
	}
	amountOut, ok := values[0].(*big.Int)
	if !ok || amountOut.Sign() <= 0 {
		return Quote{}, fmt.Errorf("bridge contract returned no output for %s", req.TokenIn.Key())
	}

	sendData, err := bridgeTokensArgs.Pack(req.TokenIn.Address, req.TokenOut.Address, req.AmountIn.Raw(), dstChainID, req.Recipient)
	if err != nil {
		return Quote{}, fmt.Errorf("failed to pack bridge send: %w", err)
	}

	value := new(big.Int)
	if req.TokenIn.IsNative() {
		value = req.AmountIn.Raw()
	}
	return Quote{
		Provider:  q.Name(),
		To:        contract,
		CallData:  append(append([]byte{}, bridgeTokensSelector...), sendData...),
		Value:     value,
		AmountOut: models.NewAmount(amountOut, req.TokenOut.Decimals),
	}, nil
}
