package quota

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/prism-fi/prism-router/models"
	"github.com/prism-fi/prism-router/multicall"
)

// AllowanceReader answers how much of a token a spender may currently move
// on the owner's behalf.
type AllowanceReader interface {
	Allowance(ctx context.Context, tok models.Token, owner, spender common.Address) (*big.Int, error)
}

var (
	addressType, _ = abi.NewType("address", "", nil)
	uint256Type, _ = abi.NewType("uint256", "", nil)

	addressPairArgs   = abi.Arguments{{Type: addressType}, {Type: addressType}}
	addressAmountArgs = abi.Arguments{{Type: addressType}, {Type: uint256Type}}
	uint256Args       = abi.Arguments{{Type: uint256Type}}

	allowanceSelector = crypto.Keccak256([]byte("allowance(address,address)"))[:4]
	approveSelector   = crypto.Keccak256([]byte("approve(address,uint256)"))[:4]
	transferSelector  = crypto.Keccak256([]byte("transfer(address,uint256)"))[:4]
	depositSelector   = crypto.Keccak256([]byte("deposit()"))[:4]
	withdrawSelector  = crypto.Keccak256([]byte("withdraw(uint256)"))[:4]
)

// ERC20Reader reads allowances through the multicall collaborator.
type ERC20Reader struct {
	caller multicall.Caller
}

func NewERC20Reader(caller multicall.Caller) *ERC20Reader {
	return &ERC20Reader{caller: caller}
}

func (r *ERC20Reader) Allowance(ctx context.Context, tok models.Token, owner, spender common.Address) (*big.Int, error) {
	data, err := addressPairArgs.Pack(owner, spender)
	if err != nil {
		return nil, fmt.Errorf("failed to pack allowance call: %w", err)
	}
	results, err := r.caller.Call(ctx, tok.Network, []multicall.Call{{
		To:   tok.Address,
		Data: append(append([]byte{}, allowanceSelector...), data...),
	}})
	if err != nil {
		return nil, fmt.Errorf("allowance call failed on %s: %w", tok.Network, err)
	}
	if len(results) == 0 || !results[0].Success || len(results[0].Data) == 0 {
		return nil, fmt.Errorf("allowance call reverted for %s", tok.Key())
	}
	return new(big.Int).SetBytes(results[0].Data), nil
}

// ApprovalCall builds a standalone approve transaction, for callers that
// splice their own sends around compiled quotas.
func ApprovalCall(tok models.Token, spender common.Address, amount *big.Int) models.ExecutorCall {
	return models.ExecutorCall{
		CallData: encodeApprove(spender, amount),
		Network:  tok.Network,
		To:       tok.Address,
		Value:    new(big.Int),
	}
}

func encodeApprove(spender common.Address, amount *big.Int) []byte {
	data, _ := addressAmountArgs.Pack(spender, amount)
	return append(append([]byte{}, approveSelector...), data...)
}

func encodeTransfer(to common.Address, amount *big.Int) []byte {
	data, _ := addressAmountArgs.Pack(to, amount)
	return append(append([]byte{}, transferSelector...), data...)
}

func encodeWithdraw(amount *big.Int) []byte {
	data, _ := uint256Args.Pack(amount)
	return append(append([]byte{}, withdrawSelector...), data...)
}
