package routing

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/prism-fi/prism-router/models"
)

// Packed path descriptors encode one hop in 24 bytes: a version byte, the
// pool fee as a 3-byte big-endian integer, and the 20-byte pool address.
// The quoter and router contracts share this layout.
const packedHopSize = 24

var (
	bytesType, _   = abi.NewType("bytes", "", nil)
	uint256Type, _ = abi.NewType("uint256", "", nil)

	quoteArgs   = abi.Arguments{{Type: bytesType}, {Type: uint256Type}}
	quoteReturn = abi.Arguments{{Type: uint256Type}}

	quoteExactInputSelector  = crypto.Keccak256([]byte("quoteExactInput(bytes,uint256)"))[:4]
	quoteExactOutputSelector = crypto.Keccak256([]byte("quoteExactOutput(bytes,uint256)"))[:4]
)

// PackRoute serializes a route into the packed path descriptor consumed by
// the quoter and router contracts.
func PackRoute(route models.Route) ([]byte, error) {
	if len(route) == 0 {
		return nil, fmt.Errorf("cannot pack an empty route")
	}
	packed := make([]byte, 0, len(route)*packedHopSize)
	for i, step := range route {
		if step.Fee > 0xFFFFFF {
			return nil, fmt.Errorf("hop %d fee %d exceeds 3 bytes", i, step.Fee)
		}
		packed = append(packed, byte(step.Version))
		packed = append(packed, byte(step.Fee>>16), byte(step.Fee>>8), byte(step.Fee))
		packed = append(packed, step.Pool.Bytes()...)
	}
	return packed, nil
}

// EncodeQuoteCall builds the quoter calldata for one route and amount.
// Exact-input quotes take the input amount and return the output; exact-output
// quotes take the desired output and return the required input.
func EncodeQuoteCall(route models.Route, amount *big.Int, exactOutput bool) ([]byte, error) {
	path, err := PackRoute(route)
	if err != nil {
		return nil, err
	}
	packed, err := quoteArgs.Pack(path, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to pack quote call: %w", err)
	}
	selector := quoteExactInputSelector
	if exactOutput {
		selector = quoteExactOutputSelector
	}
	return append(append([]byte{}, selector...), packed...), nil
}

// DecodeQuoteResult extracts the single uint256 a quoter call returns.
func DecodeQuoteResult(data []byte) (*big.Int, error) {
	values, err := quoteReturn.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode quote result: %w", err)
	}
	amount, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("quote result is not a uint256")
	}
	return amount, nil
}
