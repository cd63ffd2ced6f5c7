// Package multicall declares the batched on-chain read collaborator. The
// engine never talks to a chain directly; every read goes through a Caller
// supplied by the host, which batches the calls into a single multicall
// transaction per network.
package multicall

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Call is one read in a batch. Reference is echoed back on the matching
// Result so fan-out call sites can correlate out-of-order results.
type Call struct {
	To        common.Address
	Data      []byte
	Reference string
}

// Result is the outcome of one Call. Individual calls may fail without
// failing the batch; Success distinguishes a revert from usable return data.
type Result struct {
	Success   bool
	Data      []byte
	Reference string
}

// Caller executes a batch of read calls on one network. Implementations are
// external to the engine (wallet/chain connectivity is out of scope); the
// only contract is that the returned slice is positionally aligned with the
// request and that per-call failures surface as Success=false, not as an
// error.
type Caller interface {
	Call(ctx context.Context, network string, calls []Call) ([]Result, error)
}
