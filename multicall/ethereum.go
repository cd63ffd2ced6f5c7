package multicall

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"github.com/prism-fi/prism-router/config"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "multicall").Logger()
}

var (
	call3Type, _ = abi.NewType("tuple[]", "", []abi.ArgumentMarshaling{
		{Name: "target", Type: "address"},
		{Name: "allowFailure", Type: "bool"},
		{Name: "callData", Type: "bytes"},
	})
	result3Type, _ = abi.NewType("tuple[]", "", []abi.ArgumentMarshaling{
		{Name: "success", Type: "bool"},
		{Name: "returnData", Type: "bytes"},
	})

	aggregate3Args     = abi.Arguments{{Type: call3Type}}
	aggregate3Return   = abi.Arguments{{Type: result3Type}}
	aggregate3Selector = crypto.Keccak256([]byte("aggregate3((address,bool,bytes)[])"))[:4]
)

type call3 struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

// EthClient dispatches batches through the Multicall3 contract of each
// configured network over go-ethereum RPC clients.
type EthClient struct {
	clients   map[string]*ethclient.Client
	contracts map[string]common.Address
}

// NewEthClient dials every configured network. HTTP endpoints connect
// lazily, so a down RPC surfaces on the first Call rather than here.
func NewEthClient(cfg *config.Config) (*EthClient, error) {
	clients := make(map[string]*ethclient.Client, len(cfg.Networks))
	contracts := make(map[string]common.Address, len(cfg.Networks))
	for id, nc := range cfg.Networks {
		client, err := ethclient.Dial(nc.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("failed to dial %s RPC: %w", id, err)
		}
		clients[id] = client
		contracts[id] = common.HexToAddress(nc.MulticallContract)
	}
	log.Info().Int("networks", len(clients)).Msg("Multicall clients ready")
	return &EthClient{clients: clients, contracts: contracts}, nil
}

// Close releases every RPC connection.
func (e *EthClient) Close() {
	for _, client := range e.clients {
		client.Close()
	}
}

// Call runs the batch as one aggregate3 invocation with per-call failures
// allowed.
func (e *EthClient) Call(ctx context.Context, network string, calls []Call) ([]Result, error) {
	client, ok := e.clients[network]
	if !ok {
		return nil, fmt.Errorf("no RPC client for network %s", network)
	}
	contract := e.contracts[network]

	batch := make([]call3, len(calls))
	for i, c := range calls {
		batch[i] = call3{Target: c.To, AllowFailure: true, CallData: c.Data}
	}
	packed, err := aggregate3Args.Pack(batch)
	if err != nil {
		return nil, fmt.Errorf("failed to pack aggregate3 batch: %w", err)
	}

	data, err := client.CallContract(ctx, ethereum.CallMsg{
		To:   &contract,
		Data: append(append([]byte{}, aggregate3Selector...), packed...),
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("multicall failed on %s: %w", network, err)
	}

	values, err := aggregate3Return.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode aggregate3 result: %w", err)
	}
	raw, ok := values[0].([]struct {
		Success    bool   `json:"success"`
		ReturnData []byte `json:"returnData"`
	})
	if !ok {
		return nil, fmt.Errorf("unexpected aggregate3 result shape on %s", network)
	}
	if len(raw) != len(calls) {
		return nil, fmt.Errorf("aggregate3 returned %d results for %d calls", len(raw), len(calls))
	}

	results := make([]Result, len(raw))
	for i, r := range raw {
		results[i] = Result{Success: r.Success, Data: r.ReturnData, Reference: calls[i].Reference}
	}
	return results, nil
}
