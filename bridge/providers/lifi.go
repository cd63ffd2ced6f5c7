// Package providers contains the HTTP adapters for external bridge
// aggregators. Each adapter translates one vendor API into the engine's
// bridge.Provider surface.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"

	"github.com/prism-fi/prism-router/bridge"
	"github.com/prism-fi/prism-router/config"
	"github.com/prism-fi/prism-router/models"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "bridge-providers").Logger()
}

// LiFi quotes transfers through the LI.FI aggregator API.
type LiFi struct {
	baseURL    string
	httpClient *http.Client
	cfg        *config.Config
}

// NewLiFi builds the LI.FI adapter from the bridge section of the config.
func NewLiFi(cfg *config.Config) *LiFi {
	return &LiFi{
		baseURL:    cfg.Bridge.LiFiURL,
		httpClient: &http.Client{Timeout: time.Duration(cfg.Bridge.TimeoutSeconds) * time.Second},
		cfg:        cfg,
	}
}

func (l *LiFi) Name() string { return "lifi" }

type lifiQuoteResponse struct {
	Estimate struct {
		ToAmount          string  `json:"toAmount"`
		ToAmountMin       string  `json:"toAmountMin"`
		ExecutionDuration float64 `json:"executionDuration"`
	} `json:"estimate"`
	TransactionRequest struct {
		Data  string `json:"data"`
		To    string `json:"to"`
		Value string `json:"value"`
	} `json:"transactionRequest"`
}

// Quote asks LI.FI for a route and returns its prepared transaction.
func (l *LiFi) Quote(ctx context.Context, req bridge.Request) (bridge.Quote, error) {
	fromChain, toChain, err := chainIDs(l.cfg, req)
	if err != nil {
		return bridge.Quote{}, err
	}

	q := url.Values{}
	q.Set("fromChain", strconv.FormatUint(fromChain, 10))
	q.Set("toChain", strconv.FormatUint(toChain, 10))
	q.Set("fromToken", req.TokenIn.Address.Hex())
	q.Set("toToken", req.TokenOut.Address.Hex())
	q.Set("fromAmount", req.AmountIn.Raw().String())
	q.Set("toAddress", req.Recipient.Hex())

	var parsed lifiQuoteResponse
	if err := getJSON(ctx, l.httpClient, l.baseURL+"/quote?"+q.Encode(), &parsed); err != nil {
		return bridge.Quote{}, fmt.Errorf("lifi quote failed: %w", err)
	}

	amountOut, ok := new(big.Int).SetString(parsed.Estimate.ToAmount, 10)
	if !ok || amountOut.Sign() <= 0 {
		return bridge.Quote{}, fmt.Errorf("lifi returned invalid toAmount %q", parsed.Estimate.ToAmount)
	}
	callData, err := hexutil.Decode(parsed.TransactionRequest.Data)
	if err != nil {
		return bridge.Quote{}, fmt.Errorf("lifi returned invalid call data: %w", err)
	}
	value, err := parseTxValue(parsed.TransactionRequest.Value)
	if err != nil {
		return bridge.Quote{}, fmt.Errorf("lifi returned invalid tx value: %w", err)
	}

	log.Debug().
		Str("from", req.TokenIn.Key()).
		Str("to", req.TokenOut.Key()).
		Str("amountOut", amountOut.String()).
		Float64("durationSec", parsed.Estimate.ExecutionDuration).
		Msg("LiFi quote")

	return bridge.Quote{
		Provider:  l.Name(),
		To:        common.HexToAddress(parsed.TransactionRequest.To),
		CallData:  callData,
		Value:     value,
		AmountOut: models.NewAmount(amountOut, req.TokenOut.Decimals),
	}, nil
}

func chainIDs(cfg *config.Config, req bridge.Request) (uint64, uint64, error) {
	src, ok := cfg.Networks[req.TokenIn.Network]
	if !ok {
		return 0, 0, fmt.Errorf("unknown source network %s", req.TokenIn.Network)
	}
	dst, ok := cfg.Networks[req.TokenOut.Network]
	if !ok {
		return 0, 0, fmt.Errorf("unknown destination network %s", req.TokenOut.Network)
	}
	return src.ChainID, dst.ChainID, nil
}

// parseTxValue accepts the hex and decimal spellings vendors use for the
// native value field. Empty means zero.
func parseTxValue(raw string) (*big.Int, error) {
	if raw == "" || raw == "0x" {
		return new(big.Int), nil
	}
	if len(raw) > 1 && raw[0] == '0' && (raw[1] == 'x' || raw[1] == 'X') {
		return hexutil.DecodeBig(raw)
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("not a number: %q", raw)
	}
	return v, nil
}

func getJSON(ctx context.Context, client *http.Client, fullURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return json.Unmarshal(body, out)
}
