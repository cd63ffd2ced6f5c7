package providers

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/prism-fi/prism-router/bridge"
	"github.com/prism-fi/prism-router/config"
	"github.com/prism-fi/prism-router/models"
)

// DeBridge quotes transfers through the deBridge DLN order API.
type DeBridge struct {
	baseURL    string
	httpClient *http.Client
	cfg        *config.Config
}

// NewDeBridge builds the deBridge adapter from the bridge section of the
// config.
func NewDeBridge(cfg *config.Config) *DeBridge {
	return &DeBridge{
		baseURL:    cfg.Bridge.DeBridgeURL,
		httpClient: &http.Client{Timeout: time.Duration(cfg.Bridge.TimeoutSeconds) * time.Second},
		cfg:        cfg,
	}
}

func (d *DeBridge) Name() string { return "debridge" }

type debridgeCreateTxResponse struct {
	Estimation struct {
		DstChainTokenOut struct {
			Amount string `json:"amount"`
		} `json:"dstChainTokenOut"`
	} `json:"estimation"`
	Tx struct {
		Data  string `json:"data"`
		To    string `json:"to"`
		Value string `json:"value"`
	} `json:"tx"`
}

// Quote asks deBridge to prepare a DLN order for the transfer.
func (d *DeBridge) Quote(ctx context.Context, req bridge.Request) (bridge.Quote, error) {
	fromChain, toChain, err := chainIDs(d.cfg, req)
	if err != nil {
		return bridge.Quote{}, err
	}

	q := url.Values{}
	q.Set("srcChainId", strconv.FormatUint(fromChain, 10))
	q.Set("srcChainTokenIn", req.TokenIn.Address.Hex())
	q.Set("srcChainTokenInAmount", req.AmountIn.Raw().String())
	q.Set("dstChainId", strconv.FormatUint(toChain, 10))
	q.Set("dstChainTokenOut", req.TokenOut.Address.Hex())
	q.Set("dstChainTokenOutRecipient", req.Recipient.Hex())

	var parsed debridgeCreateTxResponse
	if err := getJSON(ctx, d.httpClient, d.baseURL+"/dln/order/create-tx?"+q.Encode(), &parsed); err != nil {
		return bridge.Quote{}, fmt.Errorf("debridge quote failed: %w", err)
	}

	amountOut, ok := new(big.Int).SetString(parsed.Estimation.DstChainTokenOut.Amount, 10)
	if !ok || amountOut.Sign() <= 0 {
		return bridge.Quote{}, fmt.Errorf("debridge returned invalid output amount %q", parsed.Estimation.DstChainTokenOut.Amount)
	}
	callData, err := hexutil.Decode(parsed.Tx.Data)
	if err != nil {
		return bridge.Quote{}, fmt.Errorf("debridge returned invalid call data: %w", err)
	}
	value, err := parseTxValue(parsed.Tx.Value)
	if err != nil {
		return bridge.Quote{}, fmt.Errorf("debridge returned invalid tx value: %w", err)
	}

	log.Debug().
		Str("from", req.TokenIn.Key()).
		Str("to", req.TokenOut.Key()).
		Str("amountOut", amountOut.String()).
		Msg("deBridge quote")

	return bridge.Quote{
		Provider:  d.Name(),
		To:        common.HexToAddress(parsed.Tx.To),
		CallData:  callData,
		Value:     value,
		AmountOut: models.NewAmount(amountOut, req.TokenOut.Decimals),
	}, nil
}
