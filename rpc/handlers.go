package rpc

import (
	"encoding/json"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/prism-fi/prism-router/config"
	"github.com/prism-fi/prism-router/models"
	"github.com/prism-fi/prism-router/quota"
)

type handlers struct {
	cfg    *config.Config
	engine Quoter
}

type tokenDTO struct {
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
	Network  string `json:"network"`
}

// quoteRequest is the wire form of a swap request. Amounts travel as strings,
// either raw smallest units or a human-readable decimal; exactly one spelling
// per amount.
type quoteRequest struct {
	TokenIn   tokenDTO   `json:"tokenIn"`
	TokenOut  *tokenDTO  `json:"tokenOut,omitempty"`
	TokensOut []tokenDTO `json:"tokensOut,omitempty"`

	AmountIn           string   `json:"amountIn,omitempty"`
	AmountInReadable   string   `json:"amountInReadable,omitempty"`
	AmountOut          string   `json:"amountOut,omitempty"`
	AmountOutReadable  string   `json:"amountOutReadable,omitempty"`
	AmountsOut         []string `json:"amountsOut,omitempty"`
	AmountsOutReadable []string `json:"amountsOutReadable,omitempty"`

	AmountOutReadablePercentages []string `json:"amountOutReadablePercentages,omitempty"`
	SlippageReadablePercent      string   `json:"slippageReadablePercent,omitempty"`
	ExactOutput                  bool     `json:"exactOutput,omitempty"`

	Owner     string `json:"owner"`
	Recipient string `json:"recipient,omitempty"`

	DestinationAddress string `json:"destinationAddress,omitempty"`
	ArrivalGasReadable string `json:"arrivalGasReadable,omitempty"`

	BannedExchangeIDs []int `json:"bannedExchangeIds,omitempty"`
}

type callDTO struct {
	Network            string        `json:"network"`
	To                 string        `json:"to"`
	CallData           hexutil.Bytes `json:"callData"`
	Value              string        `json:"value,omitempty"`
	GasLimitMultiplier float64       `json:"gasLimitMultiplier,omitempty"`
}

type quoteResponse struct {
	TokenIn                 models.Token   `json:"tokenIn"`
	TokensOut               []models.Token `json:"tokensOut"`
	AmountIn                string         `json:"amountIn"`
	AmountInReadable        string         `json:"amountInReadable"`
	AmountsOut              []string       `json:"amountsOut"`
	AmountsOutReadable      []string       `json:"amountsOutReadable"`
	SlippageReadablePercent string         `json:"slippageReadablePercent"`
	PriceImpactPercent      []string       `json:"priceImpactPercent"`
	GasEstimate             uint64         `json:"gasEstimate"`
	ExecutorCallData        []callDTO      `json:"executorCallData"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (h *handlers) swapQuote(w http.ResponseWriter, r *http.Request) {
	req, params, err := h.parseQuoteRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	q, err := h.engine.SwapQuote(r.Context(), req, params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quotaResponse(q))
}

func (h *handlers) crossChainQuote(w http.ResponseWriter, r *http.Request) {
	req, params, err := h.parseQuoteRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	q, err := h.engine.CrossChainQuote(r.Context(), req, params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quotaResponse(q))
}

func (h *handlers) prices(w http.ResponseWriter, r *http.Request) {
	network := strings.ToLower(chi.URLParam(r, "network"))
	if _, ok := h.cfg.Networks[network]; !ok {
		writeError(w, models.NewError(models.CodeInvalidRequest, "unknown network %s", network))
		return
	}
	snapshot := h.engine.Prices(network)
	if snapshot == nil {
		writeError(w, models.NewError(models.CodeInternalError, "prices not yet available for %s", network))
		return
	}

	prices := make(map[string]string, len(snapshot))
	for addr, p := range snapshot {
		prices[strings.ToLower(addr.Hex())] = p.String()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"network": network,
		"anchor":  strings.ToLower(common.HexToAddress(h.cfg.Networks[network].Anchor.Address).Hex()),
		"prices":  prices,
	})
}

func (h *handlers) parseQuoteRequest(r *http.Request) (*models.SwapRequest, quota.Params, error) {
	var dto quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		return nil, quota.Params{}, models.WrapError(models.CodeInvalidRequest, err, "malformed request body")
	}

	if !common.IsHexAddress(dto.Owner) {
		return nil, quota.Params{}, models.NewError(models.CodeInvalidRequest, "owner must be a hex address")
	}
	params := quota.Params{Owner: common.HexToAddress(dto.Owner)}
	if dto.Recipient != "" {
		if !common.IsHexAddress(dto.Recipient) {
			return nil, quota.Params{}, models.NewError(models.CodeInvalidRequest, "recipient must be a hex address")
		}
		params.Recipient = common.HexToAddress(dto.Recipient)
	}

	req := &models.SwapRequest{
		TokenIn:           dto.TokenIn.token(),
		ExactOutput:       dto.ExactOutput,
		BannedExchangeIDs: dto.BannedExchangeIDs,
	}
	if dto.TokenOut != nil {
		tok := dto.TokenOut.token()
		req.TokenOut = &tok
	}
	for _, td := range dto.TokensOut {
		req.TokensOut = append(req.TokensOut, td.token())
	}

	amountIn, err := parseAmount(dto.AmountIn, dto.AmountInReadable, dto.TokenIn.Decimals, "amountIn")
	if err != nil {
		return nil, quota.Params{}, err
	}
	req.AmountIn = amountIn

	outDecimals := func(i int) uint8 {
		if dto.TokenOut != nil {
			return dto.TokenOut.Decimals
		}
		return dto.TokensOut[i].Decimals
	}
	if dto.AmountOut != "" || dto.AmountOutReadable != "" {
		if dto.TokenOut == nil && len(dto.TokensOut) == 0 {
			return nil, quota.Params{}, models.NewError(models.CodeInvalidRequest, "amountOut given without an output token")
		}
		out, err := parseAmount(dto.AmountOut, dto.AmountOutReadable, outDecimals(0), "amountOut")
		if err != nil {
			return nil, quota.Params{}, err
		}
		req.AmountOut = out
	}
	if len(dto.AmountsOut) > 0 || len(dto.AmountsOutReadable) > 0 {
		n := len(dto.AmountsOut)
		if n == 0 {
			n = len(dto.AmountsOutReadable)
		}
		if n != len(dto.TokensOut) {
			return nil, quota.Params{}, models.NewError(models.CodeInvalidRequest, "amountsOut must match tokensOut")
		}
		for i := 0; i < n; i++ {
			raw, readable := "", ""
			if len(dto.AmountsOut) > 0 {
				raw = dto.AmountsOut[i]
			} else {
				readable = dto.AmountsOutReadable[i]
			}
			out, err := parseAmount(raw, readable, outDecimals(i), "amountsOut")
			if err != nil {
				return nil, quota.Params{}, err
			}
			req.AmountsOut = append(req.AmountsOut, *out)
		}
	}

	for _, p := range dto.AmountOutReadablePercentages {
		d, err := decimal.NewFromString(p)
		if err != nil {
			return nil, quota.Params{}, models.WrapError(models.CodeInvalidRequest, err, "bad percentage %q", p)
		}
		req.AmountOutReadablePercentages = append(req.AmountOutReadablePercentages, d)
	}
	if dto.SlippageReadablePercent != "" {
		d, err := decimal.NewFromString(dto.SlippageReadablePercent)
		if err != nil {
			return nil, quota.Params{}, models.WrapError(models.CodeInvalidRequest, err, "bad slippage percent")
		}
		req.SlippageReadablePercent = d
	}

	if dto.DestinationAddress != "" {
		if !common.IsHexAddress(dto.DestinationAddress) {
			return nil, quota.Params{}, models.NewError(models.CodeInvalidRequest, "destinationAddress must be a hex address")
		}
		addr := common.HexToAddress(dto.DestinationAddress)
		req.DestinationAddress = &addr
	}

	if dto.ArrivalGasReadable != "" {
		gas, err := h.parseArrivalGas(dto.ArrivalGasReadable, req.TokensOut)
		if err != nil {
			return nil, quota.Params{}, err
		}
		req.ArrivalGasAmount = gas
	}

	return req, params, nil
}

// parseArrivalGas scales the readable native amount by the destination
// network's wrapped-native decimals.
func (h *handlers) parseArrivalGas(readable string, tokensOut []models.Token) (*models.Amount, error) {
	if len(tokensOut) == 0 {
		return nil, models.NewError(models.CodeInvalidRequest, "arrivalGas given without an output token")
	}
	wn, ok := h.cfg.WrappedNativeToken(tokensOut[0].Network)
	if !ok {
		return nil, models.NewError(models.CodeInvalidRequest, "unknown destination network %s", tokensOut[0].Network)
	}
	d, err := decimal.NewFromString(readable)
	if err != nil || d.IsNegative() {
		return nil, models.NewError(models.CodeInvalidRequest, "bad arrivalGas amount %q", readable)
	}
	gas := models.NewAmountFromReadable(d, wn.Decimals)
	return &gas, nil
}

func (td tokenDTO) token() models.Token {
	return models.NewToken(td.Address, td.Decimals, td.Network)
}

func parseAmount(raw, readable string, decimals uint8, field string) (*models.Amount, error) {
	switch {
	case raw != "" && readable != "":
		return nil, models.NewError(models.CodeInvalidRequest, "%s: raw and readable forms cannot be used together", field)
	case raw != "":
		v, ok := new(big.Int).SetString(raw, 10)
		if !ok || v.Sign() < 0 {
			return nil, models.NewError(models.CodeInvalidRequest, "%s: bad raw amount %q", field, raw)
		}
		a := models.NewAmount(v, decimals)
		return &a, nil
	case readable != "":
		d, err := decimal.NewFromString(readable)
		if err != nil || d.IsNegative() {
			return nil, models.NewError(models.CodeInvalidRequest, "%s: bad readable amount %q", field, readable)
		}
		a := models.NewAmountFromReadable(d, decimals)
		return &a, nil
	default:
		return nil, nil
	}
}

func quotaResponse(q *models.Quota) quoteResponse {
	resp := quoteResponse{
		TokenIn:                 q.TokenIn,
		TokensOut:               q.TokensOut,
		AmountIn:                q.AmountIn.Raw().String(),
		AmountInReadable:        q.AmountIn.Readable().String(),
		SlippageReadablePercent: q.SlippageReadable.String(),
		GasEstimate:             q.GasEstimate,
	}
	for _, out := range q.AmountsOut {
		resp.AmountsOut = append(resp.AmountsOut, out.Raw().String())
		resp.AmountsOutReadable = append(resp.AmountsOutReadable, out.Readable().String())
	}
	for _, pi := range q.PriceImpact {
		resp.PriceImpactPercent = append(resp.PriceImpactPercent, pi.String())
	}
	for _, call := range q.ExecutorCallData {
		dto := callDTO{
			Network:            call.Network,
			To:                 call.To.Hex(),
			CallData:           call.CallData,
			GasLimitMultiplier: call.GasLimitMultiplier,
		}
		if call.Value != nil && call.Value.Sign() > 0 {
			dto.Value = call.Value.String()
		}
		resp.ExecutorCallData = append(resp.ExecutorCallData, dto)
	}
	return resp
}

// httpStatus maps engine error codes onto HTTP statuses.
func httpStatus(code models.Code) int {
	switch code {
	case models.CodeInvalidRequest, models.CodeSameNetwork:
		return http.StatusBadRequest
	case models.CodeRoutesNotFound, models.CodeNoBaseTokenFound:
		return http.StatusNotFound
	case models.CodeAborted:
		return http.StatusConflict
	case models.CodeSimulationFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := models.CodeOf(err)
	var resp errorResponse
	resp.Error.Code = string(code)
	resp.Error.Message = err.Error()
	writeJSON(w, httpStatus(code), resp)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}
