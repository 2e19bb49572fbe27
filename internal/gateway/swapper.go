package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/SolSenseiDev/sol-sensei-engine/internal/model"
)

// lamportsPerNative converts SOL to lamports.
var lamportsPerNative = decimal.NewFromInt(1_000_000_000)

// SwapperClient is the production SwapExecutor adapter for the swapper
// sidecar service. The service speaks base units on the wire; this
// client converts to and from UI amounts.
type SwapperClient struct {
	baseURL string
	httpc   *http.Client
}

// NewSwapperClient creates a client for the swapper service at baseURL
// (e.g. "http://localhost:3030").
func NewSwapperClient(baseURL string, timeout time.Duration) *SwapperClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SwapperClient{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: timeout},
	}
}

// swapPayload is the wire request. Amounts are integer base units.
type swapPayload struct {
	Action           string `json:"action"`
	PrivateKey       string `json:"private_key"`
	CA               string `json:"ca,omitempty"`
	Amount           int64  `json:"amount,omitempty"`
	SlippageBps      int    `json:"slippage_bps"`
	TotalFeeLamports int64  `json:"total_fee_lamports,omitempty"`
}

// swapResponse is the wire response. in_amount/out_amount are the
// realized traded base-unit amounts.
type swapResponse struct {
	Success   bool   `json:"success"`
	TxID      string `json:"txid"`
	InAmount  int64  `json:"in_amount"`
	OutAmount int64  `json:"out_amount"`
	Error     string `json:"error"`
}

// Execute performs one swap. The executor is called exactly once; any
// transport error, non-200 status, executor-reported failure, or a
// success with no txid comes back as an error.
func (c *SwapperClient) Execute(ctx context.Context, req SwapRequest) (SwapResult, error) {
	tokenScale := decimal.New(1, int32(req.TokenDecimals))

	payload := swapPayload{
		PrivateKey:       req.Credential,
		CA:               req.Token,
		SlippageBps:      req.SlippageBps,
		TotalFeeLamports: req.FeeBudget.Mul(lamportsPerNative).IntPart(),
	}
	switch req.Side {
	case model.SideBuy:
		payload.Action = "buy_fixed"
		payload.Amount = req.Amount.Mul(lamportsPerNative).IntPart()
	case model.SideSell:
		payload.Action = "sell_fixed"
		payload.Amount = req.Amount.Mul(tokenScale).IntPart()
	default:
		return SwapResult{}, fmt.Errorf("gateway: unknown side %q", req.Side)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return SwapResult{}, fmt.Errorf("gateway: marshal swap request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/swap", bytes.NewReader(body))
	if err != nil {
		return SwapResult{}, fmt.Errorf("gateway: build swap request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return SwapResult{}, fmt.Errorf("gateway: swap call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return SwapResult{}, fmt.Errorf("gateway: swapper returned status %d", resp.StatusCode)
	}

	var sr swapResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return SwapResult{}, fmt.Errorf("gateway: decode swap response: %w", err)
	}

	if !sr.Success {
		if sr.Error == "" {
			sr.Error = "unknown swapper error"
		}
		return SwapResult{}, fmt.Errorf("gateway: swap failed: %s", sr.Error)
	}
	if sr.TxID == "" {
		return SwapResult{}, ErrMissingTxID
	}

	result := SwapResult{TxID: sr.TxID}
	switch req.Side {
	case model.SideBuy:
		// in = native spent, out = tokens received
		result.NativeAmount = decimal.NewFromInt(sr.InAmount).Div(lamportsPerNative)
		result.TokenAmount = decimal.NewFromInt(sr.OutAmount).Div(tokenScale)
	case model.SideSell:
		// in = tokens spent, out = native received
		result.TokenAmount = decimal.NewFromInt(sr.InAmount).Div(tokenScale)
		result.NativeAmount = decimal.NewFromInt(sr.OutAmount).Div(lamportsPerNative)
	}
	return result, nil
}
