package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// SolanaOracle implements BalanceOracle against a Solana JSON-RPC node.
type SolanaOracle struct {
	rpcURL string
	httpc  *http.Client
}

// NewSolanaOracle creates a balance oracle for the given RPC endpoint.
func NewSolanaOracle(rpcURL string, timeout time.Duration) *SolanaOracle {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SolanaOracle{
		rpcURL: rpcURL,
		httpc:  &http.Client{Timeout: timeout},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

func (o *SolanaOracle) call(ctx context.Context, method string, params []any, result any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("gateway: marshal rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.rpcURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("gateway: build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("gateway: rpc %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway: rpc %s returned status %d", method, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("gateway: decode rpc %s response: %w", method, err)
	}
	return nil
}

// Balances fetches the native balance and the token balance for one
// wallet. Any RPC failure means the balances are unknown.
func (o *SolanaOracle) Balances(ctx context.Context, address, tokenMint string) (Balances, error) {
	var balResp struct {
		Result struct {
			Value int64 `json:"value"`
		} `json:"result"`
	}
	if err := o.call(ctx, "getBalance", []any{address}, &balResp); err != nil {
		return Balances{}, err
	}

	var tokResp struct {
		Result struct {
			Value []struct {
				Account struct {
					Data struct {
						Parsed struct {
							Info struct {
								TokenAmount struct {
									Amount   string `json:"amount"`
									Decimals int    `json:"decimals"`
								} `json:"tokenAmount"`
							} `json:"info"`
						} `json:"parsed"`
					} `json:"data"`
				} `json:"account"`
			} `json:"value"`
		} `json:"result"`
	}
	err := o.call(ctx, "getTokenAccountsByOwner",
		[]any{address, map[string]string{"mint": tokenMint}, map[string]string{"encoding": "jsonParsed"}},
		&tokResp)
	if err != nil {
		return Balances{}, err
	}

	b := Balances{
		Native: decimal.NewFromInt(balResp.Result.Value).Div(lamportsPerNative),
	}

	if len(tokResp.Result.Value) > 0 {
		ta := tokResp.Result.Value[0].Account.Data.Parsed.Info.TokenAmount
		raw, err := decimal.NewFromString(ta.Amount)
		if err != nil {
			return Balances{}, fmt.Errorf("gateway: parse token amount %q: %w", ta.Amount, err)
		}
		b.Token = raw.Div(decimal.New(1, int32(ta.Decimals)))
		b.TokenDecimals = ta.Decimals
	}

	return b, nil
}
