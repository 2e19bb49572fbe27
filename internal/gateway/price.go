package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// JupiterPriceClient implements PriceSource against the Jupiter price
// API (GET /price/v2?ids=<mint>).
type JupiterPriceClient struct {
	baseURL string
	httpc   *http.Client
}

// NewJupiterPriceClient creates a price client for baseURL
// (e.g. "https://lite-api.jup.ag").
func NewJupiterPriceClient(baseURL string, timeout time.Duration) *JupiterPriceClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &JupiterPriceClient{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: timeout},
	}
}

// Price returns the current USD price for a mint, or zero when the
// price is unknown (missing from the response or unparseable).
func (c *JupiterPriceClient) Price(ctx context.Context, tokenMint string) (decimal.Decimal, error) {
	u := fmt.Sprintf("%s/price/v2?ids=%s", c.baseURL, url.QueryEscape(tokenMint))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("gateway: build price request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("gateway: price call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("gateway: price api returned status %d", resp.StatusCode)
	}

	// Prices come back as strings; json.Number also covers numeric
	// responses from older API versions.
	var pr struct {
		Data map[string]struct {
			Price json.Number `json:"price"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return decimal.Zero, fmt.Errorf("gateway: decode price response: %w", err)
	}

	entry, ok := pr.Data[tokenMint]
	if !ok || entry.Price == "" {
		return decimal.Zero, nil // unknown, not worthless
	}

	price, err := decimal.NewFromString(entry.Price.String())
	if err != nil || price.IsNegative() {
		return decimal.Zero, nil
	}
	return price, nil
}
