package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/SolSenseiDev/sol-sensei-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestSwapperClient_BuyConvertsUnits(t *testing.T) {
	var got swapPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/swap" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		json.NewEncoder(w).Encode(swapResponse{
			Success:   true,
			TxID:      "tx123",
			InAmount:  1_500_000_000, // 1.5 SOL in lamports
			OutAmount: 50_000_000,    // 50 tokens at 6 decimals
		})
	}))
	defer srv.Close()

	c := NewSwapperClient(srv.URL, time.Second)
	res, err := c.Execute(context.Background(), SwapRequest{
		Credential:    "encrypted-seed",
		Side:          model.SideBuy,
		Token:         "SomeMint111111111111111111111111111111111111",
		Amount:        d(1.5),
		TokenDecimals: 6,
		SlippageBps:   100,
		FeeBudget:     d(0.01),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.Action != "buy_fixed" {
		t.Errorf("action = %q, want buy_fixed", got.Action)
	}
	if got.Amount != 1_500_000_000 {
		t.Errorf("wire amount = %d, want 1500000000 lamports", got.Amount)
	}
	if got.TotalFeeLamports != 10_000_000 {
		t.Errorf("fee lamports = %d, want 10000000", got.TotalFeeLamports)
	}
	if got.PrivateKey != "encrypted-seed" || got.SlippageBps != 100 {
		t.Errorf("credential/slippage not passed through: %+v", got)
	}

	if res.TxID != "tx123" {
		t.Errorf("txid = %q", res.TxID)
	}
	if !res.NativeAmount.Equal(d(1.5)) {
		t.Errorf("native = %s, want 1.5", res.NativeAmount)
	}
	if !res.TokenAmount.Equal(d(50)) {
		t.Errorf("tokens = %s, want 50", res.TokenAmount)
	}
}

func TestSwapperClient_SellConvertsUnits(t *testing.T) {
	var got swapPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(swapResponse{
			Success:   true,
			TxID:      "tx456",
			InAmount:  25_000_000,  // 25 tokens at 6 decimals
			OutAmount: 750_000_000, // 0.75 SOL
		})
	}))
	defer srv.Close()

	c := NewSwapperClient(srv.URL, time.Second)
	res, err := c.Execute(context.Background(), SwapRequest{
		Side:          model.SideSell,
		Token:         "SomeMint111111111111111111111111111111111111",
		Amount:        d(25),
		TokenDecimals: 6,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.Action != "sell_fixed" {
		t.Errorf("action = %q, want sell_fixed", got.Action)
	}
	if got.Amount != 25_000_000 {
		t.Errorf("wire amount = %d, want 25000000 base units", got.Amount)
	}
	if !res.TokenAmount.Equal(d(25)) {
		t.Errorf("tokens = %s, want 25", res.TokenAmount)
	}
	if !res.NativeAmount.Equal(d(0.75)) {
		t.Errorf("native = %s, want 0.75", res.NativeAmount)
	}
}

func TestSwapperClient_ExecutorFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(swapResponse{Success: false, Error: "slippage exceeded"})
	}))
	defer srv.Close()

	c := NewSwapperClient(srv.URL, time.Second)
	_, err := c.Execute(context.Background(), SwapRequest{Side: model.SideBuy, Amount: d(1)})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestSwapperClient_SuccessWithoutTxIDIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(swapResponse{Success: true, InAmount: 1, OutAmount: 1})
	}))
	defer srv.Close()

	c := NewSwapperClient(srv.URL, time.Second)
	_, err := c.Execute(context.Background(), SwapRequest{Side: model.SideBuy, Amount: d(1)})
	if !errors.Is(err, ErrMissingTxID) {
		t.Fatalf("expected ErrMissingTxID, got %v", err)
	}
}

func TestSwapperClient_Non200Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewSwapperClient(srv.URL, time.Second)
	_, err := c.Execute(context.Background(), SwapRequest{Side: model.SideBuy, Amount: d(1)})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestSwapperClient_UnknownSide(t *testing.T) {
	c := NewSwapperClient("http://unused", time.Second)
	_, err := c.Execute(context.Background(), SwapRequest{Side: model.Side("HOLD"), Amount: d(1)})
	if err == nil {
		t.Fatal("expected error for unknown side")
	}
}
