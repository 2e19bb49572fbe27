// Package gateway defines the external collaborator contracts the
// trading engine consumes — swap execution, balance lookup, and price
// lookup — plus their production HTTP adapters. The engine never knows
// whether a gateway is a local process or a remote service.
package gateway

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/SolSenseiDev/sol-sensei-engine/internal/model"
)

var (
	// ErrMissingTxID is returned when the swap executor reports success
	// without a transaction id — a contract violation treated as failure.
	ErrMissingTxID = errors.New("gateway: swap response missing txid despite success")
)

// Balances is a wallet's current holdings as reported by the balance
// oracle, in whole-unit (UI) amounts.
type Balances struct {
	// Native is the native-asset balance (SOL).
	Native decimal.Decimal

	// Token is the balance of the queried token mint.
	Token decimal.Decimal

	// TokenDecimals is the mint's base-unit scale, needed to convert
	// UI amounts back to base units on the wire.
	TokenDecimals int
}

// BalanceOracle reports current balances for a wallet address. May be
// slow or fail; a failure means the wallet's balance is unknown.
type BalanceOracle interface {
	Balances(ctx context.Context, address, tokenMint string) (Balances, error)
}

// SwapRequest describes one swap to execute against one wallet.
type SwapRequest struct {
	// Credential is the wallet's opaque encrypted signing credential,
	// passed through to the executor untouched.
	Credential string

	Side  model.Side
	Token string

	// Amount is the spend amount in UI units: native asset for buys,
	// token units for sells.
	Amount decimal.Decimal

	// TokenDecimals scales token amounts to base units on the wire.
	TokenDecimals int

	SlippageBps int

	// FeeBudget is the native-asset amount reserved for network and
	// priority fees.
	FeeBudget decimal.Decimal
}

// SwapResult is one confirmed on-chain swap.
type SwapResult struct {
	TxID string

	// TokenAmount is the token quantity traded (received on buy, spent
	// on sell), in UI units.
	TokenAmount decimal.Decimal

	// NativeAmount is the native quantity traded (spent on buy,
	// received on sell), in UI units.
	NativeAmount decimal.Decimal
}

// SwapExecutor performs one on-chain swap per call. Implementations
// must call the chain at most once per Execute invocation; retries are
// the caller's policy.
type SwapExecutor interface {
	Execute(ctx context.Context, req SwapRequest) (SwapResult, error)
}

// PriceSource returns the current USD price for a token mint.
// A price of 0 means "unknown", never "worthless".
type PriceSource interface {
	Price(ctx context.Context, tokenMint string) (decimal.Decimal, error)
}
