// Package batch fans one logical order out across a user's wallets:
// per wallet it validates affordability, calls the swap executor, and
// records the confirmed fill — one wallet's failure never affects the
// others.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/SolSenseiDev/sol-sensei-engine/internal/gateway"
	"github.com/SolSenseiDev/sol-sensei-engine/internal/ledger"
	"github.com/SolSenseiDev/sol-sensei-engine/internal/metrics"
	"github.com/SolSenseiDev/sol-sensei-engine/internal/mint"
	"github.com/SolSenseiDev/sol-sensei-engine/internal/model"
)

var (
	// ErrNoWallets is returned for an empty wallet set — a programmer
	// error, unlike per-wallet failures which are reported in Result.
	ErrNoWallets = errors.New("batch: wallet list is empty")

	// ErrInvalidSide is returned for an unrecognized trade side.
	ErrInvalidSide = errors.New("batch: side must be BUY or SELL")

	// ErrPriceUnavailable is returned when the native-asset USD price
	// cannot be fetched before the batch starts. Refusing up front is
	// safe: no swap has been issued yet, and recording fills with an
	// unknown price would corrupt cost bases.
	ErrPriceUnavailable = errors.New("batch: native asset price unavailable")
)

// AmountResolver computes the trade amount for one wallet, in UI units
// (native asset for buys, tokens for sells). It is evaluated exactly
// once per wallet and may suspend (e.g. "95% of current token balance").
type AmountResolver func(ctx context.Context, w model.Wallet) (decimal.Decimal, error)

// Config tunes the orchestrator.
type Config struct {
	// FanOut bounds concurrent wallet units, respecting gateway rate
	// limits. <= 0 means 4.
	FanOut int

	// FeeBuffer is the native-asset amount reserved per trade for
	// network and priority fees.
	FeeBuffer decimal.Decimal

	// SlippageBps is passed through to the swap executor.
	SlippageBps int
}

// Orchestrator executes batch trades. Wallet units are independent and
// run concurrently; only the user aggregate (updated downstream in
// rewards) is shared, and the store serializes that.
type Orchestrator struct {
	oracle   gateway.BalanceOracle
	swapper  gateway.SwapExecutor
	prices   gateway.PriceSource
	recorder *ledger.Recorder
	cfg      Config
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(
	oracle gateway.BalanceOracle,
	swapper gateway.SwapExecutor,
	prices gateway.PriceSource,
	recorder *ledger.Recorder,
	cfg Config,
) *Orchestrator {
	if cfg.FanOut <= 0 {
		cfg.FanOut = 4
	}
	return &Orchestrator{
		oracle:   oracle,
		swapper:  swapper,
		prices:   prices,
		recorder: recorder,
		cfg:      cfg,
	}
}

// ExecuteBatch runs one logical order against every wallet and returns
// the aggregate outcome. It returns an error only for programmer-error
// inputs (empty wallet set, invalid token or side, no usable native
// price); per-wallet problems land in Result.Failures.
func (o *Orchestrator) ExecuteBatch(
	ctx context.Context,
	userID int64,
	wallets []model.Wallet,
	token string,
	side model.Side,
	resolve AmountResolver,
) (*Result, error) {
	if len(wallets) == 0 {
		return nil, ErrNoWallets
	}
	if err := mint.Validate(token); err != nil {
		return nil, err
	}
	if !side.Valid() {
		return nil, ErrInvalidSide
	}

	// One price fetch per batch: every wallet's USD conversion uses the
	// same quote. Done before any swap so an unusable price aborts
	// while no money has moved.
	nativePrice, err := o.prices.Price(ctx, mint.Native)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPriceUnavailable, err)
	}
	if nativePrice.LessThanOrEqual(decimal.Zero) {
		return nil, ErrPriceUnavailable
	}

	metrics.BatchesTotal.WithLabelValues(string(side)).Inc()

	type outcome struct {
		address string
		txid    string
		failure *Failure
	}

	results := make(chan outcome, len(wallets))
	sem := make(chan struct{}, o.cfg.FanOut)
	var wg sync.WaitGroup

	for _, w := range wallets {
		wg.Add(1)
		go func(w model.Wallet) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			txid, failure := o.executeWallet(ctx, userID, w, token, side, nativePrice, resolve)
			results <- outcome{address: w.Address, txid: txid, failure: failure}
		}(w)
	}

	wg.Wait()
	close(results)

	res := &Result{Failures: make(map[string]Failure)}
	for out := range results {
		if out.failure != nil {
			res.Failures[out.address] = *out.failure
			metrics.WalletFillsTotal.WithLabelValues(string(side), "failure").Inc()
			metrics.FillFailures.WithLabelValues(string(out.failure.Code)).Inc()
			continue
		}
		res.Successes = append(res.Successes, Success{Address: out.address, TxID: out.txid})
		metrics.WalletFillsTotal.WithLabelValues(string(side), "success").Inc()
	}

	slog.Info("batch executed",
		"user", userID,
		"token", token,
		"side", side,
		"wallets", len(wallets),
		"successes", len(res.Successes),
		"failures", len(res.Failures),
	)

	if lf := res.LedgerFailures(); len(lf) > 0 {
		// Money moved on-chain with no local record. Loud and distinct.
		for addr, f := range lf {
			slog.Error("ledger write failed after confirmed swap",
				"user", userID, "wallet", addr, "txid", f.TxID, "reason", f.Reason)
		}
	}

	return res, nil
}

// executeWallet runs the strictly sequential per-wallet pipeline:
// resolve amount → affordability check → swap → record fill.
func (o *Orchestrator) executeWallet(
	ctx context.Context,
	userID int64,
	w model.Wallet,
	token string,
	side model.Side,
	nativePrice decimal.Decimal,
	resolve AmountResolver,
) (txid string, failure *Failure) {
	amount, err := resolve(ctx, w)
	if err != nil {
		return "", &Failure{Code: ReasonInvalidAmount, Reason: fmt.Sprintf("amount resolver: %v", err)}
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return "", &Failure{Code: ReasonInvalidAmount, Reason: fmt.Sprintf("invalid amount: %s", amount)}
	}

	bal, err := o.oracle.Balances(ctx, w.Address, token)
	if err != nil {
		return "", &Failure{Code: ReasonBalanceUnknown, Reason: fmt.Sprintf("balance lookup: %v", err)}
	}

	switch side {
	case model.SideBuy:
		required := amount.Add(o.cfg.FeeBuffer)
		if required.GreaterThan(bal.Native) {
			shortfall := required.Sub(bal.Native)
			return "", &Failure{
				Code: ReasonInsufficientFunds,
				Reason: fmt.Sprintf("need %s native (incl. fee buffer), available %s, short %s",
					required, bal.Native, shortfall),
			}
		}
	case model.SideSell:
		if amount.GreaterThan(bal.Token) {
			return "", &Failure{
				Code:   ReasonInsufficientTokens,
				Reason: fmt.Sprintf("need %s tokens, available %s", amount, bal.Token),
			}
		}
	}

	start := time.Now()
	swap, err := o.swapper.Execute(ctx, gateway.SwapRequest{
		Credential:    w.EncryptedSeed,
		Side:          side,
		Token:         token,
		Amount:        amount,
		TokenDecimals: bal.TokenDecimals,
		SlippageBps:   o.cfg.SlippageBps,
		FeeBudget:     o.cfg.FeeBuffer,
	})
	metrics.SwapLatency.WithLabelValues(string(side)).Observe(time.Since(start).Seconds())
	if err != nil {
		return "", &Failure{Code: ReasonGatewayError, Reason: err.Error()}
	}

	deltaTokens, deltaUSD := fillDeltas(side, swap, nativePrice, o.cfg.FeeBuffer)

	pricePerToken := decimal.Zero
	if swap.TokenAmount.IsPositive() {
		pricePerToken = deltaUSD.Abs().Div(swap.TokenAmount)
	}

	// The swap is confirmed on-chain: the ledger write must proceed
	// even if the caller has stopped waiting on the batch.
	writeCtx := context.WithoutCancel(ctx)
	if _, err := o.recorder.RecordFill(writeCtx, userID, w.Address, token, deltaTokens, deltaUSD, pricePerToken, swap.TxID); err != nil {
		metrics.LedgerWriteFailures.Inc()
		return "", &Failure{
			Code:   ReasonLedgerWriteFailed,
			Reason: fmt.Sprintf("swap %s confirmed but not recorded: %v", swap.TxID, err),
			TxID:   swap.TxID,
		}
	}

	return swap.TxID, nil
}

// fillDeltas converts a confirmed swap into the signed ledger deltas.
// Buys: positive tokens, positive USD cost. Sells: negative tokens,
// negative USD proceeds net of the fee buffer converted to USD.
func fillDeltas(side model.Side, swap gateway.SwapResult, nativePrice, feeBuffer decimal.Decimal) (deltaTokens, deltaUSD decimal.Decimal) {
	switch side {
	case model.SideBuy:
		return swap.TokenAmount, swap.NativeAmount.Mul(nativePrice)
	default: // SELL
		proceeds := swap.NativeAmount.Sub(feeBuffer)
		if proceeds.IsNegative() {
			proceeds = decimal.Zero
		}
		return swap.TokenAmount.Neg(), proceeds.Mul(nativePrice).Neg()
	}
}
