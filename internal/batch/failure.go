package batch

import "fmt"

// ReasonCode classifies why a single wallet's trade did not complete.
type ReasonCode string

const (
	// ReasonInvalidAmount: the amount resolver produced a non-positive
	// or unparseable amount.
	ReasonInvalidAmount ReasonCode = "InvalidAmount"

	// ReasonInsufficientFunds: native balance cannot cover the buy
	// amount plus the fee buffer.
	ReasonInsufficientFunds ReasonCode = "InsufficientFunds"

	// ReasonInsufficientTokens: token balance cannot cover the sell.
	ReasonInsufficientTokens ReasonCode = "InsufficientTokens"

	// ReasonGatewayError: the swap executor errored, timed out, or
	// violated its contract (success without txid).
	ReasonGatewayError ReasonCode = "GatewayError"

	// ReasonBalanceUnknown: the balance oracle could not be queried.
	ReasonBalanceUnknown ReasonCode = "BalanceUnknown"

	// ReasonLedgerWriteFailed: the swap confirmed on-chain but the
	// local ledger write failed. Money moved with no local record;
	// reconciliation is required. Never folded into a generic failure.
	ReasonLedgerWriteFailed ReasonCode = "LedgerWriteFailed"
)

// Failure is one wallet's failure outcome within a batch.
type Failure struct {
	Code   ReasonCode `json:"code"`
	Reason string     `json:"reason"`

	// TxID is set only for ReasonLedgerWriteFailed: the on-chain
	// transaction exists and must be reconciled against it.
	TxID string `json:"txid,omitempty"`
}

func (f Failure) String() string {
	return fmt.Sprintf("%s: %s", f.Code, f.Reason)
}

// Success is one wallet's confirmed and recorded fill.
type Success struct {
	Address string `json:"address"`
	TxID    string `json:"txid"`
}

// Result aggregates per-wallet outcomes of one batch. It is always
// returned, even when every wallet failed.
type Result struct {
	Successes []Success          `json:"successes"`
	Failures  map[string]Failure `json:"failures"`
}

// LedgerFailures returns the subset of failures that represent
// confirmed swaps with no local record — the one fatal class, surfaced
// distinctly so callers cannot miss it.
func (r *Result) LedgerFailures() map[string]Failure {
	out := make(map[string]Failure)
	for addr, f := range r.Failures {
		if f.Code == ReasonLedgerWriteFailed {
			out[addr] = f
		}
	}
	return out
}
