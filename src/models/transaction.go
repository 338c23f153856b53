package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Action classifies a single economic event in the ledger.
type Action string

const (
	ActionBuy        Action = "BUY"
	ActionSell       Action = "SELL"
	ActionIncome     Action = "INCOME"
	ActionGiftIn     Action = "GIFT_IN"
	ActionDeposit    Action = "DEPOSIT"
	ActionWithdrawal Action = "WITHDRAWAL"
	ActionTransfer   Action = "TRANSFER"
	ActionSpend      Action = "SPEND"
	ActionLoss       Action = "LOSS"
)

// ParseAction normalizes an action string from an ingested row.
// Unrecognized actions are rejected so the caller can record a
// malformed-record anomaly instead of silently guessing.
func ParseAction(s string) (Action, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return ActionBuy, nil
	case "SELL":
		return ActionSell, nil
	case "INCOME", "REWARD", "STAKING", "INTEREST":
		return ActionIncome, nil
	case "GIFT_IN", "GIFT":
		return ActionGiftIn, nil
	case "DEPOSIT":
		return ActionDeposit, nil
	case "WITHDRAWAL", "WITHDRAW":
		return ActionWithdrawal, nil
	case "TRANSFER":
		return ActionTransfer, nil
	case "SPEND":
		return ActionSpend, nil
	case "LOSS", "LOST", "STOLEN":
		return ActionLoss, nil
	default:
		return "", fmt.Errorf("unrecognized action: %q", s)
	}
}

// IsDisposal reports whether the action realizes gain or loss.
func (a Action) IsDisposal() bool {
	return a == ActionSell || a == ActionSpend || a == ActionLoss
}

// IsAcquisition reports whether the action creates new cost-basis inventory.
func (a Action) IsAcquisition() bool {
	return a == ActionBuy || a == ActionIncome || a == ActionGiftIn || a == ActionDeposit
}

// TransactionRecord is one normalized ledger entry. Records are created by
// the ingestion layer and are immutable once they reach the matching engine;
// the engine only derives new entities (lots, disposals, income) from them.
type TransactionRecord struct {
	ID          string          `json:"id"`
	Timestamp   time.Time       `json:"timestamp"` // UTC-normalized
	Action      Action          `json:"action"`
	Coin        string          `json:"coin"` // upper-case symbol
	Amount      decimal.Decimal `json:"amount"`
	PriceUSD    decimal.Decimal `json:"price_usd"` // per-unit; zero means unknown
	Fee         decimal.Decimal `json:"fee"`
	FeeCoin     string          `json:"fee_coin,omitempty"` // empty or "USD" means the fee is already USD
	Source      string          `json:"source"`
	Destination string          `json:"destination,omitempty"` // transfers only
}

// Validate rejects records the matching engine must never see. It returns a
// descriptive error; the caller decides whether that is fatal or an anomaly.
func (t *TransactionRecord) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("transaction has no id")
	}
	if t.Timestamp.IsZero() {
		return fmt.Errorf("transaction %s has no timestamp", t.ID)
	}
	if t.Coin == "" {
		return fmt.Errorf("transaction %s has no coin", t.ID)
	}
	if t.Source == "" {
		return fmt.Errorf("transaction %s has no source", t.ID)
	}
	if _, err := ParseAction(string(t.Action)); err != nil {
		return fmt.Errorf("transaction %s: %v", t.ID, err)
	}
	if !t.Amount.IsPositive() {
		return fmt.Errorf("transaction %s has non-positive amount %s", t.ID, t.Amount)
	}
	if t.PriceUSD.IsNegative() {
		return fmt.Errorf("transaction %s has negative price %s", t.ID, t.PriceUSD)
	}
	if t.Fee.IsNegative() {
		return fmt.Errorf("transaction %s has negative fee %s", t.ID, t.Fee)
	}
	if t.Action == ActionTransfer && t.Destination == "" {
		return fmt.Errorf("transfer %s has no destination", t.ID)
	}
	return nil
}
