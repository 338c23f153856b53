package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Term classifies a disposal's holding period. Long means held strictly
// longer than 365 days.
type Term string

const (
	TermShort Term = "SHORT"
	TermLong  Term = "LONG"
)

// Disposal is one realized gain/loss record. The matching engine creates it;
// the wash sale analyzer may later fill WashSaleDisallowed in place. When a
// sell consumes lots with different acquisition dates the engine emits one
// Disposal per distinct date so the short/long split is exact.
type Disposal struct {
	ID         string          `json:"id"`
	TxID       string          `json:"tx_id"` // ledger record that triggered the disposal
	Date       time.Time       `json:"date"`
	Coin       string          `json:"coin"`
	Source     string          `json:"source"`
	Amount     decimal.Decimal `json:"amount"`
	Proceeds   decimal.Decimal `json:"proceeds"`
	CostBasis  decimal.Decimal `json:"cost_basis"`
	Term       Term            `json:"term"`
	AcquiredAt time.Time       `json:"acquired_at"`

	// WashSaleDisallowed reduces the reported loss; zero when no wash sale
	// applies. The same amount is re-added to the replacement lot's basis.
	WashSaleDisallowed decimal.Decimal `json:"wash_sale_disallowed"`

	// ConsumedTxIDs are the acquisition transactions whose lots supplied the
	// basis, used by the wash sale analyzer to avoid double counting.
	ConsumedTxIDs []string `json:"-"`

	// EstimatedBasis marks a disposal whose basis (or part of it) came from
	// the price-estimate or zero-basis fallback rather than recorded lots.
	EstimatedBasis bool `json:"estimated_basis,omitempty"`
}

// Gain is proceeds minus basis before any wash-sale adjustment.
func (d *Disposal) Gain() decimal.Decimal {
	return d.Proceeds.Sub(d.CostBasis)
}

// AdjustedGain is the reportable gain/loss after wash-sale disallowance.
func (d *Disposal) AdjustedGain() decimal.Decimal {
	return d.Proceeds.Sub(d.CostBasis).Add(d.WashSaleDisallowed)
}

// IncomeRecord is one ordinary-income event (staking reward, gift at FMV).
// Income events are simultaneously acquisitions; the engine inserts a lot at
// the same fair market value.
type IncomeRecord struct {
	ID       string          `json:"id"`
	TxID     string          `json:"tx_id"`
	Date     time.Time       `json:"date"`
	Coin     string          `json:"coin"`
	Source   string          `json:"source"`
	Amount   decimal.Decimal `json:"amount"`
	USDValue decimal.Decimal `json:"usd_value"`
}

// WashSaleEntry logs one wash-sale adjustment for the audit trail.
type WashSaleEntry struct {
	DisposalID     string          `json:"disposal_id"`
	Coin           string          `json:"coin"`
	Date           time.Time       `json:"date"`
	ReplacementQty decimal.Decimal `json:"replacement_qty"`
	Proportion     decimal.Decimal `json:"proportion"`
	LossDisallowed decimal.Decimal `json:"loss_disallowed"`
}

// AnomalyRecord flags partial or low-confidence data the run degraded
// through instead of halting on.
type AnomalyRecord struct {
	ID      string    `json:"id"`
	TxID    string    `json:"tx_id,omitempty"`
	Date    time.Time `json:"date"`
	Kind    string    `json:"kind"` // e.g. "malformed_record", "insufficient_basis", "price_unavailable"
	Message string    `json:"message"`
}

const (
	AnomalyMalformedRecord   = "malformed_record"
	AnomalyInsufficientBasis = "insufficient_basis"
	AnomalyPriceUnavailable  = "price_unavailable"
	AnomalyCorruptPriorYear  = "corrupt_prior_year"
)

// CarryoverState carries unused capital losses between tax years. Both
// fields are non-negative; a missing prior-year summary yields zeros.
type CarryoverState struct {
	ShortTermLoss decimal.Decimal `json:"short_term_loss"`
	LongTermLoss  decimal.Decimal `json:"long_term_loss"`
}

// TaxYearResult is everything one run of the engine produces for a year.
// All monetary fields are exact decimals; two-decimal display formatting
// happens strictly outside the core.
type TaxYearResult struct {
	Year         int                           `json:"year"`
	Disposals    []*Disposal                   `json:"disposals"`
	Income       []*IncomeRecord               `json:"income"`
	WashSaleLog  []WashSaleEntry               `json:"wash_sale_log"`
	Holdings     map[BucketKey]decimal.Decimal `json:"-"`
	LotSnapshots []LotSnapshot                 `json:"lot_snapshots"`
	CarryoverOut CarryoverState                `json:"carryover_out"`
	Anomalies    []AnomalyRecord               `json:"anomalies"`

	// Netted current-year totals after wash-sale adjustment and prior-year
	// carryover ordering. Negative values are losses.
	NetShortTerm decimal.Decimal `json:"net_short_term"`
	NetLongTerm  decimal.Decimal `json:"net_long_term"`
	TotalIncome  decimal.Decimal `json:"total_income"`
}
