package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BucketKey identifies one per-coin, per-source inventory bucket.
type BucketKey struct {
	Coin   string
	Source string
}

func (k BucketKey) String() string {
	return k.Coin + "/" + k.Source
}

// Lot is a discrete quantity of acquired-but-not-yet-disposed inventory.
// AcquiredAt and UnitCostBasis survive transfers between sources unchanged;
// only the bucket a lot lives in changes.
type Lot struct {
	Amount        decimal.Decimal `json:"amount"`
	UnitCostBasis decimal.Decimal `json:"unit_cost_basis"` // per-unit USD, acquisition fee amortized in
	AcquiredAt    time.Time       `json:"acquired_at"`

	// BasisAdjustment holds wash-sale disallowed loss re-added to this lot
	// as the replacement purchase. It is consumed proportionally when the
	// lot is, keeping total basis across the system conserved.
	BasisAdjustment decimal.Decimal `json:"basis_adjustment"`

	// AcquisitionTxID links the lot back to the ledger record that created
	// it, so the wash sale analyzer can exclude a disposal's own source lots
	// from its replacement set.
	AcquisitionTxID string `json:"acquisition_tx_id,omitempty"`
}

// TotalBasis is the USD basis the full remaining amount carries.
func (l *Lot) TotalBasis() decimal.Decimal {
	return l.Amount.Mul(l.UnitCostBasis).Add(l.BasisAdjustment)
}

// LotSnapshot is a lot together with its bucket, used to persist and reseed
// end-of-year holdings.
type LotSnapshot struct {
	Coin   string `json:"coin"`
	Source string `json:"source"`
	Lot    Lot    `json:"lot"`
}
