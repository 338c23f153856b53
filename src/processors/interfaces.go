package processors

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/username/cointax/backend/src/models"
)

// PriceFetcher supplies a USD point estimate for a coin on a date. It is
// synchronous; the implementation may cache or retry internally. The second
// return is false when no price is known, which is expected and handled,
// never an error the engine propagates.
type PriceFetcher interface {
	GetPrice(coin string, date time.Time) (decimal.Decimal, bool)
}

// StaticPrices is a PriceFetcher backed by a fixed table, used in tests and
// for offline runs where prices were pre-resolved by the ingestion layer.
type StaticPrices map[string]map[string]decimal.Decimal

func (p StaticPrices) GetPrice(coin string, date time.Time) (decimal.Decimal, bool) {
	byDate, ok := p[coin]
	if !ok {
		return decimal.Zero, false
	}
	price, ok := byDate[date.UTC().Format("2006-01-02")]
	return price, ok
}

// NoPrices is a PriceFetcher that knows nothing, forcing zero-basis
// fallbacks everywhere a price would be needed.
type NoPrices struct{}

func (NoPrices) GetPrice(string, time.Time) (decimal.Decimal, bool) {
	return decimal.Zero, false
}

// LotConsumer records the quantity one reported disposal drew from the lots
// of a single acquisition during the replay.
type LotConsumer struct {
	Disposal *models.Disposal
	Quantity decimal.Decimal
}

// MatchResult is everything one matching pass produces before wash-sale
// analysis and carryover netting run over it.
type MatchResult struct {
	Disposals []*models.Disposal
	Income    []*models.IncomeRecord
	Anomalies []models.AnomalyRecord

	// LotsByTx indexes live lots by the transaction that created them, so
	// the wash sale analyzer can locate replacement lots to re-add
	// disallowed basis to.
	LotsByTx map[string][]*models.Lot

	// LotConsumers indexes, per acquisition transaction, the disposals that
	// consumed its lots. When a replacement lot is already gone by the time
	// the wash sale analyzer runs, the disallowed basis follows the quantity
	// to the disposal that realized it instead of vanishing.
	LotConsumers map[string][]LotConsumer
}
