package processors

import (
	"github.com/shopspring/decimal"

	"github.com/username/cointax/backend/src/config"
	"github.com/username/cointax/backend/src/inventory"
	"github.com/username/cointax/backend/src/ledger"
	"github.com/username/cointax/backend/src/logger"
	"github.com/username/cointax/backend/src/models"
)

// RunInput is everything one tax-year computation needs. SeedLots carries
// the prior year's end-of-year open lots so the ledger does not have to
// reach back to the beginning of time; when it is empty the ledger itself
// must contain the full history.
type RunInput struct {
	Year        int
	Records     []models.TransactionRecord
	SeedLots    []models.LotSnapshot
	CarryoverIn models.CarryoverState
}

// Engine wires the ledger, inventory, matching, wash sale and carryover
// stages into one deterministic pass. A run is a pure function of its
// input: same records, seed and policy always produce the same result, so
// re-running a year is always safe.
type Engine struct {
	policy *config.PolicyConfig
	prices PriceFetcher
}

func NewEngine(policy *config.PolicyConfig, prices PriceFetcher) *Engine {
	return &Engine{policy: policy, prices: prices}
}

// Run replays the ledger through the target year and assembles the year's
// result. Lot snapshots are taken after wash sale analysis so the basis
// adjustments written onto replacement lots survive into next year's seed.
func (e *Engine) Run(in RunInput) *models.TaxYearResult {
	l := ledger.New(in.Records)
	inv := inventory.New()
	inv.Seed(in.SeedLots)

	logger.L.Info("Starting tax year run",
		"year", in.Year, "records", l.Len(), "seedLots", len(in.SeedLots),
		"method", e.policy.AccountingMethod)

	matcher := NewMatchingProcessor(e.policy, e.prices, inv)
	res := matcher.Process(l, in.Year)

	washLog := NewWashSaleProcessor(e.policy, l).Analyze(res)

	netShort, netLong, carryOut := NewCarryoverProcessor().Net(res.Disposals, in.CarryoverIn)

	totalIncome := decimal.Zero
	for _, inc := range res.Income {
		totalIncome = totalIncome.Add(inc.USDValue)
	}

	result := &models.TaxYearResult{
		Year:         in.Year,
		Disposals:    res.Disposals,
		Income:       res.Income,
		WashSaleLog:  washLog,
		Holdings:     inv.Holdings(),
		LotSnapshots: inv.Snapshots(),
		CarryoverOut: carryOut,
		Anomalies:    res.Anomalies,
		NetShortTerm: netShort,
		NetLongTerm:  netLong,
		TotalIncome:  totalIncome,
	}

	logger.L.Info("Tax year run complete",
		"year", in.Year, "disposals", len(result.Disposals),
		"netShortTerm", netShort, "netLongTerm", netLong,
		"income", totalIncome, "anomalies", len(result.Anomalies))
	return result
}
