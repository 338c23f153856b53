package processors

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/username/cointax/backend/src/config"
	"github.com/username/cointax/backend/src/inventory"
	"github.com/username/cointax/backend/src/ledger"
	"github.com/username/cointax/backend/src/logger"
	"github.com/username/cointax/backend/src/models"
	"github.com/username/cointax/backend/src/utils"
)

// longTermDays is the holding period threshold: strictly more than this
// many days makes a disposal long-term.
const longTermDays = 365

// MatchingProcessor replays the ledger in order, mutating the lot inventory
// and emitting disposal and income records. It owns no I/O; prices come in
// through the synchronous PriceFetcher and everything else is pure state.
type MatchingProcessor struct {
	policy *config.PolicyConfig
	prices PriceFetcher
	inv    *inventory.Inventory
}

func NewMatchingProcessor(policy *config.PolicyConfig, prices PriceFetcher, inv *inventory.Inventory) *MatchingProcessor {
	return &MatchingProcessor{policy: policy, prices: prices, inv: inv}
}

// Process replays every ledger record with a timestamp in or before the
// target year. Records beyond the year boundary are left for the next
// year's run; the wash sale analyzer still reads them from the ledger for
// its replacement window. Internal per-record failures become anomalies,
// never errors that unwind past the caller.
func (p *MatchingProcessor) Process(l *ledger.Ledger, year int) *MatchResult {
	res := &MatchResult{
		LotsByTx:     make(map[string][]*models.Lot),
		LotConsumers: make(map[string][]LotConsumer),
	}
	res.Anomalies = append(res.Anomalies, l.Anomalies()...)

	for _, rec := range l.Records() {
		if rec.Timestamp.Year() > year {
			break
		}
		switch rec.Action {
		case models.ActionBuy:
			p.handleAcquisition(rec, res, true)
		case models.ActionIncome, models.ActionGiftIn:
			p.handleIncome(rec, res, year)
		case models.ActionDeposit:
			p.handleDeposit(rec, res)
		case models.ActionWithdrawal:
			p.handleWithdrawal(rec)
		case models.ActionTransfer:
			p.handleTransfer(rec, res)
		case models.ActionSell, models.ActionSpend, models.ActionLoss:
			p.handleDisposal(rec, res, year)
		}
	}
	return res
}

// effectivePrice resolves the per-unit USD price for a record, falling back
// to the price fetcher when the ingested row carried none.
func (p *MatchingProcessor) effectivePrice(rec models.TransactionRecord, res *MatchResult) decimal.Decimal {
	if rec.PriceUSD.IsPositive() {
		return rec.PriceUSD
	}
	if price, ok := p.prices.GetPrice(rec.Coin, rec.Timestamp); ok {
		return price
	}
	res.Anomalies = append(res.Anomalies, models.AnomalyRecord{
		ID:      uuid.NewString(),
		TxID:    rec.ID,
		Date:    rec.Timestamp,
		Kind:    models.AnomalyPriceUnavailable,
		Message: fmt.Sprintf("no price for %s on %s, using zero", rec.Coin, rec.Timestamp.Format(utils.DefaultDateFormat)),
	})
	return decimal.Zero
}

// feeUSD converts a record's fee to USD. Fees denominated in another coin
// are valued at that coin's price on the transaction date.
func (p *MatchingProcessor) feeUSD(rec models.TransactionRecord, res *MatchResult) decimal.Decimal {
	if rec.Fee.IsZero() {
		return decimal.Zero
	}
	if rec.FeeCoin == "" || rec.FeeCoin == "USD" {
		return rec.Fee
	}
	if price, ok := p.prices.GetPrice(rec.FeeCoin, rec.Timestamp); ok {
		return rec.Fee.Mul(price)
	}
	res.Anomalies = append(res.Anomalies, models.AnomalyRecord{
		ID:      uuid.NewString(),
		TxID:    rec.ID,
		Date:    rec.Timestamp,
		Kind:    models.AnomalyPriceUnavailable,
		Message: fmt.Sprintf("no price for fee coin %s on %s, fee ignored", rec.FeeCoin, rec.Timestamp.Format(utils.DefaultDateFormat)),
	})
	return decimal.Zero
}

func (p *MatchingProcessor) insertLot(rec models.TransactionRecord, unitCost decimal.Decimal, res *MatchResult) {
	key := models.BucketKey{Coin: rec.Coin, Source: rec.Source}
	lot := p.inv.Insert(key, models.Lot{
		Amount:          rec.Amount,
		UnitCostBasis:   unitCost,
		AcquiredAt:      rec.Timestamp,
		AcquisitionTxID: rec.ID,
	})
	res.LotsByTx[rec.ID] = append(res.LotsByTx[rec.ID], lot)
}

// handleAcquisition inserts a lot with the acquisition fee amortized into
// the per-unit basis.
func (p *MatchingProcessor) handleAcquisition(rec models.TransactionRecord, res *MatchResult, includeFee bool) {
	price := p.effectivePrice(rec, res)
	total := rec.Amount.Mul(price)
	if includeFee {
		total = total.Add(p.feeUSD(rec, res))
	}
	unitCost := total.Div(rec.Amount)
	p.insertLot(rec, unitCost, res)
	logger.L.Debug("BUY", "coin", rec.Coin, "source", rec.Source, "amount", rec.Amount, "unitCost", unitCost)
}

// handleIncome records ordinary income at fair market value and inserts a
// lot at that same value (constructive receipt). When staking income is
// configured as taxable on disposal instead of receipt, the lot enters at
// zero basis and no income record is emitted.
func (p *MatchingProcessor) handleIncome(rec models.TransactionRecord, res *MatchResult, year int) {
	if rec.Action == models.ActionIncome && !p.policy.StakingTaxableOnReceipt {
		p.insertLot(rec, decimal.Zero, res)
		logger.L.Debug("INCOME deferred to disposal (zero-basis lot)", "coin", rec.Coin, "txID", rec.ID)
		return
	}
	price := p.effectivePrice(rec, res)
	p.insertLot(rec, price, res)
	if rec.Timestamp.Year() == year {
		res.Income = append(res.Income, &models.IncomeRecord{
			ID:       "inc-" + rec.ID,
			TxID:     rec.ID,
			Date:     rec.Timestamp,
			Coin:     rec.Coin,
			Source:   rec.Source,
			Amount:   rec.Amount,
			USDValue: rec.Amount.Mul(price),
		})
	}
}

// handleDeposit seeds inventory for an external transfer in. Basis is
// unknown, so the lot enters at zero cost unless policy says to trust the
// deposit's price field.
func (p *MatchingProcessor) handleDeposit(rec models.TransactionRecord, res *MatchResult) {
	unitCost := decimal.Zero
	if p.policy.DepositBasisFromPrice && rec.PriceUSD.IsPositive() {
		unitCost = rec.PriceUSD
	}
	p.insertLot(rec, unitCost, res)
}

// handleWithdrawal removes inventory non-taxably. The counterpart deposit
// at the receiving venue is its own ledger record.
func (p *MatchingProcessor) handleWithdrawal(rec models.TransactionRecord) {
	key := models.BucketKey{Coin: rec.Coin, Source: rec.Source}
	consumed := p.inv.SelectAndConsume(key, rec.Amount, p.policy.AccountingMethod)
	taken := decimal.Zero
	for _, c := range consumed {
		taken = taken.Add(c.Quantity)
	}
	if taken.LessThan(rec.Amount) {
		logger.L.Debug("Withdrawal exceeds recorded inventory",
			"coin", rec.Coin, "source", rec.Source, "requested", rec.Amount, "available", taken)
	}
}

// handleTransfer relocates lots between sources, preserving acquisition
// date and unit basis exactly. Non-taxable; the record's price is ignored.
func (p *MatchingProcessor) handleTransfer(rec models.TransactionRecord, res *MatchResult) {
	from := models.BucketKey{Coin: rec.Coin, Source: rec.Source}
	to := models.BucketKey{Coin: rec.Coin, Source: rec.Destination}
	moved := p.inv.Relocate(from, to, rec.Amount, p.policy.AccountingMethod)
	if moved.LessThan(rec.Amount) {
		res.Anomalies = append(res.Anomalies, models.AnomalyRecord{
			ID:      uuid.NewString(),
			TxID:    rec.ID,
			Date:    rec.Timestamp,
			Kind:    models.AnomalyInsufficientBasis,
			Message: fmt.Sprintf("transfer of %s %s from %s moved only %s", rec.Amount, rec.Coin, rec.Source, moved),
		})
	}
}

// borrowSources lists the other sources a disposal may draw basis from once
// its own bucket is exhausted. Strict broker mode isolates broker wallets
// from non-broker wallets in both directions.
func (p *MatchingProcessor) borrowSources(coin, disposalSource string) []string {
	var out []string
	for _, src := range p.inv.SourcesFor(coin) {
		if src == disposalSource {
			continue
		}
		if p.policy.StrictBrokerMode && p.policy.IsBroker(disposalSource) != p.policy.IsBroker(src) {
			continue
		}
		out = append(out, src)
	}
	return out
}

// handleDisposal matches a sell/spend/loss against the inventory and emits
// one Disposal per distinct acquisition date so the short/long term split
// is exact, never averaged.
func (p *MatchingProcessor) handleDisposal(rec models.TransactionRecord, res *MatchResult, year int) {
	price := p.effectivePrice(rec, res)
	proceedsTotal := rec.Amount.Mul(price).Sub(p.feeUSD(rec, res))

	key := models.BucketKey{Coin: rec.Coin, Source: rec.Source}
	consumed := p.inv.SelectAndConsume(key, rec.Amount, p.policy.AccountingMethod)

	taken := decimal.Zero
	for _, c := range consumed {
		taken = taken.Add(c.Quantity)
	}

	// Cross-wallet fallback for missing local history, subject to strict
	// broker isolation.
	if taken.LessThan(rec.Amount) {
		for _, src := range p.borrowSources(rec.Coin, rec.Source) {
			shortfall := rec.Amount.Sub(taken)
			if utils.IsDust(shortfall) {
				break
			}
			extra := p.inv.SelectAndConsume(models.BucketKey{Coin: rec.Coin, Source: src}, shortfall, p.policy.AccountingMethod)
			for _, c := range extra {
				taken = taken.Add(c.Quantity)
			}
			consumed = append(consumed, extra...)
		}
	}

	// Whatever is still unmatched is valued by the price estimate, or zero
	// basis under strict broker mode (unprovable basis) or when no estimate
	// exists. Either way it is an anomaly for the audit trail.
	shortfall := rec.Amount.Sub(taken)
	estimated := false
	if !utils.IsDust(shortfall) {
		estimated = true
		basis := decimal.Zero
		msg := fmt.Sprintf("disposal of %s %s exceeds recorded lots by %s", rec.Amount, rec.Coin, shortfall)
		if p.policy.StrictBrokerMode && p.policy.IsBroker(rec.Source) {
			msg += "; strict broker mode, zero basis"
		} else if estimate, ok := p.prices.GetPrice(rec.Coin, rec.Timestamp); ok {
			basis = shortfall.Mul(estimate)
			msg += fmt.Sprintf("; estimated basis %s", basis)
		} else {
			msg += "; no price estimate, zero basis"
		}
		consumed = append(consumed, inventory.Consumption{
			Quantity:      shortfall,
			UnitCostBasis: decimal.Zero,
			CostBasis:     basis,
			AcquiredAt:    rec.Timestamp,
		})
		res.Anomalies = append(res.Anomalies, models.AnomalyRecord{
			ID:      uuid.NewString(),
			TxID:    rec.ID,
			Date:    rec.Timestamp,
			Kind:    models.AnomalyInsufficientBasis,
			Message: msg,
		})
		logger.L.Warn("Insufficient basis for disposal", "txID", rec.ID, "coin", rec.Coin, "shortfall", shortfall)
	}

	if rec.Timestamp.Year() != year {
		return // prior-year disposal replayed only to advance inventory state
	}

	groups := groupByAcquisitionDate(consumed)
	allocated := decimal.Zero
	for gi, group := range groups {
		qty := decimal.Zero
		basis := decimal.Zero
		var txIDs []string
		for _, c := range group {
			qty = qty.Add(c.Quantity)
			basis = basis.Add(c.CostBasis)
			if c.AcquisitionTxID != "" {
				txIDs = append(txIDs, c.AcquisitionTxID)
			}
		}
		// Proportional allocation; the last group takes the exact remainder
		// so the sub-disposal proceeds always sum to the event total.
		proceeds := proceedsTotal.Sub(allocated)
		if gi < len(groups)-1 {
			proceeds = proceedsTotal.Mul(qty).Div(rec.Amount)
			allocated = allocated.Add(proceeds)
		}
		term := models.TermShort
		if utils.HoldingDays(group[0].AcquiredAt, rec.Timestamp) > longTermDays {
			term = models.TermLong
		}
		// Deterministic id: re-running a year on frozen inputs must yield
		// an identical disposal list.
		disp := &models.Disposal{
			ID:             fmt.Sprintf("%s:%s", rec.ID, group[0].AcquiredAt.UTC().Format("2006-01-02")),
			TxID:           rec.ID,
			Date:           rec.Timestamp,
			Coin:           rec.Coin,
			Source:         rec.Source,
			Amount:         qty,
			Proceeds:       proceeds,
			CostBasis:      basis,
			Term:           term,
			AcquiredAt:     group[0].AcquiredAt,
			ConsumedTxIDs:  txIDs,
			EstimatedBasis: estimated && group[0].AcquisitionTxID == "",
		}
		res.Disposals = append(res.Disposals, disp)
		for _, c := range group {
			if c.AcquisitionTxID != "" {
				res.LotConsumers[c.AcquisitionTxID] = append(res.LotConsumers[c.AcquisitionTxID],
					LotConsumer{Disposal: disp, Quantity: c.Quantity})
			}
		}
	}
}

// groupByAcquisitionDate partitions consumptions by calendar day of
// acquisition, preserving consumption order between groups.
func groupByAcquisitionDate(consumed []inventory.Consumption) [][]inventory.Consumption {
	var order []string
	byDate := make(map[string][]inventory.Consumption)
	for _, c := range consumed {
		day := c.AcquiredAt.UTC().Format("2006-01-02")
		if _, ok := byDate[day]; !ok {
			order = append(order, day)
		}
		byDate[day] = append(byDate[day], c)
	}
	groups := make([][]inventory.Consumption, 0, len(order))
	for _, day := range order {
		groups = append(groups, byDate[day])
	}
	return groups
}

// Inventory exposes the processor's inventory for end-of-run snapshots.
func (p *MatchingProcessor) Inventory() *inventory.Inventory {
	return p.inv
}
