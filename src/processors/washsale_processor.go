package processors

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/username/cointax/backend/src/config"
	"github.com/username/cointax/backend/src/ledger"
	"github.com/username/cointax/backend/src/logger"
	"github.com/username/cointax/backend/src/models"
	"github.com/username/cointax/backend/src/utils"
)

// washWindowDays is the reach of the replacement window on each side of a
// loss disposal, both bounds inclusive.
const washWindowDays = 30

// washMaxPasses bounds the propagation loop. Forwarding disallowed basis to
// a disposal that consumed a replacement lot deepens that disposal's loss,
// which can wash in turn; real ledgers settle within a pass or two.
const washMaxPasses = 10

// WashSaleProcessor scans loss disposals for replacement purchases of a
// substantially identical asset within the 61-day window and disallows the
// matched share of each loss. Disallowed basis is conserved: it lands on the
// replacement lots still open in the inventory, or, when a replacement lot
// was already consumed by another disposal in the same run, on that
// disposal's cost basis. Replacements acquired after the year boundary are
// logged but adjust nothing in the current run.
type WashSaleProcessor struct {
	policy *config.PolicyConfig
	ledger *ledger.Ledger
}

func NewWashSaleProcessor(policy *config.PolicyConfig, l *ledger.Ledger) *WashSaleProcessor {
	return &WashSaleProcessor{policy: policy, ledger: l}
}

// replacementTake is one slice of a replacement buy's quantity reserved by a
// washed disposal.
type replacementTake struct {
	buyID string
	qty   decimal.Decimal
}

// washState pins down a disposal's matched replacements. Proportion and
// takes are fixed on first match; only the loss they apply to can grow when
// propagated basis deepens it.
type washState struct {
	proportion  decimal.Decimal
	matchedQty  decimal.Decimal
	takes       []replacementTake
	appliedLoss decimal.Decimal
	logIdx      int
}

// Analyze walks the disposals in replay order and mutates WashSaleDisallowed
// and, for disposals that consumed replacement lots, CostBasis in place.
// Each replacement purchase can absorb a loss only once; quantity already
// matched to an earlier disposal is not available to a later one. Passes
// repeat until no disposal's loss grows any further.
func (w *WashSaleProcessor) Analyze(res *MatchResult) []models.WashSaleEntry {
	var log []models.WashSaleEntry
	usedReplacement := make(map[string]decimal.Decimal)
	states := make(map[*models.Disposal]*washState)

	// A sell split across acquisition dates is one economic event: no
	// sub-disposal may treat a sibling's consumed acquisition as replacement.
	consumedByEvent := make(map[string]map[string]bool)
	for _, d := range res.Disposals {
		set := consumedByEvent[d.TxID]
		if set == nil {
			set = make(map[string]bool)
			consumedByEvent[d.TxID] = set
		}
		for _, id := range d.ConsumedTxIDs {
			set[id] = true
		}
	}

	changed := true
	for pass := 0; changed; pass++ {
		if pass == washMaxPasses {
			logger.L.Warn("Wash sale propagation did not settle, stopping", "passes", pass)
			break
		}
		changed = false
		for _, d := range res.Disposals {
			loss := d.Gain().Neg()
			if !loss.IsPositive() {
				continue
			}
			st := states[d]
			if st == nil {
				st = w.matchReplacements(d, consumedByEvent[d.TxID], usedReplacement)
				states[d] = st
			}
			if !st.proportion.IsPositive() || !loss.GreaterThan(st.appliedLoss) {
				continue
			}
			extra := loss.Sub(st.appliedLoss).Mul(st.proportion)
			st.appliedLoss = loss
			if utils.IsDust(extra) {
				continue
			}
			d.WashSaleDisallowed = d.WashSaleDisallowed.Add(extra)
			w.distribute(res, st, extra)
			if st.logIdx < 0 {
				st.logIdx = len(log)
				log = append(log, models.WashSaleEntry{
					DisposalID:     d.ID,
					Coin:           d.Coin,
					Date:           d.Date,
					ReplacementQty: st.matchedQty,
					Proportion:     st.proportion,
				})
			}
			log[st.logIdx].LossDisallowed = d.WashSaleDisallowed
			changed = true
			logger.L.Info("Wash sale disallowance",
				"coin", d.Coin, "date", d.Date.Format("2006-01-02"),
				"loss", loss, "disallowed", d.WashSaleDisallowed, "proportion", st.proportion)
		}
	}
	return log
}

// matchReplacements reserves replacement quantity for a loss disposal in
// window order, recording which buys supplied it.
func (w *WashSaleProcessor) matchReplacements(d *models.Disposal, excluded map[string]bool, used map[string]decimal.Decimal) *washState {
	st := &washState{logIdx: -1}
	replacements := w.replacementBuys(d, excluded)

	replacementQty := decimal.Zero
	for _, buy := range replacements {
		if avail := buy.Amount.Sub(used[buy.ID]); avail.IsPositive() {
			replacementQty = replacementQty.Add(avail)
		}
	}
	if !replacementQty.IsPositive() {
		return st
	}

	proportion := replacementQty.Div(d.Amount)
	if proportion.GreaterThan(decimal.NewFromInt(1)) {
		proportion = decimal.NewFromInt(1)
	}
	matchedQty := d.Amount.Mul(proportion)

	remaining := matchedQty
	for _, buy := range replacements {
		if !remaining.IsPositive() {
			break
		}
		avail := buy.Amount.Sub(used[buy.ID])
		if !avail.IsPositive() {
			continue
		}
		take := avail
		if take.GreaterThan(remaining) {
			take = remaining
		}
		used[buy.ID] = used[buy.ID].Add(take)
		remaining = remaining.Sub(take)
		st.takes = append(st.takes, replacementTake{buyID: buy.ID, qty: take})
	}

	st.proportion = proportion
	st.matchedQty = matchedQty
	return st
}

// replacementBuys collects acquisition records of any substantially
// identical asset inside the window around the disposal, excluding every
// acquisition consumed by the disposal's own sell event. The window is
// day-granular: any time of day on the 30th day before or after counts.
func (w *WashSaleProcessor) replacementBuys(d *models.Disposal, excluded map[string]bool) []models.TransactionRecord {
	day := d.Date.UTC().Truncate(24 * time.Hour)
	from := day.AddDate(0, 0, -washWindowDays)
	to := day.AddDate(0, 0, washWindowDays).Add(24*time.Hour - time.Nanosecond)

	var out []models.TransactionRecord
	for _, coin := range w.equivalentCoins(d.Coin) {
		for _, buy := range w.ledger.BuysWithin(coin, from, to) {
			if excluded[buy.ID] {
				continue
			}
			out = append(out, buy)
		}
	}
	return out
}

// equivalentCoins returns the disposal's coin plus every coin it shares an
// equivalence group with.
func (w *WashSaleProcessor) equivalentCoins(coin string) []string {
	coins := []string{coin}
	seen := map[string]bool{coin: true}
	for _, group := range w.policy.EquivalenceGroups {
		inGroup := false
		for _, c := range group {
			if w.policy.SubstantiallyIdentical(c, coin) && c != coin {
				inGroup = true
			}
		}
		if !inGroup {
			continue
		}
		for _, c := range group {
			if !seen[c] {
				seen[c] = true
				coins = append(coins, c)
			}
		}
	}
	return coins
}

// distribute spreads extra disallowed loss over the reserved takes pro rata,
// giving the last take the exact remainder so division rounding never leaks
// basis.
func (w *WashSaleProcessor) distribute(res *MatchResult, st *washState, extra decimal.Decimal) {
	allocated := decimal.Zero
	for i, take := range st.takes {
		share := extra.Sub(allocated)
		if i < len(st.takes)-1 {
			share = extra.Mul(take.qty).Div(st.matchedQty)
			allocated = allocated.Add(share)
		}
		w.applyShare(res, take.buyID, share)
	}
}

// applyShare lands one buy's share of disallowed basis. Quantity still open
// absorbs it as BasisAdjustment on the lot; quantity a reported disposal
// already consumed raises that disposal's cost basis directly, so the basis
// the washed loss gave up reappears exactly once. Buys with neither, such as
// next year's purchases that were never replayed, keep their share in the
// wash log only.
func (w *WashSaleProcessor) applyShare(res *MatchResult, buyID string, share decimal.Decimal) {
	type recipient struct {
		lot      *models.Lot
		disposal *models.Disposal
		qty      decimal.Decimal
	}
	var recipients []recipient
	total := decimal.Zero
	for _, lot := range res.LotsByTx[buyID] {
		if utils.IsDust(lot.Amount) {
			continue
		}
		recipients = append(recipients, recipient{lot: lot, qty: lot.Amount})
		total = total.Add(lot.Amount)
	}
	for _, c := range res.LotConsumers[buyID] {
		recipients = append(recipients, recipient{disposal: c.Disposal, qty: c.Quantity})
		total = total.Add(c.Quantity)
	}
	if len(recipients) == 0 || !total.IsPositive() {
		logger.L.Debug("Replacement lot outside run, adjustment deferred to wash log",
			"txID", buyID, "share", share)
		return
	}

	allocated := decimal.Zero
	for i, r := range recipients {
		part := share.Sub(allocated)
		if i < len(recipients)-1 {
			part = share.Mul(r.qty).Div(total)
			allocated = allocated.Add(part)
		}
		if r.lot != nil {
			r.lot.BasisAdjustment = r.lot.BasisAdjustment.Add(part)
		} else {
			r.disposal.CostBasis = r.disposal.CostBasis.Add(part)
		}
	}
}
