// Package ledger holds the immutable, time-ordered transaction sequence the
// matching engine replays. Ordering is deterministic: ascending timestamp,
// ties broken by record id, so two runs over the same input always see the
// same sequence.
package ledger

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/username/cointax/backend/src/logger"
	"github.com/username/cointax/backend/src/models"
	"github.com/username/cointax/backend/src/utils"
)

// Ledger is a validated, sorted transaction sequence. Records that fail
// validation are dropped at construction time and reported as anomalies;
// a malformed row must never reach the matching engine.
type Ledger struct {
	records   []models.TransactionRecord
	anomalies []models.AnomalyRecord
}

// New validates, sorts and seals a batch of transaction records.
func New(records []models.TransactionRecord) *Ledger {
	l := &Ledger{}
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			logger.L.Warn("Skipping malformed transaction record", "txID", rec.ID, "error", err)
			l.anomalies = append(l.anomalies, models.AnomalyRecord{
				ID:      uuid.NewString(),
				TxID:    rec.ID,
				Date:    rec.Timestamp,
				Kind:    models.AnomalyMalformedRecord,
				Message: err.Error(),
			})
			continue
		}
		rec.Timestamp = rec.Timestamp.UTC()
		l.records = append(l.records, rec)
	}
	sort.SliceStable(l.records, func(i, j int) bool {
		if l.records[i].Timestamp.Equal(l.records[j].Timestamp) {
			return l.records[i].ID < l.records[j].ID
		}
		return l.records[i].Timestamp.Before(l.records[j].Timestamp)
	})
	return l
}

// Records returns the ordered, validated sequence. Callers must not mutate it.
func (l *Ledger) Records() []models.TransactionRecord {
	return l.records
}

// Anomalies returns the malformed-record anomalies collected at construction.
func (l *Ledger) Anomalies() []models.AnomalyRecord {
	return l.anomalies
}

// Len returns the number of valid records.
func (l *Ledger) Len() int {
	return len(l.records)
}

// BuysWithin returns the buy-side records for coin (including income and
// gifts, which are constructive acquisitions) with timestamps in [from, to],
// both bounds inclusive. The wash sale analyzer uses this for its 30-day
// replacement window, which can reach past the tax-year boundary.
func (l *Ledger) BuysWithin(coin string, from, to time.Time) []models.TransactionRecord {
	var out []models.TransactionRecord
	for _, rec := range l.records {
		if rec.Timestamp.Before(from) {
			continue
		}
		if !utils.SameOrBefore(rec.Timestamp, to) {
			break
		}
		if rec.Coin != coin {
			continue
		}
		switch rec.Action {
		case models.ActionBuy, models.ActionIncome, models.ActionGiftIn:
			out = append(out, rec)
		}
	}
	return out
}

// CoinDates returns every distinct (coin, date) pair the ledger touches,
// letting the price service prefetch quotes before a run.
func (l *Ledger) CoinDates() map[string][]time.Time {
	seen := make(map[string]map[string]bool)
	out := make(map[string][]time.Time)
	add := func(coin string, ts time.Time) {
		if coin == "" || coin == "USD" {
			return
		}
		day := ts.Truncate(24 * time.Hour)
		if seen[coin] == nil {
			seen[coin] = make(map[string]bool)
		}
		key := day.Format("2006-01-02")
		if !seen[coin][key] {
			seen[coin][key] = true
			out[coin] = append(out[coin], day)
		}
	}
	for _, rec := range l.records {
		add(rec.Coin, rec.Timestamp)
		if rec.FeeCoin != "" && rec.FeeCoin != "USD" {
			add(rec.FeeCoin, rec.Timestamp)
		}
	}
	return out
}

// NetBalance computes the algebraic net quantity the ledger implies for a
// bucket: acquisitions minus disposals, withdrawals and outbound transfers,
// plus inbound transfers. Inventory conservation checks compare bucket
// totals against this.
func (l *Ledger) NetBalance(key models.BucketKey) decimal.Decimal {
	net := decimal.Zero
	for _, rec := range l.records {
		if rec.Coin != key.Coin {
			continue
		}
		switch {
		case rec.Action.IsAcquisition() && rec.Source == key.Source:
			net = net.Add(rec.Amount)
		case rec.Action.IsDisposal() && rec.Source == key.Source:
			net = net.Sub(rec.Amount)
		case rec.Action == models.ActionWithdrawal && rec.Source == key.Source:
			net = net.Sub(rec.Amount)
		case rec.Action == models.ActionTransfer && rec.Source == key.Source:
			net = net.Sub(rec.Amount)
		case rec.Action == models.ActionTransfer && rec.Destination == key.Source:
			net = net.Add(rec.Amount)
		}
	}
	return net
}
