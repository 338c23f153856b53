// Package inventory tracks open cost-basis lots per (coin, source) bucket
// and consumes them under a configurable accounting method. Bucket order is
// not maintained persistently; it is recomputed at every selection point so
// that interleaved partial fills always pick the policy-correct lot.
package inventory

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/username/cointax/backend/src/config"
	"github.com/username/cointax/backend/src/models"
	"github.com/username/cointax/backend/src/utils"
)

// Consumption records one slice taken out of a lot. CostBasis includes the
// proportional share of any wash-sale basis adjustment the lot carried.
type Consumption struct {
	Quantity        decimal.Decimal
	UnitCostBasis   decimal.Decimal
	CostBasis       decimal.Decimal
	AcquiredAt      time.Time
	AcquisitionTxID string
}

// Inventory owns all open lots for the duration of one run. It is not safe
// for concurrent use; the engine replays the ledger single-threaded.
type Inventory struct {
	buckets map[models.BucketKey][]*models.Lot
}

func New() *Inventory {
	return &Inventory{buckets: make(map[models.BucketKey][]*models.Lot)}
}

// Insert appends a lot to its bucket and returns the stored pointer so the
// engine can index lots by their acquisition transaction.
func (inv *Inventory) Insert(key models.BucketKey, lot models.Lot) *models.Lot {
	stored := lot
	inv.buckets[key] = append(inv.buckets[key], &stored)
	return &stored
}

// Balance returns the total remaining quantity in a bucket.
func (inv *Inventory) Balance(key models.BucketKey) decimal.Decimal {
	total := decimal.Zero
	for _, lot := range inv.buckets[key] {
		total = total.Add(lot.Amount)
	}
	return total
}

// sortBucket orders lots for consumption under the given method. Ties fall
// back to acquisition date then acquisition tx id so the order, and with it
// the whole run, stays deterministic.
func sortBucket(lots []*models.Lot, method config.AccountingMethod) {
	sort.SliceStable(lots, func(i, j int) bool {
		a, b := lots[i], lots[j]
		switch method {
		case config.MethodLIFO:
			if !a.AcquiredAt.Equal(b.AcquiredAt) {
				return a.AcquiredAt.After(b.AcquiredAt)
			}
		case config.MethodHIFO:
			if cmp := a.UnitCostBasis.Cmp(b.UnitCostBasis); cmp != 0 {
				return cmp > 0
			}
		default: // FIFO
			if !a.AcquiredAt.Equal(b.AcquiredAt) {
				return a.AcquiredAt.Before(b.AcquiredAt)
			}
		}
		if !a.AcquiredAt.Equal(b.AcquiredAt) {
			return a.AcquiredAt.Before(b.AcquiredAt)
		}
		return a.AcquisitionTxID < b.AcquisitionTxID
	})
}

// SelectAndConsume re-sorts the bucket per method and greedily consumes from
// the front until quantity is satisfied or the bucket is exhausted. It never
// errors on a shortfall: the caller receives whatever was available and
// applies its own fallback policy for the remainder. Exhausted lots are
// pruned; so are dust remainders at or below 1e-8.
func (inv *Inventory) SelectAndConsume(key models.BucketKey, quantity decimal.Decimal, method config.AccountingMethod) []Consumption {
	lots := inv.buckets[key]
	if len(lots) == 0 || !quantity.IsPositive() {
		return nil
	}
	sortBucket(lots, method)

	var consumed []Consumption
	remaining := quantity
	kept := lots[:0]
	for i, lot := range lots {
		if !remaining.IsPositive() {
			kept = append(kept, lots[i:]...)
			break
		}
		if !lot.Amount.IsPositive() {
			continue
		}
		take := utils.MinDecimal(lot.Amount, remaining)
		adjShare := decimal.Zero
		if !lot.BasisAdjustment.IsZero() {
			adjShare = lot.BasisAdjustment.Mul(take).Div(lot.Amount)
		}
		consumed = append(consumed, Consumption{
			Quantity:        take,
			UnitCostBasis:   lot.UnitCostBasis,
			CostBasis:       take.Mul(lot.UnitCostBasis).Add(adjShare),
			AcquiredAt:      lot.AcquiredAt,
			AcquisitionTxID: lot.AcquisitionTxID,
		})
		lot.Amount = lot.Amount.Sub(take)
		lot.BasisAdjustment = lot.BasisAdjustment.Sub(adjShare)
		remaining = remaining.Sub(take)
		if !utils.IsDust(lot.Amount) {
			kept = append(kept, lot)
		}
	}
	inv.buckets[key] = kept
	if len(inv.buckets[key]) == 0 {
		delete(inv.buckets, key)
	}
	return consumed
}

// Relocate moves quantity from one bucket to another, preserving each moved
// sub-lot's acquisition date and unit cost basis exactly. If the source
// bucket holds less than requested it moves what exists and returns the
// moved total.
func (inv *Inventory) Relocate(from, to models.BucketKey, quantity decimal.Decimal, method config.AccountingMethod) decimal.Decimal {
	consumed := inv.SelectAndConsume(from, quantity, method)
	moved := decimal.Zero
	for _, c := range consumed {
		adj := c.CostBasis.Sub(c.Quantity.Mul(c.UnitCostBasis))
		inv.Insert(to, models.Lot{
			Amount:          c.Quantity,
			UnitCostBasis:   c.UnitCostBasis,
			AcquiredAt:      c.AcquiredAt,
			BasisAdjustment: adj,
			AcquisitionTxID: c.AcquisitionTxID,
		})
		moved = moved.Add(c.Quantity)
	}
	return moved
}

// SourcesFor lists the sources holding open lots of coin, sorted for
// deterministic cross-wallet fallback iteration.
func (inv *Inventory) SourcesFor(coin string) []string {
	var sources []string
	for key, lots := range inv.buckets {
		if key.Coin != coin || len(lots) == 0 {
			continue
		}
		sources = append(sources, key.Source)
	}
	sort.Strings(sources)
	return sources
}

// Holdings aggregates remaining quantity per bucket.
func (inv *Inventory) Holdings() map[models.BucketKey]decimal.Decimal {
	out := make(map[models.BucketKey]decimal.Decimal, len(inv.buckets))
	for key := range inv.buckets {
		bal := inv.Balance(key)
		if bal.IsPositive() {
			out[key] = bal
		}
	}
	return out
}

// Snapshots exports every open lot with its bucket, ordered deterministically,
// for end-of-year persistence.
func (inv *Inventory) Snapshots() []models.LotSnapshot {
	var keys []models.BucketKey
	for key := range inv.buckets {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Coin != keys[j].Coin {
			return keys[i].Coin < keys[j].Coin
		}
		return keys[i].Source < keys[j].Source
	})

	var snaps []models.LotSnapshot
	for _, key := range keys {
		lots := append([]*models.Lot(nil), inv.buckets[key]...)
		sortBucket(lots, config.MethodFIFO)
		for _, lot := range lots {
			if !lot.Amount.IsPositive() {
				continue
			}
			snaps = append(snaps, models.LotSnapshot{Coin: key.Coin, Source: key.Source, Lot: *lot})
		}
	}
	return snaps
}

// Seed loads previously persisted lot snapshots, typically the prior year's
// end-of-year holdings, so a run does not need the full historical ledger.
func (inv *Inventory) Seed(snaps []models.LotSnapshot) {
	for _, snap := range snaps {
		inv.Insert(models.BucketKey{Coin: snap.Coin, Source: snap.Source}, snap.Lot)
	}
}
