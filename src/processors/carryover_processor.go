package processors

import (
	"github.com/shopspring/decimal"

	"github.com/username/cointax/backend/src/logger"
	"github.com/username/cointax/backend/src/models"
)

// CarryoverProcessor nets the year's realized gains against prior-year loss
// carryover. Same-bucket losses apply first (short against short, long
// against long), then a remaining loss in one bucket offsets gain in the
// other. Losses carry forward without any annual deduction cap; the capped
// deduction against ordinary income is a return-preparation step, not a
// lot-accounting one.
type CarryoverProcessor struct{}

func NewCarryoverProcessor() *CarryoverProcessor {
	return &CarryoverProcessor{}
}

// Net sums per-term adjusted gains, applies the incoming carryover, and
// returns the netted figures plus the carryover going out. A negative net
// figure means the bucket carries that loss forward; CarryoverOut holds the
// same losses as positive magnitudes.
func (c *CarryoverProcessor) Net(disposals []*models.Disposal, carryIn models.CarryoverState) (netShort, netLong decimal.Decimal, out models.CarryoverState) {
	for _, d := range disposals {
		gain := d.AdjustedGain()
		if d.Term == models.TermLong {
			netLong = netLong.Add(gain)
		} else {
			netShort = netShort.Add(gain)
		}
	}

	netShort = netShort.Sub(carryIn.ShortTermLoss)
	netLong = netLong.Sub(carryIn.LongTermLoss)

	// Cross-bucket offset: only one bucket can be negative after this.
	switch {
	case netShort.IsNegative() && netLong.IsPositive():
		offset := decimal.Min(netShort.Neg(), netLong)
		netShort = netShort.Add(offset)
		netLong = netLong.Sub(offset)
	case netLong.IsNegative() && netShort.IsPositive():
		offset := decimal.Min(netLong.Neg(), netShort)
		netLong = netLong.Add(offset)
		netShort = netShort.Sub(offset)
	}

	if netShort.IsNegative() {
		out.ShortTermLoss = netShort.Neg()
	} else {
		out.ShortTermLoss = decimal.Zero
	}
	if netLong.IsNegative() {
		out.LongTermLoss = netLong.Neg()
	} else {
		out.LongTermLoss = decimal.Zero
	}

	if !out.ShortTermLoss.IsZero() || !out.LongTermLoss.IsZero() {
		logger.L.Info("Loss carryover out",
			"shortTerm", out.ShortTermLoss, "longTerm", out.LongTermLoss)
	}
	return netShort, netLong, out
}
