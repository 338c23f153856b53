// backend/src/parsers/kraken/parser.go
package kraken

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/username/cointax/backend/src/logger"
	"github.com/username/cointax/backend/src/models"
	"github.com/username/cointax/backend/src/utils"
)

const sourceName = "KRAKEN"

type rawRow struct {
	txID, refID, typ, subtype, asset string
	timeStr                          string
	amount, fee                      decimal.Decimal
}

// KrakenParser reads the Kraken ledger export. A trade shows up as two rows
// sharing a refid (the fiat leg and the crypto leg), so rows are grouped by
// refid first and each group is classified as a whole.
type KrakenParser struct{}

func NewParser() *KrakenParser {
	return &KrakenParser{}
}

func (p *KrakenParser) Parse(file io.Reader) ([]models.TransactionRecord, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read all CSV records: %w", err)
	}

	get := func(row []string, key string) string {
		if i, ok := idx[key]; ok && i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	// Group by refid, preserving first-appearance order so output stays
	// deterministic across runs.
	groups := make(map[string][]rawRow)
	var order []string
	for i, row := range records {
		amount, _ := utils.ParseDecimal(get(row, "amount"))
		fee, _ := utils.ParseDecimal(get(row, "fee"))
		rr := rawRow{
			txID:    get(row, "txid"),
			refID:   get(row, "refid"),
			typ:     strings.ToLower(get(row, "type")),
			subtype: strings.ToLower(get(row, "subtype")),
			asset:   normalizeAsset(get(row, "asset")),
			timeStr: get(row, "time"),
			amount:  amount,
			fee:     fee,
		}
		key := rr.refID
		if key == "" {
			key = fmt.Sprintf("row-%d", i)
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], rr)
	}

	var txs []models.TransactionRecord
	for _, key := range order {
		txs = append(txs, classifyGroup(groups[key])...)
	}
	return txs, nil
}

// classifyGroup turns one refid group into zero or more normalized records.
func classifyGroup(group []rawRow) []models.TransactionRecord {
	var fiat, crypto []rawRow
	for _, rr := range group {
		if rr.asset == "USD" {
			fiat = append(fiat, rr)
		} else {
			crypto = append(crypto, rr)
		}
	}
	if len(crypto) == 0 {
		return nil // fiat-only movement, not a commodity event
	}

	fiatTotal := decimal.Zero
	fiatFee := decimal.Zero
	for _, f := range fiat {
		fiatTotal = fiatTotal.Add(f.amount.Abs())
		fiatFee = fiatFee.Add(f.fee)
	}

	var txs []models.TransactionRecord
	for _, rr := range crypto {
		ts, err := utils.ParseTimestamp(rr.timeStr)
		if err != nil {
			logger.L.Warn("Skipping Kraken row with unparseable time", "txid", rr.txID, "time", rr.timeStr)
			continue
		}
		rec := models.TransactionRecord{
			ID:        rr.txID,
			Timestamp: ts,
			Coin:      rr.asset,
			Amount:    rr.amount.Abs(),
			Source:    sourceName,
		}
		if rec.ID == "" {
			rec.ID = rr.refID
		}

		switch {
		case strings.Contains(rr.typ, "staking") || strings.Contains(rr.typ, "earn") || strings.Contains(rr.typ, "reward"):
			if !rr.amount.IsPositive() {
				continue // allocation side of a staking pair
			}
			rec.Action = models.ActionIncome
		case rr.typ == "deposit":
			rec.Action = models.ActionDeposit
		case rr.typ == "withdrawal":
			rec.Action = models.ActionWithdrawal
			rec.Fee = rr.fee
			rec.FeeCoin = rr.asset
		case rr.typ == "trade" || rr.typ == "spend" || rr.typ == "receive":
			if rr.amount.IsPositive() {
				rec.Action = models.ActionBuy
			} else {
				rec.Action = models.ActionSell
			}
			if !rec.Amount.IsZero() && fiatTotal.IsPositive() {
				rec.PriceUSD = fiatTotal.Div(rec.Amount)
			}
			rec.Fee = fiatFee.Add(rr.fee)
			rec.FeeCoin = "USD"
		case rr.typ == "transfer":
			// Internal staking allocations move within the same account.
			logger.L.Debug("Skipping Kraken internal transfer", "txid", rr.txID, "subtype", rr.subtype)
			continue
		default:
			logger.L.Warn("Unrecognized Kraken ledger type", "txid", rr.txID, "type", rr.typ)
			continue
		}
		txs = append(txs, rec)
	}
	return txs
}

// normalizeAsset maps Kraken's legacy asset codes to plain symbols and
// strips the staking suffixes (ETH2.S, DOT.S and friends).
func normalizeAsset(asset string) string {
	a := strings.ToUpper(strings.TrimSpace(asset))
	for _, suffix := range []string{".S", ".M", ".P", ".F"} {
		a = strings.TrimSuffix(a, suffix)
	}
	switch a {
	case "XXBT", "XBT":
		return "BTC"
	case "XETH":
		return "ETH"
	case "XXRP":
		return "XRP"
	case "XLTC":
		return "LTC"
	case "XXDG", "XDG":
		return "DOGE"
	case "XXLM":
		return "XLM"
	case "XXMR":
		return "XMR"
	case "ZUSD":
		return "USD"
	case "ZEUR":
		return "EUR"
	case "ETH2":
		return "ETH"
	}
	return a
}
