// backend/src/parsers/generic/parser.go
package generic

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/username/cointax/backend/src/models"
	"github.com/username/cointax/backend/src/utils"
)

// GenericParser reads the column-per-field CSV layout most portfolio tools
// can export. Column lookup is header-driven with a few aliases per field,
// so minor header variations between tools do not need their own parser.
type GenericParser struct{}

func NewParser() *GenericParser {
	return &GenericParser{}
}

func (p *GenericParser) Parse(file io.Reader) ([]models.TransactionRecord, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	idx := headerIndex(header)

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read all CSV records: %w", err)
	}

	var txs []models.TransactionRecord
	for _, row := range rows {
		get := func(keys ...string) string {
			for _, k := range keys {
				if i, ok := idx[k]; ok && i < len(row) {
					if v := strings.TrimSpace(row[i]); v != "" {
						return v
					}
				}
			}
			return ""
		}

		ts, _ := utils.ParseTimestamp(get("timestamp", "date", "time", "datetime"))
		amount, _ := utils.ParseDecimal(get("amount", "qty", "quantity", "vol"))
		price, _ := utils.ParseDecimal(get("price_usd", "price", "unit_price"))
		fee, _ := utils.ParseDecimal(get("fee", "commission"))

		id := get("id", "txid", "tx_id", "refid")
		if id == "" {
			id = rowHash(row)
		}

		txs = append(txs, models.TransactionRecord{
			ID:          id,
			Timestamp:   ts,
			Action:      models.Action(strings.ToUpper(get("action", "type", "tx_type"))),
			Coin:        strings.ToUpper(get("coin", "asset", "symbol", "currency")),
			Amount:      amount,
			PriceUSD:    price,
			Fee:         fee,
			FeeCoin:     strings.ToUpper(get("fee_coin", "fee_currency")),
			Source:      strings.ToUpper(get("source", "wallet", "account", "exchange")),
			Destination: strings.ToUpper(get("destination", "to", "to_wallet")),
		})
	}
	return txs, nil
}

func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, exists := idx[key]; !exists {
			idx[key] = i
		}
	}
	return idx
}

// rowHash synthesizes a stable id for rows that carry none, so re-uploading
// the same file cannot duplicate transactions.
func rowHash(row []string) string {
	sum := sha256.Sum256([]byte(strings.Join(row, "\x1f")))
	return hex.EncodeToString(sum[:16])
}
