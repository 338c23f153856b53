package generic

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/username/cointax/backend/src/models"
)

const sampleCSV = `id,timestamp,action,coin,amount,price_usd,fee,fee_coin,source,destination
tx1,2023-01-01T10:00:00Z,BUY,btc,1.5,20000,10,USD,coinbase,
tx2,2023-02-01 12:00:00,sell,BTC,0.5,25000,,,coinbase,
tx3,2023-03-01,TRANSFER,BTC,1,,,,coinbase,cold
,2023-04-01,BUY,ETH,"2,000",1500,,,kraken,
`

func TestParseGenericCSV(t *testing.T) {
	txs, err := NewParser().Parse(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(txs) != 4 {
		t.Fatalf("expected 4 records, got %d", len(txs))
	}

	first := txs[0]
	if first.ID != "tx1" || first.Action != models.ActionBuy || first.Coin != "BTC" {
		t.Errorf("unexpected first record: %+v", first)
	}
	if !first.Amount.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("expected amount 1.5, got %s", first.Amount)
	}
	if !first.Fee.Equal(decimal.RequireFromString("10")) || first.FeeCoin != "USD" {
		t.Errorf("fee not parsed: %s %s", first.Fee, first.FeeCoin)
	}
	if first.Source != "COINBASE" {
		t.Errorf("source should be upper-cased, got %s", first.Source)
	}

	if txs[1].Action != models.ActionSell {
		t.Errorf("lower-case action should normalize, got %s", txs[1].Action)
	}

	transfer := txs[2]
	if transfer.Action != models.ActionTransfer || transfer.Destination != "COLD" {
		t.Errorf("transfer destination not parsed: %+v", transfer)
	}

	// Thousands separators in quoted fields are tolerated.
	if !txs[3].Amount.Equal(decimal.RequireFromString("2000")) {
		t.Errorf("expected amount 2000, got %s", txs[3].Amount)
	}
}

func TestSynthesizedIDStable(t *testing.T) {
	first, err := NewParser().Parse(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatal(err)
	}
	second, err := NewParser().Parse(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatal(err)
	}

	if first[3].ID == "" {
		t.Fatal("row without id should get a synthesized one")
	}
	if first[3].ID != second[3].ID {
		t.Errorf("synthesized id must be stable across parses: %s vs %s", first[3].ID, second[3].ID)
	}
}

func TestHeaderAliases(t *testing.T) {
	csv := `date,type,asset,qty,price,wallet
2023-01-01,BUY,BTC,1,20000,main
`
	txs, err := NewParser().Parse(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(txs))
	}
	tx := txs[0]
	if tx.Coin != "BTC" || tx.Source != "MAIN" || tx.Action != models.ActionBuy {
		t.Errorf("aliases not resolved: %+v", tx)
	}
	if !tx.PriceUSD.Equal(decimal.RequireFromString("20000")) {
		t.Errorf("price alias not resolved: %s", tx.PriceUSD)
	}
}

func TestMalformedRowsStillEmitted(t *testing.T) {
	csv := `id,timestamp,action,coin,amount,price_usd,fee,fee_coin,source,destination
tx1,not-a-date,BUY,BTC,1,20000,,,main,
`
	txs, err := NewParser().Parse(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("expected the malformed row to come through, got %d records", len(txs))
	}
	// Validation downstream turns the zero timestamp into an anomaly.
	if !txs[0].Timestamp.IsZero() {
		t.Errorf("unparseable timestamp should stay zero, got %s", txs[0].Timestamp)
	}
	if err := txs[0].Validate(); err == nil {
		t.Errorf("record should fail validation")
	}
}
