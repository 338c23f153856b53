package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParseAction(t *testing.T) {
	cases := []struct {
		in      string
		want    Action
		wantErr bool
	}{
		{"BUY", ActionBuy, false},
		{"sell", ActionSell, false},
		{" Staking ", ActionIncome, false},
		{"REWARD", ActionIncome, false},
		{"GIFT", ActionGiftIn, false},
		{"WITHDRAW", ActionWithdrawal, false},
		{"STOLEN", ActionLoss, false},
		{"CONVERT", "", true},
		{"", "", true},
	}
	for _, tc := range cases {
		got, err := ParseAction(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseAction(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseAction(%q): unexpected error %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseAction(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestActionClassification(t *testing.T) {
	if !ActionSell.IsDisposal() || !ActionSpend.IsDisposal() || !ActionLoss.IsDisposal() {
		t.Error("sell, spend and loss are disposals")
	}
	if ActionTransfer.IsDisposal() || ActionWithdrawal.IsDisposal() {
		t.Error("transfer and withdrawal are not disposals")
	}
	if !ActionBuy.IsAcquisition() || !ActionIncome.IsAcquisition() || !ActionDeposit.IsAcquisition() {
		t.Error("buy, income and deposit are acquisitions")
	}
	if ActionSell.IsAcquisition() {
		t.Error("sell is not an acquisition")
	}
}

func TestValidate(t *testing.T) {
	valid := func() TransactionRecord {
		return TransactionRecord{
			ID:        "tx1",
			Timestamp: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
			Action:    ActionBuy,
			Coin:      "BTC",
			Amount:    decimal.NewFromInt(1),
			Source:    "COINBASE",
		}
	}
	if err := func() error { r := valid(); return r.Validate() }(); err != nil {
		t.Fatalf("valid record should pass: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*TransactionRecord)
	}{
		{"missing id", func(r *TransactionRecord) { r.ID = "" }},
		{"zero timestamp", func(r *TransactionRecord) { r.Timestamp = time.Time{} }},
		{"missing coin", func(r *TransactionRecord) { r.Coin = "" }},
		{"missing source", func(r *TransactionRecord) { r.Source = "" }},
		{"unknown action", func(r *TransactionRecord) { r.Action = "CONVERT" }},
		{"zero amount", func(r *TransactionRecord) { r.Amount = decimal.Zero }},
		{"negative amount", func(r *TransactionRecord) { r.Amount = decimal.NewFromInt(-1) }},
		{"negative price", func(r *TransactionRecord) { r.PriceUSD = decimal.NewFromInt(-1) }},
		{"negative fee", func(r *TransactionRecord) { r.Fee = decimal.NewFromInt(-1) }},
		{"transfer without destination", func(r *TransactionRecord) { r.Action = ActionTransfer }},
	}
	for _, tc := range cases {
		r := valid()
		tc.mutate(&r)
		if err := r.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}
