package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseAccountingMethod(t *testing.T) {
	cases := []struct {
		in      string
		want    AccountingMethod
		wantErr bool
	}{
		{"fifo", MethodFIFO, false},
		{"FIFO", MethodFIFO, false},
		{" lifo ", MethodLIFO, false},
		{"hifo", MethodHIFO, false},
		{"acb", "", true},
		{"", "", true},
	}
	for _, tc := range cases {
		got, err := ParseAccountingMethod(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseAccountingMethod(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseAccountingMethod(%q): unexpected error %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("ParseAccountingMethod(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestLoadPolicyDefaults(t *testing.T) {
	policy, err := LoadPolicy(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("missing policy file should load defaults: %v", err)
	}
	if policy.AccountingMethod != MethodFIFO {
		t.Errorf("default method should be fifo, got %s", policy.AccountingMethod)
	}
	if policy.StrictBrokerMode {
		t.Errorf("strict broker mode should default off")
	}
	if !policy.StakingTaxableOnReceipt {
		t.Errorf("staking should default to taxable on receipt")
	}
}

func TestLoadPolicyFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.toml")
	content := `
accounting_method = "hifo"
strict_broker_mode = true
broker_sources = ["coinbase", "kraken"]
equivalence_groups = [["BTC", "WBTC"]]
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	policy, err := LoadPolicy(path)
	if err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}
	if policy.AccountingMethod != MethodHIFO {
		t.Errorf("expected hifo, got %s", policy.AccountingMethod)
	}
	if !policy.StrictBrokerMode {
		t.Errorf("expected strict broker mode on")
	}
	if !policy.IsBroker("Coinbase") || !policy.IsBroker("KRAKEN") {
		t.Errorf("broker matching should be case-insensitive")
	}
	if policy.IsBroker("LEDGER") {
		t.Errorf("LEDGER is not a broker")
	}
}

func TestLoadPolicyInvalidMethod(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.toml")
	if err := os.WriteFile(path, []byte(`accounting_method = "acb"`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadPolicy(path); err == nil {
		t.Fatal("unknown accounting method must be a configuration error")
	}
}

func TestLoadPolicyEnvOverride(t *testing.T) {
	t.Setenv("COINTAX_ACCOUNTING_METHOD", "lifo")
	t.Setenv("COINTAX_STRICT_BROKER_MODE", "true")

	policy, err := LoadPolicy(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}
	if policy.AccountingMethod != MethodLIFO {
		t.Errorf("env override should set lifo, got %s", policy.AccountingMethod)
	}
	if !policy.StrictBrokerMode {
		t.Errorf("env override should enable strict broker mode")
	}
}

func TestSubstantiallyIdentical(t *testing.T) {
	policy := &PolicyConfig{
		EquivalenceGroups: [][]string{{"BTC", "WBTC"}, {"ETH", "WETH", "STETH"}},
	}

	cases := []struct {
		a, b string
		want bool
	}{
		{"BTC", "BTC", true},
		{"btc", "wbtc", true},
		{"ETH", "STETH", true},
		{"BTC", "ETH", false},
		{"WBTC", "WETH", false},
	}
	for _, tc := range cases {
		if got := policy.SubstantiallyIdentical(tc.a, tc.b); got != tc.want {
			t.Errorf("SubstantiallyIdentical(%s, %s) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}
