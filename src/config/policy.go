package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// AccountingMethod selects the lot-consumption order for disposals.
type AccountingMethod string

const (
	MethodFIFO AccountingMethod = "fifo"
	MethodLIFO AccountingMethod = "lifo"
	MethodHIFO AccountingMethod = "hifo"
)

// ParseAccountingMethod validates a method string. An unknown method is a
// configuration error and must abort the run before any state is touched.
func ParseAccountingMethod(s string) (AccountingMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fifo":
		return MethodFIFO, nil
	case "lifo":
		return MethodLIFO, nil
	case "hifo":
		return MethodHIFO, nil
	default:
		return "", fmt.Errorf("configuration error: unknown accounting method %q", s)
	}
}

// PolicyConfig is the immutable set of toggles consulted by the inventory,
// matching engine, wash sale analyzer and carryover netting. It is built
// once per run and threaded through explicitly; there is no ambient global.
type PolicyConfig struct {
	AccountingMethod        AccountingMethod
	StrictBrokerMode        bool
	BrokerSources           map[string]bool
	StakingTaxableOnReceipt bool
	DepositBasisFromPrice   bool
	EquivalenceGroups       [][]string
}

// policyFile mirrors the TOML layout on disk.
type policyFile struct {
	AccountingMethod        string     `toml:"accounting_method"`
	StrictBrokerMode        bool       `toml:"strict_broker_mode"`
	BrokerSources           []string   `toml:"broker_sources"`
	StakingTaxableOnReceipt bool       `toml:"staking_taxable_on_receipt"`
	DepositBasisFromPrice   bool       `toml:"deposit_basis_from_price"`
	EquivalenceGroups       [][]string `toml:"equivalence_groups"`
}

func defaultPolicyFile() policyFile {
	return policyFile{
		AccountingMethod:        string(MethodFIFO),
		StakingTaxableOnReceipt: true,
	}
}

// LoadPolicy reads the TOML policy file at path, merges it on top of the
// defaults, applies COINTAX_* environment overrides, and validates the
// result. A missing file is fine (defaults apply); an invalid accounting
// method is fatal.
func LoadPolicy(path string) (*PolicyConfig, error) {
	pf := defaultPolicyFile()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &pf); err != nil {
				return nil, fmt.Errorf("configuration error: decoding %s: %w", path, err)
			}
		}
	}

	applyPolicyEnvOverrides(&pf)

	method, err := ParseAccountingMethod(pf.AccountingMethod)
	if err != nil {
		return nil, err
	}

	brokers := make(map[string]bool, len(pf.BrokerSources))
	for _, s := range pf.BrokerSources {
		s = strings.TrimSpace(s)
		if s != "" {
			brokers[strings.ToUpper(s)] = true
		}
	}

	groups := make([][]string, 0, len(pf.EquivalenceGroups))
	for _, g := range pf.EquivalenceGroups {
		group := make([]string, 0, len(g))
		for _, coin := range g {
			coin = strings.ToUpper(strings.TrimSpace(coin))
			if coin != "" {
				group = append(group, coin)
			}
		}
		if len(group) > 1 {
			groups = append(groups, group)
		}
	}

	return &PolicyConfig{
		AccountingMethod:        method,
		StrictBrokerMode:        pf.StrictBrokerMode,
		BrokerSources:           brokers,
		StakingTaxableOnReceipt: pf.StakingTaxableOnReceipt,
		DepositBasisFromPrice:   pf.DepositBasisFromPrice,
		EquivalenceGroups:       groups,
	}, nil
}

func applyPolicyEnvOverrides(pf *policyFile) {
	setStr(&pf.AccountingMethod, "COINTAX_ACCOUNTING_METHOD")
	setBool(&pf.StrictBrokerMode, "COINTAX_STRICT_BROKER_MODE")
	setStringSlice(&pf.BrokerSources, "COINTAX_BROKER_SOURCES")
	setBool(&pf.StakingTaxableOnReceipt, "COINTAX_STAKING_TAXABLE_ON_RECEIPT")
	setBool(&pf.DepositBasisFromPrice, "COINTAX_DEPOSIT_BASIS_FROM_PRICE")
}

// IsBroker reports whether source is in the broker allowlist.
func (p *PolicyConfig) IsBroker(source string) bool {
	return p.BrokerSources[strings.ToUpper(source)]
}

// SubstantiallyIdentical reports whether two coins count as the same asset
// for wash-sale purposes: identical symbols, or members of a configured
// equivalence group (e.g. BTC and WBTC).
func (p *PolicyConfig) SubstantiallyIdentical(a, b string) bool {
	a = strings.ToUpper(a)
	b = strings.ToUpper(b)
	if a == b {
		return true
	}
	for _, group := range p.EquivalenceGroups {
		inA, inB := false, false
		for _, coin := range group {
			if coin == a {
				inA = true
			}
			if coin == b {
				inB = true
			}
		}
		if inA && inB {
			return true
		}
	}
	return false
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
