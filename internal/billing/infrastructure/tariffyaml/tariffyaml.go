// Package tariffyaml imports and exports tariffs as YAML documents, mirroring
// the bulk tariff import/export workflow in the original system's
// TariffYAMLExporter/TariffYAMLImporter.
package tariffyaml

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"microgrid-cloud/internal/billing/domain"
)

type yamlDocument struct {
	ApplicabilityRules yaml.Node    `yaml:"applicability_rules"`
	Tariffs            []yamlTariff `yaml:"tariffs"`
}

type yamlTariff struct {
	Name            string               `yaml:"name"`
	Utility         string               `yaml:"utility"`
	EnergyCharges   []yamlEnergyCharge   `yaml:"energy_charges,omitempty"`
	DemandCharges   []yamlDemandCharge   `yaml:"demand_charges,omitempty"`
	CustomerCharges []yamlCustomerCharge `yaml:"customer_charges,omitempty"`
}

// yamlApplicability is both the shape of an inline rule under a charge and
// of an entry in the top-level applicability_rules map; Name carries the
// rule's identity either way (taken from the map key for a named rule, or
// from this field for an inline one).
type yamlApplicability struct {
	Name             string `yaml:"name,omitempty"`
	PeriodStartLocal string `yaml:"period_start_time_local"`
	PeriodEndLocal   string `yaml:"period_end_time_local"`
	AppliesStartDate string `yaml:"applies_start_date,omitempty"`
	AppliesEndDate   string `yaml:"applies_end_date,omitempty"`
	AppliesWeekdays  *bool  `yaml:"applies_weekdays,omitempty"`
	AppliesWeekends  *bool  `yaml:"applies_weekends,omitempty"`
	AppliesHolidays  *bool  `yaml:"applies_holidays,omitempty"`
}

type yamlEnergyCharge struct {
	ID            string              `yaml:"id,omitempty"`
	Name          string              `yaml:"name"`
	RateUSDPerKWh string              `yaml:"rate_usd_per_kwh"`
	Rules         []yamlApplicability `yaml:"rules,omitempty"`
	RuleRefs      []string            `yaml:"rule_refs,omitempty"`
}

type yamlDemandCharge struct {
	ID           string              `yaml:"id,omitempty"`
	Name         string              `yaml:"name"`
	RateUSDPerKW string              `yaml:"rate_usd_per_kw"`
	PeakType     string              `yaml:"peak_type"`
	Rules        []yamlApplicability `yaml:"rules,omitempty"`
	RuleRefs     []string            `yaml:"rule_refs,omitempty"`
}

type yamlCustomerCharge struct {
	ID         string `yaml:"id,omitempty"`
	Name       string `yaml:"name"`
	AmountUSD  string `yaml:"amount_usd"`
	ChargeType string `yaml:"charge_type"`
}

// Export renders tariffs as a YAML document, one "tariffs" list entry per
// tariff, following the original exporter's field names so existing YAML
// tariff files remain importable. Rules are always exported inline under
// their owning charge; the top-level applicability_rules map is an import
// convenience for hand-authored files and is never the only place an
// exported rule appears.
func Export(tariffs []domain.Tariff) ([]byte, error) {
	doc := struct {
		Tariffs []yamlTariff `yaml:"tariffs"`
	}{Tariffs: make([]yamlTariff, 0, len(tariffs))}
	for _, t := range tariffs {
		doc.Tariffs = append(doc.Tariffs, toYAMLTariff(t))
	}
	return yaml.Marshal(doc)
}

func toYAMLTariff(t domain.Tariff) yamlTariff {
	yt := yamlTariff{Name: t.Name, Utility: t.Utility}
	for _, c := range t.EnergyCharges {
		yt.EnergyCharges = append(yt.EnergyCharges, yamlEnergyCharge{
			ID:            c.ID,
			Name:          c.Name,
			RateUSDPerKWh: c.RateUSDPerKWh.String(),
			Rules:         toYAMLApplicabilityList(c.Rules),
		})
	}
	for _, c := range t.DemandCharges {
		yt.DemandCharges = append(yt.DemandCharges, yamlDemandCharge{
			ID:           c.ID,
			Name:         c.Name,
			RateUSDPerKW: c.RateUSDPerKW.String(),
			PeakType:     string(c.PeakType),
			Rules:        toYAMLApplicabilityList(c.Rules),
		})
	}
	for _, c := range t.CustomerCharges {
		yt.CustomerCharges = append(yt.CustomerCharges, yamlCustomerCharge{
			ID:         c.ID,
			Name:       c.Name,
			AmountUSD:  c.AmountUSD.String(),
			ChargeType: string(c.ChargeType),
		})
	}
	return yt
}

// toYAMLApplicabilityList renders every rule on a charge as its own entry
// under that charge's "rules" list. A charge with zero rules renders zero
// YAML rules, which round-trips back to zero domain rules (§4.3: no rules at
// all means the charge always applies).
func toYAMLApplicabilityList(rules []domain.ApplicabilityRule) []yamlApplicability {
	if len(rules) == 0 {
		return nil
	}
	out := make([]yamlApplicability, 0, len(rules))
	for _, r := range rules {
		a := yamlApplicability{
			Name:             r.Name,
			PeriodStartLocal: formatTimeOfDay(r.PeriodStartLocal),
			PeriodEndLocal:   formatTimeOfDay(r.PeriodEndLocal),
			AppliesWeekdays:  boolPtr(r.AppliesWeekdays),
			AppliesWeekends:  boolPtr(r.AppliesWeekends),
			AppliesHolidays:  boolPtr(r.AppliesHolidays),
		}
		if !r.AppliesStartMD.IsZero() {
			a.AppliesStartDate = formatMonthDay(r.AppliesStartMD)
			a.AppliesEndDate = formatMonthDay(r.AppliesEndMD)
		}
		out = append(out, a)
	}
	return out
}

func boolPtr(b bool) *bool { return &b }

func formatTimeOfDay(t domain.TimeOfDay) string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func formatMonthDay(m domain.MonthDay) string {
	return fmt.Sprintf("%04d-%02d-%02d", 2000, int(m.Month), m.Day)
}

// ImportResult tallies the outcome of importing a YAML document, per §12's
// atomic per-entity import tally (created/updated/skipped/errors).
type ImportResult struct {
	Created []domain.Tariff
	Updated []domain.Tariff
	Skipped []SkippedTariff
	Errors  []FailedTariff
}

// SkippedTariff names a tariff import that was skipped and why.
type SkippedTariff struct {
	Name   string
	Reason string
}

// FailedTariff names a tariff import that failed and the validation
// messages collected for it.
type FailedTariff struct {
	Name     string
	Messages []string
}

// Import parses a YAML document and builds a Tariff per entry, checking it
// against existing (matched by utility+name) via the lookup callback.
// Each tariff is validated independently so one bad entry in the file
// doesn't prevent the rest from importing, mirroring the original importer's
// "each tariff in its own transaction" behaviour.
func Import(data []byte, replaceExisting bool, existing func(utility, name string) bool) ImportResult {
	var result ImportResult
	var doc yamlDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		result.Errors = append(result.Errors, FailedTariff{Name: "YAML File", Messages: []string{err.Error()}})
		return result
	}
	if len(doc.Tariffs) == 0 {
		result.Errors = append(result.Errors, FailedTariff{Name: "YAML File", Messages: []string{"tariffs list cannot be empty"}})
		return result
	}
	namedRules, err := parseNamedRules(doc.ApplicabilityRules)
	if err != nil {
		result.Errors = append(result.Errors, FailedTariff{Name: "YAML File", Messages: []string{err.Error()}})
		return result
	}

	for _, yt := range doc.Tariffs {
		tariff, err := fromYAMLTariff(yt, namedRules)
		if err != nil {
			result.Errors = append(result.Errors, FailedTariff{Name: yt.Name, Messages: []string{err.Error()}})
			continue
		}
		if err := tariff.Validate(); err != nil {
			result.Errors = append(result.Errors, FailedTariff{Name: yt.Name, Messages: []string{err.Error()}})
			continue
		}
		if existing != nil && existing(tariff.Utility, tariff.Name) {
			if !replaceExisting {
				result.Skipped = append(result.Skipped, SkippedTariff{
					Name:   tariff.Name,
					Reason: fmt.Sprintf("tariff already exists for %s", tariff.Utility),
				})
				continue
			}
			result.Updated = append(result.Updated, tariff)
			continue
		}
		result.Created = append(result.Created, tariff)
	}
	return result
}

// parseNamedRules reads the top-level applicability_rules mapping via its
// raw node rather than unmarshaling straight into a Go map, so a duplicate
// rule name in the source document (which a map would silently collapse to
// its last entry) is caught instead of swallowed, per the YAML format's
// "duplicate rule names forbidden".
func parseNamedRules(node yaml.Node) (map[string]yamlApplicability, error) {
	named := map[string]yamlApplicability{}
	if node.Kind == 0 {
		return named, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("applicability_rules: expected a mapping")
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], node.Content[i+1]
		name := keyNode.Value
		if name == "" {
			return nil, fmt.Errorf("applicability_rules: rule name cannot be empty")
		}
		if _, exists := named[name]; exists {
			return nil, fmt.Errorf("applicability_rules: duplicate rule name %q", name)
		}
		var a yamlApplicability
		if err := valNode.Decode(&a); err != nil {
			return nil, fmt.Errorf("applicability_rules[%s]: %w", name, err)
		}
		a.Name = name
		named[name] = a
	}
	return named, nil
}

func fromYAMLTariff(yt yamlTariff, namedRules map[string]yamlApplicability) (domain.Tariff, error) {
	if yt.Name == "" {
		return domain.Tariff{}, fmt.Errorf("missing required field: name")
	}
	if yt.Utility == "" {
		return domain.Tariff{}, fmt.Errorf("missing required field: utility")
	}
	t := domain.Tariff{Name: yt.Name, Utility: yt.Utility}
	for _, c := range yt.EnergyCharges {
		rate, err := decimal.NewFromString(c.RateUSDPerKWh)
		if err != nil {
			return domain.Tariff{}, fmt.Errorf("energy charge %q: invalid rate: %w", c.Name, err)
		}
		rules, err := resolveRules(c.Name, c.Rules, c.RuleRefs, namedRules)
		if err != nil {
			return domain.Tariff{}, fmt.Errorf("energy charge %q: %w", c.Name, err)
		}
		id := c.ID
		if id == "" {
			id = uuid.NewString()
		}
		t.EnergyCharges = append(t.EnergyCharges, domain.EnergyCharge{
			ID: id, Name: c.Name, RateUSDPerKWh: rate, Rules: rules,
		})
	}
	for _, c := range yt.DemandCharges {
		rate, err := decimal.NewFromString(c.RateUSDPerKW)
		if err != nil {
			return domain.Tariff{}, fmt.Errorf("demand charge %q: invalid rate: %w", c.Name, err)
		}
		rules, err := resolveRules(c.Name, c.Rules, c.RuleRefs, namedRules)
		if err != nil {
			return domain.Tariff{}, fmt.Errorf("demand charge %q: %w", c.Name, err)
		}
		peakType := domain.ChargeType(c.PeakType)
		if peakType == "" {
			peakType = domain.ChargeMonthly
		}
		id := c.ID
		if id == "" {
			id = uuid.NewString()
		}
		t.DemandCharges = append(t.DemandCharges, domain.DemandCharge{
			ID: id, Name: c.Name, RateUSDPerKW: rate, PeakType: peakType, Rules: rules,
		})
	}
	for _, c := range yt.CustomerCharges {
		amount, err := decimal.NewFromString(c.AmountUSD)
		if err != nil {
			return domain.Tariff{}, fmt.Errorf("customer charge %q: invalid amount: %w", c.Name, err)
		}
		chargeType := domain.ChargeType(c.ChargeType)
		if chargeType == "" {
			chargeType = domain.ChargeMonthly
		}
		id := c.ID
		if id == "" {
			id = uuid.NewString()
		}
		t.CustomerCharges = append(t.CustomerCharges, domain.CustomerCharge{
			ID: id, Name: c.Name, AmountUSD: amount, ChargeType: chargeType,
		})
	}
	return t, nil
}

// resolveRules merges a charge's inline rules with whatever named rules it
// references, per spec.md §6: "A charge may either reference named rules or
// inline its own" — in practice a charge may do both, and the effective
// rule set (§4.3's OR-composed mask) doesn't care which source a rule came
// from.
func resolveRules(chargeName string, inline []yamlApplicability, refs []string, named map[string]yamlApplicability) ([]domain.ApplicabilityRule, error) {
	var out []domain.ApplicabilityRule
	for i, a := range inline {
		name := a.Name
		if name == "" {
			name = fmt.Sprintf("%s-rule-%d", chargeName, i+1)
		}
		rule, err := fromYAMLApplicability(name, a)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	for _, ref := range refs {
		a, ok := named[ref]
		if !ok {
			return nil, fmt.Errorf("unknown rule_ref %q", ref)
		}
		rule, err := fromYAMLApplicability(ref, a)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

func fromYAMLApplicability(ruleName string, a yamlApplicability) (domain.ApplicabilityRule, error) {
	start, err := parseTimeOfDay(a.PeriodStartLocal)
	if err != nil {
		return domain.ApplicabilityRule{}, fmt.Errorf("rule %q: %w", ruleName, err)
	}
	end, err := parseTimeOfDay(a.PeriodEndLocal)
	if err != nil {
		return domain.ApplicabilityRule{}, fmt.Errorf("rule %q: %w", ruleName, err)
	}
	rule := domain.ApplicabilityRule{
		ID:               uuid.NewString(),
		Name:             ruleName,
		PeriodStartLocal: start,
		PeriodEndLocal:   end,
		AppliesWeekdays:  defaultTrue(a.AppliesWeekdays),
		AppliesWeekends:  defaultTrue(a.AppliesWeekends),
		AppliesHolidays:  defaultTrue(a.AppliesHolidays),
	}
	if a.AppliesStartDate != "" {
		startMD, err := parseMonthDay(a.AppliesStartDate)
		if err != nil {
			return domain.ApplicabilityRule{}, fmt.Errorf("rule %q: invalid applies_start_date: %w", ruleName, err)
		}
		endMD, err := parseMonthDay(a.AppliesEndDate)
		if err != nil {
			return domain.ApplicabilityRule{}, fmt.Errorf("rule %q: invalid applies_end_date: %w", ruleName, err)
		}
		rule.AppliesStartMD, rule.AppliesEndMD = startMD, endMD
	}
	if err := rule.Validate(); err != nil {
		return domain.ApplicabilityRule{}, err
	}
	return rule, nil
}

// defaultTrue implements the YAML format's "booleans default true" rule: an
// omitted applies_weekdays/weekends/holidays field decodes to a nil pointer
// here, which must match every day rather than silently narrowing
// applicability to Go's bool zero value.
func defaultTrue(b *bool) bool {
	if b == nil {
		return true
	}
	return *b
}

func parseTimeOfDay(s string) (domain.TimeOfDay, error) {
	if s == "" {
		return domain.TimeOfDay{}, fmt.Errorf("time field cannot be empty")
	}
	var hour, minute int
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil {
		return domain.TimeOfDay{}, fmt.Errorf("invalid time format %q: expected HH:MM", s)
	}
	return domain.TimeOfDay{Hour: hour, Minute: minute}, nil
}

func parseMonthDay(s string) (domain.MonthDay, error) {
	var year, month, day int
	if _, err := fmt.Sscanf(s, "%d-%d-%d", &year, &month, &day); err != nil {
		return domain.MonthDay{}, fmt.Errorf("invalid date format %q: expected YYYY-MM-DD", s)
	}
	return domain.MonthDay{Month: time.Month(month), Day: day}, nil
}
