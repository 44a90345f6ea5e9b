// Package usagecsv imports metered usage readings from CSV files, mirroring
// the original system's UsageCSVImporter: a fixed header schema and per-row
// unit conversion to the energy/demand units the domain computes in.
package usagecsv

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"microgrid-cloud/internal/billing/domain"
)

// requiredColumns is the column set a usage CSV must have, in any order;
// besides optionalColumns, unexpected extra columns are rejected, matching
// the original importer's strict schema check.
var requiredColumns = []string{
	"interval_start", "interval_end", "usage", "usage_unit",
	"peak_demand", "peak_demand_unit",
}

// optionalColumns may appear alongside requiredColumns.
var optionalColumns = []string{"temperature", "temperature_unit"}

// demandWarningThresholdKW is the peak-demand value below which a row is
// flagged as likely reported in watts instead of kilowatts.
var demandWarningThresholdKW = decimal.NewFromFloat(0.1)

// RowResult tags the outcome of importing one CSV row.
type RowResult struct {
	Line    int
	Warning string
}

// RowError names a CSV row that failed to import and why.
type RowError struct {
	Line    int
	Message string
}

// ImportResult tallies the outcome of importing a usage CSV, per §12's
// created/updated/warnings/errors bucket scheme.
type ImportResult struct {
	Created  []domain.UsageInterval
	Updated  []domain.UsageInterval
	Warnings []RowResult
	Errors   []RowError
}

// Import reads usage rows from r for a customer in the given timezone.
// existing reports whether an interval starting at t is already on file, so
// the caller can tally created vs. updated without a second repository
// round trip from this package.
func Import(r io.Reader, loc *time.Location, existing func(intervalStartUTC time.Time) bool) ImportResult {
	var result ImportResult
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		result.Errors = append(result.Errors, RowError{Line: 1, Message: fmt.Sprintf("cannot read header: %v", err)})
		return result
	}
	colIndex, err := validateHeader(header)
	if err != nil {
		result.Errors = append(result.Errors, RowError{Line: 1, Message: err.Error()})
		return result
	}

	line := 1
	for {
		line++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.Errors = append(result.Errors, RowError{Line: line, Message: err.Error()})
			continue
		}

		iv, warning, err := parseRow(record, colIndex, loc)
		if err != nil {
			result.Errors = append(result.Errors, RowError{Line: line, Message: err.Error()})
			continue
		}
		if warning != "" {
			result.Warnings = append(result.Warnings, RowResult{Line: line, Warning: warning})
		}
		if existing != nil && existing(iv.IntervalStartUTC) {
			result.Updated = append(result.Updated, iv)
		} else {
			result.Created = append(result.Created, iv)
		}
	}
	return result
}

func validateHeader(header []string) (map[string]int, error) {
	colIndex := make(map[string]int, len(header))
	for i, name := range header {
		colIndex[strings.TrimSpace(strings.ToLower(name))] = i
	}
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := colIndex[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	allowed := len(requiredColumns)
	for _, col := range optionalColumns {
		if _, ok := colIndex[col]; ok {
			allowed++
		}
	}
	if len(colIndex) != allowed {
		return nil, fmt.Errorf("unexpected columns present; usage CSV must contain exactly: %s (optionally %s)", strings.Join(requiredColumns, ", "), strings.Join(optionalColumns, ", "))
	}
	return colIndex, nil
}

func parseRow(record []string, colIndex map[string]int, loc *time.Location) (domain.UsageInterval, string, error) {
	field := func(name string) string {
		idx, ok := colIndex[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	startRaw := field("interval_start")
	endRaw := field("interval_end")
	usageRaw := field("usage")
	usageUnit := strings.ToLower(field("usage_unit"))
	demandRaw := field("peak_demand")
	demandUnit := strings.ToLower(field("peak_demand_unit"))
	tempRaw := field("temperature")
	tempUnit := strings.ToLower(field("temperature_unit"))

	if startRaw == "" || endRaw == "" || usageRaw == "" || usageUnit == "" || demandRaw == "" || demandUnit == "" {
		return domain.UsageInterval{}, "", fmt.Errorf("missing required field in row")
	}

	startUTC, err := parseTimestamp(startRaw, loc)
	if err != nil {
		return domain.UsageInterval{}, "", fmt.Errorf("interval_start: %w", err)
	}
	endUTC, err := parseTimestamp(endRaw, loc)
	if err != nil {
		return domain.UsageInterval{}, "", fmt.Errorf("interval_end: %w", err)
	}

	if tempRaw != "" {
		if !isValidTemperatureUnit(tempUnit) {
			return domain.UsageInterval{}, "", fmt.Errorf("temperature_unit must be C/Celsius, got %q", tempUnit)
		}
		if _, err := strconv.ParseFloat(tempRaw, 64); err != nil {
			return domain.UsageInterval{}, "", fmt.Errorf("temperature: invalid number %q", tempRaw)
		}
	}

	usageValue, err := decimal.NewFromString(usageRaw)
	if err != nil {
		return domain.UsageInterval{}, "", fmt.Errorf("usage: invalid number %q", usageRaw)
	}
	usage, err := convertToKWh(usageValue, usageUnit)
	if err != nil {
		return domain.UsageInterval{}, "", fmt.Errorf("usage_unit: %w", err)
	}
	demandValue, err := decimal.NewFromString(demandRaw)
	if err != nil {
		return domain.UsageInterval{}, "", fmt.Errorf("peak_demand: invalid number %q", demandRaw)
	}
	demand, err := convertToKW(demandValue, demandUnit)
	if err != nil {
		return domain.UsageInterval{}, "", fmt.Errorf("peak_demand_unit: %w", err)
	}

	var warning string
	if demand.IsPositive() && demand.LessThan(demandWarningThresholdKW) {
		warning = fmt.Sprintf("peak_demand %s kW is unusually low; verify the column isn't reported in watts", demand.String())
	}

	return domain.UsageInterval{
		IntervalStartUTC: startUTC,
		IntervalEndUTC:   endUTC,
		EnergyKWh:        usage,
		PeakDemandKW:     demand,
	}, warning, nil
}

func isValidTemperatureUnit(unit string) bool {
	switch unit {
	case "c", "celsius", "°c":
		return true
	default:
		return false
	}
}

var wattHourPerKWh = decimal.NewFromInt(1000)

// convertToKWh normalizes an energy reading to kWh, the unit the domain
// allocators compute in. Accepted units: kWh, Wh, MWh.
func convertToKWh(value decimal.Decimal, unit string) (decimal.Decimal, error) {
	switch unit {
	case "kwh":
		return value, nil
	case "wh":
		return value.Div(wattHourPerKWh), nil
	case "mwh":
		return value.Mul(wattHourPerKWh), nil
	default:
		return decimal.Decimal{}, fmt.Errorf("must be kWh, Wh, or MWh, got %q", unit)
	}
}

// convertToKW normalizes a demand reading to kW, the unit the domain
// allocators compute in. Accepted units: kW, W, MW.
func convertToKW(value decimal.Decimal, unit string) (decimal.Decimal, error) {
	switch unit {
	case "kw":
		return value, nil
	case "w":
		return value.Div(wattHourPerKWh), nil
	case "mw":
		return value.Mul(wattHourPerKWh), nil
	default:
		return decimal.Decimal{}, fmt.Errorf("must be kW, W, or MW, got %q", unit)
	}
}

// parseTimestamp requires an explicit UTC or offset-bearing ISO-8601
// timestamp; a naive timestamp (no offset) is rejected rather than silently
// localized, since there is no reliable way to tell whether an omitted
// offset means UTC or the customer's local timezone.
func parseTimestamp(raw string, loc *time.Location) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q must be ISO-8601 with an explicit UTC or offset designator", raw)
	}
	return t.UTC(), nil
}
