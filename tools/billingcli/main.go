// Command billingcli computes a bill from a tariff YAML file and a usage CSV
// file without touching a database, for local testing of a tariff before it
// is imported into the running system.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"microgrid-cloud/internal/billing/domain"
	"microgrid-cloud/internal/billing/infrastructure/tariffyaml"
	"microgrid-cloud/internal/billing/infrastructure/usagecsv"
)

type config struct {
	tariffPath  string
	usagePath   string
	tariffName  string
	timezone    string
	billingDay  int
	intervalMin int
	startLocal  string
	endLocal    string
	gapStrategy string
	holidays    string
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	computation, err := run(ctx, cfg)
	if err != nil {
		os.Exit(exitCodeFor(err))
	}

	out, err := json.MarshalIndent(toJSON(computation), "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "encode result:", err)
		os.Exit(4)
	}
	fmt.Println(string(out))
}

func run(ctx context.Context, cfg config) (*domain.BillComputation, error) {
	tariffBytes, err := os.ReadFile(cfg.tariffPath)
	if err != nil {
		return nil, fmt.Errorf("read tariff file: %w", err)
	}
	result := tariffyaml.Import(tariffBytes, false, nil)
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("tariff import: %s: %w", result.Errors[0].Messages[0], domain.ErrInputValidation)
	}
	tariff, err := selectTariff(result, cfg.tariffName)
	if err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(cfg.timezone)
	if err != nil {
		return nil, domain.ErrZoneUnknown
	}

	usageFile, err := os.Open(cfg.usagePath)
	if err != nil {
		return nil, fmt.Errorf("open usage file: %w", err)
	}
	defer usageFile.Close()
	usageResult := usagecsv.Import(usageFile, loc, nil)
	if len(usageResult.Errors) > 0 {
		return nil, fmt.Errorf("usage import: line %d: %s: %w", usageResult.Errors[0].Line, usageResult.Errors[0].Message, domain.ErrInputValidation)
	}
	usage := append(usageResult.Created, usageResult.Updated...)

	profile := domain.CustomerProfile{
		Name:                   "cli",
		Timezone:               cfg.timezone,
		BillingIntervalMinutes: cfg.intervalMin,
		BillingDay:             cfg.billingDay,
	}
	start, err := parseCivilDate(cfg.startLocal)
	if err != nil {
		return nil, fmt.Errorf("start_local: %w", err)
	}
	end, err := parseCivilDate(cfg.endLocal)
	if err != nil {
		return nil, fmt.Errorf("end_local: %w", err)
	}

	holidays, err := parseHolidays(cfg.holidays)
	if err != nil {
		return nil, err
	}

	return domain.ComputeBill(ctx, profile, tariff, holidays, usage, domain.RequestPeriod{StartLocal: start, EndLocal: end}, domain.GapStrategy(cfg.gapStrategy))
}

func selectTariff(result tariffyaml.ImportResult, name string) (domain.Tariff, error) {
	candidates := append(result.Created, result.Updated...)
	if len(candidates) == 0 {
		return domain.Tariff{}, errors.New("tariff file contains no importable tariffs")
	}
	if name == "" {
		return candidates[0], nil
	}
	for _, t := range candidates {
		if t.Name == name {
			return t, nil
		}
	}
	return domain.Tariff{}, fmt.Errorf("tariff %q not found in file", name)
}

func exitCodeFor(err error) int {
	fmt.Fprintln(os.Stderr, err)
	switch {
	case errors.Is(err, domain.ErrInputValidation), errors.Is(err, domain.ErrInconsistency), errors.Is(err, domain.ErrZoneUnknown):
		return 2
	case errors.Is(err, domain.ErrMissingData):
		return 3
	case errors.Is(err, domain.ErrCancelled), errors.Is(err, context.Canceled):
		return 130
	}
	return 4
}

type jsonResult struct {
	Months        []jsonMonth `json:"months"`
	GrandTotalUSD string      `json:"grand_total_usd"`
}

type jsonMonth struct {
	Month     string            `json:"month"`
	LineItems map[string]string `json:"line_items"`
	TotalUSD  string            `json:"total_usd"`
	Gaps      int               `json:"missing_intervals"`
}

func toJSON(c *domain.BillComputation) jsonResult {
	out := jsonResult{GrandTotalUSD: c.GrandTotalUSD.String()}
	for _, m := range c.Months {
		lineItems := make(map[string]string, len(m.LineItems))
		for id, v := range m.LineItems {
			lineItems[id] = v.String()
		}
		out.Months = append(out.Months, jsonMonth{
			Month:     m.Month.String(),
			LineItems: lineItems,
			TotalUSD:  m.TotalUSD.String(),
			Gaps:      m.Gaps.MissingCount,
		})
	}
	return out
}

func parseFlags() (config, error) {
	var cfg config
	flag.StringVar(&cfg.tariffPath, "tariff", "", "path to a tariff YAML file")
	flag.StringVar(&cfg.usagePath, "usage", "", "path to a usage CSV file")
	flag.StringVar(&cfg.tariffName, "tariff-name", "", "tariff name to select when the file holds more than one (default: first)")
	flag.StringVar(&cfg.timezone, "tz", "UTC", "customer IANA timezone")
	flag.IntVar(&cfg.billingDay, "billing-day", 1, "billing cycle close day of month")
	flag.IntVar(&cfg.intervalMin, "interval-minutes", 15, "usage interval length in minutes")
	flag.StringVar(&cfg.startLocal, "start", "", "request period start, YYYY-MM-DD local")
	flag.StringVar(&cfg.endLocal, "end", "", "request period end, YYYY-MM-DD local, inclusive")
	flag.StringVar(&cfg.gapStrategy, "gap-strategy", string(domain.GapExtrapolateLast), "extrapolate_last|linear_interpolate")
	flag.StringVar(&cfg.holidays, "holidays", "", "comma-separated YYYY-MM-DD local holiday dates")
	flag.Parse()

	if cfg.tariffPath == "" {
		return cfg, errors.New("missing --tariff")
	}
	if cfg.usagePath == "" {
		return cfg, errors.New("missing --usage")
	}
	if cfg.startLocal == "" || cfg.endLocal == "" {
		return cfg, errors.New("missing --start/--end")
	}
	return cfg, nil
}

func parseCivilDate(s string) (domain.CivilDate, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return domain.CivilDate{}, err
	}
	return domain.CivilDate{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

func parseHolidays(s string) ([]domain.Holiday, error) {
	if s == "" {
		return nil, nil
	}
	var holidays []domain.Holiday
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		date, err := parseCivilDate(part)
		if err != nil {
			return nil, fmt.Errorf("invalid holiday date %q: %w", part, err)
		}
		holidays = append(holidays, domain.Holiday{Name: part, Date: date})
	}
	return holidays, nil
}
