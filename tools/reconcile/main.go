// Command reconcile diffs a freshly computed bill against the snapshot
// persisted by the last billing run, the way the platform's original
// reconciliation tool diffed computed settlement figures against what had
// already been written to the ledger.
package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"microgrid-cloud/internal/billing/application"
	"microgrid-cloud/internal/billing/domain"
	billingpg "microgrid-cloud/internal/billing/infrastructure/postgres"
)

type config struct {
	dbURL        string
	tenantID     string
	customerName string
	month        string
	startLocal   string
	endLocal     string
	outDir       string
	gapStrategy  string
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	if err := os.MkdirAll(cfg.outDir, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, "create out dir:", err)
		os.Exit(2)
	}

	db, err := sql.Open("pgx", cfg.dbURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "db open:", err)
		os.Exit(2)
	}
	defer db.Close()

	tariffs := billingpg.NewTariffRepository(db)
	customers := billingpg.NewCustomerRepository(db)
	holidays := billingpg.NewHolidayRepository(db)
	usage := billingpg.NewUsageRepository(db)
	snapshots := billingpg.NewBillSnapshotRepository(db)

	ctx := context.Background()

	if cfg.startLocal != "" || cfg.endLocal != "" {
		if err := runWeighted(ctx, cfg, tariffs, customers, holidays, usage, snapshots); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(exitCodeFor(err))
		}
		return
	}

	month, err := parseMonthKey(cfg.month)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	service, err := application.NewBillingService(tariffs, customers, holidays, usage, snapshots, nil, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "billing service:", err)
		os.Exit(4)
	}
	// The billing month that closes in `month` may start before this
	// calendar month when the customer's billing_day isn't 1, so the
	// request period spans a calendar month of slack on either side and
	// AssembleByBillingMonth picks out the cycle that actually closes here.
	period := domain.RequestPeriod{
		StartLocal: firstDayOfPrev(month),
		EndLocal:   lastDayOfNext(month),
	}

	fresh, err := service.ComputeForCustomer(ctx, cfg.customerName, period, domain.GapStrategy(cfg.gapStrategy))
	if err != nil {
		exitForComputeError(err)
	}

	var freshResult *domain.BillResult
	for i := range fresh.Months {
		if fresh.Months[i].Month == month {
			freshResult = &fresh.Months[i]
			break
		}
	}
	if freshResult == nil {
		fmt.Fprintf(os.Stderr, "computation did not produce a result for %s\n", month.String())
		os.Exit(3)
	}

	persisted, err := service.FetchSnapshot(ctx, cfg.customerName, month)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fetch snapshot:", err)
		os.Exit(4)
	}
	if persisted == nil {
		fmt.Fprintf(os.Stderr, "no persisted snapshot for %s %s; nothing to reconcile against\n", cfg.customerName, month.String())
		os.Exit(3)
	}

	diffs := diffBillResults(*freshResult, *persisted)
	if err := writeDiffReport(cfg.outDir, cfg.customerName, month, diffs); err != nil {
		fmt.Fprintln(os.Stderr, "write diff report:", err)
		os.Exit(4)
	}

	if len(diffs) == 0 {
		fmt.Printf("reconcile: %s %s matches the persisted snapshot\n", cfg.customerName, month.String())
		return
	}
	fmt.Printf("reconcile: %s %s differs in %d line item(s); see %s\n", cfg.customerName, month.String(), len(diffs), cfg.outDir)
}

func exitForComputeError(err error) {
	fmt.Fprintln(os.Stderr, "compute:", err)
	os.Exit(exitCodeFor(err))
}

func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInputValidation), errors.Is(err, domain.ErrInconsistency), errors.Is(err, domain.ErrZoneUnknown):
		return 2
	case errors.Is(err, domain.ErrMissingData):
		return 3
	case errors.Is(err, domain.ErrCancelled):
		return 130
	}
	return 4
}

// runWeighted handles an ad-hoc request period that does not align to the
// customer's billing-month boundaries (e.g. a custom report spanning parts
// of two calendar months). It runs the allocation pipeline directly and
// aggregates with AssembleWeighted rather than AssembleByBillingMonth, then
// compares the weighted total against the sum of whichever persisted
// snapshots overlap the period.
func runWeighted(
	ctx context.Context,
	cfg config,
	tariffs domain.TariffRepository,
	customers domain.CustomerRepository,
	holidays domain.HolidayRepository,
	usage domain.UsageRepository,
	snapshots domain.BillSnapshotRepository,
) error {
	if cfg.startLocal == "" || cfg.endLocal == "" {
		return errors.New("--start and --end must both be set for an ad-hoc weighted reconciliation")
	}
	start, err := parseCivilDate(cfg.startLocal)
	if err != nil {
		return fmt.Errorf("--start: %w", err)
	}
	end, err := parseCivilDate(cfg.endLocal)
	if err != nil {
		return fmt.Errorf("--end: %w", err)
	}

	profile, err := customers.FindByName(ctx, cfg.customerName)
	if err != nil {
		return err
	}
	if profile == nil {
		return domain.ErrMissingData
	}
	utility, tariffName, err := customers.TariffAssignment(ctx, cfg.customerName)
	if err != nil {
		return err
	}
	tariff, err := tariffs.FindByUtilityName(ctx, utility, tariffName)
	if err != nil {
		return err
	}
	if tariff == nil {
		return domain.ErrMissingData
	}
	holidayList, err := holidays.ListByUtility(ctx, utility)
	if err != nil {
		return err
	}

	loc, err := time.LoadLocation(profile.Timezone)
	if err != nil {
		return domain.ErrZoneUnknown
	}
	fromUTC := time.Date(start.Year, start.Month, start.Day, 0, 0, 0, 0, loc).UTC()
	toUTC := time.Date(end.Year, end.Month, end.Day, 0, 0, 0, 0, loc).AddDate(0, 0, 1).UTC()
	usageRows, err := usage.Find(ctx, cfg.customerName, fromUTC, toUTC)
	if err != nil {
		return err
	}

	if err := domain.ValidateUsage(usageRows, profile.BillingIntervalMinutes); err != nil {
		return err
	}
	grid, err := domain.BuildTimeGrid(start, end, profile.Timezone, profile.BillingIntervalMinutes, domain.NewHolidaySet(holidayList), profile.BillingDay)
	if err != nil {
		return err
	}
	filled, _, err := domain.FillGaps(grid, usageRows, domain.GapStrategy(cfg.gapStrategy), profile.BillingDay)
	if err != nil {
		return err
	}

	var series []domain.ChargeSeries
	for _, charge := range tariff.EnergyCharges {
		mask := domain.EvaluateMask(grid, charge.Rules)
		series = append(series, domain.ChargeSeries{Charge: charge, Cost: domain.AllocateEnergy(charge, mask, filled)})
	}
	for _, charge := range tariff.DemandCharges {
		mask := domain.EvaluateMask(grid, charge.Rules)
		cost, err := domain.AllocateDemand(ctx, charge, mask, filled, grid, profile.BillingDay)
		if err != nil {
			return err
		}
		series = append(series, domain.ChargeSeries{Charge: charge, Cost: cost})
	}
	for _, charge := range tariff.CustomerCharges {
		series = append(series, domain.ChargeSeries{Charge: charge, Cost: domain.AllocateCustomer(charge, grid, profile.BillingDay)})
	}

	weighted, _, err := domain.AssembleWeighted(grid, series)
	if err != nil {
		return err
	}

	storedTotal := decimal.Zero
	for key := start.Year*12 + int(start.Month); key <= end.Year*12+int(end.Month); key++ {
		year, m := key/12, time.Month(key%12)
		if m == 0 {
			year--
			m = 12
		}
		snap, err := snapshots.FindLatest(ctx, cfg.customerName, domain.BillingMonthKey{Year: year, Month: m})
		if err != nil {
			return err
		}
		if snap != nil {
			storedTotal = storedTotal.Add(snap.TotalUSD)
		}
	}

	diff := weighted.TotalUSD.Sub(storedTotal)
	if err := writeDiffReport(cfg.outDir, cfg.customerName, domain.BillingMonthKey{Year: start.Year, Month: start.Month}, []lineDiff{{ChargeID: totalDiffKey, Fresh: weighted.TotalUSD, Stored: storedTotal}}); err != nil {
		return err
	}
	fmt.Printf("reconcile: %s %s..%s weighted total %s vs stored %s (delta %s); see %s\n",
		cfg.customerName, cfg.startLocal, cfg.endLocal, weighted.TotalUSD.StringFixed(2), storedTotal.StringFixed(2), diff.StringFixed(2), cfg.outDir)
	return nil
}

func parseCivilDate(s string) (domain.CivilDate, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return domain.CivilDate{}, err
	}
	return domain.CivilDate{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

// lineDiff records one line item (or the grand total, keyed "__total__")
// whose freshly computed value disagrees with what is on record.
type lineDiff struct {
	ChargeID string
	Fresh    decimal.Decimal
	Stored   decimal.Decimal
}

const totalDiffKey = "__total__"

// diffBillResults compares a freshly computed BillResult against a
// persisted one, line item by line item plus the overall total. Amounts
// within half a cent (0.005) of each other are treated as matching, since the stored
// figure may have gone through a different rounding pass than the one the
// core just ran.
func diffBillResults(fresh, stored domain.BillResult) []lineDiff {
	epsilon := decimal.NewFromFloat(0.005)
	var diffs []lineDiff

	seen := make(map[string]bool, len(fresh.LineItems)+len(stored.LineItems))
	for id := range fresh.LineItems {
		seen[id] = true
	}
	for id := range stored.LineItems {
		seen[id] = true
	}
	for id := range seen {
		a, b := fresh.LineItems[id], stored.LineItems[id]
		if a.Sub(b).Abs().GreaterThan(epsilon) {
			diffs = append(diffs, lineDiff{ChargeID: id, Fresh: a, Stored: b})
		}
	}
	if fresh.TotalUSD.Sub(stored.TotalUSD).Abs().GreaterThan(epsilon) {
		diffs = append(diffs, lineDiff{ChargeID: totalDiffKey, Fresh: fresh.TotalUSD, Stored: stored.TotalUSD})
	}
	return diffs
}

func writeDiffReport(outDir, customerName string, month domain.BillingMonthKey, diffs []lineDiff) error {
	path := filepath.Join(outDir, fmt.Sprintf("reconcile-%s-%s.csv", customerName, month.String()))
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"charge_id", "fresh_usd", "stored_usd", "delta_usd"}); err != nil {
		return err
	}
	for _, d := range diffs {
		row := []string{
			d.ChargeID,
			d.Fresh.StringFixed(2),
			d.Stored.StringFixed(2),
			d.Fresh.Sub(d.Stored).StringFixed(2),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}

func parseFlags() (config, error) {
	var cfg config
	flag.StringVar(&cfg.dbURL, "db", getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")), "Postgres DSN")
	flag.StringVar(&cfg.tenantID, "tenant", getenvDefault("TENANT_ID", ""), "tenant id")
	flag.StringVar(&cfg.customerName, "customer", "", "customer name")
	flag.StringVar(&cfg.month, "month", "", "billing month in YYYY-MM")
	flag.StringVar(&cfg.startLocal, "start", "", "ad-hoc request period start, YYYY-MM-DD local (use with --end instead of --month)")
	flag.StringVar(&cfg.endLocal, "end", "", "ad-hoc request period end, YYYY-MM-DD local, inclusive")
	flag.StringVar(&cfg.outDir, "out", "./out", "output directory")
	flag.StringVar(&cfg.gapStrategy, "gap-strategy", string(domain.GapExtrapolateLast), "gap_strategy to recompute with (extrapolate_last|linear_interpolate)")
	flag.Parse()

	if cfg.dbURL == "" {
		return cfg, errors.New("missing --db or DATABASE_URL/PG_DSN")
	}
	if cfg.customerName == "" {
		return cfg, errors.New("missing --customer")
	}
	adHoc := cfg.startLocal != "" || cfg.endLocal != ""
	if adHoc {
		if cfg.startLocal == "" || cfg.endLocal == "" {
			return cfg, errors.New("--start and --end must both be set")
		}
		if cfg.month != "" {
			return cfg, errors.New("--month cannot be combined with --start/--end")
		}
		return cfg, nil
	}
	if cfg.month == "" {
		return cfg, errors.New("missing --month (YYYY-MM), or --start/--end for an ad-hoc period")
	}
	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func parseMonthKey(s string) (domain.BillingMonthKey, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return domain.BillingMonthKey{}, fmt.Errorf("invalid month %q: expected YYYY-MM", s)
	}
	return domain.BillingMonthKey{Year: t.Year(), Month: t.Month()}, nil
}

func firstDayOfPrev(month domain.BillingMonthKey) domain.CivilDate {
	first := time.Date(month.Year, month.Month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	return domain.CivilDate{Year: first.Year(), Month: first.Month(), Day: first.Day()}
}

func lastDayOfNext(month domain.BillingMonthKey) domain.CivilDate {
	firstOfNext := time.Date(month.Year, month.Month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 2, 0)
	last := firstOfNext.AddDate(0, 0, -1)
	return domain.CivilDate{Year: last.Year(), Month: last.Month(), Day: last.Day()}
}
