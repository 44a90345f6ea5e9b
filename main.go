package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"time"

	"microgrid-cloud/internal/audit"
	"microgrid-cloud/internal/auth"
	billingapp "microgrid-cloud/internal/billing/application"
	"microgrid-cloud/internal/billing/domain"
	billingrepo "microgrid-cloud/internal/billing/infrastructure/postgres"
	billinginterfaces "microgrid-cloud/internal/billing/interfaces"
	"microgrid-cloud/internal/eventing"
	eventingrepo "microgrid-cloud/internal/eventing/infrastructure/postgres"
	"microgrid-cloud/internal/observability/metrics"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := billingapp.LoadConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := log.New(os.Stdout, "", log.LstdFlags)

	db := openDB(cfg.DatabaseURL, logger)
	defer db.Close()

	metrics.Init(db, logger)
	auditRepo := audit.NewRepository(db)

	tariffRepo := billingrepo.NewTariffRepository(db)
	customerRepo := billingrepo.NewCustomerRepository(db)
	holidayRepo := billingrepo.NewHolidayRepository(db)
	usageRepo := billingrepo.NewUsageRepository(db)
	snapshotRepo := billingrepo.NewBillSnapshotRepository(db)

	baseBus := eventing.NewInMemoryBus()
	registry := eventing.NewRegistry()
	registry.Register(billingapp.BillComputed{})

	outboxStore := eventingrepo.NewOutboxStore(db)
	dispatcher := eventing.NewDispatcher(baseBus, outboxStore, registry, nil)
	publisher := eventing.NewPublisher(outboxStore, dispatcher, cfg.TenantID, baseBus)

	eventing.Subscribe(baseBus, eventing.EventTypeOf[billingapp.BillComputed](), "billing.log", func(_ context.Context, event any) error {
		evt, ok := event.(billingapp.BillComputed)
		if !ok {
			return eventing.ErrInvalidEventType
		}
		logger.Printf("bill computed: customer=%s utility=%s months=%v total=%s", evt.CustomerName, evt.Utility, evt.Months, evt.GrandTotalUSD)
		return nil
	}, nil)

	billingService, err := billingapp.NewBillingService(tariffRepo, customerRepo, holidayRepo, usageRepo, snapshotRepo, publisher, auditRepo)
	if err != nil {
		logger.Fatalf("billing service error: %v", err)
	}

	billHandler, err := billinginterfaces.NewBillHandler(billingService, auditRepo, domain.GapStrategy(cfg.DefaultGapPolicy))
	if err != nil {
		logger.Fatalf("bill handler error: %v", err)
	}
	tariffHandler, err := billinginterfaces.NewTariffHandler(tariffRepo, customerRepo, usageRepo, auditRepo)
	if err != nil {
		logger.Fatalf("tariff handler error: %v", err)
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/bills/compute", billHandler)
	mux.Handle("/api/v1/bills/", billHandler)
	mux.Handle("/api/v1/tariffs/export", tariffHandler)
	mux.Handle("/api/v1/tariffs/import", tariffHandler)
	mux.Handle("/api/v1/usage/import", tariffHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      loggingMiddleware(authMiddleware.Wrap(mux), logger),
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: cfg.RequestTimeout,
	}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

func openDB(dsn string, logger *log.Logger) *sql.DB {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}
	return db
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
