package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"microgrid-cloud/internal/audit"
	"microgrid-cloud/internal/auth"
	"microgrid-cloud/internal/billing/domain"
	"microgrid-cloud/internal/billing/infrastructure/tariffyaml"
	"microgrid-cloud/internal/billing/infrastructure/usagecsv"
	"microgrid-cloud/internal/observability/metrics"
)

// UsageUpserter is the narrow repository surface the CSV import handler
// needs: a bulk upsert that tallies created/updated rows, implemented by
// the Postgres usage repository.
type UsageUpserter interface {
	BulkUpsert(ctx context.Context, customerName string, intervals []domain.UsageInterval) (created, updated int, err error)
}

// TariffHandler serves bulk tariff YAML import/export and usage CSV import,
// the admin-side counterpart of BillHandler's computation surface.
type TariffHandler struct {
	tariffs     domain.TariffRepository
	customers   domain.CustomerRepository
	usage       UsageUpserter
	auditLogger audit.Logger
}

// NewTariffHandler constructs a handler.
func NewTariffHandler(tariffs domain.TariffRepository, customers domain.CustomerRepository, usage UsageUpserter, auditLogger audit.Logger) (*TariffHandler, error) {
	if tariffs == nil {
		return nil, errors.New("tariff handler: nil tariff repository")
	}
	return &TariffHandler{tariffs: tariffs, customers: customers, usage: usage, auditLogger: auditLogger}, nil
}

// ServeHTTP handles routes under /api/v1/tariffs and /api/v1/usage.
func (h *TariffHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/v1/tariffs/export" && r.Method == http.MethodGet:
		h.handleExport(w, r)
	case r.URL.Path == "/api/v1/tariffs/import" && r.Method == http.MethodPost:
		h.handleImport(w, r)
	case r.URL.Path == "/api/v1/usage/import" && r.Method == http.MethodPost:
		h.handleUsageImport(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *TariffHandler) handleExport(w http.ResponseWriter, r *http.Request) {
	utility := r.URL.Query().Get("utility")
	if utility == "" {
		http.Error(w, "utility query parameter is required", http.StatusBadRequest)
		return
	}
	list, err := h.tariffs.ListByUtility(r.Context(), utility)
	if err != nil {
		respondBillingError(w, err)
		return
	}
	data, err := tariffyaml.Export(list)
	if err != nil {
		http.Error(w, "export error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *TariffHandler) handleImport(w http.ResponseWriter, r *http.Request) {
	replace := r.URL.Query().Get("replace") == "true"
	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "cannot read request body", http.StatusBadRequest)
		return
	}

	result := tariffyaml.Import(data, replace, func(utility, name string) bool {
		existing, err := h.tariffs.FindByUtilityName(r.Context(), utility, name)
		return err == nil && existing != nil
	})

	for _, t := range append(append([]domain.Tariff{}, result.Created...), result.Updated...) {
		if err := h.tariffs.Upsert(r.Context(), t); err != nil {
			result.Errors = append(result.Errors, tariffyaml.FailedTariff{Name: t.Name, Messages: []string{err.Error()}})
		}
	}
	metrics.IncBillingTariffImport(importStatus(result))

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
	h.logAudit(r, "tariff.import", map[string]any{
		"created": len(result.Created),
		"updated": len(result.Updated),
		"skipped": len(result.Skipped),
		"errors":  len(result.Errors),
	})
}

func (h *TariffHandler) handleUsageImport(w http.ResponseWriter, r *http.Request) {
	if h.usage == nil {
		http.Error(w, "usage import is not configured", http.StatusServiceUnavailable)
		return
	}
	customerName := r.URL.Query().Get("customer_name")
	if customerName == "" {
		http.Error(w, "customer_name query parameter is required", http.StatusBadRequest)
		return
	}
	tz := r.URL.Query().Get("timezone")
	if tz == "" && h.customers != nil {
		if profile, err := h.customers.FindByName(r.Context(), customerName); err == nil && profile != nil {
			tz = profile.Timezone
		}
	}
	if tz == "" {
		http.Error(w, "timezone could not be resolved for customer; pass ?timezone=", http.StatusBadRequest)
		return
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		http.Error(w, "unknown timezone: "+tz, http.StatusBadRequest)
		return
	}

	result := usagecsv.Import(r.Body, loc, nil)
	created, updated, err := h.usage.BulkUpsert(r.Context(), customerName, append(append([]domain.UsageInterval{}, result.Created...), result.Updated...))
	if err != nil {
		respondBillingError(w, err)
		return
	}
	metrics.AddBillingUsageImportRows("created", created)
	metrics.AddBillingUsageImportRows("updated", updated)
	metrics.AddBillingUsageImportRows("warning", len(result.Warnings))
	metrics.AddBillingUsageImportRows("error", len(result.Errors))

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Created  int                  `json:"created"`
		Updated  int                  `json:"updated"`
		Warnings []usagecsv.RowResult `json:"warnings"`
		Errors   []usagecsv.RowError  `json:"errors"`
	}{Created: created, Updated: updated, Warnings: result.Warnings, Errors: result.Errors})
	h.logAudit(r, "usage.import", map[string]any{
		"customer_name": customerName,
		"created":       created,
		"updated":       updated,
		"warnings":      len(result.Warnings),
		"errors":        len(result.Errors),
	})
}

func importStatus(result tariffyaml.ImportResult) string {
	if len(result.Errors) > 0 {
		return "partial"
	}
	return "success"
}

func (h *TariffHandler) logAudit(r *http.Request, action string, meta map[string]any) {
	if h.auditLogger == nil {
		return
	}
	tenantID := auth.TenantIDFromContext(r.Context())
	if tenantID == "" {
		return
	}
	payload, _ := json.Marshal(meta)
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		TenantID:     tenantID,
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: "tariff",
		Metadata:     payload,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
}
