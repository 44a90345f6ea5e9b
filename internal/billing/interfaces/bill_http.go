package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"microgrid-cloud/internal/audit"
	"microgrid-cloud/internal/auth"
	billingapp "microgrid-cloud/internal/billing/application"
	"microgrid-cloud/internal/billing/domain"
	"microgrid-cloud/internal/observability/metrics"
)

// BillHandler serves the billing admin surface: trigger a computation,
// fetch a previously computed month, and export it as PDF/XLSX.
type BillHandler struct {
	service            *billingapp.BillingService
	auditLogger        audit.Logger
	defaultGapStrategy domain.GapStrategy
}

// NewBillHandler constructs a handler. defaultGapStrategy is used when a
// compute request omits gap_strategy; it falls back to GapExtrapolateLast
// when empty.
func NewBillHandler(service *billingapp.BillingService, auditLogger audit.Logger, defaultGapStrategy domain.GapStrategy) (*BillHandler, error) {
	if service == nil {
		return nil, errors.New("bill handler: nil service")
	}
	if defaultGapStrategy == "" {
		defaultGapStrategy = domain.GapExtrapolateLast
	}
	return &BillHandler{service: service, auditLogger: auditLogger, defaultGapStrategy: defaultGapStrategy}, nil
}

// ServeHTTP handles routes under /api/v1/bills.
func (h *BillHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if path == "/api/v1/bills/compute" && r.Method == http.MethodPost {
		h.handleCompute(w, r)
		return
	}
	if strings.HasPrefix(path, "/api/v1/bills/") {
		rest := strings.TrimPrefix(path, "/api/v1/bills/")
		h.handleByCustomer(w, r, rest)
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

func (h *BillHandler) handleCompute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CustomerName string `json:"customer_name"`
		StartLocal   string `json:"start_local"`
		EndLocal     string `json:"end_local"`
		GapStrategy  string `json:"gap_strategy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	start, err := parseCivilDate(req.StartLocal)
	if err != nil {
		http.Error(w, "invalid start_local: "+err.Error(), http.StatusBadRequest)
		return
	}
	end, err := parseCivilDate(req.EndLocal)
	if err != nil {
		http.Error(w, "invalid end_local: "+err.Error(), http.StatusBadRequest)
		return
	}
	strategy := domain.GapStrategy(req.GapStrategy)
	if strategy == "" {
		strategy = h.defaultGapStrategy
	}

	computation, err := h.service.ComputeForCustomer(r.Context(), req.CustomerName, domain.RequestPeriod{StartLocal: start, EndLocal: end}, strategy)
	if err != nil {
		respondBillingError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(computation)
	h.logAudit(r, req.CustomerName, "billing.compute", map[string]any{
		"start_local":  req.StartLocal,
		"end_local":    req.EndLocal,
		"gap_strategy": string(strategy),
	})
}

func (h *BillHandler) handleByCustomer(w http.ResponseWriter, r *http.Request, rest string) {
	parts := strings.Split(rest, "/")
	if len(parts) < 2 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	customerName := parts[0]
	monthStr := parts[1]
	month, err := parseBillingMonthKey(monthStr)
	if err != nil {
		http.Error(w, "invalid month: "+err.Error(), http.StatusBadRequest)
		return
	}

	if len(parts) == 2 && r.Method == http.MethodGet {
		h.handleGet(w, r, customerName, month)
		return
	}
	if len(parts) == 3 {
		switch parts[2] {
		case "export.pdf":
			if r.Method == http.MethodGet {
				h.handleExportPDF(w, r, customerName, month)
				return
			}
		case "export.xlsx":
			if r.Method == http.MethodGet {
				h.handleExportXLSX(w, r, customerName, month)
				return
			}
		}
	}
	w.WriteHeader(http.StatusNotFound)
}

func (h *BillHandler) handleGet(w http.ResponseWriter, r *http.Request, customerName string, month domain.BillingMonthKey) {
	result, err := h.service.FetchSnapshot(r.Context(), customerName, month)
	if err != nil {
		respondBillingError(w, err)
		return
	}
	if result == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

func (h *BillHandler) handleExportPDF(w http.ResponseWriter, r *http.Request, customerName string, month domain.BillingMonthKey) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveBillingExport("pdf", result, time.Since(start))
	}()

	bill, err := h.service.FetchSnapshot(r.Context(), customerName, month)
	if err != nil {
		result = metrics.ResultError
		respondBillingError(w, err)
		return
	}
	if bill == nil {
		result = metrics.ResultError
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	data, err := BuildBillPDF(customerName, *bill)
	if err != nil {
		result = metrics.ResultError
		http.Error(w, "export pdf error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
	h.logAudit(r, customerName, "billing.export", map[string]any{"format": "pdf", "month": month.String()})
}

func (h *BillHandler) handleExportXLSX(w http.ResponseWriter, r *http.Request, customerName string, month domain.BillingMonthKey) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveBillingExport("xlsx", result, time.Since(start))
	}()

	bill, err := h.service.FetchSnapshot(r.Context(), customerName, month)
	if err != nil {
		result = metrics.ResultError
		respondBillingError(w, err)
		return
	}
	if bill == nil {
		result = metrics.ResultError
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	data, err := BuildBillXLSX(customerName, *bill)
	if err != nil {
		result = metrics.ResultError
		http.Error(w, "export xlsx error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
	h.logAudit(r, customerName, "billing.export", map[string]any{"format": "xlsx", "month": month.String()})
}

func (h *BillHandler) logAudit(r *http.Request, customerName, action string, meta map[string]any) {
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
		ResourceType: "bill",
		ResourceID:   customerName,
		Metadata:     payload,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
}

func respondBillingError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, domain.ErrMissingData):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case errors.Is(err, domain.ErrInputValidation), errors.Is(err, domain.ErrZoneUnknown), errors.Is(err, domain.ErrInconsistency):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, domain.ErrCancelled):
		http.Error(w, err.Error(), http.StatusRequestTimeout)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func parseCivilDate(s string) (domain.CivilDate, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return domain.CivilDate{}, err
	}
	return domain.CivilDate{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

func parseBillingMonthKey(s string) (domain.BillingMonthKey, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return domain.BillingMonthKey{}, err
	}
	return domain.BillingMonthKey{Year: t.Year(), Month: t.Month()}, nil
}
