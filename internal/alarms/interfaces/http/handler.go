package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	alarmapp "refundtrack/internal/alarms/application"
	alarms "refundtrack/internal/alarms/domain"
	"refundtrack/internal/audit"
	"refundtrack/internal/auth"
)

// Handler provides alarm, dashboard, threshold, and reconcile endpoints.
type Handler struct {
	service    *alarmapp.Service
	dashboards *alarmapp.DashboardService
	thresholds *alarmapp.ThresholdService
	runner     *alarmapp.BatchRunner
	auditor    audit.Logger
	logger     *log.Logger
}

// NewHandler constructs a handler.
func NewHandler(service *alarmapp.Service, dashboards *alarmapp.DashboardService, thresholds *alarmapp.ThresholdService, runner *alarmapp.BatchRunner, auditor audit.Logger, logger *log.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("alarms handler: nil service")
	}
	if dashboards == nil {
		return nil, errors.New("alarms handler: nil dashboard service")
	}
	if thresholds == nil {
		return nil, errors.New("alarms handler: nil threshold service")
	}
	return &Handler{
		service:    service,
		dashboards: dashboards,
		thresholds: thresholds,
		runner:     runner,
		auditor:    auditor,
		logger:     logger,
	}, nil
}

// ServeHTTP handles /api/v1/alarms, /api/v1/dashboard, /api/v1/thresholds,
// and /api/v1/reconcile subroutes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/v1/alarms":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleList(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/v1/alarms/"):
		h.handleAlarm(w, r)
	case r.URL.Path == "/api/v1/dashboard":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleDashboard(w, r)
	case r.URL.Path == "/api/v1/dashboard/export.xlsx" || r.URL.Path == "/api/v1/dashboard/export.pdf":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleDashboardExport(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/v1/thresholds/"):
		h.handleThresholds(w, r)
	case r.URL.Path == "/api/v1/reconcile/run":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleReconcileRun(w, r)
	case r.URL.Path == "/api/v1/reconcile/last":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleReconcileLast(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	caseID := r.URL.Query().Get("case_id")
	if caseID == "" {
		http.Error(w, "case_id is required", http.StatusBadRequest)
		return
	}
	resolution := alarms.Resolution(r.URL.Query().Get("resolution"))

	list, err := h.service.ListByCase(r.Context(), caseID, resolution)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, list)
}

func (h *Handler) handleAlarm(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/alarms/")
	parts := strings.Split(path, "/")

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		record, err := h.service.GetByID(r.Context(), parts[0])
		if err != nil {
			respondAlarmError(w, err)
			return
		}
		writeJSON(w, record)
		return
	}
	if len(parts) != 2 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := parts[0]
	action := parts[1]
	actor := auth.SubjectFromContext(r.Context())

	var body struct {
		Note string `json:"note"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	var (
		record *alarms.Record
		err    error
	)
	switch action {
	case "ack":
		record, err = h.service.Acknowledge(r.Context(), id)
	case "resolve":
		record, err = h.service.Resolve(r.Context(), id, actor, body.Note)
	case "dismiss":
		record, err = h.service.Dismiss(r.Context(), id, actor, body.Note)
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		respondAlarmError(w, err)
		return
	}
	h.auditLog(r, "alarm."+action, "alarm", id, record.CaseID, body)
	writeJSON(w, record)
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	page, err := h.dashboards.Dashboard(r.Context(), filters)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, page)
}

func (h *Handler) handleDashboardExport(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	page, err := h.dashboards.Dashboard(r.Context(), filters)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if strings.HasSuffix(r.URL.Path, ".xlsx") {
		data, err := BuildDashboardXLSX(page)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="dashboard.xlsx"`)
		_, _ = w.Write(data)
		return
	}
	data, err := BuildDashboardPDF(page)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="dashboard.pdf"`)
	_, _ = w.Write(data)
}

func (h *Handler) handleThresholds(w http.ResponseWriter, r *http.Request) {
	caseID := strings.TrimPrefix(r.URL.Path, "/api/v1/thresholds/")
	if caseID == "" || strings.Contains(caseID, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		override, err := h.thresholds.GetOverride(r.Context(), caseID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{
			"effective": h.thresholds.Resolve(r.Context(), caseID),
			"override":  override,
		})
	case http.MethodPut:
		var override alarms.Override
		if err := json.NewDecoder(r.Body).Decode(&override); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		override.CaseID = caseID
		actor := auth.SubjectFromContext(r.Context())
		saved, err := h.thresholds.Upsert(r.Context(), &override, actor)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.auditLog(r, "threshold.upsert", "threshold_override", caseID, caseID, saved)
		writeJSON(w, saved)
	case http.MethodDelete:
		if err := h.thresholds.Delete(r.Context(), caseID); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		h.auditLog(r, "threshold.delete", "threshold_override", caseID, caseID, nil)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleReconcileRun(w http.ResponseWriter, r *http.Request) {
	if h.runner == nil {
		http.Error(w, "reconcile runner unavailable", http.StatusServiceUnavailable)
		return
	}
	stats, err := h.runner.RunSync(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.auditLog(r, "reconcile.run", "reconcile", "", "", stats)
	if stats.Skipped {
		w.WriteHeader(http.StatusConflict)
	}
	writeJSON(w, stats)
}

func (h *Handler) handleReconcileLast(w http.ResponseWriter, r *http.Request) {
	if h.runner == nil {
		http.Error(w, "reconcile runner unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, h.runner.LastRun())
}

func (h *Handler) auditLog(r *http.Request, action, resourceType, resourceID, caseID string, payload any) {
	if h.auditor == nil {
		return
	}
	metadata, _ := json.Marshal(payload)
	entry := audit.Entry{
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		CaseID:       caseID,
		Metadata:     metadata,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	}
	if err := h.auditor.Log(r.Context(), entry); err != nil && h.logger != nil {
		h.logger.Printf("event=audit_write_error action=%s err=%v", action, err)
	}
}

func parseFilters(r *http.Request) (alarmapp.Filters, error) {
	filters := alarmapp.Filters{
		Level:  alarmapp.LevelAll,
		Cursor: r.URL.Query().Get("cursor"),
	}
	if value := r.URL.Query().Get("hide_completed"); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return filters, errors.New("hide_completed must be a boolean")
		}
		filters.HideCompleted = parsed
	}
	switch level := r.URL.Query().Get("level"); level {
	case "", string(alarmapp.LevelAll):
	case string(alarmapp.LevelWarning):
		filters.Level = alarmapp.LevelWarning
	case string(alarmapp.LevelCritical):
		filters.Level = alarmapp.LevelCritical
	default:
		return filters, errors.New("level must be all, warning, or critical")
	}
	if value := r.URL.Query().Get("limit"); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed < 0 {
			return filters, errors.New("limit must be a non-negative integer")
		}
		filters.Limit = parsed
	}
	return filters, nil
}

func respondAlarmError(w http.ResponseWriter, err error) {
	if errors.Is(err, alarms.ErrNotFound) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
