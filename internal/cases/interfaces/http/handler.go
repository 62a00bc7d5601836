package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"refundtrack/internal/audit"
	"refundtrack/internal/auth"
	caseapp "refundtrack/internal/cases/application"
	cases "refundtrack/internal/cases/domain"
)

// Handler provides case status HTTP endpoints.
type Handler struct {
	service *caseapp.StatusService
	auditor audit.Logger
	logger  *log.Logger
}

// NewHandler constructs a handler.
func NewHandler(service *caseapp.StatusService, auditor audit.Logger, logger *log.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("cases handler: nil service")
	}
	return &Handler{service: service, auditor: auditor, logger: logger}, nil
}

// ServeHTTP handles /api/v1/cases subroutes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/cases/")
	if path == r.URL.Path || path == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	parts := strings.Split(path, "/")
	caseID := parts[0]

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleGet(w, r, caseID)
	case len(parts) == 2 && parts[1] == "status":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleCaseStatus(w, r, caseID)
	case len(parts) == 4 && parts[1] == "tracks" && parts[3] == "status":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleTrackStatus(w, r, caseID, parts[2])
	case len(parts) == 2 && parts[1] == "transitions":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleTransitions(w, r, caseID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, caseID string) {
	state, err := h.service.Get(r.Context(), caseID)
	if err != nil {
		respondCaseError(w, err)
		return
	}
	writeJSON(w, state)
}

func (h *Handler) handleCaseStatus(w http.ResponseWriter, r *http.Request, caseID string) {
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Status == "" {
		http.Error(w, "status is required", http.StatusBadRequest)
		return
	}
	state, err := h.service.ApplyCaseStatus(r.Context(), caseID, cases.Status(body.Status))
	if err != nil {
		respondCaseError(w, err)
		return
	}
	h.auditLog(r, "case.status", caseID, body)
	writeJSON(w, state)
}

func (h *Handler) handleTrackStatus(w http.ResponseWriter, r *http.Request, caseID, track string) {
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Status == "" {
		http.Error(w, "status is required", http.StatusBadRequest)
		return
	}
	state, err := h.service.ApplyTrackStatus(r.Context(), caseID, cases.Track(track), cases.TrackStatus(body.Status))
	if err != nil {
		respondCaseError(w, err)
		return
	}
	h.auditLog(r, "case.track_status."+track, caseID, body)
	writeJSON(w, state)
}

func (h *Handler) handleTransitions(w http.ResponseWriter, r *http.Request, caseID string) {
	state, err := h.service.Get(r.Context(), caseID)
	if err != nil {
		respondCaseError(w, err)
		return
	}
	writeJSON(w, map[string]any{
		"case":          h.service.ValidNextStatuses(cases.FamilyCase, string(state.Status)),
		"federal_track": h.service.ValidNextStatuses(cases.FamilyFederalTrack, string(state.FederalStatus)),
		"state_track":   h.service.ValidNextStatuses(cases.FamilyStateTrack, string(state.StateStatus)),
	})
}

func (h *Handler) auditLog(r *http.Request, action, caseID string, payload any) {
	if h.auditor == nil {
		return
	}
	metadata, _ := json.Marshal(payload)
	entry := audit.Entry{
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: "case",
		ResourceID:   caseID,
		CaseID:       caseID,
		Metadata:     metadata,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	}
	if err := h.auditor.Log(r.Context(), entry); err != nil && h.logger != nil {
		h.logger.Printf("event=audit_write_error action=%s err=%v", action, err)
	}
}

func respondCaseError(w http.ResponseWriter, err error) {
	var transitionErr *cases.TransitionError
	if errors.As(err, &transitionErr) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   transitionErr.Error(),
			"family":  transitionErr.Family,
			"from":    transitionErr.From,
			"to":      transitionErr.To,
			"allowed": transitionErr.Allowed,
		})
		return
	}
	if errors.Is(err, cases.ErrNotFound) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
