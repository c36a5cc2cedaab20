// Package api exposes HTTP handlers for the shiftsync server.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/shiftsync/internal/auth"
	"example.com/shiftsync/internal/domain"
	"example.com/shiftsync/internal/observability"
)

// Handler coordinates HTTP requests with the shift state machine.
type Handler struct {
	service *domain.Service
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/shifts/clock-in", h.clockIn)
	mux.HandleFunc("/v1/shifts/clock-out", h.clockOut)
	mux.HandleFunc("/v1/shifts/auto-end", h.autoEnd)
	mux.HandleFunc("/v1/shifts/active", h.activeShift)
	mux.HandleFunc("/v1/shifts", h.listShifts)
	mux.HandleFunc("/v1/shifts/", h.shiftByID)
	mux.HandleFunc("/v1/sync", h.syncBatch)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status. The agent's reachability probe hits
// this, so it must stay unauthenticated and cheap.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) clockIn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeShiftsWrite)
	if !ok {
		return
	}

	var req ClockRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	ts, err := req.Timestamp()
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	shift, err := h.service.ClockIn(r.Context(), claims.Subject, claims.TrainerName, ts)
	if err != nil {
		writeServiceError(w, err, "clock_in")
		return
	}

	writeJSON(w, http.StatusAccepted, toShiftView(*shift))
}

func (h *Handler) clockOut(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeShiftsWrite)
	if !ok {
		return
	}

	var req ClockRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	ts, err := req.Timestamp()
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	shift, err := h.service.ClockOut(r.Context(), claims.Subject, ts)
	if err != nil {
		writeServiceError(w, err, "clock_out")
		return
	}

	writeJSON(w, http.StatusOK, toShiftView(*shift))
}

func (h *Handler) autoEnd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeShiftsWrite)
	if !ok {
		return
	}

	autoEnded, active, err := h.service.CheckAndAutoEnd(r.Context(), claims.Subject)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	resp := AutoEndResponse{AutoEnded: autoEnded}
	if active != nil {
		view := toShiftView(*active)
		resp.ActiveShift = &view
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) activeShift(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireAnyScope(w, r, auth.ScopeShiftsRead, auth.ScopeShiftsWrite)
	if !ok {
		return
	}

	shift, err := h.service.ActiveShift(r.Context(), claims.Subject)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	resp := ActiveShiftResponse{}
	if shift != nil {
		view := toShiftView(*shift)
		resp.Shift = &view
	}
	writeJSON(w, http.StatusOK, resp)
}

// syncBatch is the beacon endpoint. The sender never reads the response, so
// the contract here is server-side only: apply every action independently,
// in array order, through the same state machine as the direct endpoints.
func (h *Handler) syncBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeShiftsWrite)
	if !ok {
		return
	}

	var req SyncRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	results := make([]SyncActionResult, 0, len(req.Actions))
	for _, action := range req.Actions {
		result := SyncActionResult{Type: action.Type}

		ts, err := parseTimestamp(action.ClientTimestamp)
		if err == nil {
			switch action.Type {
			case "clock_in":
				_, err = h.service.ClockIn(r.Context(), claims.Subject, claims.TrainerName, ts)
			case "clock_out":
				_, err = h.service.ClockOut(r.Context(), claims.Subject, ts)
			default:
				err = errors.New("unknown action type")
			}
		}

		if err != nil {
			result.Error = err.Error()
			if domain.IsRejection(err) {
				observability.RecordReplayRejection(action.Type)
			}
		} else {
			result.Success = true
		}
		results = append(results, result)
	}

	writeJSON(w, http.StatusOK, SyncResponse{Results: results})
}

func (h *Handler) listShifts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	_, ok := requireScope(w, r, auth.ScopeShiftsAdmin)
	if !ok {
		return
	}

	trainerID := r.URL.Query().Get("trainer_id")
	if strings.TrimSpace(trainerID) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing trainer_id parameter")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	shifts, err := h.service.ListShifts(r.Context(), trainerID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]ShiftView, 0, len(shifts))
	for _, shift := range shifts {
		items = append(items, toShiftView(shift))
	}
	writeJSON(w, http.StatusOK, ListShiftsResponse{Items: items})
}

func (h *Handler) shiftByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/shifts/")
	if rest == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing shift id")
		return
	}

	if _, ok := requireScope(w, r, auth.ScopeShiftsAdmin); !ok {
		return
	}

	if id, found := strings.CutSuffix(rest, "/review"); found {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
			return
		}
		if err := h.service.MarkShiftReviewed(r.Context(), id); err != nil {
			writeServiceError(w, err, "review")
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if err := h.service.DeleteShift(r.Context(), rest); err != nil {
		writeServiceError(w, err, "delete")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func requireScope(w http.ResponseWriter, r *http.Request, scope string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !claims.HasScope(scope) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
		return nil, false
	}
	return claims, true
}

func requireAnyScope(w http.ResponseWriter, r *http.Request, scopes ...string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	for _, scope := range scopes {
		if claims.HasScope(scope) {
			return claims, true
		}
	}
	writeError(w, http.StatusForbidden, "forbidden", "scope "+scopes[0]+" required")
	return nil, false
}

func writeServiceError(w http.ResponseWriter, err error, action string) {
	var rejection *domain.RejectionError
	switch {
	case errors.As(err, &rejection):
		observability.RecordReplayRejection(action)
		writeError(w, http.StatusConflict, "rejected", rejection.Message)
	case errors.Is(err, domain.ErrShiftNotFound):
		writeError(w, http.StatusNotFound, "not_found", "shift not found")
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(v)
}

func parseTimestamp(raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, errors.New("client_timestamp must be RFC 3339")
	}
	return &ts, nil
}

// ClockRequest is the payload for the clock-in and clock-out endpoints.
// ClientTimestamp is the moment the trainer acted; when the action was queued
// offline this predates the request by however long the device was
// unreachable. Empty means "use the server clock".
type ClockRequest struct {
	ClientTimestamp string `json:"client_timestamp"`
}

// Timestamp parses the optional client timestamp.
func (r ClockRequest) Timestamp() (*time.Time, error) {
	return parseTimestamp(r.ClientTimestamp)
}

// SyncRequest is the batch payload delivered by the agent's teardown beacon.
type SyncRequest struct {
	Actions []SyncAction `json:"actions"`
}

// SyncAction is one replayed clock action.
type SyncAction struct {
	Type            string `json:"type"`
	ClientTimestamp string `json:"client_timestamp"`
}

// SyncActionResult reports the outcome of one replayed action.
type SyncActionResult struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// SyncResponse packages batch results in array order.
type SyncResponse struct {
	Results []SyncActionResult `json:"results"`
}

// AutoEndResponse describes the auto-end poll result.
type AutoEndResponse struct {
	AutoEnded   bool       `json:"auto_ended"`
	ActiveShift *ShiftView `json:"active_shift"`
}

// ActiveShiftResponse wraps the trainer's open shift, if any.
type ActiveShiftResponse struct {
	Shift *ShiftView `json:"shift"`
}

// ListShiftsResponse packages admin list results.
type ListShiftsResponse struct {
	Items []ShiftView `json:"items"`
}

// ShiftView exposes full details about a shift.
type ShiftView struct {
	ShiftID          string     `json:"shift_id"`
	TrainerID        string     `json:"trainer_id"`
	TrainerName      string     `json:"trainer_name"`
	StartTime        time.Time  `json:"start_time"`
	EndTime          *time.Time `json:"end_time"`
	AutoEnded        bool       `json:"auto_ended"`
	FlaggedForReview bool       `json:"flagged_for_review"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func toShiftView(shift domain.Shift) ShiftView {
	return ShiftView{
		ShiftID:          shift.ID,
		TrainerID:        shift.TrainerID,
		TrainerName:      shift.TrainerName,
		StartTime:        shift.StartTime,
		EndTime:          shift.EndTime,
		AutoEnded:        shift.AutoEnded,
		FlaggedForReview: shift.FlaggedForReview,
		CreatedAt:        shift.CreatedAt,
		UpdatedAt:        shift.UpdatedAt,
	}
}
