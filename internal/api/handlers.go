// Package api exposes the receiver's HTTP endpoints.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"example.com/healthsync/internal/auth"
	"example.com/healthsync/internal/domain"
)

const maxBodyBytes = 1 << 20

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
	catalog domain.Catalog
}

// NewHandler builds a Handler. Uploads for activities outside catalog are rejected.
func NewHandler(service *domain.Service, catalog domain.Catalog) *Handler {
	return &Handler{service: service, catalog: catalog}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /activities/{activity}", h.upload)
	mux.HandleFunc("GET /activities/{activity}/{user}/latest", h.latest)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// UploadResponse acknowledges a stored record.
type UploadResponse struct {
	Success bool `json:"success"`
	Replay  bool `json:"replay,omitempty"`
}

// LatestResponse carries the newest stored timestamp, or an empty string.
type LatestResponse struct {
	Success string `json:"success"`
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeSamplesWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope samples:write required")
		return
	}

	activity := r.PathValue("activity")
	if _, ok := h.catalog.Lookup(activity); !ok {
		writeError(w, http.StatusNotFound, "unknown_activity", "activity "+activity+" is not supported")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "invalid_request", "body too large")
		return
	}
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "body must be a JSON object")
		return
	}
	if userID, ok := fields["user_id"].(string); ok && userID != "" && userID != claims.Subject {
		writeError(w, http.StatusForbidden, "forbidden", "user_id does not match token subject")
		return
	}
	date, _ := fields["date"].(string)
	recordedAt, ok := domain.ParseTimestamp(date)
	if !ok {
		writeError(w, http.StatusBadRequest, "validation_failed", "date is missing or unparseable")
		return
	}

	_, replay, err := h.service.Ingest(r.Context(), domain.IngestInput{
		UserID:         claims.Subject,
		Activity:       activity,
		RecordedAt:     recordedAt,
		Payload:        body,
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidSample) {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, UploadResponse{Success: true, Replay: replay})
}

func (h *Handler) latest(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeSamplesRead) && !claims.HasScope(auth.ScopeSamplesWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope samples:read required")
		return
	}
	userID := r.PathValue("user")
	if userID != claims.Subject {
		writeError(w, http.StatusForbidden, "forbidden", "cannot read another user's samples")
		return
	}

	ts, found, err := h.service.Latest(r.Context(), userID, r.PathValue("activity"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	resp := LatestResponse{}
	if found {
		resp.Success = ts.UTC().Format(time.RFC3339Nano)
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]string{
		"type":   code,
		"detail": detail,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
