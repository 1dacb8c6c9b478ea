// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/classops/registrar/internal/booking"
	"github.com/classops/registrar/internal/ledger"
	"github.com/classops/registrar/internal/model"
	"github.com/classops/registrar/internal/repository"
	"github.com/classops/registrar/internal/service"
)

// RegistrationHandler holds all HTTP handlers for the registrar API.
type RegistrationHandler struct {
	svc *service.RegistrationService
}

// NewRegistrationHandler constructs a RegistrationHandler.
func NewRegistrationHandler(svc *service.RegistrationService) *RegistrationHandler {
	return &RegistrationHandler{svc: svc}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// ─── Handlers ─────────────────────────────────────────────────────────────────

// ListClasses handles GET /classes
func (h *RegistrationHandler) ListClasses(w http.ResponseWriter, r *http.Request) {
	classes, err := h.svc.ListClasses(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list classes")
		return
	}
	if classes == nil {
		classes = []model.Class{}
	}
	writeJSON(w, http.StatusOK, classes)
}

// GetClass handles GET /classes/{id}
func (h *RegistrationHandler) GetClass(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	class, err := h.svc.GetClass(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "class not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get class")
		return
	}
	writeJSON(w, http.StatusOK, class)
}

// Register handles POST /classes/{id}/registrations
// Submits a registration; the capacity check here is the only synchronous,
// user-visible one.
func (h *RegistrationHandler) Register(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req model.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	b, err := h.svc.Register(r.Context(), id, req)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			writeError(w, http.StatusNotFound, "class not found")
		case errors.Is(err, service.ErrClassFull):
			writeError(w, http.StatusConflict, "class does not have enough seats remaining")
		case errors.Is(err, ledger.ErrInvalidQuantity):
			writeError(w, http.StatusBadRequest, "seat count must be a positive integer")
		case errors.Is(err, ledger.ErrConflict):
			writeError(w, http.StatusConflict, "registration is contended, try again")
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusCreated, b)
}

// GetBooking handles GET /bookings/{id}
func (h *RegistrationHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	b, err := h.svc.GetBooking(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "booking not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get booking")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// Cancel handles POST /bookings/{id}/cancel
// The body must carry the caller's explicit refund intent.
func (h *RegistrationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req model.CancelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.svc.Cancel(r.Context(), id, req); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			writeError(w, http.StatusNotFound, "booking not found")
		case errors.Is(err, booking.ErrAlreadyTerminal):
			writeError(w, http.StatusConflict, "booking is already cancelled")
		case errors.Is(err, booking.ErrInvalidTransition):
			writeError(w, http.StatusConflict, "booking cannot be cancelled from its current status")
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// JoinWaitlist handles POST /classes/{id}/waitlist
func (h *RegistrationHandler) JoinWaitlist(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req model.WaitlistRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	entry, err := h.svc.JoinWaitlist(r.Context(), id, req)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "class not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, entry)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
