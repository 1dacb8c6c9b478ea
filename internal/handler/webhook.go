package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/classops/registrar/internal/booking"
	"github.com/classops/registrar/internal/log"
	"github.com/classops/registrar/internal/payments"
)

// signatureHeader carries the hex-encoded HMAC-SHA256 of the raw body.
const signatureHeader = "X-Registrar-Signature"

// WebhookHandler receives payment-processor events. Signature
// verification happens here, at the boundary, before any core logic runs.
type WebhookHandler struct {
	processor *payments.Processor
	secret    []byte
}

// NewWebhookHandler constructs a WebhookHandler.
func NewWebhookHandler(processor *payments.Processor, secret string) *WebhookHandler {
	return &WebhookHandler{processor: processor, secret: []byte(secret)}
}

// verify checks the body's HMAC-SHA256 against the signature header with
// a constant-time compare.
func (h *WebhookHandler) verify(body []byte, signature string) bool {
	if len(h.secret) == 0 {
		// No secret configured: accept, for local development only.
		return true
	}
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// PaymentEvent handles POST /webhooks/payments
//
// Redelivered events are expected: the processor's idempotency guard turns
// them into Ignored outcomes, which still answer 200 so the processor
// stops retrying. Capacity conflicts answer 409 and are already on the
// operator channel; the event must not be redelivered for them.
func (h *WebhookHandler) PaymentEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read request body")
		return
	}

	if !h.verify(body, r.Header.Get(signatureHeader)) {
		log.WithComponent("webhook").Warn().Msg("payment event with bad signature rejected")
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var ev payments.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid event payload: "+err.Error())
		return
	}
	if ev.ReferenceID == "" {
		writeError(w, http.StatusBadRequest, "event is missing reference_id")
		return
	}

	outcome, err := h.processor.HandleEvent(r.Context(), ev)
	if err != nil {
		if errors.Is(err, booking.ErrCapacityExceeded) {
			writeError(w, http.StatusConflict, "confirmed payment exceeds remaining capacity")
			return
		}
		writeError(w, http.StatusInternalServerError, "event processing failed")
		return
	}

	if outcome.Applied {
		writeJSON(w, http.StatusOK, map[string]string{"result": "applied"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "ignored", "reason": outcome.Reason})
}
