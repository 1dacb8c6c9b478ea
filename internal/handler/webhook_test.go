package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classops/registrar/internal/booking"
	"github.com/classops/registrar/internal/ledger"
	"github.com/classops/registrar/internal/model"
	"github.com/classops/registrar/internal/payments"
	"github.com/classops/registrar/internal/repository"
)

// webhookHarness wires a real Processor over in-memory state so the
// handler is exercised end to end, boundary to booking row.
type webhookHarness struct {
	remaining int
	purchased int
	capacity  int
	bookings  map[string]*model.Booking
}

func (h *webhookHarness) SeatCounts(ctx context.Context, classID string) (int, int, int, error) {
	return h.remaining, h.purchased, h.capacity, nil
}

func (h *webhookHarness) CompareAndSwapSeats(ctx context.Context, classID string, expectRemaining, newRemaining, newPurchased int) (bool, error) {
	if h.remaining != expectRemaining {
		return false, nil
	}
	h.remaining = newRemaining
	h.purchased = newPurchased
	return true, nil
}

func (h *webhookHarness) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	b, ok := h.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *b
	return &copied, nil
}

func (h *webhookHarness) MarkPaid(ctx context.Context, id, intentID string, amountCents int64) error {
	b := h.bookings[id]
	if b.Status != model.BookingPending {
		return repository.ErrStaleStatus
	}
	b.Status = model.BookingPaid
	b.SeatsPurchased = b.Seats
	b.PaymentIntentID = intentID
	b.AmountCents = amountCents
	return nil
}

func (h *webhookHarness) MarkCancelled(ctx context.Context, id string, status, from model.BookingStatus) error {
	b := h.bookings[id]
	if b.Status != from {
		return repository.ErrStaleStatus
	}
	b.Status = status
	b.SeatsPurchased = 0
	b.RefundConfirmed = true
	return nil
}

func (h *webhookHarness) FlagForReview(ctx context.Context, id string) error {
	h.bookings[id].NeedsReview = true
	return nil
}

func (h *webhookHarness) UpdateParticipantStatus(ctx context.Context, bookingID string, status model.BookingStatus) error {
	return nil
}

func (h *webhookHarness) ListByBatch(ctx context.Context, batchID string) ([]model.Booking, error) {
	return nil, nil
}

func (h *webhookHarness) RequestRefund(ctx context.Context, paymentIntentID string, amountCents int64) error {
	return nil
}

func newWebhookHarness() *webhookHarness {
	return &webhookHarness{
		remaining: 5,
		purchased: 5,
		capacity:  10,
		bookings: map[string]*model.Booking{
			"bk-1": {ID: "bk-1", ClassID: "c1", Seats: 2, Status: model.BookingPending, Type: model.TypePaid},
		},
	}
}

func newWebhookHandler(h *webhookHarness, secret string) *WebhookHandler {
	machine := booking.NewMachine(h, ledger.New(h), h)
	return NewWebhookHandler(payments.NewProcessor(h, machine), secret)
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func postEvent(t *testing.T, wh *WebhookHandler, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set(signatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	wh.PaymentEvent(rec, req)
	return rec
}

func eventBody(t *testing.T, ev payments.Event) []byte {
	t.Helper()
	body, err := json.Marshal(ev)
	require.NoError(t, err)
	return body
}

func TestPaymentEventSignedConfirmationApplies(t *testing.T) {
	h := newWebhookHarness()
	wh := newWebhookHandler(h, "whsec_test")

	body := eventBody(t, payments.Event{
		Type:        payments.EventConfirmation,
		ReferenceID: "bk-1",
		IntentID:    "pi_123",
		AmountCents: 24000,
	})
	rec := postEvent(t, wh, body, sign("whsec_test", body))

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "applied", resp["result"])

	assert.Equal(t, model.BookingPaid, h.bookings["bk-1"].Status)
	assert.Equal(t, 3, h.remaining)
}

func TestPaymentEventBadSignatureRejected(t *testing.T) {
	h := newWebhookHarness()
	wh := newWebhookHandler(h, "whsec_test")

	body := eventBody(t, payments.Event{Type: payments.EventConfirmation, ReferenceID: "bk-1"})
	rec := postEvent(t, wh, body, sign("wrong-secret", body))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, model.BookingPending, h.bookings["bk-1"].Status, "a rejected event must not touch state")
}

func TestPaymentEventMissingSignatureRejected(t *testing.T) {
	h := newWebhookHarness()
	wh := newWebhookHandler(h, "whsec_test")

	body := eventBody(t, payments.Event{Type: payments.EventConfirmation, ReferenceID: "bk-1"})
	rec := postEvent(t, wh, body, "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPaymentEventNoSecretAcceptsUnsigned(t *testing.T) {
	h := newWebhookHarness()
	wh := newWebhookHandler(h, "")

	body := eventBody(t, payments.Event{Type: payments.EventConfirmation, ReferenceID: "bk-1", IntentID: "pi_1"})
	rec := postEvent(t, wh, body, "")

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPaymentEventRedeliveryAnswersOK(t *testing.T) {
	h := newWebhookHarness()
	wh := newWebhookHandler(h, "whsec_test")

	body := eventBody(t, payments.Event{
		Type:        payments.EventConfirmation,
		ReferenceID: "bk-1",
		IntentID:    "pi_123",
	})
	first := postEvent(t, wh, body, sign("whsec_test", body))
	require.Equal(t, http.StatusOK, first.Code)

	second := postEvent(t, wh, body, sign("whsec_test", body))
	assert.Equal(t, http.StatusOK, second.Code, "redelivery must answer 200 so the processor stops retrying")

	var resp map[string]string
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &resp))
	assert.Equal(t, "ignored", resp["result"])
	assert.Equal(t, "already-processed", resp["reason"])
	assert.Equal(t, 3, h.remaining, "the seat ledger moves exactly once")
}

func TestPaymentEventCapacityConflictAnswers409(t *testing.T) {
	h := newWebhookHarness()
	h.remaining = 1
	h.purchased = 9
	wh := newWebhookHandler(h, "whsec_test")

	body := eventBody(t, payments.Event{Type: payments.EventConfirmation, ReferenceID: "bk-1", IntentID: "pi_1"})
	rec := postEvent(t, wh, body, sign("whsec_test", body))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, model.BookingPending, h.bookings["bk-1"].Status)
	assert.True(t, h.bookings["bk-1"].NeedsReview)
}

func TestPaymentEventMalformedBodyAnswers400(t *testing.T) {
	wh := newWebhookHandler(newWebhookHarness(), "")
	rec := postEvent(t, wh, []byte("{not json"), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaymentEventMissingReferenceAnswers400(t *testing.T) {
	wh := newWebhookHandler(newWebhookHarness(), "")
	body := eventBody(t, payments.Event{Type: payments.EventConfirmation})
	rec := postEvent(t, wh, body, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaymentEventUnknownBookingIgnored(t *testing.T) {
	wh := newWebhookHandler(newWebhookHarness(), "")
	body := eventBody(t, payments.Event{Type: payments.EventConfirmation, ReferenceID: "ghost"})
	rec := postEvent(t, wh, body, "")

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ignored", resp["result"])
	assert.Equal(t, "unknown-booking", resp["reason"])
}
