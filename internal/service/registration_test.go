package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/classops/registrar/internal/ledger"
	"github.com/classops/registrar/internal/model"
)

// Validation runs before any store access, so a zero-value service is
// enough to exercise the rejection paths.
func newValidationService() *RegistrationService {
	return &RegistrationService{}
}

func validRequest() model.RegisterRequest {
	return model.RegisterRequest{
		Type:  model.TypePaid,
		Seats: 2,
		Participants: []model.ParticipantRequest{
			{Name: "Ada Lovelace", Email: "ada@example.com"},
			{Name: "Grace Hopper", Email: "grace@example.com"},
		},
	}
}

func TestRegisterRejectsMissingClassID(t *testing.T) {
	_, err := newValidationService().Register(context.Background(), "", validRequest())
	assert.Error(t, err)
}

func TestRegisterRejectsNonPositiveSeats(t *testing.T) {
	for _, seats := range []int{0, -1} {
		req := validRequest()
		req.Seats = seats
		_, err := newValidationService().Register(context.Background(), "c1", req)
		assert.ErrorIs(t, err, ledger.ErrInvalidQuantity)
	}
}

func TestRegisterRejectsParticipantCountMismatch(t *testing.T) {
	req := validRequest()
	req.Seats = 3
	_, err := newValidationService().Register(context.Background(), "c1", req)
	assert.Error(t, err)
}

func TestRegisterRejectsUnknownBookingType(t *testing.T) {
	req := validRequest()
	req.Type = "sponsored"
	_, err := newValidationService().Register(context.Background(), "c1", req)
	assert.Error(t, err)
}

func TestRegisterRejectsBadParticipantEmail(t *testing.T) {
	for _, email := range []string{"", "adaexample.com", "ada@nodot", "a@b@c.com"} {
		req := validRequest()
		req.Participants[0].Email = email
		_, err := newValidationService().Register(context.Background(), "c1", req)
		assert.Error(t, err, "email %q must be rejected", email)
	}
}

func TestRegisterRejectsBlankParticipantName(t *testing.T) {
	req := validRequest()
	req.Participants[1].Name = "   "
	_, err := newValidationService().Register(context.Background(), "c1", req)
	assert.Error(t, err)
}

func TestCancelRejectsUnknownIntent(t *testing.T) {
	svc := newValidationService()
	for _, intent := range []string{"", "maybe", "refund_later"} {
		err := svc.Cancel(context.Background(), "b1", model.CancelRequest{Intent: intent})
		assert.Error(t, err, "intent %q must be rejected", intent)
	}
}

func TestCancelRejectsMissingBookingID(t *testing.T) {
	err := newValidationService().Cancel(context.Background(), "", model.CancelRequest{Intent: "refund"})
	assert.Error(t, err)
}

func TestIsValidEmail(t *testing.T) {
	assert.True(t, isValidEmail("ada@example.com"))
	assert.True(t, isValidEmail("a.b+c@sub.example.co"))
	assert.False(t, isValidEmail("ada@example"))
	assert.False(t, isValidEmail("@example.com"))
	assert.False(t, isValidEmail("ada"))
}
