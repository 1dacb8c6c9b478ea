package repository

import (
	"context"

	"github.com/classops/registrar/internal/model"
)

// PublishSource adapts the class and booking repositories to the
// reconciliation syncer's view of the Record Store.
type PublishSource struct {
	classes  *ClassRepository
	bookings *BookingRepository
}

// NewPublishSource constructs a PublishSource.
func NewPublishSource(classes *ClassRepository, bookings *BookingRepository) *PublishSource {
	return &PublishSource{classes: classes, bookings: bookings}
}

func (s *PublishSource) ListPublishableClasses(ctx context.Context) ([]model.Class, error) {
	return s.classes.ListPublishable(ctx)
}

func (s *PublishSource) ListPublishableBookings(ctx context.Context) ([]model.Booking, error) {
	return s.bookings.ListPublishable(ctx)
}

func (s *PublishSource) SetClassPublishItemID(ctx context.Context, classID, itemID string) error {
	return s.classes.SetPublishItemID(ctx, classID, itemID)
}

func (s *PublishSource) SetClassStatus(ctx context.Context, classID string, status model.ClassStatus) error {
	return s.classes.SetStatus(ctx, classID, status)
}

func (s *PublishSource) SetBookingPublishItemID(ctx context.Context, bookingID, itemID string) error {
	return s.bookings.SetPublishItemID(ctx, bookingID, itemID)
}
