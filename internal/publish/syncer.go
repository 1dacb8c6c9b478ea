package publish

import (
	"context"
	"fmt"

	"github.com/classops/registrar/internal/log"
	"github.com/classops/registrar/internal/metrics"
	"github.com/classops/registrar/internal/model"
)

// Source is the slice of the Record Store the syncer reads: records
// eligible for publication plus the write-backs of publish-side item ids
// and of the class publish-lifecycle status.
type Source interface {
	ListPublishableClasses(ctx context.Context) ([]model.Class, error)
	ListPublishableBookings(ctx context.Context) ([]model.Booking, error)
	SetClassPublishItemID(ctx context.Context, classID, itemID string) error
	SetClassStatus(ctx context.Context, classID string, status model.ClassStatus) error
	SetBookingPublishItemID(ctx context.Context, bookingID, itemID string) error
}

// Stats summarises one reconciliation cycle. A second cycle with no
// intervening source changes reports zero for every mutating counter.
type Stats struct {
	Created   int
	Patched   int
	Archived  int
	Unchanged int
}

// Syncer is the periodic diff engine between the Record Store and the
// Content Publishing System. The Record Store is the source of truth; the
// published copy is a cache that may lag one cycle.
type Syncer struct {
	source             Source
	content            ContentClient
	classCollection    string
	purchaseCollection string
}

// NewSyncer constructs a Syncer.
func NewSyncer(source Source, content ContentClient, classCollection, purchaseCollection string) *Syncer {
	return &Syncer{
		source:             source,
		content:            content,
		classCollection:    classCollection,
		purchaseCollection: purchaseCollection,
	}
}

// RunCycle performs one reconciliation cycle over both collections.
// Per-record failures are logged and skipped so one bad record cannot
// stall the rest of the cycle; an unreachable upstream aborts the cycle
// for the next tick to retry.
func (s *Syncer) RunCycle(ctx context.Context) (Stats, error) {
	metrics.ReconcileCyclesTotal.Inc()
	logger := log.WithComponent("syncer")

	var stats Stats

	if err := s.syncClasses(ctx, &stats); err != nil {
		return stats, fmt.Errorf("sync classes: %w", err)
	}
	if err := s.syncPurchases(ctx, &stats); err != nil {
		return stats, fmt.Errorf("sync purchases: %w", err)
	}

	logger.Info().
		Int("created", stats.Created).
		Int("patched", stats.Patched).
		Int("archived", stats.Archived).
		Int("unchanged", stats.Unchanged).
		Msg("reconciliation cycle complete")
	return stats, nil
}

func (s *Syncer) syncClasses(ctx context.Context, stats *Stats) error {
	classes, err := s.source.ListPublishableClasses(ctx)
	if err != nil {
		return fmt.Errorf("list publishable classes: %w", err)
	}

	published, err := s.content.ListListings(ctx, s.classCollection)
	if err != nil {
		return err
	}
	byRef := indexByExternalID(published)

	logger := log.WithComponent("syncer")

	for i := range classes {
		c := &classes[i]
		listing, exists := byRef[c.ExternalID]

		// Delete propagates as an archival, never a hard delete.
		if c.Status == model.ClassDelete {
			if !exists || listing.Archived {
				stats.Unchanged++
				continue
			}
			if err := s.content.ArchiveListing(ctx, s.classCollection, listing.ItemID); err != nil {
				logger.Error().Err(err).Str("class_id", c.ID).Msg("archive listing failed")
				continue
			}
			metrics.ReconcilePatchesTotal.WithLabelValues("archive").Inc()
			stats.Archived++
			continue
		}

		fields := ClassFields(c)

		if !exists {
			itemID, err := s.content.CreateListing(ctx, s.classCollection, Listing{
				ExternalID: c.ExternalID,
				Fields:     fields,
			})
			if err != nil {
				logger.Error().Err(err).Str("class_id", c.ID).Msg("create listing failed")
				continue
			}
			if err := s.source.SetClassPublishItemID(ctx, c.ID, itemID); err != nil {
				logger.Error().Err(err).Str("class_id", c.ID).Msg("publish item id write-back failed")
			}
			metrics.ReconcilePatchesTotal.WithLabelValues("create").Inc()
			stats.Created++
			s.settleClassStatus(ctx, c)
			continue
		}

		patch := Diff(fields, listing.Fields)
		if len(patch) == 0 {
			stats.Unchanged++
			s.settleClassStatus(ctx, c)
			continue
		}
		if err := s.content.PatchListing(ctx, s.classCollection, listing.ItemID, patch); err != nil {
			logger.Error().Err(err).Str("class_id", c.ID).Msg("patch listing failed")
			continue
		}
		metrics.ReconcilePatchesTotal.WithLabelValues("patch").Inc()
		stats.Patched++
		s.settleClassStatus(ctx, c)
	}
	return nil
}

// settleClassStatus advances the publish-lifecycle triggers Publish and
// Updated to Published once the listing reflects the class. A failed
// write-back leaves the trigger in place, so the next cycle retries.
func (s *Syncer) settleClassStatus(ctx context.Context, c *model.Class) {
	if c.Status != model.ClassPublish && c.Status != model.ClassUpdated {
		return
	}
	if err := s.source.SetClassStatus(ctx, c.ID, model.ClassPublished); err != nil {
		log.WithComponent("syncer").Error().Err(err).
			Str("class_id", c.ID).Msg("class status write-back failed")
	}
}

func (s *Syncer) syncPurchases(ctx context.Context, stats *Stats) error {
	bookings, err := s.source.ListPublishableBookings(ctx)
	if err != nil {
		return fmt.Errorf("list publishable bookings: %w", err)
	}

	published, err := s.content.ListListings(ctx, s.purchaseCollection)
	if err != nil {
		return err
	}
	byRef := indexByExternalID(published)

	logger := log.WithComponent("syncer")

	for i := range bookings {
		b := &bookings[i]
		fields := PurchaseFields(b)
		listing, exists := byRef[b.ID]

		if !exists {
			itemID, err := s.content.CreateListing(ctx, s.purchaseCollection, Listing{
				ExternalID: b.ID,
				Fields:     fields,
			})
			if err != nil {
				logger.Error().Err(err).Str("booking_id", b.ID).Msg("create purchase listing failed")
				continue
			}
			if err := s.source.SetBookingPublishItemID(ctx, b.ID, itemID); err != nil {
				logger.Error().Err(err).Str("booking_id", b.ID).Msg("publish item id write-back failed")
			}
			metrics.ReconcilePatchesTotal.WithLabelValues("create").Inc()
			stats.Created++
			continue
		}

		patch := Diff(fields, listing.Fields)

		// A zeroed seats-purchased count must still publish: it is the one
		// numeric field whose source value legitimately goes to "0" on
		// cancellation, and Diff already treats "0" as non-empty.
		if len(patch) == 0 {
			stats.Unchanged++
			continue
		}
		if err := s.content.PatchListing(ctx, s.purchaseCollection, listing.ItemID, patch); err != nil {
			logger.Error().Err(err).Str("booking_id", b.ID).Msg("patch purchase listing failed")
			continue
		}
		metrics.ReconcilePatchesTotal.WithLabelValues("patch").Inc()
		stats.Patched++
	}
	return nil
}

func indexByExternalID(listings []Listing) map[string]Listing {
	byRef := make(map[string]Listing, len(listings))
	for _, l := range listings {
		if l.ExternalID != "" {
			byRef[l.ExternalID] = l
		}
	}
	return byRef
}
