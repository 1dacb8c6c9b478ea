// Package publish keeps the Content Publishing System's denormalized copy
// of class and purchase data eventually consistent with the Record Store.
package publish

import (
	"strconv"
	"strings"

	"github.com/classops/registrar/internal/model"
)

// Listing is a Published Listing: a read-optimized projection of a class
// or a purchase living in the Content Publishing System.
//
// ItemID is the publish-side identifier; ExternalID is the stable
// cross-reference key stored on both sides and used for matching. Fields
// is the flat field map the CMS holds.
type Listing struct {
	ItemID     string            `json:"item_id"`
	ExternalID string            `json:"external_id"`
	Archived   bool              `json:"archived"`
	Fields     map[string]string `json:"fields"`
}

// slugify derives a URL slug from a listing name.
func slugify(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "-")
}

func centsToPrice(cents int64) string {
	return strconv.FormatFloat(float64(cents)/100, 'f', 2, 64)
}

// ClassFields projects a class into its publish-side field map. Every
// value is a string; empty values mean "nothing to publish for this
// field" and never overwrite the published copy.
//
// The class-status field is normalized: Publish and Updated are cycle
// triggers, not listing content, so the projection always publishes
// "published" for a live class. Without this the status write-back after
// a sync would make the very next cycle see a field drift and patch it
// again.
func ClassFields(c *model.Class) map[string]string {
	status := c.Status
	switch status {
	case model.ClassPublish, model.ClassUpdated:
		status = model.ClassPublished
	}
	return map[string]string{
		"name":             c.Name,
		"slug":             slugify(c.Name),
		"description":      c.Description,
		"price-member":     centsToPrice(c.MemberPriceCents),
		"price-non-member": centsToPrice(c.NonMemberPriceCents),
		"location":         c.Location,
		"instructor-name":  c.Instructor,
		"instructor-pic":   c.InstructorPic,
		"payment-link":     c.PaymentLink,
		"date":             c.StartDate,
		"end-date":         c.EndDate,
		"start-time":       c.StartTime,
		"end-time":         c.EndTime,
		"number-of-seats":  strconv.Itoa(c.SeatsRemaining),
		"class-status":     string(status),
		"record-id":        c.ExternalID,
	}
}

// PurchaseFields projects a booking into its purchase-listing field map.
func PurchaseFields(b *model.Booking) map[string]string {
	return map[string]string{
		"class-record-id": b.ClassID,
		"status":          string(b.Status),
		"seats-purchased": strconv.Itoa(b.SeatsPurchased),
		"booking-type":    string(b.Type),
		"amount":          centsToPrice(b.AmountCents),
		"record-id":       b.ID,
	}
}

// Diff returns the minimal patch that brings published up to date with
// source. Only fields with a non-empty source value may overwrite: a field
// that went empty on the source side is skipped rather than clearing the
// published value, which prevents visible flicker from transient empty
// reads. An empty result means the pair is already at its fixed point.
func Diff(source, published map[string]string) map[string]string {
	patch := make(map[string]string)
	for k, v := range source {
		if v == "" {
			continue
		}
		if published[k] != v {
			patch[k] = v
		}
	}
	return patch
}
