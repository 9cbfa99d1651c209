package carrier

import (
	"context"
	"sort"

	"github.com/BearBump/ParcelBox/internal/models"
)

// Client fetches one carrier's view of a tracking number and normalizes it.
// Implementations are stateless per call and never touch persisted state.
type Client interface {
	Fetch(ctx context.Context, trackingNumber string) (*models.Parcel, error)
}

// SortEvents orders events ascending by time. Source duplicates are kept.
func SortEvents(events []models.TrackingEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Time.Before(events[j].Time)
	})
}
