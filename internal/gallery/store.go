package gallery

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
)

// MaxTrips is how many trips the gallery keeps; older ones fall off.
const MaxTrips = 20

var (
	ErrTripNotFound = errors.New("trip not found")
	ErrEmptyTrip    = errors.New("trip has no items")
)

// Trip is a finished game kept for the gallery.
type Trip struct {
	ID         string    `json:"id"`
	Location   string    `json:"location"`
	FinalImage string    `json:"finalImage"`
	MimeType   string    `json:"mimeType"`
	Items      []string  `json:"items"`
	Summary    string    `json:"summary"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Store keeps trips newest first.
type Store interface {
	Save(ctx context.Context, trip Trip) (Trip, error)
	List(ctx context.Context) ([]Trip, error)
	Delete(ctx context.Context, id string) error
}

// prepare assigns identity and save time to a trip about to be saved.
func prepare(trip Trip) (Trip, error) {
	if len(trip.Items) == 0 {
		return Trip{}, ErrEmptyTrip
	}
	trip.ID = "trip-" + uuid.NewString()
	trip.CreatedAt = time.Now().UTC()
	return trip, nil
}

// newestFirst orders trips by save time; ties keep their stored order.
func newestFirst(trips []Trip) []Trip {
	sort.SliceStable(trips, func(i, j int) bool {
		return trips[i].CreatedAt.After(trips[j].CreatedAt)
	})
	return trips
}
