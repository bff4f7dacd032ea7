package testutils

import (
	"context"
	"fmt"
	"time"

	"github.com/saviobatista/pigeon-post/internal/types"
)

// MockMessage creates an in-flight message that lands after the given flight duration
func MockMessage(id, senderID, recipientID string, departure time.Time, flight time.Duration) *types.Message {
	return &types.Message{
		ID:          id,
		SenderID:    senderID,
		RecipientID: recipientID,
		Body:        fmt.Sprintf("letter %s", id),
		PigeonName:  "Atlas",
		Status:      types.StatusInFlight,
		CreatedAt:   departure,
		FlightPlan: types.FlightPlan{
			DistanceKm:    flight.Hours() * 65,
			SpeedKmh:      65,
			DepartureTime: departure,
			ArrivalTime:   departure.Add(flight),
		},
	}
}

// MockProfile creates a profile with explicit home coordinates
func MockProfile(id, label string, lat, lon float64) *types.Profile {
	return &types.Profile{
		ID:                id,
		Email:             id + "@example.com",
		DisplayName:       id,
		HomeLocationID:    "custom",
		HomeLocationLabel: &label,
		HomeLatitude:      &lat,
		HomeLongitude:     &lon,
		CreatedAt:         time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// WaitForCondition waits for a condition to be true with timeout
func WaitForCondition(condition func() bool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for condition")
		case <-ticker.C:
			if condition() {
				return nil
			}
		}
	}
}
