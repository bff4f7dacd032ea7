// Package flight holds the deterministic geo and time math behind a pigeon's
// journey: great-circle distance, flight duration, arrival projection and
// delivery progress. Every function is pure; the current instant is always
// passed in by the caller.
package flight

import (
	"math"
	"time"

	"github.com/saviobatista/pigeon-post/internal/types"
)

const (
	// EarthRadiusKm is the mean radius of Earth in kilometers.
	EarthRadiusKm = 6371.0

	// HandlingPaddingHours is added to the raw flight time by the compose
	// flow before projecting the arrival. It is not part of FlightHours.
	HandlingPaddingHours = 4.0
)

func toRadians(degrees float64) float64 {
	return degrees * math.Pi / 180
}

// Distance returns the haversine distance between a and b in kilometers.
// Coordinates are not validated.
func Distance(a, b types.GeoPoint) float64 {
	dLat := toRadians(b.Latitude - a.Latitude)
	dLon := toRadians(b.Longitude - a.Longitude)
	rLat1 := toRadians(a.Latitude)
	rLat2 := toRadians(b.Latitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKm * c
}

// FlightHours returns distanceKm / speedKmh. Speed must be strictly positive;
// a zero speed yields +Inf.
func FlightHours(distanceKm, speedKmh float64) float64 {
	return distanceKm / speedKmh
}

// ProjectArrival returns departure shifted by the given number of hours.
func ProjectArrival(departure time.Time, hours float64) time.Time {
	return departure.Add(time.Duration(math.Round(hours * float64(time.Hour))))
}

// Progress returns how far between departure and arrival now lies, clamped
// to [0, 1].
func Progress(departure, arrival, now time.Time) float64 {
	if !now.After(departure) {
		return 0
	}
	// Also covers arrival <= departure, so the division below is safe.
	if !now.Before(arrival) {
		return 1
	}
	return float64(now.Sub(departure)) / float64(arrival.Sub(departure))
}

// Arrived reports whether the flight has reached full progress at now.
func Arrived(departure, arrival, now time.Time) bool {
	return Progress(departure, arrival, now) >= 1
}

// NewPlan builds the flight plan for a pigeon leaving from at departure.
// paddingHours is added on top of the raw flight time.
func NewPlan(from, to types.GeoPoint, speedKmh float64, departure time.Time, paddingHours float64) types.FlightPlan {
	distance := Distance(from, to)
	hours := FlightHours(distance, speedKmh)

	return types.FlightPlan{
		DistanceKm:    distance,
		SpeedKmh:      speedKmh,
		DepartureTime: departure,
		ArrivalTime:   ProjectArrival(departure, hours+paddingHours),
	}
}

// PaddedHours returns the total estimate shown to a sender for a route.
func PaddedHours(distanceKm, speedKmh float64) float64 {
	return FlightHours(distanceKm, speedKmh) + HandlingPaddingHours
}
