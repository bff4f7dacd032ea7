package flight

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saviobatista/pigeon-post/internal/types"
)

var (
	newYork  = types.GeoPoint{Latitude: 40.7128, Longitude: -74.0060}
	london   = types.GeoPoint{Latitude: 51.5072, Longitude: -0.1276}
	tokyo    = types.GeoPoint{Latitude: 35.6762, Longitude: 139.6503}
	sydney   = types.GeoPoint{Latitude: -33.8688, Longitude: 151.2093}
	capeTown = types.GeoPoint{Latitude: -33.9249, Longitude: 18.4241}
	santiago = types.GeoPoint{Latitude: -33.4489, Longitude: -70.6693}
)

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

// ---------------------------------------------------------------------------
// Distance
// ---------------------------------------------------------------------------

func TestDistance_NewYorkToLondon(t *testing.T) {
	d := Distance(newYork, london)
	assert.InEpsilon(t, 5570.0, d, 0.01)
}

func TestDistance_Identity(t *testing.T) {
	for _, p := range []types.GeoPoint{newYork, london, tokyo, {Latitude: 90, Longitude: 0}, {}} {
		assert.Equal(t, 0.0, Distance(p, p), "distance of %+v to itself", p)
	}
}

func TestDistance_Symmetry(t *testing.T) {
	points := []types.GeoPoint{newYork, london, tokyo, sydney, capeTown, santiago}
	for _, a := range points {
		for _, b := range points {
			assert.InDelta(t, Distance(a, b), Distance(b, a), 1e-9)
		}
	}
}

func TestDistance_Bounded(t *testing.T) {
	maxKm := math.Pi * EarthRadiusKm
	points := []types.GeoPoint{
		newYork, london, tokyo, sydney, capeTown, santiago,
		{Latitude: 90, Longitude: 0},
		{Latitude: -90, Longitude: 0},
		{Latitude: 0, Longitude: 180},
		{Latitude: 0, Longitude: -180},
	}
	for _, a := range points {
		for _, b := range points {
			d := Distance(a, b)
			assert.GreaterOrEqual(t, d, 0.0)
			assert.LessOrEqual(t, d, maxKm+1e-6)
		}
	}
}

func TestDistance_Antipodes(t *testing.T) {
	d := Distance(types.GeoPoint{Latitude: 0, Longitude: 0}, types.GeoPoint{Latitude: 0, Longitude: 180})
	assert.InDelta(t, 20015.1, d, 0.1)

	d = Distance(types.GeoPoint{Latitude: 90, Longitude: 0}, types.GeoPoint{Latitude: -90, Longitude: 0})
	assert.InDelta(t, math.Pi*EarthRadiusKm, d, 1e-6)
}

// ---------------------------------------------------------------------------
// Duration and arrival
// ---------------------------------------------------------------------------

func TestFlightHours(t *testing.T) {
	assert.Equal(t, 2.0, FlightHours(130, 65))
	assert.Equal(t, 0.0, FlightHours(0, 40))
	assert.True(t, math.IsInf(FlightHours(100, 0), 1))
}

func TestFlightHours_NewYorkToLondonExpress(t *testing.T) {
	hours := FlightHours(Distance(newYork, london), 65)
	assert.InDelta(t, 85.7, hours, 0.1)
	assert.InDelta(t, 89.7, hours+HandlingPaddingHours, 0.1)
	assert.Equal(t, hours+HandlingPaddingHours, PaddedHours(Distance(newYork, london), 65))
}

func TestProjectArrival_RoundTrip(t *testing.T) {
	departure := mustParse(t, "2024-01-01T00:00:00Z")
	tests := []struct {
		distance float64
		speed    float64
	}{
		{5570.2, 65},
		{120, 40},
		{0, 90},
		{19999.9, 90},
	}

	for _, tt := range tests {
		hours := FlightHours(tt.distance, tt.speed)
		arrival := ProjectArrival(departure, hours)
		assert.InDelta(t, tt.distance/tt.speed, arrival.Sub(departure).Hours(), 1e-9)
	}
}

func TestProjectArrival_Exact(t *testing.T) {
	departure := mustParse(t, "2024-01-01T00:00:00Z")
	assert.Equal(t, mustParse(t, "2024-01-01T10:30:00Z"), ProjectArrival(departure, 10.5))
}

// ---------------------------------------------------------------------------
// Progress
// ---------------------------------------------------------------------------

func TestProgress_Midpoint(t *testing.T) {
	d := mustParse(t, "2024-01-01T00:00:00Z")
	a := mustParse(t, "2024-01-01T10:00:00Z")
	now := mustParse(t, "2024-01-01T05:00:00Z")

	assert.Equal(t, 0.5, Progress(d, a, now))
}

func TestProgress_Boundaries(t *testing.T) {
	d := mustParse(t, "2024-01-01T00:00:00Z")
	a := mustParse(t, "2024-01-01T10:00:00Z")

	assert.Equal(t, 0.0, Progress(d, a, d))
	assert.Equal(t, 1.0, Progress(d, a, a))
	assert.Equal(t, 0.0, Progress(d, a, d.Add(-time.Nanosecond)))
	assert.Equal(t, 1.0, Progress(d, a, a.Add(time.Nanosecond)))
}

func TestProgress_Clamped(t *testing.T) {
	d := mustParse(t, "2024-01-01T00:00:00Z")
	a := mustParse(t, "2024-01-01T10:00:00Z")

	assert.Equal(t, 0.0, Progress(d, a, time.Time{}))
	assert.Equal(t, 0.0, Progress(d, a, d.AddDate(-50, 0, 0)))
	assert.Equal(t, 1.0, Progress(d, a, a.AddDate(100, 0, 0)))
}

func TestProgress_Monotonic(t *testing.T) {
	d := mustParse(t, "2024-01-01T00:00:00Z")
	a := mustParse(t, "2024-01-04T17:42:00Z")

	prev := 0.0
	for now := d.Add(time.Minute); now.Before(a); now = now.Add(37 * time.Minute) {
		p := Progress(d, a, now)
		assert.Greater(t, p, 0.0)
		assert.Less(t, p, 1.0)
		assert.GreaterOrEqual(t, p, prev)
		prev = p
	}
}

func TestProgress_Idempotent(t *testing.T) {
	d := mustParse(t, "2024-01-01T00:00:00Z")
	a := mustParse(t, "2024-01-01T10:00:00Z")
	now := mustParse(t, "2024-01-01T03:17:00Z")

	assert.Equal(t, Progress(d, a, now), Progress(d, a, now))
}

func TestProgress_Degenerate(t *testing.T) {
	d := mustParse(t, "2024-01-01T00:00:00Z")

	assert.Equal(t, 1.0, Progress(d, d, d.Add(time.Second)))
	assert.Equal(t, 1.0, Progress(d, d.Add(-time.Hour), d.Add(time.Second)))
	assert.False(t, math.IsNaN(Progress(d, d, d)))
}

func TestArrived(t *testing.T) {
	d := mustParse(t, "2024-01-01T00:00:00Z")
	a := mustParse(t, "2024-01-01T10:00:00Z")

	assert.False(t, Arrived(d, a, d))
	assert.False(t, Arrived(d, a, a.Add(-time.Second)))
	assert.True(t, Arrived(d, a, a))
}

// ---------------------------------------------------------------------------
// Plan
// ---------------------------------------------------------------------------

func TestNewPlan(t *testing.T) {
	departure := mustParse(t, "2024-01-01T00:00:00Z")

	plan := NewPlan(newYork, london, 65, departure, HandlingPaddingHours)

	assert.InEpsilon(t, 5570.0, plan.DistanceKm, 0.01)
	assert.Equal(t, 65.0, plan.SpeedKmh)
	assert.Equal(t, departure, plan.DepartureTime)
	assert.True(t, plan.ArrivalTime.After(plan.DepartureTime))
	assert.InDelta(t, plan.DistanceKm/65+4, plan.ArrivalTime.Sub(departure).Hours(), 1e-9)
}

func TestNewPlan_SameLoftStillPadded(t *testing.T) {
	departure := mustParse(t, "2024-01-01T00:00:00Z")

	plan := NewPlan(london, london, 40, departure, HandlingPaddingHours)

	assert.Equal(t, 0.0, plan.DistanceKm)
	assert.Equal(t, departure.Add(4*time.Hour), plan.ArrivalTime)
}
