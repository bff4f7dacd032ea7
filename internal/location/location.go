package location

import (
	"math"

	"github.com/saviobatista/pigeon-post/internal/types"
)

// Loft is one of the built-in home lofts that predate free location search
type Loft struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Description string  `json:"description"`
}

// Lofts lists the legacy lofts. The first entry is the default.
var Lofts = []Loft{
	{ID: "nyc", Name: "New York City, USA", Latitude: 40.7128, Longitude: -74.006, Description: "Bustling eastern US metropolis, a common departure perch."},
	{ID: "ldn", Name: "London, United Kingdom", Latitude: 51.5072, Longitude: -0.1276, Description: "Historic roost along the Thames."},
	{ID: "tko", Name: "Tokyo, Japan", Latitude: 35.6762, Longitude: 139.6503, Description: "Neon skies over the Pacific."},
	{ID: "syd", Name: "Sydney, Australia", Latitude: -33.8688, Longitude: 151.2093, Description: "Harbour breezes and eucalyptus thermals."},
	{ID: "cpt", Name: "Cape Town, South Africa", Latitude: -33.9249, Longitude: 18.4241, Description: "Cliffs of the Cape, a southern waypoint."},
	{ID: "scl", Name: "Santiago, Chile", Latitude: -33.4489, Longitude: -70.6693, Description: "High Andes air currents for determined birds."},
}

// DefaultLoft returns the loft used when a sender has no usable home
func DefaultLoft() Loft {
	return Lofts[0]
}

// LegacyByID returns the legacy loft with the given id, if any
func LegacyByID(id string) (Loft, bool) {
	if id == "" {
		return Loft{}, false
	}
	for _, l := range Lofts {
		if l.ID == id {
			return l, true
		}
	}
	return Loft{}, false
}

// ResolveProfile works out where a profile's pigeons take off from.
// Explicit coordinates win, then the legacy loft id, then the default loft
// when fallbackToDefault is set. Returns nil if nothing applies.
func ResolveProfile(profile *types.Profile, fallbackToDefault bool) *types.ResolvedLocation {
	if profile == nil {
		return nil
	}

	if profile.HomeLatitude != nil && profile.HomeLongitude != nil {
		label := "Unknown loft"
		if profile.HomeLocationLabel != nil {
			label = *profile.HomeLocationLabel
		} else if profile.HomeLocationID != "" {
			label = profile.HomeLocationID
		}
		resolved := &types.ResolvedLocation{
			Label:       label,
			Description: label,
			Latitude:    *profile.HomeLatitude,
			Longitude:   *profile.HomeLongitude,
			Source:      types.SourceProfile,
		}
		if profile.HomeCountryCode != nil {
			resolved.CountryCode = *profile.HomeCountryCode
		}
		return resolved
	}

	if loft, ok := LegacyByID(profile.HomeLocationID); ok {
		label, description := loft.Name, loft.Description
		if profile.HomeLocationLabel != nil {
			label = *profile.HomeLocationLabel
			description = *profile.HomeLocationLabel
		}
		return &types.ResolvedLocation{
			Label:       label,
			Description: description,
			Latitude:    loft.Latitude,
			Longitude:   loft.Longitude,
			Source:      types.SourceLegacy,
		}
	}

	if fallbackToDefault {
		loft := DefaultLoft()
		return &types.ResolvedLocation{
			Label:       loft.Name,
			Description: loft.Description,
			Latitude:    loft.Latitude,
			Longitude:   loft.Longitude,
			Source:      types.SourceFallback,
		}
	}

	return nil
}

// HasValidCoordinates reports whether loc can be fed to the flight model
func HasValidCoordinates(loc *types.ResolvedLocation) bool {
	if loc == nil {
		return false
	}
	return ValidCoordinates(loc.Latitude, loc.Longitude)
}

// ValidCoordinates reports whether lat and lon are finite and within
// [-90, 90] and [-180, 180]
func ValidCoordinates(lat, lon float64) bool {
	return isFinite(lat) && isFinite(lon) &&
		lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
