package courier

import (
	"math"
	"math/rand"
)

// Variant is a pigeon breed with a fixed cruising speed
type Variant struct {
	ID          string  `json:"id"`
	Label       string  `json:"label"`
	Description string  `json:"description"`
	SpeedKmh    float64 `json:"speed_kmh"`
}

// Variants is the catalog offered to senders. Speeds are strictly positive.
var Variants = []Variant{
	{
		ID:          "storyteller",
		Label:       "Storyteller (gentle, scenic)",
		Description: "Unhurried glides with time to admire the clouds.",
		SpeedKmh:    40,
	},
	{
		ID:          "express",
		Label:       "Express (focused, swift)",
		Description: "Confident tempo with upbeat wingbeats.",
		SpeedKmh:    65,
	},
	{
		ID:          "comet",
		Label:       "Comet (urgent, relentless)",
		Description: "Blazing fast with comet trails and racing shades.",
		SpeedKmh:    90,
	},
}

// Names is the pool a departing pigeon's name is drawn from
var Names = []string{"Aurora", "Nimbus", "Atlas", "Willow", "Zephyr", "Sable"}

// Default returns the variant preselected for a new letter
func Default() Variant {
	return Variants[0]
}

// ByID looks up a variant by its identifier
func ByID(id string) (Variant, bool) {
	for _, v := range Variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}

// BySpeed returns the variant with exactly this speed, or the one closest to it.
// On a tie the earlier catalog entry wins.
func BySpeed(speedKmh float64) Variant {
	closest := Variants[0]
	for _, v := range Variants {
		if v.SpeedKmh == speedKmh {
			return v
		}
		if math.Abs(v.SpeedKmh-speedKmh) < math.Abs(closest.SpeedKmh-speedKmh) {
			closest = v
		}
	}
	return closest
}

// RandomName picks a pigeon name
func RandomName(rng *rand.Rand) string {
	return Names[rng.Intn(len(Names))]
}
