package types

import (
	"math"
	"math/rand/v2"
)

// DefaultTemperature is assumed when a sample is entered without one
const DefaultTemperature = 25.0

// SimulateSample returns a plausible random reading, standing in for a field
// sensor when none is installed
func SimulateSample(rng *rand.Rand) SoilSample {
	return SoilSample{
		Nitrogen:    rng.IntN(150) + 20,
		Phosphorus:  rng.IntN(80) + 10,
		Potassium:   rng.IntN(80) + 10,
		PH:          math.Round((rng.Float64()*2+5.5)*10) / 10,
		Moisture:    float64(rng.IntN(50) + 30),
		Temperature: 28,
		Rainfall:    120,
	}
}
