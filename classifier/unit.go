package classifier

import (
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/floats"
)

// activationClip bounds the pre-activation before exponentiation.
const activationClip = 500.0

// Unit is a one-vs-all sigmoid scorer for a single language.
type Unit struct {
	Weights []float64 `json:"weights" msgpack:"weights"`
	Bias    float64   `json:"bias" msgpack:"bias"`
}

func newUnit(dim int, scale float64, rng *rand.Rand) *Unit {
	u := &Unit{Weights: make([]float64, dim)}
	for i := range u.Weights {
		u.Weights[i] = rng.NormFloat64() * scale
	}
	return u
}

// Score returns sigmoid(w·x + b) with the pre-activation clipped to [-500, 500].
func (u *Unit) Score(x []float64) float64 {
	return sigmoid(floats.Dot(u.Weights, x) + u.Bias)
}

// Update applies one delta-rule step toward target and returns the error used.
func (u *Unit) Update(x []float64, target, rate float64) float64 {
	err := target - u.Score(x)
	floats.AddScaled(u.Weights, rate*err, x)
	u.Bias += rate * err
	return err
}

func (u *Unit) clone() *Unit {
	return &Unit{Weights: slices.Clone(u.Weights), Bias: u.Bias}
}

func sigmoid(z float64) float64 {
	z = math.Max(-activationClip, math.Min(activationClip, z))
	return 1.0 / (1.0 + math.Exp(-z))
}
