package scoring

// Weights configures the hybrid combination of the velocity and diversity
// signals. Injectable for tuning and testing; never hardcode policy here.
type Weights struct {
	Velocity  float64 `yaml:"velocity"`
	Diversity float64 `yaml:"diversity"`
}

// DefaultWeights reflects that semantic repetition is a stronger extraction
// signal than raw speed.
func DefaultWeights() Weights {
	return Weights{Velocity: 0.4, Diversity: 0.6}
}

// HybridScore combines the two signals into a single bounded score. Clamped
// to [0,1] regardless of how extreme the weights or inputs are.
func HybridScore(vScore, dScore float64, w Weights) float64 {
	score := w.Velocity*vScore + w.Diversity*dScore
	if score > 1.0 {
		return 1.0
	}
	if score < 0 {
		return 0
	}
	return score
}
