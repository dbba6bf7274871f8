package verify

import (
	"fmt"
	"math"
)

// Cosine returns the cosine similarity of a and b rounded to four decimals
// and clamped to [0,1]. A zero vector has similarity 0 with everything.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("embedding dimensions differ: %d vs %d", len(a), len(b))
	}

	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}

	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	sim = math.Round(sim*10000) / 10000
	return min(max(sim, 0), 1), nil
}
