package embeddings

import "math"

// Normalize scales a vector to unit L2 norm in place and returns it.
// Zero vectors are returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}

	if sum == 0 {
		return v
	}

	norm := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}

	return v
}
