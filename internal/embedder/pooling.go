package embedder

import (
	"math"

	"github.com/dshills/snipvault/internal/inference"
)

// MeanPool averages the hidden rows whose mask entry is non-zero. The result
// is all zeros when nothing is attended.
func MeanPool(hidden *inference.HiddenState, mask []int64) []float32 {
	pooled := make([]float32, hidden.Dim)

	var count float32
	for i := 0; i < hidden.SeqLen && i < len(mask); i++ {
		if mask[i] == 0 {
			continue
		}
		weight := float32(mask[i])
		row := hidden.Row(i)
		for j, v := range row {
			pooled[j] += v * weight
		}
		count += weight
	}

	if count == 0 {
		return pooled
	}
	for j := range pooled {
		pooled[j] /= count
	}
	return pooled
}

// NormalizeVector scales v to unit L2 norm. A zero vector is returned as is.
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}

	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}

	return result
}

// Dot returns the dot product of two equal-length vectors, which is the
// cosine similarity when both are normalized
func Dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
