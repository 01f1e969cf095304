// Package vecmath holds the small amount of vector arithmetic shared by the
// indexer, cluster manager and search engine.
package vecmath

import "math"

// CosineSimilarity returns the cosine of the angle between a and b.
//
// Returns 0 for empty vectors, vectors of different length, or when either
// vector has zero magnitude.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Distance is the cosine distance 1 - cos(a, b) used by k-means.
func Distance(a, b []float32) float64 {
	return 1 - CosineSimilarity(a, b)
}

// Mean returns the element-wise mean of vectors. Vectors whose length
// differs from the first one are skipped. Returns nil for no input.
func Mean(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	sum := make([]float64, dim)
	n := 0
	for _, v := range vectors {
		if len(v) != dim {
			continue
		}
		for i, x := range v {
			sum[i] += float64(x)
		}
		n++
	}

	mean := make([]float32, dim)
	if n == 0 {
		return mean
	}
	for i := range sum {
		mean[i] = float32(sum[i] / float64(n))
	}
	return mean
}

// Normalize returns v scaled to unit length. A zero vector is returned as a
// copy unchanged.
func Normalize(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if norm == 0 {
		copy(out, v)
		return out
	}
	norm = math.Sqrt(norm)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
