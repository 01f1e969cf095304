package cluster

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// groupAround returns n vectors near base with uniform noise of the given
// amplitude.
func groupAround(rng *rand.Rand, base []float32, n int, noise float32) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, len(base))
		for j, x := range base {
			v[j] = x + (rng.Float32()*2-1)*noise
		}
		out[i] = v
	}
	return out
}

func twoGroups(n int) [][]float32 {
	rng := rand.New(rand.NewSource(7))
	a := groupAround(rng, []float32{1, 0, 0, 0}, n, 0.01)
	b := groupAround(rng, []float32{0, 0, 1, 0}, n, 0.01)
	return append(a, b...)
}

func TestKMeans_SeparatesGroups(t *testing.T) {
	km := NewKMeans(10, 0.01, 42)
	vectors := twoGroups(20)

	res := km.Run(vectors, 2)

	require.Len(t, res.Centroids, 2)
	require.Len(t, res.Assignments, 40)
	assert.True(t, res.Converged)
	assert.LessOrEqual(t, res.Iterations, 10)
	assert.Less(t, res.WCSS, 0.01)

	first := res.Assignments[0]
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, res.Assignments[i])
		assert.NotEqual(t, first, res.Assignments[20+i])
	}
}

func TestKMeans_ClampsK(t *testing.T) {
	km := NewKMeans(10, 0.01, 1)
	vectors := [][]float32{{1, 0}, {0, 1}, {1, 1}}

	assert.Len(t, km.Run(vectors, 10).Centroids, 3)
	assert.Len(t, km.Run(vectors, 0).Centroids, 1)
	assert.Empty(t, km.Run(nil, 3).Centroids)
}

func TestKMeans_StopsAtMaxIterations(t *testing.T) {
	// A zero threshold can never be undercut, so the cap applies.
	km := NewKMeans(4, 0, 3)

	res := km.Run(twoGroups(10), 2)

	assert.Equal(t, 4, res.Iterations)
	assert.False(t, res.Converged)
}

func TestKMeans_IdenticalPoints(t *testing.T) {
	km := NewKMeans(10, 0.01, 5)
	vectors := [][]float32{{1, 0}, {1, 0}, {1, 0}, {1, 0}}

	res := km.Run(vectors, 3)

	assert.Len(t, res.Centroids, 3)
	assert.InDelta(t, 0, res.WCSS, 1e-9)
}

func TestOptimalK(t *testing.T) {
	tests := []struct {
		name        string
		vectors     [][]float32
		maxClusters int
		want        int
	}{
		{name: "two separated groups", vectors: twoGroups(100), maxClusters: 50, want: 2},
		{name: "too few points for more than one", vectors: twoGroups(2), maxClusters: 50, want: 1},
		{name: "bounded by max clusters", vectors: twoGroups(100), maxClusters: 1, want: 1},
		{name: "empty", vectors: nil, maxClusters: 50, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			km := NewKMeans(10, 0.01, 11)
			k, curve := km.OptimalK(tt.vectors, tt.maxClusters)
			assert.Equal(t, tt.want, k)
			if len(tt.vectors) > 0 {
				assert.NotEmpty(t, curve)
			}
		})
	}
}

func TestOptimalK_NoElbowFallsBackToThree(t *testing.T) {
	// Identical points give a flat WCSS curve where every elbow score is 0.
	vectors := make([][]float32, 50)
	for i := range vectors {
		vectors[i] = []float32{1, 1}
	}
	km := NewKMeans(10, 0.01, 2)

	k, _ := km.OptimalK(vectors, 50)
	assert.Equal(t, 3, k)
}

func TestWCSS(t *testing.T) {
	vectors := [][]float32{{1, 0}, {0, 1}}
	centroids := [][]float32{{1, 0}}

	assert.InDelta(t, 1.0, WCSS(vectors, centroids, []int{0, 0}), 1e-9)
	assert.InDelta(t, 0.0, WCSS(vectors, centroids, []int{0, -1}), 1e-9)
}
