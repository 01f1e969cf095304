package cluster

import (
	"math"
	"math/rand"
	"sync"

	"github.com/fyrsmithlabs/embedlife/internal/vecmath"
)

// KMeans runs k-means++ seeded Lloyd iterations under cosine distance.
// It is safe for concurrent use.
type KMeans struct {
	MaxIterations        int
	ConvergenceThreshold float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewKMeans creates a k-means runner with a deterministic seed.
func NewKMeans(maxIterations int, convergenceThreshold float64, seed int64) *KMeans {
	return &KMeans{
		MaxIterations:        maxIterations,
		ConvergenceThreshold: convergenceThreshold,
		rng:                  rand.New(rand.NewSource(seed)),
	}
}

// Run partitions vectors into k clusters. k is clamped to [1, len(vectors)].
// Converged is set when the fraction of points changing centroid in an
// iteration falls below ConvergenceThreshold; the first iteration counts
// every point as changed.
func (km *KMeans) Run(vectors [][]float32, k int) *KMeansResult {
	n := len(vectors)
	if n == 0 {
		return &KMeansResult{}
	}
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}

	centroids := km.initCentroids(vectors, k)
	assignments := make([]int, n)
	for i := range assignments {
		assignments[i] = -1
	}

	maxIter := km.MaxIterations
	if maxIter < 1 {
		maxIter = 1
	}

	res := &KMeansResult{}
	for iter := 1; iter <= maxIter; iter++ {
		res.Iterations = iter

		changed := 0
		for i, v := range vectors {
			best := nearestCentroid(v, centroids)
			if best != assignments[i] {
				assignments[i] = best
				changed++
			}
		}

		centroids = updateCentroids(vectors, assignments, centroids)

		if float64(changed)/float64(n) < km.ConvergenceThreshold {
			res.Converged = true
			break
		}
	}

	res.Centroids = centroids
	res.Assignments = assignments
	res.WCSS = WCSS(vectors, centroids, assignments)
	KMeansIterations.Observe(float64(res.Iterations))
	return res
}

// OptimalK picks k by the elbow method and returns it with the WCSS curve
// for k = 1..maxK, where maxK = min(floor(sqrt(n/2)), maxClusters) and at
// least 1.
//
// The elbow score of k is wcss[k-1] - 2*wcss[k] + wcss[k+1]. The k with the
// largest positive score wins; with no positive score the result is
// min(3, maxK).
func (km *KMeans) OptimalK(vectors [][]float32, maxClusters int) (int, []float64) {
	n := len(vectors)
	if n == 0 {
		return 0, nil
	}

	maxK := int(math.Floor(math.Sqrt(float64(n) / 2)))
	if maxClusters > 0 && maxK > maxClusters {
		maxK = maxClusters
	}
	if maxK < 1 {
		maxK = 1
	}

	wcss := make([]float64, maxK)
	for k := 1; k <= maxK; k++ {
		wcss[k-1] = km.Run(vectors, k).WCSS
	}

	optimal := min(3, maxK)
	bestScore := 0.0
	for k := 2; k < maxK; k++ {
		score := wcss[k-2] - 2*wcss[k-1] + wcss[k]
		if score > bestScore {
			bestScore = score
			optimal = k
		}
	}
	return optimal, wcss
}

// initCentroids applies k-means++: the first centroid is uniform, each next
// one is sampled proportionally to the squared distance to the nearest
// centroid chosen so far.
func (km *KMeans) initCentroids(vectors [][]float32, k int) [][]float32 {
	km.mu.Lock()
	defer km.mu.Unlock()

	n := len(vectors)
	chosen := make(map[int]bool, k)
	first := km.rng.Intn(n)
	chosen[first] = true
	centroids := [][]float32{clone(vectors[first])}

	weights := make([]float64, n)
	for len(centroids) < k {
		total := 0.0
		for i, v := range vectors {
			d := vecmath.Distance(v, centroids[nearestCentroid(v, centroids)])
			weights[i] = d * d
			total += weights[i]
		}

		next := -1
		if total > 0 {
			r := km.rng.Float64() * total
			for i, w := range weights {
				r -= w
				if r <= 0 && w > 0 {
					next = i
					break
				}
			}
			if next < 0 {
				// Rounding left r slightly positive; take the last weighted point.
				for i := n - 1; i >= 0; i-- {
					if weights[i] > 0 {
						next = i
						break
					}
				}
			}
		}
		if next < 0 {
			// Every point coincides with a centroid.
			next = km.unchosen(chosen, n)
		}

		chosen[next] = true
		centroids = append(centroids, clone(vectors[next]))
	}
	return centroids
}

// unchosen returns a random index not yet used as a seed. Caller holds mu.
func (km *KMeans) unchosen(chosen map[int]bool, n int) int {
	free := make([]int, 0, n-len(chosen))
	for i := 0; i < n; i++ {
		if !chosen[i] {
			free = append(free, i)
		}
	}
	if len(free) == 0 {
		return km.rng.Intn(n)
	}
	return free[km.rng.Intn(len(free))]
}

// updateCentroids recomputes each centroid as the mean of its points. A
// centroid left without points keeps its previous position.
func updateCentroids(vectors [][]float32, assignments []int, prev [][]float32) [][]float32 {
	groups := make([][][]float32, len(prev))
	for i, a := range assignments {
		groups[a] = append(groups[a], vectors[i])
	}
	out := make([][]float32, len(prev))
	for c, members := range groups {
		if len(members) == 0 {
			out[c] = prev[c]
			continue
		}
		out[c] = vecmath.Mean(members)
	}
	return out
}

// WCSS is the within-cluster sum of squared cosine distances.
func WCSS(vectors [][]float32, centroids [][]float32, assignments []int) float64 {
	sum := 0.0
	for i, v := range vectors {
		a := assignments[i]
		if a < 0 || a >= len(centroids) {
			continue
		}
		d := vecmath.Distance(v, centroids[a])
		sum += d * d
	}
	return sum
}

func nearestCentroid(v []float32, centroids [][]float32) int {
	best := 0
	bestSim := math.Inf(-1)
	for i, c := range centroids {
		if sim := vecmath.CosineSimilarity(v, c); sim > bestSim {
			bestSim = sim
			best = i
		}
	}
	return best
}

func clone(v []float32) []float32 {
	return append([]float32(nil), v...)
}
