package cluster

import (
	"math"
	"math/rand/v2"
)

const (
	kmeansSeed    = 42
	kmeansInits   = 10
	kmeansMaxIter = 300
	kmeansTol     = 1e-4
)

// kmeans runs k-means++ seeded Lloyd iterations kmeansInits times from a fixed seed and keeps
// the partition with the lowest inertia. Labels are in [0, k).
func kmeans(points [][]float64, k int) []int {
	rng := rand.New(rand.NewPCG(kmeansSeed, kmeansSeed))

	var best []int
	bestInertia := math.Inf(1)
	for i := 0; i < kmeansInits; i++ {
		centers := seedCenters(points, k, rng)
		labels, inertia := lloyd(points, centers)
		if inertia < bestInertia {
			best, bestInertia = labels, inertia
		}
	}
	return best
}

// seedCenters picks k initial centers with k-means++ sampling.
func seedCenters(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centers := make([][]float64, 0, k)
	centers = append(centers, clone(points[rng.IntN(len(points))]))

	dist := make([]float64, len(points))
	for len(centers) < k {
		var total float64
		for i, p := range points {
			dist[i] = nearest(p, centers)
			total += dist[i]
		}

		// Every point already sits on a center; any choice is as good as another.
		if total == 0 {
			centers = append(centers, clone(points[rng.IntN(len(points))]))
			continue
		}

		target := rng.Float64() * total
		chosen := len(points) - 1
		var cum float64
		for i, d := range dist {
			cum += d
			if cum >= target && d > 0 {
				chosen = i
				break
			}
		}
		centers = append(centers, clone(points[chosen]))
	}
	return centers
}

// lloyd refines centers in place until assignments stop changing, the centers stop moving,
// or kmeansMaxIter is reached. It returns the final labels and their inertia.
func lloyd(points [][]float64, centers [][]float64) ([]int, float64) {
	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = -1
	}
	width := len(points[0])

	for iter := 0; iter < kmeansMaxIter; iter++ {
		changed := false
		for i, p := range points {
			c := closest(p, centers)
			if c != labels[i] {
				labels[i] = c
				changed = true
			}
		}
		if !changed {
			break
		}

		sums := make([][]float64, len(centers))
		counts := make([]int, len(centers))
		for c := range sums {
			sums[c] = make([]float64, width)
		}
		for i, p := range points {
			counts[labels[i]]++
			for j, v := range p {
				sums[labels[i]][j] += v
			}
		}

		var shift float64
		for c := range centers {
			// An empty cluster keeps its previous center.
			if counts[c] == 0 {
				continue
			}
			for j := range sums[c] {
				sums[c][j] /= float64(counts[c])
			}
			shift += sqDist(centers[c], sums[c])
			centers[c] = sums[c]
		}
		if shift <= kmeansTol {
			for i, p := range points {
				labels[i] = closest(p, centers)
			}
			break
		}
	}

	var inertia float64
	for i, p := range points {
		inertia += sqDist(p, centers[labels[i]])
	}
	return labels, inertia
}

// closest returns the index of the nearest center; ties go to the lowest index.
func closest(p []float64, centers [][]float64) int {
	best, bestDist := 0, math.Inf(1)
	for c, center := range centers {
		if d := sqDist(p, center); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func nearest(p []float64, centers [][]float64) float64 {
	return sqDist(p, centers[closest(p, centers)])
}

func sqDist(a, b []float64) float64 {
	var s float64
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}

func clone(p []float64) []float64 {
	out := make([]float64, len(p))
	copy(out, p)
	return out
}
