package cluster

const (
	noiseLabel = -1
	unvisited  = -2
)

// dbscan labels every point with the index of its dense region, in order of discovery, or
// noiseLabel. A point is a core point when at least minSamples points, itself included, lie
// within eps of it.
func dbscan(points [][]float64, eps float64, minSamples int) []int {
	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = unvisited
	}
	epsSq := eps * eps

	next := 0
	for i := range points {
		if labels[i] != unvisited {
			continue
		}
		neighbours := regionQuery(points, i, epsSq)
		if len(neighbours) < minSamples {
			labels[i] = noiseLabel
			continue
		}

		labels[i] = next
		queue := neighbours
		for q := 0; q < len(queue); q++ {
			j := queue[q]
			if labels[j] == noiseLabel {
				labels[j] = next
				continue
			}
			if labels[j] != unvisited {
				continue
			}
			labels[j] = next
			if more := regionQuery(points, j, epsSq); len(more) >= minSamples {
				queue = append(queue, more...)
			}
		}
		next++
	}
	return labels
}

func regionQuery(points [][]float64, i int, epsSq float64) []int {
	var out []int
	for j, p := range points {
		if sqDist(points[i], p) <= epsSq {
			out = append(out, j)
		}
	}
	return out
}
