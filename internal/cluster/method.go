package cluster

import (
	"fmt"
	"strings"
)

type methodKind int

const (
	methodKMeans methodKind = iota
	methodDensity
)

// Density-based clustering parameters, in normalized feature space.
const (
	densityRadius     = 0.5
	densityMinSamples = 2
)

// Method selects how sources are grouped. It is a closed set: KMeans(k) or DensityBased().
type Method struct {
	kind methodKind
	k    int
}

// KMeans groups sources into at most k clusters. k is advisory and is clamped to the
// number of records at clustering time.
func KMeans(k int) Method {
	return Method{kind: methodKMeans, k: k}
}

// DensityBased groups sources by neighbourhood density. Sources that do not belong to any
// dense region share their own noise cluster.
func DensityBased() Method {
	return Method{kind: methodDensity}
}

// ParseMethod maps a method name to a Method. "kmeans" selects k-means with k clusters;
// any other name selects density-based clustering.
func ParseMethod(name string, k int) Method {
	if strings.EqualFold(strings.TrimSpace(name), "kmeans") {
		return KMeans(k)
	}
	return DensityBased()
}

// Clusters returns the requested cluster count, or 0 for density-based clustering.
func (m Method) Clusters() int {
	if m.kind == methodKMeans {
		return m.k
	}
	return 0
}

func (m Method) String() string {
	if m.kind == methodKMeans {
		return fmt.Sprintf("kmeans(k=%d)", m.k)
	}
	return "dbscan"
}

// Name returns the selector name accepted by ParseMethod.
func (m Method) Name() string {
	if m.kind == methodKMeans {
		return "kmeans"
	}
	return "dbscan"
}

// labels produces one raw label per row of the normalized matrix.
func (m Method) labels(points [][]float64) []int {
	switch m.kind {
	case methodKMeans:
		k := m.k
		if k > len(points) {
			k = len(points)
		}
		if k < 1 {
			k = 1
		}
		return kmeans(points, k)
	default:
		return dbscan(points, densityRadius, densityMinSamples)
	}
}
