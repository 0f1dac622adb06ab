package vectorstore

import (
	"math"
	"sort"

	"docqa/internal/domain"
)

// Similarity scores a against b so that higher always means closer.
// Euclidean distance d is mapped to 1/(1+d).
func Similarity(distance domain.Distance, a, b []float32) float64 {
	switch distance {
	case domain.DistanceDot:
		return dot(a, b)
	case domain.DistanceEuclidean:
		sum := 0.0
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return 1 / (1 + math.Sqrt(sum))
	default:
		na, nb := math.Sqrt(dot(a, a)), math.Sqrt(dot(b, b))
		if na == 0 || nb == 0 {
			return 0
		}
		return math.Max(-1, math.Min(1, dot(a, b)/(na*nb)))
	}
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// TopK sorts points by descending score, keeping insertion order on ties, and
// returns at most limit of them.
func TopK(points []domain.ScoredPoint, limit int) []domain.ScoredPoint {
	sort.SliceStable(points, func(i, j int) bool { return points[i].Score > points[j].Score })
	if limit >= 0 && len(points) > limit {
		points = points[:limit]
	}
	return points
}

// ValidDistance reports whether d is one of the supported metrics.
func ValidDistance(d domain.Distance) bool {
	switch d {
	case domain.DistanceCosine, domain.DistanceDot, domain.DistanceEuclidean:
		return true
	}
	return false
}
