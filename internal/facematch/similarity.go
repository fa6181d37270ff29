// Package facematch converts between embedding distances and match similarity scores.
package facematch

// MaxSimilarity is the top of the similarity scale.
const MaxSimilarity = 100.0

// SimilarityFromDistance converts a cosine distance (0 identical, 2 opposite) into a
// similarity score on the 0-100 scale. Negative correlations clamp to 0.
func SimilarityFromDistance(distance float64) float64 {
	s := (1 - distance) * MaxSimilarity
	if s < 0 {
		return 0
	}
	if s > MaxSimilarity {
		return MaxSimilarity
	}
	return s
}

// Matches reports whether a similarity passes the threshold. The boundary is inclusive.
func Matches(similarity, threshold float64) bool {
	return similarity >= threshold
}
