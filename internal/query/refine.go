package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jankowtf/raysearch/internal/storage"
)

// SortMode selects the order of refined results.
type SortMode string

const (
	// SortByScore orders by score descending, identifier ascending on ties.
	SortByScore SortMode = "score"
	// SortByID orders by identifier, lexicographically ascending.
	SortByID SortMode = "name"
)

// ParseSortMode accepts "score" or "name", case-insensitively.
// An empty string means SortByScore.
func ParseSortMode(s string) (SortMode, error) {
	switch SortMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", SortByScore:
		return SortByScore, nil
	case SortByID, "id":
		return SortByID, nil
	default:
		return "", fmt.Errorf("unknown sort mode %q (want %q or %q)", s, SortByScore, SortByID)
	}
}

func (m SortMode) String() string { return string(m) }

// Refine drops results scoring below minSimilarity, orders the rest by mode
// and keeps the first limit. A score equal to minSimilarity is kept. A limit
// of zero or less yields an empty result. The input is never modified.
func Refine(results storage.SearchResults, minSimilarity float64, mode SortMode, limit int) storage.SearchResults {
	out := make(storage.SearchResults, 0, len(results))
	if limit <= 0 {
		return out
	}
	for _, r := range results {
		if r.Score >= minSimilarity {
			out = append(out, r)
		}
	}

	switch mode {
	case SortByID:
		sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	default:
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].Score != out[j].Score {
				return out[i].Score > out[j].Score
			}
			return out[i].ID < out[j].ID
		})
	}

	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
