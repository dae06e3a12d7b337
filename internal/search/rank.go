// Package search ranks catalog items against a query: exact cosine ranking
// over image embeddings and TF-IDF cosine ranking over category labels.
package search

import (
	"container/heap"
	"errors"
	"fmt"
	"sort"

	"github.com/jankowtf/raysearch/internal/storage"
	"github.com/jankowtf/raysearch/pkg/vecmath"
)

// ErrDimensionMismatch is returned when a query vector and the store disagree on D.
var ErrDimensionMismatch = errors.New("query dimension does not match store")

// ErrNoStore is returned when Rank is called without an embedding store.
var ErrNoStore = errors.New("no embedding store")

// Rank scores every row of store against query by cosine similarity and
// returns the best min(topK, N) results, score descending, ties broken by
// ascending row index. The query is normalized first; a zero-norm query
// fails with vecmath.ErrDegenerateVector. A nil store fails with ErrNoStore.
func Rank(query []float32, store *storage.EmbeddingStore, topK int) (storage.SearchResults, error) {
	if store == nil {
		return nil, ErrNoStore
	}
	if len(query) != store.Dim() {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(query), store.Dim())
	}
	q, err := vecmath.Normalize(query)
	if err != nil {
		return nil, fmt.Errorf("normalizing query: %w", err)
	}

	scores := make([]float64, store.Len())
	for i, row := range store.Matrix() {
		scores[i] = float64(vecmath.Dot(row, q))
	}
	return topResults(scores, store.ID, topK), nil
}

// candidate is a row index and its score.
type candidate struct {
	idx   int
	score float64
}

// ranksBelow reports whether a sorts after b: lower score, or equal score and later index.
func ranksBelow(a, b candidate) bool {
	if a.score != b.score {
		return a.score < b.score
	}
	return a.idx > b.idx
}

// worstFirst is a heap whose root is the weakest retained candidate.
type worstFirst []candidate

func (h worstFirst) Len() int           { return len(h) }
func (h worstFirst) Less(i, j int) bool { return ranksBelow(h[i], h[j]) }
func (h worstFirst) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *worstFirst) Push(x any)        { *h = append(*h, x.(candidate)) }
func (h *worstFirst) Pop() any {
	old := *h
	c := old[len(old)-1]
	*h = old[:len(old)-1]
	return c
}

// topResults selects the k best scores in O(N log k) and returns them in rank order.
func topResults(scores []float64, id func(int) string, k int) storage.SearchResults {
	if k > len(scores) {
		k = len(scores)
	}
	if k <= 0 {
		return storage.SearchResults{}
	}

	h := make(worstFirst, 0, k)
	for i, s := range scores {
		c := candidate{idx: i, score: s}
		if len(h) < k {
			heap.Push(&h, c)
			continue
		}
		if ranksBelow(h[0], c) {
			h[0] = c
			heap.Fix(&h, 0)
		}
	}

	sort.Slice(h, func(i, j int) bool { return ranksBelow(h[j], h[i]) })

	results := make(storage.SearchResults, len(h))
	for i, c := range h {
		results[i] = storage.SearchResult{ID: id(c.idx), Score: c.score}
	}
	return results
}
