// Package storage holds the on-disk and in-memory data of raysearch:
// the embedding store, its persisted record, and the image catalog.
package storage

// Item is one catalog row describing an image in the collection.
type Item struct {
	ImageName string            `json:"image_name"`
	Category  string            `json:"category"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// CorpusEntry pairs an identifier with its category label.
type CorpusEntry struct {
	ID       string
	Category string
}

// Corpus is the ordered category corpus the text index is fitted on.
type Corpus []CorpusEntry

// IDs returns the corpus identifiers in order.
func (c Corpus) IDs() []string {
	ids := make([]string, len(c))
	for i, e := range c {
		ids[i] = e.ID
	}
	return ids
}

// SearchResult is a scored identifier.
type SearchResult struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// SearchResults is a slice of search results with helper methods.
type SearchResults []SearchResult

// Len returns the number of results.
func (r SearchResults) Len() int { return len(r) }

// IDs returns the identifiers in result order.
func (r SearchResults) IDs() []string {
	ids := make([]string, len(r))
	for i, res := range r {
		ids[i] = res.ID
	}
	return ids
}

// Clone returns a copy that can be reordered without touching r.
func (r SearchResults) Clone() SearchResults {
	if r == nil {
		return nil
	}
	out := make(SearchResults, len(r))
	copy(out, r)
	return out
}
