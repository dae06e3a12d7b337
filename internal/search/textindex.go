package search

import (
	"errors"
	"math"
	"sort"
	"strings"

	"github.com/jankowtf/raysearch/internal/storage"
	"github.com/sahilm/fuzzy"
)

// ErrVocabularyMismatch is returned when a TextIndex is used before it was built.
var ErrVocabularyMismatch = errors.New("text index queried before build")

// TextIndex is a TF-IDF model fitted on a category corpus.
//
// Weights are raw term counts times smoothed IDF, idf(t) = ln((1+N)/(1+df(t))) + 1,
// and every row is L2-normalized. Queries are vectorized the same way, so the
// dot product of a query and a row is their cosine similarity. A TextIndex is
// immutable after BuildTextIndex and safe for concurrent use.
type TextIndex struct {
	analyzer *analyzer
	ids      []string
	terms    []string
	vocab    map[string]int
	idf      []float64
	rows     []sparseVec
}

// sparseVec holds non-zero weights by ascending term column.
type sparseVec struct {
	cols []int
	vals []float64
}

// BuildTextIndex fits a TextIndex on corpus. Labels are lower-cased.
func BuildTextIndex(corpus storage.Corpus) *TextIndex {
	a := newAnalyzer()

	docs := make([][]string, len(corpus))
	df := make(map[string]int)
	for i, e := range corpus {
		docs[i] = a.terms(e.Category)
		seen := make(map[string]bool, len(docs[i]))
		for _, term := range docs[i] {
			if !seen[term] {
				seen[term] = true
				df[term]++
			}
		}
	}

	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	vocab := make(map[string]int, len(terms))
	idf := make([]float64, len(terms))
	n := float64(len(corpus))
	for col, term := range terms {
		vocab[term] = col
		idf[col] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}

	idx := &TextIndex{
		analyzer: a,
		ids:      corpus.IDs(),
		terms:    terms,
		vocab:    vocab,
		idf:      idf,
	}
	idx.rows = make([]sparseVec, len(docs))
	for i, doc := range docs {
		idx.rows[i] = idx.weigh(doc)
	}
	return idx
}

// weigh turns tokens into an L2-normalized TF-IDF vector.
// Out-of-vocabulary tokens are ignored; no known token gives the zero vector.
func (t *TextIndex) weigh(tokens []string) sparseVec {
	counts := make(map[int]float64)
	for _, tok := range tokens {
		if col, ok := t.vocab[tok]; ok {
			counts[col]++
		}
	}

	v := sparseVec{cols: make([]int, 0, len(counts))}
	for col := range counts {
		v.cols = append(v.cols, col)
	}
	sort.Ints(v.cols)

	v.vals = make([]float64, len(v.cols))
	var norm float64
	for i, col := range v.cols {
		w := counts[col] * t.idf[col]
		v.vals[i] = w
		norm += w * w
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range v.vals {
			v.vals[i] /= norm
		}
	}
	return v
}

func (v sparseVec) dot(o sparseVec) float64 {
	var sum float64
	i, j := 0, 0
	for i < len(v.cols) && j < len(o.cols) {
		switch {
		case v.cols[i] == o.cols[j]:
			sum += v.vals[i] * o.vals[j]
			i++
			j++
		case v.cols[i] < o.cols[j]:
			i++
		default:
			j++
		}
	}
	return sum
}

func (t *TextIndex) built() bool { return t != nil && t.vocab != nil }

// Search lower-cases query, projects it into the fitted vocabulary and returns
// the best min(topK, N) corpus items, score descending, ties by corpus order.
// A query with no known terms scores every item 0.
func (t *TextIndex) Search(query string, topK int) (storage.SearchResults, error) {
	if !t.built() {
		return nil, ErrVocabularyMismatch
	}
	q := t.weigh(t.analyzer.terms(query))

	scores := make([]float64, len(t.rows))
	for i, row := range t.rows {
		scores[i] = q.dot(row)
	}
	return topResults(scores, func(i int) string { return t.ids[i] }, topK), nil
}

// Len returns the number of corpus items.
func (t *TextIndex) Len() int {
	if t == nil {
		return 0
	}
	return len(t.ids)
}

// Vocabulary returns the sorted vocabulary.
func (t *TextIndex) Vocabulary() []string {
	if !t.built() {
		return nil
	}
	return append([]string(nil), t.terms...)
}

// UnknownTerms returns the query terms that are not in the vocabulary.
func (t *TextIndex) UnknownTerms(query string) ([]string, error) {
	if !t.built() {
		return nil, ErrVocabularyMismatch
	}
	var unknown []string
	for _, term := range t.analyzer.terms(query) {
		if _, ok := t.vocab[term]; !ok {
			unknown = append(unknown, term)
		}
	}
	return unknown, nil
}

// Suggest returns up to n vocabulary terms that fuzzily match term, best first.
func (t *TextIndex) Suggest(term string, n int) []string {
	if !t.built() || n <= 0 {
		return nil
	}
	matches := fuzzy.Find(strings.ToLower(term), t.terms)
	out := make([]string, 0, min(n, len(matches)))
	for _, m := range matches {
		if len(out) == n {
			break
		}
		out = append(out, m.Str)
	}
	return out
}
