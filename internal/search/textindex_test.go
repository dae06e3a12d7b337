package search

import (
	"testing"

	"github.com/jankowtf/raysearch/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func xrayCorpus() storage.Corpus {
	return storage.Corpus{
		{ID: "img0.png", Category: "chest fracture"},
		{ID: "img1.png", Category: "dental xray"},
		{ID: "img2.png", Category: "chest xray"},
	}
}

func TestTextIndexSearch(t *testing.T) {
	idx := BuildTextIndex(xrayCorpus())

	results, err := idx.Search("chest", 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// chest/xray rows share the same two weights, so img2 beats img0
	// whose "fracture" term carries more weight than "chest".
	assert.Equal(t, []string{"img2.png", "img0.png", "img1.png"}, results.IDs())
	assert.InDelta(t, 0.7071, results[0].Score, 1e-3)
	assert.InDelta(t, 0.6053, results[1].Score, 1e-3)
	assert.Equal(t, 0.0, results[2].Score)
}

func TestTextIndexCaseInsensitive(t *testing.T) {
	idx := BuildTextIndex(storage.Corpus{
		{ID: "a", Category: "Chest Fracture"},
		{ID: "b", Category: "Spine"},
	})

	upper, err := idx.Search("CHEST", 2)
	require.NoError(t, err)
	lower, err := idx.Search("chest", 2)
	require.NoError(t, err)

	assert.Equal(t, lower, upper)
	assert.Equal(t, "a", upper[0].ID)
	assert.Greater(t, upper[0].Score, 0.0)
}

func TestTextIndexExactMatchScoresOne(t *testing.T) {
	idx := BuildTextIndex(xrayCorpus())

	results, err := idx.Search("dental xray", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "img1.png", results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
}

func TestTextIndexUnknownAndEmptyQuery(t *testing.T) {
	idx := BuildTextIndex(xrayCorpus())

	for _, q := range []string{"", "   ", "knee", "x"} {
		results, err := idx.Search(q, 3)
		require.NoError(t, err, "query %q", q)
		assert.Equal(t, []string{"img0.png", "img1.png", "img2.png"}, results.IDs(), "query %q", q)
		for _, r := range results {
			assert.Equal(t, 0.0, r.Score)
		}
	}
}

func TestTextIndexTopK(t *testing.T) {
	idx := BuildTextIndex(xrayCorpus())

	results, err := idx.Search("xray", 0)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = idx.Search("xray", 10)
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Equal(t, []string{"img2.png", "img1.png", "img0.png"}, results.IDs())
}

func TestTextIndexVocabulary(t *testing.T) {
	idx := BuildTextIndex(xrayCorpus())
	assert.Equal(t, []string{"chest", "dental", "fracture", "xray"}, idx.Vocabulary())
	assert.Equal(t, 3, idx.Len())

	unknown, err := idx.UnknownTerms("Chest knee")
	require.NoError(t, err)
	assert.Equal(t, []string{"knee"}, unknown)
}

func TestTextIndexSuggest(t *testing.T) {
	idx := BuildTextIndex(xrayCorpus())

	got := idx.Suggest("frctr", 3)
	require.NotEmpty(t, got)
	assert.Equal(t, "fracture", got[0])
	assert.Nil(t, idx.Suggest("chest", 0))
}

func TestTextIndexNotBuilt(t *testing.T) {
	var nilIdx *TextIndex
	_, err := nilIdx.Search("chest", 1)
	assert.ErrorIs(t, err, ErrVocabularyMismatch)

	_, err = (&TextIndex{}).Search("chest", 1)
	assert.ErrorIs(t, err, ErrVocabularyMismatch)

	_, err = (&TextIndex{}).UnknownTerms("chest")
	assert.ErrorIs(t, err, ErrVocabularyMismatch)
	assert.Equal(t, 0, nilIdx.Len())
}

func TestTextIndexEmptyCorpus(t *testing.T) {
	idx := BuildTextIndex(nil)
	results, err := idx.Search("chest", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestAnalyzerTerms(t *testing.T) {
	a := newAnalyzer()
	assert.Equal(t, []string{"chest", "fracture", "chest"}, a.terms("Chest, FRACTURE (chest)"))
	assert.Empty(t, a.terms("a b 1"))
}
