package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jankowtf/raysearch/internal/storage"
)

func results(pairs ...any) storage.SearchResults {
	out := make(storage.SearchResults, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, storage.SearchResult{ID: pairs[i].(string), Score: pairs[i+1].(float64)})
	}
	return out
}

func TestRefine(t *testing.T) {
	tests := []struct {
		name  string
		in    storage.SearchResults
		min   float64
		mode  SortMode
		limit int
		want  []string
	}{
		{
			name:  "sort by identifier",
			in:    results("b", 0.9, "a", 0.5),
			mode:  SortByID,
			limit: 10,
			want:  []string{"a", "b"},
		},
		{
			name:  "threshold keeps equal score",
			in:    results("a", 0.9, "b", 0.25, "c", 0.2499),
			min:   0.25,
			mode:  SortByScore,
			limit: 10,
			want:  []string{"a", "b"},
		},
		{
			name:  "threshold of one without exact match",
			in:    results("a", 0.99, "b", 0.5),
			min:   1.0,
			mode:  SortByScore,
			limit: 10,
			want:  []string{},
		},
		{
			name:  "score ties by identifier",
			in:    results("d", 0.5, "b", 0.7, "a", 0.5, "c", 0.7),
			mode:  SortByScore,
			limit: 10,
			want:  []string{"b", "c", "a", "d"},
		},
		{
			name:  "truncate after filter and sort",
			in:    results("z", 0.9, "y", 0.1, "a", 0.4, "m", 0.6),
			min:   0.3,
			mode:  SortByID,
			limit: 2,
			want:  []string{"a", "m"},
		},
		{
			name:  "zero limit",
			in:    results("a", 0.9),
			mode:  SortByScore,
			limit: 0,
			want:  []string{},
		},
		{
			name:  "negative limit",
			in:    results("a", 0.9),
			mode:  SortByScore,
			limit: -3,
			want:  []string{},
		},
		{
			name:  "empty input",
			mode:  SortByScore,
			limit: 6,
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Refine(tt.in, tt.min, tt.mode, tt.limit)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.IDs())
		})
	}
}

func TestRefineTextThreshold(t *testing.T) {
	// Scores of the query "chest" over "chest fracture", "dental xray", "chest xray".
	in := results("img2", 0.7071, "img0", 0.6053, "img1", 0.0)
	got := Refine(in, 0.01, SortByScore, 6)
	assert.Equal(t, []string{"img2", "img0"}, got.IDs())
}

func TestRefineDoesNotMutateInput(t *testing.T) {
	in := results("b", 0.9, "a", 0.5, "c", 0.1)
	before := in.Clone()

	Refine(in, 0.3, SortByID, 1)
	assert.Equal(t, before, in)
}

func TestRefineIdempotent(t *testing.T) {
	in := results("b", 0.9, "a", 0.5, "c", 0.7, "d", 0.2)
	once := Refine(in, 0.3, SortByScore, 3)
	twice := Refine(once, 0.3, SortByScore, 3)
	assert.Equal(t, once, twice)
}

func TestParseSortMode(t *testing.T) {
	tests := []struct {
		in      string
		want    SortMode
		wantErr bool
	}{
		{"", SortByScore, false},
		{"score", SortByScore, false},
		{"SCORE", SortByScore, false},
		{"name", SortByID, false},
		{" id ", SortByID, false},
		{"date", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSortMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
