package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jankowtf/raysearch/internal/storage"
)

// fakeExtractor derives a vector from the file contents. Contents starting
// with "fail" produce an error and "zero" a zero vector.
type fakeExtractor struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeExtractor) Embed(ctx context.Context, image []byte) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	s := string(image)
	switch {
	case strings.HasPrefix(s, "fail"):
		return nil, errors.New("cannot decode")
	case strings.HasPrefix(s, "zero"):
		return []float32{0, 0, 0}, nil
	}
	return []float32{float32(len(s)), 1, 0}, nil
}

func (f *fakeExtractor) Dimensions() int     { return 3 }
func (f *fakeExtractor) Fingerprint() string { return "fake-transform" }
func (f *fakeExtractor) Close() error        { return nil }

// writeDataset lays out files under dir/images and writes dir/metadata.csv.
func writeDataset(t *testing.T, dir string, files map[string]string, catalog string) BuildConfig {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, "images", name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	catalogPath := filepath.Join(dir, "metadata.csv")
	require.NoError(t, os.WriteFile(catalogPath, []byte(catalog), 0644))

	return BuildConfig{
		CatalogPath: catalogPath,
		DatasetDir:  filepath.Join(dir, "images"),
		OutputPath:  filepath.Join(dir, "out", "embeddings.rsx"),
		Model:       "fake",
		Workers:     3,
	}
}

func TestBuilderBuild(t *testing.T) {
	dir := t.TempDir()
	cfg := writeDataset(t, dir, map[string]string{
		"chest/a.png":  "aaaa",
		"dental/b.png": "bb",
		"c.jpg":        "fail: corrupt",
		"d.png":        "zero",
		"notes.txt":    "ignored",
	}, "image_name,category\nc.jpg,spine\na.png,chest fracture\nmissing.png,knee\nb.png,dental xray\nd.png,hand\n")

	ext := &fakeExtractor{}
	b := NewBuilder(cfg, ext)
	var progress testProgressReporter
	b.SetProgressReporter(&progress)

	stats, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 5, stats.Total)
	assert.EqualValues(t, 2, stats.Embedded)
	assert.EqualValues(t, 3, stats.Skipped)

	assert.True(t, progress.started)
	assert.True(t, progress.completed)
	assert.Equal(t, 5, progress.total)
	assert.Len(t, progress.errors, 3)

	store, err := storage.LoadStore(cfg.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.png", "b.png"}, store.IDs(), "catalog order")
	assert.Equal(t, 3, store.Dim())
	assert.Equal(t, "fake", store.Model())
	assert.Equal(t, "fake-transform", store.Transform())
}

func TestBuilderNothingEmbedded(t *testing.T) {
	dir := t.TempDir()
	cfg := writeDataset(t, dir, map[string]string{
		"a.png": "fail",
	}, "image_name,category\na.png,chest\nb.png,knee\n")

	stats, err := NewBuilder(cfg, &fakeExtractor{}).Build(context.Background())
	assert.ErrorIs(t, err, ErrNothingEmbedded)
	assert.EqualValues(t, 2, stats.Skipped)

	_, statErr := os.Stat(cfg.OutputPath)
	assert.True(t, os.IsNotExist(statErr), "no store should be written")
}

func TestBuilderBadInputs(t *testing.T) {
	dir := t.TempDir()
	cfg := writeDataset(t, dir, map[string]string{"a.png": "aa"}, "name,label\na.png,chest\n")

	_, err := NewBuilder(cfg, &fakeExtractor{}).Build(context.Background())
	assert.ErrorIs(t, err, storage.ErrMissingColumn)

	cfg = writeDataset(t, t.TempDir(), nil, "image_name,category\na.png,chest\n")
	cfg.DatasetDir = filepath.Join(dir, "does-not-exist")
	_, err = NewBuilder(cfg, &fakeExtractor{}).Build(context.Background())
	assert.Error(t, err)
}

func TestBuilderCancellation(t *testing.T) {
	dir := t.TempDir()
	cfg := writeDataset(t, dir, map[string]string{"a.png": "aa"}, "image_name,category\na.png,chest\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewBuilder(cfg, &fakeExtractor{}).Build(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewBuilderDefaults(t *testing.T) {
	b := NewBuilder(BuildConfig{}, &fakeExtractor{})
	assert.Positive(t, b.Config().Workers)
	assert.Equal(t, DefaultExtensions, b.Config().Extensions)
}

// testProgressReporter tracks progress calls for testing.
type testProgressReporter struct {
	mu        sync.Mutex
	started   bool
	completed bool
	total     int
	current   int
	errors    []error
}

func (p *testProgressReporter) OnStart(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = true
	p.total = total
}

func (p *testProgressReporter) OnProgress(current, total int, id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if current > p.current {
		p.current = current
	}
}

func (p *testProgressReporter) OnComplete(embedded, skipped int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed = true
}

func (p *testProgressReporter) OnError(id string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errors = append(p.errors, err)
}
