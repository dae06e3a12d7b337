// Package query answers text and image queries against the loaded collection
// and applies the display policy to ranked results.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jankowtf/raysearch/internal/embeddings"
	"github.com/jankowtf/raysearch/internal/search"
	"github.com/jankowtf/raysearch/internal/storage"
)

// ErrEmptyQuery is returned for a blank text query or an empty request.
var ErrEmptyQuery = errors.New("empty query")

// ErrTransformMismatch is returned when the store was built with a different
// extractor transform than the one configured for queries.
var ErrTransformMismatch = errors.New("store transform does not match extractor")

// ErrNotConfigured is returned when a search needs a component the engine
// was created without.
var ErrNotConfigured = errors.New("search mode not configured")

// Policy holds the ranking and display defaults for one kind of query.
type Policy struct {
	TopK          int
	MinSimilarity float64
	Sort          SortMode
	Limit         int
}

// DefaultTextPolicy ranks six items and shows them all, including zero scores.
func DefaultTextPolicy() Policy {
	return Policy{TopK: 6, MinSimilarity: 0, Sort: SortByScore, Limit: 6}
}

// DefaultImagePolicy ranks ten candidates and shows up to six of those
// scoring at least 0.25.
func DefaultImagePolicy() Policy {
	return Policy{TopK: 10, MinSimilarity: 0.25, Sort: SortByScore, Limit: 6}
}

// EngineConfig wires the engine's components. Store and Extractor are needed
// for image queries, Text for text queries; either pair may be nil.
type EngineConfig struct {
	Store     *storage.EmbeddingStore
	Text      *search.TextIndex
	Extractor embeddings.Extractor

	// Timeout bounds a single extractor call. Zero means no extra bound.
	Timeout time.Duration

	TextPolicy  Policy
	ImagePolicy Policy

	Logger *slog.Logger
}

// Engine runs queries. It holds only immutable indexes and is safe for
// concurrent use as long as the extractor is.
type Engine struct {
	store     *storage.EmbeddingStore
	text      *search.TextIndex
	extractor embeddings.Extractor
	timeout   time.Duration
	textPol   Policy
	imagePol  Policy
	logger    *slog.Logger
}

// NewEngine creates an engine from cfg. Zero policies fall back to the
// defaults.
func NewEngine(cfg EngineConfig) *Engine {
	e := &Engine{
		store:     cfg.Store,
		text:      cfg.Text,
		extractor: cfg.Extractor,
		timeout:   cfg.Timeout,
		textPol:   cfg.TextPolicy,
		imagePol:  cfg.ImagePolicy,
		logger:    cfg.Logger,
	}
	if e.textPol == (Policy{}) {
		e.textPol = DefaultTextPolicy()
	}
	if e.imagePol == (Policy{}) {
		e.imagePol = DefaultImagePolicy()
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// TextIndex returns the engine's text index, or nil.
func (e *Engine) TextIndex() *search.TextIndex { return e.text }

// TextSearch ranks the collection by TF-IDF similarity to text.
func (e *Engine) TextSearch(ctx context.Context, text string, topK int) (storage.SearchResults, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyQuery
	}
	if e.text == nil {
		return nil, fmt.Errorf("text search: %w", ErrNotConfigured)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results, err := e.text.Search(text, topK)
	if err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}
	e.logger.Debug("text search", "query", text, "top_k", topK, "results", len(results))
	return results, nil
}

// ImageSearch embeds image and ranks the store by cosine similarity to it.
func (e *Engine) ImageSearch(ctx context.Context, image []byte, topK int) (storage.SearchResults, error) {
	if len(image) == 0 {
		return nil, ErrEmptyQuery
	}
	if e.store == nil || e.extractor == nil {
		return nil, fmt.Errorf("image search: %w", ErrNotConfigured)
	}
	if err := e.checkTransform(); err != nil {
		return nil, err
	}

	extractCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		extractCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	vec, err := e.extractor.Embed(extractCtx, image)
	if err != nil {
		return nil, fmt.Errorf("extracting query features: %w", err)
	}

	results, err := search.Rank(vec, e.store, topK)
	if err != nil {
		return nil, fmt.Errorf("image search: %w", err)
	}
	e.logger.Debug("image search", "bytes", len(image), "top_k", topK,
		"results", len(results), "elapsed", time.Since(start))
	return results, nil
}

// checkTransform refuses stores recorded with another preprocessing transform.
// Stores without a recorded transform are accepted.
func (e *Engine) checkTransform() error {
	stored := e.store.Transform()
	if stored == "" {
		return nil
	}
	if want := e.extractor.Fingerprint(); stored != want {
		return fmt.Errorf("%w: store has %q, extractor has %q", ErrTransformMismatch, stored, want)
	}
	return nil
}

// Request is a query plus optional overrides of the policy for its kind.
// Exactly one of Text and Image must be set.
type Request struct {
	Text  string
	Image []byte

	TopK          int      // 0 uses the policy
	MinSimilarity *float64 // nil uses the policy
	Sort          SortMode // "" uses the policy
	Limit         int      // 0 uses the policy
}

// Search runs req and refines the ranked results with the effective policy.
func (e *Engine) Search(ctx context.Context, req Request) (storage.SearchResults, error) {
	hasText := strings.TrimSpace(req.Text) != ""
	hasImage := len(req.Image) > 0
	switch {
	case hasText && hasImage:
		return nil, errors.New("request has both text and image")
	case !hasText && !hasImage:
		return nil, ErrEmptyQuery
	}

	var (
		pol     Policy
		results storage.SearchResults
		err     error
	)
	if hasText {
		pol = req.apply(e.textPol)
		results, err = e.TextSearch(ctx, req.Text, pol.TopK)
	} else {
		pol = req.apply(e.imagePol)
		results, err = e.ImageSearch(ctx, req.Image, pol.TopK)
	}
	if err != nil {
		return nil, err
	}
	return Refine(results, pol.MinSimilarity, pol.Sort, pol.Limit), nil
}

func (r Request) apply(p Policy) Policy {
	if r.TopK != 0 {
		p.TopK = r.TopK
	}
	if r.MinSimilarity != nil {
		p.MinSimilarity = *r.MinSimilarity
	}
	if r.Sort != "" {
		p.Sort = r.Sort
	}
	if r.Limit != 0 {
		p.Limit = r.Limit
	}
	return p
}
