package storage

import (
	"errors"
	"fmt"
	"os"

	"github.com/jankowtf/raysearch/pkg/vecmath"
)

// ErrDuplicateID is returned when an identifier appears more than once.
var ErrDuplicateID = errors.New("duplicate identifier")

// StoreLoadError reports a persisted store that is missing or unusable.
// It is fatal for the caller: the store must be rebuilt.
type StoreLoadError struct {
	Path   string
	Reason string
	Err    error
}

func (e *StoreLoadError) Error() string {
	msg := "loading embedding store"
	if e.Path != "" {
		msg += " " + e.Path
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StoreLoadError) Unwrap() error { return e.Err }

// EmbeddingStore is an immutable N×D matrix of unit-length vectors with a
// parallel list of identifiers. Row i belongs to IDs()[i]. It is safe for
// concurrent readers; nothing mutates it after construction.
type EmbeddingStore struct {
	meta Meta
	ids  []string
	pos  map[string]int
	dim  int
	data []float32
	rows [][]float32
}

// LoadStore reads and normalizes the persisted store at path.
// Every failure is a *StoreLoadError.
func LoadStore(path string) (*EmbeddingStore, error) {
	rec, err := ReadRecordFile(path)
	if err != nil {
		reason := "malformed record"
		if errors.Is(err, os.ErrNotExist) {
			reason = "file not found"
		}
		return nil, &StoreLoadError{Path: path, Reason: reason, Err: err}
	}

	s, err := fromRecord(rec)
	if err != nil {
		var sle *StoreLoadError
		if errors.As(err, &sle) {
			sle.Path = path
		}
		return nil, err
	}
	return s, nil
}

// NewStore builds a store from in-memory vectors. The vectors are copied and
// normalized; they must all share one positive dimension.
func NewStore(ids []string, vectors [][]float32, meta Meta) (*EmbeddingStore, error) {
	if len(ids) != len(vectors) {
		return nil, &StoreLoadError{Reason: fmt.Sprintf("%d identifiers for %d vectors", len(ids), len(vectors))}
	}
	rec := &Record{Meta: meta, IDs: append([]string(nil), ids...)}
	if len(vectors) > 0 {
		rec.Dim = len(vectors[0])
	}
	rec.Data = make([]float32, 0, len(vectors)*rec.Dim)
	for i, v := range vectors {
		if len(v) != rec.Dim {
			return nil, &StoreLoadError{Reason: fmt.Sprintf("vector %d has dimension %d, want %d", i, len(v), rec.Dim)}
		}
		rec.Data = append(rec.Data, v...)
	}
	return fromRecord(rec)
}

// WriteStore persists vectors in the record format at path.
// The vectors are written as given; normalization happens on load.
func WriteStore(path string, ids []string, vectors [][]float32, meta Meta) error {
	rec := &Record{Meta: meta, IDs: ids}
	if len(vectors) > 0 {
		rec.Dim = len(vectors[0])
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("writing store: %d identifiers for %d vectors", len(ids), len(vectors))
	}
	rec.Data = make([]float32, 0, len(vectors)*rec.Dim)
	for i, v := range vectors {
		if len(v) != rec.Dim {
			return fmt.Errorf("writing store: vector %d has dimension %d, want %d", i, len(v), rec.Dim)
		}
		rec.Data = append(rec.Data, v...)
	}
	return WriteRecordFile(path, rec)
}

// fromRecord validates rec and takes ownership of its slices.
func fromRecord(rec *Record) (*EmbeddingStore, error) {
	if rec.Dim <= 0 {
		return nil, &StoreLoadError{Reason: fmt.Sprintf("invalid dimension %d", rec.Dim)}
	}
	if len(rec.IDs) == 0 {
		return nil, &StoreLoadError{Reason: "store has no rows"}
	}
	if len(rec.Data) != len(rec.IDs)*rec.Dim {
		return nil, &StoreLoadError{Reason: fmt.Sprintf("matrix has %d values, want %d×%d", len(rec.Data), len(rec.IDs), rec.Dim)}
	}

	pos := make(map[string]int, len(rec.IDs))
	for i, id := range rec.IDs {
		if _, dup := pos[id]; dup {
			return nil, &StoreLoadError{Reason: "identifier " + id, Err: ErrDuplicateID}
		}
		pos[id] = i
	}

	rows := make([][]float32, len(rec.IDs))
	for i := range rows {
		row := rec.Data[i*rec.Dim : (i+1)*rec.Dim : (i+1)*rec.Dim]
		if err := vecmath.NormalizeInPlace(row); err != nil {
			return nil, &StoreLoadError{
				Reason: fmt.Sprintf("row %d (%s)", i, rec.IDs[i]),
				Err:    err,
			}
		}
		rows[i] = row
	}

	return &EmbeddingStore{
		meta: rec.Meta,
		ids:  rec.IDs,
		pos:  pos,
		dim:  rec.Dim,
		data: rec.Data,
		rows: rows,
	}, nil
}

// Len returns N, the number of stored vectors.
func (s *EmbeddingStore) Len() int { return len(s.ids) }

// Dim returns D, the vector dimension.
func (s *EmbeddingStore) Dim() int { return s.dim }

// Meta returns the model and transform the vectors were built with.
func (s *EmbeddingStore) Meta() Meta { return s.meta }

// Model returns the name of the network the embeddings were extracted with.
func (s *EmbeddingStore) Model() string { return s.meta.Model }

// Transform returns the preprocessing fingerprint recorded at build time.
func (s *EmbeddingStore) Transform() string { return s.meta.Transform }

// Matrix returns the N rows. The rows alias store memory and must not be modified.
func (s *EmbeddingStore) Matrix() [][]float32 { return s.rows }

// Row returns row i. It aliases store memory and must not be modified.
func (s *EmbeddingStore) Row(i int) []float32 { return s.rows[i] }

// IDs returns a copy of the identifiers in row order.
func (s *EmbeddingStore) IDs() []string { return append([]string(nil), s.ids...) }

// ID returns the identifier of row i.
func (s *EmbeddingStore) ID(i int) string { return s.ids[i] }

// Index returns the row of id, or false if the store does not hold it.
func (s *EmbeddingStore) Index(id string) (int, bool) {
	i, ok := s.pos[id]
	return i, ok
}
