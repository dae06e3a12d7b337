package storage

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/golang/snappy"
	"github.com/google/renameio"
)

// recordMagic identifies a persisted embedding record, version 1.
var recordMagic = [4]byte{'R', 'S', 'X', '1'}

const (
	// maxStringLen bounds identifier and header strings read from disk.
	maxStringLen = 1 << 16
	// growChunk bounds up-front allocation so a corrupt header cannot force a huge one.
	growChunk = 1 << 16
)

var errMalformed = errors.New("malformed embedding record")

// Meta describes how the vectors in a record were produced.
type Meta struct {
	Model     string `json:"model"`
	Transform string `json:"transform"`
}

// Record is the persisted form of an embedding store: N identifiers and an
// N×D row-major float32 matrix with positional correspondence.
type Record struct {
	Meta Meta
	IDs  []string
	Dim  int
	Data []float32
}

// WriteRecord encodes rec to w in the little-endian record layout.
// The caller is responsible for compression framing.
func WriteRecord(w io.Writer, rec *Record) error {
	if rec.Dim <= 0 {
		return fmt.Errorf("writing record: dimension must be positive, got %d", rec.Dim)
	}
	if len(rec.Data) != len(rec.IDs)*rec.Dim {
		return fmt.Errorf("writing record: %d values for %d ids of dimension %d",
			len(rec.Data), len(rec.IDs), rec.Dim)
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.Write(recordMagic[:]); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}
	if err := writeString(bw, rec.Meta.Model); err != nil {
		return err
	}
	if err := writeString(bw, rec.Meta.Transform); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(rec.IDs))); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(rec.Dim)); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}
	for _, id := range rec.IDs {
		if err := writeString(bw, id); err != nil {
			return err
		}
	}

	buf := make([]byte, 4)
	for _, v := range rec.Data {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
		if _, err := bw.Write(buf); err != nil {
			return fmt.Errorf("writing record: %w", err)
		}
	}
	return bw.Flush()
}

// ReadRecord decodes a record written by WriteRecord. Short, oversized or
// trailing data is reported as a malformed record.
func ReadRecord(r io.Reader) (*Record, error) {
	br := bufio.NewReader(r)

	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return nil, fmt.Errorf("%w: reading magic: %v", errMalformed, err)
	}
	if magic != recordMagic {
		return nil, fmt.Errorf("%w: bad magic %q", errMalformed, magic[:])
	}

	rec := &Record{}
	var err error
	if rec.Meta.Model, err = readString(br); err != nil {
		return nil, fmt.Errorf("%w: model: %v", errMalformed, err)
	}
	if rec.Meta.Transform, err = readString(br); err != nil {
		return nil, fmt.Errorf("%w: transform: %v", errMalformed, err)
	}

	var n, d uint32
	if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("%w: row count: %v", errMalformed, err)
	}
	if err := binary.Read(br, binary.LittleEndian, &d); err != nil {
		return nil, fmt.Errorf("%w: dimension: %v", errMalformed, err)
	}
	rec.Dim = int(d)

	rec.IDs = make([]string, 0, min(int(n), growChunk))
	for i := uint32(0); i < n; i++ {
		id, err := readString(br)
		if err != nil {
			return nil, fmt.Errorf("%w: identifier %d: %v", errMalformed, i, err)
		}
		rec.IDs = append(rec.IDs, id)
	}

	total := uint64(n) * uint64(d)
	rec.Data = make([]float32, 0, min(total, growChunk))
	buf := make([]byte, 4)
	for i := uint64(0); i < total; i++ {
		if _, err := io.ReadFull(br, buf); err != nil {
			return nil, fmt.Errorf("%w: matrix truncated after %d of %d values", errMalformed, i, total)
		}
		rec.Data = append(rec.Data, math.Float32frombits(binary.LittleEndian.Uint32(buf)))
	}

	if _, err := br.ReadByte(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after matrix", errMalformed)
	}
	return rec, nil
}

// WriteRecordFile atomically replaces path with the snappy-framed record.
func WriteRecordFile(path string, rec *Record) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating store directory: %w", err)
	}

	pf, err := renameio.TempFile(filepath.Dir(path), path)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer pf.Cleanup()

	sw := snappy.NewBufferedWriter(pf)
	if err := WriteRecord(sw, rec); err != nil {
		return err
	}
	if err := sw.Close(); err != nil {
		return fmt.Errorf("flushing record: %w", err)
	}
	return pf.CloseAtomicallyReplace()
}

// ReadRecordFile reads a snappy-framed record from path.
func ReadRecordFile(path string) (*Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadRecord(snappy.NewReader(f))
}

func writeString(w io.Writer, s string) error {
	if len(s) > maxStringLen {
		return fmt.Errorf("writing record: string of %d bytes exceeds limit", len(s))
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	if n > maxStringLen {
		return "", fmt.Errorf("string length %d exceeds limit", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
