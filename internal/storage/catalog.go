package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	columnImageName = "image_name"
	columnCategory  = "category"
)

// ErrMissingColumn is returned when the metadata header lacks a required column.
var ErrMissingColumn = errors.New("missing required column")

// Catalog is the ordered image metadata loaded from CSV.
type Catalog struct {
	items []Item
	pos   map[string]int
}

// LoadCatalog reads the metadata CSV at path.
func LoadCatalog(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening metadata: %w", err)
	}
	defer f.Close()

	c, err := ReadCatalog(f)
	if err != nil {
		return nil, fmt.Errorf("reading metadata %s: %w", path, err)
	}
	return c, nil
}

// ReadCatalog parses metadata CSV. The header must name image_name and
// category (case-insensitive); further columns are kept in Item.Extra.
func ReadCatalog(r io.Reader) (*Catalog, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty file", ErrMissingColumn)
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	nameCol, catCol := -1, -1
	names := make([]string, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		names[i] = h
		switch h {
		case columnImageName:
			nameCol = i
		case columnCategory:
			catCol = i
		}
	}
	if nameCol < 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, columnImageName)
	}
	if catCol < 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, columnCategory)
	}

	c := &Catalog{pos: make(map[string]int)}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row: %w", err)
		}
		if len(rec) <= max(nameCol, catCol) {
			return nil, fmt.Errorf("line %d: expected at least %d fields, got %d", line, max(nameCol, catCol)+1, len(rec))
		}

		name := strings.TrimSpace(rec[nameCol])
		if name == "" {
			return nil, fmt.Errorf("line %d: empty %s", line, columnImageName)
		}
		if _, dup := c.pos[name]; dup {
			return nil, fmt.Errorf("line %d: %w: %s", line, ErrDuplicateID, name)
		}

		item := Item{ImageName: name, Category: strings.TrimSpace(rec[catCol])}
		for i, v := range rec {
			if i == nameCol || i == catCol || i >= len(names) || names[i] == "" {
				continue
			}
			if item.Extra == nil {
				item.Extra = make(map[string]string)
			}
			item.Extra[names[i]] = v
		}

		c.pos[name] = len(c.items)
		c.items = append(c.items, item)
	}
	return c, nil
}

// Len returns the number of items.
func (c *Catalog) Len() int { return len(c.items) }

// Items returns a copy of the items in file order.
func (c *Catalog) Items() []Item { return append([]Item(nil), c.items...) }

// Get returns the item named id.
func (c *Catalog) Get(id string) (Item, bool) {
	i, ok := c.pos[id]
	if !ok {
		return Item{}, false
	}
	return c.items[i], true
}

// Corpus returns the category corpus in file order with lower-cased labels.
func (c *Catalog) Corpus() Corpus {
	corpus := make(Corpus, len(c.items))
	for i, it := range c.items {
		corpus[i] = CorpusEntry{ID: it.ImageName, Category: strings.ToLower(it.Category)}
	}
	return corpus
}
