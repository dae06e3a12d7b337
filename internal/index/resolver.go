package index

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DefaultExtensions are the image formats of the collection.
var DefaultExtensions = []string{".png", ".jpg", ".jpeg"}

// skipDirs are never descended into.
var skipDirs = map[string]bool{".git": true, "node_modules": true, "__pycache__": true}

// Resolver maps catalog identifiers (file names) to paths under a dataset
// directory. The directory is walked once at construction.
type Resolver struct {
	root   string
	extMap map[string]bool
	paths  map[string]string
}

// NewResolver walks root and records every file whose extension is in exts.
// When a name occurs in several directories the first one in lexical walk
// order wins.
func NewResolver(ctx context.Context, root string, exts []string) (*Resolver, error) {
	root = expandPath(root)
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("dataset directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("dataset directory %s is not a directory", root)
	}

	r := &Resolver{
		root:   root,
		extMap: extensionSet(exts),
		paths:  make(map[string]string),
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Skip inaccessible entries
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if d.IsDir() {
			if path != root && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !r.matchesExtension(path) {
			return nil
		}
		if _, seen := r.paths[d.Name()]; !seen {
			r.paths[d.Name()] = path
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Lookup returns the path of the file named id.
func (r *Resolver) Lookup(id string) (string, bool) {
	p, ok := r.paths[id]
	return p, ok
}

// Len returns the number of distinct file names found.
func (r *Resolver) Len() int { return len(r.paths) }

// Root returns the walked directory.
func (r *Resolver) Root() string { return r.root }

// Matches reports whether path has one of the resolver's extensions.
func (r *Resolver) Matches(path string) bool { return r.matchesExtension(path) }

func (r *Resolver) matchesExtension(path string) bool {
	if len(r.extMap) == 0 {
		return true // No filter means all files
	}
	return r.extMap[lowerExt(path)]
}

func lowerExt(path string) string { return strings.ToLower(filepath.Ext(path)) }

// extensionSet normalizes extensions to lowercase with a leading dot.
func extensionSet(exts []string) map[string]bool {
	set := make(map[string]bool, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = true
	}
	return set
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
