// Package index builds an in-memory map of the local ROM collection so that
// presence checks against thousands of catalog titles do not re-walk the
// filesystem per title.
package index

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/Another0Noob/vault-downloader/internal/romname"
)

// ROM file extensions eligible for indexing.
var romExtensions = map[string]struct{}{
	".nds": {}, ".sav": {}, ".n64": {}, ".z64": {}, ".v64": {},
	".iso": {}, ".bin": {}, ".cue": {}, ".gba": {}, ".gbc": {},
	".gb": {}, ".smc": {}, ".sfc": {}, ".nes": {}, ".gcm": {},
	".wbfs": {}, ".ciso": {}, ".rvz": {},
}

var archiveExtensions = map[string]struct{}{
	".zip": {}, ".7z": {},
}

// DefaultMaxEntries bounds the walk on very large collections.
const DefaultMaxEntries = 20000

// Options controls which entries an index build considers.
type Options struct {
	// MaxEntries caps the number of indexed files; 0 means DefaultMaxEntries.
	// When the cap is hit the walk stops early and the index is a best-effort
	// sample, not a complete view.
	MaxEntries int
	// KeepArchives marks .zip/.7z files as index-eligible. Set when the run
	// retains archives instead of extracting them, so an archived title
	// counts as present.
	KeepArchives bool
}

// Index maps a normalized name key to every filesystem path sharing that key.
// Keys preserve insertion order. The index is built once per run and owned by
// that run; it goes stale if files change on disk afterwards.
type Index struct {
	keys  []string
	paths map[string][]string
}

// Keys returns the normalized keys in insertion order.
func (ix *Index) Keys() []string { return ix.keys }

// Paths returns every path recorded under key.
func (ix *Index) Paths(key string) []string { return ix.paths[key] }

// Len reports the number of indexed filesystem entries.
func (ix *Index) Len() int {
	n := 0
	for _, p := range ix.paths {
		n += len(p)
	}
	return n
}

// New returns an empty index. Most callers want Build; New exists for
// incremental additions (e.g. files created mid-run).
func New() *Index {
	return &Index{paths: make(map[string][]string)}
}

// Add indexes path under the normalized key of name. Names that normalize to
// nothing (pure tag soup) are not indexable and are dropped.
func (ix *Index) Add(name, path string) {
	key := romname.Key(name)
	if key == "" {
		return
	}
	if _, ok := ix.paths[key]; !ok {
		ix.keys = append(ix.keys, key)
	}
	ix.paths[key] = append(ix.paths[key], path)
}

// Eligible reports whether a file extension belongs to the configured ROM
// set, or to the archive set when archives are being kept.
func Eligible(ext string, keepArchives bool) bool {
	ext = strings.ToLower(ext)
	if _, ok := romExtensions[ext]; ok {
		return true
	}
	if keepArchives {
		_, ok := archiveExtensions[ext]
		return ok
	}
	return false
}

// Build walks root recursively and indexes every eligible file plus every
// directory (per-title subfolders are a common collection layout). Hitting
// the entry cap stops the walk and returns the partial index. Any other walk
// error discards the whole index; callers must fall back to live per-item
// directory scans rather than trust a partial view of unknown shape.
func Build(root string, opts Options) (*Index, error) {
	maxEntries := opts.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	ix := New()
	total := 0

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path == root {
			return nil
		}
		if d.IsDir() {
			ix.Add(d.Name(), path)
			return nil
		}
		if !Eligible(filepath.Ext(d.Name()), opts.KeepArchives) {
			return nil
		}
		ix.Add(d.Name(), path)
		total++
		if total >= maxEntries {
			// Cap reached: stop early, keep what we have.
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ix, nil
}
