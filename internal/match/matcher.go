// Package match decides whether a remote catalog title already has an
// equivalent file in the local collection.
package match

import (
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/Another0Noob/vault-downloader/internal/index"
	"github.com/Another0Noob/vault-downloader/internal/romname"
)

// DefaultThreshold is the fuzzy-ratio cutoff. Collections with many short or
// similar titles want a stricter value to avoid false positives.
const DefaultThreshold = 0.75

// Matcher finds local files for remote titles using a containment pass over
// the index keys followed by a fuzzy-ratio pass. When no index is available
// it degrades to a live listing of Root with the same two-pass logic.
type Matcher struct {
	// Threshold is the inclusive fuzzy-ratio cutoff; <= 0 means
	// DefaultThreshold.
	Threshold float64
	// Root is scanned directly when matching without an index.
	Root string
	// KeepArchives widens the fallback scan to archive extensions.
	KeepArchives bool
}

func (m *Matcher) threshold() float64 {
	if m.Threshold <= 0 {
		return DefaultThreshold
	}
	return m.Threshold
}

// Ratio is the similarity of two normalized strings in [0, 1], derived from
// their Levenshtein distance over the combined length. A pair at exactly the
// configured threshold counts as a match.
func Ratio(a, b string) float64 {
	la := utf8.RuneCountInString(a)
	lb := utf8.RuneCountInString(b)
	if la+lb == 0 {
		return 1
	}
	d := fuzzy.LevenshteinDistance(a, b)
	return 1 - float64(d)/float64(la+lb)
}

// FirstMatch returns the first local path matching title, preferring
// containment matches over fuzzy ones. The boolean is false when nothing
// matches; an absent local file is an expected outcome, not an error.
func (m *Matcher) FirstMatch(title string, ix *index.Index) (string, bool) {
	target := romname.Key(title)
	if target == "" {
		// An empty target is a substring of everything; matching it would
		// flag the whole collection as present.
		return "", false
	}

	if ix == nil {
		paths := m.scanDir(target, true)
		if len(paths) == 0 {
			return "", false
		}
		return paths[0], true
	}

	for _, key := range ix.Keys() {
		if contains(target, key) {
			return ix.Paths(key)[0], true
		}
	}
	thr := m.threshold()
	for _, key := range ix.Keys() {
		if Ratio(target, key) >= thr {
			return ix.Paths(key)[0], true
		}
	}
	return "", false
}

// AllMatches returns every local path matching title, containment matches
// first, fuzzy matches appended after.
func (m *Matcher) AllMatches(title string, ix *index.Index) []string {
	target := romname.Key(title)
	if target == "" {
		return nil
	}

	if ix == nil {
		return m.scanDir(target, false)
	}

	var matches []string
	matched := make(map[string]struct{})
	for _, key := range ix.Keys() {
		if contains(target, key) {
			matches = append(matches, ix.Paths(key)...)
			matched[key] = struct{}{}
		}
	}
	thr := m.threshold()
	for _, key := range ix.Keys() {
		if _, ok := matched[key]; ok {
			continue
		}
		if Ratio(target, key) >= thr {
			matches = append(matches, ix.Paths(key)...)
		}
	}
	return matches
}

func contains(target, key string) bool {
	if key == "" {
		return false
	}
	return strings.Contains(key, target) || strings.Contains(target, key)
}

// scanDir is the index-less fallback: a flat listing of Root filtered to
// eligible files, with the same containment-then-fuzzy ordering. firstOnly
// stops at the first containment hit.
func (m *Matcher) scanDir(target string, firstOnly bool) []string {
	entries, err := os.ReadDir(m.Root)
	if err != nil {
		return nil
	}

	type candidate struct {
		path string
		key  string
	}
	cands := make([]candidate, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !index.Eligible(filepath.Ext(e.Name()), m.KeepArchives) {
			continue
		}
		cands = append(cands, candidate{
			path: filepath.Join(m.Root, e.Name()),
			key:  romname.Key(e.Name()),
		})
	}

	var matches []string
	matched := make(map[string]struct{})
	for _, c := range cands {
		if contains(target, c.key) {
			if firstOnly {
				return []string{c.path}
			}
			matches = append(matches, c.path)
			matched[c.path] = struct{}{}
		}
	}
	thr := m.threshold()
	for _, c := range cands {
		if _, ok := matched[c.path]; ok {
			continue
		}
		if Ratio(target, c.key) >= thr {
			if firstOnly {
				return []string{c.path}
			}
			matches = append(matches, c.path)
		}
	}
	return matches
}
