package match

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Another0Noob/vault-downloader/internal/romname"
)

// Answer is a duplicate-cleanup confirmation result.
type Answer int

const (
	No Answer = iota
	Yes
	YesToAll
)

// ChoosePreferred picks the file to keep when several local files match one
// title. Heuristic, not a correctness guarantee: exact normalized equality
// with the target beats containment (+3), a bracket-free raw name suggests an
// already-clean file (+2), and shorter names get a small tie-break bonus.
// Ties go to the first candidate encountered.
func ChoosePreferred(paths []string, title string) string {
	target := romname.Key(title)
	best := paths[0]
	bestScore := score(best, target)
	for _, p := range paths[1:] {
		if s := score(p, target); s > bestScore {
			best, bestScore = p, s
		}
	}
	return best
}

func score(path, target string) int {
	name := filepath.Base(path)
	sc := 0
	if romname.Key(name) == target {
		sc += 3
	}
	if !strings.ContainsAny(name, "([") {
		sc += 2
	}
	sc += max(0, 10-len(name)) / 10
	return sc
}

// Resolver coordinates removal of redundant duplicate files. Removal is a
// move into a timestamped quarantine folder, never a delete, and is gated
// behind Prompt unless AutoConfirm is set. A YesToAll answer suppresses
// prompting for the remainder of the run.
type Resolver struct {
	// AutoConfirm skips prompting entirely.
	AutoConfirm bool
	// Prompt asks the operator whether to quarantine extras. Nil with
	// AutoConfirm unset means never remove anything.
	Prompt func(keep string, extras []string) Answer
	// Now stamps the quarantine folder name; nil means time.Now.
	Now func() time.Time

	yesAll bool
}

// Quarantine moves extras into <root>/duplicates_<timestamp>/ after
// confirmation. It returns the paths actually moved; a declined prompt moves
// nothing and is not an error.
func (r *Resolver) Quarantine(root, keep string, extras []string) ([]string, error) {
	if len(extras) == 0 {
		return nil, nil
	}
	if !r.confirmed(keep, extras) {
		return nil, nil
	}

	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	dir := filepath.Join(root, "duplicates_"+now().Format("20060102-150405"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create quarantine dir: %w", err)
	}

	moved := make([]string, 0, len(extras))
	for _, p := range extras {
		dest := filepath.Join(dir, filepath.Base(p))
		if err := os.Rename(p, dest); err != nil {
			return moved, fmt.Errorf("quarantine %s: %w", p, err)
		}
		moved = append(moved, dest)
	}
	return moved, nil
}

func (r *Resolver) confirmed(keep string, extras []string) bool {
	if r.AutoConfirm || r.yesAll {
		return true
	}
	if r.Prompt == nil {
		return false
	}
	switch r.Prompt(keep, extras) {
	case YesToAll:
		r.yesAll = true
		return true
	case Yes:
		return true
	default:
		return false
	}
}
