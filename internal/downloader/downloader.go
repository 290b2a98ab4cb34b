// Package downloader drives the acquisition loop: it walks catalog sections
// in order, skips titles already present locally, downloads the rest, and
// keeps the progress ledger current after every decisive action.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/Another0Noob/vault-downloader/internal/config"
	"github.com/Another0Noob/vault-downloader/internal/extract"
	"github.com/Another0Noob/vault-downloader/internal/index"
	"github.com/Another0Noob/vault-downloader/internal/ledger"
	"github.com/Another0Noob/vault-downloader/internal/match"
	"github.com/Another0Noob/vault-downloader/internal/pacing"
	"github.com/Another0Noob/vault-downloader/internal/vault"
)

// Catalog enumerates remote sections. An empty slice means the section is
// exhausted.
type Catalog interface {
	SectionGames(ctx context.Context, system, section string) ([]vault.Game, error)
}

// Transfer moves one game's bytes to disk. Retry and backoff live behind
// this boundary; the loop only sees the final outcome.
type Transfer interface {
	Download(ctx context.Context, req vault.DownloadRequest) (string, error)
}

// Options wires the collaborators. Nil Catalog/Transfer/Rater default to a
// live vault client.
type Options struct {
	Catalog  Catalog
	Transfer Transfer
	// Rater is only consulted when rating categorization is enabled.
	Rater  Rater
	Logger *slog.Logger
	// Sections overrides the catalog's default section list.
	Sections []string
	// Prompt confirms duplicate quarantining; nil plus no auto-confirm means
	// duplicates are reported but never moved.
	Prompt func(keep string, extras []string) match.Answer
}

// Summary reports one run's outcome.
type Summary struct {
	Processed  int
	Downloaded int
	Completed  int
	Failed     int
	Elapsed    time.Duration
}

// Downloader owns one run over one download directory. It is single
// threaded: one section, one item at a time.
type Downloader struct {
	root   string
	system string
	cfg    config.Config

	ledger   *ledger.Ledger
	matcher  *match.Matcher
	resolver *match.Resolver
	catalog  Catalog
	transfer Transfer
	rater    Rater
	ratings  *ratingCache

	downloadDelay *pacing.Policy
	sectionDelay  *pacing.Policy

	extractFiles bool
	sections     []string
	logger       *slog.Logger

	// ix is built once per run; nil means no index is available and presence
	// checks fall back to live directory scans.
	ix *index.Index
}

// New prepares a run for root, loading its ledger.
func New(root, system string, cfg config.Config, opts Options) (*Downloader, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	led, err := ledger.Load(filepath.Join(root, ledger.DefaultFilename))
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}

	// Only DS extracts by default; most systems play archived ROMs directly.
	extractFiles := strings.EqualFold(system, "DS")
	if cfg.ExtractFiles != nil {
		extractFiles = *cfg.ExtractFiles
	}

	d := &Downloader{
		root:   root,
		system: system,
		cfg:    cfg,
		ledger: led,
		matcher: &match.Matcher{
			Threshold:    cfg.MatchThreshold,
			Root:         root,
			KeepArchives: !extractFiles,
		},
		resolver: &match.Resolver{
			AutoConfirm: cfg.AutoConfirmDelete,
			Prompt:      opts.Prompt,
		},
		catalog:       opts.Catalog,
		transfer:      opts.Transfer,
		rater:         opts.Rater,
		downloadDelay: pacing.New(cfg.DownloadDelay.Min, cfg.DownloadDelay.Max),
		sectionDelay:  pacing.New(cfg.SectionDelay.Min, cfg.SectionDelay.Max),
		extractFiles:  extractFiles,
		sections:      opts.Sections,
		logger:        logger,
	}
	if d.sections == nil {
		d.sections = vault.Sections
	}
	if d.catalog == nil || d.transfer == nil || d.rater == nil {
		client := vault.NewClient(vault.Options{
			PageDelay:  pacing.New(cfg.PageDelay.Min, cfg.PageDelay.Max),
			RetryDelay: cfg.RetryDelay,
			MaxRetries: cfg.MaxRetries,
			Logger:     logger,
		})
		if d.catalog == nil {
			d.catalog = client
		}
		if d.transfer == nil {
			d.transfer = client
		}
		if d.rater == nil {
			d.rater = client
		}
	}
	if cfg.CategorizeByRating {
		d.ratings = loadRatingCache(filepath.Join(root, RatingCacheFilename))
	}
	return d, nil
}

// Ledger exposes the run's progress record.
func (d *Downloader) Ledger() *ledger.Ledger { return d.ledger }

// Run processes every section. A single item's failure never aborts the run;
// only context cancellation and ledger persistence errors do.
func (d *Downloader) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	var sum Summary

	if d.cfg.DetectExisting && d.cfg.PreScan {
		d.buildIndex()
	}

	ordered := d.orderedSections()
	startIdx := d.resumeIndex(ordered)

	for i := startIdx; i < len(ordered); i++ {
		section := ordered[i]
		if err := ctx.Err(); err != nil {
			return d.finish(sum, start), err
		}

		d.logger.Info("section start", "section", section, "position", i+1, "of", len(ordered))
		games, err := d.catalog.SectionGames(ctx, d.system, section)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return d.finish(sum, start), err
			}
			// Partial section lists are still worth processing.
			d.logger.Warn("section fetch incomplete", "section", section, "error", err)
		}
		if len(games) == 0 {
			d.logger.Info("section empty", "section", section)
			continue
		}

		done, err := d.runSection(ctx, section, games, &sum)
		if err != nil {
			return d.finish(sum, start), err
		}
		if !done {
			continue
		}

		if i < len(ordered)-1 {
			if err := d.sectionDelay.Sleep(ctx); err != nil {
				return d.finish(sum, start), err
			}
		}
	}

	return d.finish(sum, start), nil
}

func (d *Downloader) finish(sum Summary, start time.Time) Summary {
	sum.Completed = d.ledger.CompletedCount()
	sum.Failed = len(d.ledger.Failures())
	sum.Elapsed = time.Since(start)
	return sum
}

// buildIndex scans the collection once. An index build failure is not fatal:
// matching degrades to per-item directory scans.
func (d *Downloader) buildIndex() {
	ix, err := index.Build(d.root, index.Options{
		MaxEntries:   d.cfg.IndexMaxFiles,
		KeepArchives: !d.extractFiles,
	})
	if err != nil {
		d.logger.Warn("local index build failed, falling back to directory scans", "error", err)
		d.ix = nil
		return
	}
	d.ix = ix
	d.logger.Info("local index built", "entries", ix.Len())
}

// orderedSections puts the explicit priority list first, then the remaining
// sections in catalog order.
func (d *Downloader) orderedSections() []string {
	known := make(map[string]struct{}, len(d.sections))
	for _, s := range d.sections {
		known[s] = struct{}{}
	}

	var ordered []string
	seen := make(map[string]struct{})
	for _, s := range d.cfg.SectionPriority {
		if _, ok := known[s]; !ok {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		ordered = append(ordered, s)
		seen[s] = struct{}{}
	}
	for _, s := range d.sections {
		if _, dup := seen[s]; !dup {
			ordered = append(ordered, s)
			seen[s] = struct{}{}
		}
	}
	return ordered
}

// resumeIndex honors the recorded resume point unless a priority override is
// in effect; explicit user intent beats stale resume state.
func (d *Downloader) resumeIndex(ordered []string) int {
	if len(d.cfg.SectionPriority) > 0 {
		return 0
	}
	last := d.ledger.LastSection()
	if last == "" {
		return 0
	}
	for i, s := range ordered {
		if s == last {
			return i
		}
	}
	return 0
}

// runSection fast-skips the contiguous present prefix, then downloads the
// rest. The bool reports whether any downloads were attempted (and hence
// whether the section-boundary delay applies).
func (d *Downloader) runSection(ctx context.Context, section string, games []vault.Game, sum *Summary) (bool, error) {
	startIdx := 0
	if d.cfg.DetectExisting && d.ix != nil {
		skipped := 0
		for i, g := range games {
			matches := d.matcher.AllMatches(g.Name, d.ix)
			if len(matches) == 0 {
				startIdx = i
				break
			}
			if err := d.markPresent(g, matches); err != nil {
				return false, err
			}
			skipped++
		}
		if skipped == len(games) {
			d.logger.Info("section fully present locally, skipping",
				"section", section, "titles", len(games))
			if err := d.ledger.SetLastSection(section); err != nil {
				return false, err
			}
			return false, nil
		}
		if skipped > 0 {
			d.logger.Info("fast-skipped present prefix", "section", section, "titles", skipped)
		}
	}

	for idx := startIdx; idx < len(games); idx++ {
		g := games[idx]
		if err := ctx.Err(); err != nil {
			return false, err
		}

		transferred, err := d.processItem(ctx, g, sum)
		if err != nil {
			return false, err
		}
		if err := d.ledger.SetLastSection(section); err != nil {
			return false, err
		}

		// Pace real transfers only; skips cost the server nothing.
		if transferred && idx < len(games)-1 {
			if err := d.downloadDelay.Sleep(ctx); err != nil {
				return false, err
			}
		}
	}
	return true, nil
}

// processItem decides one entry's fate: skip for local presence, skip for a
// verified ledger marker, or download. The bool reports whether a real
// transfer happened.
func (d *Downloader) processItem(ctx context.Context, g vault.Game, sum *Summary) (bool, error) {
	sum.Processed++

	// Presence re-check covers files that appeared since the index build,
	// e.g. from a previous item's extraction.
	if d.cfg.DetectExisting {
		if matches := d.matcher.AllMatches(g.Name, d.ix); len(matches) > 0 {
			d.logger.Info("skipping, local file found",
				"game", g.Name, "file", filepath.Base(matches[0]))
			return false, d.markPresent(g, matches)
		}
	}

	// A completed marker is only trusted after re-verifying the file exists;
	// the removal is persisted before any redownload starts.
	if d.ledger.IsCompleted(g.ID) {
		if _, ok := d.matcher.FirstMatch(g.Name, d.ix); ok {
			d.logger.Debug("skipping, already recorded", "game", g.Name)
			return false, nil
		}
		d.logger.Info("recorded as downloaded but file missing, re-downloading", "game", g.Name)
		if err := d.ledger.RemoveCompleted(g.ID); err != nil {
			return false, err
		}
	}

	d.logger.Info("downloading", "game", g.Name, "id", g.ID, "section", g.Section)
	path, err := d.transfer.Download(ctx, vault.DownloadRequest{
		Game:         g,
		DestDir:      d.root,
		System:       d.system,
		KeepArchives: !d.extractFiles,
		RatePolicy:   d.downloadDelay,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false, err
		}
		kind := "transfer failed"
		if errors.Is(err, vault.ErrNotFound) {
			kind = "not available"
		}
		d.logger.Warn(kind, "game", g.Name, "id", g.ID, "error", err)
		return false, d.ledger.MarkFailed(g.ID, g.Name, err.Error())
	}

	if d.extractFiles && strings.EqualFold(filepath.Ext(path), ".zip") {
		if exErr := extract.AndCleanup(path, d.root, d.logger); exErr != nil {
			d.logger.Warn("keeping archive, extraction failed", "archive", path, "error", exErr)
		}
	}

	sum.Downloaded++
	if err := d.ledger.MarkDownloaded(g.ID); err != nil {
		return true, err
	}
	if d.cfg.CategorizeByRating {
		d.categorizeDownload(ctx, g, path)
	}
	return true, nil
}

// markPresent records a locally satisfied entry and, when enabled, resolves
// duplicate local files for it.
func (d *Downloader) markPresent(g vault.Game, matches []string) error {
	if len(matches) > 1 && d.cfg.DeleteDuplicates {
		preferred := match.ChoosePreferred(matches, g.Name)
		extras := make([]string, 0, len(matches)-1)
		for _, m := range matches {
			if m != preferred {
				extras = append(extras, m)
			}
		}
		moved, err := d.resolver.Quarantine(d.root, preferred, extras)
		if err != nil {
			d.logger.Warn("duplicate cleanup failed", "game", g.Name, "error", err)
		} else if len(moved) > 0 {
			d.logger.Info("quarantined duplicates",
				"game", g.Name, "kept", filepath.Base(preferred), "moved", len(moved))
		}
	}
	return d.ledger.MarkCompleted(g.ID)
}
