// Package config loads the downloader settings from an ini file. Every key
// is optional; missing keys and a missing file both fall back to the
// defaults below.
package config

import (
	"fmt"
	"time"

	"gopkg.in/ini.v1"
)

// Range is a randomized delay window in seconds, resolved to durations.
type Range struct {
	Min time.Duration
	Max time.Duration
}

// Config carries every tunable the downloader consumes.
type Config struct {
	// PageDelay paces catalog list-page requests.
	PageDelay Range
	// DownloadDelay paces actual byte transfers.
	DownloadDelay Range
	// SectionDelay paces section boundaries; shorter than DownloadDelay by
	// convention.
	SectionDelay Range
	// RetryDelay is the base wait before retrying a failed transfer.
	RetryDelay time.Duration
	// MaxRetries bounds transfer attempts per item.
	MaxRetries int

	// MatchThreshold is the inclusive fuzzy-ratio cutoff.
	MatchThreshold float64
	// IndexMaxFiles caps the local index build.
	IndexMaxFiles int

	// ExtractFiles controls archive extraction after download; nil defers to
	// the per-system default (only DS extracts).
	ExtractFiles *bool
	// DetectExisting toggles local-presence detection entirely.
	DetectExisting bool
	// PreScan builds the local index once up front instead of per-item scans.
	PreScan bool
	// DeleteDuplicates offers to quarantine redundant local matches.
	DeleteDuplicates bool
	// AutoConfirmDelete accepts every quarantine prompt.
	AutoConfirmDelete bool
	// CategorizeByRating moves every downloaded file into a rating bucket
	// folder under the download root.
	CategorizeByRating bool
	// CategorizeMode selects the bucket scheme: "stars" (1-5) or "score"
	// (rounded 0-10).
	CategorizeMode string
	// SectionPriority orders the named sections first; it also overrides any
	// recorded resume point.
	SectionPriority []string
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		PageDelay:      Range{Min: 1 * time.Second, Max: 2 * time.Second},
		DownloadDelay:  Range{Min: 1 * time.Second, Max: 2 * time.Second},
		SectionDelay:   Range{Min: 1 * time.Second, Max: 2 * time.Second},
		RetryDelay:     5 * time.Second,
		MaxRetries:     3,
		MatchThreshold: 0.75,
		IndexMaxFiles:  20000,
		DetectExisting: true,
		PreScan:        true,
		CategorizeMode: "stars",
	}
}

// Load reads cfg from an ini file, overlaying the defaults. Sections:
// [network] for delays and retries, [limits] for matching and indexing
// bounds, [defaults] for behavior toggles.
func Load(path string) (Config, error) {
	c := Default()

	f, err := ini.Load(path)
	if err != nil {
		return c, fmt.Errorf("load config %s: %w", path, err)
	}

	net := f.Section("network")
	c.PageDelay = loadRange(net, "page_delay", c.PageDelay)
	c.DownloadDelay = loadRange(net, "download_delay", c.DownloadDelay)
	c.SectionDelay = loadRange(net, "section_delay", c.SectionDelay)
	c.RetryDelay = seconds(net.Key("retry_delay").MustFloat64(c.RetryDelay.Seconds()))
	c.MaxRetries = net.Key("max_retries").MustInt(c.MaxRetries)

	limits := f.Section("limits")
	c.MatchThreshold = limits.Key("match_threshold").MustFloat64(c.MatchThreshold)
	c.IndexMaxFiles = limits.Key("index_max_files").MustInt(c.IndexMaxFiles)

	def := f.Section("defaults")
	if def.HasKey("extract_files") {
		v := def.Key("extract_files").MustBool(false)
		c.ExtractFiles = &v
	}
	c.DetectExisting = def.Key("detect_existing").MustBool(c.DetectExisting)
	c.PreScan = def.Key("pre_scan").MustBool(c.PreScan)
	c.DeleteDuplicates = def.Key("delete_duplicates").MustBool(c.DeleteDuplicates)
	c.AutoConfirmDelete = def.Key("auto_confirm_delete").MustBool(c.AutoConfirmDelete)
	c.CategorizeByRating = def.Key("categorize_by_popularity").MustBool(c.CategorizeByRating)
	if mode := def.Key("categorize_by_popularity_mode").String(); mode == "stars" || mode == "score" {
		c.CategorizeMode = mode
	}
	if def.HasKey("section_priority") {
		c.SectionPriority = def.Key("section_priority").Strings(",")
	}

	return c, nil
}

func loadRange(sec *ini.Section, prefix string, fallback Range) Range {
	return Range{
		Min: seconds(sec.Key(prefix + "_min").MustFloat64(fallback.Min.Seconds())),
		Max: seconds(sec.Key(prefix + "_max").MustFloat64(fallback.Max.Seconds())),
	}
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
