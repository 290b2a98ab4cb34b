package downloader

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/Another0Noob/vault-downloader/internal/vault"
)

// Rater looks up a game's community rating. An absent rating (ok false) is
// not an error.
type Rater interface {
	GameRating(ctx context.Context, game vault.Game) (float64, bool, error)
}

// RatingCacheFilename sits next to the ledger so reruns do not refetch game
// pages for titles already rated.
const RatingCacheFilename = "metadata_cache.json"

type ratingEntry struct {
	Rating float64 `json:"rating"`
	Stars  int     `json:"stars"`
}

type ratingCache struct {
	path string
	byID map[string]ratingEntry
}

// loadRatingCache reads the cache file; a missing or corrupt file starts an
// empty cache.
func loadRatingCache(path string) *ratingCache {
	c := &ratingCache{path: path, byID: make(map[string]ratingEntry)}
	data, err := os.ReadFile(path)
	if err != nil {
		return c
	}
	var doc map[string]ratingEntry
	if json.Unmarshal(data, &doc) == nil && doc != nil {
		c.byID = doc
	}
	return c
}

func (c *ratingCache) get(id string) (float64, bool) {
	e, ok := c.byID[id]
	return e.Rating, ok
}

func (c *ratingCache) put(id string, rating float64) error {
	c.byID[id] = ratingEntry{Rating: rating, Stars: vault.ScoreToStars(rating)}
	data, err := json.MarshalIndent(c.byID, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0o644)
}

// categorizeDownload moves a downloaded file into a rating bucket folder,
// stars/<1-5> or score/<0-10> depending on the configured mode. Failures are
// logged and tolerated; an unrated title stays where it landed.
func (d *Downloader) categorizeDownload(ctx context.Context, g vault.Game, path string) {
	rating, ok := d.ratings.get(g.ID)
	if !ok {
		var err error
		rating, ok, err = d.rater.GameRating(ctx, g)
		if err != nil {
			d.logger.Warn("rating fetch failed", "game", g.Name, "id", g.ID, "error", err)
			return
		}
		if !ok {
			d.logger.Info("no rating, skipping categorization", "game", g.Name, "id", g.ID)
			return
		}
		if err := d.ratings.put(g.ID, rating); err != nil {
			d.logger.Warn("could not persist rating cache", "error", err)
		}
	}

	var bucket string
	if d.cfg.CategorizeMode == "score" {
		bucket = filepath.Join("score", strconv.Itoa(int(math.Round(rating))))
	} else {
		bucket = filepath.Join("stars", strconv.Itoa(vault.ScoreToStars(rating)))
	}
	dir := filepath.Join(d.root, bucket)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		d.logger.Warn("could not create rating folder", "folder", dir, "error", err)
		return
	}
	dest := filepath.Join(dir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		d.logger.Warn("could not categorize file", "file", path, "error", err)
		return
	}
	d.logger.Info("categorized download",
		"game", g.Name, "bucket", bucket, "rating", rating)
}
