package vault

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	reRatingClass = regexp.MustCompile(`(?i)rating|score`)
	reStarImage   = regexp.MustCompile(`(?i)star`)
	reTextRating  = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:out of|/)\s*\d+`)
)

// ScoreToStars converts the site's 0-10 community rating to a 1-5 star
// bucket.
func ScoreToStars(score float64) int {
	return int(math.Round(score / 2))
}

// GameRating fetches the game's detail page and extracts its community
// rating on the site's 0-10 scale. ok is false when the page carries no
// rating; an unrated title is an expected outcome, not an error.
func (c *Client) GameRating(ctx context.Context, game Game) (float64, bool, error) {
	resp, err := c.get(ctx, game.PageURL, vaultBase)
	if err != nil {
		return 0, false, fmt.Errorf("fetch game page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, false, fmt.Errorf("game page HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, false, fmt.Errorf("read game page: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return 0, false, fmt.Errorf("parse game page: %w", err)
	}

	rating, ok := parseGameRating(doc, string(body))
	return rating, ok, nil
}

// parseGameRating reads the rating widget when present (star icons, one per
// point), otherwise falls back to a textual "8.4 / 10" form anywhere in the
// page. A rating widget without stars means the title is unrated.
func parseGameRating(doc *goquery.Document, raw string) (float64, bool) {
	widget := false
	stars := 0
	doc.Find("div").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		class, _ := s.Attr("class")
		if !reRatingClass.MatchString(class) {
			return true
		}
		widget = true
		s.Find("img").Each(func(_ int, img *goquery.Selection) {
			if src, ok := img.Attr("src"); ok && reStarImage.MatchString(src) {
				stars++
			}
		})
		return false
	})
	if widget {
		if stars > 0 {
			return float64(stars), true
		}
		return 0, false
	}

	if m := reTextRating.FindStringSubmatch(raw); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return v, true
		}
	}
	return 0, false
}
