package vault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/Another0Noob/vault-downloader/internal/pacing"
	"github.com/Another0Noob/vault-downloader/internal/romname"
)

var (
	reContentDispositionName = regexp.MustCompile(`filename="([^"]*)"`)
	reMediaHref              = regexp.MustCompile(`(?i)mediaId=`)
	reMediaFormat            = regexp.MustCompile(`(?i)\.(ciso|rvz|iso|gcm)($|\?)`)
)

// Anchor-fallback format preference when a game page offers several media
// variants. Modern dumps favor .rvz over the older .ciso images.
var preferredMediaExts = []string{".rvz", ".ciso"}

// DownloadRequest carries the per-item transfer parameters.
type DownloadRequest struct {
	Game Game
	// DestDir receives the downloaded file.
	DestDir string
	// System selects the default archive extension when the response names
	// no file.
	System string
	// KeepArchives cleans the archive's base name instead of leaving the
	// served one untouched.
	KeepArchives bool
	// RatePolicy, when set, is widened after a 429 so the whole run backs
	// off, not just this transfer.
	RatePolicy *pacing.Policy
}

// Download resolves the game's download form and streams the media file to
// disk. Transient failures are retried with backoff internally; the returned
// error is final. ErrNotFound wraps permanent failures.
func (c *Client) Download(ctx context.Context, req DownloadRequest) (string, error) {
	dlURL, err := c.resolveDownloadURL(ctx, req.Game)
	if err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		path, retryable, err := c.tryDownload(ctx, req, dlURL, attempt)
		if err == nil {
			return path, nil
		}
		lastErr = err
		if !retryable || attempt == c.maxRetries {
			break
		}
		c.logger.Warn("download attempt failed",
			"game", req.Game.Name, "id", req.Game.ID, "attempt", attempt, "error", err)
		if err := sleepCtx(ctx, c.retryDelay); err != nil {
			return "", err
		}
	}
	return "", lastErr
}

// tryDownload performs one transfer attempt. The bool reports whether the
// failure is worth retrying.
func (c *Client) tryDownload(ctx context.Context, req DownloadRequest, dlURL string, attempt int) (string, bool, error) {
	resp, err := c.get(ctx, dlURL, req.Game.PageURL)
	if err != nil {
		return "", true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		wait := c.rateLimitWait(resp, attempt)
		c.logger.Info("rate limited, backing off",
			"game", req.Game.ID, "wait", wait, "attempt", attempt)
		if req.RatePolicy != nil {
			req.RatePolicy.OnRateLimited()
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return "", false, err
		}
		return "", true, fmt.Errorf("HTTP 429")
	case resp.StatusCode == http.StatusNotFound:
		return "", false, fmt.Errorf("HTTP 404: %w", ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return "", true, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	filename := c.responseFilename(resp, req)
	dest := filepath.Join(req.DestDir, filename)

	f, err := os.Create(dest)
	if err != nil {
		return "", false, fmt.Errorf("create %s: %w", dest, err)
	}
	written, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dest)
		return "", true, fmt.Errorf("write %s: %w", dest, err)
	}
	if written == 0 {
		os.Remove(dest)
		return "", true, errors.New("downloaded file is empty")
	}

	c.logger.Info("downloaded", "game", req.Game.Name, "file", filename, "bytes", written)
	return dest, false, nil
}

// responseFilename extracts the served filename, falling back to the title
// plus the system's default archive extension.
func (c *Client) responseFilename(resp *http.Response, req DownloadRequest) string {
	var filename string
	if m := reContentDispositionName.FindStringSubmatch(resp.Header.Get("Content-Disposition")); m != nil {
		filename = m[1]
	}
	if filename == "" {
		ext := systemDefaultArchiveExt[req.System]
		if ext == "" {
			ext = ".zip"
		}
		filename = req.Game.Name + ext
	}

	// Archives we keep get a cleaned base name so they index well later.
	if req.KeepArchives {
		ext := filepath.Ext(filename)
		if ext == "" {
			ext = systemDefaultArchiveExt[req.System]
			if ext == "" {
				ext = ".zip"
			}
		}
		filename = romname.Clean(strings.TrimSuffix(filename, filepath.Ext(filename))) + ext
	}
	return filename
}

// rateLimitWait honors Retry-After when present, otherwise backs off
// exponentially from the configured retry delay, capped at five minutes.
func (c *Client) rateLimitWait(resp *http.Response, attempt int) time.Duration {
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
		if at, err := http.ParseTime(ra); err == nil {
			if d := time.Until(at); d > 0 {
				return d
			}
		}
	}
	base := c.retryDelay
	if base < 5*time.Second {
		base = 5 * time.Second
	}
	wait := base << (attempt - 1)
	if wait > 5*time.Minute {
		wait = 5 * time.Minute
	}
	return wait
}

// resolveDownloadURL fetches the game's detail page and extracts the final
// media URL from its download form. GET forms resolve through the action URL
// with all hidden inputs; POST forms are rewritten to the direct host URL
// keyed by mediaId, which the server accepts as a GET once the page cookies
// are set.
func (c *Client) resolveDownloadURL(ctx context.Context, game Game) (string, error) {
	resp, err := c.get(ctx, game.PageURL, vaultBase)
	if err != nil {
		return "", fmt.Errorf("fetch game page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusNotFound {
			return "", fmt.Errorf("game page HTTP 404: %w", ErrNotFound)
		}
		return "", fmt.Errorf("game page HTTP %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse game page: %w", err)
	}
	return resolveDownloadForm(doc, c.baseURL, game.ID)
}

func resolveDownloadForm(doc *goquery.Document, base, gameID string) (string, error) {
	form := doc.Find("form#dl_form").First()
	if form.Length() > 0 {
		params := url.Values{}
		form.Find("input").Each(func(_ int, in *goquery.Selection) {
			name, _ := in.Attr("name")
			value, hasValue := in.Attr("value")
			if name != "" && hasValue {
				params.Set(name, value)
			}
		})

		action, _ := form.Attr("action")
		action = strings.TrimSpace(action)
		if action != "" {
			actionURL, err := url.Parse(action)
			if err != nil {
				return "", fmt.Errorf("parse form action: %w", err)
			}
			baseU, _ := url.Parse(base + "/")
			actionURL = baseU.ResolveReference(actionURL)

			// Keep query params already baked into the action.
			for k, vs := range actionURL.Query() {
				if params.Get(k) == "" && len(vs) > 0 {
					params.Set(k, vs[len(vs)-1])
				}
			}

			method, _ := form.Attr("method")
			if strings.ToLower(method) != "post" {
				actionURL.RawQuery = params.Encode()
				return actionURL.String(), nil
			}

			// POST form: construct a direct GET against the media host.
			if mediaID := params.Get("mediaId"); mediaID != "" {
				dl := fmt.Sprintf("%s://%s/?mediaId=%s", actionURL.Scheme, actionURL.Host, url.QueryEscape(mediaID))
				if alt := params.Get("alt"); alt != "" {
					dl += "&alt=" + url.QueryEscape(alt)
				}
				return dl, nil
			}
		}
	}

	// Fallback: gather every anchor that looks like a media link and prefer
	// known disc formats before settling for the first candidate.
	if href := preferredMediaAnchor(doc); href != "" {
		u, err := url.Parse(href)
		if err == nil {
			baseU, _ := url.Parse(base + "/")
			return baseU.ResolveReference(u).String(), nil
		}
	}

	return "", fmt.Errorf("no download form for game %s", gameID)
}

func preferredMediaAnchor(doc *goquery.Document) string {
	type candidate struct {
		href string
		ext  string
	}
	var cands []candidate
	doc.Find("a").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok || href == "" {
			return
		}
		if !reMediaHref.MatchString(href) && !reMediaFormat.MatchString(href) {
			return
		}
		// The format is usually only visible in the link text ("Download
		// .rvz"); the href itself names it for direct file links.
		ext := strings.ToLower(filepath.Ext(strings.TrimSpace(a.Text())))
		if ext == "" {
			if m := reMediaFormat.FindStringSubmatch(href); m != nil {
				ext = "." + strings.ToLower(m[1])
			}
		}
		cands = append(cands, candidate{href: href, ext: ext})
	})
	if len(cands) == 0 {
		return ""
	}
	for _, pref := range preferredMediaExts {
		for _, c := range cands {
			if c.ext == pref {
				return c.href
			}
		}
	}
	return cands[0].href
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
