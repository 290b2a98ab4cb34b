// Package vault talks to the remote vault site: it enumerates catalog
// sections and transfers media files. HTML scraping and retry/backoff live
// here; deciding what to download is the orchestrator's job.
package vault

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/Another0Noob/vault-downloader/internal/pacing"
)

const (
	baseURL   = "https://vimm.net"
	vaultBase = baseURL + "/vault"
)

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Edge/120.0.0.0",
}

// Disc-based systems ship .7z archives; everything else defaults to .zip
// when the response carries no filename.
var systemDefaultArchiveExt = map[string]string{
	"Dreamcast": ".7z",
	"Saturn":    ".7z",
	"PS2":       ".7z",
	"PS1":       ".7z",
	"GameCube":  ".7z",
	"Wii":       ".7z",
}

// Client is the HTTP boundary to the vault site. One client serves one run.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	pageDelay  *pacing.Policy
	retryDelay time.Duration
	maxRetries int
	logger     *slog.Logger
}

// Options configures a Client.
type Options struct {
	// BaseURL overrides the vault site root, primarily for tests.
	BaseURL string
	// PageDelay paces catalog pagination requests.
	PageDelay *pacing.Policy
	// RetryDelay is the base wait between transfer retries; 0 means 5s.
	RetryDelay time.Duration
	// MaxRetries bounds transfer attempts; 0 means 3.
	MaxRetries int
	// Logger receives transfer events; nil discards them.
	Logger *slog.Logger
}

// NewClient creates a vault client. Requests are globally throttled to one
// per second on top of the randomized page delays.
func NewClient(opts Options) *Client {
	base := opts.BaseURL
	if base == "" {
		base = baseURL
	}
	pageDelay := opts.PageDelay
	if pageDelay == nil {
		pageDelay = pacing.New(time.Second, 2*time.Second)
	}
	retryDelay := opts.RetryDelay
	if retryDelay == 0 {
		retryDelay = 5 * time.Second
	}
	maxRetries := opts.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		httpClient: &http.Client{Timeout: 0},
		baseURL:    base,
		limiter:    rate.NewLimiter(rate.Every(time.Second), 1),
		pageDelay:  pageDelay,
		retryDelay: retryDelay,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

func randomUserAgent() string {
	return userAgents[rand.IntN(len(userAgents))]
}

// get performs a throttled GET with browser-shaped headers.
func (c *Client) get(ctx context.Context, url, referer string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", randomUserAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	return resp, nil
}
