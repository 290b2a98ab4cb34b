package vault

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/Another0Noob/vault-downloader/internal/pacing"
)

func docFrom(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	return doc
}

func TestParseSectionGames(t *testing.T) {
	doc := docFrom(t, `
<table class="hovertable">
  <tr><th>Title</th><th>Region</th></tr>
  <tr><td><a href="/vault/12345">Animal Crossing: Wild World</a></td><td>USA</td></tr>
  <tr><td><a href="/vault/678">Art Academy</a></td><td>EU</td></tr>
  <tr><td>no link here</td></tr>
</table>`)

	games := parseSectionGames(doc, "https://example.test", "A")
	if len(games) != 2 {
		t.Fatalf("got %d games, want 2", len(games))
	}
	first := games[0]
	if first.Name != "Animal Crossing: Wild World" {
		t.Errorf("Name = %q", first.Name)
	}
	if first.ID != "12345" {
		t.Errorf("ID = %q", first.ID)
	}
	if first.PageURL != "https://example.test/vault/12345" {
		t.Errorf("PageURL = %q", first.PageURL)
	}
	if first.Section != "A" {
		t.Errorf("Section = %q", first.Section)
	}
}

func TestParseSectionGamesEmptyTable(t *testing.T) {
	doc := docFrom(t, `<table class="hovertable"><tr><th>Title</th></tr></table>`)
	if games := parseSectionGames(doc, "https://example.test", "Q"); len(games) != 0 {
		t.Fatalf("got %d games from an empty section", len(games))
	}
}

func TestHasNextLink(t *testing.T) {
	with := docFrom(t, `<a href="?page=2">Next &gt;</a>`)
	if !hasNextLink(with) {
		t.Error("next link not detected")
	}
	without := docFrom(t, `<a href="/vault/1">Some Game</a>`)
	if hasNextLink(without) {
		t.Error("false positive next link")
	}
}

func TestResolveDownloadFormGet(t *testing.T) {
	doc := docFrom(t, `
<form id="dl_form" method="GET" action="/download/media">
  <input type="hidden" name="mediaId" value="99">
</form>`)

	got, err := resolveDownloadForm(doc, "https://example.test", "1")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if got != "https://example.test/download/media?mediaId=99" {
		t.Fatalf("got %q", got)
	}
}

func TestResolveDownloadFormPost(t *testing.T) {
	doc := docFrom(t, `
<form id="dl_form" method="POST" action="https://dl3.example.test/">
  <input type="hidden" name="mediaId" value="42">
  <input type="hidden" name="alt" value="1">
</form>`)

	got, err := resolveDownloadForm(doc, "https://example.test", "1")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if got != "https://dl3.example.test/?mediaId=42&alt=1" {
		t.Fatalf("got %q", got)
	}
}

func TestResolveDownloadFormAnchorFallback(t *testing.T) {
	doc := docFrom(t, `<a href="/download?mediaId=7">direct</a>`)
	got, err := resolveDownloadForm(doc, "https://example.test", "1")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if got != "https://example.test/download?mediaId=7" {
		t.Fatalf("got %q", got)
	}
}

func TestResolveDownloadFormPrefersModernFormat(t *testing.T) {
	doc := docFrom(t, `
<a href="https://dl2.example.test/?mediaId=111">Download .ciso</a>
<a href="https://dl3.example.test/?mediaId=222">Download .rvz</a>`)

	got, err := resolveDownloadForm(doc, "https://example.test", "1")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if got != "https://dl3.example.test/?mediaId=222" {
		t.Fatalf("got %q, want the .rvz variant", got)
	}

	// Format named only in the href.
	doc = docFrom(t, `
<a href="/files/game.ciso">ciso</a>
<a href="/files/game.rvz?token=1">rvz</a>`)
	got, err = resolveDownloadForm(doc, "https://example.test", "2")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if got != "https://example.test/files/game.rvz?token=1" {
		t.Fatalf("got %q, want the .rvz variant", got)
	}
}

func TestResolveDownloadFormMissing(t *testing.T) {
	doc := docFrom(t, `<p>nothing to see</p>`)
	if _, err := resolveDownloadForm(doc, "https://example.test", "5"); err == nil {
		t.Fatal("expected an error without any form or anchor")
	}
}

func TestScoreToStars(t *testing.T) {
	cases := []struct {
		score float64
		stars int
	}{
		{9.2, 5},
		{8.62, 4},
		{7.2, 4},
		{5.0, 3},
		{1.4, 1},
		{0, 0},
	}
	for _, c := range cases {
		if got := ScoreToStars(c.score); got != c.stars {
			t.Errorf("ScoreToStars(%v) = %d, want %d", c.score, got, c.stars)
		}
	}
}

func TestParseGameRating(t *testing.T) {
	widget := `<div class="rating">
<img src="/images/star.png"><img src="/images/star.png"><img src="/images/star.png">
</div>`
	if got, ok := parseGameRating(docFrom(t, widget), widget); !ok || got != 3 {
		t.Errorf("star widget: got %v, %v; want 3, true", got, ok)
	}

	text := `<p>Rated 8.4 / 10 by players.</p>`
	if got, ok := parseGameRating(docFrom(t, text), text); !ok || got != 8.4 {
		t.Errorf("text rating: got %v, %v; want 8.4, true", got, ok)
	}

	// A rating widget without stars means unrated, even if numbers appear
	// elsewhere in the page.
	empty := `<div class="rating"></div><p>1 / 2 players online</p>`
	if _, ok := parseGameRating(docFrom(t, empty), empty); ok {
		t.Error("empty widget must report no rating")
	}

	plain := `<p>nothing here</p>`
	if _, ok := parseGameRating(docFrom(t, plain), plain); ok {
		t.Error("plain page must report no rating")
	}
}

func TestGameRatingFetch(t *testing.T) {
	c, srv := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<p>Overall 8.6 / 10</p>`)
	}))

	rating, ok, err := c.GameRating(context.Background(), Game{ID: "1", PageURL: srv.URL + "/vault/1"})
	if err != nil {
		t.Fatalf("GameRating failed: %v", err)
	}
	if !ok || rating != 8.6 {
		t.Fatalf("got %v, %v; want 8.6, true", rating, ok)
	}
}

func TestResponseFilename(t *testing.T) {
	c := NewClient(Options{})

	resp := &http.Response{Header: http.Header{}}
	resp.Header.Set("Content-Disposition", `attachment; filename="Some Game (USA).zip"`)
	req := DownloadRequest{Game: Game{Name: "Some Game"}, System: "DS"}
	if got := c.responseFilename(resp, req); got != "Some Game (USA).zip" {
		t.Errorf("served name: got %q", got)
	}

	bare := &http.Response{Header: http.Header{}}
	if got := c.responseFilename(bare, DownloadRequest{Game: Game{Name: "Crazy Taxi"}, System: "Dreamcast"}); got != "Crazy Taxi.7z" {
		t.Errorf("disc default: got %q", got)
	}
	if got := c.responseFilename(bare, DownloadRequest{Game: Game{Name: "Tetris"}, System: "DS"}); got != "Tetris.zip" {
		t.Errorf("cartridge default: got %q", got)
	}

	resp.Header.Set("Content-Disposition", `attachment; filename="001 1234 some game.zip"`)
	kept := DownloadRequest{Game: Game{Name: "Some Game"}, System: "DS", KeepArchives: true}
	if got := c.responseFilename(resp, kept); got != "some game.zip" {
		t.Errorf("cleaned archive name: got %q", got)
	}
}

func TestRateLimitWait(t *testing.T) {
	c := NewClient(Options{RetryDelay: 5 * time.Second})

	resp := &http.Response{Header: http.Header{}}
	resp.Header.Set("Retry-After", "30")
	if got := c.rateLimitWait(resp, 1); got != 30*time.Second {
		t.Errorf("Retry-After seconds: got %v", got)
	}

	bare := &http.Response{Header: http.Header{}}
	if got := c.rateLimitWait(bare, 1); got != 5*time.Second {
		t.Errorf("first backoff: got %v", got)
	}
	if got := c.rateLimitWait(bare, 3); got != 20*time.Second {
		t.Errorf("third backoff: got %v", got)
	}
	if got := c.rateLimitWait(bare, 12); got != 5*time.Minute {
		t.Errorf("backoff cap: got %v", got)
	}
}

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(Options{
		BaseURL:    srv.URL,
		PageDelay:  pacing.New(0, 0),
		RetryDelay: time.Millisecond,
		MaxRetries: 3,
	})
	return c, srv
}

func TestSectionGamesPaginates(t *testing.T) {
	page1 := `<table class="hovertable">
<tr><td><a href="/vault/1">Alpha</a></td></tr>
</table><a href="?page=2">Next</a>`
	page2 := `<table class="hovertable">
<tr><td><a href="/vault/2">Beta</a></td></tr>
</table>`

	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, page2)
			return
		}
		fmt.Fprint(w, page1)
	}))

	games, err := c.SectionGames(context.Background(), "DS", "A")
	if err != nil {
		t.Fatalf("SectionGames failed: %v", err)
	}
	if len(games) != 2 || games[0].Name != "Alpha" || games[1].Name != "Beta" {
		t.Fatalf("got %+v", games)
	}
}

func TestDownloadNotFound(t *testing.T) {
	c, srv := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/vault/") {
			fmt.Fprint(w, `<form id="dl_form" method="GET" action="/media"><input name="mediaId" value="1"></form>`)
			return
		}
		http.NotFound(w, r)
	}))

	_, err := c.Download(context.Background(), DownloadRequest{
		Game:    Game{Name: "Gone", ID: "1", PageURL: srv.URL + "/vault/1"},
		DestDir: t.TempDir(),
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestDownloadRetriesAfterRateLimit(t *testing.T) {
	var mediaHits int
	c, srv := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/vault/") {
			fmt.Fprint(w, `<form id="dl_form" method="GET" action="/media"><input name="mediaId" value="1"></form>`)
			return
		}
		mediaHits++
		if mediaHits == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Disposition", `attachment; filename="Slow Game.zip"`)
		fmt.Fprint(w, "rom bytes")
	}))

	policy := pacing.New(0, 0)
	dest := t.TempDir()
	path, err := c.Download(context.Background(), DownloadRequest{
		Game:       Game{Name: "Slow Game", ID: "1", PageURL: srv.URL + "/vault/1"},
		DestDir:    dest,
		RatePolicy: policy,
	})
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if path != filepath.Join(dest, "Slow Game.zip") {
		t.Fatalf("path = %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "rom bytes" {
		t.Fatalf("file content = %q, err %v", data, err)
	}
	if mediaHits != 2 {
		t.Fatalf("media endpoint hit %d times, want 2", mediaHits)
	}
	if lo, _ := policy.Bounds(); lo < 5*time.Second {
		t.Fatalf("rate policy not widened: lower bound %v", lo)
	}
}
