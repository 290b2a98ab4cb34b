package vault

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Sections are the catalog partitions in their default order.
var Sections = []string{
	"number", "A", "B", "C", "D", "E", "F", "G", "H", "I", "J", "K", "L", "M",
	"N", "O", "P", "Q", "R", "S", "T", "U", "V", "W", "X", "Y", "Z",
}

// SectionGames fetches every page of one catalog section. An empty result
// means the section is exhausted (or does not exist); pagination is handled
// here, with a randomized delay between page requests.
func (c *Client) SectionGames(ctx context.Context, system, section string) ([]Game, error) {
	var games []Game

	for page := 1; ; page++ {
		listURL := fmt.Sprintf("%s/vault/?p=list&action=filters&system=%s&section=%s&page=%d",
			c.baseURL, url.QueryEscape(system), url.QueryEscape(section), page)

		resp, err := c.get(ctx, listURL, "")
		if err != nil {
			return games, fmt.Errorf("fetch section %s page %d: %w", section, page, err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return games, fmt.Errorf("fetch section %s page %d: HTTP %d", section, page, resp.StatusCode)
		}

		doc, err := goquery.NewDocumentFromReader(resp.Body)
		resp.Body.Close()
		if err != nil {
			return games, fmt.Errorf("parse section %s page %d: %w", section, page, err)
		}

		pageGames := parseSectionGames(doc, c.baseURL, section)
		if len(pageGames) == 0 {
			break
		}
		games = append(games, pageGames...)
		c.logger.Debug("section page parsed", "section", section, "page", page, "games", len(pageGames))

		if !hasNextLink(doc) {
			break
		}
		if err := c.pageDelay.Sleep(ctx); err != nil {
			return games, err
		}
	}

	return games, nil
}

// parseSectionGames pulls {name, page URL, id} rows out of the section list
// table. The title link is always the first cell of each row.
func parseSectionGames(doc *goquery.Document, base, section string) []Game {
	var games []Game
	doc.Find("table.hovertable tr").Each(func(_ int, row *goquery.Selection) {
		link := row.Find("td").First().Find("a").First()
		if link.Length() == 0 {
			return
		}
		href, ok := link.Attr("href")
		if !ok || href == "" {
			return
		}
		name := strings.TrimSpace(link.Text())
		if name == "" {
			return
		}
		parts := strings.Split(href, "/")
		games = append(games, Game{
			Name:    name,
			PageURL: base + href,
			ID:      parts[len(parts)-1],
			Section: section,
		})
	})
	return games
}

func hasNextLink(doc *goquery.Document) bool {
	found := false
	doc.Find("a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.Contains(strings.ToLower(s.Text()), "next") {
			found = true
			return false
		}
		return true
	})
	return found
}
