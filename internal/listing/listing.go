// Package listing mines listing/top pages for film-page links and
// pagination links. The target site's markup is inconsistent and changes
// over time, so several independent heuristics run over the same content
// and their results are unioned; deduplication absorbs the overlap.
package listing

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/cinefinder/cinefinder/internal/types"
)

// FilmPathPrefix is the path prefix identifying film pages on the site.
const FilmPathPrefix = "/film/"

// Parser extracts candidate film URLs and next-listing URLs from a listing
// page. It holds no state between pages.
type Parser struct {
	logger     *slog.Logger
	heuristics []FilmHeuristic
}

// NewParser creates a listing page parser with the default heuristics.
func NewParser(logger *slog.Logger) *Parser {
	return &Parser{
		logger:     logger.With("component", "listing_parser"),
		heuristics: DefaultFilmHeuristics(),
	}
}

// SetFilmHeuristics replaces the film-link candidate sources, for markup
// that the defaults do not cover.
func (p *Parser) SetFilmHeuristics(heuristics []FilmHeuristic) {
	p.heuristics = heuristics
}

// FilmLinks returns absolute film-page URLs found on the page, in
// first-seen document order. Candidates are deduplicated by path before
// URL-joining, with query strings stripped.
func (p *Parser) FilmLinks(resp *types.Response) []string {
	if _, err := resp.Document(); err != nil {
		// The raw-text heuristics still get a chance below.
		p.logger.Warn("unparseable listing page", "url", resp.FinalURL, "error", err)
	}
	base, err := url.Parse(resp.FinalURL)
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var paths []string
	for _, h := range p.heuristics {
		for _, href := range h.Find(resp) {
			path, _, _ := strings.Cut(href, "?")
			if !strings.HasPrefix(path, FilmPathPrefix) {
				continue
			}
			if !seen[path] {
				seen[path] = true
				paths = append(paths, path)
			}
		}
	}

	links := make([]string, 0, len(paths))
	for _, path := range paths {
		ref, err := url.Parse(path)
		if err != nil {
			continue
		}
		links = append(links, base.ResolveReference(ref).String())
	}
	return links
}

// NextLinks returns absolute candidate next-listing URLs: anchors with an
// explicit next relation, plus anchors that look like pagination. This is
// approximate by design; the crawl controller bounds how many are followed.
func (p *Parser) NextLinks(resp *types.Response) []string {
	doc, err := resp.Document()
	if err != nil {
		return nil
	}
	base, err := url.Parse(resp.FinalURL)
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var links []string
	add := func(href string) {
		href = strings.TrimSpace(href)
		if href == "" {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref).String()
		if !seen[abs] {
			seen[abs] = true
			links = append(links, abs)
		}
	}

	for _, href := range relNextHrefs(resp.Text()) {
		add(href)
	}
	for _, href := range paginationHrefs(doc) {
		add(href)
	}
	return links
}
