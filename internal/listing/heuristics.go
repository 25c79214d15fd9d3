package listing

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/cinefinder/cinefinder/internal/types"
)

// FilmHeuristic is one independent source of film-path candidates. Each
// heuristic returns raw hrefs or paths; the parser filters, dedups, and
// resolves them.
type FilmHeuristic struct {
	Name string
	Find func(resp *types.Response) []string
}

// DefaultFilmHeuristics returns the built-in candidate sources in the
// order their results are unioned.
func DefaultFilmHeuristics() []FilmHeuristic {
	return []FilmHeuristic{
		{
			Name: "anchor_href",
			Find: func(resp *types.Response) []string {
				doc, err := resp.Document()
				if err != nil {
					return nil
				}
				return anchorFilmHrefs(doc)
			},
		},
		{
			Name: "raw_href",
			Find: func(resp *types.Response) []string {
				return rawFilmHrefs(resp.Text())
			},
		},
		{
			Name: "quoted_path",
			Find: func(resp *types.Response) []string {
				return quotedFilmPaths(resp.Text())
			},
		},
	}
}

var (
	// hrefFilmRe matches film hrefs in raw markup, including attributes the
	// HTML parser may have dropped or mangled.
	hrefFilmRe = regexp.MustCompile(`href="(/film/[^"#?]+)`)

	// quotedFilmRe matches film paths quoted anywhere in the page, notably
	// inside embedded JSON and script state.
	quotedFilmRe = regexp.MustCompile(`"(/film/[^"]+)"`)

	// numberedTailRe matches paths ending in a page-number segment.
	numberedTailRe = regexp.MustCompile(`/\d+(\?|$)`)
)

// anchorFilmHrefs collects hrefs from anchors whose href starts with the
// film path prefix.
func anchorFilmHrefs(doc *goquery.Document) []string {
	var hrefs []string
	doc.Find(`a[href^="` + FilmPathPrefix + `"]`).Each(func(_ int, sel *goquery.Selection) {
		if href, ok := sel.Attr("href"); ok {
			hrefs = append(hrefs, href)
		}
	})
	return hrefs
}

// rawFilmHrefs scans the raw body for href attributes pointing at film pages.
func rawFilmHrefs(body string) []string {
	var hrefs []string
	for _, m := range hrefFilmRe.FindAllStringSubmatch(body, -1) {
		hrefs = append(hrefs, m[1])
	}
	return hrefs
}

// quotedFilmPaths scans the raw body for quoted film paths.
func quotedFilmPaths(body string) []string {
	var paths []string
	for _, m := range quotedFilmRe.FindAllStringSubmatch(body, -1) {
		paths = append(paths, m[1])
	}
	return paths
}

// relNextHrefs collects hrefs from anchors carrying rel="next".
func relNextHrefs(body string) []string {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil
	}
	nodes, err := htmlquery.QueryAll(doc, `//a[@rel='next']`)
	if err != nil {
		return nil
	}
	var hrefs []string
	for _, node := range nodes {
		if href := htmlquery.SelectAttr(node, "href"); href != "" {
			hrefs = append(hrefs, href)
		}
	}
	return hrefs
}

// paginationHrefs collects anchor hrefs that look like further listing
// pages: a list-style path ending in a page number, or an explicit page
// query parameter.
func paginationHrefs(doc *goquery.Document) []string {
	var hrefs []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		if !strings.Contains(href, "/liste/") &&
			!strings.Contains(href, "/films/") &&
			!strings.Contains(href, "/top") {
			return
		}
		if numberedTailRe.MatchString(href) || strings.Contains(href, "page=") {
			hrefs = append(hrefs, href)
		}
	})
	return hrefs
}
