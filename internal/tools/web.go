package tools

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/projectdavid/orchestrator/internal/store"
	"github.com/projectdavid/orchestrator/pkg/models"
)

const serpBase = "https://duckduckgo.com/html/?q="

// serpResult matches one anchor in the HTML results page. Title markup is
// stripped after the fact; the href keeps redirect parameters intact.
var serpResult = regexp.MustCompile(`(?is)<a[^>]*class="[^"]*result__a[^"]*"[^>]*href="([^"]+)"[^>]*>(.*?)</a>`)

var htmlTag = regexp.MustCompile(`<[^>]+>`)

type webSearchArgs struct {
	Query string `json:"query" jsonschema:"required,description=Search query. Keep it short and keyword-oriented."`
}

// webSearch fetches a search-results page and extracts the top links. The
// same handler backs perform_web_search and the legacy web_search name.
type webSearch struct {
	web  store.ToolService
	name string
}

func newWebSearch(web store.ToolService, name string) *webSearch {
	return &webSearch{web: web, name: name}
}

func (w *webSearch) Name() string { return w.name }

func (w *webSearch) Definition() models.Tool {
	return definition(w.name,
		"Search the web. Returns up to five numbered result links; follow up with read_web_page on the most promising one.",
		webSearchArgs{})
}

func (w *webSearch) Execute(ctx context.Context, inv Invocation, _ EmitFunc) (string, error) {
	query := strings.TrimSpace(argString(inv.Args, "query"))
	if query == "" {
		return "", ValidationError("missing required argument %q; retry with the text to search for", "query")
	}

	serpURL := serpBase + url.QueryEscape(query)
	body, err := w.web.WebSearch(ctx, serpURL)
	if err != nil {
		return "", fmt.Errorf("search fetch: %w", err)
	}

	results := parseSERP(body, 5)
	if len(results) == 0 {
		return "", &ExecError{
			Type:    "no_results",
			Message: fmt.Sprintf("no results for %q. Try again with synonyms or broader keywords", query),
		}
	}

	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. **%s** -> %s\n", i+1, r.title, r.url)
	}
	return b.String(), nil
}

type serpLink struct {
	title string
	url   string
}

func parseSERP(body string, limit int) []serpLink {
	matches := serpResult.FindAllStringSubmatch(body, limit)
	out := make([]serpLink, 0, len(matches))
	for _, m := range matches {
		title := strings.TrimSpace(html.UnescapeString(htmlTag.ReplaceAllString(m[2], "")))
		href := html.UnescapeString(m[1])
		if title == "" || href == "" {
			continue
		}
		out = append(out, serpLink{title: title, url: resolveRedirect(href)})
	}
	return out
}

// resolveRedirect unwraps the uddg redirect parameter DuckDuckGo wraps
// result hrefs in, falling back to the raw href.
func resolveRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme == "" {
		return "https:" + href
	}
	return href
}

type readWebPageArgs struct {
	URL string `json:"url" jsonschema:"required,description=Absolute URL of the page to read."`
}

// readWebPage fetches the first chunk of a document and appends a
// navigation footer so the model knows whether to keep scrolling.
type readWebPage struct {
	web store.ToolService
}

func newReadWebPage(web store.ToolService) *readWebPage {
	return &readWebPage{web: web}
}

func (r *readWebPage) Name() string { return "read_web_page" }

func (r *readWebPage) Definition() models.Tool {
	return definition(r.Name(),
		"Read a web page as text. Long documents are chunked; the footer tells you how to fetch the next chunk with scroll_web_page.",
		readWebPageArgs{})
}

func (r *readWebPage) Execute(ctx context.Context, inv Invocation, _ EmitFunc) (string, error) {
	pageURL := strings.TrimSpace(argString(inv.Args, "url"))
	if pageURL == "" {
		return "", ValidationError("missing required argument %q; retry with the page URL", "url")
	}

	page, err := r.web.WebRead(ctx, pageURL)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", pageURL, err)
	}
	return page.Content + navigationFooter(page), nil
}

// navigationFooter renders the paging hint. Page is 1-indexed in the fetch
// result while scroll_web_page takes 0-indexed pages, so the "next" index
// equals the current 1-indexed page number.
func navigationFooter(page *store.WebPage) string {
	if page.TotalPages <= 1 || page.Page >= page.TotalPages {
		return "\n\n--- END OF DOCUMENT ---"
	}
	return fmt.Sprintf(
		"\n\n--- NAVIGATION (Page %d/%d) ---\nCall scroll_web_page with page=%d to continue reading.",
		page.Page, page.TotalPages, page.Page)
}

type scrollWebPageArgs struct {
	URL  string `json:"url" jsonschema:"required,description=URL previously opened with read_web_page."`
	Page int    `json:"page" jsonschema:"required,description=0-indexed page to fetch."`
}

type scrollWebPage struct {
	web store.ToolService
}

func newScrollWebPage(web store.ToolService) *scrollWebPage {
	return &scrollWebPage{web: web}
}

func (s *scrollWebPage) Name() string { return "scroll_web_page" }

func (s *scrollWebPage) Definition() models.Tool {
	return definition(s.Name(),
		"Fetch one 0-indexed chunk of a previously read web page.",
		scrollWebPageArgs{})
}

func (s *scrollWebPage) Execute(ctx context.Context, inv Invocation, _ EmitFunc) (string, error) {
	pageURL := strings.TrimSpace(argString(inv.Args, "url"))
	if pageURL == "" {
		return "", ValidationError("missing required argument %q; retry with the page URL", "url")
	}
	pageNum, ok := argInt(inv.Args, "page")
	if !ok || pageNum < 0 {
		return "", ValidationError("missing or invalid argument %q; retry with a 0-indexed page number", "page")
	}

	page, err := s.web.WebScroll(ctx, pageURL, pageNum)
	if err != nil {
		return "", fmt.Errorf("scroll %s page %d: %w", pageURL, pageNum, err)
	}
	if pageNum >= page.TotalPages {
		return "", PagingError(pageNum, page.TotalPages)
	}
	return page.Content + navigationFooter(page), nil
}

type searchWebPageArgs struct {
	URL   string `json:"url" jsonschema:"required,description=URL of the document to scan."`
	Query string `json:"query" jsonschema:"required,description=Keywords to look for, separated by spaces."`
}

// searchWebPage scans every chunk of a document for keyword hits and
// returns the matching lines with their page index.
type searchWebPage struct {
	web store.ToolService

	// maxHits bounds the returned snippet count.
	maxHits int
}

func newSearchWebPage(web store.ToolService) *searchWebPage {
	return &searchWebPage{web: web, maxHits: 20}
}

func (s *searchWebPage) Name() string { return "search_web_page" }

func (s *searchWebPage) Definition() models.Tool {
	return definition(s.Name(),
		"Search inside a web page for keywords. Returns the matching lines and the 0-indexed page each one appears on.",
		searchWebPageArgs{})
}

func (s *searchWebPage) Execute(ctx context.Context, inv Invocation, _ EmitFunc) (string, error) {
	pageURL := strings.TrimSpace(argString(inv.Args, "url"))
	if pageURL == "" {
		return "", ValidationError("missing required argument %q; retry with the page URL", "url")
	}
	query := strings.TrimSpace(argString(inv.Args, "query"))
	if query == "" {
		return "", ValidationError("missing required argument %q; retry with the keywords to find", "query")
	}
	keywords := strings.Fields(strings.ToLower(query))

	first, err := s.web.WebRead(ctx, pageURL)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", pageURL, err)
	}

	var hits []string
	scan := func(content string, pageIdx int) {
		for _, line := range strings.Split(content, "\n") {
			if len(hits) >= s.maxHits {
				return
			}
			lower := strings.ToLower(line)
			for _, kw := range keywords {
				if strings.Contains(lower, kw) {
					hits = append(hits, fmt.Sprintf("[page %d] %s", pageIdx, strings.TrimSpace(line)))
					break
				}
			}
		}
	}

	scan(first.Content, 0)
	for idx := 1; idx < first.TotalPages && len(hits) < s.maxHits; idx++ {
		page, err := s.web.WebScroll(ctx, pageURL, idx)
		if err != nil {
			break
		}
		scan(page.Content, idx)
	}

	if len(hits) == 0 {
		return "", &ExecError{
			Type:    "no_results",
			Message: fmt.Sprintf("no occurrences of %q in %s. Try synonyms or related terms instead of repeating the same keywords", query, pageURL),
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d matching line(s) for %q:\n", len(hits), query)
	for _, h := range hits {
		b.WriteString(h)
		b.WriteByte('\n')
	}
	return b.String(), nil
}
