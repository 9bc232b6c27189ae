package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/samsaffron/localagent/internal/llm"
)

const (
	defaultSearchResults = 5
	maxSearchResults     = 20
)

// SearchResult is one web search hit.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// SearchTool implements web.search.duckduckgo against the DuckDuckGo HTML endpoint.
type SearchTool struct {
	client   *http.Client
	endpoint string
}

// NewSearchTool creates a new SearchTool.
func NewSearchTool(client *http.Client, endpoint string) *SearchTool {
	if client == nil {
		client = newHTTPClient(0)
	}
	if endpoint == "" {
		endpoint = DefaultToolConfig().SearchURL
	}
	return &SearchTool{client: client, endpoint: endpoint}
}

// SearchArgs are the arguments for web.search.duckduckgo.
type SearchArgs struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
}

func (t *SearchTool) Name() string { return SearchToolName }

func (t *SearchTool) Execute(ctx context.Context, args json.RawMessage, _ llm.RuntimeContext) (map[string]any, error) {
	var a SearchArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	query := strings.TrimSpace(a.Query)
	if query == "" {
		return nil, NewToolError(ErrInvalidParams, "query is required")
	}
	limit := a.MaxResults
	if limit <= 0 {
		limit = defaultSearchResults
	}
	limit = min(limit, maxSearchResults)

	results, err := t.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	list := make([]any, 0, len(results))
	for _, r := range results {
		item := map[string]any{"title": r.Title, "url": r.URL}
		if r.Snippet != "" {
			item["snippet"] = r.Snippet
		}
		list = append(list, item)
	}
	out := map[string]any{"query": query, "results": list}
	if len(list) == 0 {
		out["message"] = "No results found."
	}
	return out, nil
}

// Search queries DuckDuckGo and returns at most limit results.
func (t *SearchTool) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	u, err := url.Parse(t.endpoint)
	if err != nil {
		return nil, NewToolErrorf(ErrExecutionFailed, "invalid search endpoint: %v", err)
	}
	q := u.Query()
	q.Set("q", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, NewToolErrorf(ErrExecutionFailed, "create request: %v", err)
	}
	body, _, err := doRequest(ctx, t.client, req)
	if err != nil {
		return nil, err
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, NewToolErrorf(ErrExecutionFailed, "parse results: %v", err)
	}
	return parseSearchResults(doc, limit), nil
}

// parseSearchResults reads result blocks from a DuckDuckGo HTML page,
// skipping ads.
func parseSearchResults(doc *html.Node, limit int) []SearchResult {
	var results []SearchResult
	seen := make(map[string]bool)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(results) >= limit {
			return
		}
		if n.Type == html.ElementNode && hasClass(n, "result") {
			if !hasClass(n, "result--ad") {
				if r, ok := readResult(n); ok && !seen[r.URL] {
					seen[r.URL] = true
					results = append(results, r)
				}
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return results
}

func readResult(n *html.Node) (SearchResult, bool) {
	var r SearchResult
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case hasClass(n, "result__a") && r.URL == "":
				r.Title = nodeText(n)
				r.URL = resolveResultURL(attr(n, "href"))
			case hasClass(n, "result__snippet") && r.Snippet == "":
				r.Snippet = nodeText(n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return r, r.Title != "" && r.URL != ""
}

// resolveResultURL unwraps DuckDuckGo redirect links (/l/?uddg=...).
func resolveResultURL(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" && strings.HasPrefix(u.Path, "/l") {
		return target
	}
	if u.Scheme == "" && u.Host != "" {
		u.Scheme = "https"
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}
