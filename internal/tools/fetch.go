package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"golang.org/x/net/html"

	"github.com/samsaffron/localagent/internal/llm"
)

// FetchTool implements web.fetch.
type FetchTool struct {
	client   *http.Client
	maxBytes int64
}

// NewFetchTool creates a new FetchTool.
func NewFetchTool(client *http.Client, maxBytes int64) *FetchTool {
	if client == nil {
		client = newHTTPClient(0)
	}
	return &FetchTool{client: client, maxBytes: maxBytes}
}

// FetchArgs are the arguments for web.fetch.
type FetchArgs struct {
	URL string `json:"url"`
}

func (t *FetchTool) Name() string { return FetchToolName }

func (t *FetchTool) Execute(ctx context.Context, args json.RawMessage, _ llm.RuntimeContext) (map[string]any, error) {
	var a FetchArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	url, err := normalizeURL(a.URL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, NewToolErrorf(ErrInvalidParams, "invalid url: %v", err)
	}
	req.Header.Set("Accept", "text/html,text/plain;q=0.9,*/*;q=0.5")

	body, contentType, err := doRequest(ctx, t.client, req)
	if err != nil {
		return nil, err
	}

	ct := describeContentType(contentType)
	var title, text string
	switch {
	case ct == "text/html" || ct == "application/xhtml+xml" || (ct == "unknown" && looksLikeHTML(body)):
		doc, err := html.Parse(bytes.NewReader(body))
		if err != nil {
			return nil, NewToolErrorf(ErrExecutionFailed, "parse html: %v", err)
		}
		title, text = pageText(doc)
	case strings.HasPrefix(ct, "text/") || strings.Contains(ct, "json") || strings.Contains(ct, "xml") || !isBinaryContent(body):
		text = string(body)
	default:
		return nil, NewToolErrorf(ErrUnsupportedFormat, "%s returned %s", url, ct)
	}

	text, truncated := limitText(text, t.maxBytes)
	out := map[string]any{
		"url":          url,
		"content_type": ct,
		"text":         text,
		"truncated":    truncated,
	}
	if title != "" {
		out["title"] = title
	}
	return out, nil
}

func looksLikeHTML(body []byte) bool {
	head := bytes.ToLower(bytes.TrimSpace(body[:min(len(body), 512)]))
	return bytes.HasPrefix(head, []byte("<!doctype html")) || bytes.HasPrefix(head, []byte("<html"))
}
