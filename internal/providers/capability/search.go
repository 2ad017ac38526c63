package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/calebrin/tutorcore/internal/core"
	"github.com/calebrin/tutorcore/pkg/log"
	"github.com/calebrin/tutorcore/pkg/retry"
	"github.com/inbucket/html2text"
	"github.com/microcosm-cc/bluemonday"
)

const (
	defaultSearchBaseURL = "https://www.googleapis.com/customsearch/v1"
	defaultSearchTimeout = 15 * time.Second

	maxPageSize     = 1 << 20 // 1MB limit on fetched result pages
	maxEvidenceLen  = 4000
	defaultResults  = 5
	maxResultsLimit = 10
)

// WebSearchConfig configures the Google Custom Search backed provider.
type WebSearchConfig struct {
	APIKey         string
	EngineID       string
	MaxResults     int
	FetchTopResult bool

	// BaseURL overrides the CSE endpoint, used by tests
	BaseURL string
	Retry   *retry.Config
}

// WebSearch queries the Google Custom Search JSON API and returns sanitized
// snippets plus citations. Optionally the top result page is fetched and
// reduced to text so the explainer gets more than snippets.
type WebSearch struct {
	client   *http.Client
	retrier  *retry.Retrier
	policy   *bluemonday.Policy
	apiKey   string
	engineID string
	baseURL  string
	num      int
	fetchTop bool
}

func NewWebSearch(cfg WebSearchConfig) *WebSearch {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultSearchBaseURL
	}
	num := cfg.MaxResults
	if num <= 0 {
		num = defaultResults
	}
	if num > maxResultsLimit {
		num = maxResultsLimit
	}
	retryCfg := cfg.Retry
	if retryCfg == nil {
		retryCfg = retry.NewDefaultConfig()
	}

	return &WebSearch{
		client: &http.Client{
			Timeout: defaultSearchTimeout,
		},
		retrier:  retry.NewRetrier(retryCfg),
		policy:   bluemonday.StrictPolicy(),
		apiKey:   cfg.APIKey,
		engineID: cfg.EngineID,
		baseURL:  baseURL,
		num:      num,
		fetchTop: cfg.FetchTopResult,
	}
}

func (w *WebSearch) Name() core.Capability {
	return core.CapabilityWebSearch
}

type searchItem struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

func (w *WebSearch) Invoke(ctx context.Context, req core.CapabilityRequest) (core.CapabilityResponse, error) {
	items, err := w.search(ctx, req.Query)
	if err != nil {
		return core.CapabilityResponse{}, err
	}
	if len(items) == 0 {
		return core.CapabilityResponse{}, fmt.Errorf("no search results for query")
	}

	citations := make([]core.Citation, 0, len(items))
	var sb strings.Builder
	for i, item := range items {
		snippet := w.sanitize(item.Snippet)
		citations = append(citations, core.Citation{
			Title:   w.sanitize(item.Title),
			URL:     item.Link,
			Snippet: snippet,
		})
		fmt.Fprintf(&sb, "%d. %s: %s\n", i+1, w.sanitize(item.Title), snippet)
	}

	if w.fetchTop {
		if page, err := w.fetchPage(ctx, items[0].Link); err != nil {
			log.FromCtx(ctx).Warn().Err(err).Str("url", items[0].Link).Msg("top result fetch failed, using snippets only")
		} else if page != "" {
			fmt.Fprintf(&sb, "\nTop result (%s):\n%s\n", items[0].Link, page)
		}
	}

	return core.CapabilityResponse{
		Text:      sb.String(),
		Citations: citations,
	}, nil
}

func (w *WebSearch) search(ctx context.Context, query string) ([]searchItem, error) {
	params := url.Values{}
	params.Set("key", w.apiKey)
	params.Set("cx", w.engineID)
	params.Set("q", query)
	params.Set("num", fmt.Sprintf("%d", w.num))

	var items []searchItem
	err := w.retrier.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"?"+params.Encode(), nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("User-Agent", core.AppUserAgent)

		resp, err := w.client.Do(req)
		if err != nil {
			return fmt.Errorf("search request: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("http %d: %s", resp.StatusCode, string(data))
		}

		var result struct {
			Items []searchItem `json:"items"`
		}
		if err := json.Unmarshal(data, &result); err != nil {
			return fmt.Errorf("decode: %w", err)
		}
		items = result.Items
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (w *WebSearch) fetchPage(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", core.AppUserAgent)

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	text, err := html2text.FromReader(io.LimitReader(resp.Body, maxPageSize), html2text.Options{
		OmitLinks:    true,
		PrettyTables: false,
	})
	if err != nil {
		return "", fmt.Errorf("reduce page: %w", err)
	}

	text = strings.TrimSpace(text)
	if len(text) > maxEvidenceLen {
		text = text[:maxEvidenceLen]
	}
	return text, nil
}

func (w *WebSearch) sanitize(s string) string {
	return strings.TrimSpace(html.UnescapeString(w.policy.Sanitize(s)))
}
