// Package websearch queries a SearxNG instance through its JSON API.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kirillkom/knowledge-assistant/internal/core/domain"
	"github.com/kirillkom/knowledge-assistant/internal/infrastructure/resilience"
)

const opSearch = "websearch.search"

type SearxNG struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
}

func NewSearxNG(baseURL string, executor *resilience.Executor) *SearxNG {
	return &SearxNG{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		executor:   executor,
	}
}

type searxResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

func (s *SearxNG) Search(ctx context.Context, query string, maxResults int) ([]domain.WebResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, opSearch, fmt.Errorf("query is required"))
	}
	if maxResults <= 0 {
		return []domain.WebResult{}, nil
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	endpoint := s.baseURL + "/search?" + params.Encode()

	var resp searxResponse
	call := func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("create search request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		httpResp, err := s.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("search request: %w", err)
		}
		defer httpResp.Body.Close()

		if httpResp.StatusCode >= 300 {
			return resilience.NewHTTPStatusError("searxng", "search", httpResp)
		}
		resp = searxResponse{}
		if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
			return fmt.Errorf("decode search response: %w", err)
		}
		return nil
	}

	var err error
	if s.executor != nil {
		err = s.executor.Execute(ctx, opSearch, call, resilience.ClassifyHTTPError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, resilience.WrapTemporary(opSearch, err, resilience.ClassifyHTTPError)
	}

	out := make([]domain.WebResult, 0, min(len(resp.Results), maxResults))
	for _, r := range resp.Results {
		if strings.TrimSpace(r.URL) == "" {
			continue
		}
		out = append(out, domain.WebResult{
			Title:   strings.TrimSpace(r.Title),
			Snippet: strings.TrimSpace(r.Content),
			URL:     r.URL,
		})
		if len(out) == maxResults {
			break
		}
	}
	return out, nil
}
