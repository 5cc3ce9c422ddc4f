// Package brave queries the Brave Search web API.
package brave

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"docmind/internal/search"
)

// DefaultBaseURL is the public Brave Search API root.
const DefaultBaseURL = "https://api.search.brave.com"

// Brave caps count at 20 per request.
const maxCount = 20

type Provider struct {
	id      string
	apiKey  string
	baseURL string
	client  *http.Client
}

var _ search.Provider = (*Provider)(nil)

func New(id, apiKey, baseURL string, client *http.Client) (*Provider, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Provider{id: id, apiKey: apiKey, baseURL: strings.TrimRight(baseURL, "/"), client: client}, nil
}

func (p *Provider) ID() string { return p.id }

// IsAvailable is a credential check; Brave has no unmetered health endpoint.
func (p *Provider) IsAvailable(context.Context) bool {
	return strings.TrimSpace(p.apiKey) != ""
}

func (p *Provider) Search(ctx context.Context, query string, opts search.Options) ([]search.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/res/v1/web/search", nil)
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}
	count := opts.Limit
	if count <= 0 || count > maxCount {
		count = maxCount
	}
	q := req.URL.Query()
	q.Set("q", query)
	q.Set("count", strconv.Itoa(count))
	if opts.Language != "" {
		q.Set("search_lang", opts.Language)
	}
	if opts.Region != "" {
		q.Set("country", opts.Region)
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("brave request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return nil, fmt.Errorf("brave status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var data struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
				Thumbnail   *struct {
					Src string `json:"src"`
				} `json:"thumbnail"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode brave response: %w", err)
	}

	results := make([]search.Result, 0, len(data.Web.Results))
	for _, item := range data.Web.Results {
		r := search.Result{
			Title:   item.Title,
			URL:     item.URL,
			Snippet: item.Description,
			Source:  p.id,
		}
		if item.Thumbnail != nil {
			r.Thumbnail = item.Thumbnail.Src
		}
		results = append(results, r)
	}
	return results, nil
}
