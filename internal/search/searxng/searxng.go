// Package searxng queries a SearXNG instance through its JSON API.
package searxng

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"docmind/internal/search"
)

type Provider struct {
	id      string
	baseURL string
	client  *http.Client
}

var _ search.Provider = (*Provider)(nil)

func New(id, baseURL string, client *http.Client) (*Provider, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		return nil, errors.New("base url must not be empty")
	}
	return &Provider{id: id, baseURL: baseURL, client: client}, nil
}

func (p *Provider) ID() string { return p.id }

// IsAvailable hits the instance health endpoint.
func (p *Provider) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (p *Provider) Search(ctx context.Context, query string, opts search.Options) ([]search.Result, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("pageno", "1")
	if lang := opts.Language; lang != "" {
		if opts.Region != "" {
			lang = lang + "-" + strings.ToUpper(opts.Region)
		}
		q.Set("language", lang)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("searxng request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return nil, fmt.Errorf("searxng status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var data struct {
		Results []struct {
			Title     string `json:"title"`
			URL       string `json:"url"`
			Content   string `json:"content"`
			Engine    string `json:"engine"`
			Thumbnail string `json:"thumbnail"`
			ImgSrc    string `json:"img_src"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode searxng response: %w", err)
	}

	results := make([]search.Result, 0, len(data.Results))
	for _, item := range data.Results {
		thumb := item.Thumbnail
		if thumb == "" {
			thumb = item.ImgSrc
		}
		source := item.Engine
		if source == "" {
			source = p.id
		}
		results = append(results, search.Result{
			Title:     item.Title,
			URL:       item.URL,
			Snippet:   item.Content,
			Source:    source,
			Thumbnail: thumb,
		})
		if opts.Limit > 0 && len(results) >= opts.Limit {
			break
		}
	}
	return results, nil
}
