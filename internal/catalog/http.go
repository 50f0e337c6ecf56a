package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"shelfmind/internal/textutil"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	userAgent          = "shelfmind/1.0"
)

// MinMatchScore is the title/author similarity a search hit needs to be
// accepted when the query carries no ISBN.
const MinMatchScore = 0.8

// SearchResponse is the body of GET /books/search.
type SearchResponse struct {
	Results []Record `json:"results"`
}

// HTTPProvider queries a JSON catalog service.
type HTTPProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

var _ Provider = (*HTTPProvider)(nil)

// Option configures an HTTPProvider.
type Option func(*HTTPProvider)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *HTTPProvider) {
		if client != nil {
			p.httpClient = client
		}
	}
}

// WithTimeout sets the client-level request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(p *HTTPProvider) {
		if timeout > 0 {
			p.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// NewHTTPProvider creates a catalog client. The API key is optional.
func NewHTTPProvider(baseURL, apiKey string, opts ...Option) (*HTTPProvider, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("catalog base url required")
	}
	p := &HTTPProvider{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Name identifies the provider in logs.
func (p *HTTPProvider) Name() string { return "http" }

// Lookup searches the catalog and picks the best hit. An ISBN query accepts
// only an exact ISBN match; otherwise the hit with the highest title/author
// similarity at or above MinMatchScore wins.
func (p *HTTPProvider) Lookup(ctx context.Context, q Query) (Result, error) {
	isbn := normalizeISBN(q.ISBN)
	if isbn == "" && strings.TrimSpace(q.Title) == "" {
		return Unknown, errors.New("catalog query needs an isbn or a title")
	}
	endpoint, err := url.Parse(p.baseURL + "/books/search")
	if err != nil {
		return Unknown, fmt.Errorf("parse catalog url: %w", err)
	}
	params := url.Values{}
	if isbn != "" {
		params.Set("isbn", isbn)
	}
	if title := strings.TrimSpace(q.Title); title != "" {
		params.Set("title", title)
	}
	if author := strings.TrimSpace(q.Author); author != "" {
		params.Set("author", author)
	}
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return Unknown, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	requestStart := time.Now()
	resp, err := p.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return Unknown, fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return Unknown, nil
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return Unknown, fmt.Errorf("catalog search returned %d (latency=%v): %s", resp.StatusCode, latency, strings.TrimSpace(string(body)))
	}

	var payload SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Unknown, fmt.Errorf("decode catalog response: %w", err)
	}
	return bestMatch(q, payload.Results), nil
}

func bestMatch(q Query, records []Record) Result {
	if isbn := normalizeISBN(q.ISBN); isbn != "" {
		for _, r := range records {
			if normalizeISBN(r.ISBN) == isbn {
				return Result{Record: r, Known: true}
			}
		}
	}
	if strings.TrimSpace(q.Title) == "" {
		return Unknown
	}
	best, bestScore := -1, 0.0
	for i, r := range records {
		score := matchScore(q, r)
		if score >= MinMatchScore && score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return Unknown
	}
	r := records[best]
	if bestScore < r.Confidence {
		r.Confidence = bestScore
	}
	return Result{Record: r, Known: true}
}

func matchScore(q Query, r Record) float64 {
	return textutil.MatchScore(q.Title, q.Author, r.Title, r.Author)
}
