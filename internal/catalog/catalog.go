package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/stupiduntilnot/kinobot/internal/lookup"
)

const (
	DefaultBaseURL = "https://api.poiskkino.dev/v1.4/movie/search"
	DefaultTimeout = 30 * time.Second
)

// ErrEmptyQuery is returned when Search is called with a blank query.
var ErrEmptyQuery = errors.New("catalog query is empty")

// Client is a minimal movie catalog search client.
type Client struct {
	apiKey     string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// NewClient creates a catalog client. Empty baseURL and non-positive timeout
// fall back to the defaults.
func NewClient(apiKey, baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

// Document is one movie in a search response. Every field may be absent.
type Document struct {
	Name        *string `json:"name"`
	Year        *int    `json:"year"`
	Description *string `json:"description"`
	Rating      *Rating `json:"rating"`
	Poster      *Poster `json:"poster"`
}

type Rating struct {
	KP *float64 `json:"kp"`
}

type Poster struct {
	URL *string `json:"url"`
}

type searchResponse struct {
	Docs []Document `json:"docs"`
}

// Search queries the catalog and returns the matching documents in upstream
// order. The whole call, body included, is bounded by the client timeout.
func (c *Client) Search(ctx context.Context, query string, page, limit int) ([]Document, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 1
	}

	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("limit", strconv.Itoa(limit))
	params.Set("query", query)

	req, err := http.NewRequest(http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("X-API-KEY", c.apiKey)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var parsed searchResponse
	if err := lookup.GetJSON(ctx, c.httpClient, req, &parsed); err != nil {
		return nil, fmt.Errorf("catalog search %q: %w", query, err)
	}
	return parsed.Docs, nil
}
