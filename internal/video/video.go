package video

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
	DefaultBaseURL    = "https://api.vk.com/method/video.search"
	DefaultAPIVersion = "5.199"
	DefaultTimeout    = 10 * time.Second
	DefaultMaxResults = 3

	// QuerySuffix narrows video search to films.
	QuerySuffix = " фильм"

	sortByRelevance = "2"
)

// ErrUpstream is matched by *APIError.
var ErrUpstream = errors.New("video api error")

// APIError is the error object the video API returns in place of a response.
type APIError struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("video api error code=%d msg=%s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error { return ErrUpstream }

// Item is one video search hit. URL is nil when the API gave no direct link.
type Item struct {
	Title string  `json:"title"`
	URL   *string `json:"url,omitempty"`
}

// Client is a minimal video search client.
type Client struct {
	token      string
	baseURL    string
	apiVersion string
	timeout    time.Duration
	httpClient *http.Client
}

// NewClient creates a video search client; empty or non-positive arguments
// fall back to the defaults.
func NewClient(token, baseURL, apiVersion string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		token:      token,
		baseURL:    baseURL,
		apiVersion: apiVersion,
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

// Name identifies this source in logs.
func (c *Client) Name() string { return "vk" }

type searchResponse struct {
	Error    *APIError `json:"error"`
	Response *struct {
		Items []rawItem `json:"items"`
	} `json:"response"`
}

type rawItem struct {
	Title     *string `json:"title"`
	DirectURL *string `json:"direct_url"`
}

// Search looks up films matching query, most relevant first, returning at
// most maxResults items.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]Item, error) {
	if maxResults < 1 {
		maxResults = DefaultMaxResults
	}
	q := strings.TrimSpace(query) + QuerySuffix

	params := url.Values{}
	params.Set("q", q)
	params.Set("count", strconv.Itoa(maxResults))
	params.Set("adult", "1")
	params.Set("access_token", c.token)
	params.Set("v", c.apiVersion)
	params.Set("sort", sortByRelevance)

	req, err := http.NewRequest(http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create video request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var parsed searchResponse
	if err := lookup.GetJSON(ctx, c.httpClient, req, &parsed); err != nil {
		return nil, fmt.Errorf("video search %q: %w", q, err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("video search %q: %w", q, parsed.Error)
	}

	items := []Item{}
	if parsed.Response == nil {
		return items, nil
	}
	for _, raw := range parsed.Response.Items {
		if len(items) == maxResults {
			break
		}
		title := q
		if raw.Title != nil && *raw.Title != "" {
			title = *raw.Title
		}
		items = append(items, Item{Title: title, URL: raw.DirectURL})
	}
	return items, nil
}
