package intel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ErrUpstreamTimeout reports that the feed did not answer within the
// call budget.
var ErrUpstreamTimeout = errors.New("threat intel fetch exceeded budget")

// FeedConfig configures the threat-intelligence feed client.
type FeedConfig struct {
	URL      string
	Timeout  time.Duration
	CacheTTL time.Duration
	Headers  map[string]string
}

// Feed fetches the indicator list from an external threat-intelligence
// endpoint. Responses are cached for a short TTL so every correlation
// does not hit the upstream.
type Feed struct {
	url     string
	headers map[string]string
	client  *http.Client
	cache   *expirable.LRU[string, []string]
}

type feedResponse struct {
	Indicators []string `json:"indicators"`
}

const cacheKey = "indicators"

// NewFeed creates a feed client.
func NewFeed(cfg FeedConfig) (*Feed, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("threat intel URL is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Feed{
		url:     cfg.URL,
		headers: cfg.Headers,
		client:  &http.Client{Timeout: timeout},
		cache:   expirable.NewLRU[string, []string](1, nil, ttl),
	}, nil
}

// Indicators returns the current indicator list. An empty list is a
// valid response. Timeouts surface as ErrUpstreamTimeout.
func (f *Feed) Indicators(ctx context.Context) ([]string, error) {
	if cached, ok := f.cache.Get(cacheKey); ok {
		return cached, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create intel request: %w", err)
	}
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
		}
		return nil, fmt.Errorf("intel request failed: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("intel request failed with status %s", resp.Status)
	}

	var parsed feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode intel response: %w", err)
	}

	f.cache.Add(cacheKey, parsed.Indicators)
	return parsed.Indicators, nil
}
