package intel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestFeedFetchesIndicators(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"indicators":["203.0.113.7","malware.example.com"]}`))
	}))
	defer srv.Close()

	feed, err := NewFeed(FeedConfig{URL: srv.URL})
	if err != nil {
		t.Fatalf("NewFeed failed: %v", err)
	}

	got, err := feed.Indicators(context.Background())
	if err != nil {
		t.Fatalf("Indicators failed: %v", err)
	}
	if len(got) != 2 || got[0] != "203.0.113.7" {
		t.Fatalf("unexpected indicators: %v", got)
	}
}

func TestFeedCachesWithinTTL(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"indicators":["a"]}`))
	}))
	defer srv.Close()

	feed, err := NewFeed(FeedConfig{URL: srv.URL, CacheTTL: time.Minute})
	if err != nil {
		t.Fatalf("NewFeed failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := feed.Indicators(context.Background()); err != nil {
			t.Fatalf("Indicators #%d failed: %v", i, err)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("upstream hit %d times, want 1 (cached)", calls.Load())
	}
}

func TestFeedEmptyIndicatorListIsValid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"indicators":[]}`))
	}))
	defer srv.Close()

	feed, _ := NewFeed(FeedConfig{URL: srv.URL})
	got, err := feed.Indicators(context.Background())
	if err != nil {
		t.Fatalf("Indicators failed: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty list, got %v", got)
	}
}

func TestFeedTimeoutSurfacesAsUpstreamTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{"indicators":[]}`))
	}))
	defer srv.Close()

	feed, _ := NewFeed(FeedConfig{URL: srv.URL, Timeout: 20 * time.Millisecond})
	if _, err := feed.Indicators(context.Background()); !errors.Is(err, ErrUpstreamTimeout) {
		t.Fatalf("error = %v, want ErrUpstreamTimeout", err)
	}
}
