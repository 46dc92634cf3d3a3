package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	errs "reposter/pkg/errors"
	"reposter/pkg/logger"
	"reposter/pkg/models"
	"reposter/pkg/retry"
)

const pageOne = `{
	"data": {
		"after": "t2",
		"children": [
			{"data": {
				"id": "a1",
				"title": "Cat",
				"permalink": "/r/pics/a1",
				"preview": {"images": [{"source": {"url": "http://cdn.example/cat.jpg?s=1&amp;w=2"}}]}
			}},
			{"data": {
				"id": "a2",
				"title": "Text only"
			}},
			{"data": {
				"title": "no id, dropped"
			}}
		]
	}
}`

const pageTwo = `{
	"data": {
		"after": "",
		"children": [
			{"data": {
				"id": "a3",
				"title": "Clip",
				"is_video": true,
				"media": {"reddit_video": {"fallback_url": "http://v.example/a3.mp4"}}
			}}
		]
	}
}`

func newTestClient(baseURL string, maxAttempts int) *Client {
	return NewClient(ClientOptions{
		BaseURL:     baseURL,
		MaxAttempts: maxAttempts,
		Timeout:     5 * time.Second,
		Backoff:     &retry.ConstantBackoff{Delay: time.Millisecond},
		Logger:      logger.NewNop(),
	})
}

func collect(t *testing.T, w *Walker) []models.SourceItem {
	t.Helper()
	var items []models.SourceItem
	for {
		item, ok, err := w.Next(context.Background())
		if err != nil {
			t.Fatalf("unexpected walker error: %v", err)
		}
		if !ok {
			return items
		}
		items = append(items, item)
	}
}

func TestWalkerTraversesPages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("after") {
		case "":
			fmt.Fprint(w, pageOne)
		case "t2":
			fmt.Fprint(w, pageTwo)
		default:
			t.Errorf("unexpected page token %q", r.URL.Query().Get("after"))
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	walker := NewWalker(newTestClient(server.URL, 3), "pics", "", 25, 10, logger.NewNop())
	items := collect(t, walker)

	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}

	if items[0].ID != "a1" || items[0].Kind != models.MediaKindImage {
		t.Errorf("unexpected first item: %+v", items[0])
	}
	if len(items[0].MediaURLs) == 0 || items[0].MediaURLs[0] != "http://cdn.example/cat.jpg?s=1&w=2" {
		t.Errorf("expected unescaped media URL, got %v", items[0].MediaURLs)
	}

	if items[1].ID != "a2" || items[1].Kind != models.MediaKindNone {
		t.Errorf("unexpected second item: %+v", items[1])
	}
	if items[1].MediaURLs == nil || len(items[1].MediaURLs) != 0 {
		t.Errorf("expected empty (not nil) media list for text post, got %v", items[1].MediaURLs)
	}

	if items[2].ID != "a3" || items[2].Kind != models.MediaKindVideo {
		t.Errorf("unexpected third item: %+v", items[2])
	}
}

func TestWalkerHonorsItemLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, pageOne)
	}))
	defer server.Close()

	walker := NewWalker(newTestClient(server.URL, 3), "pics", "", 25, 1, logger.NewNop())
	items := collect(t, walker)

	if len(items) != 1 {
		t.Fatalf("expected limit of 1 item, got %d", len(items))
	}
	if items[0].ID != "a1" {
		t.Errorf("expected a1 first, got %s", items[0].ID)
	}
}

func TestWalkerSurfacesPageFetchFailure(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	walker := NewWalker(newTestClient(server.URL, 3), "pics", "", 25, 10, logger.NewNop())

	_, ok, err := walker.Next(context.Background())
	if ok {
		t.Fatal("expected no item from a failing feed")
	}
	if !errs.IsType(err, errs.ErrorTypePageFetch) {
		t.Fatalf("expected page_fetch_failed error, got %v", err)
	}
	if requests != 3 {
		t.Errorf("expected exactly 3 fetch attempts, got %d", requests)
	}

	// The walker stays terminated after the failure.
	_, ok, err = walker.Next(context.Background())
	if ok || err != nil {
		t.Errorf("expected a clean end after failure, got ok=%v err=%v", ok, err)
	}
}

func TestWalkerStopsOnRepeatedToken(t *testing.T) {
	page := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page++
		fmt.Fprintf(w, `{"data": {"after": "loop", "children": [
			{"data": {"id": "p%d", "title": "Post", "preview": {"images": [{"source": {"url": "http://cdn.example/p%d.jpg"}}]}}}
		]}}`, page, page)
	}))
	defer server.Close()

	walker := NewWalker(newTestClient(server.URL, 3), "pics", "", 25, 100, logger.NewNop())
	items := collect(t, walker)

	// First page advances the token to "loop"; the second page repeats it
	// and traversal must stop instead of looping forever.
	if len(items) != 2 {
		t.Errorf("expected 2 items before the repeated token stop, got %d", len(items))
	}
}
