package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	errs "reposter/pkg/errors"
	"reposter/pkg/logger"
	"reposter/pkg/retry"
)

func newTestFetcher(t *testing.T, maxBytes int64) *Fetcher {
	t.Helper()
	f, err := New(Options{
		Root:        t.TempDir(),
		MaxBytes:    maxBytes,
		Timeout:     5 * time.Second,
		MaxAttempts: 3,
		Backoff:     &retry.ConstantBackoff{Delay: time.Millisecond},
		Logger:      logger.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to create fetcher: %v", err)
	}
	return f
}

func TestFetchDownloadsMedia(t *testing.T) {
	const body = "fake jpeg bytes"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	f := newTestFetcher(t, 0)
	asset, err := f.Fetch(context.Background(), server.URL+"/cat.jpg", "a1")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if asset.Size != int64(len(body)) {
		t.Errorf("expected size %d, got %d", len(body), asset.Size)
	}
	if asset.ContentType != "image/jpeg" {
		t.Errorf("expected image/jpeg, got %s", asset.ContentType)
	}
	if filepath.Base(asset.Path) != "cat.jpg" {
		t.Errorf("expected file named after the URL, got %s", asset.Path)
	}
	if !strings.Contains(asset.Path, string(filepath.Separator)+"a1"+string(filepath.Separator)) {
		t.Errorf("expected path namespaced by source id, got %s", asset.Path)
	}

	data, err := os.ReadFile(asset.Path)
	if err != nil {
		t.Fatalf("failed to read downloaded file: %v", err)
	}
	if string(data) != body {
		t.Errorf("downloaded content mismatch: %q", data)
	}
}

func TestFetchDoesNotRetryMissingMedia(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		http.NotFound(w, r)
	}))
	defer server.Close()

	f := newTestFetcher(t, 0)
	_, err := f.Fetch(context.Background(), server.URL+"/gone.jpg", "a1")
	if !errs.IsType(err, errs.ErrorTypeMediaUnavailable) {
		t.Fatalf("expected media_unavailable, got %v", err)
	}
	if requests != 1 {
		t.Errorf("expected 1 request for a 404, got %d", requests)
	}
}

func TestFetchRetriesServerErrors(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	f := newTestFetcher(t, 0)
	_, err := f.Fetch(context.Background(), server.URL+"/flaky.jpg", "a1")
	if !errs.IsType(err, errs.ErrorTypeMediaUnavailable) {
		t.Fatalf("expected exhaustion as media_unavailable, got %v", err)
	}
	if requests != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", requests)
	}
}

func TestFetchRecoversAfterTransientError(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			http.Error(w, "try again", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png"))
	}))
	defer server.Close()

	f := newTestFetcher(t, 0)
	asset, err := f.Fetch(context.Background(), server.URL+"/cat.png", "a1")
	if err != nil {
		t.Fatalf("expected recovery on second attempt, got %v", err)
	}
	if requests != 2 {
		t.Errorf("expected 2 requests, got %d", requests)
	}
	if asset.Size != 3 {
		t.Errorf("expected 3 bytes, got %d", asset.Size)
	}
}

func TestFetchRejectsOversizedMedia(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("Content-Length", "1024")
		_, _ = w.Write(make([]byte, 1024))
	}))
	defer server.Close()

	f := newTestFetcher(t, 100)
	_, err := f.Fetch(context.Background(), server.URL+"/huge.mp4", "a1")
	if !errs.IsType(err, errs.ErrorTypeMediaTooLarge) {
		t.Fatalf("expected media_too_large, got %v", err)
	}
	if requests != 1 {
		t.Errorf("oversized media must not be retried, got %d requests", requests)
	}
}

func TestFetchRejectsOversizedStreamWithoutContentLength(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/gif")
		// Chunked response, no Content-Length header.
		flusher := w.(http.Flusher)
		for i := 0; i < 20; i++ {
			_, _ = w.Write(make([]byte, 10))
			flusher.Flush()
		}
	}))
	defer server.Close()

	f := newTestFetcher(t, 100)
	_, err := f.Fetch(context.Background(), server.URL+"/endless.gif", "a1")
	if !errs.IsType(err, errs.ErrorTypeMediaTooLarge) {
		t.Fatalf("expected media_too_large from mid-stream ceiling, got %v", err)
	}
}

func TestFetchTruncatedDownloadRetriesOnce(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Content-Length", "100")
		_, _ = w.Write(make([]byte, 10))
	}))
	defer server.Close()

	f := newTestFetcher(t, 0)
	_, err := f.Fetch(context.Background(), server.URL+"/cut.jpg", "a1")
	if !errs.IsType(err, errs.ErrorTypeMediaCorrupt) {
		t.Fatalf("expected media_corrupt for a truncated body, got %v", err)
	}
	if requests != 2 {
		t.Errorf("expected exactly one retry of a corrupt download, got %d requests", requests)
	}
}

func TestFetchRejectsUnsupportedContentType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>not media</html>"))
	}))
	defer server.Close()

	f := newTestFetcher(t, 0)
	_, err := f.Fetch(context.Background(), server.URL+"/page.jpg", "a1")
	if !errs.IsType(err, errs.ErrorTypeMediaUnavailable) {
		t.Fatalf("expected media_unavailable for text/html, got %v", err)
	}
}

func TestFetchLeavesNoPartialFiles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	root := t.TempDir()
	f, err := New(Options{
		Root:        root,
		MaxAttempts: 2,
		Backoff:     &retry.ConstantBackoff{Delay: time.Millisecond},
		Logger:      logger.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to create fetcher: %v", err)
	}

	_, _ = f.Fetch(context.Background(), server.URL+"/cat.jpg", "a1")

	entries, err := os.ReadDir(filepath.Join(root, "a1"))
	if err == nil && len(entries) > 0 {
		t.Errorf("expected no files left behind after failure, found %d", len(entries))
	}
}

func TestCleanupRemovesItemDirectory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("bytes"))
	}))
	defer server.Close()

	f := newTestFetcher(t, 0)
	asset, err := f.Fetch(context.Background(), server.URL+"/cat.jpg", "a1")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	f.Cleanup(asset)
	if _, err := os.Stat(asset.Path); !os.IsNotExist(err) {
		t.Errorf("expected media file removed by Cleanup, stat err: %v", err)
	}
}
