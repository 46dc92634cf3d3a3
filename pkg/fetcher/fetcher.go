package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	errs "reposter/pkg/errors"
	"reposter/pkg/logger"
	"reposter/pkg/models"
	"reposter/pkg/retry"
)

// Fetcher downloads media files to local storage. Downloads are streamed
// under a size ceiling, verified against the declared content length, and
// written atomically via a temp file rename.
type Fetcher struct {
	httpClient  *http.Client
	root        string
	maxBytes    int64
	timeout     time.Duration
	maxAttempts int
	backoff     retry.BackoffStrategy
	logger      logger.Logger
}

// Options configures the fetcher.
type Options struct {
	Root        string
	MaxBytes    int64 // 0 means no ceiling
	Timeout     time.Duration
	MaxAttempts int
	Backoff     retry.BackoffStrategy
	Logger      logger.Logger
}

// New creates a fetcher writing under opts.Root.
func New(opts Options) (*Fetcher, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("media storage root is required")
	}
	if err := os.MkdirAll(opts.Root, 0755); err != nil {
		return nil, fmt.Errorf("create media storage root: %w", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Backoff == nil {
		opts.Backoff = &retry.ExponentialBackoff{
			BaseDelay:    500 * time.Millisecond,
			MaxDelay:     15 * time.Second,
			Multiplier:   2.0,
			JitterFactor: 0.2,
		}
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetLogger()
	}

	return &Fetcher{
		httpClient:  &http.Client{},
		root:        opts.Root,
		maxBytes:    opts.MaxBytes,
		timeout:     opts.Timeout,
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
		logger:      opts.Logger,
	}, nil
}

// Fetch downloads mediaURL into the storage root, namespaced per source id.
// Transient failures are retried with backoff and jitter; a corrupt download
// (byte count disagreeing with the declared content length) is retried once;
// oversized media and permanent server answers fail immediately.
func (f *Fetcher) Fetch(ctx context.Context, mediaURL, sourceID string) (*models.MediaAsset, error) {
	corruptRetries := 0

	asset, err := retry.DoWithResult(func() (*models.MediaAsset, error) {
		return f.fetchOnce(ctx, mediaURL, sourceID)
	}, &retry.Config{
		MaxAttempts: f.maxAttempts,
		Backoff:     f.backoff,
		Context:     ctx,
		Logger:      f.logger,
		RetryIf: func(err error) bool {
			switch errs.TypeOf(err) {
			case errs.ErrorTypeMediaCorrupt:
				corruptRetries++
				return corruptRetries <= 1
			case errs.ErrorTypeNetwork, errs.ErrorTypeServerError, errs.ErrorTypeRateLimit:
				return true
			default:
				return false
			}
		},
	})
	if err != nil {
		switch errs.TypeOf(err) {
		case errs.ErrorTypeMediaTooLarge, errs.ErrorTypeMediaCorrupt, errs.ErrorTypeMediaUnavailable:
			return nil, err
		default:
			return nil, errs.Newf(errs.ErrorTypeMediaUnavailable, "download %s: %v", mediaURL, err)
		}
	}

	f.logger.DebugWithFields("media downloaded", map[string]interface{}{
		"source_id": sourceID,
		"url":       mediaURL,
		"path":      asset.Path,
		"size":      asset.Size,
	})
	return asset, nil
}

// Cleanup removes the per-item media directory. Assets are never retained
// across runs; the pipeline calls this once the publish attempt is terminal.
func (f *Fetcher) Cleanup(asset *models.MediaAsset) {
	if asset == nil || asset.SourceID == "" {
		return
	}
	dir := filepath.Join(f.root, asset.SourceID)
	if err := os.RemoveAll(dir); err != nil {
		f.logger.WarnWithFields("failed to clean up media", map[string]interface{}{
			"source_id": asset.SourceID,
			"error":     err.Error(),
		})
	}
}

func (f *Fetcher) fetchOnce(ctx context.Context, mediaURL, sourceID string) (*models.MediaAsset, error) {
	// Each attempt gets its own timeout budget.
	attemptCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, errs.Newf(errs.ErrorTypeMediaUnavailable, "build request: %v", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, errs.Newf(errs.ErrorTypeNetwork, "request failed: %v", err)
	}
	defer resp.Body.Close()

	if err := f.checkResponse(resp); err != nil {
		return nil, err
	}

	if f.maxBytes > 0 && resp.ContentLength > f.maxBytes {
		return nil, errs.Newf(errs.ErrorTypeMediaTooLarge,
			"declared size %d exceeds ceiling %d", resp.ContentLength, f.maxBytes)
	}

	dir := filepath.Join(f.root, sourceID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errs.Newf(errs.ErrorTypeMediaUnavailable, "create media dir: %v", err)
	}

	target := filepath.Join(dir, fileNameFor(mediaURL))
	written, err := f.saveStream(resp.Body, target)
	if err != nil {
		return nil, err
	}

	if resp.ContentLength > 0 && written != resp.ContentLength {
		_ = os.Remove(target)
		return nil, errs.Newf(errs.ErrorTypeMediaCorrupt,
			"wrote %d bytes, server declared %d", written, resp.ContentLength)
	}

	return &models.MediaAsset{
		Path:        target,
		Size:        written,
		ContentType: resp.Header.Get("Content-Type"),
		OriginURL:   mediaURL,
		SourceID:    sourceID,
	}, nil
}

func (f *Fetcher) checkResponse(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return errs.WithCode(errs.ErrorTypeRateLimit, resp.StatusCode, "media host rate limited")
	case resp.StatusCode >= 500:
		return errs.WithCode(errs.ErrorTypeServerError, resp.StatusCode, "media host server error")
	default:
		return errs.WithCode(errs.ErrorTypeMediaUnavailable, resp.StatusCode,
			fmt.Sprintf("media host returned status %d", resp.StatusCode))
	}

	ct := resp.Header.Get("Content-Type")
	if ct != "" && !supportedContentType(ct) {
		return errs.Newf(errs.ErrorTypeMediaUnavailable, "unsupported content type %q", ct)
	}
	return nil
}

// saveStream writes the body to target through a temp file so a partial
// download never appears at the final path. The limit reader enforces the
// size ceiling mid-stream for servers that omit the content length.
func (f *Fetcher) saveStream(body io.Reader, target string) (int64, error) {
	tmp := target + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return 0, errs.Newf(errs.ErrorTypeMediaUnavailable, "create temp file: %v", err)
	}

	reader := body
	if f.maxBytes > 0 {
		reader = io.LimitReader(body, f.maxBytes+1)
	}

	written, copyErr := io.Copy(out, reader)
	closeErr := out.Close()

	if copyErr != nil {
		_ = os.Remove(tmp)
		// The transport reports a body shorter than the declared content
		// length as an unexpected EOF; that is a corrupt download, not a
		// connection-level failure.
		if errors.Is(copyErr, io.ErrUnexpectedEOF) {
			return 0, errs.Newf(errs.ErrorTypeMediaCorrupt, "stream truncated: %v", copyErr)
		}
		return 0, errs.Newf(errs.ErrorTypeNetwork, "stream copy: %v", copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(tmp)
		return 0, errs.Newf(errs.ErrorTypeMediaUnavailable, "close temp file: %v", closeErr)
	}
	if f.maxBytes > 0 && written > f.maxBytes {
		_ = os.Remove(tmp)
		return 0, errs.Newf(errs.ErrorTypeMediaTooLarge, "download exceeds ceiling %d", f.maxBytes)
	}

	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return 0, errs.Newf(errs.ErrorTypeMediaUnavailable, "rename temp file: %v", err)
	}
	return written, nil
}

func supportedContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(strings.Split(ct, ";")[0]))
	return strings.HasPrefix(ct, "image/") ||
		strings.HasPrefix(ct, "video/") ||
		ct == "application/octet-stream"
}

func fileNameFor(mediaURL string) string {
	name := "media.bin"
	if u, err := url.Parse(mediaURL); err == nil {
		if base := path.Base(u.Path); base != "" && base != "/" && base != "." {
			name = base
		}
	}
	return name
}
