package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	errs "reposter/pkg/errors"
	"reposter/pkg/logger"
	"reposter/pkg/models"
	"reposter/pkg/retry"
)

const defaultUserAgent = "reposter/1.0 (+feed ingest)"

// Client fetches pages from the source platform's JSON listing endpoint.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	userAgent   string
	maxAttempts int
	backoff     retry.BackoffStrategy
	logger      logger.Logger
}

// ClientOptions configures the feed client.
type ClientOptions struct {
	BaseURL     string
	UserAgent   string
	Timeout     time.Duration
	MaxAttempts int
	Backoff     retry.BackoffStrategy
	Logger      logger.Logger
}

// NewClient creates a feed client. Each page request gets a fresh timeout.
func NewClient(opts ClientOptions) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Backoff == nil {
		opts.Backoff = retry.DefaultExponentialBackoff()
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetLogger()
	}

	return &Client{
		httpClient:  &http.Client{Timeout: opts.Timeout},
		baseURL:     opts.BaseURL,
		userAgent:   opts.UserAgent,
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
		logger:      opts.Logger,
	}
}

// PageURL builds the listing URL for a source, continuation token and page size.
func (c *Client) PageURL(source, after string, pageSize int) string {
	q := url.Values{}
	q.Set("limit", fmt.Sprintf("%d", pageSize))
	q.Set("raw_json", "1")
	if after != "" {
		q.Set("after", after)
	}
	return fmt.Sprintf("%s/r/%s/.json?%s", c.baseURL, url.PathEscape(source), q.Encode())
}

// FetchPage retrieves one page of the feed. Transient failures are retried
// with bounded exponential backoff; exhausting the retries surfaces a
// PageFetchFailed error.
func (c *Client) FetchPage(ctx context.Context, source, after string, pageSize int) (*models.Listing, error) {
	pageURL := c.PageURL(source, after, pageSize)

	listing, err := retry.DoWithResult(func() (*models.Listing, error) {
		return c.fetchOnce(ctx, pageURL)
	}, &retry.Config{
		MaxAttempts: c.maxAttempts,
		Backoff:     c.backoff,
		RetryIf:     retry.DefaultRetryIf,
		Context:     ctx,
		Logger:      c.logger,
	})
	if err != nil {
		c.logger.ErrorWithFields("page fetch failed", map[string]interface{}{
			"source": source,
			"after":  after,
			"error":  err.Error(),
		})
		return nil, errs.Newf(errs.ErrorTypePageFetch, "fetch page for %s (after=%q): %v", source, after, err)
	}

	c.logger.DebugWithFields("page fetched", map[string]interface{}{
		"source": source,
		"after":  after,
		"items":  len(listing.Data.Children),
		"next":   listing.Data.After,
	})
	return listing, nil
}

func (c *Client) fetchOnce(ctx context.Context, pageURL string) (*models.Listing, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, errs.Newf(errs.ErrorTypeUnknown, "build request: %v", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errs.Newf(errs.ErrorTypeNetwork, "request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("listing returned status %d", resp.StatusCode)
		if errs.IsRetryableStatusCode(resp.StatusCode) {
			return nil, errs.WithCode(errs.ErrorTypeServerError, resp.StatusCode, msg)
		}
		return nil, errs.WithCode(errs.ErrorTypeUnknown, resp.StatusCode, msg)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Newf(errs.ErrorTypeNetwork, "read response body: %v", err)
	}

	var listing models.Listing
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, errs.Newf(errs.ErrorTypeUnknown, "parse listing JSON: %v", err)
	}

	return &listing, nil
}
