package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	errs "reposter/pkg/errors"
	"reposter/pkg/logger"
	"reposter/pkg/models"
	"reposter/pkg/ratelimit"
	"reposter/pkg/retry"
)

// Publisher uploads media and captions to the destination platform's
// publishing API. Uploads are single-request multipart posts under the
// configured size ceiling; chunked upload is not implemented.
type Publisher struct {
	httpClient      *http.Client
	endpoint        string
	token           string
	accountID       string
	captionSuffix   string
	timeout         time.Duration
	maxAttempts     int
	rateLimitFloor  time.Duration
	backoff         retry.BackoffStrategy
	limiter         ratelimit.Limiter
	logger          logger.Logger
}

// Options configures the publisher.
type Options struct {
	Endpoint       string
	Token          string
	AccountID      string
	CaptionSuffix  string
	Timeout        time.Duration
	MaxAttempts    int
	RateLimitFloor time.Duration // backoff floor when the API omits Retry-After
	Backoff        retry.BackoffStrategy
	Limiter        ratelimit.Limiter
	Logger         logger.Logger
}

// attempt is the transient in-memory record of one publish-with-retry loop.
type attempt struct {
	sourceID string
	count    int
	lastErr  error
}

// New creates a publisher for one destination account.
func New(opts Options) (*Publisher, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("publish endpoint is required")
	}
	if opts.Token == "" {
		return nil, fmt.Errorf("destination credential is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.RateLimitFloor <= 0 {
		opts.RateLimitFloor = 30 * time.Second
	}
	if opts.Backoff == nil {
		opts.Backoff = &retry.ExponentialBackoff{
			BaseDelay:    2 * time.Second,
			MaxDelay:     60 * time.Second,
			Multiplier:   2.0,
			JitterFactor: 0.1,
		}
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetLogger()
	}

	return &Publisher{
		httpClient:     &http.Client{},
		endpoint:       opts.Endpoint,
		token:          opts.Token,
		accountID:      opts.AccountID,
		captionSuffix:  opts.CaptionSuffix,
		timeout:        opts.Timeout,
		maxAttempts:    opts.MaxAttempts,
		rateLimitFloor: opts.RateLimitFloor,
		backoff:        opts.Backoff,
		limiter:        opts.Limiter,
		logger:         opts.Logger,
	}, nil
}

type publishResponse struct {
	ID string `json:"id"`
}

// Publish uploads the asset with its caption and returns the remote post id.
// Rate-limit answers are honored for the duration the API indicates (or the
// configured floor), server errors are retried with exponential backoff, and
// credential failures surface immediately without retry. A returned id means
// the item is posted even if later bookkeeping fails.
func (p *Publisher) Publish(ctx context.Context, asset *models.MediaAsset, caption string) (string, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			// Operator cancellation, not a destination fault.
			return "", fmt.Errorf("publish cancelled: %w", err)
		}
	}

	att := attempt{sourceID: asset.SourceID}
	fullCaption := caption
	if p.captionSuffix != "" {
		fullCaption = caption + "\n" + p.captionSuffix
	}

	for {
		att.count++
		if att.count > p.maxAttempts {
			break
		}

		remoteID, retryAfter, err := p.publishOnce(ctx, asset, fullCaption)
		if err == nil {
			if att.count > 1 {
				p.logger.InfoWithFields("publish succeeded after retry", map[string]interface{}{
					"source_id": att.sourceID,
					"attempts":  att.count,
				})
			}
			return remoteID, nil
		}
		att.lastErr = err

		t := errs.TypeOf(err)
		if !errs.IsRetryable(t) {
			return "", err
		}

		delay := p.backoff.NextDelay(att.count)
		if t == errs.ErrorTypeRateLimit {
			delay = retryAfter
			if delay < p.rateLimitFloor {
				delay = p.rateLimitFloor
			}
		}

		p.logger.WarnWithFields("retrying publish", map[string]interface{}{
			"source_id": att.sourceID,
			"attempt":   att.count,
			"error":     err.Error(),
			"delay_ms":  delay.Milliseconds(),
		})

		if err := retry.Wait(ctx, delay); err != nil {
			return "", fmt.Errorf("publish cancelled: %w", err)
		}
	}

	t := errs.TypeOf(att.lastErr)
	if t == errs.ErrorTypeRateLimit {
		return "", errs.Newf(errs.ErrorTypeRateLimit,
			"rate limited after %d attempts: %v", att.count-1, att.lastErr)
	}
	return "", errs.Newf(errs.ErrorTypeServerError,
		"publish failed after %d attempts: %v", att.count-1, att.lastErr)
}

// publishOnce performs a single upload attempt. The second result carries the
// server-indicated retry delay for rate-limit answers.
func (p *Publisher) publishOnce(ctx context.Context, asset *models.MediaAsset, caption string) (string, time.Duration, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	body, contentType, err := p.buildBody(asset, caption)
	if err != nil {
		return "", 0, err
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, p.endpoint, body)
	if err != nil {
		return "", 0, errs.Newf(errs.ErrorTypeUnknown, "build request: %v", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", 0, errs.Newf(errs.ErrorTypeNetwork, "upload failed: %v", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		return p.decodeResponse(resp)
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", parseRetryAfter(resp), errs.WithCode(errs.ErrorTypeRateLimit,
			resp.StatusCode, "destination rate limited")
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", 0, errs.WithCode(errs.ErrorTypeUnauthorized,
			resp.StatusCode, "credential rejected by destination")
	case resp.StatusCode >= 500:
		return "", 0, errs.WithCode(errs.ErrorTypeServerError,
			resp.StatusCode, "destination server error")
	default:
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", 0, errs.WithCode(errs.ErrorTypeUnknown, resp.StatusCode,
			fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, payload))
	}
}

func (p *Publisher) decodeResponse(resp *http.Response) (string, time.Duration, error) {
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, errs.Newf(errs.ErrorTypeNetwork, "read response: %v", err)
	}

	var pr publishResponse
	if err := json.Unmarshal(payload, &pr); err != nil || pr.ID == "" {
		return "", 0, errs.Newf(errs.ErrorTypeUnknown, "response missing post id: %s", payload)
	}
	return pr.ID, 0, nil
}

// buildBody assembles the multipart form. Rebuilt on every attempt since the
// request body reader cannot be replayed.
func (p *Publisher) buildBody(asset *models.MediaAsset, caption string) (io.Reader, string, error) {
	file, err := os.Open(asset.Path)
	if err != nil {
		return nil, "", errs.Newf(errs.ErrorTypeUnknown, "open media file: %v", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("caption", caption); err != nil {
		return nil, "", errs.Newf(errs.ErrorTypeUnknown, "write caption field: %v", err)
	}
	if p.accountID != "" {
		if err := w.WriteField("account_id", p.accountID); err != nil {
			return nil, "", errs.Newf(errs.ErrorTypeUnknown, "write account field: %v", err)
		}
	}

	part, err := w.CreateFormFile("media", filepath.Base(asset.Path))
	if err != nil {
		return nil, "", errs.Newf(errs.ErrorTypeUnknown, "create media part: %v", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", errs.Newf(errs.ErrorTypeUnknown, "copy media bytes: %v", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", errs.Newf(errs.ErrorTypeUnknown, "finalize multipart body: %v", err)
	}

	return &buf, w.FormDataContentType(), nil
}

func parseRetryAfter(resp *http.Response) time.Duration {
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(raw); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
