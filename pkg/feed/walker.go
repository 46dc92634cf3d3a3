package feed

import (
	"context"
	"html"
	"strings"

	"reposter/pkg/logger"
	"reposter/pkg/models"
)

// PageFetcher is the transport dependency of the walker.
type PageFetcher interface {
	FetchPage(ctx context.Context, source, after string, pageSize int) (*models.Listing, error)
}

// Walker produces a lazy, finite sequence of source items from a paginated
// feed, bounded by an overall item limit. It is restartable from a
// continuation token and stops on feed end, repeated tokens, the limit, or
// a page fetch whose retries were exhausted.
type Walker struct {
	fetcher  PageFetcher
	source   string
	pageSize int
	limit    int
	logger   logger.Logger

	after   string
	buffer  []models.SourceItem
	yielded int
	done    bool
}

// NewWalker creates a walker over source, starting at the given continuation
// token ("" for the first page).
func NewWalker(fetcher PageFetcher, source, startToken string, pageSize, limit int, log logger.Logger) *Walker {
	if pageSize <= 0 {
		pageSize = 25
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Walker{
		fetcher:  fetcher,
		source:   source,
		pageSize: pageSize,
		limit:    limit,
		logger:   log,
		after:    startToken,
	}
}

// Token returns the continuation token of the last fetched page, usable to
// restart a walker where this one left off.
func (w *Walker) Token() string {
	return w.after
}

// Next returns the next source item. The second result is false when the
// sequence is exhausted. A non-nil error means the current page could not be
// fetched; items yielded before the error remain valid.
func (w *Walker) Next(ctx context.Context) (models.SourceItem, bool, error) {
	for {
		if w.limit > 0 && w.yielded >= w.limit {
			return models.SourceItem{}, false, nil
		}

		if len(w.buffer) > 0 {
			item := w.buffer[0]
			w.buffer = w.buffer[1:]
			w.yielded++
			return item, true, nil
		}

		if w.done {
			return models.SourceItem{}, false, nil
		}

		if err := w.fetchNextPage(ctx); err != nil {
			w.done = true
			return models.SourceItem{}, false, err
		}
	}
}

func (w *Walker) fetchNextPage(ctx context.Context) error {
	listing, err := w.fetcher.FetchPage(ctx, w.source, w.after, w.pageSize)
	if err != nil {
		return err
	}

	for _, child := range listing.Data.Children {
		item, ok := extractItem(w.source, child.Data)
		if !ok {
			continue
		}
		w.buffer = append(w.buffer, item)
	}

	next := listing.Data.After
	if next == "" {
		w.logger.DebugWithFields("feed exhausted", map[string]interface{}{
			"source": w.source,
		})
		w.done = true
		return nil
	}
	// A token that never advances would loop forever.
	if next == w.after {
		w.logger.WarnWithFields("pagination token unchanged, stopping", map[string]interface{}{
			"source": w.source,
			"token":  next,
		})
		w.done = true
		return nil
	}

	w.after = next
	return nil
}

// extractItem converts a raw feed post into a SourceItem. Posts without an id
// are dropped; posts with missing or malformed media fields yield an item
// with an empty media list rather than failing the page.
func extractItem(source string, post models.Post) (models.SourceItem, bool) {
	if post.ID == "" {
		return models.SourceItem{}, false
	}

	item := models.SourceItem{
		ID:        post.ID,
		Title:     post.Title,
		Permalink: post.Permalink,
		MediaURLs: []string{},
		Kind:      models.MediaKindNone,
	}

	switch {
	case post.IsVideo && post.Media != nil && post.Media.Video.FallbackURL != "":
		item.Kind = models.MediaKindVideo
		item.MediaURLs = append(item.MediaURLs, unescapeURL(post.Media.Video.FallbackURL))
	case post.Preview != nil && len(post.Preview.Images) > 0 && post.Preview.Images[0].Source.URL != "":
		item.Kind = models.MediaKindImage
		item.MediaURLs = append(item.MediaURLs, unescapeURL(post.Preview.Images[0].Source.URL))
	}

	// The direct URL field is a last-resort candidate for posts the richer
	// media blocks missed.
	if post.URL != "" && item.Kind != models.MediaKindNone {
		direct := unescapeURL(post.URL)
		if len(item.MediaURLs) == 0 || item.MediaURLs[0] != direct {
			item.MediaURLs = append(item.MediaURLs, direct)
		}
	}

	return item, true
}

func unescapeURL(raw string) string {
	return strings.ReplaceAll(html.UnescapeString(raw), "&amp;", "&")
}
