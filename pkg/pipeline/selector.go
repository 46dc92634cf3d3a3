package pipeline

import (
	"context"
	"net/url"
	"path"
	"strings"

	"reposter/pkg/models"
)

// SkipReason explains why an item produced no publish action.
type SkipReason string

const (
	SkipNoMedia          SkipReason = "no-media"
	SkipDuplicate        SkipReason = "duplicate"
	SkipUnsupportedMedia SkipReason = "unsupported-media"
	SkipDuplicateRace    SkipReason = "duplicate-race"
)

// Action is the selector's decision for one item: either a publish with the
// chosen media URL and caption, or a skip with its reason.
type Action struct {
	Publish  bool
	Reason   SkipReason
	MediaURL string
	Caption  string
}

// DedupReader is the read side of the dedup store the selector consults.
type DedupReader interface {
	Has(ctx context.Context, sourceID string) (bool, error)
}

// Selector filters a feed item down to zero-or-one actionable publishes.
// Pure decision logic; the dedup read is its only side effect.
type Selector struct {
	store DedupReader
}

// NewSelector creates a selector backed by the given dedup store.
func NewSelector(store DedupReader) *Selector {
	return &Selector{store: store}
}

var (
	imageExtensions = map[string]bool{
		".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
	}
	videoExtensions = map[string]bool{
		".mp4": true, ".mov": true, ".webm": true, ".mkv": true,
	}
)

// Select decides what to do with item. Decision order: media presence,
// dedup store membership, then media type support. The returned error is
// only ever a store failure.
func (s *Selector) Select(ctx context.Context, item models.SourceItem) (Action, error) {
	if len(item.MediaURLs) == 0 || item.Kind == models.MediaKindNone {
		return Action{Reason: SkipNoMedia}, nil
	}

	seen, err := s.store.Has(ctx, item.ID)
	if err != nil {
		return Action{}, err
	}
	if seen {
		return Action{Reason: SkipDuplicate}, nil
	}

	for _, mediaURL := range item.MediaURLs {
		if supportedMediaURL(mediaURL, item.Kind) {
			return Action{
				Publish:  true,
				MediaURL: mediaURL,
				Caption:  item.Title,
			}, nil
		}
	}

	return Action{Reason: SkipUnsupportedMedia}, nil
}

// supportedMediaURL infers the media type from the URL extension, falling
// back to the feed's kind hint when the path carries no extension.
func supportedMediaURL(mediaURL string, kind models.MediaKind) bool {
	u, err := url.Parse(mediaURL)
	if err != nil {
		return false
	}

	ext := strings.ToLower(path.Ext(u.Path))
	if ext == "" {
		return kind == models.MediaKindImage || kind == models.MediaKindVideo
	}
	return imageExtensions[ext] || videoExtensions[ext]
}
