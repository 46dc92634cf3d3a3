package models

import "time"

// MediaKind is the media classification hint carried by a feed entry.
type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
	MediaKindNone  MediaKind = "none"
)

// SourceItem is one entry from the origin feed. Immutable once produced by
// the walker; malformed feed entries yield an empty MediaURLs slice, never nil.
type SourceItem struct {
	ID        string
	Title     string
	Permalink string
	MediaURLs []string
	Kind      MediaKind
}

// MediaAsset is a downloaded media file owned by the current pipeline run.
type MediaAsset struct {
	Path        string
	Size        int64
	ContentType string
	OriginURL   string
	SourceID    string
}

// DedupRecord is durable proof that a source item was already published.
type DedupRecord struct {
	SourceID     string
	RemotePostID string
	PublishedAt  time.Time
}
