package models

// Listing mirrors the source platform's paginated feed JSON. The feed is
// treated as opaque beyond id, title and the media URL candidates; every
// field a post may lack is optional here so a malformed entry never fails
// the whole page.
type Listing struct {
	Data ListingData `json:"data"`
}

// ListingData holds one page of posts and the continuation token.
type ListingData struct {
	After    string  `json:"after"`
	Children []Child `json:"children"`
}

// Child wraps a single post.
type Child struct {
	Data Post `json:"data"`
}

// Post is the raw feed entry shape.
type Post struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Permalink string   `json:"permalink"`
	URL       string   `json:"url"`
	IsVideo   bool     `json:"is_video"`
	Media     *Media   `json:"media"`
	Preview   *Preview `json:"preview"`
}

// Media holds the platform-hosted video info.
type Media struct {
	Video HostedVideo `json:"reddit_video"`
}

// HostedVideo carries the direct playback URL.
type HostedVideo struct {
	FallbackURL string `json:"fallback_url"`
}

// Preview holds the still-image renditions of a post.
type Preview struct {
	Images []PreviewImage `json:"images"`
}

// PreviewImage is one rendition set.
type PreviewImage struct {
	Source ImageSource `json:"source"`
}

// ImageSource is the full-size rendition.
type ImageSource struct {
	URL string `json:"url"`
}
