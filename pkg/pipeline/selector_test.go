package pipeline

import (
	"context"
	"testing"

	errs "reposter/pkg/errors"
	"reposter/pkg/models"
)

type stubDedupReader struct {
	seen map[string]bool
	err  error

	hasCalls int
}

func (s *stubDedupReader) Has(ctx context.Context, sourceID string) (bool, error) {
	s.hasCalls++
	if s.err != nil {
		return false, s.err
	}
	return s.seen[sourceID], nil
}

func TestSelectSkipsTextOnlyPosts(t *testing.T) {
	store := &stubDedupReader{}
	selector := NewSelector(store)

	action, err := selector.Select(context.Background(), models.SourceItem{
		ID:        "a2",
		Title:     "Text only",
		MediaURLs: []string{},
		Kind:      models.MediaKindNone,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if action.Publish || action.Reason != SkipNoMedia {
		t.Errorf("expected no-media skip, got %+v", action)
	}
	if store.hasCalls != 0 {
		t.Error("no-media decision must not touch the dedup store")
	}
}

func TestSelectSkipsAlreadyPublished(t *testing.T) {
	selector := NewSelector(&stubDedupReader{seen: map[string]bool{"a1": true}})

	action, err := selector.Select(context.Background(), models.SourceItem{
		ID:        "a1",
		Title:     "Cat",
		MediaURLs: []string{"http://x/cat.jpg"},
		Kind:      models.MediaKindImage,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if action.Publish || action.Reason != SkipDuplicate {
		t.Errorf("expected duplicate skip, got %+v", action)
	}
}

func TestSelectPicksFirstSupportedURL(t *testing.T) {
	selector := NewSelector(&stubDedupReader{})

	action, err := selector.Select(context.Background(), models.SourceItem{
		ID:        "a1",
		Title:     "Cat",
		MediaURLs: []string{"http://x/page.html", "http://x/cat.jpg", "http://x/clip.mp4"},
		Kind:      models.MediaKindImage,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !action.Publish {
		t.Fatalf("expected publish action, got skip %q", action.Reason)
	}
	if action.MediaURL != "http://x/cat.jpg" {
		t.Errorf("expected first supported URL, got %s", action.MediaURL)
	}
	if action.Caption != "Cat" {
		t.Errorf("expected title as caption, got %q", action.Caption)
	}
}

func TestSelectFallsBackToKindHint(t *testing.T) {
	selector := NewSelector(&stubDedupReader{})

	// Extensionless CDN URL; the feed's kind hint decides.
	action, err := selector.Select(context.Background(), models.SourceItem{
		ID:        "v1",
		Title:     "Clip",
		MediaURLs: []string{"http://v.example/DASH_720"},
		Kind:      models.MediaKindVideo,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !action.Publish {
		t.Errorf("expected publish via kind hint, got skip %q", action.Reason)
	}
}

func TestSelectSkipsUnsupportedMedia(t *testing.T) {
	selector := NewSelector(&stubDedupReader{})

	action, err := selector.Select(context.Background(), models.SourceItem{
		ID:        "a9",
		Title:     "Link post",
		MediaURLs: []string{"http://x/article.html", "http://x/doc.pdf"},
		Kind:      models.MediaKindImage,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if action.Publish || action.Reason != SkipUnsupportedMedia {
		t.Errorf("expected unsupported-media skip, got %+v", action)
	}
}

func TestSelectPropagatesStoreFailure(t *testing.T) {
	selector := NewSelector(&stubDedupReader{
		err: errs.New(errs.ErrorTypeStoreUnavailable, "disk gone"),
	})

	_, err := selector.Select(context.Background(), models.SourceItem{
		ID:        "a1",
		MediaURLs: []string{"http://x/cat.jpg"},
		Kind:      models.MediaKindImage,
	})
	if !errs.IsType(err, errs.ErrorTypeStoreUnavailable) {
		t.Errorf("expected store_unavailable, got %v", err)
	}
}
