package pipeline

import (
	"context"
	"sync"
	"time"

	errs "reposter/pkg/errors"
	"reposter/pkg/logger"
	"reposter/pkg/models"
)

// DedupStore is the persistence and reservation dependency of the pipeline.
type DedupStore interface {
	DedupReader
	Record(ctx context.Context, sourceID, remotePostID string, publishedAt time.Time) error
	Reserve(sourceID string) bool
	Release(sourceID string)
}

// ItemSource yields source items in feed order until exhausted.
type ItemSource interface {
	Next(ctx context.Context) (models.SourceItem, bool, error)
}

// MediaFetcher downloads a media URL to local storage.
type MediaFetcher interface {
	Fetch(ctx context.Context, mediaURL, sourceID string) (*models.MediaAsset, error)
	Cleanup(asset *models.MediaAsset)
}

// RemotePublisher uploads an asset with its caption and returns the remote post id.
type RemotePublisher interface {
	Publish(ctx context.Context, asset *models.MediaAsset, caption string) (string, error)
}

// Pipeline drives feed items through select, reserve, fetch, publish and
// commit. A single producer walks the feed while a bounded worker pool runs
// items to their terminal state independently; the dedup store is the only
// shared mutable state.
type Pipeline struct {
	source    ItemSource
	selector  *Selector
	store     DedupStore
	fetcher   MediaFetcher
	publisher RemotePublisher
	workers   int
	logger    logger.Logger
}

// Options wires the pipeline's collaborators.
type Options struct {
	Source    ItemSource
	Store     DedupStore
	Fetcher   MediaFetcher
	Publisher RemotePublisher
	Workers   int
	Logger    logger.Logger
}

// New creates a pipeline from explicitly constructed collaborators.
func New(opts Options) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetLogger()
	}
	return &Pipeline{
		source:    opts.Source,
		selector:  NewSelector(opts.Store),
		store:     opts.Store,
		fetcher:   opts.Fetcher,
		publisher: opts.Publisher,
		workers:   opts.Workers,
		logger:    opts.Logger,
	}
}

// Run processes the feed until the walker is exhausted or the context is
// cancelled. Per-item failures are absorbed into the summary; only
// credential and store failures abort the run, since every remaining item
// would hit the same wall. Cancellation stops intake and lets in-flight
// items reach a terminal state.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	summary := NewSummary()
	var mu sync.Mutex
	var abortErr error

	recordAbort := func(err error) {
		mu.Lock()
		if abortErr == nil {
			abortErr = err
		}
		mu.Unlock()
		cancel()
	}

	jobs := make(chan models.SourceItem)

	// Single producer preserves feed order without worker coordination.
	go func() {
		defer close(jobs)
		for {
			item, ok, err := p.source.Next(runCtx)
			if err != nil {
				mu.Lock()
				summary.WalkError = err.Error()
				mu.Unlock()
				return
			}
			if !ok {
				return
			}
			select {
			case jobs <- item:
			case <-runCtx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for item := range jobs {
				outcome := p.process(runCtx, item, workerID)

				mu.Lock()
				summary.add(outcome)
				mu.Unlock()

				if outcome.abort != nil {
					recordAbort(outcome.abort)
				}
			}
		}(i)
	}

	wg.Wait()

	p.logger.InfoWithFields("run finished", map[string]interface{}{
		"committed": summary.Committed,
		"skipped":   summary.Skipped,
		"failed":    summary.Failed,
	})
	return summary, abortErr
}

// process runs one item through its state machine:
// Selected -> Reserved -> Fetching -> Publishing -> Committed | Failed.
func (p *Pipeline) process(ctx context.Context, item models.SourceItem, workerID int) ItemOutcome {
	log := p.logger.WithFields(map[string]interface{}{
		"source_id": item.ID,
		"worker_id": workerID,
	})

	action, err := p.selector.Select(ctx, item)
	if err != nil {
		t := errs.TypeOf(err)
		outcome := ItemOutcome{SourceID: item.ID, Status: StatusFailed, Reason: string(t)}
		if errs.IsAbort(t) {
			outcome.abort = err
		}
		return outcome
	}
	if !action.Publish {
		log.DebugWithFields("item skipped", map[string]interface{}{"reason": string(action.Reason)})
		return ItemOutcome{SourceID: item.ID, Status: StatusSkipped, Reason: string(action.Reason)}
	}

	// Check-and-reserve before any network work, so two workers never both
	// publish the same source id.
	if !p.store.Reserve(item.ID) {
		log.Debug("lost reservation race")
		return ItemOutcome{SourceID: item.ID, Status: StatusSkipped, Reason: string(SkipDuplicateRace)}
	}

	asset, err := p.fetcher.Fetch(ctx, action.MediaURL, item.ID)
	if err != nil {
		// No publish attempt reached the server yet, so releasing the
		// reservation cannot cause a duplicate post.
		p.store.Release(item.ID)
		log.WithError(err).Warn("media fetch failed")
		return ItemOutcome{SourceID: item.ID, Status: StatusFailed, Reason: string(errs.TypeOf(err))}
	}
	defer p.fetcher.Cleanup(asset)

	remoteID, err := p.publisher.Publish(ctx, asset, action.Caption)
	if err != nil {
		// The upload may have reached the server; the reservation stays so a
		// concurrent retry cannot double-post within this run.
		t := errs.TypeOf(err)
		outcome := ItemOutcome{SourceID: item.ID, Status: StatusFailed, Reason: string(t)}
		if errs.IsAbort(t) {
			outcome.abort = err
		}
		log.WithError(err).Warn("publish failed")
		return outcome
	}

	// The item is posted from here on, even if the record write fails. A
	// crash or store failure in this window risks one duplicate on a re-run;
	// the window is bounded to a single store round trip. The write is
	// detached from the run context so a cancellation arriving after the
	// upload cannot widen that window.
	if err := p.store.Record(context.WithoutCancel(ctx), item.ID, remoteID, time.Now().UTC()); err != nil {
		if errs.IsType(err, errs.ErrorTypeDuplicateKey) {
			log.WithField("remote_post_id", remoteID).Warn("dedup record already present, treating as committed")
			return ItemOutcome{SourceID: item.ID, Status: StatusCommitted, RemotePostID: remoteID}
		}
		log.WithError(err).Error("published but dedup record not committed; re-run may duplicate this item")
		return ItemOutcome{
			SourceID:     item.ID,
			Status:       StatusCommitted,
			RemotePostID: remoteID,
			abort:        err,
		}
	}

	log.InfoWithFields("item committed", map[string]interface{}{"remote_post_id": remoteID})
	return ItemOutcome{SourceID: item.ID, Status: StatusCommitted, RemotePostID: remoteID}
}
