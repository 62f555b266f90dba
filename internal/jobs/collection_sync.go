package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/backoffice/internal/apiclient"
	"github.com/Checker-Finance/backoffice/internal/backoffice"
	"github.com/Checker-Finance/backoffice/internal/metrics"
	"github.com/Checker-Finance/backoffice/internal/publisher"
	"github.com/Checker-Finance/backoffice/internal/store"
	"github.com/Checker-Finance/backoffice/pkg/model"
)

// DefaultInterval is used when the configured interval is not positive.
const DefaultInterval = 5 * time.Minute

// ErrUnknownCollection is returned for a collection the API client cannot fetch.
var ErrUnknownCollection = errors.New("jobs: unknown collection")

// Fetcher resolves a collection name to its batched fetch.
type Fetcher interface {
	Collection(name string) (backoffice.CollectionFunc, bool)
}

// Relogin is the flag the client's login redirect raises.
type Relogin interface {
	Take() bool
	Redirect(ctx context.Context, reason string)
}

// LoginFunc establishes a fresh session.
type LoginFunc func(ctx context.Context) error

// Result describes one collection sync.
type Result struct {
	Collection string    `json:"collection"`
	Count      int       `json:"count"`
	Checksum   string    `json:"checksum,omitempty"`
	Changed    bool      `json:"changed"`
	SyncedAt   time.Time `json:"synced_at"`
	Error      string    `json:"error,omitempty"`

	Err error `json:"-"`
}

// CollectionSync periodically snapshots back-office collections into the store
// and announces each snapshot on the event bus.
type CollectionSync struct {
	logger      *zap.Logger
	fetcher     Fetcher
	store       store.Store
	publisher   publisher.Publisher
	source      string
	interval    time.Duration
	collections []string

	relogin Relogin
	login   LoginFunc

	mu       sync.Mutex // one run at a time
	stopOnce sync.Once
	stopCh   chan struct{}
	now      func() time.Time
}

// NewCollectionSync constructs a background job that runs every interval.
// A non-positive interval falls back to DefaultInterval.
func NewCollectionSync(logger *zap.Logger, fetcher Fetcher, st store.Store, pub publisher.Publisher,
	source string, interval time.Duration, collections []string) *CollectionSync {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pub == nil {
		pub = publisher.Noop{}
	}
	if interval <= 0 {
		logger.Warn("jobs.invalid_interval", zap.Duration("interval", interval), zap.Duration("default", DefaultInterval))
		interval = DefaultInterval
	}
	return &CollectionSync{
		logger:      logger,
		fetcher:     fetcher,
		store:       st,
		publisher:   pub,
		source:      source,
		interval:    interval,
		collections: collections,
		stopCh:      make(chan struct{}),
		now:         time.Now,
	}
}

// WithRelogin makes every run log in again first when flag is raised.
func (s *CollectionSync) WithRelogin(flag Relogin, login LoginFunc) *CollectionSync {
	s.relogin = flag
	s.login = login
	return s
}

// Collections returns the configured collection names.
func (s *CollectionSync) Collections() []string {
	return append([]string(nil), s.collections...)
}

// Start syncs once immediately, then on every tick until ctx ends or Stop is called.
func (s *CollectionSync) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("jobs.sync_started",
		zap.Duration("interval", s.interval),
		zap.Strings("collections", s.collections))

	s.RunOnce(ctx)
	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-s.stopCh:
			s.logger.Info("jobs.sync_stopped (manual stop)")
			return
		case <-ctx.Done():
			s.logger.Info("jobs.sync_stopped (context canceled)")
			return
		}
	}
}

// Stop halts the loop. Safe to call more than once.
func (s *CollectionSync) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// RunOnce syncs every configured collection.
func (s *CollectionSync) RunOnce(ctx context.Context) []Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	s.ensureSession(ctx)

	results := make([]Result, 0, len(s.collections))
	failed := 0
	for _, name := range s.collections {
		if ctx.Err() != nil {
			break
		}
		res := s.syncOne(ctx, name)
		if res.Err != nil {
			failed++
		}
		results = append(results, res)
	}

	s.logger.Info("jobs.sync_run_complete",
		zap.Int("collections", len(results)),
		zap.Int("failed", failed),
		zap.Duration("duration", time.Since(start)))
	return results
}

// SyncCollection syncs a single collection on demand.
func (s *CollectionSync) SyncCollection(ctx context.Context, name string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensureSession(ctx)
	return s.syncOne(ctx, name)
}

func (s *CollectionSync) ensureSession(ctx context.Context) {
	if s.relogin == nil || s.login == nil || !s.relogin.Take() {
		return
	}
	if err := s.login(ctx); err != nil {
		s.logger.Error("jobs.relogin_failed", zap.Error(err))
		metrics.IncError("jobs", "relogin")
		s.relogin.Redirect(ctx, "relogin_failed")
		return
	}
	s.logger.Info("jobs.relogin_success")
}

func (s *CollectionSync) syncOne(ctx context.Context, name string) Result {
	at := s.now()
	res := Result{Collection: name, SyncedAt: at.UTC()}

	fetch, ok := s.fetcher.Collection(name)
	if !ok {
		return s.fail(ctx, res, fmt.Errorf("%w: %s", ErrUnknownCollection, name))
	}

	records, count, err := fetch(ctx)
	if err != nil {
		return s.fail(ctx, res, fmt.Errorf("fetch %s: %w", name, err))
	}

	snap, err := store.NewSnapshot(name, records, count, at)
	if err != nil {
		return s.fail(ctx, res, err)
	}
	res.Count = snap.Count
	res.Checksum = snap.Checksum

	var previous string
	prev, err := s.store.GetSnapshot(ctx, name)
	switch {
	case err == nil:
		previous = prev.Checksum
	case !errors.Is(err, store.ErrNotFound):
		s.logger.Warn("jobs.previous_snapshot_unavailable", zap.String("collection", name), zap.Error(err))
	}
	res.Changed = previous != snap.Checksum

	if err := s.store.SaveSnapshot(ctx, snap); err != nil {
		return s.fail(ctx, res, fmt.Errorf("save %s: %w", name, err))
	}

	s.publish(ctx, model.TopicCollectionSynced, model.EventCollectionSynced, model.CollectionSynced{
		Collection:       name,
		Count:            snap.Count,
		Checksum:         snap.Checksum,
		PreviousChecksum: previous,
		Changed:          res.Changed,
		SyncedAt:         snap.SyncedAt,
	})

	result := "unchanged"
	if res.Changed {
		result = "ok"
	}
	metrics.IncSyncRun(name, result)
	metrics.SetSyncResult(name, snap.Count, at)

	s.logger.Info("jobs.sync_success",
		zap.String("collection", name),
		zap.Int("count", snap.Count),
		zap.Bool("changed", res.Changed))
	return res
}

func (s *CollectionSync) fail(ctx context.Context, res Result, err error) Result {
	res.Err = err
	res.Error = err.Error()

	s.logger.Error("jobs.sync_failed", zap.String("collection", res.Collection), zap.Error(err))
	metrics.IncSyncRun(res.Collection, "error")

	s.publish(ctx, model.TopicSyncFailed, model.EventSyncFailed, model.SyncFailed{
		Collection: res.Collection,
		Error:      err.Error(),
		Status:     apiclient.StatusCode(err),
		FailedAt:   res.SyncedAt,
	})
	return res
}

func (s *CollectionSync) publish(ctx context.Context, topic, eventType string, payload any) {
	env, err := model.NewEnvelope(topic, eventType, s.source, payload)
	if err != nil {
		s.logger.Warn("jobs.event_build_failed", zap.String("topic", topic), zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, env); err != nil {
		s.logger.Warn("jobs.publish_failed", zap.String("topic", topic), zap.Error(err))
	}
}
