package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"djenwatch/internal/comm"
	"djenwatch/internal/djen"
	"djenwatch/internal/logging"
	"djenwatch/internal/metrics"
	"djenwatch/internal/pacing"
	"djenwatch/internal/services"
	"djenwatch/internal/timeline"
)

const (
	// DefaultMaxPerPass caps AI calls in one pass.
	DefaultMaxPerPass = 10
	// MinDelay is the mandatory spacing between AI calls.
	MinDelay = 500 * time.Millisecond
)

// KV is the durable storage behind the cache, keyed by case number.
type KV interface {
	LoadCacheEntries(ctx context.Context) (map[string][]byte, error)
	PutCacheEntry(ctx context.Context, key string, payload []byte) error
	DeleteCacheEntry(ctx context.Context, key string) error
	ClearCache(ctx context.Context) (int, error)
}

// Fetcher retrieves communications for a case from the directory.
type Fetcher interface {
	FetchAll(ctx context.Context, filter djen.Filter, onProgress djen.ProgressFunc) (djen.Result, error)
	FetchLatest(ctx context.Context, caseNumber string) (*comm.Communication, error)
}

// ProgressFunc receives (done, total) as events are analyzed. A pass that
// needs no analysis reports (n, n) once.
type ProgressFunc func(done, total int)

// Options tunes a Service.
type Options struct {
	MaxPerPass int
	Delay      time.Duration
	TTL        time.Duration
}

// Result summarizes one pass.
type Result struct {
	CaseNumber string
	Events     []timeline.Event
	// Analyzed counts AI calls that succeeded in this pass.
	Analyzed int
	// Failed counts AI calls that returned no usable analysis.
	Failed int
	// Pending counts events still without analysis after the pass.
	Pending  int
	CacheHit bool
}

// Service is the per-process analysis cache.
type Service struct {
	kv         KV
	fetcher    Fetcher
	summarizer Summarizer
	pacer      *pacing.Pacer
	maxPerPass int
	ttl        time.Duration
	clock      pacing.Clock
	logger     *slog.Logger
	metrics    *metrics.Metrics

	mu      sync.RWMutex
	entries map[string]*Entry
	locks   keyedMutex
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the pacing and timestamp clock.
func WithClock(clock pacing.Clock) Option {
	return func(s *Service) { s.clock = clock }
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logging.NewComponentLogger(logger, "analysis") }
}

// WithMetrics attaches metrics collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New builds the cache and loads every persisted entry from kv. A nil
// summarizer disables AI analysis; events are still classified and cached.
// Entries that fail to decode are dropped with a warning.
func New(ctx context.Context, kv KV, fetcher Fetcher, summarizer Summarizer, opts Options, options ...Option) (*Service, error) {
	s := &Service{
		kv:         kv,
		fetcher:    fetcher,
		summarizer: summarizer,
		maxPerPass: opts.MaxPerPass,
		ttl:        opts.TTL,
		clock:      pacing.RealClock(),
		logger:     logging.NewComponentLogger(nil, "analysis"),
		entries:    make(map[string]*Entry),
	}
	if s.maxPerPass <= 0 {
		s.maxPerPass = DefaultMaxPerPass
	}
	for _, opt := range options {
		opt(s)
	}
	s.pacer = pacing.New(max(opts.Delay, MinDelay), s.clock)

	if kv == nil {
		return s, nil
	}
	raw, err := kv.LoadCacheEntries(ctx)
	if err != nil {
		return nil, err
	}
	for key, payload := range raw {
		var entry Entry
		if err := json.Unmarshal(payload, &entry); err != nil {
			logging.WarnWithContext(s.logger, "dropping unreadable cache entry", "cache_entry_corrupt",
				logging.String(logging.FieldCaseNumber, key),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "the entry is rebuilt on the next refresh"),
				logging.String(logging.FieldImpact, "cached AI summaries for this case are lost"),
			)
			continue
		}
		entry.CaseNumber = key
		s.entries[key] = &entry
	}
	s.logger.Debug("analysis cache loaded", logging.Int("entries", len(s.entries)))
	return s, nil
}

// GetCached returns the last computed events for caseNumber regardless of
// staleness.
func (s *Service) GetCached(caseNumber string) ([]timeline.Event, bool) {
	entry, ok := s.Entry(caseNumber)
	if !ok {
		return nil, false
	}
	return entry.Events, true
}

// Entry returns a copy of the cached entry for caseNumber.
func (s *Service) Entry(caseNumber string) (*Entry, bool) {
	key := comm.DigitsOnly(caseNumber)
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	return entry.clone(), true
}

// Entries returns copies of every cached entry ordered by case number.
func (s *Service) Entries() []*Entry {
	s.mu.RLock()
	out := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.clone())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CaseNumber < out[j].CaseNumber })
	return out
}

// Expired reports whether the cached entry for caseNumber is older than the
// configured TTL. Missing entries count as expired.
func (s *Service) Expired(caseNumber string) bool {
	entry, ok := s.Entry(caseNumber)
	if !ok {
		return true
	}
	return entry.Expired(s.clock.Now(), s.ttl)
}

// IsStale fetches only the newest directory item for caseNumber and compares
// its hash with the cached newest events. Availability dates are per day, so
// any cached event from the newest cached day counts as a match regardless of
// the order the directory lists same-day items in. A missing entry is stale.
func (s *Service) IsStale(ctx context.Context, caseNumber string) (bool, error) {
	key, err := normalizeKey(caseNumber, "is stale")
	if err != nil {
		return false, err
	}
	entry, ok := s.Entry(key)
	if !ok {
		return true, nil
	}
	latest, err := s.fetcher.FetchLatest(ctx, key)
	if err != nil {
		return false, err
	}
	if latest == nil {
		return entry.LastEventHash != "", nil
	}
	return !entry.hasNewest(latest.Hash), nil
}

// FetchAndAnalyze fetches every communication for caseNumber, classifies
// them, and analyzes the events the cache has not analyzed yet. forceRefresh
// discards previous analyses and starts over. A fetch that returns nothing
// because of an error fails the pass; partial fetches are analyzed.
func (s *Service) FetchAndAnalyze(ctx context.Context, caseNumber string, onProgress ProgressFunc, forceRefresh bool) (Result, error) {
	key, err := normalizeKey(caseNumber, "fetch and analyze")
	if err != nil {
		return Result{CaseNumber: caseNumber}, err
	}
	fetched, err := s.fetcher.FetchAll(services.WithCaseNumber(ctx, key), djen.Filter{CaseNumber: key}, nil)
	if err != nil {
		if len(fetched.Items) == 0 {
			return Result{CaseNumber: key}, err
		}
		logging.WarnWithContext(logging.WithContext(services.WithCaseNumber(ctx, key), s.logger),
			"analyzing partial fetch", "partial_fetch",
			logging.Int("items", len(fetched.Items)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.Hint(err)),
			logging.String(logging.FieldImpact, "the timeline may miss recent communications"),
		)
	}
	return s.Analyze(ctx, key, fetched.Items, onProgress, forceRefresh)
}

// Analyze runs the cache pass over comms already at hand (for example, rows
// from the local store).
func (s *Service) Analyze(ctx context.Context, caseNumber string, comms []comm.Communication, onProgress ProgressFunc, forceRefresh bool) (Result, error) {
	key, err := normalizeKey(caseNumber, "analyze")
	if err != nil {
		return Result{CaseNumber: caseNumber}, err
	}
	unlock := s.locks.Lock(key)
	defer unlock()

	ctx = services.WithCaseNumber(ctx, key)
	logger := logging.WithContext(ctx, s.logger)

	events := timeline.BuildEvents(comms)
	analyzed := make(map[string]struct{})
	if prev, ok := s.Entry(key); ok && !forceRefresh {
		restored := make(map[string]*timeline.AIAnalysis, len(prev.Events))
		for _, e := range prev.Events {
			if e.AIAnalysis != nil {
				restored[e.ID] = e.AIAnalysis
			}
		}
		for h := range prev.AnalyzedHashes {
			analyzed[h] = struct{}{}
		}
		for i := range events {
			if a, ok := restored[events[i].ID]; ok && prev.Analyzed(events[i].ID) {
				events[i].AIAnalysis = a
			}
		}
	}

	var needing []int
	for i := range events {
		if _, ok := analyzed[events[i].ID]; !ok {
			needing = append(needing, i)
		}
	}
	result := Result{CaseNumber: key}

	if len(needing) == 0 || s.summarizer == nil {
		result.CacheHit = len(needing) == 0
		result.Pending = len(needing)
		if onProgress != nil {
			onProgress(len(events), len(events))
		}
		result.Events = cloneEvents(events)
		return result, s.persist(ctx, key, events, analyzed)
	}

	batch := needing[:min(len(needing), s.maxPerPass)]
	passErr := s.pacer.Each(ctx, len(batch), func(ctx context.Context, n int) error {
		idx := batch[n]
		analysis, err := s.summarizer.Summarize(ctx, events[idx])
		switch {
		case err == nil && analysis != nil:
			events[idx].AIAnalysis = analysis
			analyzed[events[idx].ID] = struct{}{}
			result.Analyzed++
			s.metrics.Analysis("ok")
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return err
		default:
			result.Failed++
			if err == nil {
				err = services.Wrap(services.ErrAnalysisUnavailable, "analysis", "summarize", "empty analysis", nil)
			}
			s.metrics.Analysis(services.Kind(err))
			logging.WarnWithContext(logger, "event analysis unavailable", "analysis_failed",
				logging.String("hash", events[idx].ID),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, services.Hint(err)),
				logging.String(logging.FieldImpact, "event shown without summary; retried on the next pass"),
			)
			if errors.Is(err, services.ErrRateLimited) {
				return err
			}
		}
		if onProgress != nil {
			onProgress(n+1, len(batch))
		}
		return nil
	})

	for i := range events {
		if _, ok := analyzed[events[i].ID]; !ok {
			result.Pending++
		}
	}
	result.Events = cloneEvents(events)

	// Whatever was analyzed before a cancellation or rate limit is kept.
	if err := s.persist(context.WithoutCancel(ctx), key, events, analyzed); err != nil {
		return result, err
	}
	logger.Info("analysis pass complete",
		logging.Int("events", len(events)),
		logging.Int("analyzed", result.Analyzed),
		logging.Int("failed", result.Failed),
		logging.Int("pending", result.Pending),
	)
	return result, passErr
}

// Invalidate drops the cached entry for caseNumber.
func (s *Service) Invalidate(ctx context.Context, caseNumber string) error {
	key := comm.DigitsOnly(caseNumber)
	unlock := s.locks.Lock(key)
	defer unlock()
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	if s.kv == nil {
		return nil
	}
	return s.kv.DeleteCacheEntry(ctx, key)
}

// Clear drops every cached entry and returns how many were persisted.
func (s *Service) Clear(ctx context.Context) (int, error) {
	s.mu.Lock()
	s.entries = make(map[string]*Entry)
	s.mu.Unlock()
	if s.kv == nil {
		return 0, nil
	}
	return s.kv.ClearCache(ctx)
}

// persist replaces the entry wholesale in memory and in the KV store.
func (s *Service) persist(ctx context.Context, key string, events []timeline.Event, analyzed map[string]struct{}) error {
	entry := &Entry{
		CaseNumber:     key,
		Events:         cloneEvents(events),
		AnalyzedHashes: analyzed,
		Timestamp:      s.clock.Now().UTC(),
	}
	if latest, ok := timeline.Latest(events); ok {
		entry.LastEventHash = latest.ID
	}
	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()

	if s.kv == nil {
		return nil
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return services.Wrap(services.ErrPersistence, "analysis", "persist", "encode entry", err)
	}
	return s.kv.PutCacheEntry(ctx, key, payload)
}

func normalizeKey(caseNumber, op string) (string, error) {
	key, err := comm.NormalizeCaseNumber(caseNumber)
	if err != nil {
		return "", services.Wrap(services.ErrInvalidFilter, "analysis", op, "", err)
	}
	return key, nil
}
