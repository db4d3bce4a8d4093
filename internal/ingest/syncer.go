package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"djenwatch/internal/analysis"
	"djenwatch/internal/casestage"
	"djenwatch/internal/comm"
	"djenwatch/internal/config"
	"djenwatch/internal/djen"
	"djenwatch/internal/logging"
	"djenwatch/internal/metrics"
	"djenwatch/internal/notifications"
	"djenwatch/internal/pacing"
	"djenwatch/internal/services"
	"djenwatch/internal/store"
	"djenwatch/internal/timeline"
)

// Directory is the subset of the directory client the sync needs.
type Directory interface {
	FetchAll(ctx context.Context, filter djen.Filter, onProgress djen.ProgressFunc) (djen.Result, error)
	FetchByCaseNumbers(ctx context.Context, caseNumbers []string, base djen.Filter, onProgress djen.ProgressFunc) (djen.Result, error)
}

// Report summarizes one sync or import pass.
type Report struct {
	Cases   int `json:"cases"`
	Found   int `json:"found"`
	Saved   int `json:"saved"`
	Skipped int `json:"skipped"`
	// Errors counts failed case fetches plus communications that could not be saved.
	Errors         int           `json:"errors"`
	Analyzed       int           `json:"analyzed"`
	AnalysisFailed int           `json:"analysisFailed"`
	StageChanges   int           `json:"stageChanges"`
	FailedCases    []string      `json:"failedCases,omitempty"`
	Duration       time.Duration `json:"duration"`
	// Items holds the fetched communications of an Import.
	Items []comm.Communication `json:"items,omitempty"`
}

func (r Report) String() string {
	return fmt.Sprintf("%d found, %d new, %d skipped, %d errors", r.Found, r.Saved, r.Skipped, r.Errors)
}

// Options tunes a Syncer.
type Options struct {
	LookbackDays int
	// Advocate, when it names an OAB registration or advocate, is imported on
	// every pass in addition to the registered cases.
	Advocate djen.Filter
}

// OptionsFromConfig derives sync options from application config.
func OptionsFromConfig(cfg *config.Config) Options {
	if cfg == nil {
		return Options{}
	}
	return Options{
		LookbackDays: cfg.Sync.LookbackDays,
		Advocate: djen.Filter{
			OABNumber:    strings.TrimSpace(cfg.Sync.OABNumber),
			OABState:     strings.TrimSpace(cfg.Sync.OABState),
			AdvocateName: strings.TrimSpace(cfg.Sync.AdvocateName),
		},
	}
}

func (o Options) monitorsAdvocate() bool {
	return o.Advocate.OABNumber != "" || o.Advocate.AdvocateName != ""
}

// Syncer runs sync and import passes.
type Syncer struct {
	store     *store.Store
	directory Directory
	tracker   *casestage.Tracker
	analyzer  *analysis.Service
	notifier  notifications.Service
	opts      Options
	clock     pacing.Clock
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithAnalyzer enables AI analysis of cases that received new communications.
func WithAnalyzer(svc *analysis.Service) Option {
	return func(s *Syncer) { s.analyzer = svc }
}

// WithNotifier sets the notification sink.
func WithNotifier(n notifications.Service) Option {
	return func(s *Syncer) {
		if n != nil {
			s.notifier = n
		}
	}
}

func WithClock(clock pacing.Clock) Option {
	return func(s *Syncer) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Syncer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Syncer) { s.metrics = m }
}

// NewSyncer wires a Syncer. The tracker may be nil, which skips stage
// inference.
func NewSyncer(st *store.Store, directory Directory, tracker *casestage.Tracker, opts Options, options ...Option) *Syncer {
	s := &Syncer{
		store:     st,
		directory: directory,
		tracker:   tracker,
		notifier:  notifications.NewService(nil),
		opts:      opts,
		clock:     pacing.RealClock(),
		logger:    logging.NewNop(),
	}
	for _, opt := range options {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "ingest")
	return s
}

// SyncCases fetches the lookback window for every registered case, saves
// what is new, and updates analysis and stages for the cases that changed.
// A rate limit ends the fetch early; whatever was fetched is still saved and
// the rate limit error is returned alongside the report.
func (s *Syncer) SyncCases(ctx context.Context) (Report, error) {
	started := s.clock.Now()
	ctx = services.WithOperation(ctx, "sync")
	logger := logging.WithContext(ctx, s.logger)

	cases, err := s.store.Cases(ctx, store.CaseFilter{})
	if err != nil {
		return Report{}, err
	}
	clients, err := s.store.Clients(ctx)
	if err != nil {
		return Report{}, err
	}
	links := store.LinkContext{Cases: cases, Clients: clients}
	report := Report{Cases: len(cases)}

	base := djen.Filter{DateFrom: djen.LookbackFrom(s.clock.Now(), s.opts.LookbackDays)}
	var fetched []comm.Communication
	var fetchErr error
	if len(cases) > 0 {
		numbers := make([]string, 0, len(cases))
		for _, c := range cases {
			numbers = append(numbers, c.CaseNumber)
		}
		result, err := s.directory.FetchByCaseNumbers(ctx, numbers, base, func(done, total int) {
			logger.Debug("case fetched", logging.Int("done", done), logging.Int("total", total))
		})
		fetched = append(fetched, result.Items...)
		report.Errors += result.Errors
		report.FailedCases = append(report.FailedCases, result.Failed...)
		fetchErr = err
	}
	if s.opts.monitorsAdvocate() && !errors.Is(fetchErr, services.ErrRateLimited) && ctx.Err() == nil {
		filter := s.opts.Advocate
		filter.DateFrom = base.DateFrom
		result, err := s.directory.FetchAll(ctx, filter, nil)
		fetched = append(fetched, result.Items...)
		if err != nil {
			report.Errors++
			fetchErr = errors.Join(fetchErr, err)
		}
	}
	report.Found = len(fetched)

	saved, err := s.save(ctx, fetched, links, &report)
	if err != nil {
		s.finish(ctx, started, &report, false)
		return report, err
	}

	newByCase := groupByCase(fetched, saved)
	analyzer := s.analyzer
	for _, c := range cases {
		items := newByCase[comm.DigitsOnly(c.CaseNumber)]
		if len(items) == 0 && c.Status != "" {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		if len(items) > 0 {
			s.notify(ctx, "new communications", func(ctx context.Context) error {
				return s.notifier.NotifyNewCommunications(ctx, c.CaseNumber, items)
			})
		}
		err := s.refreshCase(ctx, c, analyzer, &report)
		switch {
		case err == nil:
		case errors.Is(err, services.ErrRateLimited):
			// No more AI calls this pass; remaining cases still get stages.
			analyzer = nil
		default:
			logging.WarnWithContext(logger, "case refresh failed", "case_refresh_failed",
				logging.String(logging.FieldCaseNumber, c.CaseNumber),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, services.Hint(err)),
				logging.String(logging.FieldImpact, "stage and analysis for this case are stale until the next pass"),
			)
		}
	}

	s.finish(ctx, started, &report, fetchErr == nil)
	if fetchErr != nil && report.Found > 0 && !errors.Is(fetchErr, services.ErrRateLimited) && ctx.Err() == nil {
		// Partial failures are already counted in the report.
		return report, nil
	}
	return report, fetchErr
}

// Import fetches every communication matching filter and saves it with
// auto-linking. Stage and analysis are left to the next sync pass.
func (s *Syncer) Import(ctx context.Context, filter djen.Filter, onProgress djen.ProgressFunc) (Report, error) {
	started := s.clock.Now()
	ctx = services.WithOperation(ctx, "import")
	if err := filter.Validate(); err != nil {
		return Report{}, err
	}
	cases, err := s.store.Cases(ctx, store.CaseFilter{})
	if err != nil {
		return Report{}, err
	}
	clients, err := s.store.Clients(ctx)
	if err != nil {
		return Report{}, err
	}
	result, fetchErr := s.directory.FetchAll(ctx, filter, onProgress)
	report := Report{Found: len(result.Items), Errors: result.Errors, Items: result.Items}
	if _, err := s.save(ctx, result.Items, store.LinkContext{Cases: cases, Clients: clients}, &report); err != nil {
		return report, err
	}
	report.Items = s.stored(ctx, result.Items)
	report.Duration = s.clock.Now().Sub(started)
	logging.WithContext(ctx, s.logger).Info("import complete",
		logging.String(logging.FieldEventType, "import_complete"),
		logging.Int("found", report.Found),
		logging.Int("saved", report.Saved),
		logging.Int("skipped", report.Skipped),
		logging.Int("errors", report.Errors),
	)
	return report, fetchErr
}

func (s *Syncer) save(ctx context.Context, items []comm.Communication, links store.LinkContext, report *Report) (map[string]struct{}, error) {
	if len(items) == 0 {
		return nil, nil
	}
	res, err := s.store.Save(ctx, items, links)
	if err != nil {
		return nil, err
	}
	report.Saved += res.Saved
	report.Skipped += res.Skipped
	report.Errors += res.Failed()
	s.metrics.Ingested(res.Saved, res.Skipped, res.Failed())
	for _, f := range res.Failures {
		logging.WarnWithContext(logging.WithContext(ctx, s.logger), "communication not saved", "save_failed",
			logging.String("hash", f.Hash),
			logging.Error(f.Err),
			logging.String(logging.FieldErrorHint, services.Hint(f.Err)),
		)
	}
	saved := make(map[string]struct{}, len(res.SavedHashes))
	for _, h := range res.SavedHashes {
		saved[h] = struct{}{}
	}
	return saved, nil
}

// stored swaps fetched items for their persisted rows so callers see the
// links and read state the store resolved. Items that were not saved are
// returned as fetched.
func (s *Syncer) stored(ctx context.Context, items []comm.Communication) []comm.Communication {
	out := make([]comm.Communication, 0, len(items))
	for _, item := range items {
		row, err := s.store.Get(ctx, item.Hash)
		if err != nil || row == nil {
			out = append(out, item)
			continue
		}
		out = append(out, *row)
	}
	return out
}

// refreshCase rebuilds the case timeline from the store, runs an analysis
// pass when enabled, and re-infers the stage.
func (s *Syncer) refreshCase(ctx context.Context, c store.Case, analyzer *analysis.Service, report *Report) error {
	ctx = services.WithCaseNumber(ctx, c.CaseNumber)
	comms, err := s.store.ByCaseNumber(ctx, c.CaseNumber)
	if err != nil {
		return err
	}
	events := timeline.BuildEvents(comms)
	var analysisErr error
	if analyzer != nil && len(comms) > 0 {
		res, err := analyzer.Analyze(ctx, c.CaseNumber, comms, nil, false)
		report.Analyzed += res.Analyzed
		report.AnalysisFailed += res.Failed
		if len(res.Events) > 0 {
			events = res.Events
		}
		analysisErr = err
	}
	if s.tracker != nil {
		out, err := s.tracker.Apply(ctx, casestage.CaseRef{ID: c.ID, CaseNumber: c.CaseNumber, Status: c.Status}, events)
		if err != nil {
			return errors.Join(analysisErr, err)
		}
		if out.Changed {
			report.StageChanges++
		}
	}
	return analysisErr
}

func (s *Syncer) finish(ctx context.Context, started time.Time, report *Report, ok bool) {
	report.Duration = s.clock.Now().Sub(started)
	s.metrics.SyncFinished(started, ok)
	logging.WithContext(ctx, s.logger).Info("sync complete",
		logging.String(logging.FieldEventType, "sync_complete"),
		logging.Int("cases", report.Cases),
		logging.Int("found", report.Found),
		logging.Int("saved", report.Saved),
		logging.Int("errors", report.Errors),
		logging.Int("analyzed", report.Analyzed),
		logging.Int("stage_changes", report.StageChanges),
		logging.Duration("duration", report.Duration),
	)
	s.notify(ctx, "sync summary", func(ctx context.Context) error {
		return s.notifier.NotifySyncCompleted(ctx, report.Found, report.Saved, report.Errors, report.Duration)
	})
}

func (s *Syncer) notify(ctx context.Context, what string, send func(context.Context) error) {
	if err := send(ctx); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, s.logger), "notification failed", "notification_failed",
			logging.String("notification", what),
			logging.Error(err),
			logging.String(logging.FieldImpact, "data was saved; the push was not delivered"),
		)
	}
}

// groupByCase returns the newly saved communications per digits-only case
// number, keeping fetch order.
func groupByCase(fetched []comm.Communication, saved map[string]struct{}) map[string][]comm.Communication {
	out := make(map[string][]comm.Communication)
	seen := make(map[string]struct{}, len(saved))
	for _, c := range fetched {
		if _, ok := saved[c.Hash]; !ok {
			continue
		}
		if _, dup := seen[c.Hash]; dup {
			continue
		}
		seen[c.Hash] = struct{}{}
		key := comm.DigitsOnly(c.CaseNumber)
		out[key] = append(out[key], c)
	}
	return out
}
