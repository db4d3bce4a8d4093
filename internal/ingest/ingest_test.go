package ingest_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"djenwatch/internal/analysis"
	"djenwatch/internal/casestage"
	"djenwatch/internal/comm"
	"djenwatch/internal/djen"
	"djenwatch/internal/ingest"
	"djenwatch/internal/pacing"
	"djenwatch/internal/services"
	"djenwatch/internal/store"
	"djenwatch/internal/testsupport"
	"djenwatch/internal/timeline"
)

const (
	caseA = "00012345620248260100"
	caseB = "10000019920238260002"
)

var now = time.Date(2024, 6, 20, 9, 0, 0, 0, time.UTC)

type fakeDirectory struct {
	mu      sync.Mutex
	byCase  map[string][]comm.Communication
	byAll   []comm.Communication
	caseErr error
	bases   []djen.Filter
	filters []djen.Filter
}

func (f *fakeDirectory) FetchAll(_ context.Context, filter djen.Filter, _ djen.ProgressFunc) (djen.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, filter)
	return djen.Result{Items: f.byAll, Total: len(f.byAll), Pages: 1}, nil
}

func (f *fakeDirectory) FetchByCaseNumbers(_ context.Context, numbers []string, base djen.Filter, _ djen.ProgressFunc) (djen.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bases = append(f.bases, base)
	var res djen.Result
	for _, n := range numbers {
		res.Items = append(res.Items, f.byCase[n]...)
	}
	if f.caseErr != nil {
		res.Errors = 1
		res.Failed = []string{numbers[len(numbers)-1]}
	}
	return res, f.caseErr
}

func (f *fakeDirectory) FetchLatest(context.Context, string) (*comm.Communication, error) {
	return nil, nil
}

type countingSummarizer struct {
	calls int
}

func (s *countingSummarizer) Summarize(_ context.Context, e timeline.Event) (*timeline.AIAnalysis, error) {
	s.calls++
	return &timeline.AIAnalysis{Summary: "resumo " + e.ID, Urgency: timeline.UrgencyMedium}, nil
}

func newSyncer(t *testing.T, dir *fakeDirectory, opts ingest.Options, extra ...ingest.Option) (*ingest.Syncer, *store.Store, *[]casestage.Change) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	var changes []casestage.Change
	tracker := casestage.NewTracker(st, nil, casestage.WithListener(casestage.ListenerFunc(func(_ context.Context, c casestage.Change) error {
		changes = append(changes, c)
		return nil
	})))
	options := append([]ingest.Option{ingest.WithClock(pacing.NewFakeClock(now))}, extra...)
	return ingest.NewSyncer(st, dir, tracker, opts, options...), st, &changes
}

func TestSyncCasesSavesLinksAndInfersStage(t *testing.T) {
	dir := &fakeDirectory{byCase: map[string][]comm.Communication{
		caseA: {
			testsupport.Communication("a1", caseA, "2024-06-10", "Despacho", "Cite-se o réu."),
			testsupport.Communication("a2", caseA, "2024-06-18", "Sentença", "Ante o exposto, julgo procedente o pedido."),
		},
	}}
	syncer, st, changes := newSyncer(t, dir, ingest.Options{LookbackDays: 7})
	ctx := context.Background()
	client := testsupport.MustAddClient(t, st, "Maria Silva")
	registered := testsupport.MustAddCase(t, st, caseA, &client.ID)

	report, err := syncer.SyncCases(ctx)
	if err != nil {
		t.Fatalf("SyncCases failed: %v", err)
	}
	if report.Cases != 1 || report.Found != 2 || report.Saved != 2 || report.Skipped != 0 || report.Errors != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.StageChanges != 1 {
		t.Fatalf("expected one stage change, got %d", report.StageChanges)
	}
	if len(dir.bases) != 1 || dir.bases[0].DateFrom != "2024-06-13" {
		t.Fatalf("expected lookback filter from 2024-06-13, got %+v", dir.bases)
	}

	got, err := st.CaseByID(ctx, registered.ID)
	if err != nil {
		t.Fatalf("CaseByID failed: %v", err)
	}
	if got.Status != string(casestage.StageJudgment) {
		t.Fatalf("expected judgment status, got %q", got.Status)
	}
	if len(*changes) != 1 || (*changes)[0].Current != casestage.StageJudgment || (*changes)[0].Previous != "" {
		t.Fatalf("unexpected stage changes: %+v", *changes)
	}

	saved, err := st.Get(ctx, "a1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if saved.LinkedCaseID == nil || *saved.LinkedCaseID != registered.ID {
		t.Fatalf("expected communication linked to case %d, got %v", registered.ID, saved.LinkedCaseID)
	}
	if saved.LinkedClientID == nil || *saved.LinkedClientID != client.ID {
		t.Fatalf("expected communication linked to client %d, got %v", client.ID, saved.LinkedClientID)
	}

	again, err := syncer.SyncCases(ctx)
	if err != nil {
		t.Fatalf("second SyncCases failed: %v", err)
	}
	if again.Saved != 0 || again.Skipped != 2 || again.StageChanges != 0 {
		t.Fatalf("expected idempotent second pass, got %+v", again)
	}
	if len(*changes) != 1 {
		t.Fatalf("expected no new notifications, got %d", len(*changes))
	}
}

func TestSyncCasesWithoutCasesOnlyImportsAdvocate(t *testing.T) {
	dir := &fakeDirectory{byAll: []comm.Communication{
		testsupport.Communication("x1", caseB, "2024-06-19", "Intimação", "Fica intimado o advogado."),
	}}
	syncer, st, _ := newSyncer(t, dir, ingest.Options{
		LookbackDays: 3,
		Advocate:     djen.Filter{OABNumber: "123456", OABState: "SP"},
	})

	report, err := syncer.SyncCases(context.Background())
	if err != nil {
		t.Fatalf("SyncCases failed: %v", err)
	}
	if len(dir.bases) != 0 {
		t.Fatalf("expected no case fetch without registered cases")
	}
	if len(dir.filters) != 1 || dir.filters[0].OABNumber != "123456" || dir.filters[0].DateFrom != "2024-06-17" {
		t.Fatalf("unexpected advocate filter: %+v", dir.filters)
	}
	if report.Saved != 1 {
		t.Fatalf("expected advocate communication saved, got %+v", report)
	}
	if _, err := st.Get(context.Background(), "x1"); err != nil {
		t.Fatalf("expected x1 persisted: %v", err)
	}
}

func TestSyncCasesRateLimitKeepsFetchedItems(t *testing.T) {
	dir := &fakeDirectory{
		byCase: map[string][]comm.Communication{
			caseA: {testsupport.Communication("a1", caseA, "2024-06-18", "Despacho", "Manifeste-se no prazo.")},
		},
		caseErr: services.Wrap(services.ErrRateLimited, "djen", "fetch page", "", nil),
	}
	syncer, st, _ := newSyncer(t, dir, ingest.Options{LookbackDays: 7})
	testsupport.MustAddCase(t, st, caseA, nil)
	testsupport.MustAddCase(t, st, caseB, nil)

	report, err := syncer.SyncCases(context.Background())
	if !errors.Is(err, services.ErrRateLimited) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if report.Saved != 1 || report.Errors != 1 || len(report.FailedCases) != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if _, err := st.Get(context.Background(), "a1"); err != nil {
		t.Fatalf("expected fetched item persisted: %v", err)
	}
}

func TestSyncCasesAnalyzesCasesWithNewCommunications(t *testing.T) {
	dir := &fakeDirectory{byCase: map[string][]comm.Communication{
		caseA: {
			testsupport.Communication("a1", caseA, "2024-06-10", "Despacho", "Designo audiência de conciliação."),
			testsupport.Communication("a2", caseA, "2024-06-12", "Despacho", "Manifeste-se a parte autora."),
		},
	}}
	cfg := testsupport.NewConfig(t)
	kvStore := testsupport.MustOpenStore(t, cfg)
	summarizer := &countingSummarizer{}
	svc, err := analysis.New(context.Background(), kvStore, dir, summarizer, analysis.Options{},
		analysis.WithClock(pacing.NewFakeClock(now)))
	if err != nil {
		t.Fatalf("analysis.New failed: %v", err)
	}
	syncer, st, _ := newSyncer(t, dir, ingest.Options{LookbackDays: 30}, ingest.WithAnalyzer(svc))
	testsupport.MustAddCase(t, st, caseA, nil)

	report, err := syncer.SyncCases(context.Background())
	if err != nil {
		t.Fatalf("SyncCases failed: %v", err)
	}
	if report.Analyzed != 2 || summarizer.calls != 2 {
		t.Fatalf("expected both events analyzed, report=%+v calls=%d", report, summarizer.calls)
	}
	events, ok := svc.GetCached(caseA)
	if !ok || len(events) != 2 || events[0].AIAnalysis == nil {
		t.Fatalf("expected analyzed events cached, got %+v", events)
	}

	if _, err := syncer.SyncCases(context.Background()); err != nil {
		t.Fatalf("second SyncCases failed: %v", err)
	}
	if summarizer.calls != 2 {
		t.Fatalf("expected no analysis without new communications, got %d calls", summarizer.calls)
	}
}

func TestImportValidatesAndSaves(t *testing.T) {
	dir := &fakeDirectory{byAll: []comm.Communication{
		testsupport.Communication("i1", caseA, "2024-06-01", "Intimação", "Intime-se."),
		testsupport.Communication("i2", caseB, "2024-06-02", "Intimação", "Intime-se."),
	}}
	syncer, st, _ := newSyncer(t, dir, ingest.Options{})
	registered := testsupport.MustAddCase(t, st, caseB, nil)

	if _, err := syncer.Import(context.Background(), djen.Filter{DateFrom: "2024-13-01"}, nil); !errors.Is(err, services.ErrInvalidFilter) {
		t.Fatalf("expected invalid filter error, got %v", err)
	}

	report, err := syncer.Import(context.Background(), djen.Filter{TribunalCode: "TJSP"}, nil)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if report.Found != 2 || report.Saved != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}
	linked, err := st.Get(context.Background(), "i2")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if linked.LinkedCaseID == nil || *linked.LinkedCaseID != registered.ID {
		t.Fatalf("expected import to auto-link i2")
	}
	var reported *comm.Communication
	for i := range report.Items {
		if report.Items[i].Hash == "i2" {
			reported = &report.Items[i]
		}
	}
	if reported == nil || reported.LinkedCaseID == nil || *reported.LinkedCaseID != registered.ID {
		t.Fatalf("expected report items to carry the stored link, got %+v", report.Items)
	}
}

func TestWatcherRefusesSecondInstance(t *testing.T) {
	syncer, _, _ := newSyncer(t, &fakeDirectory{}, ingest.Options{})
	lockPath := filepath.Join(t.TempDir(), "djenwatch.lock")
	held := flock.New(lockPath)
	ok, err := held.TryLock()
	if err != nil || !ok {
		t.Fatalf("failed to take lock: ok=%v err=%v", ok, err)
	}
	defer held.Unlock()

	w := ingest.NewWatcher(syncer, lockPath, time.Minute)
	if err := w.Run(context.Background()); !errors.Is(err, ingest.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestWatcherRunsPassUntilCancelled(t *testing.T) {
	dir := &fakeDirectory{byCase: map[string][]comm.Communication{
		caseA: {testsupport.Communication("a1", caseA, "2024-06-18", "Despacho", "Cite-se.")},
	}}
	syncer, st, _ := newSyncer(t, dir, ingest.Options{LookbackDays: 7})
	testsupport.MustAddCase(t, st, caseA, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var passes []ingest.PassStatus
	w := ingest.NewWatcher(syncer, filepath.Join(t.TempDir(), "djenwatch.lock"), time.Hour,
		ingest.WithPassHook(func(p ingest.PassStatus) {
			passes = append(passes, p)
			cancel()
		}))

	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(passes) != 1 {
		t.Fatalf("expected exactly one pass, got %d", len(passes))
	}
	last, ok := w.Last()
	if !ok || last.RequestID == "" || last.Error != "" || last.Report.Saved != 1 {
		t.Fatalf("unexpected last pass: %+v", last)
	}
}
