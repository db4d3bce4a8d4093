package analysis_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"djenwatch/internal/analysis"
	"djenwatch/internal/comm"
	"djenwatch/internal/djen"
	"djenwatch/internal/pacing"
	"djenwatch/internal/services"
	"djenwatch/internal/testsupport"
	"djenwatch/internal/timeline"
)

const caseNumber = "00012345620248260100"

type fakeFetcher struct {
	items       []comm.Communication
	err         error
	fetchCalls  int
	latestCalls int
}

func (f *fakeFetcher) FetchAll(_ context.Context, filter djen.Filter, _ djen.ProgressFunc) (djen.Result, error) {
	f.fetchCalls++
	if filter.CaseNumber != caseNumber {
		return djen.Result{}, fmt.Errorf("unexpected case number %q", filter.CaseNumber)
	}
	return djen.Result{Items: append([]comm.Communication(nil), f.items...), Total: len(f.items)}, f.err
}

func (f *fakeFetcher) FetchLatest(context.Context, string) (*comm.Communication, error) {
	f.latestCalls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.items) == 0 {
		return nil, nil
	}
	latest := f.items[0]
	for _, c := range f.items[1:] {
		if c.AvailabilityDate.After(latest.AvailabilityDate) {
			latest = c
		}
	}
	return &latest, nil
}

type fakeSummarizer struct {
	calls []string
	fail  map[string]error
}

func (s *fakeSummarizer) Summarize(_ context.Context, e timeline.Event) (*timeline.AIAnalysis, error) {
	s.calls = append(s.calls, e.ID)
	if err, ok := s.fail[e.ID]; ok {
		return nil, err
	}
	return &timeline.AIAnalysis{Summary: "resumo " + e.ID, Urgency: timeline.UrgencyLow}, nil
}

func comms(n int) []comm.Communication {
	out := make([]comm.Communication, 0, n)
	for i := 0; i < n; i++ {
		date := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i).Format("2006-01-02")
		out = append(out, testsupport.Communication(fmt.Sprintf("h%02d", i), caseNumber, date, "Despacho", "Cite-se."))
	}
	return out
}

func newService(t *testing.T, fetcher analysis.Fetcher, summarizer analysis.Summarizer, clock pacing.Clock) (*analysis.Service, analysis.KV) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	svc, err := analysis.New(context.Background(), st, fetcher, summarizer, analysis.Options{}, analysis.WithClock(clock))
	if err != nil {
		t.Fatalf("analysis.New: %v", err)
	}
	return svc, st
}

func TestFetchAndAnalyzeSkipsAlreadyAnalyzedEvents(t *testing.T) {
	fetcher := &fakeFetcher{items: comms(3)}
	summarizer := &fakeSummarizer{}
	clock := pacing.NewFakeClock(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	svc, _ := newService(t, fetcher, summarizer, clock)
	ctx := context.Background()

	first, err := svc.FetchAndAnalyze(ctx, caseNumber, nil, false)
	if err != nil {
		t.Fatalf("FetchAndAnalyze failed: %v", err)
	}
	if first.Analyzed != 3 || first.CacheHit || len(summarizer.calls) != 3 {
		t.Fatalf("unexpected first pass %+v calls=%v", first, summarizer.calls)
	}

	var progress [][2]int
	second, err := svc.FetchAndAnalyze(ctx, caseNumber, func(done, total int) {
		progress = append(progress, [2]int{done, total})
	}, false)
	if err != nil {
		t.Fatalf("FetchAndAnalyze failed: %v", err)
	}
	if len(summarizer.calls) != 3 {
		t.Fatalf("expected no AI calls on the second pass, got %v", summarizer.calls)
	}
	if !second.CacheHit || second.Analyzed != 0 {
		t.Fatalf("expected cache hit, got %+v", second)
	}
	if len(progress) != 1 || progress[0] != [2]int{3, 3} {
		t.Fatalf("expected a single complete progress report, got %v", progress)
	}
	for _, e := range second.Events {
		if e.AIAnalysis == nil || e.AIAnalysis.Summary != "resumo "+e.ID {
			t.Fatalf("expected restored analysis on %s, got %+v", e.ID, e.AIAnalysis)
		}
	}
}

func TestFetchAndAnalyzeCapsAndPacesCalls(t *testing.T) {
	fetcher := &fakeFetcher{items: comms(12)}
	summarizer := &fakeSummarizer{}
	clock := pacing.NewFakeClock(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	svc, _ := newService(t, fetcher, summarizer, clock)

	result, err := svc.FetchAndAnalyze(context.Background(), caseNumber, nil, false)
	if err != nil {
		t.Fatalf("FetchAndAnalyze failed: %v", err)
	}
	if len(summarizer.calls) != analysis.DefaultMaxPerPass {
		t.Fatalf("expected %d calls, got %d", analysis.DefaultMaxPerPass, len(summarizer.calls))
	}
	if summarizer.calls[0] != "h11" {
		t.Fatalf("expected newest event analyzed first, got %s", summarizer.calls[0])
	}
	if result.Pending != 2 {
		t.Fatalf("expected 2 pending events, got %d", result.Pending)
	}
	waits := clock.Waits()
	if len(waits) != analysis.DefaultMaxPerPass-1 {
		t.Fatalf("expected %d waits, got %d", analysis.DefaultMaxPerPass-1, len(waits))
	}
	for _, w := range waits {
		if w < analysis.MinDelay {
			t.Fatalf("wait %s below minimum", w)
		}
	}

	if _, err := svc.FetchAndAnalyze(context.Background(), caseNumber, nil, false); err != nil {
		t.Fatalf("FetchAndAnalyze failed: %v", err)
	}
	if len(summarizer.calls) != 12 {
		t.Fatalf("expected the remaining 2 events analyzed next pass, got %d calls", len(summarizer.calls))
	}
}

func TestFailedAnalysisIsRetriedLater(t *testing.T) {
	fetcher := &fakeFetcher{items: comms(2)}
	summarizer := &fakeSummarizer{fail: map[string]error{
		"h01": services.Wrap(services.ErrAnalysisUnavailable, "llm", "summarize", "bad json", nil),
	}}
	svc, _ := newService(t, fetcher, summarizer, pacing.NewFakeClock(time.Now()))
	ctx := context.Background()

	result, err := svc.FetchAndAnalyze(ctx, caseNumber, nil, false)
	if err != nil {
		t.Fatalf("FetchAndAnalyze failed: %v", err)
	}
	if result.Analyzed != 1 || result.Failed != 1 || result.Pending != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	entry, ok := svc.Entry(caseNumber)
	if !ok || entry.Analyzed("h01") || !entry.Analyzed("h00") {
		t.Fatalf("unexpected analyzed set %+v", entry)
	}

	delete(summarizer.fail, "h01")
	if _, err := svc.FetchAndAnalyze(ctx, caseNumber, nil, false); err != nil {
		t.Fatalf("FetchAndAnalyze failed: %v", err)
	}
	if got := summarizer.calls[len(summarizer.calls)-1]; got != "h01" || len(summarizer.calls) != 3 {
		t.Fatalf("expected only h01 retried, calls=%v", summarizer.calls)
	}
}

func TestRateLimitStopsPassButKeepsProgress(t *testing.T) {
	fetcher := &fakeFetcher{items: comms(3)}
	summarizer := &fakeSummarizer{fail: map[string]error{
		"h01": services.Wrap(services.ErrRateLimited, "llm", "summarize", "429", nil),
	}}
	svc, _ := newService(t, fetcher, summarizer, pacing.NewFakeClock(time.Now()))

	result, err := svc.FetchAndAnalyze(context.Background(), caseNumber, nil, false)
	if !errors.Is(err, services.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if len(summarizer.calls) != 2 || result.Analyzed != 1 {
		t.Fatalf("expected pass to stop after the rate limit, calls=%v result=%+v", summarizer.calls, result)
	}
	entry, ok := svc.Entry(caseNumber)
	if !ok || !entry.Analyzed("h02") {
		t.Fatalf("expected analysis before the rate limit to persist, got %+v", entry)
	}
}

func TestForceRefreshReanalyzesEverything(t *testing.T) {
	fetcher := &fakeFetcher{items: comms(2)}
	summarizer := &fakeSummarizer{}
	svc, _ := newService(t, fetcher, summarizer, pacing.NewFakeClock(time.Now()))
	ctx := context.Background()

	if _, err := svc.FetchAndAnalyze(ctx, caseNumber, nil, false); err != nil {
		t.Fatalf("FetchAndAnalyze failed: %v", err)
	}
	result, err := svc.FetchAndAnalyze(ctx, caseNumber, nil, true)
	if err != nil {
		t.Fatalf("FetchAndAnalyze failed: %v", err)
	}
	if len(summarizer.calls) != 4 || result.Analyzed != 2 {
		t.Fatalf("expected forced pass to re-analyze all, calls=%v", summarizer.calls)
	}
}

func TestIsStaleComparesNewestHash(t *testing.T) {
	fetcher := &fakeFetcher{items: comms(2)}
	svc, _ := newService(t, fetcher, nil, pacing.NewFakeClock(time.Now()))
	ctx := context.Background()

	stale, err := svc.IsStale(ctx, caseNumber)
	if err != nil || !stale {
		t.Fatalf("expected missing entry to be stale, got %v %v", stale, err)
	}
	if fetcher.latestCalls != 0 {
		t.Fatal("expected no remote check without an entry")
	}

	result, err := svc.FetchAndAnalyze(ctx, caseNumber, nil, false)
	if err != nil {
		t.Fatalf("FetchAndAnalyze failed: %v", err)
	}
	if result.Pending != 2 {
		t.Fatalf("expected events pending without a summarizer, got %+v", result)
	}
	stale, err = svc.IsStale(ctx, caseNumber)
	if err != nil || stale {
		t.Fatalf("expected fresh entry, got %v %v", stale, err)
	}

	fetcher.items = append(fetcher.items, testsupport.Communication("newest", caseNumber, "2024-12-01", "Sentença", "Julgo procedente."))
	stale, err = svc.IsStale(ctx, caseNumber)
	if err != nil || !stale {
		t.Fatalf("expected stale after a new communication, got %v %v", stale, err)
	}

	if _, err := svc.IsStale(ctx, "123"); !errors.Is(err, services.ErrInvalidFilter) {
		t.Fatalf("expected ErrInvalidFilter, got %v", err)
	}
}

func TestIsStaleIgnoresSameDayListingOrder(t *testing.T) {
	fetcher := &fakeFetcher{items: []comm.Communication{
		testsupport.Communication("zz-newest", caseNumber, "2024-05-02", "Despacho", "Junte-se."),
		testsupport.Communication("aa-other", caseNumber, "2024-05-02", "Despacho", "Cite-se."),
		testsupport.Communication("older", caseNumber, "2024-04-20", "Despacho", "Vistos."),
	}}
	svc, _ := newService(t, fetcher, nil, pacing.NewFakeClock(time.Now()))
	ctx := context.Background()

	if _, err := svc.FetchAndAnalyze(ctx, caseNumber, nil, false); err != nil {
		t.Fatalf("FetchAndAnalyze failed: %v", err)
	}
	entry, ok := svc.Entry(caseNumber)
	if !ok || entry.LastEventHash != "aa-other" {
		t.Fatalf("expected hash-ordered newest event, got %+v", entry)
	}
	stale, err := svc.IsStale(ctx, caseNumber)
	if err != nil || stale {
		t.Fatalf("expected fresh entry when the directory lists another same-day item first, got %v %v", stale, err)
	}

	fetcher.items = append([]comm.Communication{
		testsupport.Communication("mm-unseen", caseNumber, "2024-05-02", "Despacho", "Intime-se."),
	}, fetcher.items...)
	stale, err = svc.IsStale(ctx, caseNumber)
	if err != nil || !stale {
		t.Fatalf("expected an unseen same-day item to make the entry stale, got %v %v", stale, err)
	}
}

func TestCacheSurvivesRestart(t *testing.T) {
	fetcher := &fakeFetcher{items: comms(2)}
	summarizer := &fakeSummarizer{}
	clock := pacing.NewFakeClock(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	svc, kv := newService(t, fetcher, summarizer, clock)
	ctx := context.Background()

	if _, err := svc.FetchAndAnalyze(ctx, caseNumber, nil, false); err != nil {
		t.Fatalf("FetchAndAnalyze failed: %v", err)
	}

	raw, err := kv.LoadCacheEntries(ctx)
	if err != nil {
		t.Fatalf("LoadCacheEntries failed: %v", err)
	}
	var persisted struct {
		AnalyzedHashes []string `json:"analyzedHashes"`
		LastEventHash  string   `json:"lastEventHash"`
	}
	if err := json.Unmarshal(raw[caseNumber], &persisted); err != nil {
		t.Fatalf("decode persisted entry: %v", err)
	}
	if len(persisted.AnalyzedHashes) != 2 || persisted.AnalyzedHashes[0] != "h00" || persisted.LastEventHash != "h01" {
		t.Fatalf("unexpected persisted entry %+v", persisted)
	}

	restarted, err := analysis.New(ctx, kv, fetcher, summarizer, analysis.Options{TTL: time.Hour}, analysis.WithClock(clock))
	if err != nil {
		t.Fatalf("analysis.New: %v", err)
	}
	events, ok := restarted.GetCached(caseNumber)
	if !ok || len(events) != 2 || events[0].AIAnalysis == nil {
		t.Fatalf("expected cached events after restart, got %+v", events)
	}
	if _, err := restarted.FetchAndAnalyze(ctx, caseNumber, nil, false); err != nil {
		t.Fatalf("FetchAndAnalyze failed: %v", err)
	}
	if len(summarizer.calls) != 2 {
		t.Fatalf("expected no new AI calls after restart, got %v", summarizer.calls)
	}

	if restarted.Expired(caseNumber) {
		t.Fatal("expected fresh entry within TTL")
	}
	clock.Advance(2 * time.Hour)
	if !restarted.Expired(caseNumber) {
		t.Fatal("expected entry past TTL to be expired")
	}
	if events, ok := restarted.GetCached(caseNumber); !ok || len(events) != 2 {
		t.Fatal("expired entries must still be served")
	}

	if err := restarted.Invalidate(ctx, caseNumber); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if _, ok := restarted.GetCached(caseNumber); ok {
		t.Fatal("expected entry dropped after Invalidate")
	}
}

func TestFetchAndAnalyzeFailsWhenNothingFetched(t *testing.T) {
	fetcher := &fakeFetcher{err: &djen.UpstreamError{Status: 503, Message: "down"}}
	svc, _ := newService(t, fetcher, &fakeSummarizer{}, pacing.NewFakeClock(time.Now()))
	if _, err := svc.FetchAndAnalyze(context.Background(), caseNumber, nil, false); !errors.Is(err, services.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	if _, ok := svc.GetCached(caseNumber); ok {
		t.Fatal("expected no cache entry after a failed fetch")
	}
}
