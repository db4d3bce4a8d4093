package httpapi_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"djenwatch/internal/casestage"
	"djenwatch/internal/comm"
	"djenwatch/internal/httpapi"
	"djenwatch/internal/ingest"
	"djenwatch/internal/metrics"
	"djenwatch/internal/store"
	"djenwatch/internal/testsupport"
)

const caseA = "00012345620248260100"

type staticStatus struct{ pass ingest.PassStatus }

func (s staticStatus) Last() (ingest.PassStatus, bool) { return s.pass, true }

func newTestServer(t *testing.T) (*httptest.Server, *store.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	m := metrics.New()
	m.StageChanged("judgment")
	srv := httpapi.New(cfg.API.Bind, st,
		httpapi.WithMetrics(m),
		httpapi.WithStatus(staticStatus{pass: ingest.PassStatus{RequestID: "req-1", Report: ingest.Report{Saved: 3}}}),
	)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts, st
}

func seed(t *testing.T, st *store.Store) {
	t.Helper()
	batch := []comm.Communication{
		testsupport.Communication("h1", caseA, "2024-06-10", "Despacho", "Cite-se o réu."),
		testsupport.Communication("h2", caseA, "2024-06-18", "Sentença", "Julgo procedente o pedido."),
	}
	if _, err := st.Save(context.Background(), batch, store.LinkContext{}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestHealthAndMetrics(t *testing.T) {
	ts, _ := newTestServer(t)

	var health map[string]string
	if code := getJSON(t, ts.URL+"/healthz", &health); code != http.StatusOK || health["status"] != "ok" {
		t.Fatalf("unexpected health: %d %v", code, health)
	}

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `stage="judgment"`) {
		t.Fatalf("expected stage change counter in metrics output, got:\n%s", body)
	}
}

func TestCommunicationsListingAndMarkRead(t *testing.T) {
	ts, st := newTestServer(t)
	seed(t, st)

	var list struct {
		Items []comm.Communication `json:"items"`
	}
	if code := getJSON(t, ts.URL+"/api/communications?case=0001234-56.2024.8.26.0100", &list); code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	if len(list.Items) != 2 || list.Items[0].Hash != "h2" {
		t.Fatalf("expected newest first, got %+v", list.Items)
	}

	resp, err := http.Post(ts.URL+"/api/communications/h2/read", "application/json", nil)
	if err != nil {
		t.Fatalf("POST read: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	getJSON(t, ts.URL+"/api/communications?unread=1", &list)
	if len(list.Items) != 1 || list.Items[0].Hash != "h1" {
		t.Fatalf("expected only h1 unread, got %+v", list.Items)
	}

	resp, err = http.Post(ts.URL+"/api/communications/missing/read", "application/json", nil)
	if err != nil {
		t.Fatalf("POST read: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown hash, got %d", resp.StatusCode)
	}

	if code := getJSON(t, ts.URL+"/api/communications?limit=abc", nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", code)
	}
}

func TestCaseTimelineFromStore(t *testing.T) {
	ts, st := newTestServer(t)
	seed(t, st)

	var tl httpapi.TimelineResponse
	if code := getJSON(t, ts.URL+"/api/cases/"+caseA+"/timeline", &tl); code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	if tl.Stage != casestage.StageJudgment || tl.Cached {
		t.Fatalf("unexpected timeline: %+v", tl)
	}
	if tl.Ladder != int(casestage.StepJudgment) || tl.Progress <= 0 {
		t.Fatalf("unexpected ladder %d progress %f", tl.Ladder, tl.Progress)
	}
	if len(tl.Events) != 2 || tl.Events[0].ID != "h2" {
		t.Fatalf("unexpected events: %+v", tl.Events)
	}

	if code := getJSON(t, ts.URL+"/api/cases/10000019920238260002/timeline", nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown case, got %d", code)
	}
	if code := getJSON(t, ts.URL+"/api/cases/123/timeline", nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed case number, got %d", code)
	}
}

func TestStatusIncludesLastPass(t *testing.T) {
	ts, st := newTestServer(t)
	seed(t, st)

	var status struct {
		Stats    store.Stats        `json:"stats"`
		LastPass *ingest.PassStatus `json:"lastPass"`
	}
	if code := getJSON(t, ts.URL+"/api/status", &status); code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	if status.Stats.Total != 2 || status.Stats.Unread != 2 {
		t.Fatalf("unexpected stats: %+v", status.Stats)
	}
	if status.LastPass == nil || status.LastPass.RequestID != "req-1" || status.LastPass.Report.Saved != 3 {
		t.Fatalf("unexpected last pass: %+v", status.LastPass)
	}
}
