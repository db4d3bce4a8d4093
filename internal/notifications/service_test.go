package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"djenwatch/internal/casestage"
	"djenwatch/internal/comm"
	"djenwatch/internal/notifications"
	"djenwatch/internal/testsupport"
)

type captured struct {
	title    string
	body     string
	tags     string
	priority string
	click    string
}

func newCaptureServer(t *testing.T) (*httptest.Server, *[]captured) {
	t.Helper()
	var got []captured
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got = append(got, captured{
			title:    r.Header.Get("Title"),
			body:     string(body),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			click:    r.Header.Get("Click"),
		})
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server, &got
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(cfg)
	if err := svc.NotifyError(context.Background(), errors.New("boom"), "sync"); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsStageChange(t *testing.T) {
	server, got := newCaptureServer(t)
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.StageChanges = true

	svc := notifications.NewService(cfg)
	listener := notifications.StageListener(svc)
	err := listener.OnStageChanged(context.Background(), casestage.Change{
		CaseNumber: "00012345620248260100",
		Previous:   "citation",
		Current:    casestage.StageJudgment,
		Step:       casestage.StepJudgment,
	})
	if err != nil {
		t.Fatalf("OnStageChanged failed: %v", err)
	}
	if len(*got) != 1 {
		t.Fatalf("expected one request, got %d", len(*got))
	}
	msg := (*got)[0]
	if msg.title != "djenwatch - Fase alterada" {
		t.Fatalf("unexpected title %q", msg.title)
	}
	if !strings.Contains(msg.body, "0001234-56.2024.8.26.0100") || !strings.Contains(msg.body, "Citação → Sentenciado") {
		t.Fatalf("unexpected body %q", msg.body)
	}
	if msg.tags != "djenwatch,stage,judgment" {
		t.Fatalf("unexpected tags %q", msg.tags)
	}
}

func TestNtfyServiceListsNewCommunications(t *testing.T) {
	server, got := newCaptureServer(t)
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.NewCommunications = true

	items := make([]comm.Communication, 0, 7)
	for i := 0; i < 7; i++ {
		c := testsupport.Communication("h", "00012345620248260100", "2024-03-01", "Despacho", "Cite-se.")
		c.Link = "https://example.test/doc"
		items = append(items, c)
	}
	svc := notifications.NewService(cfg)
	if err := svc.NotifyNewCommunications(context.Background(), "00012345620248260100", items); err != nil {
		t.Fatalf("NotifyNewCommunications failed: %v", err)
	}
	msg := (*got)[0]
	if !strings.HasPrefix(msg.body, "7 nova(s) publicação(ões)") {
		t.Fatalf("unexpected body %q", msg.body)
	}
	if strings.Count(msg.body, "\n• ") != 5 || !strings.Contains(msg.body, "e mais 2") {
		t.Fatalf("expected five listed items plus a remainder, got %q", msg.body)
	}
	if msg.priority != "high" || msg.click != "https://example.test/doc" {
		t.Fatalf("unexpected headers %+v", msg)
	}
}

func TestNtfyServiceHonoursCategoryToggles(t *testing.T) {
	server, got := newCaptureServer(t)
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.StageChanges = false
	cfg.Notifications.NewCommunications = false
	cfg.Notifications.Errors = false

	svc := notifications.NewService(cfg)
	ctx := context.Background()
	_ = svc.NotifyStageChanged(ctx, casestage.Change{Current: casestage.StageAppeal})
	_ = svc.NotifyNewCommunications(ctx, "1", []comm.Communication{{Hash: "x"}})
	_ = svc.NotifyError(ctx, errors.New("boom"), "sync")
	_ = svc.NotifySyncCompleted(ctx, 3, 0, 0, time.Second)
	if len(*got) != 0 {
		t.Fatalf("expected disabled categories to stay silent, got %d requests", len(*got))
	}
	if err := svc.TestNotification(ctx); err != nil {
		t.Fatalf("TestNotification failed: %v", err)
	}
	if len(*got) != 1 || (*got)[0].priority != "low" {
		t.Fatalf("expected test notification delivered, got %+v", *got)
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL

	err := notifications.NewService(cfg).TestNotification(context.Background())
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}
