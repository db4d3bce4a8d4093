package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"djenwatch/internal/casestage"
	"djenwatch/internal/comm"
	"djenwatch/internal/config"
)

const userAgent = "djenwatch/0.1"

// maxListed bounds how many communications one message enumerates.
const maxListed = 5

// Service defines the notification surface exposed to the sync workflow.
type Service interface {
	NotifyStageChanged(ctx context.Context, change casestage.Change) error
	NotifyNewCommunications(ctx context.Context, caseNumber string, items []comm.Communication) error
	NotifySyncCompleted(ctx context.Context, found, saved, errors int, duration time.Duration) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint:          topic,
		client:            &http.Client{Timeout: timeout},
		stageChanges:      cfg.Notifications.StageChanges,
		newCommunications: cfg.Notifications.NewCommunications,
		errors:            cfg.Notifications.Errors,
	}
}

// StageListener forwards tracker changes to svc.
func StageListener(svc Service) casestage.Listener {
	return casestage.ListenerFunc(svc.NotifyStageChanged)
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
	click    string
}

type ntfyService struct {
	endpoint          string
	client            *http.Client
	stageChanges      bool
	newCommunications bool
	errors            bool
}

func (n *ntfyService) NotifyStageChanged(ctx context.Context, change casestage.Change) error {
	if !n.stageChanges {
		return nil
	}
	previous := strings.TrimSpace(change.Previous)
	if previous == "" {
		previous = "sem status"
	} else {
		previous = casestage.Stage(previous).Label()
	}
	data := payload{
		title: "djenwatch - Fase alterada",
		message: fmt.Sprintf("Processo %s: %s → %s (%s)",
			comm.FormatCaseNumber(change.CaseNumber), previous, change.Current.Label(), change.Step.Label()),
		tags: []string{"djenwatch", "stage", string(change.Current)},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyNewCommunications(ctx context.Context, caseNumber string, items []comm.Communication) error {
	if !n.newCommunications || len(items) == 0 {
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d nova(s) publicação(ões) no processo %s", len(items), comm.FormatCaseNumber(caseNumber))
	for i, item := range items {
		if i == maxListed {
			fmt.Fprintf(&b, "\n… e mais %d", len(items)-maxListed)
			break
		}
		kind := item.DeclaredType()
		if kind == "" {
			kind = "Comunicação"
		}
		fmt.Fprintf(&b, "\n• %s %s - %s", item.AvailabilityDate.Format("02/01/2006"), kind, item.OrgName)
	}
	data := payload{
		title:    "djenwatch - Novas publicações",
		message:  b.String(),
		tags:     []string{"djenwatch", "djen", "new"},
		priority: "high",
		click:    items[0].Link,
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifySyncCompleted(ctx context.Context, found, saved, failed int, duration time.Duration) error {
	if saved == 0 && failed == 0 {
		return nil
	}
	duration = max(duration.Round(time.Second), 0)
	title := "djenwatch - Sincronização concluída"
	if failed > 0 {
		title = "djenwatch - Sincronização concluída (com erros)"
	}
	data := payload{
		title:   title,
		message: fmt.Sprintf("%d encontradas, %d importadas, %d erros em %s", found, saved, failed, duration),
		tags:    []string{"djenwatch", "sync", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Erro")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" em ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("desconhecido")
	}
	data := payload{
		title:    "djenwatch - Erro",
		message:  builder.String(),
		tags:     []string{"djenwatch", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "djenwatch - Teste",
		message:  "Teste do sistema de notificações",
		tags:     []string{"djenwatch", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}
	if data.click != "" {
		req.Header.Set("Click", data.click)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyStageChanged(context.Context, casestage.Change) error { return nil }
func (noopService) NotifyNewCommunications(context.Context, string, []comm.Communication) error {
	return nil
}
func (noopService) NotifySyncCompleted(context.Context, int, int, int, time.Duration) error {
	return nil
}
func (noopService) NotifyError(context.Context, error, string) error { return nil }
func (noopService) TestNotification(context.Context) error          { return nil }
