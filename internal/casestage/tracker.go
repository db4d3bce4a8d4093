package casestage

import (
	"context"
	"log/slog"
	"time"

	"djenwatch/internal/logging"
	"djenwatch/internal/metrics"
	"djenwatch/internal/services"
	"djenwatch/internal/timeline"
)

// StatusWriter persists the inferred stage on the case record.
type StatusWriter interface {
	UpdateCaseStatus(ctx context.Context, caseID int64, status string) error
}

// Listener is told about every status change the tracker writes.
type Listener interface {
	OnStageChanged(ctx context.Context, change Change) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, change Change) error

// OnStageChanged calls f.
func (f ListenerFunc) OnStageChanged(ctx context.Context, change Change) error { return f(ctx, change) }

// CaseRef identifies the case being evaluated and its persisted status.
type CaseRef struct {
	ID         int64
	CaseNumber string
	Status     string
}

// Change describes one status overwrite.
type Change struct {
	CaseID     int64
	CaseNumber string
	Previous   string
	Current    Stage
	Step       LadderStep
	At         time.Time
}

// Outcome reports the result of one Apply call.
type Outcome struct {
	Stage   Stage
	Step    LadderStep
	Changed bool
}

// Tracker infers stages and overwrites stale case statuses.
type Tracker struct {
	writer    StatusWriter
	listeners []Listener
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// TrackerOption customizes a Tracker.
type TrackerOption func(*Tracker)

// WithListener registers l for change notifications.
func WithListener(l Listener) TrackerOption {
	return func(t *Tracker) {
		if l != nil {
			t.listeners = append(t.listeners, l)
		}
	}
}

// WithMetrics records stage changes on m.
func WithMetrics(m *metrics.Metrics) TrackerOption {
	return func(t *Tracker) { t.metrics = m }
}

// NewTracker constructs a tracker writing through writer.
func NewTracker(writer StatusWriter, logger *slog.Logger, opts ...TrackerOption) *Tracker {
	if logger == nil {
		logger = logging.NewNop()
	}
	t := &Tracker{
		writer: writer,
		logger: logging.NewComponentLogger(logger, "casestage"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Apply infers the stage for events and, when it differs from ref.Status,
// writes it exactly once and notifies listeners. Inference always wins over
// the recorded status. An empty history leaves the status untouched.
func (t *Tracker) Apply(ctx context.Context, ref CaseRef, events []timeline.Event) (Outcome, error) {
	stage := Infer(events)
	out := Outcome{Stage: stage, Step: Ladder(events)}
	if stage == StageNone || string(stage) == ref.Status {
		return out, nil
	}

	ctx = services.WithCaseNumber(ctx, ref.CaseNumber)
	logger := logging.WithContext(ctx, t.logger)
	if err := t.writer.UpdateCaseStatus(ctx, ref.ID, string(stage)); err != nil {
		return out, err
	}
	out.Changed = true
	t.metrics.StageChanged(string(stage))
	logger.Info("case stage updated",
		logging.String(logging.FieldEventType, "stage_changed"),
		logging.String("previous", ref.Status),
		logging.String("stage", string(stage)),
		logging.String("ladder", out.Step.Label()),
	)

	change := Change{
		CaseID:     ref.ID,
		CaseNumber: ref.CaseNumber,
		Previous:   ref.Status,
		Current:    stage,
		Step:       out.Step,
		At:         t.now(),
	}
	for _, l := range t.listeners {
		if err := l.OnStageChanged(ctx, change); err != nil {
			logging.WarnWithContext(logger, "stage change listener failed", "stage_listener_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "status was saved; downstream consumer missed the change"),
			)
		}
	}
	return out, nil
}
