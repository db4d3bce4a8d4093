package casestage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"djenwatch/internal/casestage"
	"djenwatch/internal/timeline"
)

func event(id string, day int, typ timeline.EventType, text string) timeline.Event {
	return timeline.Event{
		ID:          id,
		Date:        time.Date(2024, time.January, day, 0, 0, 0, 0, time.UTC),
		Type:        typ,
		Title:       typ.Label(),
		Description: text,
	}
}

func TestInferStagePrecedence(t *testing.T) {
	cases := []struct {
		name   string
		events []timeline.Event
		want   casestage.Stage
	}{
		{"empty", nil, casestage.StageNone},
		{"archived", []timeline.Event{
			event("a", 2, timeline.EventOther, "Processo arquivado. Decisão transitada, transitado em julgado."),
		}, casestage.StageArchived},
		{"enforcement", []timeline.Event{
			event("a", 2, timeline.EventIntimation, "Intime-se o executado na fase de cumprimento."),
		}, casestage.StageEnforcement},
		{"execution without appeal", []timeline.Event{
			event("a", 2, timeline.EventOther, "Penhora on-line na execução."),
		}, casestage.StageEnforcement},
		{"appeal beats older judgment", []timeline.Event{
			event("a", 1, timeline.EventJudgment, "Julgo procedente o pedido."),
			event("b", 5, timeline.EventAppeal, "Recebo a apelação."),
		}, casestage.StageAppeal},
		{"judgment", []timeline.Event{
			event("a", 1, timeline.EventJudgment, "Julgo improcedente o pedido."),
		}, casestage.StageJudgment},
		{"instruction", []timeline.Event{
			event("a", 1, timeline.EventOther, "Designo audiência de instrução e julgamento."),
		}, casestage.StageInstruction},
		{"appellate hearing is not instruction", []timeline.Event{
			event("a", 1, timeline.EventOther, "Incluído em sessão de julgamento. Oitiva de testemunhas dispensada."),
		}, casestage.StageAppeal},
		{"tribunal mention outranks instruction", []timeline.Event{
			event("a", 1, timeline.EventOther, "Autos remetidos ao Tribunal. Designada audiência de instrução."),
		}, casestage.StageAppeal},
		{"conciliation over older contestation", []timeline.Event{
			event("a", 1, timeline.EventOther, "Juntada a contestação pelo réu."),
			event("b", 8, timeline.EventOther, "Designada audiência de conciliação para 10/03."),
		}, casestage.StageConciliation},
		{"contestation", []timeline.Event{
			event("a", 1, timeline.EventOther, "O réu apresentou defesa."),
		}, casestage.StageContestation},
		{"citation", []timeline.Event{
			event("a", 1, timeline.EventCitation, "Cite-se."),
		}, casestage.StageCitation},
		{"in progress", []timeline.Event{
			event("a", 1, timeline.EventOrder, "Junte-se."),
		}, casestage.StageInProgress},
		{"distributed", []timeline.Event{
			event("a", 1, timeline.EventOther, "Certidão de publicação."),
		}, casestage.StageDistributed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := casestage.Infer(tc.events); got != tc.want {
				t.Fatalf("Infer = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestInferUsesOnlyFiveMostRecentEvents(t *testing.T) {
	events := []timeline.Event{event("old", 1, timeline.EventJudgment, "Julgo procedente o pedido.")}
	for i := 0; i < casestage.Window; i++ {
		events = append(events, event(string(rune('b'+i)), 10+i, timeline.EventOther, "Certidão de publicação."))
	}
	if got := casestage.Infer(events); got != casestage.StageDistributed {
		t.Fatalf("expected events outside the window to be ignored, got %s", got)
	}
	if got := casestage.Recent(events); len(got) != casestage.Window || got[0].ID != "f" {
		t.Fatalf("unexpected recent window %+v", got)
	}
}

func TestInferReadsAISummaries(t *testing.T) {
	e := event("a", 1, timeline.EventOther, "Certidão.")
	e.AIAnalysis = &timeline.AIAnalysis{Summary: "Audiência de conciliação designada."}
	if got := casestage.Infer([]timeline.Event{e}); got != casestage.StageConciliation {
		t.Fatalf("expected AI summary to feed inference, got %s", got)
	}
}

func TestLadderNeverFallsBelowStage(t *testing.T) {
	cases := []struct {
		name   string
		events []timeline.Event
		want   casestage.LadderStep
	}{
		{"empty", nil, casestage.StepDistribution},
		{"finality", []timeline.Event{
			event("a", 1, timeline.EventOther, "Certifico o trânsito em julgado."),
		}, casestage.StepFinality},
		{"archived stage floor", []timeline.Event{
			event("a", 1, timeline.EventOther, "Baixa definitiva dos autos."),
		}, casestage.StepFinality},
		{"appeal", []timeline.Event{
			event("a", 1, timeline.EventAppeal, "Agravo de instrumento interposto."),
		}, casestage.StepAppeal},
		{"citation", []timeline.Event{
			event("a", 1, timeline.EventCitation, "Cite-se."),
		}, casestage.StepCitation},
		{"enforcement", []timeline.Event{
			event("a", 1, timeline.EventIntimation, "Liquidação de sentença."),
		}, casestage.StepEnforcement},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := casestage.Ladder(tc.events)
			if got != tc.want {
				t.Fatalf("Ladder = %s, want %s", got.Label(), tc.want.Label())
			}
			if floor := casestage.MinLadderFor(casestage.Infer(tc.events)); got < floor {
				t.Fatalf("ladder %s regressed below %s", got.Label(), floor.Label())
			}
		})
	}
}

func TestProgress(t *testing.T) {
	if casestage.Progress(casestage.StepDistribution) != 0 {
		t.Fatal("expected distribution at 0")
	}
	if casestage.Progress(casestage.StepEnforcement) != 1 {
		t.Fatal("expected enforcement at 1")
	}
	if p := casestage.Progress(casestage.StepContestation); p <= 0.3 || p >= 0.4 {
		t.Fatalf("unexpected contestation progress %f", p)
	}
}

type recordingWriter struct {
	calls []string
	err   error
}

func (w *recordingWriter) UpdateCaseStatus(_ context.Context, _ int64, status string) error {
	w.calls = append(w.calls, status)
	return w.err
}

func TestTrackerOverwritesStatusAndNotifies(t *testing.T) {
	writer := &recordingWriter{}
	var changes []casestage.Change
	failing := casestage.ListenerFunc(func(context.Context, casestage.Change) error {
		return errors.New("listener down")
	})
	recording := casestage.ListenerFunc(func(_ context.Context, c casestage.Change) error {
		changes = append(changes, c)
		return nil
	})
	tracker := casestage.NewTracker(writer, nil, casestage.WithListener(failing), casestage.WithListener(recording))

	events := []timeline.Event{event("a", 1, timeline.EventCitation, "Cite-se.")}
	ref := casestage.CaseRef{ID: 7, CaseNumber: "00012345620248260100", Status: "judgment"}

	out, err := tracker.Apply(context.Background(), ref, events)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !out.Changed || out.Stage != casestage.StageCitation {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if len(writer.calls) != 1 || writer.calls[0] != "citation" {
		t.Fatalf("expected one overwrite to citation, got %v", writer.calls)
	}
	if len(changes) != 1 || changes[0].Previous != "judgment" || changes[0].CaseID != 7 {
		t.Fatalf("unexpected changes %+v", changes)
	}

	ref.Status = "citation"
	out, err = tracker.Apply(context.Background(), ref, events)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if out.Changed || len(writer.calls) != 1 {
		t.Fatalf("expected no write when status matches, calls=%v", writer.calls)
	}

	if _, err := tracker.Apply(context.Background(), casestage.CaseRef{ID: 8, Status: "judgment"}, nil); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(writer.calls) != 1 {
		t.Fatalf("expected empty history to leave status untouched, calls=%v", writer.calls)
	}
}

func TestTrackerPropagatesWriterErrors(t *testing.T) {
	writer := &recordingWriter{err: errors.New("disk full")}
	notified := false
	tracker := casestage.NewTracker(writer, nil, casestage.WithListener(casestage.ListenerFunc(func(context.Context, casestage.Change) error {
		notified = true
		return nil
	})))
	_, err := tracker.Apply(context.Background(), casestage.CaseRef{ID: 1}, []timeline.Event{event("a", 1, timeline.EventCitation, "Cite-se.")})
	if err == nil {
		t.Fatal("expected writer error")
	}
	if notified {
		t.Fatal("listeners must not hear about unsaved changes")
	}
}
