// Package casestage infers the procedural stage of a case from its most
// recent classified events and keeps the persisted case status in step.
package casestage

import (
	"strings"

	"djenwatch/internal/textutil"
	"djenwatch/internal/timeline"
)

// Stage is the coarse procedural phase written to the case status field.
type Stage string

const (
	StageArchived     Stage = "archived"
	StageEnforcement  Stage = "enforcement"
	StageAppeal       Stage = "appeal"
	StageJudgment     Stage = "judgment"
	StageInstruction  Stage = "instruction"
	StageConciliation Stage = "conciliation"
	StageContestation Stage = "contestation"
	StageCitation     Stage = "citation"
	StageInProgress   Stage = "in_progress"
	StageDistributed  Stage = "distributed"
	StageNone         Stage = "none"
)

// Label returns the Portuguese display name of the stage.
func (s Stage) Label() string {
	switch s {
	case StageArchived:
		return "Arquivado"
	case StageEnforcement:
		return "Cumprimento de sentença"
	case StageAppeal:
		return "Recurso"
	case StageJudgment:
		return "Sentenciado"
	case StageInstruction:
		return "Instrução"
	case StageConciliation:
		return "Conciliação"
	case StageContestation:
		return "Contestação"
	case StageCitation:
		return "Citação"
	case StageInProgress:
		return "Em andamento"
	case StageDistributed:
		return "Distribuído"
	default:
		return "Sem movimentação"
	}
}

// Window is how many of the most recent events feed inference.
const Window = 5

var (
	enforcementPhrases = []string{"cumprimento de sentenca", "fase de cumprimento", "liquidacao de sentenca"}
	appealPhrases      = []string{
		"apelacao", "agravo de instrumento", "agravo interno", "embargos de declaracao",
		"recurso especial", "recurso extraordinario", "recurso inominado",
		"tribunal", "turma recursal", "sessao de julgamento", "subam os autos",
	}
	verdictPhrases = []string{
		"julgo procedente", "julgo improcedente", "julgo parcialmente procedente",
		"julgo extinto", "extingo o processo", "homologo o acordo", "sentenca proferida",
	}
	instructionPhrases  = []string{"audiencia de instrucao", "producao de provas", "oitiva de testemunhas", "pericia"}
	conciliationPhrases = []string{"audiencia de conciliacao", "sessao de conciliacao", "audiencia de mediacao", "conciliacao"}
	contestationPhrases = []string{"contestacao", "apresentou defesa", "defesa apresentada"}
	citationPhrases     = []string{"citacao", "cite-se", "citem-se", "fica citado", "fica citada"}
	progressPhrases     = []string{"prazo", "manifestacao", "deferiu", "indeferiu"}
	finalityPhrases     = []string{"transito em julgado", "transitou em julgado", "transitada em julgado", "arquivado", "baixa definitiva"}
)

// snapshot is the inference input: the folded corpus of the recent window
// plus the event types it contains.
type snapshot struct {
	corpus string
	types  map[timeline.EventType]bool
}

func (s snapshot) has(phrases ...string) bool { return textutil.ContainsAny(s.corpus, phrases...) }

func (s snapshot) hasType(types ...timeline.EventType) bool {
	for _, t := range types {
		if s.types[t] {
			return true
		}
	}
	return false
}

func (s snapshot) enforcement() bool {
	return s.has(enforcementPhrases...) || (s.has("execucao") && !s.has("recurso"))
}

func (s snapshot) appeal() bool {
	return s.hasType(timeline.EventAppeal) || s.has(appealPhrases...)
}

func (s snapshot) judgment() bool {
	return s.hasType(timeline.EventJudgment) || s.has(verdictPhrases...)
}

func (s snapshot) instruction() bool {
	return s.has(instructionPhrases...) && !s.has(appealPhrases...)
}

func (s snapshot) citation() bool {
	return s.hasType(timeline.EventCitation) || s.has(citationPhrases...)
}

func newSnapshot(events []timeline.Event) snapshot {
	recent := Recent(events)
	parts := make([]string, 0, len(recent)*3)
	types := make(map[timeline.EventType]bool, len(recent))
	for _, e := range recent {
		types[e.Type] = true
		parts = append(parts, e.Title, e.Description)
		if e.AIAnalysis != nil {
			parts = append(parts, e.AIAnalysis.Summary)
		}
	}
	return snapshot{corpus: textutil.Fold(strings.Join(parts, " ")), types: types}
}

type stageRule struct {
	Stage Stage
	Match func(snapshot) bool
}

// stageRules is evaluated in order; the first match wins. Appeal sits above
// judgment and instruction so appellate activity on a concluded case is not
// masked by an older verdict.
var stageRules = []stageRule{
	{StageArchived, func(s snapshot) bool {
		return s.has("arquivamento definitivo", "baixa definitiva") || (s.has("arquivado") && s.has("transitado"))
	}},
	{StageEnforcement, snapshot.enforcement},
	{StageAppeal, snapshot.appeal},
	{StageJudgment, snapshot.judgment},
	{StageInstruction, snapshot.instruction},
	{StageConciliation, func(s snapshot) bool { return s.has(conciliationPhrases...) }},
	{StageContestation, func(s snapshot) bool { return s.has(contestationPhrases...) }},
	{StageCitation, snapshot.citation},
	{StageInProgress, func(s snapshot) bool {
		return s.hasType(timeline.EventIntimation, timeline.EventDecision, timeline.EventOrder) || s.has(progressPhrases...)
	}},
	{StageDistributed, func(snapshot) bool { return true }},
}

// Infer returns the stage implied by the most recent events. An empty
// history yields StageNone.
func Infer(events []timeline.Event) Stage {
	if len(events) == 0 {
		return StageNone
	}
	snap := newSnapshot(events)
	for _, r := range stageRules {
		if r.Match(snap) {
			return r.Stage
		}
	}
	return StageDistributed
}

// Recent returns up to Window events, most recent first. The input is not
// modified.
func Recent(events []timeline.Event) []timeline.Event {
	sorted := make([]timeline.Event, len(events))
	copy(sorted, events)
	timeline.SortEvents(sorted)
	if len(sorted) > Window {
		sorted = sorted[:Window]
	}
	return sorted
}
