package casestage

import "djenwatch/internal/timeline"

// LadderStep is a point on the finer progress indicator shown next to a case.
type LadderStep int

const (
	StepDistribution LadderStep = iota
	StepCitation
	StepConciliation
	StepContestation
	StepInstruction
	StepJudgment
	StepAppeal
	StepFinality
	StepEnforcement
)

// LadderSteps lists every step in order.
var LadderSteps = []LadderStep{
	StepDistribution, StepCitation, StepConciliation, StepContestation, StepInstruction,
	StepJudgment, StepAppeal, StepFinality, StepEnforcement,
}

// Label returns the display name of the step.
func (s LadderStep) Label() string {
	switch s {
	case StepDistribution:
		return "Distribuição"
	case StepCitation:
		return "Citação"
	case StepConciliation:
		return "Conciliação"
	case StepContestation:
		return "Contestação"
	case StepInstruction:
		return "Instrução"
	case StepJudgment:
		return "Sentença"
	case StepAppeal:
		return "Recurso"
	case StepFinality:
		return "Trânsito em julgado"
	case StepEnforcement:
		return "Cumprimento"
	default:
		return "?"
	}
}

type ladderRule struct {
	Step  LadderStep
	Match func(snapshot) bool
}

var ladderRules = []ladderRule{
	{StepEnforcement, snapshot.enforcement},
	{StepFinality, func(s snapshot) bool { return s.has(finalityPhrases...) }},
	{StepAppeal, snapshot.appeal},
	{StepJudgment, snapshot.judgment},
	{StepInstruction, snapshot.instruction},
	{StepConciliation, func(s snapshot) bool { return s.has(conciliationPhrases...) }},
	{StepContestation, func(s snapshot) bool { return s.has(contestationPhrases...) }},
	{StepCitation, snapshot.citation},
}

// Ladder places the case on the progress ladder. The result never falls
// below the floor implied by Infer for the same events.
func Ladder(events []timeline.Event) LadderStep {
	if len(events) == 0 {
		return StepDistribution
	}
	snap := newSnapshot(events)
	step := StepDistribution
	for _, r := range ladderRules {
		if r.Match(snap) {
			step = r.Step
			break
		}
	}
	return max(step, MinLadderFor(Infer(events)))
}

// MinLadderFor is the lowest ladder step consistent with stage.
func MinLadderFor(stage Stage) LadderStep {
	switch stage {
	case StageArchived:
		return StepFinality
	case StageEnforcement:
		return StepEnforcement
	case StageAppeal:
		return StepAppeal
	case StageJudgment:
		return StepJudgment
	case StageInstruction:
		return StepInstruction
	case StageConciliation:
		return StepConciliation
	case StageContestation:
		return StepContestation
	case StageCitation:
		return StepCitation
	default:
		return StepDistribution
	}
}

// Progress returns step as a fraction of the ladder, 0 at distribution and 1
// at enforcement.
func Progress(step LadderStep) float64 {
	last := len(LadderSteps) - 1
	switch {
	case step <= 0:
		return 0
	case int(step) >= last:
		return 1
	default:
		return float64(step) / float64(last)
	}
}
