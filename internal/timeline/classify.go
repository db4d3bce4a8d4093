package timeline

import (
	"strings"

	"djenwatch/internal/textutil"
)

// AnalysisWindow bounds how many runes of text the classifier inspects.
// Footers and signature blocks past this point skew matches.
const AnalysisWindow = 1500

var (
	intimationPhrases = []string{
		"intimacao", "intime-se", "intimem-se", "fica intimado", "fica intimada", "ficam intimados",
		"prazo de", "no prazo",
		"manifestar", "comparecer", "apresentar",
		"arquivamento",
	}
	executionPhrases = []string{"cumprimento de sentenca", "fase de cumprimento"}
	verdictPhrases   = []string{
		"julgo procedente", "julgo improcedente", "julgo parcialmente procedente",
		"julgo extinto", "extingo o processo", "homologo o acordo",
	}
	decisionPhrases = []string{
		"tutela de urgencia", "tutela antecipada", "liminar",
		"defiro o pedido", "indefiro o pedido", "passo a decidir",
	}
	citationPhrases = []string{"citacao", "cite-se", "citem-se", "fica citado", "fica citada"}
	orderPhrases    = []string{"despacho", "vistos etc", "vistos, etc", "conclusos", "determino", "de-se vista"}
	appealPhrases   = []string{
		"apelacao", "agravo de instrumento", "agravo interno", "embargos de declaracao",
		"recurso especial", "recurso extraordinario",
	}
)

type rule struct {
	Type  EventType
	Match func(text, declared string) bool
}

// rules is evaluated top to bottom; the first match wins. Intimation leads
// because intimations routinely quote wording that belongs to other types.
var rules = []rule{
	{EventIntimation, func(text, _ string) bool {
		return textutil.ContainsAny(text, intimationPhrases...) || textutil.ContainsAny(text, executionPhrases...)
	}},
	{EventJudgment, func(text, _ string) bool {
		return textutil.ContainsAny(text, verdictPhrases...) && !textutil.ContainsAny(text, executionPhrases...)
	}},
	{EventDecision, func(text, _ string) bool {
		return textutil.ContainsAny(text, decisionPhrases...)
	}},
	{EventCitation, func(text, _ string) bool {
		return textutil.ContainsAny(text, citationPhrases...)
	}},
	{EventOrder, func(text, _ string) bool {
		return textutil.ContainsAny(text, orderPhrases...)
	}},
	{EventAppeal, func(text, declared string) bool {
		return textutil.ContainsAny(text, appealPhrases...) || strings.Contains(declared, "acordao")
	}},
}

// declaredFallback maps declared types onto events when there is no text to
// classify.
var declaredFallback = []struct {
	needle string
	typ    EventType
}{
	{"acordao", EventAppeal},
	{"sentenca", EventJudgment},
	{"decisao", EventDecision},
	{"despacho", EventOrder},
	{"citacao", EventCitation},
	{"intimacao", EventIntimation},
}

// Classify returns the event type for a communication. It is deterministic:
// the same declared type and text always produce the same result.
func Classify(declaredType, text string) EventType {
	declared := textutil.Fold(declaredType)
	normalized := Normalize(text)
	if normalized == "" {
		for _, fb := range declaredFallback {
			if strings.Contains(declared, fb.needle) {
				return fb.typ
			}
		}
		return EventOther
	}
	for _, r := range rules {
		if r.Match(normalized, declared) {
			return r.Type
		}
	}
	return EventOther
}

// Normalize folds text and trims it to the analysis window.
func Normalize(text string) string {
	return textutil.Truncate(textutil.Fold(text), AnalysisWindow)
}
