package timeline

import "time"

// EventType is the semantic category of a communication.
type EventType string

const (
	EventIntimation EventType = "intimation"
	EventCitation   EventType = "citation"
	EventOrder      EventType = "order"
	EventJudgment   EventType = "judgment"
	EventDecision   EventType = "decision"
	EventAppeal     EventType = "appeal"
	EventOther      EventType = "other"
)

// Label returns the Portuguese display name used in event titles.
func (t EventType) Label() string {
	switch t {
	case EventIntimation:
		return "Intimação"
	case EventCitation:
		return "Citação"
	case EventOrder:
		return "Despacho"
	case EventJudgment:
		return "Sentença"
	case EventDecision:
		return "Decisão"
	case EventAppeal:
		return "Recurso"
	default:
		return "Outro"
	}
}

// Urgency grades how quickly an event needs attention.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// ParseUrgency maps free-form provider output onto a known level.
func ParseUrgency(s string) (Urgency, bool) {
	switch Urgency(s) {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical:
		return Urgency(s), true
	}
	switch s {
	case "baixa":
		return UrgencyLow, true
	case "media", "média":
		return UrgencyMedium, true
	case "alta":
		return UrgencyHigh, true
	case "critica", "crítica", "urgente":
		return UrgencyCritical, true
	}
	return "", false
}

// AIAnalysis is the structured summary attached to an analyzed event.
type AIAnalysis struct {
	Summary        string   `json:"summary"`
	Urgency        Urgency  `json:"urgency"`
	ActionRequired bool     `json:"actionRequired"`
	KeyPoints      []string `json:"keyPoints,omitempty"`
}

// Event is a classified view of one communication. ID is the communication
// hash.
type Event struct {
	ID             string          `json:"id"`
	Date           time.Time       `json:"date"`
	Type           EventType       `json:"type"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Org            string          `json:"org,omitempty"`
	Tribunal       string          `json:"tribunal,omitempty"`
	Link           string          `json:"link,omitempty"`
	AppellateLevel *AppellateLevel `json:"appellateLevel,omitempty"`
	AIAnalysis     *AIAnalysis     `json:"aiAnalysis,omitempty"`
	// RepublicationOf holds the hash of an older event carrying the same
	// text, set when the directory republishes a communication.
	RepublicationOf string `json:"republicationOf,omitempty"`
}
