package analysis

import (
	"encoding/json"
	"slices"
	"time"

	"djenwatch/internal/timeline"
)

// Entry is the cached state of one case number.
type Entry struct {
	CaseNumber     string
	Events         []timeline.Event
	LastEventHash  string
	AnalyzedHashes map[string]struct{}
	Timestamp      time.Time
}

// entryJSON is the persisted shape; the hash set is stored as a sorted list.
type entryJSON struct {
	CaseNumber     string           `json:"caseNumber"`
	Events         []timeline.Event `json:"events"`
	LastEventHash  string           `json:"lastEventHash"`
	AnalyzedHashes []string         `json:"analyzedHashes"`
	Timestamp      time.Time        `json:"timestamp"`
}

// MarshalJSON implements json.Marshaler.
func (e Entry) MarshalJSON() ([]byte, error) {
	hashes := make([]string, 0, len(e.AnalyzedHashes))
	for h := range e.AnalyzedHashes {
		hashes = append(hashes, h)
	}
	slices.Sort(hashes)
	return json.Marshal(entryJSON{
		CaseNumber:     e.CaseNumber,
		Events:         e.Events,
		LastEventHash:  e.LastEventHash,
		AnalyzedHashes: hashes,
		Timestamp:      e.Timestamp,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw entryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.CaseNumber = raw.CaseNumber
	e.Events = raw.Events
	e.LastEventHash = raw.LastEventHash
	e.Timestamp = raw.Timestamp
	e.AnalyzedHashes = make(map[string]struct{}, len(raw.AnalyzedHashes))
	for _, h := range raw.AnalyzedHashes {
		e.AnalyzedHashes[h] = struct{}{}
	}
	return nil
}

// Analyzed reports whether hash already has an AI summary.
func (e *Entry) Analyzed(hash string) bool {
	_, ok := e.AnalyzedHashes[hash]
	return ok
}

// hasNewest reports whether hash is the last event hash or another event
// sharing the newest cached date.
func (e *Entry) hasNewest(hash string) bool {
	if hash == e.LastEventHash {
		return true
	}
	if len(e.Events) == 0 {
		return false
	}
	newest := e.Events[0].Date
	for _, ev := range e.Events {
		if !ev.Date.Equal(newest) {
			break
		}
		if ev.ID == hash {
			return true
		}
	}
	return false
}

// Expired reports whether the entry is older than ttl. Expired entries are
// still served; they only mark the case as a refresh candidate.
func (e *Entry) Expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(e.Timestamp) > ttl
}

// clone returns a deep copy safe to hand to callers.
func (e *Entry) clone() *Entry {
	out := &Entry{
		CaseNumber:     e.CaseNumber,
		Events:         cloneEvents(e.Events),
		LastEventHash:  e.LastEventHash,
		AnalyzedHashes: make(map[string]struct{}, len(e.AnalyzedHashes)),
		Timestamp:      e.Timestamp,
	}
	for h := range e.AnalyzedHashes {
		out.AnalyzedHashes[h] = struct{}{}
	}
	return out
}

func cloneEvents(events []timeline.Event) []timeline.Event {
	out := make([]timeline.Event, len(events))
	copy(out, events)
	for i := range out {
		if a := out[i].AIAnalysis; a != nil {
			dup := *a
			dup.KeyPoints = slices.Clone(a.KeyPoints)
			out[i].AIAnalysis = &dup
		}
	}
	return out
}
