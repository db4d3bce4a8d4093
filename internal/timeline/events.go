package timeline

import (
	"sort"

	"djenwatch/internal/comm"
	"djenwatch/internal/textutil"
)

// RepublicationThreshold is the cosine similarity above which two events of
// the same type are treated as one publication printed twice.
const RepublicationThreshold = 0.97

// Short boilerplate ("Intime-se.") repeats legitimately and is never
// treated as a republication.
const minRepublicationText = 80

// FromCommunication classifies a single communication.
func FromCommunication(c comm.Communication) Event {
	declared := c.DeclaredType()
	typ := Classify(declared, c.Text)
	title := declared
	if title == "" {
		title = typ.Label()
	}
	return Event{
		ID:             c.Hash,
		Date:           c.AvailabilityDate,
		Type:           typ,
		Title:          title,
		Description:    c.Text,
		Org:            c.OrgName,
		Tribunal:       c.TribunalCode,
		Link:           c.Link,
		AppellateLevel: DetectAppellateLevel(c.OrgName, c.Text),
	}
}

// BuildEvents classifies comms and returns events most recent first. Equal
// dates are ordered by hash so the newest event is stable across calls.
func BuildEvents(comms []comm.Communication) []Event {
	events := make([]Event, 0, len(comms))
	seen := make(map[string]struct{}, len(comms))
	for _, c := range comms {
		if _, dup := seen[c.Hash]; dup {
			continue
		}
		seen[c.Hash] = struct{}{}
		events = append(events, FromCommunication(c))
	}
	SortEvents(events)
	markRepublications(events)
	return events
}

// SortEvents orders events by date descending, then hash ascending.
func SortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Date.Equal(events[j].Date) {
			return events[i].Date.After(events[j].Date)
		}
		return events[i].ID < events[j].ID
	})
}

// Latest returns the most recent event, or false for an empty history.
func Latest(events []Event) (Event, bool) {
	if len(events) == 0 {
		return Event{}, false
	}
	return events[0], true
}

func markRepublications(events []Event) {
	prints := make([]*textutil.Fingerprint, len(events))
	for i := range events {
		if text := Normalize(events[i].Description); len(text) >= minRepublicationText {
			prints[i] = textutil.NewFingerprint(text)
		}
	}
	for i := range events {
		for j := len(events) - 1; j > i; j-- {
			if events[i].Type != events[j].Type {
				continue
			}
			if textutil.CosineSimilarity(prints[i], prints[j]) >= RepublicationThreshold {
				events[i].RepublicationOf = events[j].ID
				break
			}
		}
	}
}
