package timeline

import (
	"regexp"
	"strings"

	"djenwatch/internal/textutil"
)

// AppellateLevel names the judging instance a communication came from.
type AppellateLevel string

const (
	LevelSupremeCourt   AppellateLevel = "stf"
	LevelSuperiorCourt  AppellateLevel = "stj"
	LevelLaborSuperior  AppellateLevel = "tst"
	LevelLaborRegional  AppellateLevel = "trt"
	LevelSecondInstance AppellateLevel = "second_instance"
	LevelAppealsPanel   AppellateLevel = "appeals_panel"
	LevelFirstInstance  AppellateLevel = "first_instance"
)

// Label returns the display name of the level.
func (l AppellateLevel) Label() string {
	switch l {
	case LevelSupremeCourt:
		return "STF"
	case LevelSuperiorCourt:
		return "STJ"
	case LevelLaborSuperior:
		return "TST"
	case LevelLaborRegional:
		return "TRT"
	case LevelSecondInstance:
		return "2º grau"
	case LevelAppealsPanel:
		return "Turma Recursal"
	case LevelFirstInstance:
		return "1º grau"
	default:
		return string(l)
	}
}

var acronymPattern = regexp.MustCompile(`[a-z]+`)

type levelRule struct {
	level   AppellateLevel
	acronym string
	phrases []string
}

var levelRules = []levelRule{
	{level: LevelSupremeCourt, acronym: "stf", phrases: []string{"supremo tribunal federal"}},
	{level: LevelSuperiorCourt, acronym: "stj", phrases: []string{"superior tribunal de justica"}},
	{level: LevelLaborSuperior, acronym: "tst", phrases: []string{"tribunal superior do trabalho"}},
	{level: LevelLaborRegional, acronym: "trt", phrases: []string{"tribunal regional do trabalho"}},
	{level: LevelSecondInstance, phrases: []string{"tribunal de justica", "2º grau", "2o grau", "2° grau", "segundo grau", "segunda instancia"}},
	{level: LevelAppealsPanel, phrases: []string{"turma recursal"}},
	{level: LevelFirstInstance, phrases: []string{"1º grau", "1o grau", "1° grau", "primeiro grau", "vara"}},
}

// DetectAppellateLevel scans org name and text for court markers and returns
// the first level found, or nil when nothing indicates an instance.
func DetectAppellateLevel(org, text string) *AppellateLevel {
	corpus := textutil.Fold(org) + " " + Normalize(text)
	words := make(map[string]struct{})
	for _, w := range acronymPattern.FindAllString(corpus, -1) {
		words[w] = struct{}{}
	}
	for _, r := range levelRules {
		if r.acronym != "" {
			if _, ok := words[r.acronym]; ok {
				level := r.level
				return &level
			}
		}
		for _, p := range r.phrases {
			if p == "vara" {
				if _, ok := words[p]; ok {
					level := r.level
					return &level
				}
				continue
			}
			if strings.Contains(corpus, p) {
				level := r.level
				return &level
			}
		}
	}
	return nil
}
