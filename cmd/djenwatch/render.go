package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"djenwatch/internal/casestage"
	"djenwatch/internal/timeline"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
	ansiBold   = "\x1b[1m"
)

func shouldColorize(writer io.Writer) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func paint(s, color string, colorize bool) string {
	if !colorize || color == "" || s == "" {
		return s
	}
	return color + s + ansiReset
}

func urgencyColor(u timeline.Urgency) string {
	switch u {
	case timeline.UrgencyCritical, timeline.UrgencyHigh:
		return ansiRed
	case timeline.UrgencyMedium:
		return ansiYellow
	case timeline.UrgencyLow:
		return ansiGreen
	default:
		return ""
	}
}

func stageColor(s casestage.Stage) string {
	switch s {
	case casestage.StageArchived:
		return ansiGreen
	case casestage.StageAppeal, casestage.StageEnforcement:
		return ansiYellow
	case casestage.StageNone:
		return ""
	default:
		return ansiBlue
	}
}

// progressBar renders fraction (0..1) as a fixed-width bar.
func progressBar(fraction float64, width int) string {
	fraction = min(max(fraction, 0), 1)
	filled := int(fraction*float64(width) + 0.5)
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len([]rune(line)))
	if colorize {
		line = ansiBold + line + ansiReset
	}
	return []string{line, rule}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("02/01/2006")
}

func shortHash(hash string) string {
	if len(hash) <= 12 {
		return hash
	}
	return hash[:12]
}

func oneLine(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if limit > 0 && len(r) > limit {
		return string(r[:limit-1]) + "…"
	}
	return s
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
