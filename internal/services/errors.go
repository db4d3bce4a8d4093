package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrRateLimited         = errors.New("rate limited")
	ErrUpstream            = errors.New("upstream error")
	ErrInvalidFilter       = errors.New("invalid filter")
	ErrAnalysisUnavailable = errors.New("analysis unavailable")
	ErrPersistence         = errors.New("persistence error")
	ErrValidation          = errors.New("validation error")
	ErrConfiguration       = errors.New("configuration error")
	ErrNotFound            = errors.New("not found")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrUpstream
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind returns a short stable label for the marker carried by err. It feeds
// metric labels and CLI summaries.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrInvalidFilter):
		return "invalid_filter"
	case errors.Is(err, ErrAnalysisUnavailable):
		return "analysis_unavailable"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "upstream"
	}
}

// Hint returns the operator-facing next step for err.
func Hint(err error) string {
	switch Kind(err) {
	case "rate_limited":
		return "wait 60 seconds before retrying"
	case "invalid_filter":
		return "check the case number (20 digits, CNJ format) and date filters"
	case "analysis_unavailable":
		return "check llm.api_key and provider status; events are still shown without analysis"
	case "persistence":
		return "check disk space and permissions for paths.data_dir"
	case "configuration":
		return "run 'djenwatch config validate'"
	default:
		return "check network connectivity and retry later"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
