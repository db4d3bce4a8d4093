package services_test

import (
	"errors"
	"strings"
	"testing"

	"djenwatch/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrPersistence, "store", "save", "insert failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrPersistence) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"store", "save", "insert failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapNilMarkerDefaultsToUpstream(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrUpstream) {
		t.Fatalf("expected upstream marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestKindAndHint(t *testing.T) {
	rateLimited := services.Wrap(services.ErrRateLimited, "djen", "fetch page", "429", nil)
	if kind := services.Kind(rateLimited); kind != "rate_limited" {
		t.Fatalf("unexpected kind %q", kind)
	}
	if hint := services.Hint(rateLimited); !strings.Contains(hint, "60 seconds") {
		t.Fatalf("unexpected hint %q", hint)
	}
	if kind := services.Kind(errors.New("plain")); kind != "upstream" {
		t.Fatalf("unexpected kind for plain error %q", kind)
	}
	if kind := services.Kind(nil); kind != "none" {
		t.Fatalf("unexpected kind for nil %q", kind)
	}
}
