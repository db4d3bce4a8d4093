package services_test

import (
	"context"
	"testing"

	"djenwatch/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithCaseNumber(ctx, "00012345620248260100")
	ctx = services.WithOperation(ctx, "analyze")
	ctx = services.WithRequestID(ctx, "req-123")

	if cn, ok := services.CaseNumberFromContext(ctx); !ok || cn != "00012345620248260100" {
		t.Fatalf("unexpected case number: %v %v", cn, ok)
	}
	if op, ok := services.OperationFromContext(ctx); !ok || op != "analyze" {
		t.Fatalf("unexpected operation: %v %v", op, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithCaseNumber(ctx, "")
	ctx = services.WithOperation(ctx, "")
	if _, ok := services.CaseNumberFromContext(ctx); ok {
		t.Fatal("expected no case number value")
	}
	if _, ok := services.OperationFromContext(ctx); ok {
		t.Fatal("expected no operation value")
	}
}
