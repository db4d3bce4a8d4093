package services

import "context"

type contextKey string

const (
	caseNumberKey contextKey = "case_number"
	operationKey  contextKey = "operation"
	requestIDKey  contextKey = "request_id"
)

// WithCaseNumber annotates context with the case number being processed.
func WithCaseNumber(ctx context.Context, caseNumber string) context.Context {
	if caseNumber == "" {
		return ctx
	}
	return context.WithValue(ctx, caseNumberKey, caseNumber)
}

// CaseNumberFromContext returns the case number if present.
func CaseNumberFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(caseNumberKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithOperation annotates context with the running operation (sync, analyze, import).
func WithOperation(ctx context.Context, op string) context.Context {
	if op == "" {
		return ctx
	}
	return context.WithValue(ctx, operationKey, op)
}

// OperationFromContext returns the operation name if present.
func OperationFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(operationKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
