package testsupport

import (
	"context"
	"testing"

	"djenwatch/internal/config"
	"djenwatch/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// MustAddCase registers a case (optionally owned by clientID) for tests.
func MustAddCase(t testing.TB, st *store.Store, caseNumber string, clientID *int64) *store.Case {
	t.Helper()

	c, err := st.AddCase(context.Background(), store.NewCase{CaseNumber: caseNumber, ClientID: clientID})
	if err != nil {
		t.Fatalf("store.AddCase: %v", err)
	}
	return c
}

// MustAddClient registers a client for tests.
func MustAddClient(t testing.TB, st *store.Store, name string) *store.Client {
	t.Helper()

	c, err := st.AddClient(context.Background(), name)
	if err != nil {
		t.Fatalf("store.AddClient: %v", err)
	}
	return c
}
