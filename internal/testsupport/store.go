package testsupport

import (
	"context"
	"testing"

	"pipelink/internal/config"
	"pipelink/internal/envelope"
	"pipelink/internal/journal"
)

// MustOpenJournal opens a journal.Store for tests and registers cleanup.
func MustOpenJournal(t testing.TB, cfg *config.Config) *journal.Store {
	t.Helper()

	store, err := journal.Open(cfg)
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// RecordEnvelope journals env for tests using the provided store.
func RecordEnvelope(t testing.TB, store *journal.Store, direction journal.Direction, identity string, env envelope.Envelope) journal.Entry {
	t.Helper()

	entry, err := store.Record(context.Background(), journal.EntryFor(direction, identity, env, 0))
	if err != nil {
		t.Fatalf("store.Record: %v", err)
	}
	return entry
}
