package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pipelink/internal/logging"
	"pipelink/internal/logs"
)

const sample = `{"ts":"2026-01-02T03:04:05Z","level":"info","msg":"first","component":"daemon"}
not json
{"ts":"2026-01-02T03:04:06Z","level":"warn","msg":"second","identity":"control","event_type":"x"}
{"ts":"2026-01-02T03:04:07Z","level":"error","msg":"third","correlation_id":"abc","attempt":3}
`

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipelink.log")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func TestTailLastEvents(t *testing.T) {
	path := writeLog(t, sample)

	result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: -1, Limit: 2})
	if err != nil {
		t.Fatalf("tail returned error: %v", err)
	}
	if len(result.Events) != 2 || result.Events[0].Message != "second" || result.Events[1].Message != "third" {
		t.Fatalf("unexpected events: %#v", result.Events)
	}
	if result.Skipped != 1 {
		t.Fatalf("expected one skipped line, got %d", result.Skipped)
	}
	if result.Offset != int64(len(sample)) {
		t.Fatalf("offset %d, want %d", result.Offset, len(sample))
	}

	second := result.Events[0]
	if second.Level != "WARN" || second.Identity != "control" || second.Fields["event_type"] != "x" {
		t.Fatalf("unexpected event: %+v", second)
	}
	third := result.Events[1]
	if third.CorrelationID != "abc" || third.Fields["attempt"] != "3" {
		t.Fatalf("unexpected event: %+v", third)
	}
	if !third.Timestamp.Equal(time.Date(2026, 1, 2, 3, 4, 7, 0, time.UTC)) {
		t.Fatalf("timestamp %v", third.Timestamp)
	}
}

func TestTailMissingFile(t *testing.T) {
	result, err := logs.Tail(context.Background(), filepath.Join(t.TempDir(), "absent.log"), logs.TailOptions{Offset: -1, Limit: 5})
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(result.Events) != 0 || result.Offset != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestTailLeavesPartialLine(t *testing.T) {
	complete := `{"level":"info","msg":"done"}` + "\n"
	path := writeLog(t, complete+`{"level":"info","msg":"par`)

	result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: 0})
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(result.Events) != 1 || result.Offset != int64(len(complete)) {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestFollowDeliversAppendedEvents(t *testing.T) {
	path := writeLog(t, `{"level":"info","msg":"start"}`+"\n")

	initial, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: -1, Limit: 1})
	if err != nil {
		t.Fatalf("initial tail: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan logging.LogEvent, 1)
	done := make(chan error, 1)
	go func() {
		done <- logs.Follow(ctx, path, initial.Offset, func(evt logging.LogEvent) {
			got <- evt
		})
	}()

	time.Sleep(100 * time.Millisecond)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	if _, err := f.WriteString(`{"level":"info","msg":"later"}` + "\n"); err != nil {
		t.Fatalf("append log: %v", err)
	}
	_ = f.Close()

	select {
	case evt := <-got:
		if evt.Message != "later" {
			t.Fatalf("unexpected event %+v", evt)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("follow did not deliver appended event")
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("follow: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("follow did not return after cancel")
	}
}
