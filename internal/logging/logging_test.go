package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v", in, got, err)
		}
		if in != "" && in != "warning" && LevelName(got) != strings.ToLower(strings.TrimSpace(in)) {
			t.Fatalf("LevelName(%v) = %q", got, LevelName(got))
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatal("expected unknown level to fail")
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected unsupported format error")
	}
}

func TestNewWritesJSONFileAndSharesLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "pipelink.log")
	levelVar := new(slog.LevelVar)
	hub := NewStreamHub(8)
	logger, err := New(Options{
		Level:       "info",
		Format:      "console",
		OutputPaths: []string{filepath.Join(t.TempDir(), "console.log")},
		FilePath:    path,
		LevelVar:    levelVar,
		Hub:         hub,
		SessionID:   "sess-1",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Debug("hidden")
	levelVar.Set(slog.LevelDebug)
	logger.Debug("visible", String(FieldIdentity, "control"))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line after level change, got %d: %s", len(lines), data)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["msg"] != "visible" || entry["level"] != "debug" || entry[FieldSessionID] != "sess-1" {
		t.Fatalf("unexpected entry %v", entry)
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("expected ts key in %v", entry)
	}

	events, _ := hub.Tail(10)
	if len(events) != 1 || events[0].Identity != "control" || events[0].Fields[FieldSessionID] != "sess-1" {
		t.Fatalf("unexpected hub events %+v", events)
	}
}

func TestPrettyHandlerLayout(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	logger := slog.New(newPrettyHandler(&buf, levelVar, false))
	NewComponentLogger(logger, "channel").Info("channel connected",
		String(FieldIdentity, "control"),
		Int("peer_pid", 42),
		String("reason", "peer closed"))

	line := buf.String()
	for _, want := range []string{"INFO channel [control]: channel connected", "peer_pid=42", `reason="peer closed"`} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
	if strings.Contains(line, "component=") {
		t.Fatalf("component should be folded into the prefix: %q", line)
	}
}

func TestWarnWithContextFillsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	WarnWithContext(logger, "listen failed", "supervisor_listen_failed", String(FieldImpact, "clients wait"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry[FieldEventType] != "supervisor_listen_failed" || entry[FieldImpact] != "clients wait" || entry[FieldErrorHint] == nil {
		t.Fatalf("unexpected entry %v", entry)
	}
	WarnWithContext(nil, "ignored", "none")
}

func TestTeeHandler(t *testing.T) {
	if _, ok := TeeHandler(nil, nil).(NoopHandler); !ok {
		t.Fatal("expected NoopHandler when all handlers are nil")
	}
	var only bytes.Buffer
	single := slog.NewJSONHandler(&only, nil)
	if TeeHandler(nil, single) != single {
		t.Fatal("single handler should be returned unwrapped")
	}

	var infoBuf, debugBuf bytes.Buffer
	h := TeeHandler(
		slog.NewJSONHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewJSONHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)
	logger := slog.New(h).With("key", "value")
	logger.Debug("debug only")
	if infoBuf.Len() != 0 || !bytes.Contains(debugBuf.Bytes(), []byte(`"key":"value"`)) {
		t.Fatalf("info=%q debug=%q", infoBuf.String(), debugBuf.String())
	}
	logger.Info("both")
	if !bytes.Contains(infoBuf.Bytes(), []byte("both")) {
		t.Fatal("info handler missed info record")
	}
}

func TestStreamHubTailAndFetch(t *testing.T) {
	hub := NewStreamHub(3)
	for i := 0; i < 5; i++ {
		hub.Publish(LogEvent{Message: string(rune('a' + i))})
	}
	events, next := hub.Tail(10)
	if len(events) != 3 || events[0].Message != "c" || next != 5 {
		t.Fatalf("tail %+v next %d", events, next)
	}
	got, _, err := hub.Fetch(context.Background(), 3, 10, false)
	if err != nil || len(got) != 2 || got[0].Sequence != 4 {
		t.Fatalf("fetch %+v err %v", got, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, _, err := hub.Fetch(ctx, 5, 10, true); err == nil {
		t.Fatal("expected waiting fetch to end with the context")
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		hub.Publish(LogEvent{Message: "late"})
	}()
	got, _, err = hub.Fetch(context.Background(), 5, 10, true)
	if err != nil || len(got) != 1 || got[0].Message != "late" {
		t.Fatalf("waiting fetch %+v err %v", got, err)
	}
}

func TestStreamHubSubscribeDropsWhenFull(t *testing.T) {
	hub := NewStreamHub(16)
	events, cancel := hub.Subscribe(2)
	for i := 0; i < 5; i++ {
		hub.Publish(LogEvent{Message: "m"})
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 buffered events, got %d", len(events))
	}
	if dropped := cancel(); dropped != 3 {
		t.Fatalf("expected 3 dropped, got %d", dropped)
	}
	cancel()
	hub.Publish(LogEvent{Message: "after"})
	n := 0
	for range events {
		n++
	}
	if n != 2 {
		t.Fatalf("channel should be closed after draining, read %d", n)
	}
}

func TestStreamHandlerCarriesAttrs(t *testing.T) {
	hub := NewStreamHub(10)
	logger := slog.New(newStreamHandler(slog.NewTextHandler(discardWriter{}, nil), hub)).
		With(String(FieldComponent, "daemon")).
		With(String(FieldCorrelationID, "abc"))
	logger.Info("dispatch", String("model", "Status"))

	events, _ := hub.Tail(1)
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	evt := events[0]
	if evt.Component != "daemon" || evt.CorrelationID != "abc" || evt.Fields["model"] != "Status" || evt.Level != "INFO" {
		t.Fatalf("unexpected event %+v", evt)
	}
}

func TestSessionIDHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newSessionIDHandler(slog.NewJSONHandler(&buf, nil), "session-abc")).With("extra", "value")
	logger.Info("test message")
	if !strings.Contains(buf.String(), `"session_id":"session-abc"`) || !strings.Contains(buf.String(), `"extra":"value"`) {
		t.Fatalf("unexpected output %s", buf.String())
	}
	if _, ok := newSessionIDHandler(nil, "x").(NoopHandler); !ok {
		t.Fatal("expected NoopHandler for nil base")
	}
}

func TestCorrelationContext(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "req-1")
	if id, ok := CorrelationIDFromContext(ctx); !ok || id != "req-1" {
		t.Fatalf("got %q %v", id, ok)
	}
	if _, ok := CorrelationIDFromContext(context.Background()); ok {
		t.Fatal("unexpected id in empty context")
	}
	hub := NewStreamHub(4)
	base := slog.New(newStreamHandler(slog.NewTextHandler(discardWriter{}, nil), hub))
	WithContext(ctx, base).Info("x")
	if events, _ := hub.Tail(1); events[0].CorrelationID != "req-1" {
		t.Fatalf("correlation id not attached: %+v", events[0])
	}
}

func TestCleanupOldLogs(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old.log")
	fresh := filepath.Join(dir, "fresh.log")
	active := filepath.Join(dir, "active.log")
	other := filepath.Join(dir, "old.txt")
	for _, p := range []string{old, fresh, active, other} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	past := time.Now().AddDate(0, 0, -10)
	for _, p := range []string{old, active, other} {
		if err := os.Chtimes(p, past, past); err != nil {
			t.Fatal(err)
		}
	}

	if n := CleanupOldLogs(nil, 0, RetentionTarget{Dir: dir}); n != 0 {
		t.Fatalf("disabled retention removed %d files", n)
	}
	n := CleanupOldLogs(nil, 7, RetentionTarget{Dir: dir, Pattern: "*.log", Exclude: []string{active}})
	if n != 1 {
		t.Fatalf("expected one removal, got %d", n)
	}
	for path, exists := range map[string]bool{old: false, fresh: true, active: true, other: true} {
		_, err := os.Stat(path)
		if exists != (err == nil) {
			t.Fatalf("%s exists=%v err=%v", filepath.Base(path), exists, err)
		}
	}
}
