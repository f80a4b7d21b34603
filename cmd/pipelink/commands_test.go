package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pipelink/internal/config"
	"pipelink/internal/daemon"
	"pipelink/internal/logging"
	"pipelink/internal/models"
	"pipelink/internal/supervisor"
	"pipelink/internal/testsupport"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfigFile(t *testing.T, cfg *config.Config) string {
	t.Helper()
	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	path := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestConfigInitWritesSample(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_RUNTIME_DIR", testsupport.RuntimeDir(t))
	t.Setenv("PIPELINK_RUNTIME_DIR", "")
	target := filepath.Join(t.TempDir(), "nested", "config.toml")

	out, err := runCLI(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, target) {
		t.Fatalf("output %q does not name target", out)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample not written: %v", err)
	}
	if _, err := runCLI(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected error when config exists")
	}
	if _, err := runCLI(t, "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
	if _, err := runCLI(t, "--config", target, "config", "validate"); err != nil {
		t.Fatalf("sample config does not validate: %v", err)
	}
}

func TestConfigShowPrintsEffectiveConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	path := writeConfigFile(t, cfg)

	out, err := runCLI(t, "--config", path, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(out, cfg.Paths.RuntimeDir) || !strings.Contains(out, "# "+path) {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestRuntimeDirFlagOverridesConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	path := writeConfigFile(t, cfg)
	override := testsupport.RuntimeDir(t)

	out, err := runCLI(t, "--config", path, "--runtime-dir", override, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(out, override) {
		t.Fatalf("override %s missing from output:\n%s", override, out)
	}
}

func TestStatusFailsWithoutService(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Channels.ConnectTimeoutSeconds = 1
	path := writeConfigFile(t, cfg)

	_, err := runCLI(t, "--config", path, "status")
	if err == nil || !strings.Contains(err.Error(), "not running") {
		t.Fatalf("expected service unavailable error, got %v", err)
	}
}

func TestStopWithoutService(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	path := writeConfigFile(t, cfg)

	out, err := runCLI(t, "--config", path, "stop")
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !strings.Contains(out, "Service is not running") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestCommandsAgainstRunningService(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.RequireUnixSockets(t, cfg.Paths.RuntimeDir)
	path := writeConfigFile(t, cfg)
	store := testsupport.MustOpenJournal(t, cfg)

	d, err := daemon.New(daemon.Options{Config: cfg, ConfigPath: path, Journal: store, SessionID: "cli-session"})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("daemon did not stop")
		}
	})

	out, err := runCLI(t, "--config", path, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"cli-session", "== Channels ==", cfg.Channels.Control, "== Journal =="} {
		if !strings.Contains(out, want) {
			t.Fatalf("status output missing %q:\n%s", want, out)
		}
	}

	out, err = runCLI(t, "--config", path, "set", models.NameLogLevel, "debug")
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if !strings.Contains(out, `"debug"`) {
		t.Fatalf("unexpected set output:\n%s", out)
	}

	out, err = runCLI(t, "--config", path, "get", models.NameLogLevel)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !strings.Contains(out, `"debug"`) {
		t.Fatalf("unexpected get output:\n%s", out)
	}

	if _, err := runCLI(t, "--config", path, "get", "Bogus"); err == nil {
		t.Fatal("expected error for unknown model")
	}

	out, err = runCLI(t, "--config", path, "journal", "list", "--model", models.NameStatus)
	if err != nil {
		t.Fatalf("journal list: %v", err)
	}
	if !strings.Contains(out, models.NameStatus) {
		t.Fatalf("journal missing status traffic:\n%s", out)
	}

	if _, err := runCLI(t, "--config", path, "logs", "-n", "5"); err != nil {
		t.Fatalf("logs: %v", err)
	}

	out, err = runCLI(t, "--config", path, "config", "show", "--remote")
	if err != nil {
		t.Fatalf("config show --remote: %v", err)
	}
	if !strings.Contains(out, "running service") {
		t.Fatalf("unexpected remote config output:\n%s", out)
	}
}

func TestFormatLogEvent(t *testing.T) {
	evt := logging.LogEvent{
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local),
		Level:     "WARN",
		Message:   "listen failed",
		Component: "supervisor",
		Identity:  "control",
		Fields:    map[string]string{"b": "2", "a": "1"},
	}
	got := formatLogEvent(evt, false)
	want := "03:04:05 WARN  [supervisor control] listen failed a=1 b=2"
	if got != want {
		t.Fatalf("formatLogEvent = %q, want %q", got, want)
	}
}

func TestRenderStatusWithoutJournal(t *testing.T) {
	var buf bytes.Buffer
	renderStatus(&buf, &models.Status{
		SessionID: "s",
		PID:       42,
		Channels: []supervisor.Snapshot{
			{Identity: "control", State: "connected", Generation: 3},
			{Identity: "syslog", State: "waiting", Failures: 2, LastError: "busy"},
		},
	}, false)
	out := buf.String()
	for _, want := range []string{"[OK] Connected", "[WARN] Waiting (busy)", "disabled", "42"} {
		if !strings.Contains(out, want) {
			t.Fatalf("status output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatal("uncolored output contains escape codes")
	}
}

func TestLogsFromFileWithoutService(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	path := writeConfigFile(t, cfg)
	if err := os.MkdirAll(cfg.Paths.LogDir, 0o755); err != nil {
		t.Fatalf("mkdir log dir: %v", err)
	}
	record := `{"ts":"2026-01-02T03:04:05Z","level":"info","msg":"offline record","component":"daemon"}` + "\n"
	if err := os.WriteFile(cfg.LogFilePath(), []byte(record), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	out, err := runCLI(t, "--config", path, "logs", "--file")
	if err != nil {
		t.Fatalf("logs --file: %v", err)
	}
	if !strings.Contains(out, "offline record") || !strings.Contains(out, "[daemon]") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestLogsJSONPrintsOneEventPerLine(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	path := writeConfigFile(t, cfg)
	if err := os.MkdirAll(cfg.Paths.LogDir, 0o755); err != nil {
		t.Fatalf("mkdir log dir: %v", err)
	}
	records := `{"level":"info","msg":"one"}` + "\n" + `{"level":"warn","msg":"two","identity":"control"}` + "\n"
	if err := os.WriteFile(cfg.LogFilePath(), []byte(records), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	out, err := runCLI(t, "--config", path, "logs", "--file", "--json")
	if err != nil {
		t.Fatalf("logs --file --json: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d:\n%s", len(lines), out)
	}
	var evt logging.LogEvent
	if err := json.Unmarshal([]byte(lines[1]), &evt); err != nil {
		t.Fatalf("line is not a JSON event: %v", err)
	}
	if evt.Message != "two" || evt.Identity != "control" || evt.Level != "WARN" {
		t.Fatalf("unexpected event %+v", evt)
	}
}
