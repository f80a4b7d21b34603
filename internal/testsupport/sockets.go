package testsupport

import (
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// RuntimeDir returns a short temp directory for socket files. t.TempDir
// paths embed the test name and can exceed the sun_path limit.
func RuntimeDir(t testing.TB) string {
	t.Helper()

	dir, err := os.MkdirTemp("", "pl-")
	if err != nil {
		t.Fatalf("mkdir runtime dir: %v", err)
	}
	t.Cleanup(func() {
		_ = os.RemoveAll(dir)
	})
	return dir
}

// SkipIfSocketsUnavailable skips the test when the sandbox forbids Unix
// sockets.
func SkipIfSocketsUnavailable(t testing.TB, err error) {
	t.Helper()

	if err != nil && strings.Contains(err.Error(), "operation not permitted") {
		t.Skipf("unix sockets unavailable: %v", err)
	}
}

// RequireUnixSockets skips the test unless a Unix socket can be bound in
// dir.
func RequireUnixSockets(t testing.TB, dir string) {
	t.Helper()

	ln, err := net.Listen("unix", filepath.Join(dir, "probe.sock"))
	if err != nil {
		t.Skipf("unix sockets unavailable: %v", err)
	}
	_ = ln.Close()
}
