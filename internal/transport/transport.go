package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"pipelink/internal/logging"
)

const (
	socketSuffix = ".sock"
	lockSuffix   = ".lock"
)

// Transport resolves identities to Unix sockets under Dir.
type Transport struct {
	Dir    string
	Logger *slog.Logger
}

// New returns a transport rooted at dir.
func New(dir string, logger *slog.Logger) *Transport {
	return &Transport{Dir: dir, Logger: logger}
}

// ValidateIdentity rejects empty identities and identities that would
// escape the runtime directory.
func ValidateIdentity(identity string) error {
	trimmed := strings.TrimSpace(identity)
	if trimmed == "" {
		return fmt.Errorf("%w: empty", ErrInvalidIdentity)
	}
	if trimmed != identity {
		return fmt.Errorf("%w: %q has surrounding whitespace", ErrInvalidIdentity, identity)
	}
	if strings.ContainsAny(identity, `/\`) || identity == "." || identity == ".." {
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidIdentity, identity)
	}
	if strings.ContainsRune(identity, 0) {
		return fmt.Errorf("%w: %q contains NUL", ErrInvalidIdentity, identity)
	}
	return nil
}

// SocketPath is the socket file for identity.
func (t *Transport) SocketPath(identity string) string {
	return filepath.Join(t.Dir, identity+socketSuffix)
}

// LockPath is the lock file guarding identity.
func (t *Transport) LockPath(identity string) string {
	return filepath.Join(t.Dir, identity+lockSuffix)
}

func (t *Transport) log() *slog.Logger {
	return logging.NewComponentLogger(t.Logger, "transport")
}

// Listen claims identity and waits for exactly one peer. The listening
// socket is closed once the peer is accepted, so later connectors fail
// until the returned Conn is closed and the identity is listened on again.
func (t *Transport) Listen(ctx context.Context, identity string) (Conn, error) {
	if err := ValidateIdentity(identity); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(t.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create runtime dir: %w", err)
	}

	lock := flock.New(t.LockPath(identity))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock for %s: %w", identity, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyActive, identity)
	}
	release := func() {
		if err := lock.Unlock(); err != nil {
			logging.WarnWithContext(t.log(), "failed to release identity lock", "transport_unlock_failed",
				logging.String(logging.FieldIdentity, identity),
				logging.Error(err),
				logging.String(logging.FieldImpact, "identity may stay claimed until the process exits"),
				logging.String(logging.FieldErrorHint, "remove the lock file if no listener is running"))
		}
	}

	path := t.SocketPath(identity)
	if err := os.RemoveAll(path); err != nil {
		release()
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "unix", path)
	if err != nil {
		release()
		return nil, fmt.Errorf("listen on %s: %w", path, err)
	}
	t.log().Debug("listening for peer",
		logging.String(logging.FieldIdentity, identity),
		logging.String("socket", path))

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	raw, acceptErr := ln.Accept()
	stop()
	// Closing the listener unlinks the socket so no second peer can queue.
	_ = ln.Close()
	if acceptErr != nil {
		release()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("accept on %s: %w", path, acceptErr)
	}

	conn := newStreamConn(raw, release)
	t.log().Debug("peer accepted",
		logging.String(logging.FieldIdentity, identity),
		logging.Int("peer_pid", int(conn.Peer().PID)))
	return conn, nil
}

// Connect dials the listener for identity.
func (t *Transport) Connect(ctx context.Context, identity string) (Conn, error) {
	if err := ValidateIdentity(identity); err != nil {
		return nil, err
	}
	var d net.Dialer
	raw, err := d.DialContext(ctx, "unix", t.SocketPath(identity))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrConnect, identity, err)
	}
	return newStreamConn(raw, nil), nil
}

// IsRefused reports whether err means nobody is listening on the identity.
func IsRefused(err error) bool {
	return errors.Is(err, ErrConnect)
}
