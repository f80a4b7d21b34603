package client_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"pipelink/internal/channel"
	"pipelink/internal/client"
	"pipelink/internal/correlate"
	"pipelink/internal/envelope"
	"pipelink/internal/models"
	"pipelink/internal/testsupport"
	"pipelink/internal/transport"
)

// fakeService listens once on the control identity and answers with fn.
func fakeService(t *testing.T, dir, identity string, fn func(envelope.Envelope) envelope.Envelope) {
	t.Helper()
	tr := transport.New(dir, nil)
	server := channel.New[envelope.Envelope](envelope.Codec{}, channel.WithConnector(tr))
	server.OnMessage(nil, func(req envelope.Envelope) {
		_ = server.Send(fn(req))
	})
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = server.StartListening(ctx, identity) }()
	t.Cleanup(func() {
		cancel()
		server.Dispose()
	})
}

func TestDialFailsWithoutService(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Channels.ConnectTimeoutSeconds = 1

	start := time.Now()
	_, err := client.Dial(context.Background(), cfg, nil)
	if !errors.Is(err, client.ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}
	if time.Since(start) < 500*time.Millisecond {
		t.Fatal("Dial gave up before the connect timeout")
	}
}

func TestDialHonoursCancellation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.Dial(ctx, cfg, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestClientDecodesTypedReplies(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.RequireUnixSockets(t, cfg.Paths.RuntimeDir)
	fakeService(t, cfg.Paths.RuntimeDir, cfg.Channels.Control, func(req envelope.Envelope) envelope.Envelope {
		switch req.ModelType {
		case models.NameLogLevel:
			if req.Kind == envelope.Set {
				return envelope.Reply(req, req.ModelData)
			}
			return envelope.Reply(req, `{"level":"info"}`)
		case models.NameStatus:
			return envelope.Reply(req, `{"sessionId":"abc","pid":1,"channels":[]}`)
		default:
			return envelope.Fail(req, errors.New("unknown model type"))
		}
	})

	c, err := client.Dial(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()
	ctx := context.Background()

	status, err := c.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.SessionID != "abc" {
		t.Fatalf("session = %q", status.SessionID)
	}

	level, err := c.SetLogLevel(ctx, " debug ")
	if err != nil {
		t.Fatalf("SetLogLevel: %v", err)
	}
	if level != "debug" {
		t.Fatalf("level = %q", level)
	}

	_, err = c.Get(ctx, "Missing", "")
	var remote *envelope.RemoteError
	if !errors.As(err, &remote) || remote.ModelType != "Missing" {
		t.Fatalf("expected RemoteError for Missing, got %v", err)
	}
}

func TestCallTimesOutWhenServiceIsSilent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Channels.RequestTimeoutSeconds = 1
	testsupport.RequireUnixSockets(t, cfg.Paths.RuntimeDir)

	tr := transport.New(cfg.Paths.RuntimeDir, nil)
	server := channel.New[envelope.Envelope](envelope.Codec{}, channel.WithConnector(tr))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = server.StartListening(ctx, cfg.Channels.Control) }()
	defer server.Dispose()

	c, err := client.Dial(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	if _, err := c.Status(context.Background()); err == nil || !errors.Is(err, correlate.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}
