package channel_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"pipelink/internal/channel"
	"pipelink/internal/envelope"
	"pipelink/internal/testsupport"
	"pipelink/internal/transport"
)

func TestEnvelopeEchoOverSocket(t *testing.T) {
	tr := transport.New(testsupport.RuntimeDir(t), nil)
	server := channel.New[envelope.Envelope](envelope.Codec{}, channel.WithConnector(tr))
	client := channel.New[envelope.Envelope](envelope.Codec{}, channel.WithConnector(tr))
	t.Cleanup(func() {
		client.Dispose()
		server.Dispose()
	})

	// Echo every request straight back.
	server.OnMessage(nil, func(req envelope.Envelope) {
		_ = server.Send(req)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	listenErr := make(chan error, 1)
	go func() { listenErr <- server.StartListening(ctx, "x") }()

	var err error
	for {
		err = client.StartConnecting(ctx, "x")
		if err == nil || !errors.Is(err, transport.ErrConnect) {
			break
		}
		// A refused dial closes the channel; retry with a fresh one.
		client = channel.New[envelope.Envelope](envelope.Codec{}, channel.WithConnector(tr))
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		testsupport.SkipIfSocketsUnavailable(t, err)
		t.Fatalf("StartConnecting: %v", err)
	}
	if err := <-listenErr; err != nil {
		testsupport.SkipIfSocketsUnavailable(t, err)
		t.Fatalf("StartListening: %v", err)
	}

	want := envelope.Envelope{Kind: envelope.Get, ModelType: "Status", ModelData: "{}"}
	if err := client.Send(want); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got, err := client.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if got != want {
		t.Fatalf("echo mismatch: got %+v want %+v", got, want)
	}
	if server.Identity() != "x" || server.State() != channel.Connected {
		t.Fatalf("server identity %q state %s", server.Identity(), server.State())
	}
}

func TestCancelledListenEndsClosed(t *testing.T) {
	tr := transport.New(testsupport.RuntimeDir(t), nil)
	ch := channel.New[envelope.Envelope](envelope.Codec{}, channel.WithConnector(tr))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := ch.StartListening(ctx, "idle")
	testsupport.SkipIfSocketsUnavailable(t, err)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if ch.State() != channel.Closed {
		t.Fatalf("state %s, want closed", ch.State())
	}
	select {
	case <-ch.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed after failed start")
	}
}

func TestDisposeAbortsListen(t *testing.T) {
	tr := transport.New(testsupport.RuntimeDir(t), nil)
	ch := channel.New[envelope.Envelope](envelope.Codec{}, channel.WithConnector(tr))
	errc := make(chan error, 1)
	go func() { errc <- ch.StartListening(context.Background(), "abort") }()
	time.Sleep(50 * time.Millisecond)
	ch.Dispose()
	select {
	case err := <-errc:
		testsupport.SkipIfSocketsUnavailable(t, err)
		if !errors.Is(err, channel.ErrChannelClosed) {
			t.Fatalf("expected ErrChannelClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("listen did not abort")
	}
}
