// Package feed pushes service log events to a client over the SysLog
// channel.
//
// The feed is off until a client sends the OpenSysLog verb on the control
// channel and stays on until CloseSysLog, or until the SysLog channel drops.
// Delivery failures are counted, never logged: every log line would
// otherwise produce another log line.
package feed

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"pipelink/internal/envelope"
	"pipelink/internal/logging"
	"pipelink/internal/models"
)

const subscriptionBuffer = 256

// Sender delivers an envelope to the channel published for identity.
type Sender interface {
	Send(identity string, env envelope.Envelope) error
}

// OpenRequest is the optional OpenSysLog payload.
type OpenRequest struct {
	// Backlog replays up to this many recent events before live ones.
	Backlog int `json:"backlog,omitempty"`
}

// Feed forwards StreamHub events while open.
type Feed struct {
	hub      *logging.StreamHub
	sender   Sender
	identity string
	logger   *slog.Logger

	mu     sync.Mutex
	cancel func() uint64
	done   chan struct{}

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// New builds a closed feed that sends to identity through sender.
func New(hub *logging.StreamHub, sender Sender, identity string, logger *slog.Logger) *Feed {
	return &Feed{
		hub:      hub,
		sender:   sender,
		identity: identity,
		logger:   logging.NewComponentLogger(logger, "feed"),
	}
}

// HandleVerb applies an OpenSysLog or CloseSysLog envelope and reports
// whether env was one.
func (f *Feed) HandleVerb(env envelope.Envelope) bool {
	if !env.IsVerb() {
		return false
	}
	switch env.ModelType {
	case envelope.VerbOpenSysLog:
		var req OpenRequest
		if strings.TrimSpace(env.ModelData) != "" {
			if err := json.Unmarshal([]byte(env.ModelData), &req); err != nil {
				logging.WarnWithContext(f.logger, "ignoring malformed OpenSysLog payload", "feed_payload_invalid",
					logging.Error(err),
					logging.String(logging.FieldImpact, "feed opens without backlog"))
			}
		}
		f.Open(req.Backlog)
	case envelope.VerbCloseSysLog:
		f.Close()
	}
	return true
}

// Open starts forwarding events. It is a no-op when already open and
// reports whether this call opened the feed.
func (f *Feed) Open(backlog int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		return false
	}

	events, cancel := f.hub.Subscribe(subscriptionBuffer)
	var replay []logging.LogEvent
	if backlog > 0 {
		replay, _ = f.hub.Tail(backlog)
	}
	f.cancel = cancel
	f.done = make(chan struct{})
	go f.pump(events, replay, f.done)

	f.logger.Info("syslog feed opened",
		logging.String(logging.FieldEventType, "feed_opened"),
		logging.String(logging.FieldIdentity, f.identity),
		logging.Int("backlog", len(replay)))
	return true
}

// Close stops forwarding and waits for the pump to exit. It reports
// whether the feed was open.
func (f *Feed) Close() bool {
	f.mu.Lock()
	cancel, done := f.cancel, f.done
	f.cancel, f.done = nil, nil
	f.mu.Unlock()
	if cancel == nil {
		return false
	}

	f.dropped.Add(cancel())
	<-done
	f.logger.Info("syslog feed closed",
		logging.String(logging.FieldEventType, "feed_closed"),
		logging.String(logging.FieldIdentity, f.identity))
	return true
}

// IsOpen reports whether events are being forwarded.
func (f *Feed) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancel != nil
}

// Status reports delivery counters.
func (f *Feed) Status() models.FeedStatus {
	return models.FeedStatus{
		Open:      f.IsOpen(),
		Delivered: f.delivered.Load(),
		Dropped:   f.dropped.Load(),
	}
}

func (f *Feed) pump(events <-chan logging.LogEvent, replay []logging.LogEvent, done chan struct{}) {
	defer close(done)

	var last uint64
	for _, evt := range replay {
		f.deliver(evt)
		last = evt.Sequence
	}
	for evt := range events {
		if evt.Sequence <= last {
			continue
		}
		f.deliver(evt)
	}
}

func (f *Feed) deliver(evt logging.LogEvent) {
	data, err := json.Marshal(evt)
	if err != nil {
		f.dropped.Add(1)
		return
	}
	env := envelope.Envelope{Kind: envelope.Response, ModelType: envelope.ModelSysLog, ModelData: string(data)}
	if err := f.sender.Send(f.identity, env); err != nil {
		f.dropped.Add(1)
		return
	}
	f.delivered.Add(1)
}

// Decode unpacks a SysLog envelope into the event it carries.
func Decode(env envelope.Envelope) (logging.LogEvent, bool) {
	if env.Kind != envelope.Response || env.ModelType != envelope.ModelSysLog {
		return logging.LogEvent{}, false
	}
	var evt logging.LogEvent
	if err := json.Unmarshal([]byte(env.ModelData), &evt); err != nil {
		return logging.LogEvent{}, false
	}
	return evt, true
}
