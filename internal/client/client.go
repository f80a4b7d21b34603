// Package client talks to a running pipelink service over its control and
// SysLog channels.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"pipelink/internal/channel"
	"pipelink/internal/config"
	"pipelink/internal/correlate"
	"pipelink/internal/envelope"
	"pipelink/internal/feed"
	"pipelink/internal/journal"
	"pipelink/internal/logging"
	"pipelink/internal/models"
	"pipelink/internal/transport"
)

// ErrServiceUnavailable is returned by Dial when nothing listens on the
// control identity.
var ErrServiceUnavailable = errors.New("pipelink service is not running")

// Client provides typed access to the service models.
type Client struct {
	cfg       *config.Config
	logger    *slog.Logger
	transport *transport.Transport
	control   *channel.Channel[envelope.Envelope]
	calls     *correlate.Correlator[envelope.Envelope]
	timeout   time.Duration
}

// Dial connects to the control identity configured in cfg.
func Dial(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	c := &Client{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "client"),
		transport: transport.New(cfg.Paths.RuntimeDir, logger),
		timeout:   cfg.RequestTimeout(),
	}
	ch, err := c.connect(ctx, cfg.Channels.Control)
	if err != nil {
		return nil, err
	}
	c.control = ch
	c.calls = correlate.New[envelope.Envelope](ch, envelope.Binding(), logger)
	return c, nil
}

const redialInterval = 50 * time.Millisecond

// connect dials identity, retrying refusals until the connect timeout. The
// service re-listens on an identity only after its previous peer leaves.
func (c *Client) connect(ctx context.Context, identity string) (*channel.Channel[envelope.Envelope], error) {
	dialCtx := ctx
	if timeout := c.cfg.ConnectTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	for {
		ch := channel.New[envelope.Envelope](envelope.Codec{},
			channel.WithLogger(c.logger),
			channel.WithConnector(c.transport),
			channel.WithQueueLimit(c.cfg.Channels.QueueLimit))
		err := ch.StartConnecting(dialCtx, identity)
		if err == nil {
			return ch, nil
		}
		ch.Dispose()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !transport.IsRefused(err) && dialCtx.Err() == nil {
			return nil, err
		}
		select {
		case <-dialCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w (%s): %w", ErrServiceUnavailable, c.transport.SocketPath(identity), err)
		case <-time.After(redialInterval):
		}
	}
}

// Close disconnects from the service.
func (c *Client) Close() error {
	if c.control != nil {
		c.control.Dispose()
		<-c.control.Done()
	}
	return nil
}

// Call sends req and waits for its reply. A remote failure is returned as
// *envelope.RemoteError alongside the reply.
func (c *Client) Call(ctx context.Context, req envelope.Envelope) (envelope.Envelope, error) {
	resp, err := c.calls.Call(ctx, req, c.timeout)
	if err != nil {
		return envelope.Envelope{}, fmt.Errorf("%s %s: %w", req.Kind, req.ModelType, err)
	}
	return resp, resp.Err()
}

// Get reads model. query is passed as model data and may be empty.
func (c *Client) Get(ctx context.Context, model, query string) (envelope.Envelope, error) {
	req := envelope.NewGet(model)
	req.ModelData = query
	return c.Call(ctx, req)
}

// Set writes data to model.
func (c *Client) Set(ctx context.Context, model, data string) (envelope.Envelope, error) {
	return c.Call(ctx, envelope.NewSet(model, data))
}

func (c *Client) getInto(ctx context.Context, model string, query any, out any) error {
	var data string
	if query != nil {
		raw, err := json.Marshal(query)
		if err != nil {
			return fmt.Errorf("encode %s query: %w", model, err)
		}
		data = string(raw)
	}
	resp, err := c.Get(ctx, model, data)
	if err != nil {
		return err
	}
	return decodeReply(resp, out)
}

func (c *Client) setInto(ctx context.Context, model string, payload any, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", model, err)
	}
	resp, err := c.Set(ctx, model, string(raw))
	if err != nil {
		return err
	}
	return decodeReply(resp, out)
}

func decodeReply(resp envelope.Envelope, out any) error {
	if err := json.Unmarshal([]byte(resp.ModelData), out); err != nil {
		return fmt.Errorf("decode %s reply: %w", resp.ModelType, err)
	}
	return nil
}

// Status retrieves the service status.
func (c *Client) Status(ctx context.Context) (*models.Status, error) {
	var status models.Status
	if err := c.getInto(ctx, models.NameStatus, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Config retrieves the service's effective configuration.
func (c *Client) Config(ctx context.Context) (*models.ConfigView, error) {
	var view models.ConfigView
	if err := c.getInto(ctx, models.NameConfig, nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// LogLevel returns the service log level.
func (c *Client) LogLevel(ctx context.Context) (string, error) {
	var level models.LogLevel
	if err := c.getInto(ctx, models.NameLogLevel, nil, &level); err != nil {
		return "", err
	}
	return level.Level, nil
}

// SetLogLevel changes the service log level and returns the new value.
func (c *Client) SetLogLevel(ctx context.Context, level string) (string, error) {
	var out models.LogLevel
	if err := c.setInto(ctx, models.NameLogLevel, models.LogLevel{Level: strings.TrimSpace(level)}, &out); err != nil {
		return "", err
	}
	return out.Level, nil
}

// Journal lists journaled envelopes, newest first.
func (c *Client) Journal(ctx context.Context, q models.JournalQuery) ([]journal.Entry, error) {
	var entries []journal.Entry
	if err := c.getInto(ctx, models.NameJournal, q, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// PruneJournal removes entries older than retentionDays.
func (c *Client) PruneJournal(ctx context.Context, retentionDays int) (*models.JournalPruneResult, error) {
	var out models.JournalPruneResult
	if err := c.setInto(ctx, models.NameJournal, models.JournalPrune{RetentionDays: retentionDays}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logs reads the service's buffered log events.
func (c *Client) Logs(ctx context.Context, q models.LogQuery) (*models.LogPage, error) {
	var page models.LogPage
	if err := c.getInto(ctx, models.NameLogs, q, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Follow streams service log events to fn until ctx ends or the service
// goes away. backlog asks for that many recent events first.
func (c *Client) Follow(ctx context.Context, backlog int, fn func(logging.LogEvent)) error {
	syslog, err := c.connect(ctx, c.cfg.Channels.SysLog)
	if err != nil {
		return err
	}
	defer func() {
		syslog.Dispose()
		<-syslog.Done()
	}()

	open := envelope.NewVerb(envelope.VerbOpenSysLog)
	if backlog > 0 {
		data, err := json.Marshal(feed.OpenRequest{Backlog: backlog})
		if err != nil {
			return err
		}
		open.ModelData = string(data)
	}
	if err := c.control.Send(open); err != nil {
		return fmt.Errorf("open syslog feed: %w", err)
	}
	defer func() {
		_ = c.control.Send(envelope.NewVerb(envelope.VerbCloseSysLog))
	}()

	for {
		env, err := syslog.Receive(ctx)
		if err != nil {
			if errors.Is(err, channel.ErrChannelClosed) {
				if cause := syslog.Err(); cause != nil && !errors.Is(cause, channel.ErrPeerClosed) {
					return cause
				}
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if evt, ok := feed.Decode(env); ok {
			fn(evt)
		}
	}
}
