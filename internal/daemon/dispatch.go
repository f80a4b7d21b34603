package daemon

import (
	"context"
	"errors"

	"pipelink/internal/channel"
	"pipelink/internal/envelope"
	"pipelink/internal/journal"
	"pipelink/internal/logging"
)

func (d *Daemon) newControlChannel() *channel.Channel[envelope.Envelope] {
	ch := channel.New[envelope.Envelope](envelope.Codec{}, d.channelOptions()...)
	d.workers.Add(1)
	go func() {
		defer d.workers.Done()
		d.serveControl(ch)
	}()
	return ch
}

func (d *Daemon) newSysLogChannel() *channel.Channel[envelope.Envelope] {
	ch := channel.New[envelope.Envelope](envelope.Codec{}, d.channelOptions()...)
	ch.OnDisconnected(func() {
		d.feed.Close()
	})
	d.workers.Add(1)
	go func() {
		defer d.workers.Done()
		// The feed only writes; anything a client sends here is discarded.
		for {
			if _, err := ch.Receive(context.Background()); err != nil {
				return
			}
		}
	}()
	return ch
}

// serveControl answers requests until ch closes. Requests are handled one at
// a time so replies leave in request order.
func (d *Daemon) serveControl(ch *channel.Channel[envelope.Envelope]) {
	ctx := context.Background()
	for {
		req, err := ch.Receive(ctx)
		if err != nil {
			return
		}
		d.handle(ctx, ch, req)
	}
}

func (d *Daemon) handle(ctx context.Context, ch *channel.Channel[envelope.Envelope], req envelope.Envelope) {
	identity := ch.Identity()
	d.record(ctx, journal.Inbound, identity, req)

	if d.feed.HandleVerb(req) {
		return
	}
	if req.Kind == envelope.Response {
		d.logger.Debug("ignoring unsolicited response",
			logging.String(logging.FieldIdentity, identity),
			logging.String("model_type", req.ModelType),
			logging.String(logging.FieldCorrelationID, req.RequestID))
		return
	}

	reqCtx := logging.WithCorrelationID(ctx, req.RequestID)
	resp := d.table.Handle(reqCtx, req)
	if resp.Error != "" {
		logging.WarnWithContext(logging.WithContext(reqCtx, d.logger), "request failed", "request_failed",
			logging.String(logging.FieldIdentity, identity),
			logging.String("kind", req.Kind.String()),
			logging.String("model_type", req.ModelType),
			logging.String("error", resp.Error),
			logging.String(logging.FieldImpact, "client receives an error reply"),
			logging.String(logging.FieldErrorHint, "check the model name and payload"))
	} else {
		logging.WithContext(reqCtx, d.logger).Debug("request handled",
			logging.String(logging.FieldIdentity, identity),
			logging.String("kind", req.Kind.String()),
			logging.String("model_type", req.ModelType))
	}

	if err := ch.Send(resp); err != nil {
		if !errors.Is(err, channel.ErrChannelClosed) {
			logging.WarnWithContext(d.logger, "reply not sent", "reply_send_failed",
				logging.Error(err),
				logging.String(logging.FieldIdentity, identity),
				logging.String(logging.FieldImpact, "client call will time out"),
				logging.String(logging.FieldErrorHint, "raise channels.queue_limit or check the client"))
		}
		return
	}
	d.record(ctx, journal.Outbound, identity, resp)
}

func (d *Daemon) record(ctx context.Context, direction journal.Direction, identity string, env envelope.Envelope) {
	if d.store == nil {
		return
	}
	size := 0
	if data, err := (envelope.Codec{}).Marshal(env); err == nil {
		size = len(data)
	}
	if _, err := d.store.Record(ctx, journal.EntryFor(direction, identity, env, size)); err != nil {
		logging.WarnWithContext(d.logger, "journal write failed", "journal_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "message missing from journal"),
			logging.String(logging.FieldErrorHint, "check disk space under data_dir"))
	}
}
