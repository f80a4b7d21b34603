package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"pipelink/internal/frame"
	"pipelink/internal/logging"
	"pipelink/internal/transport"
)

// Connector establishes connections for an identity.
type Connector interface {
	Listen(ctx context.Context, identity string) (transport.Conn, error)
	Connect(ctx context.Context, identity string) (transport.Conn, error)
}

// Option configures a Channel.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	connector  Connector
	queueLimit int
}

// WithLogger sets the channel logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithConnector sets how StartListening and StartConnecting reach the peer.
func WithConnector(c Connector) Option {
	return func(o *options) { o.connector = c }
}

// WithQueueLimit bounds both queues. Zero or negative means unbounded.
func WithQueueLimit(n int) Option {
	return func(o *options) {
		if n < 0 {
			n = 0
		}
		o.queueLimit = n
	}
}

// Channel is a duplex message channel for payloads of type T.
type Channel[T any] struct {
	codec     frame.Codec[T]
	logger    *slog.Logger
	connector Connector

	state    atomic.Int32
	mu       sync.Mutex
	identity string
	conn     transport.Conn
	cause    error

	inbound  *queue[T]
	outbound *queue[[]byte]
	handlers *handlers[T]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
	done   chan struct{}
}

// New builds an idle channel.
func New[T any](codec frame.Codec[T], opts ...Option) *Channel[T] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	logger := logging.NewComponentLogger(o.logger, "channel")
	ctx, cancel := context.WithCancel(context.Background())
	return &Channel[T]{
		codec:     codec,
		logger:    logger,
		connector: o.connector,
		inbound:   newQueue[T](o.queueLimit),
		outbound:  newQueue[[]byte](o.queueLimit),
		handlers:  newHandlers[T](logger),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// State reports the current lifecycle state.
func (c *Channel[T]) State() State { return State(c.state.Load()) }

// Identity is the identity the channel was started with.
func (c *Channel[T]) Identity() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// Done is closed once the channel is Closed and both pumps have exited.
func (c *Channel[T]) Done() <-chan struct{} { return c.done }

// Err returns what closed the channel: nil after Dispose, ErrPeerClosed
// after a clean hang-up, otherwise the failure.
func (c *Channel[T]) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cause
}

// Pending reports queued inbound and outbound messages.
func (c *Channel[T]) Pending() (inbound, outbound int) {
	return c.inbound.len(), c.outbound.len()
}

// StartListening claims identity, waits for one peer, then starts the
// pumps. ctx bounds the wait only.
func (c *Channel[T]) StartListening(ctx context.Context, identity string) error {
	return c.start(ctx, identity, Listening, func(ctx context.Context) (transport.Conn, error) {
		return c.connector.Listen(ctx, identity)
	})
}

// StartConnecting dials identity, then starts the pumps.
func (c *Channel[T]) StartConnecting(ctx context.Context, identity string) error {
	return c.start(ctx, identity, Connecting, func(ctx context.Context) (transport.Conn, error) {
		return c.connector.Connect(ctx, identity)
	})
}

// Attach starts the channel on an already established connection.
func (c *Channel[T]) Attach(identity string, conn transport.Conn) error {
	if conn == nil {
		return errors.New("channel: nil connection")
	}
	if !c.state.CompareAndSwap(int32(Idle), int32(Connecting)) {
		return c.startRejected()
	}
	c.mu.Lock()
	c.identity = identity
	c.mu.Unlock()
	return c.attach(conn)
}

func (c *Channel[T]) start(ctx context.Context, identity string, role State, open func(context.Context) (transport.Conn, error)) error {
	if c.State() != Idle {
		return c.startRejected()
	}
	if c.connector == nil {
		return errors.New("channel: no connector configured")
	}
	if !c.state.CompareAndSwap(int32(Idle), int32(role)) {
		return c.startRejected()
	}
	c.mu.Lock()
	c.identity = identity
	c.mu.Unlock()

	openCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.ctx, cancel)
	conn, err := open(openCtx)
	stop()
	cancel()
	if err != nil {
		if c.ctx.Err() != nil && ctx.Err() == nil {
			err = ErrChannelClosed
		}
		c.shutdown(err)
		return err
	}
	return c.attach(conn)
}

func (c *Channel[T]) startRejected() error {
	if c.State() == Closed {
		return ErrChannelClosed
	}
	return ErrAlreadyStarted
}

func (c *Channel[T]) attach(conn transport.Conn) error {
	c.mu.Lock()
	if c.State() == Closed {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrChannelClosed
	}
	c.conn = conn
	c.state.Store(int32(Connected))
	c.wg.Add(2)
	identity := c.identity
	c.mu.Unlock()

	c.logger.Info("channel connected",
		logging.String(logging.FieldEventType, "channel_connected"),
		logging.String(logging.FieldIdentity, identity),
		logging.Int("peer_pid", int(conn.Peer().PID)))
	c.handlers.event(eventConnected)

	go c.readLoop(conn)
	go c.writeLoop(conn)
	return nil
}

// Send queues msg for the outbound pump without waiting for the write. The
// message is encoded here, so an unserializable payload fails this call.
func (c *Channel[T]) Send(msg T) error {
	if c.State() == Closed {
		return ErrChannelClosed
	}
	buf, err := frame.Encode(c.codec, msg)
	if err != nil {
		c.report(err)
		return err
	}
	if err := c.outbound.push(buf); err != nil {
		return err
	}
	return nil
}

// Receive returns the next inbound message. After close it keeps returning
// queued messages, then ErrChannelClosed.
func (c *Channel[T]) Receive(ctx context.Context) (T, error) {
	return c.inbound.pop(ctx)
}

// Dispose shuts the channel down. Safe to call repeatedly and from handlers.
func (c *Channel[T]) Dispose() {
	c.shutdown(nil)
}

// OnMessage registers fn for inbound messages accepted by match (nil
// matches everything). fn runs on the inbound pump before the message is
// queued for Receive.
func (c *Channel[T]) OnMessage(match func(T) bool, fn func(T)) *Subscription {
	return c.handlers.add(handler[T]{kind: eventMessage, match: match, onMsg: fn})
}

// OnConnected registers fn to run once the connection is established.
func (c *Channel[T]) OnConnected(fn func()) *Subscription {
	return c.handlers.add(handler[T]{kind: eventConnected, onEvent: fn})
}

// OnDisconnected registers fn to run when a connected channel closes.
func (c *Channel[T]) OnDisconnected(fn func()) *Subscription {
	return c.handlers.add(handler[T]{kind: eventDisconnected, onEvent: fn})
}

// OnError registers fn for failures that do not necessarily close the
// channel, such as an undecodable message.
func (c *Channel[T]) OnError(fn func(error)) *Subscription {
	return c.handlers.add(handler[T]{kind: eventError, onErr: fn})
}

func (c *Channel[T]) readLoop(conn transport.Conn) {
	defer c.wg.Done()
	for {
		head, err := conn.ReadExactly(frame.PrefixLen)
		if err != nil {
			c.readFailed(err)
			return
		}
		n, err := frame.ParsePrefix(head)
		if err != nil {
			c.report(err)
			c.shutdown(err)
			return
		}
		payload, err := conn.ReadExactly(n)
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			c.readFailed(err)
			return
		}
		msg, err := frame.Unmarshal(c.codec, payload)
		if err != nil {
			c.report(err)
			continue
		}
		c.handlers.message(msg)
		if err := c.inbound.push(msg); err != nil {
			if errors.Is(err, ErrChannelClosed) {
				return
			}
			c.report(fmt.Errorf("drop inbound message: %w", err))
		}
	}
}

func (c *Channel[T]) readFailed(err error) {
	if c.ctx.Err() != nil {
		return
	}
	if errors.Is(err, io.EOF) {
		c.shutdown(ErrPeerClosed)
		return
	}
	c.report(fmt.Errorf("read frame: %w", err))
	c.shutdown(err)
}

func (c *Channel[T]) writeLoop(conn transport.Conn) {
	defer c.wg.Done()
	for {
		buf, err := c.outbound.pop(c.ctx)
		if err != nil {
			return
		}
		_, err = conn.Write(buf)
		if err == nil {
			err = conn.Flush()
		}
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.report(fmt.Errorf("write frame: %w", err))
			c.shutdown(err)
			return
		}
	}
}

func (c *Channel[T]) report(err error) {
	logging.WarnWithContext(c.logger, "channel error", "channel_error",
		logging.String(logging.FieldIdentity, c.Identity()),
		logging.Error(err),
		logging.String(logging.FieldImpact, "message dropped or connection lost"),
		logging.String(logging.FieldErrorHint, "check that both peers speak the same frame format"))
	c.handlers.err(err)
}

// shutdown is the single teardown path.
func (c *Channel[T]) shutdown(cause error) {
	c.once.Do(func() {
		c.mu.Lock()
		wasConnected := c.State() == Connected
		c.state.Store(int32(Closed))
		c.cause = cause
		conn := c.conn
		identity := c.identity
		c.mu.Unlock()

		c.cancel()
		if conn != nil {
			_ = conn.Close()
		}
		c.outbound.close()
		dropped := c.outbound.discard()
		c.inbound.close()

		if wasConnected {
			attrs := []logging.Attr{
				logging.String(logging.FieldEventType, "channel_disconnected"),
				logging.String(logging.FieldIdentity, identity),
			}
			if cause != nil {
				attrs = append(attrs, logging.String("reason", cause.Error()))
			}
			if dropped > 0 {
				attrs = append(attrs, logging.Int("unsent", dropped))
			}
			c.logger.Info("channel disconnected", logging.Args(attrs...)...)
			c.handlers.event(eventDisconnected)
		}

		go func() {
			c.wg.Wait()
			close(c.done)
		}()
	})
}
