package channel

import "errors"

var (
	// ErrAlreadyStarted is returned by a second start call.
	ErrAlreadyStarted = errors.New("channel: already started")
	// ErrChannelClosed is returned once the channel has shut down.
	ErrChannelClosed = errors.New("channel: closed")
	// ErrQueueFull is returned when a bounded queue has no room.
	ErrQueueFull = errors.New("channel: queue full")
	// ErrPeerClosed is the terminal cause when the peer hung up.
	ErrPeerClosed = errors.New("channel: peer closed the connection")
)
