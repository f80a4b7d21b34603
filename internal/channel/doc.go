// Package channel runs a typed, full-duplex message channel over one
// transport connection.
//
// A Channel starts in exactly one role (listening or connecting), then runs
// an inbound pump that reads frames into a receive queue and an outbound
// pump that writes queued frames one at a time. Callers observe traffic
// either by pulling with Receive or by registering handlers with OnMessage,
// OnConnected, OnDisconnected and OnError. Every registration returns a
// Subscription that can be cancelled independently.
//
// Once Closed, a channel stays closed. Reconnection is the job of the
// supervisor, which builds a new Channel for every connection.
package channel
