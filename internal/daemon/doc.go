// Package daemon hosts the long-running pipelink service.
//
// It wires configuration, the message journal, the model table and the
// SysLog feed into a single lifecycle with a flock-based instance lock. One
// supervisor per configured identity keeps a listening channel available;
// the control channel's inbound envelopes are dispatched to the model table
// or the feed, and every request and reply is journaled.
//
// Keep orchestration here: envelope semantics live in envelope and models,
// connection lifecycle in channel and supervisor.
package daemon
