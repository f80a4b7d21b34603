// Package transport provides the single-peer byte stream the channel runs
// on. An identity names one endpoint under a runtime directory: the
// listener holds an exclusive lock for it, accepts exactly one peer, and
// stops accepting. Connectors dial the same identity.
package transport
