// Package journal persists a record of every envelope the service exchanges
// on its control channel.
//
// The journal is an append-only SQLite table (modernc.org/sqlite) with
// embedded, versioned migrations. It stores envelope metadata only: the
// direction, identity, kind, model type, request id, encoded size and any
// remote error text. Payloads are never written.
package journal
