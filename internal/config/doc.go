// Package config loads, normalizes, and validates pipelink configuration.
//
// It supplies defaults, expands user paths (including tilde shortcuts),
// reads TOML files, and honours PIPELINK_RUNTIME_DIR and XDG_RUNTIME_DIR
// when placing channel sockets. Both the service and the management client
// read the same file so they agree on the runtime directory and channel
// identities.
package config
