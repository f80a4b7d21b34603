package transport

import "errors"

var (
	// ErrConnect reports that no listener accepted the connection.
	ErrConnect = errors.New("transport: connect failed")
	// ErrAlreadyActive reports that another listener owns the identity.
	ErrAlreadyActive = errors.New("transport: identity already active")
	// ErrClosed reports use of a closed connection.
	ErrClosed = errors.New("transport: connection closed")
	// ErrInvalidIdentity rejects identities that cannot name an endpoint.
	ErrInvalidIdentity = errors.New("transport: invalid identity")
)
