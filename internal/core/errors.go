package core

import "github.com/cockroachdb/errors"

var (
	ErrSessionClosed       = errors.New("session closed")
	ErrClientOffline       = errors.New("signal socket requires an online client")
	ErrClientOwnerMismatch = errors.New("client does not belong to this user")
	ErrCallerClientBound   = errors.New("caller client already set")
	ErrCalleeClientBound   = errors.New("callee client already set")
	ErrForeignClient       = errors.New("client does not belong to this room's user")
)
