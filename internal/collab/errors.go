package collab

import "errors"

var (
	// ErrAuth is returned when the handshake credential is missing, malformed or rejected.
	ErrAuth = errors.New("authentication failed")

	// ErrAccessDenied is returned when an authenticated user may not join a document.
	// The connection must be closed by the caller.
	ErrAccessDenied = errors.New("access denied")

	// ErrPermissionDenied is returned when a joined user lacks the role for a mutating action.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrStaleUpdate is returned for updates addressed to a document the sender is no longer joined to.
	ErrStaleUpdate = errors.New("stale update")

	ErrUnknownConnection = errors.New("unknown connection")
	ErrDocumentNotFound  = errors.New("document not found")
	ErrInvalidPayload    = errors.New("invalid payload")
)
