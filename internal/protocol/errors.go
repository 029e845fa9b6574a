package protocol

import "errors"

// Error taxonomy per spec.md §7. Bind and resolve failures have their
// own typed errors below (BindError, ResolveError) since callers need
// the failed address, not just a category; these four are the plain
// sentinels for categories that don't carry extra fields. ErrConfig and
// ErrDb are wrapped with fmt.Errorf's %w by store.ConfigFromEnv and
// store's dbErr so errors.Is still classifies them; master/server.go
// names ErrSocket and ErrProtocol in its log lines.
var (
	ErrConfig   = errors.New("protocol: missing configuration")
	ErrSocket   = errors.New("protocol: socket error")
	ErrProtocol = errors.New("protocol: malformed message")
	ErrDb       = errors.New("protocol: database error")
)

// OversizeLineError is returned when a peer sends a line longer than the
// configured cap. The offending socket must be closed by the caller.
type OversizeLineError struct {
	Limit int
}

func (e *OversizeLineError) Error() string {
	return "protocol: line exceeds size cap"
}

// BindError wraps a listen failure with the address that failed to bind.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return "protocol: bind " + e.Addr + ": " + e.Err.Error()
}

func (e *BindError) Unwrap() error { return e.Err }

// ResolveError wraps a dial/resolve failure.
type ResolveError struct {
	Addr string
	Err  error
}

func (e *ResolveError) Error() string {
	return "protocol: resolve " + e.Addr + ": " + e.Err.Error()
}

func (e *ResolveError) Unwrap() error { return e.Err }

// WriteError wraps a failed flush to a socket.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string { return "protocol: write: " + e.Err.Error() }

func (e *WriteError) Unwrap() error { return e.Err }
