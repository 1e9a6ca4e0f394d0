package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrUnsupportedScheme is a configuration error raised at startup when the
	// connection string names an engine that is not compiled in.
	ErrUnsupportedScheme = errors.New("unsupported database type. Use postgresql:// or mysql://")

	ErrConnection         = errors.New("database connection failed")
	ErrCacheNotReady      = errors.New("metadata cache not ready")
	ErrRefreshInProgress  = errors.New("refresh in progress")
	ErrTooManyTables      = errors.New("too many tables")
	ErrIOFailure          = errors.New("cache store I/O failure")
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")

	// ErrAlreadyRefreshing rejects a refresh that overlaps a running one. It
	// also matches ErrRefreshInProgress.
	ErrAlreadyRefreshing = fmt.Errorf("tables already refreshing: %w", ErrRefreshInProgress)
)

// Error pairs a sentinel kind with the message shown to the caller.
// errors.Is matches the kind.
type Error struct {
	Kind    error
	Message string
}

// New returns an *Error of the given kind.
func New(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

// Message returns the caller-facing message of err: the Message of an
// *Error in its chain, or err.Error() otherwise.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
