package authsync

import "errors"

var (
	// ErrManagerClosed is returned by operations invoked after Close.
	ErrManagerClosed = errors.New("authsync: manager closed")
	// ErrBaseURLRequired is returned by Build when no API base URL was
	// configured.
	ErrBaseURLRequired = errors.New("authsync: base URL required")
	// ErrAlreadyBuilt is returned when a Builder is reused.
	ErrAlreadyBuilt = errors.New("authsync: builder already consumed")
	// ErrRealtimeDisabled is returned by room operations when no realtime
	// endpoint was configured.
	ErrRealtimeDisabled = errors.New("authsync: realtime disabled")
	// ErrNoSession is returned by operations that need an installed
	// session.
	ErrNoSession = errors.New("authsync: no active session")
	// ErrInvalidRequest is returned by Do for requests missing a method
	// or path.
	ErrInvalidRequest = errors.New("authsync: invalid request")
)
