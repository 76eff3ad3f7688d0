package callstack

import "fmt"

// FormatterError wraps a failure raised by the formatter supplied to Capture.
// The hook state has already been restored when it is returned.
type FormatterError struct {
	Err error
}

func (e *FormatterError) Error() string {
	return fmt.Sprintf("callstack: formatter failed: %v", e.Err)
}

func (e *FormatterError) Unwrap() error { return e.Err }

// QueryError wraps a failure raised by a single frame query during snapshot
// resolution. It fails the whole Resolved call; no partial snapshots are
// returned.
type QueryError struct {
	Query string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("callstack: query %s failed: %v", e.Query, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }
