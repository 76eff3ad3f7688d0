package callstack

import (
	"errors"
	"fmt"
	"runtime"
)

// Formatter shapes the raw frame sequence produced by a capture. It receives
// the capture error value (always nil in this implementation, kept for hook
// compatibility) and the frames in caller-first order, and returns an
// arbitrary result that Capture passes back unmodified.
type Formatter func(err error, frames []*Frame) (any, error)

// ErrInvalidFormatter is returned by Capture when the formatter argument is
// neither nil nor a callable with a supported signature.
var ErrInvalidFormatter = errors.New("callstack: formatter is not callable")

// DefaultFrameLimit is the frame limit in effect outside of a capture.
const DefaultFrameLimit = 64

// Process-wide hook state. Capture temporarily overrides both slots and
// restores them on every exit path. Access is cooperative single-threaded;
// callers that capture from multiple goroutines must serialize externally.
var (
	activeFormatter Formatter
	frameLimit      = DefaultFrameLimit
)

// hookGuard is the scoped save/mutate/restore for the hook state. It is
// acquired exactly once per capture and released via defer.
type hookGuard struct {
	prevFormatter Formatter
	prevLimit     int
}

func acquireHook(f Formatter) *hookGuard {
	g := &hookGuard{prevFormatter: activeFormatter, prevLimit: frameLimit}
	activeFormatter = f
	frameLimit = 0 // unbounded while the capture is in flight
	return g
}

func (g *hookGuard) release() {
	activeFormatter = g.prevFormatter
	frameLimit = g.prevLimit
}

// traceEvent is one trace-capture event. Program counters are collected when
// the event is created; frame expansion and formatter invocation are deferred
// to the first value() call and cached afterward.
type traceEvent struct {
	pcs      []uintptr
	result   any
	err      error
	computed bool
}

func newTraceEvent(skip int) *traceEvent {
	return &traceEvent{pcs: callers(skip + 1)}
}

func (e *traceEvent) value() (any, error) {
	if !e.computed {
		e.computed = true
		frames := expandFrames(e.pcs)
		if f := activeFormatter; f != nil {
			res, err := f(nil, frames)
			if err != nil {
				e.err = &FormatterError{Err: err}
			} else {
				e.result = res
			}
		} else {
			e.result = frames
		}
	}
	return e.result, e.err
}

// callers collects program counters starting skip frames above the caller of
// callers. A zero frameLimit collects the whole stack; the growth loop
// follows the apm-agent stacktrace package.
func callers(skip int) []uintptr {
	if n := frameLimit; n > 0 {
		pc := make([]uintptr, n)
		return pc[:runtime.Callers(skip+2, pc)]
	}
	pc := make([]uintptr, 32)
	n := 0
	for {
		n += runtime.Callers(skip+2+n, pc[n:])
		if n < len(pc) {
			return pc[:n]
		}
		pc = append(pc, make([]uintptr, len(pc))...)
	}
}

// expandFrames resolves program counters into frame descriptors, stamping
// each one with the async state of the current goroutine. Inlined calls
// expand into their own frames.
func expandFrames(pcs []uintptr) []*Frame {
	if len(pcs) == 0 {
		return nil
	}
	state := currentAsyncState()
	out := make([]*Frame, 0, len(pcs))
	iter := runtime.CallersFrames(pcs)
	for {
		rf, more := iter.Next()
		out = append(out, &Frame{rf: rf, pc: rf.PC, async: state})
		if !more {
			return out
		}
	}
}

// Capture walks the current call stack and returns the formatter's result.
//
// A nil formatter is the identity: the result is the []*Frame sequence
// itself, ordered from the immediate caller of Capture toward program entry.
// The formatter may also be a Formatter value, a func with the same
// signature, or a func(error, []*Frame) any; anything else fails with
// ErrInvalidFormatter before any hook state is touched.
//
// While the capture is in flight the process-wide formatter hook and frame
// limit are overridden; both are restored before Capture returns, on every
// path, including when the formatter fails or panics.
func Capture(formatter any) (any, error) {
	f, err := coerceFormatter(formatter)
	if err != nil {
		return nil, err
	}
	return captureWith(2, f)
}

// captureWith runs the hook-swap protocol. skip counts the frames between
// newTraceEvent's caller and the first frame to report: 2 reports the caller
// of captureWith's caller.
func captureWith(skip int, f Formatter) (any, error) {
	g := acquireHook(f)
	defer g.release()

	ev := newTraceEvent(skip)
	return ev.value()
}

// Frames is a raw capture: the descriptors for every call enclosing the
// caller of Frames, innermost first.
func Frames() []*Frame {
	res, _ := captureWith(2, nil)
	return res.([]*Frame)
}

func coerceFormatter(v any) (Formatter, error) {
	switch f := v.(type) {
	case nil:
		return nil, nil
	case Formatter:
		return f, nil
	case func(error, []*Frame) (any, error):
		return f, nil
	case func(error, []*Frame) any:
		return func(err error, frames []*Frame) (any, error) {
			return f(err, frames), nil
		}, nil
	default:
		return nil, fmt.Errorf("%w: got %T", ErrInvalidFormatter, v)
	}
}
