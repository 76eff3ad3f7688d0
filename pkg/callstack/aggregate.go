package callstack

import (
	"errors"
	"runtime"
	"strconv"
	"strings"
	"sync"
)

// asyncState marks a goroutine as having been launched through Go or All.
// Frames captured on a marked goroutine report it through IsAsync,
// IsPromiseAll and PromiseIndex.
type asyncState struct {
	aggregate bool
	index     int
}

// asyncGoroutines maps runtime goroutine IDs to their asyncState for the
// lifetime of the task.
var asyncGoroutines sync.Map

func currentAsyncState() *asyncState {
	if v, ok := asyncGoroutines.Load(goroutineID()); ok {
		return v.(*asyncState)
	}
	return nil
}

// Go runs fn on its own goroutine, marked async for any capture fn performs,
// and waits for it to finish.
func Go(fn func() error) error {
	errs := runTasks([]func() error{fn}, false)
	return errs[0]
}

// All runs every task on its own goroutine, marks each one as a member of
// the aggregate with its position in the task list, and waits for all of
// them. Tasks run one at a time: the capture hook state is process-wide and
// unsynchronized, so the aggregate keeps the cooperative single-threaded
// discipline. The returned error joins every task failure.
func All(tasks ...func() error) error {
	return errors.Join(runTasks(tasks, true)...)
}

func runTasks(tasks []func() error, aggregate bool) []error {
	errs := make([]error, len(tasks))
	for i, task := range tasks {
		done := make(chan struct{})
		go func() {
			defer close(done)
			gid := goroutineID()
			asyncGoroutines.Store(gid, &asyncState{aggregate: aggregate, index: i})
			defer asyncGoroutines.Delete(gid)
			errs[i] = task()
		}()
		<-done
	}
	return errs
}

// goroutineID returns the runtime ID of the current goroutine, parsed from
// the header of its stack dump; the runtime does not expose it directly.
func goroutineID() int64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	fields := strings.Fields(string(buf[:n]))
	if len(fields) < 2 {
		return 0
	}
	id, _ := strconv.ParseInt(fields[1], 10, 64)
	return id
}
