package callstack

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Snapshot is the eagerly evaluated form of a single Frame: every query
// result keyed by query name, with nil as the absent marker. All values are
// plain data, so a Snapshot is safe to serialize or retain after the capture.
type Snapshot map[string]any

// queryBinding is one entry of the resolver's method registry. Resolution
// enumerates this table instead of reflecting over the Frame type, so the
// query set is explicit and its order is stable.
type queryBinding struct {
	name string
	eval func(*Frame) any
}

var queryRegistry = []queryBinding{
	{"getThis", func(f *Frame) any { return f.This() }},
	{"getTypeName", func(f *Frame) any { return absentString(f.TypeName()) }},
	// The function object itself is not serializable; snapshots carry its
	// full symbol name instead.
	{"getFunction", func(f *Frame) any {
		if fn := f.Function(); fn != nil {
			return fn.Name()
		}
		return nil
	}},
	{"getFunctionName", func(f *Frame) any { return absentString(f.FunctionName()) }},
	{"getMethodName", func(f *Frame) any { return absentString(f.MethodName()) }},
	{"getFileName", func(f *Frame) any { return absentString(f.FileName()) }},
	{"getLineNumber", func(f *Frame) any { return absentInt(f.LineNumber()) }},
	{"getColumnNumber", func(f *Frame) any { return absentInt(f.ColumnNumber()) }},
	{"getEnclosingLineNumber", func(f *Frame) any { return absentInt(f.EnclosingLineNumber()) }},
	{"getEnclosingColumnNumber", func(f *Frame) any { return absentInt(f.EnclosingColumnNumber()) }},
	{"getEvalOrigin", func(f *Frame) any { return absentString(f.EvalOrigin()) }},
	{"getPosition", func(f *Frame) any { return absentIndex(f.Position()) }},
	{"getPromiseIndex", func(f *Frame) any { return absentIndex(f.PromiseIndex()) }},
	{"getScriptHash", func(f *Frame) any { return absentString(f.ScriptHash()) }},
	{"getScriptNameOrSourceURL", func(f *Frame) any { return f.ScriptNameOrSourceURL() }},
	{"isAsync", func(f *Frame) any { return f.IsAsync() }},
	{"isConstructor", func(f *Frame) any { return f.IsConstructor() }},
	{"isEval", func(f *Frame) any { return f.IsEval() }},
	{"isNative", func(f *Frame) any { return f.IsNative() }},
	{"isPromiseAll", func(f *Frame) any { return f.IsPromiseAll() }},
	{"isTopLevel", func(f *Frame) any { return f.IsTopLevel() }},
	{"render", func(f *Frame) any { return f.Render() }},
}

func absentString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func absentInt(n int) any {
	if n <= 0 {
		return nil
	}
	return n
}

// absentIndex treats -1 as absent but keeps 0, which is a valid index and a
// valid pc offset.
func absentIndex(n int) any {
	if n < 0 {
		return nil
	}
	return n
}

// Resolved captures the current stack and evaluates the full query set of
// every frame into a Snapshot. The leading snapshot is dropped
// unconditionally, a quirk of the resolver running one level deeper than a
// raw capture: the result has exactly one entry fewer than Capture at the
// same call site, starting at the caller's caller. A failing query fails the
// whole call; no partial snapshots are returned.
func Resolved() ([]Snapshot, error) {
	res, err := captureWith(2, resolveFormatter)
	if err != nil {
		var qe *QueryError
		if errors.As(err, &qe) {
			return nil, qe
		}
		return nil, err
	}
	snaps := res.([]Snapshot)
	if len(snaps) > 0 {
		snaps = snaps[1:]
	}
	return snaps, nil
}

func resolveFormatter(_ error, frames []*Frame) (any, error) {
	snaps := make([]Snapshot, len(frames))
	for i, f := range frames {
		s, err := resolveFrame(f)
		if err != nil {
			return nil, err
		}
		snaps[i] = s
	}
	return snaps, nil
}

func resolveFrame(f *Frame) (Snapshot, error) {
	s := make(Snapshot, len(queryRegistry))
	for _, q := range queryRegistry {
		v, err := evalQuery(q, f)
		if err != nil {
			return nil, err
		}
		s[q.name] = v
	}
	return s, nil
}

func evalQuery(q queryBinding, f *Frame) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &QueryError{Query: q.name, Err: fmt.Errorf("%v", r)}
		}
	}()
	return q.eval(f), nil
}

// MarshalJSON emits the snapshot's keys in registry order so the serialized
// form is stable across runs.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, q := range queryRegistry {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(q.name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(s[q.name])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
