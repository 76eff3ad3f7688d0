package callstack

import (
	"fmt"
	"runtime"
	"strings"
)

// Frame describes a single call site on the captured stack. It is backed by
// the runtime's frame record and resolves every attribute on demand; symbol
// parsing is memoized. A Frame is immutable once produced and safe to retain
// after the capture that created it.
type Frame struct {
	rf runtime.Frame
	pc uintptr

	// col is always zero for frames produced by the runtime; the Go
	// toolchain does not record column information. Kept for synthetic
	// frames and the render grammar.
	col int

	async *asyncState

	parsed     bool
	pkgPath    string
	typeName   string
	methodName string
	funcName   string
	qualName   string
}

// This returns the receiver value active in the frame. The Go runtime does
// not expose receiver values, so this is always nil; the receiver's type is
// still recoverable through TypeName.
func (f *Frame) This() any { return nil }

// TypeName returns the name of the method receiver's type, with pointer
// stars and parentheses stripped, or "" for plain functions.
func (f *Frame) TypeName() string {
	f.parse()
	return f.typeName
}

// Function returns the runtime's function object for the frame, or nil when
// the call was inlined and no distinct function object exists.
func (f *Frame) Function() *runtime.Func {
	return f.rf.Func
}

// FunctionName returns the bare name of the executing function, without the
// package path or receiver ("Start", "doWork", "func1").
func (f *Frame) FunctionName() string {
	f.parse()
	return f.funcName
}

// MethodName returns the name the function is invoked under on its receiver,
// or "" when the frame has no receiver.
func (f *Frame) MethodName() string {
	f.parse()
	return f.methodName
}

// PackagePath returns the import path of the package the function belongs to.
func (f *Frame) PackagePath() string {
	f.parse()
	return f.pkgPath
}

// FileName returns the source file of the call, or "" when unknown.
func (f *Frame) FileName() string { return f.rf.File }

// LineNumber returns the 1-based source line of the call, 0 when unknown.
func (f *Frame) LineNumber() int { return f.rf.Line }

// ColumnNumber returns the 1-based source column of the call. The Go runtime
// records no columns, so this is 0 for captured frames.
func (f *Frame) ColumnNumber() int { return f.col }

// EnclosingLineNumber returns the line on which the executing function is
// declared, 0 when unknown.
func (f *Frame) EnclosingLineNumber() int {
	fn := f.rf.Func
	if fn == nil {
		return 0
	}
	_, line := fn.FileLine(fn.Entry())
	return line
}

// EnclosingColumnNumber is always 0: declaration columns are not recorded.
func (f *Frame) EnclosingColumnNumber() int { return 0 }

// EvalOrigin returns the textual origin of dynamically generated code.
// Compiler-generated frames carry no origin string, so this is always "".
func (f *Frame) EvalOrigin() string { return "" }

// Position returns the pc offset from the function entry point, or -1 when
// the entry is unknown.
func (f *Frame) Position() int {
	if f.rf.Entry == 0 || f.pc < f.rf.Entry {
		return -1
	}
	return int(f.pc - f.rf.Entry)
}

// PromiseIndex returns the frame's index within the All aggregate that
// spawned it, or -1 for frames outside an aggregate.
func (f *Frame) PromiseIndex() int {
	if f.async == nil || !f.async.aggregate {
		return -1
	}
	return f.async.index
}

// ScriptHash returns the hex-encoded content digest of the frame's source
// file, or "" when the source cannot be read.
func (f *Frame) ScriptHash() string {
	if f.rf.File == "" {
		return ""
	}
	return sharedSource.hash(f.rf.File)
}

// ScriptNameOrSourceURL returns the best-effort source identifier. Unlike
// FileName it is defined to never be absent: unknown sources yield "".
func (f *Frame) ScriptNameOrSourceURL() string { return f.rf.File }

// IsAsync reports whether the frame was captured on a goroutine launched
// through Go or All.
func (f *Frame) IsAsync() bool { return f.async != nil }

// IsPromiseAll reports whether the frame was captured on a worker goroutine
// of an All aggregate.
func (f *Frame) IsPromiseAll() bool {
	return f.async != nil && f.async.aggregate
}

// IsConstructor reports whether the executing function follows the Go
// constructor convention: a plain function named New or NewXxx.
func (f *Frame) IsConstructor() bool {
	f.parse()
	if f.methodName != "" {
		return false
	}
	if f.funcName == "New" {
		return true
	}
	if rest, ok := strings.CutPrefix(f.funcName, "New"); ok {
		return rest[0] >= 'A' && rest[0] <= 'Z'
	}
	return false
}

// IsEval reports whether the frame executes compiler-generated code, such as
// <autogenerated> wrapper methods.
func (f *Frame) IsEval() bool {
	return strings.HasPrefix(f.rf.File, "<")
}

// IsNative reports whether the frame belongs to the runtime itself or to
// assembly source.
func (f *Frame) IsNative() bool {
	f.parse()
	if f.pkgPath == "runtime" {
		return true
	}
	return strings.HasSuffix(f.rf.File, ".s")
}

// IsTopLevel reports whether the frame is a package initializer or the
// program entry point.
func (f *Frame) IsTopLevel() bool {
	f.parse()
	if f.methodName != "" {
		return false
	}
	if f.qualName == "init" || strings.HasPrefix(f.qualName, "init.") {
		return true
	}
	return f.qualName == "main" && (f.pkgPath == "main" || f.pkgPath == "runtime")
}

// Render returns the frame in the form "Type.Name (file:line:col)",
// omitting whatever is unavailable. A frame with no resolvable name renders
// as "<anonymous>".
func (f *Frame) Render() string {
	f.parse()
	name := f.funcName
	if name == "" {
		name = "<anonymous>"
	}
	if f.typeName != "" {
		name = f.typeName + "." + name
	}
	loc := f.rf.File
	if loc != "" && f.rf.Line > 0 {
		loc = fmt.Sprintf("%s:%d", loc, f.rf.Line)
		if f.col > 0 {
			loc = fmt.Sprintf("%s:%d", loc, f.col)
		}
	}
	if loc == "" {
		return name
	}
	return name + " (" + loc + ")"
}

// String is an alias for Render.
func (f *Frame) String() string { return f.Render() }

// parse splits the runtime symbol name into package path, receiver type and
// bare function name. Symbol grammar handling follows the apm-agent
// stacktrace package.
func (f *Frame) parse() {
	if f.parsed {
		return
	}
	f.parsed = true

	full := f.rf.Function
	if full == "" {
		return
	}
	// The receiver of an unexported method may itself contain dots, but it
	// is always parenthesized, so ".(" marks the end of the package path.
	var rest string
	if sep := strings.Index(full, ".("); sep >= 0 {
		f.pkgPath = unescapeSymbol(full[:sep])
		rest = full[sep+1:]
	} else {
		offset := 0
		if sep := strings.LastIndex(full, "/"); sep >= 0 {
			offset = sep
		}
		if sep := strings.IndexByte(full[offset+1:], '.'); sep >= 0 {
			f.pkgPath = unescapeSymbol(full[:offset+1+sep])
			rest = full[offset+1+sep+1:]
		} else {
			rest = full
		}
	}

	if strings.HasPrefix(rest, "(") {
		// Method: "(*Server).Start" or "(Config).validate".
		if end := strings.Index(rest, ")."); end >= 0 {
			f.typeName = strings.TrimPrefix(rest[1:end], "*")
			rest = rest[end+2:]
			f.qualName = rest
			// Anonymous functions nested in a method keep the outermost
			// name as the method and the innermost as the function.
			if dot := strings.IndexByte(rest, '.'); dot >= 0 {
				f.methodName = rest[:dot]
				f.funcName = rest[strings.LastIndexByte(rest, '.')+1:]
			} else {
				f.methodName = rest
				f.funcName = rest
			}
			return
		}
	}
	// Plain function, possibly with nested-literal suffixes: the bare name
	// is the last segment of the remainder.
	f.qualName = rest
	if dot := strings.LastIndexByte(rest, '.'); dot >= 0 {
		f.funcName = rest[dot+1:]
	} else {
		f.funcName = rest
	}
}

// unescapeSymbol reverses the %xx escaping the linker applies to dots in
// package path elements.
func unescapeSymbol(s string) string {
	if !strings.ContainsRune(s, '%') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '%' && i+2 < len(s) {
			c = fromHex(s[i+1])<<4 | fromHex(s[i+2])
			i += 2
		}
		b.WriteByte(c)
	}
	return b.String()
}

func fromHex(b byte) byte {
	if b >= 'a' {
		return 10 + b - 'a'
	}
	return b - '0'
}
