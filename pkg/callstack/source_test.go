package callstack

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/cespare/xxhash/v2"
)

func writeTempSource(t *testing.T, lines string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.go")
	if err := os.WriteFile(path, []byte(lines), 0644); err != nil {
		t.Fatalf("Failed to write temp source: %v", err)
	}
	return path
}

func TestScriptHash(t *testing.T) {
	content := "package demo\n\nfunc demo() {}\n"
	path := writeTempSource(t, content)

	f := &Frame{rf: runtime.Frame{Function: "demo.demo", File: path, Line: 3}}
	want := fmt.Sprintf("%016x", xxhash.Sum64([]byte(content)))

	if got := f.ScriptHash(); got != want {
		t.Errorf("Expected hash %s, got %s", want, got)
	}

	// Second query is served from the cache.
	if got := f.ScriptHash(); got != want {
		t.Errorf("Expected cached hash %s, got %s", want, got)
	}
}

func TestScriptHashUnreadable(t *testing.T) {
	f := &Frame{rf: runtime.Frame{Function: "demo.demo", File: "/does/not/exist.go", Line: 1}}
	if got := f.ScriptHash(); got != "" {
		t.Errorf("Expected empty hash for unreadable source, got %q", got)
	}

	missing := &Frame{}
	if got := missing.ScriptHash(); got != "" {
		t.Errorf("Expected empty hash for unknown source, got %q", got)
	}
}

func TestSourceContext(t *testing.T) {
	path := writeTempSource(t, "one\ntwo\nthree\nfour\nfive\n")

	f := &Frame{rf: runtime.Frame{File: path, Line: 3}}
	ctx, err := f.SourceContext(1)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if ctx.ContextLine != "three" {
		t.Errorf("Expected context line %q, got %q", "three", ctx.ContextLine)
	}
	if len(ctx.PreContext) != 1 || ctx.PreContext[0] != "two" {
		t.Errorf("Expected pre context [two], got %v", ctx.PreContext)
	}
	if len(ctx.PostContext) != 1 || ctx.PostContext[0] != "four" {
		t.Errorf("Expected post context [four], got %v", ctx.PostContext)
	}
}

func TestSourceContextClampedAtEdges(t *testing.T) {
	path := writeTempSource(t, "one\ntwo\nthree\n")

	f := &Frame{rf: runtime.Frame{File: path, Line: 1}}
	ctx, err := f.SourceContext(5)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(ctx.PreContext) != 0 {
		t.Errorf("Expected no pre context at the first line, got %v", ctx.PreContext)
	}
	if len(ctx.PostContext) != 2 {
		t.Errorf("Expected two post context lines, got %v", ctx.PostContext)
	}
}

func TestSourceContextErrors(t *testing.T) {
	if _, err := (&Frame{}).SourceContext(1); err == nil {
		t.Error("Expected error for frame without source position")
	}

	f := &Frame{rf: runtime.Frame{File: "/does/not/exist.go", Line: 1}}
	if _, err := f.SourceContext(1); err == nil {
		t.Error("Expected error for unreadable source")
	}

	path := writeTempSource(t, "one\n")
	past := &Frame{rf: runtime.Frame{File: path, Line: 99}}
	if _, err := past.SourceContext(1); err == nil {
		t.Error("Expected error for line beyond end of file")
	}
}
