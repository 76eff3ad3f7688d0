package callstack

import (
	"fmt"
	"os"
	"strings"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru"
	"github.com/klauspost/compress/zstd"
)

// SourceContext holds the source line of a call and the lines around it.
type SourceContext struct {
	ContextLine string   `json:"context_line"`
	PreContext  []string `json:"pre_context,omitempty"`
	PostContext []string `json:"post_context,omitempty"`
}

const sourceCacheSize = 128

// reusable zstd codecs; both are safe for concurrent use
var (
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

// sourceEntry caches one parsed source file: its content digest and the
// content itself, held zstd-compressed so hot caches of large files stay
// small. A nil compressed slice marks an unreadable file, cached so repeated
// queries do not retry the read.
type sourceEntry struct {
	hash       string
	compressed []byte
}

type sourceCache struct {
	entries *lru.Cache
}

var sharedSource = newSourceCache(sourceCacheSize)

func newSourceCache(size int) *sourceCache {
	c, _ := lru.New(size)
	return &sourceCache{entries: c}
}

func (c *sourceCache) entry(path string) *sourceEntry {
	if v, ok := c.entries.Get(path); ok {
		return v.(*sourceEntry)
	}
	e := &sourceEntry{}
	if data, err := os.ReadFile(path); err == nil {
		e.hash = fmt.Sprintf("%016x", xxhash.Sum64(data))
		e.compressed = zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)/4))
	}
	c.entries.Add(path, e)
	return e
}

func (c *sourceCache) hash(path string) string {
	return c.entry(path).hash
}

func (c *sourceCache) lines(path string) []string {
	e := c.entry(path)
	if e.compressed == nil {
		return nil
	}
	data, err := zstdDecoder.DecodeAll(e.compressed, nil)
	if err != nil {
		return nil
	}
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

// SourceContext returns the frame's source line together with up to n lines
// before and after it. It fails when the frame has no known source position
// or the file cannot be read.
func (f *Frame) SourceContext(n int) (*SourceContext, error) {
	if f.rf.File == "" || f.rf.Line <= 0 {
		return nil, fmt.Errorf("callstack: frame has no source position")
	}
	lines := sharedSource.lines(f.rf.File)
	if lines == nil {
		return nil, fmt.Errorf("callstack: source unavailable: %s", f.rf.File)
	}
	idx := f.rf.Line - 1
	if idx >= len(lines) {
		return nil, fmt.Errorf("callstack: line %d beyond end of %s", f.rf.Line, f.rf.File)
	}
	ctx := &SourceContext{ContextLine: lines[idx]}
	if n > 0 {
		lo := max(idx-n, 0)
		hi := min(idx+1+n, len(lines))
		ctx.PreContext = lines[lo:idx]
		ctx.PostContext = lines[idx+1 : hi]
	}
	return ctx, nil
}
