package traceback

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plainOptions() Options {
	opts := DefaultOptions()
	opts.Color = ColorNever
	return opts
}

func TestXTraceback_Format(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "main.go")
	require.NoError(t, os.WriteFile(src, []byte("package main\n\nfunc main() {\n\tx := 1\n\tpanic(x)\n}\n"), 0o600))

	d := &Dump{Goroutines: []Goroutine{{
		ID:    1,
		State: "running",
		Frames: []Frame{
			{Function: "main.main", File: filepath.ToSlash(src), Line: 5},
		},
	}}}

	opts := plainOptions()
	opts.Context = 1
	out := New(opts).Render("boom", d)

	assert.Contains(t, out, "panic: boom\n\n")
	assert.Contains(t, out, "goroutine 1 [running]: (most recent call first)\n")
	assert.Contains(t, out, ", line 5, in main.main\n")
	assert.Contains(t, out, "      4     x := 1\n")
	assert.Contains(t, out, "    > 5     panic(x)\n")
	assert.Contains(t, out, "      6 }\n")
	assert.NotContains(t, out, "func main()")
	assert.NotContains(t, out, "\x1b[")
}

func TestXTraceback_HeaderFromDump(t *testing.T) {
	d, err := ParseString(crashLog)
	require.NoError(t, err)

	out := New(plainOptions()).Render(nil, d)
	assert.True(t, strings.HasPrefix(out, "panic: boom [recovered]"))
}

func TestXTraceback_Compact(t *testing.T) {
	frames := []Frame{{Function: "main.wait", File: "/nonexistent/w.go", Line: 3}}
	d := &Dump{Goroutines: []Goroutine{
		{ID: 4, State: "chan receive", Frames: frames},
		{ID: 5, State: "chan receive", Frames: frames},
		{ID: 6, State: "running", Frames: frames},
	}}

	out := New(plainOptions()).Render(nil, d)
	assert.Contains(t, out, "2 goroutines 4, 5 [chan receive]:")
	assert.Contains(t, out, "goroutine 6 [running]:")

	opts := plainOptions()
	opts.Compact = false
	out = New(opts).Render(nil, d)
	assert.Contains(t, out, "goroutine 4 [chan receive]:")
	assert.Contains(t, out, "goroutine 5 [chan receive]:")
}

func TestXTraceback_HideRuntimeAndMaxFrames(t *testing.T) {
	d := &Dump{Goroutines: []Goroutine{{
		ID:    1,
		State: "running",
		Frames: []Frame{
			{Function: "runtime.gopark", File: "/x/proc.go", Line: 1},
			{Function: "main.a", File: "/x/a.go", Line: 1},
			{Function: "main.b", File: "/x/b.go", Line: 1},
			{Function: "main.c", File: "/x/c.go", Line: 1},
		},
	}}}

	opts := plainOptions()
	opts.HideRuntime = true
	opts.MaxFrames = 2
	out := New(opts).Render(nil, d)

	assert.NotContains(t, out, "runtime.gopark")
	assert.Contains(t, out, "in main.a")
	assert.Contains(t, out, "in main.b")
	assert.NotContains(t, out, "in main.c")
	assert.Contains(t, out, "... 1 more frames")
}

func TestXTraceback_RuntimeOnlyGoroutineKeepsFrames(t *testing.T) {
	d := &Dump{Goroutines: []Goroutine{{
		ID:     2,
		State:  "force gc (idle)",
		Frames: []Frame{{Function: "runtime.gopark", File: "/x/proc.go", Line: 1}},
	}}}
	opts := plainOptions()
	opts.HideRuntime = true
	assert.Contains(t, New(opts).Render(nil, d), "in runtime.gopark")
}

func TestXTraceback_ColorAlways(t *testing.T) {
	opts := plainOptions()
	opts.Color = ColorAlways
	d := &Dump{Goroutines: []Goroutine{{ID: 1, State: "running"}}}

	out := New(opts).Render("boom", d)
	assert.Contains(t, out, "\x1b[")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed") }

func TestXTraceback_WriteError(t *testing.T) {
	err := New(plainOptions()).Format(failingWriter{}, "boom", &Dump{})
	assert.Error(t, err)
}

func TestXTraceback_CapturedStack(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(plainOptions()).Format(&buf, "captured", Capture(false, 0)))

	out := buf.String()
	assert.Contains(t, out, "in github.com/fyrsmithlabs/xtraceback/pkg/traceback.TestXTraceback_CapturedStack")
	assert.Contains(t, out, "> ")
	assert.Contains(t, out, "Capture(false, 0)")
}

func TestPathShortener(t *testing.T) {
	s := &pathShortener{}
	s.add("/usr/local/go", "$GOROOT")
	s.add("/home/dev/go/pkg/mod", "$GOMODCACHE")
	s.add("/home/dev", "")

	assert.Equal(t, "$GOROOT/src/runtime/panic.go", s.shorten("/usr/local/go/src/runtime/panic.go"))
	assert.Equal(t, "$GOMODCACHE/github.com/a/b@v1.0.0/b.go", s.shorten("/home/dev/go/pkg/mod/github.com/a/b@v1.0.0/b.go"))
	assert.Equal(t, "app/main.go", s.shorten("/home/dev/app/main.go"))
	assert.Equal(t, "/opt/other.go", s.shorten("/opt/other.go"))
	assert.Equal(t, "/usr/local/gopher/x.go", s.shorten("/usr/local/gopher/x.go"))
}

func TestLineCache_Window(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "f.go")
	require.NoError(t, os.WriteFile(src, []byte("a\nb\nc\n"), 0o600))

	c := newLineCache()
	w := c.window(src, 1, 5)
	require.Len(t, w, 4)
	assert.Equal(t, sourceLine{Number: 1, Text: "a"}, w[0])

	assert.Nil(t, c.window(src, 10, 1))
	assert.Nil(t, c.window(filepath.Join(dir, "missing.go"), 1, 1))
}

func TestLineCache_EvictsLeastRecentlyUsed(t *testing.T) {
	dir := t.TempDir()
	paths := make([]string, maxCachedFiles+1)
	for i := range paths {
		paths[i] = filepath.Join(dir, fmt.Sprintf("f%d.go", i))
		require.NoError(t, os.WriteFile(paths[i], []byte("package f\n"), 0o600))
	}

	c := newLineCache()
	for _, p := range paths[:maxCachedFiles] {
		require.NotNil(t, c.load(p))
	}
	// Touch the oldest entry so the second one becomes the eviction candidate.
	require.NotNil(t, c.load(paths[0]))
	require.NotNil(t, c.load(paths[maxCachedFiles]))

	assert.Equal(t, maxCachedFiles, c.files.Len())
	assert.True(t, c.files.Contains(paths[0]))
	assert.False(t, c.files.Contains(paths[1]))

	// Unreadable files are remembered as nil.
	missing := filepath.Join(dir, "missing.go")
	assert.Nil(t, c.load(missing))
	lines, ok := c.files.Get(missing)
	assert.True(t, ok)
	assert.Nil(t, lines)
}
