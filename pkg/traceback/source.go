package traceback

import (
	"bytes"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	maxCachedFiles  = 64
	maxSourceSize   = 1 << 20 // 1MB
	sourceTabString = "    "
)

// sourceLine is one numbered line of a source file.
type sourceLine struct {
	Number int
	Text   string
}

// lineCache keeps the lines of recently read source files, evicting the
// least recently used. Files that cannot be read are cached as nil so the
// filesystem is hit once per path.
type lineCache struct {
	files *lru.Cache[string, []string]
}

func newLineCache() *lineCache {
	// New only fails for a non-positive size.
	files, _ := lru.New[string, []string](maxCachedFiles)
	return &lineCache{files: files}
}

// window returns the lines in [line-context, line+context], clamped to the
// file. Returns nil when the file is unavailable or line is out of range.
func (c *lineCache) window(path string, line, context int) []sourceLine {
	lines := c.load(path)
	if line < 1 || line > len(lines) {
		return nil
	}
	if context < 0 {
		context = 0
	}
	start := max(line-context, 1)
	end := min(line+context, len(lines))

	out := make([]sourceLine, 0, end-start+1)
	for n := start; n <= end; n++ {
		out = append(out, sourceLine{Number: n, Text: lines[n-1]})
	}
	return out
}

func (c *lineCache) load(path string) []string {
	if lines, ok := c.files.Get(path); ok {
		return lines
	}
	lines := readLines(path)
	c.files.Add(path, lines)
	return lines
}

func readLines(path string) []string {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() || info.Size() > maxSourceSize {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	data = bytes.ReplaceAll(data, []byte("\t"), []byte(sourceTabString))
	raw := bytes.Split(data, []byte("\n"))
	lines := make([]string, len(raw))
	for i, l := range raw {
		lines[i] = string(bytes.TrimRight(l, "\r"))
	}
	return lines
}
