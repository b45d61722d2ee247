package traceback

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// pathPrefix maps a directory to the label shown in its place.
type pathPrefix struct {
	dir   string
	label string
}

// pathShortener rewrites absolute source paths into short, readable forms.
// Longer prefixes are tried first so a module cache inside GOPATH wins over
// GOPATH itself.
type pathShortener struct {
	prefixes []pathPrefix
}

func newPathShortener() *pathShortener {
	s := &pathShortener{}
	s.add(goroot(), "$GOROOT")
	s.add(gomodcache(), "$GOMODCACHE")
	if wd, err := os.Getwd(); err == nil {
		s.add(wd, "")
	}
	return s
}

func (s *pathShortener) add(dir, label string) {
	if dir == "" {
		return
	}
	dir = strings.TrimSuffix(filepath.ToSlash(filepath.Clean(dir)), "/")
	if dir == "" || dir == "." {
		return
	}
	s.prefixes = append(s.prefixes, pathPrefix{dir: dir, label: label})
	for i := len(s.prefixes) - 1; i > 0; i-- {
		if len(s.prefixes[i].dir) <= len(s.prefixes[i-1].dir) {
			break
		}
		s.prefixes[i], s.prefixes[i-1] = s.prefixes[i-1], s.prefixes[i]
	}
}

func (s *pathShortener) shorten(path string) string {
	for _, p := range s.prefixes {
		rest, ok := strings.CutPrefix(path, p.dir+"/")
		if !ok {
			continue
		}
		if p.label == "" {
			return rest
		}
		return p.label + "/" + rest
	}
	return path
}

func goroot() string {
	if v := os.Getenv("GOROOT"); v != "" {
		return v
	}
	return runtime.GOROOT() //nolint:staticcheck // best effort; empty with -trimpath
}

func gomodcache() string {
	if v := os.Getenv("GOMODCACHE"); v != "" {
		return v
	}
	gopath := os.Getenv("GOPATH")
	if gopath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		gopath = filepath.Join(home, "go")
	}
	if i := strings.IndexRune(gopath, os.PathListSeparator); i >= 0 {
		gopath = gopath[:i]
	}
	return filepath.Join(gopath, "pkg", "mod")
}
