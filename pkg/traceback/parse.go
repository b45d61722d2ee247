package traceback

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"github.com/maruel/panicparse/v2/stack"
)

// ErrNoGoroutines is returned when the input holds no goroutine blocks.
var ErrNoGoroutines = errors.New("traceback: no goroutines found")

// Crash logs written under GOTRACEBACK=system or crash carry extra fields
// that runtime.Stack never prints. They are rewritten to the plain form
// before the dump is scanned.
var (
	// goroutine 1 gp=0xc000002380 m=0 mp=0x5a6b40 [running]:
	systemHeader = regexp.MustCompile(`^goroutine (\d+) [^\[]+(\[.*\]:)$`)
	// goroutine 18 [chan receive]:
	plainHeader = regexp.MustCompile(`^goroutine (\d+) \[`)
	// \t/src/app/main.go:12 +0x25 fp=0xc000067f50 sp=0xc000067f30 pc=0x4a1b25
	frameRegisters = regexp.MustCompile(`^(\t.+:\d+(?: \+0x[0-9a-fA-F]+)?)(?: [a-z]+=0x[0-9a-fA-F]+)+$`)
	// created by main.main in goroutine 1
	creatorGoroutine = regexp.MustCompile(`^(created by .+) in goroutine (\d+)$`)
)

// ParseString parses a goroutine dump held in s.
func ParseString(s string) (*Dump, error) {
	return Parse(strings.NewReader(s))
}

// Parse reads goroutine dump text as printed by the Go runtime on a crash or
// returned by runtime.Stack. Lines before the first goroutine header become
// the dump header; lines after the dump ends are ignored.
func Parse(r io.Reader) (*Dump, error) {
	in, creators, err := canonicalize(r)
	if err != nil {
		return nil, err
	}

	var prefix bytes.Buffer
	snap, _, err := stack.ScanSnapshot(in, &prefix, scanOpts())
	if snap == nil {
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("traceback: scan dump: %w", err)
		}
		return nil, ErrNoGoroutines
	}
	if len(snap.Goroutines) == 0 {
		return nil, ErrNoGoroutines
	}

	d := &Dump{
		Header:     strings.TrimSpace(prefix.String()),
		Goroutines: make([]Goroutine, 0, len(snap.Goroutines)),
	}
	for _, g := range snap.Goroutines {
		d.Goroutines = append(d.Goroutines, fromSnapshot(g, creators[g.ID]))
	}
	return d, nil
}

// scanOpts keeps scanning offline: paths are reported as printed and
// sources are read only by the formatter.
func scanOpts() *stack.Opts {
	opts := stack.DefaultOpts()
	opts.NameArguments = false
	opts.GuessPaths = false
	opts.AnalyzeSources = false
	return opts
}

// canonicalize rewrites system-level crash log lines to the runtime.Stack
// form and records "in goroutine N" creator IDs, which it strips.
func canonicalize(r io.Reader) (io.Reader, map[int]int, error) {
	var out bytes.Buffer
	creators := make(map[int]int)
	current := 0

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")

		if m := systemHeader.FindStringSubmatch(line); m != nil {
			line = "goroutine " + m[1] + " " + m[2]
		}
		if m := plainHeader.FindStringSubmatch(line); m != nil {
			current, _ = strconv.Atoi(m[1])
		} else if m := frameRegisters.FindStringSubmatch(line); m != nil {
			line = m[1]
		} else if m := creatorGoroutine.FindStringSubmatch(line); m != nil {
			creators[current], _ = strconv.Atoi(m[2])
			line = m[1]
		}

		out.WriteString(line)
		out.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("traceback: read dump: %w", err)
	}
	return &out, creators, nil
}

func fromSnapshot(g *stack.Goroutine, creator int) Goroutine {
	out := Goroutine{
		ID:        g.ID,
		State:     g.State,
		Locked:    g.Locked,
		Elided:    g.Stack.Elided,
		CreatorID: creator,
		Frames:    make([]Frame, 0, len(g.Stack.Calls)),
	}
	if g.SleepMax > 0 {
		out.Wait = strconv.Itoa(g.SleepMin) + " minutes"
	}
	for i := range g.Stack.Calls {
		out.Frames = append(out.Frames, fromCall(&g.Stack.Calls[i]))
	}
	if len(g.CreatedBy.Calls) > 0 {
		f := fromCall(&g.CreatedBy.Calls[0])
		f.Args = ""
		out.CreatedBy = &f
	}
	return out
}

func fromCall(c *stack.Call) Frame {
	return Frame{
		Function: c.Func.Complete,
		Args:     c.Args.String(),
		File:     c.RemoteSrcPath,
		Line:     c.Line,
	}
}

// Capture records the stack of the calling goroutine, or of every goroutine
// when all is set. The calling goroutine is always first. skip drops that
// many frames above the caller of Capture.
func Capture(all bool, skip int) *Dump {
	buf := make([]byte, 16*1024)
	for {
		n := runtime.Stack(buf, all)
		if n < len(buf) {
			buf = buf[:n]
			break
		}
		buf = make([]byte, 2*len(buf))
	}
	d, err := Parse(bytes.NewReader(buf))
	if err != nil {
		return &Dump{}
	}
	g := d.Current()
	drop := skip + 1
	if drop > len(g.Frames) {
		drop = len(g.Frames)
	}
	g.Frames = g.Frames[drop:]
	return d
}
