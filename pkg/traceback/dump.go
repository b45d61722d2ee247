package traceback

import (
	"fmt"
	"strconv"
	"strings"
)

// Frame is a single call in a goroutine's stack.
type Frame struct {
	// Function is the fully qualified function name, e.g. "main.(*T).Run".
	Function string
	// Args is the raw argument text the runtime printed between the parens.
	// Empty for frames without an argument list (created-by frames).
	Args string
	File string
	Line int
}

// Package returns the import path portion of the function name.
func (f Frame) Package() string {
	name := f.Function
	slash := strings.LastIndex(name, "/")
	dot := strings.Index(name[slash+1:], ".")
	if dot < 0 {
		return ""
	}
	return name[:slash+1+dot]
}

// IsRuntime reports whether the frame belongs to the Go runtime.
func (f Frame) IsRuntime() bool {
	return f.Function == "panic" || f.Function == "goexit" ||
		strings.HasPrefix(f.Function, "runtime.")
}

// Location renders the frame as "file:line".
func (f Frame) Location() string {
	if f.File == "" {
		return "?"
	}
	return f.File + ":" + strconv.Itoa(f.Line)
}

// Goroutine is one goroutine block of a dump.
type Goroutine struct {
	ID int
	// State is the scheduler state, e.g. "running" or "chan receive".
	State string
	// Wait is how long the goroutine has been blocked, e.g. "5 minutes".
	Wait   string
	Locked bool
	Frames []Frame
	// Elided is set when the runtime truncated the stack.
	Elided    bool
	CreatedBy *Frame
	CreatorID int
}

// Dump is a parsed goroutine traceback.
type Dump struct {
	// Header holds the lines printed before the first goroutine, e.g.
	// "panic: boom". Empty for dumps taken with runtime.Stack.
	Header     string
	Goroutines []Goroutine
}

// Current returns the first goroutine, which is the one that captured or
// crashed the dump. Nil if the dump is empty.
func (d *Dump) Current() *Goroutine {
	if d == nil || len(d.Goroutines) == 0 {
		return nil
	}
	return &d.Goroutines[0]
}

// TrimPanic drops the frames of the current goroutine up to and including
// the runtime panic frame, so the stack starts at the function that panicked.
// It is a no-op if no panic frame is present.
func (d *Dump) TrimPanic() {
	g := d.Current()
	if g == nil {
		return
	}
	for i, f := range g.Frames {
		if f.Function == "panic" {
			g.Frames = g.Frames[i+1:]
			return
		}
	}
}

// String renders the dump in the format the Go runtime prints.
func (d *Dump) String() string {
	var b strings.Builder
	if d.Header != "" {
		b.WriteString(d.Header)
		b.WriteString("\n\n")
	}
	for i := range d.Goroutines {
		if i > 0 {
			b.WriteByte('\n')
		}
		g := &d.Goroutines[i]
		fmt.Fprintf(&b, "goroutine %d [%s]:\n", g.ID, g.status())
		for _, f := range g.Frames {
			fmt.Fprintf(&b, "%s(%s)\n", f.Function, f.Args)
			writeFileLine(&b, f)
		}
		if g.Elided {
			b.WriteString("...additional frames elided...\n")
		}
		if g.CreatedBy != nil {
			b.WriteString("created by " + g.CreatedBy.Function)
			if g.CreatorID != 0 {
				fmt.Fprintf(&b, " in goroutine %d", g.CreatorID)
			}
			b.WriteByte('\n')
			writeFileLine(&b, *g.CreatedBy)
		}
	}
	return b.String()
}

func (g *Goroutine) status() string {
	parts := []string{g.State}
	if g.Wait != "" {
		parts = append(parts, g.Wait)
	}
	if g.Locked {
		parts = append(parts, "locked to thread")
	}
	return strings.Join(parts, ", ")
}

func writeFileLine(b *strings.Builder, f Frame) {
	if f.File == "" {
		return
	}
	fmt.Fprintf(b, "\t%s:%d\n", f.File, f.Line)
}
