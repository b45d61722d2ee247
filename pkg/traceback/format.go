package traceback

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/maruel/panicparse/v2/stack"
	"github.com/muesli/termenv"
)

// ColorMode selects when rendered output carries ANSI styling.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"
	ColorAlways ColorMode = "always"
	ColorNever  ColorMode = "never"
)

// Options controls how an XTraceback renders a dump.
type Options struct {
	Color ColorMode
	// ShortenPaths rewrites GOROOT, module cache and working directory
	// prefixes into short labels.
	ShortenPaths bool
	// Context is the number of source lines shown on each side of the
	// failing line.
	Context int
	// NoSource disables source lines entirely.
	NoSource bool
	// HideRuntime drops runtime frames unless a goroutine has nothing else.
	HideRuntime bool
	// Compact merges goroutines whose stacks are identical.
	Compact bool
	// MaxFrames limits frames per goroutine; 0 means unlimited.
	MaxFrames int
}

// DefaultOptions returns the options used by the package-level guard.
func DefaultOptions() Options {
	return Options{
		Color:        ColorAuto,
		ShortenPaths: true,
		Context:      2,
		Compact:      true,
	}
}

// XTraceback renders panics and goroutine dumps in an extended, readable
// form: shortened paths, source context around each frame and optional
// colour. It is safe for concurrent use.
type XTraceback struct {
	opts   Options
	paths  *pathShortener
	source *lineCache
}

// New creates a formatter with the given options.
func New(opts Options) *XTraceback {
	if opts.Color == "" {
		opts.Color = ColorAuto
	}
	return &XTraceback{
		opts:   opts,
		paths:  newPathShortener(),
		source: newLineCache(),
	}
}

// Options returns the formatter's options.
func (x *XTraceback) Options() Options {
	return x.opts
}

// Render formats v and d into a string.
func (x *XTraceback) Render(v any, d *Dump) string {
	var buf bytes.Buffer
	_ = x.Format(&buf, v, d)
	return buf.String()
}

// Format writes the rendered panic value and dump to w. A nil v falls back
// to the dump header.
func (x *XTraceback) Format(w io.Writer, v any, d *Dump) error {
	st := newStyles(w, x.opts.Color)
	var b strings.Builder

	header := ""
	if v != nil {
		header = "panic: " + fmt.Sprint(v)
	} else if d != nil {
		header = d.Header
	}
	if header != "" {
		for _, l := range strings.Split(header, "\n") {
			b.WriteString(st.header.Render(l))
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}

	if d != nil {
		x.writeGoroutines(&b, st, d)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func (x *XTraceback) writeGoroutines(b *strings.Builder, st styles, d *Dump) {
	groups := x.group(d.Goroutines)
	for i, grp := range groups {
		if i > 0 {
			b.WriteByte('\n')
		}
		g := grp[0]
		b.WriteString(st.goroutine.Render(goroutineTitle(grp)))
		b.WriteString(st.dim.Render(" (most recent call first)"))
		b.WriteByte('\n')

		frames := x.visibleFrames(g.Frames)
		hidden := 0
		if x.opts.MaxFrames > 0 && len(frames) > x.opts.MaxFrames {
			hidden = len(frames) - x.opts.MaxFrames
			frames = frames[:x.opts.MaxFrames]
		}
		for _, f := range frames {
			x.writeFrame(b, st, f)
		}
		if hidden > 0 {
			fmt.Fprintf(b, "  %s\n", st.dim.Render("... "+strconv.Itoa(hidden)+" more frames"))
		}
		if g.Elided {
			fmt.Fprintf(b, "  %s\n", st.dim.Render("... additional frames elided"))
		}
		if g.CreatedBy != nil {
			created := "created by " + g.CreatedBy.Function
			if g.CreatorID != 0 {
				created += " in goroutine " + strconv.Itoa(g.CreatorID)
			}
			fmt.Fprintf(b, "  %s\n", st.dim.Render(created))
			x.writeLocation(b, st, *g.CreatedBy)
		}
	}
}

func (x *XTraceback) writeFrame(b *strings.Builder, st styles, f Frame) {
	x.writeLocation(b, st, f)
	if x.opts.NoSource || f.File == "" {
		return
	}
	window := x.source.window(f.File, f.Line, x.opts.Context)
	width := 0
	if len(window) > 0 {
		width = len(strconv.Itoa(window[len(window)-1].Number))
	}
	for _, l := range window {
		num := fmt.Sprintf("%*d", width, l.Number)
		if l.Number == f.Line {
			fmt.Fprintf(b, "    %s %s %s\n", st.marker.Render(">"), st.marker.Render(num), st.current.Render(l.Text))
			continue
		}
		fmt.Fprintf(b, "      %s %s\n", st.dim.Render(num), st.dim.Render(l.Text))
	}
}

func (x *XTraceback) writeLocation(b *strings.Builder, st styles, f Frame) {
	file := f.File
	if file == "" {
		file = "?"
	} else if x.opts.ShortenPaths {
		file = x.paths.shorten(file)
	}
	fmt.Fprintf(b, "  File %s, line %s, in %s\n",
		st.file.Render(strconv.Quote(file)),
		st.line.Render(strconv.Itoa(f.Line)),
		st.function.Render(f.Function))
}

func (x *XTraceback) visibleFrames(frames []Frame) []Frame {
	if !x.opts.HideRuntime {
		return frames
	}
	out := make([]Frame, 0, len(frames))
	for _, f := range frames {
		if !f.IsRuntime() {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return frames
	}
	return out
}

// group buckets goroutines with identical stacks when compaction is on,
// keeping first-seen order.
func (x *XTraceback) group(gs []Goroutine) [][]Goroutine {
	if !x.opts.Compact {
		out := make([][]Goroutine, len(gs))
		for i, g := range gs {
			out[i] = []Goroutine{g}
		}
		return out
	}

	// Buckets carry slice indexes as goroutine IDs.
	snap := &stack.Snapshot{Goroutines: make([]*stack.Goroutine, len(gs))}
	for i := range gs {
		snap.Goroutines[i] = toSnapshot(i, &gs[i])
	}
	buckets := snap.Aggregate(stack.ExactLines).Buckets

	idx := make([][]int, len(buckets))
	for i, b := range buckets {
		idx[i] = append([]int(nil), b.IDs...)
		sort.Ints(idx[i])
	}
	sort.Slice(idx, func(i, j int) bool { return idx[i][0] < idx[j][0] })

	out := make([][]Goroutine, len(idx))
	for i, ids := range idx {
		out[i] = make([]Goroutine, len(ids))
		for j, id := range ids {
			out[i][j] = gs[id]
		}
	}
	return out
}

// toSnapshot converts g for aggregation. Arguments are left out so
// goroutines parked at the same lines compare equal.
func toSnapshot(id int, g *Goroutine) *stack.Goroutine {
	sg := &stack.Goroutine{ID: id}
	sg.State = g.State
	sg.Locked = g.Locked
	sg.Stack.Elided = g.Elided
	sg.Stack.Calls = make([]stack.Call, len(g.Frames))
	for i, f := range g.Frames {
		sg.Stack.Calls[i] = toCall(f)
	}
	if g.CreatedBy != nil {
		sg.CreatedBy.Calls = []stack.Call{toCall(*g.CreatedBy)}
	}
	return sg
}

func toCall(f Frame) stack.Call {
	return stack.Call{
		Func:          stack.Func{Complete: f.Function},
		RemoteSrcPath: f.File,
		Line:          f.Line,
	}
}

func goroutineTitle(grp []Goroutine) string {
	g := grp[0]
	if len(grp) == 1 {
		return fmt.Sprintf("goroutine %d [%s]:", g.ID, g.status())
	}
	ids := make([]string, len(grp))
	for i, gg := range grp {
		ids[i] = strconv.Itoa(gg.ID)
	}
	return fmt.Sprintf("%d goroutines %s [%s]:", len(grp), strings.Join(ids, ", "), g.State)
}

type styles struct {
	header    lipgloss.Style
	goroutine lipgloss.Style
	file      lipgloss.Style
	line      lipgloss.Style
	function  lipgloss.Style
	marker    lipgloss.Style
	current   lipgloss.Style
	dim       lipgloss.Style
}

func newStyles(w io.Writer, mode ColorMode) styles {
	r := lipgloss.NewRenderer(w)
	switch mode {
	case ColorAlways:
		r.SetColorProfile(termenv.ANSI256)
	case ColorNever:
		r.SetColorProfile(termenv.Ascii)
	}
	return styles{
		header:    r.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		goroutine: r.NewStyle().Foreground(lipgloss.Color("51")).Bold(true),
		file:      r.NewStyle().Foreground(lipgloss.Color("45")),
		line:      r.NewStyle().Foreground(lipgloss.Color("231")).Bold(true),
		function:  r.NewStyle().Foreground(lipgloss.Color("226")),
		marker:    r.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		current:   r.NewStyle().Foreground(lipgloss.Color("231")),
		dim:       r.NewStyle().Foreground(lipgloss.Color("245")),
	}
}
