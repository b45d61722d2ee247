// Package excepthook holds the process-wide panic presentation state.
//
// Go has no interpreter-level exception hook, so this package provides one:
// code that wants panics rendered through the installed hook defers Handle
// (crash the process) or Recover (convert to an error). The state also
// carries the runtime traceback level and crash output file, so swapping a
// State swaps every knob that decides how a panic looks.
package excepthook

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"runtime/debug"
	"sync"

	"github.com/fyrsmithlabs/xtraceback/pkg/traceback"
)

// ErrInvalidTraceback is returned by Install for an unknown traceback level.
var ErrInvalidTraceback = errors.New("excepthook: invalid traceback level")

// Hook renders a panic value and its goroutine dump to w.
type Hook func(w io.Writer, v any, d *traceback.Dump)

// State is the complete presentation behavior.
type State struct {
	Hook   Hook
	Output io.Writer
	// Traceback is the runtime traceback level, as accepted by GOTRACEBACK.
	// The runtime never lowers the level below the GOTRACEBACK environment
	// setting.
	Traceback string
	// CrashOutput additionally receives fatal runtime crash reports. Nil
	// means stderr only.
	CrashOutput *os.File
}

// Same reports whether s and o describe the same presentation behavior.
func (s State) Same(o State) bool {
	return sameFunc(s.Hook, o.Hook) &&
		sameWriter(s.Output, o.Output) &&
		s.Traceback == o.Traceback &&
		s.CrashOutput == o.CrashOutput
}

func sameFunc(a, b Hook) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}

func sameWriter(a, b io.Writer) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

var validLevels = map[string]bool{
	"none": true, "0": true,
	"single": true, "1": true,
	"all": true, "2": true,
	"system": true, "crash": true, "wer": true,
}

// Runtime setters, swapped in tests.
var (
	setTraceback   = debug.SetTraceback
	setCrashOutput = func(f *os.File) error {
		return debug.SetCrashOutput(f, debug.CrashOptions{})
	}
)

var (
	mu      sync.RWMutex
	current = initialState()
)

func initialState() State {
	return State{
		Hook:      DefaultHook,
		Output:    os.Stderr,
		Traceback: envTraceback(),
	}
}

func envTraceback() string {
	if v := os.Getenv("GOTRACEBACK"); validLevels[v] {
		return v
	}
	return "single"
}

// Current returns the installed presentation state.
func Current() State {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Install replaces the presentation state and returns the previous one.
// Nil Hook and Output select DefaultHook and os.Stderr; an empty Traceback
// selects the GOTRACEBACK default.
//
// The hook, output and level are always swapped. An error from the runtime
// crash output setter is returned after the swap, so the caller still holds
// the previous state and can reinstall it.
func Install(s State) (State, error) {
	if s.Hook == nil {
		s.Hook = DefaultHook
	}
	if s.Output == nil {
		s.Output = os.Stderr
	}
	if s.Traceback == "" {
		s.Traceback = envTraceback()
	}
	if !validLevels[s.Traceback] {
		return Current(), fmt.Errorf("%w: %q", ErrInvalidTraceback, s.Traceback)
	}

	mu.Lock()
	defer mu.Unlock()

	prev := current
	current = s
	if s.Traceback != prev.Traceback {
		setTraceback(s.Traceback)
	}
	if s.CrashOutput != prev.CrashOutput {
		if err := setCrashOutput(s.CrashOutput); err != nil {
			current.CrashOutput = prev.CrashOutput
			return prev, fmt.Errorf("excepthook: set crash output: %w", err)
		}
	}
	return prev, nil
}

// DefaultHook renders a panic the way the Go runtime does.
func DefaultHook(w io.Writer, v any, d *traceback.Dump) {
	fmt.Fprintf(w, "panic: %v\n\n", v)
	if d != nil {
		io.WriteString(w, d.String())
	}
}
