package excepthook

import (
	"fmt"
	"os"

	"github.com/fyrsmithlabs/xtraceback/pkg/traceback"
)

// exit matches the status the runtime uses for an unrecovered panic.
var exit = func() { os.Exit(2) }

// PanicError is a recovered panic turned into an error by Recover.
type PanicError struct {
	Value any
	Dump  *traceback.Dump
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Present renders v through the installed hook with the stack of the
// calling goroutine, or of all goroutines when the traceback level asks
// for them.
func Present(v any) {
	present(v, 1)
}

func present(v any, skip int) *traceback.Dump {
	s := Current()
	d := traceback.Capture(wantsAll(s.Traceback), skip+1)
	d.TrimPanic()
	s.Hook(s.Output, v, d)
	return d
}

func wantsAll(level string) bool {
	switch level {
	case "all", "2", "system", "crash", "wer":
		return true
	}
	return false
}

// Handle renders a panic in progress through the installed hook and exits
// with status 2. It must be deferred directly:
//
//	func main() {
//	    defer excepthook.Handle()
//	    ...
//	}
//
// Handle does nothing when the goroutine is not panicking.
func Handle() {
	r := recover()
	if r == nil {
		return
	}
	present(r, 1)
	exit()
}

// Recover renders a panic in progress through the installed hook and
// stores it in *errp as a *PanicError. It must be deferred directly.
func Recover(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	d := present(r, 1)
	if errp != nil {
		*errp = &PanicError{Value: r, Dump: d}
	}
}

// Go runs fn in a new goroutine with Handle deferred.
func Go(fn func()) {
	go func() {
		defer Handle()
		fn()
	}()
}
