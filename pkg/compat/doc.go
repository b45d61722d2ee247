// Package compat provides the scope guard that swaps panic presentation
// for a bounded region of code.
//
// Enter records the process-wide excepthook state and installs one that
// renders panics through a Formatter. Exit puts back exactly what Enter
// recorded. Run brackets a function with both and guarantees Exit even when
// the function panics.
//
//	guard := compat.New(traceback.New(traceback.DefaultOptions()),
//	    compat.WithTraceback("all"))
//	err := guard.Run(func() (err error) {
//	    defer excepthook.Recover(&err)
//	    return serve()
//	})
//
// Enter on an active guard fails with ErrAlreadyActive; Exit on an inactive
// guard fails with ErrNotActive. Restore failures are returned, wrapped in
// ErrRestoreFailed, never swallowed.
package compat
