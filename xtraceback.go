// Package xtraceback renders Go panics as readable, source-annotated
// tracebacks and lets callers scope that presentation to a region of code.
//
// The package-level functions operate on one guard owned by this package:
//
//	if err := xtraceback.Enter(); err != nil {
//	    return err
//	}
//	defer xtraceback.Exit(nil)
//
// or, equivalently,
//
//	err := xtraceback.Run(serve)
//
// Programs that need more than one guard, or different rendering options,
// construct their own with compat.New.
package xtraceback

import (
	"sync"

	"github.com/fyrsmithlabs/xtraceback/pkg/compat"
	"github.com/fyrsmithlabs/xtraceback/pkg/traceback"
)

// Version is the release of this module.
const Version = "0.3.4"

var (
	defaultOnce  sync.Once
	defaultGuard *compat.Compat
)

// Default returns the guard used by Enter, Exit and Run.
func Default() *compat.Compat {
	defaultOnce.Do(func() {
		defaultGuard = compat.New(traceback.New(traceback.DefaultOptions()))
	})
	return defaultGuard
}

// Enter activates the default guard. See compat.Compat.Enter.
func Enter() error {
	return Default().Enter()
}

// Exit deactivates the default guard. See compat.Compat.Exit.
func Exit(cause error) error {
	return Default().Exit(cause)
}

// Run calls fn inside a scope of the default guard. See compat.Compat.Run.
func Run(fn func() error) error {
	return Default().Run(fn)
}
