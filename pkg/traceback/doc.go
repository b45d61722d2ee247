// Package traceback captures, parses and renders Go goroutine dumps.
//
// # Overview
//
// A Dump is the structured form of the text the Go runtime prints when a
// program crashes, or that runtime.Stack returns. Parse reads that text;
// Capture takes a fresh one from the running program.
//
// XTraceback renders a panic value and its dump with:
//   - shortened paths ($GOROOT, $GOMODCACHE, working directory)
//   - source lines around each frame, the failing line marked with ">"
//   - optional colour through lipgloss
//   - compaction of goroutines that share an identical stack
//
// # Usage
//
//	x := traceback.New(traceback.DefaultOptions())
//	d := traceback.Capture(false, 0)
//	x.Format(os.Stderr, "boom", d)
//
// Reformat a crash log:
//
//	d, err := traceback.Parse(f)
//	if err != nil {
//	    return err
//	}
//	fmt.Print(x.Render(nil, d))
//
// Output looks like:
//
//	panic: boom
//
//	goroutine 1 [running]: (most recent call first)
//	  File "main.go", line 12, in main.main
//	      11 |     x := load()
//	    > 12 |     panic("boom")
//	      13 | }
package traceback
