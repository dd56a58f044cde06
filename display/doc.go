// Package display holds the host-side stand-ins for the page elements the
// analysis output is shown on.
//
// A [Surface] is the text output area, an [Element] carries a class-name
// attribute used for drag-hover highlighting, and a [Field] is a
// user-editable value such as the option text box.
//
// Every operation tolerates a nil receiver and does nothing, so callers
// never have to check whether a given element exists:
//
//	var out *display.Surface // not wired
//	out.AppendText("ignored")
//
// Renderers follow a surface through [Surface.Observe]:
//
//	cancel := out.Observe(func(c display.Change) {
//	    fmt.Print(c.Text)
//	})
//	defer cancel()
package display
