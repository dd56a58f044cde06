// Package bridge hands loaded files to an embedded program and shows what
// it prints.
//
// # Overview
//
// A [Bridge] owns one output [Surface] and one [OptionSource]. For each
// [Request] it:
//
//  1. clears the surface
//  2. splits the option string on spaces and appends the staged filename
//  3. switches the [Engine] to hosted mode
//  4. stages the bytes under a per-request path
//  5. runs the program, appending every printed line (plus "\n") to the surface
//  6. unstages the file, whether or not the run succeeded
//
// # Basic Usage
//
//	out := display.NewSurface()
//	opts := display.NewField("-a")
//	b := bridge.New(machine, out, opts)
//
//	result := b.Invoke(ctx, bridge.Request{Name: "game.map", Data: data})
//	fmt.Print(out.Text())
//
// The program's exit code is reported in [Result] but never interpreted;
// the program explains its own failures through its output. Errors from
// the engine itself (staging failures, traps, timeouts) are returned in
// [Result.Error].
//
// InvokeHelp runs the program with "-h" and stages nothing.
package bridge
