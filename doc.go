// Package romdrop runs romusage, the Game Boy ROM usage reporter, on files
// a user hands over, inside a WebAssembly sandbox.
//
// # Overview
//
// A file arrives through a picker or a drop ([intake]), is staged into the
// sandbox filesystem under a unique path ([staging]) and romusage runs on
// it ([wasmhost]) with the user's option string. Every line romusage
// prints is appended to a text output area ([display]). The [bridge]
// package ties the steps together.
//
// # Basic Usage
//
//	host, _ := wasmhost.New(wasmhost.WithDiskCache())
//	defer host.Close()
//	store, _ := staging.NewTemp()
//	defer store.Close()
//
//	prog, _ := romusage.Load("romusage.wasm")
//	out := display.NewSurface()
//	b := bridge.New(host.NewMachine(prog, store), out, display.NewField("-g"))
//
//	in := intake.New(func(ctx context.Context, f intake.Loaded) {
//	    b.Invoke(ctx, bridge.Request{Name: f.Name, Data: f.Data})
//	    fmt.Print(out.Text())
//	})
//	in.Pick(ctx, &intake.PickEvent{Files: []intake.File{intake.FromPath("game.gb")}})
//	in.Wait()
//
// The romdrop command wraps the same flow as a CLI, a repl and an HTTP
// server; see cmd/romdrop.
package romdrop
