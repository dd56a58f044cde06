// Package wasmhost runs precompiled WASI command modules for the bridge.
//
// # Overview
//
// A [Host] owns one wazero runtime with WASI preview1, an optional on-disk
// compilation cache and an in-memory LRU of compiled modules. A [Machine]
// binds one program to one staging store and implements bridge.Engine.
//
// # Basic Usage
//
//	host, err := wasmhost.New(wasmhost.WithDiskCache())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer host.Close()
//
//	store, _ := staging.NewTemp()
//	defer store.Close()
//
//	machine := host.NewMachine(romusage.New(wasm), store)
//	b := bridge.New(machine, surface, optionsField)
//
// # Runs
//
// Each Main call instantiates a fresh module with the request's staged
// directory mounted at "/" and no start functions. The program is given the
// bare file name, so it never sees the directory or another request's files. If hosted mode was requested and the program
// exports its hosted-mode function, that export is called first; then
// "_start" runs. Standard output is forwarded line by line; standard
// error goes to the host logger. A proc_exit becomes an exit code, never
// an error.
//
// Modules must be self-contained WASI builds (wasi-sdk, or Emscripten
// with STANDALONE_WASM) that export "_start".
package wasmhost

//go:generate env GOOS=wasip1 GOARCH=wasm go build -o testdata/echoargs.wasm ./testdata/echoargs
