// Package program describes the precompiled WASI programs romdrop can run.
package program

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Program defines a WASI command module and how to call it.
type Program interface {
	// Name returns a unique identifier (e.g., "romusage").
	// Used as argv[0] and as part of the compilation cache key.
	Name() string

	// Module returns the WASM binary.
	Module() []byte

	// Argv returns the full argument vector for the given arguments,
	// including the program name as argv[0].
	Argv(args []string) []string

	// HostedModeExport names the zero-argument export that switches the
	// program into hosted mode, or "" if it has none.
	HostedModeExport() string
}

// Static is a Program backed by an in-memory module.
type Static struct {
	name   string
	module []byte
	export string
}

// New returns a Program with the given name, module bytes and hosted-mode export.
func New(name string, module []byte, hostedExport string) *Static {
	return &Static{name: name, module: module, export: hostedExport}
}

// FromFile loads a module from disk. An empty name defaults to the file's
// base name without extension.
func FromFile(name, path, hostedExport string) (*Static, error) {
	module, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load program: %w", err)
	}
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return New(name, module, hostedExport), nil
}

func (p *Static) Name() string {
	return p.name
}

func (p *Static) Module() []byte {
	return p.module
}

func (p *Static) Argv(args []string) []string {
	argv := make([]string, 0, len(args)+1)
	argv = append(argv, p.name)
	return append(argv, args...)
}

func (p *Static) HostedModeExport() string {
	return p.export
}
