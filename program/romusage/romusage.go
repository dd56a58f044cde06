// Package romusage provides the program descriptor for romusage, the
// Game Boy ROM and RAM usage reporter, built as a WASI command module.
package romusage

import (
	"fmt"
	"os"
)

const (
	// Name is argv[0] and the default program name.
	Name = "romusage"

	// HostedModeExport switches romusage to its web output mode.
	HostedModeExport = "set_option_is_web_mode"

	// HelpFlag makes romusage print its usage text.
	HelpFlag = "-h"
)

// Romusage implements program.Program for a romusage module.
type Romusage struct {
	module []byte
}

// New returns a descriptor for the given romusage module bytes.
func New(module []byte) *Romusage {
	return &Romusage{module: module}
}

// Load reads a romusage module from disk.
func Load(path string) (*Romusage, error) {
	module, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load romusage: %w", err)
	}
	return New(module), nil
}

// Name returns "romusage".
func (r *Romusage) Name() string {
	return Name
}

// Module returns the WASM binary.
func (r *Romusage) Module() []byte {
	return r.module
}

// Argv prefixes args with the program name.
func (r *Romusage) Argv(args []string) []string {
	return append([]string{Name}, args...)
}

// HostedModeExport returns "set_option_is_web_mode".
func (r *Romusage) HostedModeExport() string {
	return HostedModeExport
}
