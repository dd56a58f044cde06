package wasmhost

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/caffeineduck/romdrop/program"
	"github.com/caffeineduck/romdrop/staging"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/sys"
)

const startFunction = "_start"

// Machine runs one program with a staging store as its filesystem. It
// implements bridge.Engine.
//
// Every Main call instantiates a fresh module, so no guest state survives
// between runs except the hosted-mode flag, which the Machine reapplies.
type Machine struct {
	host  *Host
	prog  program.Program
	store *staging.Store

	mu     sync.Mutex
	hosted bool
}

// SetHostedMode makes later runs call the program's hosted-mode export
// before its entry point.
func (m *Machine) SetHostedMode() {
	m.mu.Lock()
	m.hosted = true
	m.mu.Unlock()
}

// Create stages data at path in the store.
func (m *Machine) Create(path string, data []byte, canRead, canWrite bool) error {
	return m.store.Create(path, data, canRead, canWrite)
}

// Unlink removes a staged file.
func (m *Machine) Unlink(path string) error {
	return m.store.Unlink(path)
}

// Main instantiates the program and runs its entry point with args. The
// store directory dir is mounted as the program's filesystem root; with an
// empty dir the program sees no files. The returned exit code is whatever
// the program passed to proc_exit, or 0 if it returned normally.
func (m *Machine) Main(ctx context.Context, dir string, args []string, print func(line string)) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	fsConfig := wazero.NewFSConfig()
	if dir != "" {
		if entry, err := m.store.Stat(dir); err != nil || !entry.IsDir {
			return 0, fmt.Errorf("%s: no staged directory %s", m.prog.Name(), dir)
		}
		hostDir, err := m.store.HostPath(dir)
		if err != nil {
			return 0, err
		}
		fsConfig = fsConfig.WithDirMount(hostDir, "/")
	}

	compiled, err := m.host.Compile(ctx, m.prog)
	if err != nil {
		return 0, err
	}

	stdout := newLineWriter(print)
	stderr := newLineWriter(func(line string) {
		m.host.logger.Printf("%s: %s", m.prog.Name(), line)
	})
	defer stderr.Flush()
	defer stdout.Flush()

	moduleConfig := wazero.NewModuleConfig().
		WithStdout(stdout).
		WithStderr(stderr).
		WithArgs(m.prog.Argv(args)...).
		WithFSConfig(fsConfig).
		WithStartFunctions().
		WithName("")

	mod, err := m.host.runtime.InstantiateModule(ctx, compiled, moduleConfig)
	if err != nil {
		return m.exitStatus(ctx, fmt.Errorf("instantiate %s: %w", m.prog.Name(), err))
	}
	defer mod.Close(context.Background())

	m.mu.Lock()
	hosted := m.hosted
	m.mu.Unlock()

	if export := m.prog.HostedModeExport(); hosted && export != "" {
		if fn := mod.ExportedFunction(export); fn != nil {
			if _, err := fn.Call(ctx); err != nil {
				return m.exitStatus(ctx, fmt.Errorf("call %s: %w", export, err))
			}
		} else {
			m.host.logger.Printf("%s: no %s export, running without hosted mode", m.prog.Name(), export)
		}
	}

	start := mod.ExportedFunction(startFunction)
	if start == nil {
		return 0, fmt.Errorf("%s: module has no %s export", m.prog.Name(), startFunction)
	}

	_, err = start.Call(ctx)
	return m.exitStatus(ctx, err)
}

// exitStatus turns a proc_exit into an exit code and a context expiry
// into an error.
func (m *Machine) exitStatus(ctx context.Context, err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return 0, ctxErr
	}
	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) {
		return int(exitErr.ExitCode()), nil
	}
	return 0, err
}
