package main

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
)

const fakeUsage = "usage: romusage input_file.[map|noi|ihx|cdb|gb|gbc] [options]"

// fakeEngine stands in for a romusage machine. It reports the staged file
// it was given and the options preceding it.
type fakeEngine struct {
	mu     sync.Mutex
	staged map[string][]byte
	hosted int
	runs   [][]string
	dirs   []string

	// extra filler lines printed after the report.
	extra    int
	exitCode int
	mainErr  error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{staged: make(map[string][]byte)}
}

func (e *fakeEngine) SetHostedMode() {
	e.mu.Lock()
	e.hosted++
	e.mu.Unlock()
}

func (e *fakeEngine) Create(p string, data []byte, canRead, canWrite bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !canRead || !canWrite {
		return errors.New("staged files must be readable and writable")
	}
	e.staged[p] = data
	return nil
}

func (e *fakeEngine) Unlink(p string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.staged[p]; !ok {
		return fmt.Errorf("unlink %s: file not found", p)
	}
	delete(e.staged, p)
	return nil
}

func (e *fakeEngine) Main(ctx context.Context, dir string, args []string, print func(string)) (int, error) {
	e.mu.Lock()
	e.runs = append(e.runs, append([]string(nil), args...))
	e.dirs = append(e.dirs, dir)
	var data []byte
	var staged bool
	if len(args) > 0 && dir != "" {
		data, staged = e.staged[path.Join(dir, args[len(args)-1])]
	}
	extra := e.extra
	e.mu.Unlock()

	if len(args) == 1 && args[0] == "-h" {
		print(fakeUsage)
		return 0, nil
	}
	if !staged {
		print("romusage: no input file")
		return 1, nil
	}

	file := args[len(args)-1]
	print(fmt.Sprintf("report %s: %d bytes", path.Base(file), len(data)))
	print("options: " + strings.Join(args[:len(args)-1], " "))
	for i := 0; i < extra; i++ {
		print(fmt.Sprintf("line %d", i))
	}
	return e.exitCode, e.mainErr
}

func (e *fakeEngine) stagedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.staged)
}

func (e *fakeEngine) runDirs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.dirs...)
}

func (e *fakeEngine) runCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.runs)
}
