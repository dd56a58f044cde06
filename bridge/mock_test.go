package bridge

import (
	"context"
	"errors"
	"path"
	"strings"
	"sync"
)

// fakeEngine implements Engine in memory. Its program prints a header,
// the arguments it got and the staged content of its last argument.
type fakeEngine struct {
	mu       sync.Mutex
	files    map[string][]byte
	calls    []string
	hosted   int
	exitCode int
	mainErr  error
	dirs     []string
	run      func(ctx context.Context, args []string, print func(string)) (int, error)
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{files: make(map[string][]byte)}
}

func (f *fakeEngine) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeEngine) SetHostedMode() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hosted++
	f.record("hosted")
}

func (f *fakeEngine) Create(path string, data []byte, canRead, canWrite bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !canRead || !canWrite {
		return errors.New("expected read and write permission")
	}
	f.files[path] = append([]byte(nil), data...)
	f.record("create " + path)
	return nil
}

func (f *fakeEngine) Unlink(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("unlink " + path)
	if _, ok := f.files[path]; !ok {
		return errors.New("file not found: " + path)
	}
	delete(f.files, path)
	return nil
}

func (f *fakeEngine) Main(ctx context.Context, dir string, args []string, print func(string)) (int, error) {
	f.mu.Lock()
	f.record("main " + strings.Join(args, " "))
	f.dirs = append(f.dirs, dir)
	run := f.run
	var content []byte
	if len(args) > 0 && dir != "" {
		content = f.files[path.Join(dir, args[len(args)-1])]
	}
	f.mu.Unlock()

	if run != nil {
		return run(ctx, args, print)
	}
	print("romusage report")
	print("args: " + strings.Join(args, " "))
	if content != nil {
		print("data: " + string(content))
	}
	return f.exitCode, f.mainErr
}

func (f *fakeEngine) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeEngine) Staged() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.files)
}
