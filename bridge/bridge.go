package bridge

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"
)

// Engine is the embedded program as seen by the bridge.
type Engine interface {
	// SetHostedMode tells the program it runs inside a host rather than a
	// terminal. Calling it more than once has no further effect.
	SetHostedMode()

	// Create stages data at path in the program's filesystem, replacing
	// any existing entry.
	Create(path string, data []byte, canRead, canWrite bool) error

	// Unlink removes a staged file.
	Unlink(path string) error

	// Main runs the program's entry point to completion with the staged
	// directory dir as its filesystem root, or with no files when dir is
	// empty. Every line the program writes to standard output is passed to
	// print without its trailing newline.
	Main(ctx context.Context, dir string, args []string, print func(line string)) (exitCode int, err error)
}

// Surface receives the program output.
type Surface interface {
	SetText(text string)
	AppendText(text string)
}

// OptionSource supplies the user's free-form option string.
type OptionSource interface {
	Value() string
}

// Request is one file handed to the program.
type Request struct {
	// ID keeps this request's staged file apart from every other one.
	// Generated when empty.
	ID   string
	Name string
	Data []byte
}

// Result holds the outcome of one invocation.
type Result struct {
	Args       []string
	StagedPath string
	Output     string
	ExitCode   int
	Duration   time.Duration
	Error      error
}

// Bridge stages files into an Engine, runs it and forwards its output to a Surface.
type Bridge struct {
	engine  Engine
	surface Surface
	options OptionSource
	cfg     config
	mu      sync.Mutex
}

// New returns a Bridge writing to surface and reading options from options.
// Either may be nil: output is then dropped, and no options are passed.
func New(engine Engine, surface Surface, options OptionSource, opts ...Option) *Bridge {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Bridge{
		engine:  engine,
		surface: surface,
		options: options,
		cfg:     cfg,
	}
}

// Invoke runs the program on one file: clear the surface, build the
// arguments, set hosted mode, stage, run, unstage. The staged file is
// removed whatever the outcome of the run.
func (b *Bridge) Invoke(ctx context.Context, req Request) Result {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := time.Now()
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	b.setText("")

	id := req.ID
	if id == "" {
		id = b.cfg.idFunc()
	}
	staged := StagingPath(id, req.Name)

	var options string
	if b.options != nil {
		options = b.options.Value()
	}
	args := BuildArgs(options, path.Base(staged))

	result := Result{Args: args, StagedPath: staged}

	b.engine.SetHostedMode()

	if err := b.engine.Create(staged, req.Data, true, true); err != nil {
		result.Error = fmt.Errorf("stage %s: %w", req.Name, err)
		result.Duration = time.Since(start)
		return result
	}

	var out strings.Builder
	code, err := b.engine.Main(ctx, path.Dir(staged), args, b.printer(&out))

	unlinkErr := b.engine.Unlink(staged)

	result.Output = out.String()
	result.ExitCode = code
	result.Duration = time.Since(start)
	result.Error = b.runError(ctx, err)
	if unlinkErr != nil {
		result.Error = errors.Join(result.Error, fmt.Errorf("unstage %s: %w", req.Name, unlinkErr))
	}
	return result
}

// InvokeHelp clears the surface and runs the program with the help flag only.
func (b *Bridge) InvokeHelp(ctx context.Context) Result {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := time.Now()
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	b.setText("")

	args := []string{b.cfg.helpFlag}
	var out strings.Builder
	code, err := b.engine.Main(ctx, "", args, b.printer(&out))

	return Result{
		Args:     args,
		Output:   out.String(),
		ExitCode: code,
		Duration: time.Since(start),
		Error:    b.runError(ctx, err),
	}
}

func (b *Bridge) printer(out *strings.Builder) func(string) {
	return func(line string) {
		text := line + "\n"
		out.WriteString(text)
		if b.surface != nil {
			b.surface.AppendText(text)
		}
	}
}

func (b *Bridge) setText(text string) {
	if b.surface != nil {
		b.surface.SetText(text)
	}
}

func (b *Bridge) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.cfg.timeout > 0 {
		return context.WithTimeout(ctx, b.cfg.timeout)
	}
	return ctx, func() {}
}

func (b *Bridge) runError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && b.cfg.timeout > 0 {
		return fmt.Errorf("timeout after %v", b.cfg.timeout)
	}
	return fmt.Errorf("execution failed: %w", err)
}

// SplitOptions splits a user option string on spaces. Runs of spaces do
// not produce empty arguments; there is no quoting.
func SplitOptions(options string) []string {
	parts := strings.Split(options, " ")
	args := parts[:0]
	for _, p := range parts {
		if p != "" {
			args = append(args, p)
		}
	}
	return args
}

// BuildArgs returns the program arguments: the options first, filename last.
func BuildArgs(options, filename string) []string {
	return append(SplitOptions(options), filename)
}

// StagingPath returns the path a request's file is staged under: a
// directory of its own named by id, holding the original base name. The
// program is run inside that directory and sees only the base name.
func StagingPath(id, name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == ".." || base == "" {
		base = "input"
	}
	return id + "/" + base
}
