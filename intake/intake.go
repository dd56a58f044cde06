package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/caffeineduck/romdrop/display"
	"golang.org/x/sync/errgroup"
)

// ErrTooLarge is logged for files over the configured size limit.
var ErrTooLarge = errors.New("file too large")

// Handler receives each loaded file. Calls never overlap.
type Handler func(ctx context.Context, f Loaded)

// Option configures an Intake.
type Option func(*Intake)

// WithMaxFileSize skips files larger than size bytes. Zero means no limit.
func WithMaxFileSize(size int64) Option {
	return func(in *Intake) {
		in.maxFileSize = size
	}
}

// WithConcurrency bounds how many files are read at once.
func WithConcurrency(n int) Option {
	return func(in *Intake) {
		in.concurrency = n
	}
}

// WithLogger sets where read failures are logged.
func WithLogger(l *log.Logger) Option {
	return func(in *Intake) {
		if l != nil {
			in.logger = l
		}
	}
}

// WithReadSupport turns file reading on or off. With reading off every
// load is skipped without notice.
func WithReadSupport(supported bool) Option {
	return func(in *Intake) {
		in.supported = supported
	}
}

// Intake turns picked and dropped files into Loaded values for a Handler.
//
// Reads run concurrently; completions are dispatched one at a time in the
// order they finish.
type Intake struct {
	handler     Handler
	maxFileSize int64
	concurrency int
	supported   bool
	logger      *log.Logger

	reads    errgroup.Group
	dispatch sync.Mutex
}

// New returns an Intake delivering files to handler.
func New(handler Handler, opts ...Option) *Intake {
	in := &Intake{
		handler:   handler,
		supported: true,
		logger:    log.Default(),
	}
	for _, opt := range opts {
		opt(in)
	}
	if in.concurrency > 0 {
		in.reads.SetLimit(in.concurrency)
	}
	return in
}

// Load starts reading f. The handler runs once the read completes.
func (in *Intake) Load(ctx context.Context, f File) {
	if !in.supported || f.Open == nil {
		return
	}

	in.reads.Go(func() error {
		data, err := in.read(f)
		if err != nil {
			in.logger.Printf("intake: read %s: %v", f.Name, err)
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}

		in.dispatch.Lock()
		defer in.dispatch.Unlock()
		if in.handler != nil {
			in.handler(ctx, Loaded{Name: f.Name, Data: data})
		}
		return nil
	})
}

func (in *Intake) read(f File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var r io.Reader = rc
	if in.maxFileSize > 0 {
		r = io.LimitReader(rc, in.maxFileSize+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if in.maxFileSize > 0 && int64(len(data)) > in.maxFileSize {
		return nil, fmt.Errorf("%w (limit %d bytes)", ErrTooLarge, in.maxFileSize)
	}
	return data, nil
}

// Pick loads every file of a picker change and then resets the control
// so that choosing the same file again is seen as a new change.
func (in *Intake) Pick(ctx context.Context, ev *PickEvent) {
	for _, f := range ev.Files {
		in.Load(ctx, f)
	}
	ev.Control.Set("")
}

// Drop loads the dropped files and clears the hover highlight.
func (in *Intake) Drop(ctx context.Context, ev *DropEvent) {
	ev.PreventDefault()

	if dt := ev.DataTransfer; dt != nil {
		if dt.Items != nil {
			for _, item := range dt.Items {
				if f, ok := item.AsFile(); ok {
					in.Load(ctx, f)
				}
			}
		} else {
			for _, f := range dt.Files {
				in.Load(ctx, f)
			}
		}
	}

	ev.Target.RemoveClass(display.HighlightClass)
}

// DragOver highlights the drop target.
func (in *Intake) DragOver(ev *DragEvent) {
	ev.Target.AddClass(display.HighlightClass)
	ev.PreventDefault()
}

// DragLeave removes the highlight when the drag leaves or is cancelled.
func (in *Intake) DragLeave(ev *DragEvent) {
	ev.Target.RemoveClass(display.HighlightClass)
}

// Wait blocks until every started read and its handler call have finished.
func (in *Intake) Wait() {
	_ = in.reads.Wait()
}
