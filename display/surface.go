package display

import "sync"

// Op identifies the kind of write applied to a Surface.
type Op int

const (
	OpSet Op = iota
	OpPrepend
	OpAppend
)

func (o Op) String() string {
	switch o {
	case OpSet:
		return "set"
	case OpPrepend:
		return "prepend"
	case OpAppend:
		return "append"
	default:
		return "unknown"
	}
}

// Change describes one write to a Surface.
type Change struct {
	Op   Op
	Text string
}

// Surface is the single text output area. All writes are replace, prefix
// or suffix operations; a nil *Surface ignores every call.
type Surface struct {
	mu        sync.Mutex
	text      string
	observers map[int]func(Change)
	nextID    int
}

// NewSurface returns an empty Surface.
func NewSurface() *Surface {
	return &Surface{observers: make(map[int]func(Change))}
}

// SetText replaces the whole content.
func (s *Surface) SetText(text string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text = text
	s.notify(Change{Op: OpSet, Text: text})
}

// PrependText inserts text before the current content.
func (s *Surface) PrependText(text string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text = text + s.text
	s.notify(Change{Op: OpPrepend, Text: text})
}

// AppendText adds text after the current content.
func (s *Surface) AppendText(text string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text += text
	s.notify(Change{Op: OpAppend, Text: text})
}

// Text returns the current content.
func (s *Surface) Text() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text
}

// Observe registers fn to be called after every write, in write order.
// fn runs while the surface is locked and must not write back to it.
// The returned function removes the observer.
func (s *Surface) Observe(fn func(Change)) func() {
	if s == nil || fn == nil {
		return func() {}
	}
	s.mu.Lock()
	if s.observers == nil {
		s.observers = make(map[int]func(Change))
	}
	id := s.nextID
	s.nextID++
	s.observers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

func (s *Surface) notify(c Change) {
	for _, fn := range s.observers {
		fn(c)
	}
}
