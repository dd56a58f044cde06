package display

import "sync"

// Field is a user-editable single-line value, such as the option text box
// or the value of a file picker control.
type Field struct {
	mu    sync.Mutex
	value string
}

// NewField returns a Field holding value.
func NewField(value string) *Field {
	return &Field{value: value}
}

// Value returns the current value; a nil Field reads as "".
func (f *Field) Value() string {
	if f == nil {
		return ""
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

// Set replaces the current value.
func (f *Field) Set(value string) {
	if f == nil {
		return
	}
	f.mu.Lock()
	f.value = value
	f.mu.Unlock()
}
