package intake

import (
	"sync"

	"github.com/caffeineduck/romdrop/display"
)

// Event carries the default-action state shared by all intake events.
type Event struct {
	mu        sync.Mutex
	prevented bool
}

// PreventDefault suppresses the default action, such as navigating to a
// dropped file.
func (e *Event) PreventDefault() {
	e.mu.Lock()
	e.prevented = true
	e.mu.Unlock()
}

// DefaultPrevented reports whether PreventDefault was called.
func (e *Event) DefaultPrevented() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.prevented
}

// PickEvent is a change of a multi-select file picker.
type PickEvent struct {
	Event
	// Control is the picker's value; it is reset after the files are read
	// so that picking the same file again fires a new event.
	Control *display.Field
	Files   []File
}

// ItemKindFile marks a DataTransfer item that holds a file.
const ItemKindFile = "file"

// Item is one entry of a drop's item list.
type Item struct {
	Kind string
	File File
}

// AsFile returns the item's file, or false if it is not a file item.
func (it Item) AsFile() (File, bool) {
	if it.Kind != ItemKindFile {
		return File{}, false
	}
	return it.File, true
}

// DataTransfer is the payload of a drop. A nil Items selects the legacy
// file-list form.
type DataTransfer struct {
	Items []Item
	Files []File
}

// DropEvent is a drop onto the drop target.
type DropEvent struct {
	Event
	Target       *display.Element
	DataTransfer *DataTransfer
}

// DragEvent is a drag entering, hovering over or leaving the drop target.
type DragEvent struct {
	Event
	Target *display.Element
}
