package display

import (
	"strings"
	"sync"
)

// HighlightClass marks a drop target while a drag hovers over it.
const HighlightClass = "dragdrop_ready"

// Element holds a whitespace-delimited class-name attribute.
type Element struct {
	mu        sync.Mutex
	className string
}

// NewElement returns an Element with the given class-name attribute.
func NewElement(className string) *Element {
	return &Element{className: className}
}

// ClassName returns the raw class-name attribute.
func (e *Element) ClassName() string {
	if e == nil {
		return ""
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.className
}

// HasClass reports whether cls is one of the element's class tokens.
func (e *Element) HasClass(cls string) bool {
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return hasToken(e.className, cls)
}

// AddClass adds cls unless it is already present.
func (e *Element) AddClass(cls string) {
	if e == nil || cls == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if hasToken(e.className, cls) {
		return
	}
	if e.className == "" {
		e.className = cls
		return
	}
	e.className += " " + cls
}

// RemoveClass removes every occurrence of cls. The attribute is left
// untouched when cls is absent.
func (e *Element) RemoveClass(cls string) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !hasToken(e.className, cls) {
		return
	}
	tokens := strings.Fields(e.className)
	kept := tokens[:0]
	for _, t := range tokens {
		if t != cls {
			kept = append(kept, t)
		}
	}
	e.className = strings.Join(kept, " ")
}

func hasToken(className, cls string) bool {
	for _, t := range strings.Fields(className) {
		if t == cls {
			return true
		}
	}
	return false
}
