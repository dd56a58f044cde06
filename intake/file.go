package intake

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
)

// File is a handle on user-supplied content: a name plus a way to read it.
type File struct {
	Name string
	Open func() (io.ReadCloser, error)
}

// Loaded is the decoded content of one File.
type Loaded struct {
	Name string
	Data []byte
}

// FromPath returns a File reading the host file at path, named by its base name.
func FromPath(path string) File {
	return File{
		Name: filepath.Base(path),
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}
}

// FromBytes returns a File over in-memory content.
func FromBytes(name string, data []byte) File {
	return File{
		Name: name,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}
