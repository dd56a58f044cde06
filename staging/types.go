package staging

import "io/fs"

// Entry describes a file or directory in a Store.
type Entry struct {
	Name    string      `json:"name"`
	Size    int64       `json:"size"`
	IsDir   bool        `json:"is_dir"`
	Mode    fs.FileMode `json:"mode"`
	ModTime int64       `json:"mod_time"`
}
