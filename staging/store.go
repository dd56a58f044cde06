package staging

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrEscape is returned for paths that resolve outside the store root.
	ErrEscape = errors.New("permission denied: path escape attempt")
	// ErrTooLarge is returned when staged content exceeds the size limit.
	ErrTooLarge = errors.New("content too large")
	// ErrPathTooLong is returned when a path exceeds the length limit.
	ErrPathTooLong = errors.New("path too long")
)

var writeFile = (*os.File).Write

const (
	DefaultMaxFileSize   int64 = 64 * 1024 * 1024
	DefaultMaxPathLength       = 4096
)

// Store is a host directory that guests see as their filesystem root.
type Store struct {
	root          string
	owned         bool
	maxFileSize   int64
	maxPathLength int
	mu            sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithMaxFileSize limits the size of a single staged file.
func WithMaxFileSize(size int64) Option {
	return func(s *Store) {
		s.maxFileSize = size
	}
}

// WithMaxPathLength limits the length of store-relative paths.
func WithMaxPathLength(length int) Option {
	return func(s *Store) {
		s.maxPathLength = length
	}
}

// New returns a Store rooted at dir, creating it if needed.
func New(dir string, opts ...Option) (*Store, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve staging root: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create staging root: %w", err)
	}
	return newStore(root, false, opts), nil
}

// NewTemp returns a Store rooted at a fresh temporary directory that is
// removed again by Close.
func NewTemp(opts ...Option) (*Store, error) {
	dir, err := os.MkdirTemp("", "romdrop-stage-")
	if err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return newStore(dir, true, opts), nil
}

func newStore(root string, owned bool, opts []Option) *Store {
	s := &Store{
		root:          root,
		owned:         owned,
		maxFileSize:   DefaultMaxFileSize,
		maxPathLength: DefaultMaxPathLength,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root returns the absolute host directory backing the store.
func (s *Store) Root() string {
	return s.root
}

// resolve maps a store-relative path to a host path inside the root.
func (s *Store) resolve(p string) (string, error) {
	if s.maxPathLength > 0 && len(p) > s.maxPathLength {
		return "", ErrPathTooLong
	}
	clean := filepath.Clean("/" + strings.TrimPrefix(filepath.ToSlash(p), "/"))
	if clean == "/" {
		return "", errors.New("path required")
	}

	hostPath := filepath.Join(s.root, filepath.FromSlash(clean))
	abs, err := filepath.Abs(hostPath)
	if err != nil {
		return "", errors.New("invalid path")
	}
	if abs != s.root && !strings.HasPrefix(abs, s.root+string(filepath.Separator)) {
		return "", ErrEscape
	}
	return abs, nil
}

// HostPath returns the host path backing the store-relative path p.
func (s *Store) HostPath(p string) (string, error) {
	return s.resolve(p)
}

// Create writes data at p, replacing whatever was there. The file is
// readable and writable according to canRead and canWrite.
func (s *Store) Create(p string, data []byte, canRead, canWrite bool) error {
	if s.maxFileSize > 0 && int64(len(data)) > s.maxFileSize {
		return fmt.Errorf("stage %s: %w (%d > %d bytes)", p, ErrTooLarge, len(data), s.maxFileSize)
	}
	hostPath, err := s.resolve(p)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(hostPath), 0o755); err != nil {
		return fmt.Errorf("stage %s: %w", p, err)
	}
	// A previous entry may be read-only, so it is removed rather than truncated.
	if err := os.RemoveAll(hostPath); err != nil {
		return fmt.Errorf("stage %s: %w", p, err)
	}

	f, err := os.OpenFile(hostPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, permFor(canRead, canWrite))
	if err != nil {
		return fmt.Errorf("stage %s: %w", p, err)
	}
	_, err = writeFile(f, data)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		s.removeLocked(hostPath)
		return fmt.Errorf("stage %s: %w", p, err)
	}
	return nil
}

// Unlink removes the file at p and any parent directories it leaves empty.
func (s *Store) Unlink(p string) error {
	hostPath, err := s.resolve(p)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.removeLocked(hostPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("unlink %s: file not found", p)
		}
		return fmt.Errorf("unlink %s: %w", p, err)
	}
	return nil
}

// removeLocked removes hostPath and any parent directories it leaves empty.
func (s *Store) removeLocked(hostPath string) error {
	if err := os.Remove(hostPath); err != nil {
		return err
	}
	for dir := filepath.Dir(hostPath); dir != s.root && strings.HasPrefix(dir, s.root); dir = filepath.Dir(dir) {
		if err := os.Remove(dir); err != nil {
			break
		}
	}
	return nil
}

// Read returns the contents of the file at p.
func (s *Store) Read(p string) ([]byte, error) {
	hostPath, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(hostPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: file not found", p)
		}
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	return data, nil
}

// Exists reports whether p names an existing entry.
func (s *Store) Exists(p string) bool {
	hostPath, err := s.resolve(p)
	if err != nil {
		return false
	}
	_, err = os.Stat(hostPath)
	return err == nil
}

// Stat describes the entry at p.
func (s *Store) Stat(p string) (Entry, error) {
	hostPath, err := s.resolve(p)
	if err != nil {
		return Entry{}, err
	}
	info, err := os.Stat(hostPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Entry{}, fmt.Errorf("stat %s: file not found", p)
		}
		return Entry{}, fmt.Errorf("stat %s: %w", p, err)
	}
	return entryFromInfo(info), nil
}

// List returns the entries of directory p ("" or "/" for the root),
// sorted by name.
func (s *Store) List(p string) ([]Entry, error) {
	dir := s.root
	if strings.Trim(p, "/") != "" {
		var err error
		if dir, err = s.resolve(p); err != nil {
			return nil, err
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("list %s: directory not found", p)
		}
		return nil, fmt.Errorf("list %s: %w", p, err)
	}

	result := make([]Entry, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		result = append(result, entryFromInfo(info))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// Close removes the root directory if the store created it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// Read-only staged files would block RemoveAll on some platforms.
	_ = filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err == nil {
			_ = os.Chmod(path, 0o700)
		}
		return nil
	})
	return os.RemoveAll(s.root)
}

func permFor(canRead, canWrite bool) fs.FileMode {
	var perm fs.FileMode
	if canRead {
		perm |= 0o400
	}
	if canWrite {
		perm |= 0o200
	}
	return perm
}

func entryFromInfo(info fs.FileInfo) Entry {
	return Entry{
		Name:    info.Name(),
		Size:    info.Size(),
		IsDir:   info.IsDir(),
		Mode:    info.Mode().Perm(),
		ModTime: info.ModTime().Unix(),
	}
}
