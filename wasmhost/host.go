package wasmhost

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/caffeineduck/romdrop/program"
	"github.com/caffeineduck/romdrop/staging"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// ErrClosed is returned when compiling on a closed Host.
var ErrClosed = errors.New("host closed")

// Host owns a WASI runtime and the compiled modules of the programs run on it.
type Host struct {
	runtime  wazero.Runtime
	cache    wazero.CompilationCache
	compiled *lru.Cache[string, wazero.CompiledModule]
	logger   *log.Logger
	mu       sync.Mutex
	closed   bool
}

// New creates a Host.
func New(opts ...HostOption) (*Host, error) {
	cfg := defaultHostConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx := context.Background()

	var cache wazero.CompilationCache
	var err error

	if cfg.diskCache {
		cacheDir := cfg.cacheDir
		if cacheDir == "" {
			cacheDir = defaultCacheDir()
		}
		cache, err = wazero.NewCompilationCacheWithDir(cacheDir)
		if err != nil {
			return nil, fmt.Errorf("create disk cache: %w", err)
		}
	}

	rtConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cache != nil {
		rtConfig = rtConfig.WithCompilationCache(cache)
	}
	if cfg.memoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(cfg.memoryLimitPages)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, rtConfig)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		if cache != nil {
			cache.Close(ctx)
		}
		rt.Close(ctx)
		return nil, fmt.Errorf("instantiate WASI: %w", err)
	}

	compiled, err := lru.NewWithEvict[string, wazero.CompiledModule](cfg.cacheSize,
		func(_ string, m wazero.CompiledModule) {
			m.Close(context.Background())
		})
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("create module cache: %w", err)
	}

	h := &Host{
		runtime:  rt,
		cache:    cache,
		compiled: compiled,
		logger:   cfg.logger,
	}

	for _, prog := range cfg.precompile {
		if _, err := h.Compile(ctx, prog); err != nil {
			h.Close()
			return nil, fmt.Errorf("precompile %s: %w", prog.Name(), err)
		}
	}

	return h, nil
}

// Compile returns the compiled module for prog, compiling it on first use.
func (h *Host) Compile(ctx context.Context, prog program.Program) (wazero.CompiledModule, error) {
	module := prog.Module()
	key := cacheKey(prog.Name(), module)

	if compiled, ok := h.compiled.Get(key); ok {
		return compiled, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}
	if compiled, ok := h.compiled.Get(key); ok {
		return compiled, nil
	}

	compiled, err := h.runtime.CompileModule(ctx, module)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", prog.Name(), err)
	}

	h.compiled.Add(key, compiled)
	return compiled, nil
}

// NewMachine returns an Engine running prog with store as its filesystem.
func (h *Host) NewMachine(prog program.Program, store *staging.Store) *Machine {
	return &Machine{
		host:  h,
		prog:  prog,
		store: store,
	}
}

// Close releases all resources held by the Host.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	ctx := context.Background()

	var errs []error
	h.compiled.Purge()
	if err := h.runtime.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if h.cache != nil {
		if err := h.cache.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func cacheKey(name string, module []byte) string {
	sum := sha256.Sum256(module)
	return name + "@" + hex.EncodeToString(sum[:8])
}

func defaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "romdrop")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "romdrop")
	}
	return filepath.Join(os.TempDir(), "romdrop-cache")
}
