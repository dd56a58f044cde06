package wasmhost

import (
	"log"

	"github.com/caffeineduck/romdrop/program"
)

// HostOption configures the Host at creation time.
type HostOption func(*hostConfig)

type hostConfig struct {
	diskCache        bool
	cacheDir         string
	cacheSize        int
	precompile       []program.Program
	memoryLimitPages uint32
	logger           *log.Logger
}

func defaultHostConfig() hostConfig {
	return hostConfig{
		cacheSize: 8,
		logger:    log.Default(),
	}
}

// WithDiskCache keeps compiled machine code on disk so that a program is
// only compiled once across processes. The directory defaults to
// $XDG_CACHE_HOME/romdrop; an empty dir keeps the default.
func WithDiskCache(dir ...string) HostOption {
	return func(c *hostConfig) {
		c.diskCache = true
		if len(dir) > 0 && dir[0] != "" {
			c.cacheDir = dir[0]
		}
	}
}

// WithCacheSize sets how many compiled modules are kept in memory.
func WithCacheSize(n int) HostOption {
	return func(c *hostConfig) {
		if n > 0 {
			c.cacheSize = n
		}
	}
}

// WithPrecompile compiles the given programs at Host creation time.
func WithPrecompile(progs ...program.Program) HostOption {
	return func(c *hostConfig) {
		c.precompile = progs
	}
}

// WithLogger sets where program stderr and host diagnostics are logged.
func WithLogger(l *log.Logger) HostOption {
	return func(c *hostConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMemoryLimit caps guest memory at pages 64 KiB pages. Zero leaves
// the wazero default of 4 GiB.
func WithMemoryLimit(pages uint32) HostOption {
	return func(c *hostConfig) {
		c.memoryLimitPages = pages
	}
}

// Page counts for common memory limits.
const (
	MemoryLimit1MB   uint32 = 1 << 4
	MemoryLimit16MB  uint32 = 1 << 8
	MemoryLimit64MB  uint32 = 1 << 10
	MemoryLimit256MB uint32 = 1 << 12
	MemoryLimit1GB   uint32 = 1 << 14
)
