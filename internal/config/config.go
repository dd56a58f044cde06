package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultProgram     = "romusage"
	DefaultTimeout     = 30 * time.Second
	DefaultMaxFileSize = 16 << 20
	DefaultPort        = ":8080"
)

type Config struct {
	Program     string
	ProgramDir  string
	Options     string
	StagingDir  string
	CacheDir    string
	Timeout     time.Duration
	MaxFileSize int64
	Port        string
}

// Load reads the environment, after merging a .env file from the working
// directory when one exists. Variables already set are not overridden.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (*Config, error) {
	timeout, err := parseDuration("ROMDROP_TIMEOUT", DefaultTimeout)
	if err != nil {
		return nil, err
	}
	maxFile, err := parseSize("ROMDROP_MAX_FILE_SIZE", DefaultMaxFileSize)
	if err != nil {
		return nil, err
	}

	return &Config{
		Program:     firstNonEmpty(strings.TrimSpace(os.Getenv("ROMDROP_PROGRAM")), DefaultProgram),
		ProgramDir:  firstNonEmpty(strings.TrimSpace(os.Getenv("ROMDROP_PROGRAM_DIR")), defaultProgramDir()),
		Options:     os.Getenv("ROMDROP_OPTIONS"),
		StagingDir:  strings.TrimSpace(os.Getenv("ROMDROP_STAGING_DIR")),
		CacheDir:    strings.TrimSpace(os.Getenv("ROMDROP_CACHE_DIR")),
		Timeout:     timeout,
		MaxFileSize: maxFile,
		Port:        resolvePort(os.Getenv("PORT")),
	}, nil
}

func resolvePort(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultPort
	}
	if strings.HasPrefix(raw, ":") {
		return raw
	}
	return ":" + raw
}

func defaultProgramDir() string {
	base := strings.TrimSpace(os.Getenv("XDG_DATA_HOME"))
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".romdrop", "programs")
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "romdrop", "programs")
}

func parseDuration(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: must be positive, got %s", key, raw)
	}
	return d, nil
}

// parseSize accepts a byte count with an optional kb, mb or gb suffix.
func parseSize(key string, def int64) (int64, error) {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if raw == "" {
		return def, nil
	}

	mult := int64(1)
	for _, u := range []struct {
		suffix string
		mult   int64
	}{
		{"kb", 1 << 10},
		{"mb", 1 << 20},
		{"gb", 1 << 30},
	} {
		if strings.HasSuffix(raw, u.suffix) {
			raw = strings.TrimSpace(strings.TrimSuffix(raw, u.suffix))
			mult = u.mult
			break
		}
	}

	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%s: must not be negative", key)
	}
	if n > math.MaxInt64/mult {
		return 0, fmt.Errorf("%s: %s is too large", key, os.Getenv(key))
	}
	return n * mult, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
