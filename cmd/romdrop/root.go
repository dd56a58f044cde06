package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/caffeineduck/romdrop/bridge"
	"github.com/caffeineduck/romdrop/internal/config"
	"github.com/caffeineduck/romdrop/program"
	"github.com/caffeineduck/romdrop/program/romusage"
	"github.com/caffeineduck/romdrop/staging"
	"github.com/caffeineduck/romdrop/wasmhost"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "romdrop [files...]",
	Short: "Run romusage on Game Boy build output in a WebAssembly sandbox",
	Long: `romdrop - Hand ROM, map and noi files to romusage running under WebAssembly.

Each file is staged into the sandbox filesystem under a unique path, romusage
runs on it with the configured options, and its report is printed. The
romusage module is a WASI build (romusage.wasm) looked up in the program
directory; install one with 'romdrop program fetch'.

Settings are read from the environment and from a .env file:
  ROMDROP_PROGRAM, ROMDROP_PROGRAM_DIR, ROMDROP_OPTIONS, ROMDROP_STAGING_DIR,
  ROMDROP_CACHE_DIR, ROMDROP_TIMEOUT, ROMDROP_MAX_FILE_SIZE, PORT`,
	Args: cobra.ArbitraryArgs,
	Run:  runRun, // Default to run command behavior
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("program", "P", "", "Program name or path to a .wasm module (default: $ROMDROP_PROGRAM or romusage)")
	rootCmd.PersistentFlags().Bool("no-cache", false, "Disable compilation cache")
	rootCmd.PersistentFlags().String("memory", "256mb", "Memory limit: 1mb, 16mb, 64mb, 256mb, 1gb")

	addRunFlags(rootCmd)
}

func mustConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// Flags the user set explicitly win over configured values.

func stringSetting(cmd *cobra.Command, name, fallback string) string {
	if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
		v, _ := cmd.Flags().GetString(name)
		return v
	}
	return fallback
}

func durationSetting(cmd *cobra.Command, name string, fallback time.Duration) time.Duration {
	if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
		v, _ := cmd.Flags().GetDuration(name)
		return v
	}
	return fallback
}

func int64Setting(cmd *cobra.Command, name string, fallback int64) int64 {
	if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
		v, _ := cmd.Flags().GetInt64(name)
		return v
	}
	return fallback
}

// resolveProgramPath maps a program name to a module file. Anything that
// looks like a path is used as is; a bare name is looked up in dir.
func resolveProgramPath(name, dir string) string {
	if strings.HasSuffix(strings.ToLower(name), ".wasm") || strings.ContainsAny(name, `/\`) {
		return name
	}
	return filepath.Join(dir, name+".wasm")
}

func loadProgram(name, dir string) (program.Program, error) {
	if name == "" {
		name = romusage.Name
	}
	path := resolveProgramPath(name, dir)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("program %q not found at %s (install it with 'romdrop program fetch')", name, path)
		}
		return nil, err
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if stem == romusage.Name {
		return romusage.Load(path)
	}
	return program.FromFile(stem, path, romusage.HostedModeExport)
}

func parseMemoryLimit(s string) uint32 {
	switch strings.ToLower(s) {
	case "1mb":
		return wasmhost.MemoryLimit1MB
	case "16mb":
		return wasmhost.MemoryLimit16MB
	case "64mb":
		return wasmhost.MemoryLimit64MB
	case "256mb":
		return wasmhost.MemoryLimit256MB
	case "1gb":
		return wasmhost.MemoryLimit1GB
	default:
		return 0 // use default
	}
}

// runtime is the program, its compiled-module host and the staging store
// shared by every invocation of one command.
type runtime struct {
	prog  program.Program
	host  *wasmhost.Host
	store *staging.Store
}

func openRuntime(cmd *cobra.Command, cfg *config.Config) (*runtime, error) {
	noCache, _ := cmd.Flags().GetBool("no-cache")
	memoryLimit, _ := cmd.Flags().GetString("memory")

	prog, err := loadProgram(stringSetting(cmd, "program", cfg.Program), cfg.ProgramDir)
	if err != nil {
		return nil, err
	}

	var hostOpts []wasmhost.HostOption
	if !noCache {
		hostOpts = append(hostOpts, wasmhost.WithDiskCache(cfg.CacheDir))
	}
	if pages := parseMemoryLimit(memoryLimit); pages > 0 {
		hostOpts = append(hostOpts, wasmhost.WithMemoryLimit(pages))
	}
	hostOpts = append(hostOpts, wasmhost.WithPrecompile(prog))

	host, err := wasmhost.New(hostOpts...)
	if err != nil {
		return nil, err
	}

	maxFile := int64Setting(cmd, "max-file", cfg.MaxFileSize)
	var store *staging.Store
	if cfg.StagingDir != "" {
		store, err = staging.New(cfg.StagingDir, staging.WithMaxFileSize(maxFile))
	} else {
		store, err = staging.NewTemp(staging.WithMaxFileSize(maxFile))
	}
	if err != nil {
		host.Close()
		return nil, err
	}

	return &runtime{prog: prog, host: host, store: store}, nil
}

// engine returns a fresh Engine for the runtime's program.
func (r *runtime) engine() bridge.Engine {
	return r.engineFor(r.prog)
}

func (r *runtime) engineFor(prog program.Program) bridge.Engine {
	return r.host.NewMachine(prog, r.store)
}

func (r *runtime) Close() error {
	return errors.Join(r.store.Close(), r.host.Close())
}

func mustRuntime(cmd *cobra.Command, cfg *config.Config) *runtime {
	rt, err := openRuntime(cmd, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return rt
}
