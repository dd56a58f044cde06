package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/caffeineduck/romdrop/bridge"
	"github.com/caffeineduck/romdrop/display"
	"github.com/caffeineduck/romdrop/internal/config"
	"github.com/caffeineduck/romdrop/intake"
	"github.com/caffeineduck/romdrop/program/romusage"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [files...]",
	Short: "Run the program on files",
	Long: `Run the program once per file and print each report.

Files are read concurrently and reported in the order their reads finish:
  romdrop run game.gb
  romdrop run -o "-g -E" build/game.map build/game.noi`,
	Args: cobra.ArbitraryArgs,
	Run:  runRun,
}

func init() {
	addRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("options", "o", "", "Options passed to the program, split on spaces (default: $ROMDROP_OPTIONS)")
	cmd.Flags().Duration("timeout", config.DefaultTimeout, "Execution timeout")
	cmd.Flags().Int64("max-file", config.DefaultMaxFileSize, "Max input file size in bytes")
}

type runSettings struct {
	options     string
	timeout     time.Duration
	maxFileSize int64
}

func resolveRunSettings(cmd *cobra.Command, cfg *config.Config) runSettings {
	return runSettings{
		options:     stringSetting(cmd, "options", cfg.Options),
		timeout:     durationSetting(cmd, "timeout", cfg.Timeout),
		maxFileSize: int64Setting(cmd, "max-file", cfg.MaxFileSize),
	}
}

func runRun(cmd *cobra.Command, args []string) {
	if len(args) == 0 {
		cmd.Help()
		return
	}

	cfg := mustConfig()
	rt := mustRuntime(cmd, cfg)
	defer rt.Close()

	failed := runFiles(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), rt.engine(), resolveRunSettings(cmd, cfg), args)
	if failed > 0 {
		rt.Close()
		os.Exit(1)
	}
}

// runFiles picks the files at paths and prints one report per file. It
// returns how many files could not be read or run.
func runFiles(ctx context.Context, stdout, stderr io.Writer, engine bridge.Engine, s runSettings, paths []string) int {
	surface := display.NewSurface()
	b := bridge.New(engine, surface, display.NewField(s.options),
		bridge.WithTimeout(s.timeout),
		bridge.WithHelpFlag(romusage.HelpFlag),
	)

	var done, failed int
	in := intake.New(func(ctx context.Context, f intake.Loaded) {
		done++
		res := b.Invoke(ctx, bridge.Request{Name: f.Name, Data: f.Data})
		if len(paths) > 1 {
			fmt.Fprintf(stdout, "==> %s <==\n", f.Name)
		}
		fmt.Fprint(stdout, surface.Text())
		if res.Error != nil {
			fmt.Fprintf(stderr, "Error: %s: %v\n", f.Name, res.Error)
			failed++
		}
	},
		intake.WithMaxFileSize(s.maxFileSize),
		intake.WithConcurrency(4),
		intake.WithLogger(log.New(stderr, "", 0)),
	)

	files := make([]intake.File, len(paths))
	for i, p := range paths {
		files[i] = intake.FromPath(p)
	}
	in.Pick(ctx, &intake.PickEvent{Files: files})
	in.Wait()

	// Files that never reached the handler failed to read.
	return failed + len(paths) - done
}
