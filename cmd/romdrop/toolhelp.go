package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/caffeineduck/romdrop/bridge"
	"github.com/caffeineduck/romdrop/display"
	"github.com/caffeineduck/romdrop/program/romusage"
	"github.com/spf13/cobra"
)

var toolhelpCmd = &cobra.Command{
	Use:   "toolhelp",
	Short: "Show the program's own usage text",
	Long: `Run the program with its help flag and print the result.

No file is staged and the configured options are not passed.`,
	Args: cobra.NoArgs,
	Run:  runToolHelp,
}

func init() {
	toolhelpCmd.Flags().Duration("timeout", 30*time.Second, "Execution timeout")
	rootCmd.AddCommand(toolhelpCmd)
}

func runToolHelp(cmd *cobra.Command, args []string) {
	cfg := mustConfig()
	rt := mustRuntime(cmd, cfg)
	defer rt.Close()

	timeout := durationSetting(cmd, "timeout", cfg.Timeout)
	if err := showToolHelp(cmd.Context(), cmd.OutOrStdout(), rt.engine(), timeout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		rt.Close()
		os.Exit(1)
	}
}

func showToolHelp(ctx context.Context, stdout io.Writer, engine bridge.Engine, timeout time.Duration) error {
	surface := display.NewSurface()
	b := bridge.New(engine, surface, nil,
		bridge.WithTimeout(timeout),
		bridge.WithHelpFlag(romusage.HelpFlag),
	)
	res := b.InvokeHelp(ctx)
	fmt.Fprint(stdout, surface.Text())
	return res.Error
}
