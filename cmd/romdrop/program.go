package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/caffeineduck/romdrop/staging"
	"github.com/spf13/cobra"
)

var programCmd = &cobra.Command{
	Use:   "program",
	Short: "Manage the WebAssembly programs romdrop can run",
	Long: `Install and manage WASI modules in the program directory
($ROMDROP_PROGRAM_DIR, default $XDG_DATA_HOME/romdrop/programs).

A program installed as romusage.wasm is used by default. Other names are
selected with --program.`,
}

var programFetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Download a .wasm module into the program directory",
	Args:  cobra.ExactArgs(1),
	Run:   runProgramFetch,
}

var programListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed programs",
	Args:  cobra.NoArgs,
	Run:   runProgramList,
}

var programRemoveCmd = &cobra.Command{
	Use:   "remove <names...>",
	Short: "Remove installed programs",
	Args:  cobra.MinimumNArgs(1),
	Run:   runProgramRemove,
}

func init() {
	programFetchCmd.Flags().String("name", "", "Install under this name (default: taken from the URL)")
	programCmd.AddCommand(programFetchCmd, programListCmd, programRemoveCmd)
	rootCmd.AddCommand(programCmd)
}

const wasmMagic = "\x00asm"

// maxProgramSize bounds downloaded modules.
const maxProgramSize = staging.DefaultMaxFileSize

func openProgramStore() *staging.Store {
	cfg := mustConfig()
	store, err := staging.New(cfg.ProgramDir, staging.WithMaxFileSize(maxProgramSize))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return store
}

func runProgramFetch(cmd *cobra.Command, args []string) {
	name, _ := cmd.Flags().GetString("name")
	store := openProgramStore()

	fmt.Fprintf(cmd.OutOrStdout(), "Fetching %s...\n", args[0])
	installed, err := fetchProgram(cmd.Context(), http.DefaultClient, store, args[0], name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Installed %s in %s\n", installed, store.Root())
}

func runProgramList(cmd *cobra.Command, args []string) {
	if err := listPrograms(cmd.OutOrStdout(), openProgramStore()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runProgramRemove(cmd *cobra.Command, args []string) {
	removePrograms(cmd.OutOrStdout(), cmd.ErrOrStderr(), openProgramStore(), args)
}

// programName derives an install name from the --name flag or the URL.
func programName(rawURL, name string) (string, error) {
	if name == "" {
		u, err := url.Parse(rawURL)
		if err != nil {
			return "", fmt.Errorf("invalid url: %w", err)
		}
		name = path.Base(u.Path)
	}
	name = strings.TrimSuffix(name, ".wasm")
	if name == "" || name == "." || name == "/" || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("cannot derive a program name from %q (use --name)", rawURL)
	}
	return name, nil
}

func fetchProgram(ctx context.Context, client *http.Client, store *staging.Store, rawURL, name string) (string, error) {
	name, err := programName(rawURL, name)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download failed: %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxProgramSize+1))
	if err != nil {
		return "", fmt.Errorf("download failed: %w", err)
	}
	if !bytes.HasPrefix(data, []byte(wasmMagic)) {
		return "", fmt.Errorf("%s is not a WebAssembly module", rawURL)
	}

	file := name + ".wasm"
	if err := store.Create(file, data, true, true); err != nil {
		return "", err
	}
	return name, nil
}

func listPrograms(w io.Writer, store *staging.Store) error {
	entries, err := store.List("")
	if err != nil {
		return err
	}

	var found bool
	for _, e := range entries {
		if e.IsDir || !strings.HasSuffix(e.Name, ".wasm") {
			continue
		}
		if !found {
			fmt.Fprintf(w, "Programs in %s:\n", store.Root())
			found = true
		}
		fmt.Fprintf(w, "  %-20s %8d bytes\n", strings.TrimSuffix(e.Name, ".wasm"), e.Size)
	}
	if !found {
		fmt.Fprintln(w, "No programs installed.")
	}
	return nil
}

func removePrograms(w, errOut io.Writer, store *staging.Store, names []string) {
	for _, name := range names {
		if err := store.Unlink(strings.TrimSuffix(name, ".wasm") + ".wasm"); err != nil {
			fmt.Fprintf(errOut, "Warning: failed to remove %s: %v\n", name, err)
			continue
		}
		fmt.Fprintf(w, "Removed %s\n", name)
	}
}
