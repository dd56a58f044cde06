package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/caffeineduck/romdrop/bridge"
	"github.com/caffeineduck/romdrop/display"
	"github.com/caffeineduck/romdrop/intake"
	"github.com/caffeineduck/romdrop/program/romusage"
	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive session with an option field and a file picker",
	Long: `Start an interactive session that keeps an option string and an output
area between commands.

Commands:
  options [text]    Show or replace the option string
  options ""        Clear the option string
  load <files...>   Run the program on each file
  help              Show the program's usage text
  show              Print the output area again
  clear             Clear the output area
  exit, quit        End the session

Features:
  - Command history (up/down arrows)
  - Line editing (left/right, backspace, delete)
  - Tab completion of commands and file names`,
	Args: cobra.NoArgs,
	Run:  runRepl,
}

func init() {
	addRunFlags(replCmd)
	replCmd.Flags().String("history", "", "History file path (default: ~/.romdrop_history)")
	rootCmd.AddCommand(replCmd)
}

func runRepl(cmd *cobra.Command, args []string) {
	historyFile, _ := cmd.Flags().GetString("history")
	if historyFile == "" {
		home, _ := os.UserHomeDir()
		historyFile = filepath.Join(home, ".romdrop_history")
	}

	cfg := mustConfig()
	rt := mustRuntime(cmd, cfg)
	defer rt.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "romdrop> ",
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		AutoComplete:      replCompleter(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing readline: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	session := newReplSession(rt.engine(), resolveRunSettings(cmd, cfg), rl.Stdout(), rl.Stderr())
	fmt.Fprintf(os.Stderr, "romdrop %s session (type 'exit' to quit, Ctrl+D to exit)\n", rt.prog.Name())

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				fmt.Println()
				break
			}
			fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
			break
		}
		if !session.exec(cmd.Context(), line) {
			break
		}
	}
}

func replCompleter() *readline.PrefixCompleter {
	files := readline.PcItemDynamic(listDir)
	return readline.NewPrefixCompleter(
		readline.PcItem("options"),
		readline.PcItem("load", files),
		readline.PcItem("help"),
		readline.PcItem("show"),
		readline.PcItem("clear"),
		readline.PcItem("exit"),
		readline.PcItem("quit"),
	)
}

func listDir(line string) []string {
	fields := strings.Fields(line)
	dir := "."
	if len(fields) > 1 && !strings.HasSuffix(line, " ") {
		dir = filepath.Dir(fields[len(fields)-1])
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := filepath.Join(dir, e.Name())
		if e.IsDir() {
			name += string(filepath.Separator)
		}
		names = append(names, name)
	}
	return names
}

// replSession is the state behind the repl: one output area, one option
// field, and the picker feeding the bridge.
type replSession struct {
	out     io.Writer
	errOut  io.Writer
	surface *display.Surface
	options *display.Field
	bridge  *bridge.Bridge
	intake  *intake.Intake
}

func newReplSession(engine bridge.Engine, s runSettings, out, errOut io.Writer) *replSession {
	rs := &replSession{
		out:     out,
		errOut:  errOut,
		surface: display.NewSurface(),
		options: display.NewField(s.options),
	}
	rs.bridge = bridge.New(engine, rs.surface, rs.options,
		bridge.WithTimeout(s.timeout),
		bridge.WithHelpFlag(romusage.HelpFlag),
	)
	rs.intake = intake.New(rs.handle,
		intake.WithMaxFileSize(s.maxFileSize),
		intake.WithLogger(log.New(errOut, "", 0)),
	)
	return rs
}

func (rs *replSession) handle(ctx context.Context, f intake.Loaded) {
	res := rs.bridge.Invoke(ctx, bridge.Request{Name: f.Name, Data: f.Data})
	rs.show()
	if res.Error != nil {
		fmt.Fprintf(rs.errOut, "Error: %s: %v\n", f.Name, res.Error)
	}
}

func (rs *replSession) show() {
	text := rs.surface.Text()
	fmt.Fprint(rs.out, text)
	if text != "" && !strings.HasSuffix(text, "\n") {
		fmt.Fprintln(rs.out)
	}
}

// exec runs one input line. It returns false when the session should end.
func (rs *replSession) exec(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return true
	}
	name, rest, _ := strings.Cut(line, " ")

	switch name {
	case "exit", "quit":
		return false
	case "options":
		rest = strings.TrimSpace(rest)
		if rest == "" {
			fmt.Fprintf(rs.out, "options: %q\n", rs.options.Value())
			return true
		}
		if rest == `""` || rest == "''" {
			rest = ""
		}
		rs.options.Set(rest)
	case "load":
		paths := strings.Fields(rest)
		if len(paths) == 0 {
			fmt.Fprintln(rs.errOut, "Error: load needs at least one file")
			return true
		}
		files := make([]intake.File, len(paths))
		for i, p := range paths {
			files[i] = intake.FromPath(p)
		}
		rs.intake.Pick(ctx, &intake.PickEvent{Files: files})
		rs.intake.Wait()
	case "help":
		res := rs.bridge.InvokeHelp(ctx)
		rs.show()
		if res.Error != nil {
			fmt.Fprintf(rs.errOut, "Error: %v\n", res.Error)
		}
	case "show":
		rs.show()
	case "clear":
		rs.surface.SetText("")
	default:
		fmt.Fprintf(rs.errOut, "unknown command %q (options, load, help, show, clear, exit)\n", name)
	}
	return true
}
