package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/caffeineduck/romdrop/bridge"
	"github.com/caffeineduck/romdrop/display"
	"github.com/caffeineduck/romdrop/intake"
	"github.com/caffeineduck/romdrop/internal/config"
	"github.com/caffeineduck/romdrop/program"
	"github.com/caffeineduck/romdrop/program/romusage"
	"github.com/caffeineduck/romdrop/staging"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server with a drop target for files",
	Long: `Start an HTTP server (HTTP/1.1 and cleartext HTTP/2) that runs the program
on uploaded files.

Endpoints:
  POST   /invoke    Run on uploaded files (multipart: "options", "program", "file"...)
  POST   /help      Show the program's usage text
  GET    /ws        Live drop target over WebSocket
  GET    /health    Health check`,
	Args: cobra.NoArgs,
	Run:  runServe,
}

func init() {
	serveCmd.Flags().StringP("port", "p", "", "Address to listen on (default: $PORT or :8080)")
	addRunFlags(serveCmd)
	rootCmd.AddCommand(serveCmd)
}

const (
	maxUploadBytes  = 256 << 20
	multipartMemory = 32 << 20

	wsWriteWait = 10 * time.Second
	wsPongWait  = 60 * time.Second
	wsPingEvery = (wsPongWait * 9) / 10
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// server serves one default program plus any others in its registry.
type server struct {
	programs    *program.Registry
	program     string
	options     string
	timeout     time.Duration
	maxFileSize int64
	newEngine   func(program.Program) bridge.Engine
	logger      *log.Logger
}

type invokeResult struct {
	Name       string   `json:"name,omitempty"`
	Args       []string `json:"args"`
	Output     string   `json:"output"`
	ExitCode   int      `json:"exit_code"`
	DurationMs int64    `json:"duration_ms"`
	Error      string   `json:"error,omitempty"`
}

type invokeResponse struct {
	Results []invokeResult `json:"results"`
	Skipped int            `json:"skipped,omitempty"`
}

func newInvokeResult(name string, res bridge.Result) invokeResult {
	out := invokeResult{
		Name:       name,
		Args:       res.Args,
		Output:     res.Output,
		ExitCode:   res.ExitCode,
		DurationMs: res.Duration.Milliseconds(),
	}
	if res.Error != nil {
		out.Error = res.Error.Error()
	}
	return out
}

func runServe(cmd *cobra.Command, args []string) {
	cfg := mustConfig()
	rt := mustRuntime(cmd, cfg)
	defer rt.Close()

	addr := cfg.Port
	if p := stringSetting(cmd, "port", ""); p != "" {
		addr = p
		if !strings.Contains(addr, ":") {
			addr = ":" + addr
		}
	}

	programs := program.NewRegistry()
	programs.Register(rt.prog)
	registerInstalled(programs, cfg, rt.prog.Name())

	s := rt.newServer(resolveRunSettings(cmd, cfg), programs)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: h2c.NewHandler(s.routes(), &http2.Server{}),
	}

	go func() {
		<-cmd.Context().Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(ctx)
	}()

	log.Printf("romdrop server listening on %s (program %s)", addr, rt.prog.Name())
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		rt.Close()
		os.Exit(1)
	}
}

func (r *runtime) newServer(s runSettings, programs *program.Registry) *server {
	return &server{
		programs:    programs,
		program:     r.prog.Name(),
		options:     s.options,
		timeout:     s.timeout,
		maxFileSize: s.maxFileSize,
		newEngine:   r.engineFor,
		logger:      log.Default(),
	}
}

// registerInstalled adds every module in the program directory besides
// the default one. Modules that fail to load are logged and skipped.
func registerInstalled(programs *program.Registry, cfg *config.Config, skip string) {
	store, err := staging.New(cfg.ProgramDir)
	if err != nil {
		log.Printf("program dir: %v", err)
		return
	}
	entries, err := store.List("")
	if err != nil {
		log.Printf("program dir: %v", err)
		return
	}
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name, ".wasm")
		if e.IsDir || !ok || name == skip {
			continue
		}
		prog, err := loadProgram(name, cfg.ProgramDir)
		if err != nil {
			log.Printf("program %s: %v", name, err)
			continue
		}
		programs.Register(prog)
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/invoke", s.handleInvoke)
	mux.HandleFunc("/help", s.handleHelp)
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

func (s *server) lookup(name string) (program.Program, error) {
	if name == "" {
		name = s.program
	}
	prog, ok := s.programs.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown program %q (available: %s)", name, strings.Join(s.programs.List(), ", "))
	}
	return prog, nil
}

func (s *server) newBridge(prog program.Program, surface bridge.Surface, options bridge.OptionSource) *bridge.Bridge {
	return bridge.New(s.newEngine(prog), surface, options,
		bridge.WithTimeout(s.timeout),
		bridge.WithHelpFlag(romusage.HelpFlag),
	)
}

func (s *server) newIntake(handler intake.Handler) *intake.Intake {
	return intake.New(handler,
		intake.WithMaxFileSize(s.maxFileSize),
		intake.WithLogger(s.logger),
	)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func multipartFile(fh *multipart.FileHeader) intake.File {
	return intake.File{
		Name: fh.Filename,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

func (s *server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	prog, err := s.lookup(strings.TrimSpace(r.FormValue("program")))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		http.Error(w, "file required", http.StatusBadRequest)
		return
	}

	options := s.options
	if values, ok := r.MultipartForm.Value["options"]; ok && len(values) > 0 {
		options = values[0]
	}

	b := s.newBridge(prog, display.NewSurface(), display.NewField(options))

	// Handler calls never overlap, and Wait orders them before the reply.
	results := make([]invokeResult, 0, len(headers))
	in := s.newIntake(func(ctx context.Context, f intake.Loaded) {
		res := b.Invoke(ctx, bridge.Request{Name: f.Name, Data: f.Data})
		results = append(results, newInvokeResult(f.Name, res))
	})

	dt := &intake.DataTransfer{}
	for _, fh := range headers {
		dt.Files = append(dt.Files, multipartFile(fh))
	}
	in.Drop(r.Context(), &intake.DropEvent{DataTransfer: dt})
	in.Wait()

	writeJSON(w, invokeResponse{
		Results: results,
		Skipped: len(headers) - len(results),
	})
}

func (s *server) handleHelp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	prog, err := s.lookup(strings.TrimSpace(r.URL.Query().Get("program")))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	b := s.newBridge(prog, display.NewSurface(), nil)
	writeJSON(w, newInvokeResult("", b.InvokeHelp(r.Context())))
}

type wsFile struct {
	Kind string `json:"kind,omitempty"`
	Name string `json:"name"`
	Data []byte `json:"data"`
}

type wsInbound struct {
	Type    string `json:"type"`
	Options string `json:"options,omitempty"`
	// A present items list takes precedence over files, as in a browser drop.
	Items []wsFile `json:"items,omitempty"`
	Files []wsFile `json:"files,omitempty"`
}

func (m wsInbound) dataTransfer() *intake.DataTransfer {
	dt := &intake.DataTransfer{}
	if m.Items != nil {
		dt.Items = make([]intake.Item, 0, len(m.Items))
		for _, f := range m.Items {
			dt.Items = append(dt.Items, intake.Item{Kind: f.Kind, File: intake.FromBytes(f.Name, f.Data)})
		}
	}
	for _, f := range m.Files {
		dt.Files = append(dt.Files, intake.FromBytes(f.Name, f.Data))
	}
	return dt
}

type wsOutbound struct {
	Type      string   `json:"type"`
	Op        string   `json:"op,omitempty"`
	Text      string   `json:"text,omitempty"`
	ClassName string   `json:"className,omitempty"`
	Name      string   `json:"name,omitempty"`
	Args      []string `json:"args,omitempty"`
	ExitCode  int      `json:"exitCode,omitempty"`
	Output    string   `json:"output,omitempty"`
	Code      string   `json:"code,omitempty"`
	Message   string   `json:"message,omitempty"`
}

func doneMessage(name string, res bridge.Result) wsOutbound {
	out := wsOutbound{
		Type:     "done",
		Name:     name,
		Args:     res.Args,
		ExitCode: res.ExitCode,
		Output:   res.Output,
	}
	if res.Error != nil {
		out.Code = "failed"
		out.Message = res.Error.Error()
	}
	return out
}

// handleWS runs a live drop target: surface writes and class changes are
// pushed to the client as they happen.
func (s *server) handleWS(w http.ResponseWriter, r *http.Request) {
	prog, err := s.lookup(strings.TrimSpace(r.URL.Query().Get("program")))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(wsPongWait)); err != nil {
		s.logger.Printf("ws set read deadline failed: %v", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	writeCh := make(chan wsOutbound, 256)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		ticker := time.NewTicker(wsPingEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case out := <-writeCh:
				if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
					return
				}
				if err := conn.WriteJSON(out); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	surface := display.NewSurface()
	stopObserving := surface.Observe(func(c display.Change) {
		sendWS(ctx, writeCh, wsOutbound{Type: "surface", Op: c.Op.String(), Text: c.Text})
	})
	defer stopObserving()

	target := display.NewElement("dropzone")
	options := display.NewField(s.options)
	b := s.newBridge(prog, surface, options)
	in := s.newIntake(func(ctx context.Context, f intake.Loaded) {
		sendWS(ctx, writeCh, doneMessage(f.Name, b.Invoke(ctx, bridge.Request{Name: f.Name, Data: f.Data})))
	})
	var helpRuns sync.WaitGroup

	pushClass := func() {
		sendWS(ctx, writeCh, wsOutbound{Type: "class", ClassName: target.ClassName()})
	}
	sendWS(ctx, writeCh, wsOutbound{Type: "ready", Name: prog.Name()})

	for {
		var msg wsInbound
		if err := conn.ReadJSON(&msg); err != nil {
			cancel()
			in.Wait()
			helpRuns.Wait()
			<-writerDone
			return
		}

		switch msgType := strings.ToLower(strings.TrimSpace(msg.Type)); msgType {
		case "":
			sendWS(ctx, writeCh, wsOutbound{Type: "error", Code: "invalid_argument", Message: "type is required"})
		case "ping":
			sendWS(ctx, writeCh, wsOutbound{Type: "pong"})
		case "options":
			options.Set(msg.Options)
		case "dragover":
			in.DragOver(&intake.DragEvent{Target: target})
			pushClass()
		case "dragleave":
			in.DragLeave(&intake.DragEvent{Target: target})
			pushClass()
		case "drop":
			in.Drop(ctx, &intake.DropEvent{Target: target, DataTransfer: msg.dataTransfer()})
			pushClass()
		case "help":
			helpRuns.Go(func() {
				sendWS(ctx, writeCh, doneMessage("", b.InvokeHelp(ctx)))
			})
		default:
			sendWS(ctx, writeCh, wsOutbound{Type: "error", Code: "invalid_argument", Message: "unsupported type: " + msgType})
		}
	}
}

// sendWS queues out for the writer, waiting while the queue is full. It
// gives up and reports false once ctx is done.
func sendWS(ctx context.Context, writeCh chan<- wsOutbound, out wsOutbound) bool {
	select {
	case writeCh <- out:
		return true
	case <-ctx.Done():
		return false
	}
}
