package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/caffeineduck/romdrop/bridge"
	"github.com/caffeineduck/romdrop/display"
	"github.com/caffeineduck/romdrop/program"
	"github.com/caffeineduck/romdrop/program/romusage"
	"github.com/gorilla/websocket"
)

type testServer struct {
	*server
	engine *fakeEngine

	mu       sync.Mutex
	selected []string
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	programs := program.NewRegistry()
	programs.Register(program.New(romusage.Name, nil, romusage.HostedModeExport))
	programs.Register(program.New("romusage-dev", nil, romusage.HostedModeExport))

	ts := &testServer{engine: newFakeEngine()}
	ts.server = &server{
		programs:    programs,
		program:     romusage.Name,
		options:     "-a",
		timeout:     time.Second,
		maxFileSize: 1 << 20,
		logger:      log.New(io.Discard, "", 0),
		newEngine: func(p program.Program) bridge.Engine {
			ts.mu.Lock()
			ts.selected = append(ts.selected, p.Name())
			ts.mu.Unlock()
			return ts.engine
		},
	}
	return ts
}

func (ts *testServer) programsUsed() []string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]string(nil), ts.selected...)
}

type upload struct {
	name string
	data []byte
}

func multipartRequest(t *testing.T, fields map[string]string, files ...upload) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	for _, f := range files {
		fw, err := mw.CreateFormFile("file", f.name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		fw.Write(f.data)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/invoke", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeInvoke(t *testing.T, w *httptest.ResponseRecorder) invokeResponse {
	t.Helper()
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp invokeResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	ts := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	ts.routes().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if w.Body.String() != "ok" {
		t.Errorf("expected 'ok', got %q", w.Body.String())
	}
}

func TestInvokeEndpoint(t *testing.T) {
	ts := setupTestServer(t)

	req := multipartRequest(t, map[string]string{"options": "-g  -E"},
		upload{"game.gb", make([]byte, 64)},
		upload{"game.map", []byte("AREA _CODE")},
	)
	w := httptest.NewRecorder()
	ts.routes().ServeHTTP(w, req)

	resp := decodeInvoke(t, w)
	if len(resp.Results) != 2 || resp.Skipped != 0 {
		t.Fatalf("expected 2 results, got %+v", resp)
	}

	byName := make(map[string]invokeResult)
	for _, r := range resp.Results {
		byName[r.Name] = r
	}

	gb := byName["game.gb"]
	if gb.Output != "report game.gb: 64 bytes\noptions: -g -E\n" {
		t.Errorf("unexpected output %q", gb.Output)
	}
	if len(gb.Args) != 3 || gb.Args[0] != "-g" || gb.Args[1] != "-E" || gb.Args[2] != "game.gb" {
		t.Errorf("unexpected args %v", gb.Args)
	}
	if gb.Error != "" {
		t.Errorf("unexpected error %q", gb.Error)
	}

	mapResult := byName["game.map"]
	if !strings.Contains(mapResult.Output, "report game.map: 10 bytes") {
		t.Errorf("unexpected output %q", mapResult.Output)
	}
	if dirs := ts.engine.runDirs(); len(dirs) != 2 || dirs[0] == dirs[1] || dirs[0] == "" {
		t.Errorf("each upload should be staged under its own directory, got %q", dirs)
	}
	if ts.engine.stagedCount() != 0 {
		t.Error("staged files should be removed after the request")
	}
}

func TestInvokeOptions(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
		want   string
	}{
		{"default", nil, "options: -a\n"},
		{"empty field clears", map[string]string{"options": ""}, "options: \n"},
		{"override", map[string]string{"options": "-sRp"}, "options: -sRp\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ts := setupTestServer(t)
			w := httptest.NewRecorder()
			ts.routes().ServeHTTP(w, multipartRequest(t, tc.fields, upload{"a.noi", []byte("DEF")}))

			resp := decodeInvoke(t, w)
			if len(resp.Results) != 1 || !strings.HasSuffix(resp.Results[0].Output, tc.want) {
				t.Errorf("expected output ending in %q, got %+v", tc.want, resp.Results)
			}
		})
	}
}

func TestInvokeSelectsProgram(t *testing.T) {
	ts := setupTestServer(t)

	w := httptest.NewRecorder()
	ts.routes().ServeHTTP(w, multipartRequest(t, map[string]string{"program": "romusage-dev"}, upload{"a.gb", []byte("x")}))
	decodeInvoke(t, w)

	w = httptest.NewRecorder()
	ts.routes().ServeHTTP(w, multipartRequest(t, nil, upload{"a.gb", []byte("x")}))
	decodeInvoke(t, w)

	if got := strings.Join(ts.programsUsed(), ","); got != "romusage-dev,romusage" {
		t.Errorf("unexpected program selection %v", got)
	}
}

func TestInvokeErrors(t *testing.T) {
	ts := setupTestServer(t)
	routes := ts.routes()

	w := httptest.NewRecorder()
	routes.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/invoke", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET: expected 405, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	routes.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/invoke", strings.NewReader("{}")))
	if w.Code != http.StatusBadRequest {
		t.Errorf("non-multipart: expected 400, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	routes.ServeHTTP(w, multipartRequest(t, map[string]string{"options": "-a"}))
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "file required") {
		t.Errorf("no files: expected 400 file required, got %d %q", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	routes.ServeHTTP(w, multipartRequest(t, map[string]string{"program": "nope"}, upload{"a.gb", nil}))
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "unknown program") {
		t.Errorf("unknown program: expected 400, got %d %q", w.Code, w.Body.String())
	}

	if ts.engine.runCount() != 0 {
		t.Error("rejected requests should not run the program")
	}
}

func TestInvokeSkipsOversizedFiles(t *testing.T) {
	ts := setupTestServer(t)
	ts.maxFileSize = 4

	w := httptest.NewRecorder()
	ts.routes().ServeHTTP(w, multipartRequest(t, nil,
		upload{"small.gb", []byte("1234")},
		upload{"large.gb", []byte("12345")},
	))

	resp := decodeInvoke(t, w)
	if len(resp.Results) != 1 || resp.Results[0].Name != "small.gb" || resp.Skipped != 1 {
		t.Errorf("expected only small.gb and one skipped, got %+v", resp)
	}
}

func TestHelpEndpoint(t *testing.T) {
	ts := setupTestServer(t)

	w := httptest.NewRecorder()
	ts.routes().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/help", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp invokeResult
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Output != fakeUsage+"\n" {
		t.Errorf("unexpected output %q", resp.Output)
	}
	if len(resp.Args) != 1 || resp.Args[0] != "-h" {
		t.Errorf("expected only -h, got %v", resp.Args)
	}
	if ts.engine.hosted != 0 {
		t.Error("help should not set hosted mode")
	}

	w = httptest.NewRecorder()
	ts.routes().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/help", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET: expected 405, got %d", w.Code)
	}
}

func dialWS(t *testing.T, ts *testServer, query string) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(ts.routes())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	readUntil(t, conn, "ready")
	return conn
}

// readUntil reads messages up to and including the first one of type typ.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) []wsOutbound {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msgs []wsOutbound
	for {
		var msg wsOutbound
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %q: %v (got %+v)", typ, err, msgs)
		}
		msgs = append(msgs, msg)
		if msg.Type == typ {
			return msgs
		}
	}
}

func TestWebSocketDropSession(t *testing.T) {
	ts := setupTestServer(t)
	conn := dialWS(t, ts, "")

	conn.WriteJSON(wsInbound{Type: "dragover"})
	msgs := readUntil(t, conn, "class")
	if got := msgs[len(msgs)-1].ClassName; got != "dropzone dragdrop_ready" {
		t.Errorf("dragover class = %q", got)
	}

	conn.WriteJSON(wsInbound{Type: "options", Options: "-E"})
	conn.WriteJSON(wsInbound{Type: "drop", Items: []wsFile{
		{Kind: "string", Name: "link.txt", Data: []byte("https://example.com")},
		{Kind: "file", Name: "game.gb", Data: []byte("ROM!")},
	}})

	msgs = readUntil(t, conn, "done")
	done := msgs[len(msgs)-1]
	if done.Name != "game.gb" || done.Message != "" {
		t.Errorf("unexpected done message %+v", done)
	}
	if len(done.Args) != 2 || done.Args[0] != "-E" {
		t.Errorf("unexpected args %v", done.Args)
	}

	var sawClear, sawReport, sawClass bool
	for _, m := range msgs {
		switch {
		case m.Type == "surface" && m.Op == "set" && m.Text == "":
			sawClear = true
		case m.Type == "surface" && m.Op == "append" && m.Text == "report game.gb: 4 bytes\n":
			sawReport = true
		case m.Type == "class" && m.ClassName == "dropzone":
			sawClass = true
		}
	}
	if !sawClear || !sawReport || !sawClass {
		t.Errorf("missing messages (clear=%v report=%v class=%v): %+v", sawClear, sawReport, sawClass, msgs)
	}
	if ts.engine.runCount() != 1 {
		t.Errorf("only the file item should run, got %d runs", ts.engine.runCount())
	}
}

func TestWebSocketLegacyDropAndHelp(t *testing.T) {
	ts := setupTestServer(t)
	conn := dialWS(t, ts, "?program=romusage-dev")

	conn.WriteJSON(wsInbound{Type: "drop", Files: []wsFile{{Name: "game.noi", Data: []byte("DEF")}}})
	msgs := readUntil(t, conn, "done")
	if msgs[len(msgs)-1].Name != "game.noi" {
		t.Errorf("unexpected done message %+v", msgs[len(msgs)-1])
	}

	conn.WriteJSON(wsInbound{Type: "help"})
	msgs = readUntil(t, conn, "done")
	done := msgs[len(msgs)-1]
	if len(done.Args) != 1 || done.Args[0] != "-h" {
		t.Errorf("help should run with only -h, got %v", done.Args)
	}

	if used := ts.programsUsed(); len(used) != 1 || used[0] != "romusage-dev" {
		t.Errorf("expected romusage-dev, got %v", used)
	}
}

func TestWebSocketDragLeaveAndEmptyDrop(t *testing.T) {
	ts := setupTestServer(t)
	conn := dialWS(t, ts, "")

	conn.WriteJSON(wsInbound{Type: "dragover"})
	readUntil(t, conn, "class")
	conn.WriteJSON(wsInbound{Type: "dragleave"})
	msgs := readUntil(t, conn, "class")
	if got := msgs[len(msgs)-1].ClassName; got != "dropzone" {
		t.Errorf("dragleave class = %q", got)
	}

	conn.WriteJSON(wsInbound{Type: "dragover"})
	readUntil(t, conn, "class")
	conn.WriteJSON(wsInbound{Type: "drop", Items: []wsFile{}})
	msgs = readUntil(t, conn, "class")
	if got := msgs[len(msgs)-1].ClassName; got != "dropzone" {
		t.Errorf("empty drop should clear the highlight, got %q", got)
	}

	conn.WriteJSON(wsInbound{Type: "ping"})
	readUntil(t, conn, "pong")
	if ts.engine.runCount() != 0 {
		t.Error("an empty drop should not run the program")
	}
}

func TestWebSocketErrors(t *testing.T) {
	ts := setupTestServer(t)
	conn := dialWS(t, ts, "")

	conn.WriteJSON(wsInbound{})
	msgs := readUntil(t, conn, "error")
	if !strings.Contains(msgs[len(msgs)-1].Message, "type is required") {
		t.Errorf("unexpected error %+v", msgs[len(msgs)-1])
	}

	conn.WriteJSON(wsInbound{Type: "eject"})
	msgs = readUntil(t, conn, "error")
	if !strings.Contains(msgs[len(msgs)-1].Message, "unsupported type: eject") {
		t.Errorf("unexpected error %+v", msgs[len(msgs)-1])
	}
}

func TestWebSocketUnknownProgram(t *testing.T) {
	ts := setupTestServer(t)
	srv := httptest.NewServer(ts.routes())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?program=nope"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 response, got %v", resp)
	}
}

func TestWebSocketSlowClientGetsFullSurface(t *testing.T) {
	ts := setupTestServer(t)
	ts.engine.extra = 2000
	conn := dialWS(t, ts, "")

	conn.WriteJSON(wsInbound{Type: "drop", Files: []wsFile{{Name: "big.map", Data: []byte("AREA")}}})
	// Let the queue fill up before reading anything.
	time.Sleep(300 * time.Millisecond)

	msgs := readUntil(t, conn, "done")
	surface := display.NewSurface()
	for _, m := range msgs {
		if m.Type != "surface" {
			continue
		}
		switch m.Op {
		case "set":
			surface.SetText(m.Text)
		case "prepend":
			surface.PrependText(m.Text)
		case "append":
			surface.AppendText(m.Text)
		}
	}

	done := msgs[len(msgs)-1]
	if done.Output == "" || surface.Text() != done.Output {
		t.Fatalf("client surface differs from the run output (%d vs %d bytes)", len(surface.Text()), len(done.Output))
	}
	if lines := strings.Count(surface.Text(), "\n"); lines != 2002 {
		t.Errorf("expected 2002 lines, got %d", lines)
	}
	if !strings.HasSuffix(surface.Text(), "line 1999\n") {
		t.Errorf("last line missing: %q", surface.Text()[len(surface.Text())-20:])
	}
}

func TestSendWSStopsWithContext(t *testing.T) {
	ch := make(chan wsOutbound, 1)
	ctx, cancel := context.WithCancel(context.Background())

	if !sendWS(ctx, ch, wsOutbound{Type: "a"}) {
		t.Fatal("send into an empty queue should succeed")
	}
	cancel()
	if sendWS(ctx, ch, wsOutbound{Type: "b"}) {
		t.Error("send into a full queue should give up once ctx is done")
	}
	if got := (<-ch).Type; got != "a" {
		t.Errorf("queued message replaced, got %q", got)
	}
}
