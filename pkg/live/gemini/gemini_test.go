package gemini_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/quilang-hardware/hardy/pkg/audio"
	"github.com/quilang-hardware/hardy/pkg/live"
	"github.com/quilang-hardware/hardy/pkg/live/gemini"
	"github.com/quilang-hardware/hardy/pkg/video"
)

// ── Helpers ───────────────────────────────────────────────────────────────────

// wsURL converts an httptest server HTTP URL to a WebSocket URL.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// startGeminiServer launches a test WebSocket server. The handler function
// receives the accepted *websocket.Conn. The server is automatically closed
// when the test finishes.
func startGeminiServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			return
		}
		conn.SetReadLimit(4 << 20)
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// readJSON reads one WebSocket text frame and decodes it into v.
func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Errorf("readJSON: %v", err)
		return
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Errorf("readJSON unmarshal: %v", err)
	}
}

// writeJSON marshals v and sends it as a text frame.
func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	data, _ := json.Marshal(v)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Logf("writeJSON: %v (may be expected on close)", err)
	}
}

// sendSetupComplete sends the server-side setupComplete ack.
func sendSetupComplete(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	writeJSON(t, conn, map[string]any{"setupComplete": map[string]any{}})
}

// nextEvent waits for the next event on the session stream.
func nextEvent(t *testing.T, s live.Session) live.Event {
	t.Helper()
	select {
	case ev, ok := <-s.Events():
		if !ok {
			t.Fatal("event stream closed")
		}
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for event")
	}
	return live.Event{}
}

// open connects a provider pointed at srv and waits for EventOpen.
func open(t *testing.T, srv *httptest.Server, cfg live.Config) live.Session {
	t.Helper()
	p := gemini.New("test-api-key", gemini.WithBaseURL(wsURL(srv)))
	sess, err := p.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { sess.Close() })
	if ev := nextEvent(t, sess); ev.Type != live.EventOpen {
		t.Fatalf("first event = %v, want open", ev.Type)
	}
	return sess
}

// ── Setup ─────────────────────────────────────────────────────────────────────

func TestOpen_SendsSetup(t *testing.T) {
	t.Parallel()

	type setupMsg struct {
		Setup struct {
			Model            string `json:"model"`
			GenerationConfig struct {
				ResponseModalities []string `json:"responseModalities"`
				SpeechConfig       struct {
					VoiceConfig struct {
						PrebuiltVoiceConfig struct {
							VoiceName string `json:"voiceName"`
						} `json:"prebuiltVoiceConfig"`
					} `json:"voiceConfig"`
				} `json:"speechConfig"`
			} `json:"generationConfig"`
			SystemInstruction *struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"systemInstruction"`
			Tools []struct {
				FunctionDeclarations []struct {
					Name       string         `json:"name"`
					Parameters map[string]any `json:"parameters"`
				} `json:"functionDeclarations"`
			} `json:"tools"`
		} `json:"setup"`
	}

	received := make(chan setupMsg, 1)
	keys := make(chan string, 1)
	srv := startGeminiServer(t, func(conn *websocket.Conn, r *http.Request) {
		keys <- r.URL.Query().Get("key")
		var msg setupMsg
		readJSON(t, conn, &msg)
		received <- msg
		sendSetupComplete(t, conn)
		<-conn.CloseRead(context.Background()).Done()
	})

	open(t, srv, live.Config{
		Voice:        "Charon",
		Instructions: "You are Hardy.",
		Tools: []live.ToolDefinition{
			{Name: "getInventorySummary", Description: "inventory"},
			{Name: "searchProduct", Parameters: map[string]any{"type": "object"}},
		},
	})

	if k := <-keys; k != "test-api-key" {
		t.Errorf("key = %q", k)
	}
	msg := <-received
	if msg.Setup.Model != "models/gemini-2.5-flash-native-audio-preview-09-2025" {
		t.Errorf("model = %q", msg.Setup.Model)
	}
	if got := msg.Setup.GenerationConfig.ResponseModalities; len(got) != 1 || got[0] != "AUDIO" {
		t.Errorf("responseModalities = %v", got)
	}
	if v := msg.Setup.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName; v != "Charon" {
		t.Errorf("voice = %q", v)
	}
	if si := msg.Setup.SystemInstruction; si == nil || si.Parts[0].Text != "You are Hardy." {
		t.Errorf("systemInstruction = %+v", si)
	}
	if len(msg.Setup.Tools) != 1 || len(msg.Setup.Tools[0].FunctionDeclarations) != 2 {
		t.Fatalf("tools = %+v", msg.Setup.Tools)
	}
	if fd := msg.Setup.Tools[0].FunctionDeclarations[0]; fd.Name != "getInventorySummary" || fd.Parameters != nil {
		t.Errorf("first declaration = %+v", fd)
	}
}

func TestOpen_ConfigModelOverrides(t *testing.T) {
	t.Parallel()

	models := make(chan string, 1)
	srv := startGeminiServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var msg struct {
			Setup struct {
				Model string `json:"model"`
			} `json:"setup"`
		}
		readJSON(t, conn, &msg)
		models <- msg.Setup.Model
		sendSetupComplete(t, conn)
		<-conn.CloseRead(context.Background()).Done()
	})

	open(t, srv, live.Config{Model: "custom-model"})
	if m := <-models; m != "models/custom-model" {
		t.Errorf("model = %q, want models/custom-model", m)
	}
}

func TestOpen_DialError(t *testing.T) {
	t.Parallel()

	p := gemini.New("key", gemini.WithBaseURL("ws://127.0.0.1:1"))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := p.Open(ctx, live.Config{}); err == nil {
		t.Fatal("expected dial error")
	}
}

// ── Outbound ──────────────────────────────────────────────────────────────────

func TestSendAudioAndVideo_MediaChunks(t *testing.T) {
	t.Parallel()

	type chunkMsg struct {
		RealtimeInput struct {
			MediaChunks []struct {
				MIMEType string `json:"mimeType"`
				Data     string `json:"data"`
			} `json:"mediaChunks"`
		} `json:"realtimeInput"`
	}

	got := make(chan chunkMsg, 2)
	srv := startGeminiServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var setup map[string]any
		readJSON(t, conn, &setup)
		sendSetupComplete(t, conn)
		for range 2 {
			var m chunkMsg
			readJSON(t, conn, &m)
			got <- m
		}
		<-conn.CloseRead(context.Background()).Done()
	})

	sess := open(t, srv, live.Config{})
	pcm := []byte{1, 2, 3, 4}
	if err := sess.SendAudio(audio.AudioFrame{Data: pcm, SampleRate: 16000, Channels: 1}); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	if err := sess.SendVideoFrame(video.Frame{MIMEType: "image/jpeg", Data: []byte("jpeg")}); err != nil {
		t.Fatalf("SendVideoFrame: %v", err)
	}

	a := <-got
	if c := a.RealtimeInput.MediaChunks[0]; c.MIMEType != "audio/pcm;rate=16000" || c.Data != base64.StdEncoding.EncodeToString(pcm) {
		t.Errorf("audio chunk = %+v", c)
	}
	v := <-got
	if c := v.RealtimeInput.MediaChunks[0]; c.MIMEType != "image/jpeg" || c.Data != base64.StdEncoding.EncodeToString([]byte("jpeg")) {
		t.Errorf("video chunk = %+v", c)
	}
}

func TestSendToolResult_WrapsResult(t *testing.T) {
	t.Parallel()

	type respMsg struct {
		ToolResponse struct {
			FunctionResponses []struct {
				ID       string         `json:"id"`
				Name     string         `json:"name"`
				Response map[string]any `json:"response"`
			} `json:"functionResponses"`
		} `json:"toolResponse"`
	}

	got := make(chan respMsg, 1)
	srv := startGeminiServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var setup map[string]any
		readJSON(t, conn, &setup)
		sendSetupComplete(t, conn)
		var m respMsg
		readJSON(t, conn, &m)
		got <- m
		<-conn.CloseRead(context.Background()).Done()
	})

	sess := open(t, srv, live.Config{})
	err := sess.SendToolResult(live.ToolResult{
		ID:      "call-1",
		Name:    "getLowStockAlerts",
		Payload: map[string]any{"lowStockItems": "No items are low on stock."},
	})
	if err != nil {
		t.Fatalf("SendToolResult: %v", err)
	}

	m := <-got
	fr := m.ToolResponse.FunctionResponses
	if len(fr) != 1 || fr[0].ID != "call-1" || fr[0].Name != "getLowStockAlerts" {
		t.Fatalf("functionResponses = %+v", fr)
	}
	result, ok := fr[0].Response["result"].(map[string]any)
	if !ok || result["lowStockItems"] != "No items are low on stock." {
		t.Errorf("response = %v", fr[0].Response)
	}
}

func TestSend_AfterClose(t *testing.T) {
	t.Parallel()

	srv := startGeminiServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var setup map[string]any
		readJSON(t, conn, &setup)
		sendSetupComplete(t, conn)
		<-conn.CloseRead(context.Background()).Done()
	})

	sess := open(t, srv, live.Config{})
	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := sess.SendAudio(audio.AudioFrame{Data: []byte{0, 0}}); !errors.Is(err, live.ErrSessionClosed) {
		t.Errorf("SendAudio after close = %v", err)
	}
	if err := sess.SendToolResult(live.ToolResult{ID: "x"}); !errors.Is(err, live.ErrSessionClosed) {
		t.Errorf("SendToolResult after close = %v", err)
	}

	// Locally closed: stream closes without a terminal event.
	select {
	case ev, ok := <-sess.Events():
		if ok {
			t.Errorf("unexpected event after local close: %v", ev.Type)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("event stream not closed")
	}
}

// ── Inbound ───────────────────────────────────────────────────────────────────

func TestEvents_OrderedAudioInterruptAndToolCall(t *testing.T) {
	t.Parallel()

	chunk1 := []byte{1, 0, 2, 0}
	chunk2 := []byte{3, 0, 4, 0}
	srv := startGeminiServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var setup map[string]any
		readJSON(t, conn, &setup)
		sendSetupComplete(t, conn)
		writeJSON(t, conn, map[string]any{
			"serverContent": map[string]any{
				"modelTurn": map[string]any{
					"parts": []any{
						map[string]any{"inlineData": map[string]any{"mimeType": "audio/pcm;rate=24000", "data": base64.StdEncoding.EncodeToString(chunk1)}},
						map[string]any{"inlineData": map[string]any{"mimeType": "audio/pcm;rate=24000", "data": base64.StdEncoding.EncodeToString(chunk2)}},
					},
				},
			},
		})
		writeJSON(t, conn, map[string]any{"serverContent": map[string]any{"interrupted": true}})
		writeJSON(t, conn, map[string]any{
			"toolCall": map[string]any{
				"functionCalls": []any{
					map[string]any{"id": "fc-1", "name": "searchProduct", "args": map[string]any{"query": "Cement"}},
				},
			},
		})
		<-conn.CloseRead(context.Background()).Done()
	})

	sess := open(t, srv, live.Config{})

	ev := nextEvent(t, sess)
	if ev.Type != live.EventAudio || string(ev.Audio) != string(chunk1) {
		t.Errorf("event 1 = %v %v", ev.Type, ev.Audio)
	}
	ev = nextEvent(t, sess)
	if ev.Type != live.EventAudio || string(ev.Audio) != string(chunk2) {
		t.Errorf("event 2 = %v %v", ev.Type, ev.Audio)
	}
	if ev = nextEvent(t, sess); ev.Type != live.EventInterrupted {
		t.Errorf("event 3 = %v, want interrupted", ev.Type)
	}
	ev = nextEvent(t, sess)
	if ev.Type != live.EventToolCall || len(ev.ToolCalls) != 1 {
		t.Fatalf("event 4 = %v %+v", ev.Type, ev.ToolCalls)
	}
	tc := ev.ToolCalls[0]
	if tc.ID != "fc-1" || tc.Name != "searchProduct" || tc.Args["query"] != "Cement" {
		t.Errorf("tool call = %+v", tc)
	}
}

func TestEvents_RemoteNormalCloseIsTerminal(t *testing.T) {
	t.Parallel()

	srv := startGeminiServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var setup map[string]any
		readJSON(t, conn, &setup)
		sendSetupComplete(t, conn)
		conn.Close(websocket.StatusNormalClosure, "bye")
	})

	sess := open(t, srv, live.Config{})
	if ev := nextEvent(t, sess); ev.Type != live.EventClose {
		t.Errorf("event = %v, want close", ev.Type)
	}
	if _, ok := <-sess.Events(); ok {
		t.Error("stream not closed after terminal event")
	}
}

func TestEvents_ServerErrorIsTerminal(t *testing.T) {
	t.Parallel()

	srv := startGeminiServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var setup map[string]any
		readJSON(t, conn, &setup)
		sendSetupComplete(t, conn)
		writeJSON(t, conn, map[string]any{"error": map[string]any{"code": 429, "message": "quota exceeded"}})
		<-conn.CloseRead(context.Background()).Done()
	})

	sess := open(t, srv, live.Config{})
	ev := nextEvent(t, sess)
	if ev.Type != live.EventError || ev.Err == nil || !strings.Contains(ev.Err.Error(), "quota exceeded") {
		t.Errorf("event = %v %v", ev.Type, ev.Err)
	}
}

func TestEvents_AbnormalDisconnectIsError(t *testing.T) {
	t.Parallel()

	srv := startGeminiServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var setup map[string]any
		readJSON(t, conn, &setup)
		sendSetupComplete(t, conn)
		conn.Close(websocket.StatusInternalError, "boom")
	})

	sess := open(t, srv, live.Config{})
	if ev := nextEvent(t, sess); ev.Type != live.EventError {
		t.Errorf("event = %v, want error", ev.Type)
	}
}

func TestEvents_MalformedFramesSkipped(t *testing.T) {
	t.Parallel()

	srv := startGeminiServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var setup map[string]any
		readJSON(t, conn, &setup)
		sendSetupComplete(t, conn)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = conn.Write(ctx, websocket.MessageText, []byte("{not json"))
		writeJSON(t, conn, map[string]any{"serverContent": map[string]any{"interrupted": true}})
		<-conn.CloseRead(context.Background()).Done()
	})

	sess := open(t, srv, live.Config{})
	if ev := nextEvent(t, sess); ev.Type != live.EventInterrupted {
		t.Errorf("event = %v, want interrupted", ev.Type)
	}
}
