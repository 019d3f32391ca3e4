package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tailored-agentic-units/parley/agent/mock"
	"github.com/tailored-agentic-units/parley/core/protocol"
	"github.com/tailored-agentic-units/parley/judge"
	"github.com/tailored-agentic-units/parley/negotiation"
	"github.com/tailored-agentic-units/parley/observability"
	"github.com/tailored-agentic-units/parley/server"
)

func newServer(t *testing.T, verdict string) *httptest.Server {
	t.Helper()

	m := mock.NewMockAgent(mock.WithHandler(func(ctx context.Context, prompt, model string) (string, error) {
		if judge.IsClassification(prompt) {
			return verdict, nil
		}
		return "Priya: 450 rupees, final offer.", nil
	}))

	cfg := negotiation.DefaultConfig()
	cfg.MaxSteps = 3
	cfg.EngineTimeout = time.Second

	o, err := negotiation.New(&cfg,
		negotiation.WithAgent(m),
		negotiation.WithObserver(observability.NoOpObserver{}),
	)
	if err != nil {
		t.Fatalf("negotiation.New failed: %v", err)
	}

	path, handler := server.NewHandler(o)
	mux := http.NewServeMux()
	mux.Handle(path, handler)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, srv *httptest.Server, procedure string, fields map[string]any) (*structpb.Struct, error) {
	t.Helper()
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		t.Fatalf("NewStruct failed: %v", err)
	}
	client := connect.NewClient[structpb.Struct, structpb.Struct](srv.Client(), srv.URL+procedure)
	resp, err := client.CallUnary(context.Background(), connect.NewRequest(msg))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func compass() map[string]any {
	return map[string]any{
		"subject_metadata": map[string]any{"item": "vintage compass"},
		"model":            "m1",
	}
}

func TestService_StartContinueGet(t *testing.T) {
	srv := newServer(t, "no")

	started, err := call(t, srv, server.StartProcedure, compass())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	id := started.GetFields()["session_id"].GetStringValue()
	if id == "" {
		t.Fatal("Start returned empty session_id")
	}
	if got := started.GetFields()["status"].GetStringValue(); got != server.StatusCreated {
		t.Errorf("got status %q, want %q", got, server.StatusCreated)
	}

	reply, err := call(t, srv, server.ContinueProcedure, map[string]any{
		"session_id": id,
		"message":    "Would you take 400?",
	})
	if err != nil {
		t.Fatalf("Continue failed: %v", err)
	}
	if got := reply.GetFields()["reply"].GetStringValue(); got != "450 rupees, final offer." {
		t.Errorf("got reply %q", got)
	}
	if got := reply.GetFields()["status"].GetStringValue(); got != string(protocol.StatusOngoing) {
		t.Errorf("got status %q, want ongoing", got)
	}

	view, err := call(t, srv, server.GetProcedure, map[string]any{"session_id": id})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	entries := view.GetFields()["transcript"].GetListValue().GetValues()
	if len(entries) != 3 {
		t.Fatalf("got %d transcript entries, want 3", len(entries))
	}
	first := entries[0].GetStructValue().GetFields()
	if got := first["speaker"].GetStringValue(); got != protocol.SpeakerSetup {
		t.Errorf("got first speaker %q, want %q", got, protocol.SpeakerSetup)
	}
	user := entries[1].GetStructValue().GetFields()
	if got := user["text"].GetStringValue(); got != "Would you take 400?" {
		t.Errorf("got user text %q", got)
	}
	if got := view.GetFields()["model"].GetStringValue(); got != "m1" {
		t.Errorf("got model %q, want m1", got)
	}
}

func TestService_Run(t *testing.T) {
	srv := newServer(t, "no")

	out, err := call(t, srv, server.RunProcedure, compass())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	f := out.GetFields()
	if got := f["status"].GetStringValue(); got != string(protocol.StatusMaxStepsReached) {
		t.Errorf("got status %q, want max_steps_reached", got)
	}
	if got := f["turns"].GetNumberValue(); got != 3 {
		t.Errorf("got turns %v, want 3", got)
	}
	// setup + seed + three generated turns
	if got := len(f["transcript"].GetListValue().GetValues()); got != 5 {
		t.Errorf("got %d transcript entries, want 5", got)
	}
	if _, ok := f["reason"]; ok {
		t.Error("reason set on a clean run")
	}
}

func TestService_Errors(t *testing.T) {
	srv := newServer(t, "yes")

	started, err := call(t, srv, server.StartProcedure, compass())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	id := started.GetFields()["session_id"].GetStringValue()
	if _, err := call(t, srv, server.ContinueProcedure, map[string]any{"session_id": id, "message": "400?"}); err != nil {
		t.Fatalf("Continue failed: %v", err)
	}

	tests := []struct {
		name      string
		procedure string
		fields    map[string]any
		code      connect.Code
		kind      negotiation.Kind
	}{
		{
			name:      "missing item",
			procedure: server.StartProcedure,
			fields:    map[string]any{"subject_metadata": map[string]any{"color": "red"}},
			code:      connect.CodeInvalidArgument,
			kind:      negotiation.KindConfiguration,
		},
		{
			name:      "nested metadata",
			procedure: server.StartProcedure,
			fields:    map[string]any{"subject_metadata": map[string]any{"item": map[string]any{"a": "b"}}},
			code:      connect.CodeInvalidArgument,
			kind:      negotiation.KindBadRequest,
		},
		{
			name:      "missing session id",
			procedure: server.ContinueProcedure,
			fields:    map[string]any{"message": "hello"},
			code:      connect.CodeInvalidArgument,
			kind:      negotiation.KindBadRequest,
		},
		{
			name:      "unknown session",
			procedure: server.GetProcedure,
			fields:    map[string]any{"session_id": "does-not-exist"},
			code:      connect.CodeNotFound,
			kind:      negotiation.KindNotFound,
		},
		{
			name:      "concluded session",
			procedure: server.ContinueProcedure,
			fields:    map[string]any{"session_id": id, "message": "one more"},
			code:      connect.CodeFailedPrecondition,
			kind:      negotiation.KindInvalidState,
		},
		{
			name:      "empty message",
			procedure: server.ContinueProcedure,
			fields:    map[string]any{"session_id": id, "message": "  "},
			code:      connect.CodeFailedPrecondition,
			kind:      negotiation.KindInvalidState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := call(t, srv, tt.procedure, tt.fields)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if got := connect.CodeOf(err); got != tt.code {
				t.Errorf("got code %v, want %v", got, tt.code)
			}
			var cerr *connect.Error
			if !errors.As(err, &cerr) {
				t.Fatalf("expected *connect.Error, got %T", err)
			}
			if got := cerr.Meta().Get(server.KindHeader); got != string(tt.kind) {
				t.Errorf("got kind %q, want %q", got, tt.kind)
			}
			if cerr.Message() == "" {
				t.Error("error message is empty")
			}
		})
	}
}

func TestService_PlainJSON(t *testing.T) {
	srv := newServer(t, "no")

	body, err := json.Marshal(compass())
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	resp, err := srv.Client().Post(srv.URL+server.StartProcedure, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d, want 200", resp.StatusCode)
	}

	var out struct {
		SessionID string `json:"session_id"`
		Status    string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if out.SessionID == "" {
		t.Error("session_id is empty")
	}
	if out.Status != server.StatusCreated {
		t.Errorf("got status %q, want %q", out.Status, server.StatusCreated)
	}
}

func TestService_PlainJSONNotFound(t *testing.T) {
	srv := newServer(t, "no")

	resp, err := srv.Client().Post(srv.URL+server.GetProcedure, "application/json",
		bytes.NewReader([]byte(`{"session_id":"missing"}`)))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("got status %d, want 404", resp.StatusCode)
	}
	if got := resp.Header.Get(server.KindHeader); got != string(negotiation.KindNotFound) {
		t.Errorf("got kind header %q, want not_found", got)
	}
}

func TestClient(t *testing.T) {
	srv := newServer(t, "no")
	c := server.NewClient(srv.Client(), srv.URL)
	ctx := context.Background()

	id, err := c.Start(ctx, negotiation.Request{Metadata: map[string]string{"item": "vintage compass"}})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	reply, err := c.Continue(ctx, id, "400?")
	if err != nil {
		t.Fatalf("Continue failed: %v", err)
	}
	if reply.Status != protocol.StatusOngoing {
		t.Errorf("got status %q, want ongoing", reply.Status)
	}

	tr, status, err := c.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(tr) != 3 || status != protocol.StatusOngoing {
		t.Errorf("got %d entries with status %q", len(tr), status)
	}

	result, err := c.Run(ctx, negotiation.Request{Metadata: map[string]string{"item": "vintage compass"}})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Turns != 3 || result.Status != protocol.StatusMaxStepsReached {
		t.Errorf("got %d turns with status %q", result.Turns, result.Status)
	}

	if _, _, err := c.Get(ctx, "missing"); !errors.Is(err, negotiation.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
