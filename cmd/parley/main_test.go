package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tailored-agentic-units/parley/agent/mock"
	"github.com/tailored-agentic-units/parley/core/protocol"
	"github.com/tailored-agentic-units/parley/judge"
	"github.com/tailored-agentic-units/parley/negotiation"
	"github.com/tailored-agentic-units/parley/observability"
)

func TestProgress(t *testing.T) {
	var out bytes.Buffer
	p := &progress{w: &out, total: 2}
	ctx := context.Background()

	p.OnEvent(ctx, observability.Event{Type: negotiation.EventTurn})
	p.OnEvent(ctx, observability.Event{
		Type: negotiation.EventComplete,
		Data: map[string]any{"session_id": "s1", "status": "concluded", "turns": 3},
	})

	got := out.String()
	if strings.Count(got, "\n") != 1 {
		t.Errorf("expected one line, got %q", got)
	}
	if !strings.Contains(got, "[1/2] s1 concluded after 3 turns") {
		t.Errorf("unexpected progress line %q", got)
	}
}

func newTestOrchestrator(t *testing.T, verdict func(n int) string) *negotiation.Orchestrator {
	t.Helper()
	var judged atomic.Int32
	m := mock.NewMockAgent(mock.WithHandler(func(ctx context.Context, prompt, model string) (string, error) {
		if judge.IsClassification(prompt) {
			return verdict(int(judged.Add(1))), nil
		}
		return "How about 450?", nil
	}))

	cfg := negotiation.DefaultConfig()
	cfg.MaxSteps = 2
	cfg.EngineTimeout = time.Second
	o, err := negotiation.New(&cfg, negotiation.WithAgent(m), negotiation.WithObserver(observability.NoOpObserver{}))
	if err != nil {
		t.Fatalf("negotiation.New failed: %v", err)
	}
	return o
}

func TestChat(t *testing.T) {
	o := newTestOrchestrator(t, func(n int) string {
		if n == 2 {
			return "yes"
		}
		return "no"
	})

	in := strings.NewReader("Would you take 300?\n\n400 then?\nnever sent\n")
	var out bytes.Buffer

	req := negotiation.Request{Metadata: map[string]string{"item": "vintage compass"}}
	if err := chat(context.Background(), localChat{o}, req, in, &out); err != nil {
		t.Fatalf("chat failed: %v", err)
	}

	got := out.String()
	if n := strings.Count(got, "How about 450?"); n != 2 {
		t.Errorf("got %d replies, want 2:\n%s", n, got)
	}
	if !strings.Contains(got, string(protocol.StatusConcluded)) {
		t.Errorf("output missing concluded status:\n%s", got)
	}
}

func TestChat_EndOfInput(t *testing.T) {
	o := newTestOrchestrator(t, func(int) string { return "no" })

	var out bytes.Buffer
	req := negotiation.Request{Metadata: map[string]string{"item": "vintage compass"}}
	if err := chat(context.Background(), localChat{o}, req, strings.NewReader("hello\n"), &out); err != nil {
		t.Fatalf("chat failed: %v", err)
	}
	if strings.Contains(out.String(), string(protocol.StatusConcluded)) {
		t.Errorf("session reported concluded:\n%s", out.String())
	}
}

func TestChat_StartError(t *testing.T) {
	o := newTestOrchestrator(t, func(int) string { return "no" })

	var out bytes.Buffer
	err := chat(context.Background(), localChat{o}, negotiation.Request{}, strings.NewReader(""), &out)
	if !errors.Is(err, negotiation.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

type fakeRunner struct {
	mu      sync.Mutex
	active  int
	maxSeen int
}

func (f *fakeRunner) Run(ctx context.Context, req negotiation.Request) (*negotiation.Result, error) {
	f.mu.Lock()
	f.active++
	if f.active > f.maxSeen {
		f.maxSeen = f.active
	}
	f.mu.Unlock()

	time.Sleep(10 * time.Millisecond)

	f.mu.Lock()
	f.active--
	f.mu.Unlock()

	item := req.Metadata["item"]
	if item == "broken" {
		return nil, fmt.Errorf("%w: engine down", negotiation.ErrGeneration)
	}
	return &negotiation.Result{SessionID: item, Status: protocol.StatusConcluded}, nil
}

func TestRunAll(t *testing.T) {
	f := &fakeRunner{}
	items := []string{"a", "b", "broken", "c", "d"}

	results, err := runAll(context.Background(), f, items, "", "", 2)
	if !errors.Is(err, negotiation.ErrGeneration) {
		t.Errorf("expected ErrGeneration, got %v", err)
	}
	if f.maxSeen > 2 {
		t.Errorf("saw %d concurrent runs, want at most 2", f.maxSeen)
	}

	for i, item := range items {
		if item == "broken" {
			if results[i] != nil {
				t.Errorf("results[%d] = %+v, want nil", i, results[i])
			}
			continue
		}
		if results[i] == nil || results[i].SessionID != item {
			t.Errorf("results[%d] = %+v, want session %q", i, results[i], item)
		}
	}
}

func TestPrintResult(t *testing.T) {
	res := &negotiation.Result{
		SessionID: "abc",
		Transcript: []protocol.Utterance{
			protocol.NewUtterance(protocol.SpeakerSetup, "hidden setup text"),
			protocol.NewUtterance("John", "Hello"),
			protocol.NewUtterance("Priya", "500"),
		},
		Status: protocol.StatusIncomplete,
		Turns:  1,
		Reason: "engine down",
	}

	var out bytes.Buffer
	printResult(&out, res)
	got := out.String()

	for _, want := range []string{"session abc", "John:", "Hello", "Priya:", "500", "incomplete", "engine down", "1 generated turns"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "hidden setup text") {
		t.Error("setup block printed")
	}
}
