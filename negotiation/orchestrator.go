// Package negotiation runs two-party negotiations over a completion engine.
//
// The Orchestrator supports two flows. Run drives a fully simulated
// negotiation to a terminal status within a bounded number of turns. Start,
// Continue, and Get drive an interactive session in which the opening party
// is a live user and the engine plays the counterpart, one reply per call.
//
//	o, err := negotiation.New(&cfg)
//	result, err := o.Run(ctx, negotiation.Request{Metadata: map[string]string{"item": "vintage compass"}})
package negotiation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/tailored-agentic-units/parley/agent"
	"github.com/tailored-agentic-units/parley/core/protocol"
	"github.com/tailored-agentic-units/parley/judge"
	"github.com/tailored-agentic-units/parley/observability"
	"github.com/tailored-agentic-units/parley/scenario"
	"github.com/tailored-agentic-units/parley/session"
	"github.com/tailored-agentic-units/parley/transcript"
	"github.com/tailored-agentic-units/parley/turn"
)

// Request seeds a new session.
type Request struct {
	Metadata map[string]string // Subject metadata; "item" is required, "scenario" is optional.
	Model    string            // Empty uses the configured default model.
}

// Result is the outcome of an autonomous run.
type Result struct {
	SessionID  string
	Transcript []protocol.Utterance
	Status     protocol.Status
	Turns      int    // Generated turns, excluding the seed line.
	Reason     string // Why the run ended incomplete, if it did.
}

// Reply is the outcome of one interactive step.
type Reply struct {
	Text   string // Empty when the engine produced no response.
	Status protocol.Status
}

// Option configures an Orchestrator after config-driven initialization.
type Option func(*Orchestrator)

// WithAgent overrides the config-created completion engine.
func WithAgent(a agent.Agent) Option {
	return func(o *Orchestrator) { o.agent = a }
}

// WithStore overrides the default in-memory session store.
func WithStore(s *session.Store) Option {
	return func(o *Orchestrator) { o.store = s }
}

// WithScenarios overrides the config-created scenario library.
func WithScenarios(s scenario.Store) Option {
	return func(o *Orchestrator) { o.scenarios = s }
}

// WithObserver overrides the default SlogObserver.
func WithObserver(obs observability.Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// Orchestrator composes the transcript builder, turn engine, judge, and
// session store. It is safe for concurrent use.
type Orchestrator struct {
	agent     agent.Agent
	store     *session.Store
	scenarios scenario.Store
	observer  observability.Observer
	turns     *turn.Engine
	judge     *judge.Judge

	defaultModel        string
	maxSteps            int
	interactiveMaxTurns int
	retry               bool
}

// New creates an Orchestrator from configuration. Options applied after
// initialization can override any subsystem.
func New(cfg *Config, opts ...Option) (*Orchestrator, error) {
	if cfg.MaxSteps <= 0 {
		return nil, fmt.Errorf("%w: max_steps must be positive, got %d", ErrConfiguration, cfg.MaxSteps)
	}

	o := &Orchestrator{
		store:               session.NewStore(),
		scenarios:           scenario.NewStore(&cfg.Scenario),
		observer:            observability.NewSlogObserver(slog.Default()),
		defaultModel:        cfg.DefaultModel,
		maxSteps:            cfg.MaxSteps,
		interactiveMaxTurns: cfg.InteractiveMaxTurns,
		retry:               !cfg.DisableRetry,
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.agent == nil {
		a, err := agent.New(&cfg.Agent)
		if err != nil {
			return nil, fmt.Errorf("failed to create agent: %w", err)
		}
		o.agent = a
	}

	o.turns = turn.New(o.agent, cfg.EngineTimeout)
	o.judge = judge.New(o.agent, cfg.EngineTimeout)

	return o, nil
}

// Store returns the orchestrator's session store.
func (o *Orchestrator) Store() *session.Store {
	return o.store
}

// Run creates a session and simulates both parties until the judge reports
// a conclusion, the engine produces no response, or MaxSteps generated
// turns have been appended. Engine failures end the run as incomplete with
// Result.Reason set; only setup errors and store failures are returned.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sess, seed, err := o.create(ctx, req, true)
	if err != nil {
		return nil, err
	}

	next, err := o.store.Update(ctx, sess.ID, func(s *session.Session) error {
		s.Append(s.Opener(), seed)
		return nil
	})
	if err != nil {
		return o.abandon(ctx, sess, "", err)
	}
	sess = next

	o.emit(ctx, EventTurn, observability.LevelInfo, "negotiation.Run", map[string]any{
		"session_id": sess.ID,
		"speaker":    sess.Opener(),
		"text":       seed,
		"turn":       0,
	})

	var reason string
	for step := 0; step < o.maxSteps; step++ {
		speaker := sess.Participants[(step+1)%2]

		next, err := o.store.Update(ctx, sess.ID, func(s *session.Session) error {
			text, err := o.generate(ctx, s.Transcript, speaker, s.Model)
			if err != nil {
				s.Status = protocol.StatusIncomplete
				reason = err.Error()
				o.emit(ctx, EventError, observability.LevelWarning, "negotiation.Run", map[string]any{
					"session_id": s.ID,
					"speaker":    speaker,
					"kind":       string(KindOf(err)),
					"error":      reason,
				})
				return nil
			}

			s.Append(speaker, text)
			s.Turns++
			o.emit(ctx, EventTurn, observability.LevelInfo, "negotiation.Run", map[string]any{
				"session_id": s.ID,
				"speaker":    speaker,
				"text":       text,
				"turn":       s.Turns,
			})

			if o.concluded(ctx, s) {
				s.Status = protocol.StatusConcluded
			}
			return nil
		})
		if err != nil {
			return o.abandon(ctx, sess, reason, err)
		}
		sess = next

		if sess.Status.IsTerminal() {
			break
		}
	}

	if !sess.Status.IsTerminal() {
		next, err := o.store.Update(ctx, sess.ID, func(s *session.Session) error {
			s.Status = protocol.StatusMaxStepsReached
			return nil
		})
		if err != nil {
			return o.abandon(ctx, sess, reason, err)
		}
		sess = next
	}

	o.emit(ctx, EventComplete, observability.LevelInfo, "negotiation.Run", map[string]any{
		"session_id": sess.ID,
		"status":     string(sess.Status),
		"turns":      sess.Turns,
	})

	return o.result(sess, reason), nil
}

// abandon ends a run whose session could not be advanced. The stored
// session is moved to incomplete, bypassing ctx cancellation, so a failed
// run never leaves an ongoing session behind.
func (o *Orchestrator) abandon(ctx context.Context, sess session.Session, reason string, cause error) (*Result, error) {
	final, err := o.store.Update(context.WithoutCancel(ctx), sess.ID, func(s *session.Session) error {
		if !s.Status.IsTerminal() {
			s.Status = protocol.StatusIncomplete
		}
		return nil
	})
	if err == nil {
		sess = final
	}
	if reason == "" {
		reason = cause.Error()
	}

	o.emit(ctx, EventError, observability.LevelError, "negotiation.Run", map[string]any{
		"session_id": sess.ID,
		"kind":       string(KindOf(cause)),
		"error":      cause.Error(),
	})
	return o.result(sess, reason), cause
}

// Start creates an interactive session and returns its identifier.
func (o *Orchestrator) Start(ctx context.Context, req Request) (string, error) {
	sess, _, err := o.create(ctx, req, false)
	if err != nil {
		return "", err
	}
	return sess.ID, nil
}

// Continue appends the user's message, folded onto one line, under the
// opener's label, generates one reply from the responder, and updates the
// session status. The step is
// atomic: on any error the stored session is left exactly as it was.
// An empty generation is not an error; the user's line is kept, the reply is
// empty, and the session becomes incomplete.
func (o *Orchestrator) Continue(ctx context.Context, id, message string) (*Reply, error) {
	var reply string

	sess, err := o.store.Update(ctx, id, func(s *session.Session) error {
		if s.Status.IsTerminal() {
			return fmt.Errorf("%w: %s is %s", ErrInvalidState, s.ID, s.Status)
		}

		msg := strings.Join(strings.Fields(message), " ")
		if msg == "" {
			return fmt.Errorf("%w: message is required", ErrBadRequest)
		}

		s.Append(s.Opener(), msg)

		text, err := o.generate(ctx, s.Transcript, s.Responder(), s.Model)
		if errors.Is(err, ErrEmptyGeneration) {
			s.Status = protocol.StatusIncomplete
			o.emit(ctx, EventError, observability.LevelWarning, "negotiation.Continue", map[string]any{
				"session_id": s.ID,
				"speaker":    s.Responder(),
				"kind":       string(KindEmptyGeneration),
			})
			return nil
		}
		if err != nil {
			return err
		}

		s.Append(s.Responder(), text)
		s.Turns++
		reply = text
		o.emit(ctx, EventTurn, observability.LevelInfo, "negotiation.Continue", map[string]any{
			"session_id": s.ID,
			"speaker":    s.Responder(),
			"text":       text,
			"turn":       s.Turns,
		})

		switch {
		case o.concluded(ctx, s):
			s.Status = protocol.StatusConcluded
		case o.interactiveMaxTurns > 0 && s.Turns >= o.interactiveMaxTurns:
			s.Status = protocol.StatusMaxStepsReached
		}
		return nil
	})
	if err != nil {
		if !IsClientError(err) {
			o.emit(ctx, EventError, observability.LevelError, "negotiation.Continue", map[string]any{
				"session_id": id,
				"kind":       string(KindOf(err)),
				"error":      err.Error(),
			})
		}
		return nil, err
	}

	return &Reply{Text: reply, Status: sess.Status}, nil
}

// Get returns a snapshot of the session.
func (o *Orchestrator) Get(id string) (session.Session, error) {
	return o.store.Get(id)
}

// create validates req, renders the setup, and stores a new session. When
// withSeed is set the scenario's opening line is rendered first so a run
// never leaves a session behind that it cannot open.
func (o *Orchestrator) create(ctx context.Context, req Request, withSeed bool) (session.Session, string, error) {
	metadata := maps.Clone(req.Metadata)
	if metadata == nil {
		metadata = map[string]string{}
	}

	name := metadata[scenario.MetadataKey]
	if name == "" {
		name = scenario.DefaultName
	}

	sc, err := o.scenarios.Load(ctx, name)
	if err != nil {
		return session.Session{}, "", err
	}

	setup, err := transcript.Build(sc.Setup(metadata))
	if err != nil {
		return session.Session{}, "", err
	}

	var seed string
	if withSeed {
		if seed, err = sc.SeedLine(metadata); err != nil {
			return session.Session{}, "", err
		}
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = o.defaultModel
	}
	if model == "" {
		return session.Session{}, "", fmt.Errorf("%w: model is required", ErrConfiguration)
	}

	sess := o.store.Create(setup, model, sc.Labels(), metadata)

	o.emit(ctx, EventSessionStart, observability.LevelInfo, "negotiation.create", map[string]any{
		"session_id": sess.ID,
		"scenario":   sc.Name,
		"model":      model,
		"item":       metadata[transcript.SubjectItem],
	})

	return sess, seed, nil
}

// generate produces one turn, retrying a plain generation failure once when
// retries are enabled. Timeouts and empty generations are never retried.
func (o *Orchestrator) generate(ctx context.Context, t []protocol.Utterance, speaker, model string) (string, error) {
	text, err := o.turns.Next(ctx, t, speaker, model)
	if err == nil || !o.retry || !isRetryable(err) || ctx.Err() != nil {
		return text, err
	}

	o.emit(ctx, EventRetry, observability.LevelWarning, "negotiation.generate", map[string]any{
		"speaker": speaker,
		"error":   err.Error(),
	})
	return o.turns.Next(ctx, t, speaker, model)
}

func isRetryable(err error) bool {
	return errors.Is(err, ErrGeneration) &&
		!errors.Is(err, ErrGenerationTimeout) &&
		!errors.Is(err, ErrEmptyGeneration)
}

// concluded consults the judge. A failed classification counts as not
// concluded and is only logged.
func (o *Orchestrator) concluded(ctx context.Context, s *session.Session) bool {
	done, err := o.judge.HasConcluded(ctx, s.Transcript, s.Model)

	data := map[string]any{
		"session_id": s.ID,
		"turn":       s.Turns,
		"concluded":  done,
	}
	level := observability.LevelVerbose
	if err != nil {
		data["error"] = err.Error()
		level = observability.LevelWarning
	}
	o.emit(ctx, EventJudge, level, "negotiation.judge", data)

	return done
}

func (o *Orchestrator) result(sess session.Session, reason string) *Result {
	return &Result{
		SessionID:  sess.ID,
		Transcript: sess.Transcript,
		Status:     sess.Status,
		Turns:      sess.Turns,
		Reason:     reason,
	}
}

func (o *Orchestrator) emit(ctx context.Context, typ observability.EventType, level observability.Level, source string, data map[string]any) {
	o.observer.OnEvent(ctx, observability.Event{
		Type:      typ,
		Level:     level,
		Timestamp: time.Now(),
		Source:    source,
		Data:      data,
	})
}
