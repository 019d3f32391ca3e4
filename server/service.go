// Package server exposes the negotiation session API as a Connect RPC
// service. Payloads are google.protobuf.Struct messages, so the service is
// reachable from any Connect, gRPC, or gRPC-Web client, and from plain HTTP
// with JSON bodies:
//
//	curl -H 'Content-Type: application/json' \
//	  -d '{"subject_metadata":{"item":"vintage compass"},"model":"llama2"}' \
//	  http://localhost:8080/parley.v1.NegotiationService/Start
package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tailored-agentic-units/parley/core/protocol"
	"github.com/tailored-agentic-units/parley/negotiation"
	"github.com/tailored-agentic-units/parley/session"
)

// ServiceName is the fully-qualified Connect service name.
const ServiceName = "parley.v1.NegotiationService"

// Procedure paths.
const (
	StartProcedure    = "/" + ServiceName + "/Start"
	ContinueProcedure = "/" + ServiceName + "/Continue"
	GetProcedure      = "/" + ServiceName + "/Get"
	RunProcedure      = "/" + ServiceName + "/Run"
)

// StatusCreated is reported by Start for a freshly created session.
const StatusCreated = "created"

// KindHeader carries the stable error kind on failed calls.
const KindHeader = "Parley-Error-Kind"

// Negotiator is the orchestrator surface the service depends on.
type Negotiator interface {
	Run(ctx context.Context, req negotiation.Request) (*negotiation.Result, error)
	Start(ctx context.Context, req negotiation.Request) (string, error)
	Continue(ctx context.Context, id, message string) (*negotiation.Reply, error)
	Get(id string) (session.Session, error)
}

type service struct {
	n Negotiator
}

// NewHandler returns the service's base path and an http.Handler serving
// all four procedures.
func NewHandler(n Negotiator, opts ...connect.HandlerOption) (string, http.Handler) {
	s := &service{n: n}

	mux := http.NewServeMux()
	mux.Handle(StartProcedure, connect.NewUnaryHandler(StartProcedure, s.start, opts...))
	mux.Handle(ContinueProcedure, connect.NewUnaryHandler(ContinueProcedure, s.continueSession, opts...))
	mux.Handle(GetProcedure, connect.NewUnaryHandler(GetProcedure, s.get,
		append([]connect.HandlerOption{connect.WithIdempotency(connect.IdempotencyNoSideEffects)}, opts...)...))
	mux.Handle(RunProcedure, connect.NewUnaryHandler(RunProcedure, s.run, opts...))

	return "/" + ServiceName + "/", mux
}

func (s *service) start(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	nreq, err := negotiationRequest(req.Msg)
	if err != nil {
		return nil, toConnectError(err)
	}

	id, err := s.n.Start(ctx, nreq)
	if err != nil {
		return nil, toConnectError(err)
	}

	return respond(map[string]any{
		"session_id": id,
		"status":     StatusCreated,
	})
}

func (s *service) continueSession(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	id, err := requiredString(req.Msg, "session_id")
	if err != nil {
		return nil, toConnectError(err)
	}

	reply, err := s.n.Continue(ctx, id, req.Msg.GetFields()["message"].GetStringValue())
	if err != nil {
		return nil, toConnectError(err)
	}

	return respond(map[string]any{
		"reply":  reply.Text,
		"status": string(reply.Status),
	})
}

func (s *service) get(_ context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	id, err := requiredString(req.Msg, "session_id")
	if err != nil {
		return nil, toConnectError(err)
	}

	sess, err := s.n.Get(id)
	if err != nil {
		return nil, toConnectError(err)
	}

	return respond(map[string]any{
		"session_id": sess.ID,
		"transcript": transcriptValue(sess.Transcript),
		"status":     string(sess.Status),
		"model":      sess.Model,
	})
}

func (s *service) run(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	nreq, err := negotiationRequest(req.Msg)
	if err != nil {
		return nil, toConnectError(err)
	}

	result, err := s.n.Run(ctx, nreq)
	if err != nil {
		return nil, toConnectError(err)
	}

	out := map[string]any{
		"session_id": result.SessionID,
		"transcript": transcriptValue(result.Transcript),
		"status":     string(result.Status),
		"turns":      result.Turns,
	}
	if result.Reason != "" {
		out["reason"] = result.Reason
	}
	return respond(out)
}

func negotiationRequest(msg *structpb.Struct) (negotiation.Request, error) {
	fields := msg.GetFields()

	metadata, err := stringMap(fields["subject_metadata"])
	if err != nil {
		return negotiation.Request{}, err
	}

	return negotiation.Request{
		Metadata: metadata,
		Model:    fields["model"].GetStringValue(),
	}, nil
}

// stringMap flattens a Struct of scalars into string metadata. Numbers and
// booleans are formatted; nested values are rejected.
func stringMap(v *structpb.Value) (map[string]string, error) {
	if v == nil {
		return nil, nil
	}
	st := v.GetStructValue()
	if st == nil {
		return nil, fmt.Errorf("%w: subject_metadata must be an object", negotiation.ErrBadRequest)
	}

	out := make(map[string]string, len(st.GetFields()))
	for key, val := range st.GetFields() {
		switch kind := val.GetKind().(type) {
		case *structpb.Value_StringValue:
			out[key] = kind.StringValue
		case *structpb.Value_NumberValue:
			out[key] = strconv.FormatFloat(kind.NumberValue, 'f', -1, 64)
		case *structpb.Value_BoolValue:
			out[key] = strconv.FormatBool(kind.BoolValue)
		case *structpb.Value_NullValue:
		default:
			return nil, fmt.Errorf("%w: subject_metadata.%s must be a scalar", negotiation.ErrBadRequest, key)
		}
	}
	return out, nil
}

func requiredString(msg *structpb.Struct, field string) (string, error) {
	s := msg.GetFields()[field].GetStringValue()
	if s == "" {
		return "", fmt.Errorf("%w: %s is required", negotiation.ErrBadRequest, field)
	}
	return s, nil
}

func transcriptValue(t []protocol.Utterance) []any {
	out := make([]any, len(t))
	for i, u := range t {
		out[i] = map[string]any{
			"speaker": u.Speaker,
			"text":    u.Text,
		}
	}
	return out
}

func respond(fields map[string]any) (*connect.Response[structpb.Struct], error) {
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("encode response: %w", err))
	}
	return connect.NewResponse(msg), nil
}

func toConnectError(err error) *connect.Error {
	kind := negotiation.KindOf(err)

	var code connect.Code
	switch kind {
	case negotiation.KindConfiguration, negotiation.KindBadRequest:
		code = connect.CodeInvalidArgument
	case negotiation.KindNotFound:
		code = connect.CodeNotFound
	case negotiation.KindInvalidState:
		code = connect.CodeFailedPrecondition
	case negotiation.KindGenerationTimeout:
		code = connect.CodeDeadlineExceeded
	case negotiation.KindGeneration, negotiation.KindEmptyGeneration:
		code = connect.CodeUnavailable
	default:
		code = connect.CodeInternal
	}

	cerr := connect.NewError(code, err)
	cerr.Meta().Set(KindHeader, string(kind))
	return cerr
}
