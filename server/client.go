package server

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tailored-agentic-units/parley/core/protocol"
	"github.com/tailored-agentic-units/parley/negotiation"
)

// Client calls a remote NegotiationService.
type Client struct {
	start *connect.Client[structpb.Struct, structpb.Struct]
	cont  *connect.Client[structpb.Struct, structpb.Struct]
	get   *connect.Client[structpb.Struct, structpb.Struct]
	run   *connect.Client[structpb.Struct, structpb.Struct]
}

// NewClient creates a Client for the service at baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	return &Client{
		start: connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+StartProcedure, opts...),
		cont:  connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+ContinueProcedure, opts...),
		get:   connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+GetProcedure, opts...),
		run:   connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+RunProcedure, opts...),
	}
}

// Start creates a remote interactive session.
func (c *Client) Start(ctx context.Context, req negotiation.Request) (string, error) {
	resp, err := c.call(ctx, c.start, requestFields(req))
	if err != nil {
		return "", err
	}
	return resp.GetFields()["session_id"].GetStringValue(), nil
}

// Continue sends one user message and returns the generated reply.
func (c *Client) Continue(ctx context.Context, id, message string) (*negotiation.Reply, error) {
	resp, err := c.call(ctx, c.cont, map[string]any{"session_id": id, "message": message})
	if err != nil {
		return nil, err
	}
	f := resp.GetFields()
	return &negotiation.Reply{
		Text:   f["reply"].GetStringValue(),
		Status: protocol.Status(f["status"].GetStringValue()),
	}, nil
}

// Get returns the remote session's transcript and status.
func (c *Client) Get(ctx context.Context, id string) ([]protocol.Utterance, protocol.Status, error) {
	resp, err := c.call(ctx, c.get, map[string]any{"session_id": id})
	if err != nil {
		return nil, "", err
	}
	f := resp.GetFields()
	return parseTranscript(f["transcript"]), protocol.Status(f["status"].GetStringValue()), nil
}

// Run executes an autonomous negotiation remotely.
func (c *Client) Run(ctx context.Context, req negotiation.Request) (*negotiation.Result, error) {
	resp, err := c.call(ctx, c.run, requestFields(req))
	if err != nil {
		return nil, err
	}
	f := resp.GetFields()
	return &negotiation.Result{
		SessionID:  f["session_id"].GetStringValue(),
		Transcript: parseTranscript(f["transcript"]),
		Status:     protocol.Status(f["status"].GetStringValue()),
		Turns:      int(f["turns"].GetNumberValue()),
		Reason:     f["reason"].GetStringValue(),
	}, nil
}

func (c *Client) call(ctx context.Context, client *connect.Client[structpb.Struct, structpb.Struct], fields map[string]any) (*structpb.Struct, error) {
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	resp, err := client.CallUnary(ctx, connect.NewRequest(msg))
	if err != nil {
		return nil, fromConnectError(err)
	}
	return resp.Msg, nil
}

func requestFields(req negotiation.Request) map[string]any {
	metadata := make(map[string]any, len(req.Metadata))
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	return map[string]any{
		"subject_metadata": metadata,
		"model":            req.Model,
	}
}

func parseTranscript(v *structpb.Value) []protocol.Utterance {
	values := v.GetListValue().GetValues()
	out := make([]protocol.Utterance, 0, len(values))
	for _, item := range values {
		f := item.GetStructValue().GetFields()
		out = append(out, protocol.NewUtterance(f["speaker"].GetStringValue(), f["text"].GetStringValue()))
	}
	return out
}

var kindErrors = map[negotiation.Kind]error{
	negotiation.KindConfiguration:     negotiation.ErrConfiguration,
	negotiation.KindNotFound:          negotiation.ErrNotFound,
	negotiation.KindInvalidState:      negotiation.ErrInvalidState,
	negotiation.KindBadRequest:        negotiation.ErrBadRequest,
	negotiation.KindGeneration:        negotiation.ErrGeneration,
	negotiation.KindGenerationTimeout: negotiation.ErrGenerationTimeout,
	negotiation.KindEmptyGeneration:   negotiation.ErrEmptyGeneration,
}

// fromConnectError restores the negotiation sentinel named by the kind
// header so remote failures match with errors.Is like local ones.
func fromConnectError(err error) error {
	var cerr *connect.Error
	if !errors.As(err, &cerr) {
		return err
	}
	if sentinel, ok := kindErrors[negotiation.Kind(cerr.Meta().Get(KindHeader))]; ok {
		return fmt.Errorf("%w: %s", sentinel, cerr.Message())
	}
	return err
}
