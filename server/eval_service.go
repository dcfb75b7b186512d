package server

import (
	"context"
	"errors"
	"fmt"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/chazu/curly/compiler"
	"github.com/chazu/curly/engine"
	"github.com/chazu/curly/vm"
)

// EvalServiceName is the fully qualified service name on both transports.
const EvalServiceName = "curly.v1.EvalService"

// Procedure paths, shared by Connect and gRPC.
const (
	EvaluateProcedure       = "/" + EvalServiceName + "/Evaluate"
	CreateSessionProcedure  = "/" + EvalServiceName + "/CreateSession"
	DestroySessionProcedure = "/" + EvalServiceName + "/DestroySession"
	CheckProcedure          = "/" + EvalServiceName + "/Check"
)

// EvalServer is the service contract. Requests and responses are
// google.protobuf.Struct messages, so the service needs no generated code.
type EvalServer interface {
	Evaluate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CreateSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	DestroySession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Check(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// EvalService implements EvalServer. Errors it returns are *connect.Error
// values; the gRPC edge maps their codes onto gRPC status codes.
type EvalService struct {
	engine   *engine.Engine
	worker   *VMWorker
	sessions *SessionStore
}

var _ EvalServer = (*EvalService)(nil)

// NewEvalService creates an EvalService.
func NewEvalService(e *engine.Engine, worker *VMWorker, sessions *SessionStore) *EvalService {
	return &EvalService{
		engine:   e,
		worker:   worker,
		sessions: sessions,
	}
}

// Evaluate compiles and runs {"source"}, in {"session"} when given.
// Compile and runtime errors are reported in the response body, not as
// RPC errors.
func (s *EvalService) Evaluate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	source := stringField(req, "source")
	if source == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("source is required"))
	}

	sessionID := stringField(req, "session")
	var session *engine.Session
	if sessionID != "" {
		var ok bool
		session, ok = s.sessions.Get(sessionID)
		if !ok {
			return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", sessionID))
		}
	}

	result, err := s.worker.Do(ctx, func() (any, error) {
		if session != nil {
			res, err := session.Eval(ctx, source)
			return evalResponse(res, err, sessionID), nil
		}
		res, err := s.engine.Eval(ctx, source)
		return evalResponse(res, err, ""), nil
	})
	if err != nil {
		return nil, workerError(err)
	}
	return result.(*structpb.Struct), nil
}

// CreateSession starts a REPL session and returns {"session"}.
func (s *EvalService) CreateSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	session := s.sessions.Create()
	log.Infof("created session %s", session.ID)
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"session": structpb.NewStringValue(session.ID),
	}}, nil
}

// DestroySession ends the session named by {"session"}.
func (s *EvalService) DestroySession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := stringField(req, "session")
	if id == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("session is required"))
	}
	if !s.sessions.Destroy(id) {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", id))
	}
	log.Infof("destroyed session %s", id)
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"destroyed": structpb.NewBoolValue(true),
	}}, nil
}

// Check reports {"diagnostics"} for {"source"} without running it.
func (s *EvalService) Check(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"diagnostics": diagnosticsToProto(Diagnose(stringField(req, "source"))),
	}}, nil
}

// evalResponse renders an evaluation outcome. res may be nil when err is
// a compile error.
func evalResponse(res *engine.Result, err error, sessionID string) *structpb.Struct {
	fields := make(map[string]*structpb.Value)
	if res != nil {
		fields["runId"] = structpb.NewStringValue(res.RunID)
		fields["output"] = stringsToProto(res.Output)
		fields["logs"] = logsToProto(res.Logs)
		fields["result"] = valueToProto(res.Value)
		fields["display"] = structpb.NewStringValue(vm.ToString(res.Value))
		fields["steps"] = structpb.NewNumberValue(float64(res.Steps))
		fields["cached"] = structpb.NewBoolValue(res.Cached)
		fields["durationMs"] = structpb.NewNumberValue(float64(res.Duration.Microseconds()) / 1000)
	}
	if sessionID != "" {
		fields["session"] = structpb.NewStringValue(sessionID)
	}
	if err != nil {
		fields["error"] = structpb.NewStringValue(err.Error())
		fields["errorKind"] = structpb.NewStringValue(errorKind(err))
		if line := errorLine(err); line > 0 {
			fields["errorLine"] = structpb.NewNumberValue(float64(line))
		}
	}
	return &structpb.Struct{Fields: fields}
}

// errorKind classifies an evaluation error for clients.
func errorKind(err error) string {
	var lexErr *compiler.LexError
	var synErr *compiler.SyntaxError
	var runErr *vm.RuntimeError
	switch {
	case errors.As(err, &lexErr):
		return "lexical error"
	case errors.As(err, &synErr):
		return "syntax error"
	case errors.As(err, &runErr):
		return runErr.Kind.String()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	}
	return "error"
}

func errorLine(err error) int {
	var lexErr *compiler.LexError
	var synErr *compiler.SyntaxError
	var runErr *vm.RuntimeError
	switch {
	case errors.As(err, &lexErr):
		return lexErr.Pos.Line
	case errors.As(err, &synErr):
		return synErr.Token.Pos.Line
	case errors.As(err, &runErr):
		return runErr.Line
	}
	return 0
}

// workerError maps a failure to hand work to the worker onto an RPC error.
func workerError(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	case errors.Is(err, ErrWorkerStopped):
		return connect.NewError(connect.CodeUnavailable, err)
	}
	return connect.NewError(connect.CodeInternal, err)
}
