package server

import (
	"context"
	"fmt"
	"os"
	"testing"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/chazu/curly/engine"
)

// ---------------------------------------------------------------------------
// Shared test infrastructure for server package tests.
//
// The engine is stateless between evaluations, so one instance serves
// every test. Tests that need their own sessions or worker build them.
// ---------------------------------------------------------------------------

var (
	testEngine   *engine.Engine
	testWorker   *VMWorker
	testSessions *SessionStore
)

func TestMain(m *testing.M) {
	var err error
	testEngine, err = engine.New(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine: %v\n", err)
		os.Exit(1)
	}
	testWorker = NewVMWorker()
	testSessions = NewSessionStore(testEngine)

	code := m.Run()

	testWorker.Stop()
	testEngine.Close()
	os.Exit(code)
}

// newTestEvalService creates an EvalService backed by the shared engine.
func newTestEvalService() *EvalService {
	return NewEvalService(testEngine, testWorker, testSessions)
}

// ---------------------------------------------------------------------------
// Request builder helpers
// ---------------------------------------------------------------------------

// request builds a Struct message from plain Go values.
func request(fields map[string]any) *structpb.Struct {
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		panic(err)
	}
	return msg
}

// field returns a response field as a plain Go value, or nil when absent.
func field(msg *structpb.Struct, name string) any {
	v, ok := msg.GetFields()[name]
	if !ok {
		return nil
	}
	return v.AsInterface()
}

func connectReq[T any](msg *T) *connect.Request[T] {
	return connect.NewRequest(msg)
}

func bg() context.Context {
	return context.Background()
}
