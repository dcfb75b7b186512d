package server

import (
	"context"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestServeListeners(t *testing.T) {
	srv := New(testEngine)
	defer srv.Stop()

	httpLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	grpcLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(bg())
	done := make(chan error, 1)
	go func() { done <- srv.ServeListeners(ctx, httpLn, grpcLn) }()

	resp, err := http.Post("http://"+httpLn.Addr().String()+CheckProcedure, "application/json",
		strings.NewReader(`{"source": "let a = 1"}`))
	if err != nil {
		t.Fatalf("POST Check: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Check status = %d", resp.StatusCode)
	}

	conn, err := grpc.NewClient(grpcLn.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatal(err)
	}
	out := new(structpb.Struct)
	if err := conn.Invoke(bg(), EvaluateProcedure, request(map[string]any{"source": "2 * 512"}), out); err != nil {
		t.Errorf("gRPC Evaluate: %v", err)
	} else if got := field(out, "result"); got != 1024.0 {
		t.Errorf("result = %v, want 1024", got)
	}
	conn.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ServeListeners = %v, want nil after cancel", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("ServeListeners did not return after cancel")
	}
}

func TestServe_BadAddress(t *testing.T) {
	srv := New(testEngine)
	defer srv.Stop()

	if err := srv.Serve(bg(), "127.0.0.1:notaport", ""); err == nil {
		t.Error("Serve with a bad HTTP address succeeded")
	}
	if err := srv.Serve(bg(), "", "127.0.0.1:notaport"); err == nil {
		t.Error("Serve with a bad gRPC address succeeded")
	}
}

func TestServe_NoTransports(t *testing.T) {
	srv := New(testEngine)
	defer srv.Stop()

	if err := srv.Serve(bg(), "", ""); err != nil {
		t.Errorf("Serve with no transports = %v, want nil", err)
	}
}
