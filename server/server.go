// Package server exposes an engine over the network: an evaluation
// service on Connect (HTTP/JSON) and native gRPC, plus a stdio language
// server for editors.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/chazu/curly/engine"
)

var log = commonlog.GetLogger("curly.server")

// Session sweeping: idle sessions are dropped after sessionTTL.
const (
	sweepInterval = 5 * time.Minute
	sessionTTL    = 30 * time.Minute
)

// CurlyServer wraps an engine with the evaluation service on two
// transports. Connect is served over HTTP; native gRPC gets its own
// listener.
type CurlyServer struct {
	engine   *engine.Engine
	worker   *VMWorker
	sessions *SessionStore
	eval     *EvalService
	mux      *http.ServeMux
	grpc     *grpc.Server

	stopSweeper func()
}

// New creates a CurlyServer for e.
func New(e *engine.Engine) *CurlyServer {
	worker := NewVMWorker()
	sessions := NewSessionStore(e)

	s := &CurlyServer{
		engine:   e,
		worker:   worker,
		sessions: sessions,
		eval:     NewEvalService(e, worker, sessions),
		mux:      http.NewServeMux(),
		grpc:     grpc.NewServer(),
	}

	path, handler := NewEvalServiceHandler(s.eval)
	s.mux.Handle(path, handler)
	RegisterEvalServiceServer(s.grpc, s.eval)

	s.stopSweeper = sessions.StartSweeper(sweepInterval, sessionTTL)

	return s
}

// Handler returns the HTTP handler serving the Connect endpoints.
func (s *CurlyServer) Handler() http.Handler {
	return s.mux
}

// GRPCServer returns the native gRPC server.
func (s *CurlyServer) GRPCServer() *grpc.Server {
	return s.grpc
}

// Sessions returns the session store.
func (s *CurlyServer) Sessions() *SessionStore {
	return s.sessions
}

// Serve listens on httpAddr (Connect) and grpcAddr (gRPC) and serves until
// ctx is done. An empty address disables that transport.
func (s *CurlyServer) Serve(ctx context.Context, httpAddr, grpcAddr string) error {
	var httpLn, grpcLn net.Listener
	var err error
	if httpAddr != "" {
		if httpLn, err = net.Listen("tcp", httpAddr); err != nil {
			return err
		}
	}
	if grpcAddr != "" {
		if grpcLn, err = net.Listen("tcp", grpcAddr); err != nil {
			if httpLn != nil {
				httpLn.Close()
			}
			return err
		}
	}
	return s.ServeListeners(ctx, httpLn, grpcLn)
}

// ServeListeners is Serve on already open listeners. A nil listener
// disables that transport. Both servers shut down when ctx is done or
// either one fails.
func (s *CurlyServer) ServeListeners(ctx context.Context, httpLn, grpcLn net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	if httpLn != nil {
		httpSrv := &http.Server{
			Handler:           s.mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		log.Infof("Connect (HTTP/JSON): http://%s%s", httpLn.Addr(), EvaluateProcedure)
		g.Go(func() error {
			if err := httpSrv.Serve(httpLn); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		})
	}

	if grpcLn != nil {
		log.Infof("gRPC: grpc://%s", grpcLn.Addr())
		g.Go(func() error {
			if err := s.grpc.Serve(grpcLn); !errors.Is(err, grpc.ErrServerStopped) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			s.grpc.GracefulStop()
			return nil
		})
	}

	return g.Wait()
}

// Stop releases background resources. It does not close listeners; cancel
// the context passed to Serve for that.
func (s *CurlyServer) Stop() {
	if s.stopSweeper != nil {
		s.stopSweeper()
		s.stopSweeper = nil
	}
	s.worker.Stop()
}
