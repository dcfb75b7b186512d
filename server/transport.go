package server

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// unaryMethod is an EvalServer method as a plain function.
type unaryMethod func(EvalServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

type evalMethod struct {
	name string
	call unaryMethod
}

func (m evalMethod) procedure() string {
	return "/" + EvalServiceName + "/" + m.name
}

var evalMethods = []evalMethod{
	{"Evaluate", EvalServer.Evaluate},
	{"CreateSession", EvalServer.CreateSession},
	{"DestroySession", EvalServer.DestroySession},
	{"Check", EvalServer.Check},
}

// ---------------------------------------------------------------------------
// Connect (HTTP, JSON or binary protobuf)
// ---------------------------------------------------------------------------

// NewEvalServiceHandler builds an HTTP handler serving svc to Connect
// clients and returns the path to mount it at.
func NewEvalServiceHandler(svc EvalServer, opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	for _, m := range evalMethods {
		call := m.call
		mux.Handle(m.procedure(), connect.NewUnaryHandler(
			m.procedure(),
			func(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
				res, err := call(svc, ctx, req.Msg)
				if err != nil {
					return nil, err
				}
				return connect.NewResponse(res), nil
			},
			opts...,
		))
	}
	return "/" + EvalServiceName + "/", mux
}

// ---------------------------------------------------------------------------
// Native gRPC
// ---------------------------------------------------------------------------

// evalServiceDesc describes the service to grpc-go the way generated code
// would, with google.protobuf.Struct as every request and response type.
func evalServiceDesc() *grpc.ServiceDesc {
	desc := &grpc.ServiceDesc{
		ServiceName: EvalServiceName,
		HandlerType: (*EvalServer)(nil),
		Streams:     []grpc.StreamDesc{},
		Metadata:    "curly/v1/eval.proto",
	}
	for _, m := range evalMethods {
		desc.Methods = append(desc.Methods, grpc.MethodDesc{
			MethodName: m.name,
			Handler:    grpcUnaryHandler(m.procedure(), m.call),
		})
	}
	return desc
}

// RegisterEvalServiceServer registers svc with a gRPC server.
func RegisterEvalServiceServer(s grpc.ServiceRegistrar, svc EvalServer) {
	s.RegisterService(evalServiceDesc(), svc)
}

func grpcUnaryHandler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		handler := func(ctx context.Context, req any) (any, error) {
			res, err := call(srv.(EvalServer), ctx, req.(*structpb.Struct))
			if err != nil {
				return nil, grpcError(err)
			}
			return res, nil
		}
		if interceptor == nil {
			return handler(ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		return interceptor(ctx, in, info, handler)
	}
}

// grpcError converts a Connect error to a gRPC status. The two protocols
// share code numbering.
func grpcError(err error) error {
	var cerr *connect.Error
	if errors.As(err, &cerr) {
		return status.Error(codes.Code(cerr.Code()), cerr.Message())
	}
	return status.Error(codes.Internal, err.Error())
}
