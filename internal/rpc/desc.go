package rpc

import (
	"context"

	"github.com/nidhogg/cognitive-core/internal/core"
	"github.com/nidhogg/cognitive-core/internal/notify"
	"github.com/nidhogg/cognitive-core/internal/service"
	"google.golang.org/grpc"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "cognitive.v1.CognitiveCoreService"

const (
	methodGet      = "/" + ServiceName + "/GetCognitiveCore"
	methodUpdate   = "/" + ServiceName + "/UpdateCognitiveCore"
	methodRecord   = "/" + ServiceName + "/RecordConversation"
	methodActivate = "/" + ServiceName + "/ActivateAwareness"
	methodQuery    = "/" + ServiceName + "/QueryMemory"
	methodStream   = "/" + ServiceName + "/StreamUpdates"
)

// CognitiveCoreServer is the server API for the cognitive-core service.
type CognitiveCoreServer interface {
	GetCognitiveCore(context.Context, *service.GetRequest) (*core.CognitiveCore, error)
	UpdateCognitiveCore(context.Context, *service.UpdateRequest) (*service.UpdateResponse, error)
	RecordConversation(context.Context, *service.RecordConversationRequest) (*service.RecordConversationResponse, error)
	ActivateAwareness(context.Context, *service.ActivateRequest) (*service.ActivateResponse, error)
	QueryMemory(context.Context, *service.QueryRequest) (*service.QueryResponse, error)
	StreamUpdates(*service.StreamRequest, grpc.ServerStreamingServer[notify.Update]) error
}

// RegisterCognitiveCoreServer registers srv on s.
func RegisterCognitiveCoreServer(s grpc.ServiceRegistrar, srv CognitiveCoreServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// unaryHandler adapts a typed unary method to grpc.MethodDesc.
func unaryHandler[Req, Resp any](fullMethod string, call func(CognitiveCoreServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(CognitiveCoreServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(CognitiveCoreServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func streamUpdatesHandler(srv any, stream grpc.ServerStream) error {
	in := new(service.StreamRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(CognitiveCoreServer).StreamUpdates(in, &grpc.GenericServerStream[service.StreamRequest, notify.Update]{ServerStream: stream})
}

// ServiceDesc describes the cognitive-core service for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CognitiveCoreServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetCognitiveCore",
			Handler: unaryHandler(methodGet, func(s CognitiveCoreServer, ctx context.Context, in *service.GetRequest) (*core.CognitiveCore, error) {
				return s.GetCognitiveCore(ctx, in)
			}),
		},
		{
			MethodName: "UpdateCognitiveCore",
			Handler: unaryHandler(methodUpdate, func(s CognitiveCoreServer, ctx context.Context, in *service.UpdateRequest) (*service.UpdateResponse, error) {
				return s.UpdateCognitiveCore(ctx, in)
			}),
		},
		{
			MethodName: "RecordConversation",
			Handler: unaryHandler(methodRecord, func(s CognitiveCoreServer, ctx context.Context, in *service.RecordConversationRequest) (*service.RecordConversationResponse, error) {
				return s.RecordConversation(ctx, in)
			}),
		},
		{
			MethodName: "ActivateAwareness",
			Handler: unaryHandler(methodActivate, func(s CognitiveCoreServer, ctx context.Context, in *service.ActivateRequest) (*service.ActivateResponse, error) {
				return s.ActivateAwareness(ctx, in)
			}),
		},
		{
			MethodName: "QueryMemory",
			Handler: unaryHandler(methodQuery, func(s CognitiveCoreServer, ctx context.Context, in *service.QueryRequest) (*service.QueryResponse, error) {
				return s.QueryMemory(ctx, in)
			}),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamUpdates",
			Handler:       streamUpdatesHandler,
			ServerStreams: true,
		},
	},
}
