// ABOUTME: Service descriptor and handler shims for auditlog.v1.LogService
// ABOUTME: Written in the shape protoc-gen-go-grpc emits, bound to the hand-written codec

package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
)

// Full method names.
const (
	ServiceName = "auditlog.v1.LogService"

	MethodLog         = "/auditlog.v1.LogService/Log"
	MethodGetLog      = "/auditlog.v1.LogService/GetLog"
	MethodGetLogs     = "/auditlog.v1.LogService/GetLogs"
	MethodGetLogCount = "/auditlog.v1.LogService/GetLogCount"
	MethodSetAuthKey  = "/auditlog.v1.LogService/SetAuthKey"
	MethodWatchLogs   = "/auditlog.v1.LogService/WatchLogs"
)

// AdminMethods lists the methods that require an admin token.
var AdminMethods = []string{MethodSetAuthKey}

// LogServiceServer is the server API for LogService.
type LogServiceServer interface {
	Log(context.Context, *LogRequest) (*LogResponse, error)
	GetLog(context.Context, *GetLogRequest) (*GetLogResponse, error)
	GetLogs(context.Context, *emptypb.Empty) (*GetLogsResponse, error)
	GetLogCount(context.Context, *emptypb.Empty) (*GetLogCountResponse, error)
	SetAuthKey(context.Context, *SetAuthKeyRequest) (*emptypb.Empty, error)
	WatchLogs(*WatchLogsRequest, LogService_WatchLogsServer) error
}

// LogService_WatchLogsServer is the server side of the WatchLogs stream.
type LogService_WatchLogsServer interface {
	Send(*LogEntry) error
	grpc.ServerStream
}

type watchLogsServer struct {
	grpc.ServerStream
}

func (x *watchLogsServer) Send(m *LogEntry) error {
	return x.ServerStream.SendMsg(m)
}

// RegisterLogServiceServer registers srv on s. The server must be created
// with grpc.ForceServerCodec(Codec{}).
func RegisterLogServiceServer(s grpc.ServiceRegistrar, srv LogServiceServer) {
	s.RegisterService(&LogService_ServiceDesc, srv)
}

func logHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(LogRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LogServiceServer).Log(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodLog}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LogServiceServer).Log(ctx, req.(*LogRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getLogHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetLogRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LogServiceServer).GetLog(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodGetLog}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LogServiceServer).GetLog(ctx, req.(*GetLogRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getLogsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LogServiceServer).GetLogs(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodGetLogs}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LogServiceServer).GetLogs(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func getLogCountHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LogServiceServer).GetLogCount(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodGetLogCount}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LogServiceServer).GetLogCount(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func setAuthKeyHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(SetAuthKeyRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LogServiceServer).SetAuthKey(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodSetAuthKey}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LogServiceServer).SetAuthKey(ctx, req.(*SetAuthKeyRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func watchLogsHandler(srv any, stream grpc.ServerStream) error {
	m := new(WatchLogsRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(LogServiceServer).WatchLogs(m, &watchLogsServer{stream})
}

// LogService_ServiceDesc is the grpc.ServiceDesc for LogService.
var LogService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LogServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Log", Handler: logHandler},
		{MethodName: "GetLog", Handler: getLogHandler},
		{MethodName: "GetLogs", Handler: getLogsHandler},
		{MethodName: "GetLogCount", Handler: getLogCountHandler},
		{MethodName: "SetAuthKey", Handler: setAuthKeyHandler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchLogs",
			Handler:       watchLogsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "auditlog/v1/auditlog.proto",
}
