// Package rpc exposes the log store over gRPC as auditlog.v1.LogService.
//
// # Wire Format
//
// The service is defined in proto/auditlog/v1/auditlog.proto. Messages are
// encoded with protowire by hand rather than generated code, and Codec
// carries them. Servers must be created with grpc.ForceServerCodec(Codec{});
// Client forces the same codec on every call. The codec reports the name
// "proto", so clients generated from the .proto file interoperate.
//
// # Methods
//
//   - Log: append; PermissionDenied when the key is wrong or unset
//   - GetLog: one entry; an empty response when the id was never issued
//   - GetLogs: every entry in ascending id order
//   - GetLogCount: number of entries
//   - SetAuthKey: replace the write key; admin token required
//   - WatchLogs: server stream of committed entries, with optional backlog
//
// # Retries
//
// Client retries reads and SetAuthKey when the server is Unavailable. Log is
// retried only through LogWithRequestID, whose request id lets the server
// return the original id instead of committing twice.
package rpc
