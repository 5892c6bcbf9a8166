// ABOUTME: Contract tests for the LogService gRPC surface to detect breaking API changes.
// ABOUTME: Checks method names and wire field numbers against proto/auditlog/v1/auditlog.proto.

package contract

import (
	"fmt"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/2389/auditlog-gateway/internal/rpc"
)

// expectedMethods defines the contract for the LogService API surface.
// If a method is removed or renamed, these tests will fail, catching
// breaking changes before they reach deployed clients.
var (
	expectedMethods = []string{"Log", "GetLog", "GetLogs", "GetLogCount", "SetAuthKey"}
	expectedStreams = []string{"WatchLogs"}
)

func TestProtoSurface(t *testing.T) {
	desc := rpc.LogService_ServiceDesc
	assert.Equal(t, "auditlog.v1.LogService", desc.ServiceName)
	assert.Equal(t, "auditlog/v1/auditlog.proto", desc.Metadata)

	actualMethods := make(map[string]bool)
	for _, m := range desc.Methods {
		actualMethods[m.MethodName] = true
	}
	for _, method := range expectedMethods {
		assert.True(t, actualMethods[method], "method /%s/%s should exist", desc.ServiceName, method)
	}
	for method := range actualMethods {
		if !slices.Contains(expectedMethods, method) {
			t.Logf("INFO: extra method %s/%s not in contract (consider adding)", desc.ServiceName, method)
		}
	}

	require.Len(t, desc.Streams, len(expectedStreams))
	for i, s := range desc.Streams {
		assert.Equal(t, expectedStreams[i], s.StreamName)
		assert.True(t, s.ServerStreams, "%s should be server streaming", s.StreamName)
		assert.False(t, s.ClientStreams, "%s should not be client streaming", s.StreamName)
	}
}

func TestFullMethodNames(t *testing.T) {
	for _, m := range []string{
		rpc.MethodLog, rpc.MethodGetLog, rpc.MethodGetLogs,
		rpc.MethodGetLogCount, rpc.MethodSetAuthKey, rpc.MethodWatchLogs,
	} {
		var name string
		_, err := fmt.Sscanf(m, "/auditlog.v1.LogService/%s", &name)
		require.NoError(t, err, m)
		assert.True(t, slices.Contains(expectedMethods, name) || slices.Contains(expectedStreams, name), m)
	}

	// Only key rotation is privileged; reads and appends stay open to key holders.
	assert.Equal(t, []string{rpc.MethodSetAuthKey}, rpc.AdminMethods)
}

func TestCodecName(t *testing.T) {
	// Interop with generated clients depends on application/grpc+proto.
	assert.Equal(t, "proto", rpc.Codec{}.Name())
}

// wireField is one decoded top-level field.
type wireField struct {
	num protowire.Number
	typ protowire.Type
	raw []byte
	val uint64
}

func decodeFields(t *testing.T, b []byte) []wireField {
	t.Helper()
	var out []wireField
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		require.GreaterOrEqual(t, n, 0, "bad tag")
		b = b[n:]
		f := wireField{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.val, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			f.raw, n = protowire.ConsumeBytes(b)
		default:
			t.Fatalf("unexpected wire type %d for field %d", typ, num)
		}
		require.GreaterOrEqual(t, n, 0, "bad value for field %d", num)
		b = b[n:]
		out = append(out, f)
	}
	return out
}

func TestLogEntryWireFormat(t *testing.T) {
	data, err := rpc.Codec{}.Marshal(&rpc.LogEntry{ID: 7, Level: "ERROR", Message: "boom", Timestamp: 1769265045000000000})
	require.NoError(t, err)

	fields := decodeFields(t, data)
	require.Len(t, fields, 4)
	assert.Equal(t, wireField{num: 1, typ: protowire.VarintType, val: 7}, fields[0])
	assert.Equal(t, protowire.Number(2), fields[1].num)
	assert.Equal(t, "ERROR", string(fields[1].raw))
	assert.Equal(t, protowire.Number(3), fields[2].num)
	assert.Equal(t, "boom", string(fields[2].raw))
	assert.Equal(t, wireField{num: 4, typ: protowire.VarintType, val: 1769265045000000000}, fields[3])
}

func TestLogRequestWireFormat(t *testing.T) {
	// Hand-encode the way a generated client would and decode with our codec.
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, "s3cr3t")
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendString(b, "WARN")
	b = protowire.AppendTag(b, 3, protowire.BytesType)
	b = protowire.AppendString(b, "low disk")
	b = protowire.AppendTag(b, 4, protowire.BytesType)
	b = protowire.AppendString(b, "req-1")
	// Unknown fields from newer clients are skipped.
	b = protowire.AppendTag(b, 99, protowire.VarintType)
	b = protowire.AppendVarint(b, 1)

	var req rpc.LogRequest
	require.NoError(t, rpc.Codec{}.Unmarshal(b, &req))
	assert.Equal(t, rpc.LogRequest{AuthKey: "s3cr3t", Level: "WARN", Message: "low disk", RequestID: "req-1"}, req)
}

func TestWatchLogsRequestWireFormat(t *testing.T) {
	data, err := rpc.Codec{}.Marshal(&rpc.WatchLogsRequest{Levels: []string{"ERROR", "WARN"}, Backlog: true, FromID: 3})
	require.NoError(t, err)

	fields := decodeFields(t, data)
	var levels []string
	var backlog, from uint64
	for _, f := range fields {
		switch f.num {
		case 1:
			levels = append(levels, string(f.raw))
		case 2:
			backlog = f.val
		case 3:
			from = f.val
		default:
			t.Errorf("unexpected field %d", f.num)
		}
	}
	assert.Equal(t, []string{"ERROR", "WARN"}, levels)
	assert.Equal(t, uint64(1), backlog)
	assert.Equal(t, uint64(3), from)
}

func TestGetLogResponseAbsentEntry(t *testing.T) {
	// An absent entry is an unset field 1, not an empty message.
	data, err := rpc.Codec{}.Marshal(&rpc.GetLogResponse{})
	require.NoError(t, err)
	assert.Empty(t, data)
}
