// ABOUTME: Wire messages for the auditlog.v1.LogService gRPC API
// ABOUTME: Encoded by hand with protowire, field numbers match proto/auditlog/v1/auditlog.proto

package rpc

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/2389/auditlog-gateway/internal/logstore"
)

// wireMessage is implemented by every message in this package.
type wireMessage interface {
	marshalWire() []byte
	unmarshalWire(b []byte) error
}

// LogEntry mirrors logstore.Entry on the wire.
type LogEntry struct {
	ID        uint64
	Level     string
	Message   string
	Timestamp int64
}

// LogRequest appends one entry.
type LogRequest struct {
	AuthKey   string
	Level     string
	Message   string
	RequestID string
}

// LogResponse carries the id issued for an append.
type LogResponse struct {
	ID uint64
}

// GetLogRequest asks for one entry by id.
type GetLogRequest struct {
	ID uint64
}

// GetLogResponse holds the entry, or nil when no entry has that id.
type GetLogResponse struct {
	Entry *LogEntry
}

// GetLogsResponse holds every entry in ascending id order.
type GetLogsResponse struct {
	Entries []*LogEntry
}

// GetLogCountResponse holds the number of committed entries.
type GetLogCountResponse struct {
	Count uint64
}

// SetAuthKeyRequest replaces the write key. An empty key disables writes.
type SetAuthKeyRequest struct {
	NewKey string
}

// WatchLogsRequest opens a stream of committed entries.
type WatchLogsRequest struct {
	Levels  []string // empty means every level
	Backlog bool     // replay entries with id >= FromID before live ones
	FromID  uint64
}

var (
	_ wireMessage = (*LogEntry)(nil)
	_ wireMessage = (*LogRequest)(nil)
	_ wireMessage = (*LogResponse)(nil)
	_ wireMessage = (*GetLogRequest)(nil)
	_ wireMessage = (*GetLogResponse)(nil)
	_ wireMessage = (*GetLogsResponse)(nil)
	_ wireMessage = (*GetLogCountResponse)(nil)
	_ wireMessage = (*SetAuthKeyRequest)(nil)
	_ wireMessage = (*WatchLogsRequest)(nil)
)

// EntryToWire converts a store entry.
func EntryToWire(e logstore.Entry) *LogEntry {
	return &LogEntry{ID: e.ID, Level: e.Level, Message: e.Message, Timestamp: e.Timestamp}
}

// Entry converts back to a store entry.
func (m *LogEntry) Entry() logstore.Entry {
	return logstore.Entry{ID: m.ID, Level: m.Level, Message: m.Message, Timestamp: m.Timestamp}
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendUint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}

func appendMessage(b []byte, num protowire.Number, m wireMessage) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m.marshalWire())
}

// fieldVisitor decodes one field and returns the bytes it consumed.
// ok is false for fields it does not know, which are skipped.
type fieldVisitor func(num protowire.Number, typ protowire.Type, b []byte) (n int, ok bool)

// walkFields iterates the fields of an encoded message.
func walkFields(b []byte, visit fieldVisitor) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		m, ok := visit(num, typ, b)
		if !ok {
			m = protowire.ConsumeFieldValue(num, typ, b)
		}
		if m < 0 {
			return protowire.ParseError(m)
		}
		b = b[m:]
	}
	return nil
}

func consumeString(typ protowire.Type, b []byte, dst *string) (int, bool) {
	if typ != protowire.BytesType {
		return 0, false
	}
	v, n := protowire.ConsumeString(b)
	if n >= 0 {
		*dst = v
	}
	return n, true
}

func consumeUint(typ protowire.Type, b []byte, dst *uint64) (int, bool) {
	if typ != protowire.VarintType {
		return 0, false
	}
	v, n := protowire.ConsumeVarint(b)
	if n >= 0 {
		*dst = v
	}
	return n, true
}

func (m *LogEntry) marshalWire() []byte {
	var b []byte
	b = appendUint(b, 1, m.ID)
	b = appendString(b, 2, m.Level)
	b = appendString(b, 3, m.Message)
	b = appendUint(b, 4, uint64(m.Timestamp))
	return b
}

func (m *LogEntry) unmarshalWire(b []byte) error {
	*m = LogEntry{}
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool) {
		switch num {
		case 1:
			return consumeUint(typ, b, &m.ID)
		case 2:
			return consumeString(typ, b, &m.Level)
		case 3:
			return consumeString(typ, b, &m.Message)
		case 4:
			var ts uint64
			n, ok := consumeUint(typ, b, &ts)
			m.Timestamp = int64(ts)
			return n, ok
		}
		return 0, false
	})
}

func (m *LogRequest) marshalWire() []byte {
	var b []byte
	b = appendString(b, 1, m.AuthKey)
	b = appendString(b, 2, m.Level)
	b = appendString(b, 3, m.Message)
	b = appendString(b, 4, m.RequestID)
	return b
}

func (m *LogRequest) unmarshalWire(b []byte) error {
	*m = LogRequest{}
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool) {
		switch num {
		case 1:
			return consumeString(typ, b, &m.AuthKey)
		case 2:
			return consumeString(typ, b, &m.Level)
		case 3:
			return consumeString(typ, b, &m.Message)
		case 4:
			return consumeString(typ, b, &m.RequestID)
		}
		return 0, false
	})
}

func (m *LogResponse) marshalWire() []byte {
	return appendUint(nil, 1, m.ID)
}

func (m *LogResponse) unmarshalWire(b []byte) error {
	*m = LogResponse{}
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool) {
		if num == 1 {
			return consumeUint(typ, b, &m.ID)
		}
		return 0, false
	})
}

func (m *GetLogRequest) marshalWire() []byte {
	return appendUint(nil, 1, m.ID)
}

func (m *GetLogRequest) unmarshalWire(b []byte) error {
	*m = GetLogRequest{}
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool) {
		if num == 1 {
			return consumeUint(typ, b, &m.ID)
		}
		return 0, false
	})
}

func (m *GetLogResponse) marshalWire() []byte {
	if m.Entry == nil {
		return nil
	}
	return appendMessage(nil, 1, m.Entry)
}

func (m *GetLogResponse) unmarshalWire(b []byte) error {
	*m = GetLogResponse{}
	var inner error
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool) {
		if num != 1 || typ != protowire.BytesType {
			return 0, false
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return n, true
		}
		e := &LogEntry{}
		if err := e.unmarshalWire(v); err != nil {
			inner = err
		}
		m.Entry = e
		return n, true
	})
	if err != nil {
		return err
	}
	return inner
}

func (m *GetLogsResponse) marshalWire() []byte {
	var b []byte
	for _, e := range m.Entries {
		b = appendMessage(b, 1, e)
	}
	return b
}

func (m *GetLogsResponse) unmarshalWire(b []byte) error {
	*m = GetLogsResponse{}
	var inner error
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool) {
		if num != 1 || typ != protowire.BytesType {
			return 0, false
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return n, true
		}
		e := &LogEntry{}
		if err := e.unmarshalWire(v); err != nil && inner == nil {
			inner = err
		}
		m.Entries = append(m.Entries, e)
		return n, true
	})
	if err != nil {
		return err
	}
	return inner
}

func (m *GetLogCountResponse) marshalWire() []byte {
	return appendUint(nil, 1, m.Count)
}

func (m *GetLogCountResponse) unmarshalWire(b []byte) error {
	*m = GetLogCountResponse{}
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool) {
		if num == 1 {
			return consumeUint(typ, b, &m.Count)
		}
		return 0, false
	})
}

func (m *SetAuthKeyRequest) marshalWire() []byte {
	return appendString(nil, 1, m.NewKey)
}

func (m *SetAuthKeyRequest) unmarshalWire(b []byte) error {
	*m = SetAuthKeyRequest{}
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool) {
		if num == 1 {
			return consumeString(typ, b, &m.NewKey)
		}
		return 0, false
	})
}

func (m *WatchLogsRequest) marshalWire() []byte {
	var b []byte
	for _, l := range m.Levels {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, l)
	}
	b = appendBool(b, 2, m.Backlog)
	b = appendUint(b, 3, m.FromID)
	return b
}

func (m *WatchLogsRequest) unmarshalWire(b []byte) error {
	*m = WatchLogsRequest{}
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool) {
		switch num {
		case 1:
			var l string
			n, ok := consumeString(typ, b, &l)
			if ok && n >= 0 {
				m.Levels = append(m.Levels, l)
			}
			return n, ok
		case 2:
			var v uint64
			n, ok := consumeUint(typ, b, &v)
			m.Backlog = protowire.DecodeBool(v)
			return n, ok
		case 3:
			return consumeUint(typ, b, &m.FromID)
		}
		return 0, false
	})
}
