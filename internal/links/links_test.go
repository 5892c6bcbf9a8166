// ABOUTME: Tests for entry deep links and QR code rendering
// ABOUTME: Verifies link round trips and PNG output dimensions

package links

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryURL(t *testing.T) {
	tests := []struct {
		base string
		id   uint64
		want string
	}{
		{"http://localhost:8090", 0, "http://localhost:8090/?entry=0"},
		{"https://auditlog.example.ts.net/", 42, "https://auditlog.example.ts.net/?entry=42"},
		{"https://x", 18446744073709551614, "https://x/?entry=18446744073709551614"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EntryURL(tt.base, tt.id))
	}
}

func TestParseEntryRef(t *testing.T) {
	tests := []struct {
		ref     string
		want    uint64
		wantErr bool
	}{
		{ref: "7", want: 7},
		{ref: "  12 ", want: 12},
		{ref: "http://localhost:8090/?entry=3", want: 3},
		{ref: "https://h/?foo=bar&entry=9", want: 9},
		{ref: "", wantErr: true},
		{ref: "-1", wantErr: true},
		{ref: "http://localhost:8090/", wantErr: true},
		{ref: "http://localhost:8090/?entry=abc", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := ParseEntryRef(tt.ref)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRef)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseEntryRef_RoundTrip(t *testing.T) {
	id, err := ParseEntryRef(EntryURL("https://logs.example.com", 123))
	require.NoError(t, err)
	assert.Equal(t, uint64(123), id)
}

func TestQRCode(t *testing.T) {
	b, err := QRCode(EntryURL("http://localhost:8090", 5))
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, QRSize, img.Bounds().Dx())
	assert.Equal(t, QRSize, img.Bounds().Dy())
}
