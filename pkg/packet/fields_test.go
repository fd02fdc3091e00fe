package packet

import (
	"bytes"
	"errors"
	"testing"
)

func TestConnectFields(t *testing.T) {
	in := ConnectFields{Version: Version, Flags: 0, MaxPacketSize: 0x2000}
	body := append(in.Encode(), 0xCB, 0, 0, 0, 7)

	out, rest, err := DecodeConnectFields(body)
	if err != nil {
		t.Fatalf("DecodeConnectFields failed: %v", err)
	}
	if out != in {
		t.Errorf("fields = %+v, want %+v", out, in)
	}
	if !bytes.Equal(rest, []byte{0xCB, 0, 0, 0, 7}) {
		t.Errorf("rest = % X", rest)
	}

	if _, _, err := DecodeConnectFields([]byte{0x10, 0x00}); !errors.Is(err, ErrShortFields) {
		t.Errorf("expected ErrShortFields, got %v", err)
	}
}

func TestSetPathFields(t *testing.T) {
	tests := []struct {
		name   string
		backup bool
		create bool
		flags  uint8
	}{
		{name: "Enter and create", backup: false, create: true, flags: 0x00},
		{name: "Backup no create", backup: true, create: false, flags: 0x03},
		{name: "Backup and create", backup: true, create: true, flags: 0x01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewSetPathFields(tt.backup, tt.create)
			if f.Flags != tt.flags {
				t.Fatalf("Flags = 0x%02X, want 0x%02X", f.Flags, tt.flags)
			}
			got, _, err := DecodeSetPathFields(f.Encode())
			if err != nil {
				t.Fatalf("DecodeSetPathFields failed: %v", err)
			}
			if got.Backup() != tt.backup || got.Create() != tt.create {
				t.Errorf("decoded backup=%v create=%v", got.Backup(), got.Create())
			}
		})
	}
}

func TestNegotiateMaxPacketSize(t *testing.T) {
	tests := []struct {
		local, remote, want int
	}{
		{4096, 1024, 1024},
		{1024, 4096, 1024},
		{4096, 0, 4096},
		{4096, 100, MinMaxPacketSize},
		{70000, 0, MaxPacketSizeLimit},
	}
	for _, tt := range tests {
		if got := NegotiateMaxPacketSize(tt.local, tt.remote); got != tt.want {
			t.Errorf("NegotiateMaxPacketSize(%d, %d) = %d, want %d", tt.local, tt.remote, got, tt.want)
		}
	}
}
