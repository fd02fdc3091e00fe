package packet

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

// TestEncode tests packet framing
func TestEncode(t *testing.T) {
	tests := []struct {
		name     string
		code     uint8
		parts    [][]byte
		expected []byte
	}{
		{
			name:     "Abort without body",
			code:     uint8(OpAbort),
			expected: []byte{0xFF, 0x00, 0x03},
		},
		{
			name:     "Put final with body",
			code:     uint8(OpPutFinal),
			parts:    [][]byte{{0x49, 0x00, 0x05, 'h', 'i'}},
			expected: []byte{0x82, 0x00, 0x08, 0x49, 0x00, 0x05, 'h', 'i'},
		},
		{
			name:     "Connect with fields and headers",
			code:     uint8(OpConnect),
			parts:    [][]byte{{0x10, 0x00, 0x10, 0x00}, {0xC0, 0, 0, 0, 1}},
			expected: []byte{0x80, 0x00, 0x0C, 0x10, 0x00, 0x10, 0x00, 0xC0, 0, 0, 0, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.code, tt.parts...)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			if !bytes.Equal(got, tt.expected) {
				t.Errorf("Encode = % X, want % X", got, tt.expected)
			}
		})
	}
}

func TestEncode_TooLarge(t *testing.T) {
	_, err := Encode(uint8(OpPut), make([]byte, MaxPacketSizeLimit))
	if !errors.Is(err, ErrPacketTooLarge) {
		t.Fatalf("expected ErrPacketTooLarge, got %v", err)
	}
}

func TestRead_RoundTrip(t *testing.T) {
	body := []byte{0x48, 0x00, 0x06, 1, 2, 3}
	data, err := Encode(uint8(OpPut), body)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	p, err := Read(bytes.NewReader(data), 0)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if p.Opcode() != OpPut {
		t.Errorf("Opcode = %s, want %s", p.Opcode(), OpPut)
	}
	if !bytes.Equal(p.Body, body) {
		t.Errorf("Body = % X, want % X", p.Body, body)
	}
	if p.Len() != len(data) {
		t.Errorf("Len = %d, want %d", p.Len(), len(data))
	}
}

func TestRead_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		maxSize int
		wantEOF bool
	}{
		{name: "Empty stream", data: nil, wantEOF: true},
		{name: "Truncated header", data: []byte{0xA0, 0x00}},
		{name: "Length below header size", data: []byte{0xA0, 0x00, 0x02}},
		{name: "Truncated body", data: []byte{0xA0, 0x00, 0x08, 0x01}},
		{name: "Missing body", data: []byte{0xA0, 0x00, 0x04}},
		{name: "Exceeds max size", data: []byte{0xA0, 0x01, 0x00}, maxSize: 255},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(bytes.NewReader(tt.data), tt.maxSize)
			if tt.wantEOF {
				if err != io.EOF {
					t.Fatalf("expected io.EOF, got %v", err)
				}
				return
			}
			if !errors.Is(err, ErrMalformedPacket) {
				t.Fatalf("expected ErrMalformedPacket, got %v", err)
			}
		})
	}
}

func TestRead_Sequential(t *testing.T) {
	var buf bytes.Buffer
	for _, code := range []uint8{uint8(ResponseContinue), uint8(ResponseOK)} {
		data, _ := Encode(code)
		buf.Write(data)
	}

	first, err := Read(&buf, 0)
	if err != nil {
		t.Fatalf("first Read failed: %v", err)
	}
	second, err := Read(&buf, 0)
	if err != nil {
		t.Fatalf("second Read failed: %v", err)
	}
	if first.ResponseCode() != ResponseContinue || second.ResponseCode() != ResponseOK {
		t.Errorf("codes = %s, %s", first.ResponseCode(), second.ResponseCode())
	}
	if _, err := Read(&buf, 0); err != io.EOF {
		t.Errorf("expected io.EOF after last packet, got %v", err)
	}
}

func TestParse(t *testing.T) {
	p, err := Parse([]byte{0xA0, 0x00, 0x04, 0x01})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if p.ResponseCode() != ResponseOK || len(p.Body) != 1 {
		t.Errorf("unexpected packet %s", p)
	}

	if _, err := Parse([]byte{0xA0, 0x00, 0x05, 0x01}); !errors.Is(err, ErrMalformedPacket) {
		t.Errorf("expected ErrMalformedPacket for length mismatch, got %v", err)
	}
}

func TestOpcode_Base(t *testing.T) {
	if OpPutFinal.Base() != OpPut {
		t.Errorf("PUT_FINAL base = %s", OpPutFinal.Base())
	}
	if OpGetFinal.Base() != OpGet {
		t.Errorf("GET_FINAL base = %s", OpGetFinal.Base())
	}
	if OpAbort.Base() != OpAbort {
		t.Errorf("ABORT base = %s", OpAbort.Base())
	}
	if !OpPutFinal.IsFinal() || OpPut.IsFinal() {
		t.Errorf("final bit detection broken")
	}
}

func TestResponseCode_Classes(t *testing.T) {
	if ResponseContinue.IsFinal() {
		t.Errorf("CONTINUE must not be final")
	}
	if !ResponseOK.IsFinal() || !ResponseOK.IsSuccess() {
		t.Errorf("OK must be final success")
	}
	if !ResponseLengthRequired.IsFinal() || ResponseLengthRequired.IsSuccess() {
		t.Errorf("LENGTH_REQUIRED must be final failure")
	}
	if ResponseCode(0x20).IsFinal() {
		t.Errorf("code without final bit must not be final")
	}
}
