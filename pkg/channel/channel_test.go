package channel

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"avaneesh/obex-go/pkg/packet"
)

func TestPipe_ReadWrite(t *testing.T) {
	a, b := Pipe(512)
	defer a.Close()
	defer b.Close()

	if a.MTU() != 512 || b.MTU() != 512 {
		t.Fatalf("MTU = %d/%d, want 512", a.MTU(), b.MTU())
	}

	data := []byte{0x82, 0x00, 0x03}
	done := make(chan struct{})
	go func() {
		a.Write(data)
		close(done)
	}()

	got := make([]byte, len(data))
	if _, err := io.ReadFull(b, got); err != nil {
		t.Fatalf("ReadFull failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("read % X, want % X", got, data)
	}
	<-done

	if a.Statistics().BytesSent != 3 {
		t.Errorf("BytesSent = %d, want 3", a.Statistics().BytesSent)
	}
	if b.Statistics().BytesReceived != 3 {
		t.Errorf("BytesReceived = %d, want 3", b.Statistics().BytesReceived)
	}
}

func TestStreamConfig_MTUBounds(t *testing.T) {
	tests := []struct {
		name     string
		mtu      int
		expected int
	}{
		{name: "Default", mtu: 0, expected: packet.DefaultMaxPacketSize},
		{name: "Below minimum", mtu: 10, expected: packet.MinMaxPacketSize},
		{name: "Above limit", mtu: 100000, expected: packet.MaxPacketSizeLimit},
		{name: "In range", mtu: 1024, expected: 1024},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StreamConfig{MTU: tt.mtu}.withDefaults().MTU
			if got != tt.expected {
				t.Errorf("MTU = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestStreamChannel_CloseUnblocksRead(t *testing.T) {
	a, b := Pipe(0)
	defer b.Close()

	errCh := make(chan error, 1)
	go func() {
		_, err := a.Read(make([]byte, 1))
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	a.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrChannelClosed) {
			t.Errorf("expected ErrChannelClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Read did not unblock after Close")
	}

	if a.State() != ChannelStateClosed {
		t.Errorf("State = %v, want Closed", a.State())
	}
	if err := a.Close(); err != nil {
		t.Errorf("second Close returned %v", err)
	}
	if _, err := a.Write([]byte{1}); !errors.Is(err, ErrChannelClosed) {
		t.Errorf("Write after Close = %v, want ErrChannelClosed", err)
	}
}

func TestStreamChannel_PeerCloseIsEOF(t *testing.T) {
	a, b := Pipe(0)
	b.Close()
	if _, err := a.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestPipeListener(t *testing.T) {
	l := NewPipeListener(1024)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	accepted := make(chan Transport, 1)
	go func() {
		tr, err := l.Accept(ctx)
		if err == nil {
			accepted <- tr
		}
	}()

	client, err := l.Dial(ctx)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	server := <-accepted

	go client.Write([]byte("hi"))
	buf := make([]byte, 2)
	if _, err := io.ReadFull(server, buf); err != nil || string(buf) != "hi" {
		t.Fatalf("read %q, %v", buf, err)
	}

	l.Close()
	if _, err := l.Accept(ctx); !errors.Is(err, ErrChannelClosed) {
		t.Errorf("Accept after Close = %v, want ErrChannelClosed", err)
	}
}

func TestTCP_DialListen(t *testing.T) {
	l, err := ListenTCP(TCPChannelConfig{Address: "127.0.0.1:0", MTU: 2048})
	if err != nil {
		t.Fatalf("ListenTCP failed: %v", err)
	}
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	accepted := make(chan Transport, 1)
	go func() {
		tr, err := l.Accept(ctx)
		if err == nil {
			accepted <- tr
		}
	}()

	client, err := DialTCP(ctx, TCPChannelConfig{Address: l.Addr().String()})
	if err != nil {
		t.Fatalf("DialTCP failed: %v", err)
	}
	defer client.Close()

	var server Transport
	select {
	case server = <-accepted:
	case <-ctx.Done():
		t.Fatal("Accept timed out")
	}
	defer server.Close()

	if server.MTU() != 2048 {
		t.Errorf("server MTU = %d, want 2048", server.MTU())
	}
	if client.RemoteAddr() == nil {
		t.Errorf("client RemoteAddr is nil")
	}

	if _, err := client.Write([]byte("obex")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	buf := make([]byte, 4)
	if _, err := io.ReadFull(server, buf); err != nil {
		t.Fatalf("ReadFull failed: %v", err)
	}
	if string(buf) != "obex" {
		t.Errorf("read %q, want obex", buf)
	}
	if l.Accepted() != 1 {
		t.Errorf("Accepted = %d, want 1", l.Accepted())
	}
}

func TestTCP_RequiresAddress(t *testing.T) {
	if _, err := ListenTCP(TCPChannelConfig{}); !errors.Is(err, ErrNoAddress) {
		t.Errorf("ListenTCP = %v, want ErrNoAddress", err)
	}
	if _, err := DialTCP(context.Background(), TCPChannelConfig{}); !errors.Is(err, ErrNoAddress) {
		t.Errorf("DialTCP = %v, want ErrNoAddress", err)
	}
}

func TestQUIC_DialListen(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping QUIC loopback in short mode")
	}

	l, err := ListenQUIC(QUICChannelConfig{Address: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("ListenQUIC failed: %v", err)
	}
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	accepted := make(chan Transport, 1)
	go func() {
		tr, err := l.Accept(ctx)
		if err == nil {
			accepted <- tr
		}
	}()

	client, err := DialQUIC(ctx, QUICChannelConfig{Address: l.Addr().String()})
	if err != nil {
		t.Fatalf("DialQUIC failed: %v", err)
	}
	defer client.Close()

	// The server only sees the stream once data flows on it
	if _, err := client.Write([]byte{0x80, 0x00, 0x03}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	var server Transport
	select {
	case server = <-accepted:
	case <-ctx.Done():
		t.Fatal("Accept timed out")
	}
	defer server.Close()

	buf := make([]byte, 3)
	if _, err := io.ReadFull(server, buf); err != nil {
		t.Fatalf("ReadFull failed: %v", err)
	}
	if buf[0] != 0x80 {
		t.Errorf("opcode = 0x%02X, want 0x80", buf[0])
	}
}
