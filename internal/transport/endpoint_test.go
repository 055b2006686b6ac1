package transport

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

// startPeer accepts one connection and returns channels carrying the
// messages it reads, using the same length framing as the endpoint.
func startPeer(t *testing.T) (addr string, conns chan net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	conns = make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conns <- conn
	}()
	return ln.Addr().String(), conns
}

func readFramed(t *testing.T, conn net.Conn) []byte {
	t.Helper()
	var lenBuf [4]byte
	if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
		t.Fatalf("read frame length: %v", err)
	}
	payload := make([]byte, binary.BigEndian.Uint32(lenBuf[:]))
	if _, err := io.ReadFull(conn, payload); err != nil {
		t.Fatalf("read frame payload: %v", err)
	}
	return payload
}

func writeFramed(t *testing.T, conn net.Conn, p []byte) {
	t.Helper()
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(p)))
	if _, err := conn.Write(lenBuf[:]); err != nil {
		t.Fatalf("write frame length: %v", err)
	}
	if _, err := conn.Write(p); err != nil {
		t.Fatalf("write frame payload: %v", err)
	}
}

func TestSendDeliversOneFramedMessage(t *testing.T) {
	addr, conns := startPeer(t)
	ep := NewTCPEndpoint(DefaultTCPConfig())
	t.Cleanup(func() { _ = ep.Close() })
	if err := ep.Open(""); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := ep.Connect(addr); err != nil {
		t.Fatalf("connect: %v", err)
	}

	msg := []byte("one complete message")
	n, err := ep.Send(msg)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if n != len(msg) {
		t.Fatalf("sent %d of %d bytes", n, len(msg))
	}

	peer := <-conns
	defer peer.Close()
	if got := readFramed(t, peer); string(got) != string(msg) {
		t.Fatalf("peer read %q", got)
	}
}

func TestReceiveCallbackGetsCompleteMessages(t *testing.T) {
	addr, conns := startPeer(t)
	ep := NewTCPEndpoint(DefaultTCPConfig())
	t.Cleanup(func() { _ = ep.Close() })

	received := make(chan []byte, 2)
	ep.OnReceive(func(payload []byte, info RxInfo) {
		received <- payload
	})
	if err := ep.Connect(addr); err != nil {
		t.Fatalf("connect: %v", err)
	}

	peer := <-conns
	defer peer.Close()
	writeFramed(t, peer, []byte("first"))
	writeFramed(t, peer, []byte("second"))

	for _, want := range []string{"first", "second"} {
		select {
		case got := <-received:
			if string(got) != want {
				t.Fatalf("got %q want %q", got, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

func TestPeerCloseReportsFatalOnce(t *testing.T) {
	addr, conns := startPeer(t)
	ep := NewTCPEndpoint(DefaultTCPConfig())
	t.Cleanup(func() { _ = ep.Close() })

	fatal := make(chan error, 2)
	ep.OnError(func(err error) { fatal <- err })
	if err := ep.Connect(addr); err != nil {
		t.Fatalf("connect: %v", err)
	}

	peer := <-conns
	_ = peer.Close()

	select {
	case err := <-fatal:
		if !errors.Is(err, ErrPeerGone) {
			t.Fatalf("expected ErrPeerGone, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("no fatal error reported")
	}
	select {
	case err := <-fatal:
		t.Fatalf("fatal error reported twice: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSendWithoutConnect(t *testing.T) {
	ep := NewTCPEndpoint(DefaultTCPConfig())
	t.Cleanup(func() { _ = ep.Close() })
	if _, err := ep.Send([]byte("x")); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestConnectRefusedClassifiedUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close() // nothing listens here anymore

	ep := NewTCPEndpoint(DefaultTCPConfig())
	t.Cleanup(func() { _ = ep.Close() })
	if err := ep.Connect(addr); !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	addr, conns := startPeer(t)
	ep := NewTCPEndpoint(DefaultTCPConfig())
	fatal := make(chan error, 1)
	ep.OnError(func(err error) { fatal <- err })
	if err := ep.Connect(addr); err != nil {
		t.Fatalf("connect: %v", err)
	}
	peer := <-conns
	defer peer.Close()

	if err := ep.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := ep.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	// An explicit close never surfaces as a fatal transport error.
	select {
	case err := <-fatal:
		t.Fatalf("unexpected fatal after close: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	if _, err := ep.Send([]byte("x")); err == nil {
		t.Fatalf("send succeeded after close")
	}
}

func TestOversizeMessageRejected(t *testing.T) {
	ep := NewTCPEndpoint(DefaultTCPConfig())
	t.Cleanup(func() { _ = ep.Close() })
	big := make([]byte, MaxMessageBytes+1)
	if _, err := ep.Send(big); !errors.Is(err, ErrMessageTooLarge) {
		t.Fatalf("expected ErrMessageTooLarge, got %v", err)
	}
}
