// Package transport owns the message-framed connection to the remote
// controller. Each Send and each receive callback carries exactly one
// complete application message; framing, buffering, and error
// classification live here and nowhere else.
package transport

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
	"syscall"
	"time"
)

// MaxMessageBytes bounds one framed message in either direction.
const MaxMessageBytes = 1 << 20

const lenPrefixSize = 4

// RxInfo describes the arrival context of one inbound message.
type RxInfo struct {
	From  net.Addr
	Flags int
}

// ReceiveFunc is invoked with each complete inbound message. It runs on
// the endpoint's reader goroutine and must not block; the expected
// pattern is an immediate handoff to a scheduler queue.
type ReceiveFunc func(payload []byte, info RxInfo)

// ErrorFunc is invoked at most once per connection when a fatal
// transport error invalidates it.
type ErrorFunc func(err error)

// Endpoint is a connection-oriented, message-framed transport to one
// remote peer.
type Endpoint interface {
	// Open prepares the endpoint with a local bind address. An empty
	// address lets the stack pick one.
	Open(bindAddr string) error
	// Connect establishes the connection to peerAddr and starts the
	// receive path.
	Connect(peerAddr string) error
	// Send transmits one complete message and returns the payload bytes
	// sent. Transient failures wrap ErrWouldBlock, fatal ones ErrPeerGone.
	Send(p []byte) (int, error)
	// OnReceive registers the single receive callback. Must be called
	// before Connect.
	OnReceive(fn ReceiveFunc)
	// OnError registers the fatal-error callback. Must be called before
	// Connect.
	OnError(fn ErrorFunc)
	// Reset drops the current connection, keeping the endpoint usable
	// for a later Connect.
	Reset()
	// Close tears the connection down. Closing twice is a no-op.
	Close() error
}

// TCPEndpoint implements Endpoint over a length-framed TCP stream. The
// reference deployment runs over SCTP; the framing preserves its
// one-send-one-message contract so the swap stays contained here.
type TCPEndpoint struct {
	connectTimeout time.Duration
	writeTimeout   time.Duration

	mu       sync.Mutex
	local    *net.TCPAddr
	conn     net.Conn
	recvFn   ReceiveFunc
	errFn    ErrorFunc
	fatal    sync.Once
	closed   bool
	readerWG sync.WaitGroup
}

// TCPConfig tunes a TCPEndpoint.
type TCPConfig struct {
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
}

// DefaultTCPConfig returns the endpoint timeout defaults.
func DefaultTCPConfig() TCPConfig {
	return TCPConfig{
		ConnectTimeout: 5 * time.Second,
		WriteTimeout:   5 * time.Second,
	}
}

// NewTCPEndpoint creates an unconnected endpoint.
func NewTCPEndpoint(cfg TCPConfig) *TCPEndpoint {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultTCPConfig().ConnectTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultTCPConfig().WriteTimeout
	}
	return &TCPEndpoint{
		connectTimeout: cfg.ConnectTimeout,
		writeTimeout:   cfg.WriteTimeout,
	}
}

// Open resolves and records the local bind address.
func (e *TCPEndpoint) Open(bindAddr string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if bindAddr == "" {
		e.local = nil
		return nil
	}
	addr, err := net.ResolveTCPAddr("tcp", bindAddr)
	if err != nil {
		return classifyDialError(err)
	}
	e.local = addr
	return nil
}

// Connect dials the peer and starts the reader goroutine.
func (e *TCPEndpoint) Connect(peerAddr string) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.conn != nil {
		e.mu.Unlock()
		return errors.New("transport: already connected")
	}
	dialer := net.Dialer{Timeout: e.connectTimeout}
	if e.local != nil {
		dialer.LocalAddr = e.local
	}
	recvFn, errFn := e.recvFn, e.errFn
	e.mu.Unlock()

	conn, err := dialer.Dial("tcp", peerAddr)
	if err != nil {
		return classifyDialError(err)
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	e.conn = conn
	e.fatal = sync.Once{}
	e.readerWG.Add(1)
	e.mu.Unlock()

	go e.readLoop(conn, recvFn, errFn)
	return nil
}

// Send writes one length-framed message.
func (e *TCPEndpoint) Send(p []byte) (int, error) {
	if len(p) > MaxMessageBytes {
		return 0, ErrMessageTooLarge
	}
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()
	if conn == nil {
		return 0, ErrNotConnected
	}

	buf := make([]byte, lenPrefixSize+len(p))
	binary.BigEndian.PutUint32(buf[:lenPrefixSize], uint32(len(p)))
	copy(buf[lenPrefixSize:], p)

	_ = conn.SetWriteDeadline(time.Now().Add(e.writeTimeout))
	if _, err := conn.Write(buf); err != nil {
		return 0, e.classifySendError(err)
	}
	return len(p), nil
}

// OnReceive registers the receive callback.
func (e *TCPEndpoint) OnReceive(fn ReceiveFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recvFn = fn
}

// OnError registers the fatal-error callback.
func (e *TCPEndpoint) OnError(fn ErrorFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errFn = fn
}

// Close shuts the connection down and waits for the reader to exit.
func (e *TCPEndpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	conn := e.conn
	e.conn = nil
	e.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	e.readerWG.Wait()
	return nil
}

// Reset drops the current connection without closing the endpoint, so a
// later Connect can establish a fresh one.
func (e *TCPEndpoint) Reset() {
	e.mu.Lock()
	conn := e.conn
	e.conn = nil
	e.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	e.readerWG.Wait()
}

func (e *TCPEndpoint) readLoop(conn net.Conn, recvFn ReceiveFunc, errFn ErrorFunc) {
	defer e.readerWG.Done()
	var lenBuf [lenPrefixSize]byte
	for {
		if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
			e.reportFatal(conn, errFn, err)
			return
		}
		n := binary.BigEndian.Uint32(lenBuf[:])
		if n > MaxMessageBytes {
			e.reportFatal(conn, errFn, ErrMessageTooLarge)
			return
		}
		payload := make([]byte, n)
		if _, err := io.ReadFull(conn, payload); err != nil {
			e.reportFatal(conn, errFn, err)
			return
		}
		if recvFn != nil {
			recvFn(payload, RxInfo{From: conn.RemoteAddr()})
		}
	}
}

// reportFatal invalidates the connection and fires the error callback
// exactly once. Reader errors after an explicit Close or Reset stay
// silent.
func (e *TCPEndpoint) reportFatal(conn net.Conn, errFn ErrorFunc, err error) {
	e.mu.Lock()
	active := e.conn == conn
	if active {
		e.conn = nil
	}
	e.mu.Unlock()
	_ = conn.Close()
	if !active || errFn == nil {
		return
	}
	e.fatal.Do(func() {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			err = ErrPeerGone
		}
		errFn(err)
	})
}

func (e *TCPEndpoint) classifySendError(err error) error {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return errors.Join(ErrWouldBlock, err)
	}
	return errors.Join(ErrPeerGone, err)
}

func classifyDialError(err error) error {
	switch {
	case errors.Is(err, syscall.EADDRINUSE):
		return errors.Join(ErrAddrInUse, err)
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.ENETUNREACH):
		return errors.Join(ErrUnreachable, err)
	case errors.Is(err, syscall.EPROTONOSUPPORT),
		errors.Is(err, syscall.EAFNOSUPPORT):
		return errors.Join(ErrNotSupported, err)
	default:
		return err
	}
}
