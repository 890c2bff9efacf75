// Package transport implements the byte-stream adapters spec.md §4.1
// treats as external collaborators: a Transport is nothing more than a
// connect/send/receive-frame byte pipe plus a "split into independent
// reader and writer halves" capability, so the Worker's two loops
// (conn.go's runSender/runReciever in the teacher) can run concurrently
// without the transport package knowing anything about SMB2.
package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/smb3client/smb3/internal/erref"
)

// Transport is implemented by every concrete byte-stream adapter (TCP,
// QUIC, RDMA). ReceiveFrame returns one complete SMB message's bytes,
// with whatever framing the underlying transport requires already
// stripped.
type Transport interface {
	Connect(serverName, address string) error
	SendRaw(b []byte) error
	ReceiveFrame() ([]byte, error)
	SetWriteDeadline(t time.Time) error
	Split() (Reader, Writer)
	DefaultPort() int
	Close() error
}

// Reader is the read half produced by Split; Writer is the write half.
// Both are safe to use concurrently with each other (but not with
// themselves from multiple goroutines), matching the Worker's
// single-reader/single-writer usage.
type Reader interface {
	ReceiveFrame() ([]byte, error)
}

type Writer interface {
	SendRaw(b []byte) error
	SetWriteDeadline(t time.Time) error
}

// maxNetBIOSLength is the largest payload a NetBIOS session-message
// length field can carry: 17 significant bits in practice (spec.md §6),
// so anything claiming more is rejected outright rather than trusted.
const maxNetBIOSLength = 16 * 1024 * 1024

// TCP implements Transport by framing each SMB message behind a 4-byte
// NetBIOS session-message header: one byte type (0x00), one byte flags
// (0), and a 2-byte big-endian length completing a 24-bit payload
// length alongside the flags byte's low bits (spec.md §6).
type TCP struct {
	conn net.Conn
}

func NewTCP() *TCP { return &TCP{} }

func (t *TCP) Connect(serverName, address string) error {
	conn, err := net.DialTimeout("tcp", address, 10*time.Second)
	if err != nil {
		return &erref.TransportError{Err: err}
	}
	t.conn = conn
	return nil
}

func (t *TCP) DefaultPort() int { return 445 }

func (t *TCP) SetWriteDeadline(dl time.Time) error {
	if t.conn == nil {
		return &erref.TransportError{Err: fmt.Errorf("not connected")}
	}
	return t.conn.SetWriteDeadline(dl)
}

func (t *TCP) SendRaw(b []byte) error {
	if t.conn == nil {
		return &erref.TransportError{Err: fmt.Errorf("not connected")}
	}
	if len(b) > maxNetBIOSLength {
		return &erref.TransportError{Err: fmt.Errorf("frame too large for NetBIOS framing: %d bytes", len(b))}
	}

	hdr := make([]byte, 4)
	hdr[0] = 0x00
	hdr[1] = byte(len(b) >> 16)
	binary.BigEndian.PutUint16(hdr[2:4], uint16(len(b)))

	if _, err := t.conn.Write(hdr); err != nil {
		return &erref.TransportError{Err: err}
	}
	if _, err := t.conn.Write(b); err != nil {
		return &erref.TransportError{Err: err}
	}
	return nil
}

func (t *TCP) ReceiveFrame() ([]byte, error) {
	hdr := make([]byte, 4)
	if _, err := io.ReadFull(t.conn, hdr); err != nil {
		return nil, &erref.TransportError{Err: err}
	}

	length := int(hdr[1])<<16 | int(binary.BigEndian.Uint16(hdr[2:4]))
	if length > maxNetBIOSLength {
		return nil, &erref.TransportError{Err: fmt.Errorf("frame too large for NetBIOS framing: %d bytes", length)}
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(t.conn, buf); err != nil {
		return nil, &erref.TransportError{Err: err}
	}
	return buf, nil
}

func (t *TCP) Split() (Reader, Writer) { return t, t }

func (t *TCP) Close() error {
	if t.conn == nil {
		return nil
	}
	return t.conn.Close()
}
