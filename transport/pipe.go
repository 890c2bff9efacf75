package transport

import (
	"fmt"
	"sync"
	"time"

	"github.com/smb3client/smb3/internal/erref"
)

// Pipe is an in-memory Transport used by this module's tests in place of
// a real TCP/QUIC/RDMA link: two byte-slice channels stand in for the
// wire, one direction each, with no NetBIOS-style framing needed since
// each SendRaw call already corresponds to exactly one ReceiveFrame.
type Pipe struct {
	mu     sync.Mutex
	toPeer chan []byte
	toSelf chan []byte
	closed bool
}

// NewPipePair returns two Pipes wired to each other: writes on one are
// reads on the other. Intended use is one side standing in for "the
// client's transport" and the other driven by a test goroutine playing
// the server.
func NewPipePair() (client, server *Pipe) {
	a := make(chan []byte, 64)
	b := make(chan []byte, 64)
	client = &Pipe{toPeer: a, toSelf: b}
	server = &Pipe{toPeer: b, toSelf: a}
	return client, server
}

func (p *Pipe) Connect(serverName, address string) error { return nil }
func (p *Pipe) DefaultPort() int                          { return 0 }
func (p *Pipe) SetWriteDeadline(time.Time) error           { return nil }

func (p *Pipe) SendRaw(b []byte) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return &erref.TransportError{Err: fmt.Errorf("pipe closed")}
	}
	cp := append([]byte(nil), b...)
	p.toPeer <- cp
	return nil
}

func (p *Pipe) ReceiveFrame() ([]byte, error) {
	b, ok := <-p.toSelf
	if !ok {
		return nil, &erref.TransportError{Err: fmt.Errorf("pipe closed")}
	}
	return b, nil
}

func (p *Pipe) Split() (Reader, Writer) { return p, p }

func (p *Pipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.toPeer)
	return nil
}
