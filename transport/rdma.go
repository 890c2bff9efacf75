package transport

import (
	"fmt"
	"time"

	"github.com/smb3client/smb3/internal/erref"
)

// RDMA stands in for the SMB Direct (MS-SMBD) transport spec.md §1
// places out of scope beyond "a byte-stream with connect/read/write and
// a split capability": establishing an actual RDMA queue pair, posting
// work requests, and reassembling fragmented SMBD messages is hardware-
// and fabric-specific code with no Go library anywhere in the pack. This
// type exists so the Client facade's multichannel interface-selection
// logic (spec.md §4.7, "RDMA-capable preferred") has a concrete
// Transport to construct and bind a channel onto once a network
// interface reports SockAddrFamily with rdma_capable set. Connect
// always returns a TransportError, so no channel is ever bound over it,
// and SendRaw/ReceiveFrame report "not connected".
type RDMA struct {
	ifIndex uint32
}

func NewRDMA(ifIndex uint32) *RDMA { return &RDMA{ifIndex: ifIndex} }

func (r *RDMA) Connect(serverName, address string) error {
	return &erref.TransportError{Err: fmt.Errorf("RDMA transport requires a fabric-specific provider not present in this build")}
}
func (r *RDMA) DefaultPort() int                { return 5445 }
func (r *RDMA) SetWriteDeadline(time.Time) error { return nil }
func (r *RDMA) SendRaw([]byte) error {
	return &erref.TransportError{Err: fmt.Errorf("not connected")}
}
func (r *RDMA) ReceiveFrame() ([]byte, error) {
	return nil, &erref.TransportError{Err: fmt.Errorf("not connected")}
}
func (r *RDMA) Split() (Reader, Writer) { return r, r }
func (r *RDMA) Close() error            { return nil }
