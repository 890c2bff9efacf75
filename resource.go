package smb3

import (
	"context"
	"crypto/rand"
	"sync"
	"unicode/utf16"

	"github.com/smb3client/smb3/internal/erref"
	"github.com/smb3client/smb3/internal/smb2"
)

// CreateOptions carries the caller-supplied extras on top of the default
// create-context set spec.md §4.6 always attaches: a lease request
// (RqLs) and whether to ask for extended attributes (ExtA).
type CreateOptions struct {
	LeaseKey               *[16]byte
	LeaseState             uint32
	WithExtendedAttributes bool
}

// DirectoryEntry is one FileIdBothDirectoryInformation record returned
// by QueryDirectory.
type DirectoryEntry struct {
	FileId         uint64
	FileAttributes uint32
	EndOfFile      uint64
	Name           string
}

// NotifyEvent is one FileNotifyInformation record returned by
// ChangeNotify.
type NotifyEvent struct {
	Action uint32
	Name   string
}

// ResourceHandle is an open file, directory, or named pipe (spec.md §3
// "ResourceHandle"), exclusively owned by whoever created it. Close is
// idempotent: any call after the first is a no-op, matching "on drop,
// issue Close exactly once" without needing a finalizer. Go has no
// Drop, so callers are expected to `defer h.Close(ctx, w)` themselves.
type ResourceHandle struct {
	tree   *Tree
	FileId [2]uint64

	IsDirectory   bool
	MaximalAccess uint32

	closeOnce sync.Once
	closeErr  error

	qdMu      sync.Mutex
	qdStarted bool
}

// createFile drives SMB2_CREATE (MS-SMB2 3.2.4.3), attaching the default
// context set (MxAc, QFid, DH2Q) only when the tree is a disk share. A
// named-pipe or print share, like the original implementation's pipe
// resource (no durable handle, no maximal-access query, no on-disk id
// applies to a pipe), gets a bare Create with none of those contexts.
func createFile(ctx context.Context, w *Worker, tree *Tree, name string, desiredAccess, fileAttributes, shareAccess, disposition, createOptions uint32, extra CreateOptions) (*ResourceHandle, error) {
	req := &smb2.CreateRequest{
		ImpersonationLevel: 2, // Impersonation
		DesiredAccess:      desiredAccess,
		FileAttributes:     fileAttributes,
		ShareAccess:        shareAccess,
		CreateDisposition:  disposition,
		CreateOptions:      createOptions,
		Name:               name,
	}

	if tree.ShareType == smb2.SMB2_SHARE_TYPE_DISK {
		var createGuid [16]byte
		if _, err := rand.Read(createGuid[:]); err != nil {
			return nil, &erref.InternalError{Msg: err.Error()}
		}

		req.Contexts = append(req.Contexts,
			smb2.CreateContextRequest{Name: smb2.CreateContextMxAc, Data: smb2.MxAcRequestData()},
			smb2.CreateContextRequest{Name: smb2.CreateContextQFid, Data: smb2.QFidRequestData()},
			smb2.CreateContextRequest{Name: smb2.CreateContextDH2Q, Data: smb2.DurableHandleV2RequestData(0, createGuid, false)},
		)

		if extra.LeaseKey != nil {
			req.Contexts = append(req.Contexts,
				smb2.CreateContextRequest{Name: smb2.CreateContextRqLs, Data: smb2.LeaseRequestData(*extra.LeaseKey, extra.LeaseState)})
		}
		if extra.WithExtendedAttributes {
			req.Contexts = append(req.Contexts,
				smb2.CreateContextRequest{Name: smb2.CreateContextExtA})
		}
	} else if len(extra.requestedContexts()) > 0 {
		return nil, &erref.LogicalError{Kind: erref.InvalidArgument, Reason: "durable/lease/MxAc/QFid contexts do not apply to a pipe or print handle"}
	}

	outgoing := tree.send(req, false)

	msgId, _, err := w.send(ctx, outgoing)
	if err != nil {
		return nil, err
	}

	in, err := w.receive(ctx, ReceiveOptions{MsgId: msgId, Cmd: smb2.SMB2_CREATE})
	if err != nil {
		return nil, err
	}

	body, err := accept(smb2.SMB2_CREATE, in.Raw)
	if err != nil {
		return nil, err
	}

	r := smb2.CreateResponseDecoder(body)
	if r.IsInvalid() {
		return nil, &erref.InvalidResponseError{Msg: "malformed create response"}
	}

	h := &ResourceHandle{
		tree:          tree,
		FileId:        r.FileId(),
		IsDirectory:   r.FileAttributes()&smb2.FILE_ATTRIBUTE_DIRECTORY != 0,
		MaximalAccess: desiredAccess,
	}

	for rest := r.CreateContexts(); len(rest) >= 16; {
		c := smb2.CreateContextResponseDecoder(rest)
		if c.IsInvalid() {
			break
		}
		if decodeContextName(c.Name()) == smb2.CreateContextMxAc {
			mx := smb2.MxAcResponseDecoder(c.Data())
			if !mx.IsInvalid() {
				h.MaximalAccess = mx.MaximalAccess()
			}
		}
		adv := c.Next()
		if adv <= 0 || adv > len(rest) {
			break
		}
		rest = rest[adv:]
	}

	return h, nil
}

func (o CreateOptions) requestedContexts() []string {
	var out []string
	if o.LeaseKey != nil {
		out = append(out, smb2.CreateContextRqLs)
	}
	if o.WithExtendedAttributes {
		out = append(out, smb2.CreateContextExtA)
	}
	return out
}

// decodeContextName decodes a create context's 4-byte ASCII tag; names
// defined in const.go are always plain ASCII so no UTF-16 involved.
func decodeContextName(b []byte) string { return string(b) }

// Close drives SMB2_CLOSE. Idempotent: the second and later calls return
// the first call's result without sending anything.
func (h *ResourceHandle) Close(ctx context.Context, w *Worker) error {
	h.closeOnce.Do(func() {
		req := &smb2.CloseRequest{FileId: h.FileId}
		outgoing := h.tree.send(req, false)

		msgId, _, err := w.send(ctx, outgoing)
		if err != nil {
			h.closeErr = err
			return
		}

		in, err := w.receive(ctx, ReceiveOptions{MsgId: msgId, Cmd: smb2.SMB2_CLOSE})
		if err != nil {
			h.closeErr = err
			return
		}
		_, h.closeErr = accept(smb2.SMB2_CLOSE, in.Raw)
	})
	return h.closeErr
}

// Read issues SMB2_READ for up to length bytes at offset. length must
// not exceed ConnectionInfo.MaxReadSize; that boundary is enforced by
// the caller (client.go), which is the only place max_read_size is in
// scope. A StatusEndOfFile response yields a nil slice and a nil error,
// per spec.md §4.6/§8 ("zero bytes and terminates iteration").
func (h *ResourceHandle) Read(ctx context.Context, w *Worker, offset uint64, length uint32) ([]byte, error) {
	req := &smb2.ReadRequest{
		Length: length,
		Offset: offset,
		FileId: h.FileId,
	}
	outgoing := h.tree.send(req, false)

	msgId, _, err := w.send(ctx, outgoing)
	if err != nil {
		return nil, err
	}

	in, err := w.receive(ctx, ReceiveOptions{MsgId: msgId, Cmd: smb2.SMB2_READ})
	if err != nil {
		return nil, err
	}

	p := smb2.PacketCodec(in.Raw)
	if erref.NtStatus(p.Status()) == erref.StatusEndOfFile {
		return nil, nil
	}

	body, err := accept(smb2.SMB2_READ, in.Raw)
	if err != nil {
		return nil, err
	}

	r := smb2.ReadResponseDecoder(body)
	if r.IsInvalid() {
		return nil, &erref.InvalidResponseError{Msg: "malformed read response"}
	}
	return r.Data(), nil
}

// Write issues SMB2_WRITE, zero-copy: data travels as
// OutgoingMessage.AdditionalData, never copied into the request struct
// itself. A short write (Count() != len(data)) is a contract violation
// on any non-pipe handle, per spec.md §4.6.
func (h *ResourceHandle) Write(ctx context.Context, w *Worker, offset uint64, data []byte) (uint32, error) {
	req := &smb2.WriteRequest{
		Offset: offset,
		FileId: h.FileId,
		Length: uint32(len(data)),
	}
	outgoing := h.tree.send(req, false)
	outgoing.AdditionalData = data

	msgId, _, err := w.send(ctx, outgoing)
	if err != nil {
		return 0, err
	}

	in, err := w.receive(ctx, ReceiveOptions{MsgId: msgId, Cmd: smb2.SMB2_WRITE})
	if err != nil {
		return 0, err
	}

	body, err := accept(smb2.SMB2_WRITE, in.Raw)
	if err != nil {
		return 0, err
	}

	r := smb2.WriteResponseDecoder(body)
	if r.IsInvalid() {
		return 0, &erref.InvalidResponseError{Msg: "malformed write response"}
	}

	count := r.Count()
	if h.tree.ShareType != smb2.SMB2_SHARE_TYPE_PIPE && count != uint32(len(data)) {
		return count, &erref.ProtocolViolationError{Reason: "short write on a non-pipe handle"}
	}
	return count, nil
}

// QueryDirectory enumerates one batch of directory entries matching
// pattern. Exactly one QueryDirectory may be in flight per handle (a
// protocol restriction, not a performance choice), enforced here with a
// mutex around the whole request/response round trip. restart must be
// true on the first call of a fresh iteration and false afterward.
// StatusNoMoreFiles ends iteration normally (nil, nil);
// StatusInfoLengthMismatch means outputBufferLength was too small.
func (h *ResourceHandle) QueryDirectory(ctx context.Context, w *Worker, pattern string, infoClass byte, outputBufferLength uint32, restart bool) ([]DirectoryEntry, error) {
	h.qdMu.Lock()
	defer h.qdMu.Unlock()

	flags := byte(0)
	if restart || !h.qdStarted {
		flags |= smb2.RESTART_SCANS
	}
	h.qdStarted = true

	req := &smb2.QueryDirectoryRequest{
		FileInformationClass: infoClass,
		Flags:                flags,
		FileId:               h.FileId,
		Pattern:              pattern,
		OutputBufferLength:   outputBufferLength,
	}
	outgoing := h.tree.send(req, false)

	msgId, _, err := w.send(ctx, outgoing)
	if err != nil {
		return nil, err
	}

	in, err := w.receive(ctx, ReceiveOptions{MsgId: msgId, Cmd: smb2.SMB2_QUERY_DIRECTORY})
	if err != nil {
		return nil, err
	}

	p := smb2.PacketCodec(in.Raw)
	status := erref.NtStatus(p.Status())
	if status == erref.StatusNoMoreFiles {
		return nil, nil
	}

	body, err := accept(smb2.SMB2_QUERY_DIRECTORY, in.Raw)
	if err != nil {
		if status == erref.StatusInfoLengthMismatch {
			return nil, &erref.LogicalError{Kind: erref.InvalidArgument, Reason: "query directory output buffer too small"}
		}
		return nil, err
	}

	r := smb2.QueryDirectoryResponseDecoder(body)
	if r.IsInvalid() {
		return nil, &erref.InvalidResponseError{Msg: "malformed query directory response"}
	}

	var entries []DirectoryEntry
	buf := r.OutputBuffer()
	for len(buf) >= 104 {
		e := smb2.FileIdBothDirectoryInformationDecoder(buf)
		entries = append(entries, DirectoryEntry{
			FileId:         e.FileId(),
			FileAttributes: e.FileAttributes(),
			EndOfFile:      e.EndOfFile(),
			Name:           utf16ToString(e.FileNameUTF16()),
		})
		adv := e.NextEntryOffset()
		if adv == 0 || int(adv) > len(buf) {
			break
		}
		buf = buf[adv:]
	}

	return entries, nil
}

// ChangeNotify issues a long-running SMB2_CHANGE_NOTIFY subscription.
// The response is awaited with AllowAsync so an interim STATUS_PENDING
// does not terminate the call early; STATUS_NOTIFY_CLEANUP ends the
// subscription normally with an empty, non-nil slice and a nil error.
func (h *ResourceHandle) ChangeNotify(ctx context.Context, w *Worker, completionFilter uint32, outputBufferLength uint32) ([]NotifyEvent, error) {
	req := &smb2.ChangeNotifyRequest{
		OutputBufferLength: outputBufferLength,
		FileId:             h.FileId,
		CompletionFilter:   completionFilter,
	}
	outgoing := h.tree.send(req, false)

	msgId, _, err := w.send(ctx, outgoing)
	if err != nil {
		return nil, err
	}

	in, err := w.receive(ctx, ReceiveOptions{MsgId: msgId, Cmd: smb2.SMB2_CHANGE_NOTIFY, AllowAsync: true})
	if err != nil {
		return nil, err
	}

	p := smb2.PacketCodec(in.Raw)
	if erref.NtStatus(p.Status()) == erref.StatusNotifyCleanup {
		return []NotifyEvent{}, nil
	}

	body, err := accept(smb2.SMB2_CHANGE_NOTIFY, in.Raw)
	if err != nil {
		return nil, err
	}

	r := smb2.ChangeNotifyResponseDecoder(body)
	if r.IsInvalid() {
		return nil, &erref.InvalidResponseError{Msg: "malformed change notify response"}
	}

	var events []NotifyEvent
	buf := r.OutputBuffer()
	for len(buf) >= 12 {
		e := smb2.FileNotifyInformationDecoder(buf)
		events = append(events, NotifyEvent{
			Action: e.Action(),
			Name:   utf16ToString(e.FileNameUTF16()),
		})
		adv := e.NextEntryOffset()
		if adv == 0 || int(adv) > len(buf) {
			break
		}
		buf = buf[adv:]
	}

	return events, nil
}

// Ioctl issues SMB2_IOCTL against this handle's FileId.
func (h *ResourceHandle) Ioctl(ctx context.Context, w *Worker, ctlCode uint32, input []byte, maxOutputResponse uint32) ([]byte, error) {
	return ioctl(ctx, w, h.tree, h.FileId, ctlCode, input, maxOutputResponse)
}

// treeIoctl issues SMB2_IOCTL with the wildcard FileId, for FSCTLs that
// are not targeted at a specific open (spec.md §4.6), e.g. a DFS referral
// query or FSCTL_QUERY_NETWORK_INTERFACE_INFO on IPC$.
func treeIoctl(ctx context.Context, w *Worker, tree *Tree, ctlCode uint32, input []byte, maxOutputResponse uint32) ([]byte, error) {
	return ioctl(ctx, w, tree, smb2.WildcardFileId, ctlCode, input, maxOutputResponse)
}

func ioctl(ctx context.Context, w *Worker, tree *Tree, fileId [2]uint64, ctlCode uint32, input []byte, maxOutputResponse uint32) ([]byte, error) {
	req := &smb2.IoctlRequest{
		CtlCode:           ctlCode,
		FileId:            fileId,
		InputBuffer:       input,
		MaxOutputResponse: maxOutputResponse,
		Flags:             smb2.SMB2_0_IOCTL_IS_FSCTL,
	}
	outgoing := tree.send(req, false)

	msgId, _, err := w.send(ctx, outgoing)
	if err != nil {
		return nil, err
	}

	in, err := w.receive(ctx, ReceiveOptions{MsgId: msgId, Cmd: smb2.SMB2_IOCTL})
	if err != nil {
		return nil, err
	}

	body, err := accept(smb2.SMB2_IOCTL, in.Raw)
	if err != nil {
		return nil, err
	}

	r := smb2.IoctlResponseDecoder(body)
	if r.IsInvalid() {
		return nil, &erref.InvalidResponseError{Msg: "malformed ioctl response"}
	}
	return r.OutputBuffer(), nil
}

func utf16ToString(b []byte) string {
	u := make([]uint16, len(b)/2)
	for i := range u {
		u[i] = uint16(b[2*i]) | uint16(b[2*i+1])<<8
	}
	return string(utf16.Decode(u))
}
