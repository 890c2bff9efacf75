package smb3

import (
	"context"
	"strings"

	"github.com/smb3client/smb3/internal/erref"
	"github.com/smb3client/smb3/internal/smb2"
)

// Tree is an established SMB2_TREE_CONNECT (spec.md §3 "Tree"): the share
// type, flags, and maximal access the server granted, plus whether every
// message under this tree must be encrypted.
type Tree struct {
	session *SessionInfo

	Path          string
	TreeId        uint32
	ShareType     byte
	ShareFlags    uint32
	Capabilities  uint32
	MaximalAccess uint32
	EncryptData   bool
}

// treeConnect drives SMB2_TREE_CONNECT (MS-SMB2 3.2.4.2) against path
// ("\\server\share"), validating the server's reported share_flags and
// capabilities against the negotiated dialect's masks before accepting
// the connection, per spec.md §4.5.
func treeConnect(ctx context.Context, w *Worker, ci *ConnectionInfo, s *SessionInfo, path string) (*Tree, error) {
	if !s.authenticated() {
		return nil, &erref.LogicalError{Kind: erref.InvalidState, Reason: "tree connect on a session that is not established"}
	}

	req := &smb2.TreeConnectRequest{Path: path}

	outgoing := &OutgoingMessage{
		Request:   req,
		SessionId: &s.SessionId,
		Sign:      !s.IsGuest && !s.IsAnonymous,
	}

	msgId, _, err := w.send(ctx, outgoing)
	if err != nil {
		return nil, err
	}

	in, err := w.receive(ctx, ReceiveOptions{MsgId: msgId, Cmd: smb2.SMB2_TREE_CONNECT})
	if err != nil {
		return nil, err
	}

	body, err := accept(smb2.SMB2_TREE_CONNECT, in.Raw)
	if err != nil {
		return nil, err
	}

	r := smb2.TreeConnectResponseDecoder(body)
	if r.IsInvalid() {
		return nil, &erref.InvalidResponseError{Msg: "malformed tree connect response"}
	}

	p := smb2.PacketCodec(in.Raw)

	behavior := ci.Behavior
	if r.ShareFlags()&^behavior.shareFlagsMask() != 0 {
		return nil, &erref.NegotiationError{Reason: "server share flags exceed the dialect's allowed mask"}
	}
	if r.Capabilities()&^behavior.treeConnectCapsMask() != 0 {
		return nil, &erref.NegotiationError{Reason: "server share capabilities exceed the dialect's allowed mask"}
	}

	t := &Tree{
		session:       s,
		Path:          path,
		TreeId:        p.TreeId(),
		ShareType:     r.ShareType(),
		ShareFlags:    r.ShareFlags(),
		Capabilities:  r.Capabilities(),
		MaximalAccess: r.MaximalAccess(),
		EncryptData:   r.ShareFlags()&smb2.SMB2_SHAREFLAG_ENCRYPT_DATA != 0,
	}

	return t, nil
}

// send prepares an OutgoingMessage for a request under this tree: the
// session id, the tree id (stamped here on the request header through
// Header().TreeId, since the smb2.Packet interface has no
// tree-id setter of its own), and the sign/encrypt policy spec.md §4.5
// and §8 require: encrypt whenever EncryptData is set or the caller asks
// for it, sign otherwise unless the session is guest/anonymous.
func (t *Tree) send(req smb2.Packet, wantEncrypt bool) *OutgoingMessage {
	req.Header().TreeId = t.TreeId

	encrypt := t.EncryptData || wantEncrypt
	sign := !encrypt && !t.session.IsGuest && !t.session.IsAnonymous

	return &OutgoingMessage{
		Request:   req,
		SessionId: &t.session.SessionId,
		Sign:      sign,
		Encrypt:   encrypt,
	}
}

// disconnect drives SMB2_TREE_DISCONNECT.
func (t *Tree) disconnect(ctx context.Context, w *Worker) error {
	req := &smb2.TreeDisconnectRequest{}
	outgoing := t.send(req, false)

	msgId, _, err := w.send(ctx, outgoing)
	if err != nil {
		return err
	}

	in, err := w.receive(ctx, ReceiveOptions{MsgId: msgId, Cmd: smb2.SMB2_TREE_DISCONNECT})
	if err != nil {
		return err
	}
	_, err = accept(smb2.SMB2_TREE_DISCONNECT, in.Raw)
	return err
}

// uncShare extracts "share" from "\\server\share" or "\\server\share\sub",
// used by client.go's tree cache key and DFS referral rewriting.
func uncShare(unc string) (server, share string, ok bool) {
	trimmed := strings.TrimPrefix(unc, `\\`)
	parts := strings.SplitN(trimmed, `\`, 3)
	if len(parts) < 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}
