package smb3

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"strings"
	"sync"
	"unicode/utf16"

	"github.com/smb3client/smb3/internal/erref"
	"github.com/smb3client/smb3/internal/smb2"
	"github.com/smb3client/smb3/transport"
)

// credential is what connectionFor remembers for each server it
// authenticates to, so client.go's DFS retry path can reuse it against a
// referral target on a different server (spec.md §4.7, SPEC_FULL.md §12).
// Entries are keyed by server name, not by the full original UNC, so
// every UNC on one server shares one remembered credential.
type credential struct {
	user, domain, password string
}

// connectionEntry is everything the facade keeps per negotiated
// connection: the primary Worker/session plus any bound multichannel
// Workers, and every Tree opened against it, keyed by share name.
type connectionEntry struct {
	mu sync.Mutex

	info    *ConnectionInfo
	worker  *Worker
	session *SessionInfo
	extra   []*Worker // bound multichannel channels

	trees map[string]*Tree // share name (lowercased) -> Tree
}

// Client is the facade spec.md §4.7 describes: a map from server name to
// its connection and the set of trees opened on it, plus DFS credential
// memory keyed by server name.
type Client struct {
	Config ClientConfig

	mu          sync.Mutex
	connections map[string]*connectionEntry
	dfsCreds    map[string]credential
}

func NewClient(cfg ClientConfig) *Client {
	return &Client{
		Config:      cfg,
		connections: make(map[string]*connectionEntry),
		dfsCreds:    make(map[string]credential),
	}
}

// CreateFileArgs bundles a SMB2_CREATE call's parameters, passed through
// unchanged to resource.go's createFile once the facade has resolved the
// target connection and tree.
type CreateFileArgs struct {
	DesiredAccess     uint32
	FileAttributes    uint32
	ShareAccess       uint32
	CreateDisposition uint32
	CreateOptions     uint32
	Extra             CreateOptions
}

// ShareConnect opens (or reuses) a connection to server, authenticates
// as user (either "name" or "name@domain"), and tree-connects to share,
// per spec.md §4.7. A duplicate call against an already-cached share
// logs a warning and returns the cached Tree.
func (c *Client) ShareConnect(ctx context.Context, unc, user, password string) (*Tree, error) {
	server, share, ok := uncShare(unc)
	if !ok {
		return nil, &erref.LogicalError{Kind: erref.InvalidArgument, Reason: "malformed UNC path: " + unc}
	}

	ce, isNew, err := c.connectionFor(ctx, server, user, password)
	if err != nil {
		return nil, err
	}

	ce.mu.Lock()
	defer ce.mu.Unlock()

	key := strings.ToLower(share)
	if t, ok := ce.trees[key]; ok {
		log.Printf("smb3: share %q on %q already connected, reusing cached tree", share, server)
		return t, nil
	}

	t, err := treeConnect(ctx, ce.worker, ce.info, ce.session, unc)
	if err != nil {
		return nil, err
	}
	ce.trees[key] = t

	if isNew && ce.info.Capabilities&smb2.SMB2_GLOBAL_CAP_MULTI_CHANNEL != 0 {
		if err := c.bringUpMultichannel(ctx, server, ce, t); err != nil {
			log.Printf("smb3: multichannel setup for %q failed, continuing single-channel: %v", server, err)
		}
	}

	return t, nil
}

// connectionFor returns the cached connectionEntry for server, dialing
// and authenticating a new one if absent.
func (c *Client) connectionFor(ctx context.Context, server, user, password string) (*connectionEntry, bool, error) {
	c.mu.Lock()
	if ce, ok := c.connections[server]; ok {
		c.mu.Unlock()
		return ce, false, nil
	}
	c.mu.Unlock()

	t := transport.NewTCP()
	if err := t.Connect(server, fmt.Sprintf("%s:%d", server, t.DefaultPort())); err != nil {
		return nil, false, err
	}

	w := NewWorker(t, nil)

	n := &Negotiator{Config: c.Config}
	ci, err := n.negotiate(ctx, w)
	if err != nil {
		w.stop()
		return nil, false, err
	}

	domain, uname := splitUserDomain(user)
	initiators := []Initiator{&NTLMInitiator{User: uname, Domain: domain, Password: password}}

	s, err := newSession(ctx, w, ci, initiators, 0)
	if err != nil {
		w.stop()
		return nil, false, err
	}

	ce := &connectionEntry{
		info:    ci,
		worker:  w,
		session: s,
		trees:   make(map[string]*Tree),
	}

	c.mu.Lock()
	c.connections[server] = ce
	c.dfsCreds[server] = credential{user: uname, domain: domain, password: password}
	c.mu.Unlock()

	return ce, true, nil
}

// splitUserDomain accepts either "name" or "name@domain" per spec.md
// §6's CLI surface contract.
func splitUserDomain(user string) (domain, name string) {
	if i := strings.IndexByte(user, '@'); i >= 0 {
		return user[i+1:], user[:i]
	}
	return "", user
}

// bringUpMultichannel queries the connected tree's IPC$-equivalent FSCTL
// for network interfaces and, if an alternate one is available, connects
// and negotiates a second Worker and binds the existing session to it as
// an additional channel (spec.md §4.7, SPEC_FULL.md §12's multichannel
// interface policy): prefer an RDMA-capable interface, otherwise an IPv4
// interface with a nonzero if_index. The primary channel's own if_index
// is not known here (pickAlternateInterface is given 0), so the chosen
// IPv4 interface can be the one the primary channel already uses.
func (c *Client) bringUpMultichannel(ctx context.Context, server string, ce *connectionEntry, t *Tree) error {
	out, err := treeIoctl(ctx, ce.worker, t, smb2.FSCTL_QUERY_NETWORK_INTERFACE_INFO, nil, 64*1024)
	if err != nil {
		return err
	}

	ifaces := decodeNetworkInterfaces(out)
	alt, ok := pickAlternateInterface(ifaces, 0)
	if !ok {
		return &erref.LogicalError{Kind: erref.NotFound, Reason: "no alternate network interface available for a second channel"}
	}

	var nt transport.Transport
	if alt.rdmaCapable {
		nt = transport.NewRDMA(alt.ifIndex)
	} else {
		nt = transport.NewTCP()
	}

	if err := nt.Connect("", fmt.Sprintf("%d.%d.%d.%d:%d", alt.ipv4[0], alt.ipv4[1], alt.ipv4[2], alt.ipv4[3], nt.DefaultPort())); err != nil {
		return err
	}

	cw := NewWorker(nt, nil)

	n := &Negotiator{Config: c.Config}
	nci, err := n.negotiate(ctx, cw)
	if err != nil {
		cw.stop()
		return err
	}

	c.mu.Lock()
	cred := c.dfsCreds[server]
	c.mu.Unlock()
	initiators := []Initiator{&NTLMInitiator{User: cred.user, Domain: cred.domain, Password: cred.password}}
	if err := bindSession(ctx, cw, nci, ce.session, initiators); err != nil {
		cw.stop()
		return err
	}

	ce.extra = append(ce.extra, cw)
	return nil
}

// networkInterface is the facade's own reduction of one
// NETWORK_INTERFACE_INFO record, decoded in decodeNetworkInterfaces.
type networkInterface struct {
	ifIndex     uint32
	rdmaCapable bool
	ipv4        [4]byte
	isIPv4      bool
}

func decodeNetworkInterfaces(buf []byte) []networkInterface {
	var out []networkInterface
	for len(buf) >= 32 {
		d := smb2.NetworkInterfaceInfoDecoder(buf)
		ni := networkInterface{ifIndex: d.IfIndex(), rdmaCapable: d.RdmaCapable()}
		if d.Family() == smb2.SockAddrFamilyIPv4 {
			ni.isIPv4 = true
			ni.ipv4 = d.IPv4()
		}
		out = append(out, ni)
		adv := d.Next()
		if adv == 0 || int(adv) > len(buf) {
			break
		}
		buf = buf[adv:]
	}
	return out
}

// pickAlternateInterface implements SPEC_FULL.md §12's policy: an
// RDMA-capable interface first, otherwise an IPv4 interface whose
// if_index differs from primaryIfIndex.
func pickAlternateInterface(ifaces []networkInterface, primaryIfIndex uint32) (networkInterface, bool) {
	for _, ni := range ifaces {
		if ni.rdmaCapable {
			return ni, true
		}
	}
	for _, ni := range ifaces {
		if ni.isIPv4 && ni.ifIndex != primaryIfIndex {
			return ni, true
		}
	}
	return networkInterface{}, false
}

// CreateFile opens path under unc (e.g. "\\server\share\dir\file"),
// connecting and authenticating as needed. A STATUS_PATH_NOT_COVERED
// response triggers a DFS referral resolution: the referral's targets
// are tried in order, reusing the credentials remembered for unc's
// server, until one succeeds or all are exhausted (spec.md §4.7).
func (c *Client) CreateFile(ctx context.Context, unc, user, password string, args CreateFileArgs) (*ResourceHandle, *Tree, error) {
	server, _, ok := uncShare(unc)
	if !ok {
		return nil, nil, &erref.LogicalError{Kind: erref.InvalidArgument, Reason: "malformed UNC path: " + unc}
	}

	t, err := c.ShareConnect(ctx, unc, user, password)
	if err != nil {
		return nil, nil, err
	}

	path := uncTail(unc)
	ce := c.entryFor(server)

	h, err := createFile(ctx, ce.worker, t, path, args.DesiredAccess, args.FileAttributes, args.ShareAccess, args.CreateDisposition, args.CreateOptions, args.Extra)
	if err == nil {
		return h, t, nil
	}

	re, isResponseErr := err.(*erref.ResponseError)
	if !isResponseErr || re.Code != erref.StatusPathNotCovered {
		return nil, nil, err
	}
	if t.ShareFlags&(smb2.SMB2_SHAREFLAG_DFS|smb2.SMB2_SHAREFLAG_DFS_ROOT) == 0 {
		return nil, nil, err
	}

	c.mu.Lock()
	cred := c.dfsCreds[server]
	c.mu.Unlock()

	targets, derr := resolveDfsReferral(ctx, ce.worker, t, unc)
	if derr != nil {
		return nil, nil, &erref.DFSError{Reason: "unsupported referral entry: " + derr.Error()}
	}

	var lastErr error = &erref.DFSError{Reason: "no referral targets returned"}
	for _, target := range targets {
		h, t2, err := c.CreateFile(ctx, target, cred.domainUser(), cred.password, args)
		if err != nil {
			lastErr = err
			continue
		}
		return h, t2, nil
	}
	return nil, nil, &erref.DFSError{Reason: "every referral target failed: " + lastErr.Error()}
}

func (cr credential) domainUser() string {
	if cr.domain == "" {
		return cr.user
	}
	return cr.user + "@" + cr.domain
}

func (c *Client) entryFor(server string) *connectionEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connections[server]
}

// uncTail strips "\\server\share" from a UNC, returning the remaining
// path the Create request's Name field expects (no leading backslash).
func uncTail(unc string) string {
	trimmed := strings.TrimPrefix(unc, `\\`)
	parts := strings.SplitN(trimmed, `\`, 3)
	if len(parts) < 3 {
		return ""
	}
	return parts[2]
}

// dfsReferralRequest / dfsReferralResponse implement just enough of
// MS-DFSC 2.2 (REQ_GET_DFS_REFERRAL / RESP_GET_DFS_REFERRAL, version 4
// entries) to drive the retry in CreateFile: a path in, a list of
// alternate UNC targets out.
func encodeDfsReferralRequest(path string) []byte {
	u := utf16.Encode([]rune(path))
	buf := make([]byte, 2+2*len(u)+2)
	binary.LittleEndian.PutUint16(buf[0:2], 4) // MaxReferralLevel
	for i, v := range u {
		binary.LittleEndian.PutUint16(buf[2+2*i:4+2*i], v)
	}
	return buf
}

func resolveDfsReferral(ctx context.Context, w *Worker, t *Tree, unc string) ([]string, error) {
	req := encodeDfsReferralRequest(unc)
	out, err := treeIoctl(ctx, w, t, smb2.FSCTL_DFS_GET_REFERRALS, req, 64*1024)
	if err != nil {
		return nil, err
	}
	return decodeDfsReferralResponse(out)
}

// decodeDfsReferralResponse reads RESP_GET_DFS_REFERRAL's version-4
// entries: a fixed 18-byte header (VersionNumber, Size, ServerType,
// ReferralEntryFlags, TimeToLive, DFSPathOffset, DFSAlternatePathOffset,
// NetworkAddressOffset, ServiceSiteGuid skipped) followed by UTF-16
// strings at those offsets, relative to the start of that entry.
func decodeDfsReferralResponse(buf []byte) ([]string, error) {
	if len(buf) < 8 {
		return nil, &erref.InvalidResponseError{Msg: "malformed DFS referral response"}
	}
	numReferrals := binary.LittleEndian.Uint16(buf[2:4])
	rest := buf[8:]

	var targets []string
	for i := 0; i < int(numReferrals) && len(rest) >= 18; i++ {
		size := binary.LittleEndian.Uint16(rest[2:4])
		netOff := binary.LittleEndian.Uint16(rest[16:18])

		if int(netOff) < len(rest) {
			targets = append(targets, utf16FieldAt(rest, int(netOff)))
		}

		if size == 0 || int(size) > len(rest) {
			break
		}
		rest = rest[size:]
	}

	if len(targets) == 0 {
		return nil, &erref.InvalidResponseError{Msg: "DFS referral response named zero targets"}
	}
	return targets, nil
}

// utf16FieldAt reads a NUL-terminated UTF-16LE string starting at off.
func utf16FieldAt(buf []byte, off int) string {
	var u []uint16
	for i := off; i+1 < len(buf); i += 2 {
		v := binary.LittleEndian.Uint16(buf[i : i+2])
		if v == 0 {
			break
		}
		u = append(u, v)
	}
	return string(utf16.Decode(u))
}
