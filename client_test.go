package smb3

import (
	"encoding/binary"
	"testing"
	"unicode/utf16"
)

func TestUncShare(t *testing.T) {
	cases := []struct {
		unc        string
		wantServer string
		wantShare  string
		wantOk     bool
	}{
		{`\\fileserver\export`, "fileserver", "export", true},
		{`\\fileserver\export\dir\file.txt`, "fileserver", "export", true},
		{`\\fileserver`, "", "", false},
		{`not a unc`, "", "", false},
	}

	for _, c := range cases {
		server, share, ok := uncShare(c.unc)
		if ok != c.wantOk || server != c.wantServer || share != c.wantShare {
			t.Errorf("uncShare(%q) = (%q, %q, %v), want (%q, %q, %v)",
				c.unc, server, share, ok, c.wantServer, c.wantShare, c.wantOk)
		}
	}
}

func TestUncTail(t *testing.T) {
	cases := []struct {
		unc  string
		want string
	}{
		{`\\fileserver\export\dir\file.txt`, `dir\file.txt`},
		{`\\fileserver\export`, ""},
		{`\\fileserver`, ""},
	}

	for _, c := range cases {
		if got := uncTail(c.unc); got != c.want {
			t.Errorf("uncTail(%q) = %q, want %q", c.unc, got, c.want)
		}
	}
}

func TestSplitUserDomain(t *testing.T) {
	domain, name := splitUserDomain("alice@CORP")
	if domain != "CORP" || name != "alice" {
		t.Errorf("splitUserDomain(\"alice@CORP\") = (%q, %q), want (\"CORP\", \"alice\")", domain, name)
	}

	domain, name = splitUserDomain("bob")
	if domain != "" || name != "bob" {
		t.Errorf("splitUserDomain(\"bob\") = (%q, %q), want (\"\", \"bob\")", domain, name)
	}
}

func TestCredentialDomainUser(t *testing.T) {
	c := credential{user: "alice", domain: "CORP"}
	if got := c.domainUser(); got != "alice@CORP" {
		t.Errorf("domainUser() = %q, want \"alice@CORP\"", got)
	}
	c = credential{user: "bob"}
	if got := c.domainUser(); got != "bob" {
		t.Errorf("domainUser() = %q, want \"bob\"", got)
	}
}

func TestPickAlternateInterfacePrefersRDMA(t *testing.T) {
	ifaces := []networkInterface{
		{ifIndex: 1, isIPv4: true, ipv4: [4]byte{10, 0, 0, 1}},
		{ifIndex: 2, rdmaCapable: true},
		{ifIndex: 3, isIPv4: true, ipv4: [4]byte{10, 0, 0, 3}},
	}
	got, ok := pickAlternateInterface(ifaces, 1)
	if !ok || !got.rdmaCapable || got.ifIndex != 2 {
		t.Fatalf("pickAlternateInterface = %+v, %v, want the RDMA-capable interface", got, ok)
	}
}

func TestPickAlternateInterfaceFallsBackToDifferentIPv4(t *testing.T) {
	ifaces := []networkInterface{
		{ifIndex: 1, isIPv4: true, ipv4: [4]byte{10, 0, 0, 1}},
		{ifIndex: 1, isIPv4: true, ipv4: [4]byte{10, 0, 0, 1}},
		{ifIndex: 3, isIPv4: true, ipv4: [4]byte{10, 0, 0, 3}},
	}
	got, ok := pickAlternateInterface(ifaces, 1)
	if !ok || got.ifIndex != 3 {
		t.Fatalf("pickAlternateInterface = %+v, %v, want the if_index-3 interface", got, ok)
	}
}

func TestPickAlternateInterfaceNoneAvailable(t *testing.T) {
	ifaces := []networkInterface{
		{ifIndex: 1, isIPv4: true, ipv4: [4]byte{10, 0, 0, 1}},
	}
	_, ok := pickAlternateInterface(ifaces, 1)
	if ok {
		t.Fatalf("pickAlternateInterface must report false when every interface matches the primary's if_index")
	}
}

// buildDfsReferralResponse hand-assembles one RESP_GET_DFS_REFERRAL
// record in the exact layout decodeDfsReferralResponse reads, so the
// test exercises the decoder's own framing rather than a borrowed
// real-server capture.
func buildDfsReferralResponse(targets ...string) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(len(targets)))

	for _, target := range targets {
		u := utf16.Encode([]rune(target))
		strBytes := make([]byte, 2*len(u)+2) // +2 for the NUL terminator
		for i, v := range u {
			binary.LittleEndian.PutUint16(strBytes[2*i:2*i+2], v)
		}

		entry := make([]byte, 18)
		binary.LittleEndian.PutUint16(entry[0:2], 4)                        // VersionNumber
		binary.LittleEndian.PutUint16(entry[2:4], uint16(18+len(strBytes))) // Size
		binary.LittleEndian.PutUint16(entry[16:18], 18)                     // NetworkAddressOffset

		entry = append(entry, strBytes...)
		buf = append(buf, entry...)
	}
	return buf
}

func TestDecodeDfsReferralResponse(t *testing.T) {
	buf := buildDfsReferralResponse(`\\server2\share`, `\\server3\share`)

	targets, err := decodeDfsReferralResponse(buf)
	if err != nil {
		t.Fatalf("decodeDfsReferralResponse: %v", err)
	}
	want := []string{`\\server2\share`, `\\server3\share`}
	if len(targets) != len(want) {
		t.Fatalf("targets = %v, want %v", targets, want)
	}
	for i := range want {
		if targets[i] != want[i] {
			t.Errorf("targets[%d] = %q, want %q", i, targets[i], want[i])
		}
	}
}

func TestDecodeDfsReferralResponseEmptyIsError(t *testing.T) {
	buf := buildDfsReferralResponse()
	if _, err := decodeDfsReferralResponse(buf); err == nil {
		t.Fatalf("decodeDfsReferralResponse must error when the server names zero referrals")
	}
}

func TestEncodeDfsReferralRequestShape(t *testing.T) {
	out := encodeDfsReferralRequest(`\\server\share`)
	if len(out) < 2 {
		t.Fatalf("encodeDfsReferralRequest output too short")
	}
	if got := binary.LittleEndian.Uint16(out[0:2]); got != 4 {
		t.Fatalf("MaxReferralLevel = %d, want 4", got)
	}
	decoded := utf16FieldAt(out, 2)
	// encodeDfsReferralRequest ends the path with a NUL terminator, where
	// utf16FieldAt stops, so exactly the original path must round-trip.
	if want := `\\server\share`; decoded != want {
		t.Fatalf("decoded path = %q, want %q", decoded, want)
	}
}

func TestDecodeNetworkInterfacesStopsOnShortBuffer(t *testing.T) {
	// decodeNetworkInterfaces must stop cleanly on a truncated buffer
	// rather than panic on an out-of-range slice.
	got := decodeNetworkInterfaces(make([]byte, 10))
	if len(got) != 0 {
		t.Fatalf("decodeNetworkInterfaces on a too-short buffer = %v, want empty", got)
	}
}
