package mdns

import (
	"encoding/binary"
	"io"
	"log/slog"
	"net"
	"testing"

	"trapgate/internal/profile"
	"trapgate/internal/schema"
	"trapgate/internal/store"
)

func newTestResponder(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	st, err := store.Open(store.Config{Dir: t.TempDir(), WindowCapacity: 100})
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	p, err := profile.Select("openclaw")
	if err != nil {
		t.Fatalf("profile.Select() error = %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewServer(p, st, 5353, logger)
	// Pin addresses so record contents are deterministic.
	s.ipv4 = net.IPv4(192, 168, 1, 10).To4()
	s.ipv6 = nil
	return s, st
}

func TestNameRoundTrip(t *testing.T) {
	tests := []string{
		"_openclaw._tcp.local.",
		"OpenClaw._openclaw._tcp.local.",
		"host.local.",
	}
	for _, name := range tests {
		t.Run(name, func(t *testing.T) {
			wire := encodeName(name)
			got, next, err := parseName(wire, 0)
			if err != nil {
				t.Fatalf("parseName() error = %v", err)
			}
			if got != name {
				t.Errorf("parseName() = %q, want %q", got, name)
			}
			if next != len(wire) {
				t.Errorf("parseName() next = %d, want %d", next, len(wire))
			}
		})
	}
}

func TestParseNameCompressionPointer(t *testing.T) {
	// "local." at offset 0, then a name using a pointer back to it.
	buf := encodeName("local.")
	start := len(buf)
	buf = append(buf, 4, 'h', 'o', 's', 't')
	buf = append(buf, 0xC0, 0x00)

	name, next, err := parseName(buf, start)
	if err != nil {
		t.Fatalf("parseName() error = %v", err)
	}
	if name != "host.local." {
		t.Errorf("parseName() = %q, want host.local.", name)
	}
	if next != len(buf) {
		t.Errorf("parseName() next = %d, want %d", next, len(buf))
	}
}

func TestParseNameRejectsForwardPointer(t *testing.T) {
	// Pointer to itself: must not loop.
	buf := []byte{0xC0, 0x00}
	if _, _, err := parseName(buf, 0); err == nil {
		t.Error("parseName() accepted a self-referencing pointer")
	}
}

func TestParseTruncatedInputs(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short header", []byte{0x12, 0x34}},
		{"label past end", append(make([]byte, headerLen), 10, 'a')},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseHeader(tt.data); err == nil && len(tt.data) >= headerLen {
				if _, _, qerr := parseQuestion(tt.data, headerLen); qerr == nil {
					t.Error("truncated question parsed without error")
				}
			}
		})
	}
}

func TestAnswerable(t *testing.T) {
	s, _ := newTestResponder(t)

	tests := []struct {
		name string
		want bool
	}{
		{"_openclaw._tcp.local.", true},
		{"_OPENCLAW._TCP.local.", true},
		{"_services._dns-sd._udp.local.", true},
		{s.instance, true},
		{s.hostname, true},
		{"_http._tcp.local.", false},
		{"printer.local.", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.answerable(question{Name: tt.name, Type: typePTR, Class: classIN})
			if got != tt.want {
				t.Errorf("answerable(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

// readRecord decodes one resource record for assertions.
type testRecord struct {
	Name  string
	Type  uint16
	RData []byte
}

func readRecord(t *testing.T, data []byte, off int) (testRecord, int) {
	t.Helper()
	name, off, err := parseName(data, off)
	if err != nil {
		t.Fatalf("failed to parse record name: %v", err)
	}
	if off+10 > len(data) {
		t.Fatalf("record header past end of message")
	}
	rtype := binary.BigEndian.Uint16(data[off : off+2])
	rdlen := int(binary.BigEndian.Uint16(data[off+8 : off+10]))
	off += 10
	if off+rdlen > len(data) {
		t.Fatalf("rdata past end of message")
	}
	return testRecord{Name: name, Type: rtype, RData: data[off : off+rdlen]}, off + rdlen
}

func TestBuildReplyForPTRQuery(t *testing.T) {
	s, _ := newTestResponder(t)

	q := question{Name: "_openclaw._tcp.local.", Type: typePTR, Class: classIN}
	reply := s.buildReply(0x1234, q)

	h, err := parseHeader(reply)
	if err != nil {
		t.Fatalf("reply header unparseable: %v", err)
	}
	if h.ID != 0x1234 {
		t.Errorf("reply ID = 0x%04x, want 0x1234", h.ID)
	}
	if h.Flags != replyFlags {
		t.Errorf("reply flags = 0x%04x, want 0x%04x (QR+AA)", h.Flags, replyFlags)
	}
	if h.QDCount != 1 || h.ANCount != 1 {
		t.Errorf("counts = qd:%d an:%d, want 1/1", h.QDCount, h.ANCount)
	}

	// Question echoed verbatim.
	echoed, off, err := parseQuestion(reply, headerLen)
	if err != nil {
		t.Fatalf("echoed question unparseable: %v", err)
	}
	if echoed.Name != q.Name || echoed.Type != q.Type {
		t.Errorf("echoed question = %+v, want %+v", echoed, q)
	}

	// Answer: PTR service type -> instance.
	answer, off := readRecord(t, reply, off)
	if answer.Type != typePTR || answer.Name != s.profile.ServiceType {
		t.Fatalf("answer = %+v, want PTR for %s", answer, s.profile.ServiceType)
	}
	target, _, err := parseName(answer.RData, 0)
	if err != nil || target != s.instance {
		t.Errorf("PTR target = %q (err %v), want %q", target, err, s.instance)
	}

	// Additionals: TXT, SRV, A, NSEC records present.
	seen := map[uint16]bool{}
	for i := 0; i < int(h.ARCount); i++ {
		var rec testRecord
		rec, off = readRecord(t, reply, off)
		seen[rec.Type] = true

		if rec.Type == typeTXT {
			if !containsTXT(rec.RData, "gatewayPort=18789") {
				t.Errorf("TXT record missing gatewayPort entry")
			}
			if !containsTXT(rec.RData, "cliPath="+s.profile.CLIPath) {
				t.Errorf("TXT record missing cliPath entry")
			}
		}
		if rec.Type == typeA && len(rec.RData) != 4 {
			t.Errorf("A record rdata length = %d, want 4", len(rec.RData))
		}
	}
	for _, want := range []uint16{typeTXT, typeSRV, typeA, typeNSEC} {
		if !seen[want] {
			t.Errorf("reply missing additional record of type %d", want)
		}
	}
	if off != len(reply) {
		t.Errorf("trailing bytes after records: parsed %d of %d", off, len(reply))
	}
}

func TestBuildReplyWithoutHostAddresses(t *testing.T) {
	s, _ := newTestResponder(t)
	s.ipv4 = nil
	s.ipv6 = nil

	reply := s.buildReply(0x1234, question{Name: "_openclaw._tcp.local.", Type: typePTR, Class: classIN})

	h, err := parseHeader(reply)
	if err != nil {
		t.Fatalf("reply header unparseable: %v", err)
	}
	_, off, err := parseQuestion(reply, headerLen)
	if err != nil {
		t.Fatalf("echoed question unparseable: %v", err)
	}
	_, off = readRecord(t, reply, off)

	// Every additional the header promises must decode; no A, AAAA, or
	// hostname NSEC record without an address to back them.
	for i := 0; i < int(h.ARCount); i++ {
		var rec testRecord
		rec, off = readRecord(t, reply, off)
		switch rec.Type {
		case typeA, typeAAAA:
			t.Errorf("address record of type %d in reply with no host addresses", rec.Type)
		case typeNSEC:
			if rec.Name != s.instance {
				t.Errorf("NSEC record for %q, want only the instance %q", rec.Name, s.instance)
			}
		}
	}
	if off != len(reply) {
		t.Errorf("header promises %d additionals but records end at %d of %d bytes", h.ARCount, off, len(reply))
	}
}

// containsTXT scans length-prefixed TXT strings for an exact entry.
func containsTXT(rdata []byte, entry string) bool {
	for off := 0; off < len(rdata); {
		l := int(rdata[off])
		if off+1+l > len(rdata) {
			return false
		}
		if string(rdata[off+1:off+1+l]) == entry {
			return true
		}
		off += 1 + l
	}
	return false
}

func TestHandleDatagramIgnoresNonQueries(t *testing.T) {
	s, st := newTestResponder(t)
	raddr := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 9), Port: 5353}

	// A response datagram: QR bit set.
	response := make([]byte, headerLen)
	binary.BigEndian.PutUint16(response[2:4], flagResponse)
	binary.BigEndian.PutUint16(response[4:6], 1)
	s.handleDatagram(response, raddr)

	// Zero questions.
	empty := make([]byte, headerLen)
	s.handleDatagram(empty, raddr)

	// Truncated garbage.
	s.handleDatagram([]byte{0x01, 0x02, 0x03}, raddr)

	if got := st.Stats().TotalMDNSQueries; got != 0 {
		t.Errorf("TotalMDNSQueries = %d, want 0 for ignored datagrams", got)
	}
}

func TestUnanswerableQueryStillRecorded(t *testing.T) {
	s, st := newTestResponder(t)
	raddr := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 9), Port: 5353}

	query := make([]byte, headerLen)
	binary.BigEndian.PutUint16(query[0:2], 0xBEEF)
	binary.BigEndian.PutUint16(query[4:6], 1)
	query = append(query, encodeQuestion(question{Name: "_http._tcp.local.", Type: typePTR, Class: classIN})...)

	s.handleDatagram(query, raddr)

	recent := st.Recent(1, 0)
	if len(recent) != 1 {
		t.Fatalf("store holds %d records, want 1", len(recent))
	}
	rec := recent[0]
	if rec.Category != schema.CategoryDiscovery || rec.MDNS == nil {
		t.Fatalf("record = %+v, want discovery with mdns payload", rec)
	}
	if rec.MDNS.QueryName != "_http._tcp.local." || rec.MDNS.TypeName != "PTR" {
		t.Errorf("mdns payload = %+v", rec.MDNS)
	}
}
