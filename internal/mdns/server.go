package mdns

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"trapgate/internal/profile"
	"trapgate/internal/store"
)

const multicastGroup = "224.0.0.251"

// Server answers multicast DNS queries for the decoy's service identity.
type Server struct {
	profile *profile.Profile
	store   *store.Store
	logger  *slog.Logger
	port    int

	conn *net.UDPConn
	done chan struct{}
	wg   sync.WaitGroup

	hostname string
	instance string
	ipv4     net.IP
	ipv6     net.IP

	received uint64
	answered uint64
	errors   uint64
}

// NewServer creates an mDNS responder for the selected identity.
func NewServer(p *profile.Profile, st *store.Store, port int, logger *slog.Logger) *Server {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = p.Slug
	}
	// mDNS hostnames live under .local and never carry dots of their own.
	host = strings.Split(host, ".")[0]

	return &Server{
		profile:  p,
		store:    st,
		logger:   logger,
		port:     port,
		done:     make(chan struct{}),
		hostname: host + ".local.",
		instance: p.DisplayName + "." + p.ServiceType,
		ipv4:     outboundIPv4(),
		ipv6:     linkLocalIPv6(),
	}
}

// Start joins the multicast group and begins answering. A bind failure is
// returned to the caller, which degrades by disabling this responder: an
// OS-level daemon usually owns the port in that case, and the HTTP and
// WebSocket surfaces must keep running.
func (s *Server) Start() error {
	addr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", multicastGroup, s.port))
	if err != nil {
		return fmt.Errorf("mdns resolve failed: %w", err)
	}

	conn, err := net.ListenMulticastUDP("udp4", nil, addr)
	if err != nil {
		return fmt.Errorf("mdns bind failed: %w", err)
	}
	s.conn = conn

	s.logger.Info("mdns responder started",
		"port", s.port,
		"service", s.profile.ServiceType,
		"instance", s.instance,
		"host", s.hostname,
		"ipv4", s.ipv4.String(),
	)

	s.wg.Add(1)
	go s.serve()
	return nil
}

// serve is the datagram loop: short read deadlines let the done channel be
// checked without blocking forever on an idle socket.
func (s *Server) serve() {
	defer s.wg.Done()

	buffer := make([]byte, 9000)
	for {
		select {
		case <-s.done:
			return
		default:
		}

		s.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, raddr, err := s.conn.ReadFromUDP(buffer)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			select {
			case <-s.done:
				return
			default:
				s.logger.Debug("mdns read error", "error", err)
				continue
			}
		}

		atomic.AddUint64(&s.received, 1)
		data := make([]byte, n)
		copy(data, buffer[:n])
		s.handleDatagram(data, raddr)
	}
}

// handleDatagram parses one query and replies unicast. Malformed input is
// discarded silently; a multicast port sees plenty of noise.
func (s *Server) handleDatagram(data []byte, raddr *net.UDPAddr) {
	h, err := parseHeader(data)
	if err != nil {
		atomic.AddUint64(&s.errors, 1)
		return
	}
	if h.isResponse() || h.QDCount == 0 {
		return
	}

	off := headerLen
	for i := 0; i < int(h.QDCount); i++ {
		q, next, err := parseQuestion(data, off)
		if err != nil {
			atomic.AddUint64(&s.errors, 1)
			return
		}
		off = next

		// Every parsed query is an attack fact, answerable or not.
		s.store.RecordMDNSQuery(raddr.IP.String(), raddr.Port, q.Name, q.Type)

		if !s.answerable(q) {
			continue
		}

		reply := s.buildReply(h.ID, q)
		if _, err := s.conn.WriteToUDP(reply, raddr); err != nil {
			atomic.AddUint64(&s.errors, 1)
			s.logger.Debug("mdns reply failed", "remote", raddr.String(), "error", err)
			return
		}
		atomic.AddUint64(&s.answered, 1)
	}
}

// answerable reports whether the queried name belongs to this identity.
func (s *Server) answerable(q question) bool {
	name := strings.ToLower(q.Name)
	switch name {
	case strings.ToLower(s.profile.ServiceType),
		"_services._dns-sd._udp.local.",
		strings.ToLower(s.instance),
		strings.ToLower(s.hostname):
		return true
	}
	return false
}

// buildReply assembles the full advertisement: the original question echoed,
// one PTR answer, and TXT/SRV/A/AAAA/NSEC additionals sharing one TTL.
func (s *Server) buildReply(id uint16, q question) []byte {
	additionals := []func([]byte) []byte{
		func(b []byte) []byte { return txtRecord(b, s.instance, s.txtValues()) },
		func(b []byte) []byte { return srvRecord(b, s.instance, s.profile.GatewayPort, s.hostname) },
	}
	if s.ipv4 != nil {
		additionals = append(additionals, func(b []byte) []byte { return aRecord(b, s.hostname, s.ipv4) })
	}
	if s.ipv6 != nil {
		additionals = append(additionals, func(b []byte) []byte { return aaaaRecord(b, s.hostname, s.ipv6) })
	}
	additionals = append(additionals,
		func(b []byte) []byte { return nsecRecord(b, s.instance, []uint16{typeTXT, typeSRV}) },
	)
	if s.ipv4 != nil || s.ipv6 != nil {
		additionals = append(additionals, s.hostNSEC)
	}

	buf := encodeHeader(id, 1, 1, uint16(len(additionals)))
	buf = append(buf, encodeQuestion(q)...)
	buf = ptrRecord(buf, s.profile.ServiceType, s.instance)
	for _, add := range additionals {
		buf = add(buf)
	}
	return buf
}

// hostNSEC advertises which address records the hostname owns. Callers
// must not include it in the reply when the host has no addresses at all,
// or the header's additional count would overstate the records on the wire.
func (s *Server) hostNSEC(buf []byte) []byte {
	var types []uint16
	if s.ipv4 != nil {
		types = append(types, typeA)
	}
	if s.ipv6 != nil {
		types = append(types, typeAAAA)
	}
	return nsecRecord(buf, s.hostname, types)
}

// txtValues mirrors the metadata a real installation publishes.
func (s *Server) txtValues() map[string]string {
	lanHost := s.hostname
	if s.ipv4 != nil {
		lanHost = s.ipv4.String()
	}
	return map[string]string{
		"role":        "gateway",
		"gatewayPort": strconv.Itoa(s.profile.GatewayPort),
		"lanHost":     lanHost,
		"displayName": s.profile.DisplayName,
		"cliPath":     s.profile.CLIPath,
		"sshPort":     strconv.Itoa(s.profile.SSHPort),
		"transport":   "ws",
		"Name":        s.profile.DisplayName,
	}
}

// Stop shuts the responder down and waits for the loop to exit.
func (s *Server) Stop() {
	close(s.done)
	if s.conn != nil {
		s.conn.Close()
	}
	s.wg.Wait()
	s.logger.Info("mdns responder stopped",
		"received", atomic.LoadUint64(&s.received),
		"answered", atomic.LoadUint64(&s.answered),
		"errors", atomic.LoadUint64(&s.errors),
	)
}

// outboundIPv4 finds the host's best-effort non-loopback IPv4 address.
func outboundIPv4() net.IP {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if v4 := ipNet.IP.To4(); v4 != nil {
			return v4
		}
	}
	return nil
}

// linkLocalIPv6 finds a link-local IPv6 address, if the host has one.
func linkLocalIPv6() net.IP {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		if ipNet.IP.To4() == nil && ipNet.IP.IsLinkLocalUnicast() {
			return ipNet.IP
		}
	}
	return nil
}
