// Package drivertest provides an in-process LED controller for tests.
//
// The Server speaks driver.LineCodec over real TCP on 127.0.0.1, keeps a
// brightness per (family, module), and can be told to misbehave:
//
//	srv := drivertest.NewServer(t)
//	ep := srv.Endpoint()
//	srv.SetBrightness(driver.FamilyMultivision, 3, 128)
//	srv.SetNoData(true)               // reads answer with an empty line
//	srv.RejectWrites("overtemp")      // writes answer ERR overtemp
package drivertest

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/driver"
)

type key struct {
	family driver.Family
	module int
}

// Server is a fake LED controller.
//
// Thread Safety: All methods are safe for concurrent use.
type Server struct {
	ln net.Listener

	mu           sync.Mutex
	brightness   map[key]uint8
	noData       bool
	malformed    bool
	rejectReason string
	silent       bool
	log          []string
	conns        map[net.Conn]struct{}
	accepted     int

	wg sync.WaitGroup
}

// NewServer starts a server and registers its shutdown with t.Cleanup.
func NewServer(t testing.TB) *Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("drivertest: listen: %v", err)
	}

	s := &Server{
		ln:         ln,
		brightness: make(map[key]uint8),
		conns:      make(map[net.Conn]struct{}),
	}
	s.wg.Add(1)
	go s.acceptLoop()
	t.Cleanup(s.Close)
	return s
}

// Endpoint returns the server address as a driver.Endpoint.
func (s *Server) Endpoint() driver.Endpoint {
	addr := s.ln.Addr().(*net.TCPAddr)
	return driver.Endpoint{Host: addr.IP.String(), Port: addr.Port}
}

// SetBrightness sets the value a read of (family, module) will report.
func (s *Server) SetBrightness(f driver.Family, module int, v uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.brightness[keyFor(f, module)] = v
}

// Brightness returns the stored value and whether it was ever set.
func (s *Server) Brightness(f driver.Family, module int) (uint8, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.brightness[keyFor(f, module)]
	return v, ok
}

// SetNoData makes reads answer with an empty line.
func (s *Server) SetNoData(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.noData = on
}

// SetMalformed makes reads answer with a line that does not decode.
func (s *Server) SetMalformed(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.malformed = on
}

// RejectWrites makes writes answer "ERR reason". Empty reason accepts again.
func (s *Server) RejectWrites(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectReason = reason
}

// SetSilent makes the server swallow requests without answering, so clients
// hit their I/O timeout.
func (s *Server) SetSilent(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.silent = on
}

// Requests returns every request line received, in arrival order.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.log))
	copy(out, s.log)
	return out
}

// Accepted returns how many connections have been accepted.
func (s *Server) Accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

// DropConnections closes every open client connection. The listener stays up.
func (s *Server) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		c.Close() //nolint:errcheck // test server
	}
}

// Close stops the listener and all connections.
func (s *Server) Close() {
	s.ln.Close() //nolint:errcheck // test server
	s.DropConnections()
	s.wg.Wait()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.accepted++
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close() //nolint:errcheck // test server
	}()

	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		reply, ok := s.handle(strings.TrimRight(line, "\r\n"))
		if !ok {
			continue
		}
		if _, err := conn.Write([]byte(reply + "\r\n")); err != nil {
			return
		}
	}
}

// handle returns the reply for one request and whether to send it.
func (s *Server) handle(req string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log = append(s.log, req)
	if s.silent {
		return "", false
	}

	fields := strings.Fields(req)
	if len(fields) < 3 {
		return "ERR bad request", true
	}
	family, ok := driver.FamilyFromCode(fields[1])
	if !ok {
		return "ERR unknown family", true
	}
	module, err := strconv.Atoi(fields[2])
	if err != nil {
		return "ERR bad module", true
	}
	k := keyFor(family, module)

	switch fields[0] {
	case "R":
		switch {
		case s.noData:
			return "", true
		case s.malformed:
			return "V ???", true
		}
		v, known := s.brightness[k]
		if !known {
			return "", true
		}
		return fmt.Sprintf("V %d", v), true

	case "W":
		if len(fields) != 5 {
			return "ERR bad write", true
		}
		if s.rejectReason != "" {
			return "ERR " + s.rejectReason, true
		}
		unit, ok := driver.UnitFromCode(fields[3])
		if !ok {
			return "ERR bad unit", true
		}
		v, err := strconv.Atoi(fields[4])
		if err != nil || v < 0 || v > unit.Max() {
			return "ERR bad value", true
		}
		if unit == driver.UnitPercent {
			v = PercentTo8Bit(v)
		}
		s.brightness[k] = uint8(v)
		return "OK", true
	}
	return "ERR unknown verb", true
}

// PercentTo8Bit converts 0..100 to 0..255, rounding to nearest.
func PercentTo8Bit(p int) int {
	return (p*255 + 50) / 100
}

func keyFor(f driver.Family, module int) key {
	if f == driver.FamilyOnlyGlass {
		module = 0
	}
	return key{family: f, module: module}
}
