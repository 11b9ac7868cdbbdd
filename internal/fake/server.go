// Package fake provides a local SA-MP responder and random node data for
// tests and development.
package fake

import (
	"encoding/binary"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/sampquery/pkg/samp"
	"golang.org/x/text/encoding"
)

// Rule is one server rule in wire order.
type Rule struct {
	Name  string
	Value string
}

// Scenario describes how a fake server answers.
type Scenario struct {
	// Charset encodes strings on the wire. Defaults to samp.DefaultCharset.
	Charset encoding.Encoding

	// Silent lists opcodes that get no reply at all.
	Silent map[samp.Opcode]bool

	// Truncate cuts the reply to an opcode down to the given number of bytes.
	Truncate map[samp.Opcode]int

	Rules   []Rule
	Players []samp.Player
	Info    samp.ServerInfo

	// Delay postpones every reply.
	Delay time.Duration
}

// DefaultScenario is a small populated server.
func DefaultScenario() Scenario {
	return Scenario{
		Info: samp.ServerInfo{
			Hostname:   "Fake SA-MP Server",
			Gamemode:   "Freeroam",
			Language:   "Русский",
			Online:     3,
			MaxPlayers: 50,
		},
		Rules: []Rule{
			{"lagcomp", "On"},
			{"mapname", "San Andreas"},
			{"version", "0.3.7-R2"},
			{"weather", "10"},
			{"worldtime", "12:00"},
		},
		Players: []samp.Player{
			{ID: 0, Name: "Carl_Johnson", Score: 120, Ping: 35},
			{ID: 1, Name: "Big_Smoke", Score: -4, Ping: 80},
			{ID: 7, Name: "Ryder", Score: 0, Ping: 120},
		},
	}
}

// Server answers SA-MP queries on a UDP socket.
type Server struct {
	conn     *net.UDPConn
	requests map[samp.Opcode]int
	scenario Scenario
	wg       sync.WaitGroup
	mu       sync.Mutex
}

// Listen opens a UDP socket on addr ("127.0.0.1:0" picks a free port).
// Call Serve or Start to begin answering.
func Listen(addr string, sc Scenario) (*Server, error) {
	udpAddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, err
	}

	conn, err := net.ListenUDP("udp4", udpAddr)
	if err != nil {
		return nil, err
	}

	return &Server{conn: conn, scenario: sc, requests: map[samp.Opcode]int{}}, nil
}

// Addr returns the local address of the socket.
func (s *Server) Addr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// Endpoint returns the socket address as a query endpoint.
func (s *Server) Endpoint() samp.Endpoint {
	addr := s.Addr()
	return samp.Endpoint{Address: addr.IP.To4().String(), Port: uint16(addr.Port)}
}

// SetScenario replaces the behavior for subsequent requests.
func (s *Server) SetScenario(sc Scenario) {
	s.mu.Lock()
	s.scenario = sc
	s.mu.Unlock()
}

// Requests returns how many requests for op were received.
func (s *Server) Requests(op samp.Opcode) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.requests[op]
}

// Start serves in a background goroutine.
func (s *Server) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.Serve(); err != nil {
			log.Error().Err(err).Msg("Fake server stopped")
		}
	}()
}

// Serve reads requests until the server is closed.
func (s *Server) Serve() error {
	buf := make([]byte, 2048)
	for {
		n, from, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		req := append([]byte(nil), buf[:n]...)
		s.handle(req, from)
	}
}

// Close stops serving and waits for pending delayed replies to finish.
func (s *Server) Close() error {
	err := s.conn.Close()
	s.wg.Wait()

	return err
}

func (s *Server) handle(req []byte, from *net.UDPAddr) {
	if len(req) < samp.HeaderSize || string(req[:len(samp.Magic)]) != samp.Magic {
		log.Trace().Stringer("from", from).Int("bytes", len(req)).Msg("Ignoring non SA-MP datagram")
		return
	}
	op := samp.Opcode(req[samp.HeaderSize-1])

	s.mu.Lock()
	s.requests[op]++
	sc := s.scenario
	s.mu.Unlock()

	if sc.Silent[op] {
		return
	}

	reply, err := Reply(req, sc)
	if err != nil {
		log.Warn().Err(err).Stringer("op", op).Msg("Failed to encode fake reply")
		return
	}
	if reply == nil {
		return
	}
	if n, ok := sc.Truncate[op]; ok && n < len(reply) {
		reply = reply[:n]
	}

	if sc.Delay <= 0 {
		_, _ = s.conn.WriteToUDP(reply, from)
		return
	}

	s.wg.Add(1)
	time.AfterFunc(sc.Delay, func() {
		defer s.wg.Done()
		_, _ = s.conn.WriteToUDP(reply, from)
	})
}

// Reply builds the datagram a server following sc sends in answer to req.
// It returns nil for opcodes the fake does not implement.
func Reply(req []byte, sc Scenario) ([]byte, error) {
	if len(req) < samp.HeaderSize {
		return nil, samp.ErrShortDatagram
	}

	enc := sc.Charset
	if enc == nil {
		enc = samp.DefaultCharset
	}
	w := &writer{buf: append([]byte(nil), req[:samp.HeaderSize]...), enc: encoding.ReplaceUnsupported(enc.NewEncoder())}

	switch op := samp.Opcode(req[samp.HeaderSize-1]); op {
	case samp.OpInfo:
		w.info(sc.Info)
	case samp.OpRules:
		w.rules(sc.Rules)
	case samp.OpPlayers:
		w.players(sc.Players)
	case samp.OpClients:
		w.clients(sc.Players)
	case samp.OpPing:
		// Echo the request including its 4-byte token
		return append([]byte(nil), req...), nil
	default:
		return nil, nil
	}

	return w.buf, w.err
}

type writer struct {
	enc *encoding.Encoder
	err error
	buf []byte
}

func (w *writer) u8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *writer) u16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

// u16pad writes v in a 4-byte little-endian slot.
func (w *writer) u16pad(v uint16) {
	w.u16(v)
	w.buf = append(w.buf, 0, 0)
}

func (w *writer) text(s string) []byte {
	if w.err != nil {
		return nil
	}
	b, err := w.enc.Bytes([]byte(s))
	if err != nil {
		w.err = err
	}

	return b
}

func (w *writer) string8(s string) {
	b := w.text(s)
	if len(b) > 0xFF {
		b = b[:0xFF]
	}
	w.u8(uint8(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *writer) string32(s string) {
	b := w.text(s)
	if len(b) > 0xFFFF {
		b = b[:0xFFFF]
	}
	w.u16pad(uint16(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *writer) info(info samp.ServerInfo) {
	if info.Passworded {
		w.u8(1)
	} else {
		w.u8(0)
	}
	w.u16(info.Online)
	w.u16(info.MaxPlayers)
	w.string32(info.Hostname)
	w.string32(info.Gamemode)
	w.string32(info.Language)
}

func (w *writer) rules(rules []Rule) {
	w.u16(uint16(len(rules)))
	for _, r := range rules {
		w.string8(r.Name)
		w.string8(r.Value)
	}
}

func (w *writer) players(players []samp.Player) {
	w.u16(uint16(len(players)))
	for _, p := range players {
		w.u8(p.ID)
		w.string8(p.Name)
		w.u16pad(uint16(int16(p.Score)))
		w.u16pad(p.Ping)
	}
}

// clients writes the basic player list: name and score only.
func (w *writer) clients(players []samp.Player) {
	w.u16(uint16(len(players)))
	for _, p := range players {
		w.string8(p.Name)
		w.u16pad(uint16(int16(p.Score)))
	}
}
