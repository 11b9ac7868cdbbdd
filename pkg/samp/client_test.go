package samp

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"slices"
	"sync"
	"testing"
	"time"
)

// scriptedServer answers exchanges from canned datagrams or errors per opcode.
type scriptedServer struct {
	mu      sync.Mutex
	replies map[Opcode][]byte
	errs    map[Opcode]error
	rtt     map[Opcode]time.Duration
	sent    []Opcode
}

func newScriptedServer() *scriptedServer {
	return &scriptedServer{
		replies: map[Opcode][]byte{},
		errs:    map[Opcode]error{},
		rtt:     map[Opcode]time.Duration{},
	}
}

func (s *scriptedServer) exchange(_ context.Context, ep Endpoint, packet []byte, timeout time.Duration) (Reply, error) {
	op := Opcode(packet[HeaderSize-1])

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, op)

	if err := s.errs[op]; err != nil {
		return Reply{}, &QueryError{Kind: kindOf(err), Err: err, Op: op, Endpoint: ep, Elapsed: timeout}
	}
	data, ok := s.replies[op]
	if !ok {
		return Reply{}, &QueryError{Kind: ErrTimeout, Op: op, Endpoint: ep, Elapsed: timeout}
	}
	rtt := s.rtt[op]
	if rtt == 0 {
		rtt = time.Millisecond
	}

	return Reply{Data: data, RTT: rtt}, nil
}

func (s *scriptedServer) requested() []Opcode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.sent)
}

func (s *scriptedServer) client(opts Options) *Client {
	opts.Exchange = s.exchange
	return New(opts)
}

type staticResolver map[string][]net.IP

func (r staticResolver) LookupIP(_ context.Context, _, host string) ([]net.IP, error) {
	ips, ok := r[host]
	if !ok {
		return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	}
	return ips, nil
}

func healthyServer(online uint16) *scriptedServer {
	s := newScriptedServer()
	s.replies[OpInfo] = infoDatagram(0, online, 200, "Test Server", "DM", "English")
	s.replies[OpRules] = rulesDatagram("version", "0.3.7", "weather", "10", "ping", "1")
	s.replies[OpPlayers] = playersDatagram(
		Player{ID: 0, Name: "alice", Score: 12, Ping: 40},
		Player{ID: 3, Name: "bob", Score: -5, Ping: 90},
	)
	s.rtt[OpInfo] = 42 * time.Millisecond
	s.rtt[OpRules] = 7 * time.Millisecond
	return s
}

func TestQuery(t *testing.T) {
	for _, sequential := range []bool{false, true} {
		s := healthyServer(2)
		c := s.client(Options{Sequential: sequential})

		resp, err := c.Query(context.Background(), Request{Host: "127.0.0.1"})
		if err != nil {
			t.Fatalf("sequential=%v: Query: %v", sequential, err)
		}

		if resp.Address != "127.0.0.1" || resp.Port != DefaultPort {
			t.Errorf("sequential=%v: endpoint = %s:%d", sequential, resp.Address, resp.Port)
		}
		if resp.Hostname != "Test Server" || resp.Gamemode != "DM" || resp.Language != "English" {
			t.Errorf("sequential=%v: info = %+v", sequential, resp.ServerInfo)
		}
		if resp.Ping != 42*time.Millisecond {
			t.Errorf("sequential=%v: ping = %s, want info round trip", sequential, resp.Ping)
		}
		if _, ok := resp.Rules.Get("ping"); ok {
			t.Errorf("sequential=%v: ping rule not removed", sequential)
		}
		if v, _ := resp.Rules.Get("weather"); v.Value() != 10 {
			t.Errorf("sequential=%v: weather = %#v", sequential, v.Value())
		}
		if len(resp.Players) != 2 || resp.Players[1].Name != "bob" || resp.Players[1].Score != -5 {
			t.Errorf("sequential=%v: players = %+v", sequential, resp.Players)
		}
	}
}

func TestQuerySequentialOrder(t *testing.T) {
	s := healthyServer(1)
	if _, err := s.client(Options{Sequential: true}).Query(context.Background(), Request{Host: "127.0.0.1"}); err != nil {
		t.Fatalf("Query: %v", err)
	}

	want := []Opcode{OpInfo, OpRules, OpPlayers}
	if got := s.requested(); !slices.Equal(got, want) {
		t.Fatalf("requests = %v, want %v", got, want)
	}
}

func TestQuerySkipsPlayersAboveLimit(t *testing.T) {
	tests := []struct {
		name   string
		online uint16
		limit  int
		want   bool
	}{
		{"at default limit", 100, 0, true},
		{"above default limit", 150, 0, false},
		{"custom limit", 11, 10, false},
		{"disabled", 0, -1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, sequential := range []bool{false, true} {
				s := healthyServer(tt.online)
				c := s.client(Options{PlayerLimit: tt.limit, Sequential: sequential})

				resp, err := c.Query(context.Background(), Request{Host: "127.0.0.1"})
				if err != nil {
					t.Fatalf("Query: %v", err)
				}
				if resp.Players == nil {
					t.Fatal("players is nil, want empty slice")
				}

				asked := slices.Contains(s.requested(), OpPlayers)
				if asked != tt.want {
					t.Errorf("sequential=%v: players requested = %v, want %v", sequential, asked, tt.want)
				}
				if !tt.want && len(resp.Players) != 0 {
					t.Errorf("sequential=%v: players = %+v, want none", sequential, resp.Players)
				}
			}
		})
	}
}

func TestQueryPlayersBestEffort(t *testing.T) {
	for _, cause := range []error{ErrTimeout, ErrTransport} {
		s := healthyServer(5)
		s.errs[OpPlayers] = cause

		resp, err := s.client(Options{}).Query(context.Background(), Request{Host: "127.0.0.1"})
		if err != nil {
			t.Fatalf("%v: Query: %v", cause, err)
		}
		if resp.Players == nil || len(resp.Players) != 0 {
			t.Errorf("%v: players = %#v, want empty", cause, resp.Players)
		}
		if resp.Hostname != "Test Server" {
			t.Errorf("%v: info lost: %+v", cause, resp.ServerInfo)
		}
	}
}

func TestQueryPlayersDecodeErrorPropagates(t *testing.T) {
	s := healthyServer(5)
	s.replies[OpPlayers] = append(header(OpPlayers), 0x02, 0x00, 0x01)

	_, err := s.client(Options{}).Query(context.Background(), Request{Host: "127.0.0.1"})
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("err = %v, want ErrProtocol", err)
	}

	var qe *QueryError
	if !errors.As(err, &qe) || qe.Op != OpPlayers {
		t.Fatalf("query error = %+v, want players stage", qe)
	}
}

func TestQueryStageFailures(t *testing.T) {
	tests := []struct {
		name string
		op   Opcode
		err  error
		data []byte
		want error
	}{
		{"info timeout", OpInfo, ErrTimeout, nil, ErrTimeout},
		{"rules timeout", OpRules, ErrTimeout, nil, ErrTimeout},
		{"info transport", OpInfo, ErrTransport, nil, ErrTransport},
		{"info short", OpInfo, nil, []byte("SAMP"), ErrProtocol},
		{"rules truncated", OpRules, nil, append(header(OpRules), 0x01, 0x00, 0x05, 'a'), ErrProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, sequential := range []bool{false, true} {
				s := healthyServer(1)
				if tt.err != nil {
					s.errs[tt.op] = tt.err
				} else {
					s.replies[tt.op] = tt.data
				}

				resp, err := s.client(Options{Sequential: sequential}).Query(context.Background(), Request{Host: "127.0.0.1"})
				if resp != nil {
					t.Errorf("sequential=%v: partial response %+v", sequential, resp)
				}
				if !errors.Is(err, tt.want) {
					t.Fatalf("sequential=%v: err = %v, want %v", sequential, err, tt.want)
				}

				var qe *QueryError
				if !errors.As(err, &qe) || qe.Op != tt.op {
					t.Errorf("sequential=%v: query error = %+v, want op %s", sequential, qe, tt.op)
				}
				if qe != nil && qe.Endpoint.Address != "127.0.0.1" {
					t.Errorf("sequential=%v: endpoint = %v", sequential, qe.Endpoint)
				}
			}
		})
	}
}

func TestQueryValidation(t *testing.T) {
	tests := []Request{
		{Host: ""},
		{Host: "   "},
		{Host: "127.0.0.1", Port: -1},
		{Host: "127.0.0.1", Port: 65536},
		{Host: "127.0.0.1", Timeout: -time.Second},
		{Host: "::1"},
	}

	for _, req := range tests {
		s := healthyServer(1)
		_, err := s.client(Options{}).Query(context.Background(), req)
		if !errors.Is(err, ErrValidation) {
			t.Errorf("Query(%+v) err = %v, want ErrValidation", req, err)
		}
		if n := len(s.requested()); n != 0 {
			t.Errorf("Query(%+v) sent %d requests", req, n)
		}
	}
}

func TestQueryResolvesHostName(t *testing.T) {
	resolver := staticResolver{
		"samp.example":  {net.ParseIP("2001:db8::1"), net.ParseIP("10.0.0.7")},
		"ipv6.example":  {net.ParseIP("2001:db8::2")},
		"loopback.test": {net.IPv4(127, 0, 0, 1)},
	}
	c := healthyServer(1).client(Options{Resolver: resolver, Port: 7778})

	ep, timeout, err := c.Resolve(context.Background(), Request{Host: "samp.example"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ep.Address != "10.0.0.7" || ep.Port != 7778 || timeout != DefaultTimeout {
		t.Fatalf("resolved %v timeout %s", ep, timeout)
	}

	for _, host := range []string{"ipv6.example", "missing.example"} {
		_, _, err := c.Resolve(context.Background(), Request{Host: host})
		if !errors.Is(err, ErrResolve) {
			t.Errorf("Resolve(%q) err = %v, want ErrResolve", host, err)
		}
	}

	var dnsErr *net.DNSError
	_, _, err = c.Resolve(context.Background(), Request{Host: "missing.example"})
	if !errors.As(err, &dnsErr) {
		t.Errorf("resolver cause lost: %v", err)
	}
}

func TestQueryObserverCalledOncePerExchange(t *testing.T) {
	s := healthyServer(1)
	s.replies[OpPlayers] = []byte("SAMP")

	var (
		mu   sync.Mutex
		seen = map[Opcode]int{}
		errs = map[Opcode]string{}
	)
	c := s.client(Options{
		Sequential: true,
		Observe: func(op Opcode, _ time.Duration, err error) {
			mu.Lock()
			defer mu.Unlock()
			seen[op]++
			errs[op] = Kind(err)
		},
	})

	if _, err := c.Query(context.Background(), Request{Host: "127.0.0.1"}); !errors.Is(err, ErrProtocol) {
		t.Fatalf("err = %v, want ErrProtocol", err)
	}

	for _, op := range []Opcode{OpInfo, OpRules, OpPlayers} {
		if seen[op] != 1 {
			t.Errorf("%s observed %d times", op, seen[op])
		}
	}
	if errs[OpInfo] != "ok" || errs[OpPlayers] != "protocol" {
		t.Errorf("kinds = %v", errs)
	}
}

func TestResponseMarshalJSON(t *testing.T) {
	s := healthyServer(2)
	resp, err := s.client(Options{}).Query(context.Background(), Request{Host: "127.0.0.1", Port: 7777})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}

	b, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if got["ping"] != float64(42) {
		t.Errorf("ping = %v, want 42", got["ping"])
	}
	if got["hostname"] != "Test Server" || got["passworded"] != false || got["online"] != float64(2) {
		t.Errorf("info fields = %v", got)
	}
	rules, ok := got["rules"].(map[string]any)
	if !ok || rules["weather"] != float64(10) || rules["version"] != "0.3.7" {
		t.Errorf("rules = %v", got["rules"])
	}
	if players, ok := got["players"].([]any); !ok || len(players) != 2 {
		t.Errorf("players = %v", got["players"])
	}
}
