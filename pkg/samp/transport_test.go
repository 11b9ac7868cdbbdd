package samp

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"
)

// udpPeer is a loopback socket standing in for a game server.
type udpPeer struct {
	conn *net.UDPConn
	ep   Endpoint
}

func newUDPPeer(t *testing.T) *udpPeer {
	t.Helper()

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	addr := conn.LocalAddr().(*net.UDPAddr)
	return &udpPeer{conn: conn, ep: Endpoint{Address: "127.0.0.1", Port: uint16(addr.Port)}}
}

// serve answers every datagram with reply(request); a nil reply is dropped.
func (p *udpPeer) serve(reply func([]byte) []byte) {
	go func() {
		buf := make([]byte, 2048)
		for {
			n, from, err := p.conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			if out := reply(append([]byte(nil), buf[:n]...)); out != nil {
				_, _ = p.conn.WriteToUDP(out, from)
			}
		}
	}()
}

// trackSockets records every socket opened by Exchange for the duration of the test.
func trackSockets(t *testing.T) func() []*net.UDPConn {
	t.Helper()

	var (
		mu    sync.Mutex
		conns []*net.UDPConn
	)
	orig := listenUDP
	listenUDP = func(network string, laddr *net.UDPAddr) (*net.UDPConn, error) {
		conn, err := orig(network, laddr)
		if err == nil {
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
		return conn, err
	}
	t.Cleanup(func() { listenUDP = orig })

	return func() []*net.UDPConn {
		mu.Lock()
		defer mu.Unlock()
		return append([]*net.UDPConn(nil), conns...)
	}
}

func assertClosed(t *testing.T, conns []*net.UDPConn) {
	t.Helper()

	if len(conns) == 0 {
		t.Fatal("no socket was opened")
	}
	for _, conn := range conns {
		if _, err := conn.Write([]byte{0}); !errors.Is(err, net.ErrClosed) {
			t.Errorf("socket %s still open: write err = %v", conn.LocalAddr(), err)
		}
	}
}

func TestExchangeEcho(t *testing.T) {
	sockets := trackSockets(t)
	peer := newUDPPeer(t)

	seen := make(chan []byte, 1)
	peer.serve(func(req []byte) []byte {
		select {
		case seen <- req:
		default:
		}
		return append(append([]byte(nil), req...), 0xAB)
	})

	packet, err := EncodeRequest(peer.ep.Address, peer.ep.Port, OpInfo)
	if err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}

	reply, err := Exchange(context.Background(), peer.ep, packet, time.Second)
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	select {
	case got := <-seen:
		if !bytes.Equal(got, packet) {
			t.Errorf("server saw % x, want % x", got, packet)
		}
	case <-time.After(time.Second):
		t.Fatal("server saw no request")
	}
	if !bytes.Equal(reply.Data, append(packet, 0xAB)) {
		t.Errorf("reply = % x", reply.Data)
	}
	if reply.RTT <= 0 {
		t.Errorf("rtt = %s, want positive", reply.RTT)
	}
	assertClosed(t, sockets())
}

func TestExchangeTimeout(t *testing.T) {
	sockets := trackSockets(t)
	peer := newUDPPeer(t)
	peer.serve(func([]byte) []byte { return nil })

	packet, _ := EncodeRequest(peer.ep.Address, peer.ep.Port, OpInfo)
	const timeout = 50 * time.Millisecond

	start := time.Now()
	_, err := Exchange(context.Background(), peer.ep, packet, timeout)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if elapsed < timeout {
		t.Errorf("returned after %s, before the %s timeout", elapsed, timeout)
	}
	if elapsed > 150*time.Millisecond {
		t.Errorf("returned after %s, long past the %s timeout", elapsed, timeout)
	}

	var qe *QueryError
	if !errors.As(err, &qe) || qe.Op != OpInfo || qe.Elapsed < timeout {
		t.Errorf("query error = %+v", qe)
	}
	assertClosed(t, sockets())
}

func TestExchangeRepeatedTimeoutsReleaseSockets(t *testing.T) {
	sockets := trackSockets(t)
	peer := newUDPPeer(t)
	peer.serve(func([]byte) []byte { return nil })
	packet, _ := EncodeRequest(peer.ep.Address, peer.ep.Port, OpRules)

	for range 5 {
		if _, err := Exchange(context.Background(), peer.ep, packet, 10*time.Millisecond); !errors.Is(err, ErrTimeout) {
			t.Fatalf("err = %v, want ErrTimeout", err)
		}
	}

	if n := len(sockets()); n != 5 {
		t.Fatalf("opened %d sockets, want 5", n)
	}
	assertClosed(t, sockets())
}

func TestExchangeContextCancel(t *testing.T) {
	sockets := trackSockets(t)
	peer := newUDPPeer(t)
	peer.serve(func([]byte) []byte { return nil })
	packet, _ := EncodeRequest(peer.ep.Address, peer.ep.Port, OpPlayers)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	start := time.Now()
	_, err := Exchange(ctx, peer.ep, packet, 5*time.Second)
	if err == nil {
		t.Fatal("Exchange succeeded after cancel")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled in chain", err)
	}
	if time.Since(start) > time.Second {
		t.Errorf("cancel did not unblock the read")
	}
	assertClosed(t, sockets())
}

func TestExchangeContextDeadlineIsTimeout(t *testing.T) {
	peer := newUDPPeer(t)
	peer.serve(func([]byte) []byte { return nil })
	packet, _ := EncodeRequest(peer.ep.Address, peer.ep.Port, OpInfo)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if _, err := Exchange(ctx, peer.ep, packet, 5*time.Second); !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestExchangeSocketFailure(t *testing.T) {
	orig := listenUDP
	listenUDP = func(string, *net.UDPAddr) (*net.UDPConn, error) {
		return nil, errors.New("no sockets left")
	}
	t.Cleanup(func() { listenUDP = orig })

	_, err := Exchange(context.Background(), Endpoint{Address: "127.0.0.1", Port: 7777}, make([]byte, HeaderSize), time.Second)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport", err)
	}
}

func TestExchangeRejectsBadInput(t *testing.T) {
	tests := []struct {
		ep      Endpoint
		timeout time.Duration
	}{
		{Endpoint{Address: "127.0.0.1", Port: 7777}, 0},
		{Endpoint{Address: "127.0.0.1", Port: 7777}, -time.Second},
		{Endpoint{Address: "example.com", Port: 7777}, time.Second},
		{Endpoint{Address: "::1", Port: 7777}, time.Second},
	}

	for _, tt := range tests {
		if _, err := Exchange(context.Background(), tt.ep, make([]byte, HeaderSize), tt.timeout); !errors.Is(err, ErrValidation) {
			t.Errorf("Exchange(%v, %s) err = %v, want ErrValidation", tt.ep, tt.timeout, err)
		}
	}
}
