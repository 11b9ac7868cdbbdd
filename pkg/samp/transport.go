package samp

import (
	"context"
	"errors"
	"net"
	"time"
)

// maxDatagram bounds a single reply. Rosters above DefaultPlayerLimit are the
// only replies that approach it and are not requested.
const maxDatagram = 4096

// listenUDP opens the ephemeral socket used by Exchange.
var listenUDP = net.ListenUDP

// Reply is a datagram received in answer to a request.
type Reply struct {
	// Data is the full datagram including the echoed header. It is owned by the caller.
	Data []byte

	// From is the address the datagram arrived from.
	From *net.UDPAddr

	// RTT is the time between sending the request and receiving the reply.
	RTT time.Duration
}

// Exchange sends packet to ep from a fresh unconnected UDP socket and waits for
// exactly one datagram on that socket, or until timeout (or the context
// deadline, if earlier) expires. The socket is closed before Exchange returns.
//
// The first datagram received is returned without checking its source or its
// echoed header; the protocol offers no way to pair replies with requests.
func Exchange(ctx context.Context, ep Endpoint, packet []byte, timeout time.Duration) (Reply, error) {
	op := Opcode(0)
	if len(packet) == HeaderSize {
		op = Opcode(packet[HeaderSize-1])
	}

	fail := func(kind, err error, elapsed time.Duration) (Reply, error) {
		return Reply{}, &QueryError{Kind: kind, Err: err, Op: op, Endpoint: ep, Elapsed: elapsed}
	}

	if timeout <= 0 {
		return fail(ErrValidation, errors.New("timeout must be positive"), 0)
	}
	raddr := ep.UDPAddr()
	if raddr == nil || raddr.IP.To4() == nil {
		return fail(ErrValidation, errors.New("endpoint address is not IPv4"), 0)
	}
	if err := ctx.Err(); err != nil {
		return fail(ErrTimeout, err, 0)
	}

	conn, err := listenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		return fail(ErrTransport, err, 0)
	}
	defer func() { _ = conn.Close() }()

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fail(ErrTransport, err, 0)
	}

	// Unblock the read on cancellation. The goroutine exits when the read does.
	readDone := make(chan struct{})
	defer close(readDone)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.SetReadDeadline(time.Now())
		case <-readDone:
		}
	}()

	start := time.Now()
	if _, err := conn.WriteToUDP(packet, raddr); err != nil {
		return fail(ErrTransport, err, time.Since(start))
	}

	buf := make([]byte, maxDatagram)
	n, from, err := conn.ReadFromUDP(buf)
	rtt := time.Since(start)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				return fail(ErrTimeout, ctxErr, rtt)
			}
			return fail(ErrTransport, ctxErr, rtt)
		}

		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return fail(ErrTimeout, err, rtt)
		}
		return fail(ErrTransport, err, rtt)
	}

	data := make([]byte, n)
	copy(data, buf[:n])

	return Reply{Data: data, From: from, RTT: rtt}, nil
}
