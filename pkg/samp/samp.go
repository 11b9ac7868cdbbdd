// Package samp implements a client for the legacy SA-MP (San Andreas Multiplayer)
// UDP query protocol.
//
// A query is a single 11-byte datagram ("SAMP" magic, target IPv4 octets,
// little-endian port and an opcode character) answered by a single datagram
// that echoes the same 11-byte header followed by an opcode-specific payload.
// The package provides the codec for the request and the three supported
// replies (server information, rules and player list), a one-shot UDP
// transport and a Client that assembles all three into a Response.
//
// The protocol has no request identifiers: any datagram that arrives on the
// ephemeral socket while a request is outstanding is taken as its reply. The
// echoed opcode and address are not checked, matching the behavior of the
// servers and of existing clients.
package samp

import (
	"encoding/json"
	"net"
	"strconv"
	"time"
)

const (
	// Magic prefixes every request and reply datagram.
	Magic = "SAMP"

	// HeaderSize is the length of the request packet and of the header echoed in replies.
	HeaderSize = 11

	// DefaultPort is the port assumed when a request does not carry one.
	DefaultPort uint16 = 7777

	// DefaultTimeout is the reply window assumed when a request does not carry one.
	DefaultTimeout = time.Second

	// DefaultPlayerLimit is the online count above which the player list is not requested.
	// Larger rosters are split over several datagrams, which this client does not reassemble.
	DefaultPlayerLimit = 100
)

// Opcode selects the query type carried in the last byte of the request header.
type Opcode byte

// Known opcodes. Clients, Ping and RCON are reserved by the protocol and not issued by this package.
const (
	OpInfo    Opcode = 'i'
	OpRules   Opcode = 'r'
	OpClients Opcode = 'c'
	OpPlayers Opcode = 'd'
	OpPing    Opcode = 'p'
	OpRCON    Opcode = 'x'
)

// String returns the query stage name for the opcode.
func (o Opcode) String() string {
	switch o {
	case OpInfo:
		return "info"
	case OpRules:
		return "rules"
	case OpClients:
		return "clients"
	case OpPlayers:
		return "players"
	case OpPing:
		return "ping"
	case OpRCON:
		return "rcon"
	default:
		return "opcode(" + strconv.Itoa(int(o)) + ")"
	}
}

// Endpoint is a validated IPv4 address and port pair.
type Endpoint struct {
	Address string `json:"address"`
	Port    uint16 `json:"port"`
}

// String returns the endpoint in host:port form.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.Address, strconv.Itoa(int(e.Port)))
}

// UDPAddr returns the endpoint as a UDP address, or nil if Address is not an IP literal.
func (e Endpoint) UDPAddr() *net.UDPAddr {
	ip := net.ParseIP(e.Address)
	if ip == nil {
		return nil
	}

	return &net.UDPAddr{IP: ip, Port: int(e.Port)}
}

// ServerInfo is the payload of the information ('i') reply.
type ServerInfo struct {
	Hostname   string `json:"hostname"`
	Gamemode   string `json:"gamemode"`
	Language   string `json:"language"`
	Online     uint16 `json:"online"`
	MaxPlayers uint16 `json:"maxplayers"`
	Passworded bool   `json:"passworded"`
}

// Player is one entry of the detailed player list ('d') reply.
type Player struct {
	Name  string `json:"name"`
	Score int32  `json:"score"`
	Ping  uint16 `json:"ping"`
	ID    uint8  `json:"id"`
}

// Response is the aggregate result of a query against one server.
type Response struct {
	// Rules holds the server rules after normalization ("ping" removed, "weather" coerced).
	Rules *RuleSet `json:"rules"`

	// Address is the resolved IPv4 address that was queried.
	Address string `json:"address"`

	// Players is empty when the server reports more than the player limit online
	// or when the player list request failed at the transport level.
	Players []Player `json:"players"`

	ServerInfo

	// Ping is the round-trip time of the information request.
	Ping time.Duration `json:"-"`

	Port uint16 `json:"port"`
}

// Endpoint returns the queried endpoint.
func (r *Response) Endpoint() Endpoint {
	return Endpoint{Address: r.Address, Port: r.Port}
}

// MarshalJSON encodes the response in the flat layout used by SA-MP query
// tooling, with ping expressed in milliseconds.
func (r Response) MarshalJSON() ([]byte, error) {
	type plain Response

	return json.Marshal(struct {
		plain
		Ping int64 `json:"ping"`
	}{
		plain: plain(r),
		Ping:  r.Ping.Milliseconds(),
	})
}
