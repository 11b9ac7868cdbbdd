package samp

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/encoding"
)

// EncodeRequest builds the 11-byte query packet for the given IPv4 address, port and opcode.
//
// Each dotted-decimal octet is written as its low byte without range checks,
// and an octet that is not a decimal number is written as 0; address
// validation belongs to the caller. EncodeRequest only fails when the address
// does not consist of exactly four dot-separated parts.
func EncodeRequest(address string, port uint16, op Opcode) ([]byte, error) {
	octets := strings.Split(address, ".")
	if len(octets) != 4 {
		return nil, fmt.Errorf("%w: address %q is not a dotted IPv4 quad", ErrValidation, address)
	}

	packet := make([]byte, HeaderSize)
	copy(packet, Magic)

	for i, octet := range octets {
		n, _ := strconv.Atoi(octet)
		packet[4+i] = byte(n)
	}

	binary.LittleEndian.PutUint16(packet[8:], port)
	packet[10] = byte(op)

	return packet, nil
}

// payload returns a Reader over the whole datagram positioned after the echoed header,
// so decode error offsets count from the first byte of the datagram.
func payload(datagram []byte, charset encoding.Encoding) (*Reader, error) {
	if len(datagram) < HeaderSize {
		return nil, ErrShortDatagram
	}

	r := NewReader(datagram, charset)
	if err := r.Skip("header", HeaderSize); err != nil {
		return nil, err
	}

	return r, nil
}

// DecodeInfo parses an information ('i') reply.
func DecodeInfo(datagram []byte, charset encoding.Encoding) (ServerInfo, error) {
	var info ServerInfo

	r, err := payload(datagram, charset)
	if err != nil {
		return ServerInfo{}, err
	}

	password, err := r.Uint8("password flag")
	if err != nil {
		return ServerInfo{}, err
	}
	info.Passworded = password == 1

	if info.Online, err = r.Uint16("online count"); err != nil {
		return ServerInfo{}, err
	}
	if info.MaxPlayers, err = r.Uint16("max players"); err != nil {
		return ServerInfo{}, err
	}
	if info.Hostname, err = r.String32("hostname"); err != nil {
		return ServerInfo{}, err
	}
	if info.Gamemode, err = r.String32("gamemode"); err != nil {
		return ServerInfo{}, err
	}
	if info.Language, err = r.String32("language"); err != nil {
		return ServerInfo{}, err
	}

	return info, nil
}

// DecodeRules parses a rules ('r') reply. Names repeated in the payload keep
// the last value.
func DecodeRules(datagram []byte, charset encoding.Encoding) (*RuleSet, error) {
	r, err := payload(datagram, charset)
	if err != nil {
		return nil, err
	}

	count, err := r.Uint16("rule count")
	if err != nil {
		return nil, err
	}

	rules := NewRuleSet(int(count))
	for range count {
		name, err := r.String8("rule name")
		if err != nil {
			return nil, err
		}
		value, err := r.String8("rule value")
		if err != nil {
			return nil, err
		}
		rules.Set(name, RuleValue{Text: value})
	}

	return rules, nil
}

// DecodePlayers parses a detailed player list ('d') reply in wire order.
func DecodePlayers(datagram []byte, charset encoding.Encoding) ([]Player, error) {
	r, err := payload(datagram, charset)
	if err != nil {
		return nil, err
	}

	count, err := r.Uint16("player count")
	if err != nil {
		return nil, err
	}

	players := make([]Player, 0, count)
	for range count {
		var p Player

		if p.ID, err = r.Uint8("player id"); err != nil {
			return nil, err
		}
		if p.Name, err = r.String8("player name"); err != nil {
			return nil, err
		}

		score, err := r.PaddedUint16("player score")
		if err != nil {
			return nil, err
		}
		p.Score = int32(int16(score))

		if p.Ping, err = r.PaddedUint16("player ping"); err != nil {
			return nil, err
		}

		players = append(players, p)
	}

	return players, nil
}
