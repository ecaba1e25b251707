// Package wire implements the length-prefixed binary packet codec used by
// the discovery protocol. Every integer on the wire is little-endian;
// length prefixes are pinned to uint64 regardless of host word size so
// that two processes built for different target platforms stay
// interoperable — the original implementation this protocol was distilled
// from packed length prefixes using the sender's native size_t width, which
// does not round-trip across 32/64-bit hosts. That is an intentional
// break from the legacy wire format.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// MsgType identifies the kind of discovery datagram. The numeric values
// are part of the wire contract and must not be renumbered.
type MsgType uint8

const (
	Uninitialized MsgType = iota
	Advertise
	Subscribe
	Unadvertise
	Heartbeat
	Bye
	AdvertiseSrv
	UnadvertiseSrv
	SubscribeSrv
)

func (t MsgType) String() string {
	switch t {
	case Advertise:
		return "ADVERTISE"
	case Subscribe:
		return "SUBSCRIBE"
	case Unadvertise:
		return "UNADVERTISE"
	case Heartbeat:
		return "HEARTBEAT"
	case Bye:
		return "BYE"
	case AdvertiseSrv:
		return "ADVERTISE_SRV"
	case UnadvertiseSrv:
		return "UNADVERTISE_SRV"
	case SubscribeSrv:
		return "SUBSCRIBE_SRV"
	default:
		return "UNINITIALIZED"
	}
}

// Scope restricts the visibility of an advertised endpoint.
type Scope uint8

const (
	ScopeProcess Scope = iota
	ScopeHost
	ScopeAll
)

// ErrIncomplete is returned by Pack when the message lacks a required
// field, and by Unpack when the buffer is shorter than a declared length
// prefix demands.
var ErrIncomplete = errors.New("wire: incomplete packet")

// Header is the common prefix of every discovery datagram.
type Header struct {
	Version uint16
	PUuid   string
	Type    MsgType
	Flags   uint16
}

// Len returns the number of bytes Pack will write for this header.
func (h Header) Len() int {
	return 2 + 8 + len(h.PUuid) + 1 + 2
}

// Pack appends the encoded header to buf and returns the result. It fails
// if the header is not fully initialized: version zero, an empty pUuid,
// or an uninitialized type are all considered incomplete.
func (h Header) Pack(buf []byte) ([]byte, error) {
	if h.Version == 0 || h.PUuid == "" || h.Type == Uninitialized {
		return nil, fmt.Errorf("wire: pack header: %w", ErrIncomplete)
	}

	var tmp [8]byte
	binary.LittleEndian.PutUint16(tmp[:2], h.Version)
	buf = append(buf, tmp[:2]...)

	binary.LittleEndian.PutUint64(tmp[:8], uint64(len(h.PUuid)))
	buf = append(buf, tmp[:8]...)
	buf = append(buf, h.PUuid...)

	buf = append(buf, byte(h.Type))

	binary.LittleEndian.PutUint16(tmp[:2], h.Flags)
	buf = append(buf, tmp[:2]...)

	return buf, nil
}

// Unpack decodes a header from the front of buf and returns the number of
// bytes consumed, so that callers can chain into the message body.
func (h *Header) Unpack(buf []byte) (int, error) {
	if len(buf) < 2+8 {
		return 0, fmt.Errorf("wire: unpack header: %w", ErrIncomplete)
	}
	off := 0
	h.Version = binary.LittleEndian.Uint16(buf[off:])
	off += 2

	pLen := binary.LittleEndian.Uint64(buf[off:])
	off += 8
	if uint64(len(buf)-off) < pLen {
		return 0, fmt.Errorf("wire: unpack header pUuid: %w", ErrIncomplete)
	}
	h.PUuid = string(buf[off : off+int(pLen)])
	off += int(pLen)

	if len(buf)-off < 1+2 {
		return 0, fmt.Errorf("wire: unpack header tail: %w", ErrIncomplete)
	}
	h.Type = MsgType(buf[off])
	off++
	h.Flags = binary.LittleEndian.Uint16(buf[off:])
	off += 2

	return off, nil
}

// packString appends a length-prefixed string to buf.
func packString(buf []byte, s string) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(len(s)))
	buf = append(buf, tmp[:]...)
	return append(buf, s...)
}

// unpackString reads a length-prefixed string from the front of buf and
// returns the string plus the number of bytes consumed.
func unpackString(buf []byte) (string, int, error) {
	if len(buf) < 8 {
		return "", 0, fmt.Errorf("wire: unpack string length: %w", ErrIncomplete)
	}
	n := binary.LittleEndian.Uint64(buf)
	if uint64(len(buf)-8) < n {
		return "", 0, fmt.Errorf("wire: unpack string body: %w", ErrIncomplete)
	}
	return string(buf[8 : 8+int(n)]), 8 + int(n), nil
}

// SubscriptionMsg is sent to probe for, or announce interest in, a topic.
type SubscriptionMsg struct {
	Header Header
	Topic  string
}

// Len returns the number of bytes Pack will write for this message.
func (m SubscriptionMsg) Len() int {
	return m.Header.Len() + 8 + len(m.Topic)
}

// Pack appends the encoded message to buf.
func (m SubscriptionMsg) Pack(buf []byte) ([]byte, error) {
	buf, err := m.Header.Pack(buf)
	if err != nil {
		return nil, err
	}
	if m.Topic == "" {
		return nil, fmt.Errorf("wire: pack subscription: empty topic: %w", ErrIncomplete)
	}
	return packString(buf, m.Topic), nil
}

// UnpackBody decodes the body following an already-unpacked header and
// returns the number of bytes consumed.
func (m *SubscriptionMsg) UnpackBody(buf []byte) (int, error) {
	topic, n, err := unpackString(buf)
	if err != nil {
		return 0, fmt.Errorf("wire: unpack subscription body: %w", err)
	}
	m.Topic = topic
	return n, nil
}

// AdvertiseBase is the body shared by topic and service advertisements.
type AdvertiseBase struct {
	Header Header
	Topic  string
	Addr   string
	Ctrl   string
	NUuid  string
	Scope  Scope
}

// Len returns the number of bytes Pack will write for this body.
func (a AdvertiseBase) Len() int {
	return a.Header.Len() + 8 + len(a.Topic) + 8 + len(a.Addr) +
		8 + len(a.Ctrl) + 8 + len(a.NUuid) + 1
}

// Pack appends the encoded header and common advertise body to buf.
func (a AdvertiseBase) Pack(buf []byte) ([]byte, error) {
	buf, err := a.Header.Pack(buf)
	if err != nil {
		return nil, err
	}
	if a.Topic == "" || a.Addr == "" || a.NUuid == "" {
		return nil, fmt.Errorf("wire: pack advertise base: %w", ErrIncomplete)
	}
	buf = packString(buf, a.Topic)
	buf = packString(buf, a.Addr)
	buf = packString(buf, a.Ctrl)
	buf = packString(buf, a.NUuid)
	buf = append(buf, byte(a.Scope))
	return buf, nil
}

// UnpackBody decodes the body following an already-unpacked header and
// returns the number of bytes consumed.
func (a *AdvertiseBase) UnpackBody(buf []byte) (int, error) {
	off := 0
	var err error
	var n int

	if a.Topic, n, err = unpackString(buf[off:]); err != nil {
		return 0, fmt.Errorf("wire: unpack advertise topic: %w", err)
	}
	off += n

	if a.Addr, n, err = unpackString(buf[off:]); err != nil {
		return 0, fmt.Errorf("wire: unpack advertise addr: %w", err)
	}
	off += n

	if a.Ctrl, n, err = unpackString(buf[off:]); err != nil {
		return 0, fmt.Errorf("wire: unpack advertise ctrl: %w", err)
	}
	off += n

	if a.NUuid, n, err = unpackString(buf[off:]); err != nil {
		return 0, fmt.Errorf("wire: unpack advertise nUuid: %w", err)
	}
	off += n

	if len(buf)-off < 1 {
		return 0, fmt.Errorf("wire: unpack advertise scope: %w", ErrIncomplete)
	}
	a.Scope = Scope(buf[off])
	off++

	return off, nil
}

// AdvertiseMsg announces a topic publisher.
type AdvertiseMsg struct {
	AdvertiseBase
	MsgTypeName string
}

// Len returns the number of bytes Pack will write for this message.
func (m AdvertiseMsg) Len() int {
	return m.AdvertiseBase.Len() + 8 + len(m.MsgTypeName)
}

// Pack appends the encoded message to buf.
func (m AdvertiseMsg) Pack(buf []byte) ([]byte, error) {
	buf, err := m.AdvertiseBase.Pack(buf)
	if err != nil {
		return nil, err
	}
	if m.MsgTypeName == "" {
		return nil, fmt.Errorf("wire: pack advertise msg: %w", ErrIncomplete)
	}
	return packString(buf, m.MsgTypeName), nil
}

// UnpackBody decodes the body following an already-unpacked header.
func (m *AdvertiseMsg) UnpackBody(buf []byte) (int, error) {
	off, err := m.AdvertiseBase.UnpackBody(buf)
	if err != nil {
		return 0, err
	}
	name, n, err := unpackString(buf[off:])
	if err != nil {
		return 0, fmt.Errorf("wire: unpack advertise msgTypeName: %w", err)
	}
	m.MsgTypeName = name
	return off + n, nil
}

// AdvertiseSrvMsg announces a service responder.
type AdvertiseSrvMsg struct {
	AdvertiseBase
	ReqTypeName string
	RepTypeName string
}

// Len returns the number of bytes Pack will write for this message.
func (m AdvertiseSrvMsg) Len() int {
	return m.AdvertiseBase.Len() + 8 + len(m.ReqTypeName) + 8 + len(m.RepTypeName)
}

// Pack appends the encoded message to buf.
func (m AdvertiseSrvMsg) Pack(buf []byte) ([]byte, error) {
	buf, err := m.AdvertiseBase.Pack(buf)
	if err != nil {
		return nil, err
	}
	if m.ReqTypeName == "" || m.RepTypeName == "" {
		return nil, fmt.Errorf("wire: pack advertise srv: %w", ErrIncomplete)
	}
	buf = packString(buf, m.ReqTypeName)
	buf = packString(buf, m.RepTypeName)
	return buf, nil
}

// UnpackBody decodes the body following an already-unpacked header.
func (m *AdvertiseSrvMsg) UnpackBody(buf []byte) (int, error) {
	off, err := m.AdvertiseBase.UnpackBody(buf)
	if err != nil {
		return 0, err
	}
	req, n, err := unpackString(buf[off:])
	if err != nil {
		return 0, fmt.Errorf("wire: unpack advertise srv reqTypeName: %w", err)
	}
	off += n

	rep, n, err := unpackString(buf[off:])
	if err != nil {
		return 0, fmt.Errorf("wire: unpack advertise srv repTypeName: %w", err)
	}
	off += n

	m.ReqTypeName = req
	m.RepTypeName = rep
	return off, nil
}
