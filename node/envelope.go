package node

import (
	"encoding/binary"
	"fmt"
)

// The node runtime's data/control/service frames use the same
// length-prefixed-string convention as package wire, but are kept
// separate: these frames travel over zmq4 sockets between node runtimes,
// never over the UDP discovery channel, and evolve independently of the
// discovery wire contract.

func packString(buf []byte, s string) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(len(s)))
	buf = append(buf, tmp[:]...)
	return append(buf, s...)
}

func unpackString(buf []byte) (string, int, error) {
	if len(buf) < 8 {
		return "", 0, fmt.Errorf("node: truncated string length")
	}
	n := binary.LittleEndian.Uint64(buf)
	if uint64(len(buf)-8) < n {
		return "", 0, fmt.Errorf("node: truncated string body")
	}
	return string(buf[8 : 8+int(n)]), 8 + int(n), nil
}

// dataFrame is what travels over the publisher/subscriber sockets.
type dataFrame struct {
	Topic       string
	MsgTypeName string
	Payload     []byte
}

func (f dataFrame) marshal() []byte {
	buf := packString(nil, f.Topic)
	buf = packString(buf, f.MsgTypeName)
	return append(buf, f.Payload...)
}

func unmarshalDataFrame(b []byte) (dataFrame, error) {
	var f dataFrame
	topic, n, err := unpackString(b)
	if err != nil {
		return f, fmt.Errorf("node: unmarshal data frame topic: %w", err)
	}
	rest := b[n:]
	typeName, n2, err := unpackString(rest)
	if err != nil {
		return f, fmt.Errorf("node: unmarshal data frame type: %w", err)
	}
	f.Topic = topic
	f.MsgTypeName = typeName
	f.Payload = rest[n2:]
	return f, nil
}

// controlFrame notifies a publisher that a remote node connected to or
// disconnected from one of its topics, mirroring NodeShared's
// OnNewConnection/OnNewDisconnection bookkeeping.
type controlFrame struct {
	Kind  controlKind
	Topic string
	NUuid string
	PUuid string
}

type controlKind uint8

const (
	controlConnect controlKind = iota
	controlDisconnect
)

func (f controlFrame) marshal() []byte {
	buf := []byte{byte(f.Kind)}
	buf = packString(buf, f.Topic)
	buf = packString(buf, f.NUuid)
	buf = packString(buf, f.PUuid)
	return buf
}

func unmarshalControlFrame(b []byte) (controlFrame, error) {
	var f controlFrame
	if len(b) < 1 {
		return f, fmt.Errorf("node: empty control frame")
	}
	f.Kind = controlKind(b[0])
	rest := b[1:]

	topic, n, err := unpackString(rest)
	if err != nil {
		return f, fmt.Errorf("node: unmarshal control topic: %w", err)
	}
	rest = rest[n:]
	f.Topic = topic

	nUuid, n, err := unpackString(rest)
	if err != nil {
		return f, fmt.Errorf("node: unmarshal control nUuid: %w", err)
	}
	rest = rest[n:]
	f.NUuid = nUuid

	pUuid, _, err := unpackString(rest)
	if err != nil {
		return f, fmt.Errorf("node: unmarshal control pUuid: %w", err)
	}
	f.PUuid = pUuid

	return f, nil
}

// srvRequestFrame is sent from requester to replier.
type srvRequestFrame struct {
	Topic    string
	ReqUuid  string
	NUuid    string
	ReturnTo string
	Req      []byte
}

func (f srvRequestFrame) marshal() []byte {
	buf := packString(nil, f.Topic)
	buf = packString(buf, f.ReqUuid)
	buf = packString(buf, f.NUuid)
	buf = packString(buf, f.ReturnTo)
	return append(buf, f.Req...)
}

func unmarshalSrvRequestFrame(b []byte) (srvRequestFrame, error) {
	var f srvRequestFrame
	topic, n, err := unpackString(b)
	if err != nil {
		return f, fmt.Errorf("node: unmarshal request topic: %w", err)
	}
	rest := b[n:]

	reqUuid, n, err := unpackString(rest)
	if err != nil {
		return f, fmt.Errorf("node: unmarshal request reqUuid: %w", err)
	}
	rest = rest[n:]

	nUuid, n, err := unpackString(rest)
	if err != nil {
		return f, fmt.Errorf("node: unmarshal request nUuid: %w", err)
	}
	rest = rest[n:]

	returnTo, n, err := unpackString(rest)
	if err != nil {
		return f, fmt.Errorf("node: unmarshal request returnTo: %w", err)
	}
	rest = rest[n:]

	f.Topic = topic
	f.ReqUuid = reqUuid
	f.NUuid = nUuid
	f.ReturnTo = returnTo
	f.Req = rest
	return f, nil
}

// srvResponseFrame is sent from a transient replier-side dealer back to
// the requester's responseReceiver socket.
type srvResponseFrame struct {
	ReqUuid string
	Result  bool
	Rep     []byte
}

func (f srvResponseFrame) marshal() []byte {
	buf := packString(nil, f.ReqUuid)
	result := byte(0)
	if f.Result {
		result = 1
	}
	buf = append(buf, result)
	return append(buf, f.Rep...)
}

func unmarshalSrvResponseFrame(b []byte) (srvResponseFrame, error) {
	var f srvResponseFrame
	reqUuid, n, err := unpackString(b)
	if err != nil {
		return f, fmt.Errorf("node: unmarshal response reqUuid: %w", err)
	}
	rest := b[n:]
	if len(rest) < 1 {
		return f, fmt.Errorf("node: truncated response result flag")
	}
	f.ReqUuid = reqUuid
	f.Result = rest[0] == 1
	f.Rep = rest[1:]
	return f, nil
}
