package wire

import (
	"encoding/binary"
	"fmt"
)

// Media datagram layout, all integers big-endian:
//
//	room_id      uint32
//	sender_id    uint32
//	username_len uint32
//	username     username_len bytes
//	payload      remaining bytes, opaque to the relay
const packetHeaderSize = 12

// MaxUsernameLen bounds the declared username length inside a datagram.
const MaxUsernameLen = 256

// Packet is one parsed media datagram. Payload is never interpreted.
type Packet struct {
	RoomID   uint32
	SenderID uint32
	Username string
	Payload  []byte
}

// ParsePacket decodes the fixed header of a media datagram. The returned
// Username and Payload alias the input slice.
func ParsePacket(data []byte) (Packet, error) {
	if len(data) < packetHeaderSize {
		return Packet{}, fmt.Errorf("packet too short: %d bytes", len(data))
	}

	roomID := binary.BigEndian.Uint32(data[0:4])
	senderID := binary.BigEndian.Uint32(data[4:8])
	nameLen := binary.BigEndian.Uint32(data[8:12])

	if nameLen > MaxUsernameLen {
		return Packet{}, fmt.Errorf("username length %d exceeds max %d", nameLen, MaxUsernameLen)
	}
	if uint32(len(data)-packetHeaderSize) < nameLen {
		return Packet{}, fmt.Errorf("packet truncated: username needs %d bytes, have %d", nameLen, len(data)-packetHeaderSize)
	}

	return Packet{
		RoomID:   roomID,
		SenderID: senderID,
		Username: string(data[packetHeaderSize : packetHeaderSize+nameLen]),
		Payload:  data[packetHeaderSize+nameLen:],
	}, nil
}

// Encode serializes the packet into the fixed wire layout.
func (p Packet) Encode() []byte {
	name := []byte(p.Username)
	buf := make([]byte, packetHeaderSize+len(name)+len(p.Payload))
	binary.BigEndian.PutUint32(buf[0:4], p.RoomID)
	binary.BigEndian.PutUint32(buf[4:8], p.SenderID)
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(name)))
	copy(buf[packetHeaderSize:], name)
	copy(buf[packetHeaderSize+len(name):], p.Payload)
	return buf
}
