package wire

import (
	"bytes"
	"testing"
)

func TestPacketRoundTrip(t *testing.T) {
	in := Packet{
		RoomID:   7,
		SenderID: 42,
		Username: "alice",
		Payload:  []byte{0xDE, 0xAD, 0xBE, 0xEF},
	}

	out, err := ParsePacket(in.Encode())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if out.RoomID != 7 || out.SenderID != 42 || out.Username != "alice" {
		t.Fatalf("header mismatch: %#v", out)
	}
	if !bytes.Equal(out.Payload, in.Payload) {
		t.Fatalf("payload mismatch: %x", out.Payload)
	}
}

func TestPacketEmptyPayloadAndName(t *testing.T) {
	out, err := ParsePacket(Packet{RoomID: 1, SenderID: 2}.Encode())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if out.Username != "" || len(out.Payload) != 0 {
		t.Fatalf("expected empty name and payload: %#v", out)
	}
}

func TestParsePacketTooShort(t *testing.T) {
	if _, err := ParsePacket([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for short packet")
	}
}

func TestParsePacketTruncatedUsername(t *testing.T) {
	data := Packet{RoomID: 1, SenderID: 2, Username: "carol"}.Encode()
	// Chop off the last two username bytes.
	if _, err := ParsePacket(data[:len(data)-2]); err == nil {
		t.Fatal("expected error for truncated username")
	}
}

func TestParsePacketHugeUsernameLen(t *testing.T) {
	data := Packet{RoomID: 1, SenderID: 2, Username: "x"}.Encode()
	// Corrupt username_len to a value far past the datagram end.
	data[8], data[9], data[10], data[11] = 0xFF, 0xFF, 0xFF, 0xFF
	if _, err := ParsePacket(data); err == nil {
		t.Fatal("expected error for oversized username length")
	}
}
