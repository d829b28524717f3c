package main

import (
	"context"
	"encoding/binary"
	"log/slog"
	"net"
	"time"

	"partyline/internal/wire"
)

// Test bot identity inside the media plane.
const (
	testBotRoom   uint32 = 1
	testBotSender uint32 = 0xB07
)

// RunTestBot joins media room 1 as a virtual member and sends a small
// sequenced beacon datagram on a fixed cadence. Useful for verifying relay
// connectivity and client playout paths without a second real client.
func RunTestBot(ctx context.Context, relayAddr, name string) {
	conn, err := net.Dial("udp", relayAddr)
	if err != nil {
		slog.Error("testbot dial failed", "addr", relayAddr, "err", err)
		return
	}
	defer conn.Close()

	slog.Info("testbot joined", "room", testBotRoom, "name", name, "relay", relayAddr)
	defer slog.Info("testbot stopped", "name", name)

	// Drain forwarded datagrams so the socket buffer never fills.
	go func() {
		buf := make([]byte, 64*1024)
		for {
			if _, err := conn.Read(buf); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	var seq uint32
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		var payload [12]byte
		binary.BigEndian.PutUint32(payload[0:4], seq)
		binary.BigEndian.PutUint64(payload[4:12], uint64(time.Now().UnixMilli()))
		seq++

		pkt := wire.Packet{
			RoomID:   testBotRoom,
			SenderID: testBotSender,
			Username: name,
			Payload:  payload[:],
		}
		if _, err := conn.Write(pkt.Encode()); err != nil {
			slog.Warn("testbot send failed", "err", err)
			return
		}
	}
}
