package main

import (
	"context"
	"log/slog"
	"time"

	"partyline/internal/media"
	"partyline/internal/registry"
)

// runMetrics logs chat and relay stats every interval until ctx is canceled.
// Silent while the server is idle.
func runMetrics(ctx context.Context, reg *registry.Registry, relay *media.Relay, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastBytesOut uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sessions := reg.Len()
			s := relay.Stats()
			if sessions == 0 && s.DatagramsIn == 0 {
				continue
			}
			slog.Info("metrics",
				"sessions", sessions,
				"rooms", s.Rooms,
				"members", s.Members,
				"datagrams_in", s.DatagramsIn,
				"datagrams_out", s.DatagramsOut,
				"bytes_out", s.BytesOut,
				"dropped", s.Dropped,
				"kbps_out", float64(s.BytesOut-lastBytesOut)/interval.Seconds()/1024*8,
			)
			lastBytesOut = s.BytesOut
		}
	}
}
