// Package media relays realtime datagrams between room members over UDP.
// The relay never inspects payloads; it learns who is in which room from the
// packet headers and forwards bytes as-is.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"partyline/internal/wire"
)

// maxDatagramSize bounds a single relayed datagram.
const maxDatagramSize = 64 * 1024

// member is one (room, sender) entry: where to forward and when we last
// heard from them.
type member struct {
	username string
	addr     net.Addr
	lastSeen time.Time
}

// Stats is a point-in-time snapshot of relay activity.
type Stats struct {
	Rooms        int    `json:"rooms"`
	Members      int    `json:"members"`
	DatagramsIn  uint64 `json:"datagrams_in"`
	DatagramsOut uint64 `json:"datagrams_out"`
	BytesIn      uint64 `json:"bytes_in"`
	BytesOut     uint64 `json:"bytes_out"`
	Dropped      uint64 `json:"dropped"`
}

// Relay is the UDP room relay. A single goroutine reads the socket;
// membership is guarded by the relay's own lock and shared with nothing
// else.
type Relay struct {
	addr        string
	idleTimeout time.Duration
	conn        net.PacketConn

	mu    sync.Mutex
	rooms map[uint32]map[uint32]*member

	datagramsIn  atomic.Uint64
	datagramsOut atomic.Uint64
	bytesIn      atomic.Uint64
	bytesOut     atomic.Uint64
	dropped      atomic.Uint64
}

// NewRelay creates a relay. idleTimeout <= 0 disables member eviction:
// membership then only grows, which matches small deployments where rooms
// die with the process.
func NewRelay(addr string, idleTimeout time.Duration) *Relay {
	return &Relay{
		addr:        addr,
		idleTimeout: idleTimeout,
		rooms:       make(map[uint32]map[uint32]*member),
	}
}

// Listen binds the UDP socket. Separate from Run so callers learn the bound
// address (and failures) before the read loop starts.
func (r *Relay) Listen() error {
	conn, err := net.ListenPacket("udp", r.addr)
	if err != nil {
		return fmt.Errorf("listen media plane on %s: %w", r.addr, err)
	}
	r.conn = conn
	slog.Info("media plane listening", "addr", conn.LocalAddr())
	return nil
}

// Addr returns the bound address. Only valid after Listen.
func (r *Relay) Addr() net.Addr { return r.conn.LocalAddr() }

// Run reads datagrams until ctx is canceled. Malformed datagrams are
// dropped; they never disturb the loop.
func (r *Relay) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = r.conn.Close()
	}()
	if r.idleTimeout > 0 {
		go r.sweepLoop(ctx)
	}

	buf := make([]byte, maxDatagramSize)
	for {
		n, src, err := r.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read media datagram: %w", err)
		}

		r.datagramsIn.Add(1)
		r.bytesIn.Add(uint64(n))

		pkt, err := wire.ParsePacket(buf[:n])
		if err != nil {
			r.dropped.Add(1)
			slog.Debug("malformed media datagram", "remote", src, "size", n, "err", err)
			continue
		}
		r.forward(pkt, src, buf[:n])
	}
}

// forward upserts the sender's membership and sends the unmodified datagram
// to every other member of the room. Exclusion is by sender id, not source
// address, so a member behind a changing NAT port never hears itself.
func (r *Relay) forward(pkt wire.Packet, src net.Addr, data []byte) {
	r.mu.Lock()
	room := r.rooms[pkt.RoomID]
	if room == nil {
		room = make(map[uint32]*member)
		r.rooms[pkt.RoomID] = room
		slog.Debug("media room created", "room", pkt.RoomID)
	}

	m := room[pkt.SenderID]
	if m == nil {
		m = &member{}
		room[pkt.SenderID] = m
		slog.Info("media member joined", "room", pkt.RoomID, "sender", pkt.SenderID, "username", pkt.Username, "remote", src)
	}
	m.username = pkt.Username
	m.addr = src
	m.lastSeen = time.Now()

	targets := make([]net.Addr, 0, len(room)-1)
	for id, other := range room {
		if id == pkt.SenderID {
			continue
		}
		targets = append(targets, other.addr)
	}
	r.mu.Unlock()

	for _, addr := range targets {
		n, err := r.conn.WriteTo(data, addr)
		if err != nil {
			slog.Debug("media forward failed", "room", pkt.RoomID, "to", addr, "err", err)
			continue
		}
		r.datagramsOut.Add(1)
		r.bytesOut.Add(uint64(n))
	}
}

// sweepLoop prunes members that stopped sending. Only runs when an idle
// timeout is configured.
func (r *Relay) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(r.idleTimeout)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.sweep(now)
		}
	}
}

func (r *Relay) sweep(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for roomID, room := range r.rooms {
		for id, m := range room {
			if now.Sub(m.lastSeen) > r.idleTimeout {
				delete(room, id)
				slog.Info("media member evicted", "room", roomID, "sender", id, "username", m.username)
			}
		}
		if len(room) == 0 {
			delete(r.rooms, roomID)
			slog.Debug("media room removed", "room", roomID)
		}
	}
}

// Stats snapshots the relay counters.
func (r *Relay) Stats() Stats {
	r.mu.Lock()
	rooms := len(r.rooms)
	members := 0
	for _, room := range r.rooms {
		members += len(room)
	}
	r.mu.Unlock()

	return Stats{
		Rooms:        rooms,
		Members:      members,
		DatagramsIn:  r.datagramsIn.Load(),
		DatagramsOut: r.datagramsOut.Load(),
		BytesIn:      r.bytesIn.Load(),
		BytesOut:     r.bytesOut.Load(),
		Dropped:      r.dropped.Load(),
	}
}
