package link

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/turretctl/turretd/internal/debug"
)

// Receiver listens for target packets on UDP and posts them to a Mailbox.
// Delivery is lossy and unordered; malformed packets are counted and dropped.
type Receiver struct {
	conn    net.PacketConn
	mailbox *Mailbox

	received atomic.Uint64
	dropped  atomic.Uint64
}

// Listen binds addr (e.g. ":7777").
func Listen(addr string, mb *Mailbox) (*Receiver, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen udp %s: %w", addr, err)
	}
	debug.Info("Listening for targets on udp %s", conn.LocalAddr())
	return &Receiver{conn: conn, mailbox: mb}, nil
}

// Addr returns the bound address.
func (r *Receiver) Addr() net.Addr {
	return r.conn.LocalAddr()
}

// Run reads packets until ctx is cancelled or the socket is closed.
func (r *Receiver) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		r.conn.Close()
	}()

	buf := make([]byte, 512)
	for {
		n, from, err := r.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("read udp: %w", err)
		}

		p, err := Decode(buf[:n])
		if err != nil {
			r.dropped.Add(1)
			debug.Verbose("Dropped packet from %s: %v", from, err)
			continue
		}
		r.received.Add(1)
		r.mailbox.Post(p.Command())
	}
}

// Close stops Run.
func (r *Receiver) Close() error {
	return r.conn.Close()
}

// Stats returns the number of accepted and dropped packets.
func (r *Receiver) Stats() (received, dropped uint64) {
	return r.received.Load(), r.dropped.Load()
}
