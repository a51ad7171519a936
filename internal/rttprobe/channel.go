package rttprobe

import (
	"context"
	"encoding/binary"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/twogc/bbr-streamctl/internal/socket"
	"github.com/twogc/bbr-streamctl/internal/xtime"
)

// receiveTimeout bounds each blocking recv call so the loop can notice
// context cancellation promptly. The spec's reference implementation uses
// a 100µs read timeout on the same thread as the send ticker; running the
// send and receive loops on separate goroutines here lets us use a less
// CPU-hungry timeout without changing the observable RTT semantics.
const receiveTimeout = 50 * time.Millisecond

// probeWireSize is the byte layout of a probe datagram: (u32 id, i64
// tv_sec, i64 tv_usec), every field written big-endian rather than in host
// byte order. Only the id is read back from the echo.
const probeWireSize = 4 + 8 + 8

// Channel owns the UDP socket and RTT Store for one probe session. One
// Channel runs on the side that initiates probing (the controller); the
// peer runs an EchoResponder.
type Channel struct {
	logger *zap.Logger
	store  *Store
	sock   socket.Datagram
	peer   net.Addr

	nextID uint32
}

// NewChannel binds a UDP socket and prepares a probe channel. Socket bind
// failures are setup errors (§7) and are returned, not absorbed.
func NewChannel(localAddr string, logger *zap.Logger) (*Channel, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sock, err := socket.Bind(localAddr)
	if err != nil {
		return nil, err
	}
	return &Channel{logger: logger, store: NewStore(), sock: sock}, nil
}

// Store returns the channel's RTT sample store for rt_prop/rtt_max_recent
// queries.
func (c *Channel) Store() *Store {
	return c.store
}

// Start resolves peer_addr and runs the send/receive loop until ctx is
// canceled. announce is called once, before the loop starts, so the caller
// can ship the one-shot "initialize probe channel" control message over the
// (separate) control transport — Start does not know about control frames
// itself, keeping the UDP probe path independent of the wire codec.
func (c *Channel) Start(ctx context.Context, peerAddr string, announce func() error) error {
	addr, err := socket.ResolveAddr(peerAddr)
	if err != nil {
		return err
	}
	c.peer = addr

	if announce != nil {
		if err := announce(); err != nil {
			c.logger.Warn("rttprobe: announce failed, continuing anyway", zap.Error(err))
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.recvLoop(ctx)
	}()

	ticker := time.NewTicker(PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			<-done
			return nil
		case <-ticker.C:
			c.sendProbe()
		}
	}
}

func (c *Channel) sendProbe() {
	id := c.nextID
	c.nextID = (c.nextID + 1) % StoreSize

	now := xtime.Now()
	c.store.RecordSend(id, now)

	buf := make([]byte, probeWireSize)
	binary.BigEndian.PutUint32(buf[0:4], id)
	binary.BigEndian.PutUint64(buf[4:12], uint64(now/1_000_000))
	binary.BigEndian.PutUint64(buf[12:20], uint64(now%1_000_000))

	if err := c.sock.SendTo(c.peer, buf); err != nil {
		// Transient I/O error: log and keep going, per §7.
		c.logger.Warn("rttprobe: send failed", zap.Error(err))
	}
}

func (c *Channel) recvLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		b, _, ok, err := c.sock.RecvFrom(receiveTimeout)
		if err != nil {
			c.logger.Warn("rttprobe: recv failed", zap.Error(err))
			continue
		}
		if !ok || len(b) < probeWireSize {
			continue
		}

		id := binary.BigEndian.Uint32(b[0:4])
		rtt := c.store.RecordEcho(id, xtime.Now())
		c.logger.Debug("rttprobe: sample recorded",
			zap.Uint32("id", id), zap.Uint32("rtt_us", rtt))
	}
}

// Close releases the underlying socket.
func (c *Channel) Close() error {
	return c.sock.Close()
}

// EchoResponder is the passive side of the probe protocol: it binds a UDP
// socket and echoes every datagram it receives back to its sender,
// verbatim, so the active Channel on the other end can measure RTT.
type EchoResponder struct {
	logger *zap.Logger
	sock   socket.Datagram
}

// NewEchoResponder binds a UDP socket to serve as the probe echo endpoint.
func NewEchoResponder(localAddr string, logger *zap.Logger) (*EchoResponder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sock, err := socket.Bind(localAddr)
	if err != nil {
		return nil, err
	}
	return &EchoResponder{logger: logger, sock: sock}, nil
}

// Run echoes incoming datagrams until ctx is canceled.
func (e *EchoResponder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		b, addr, ok, err := e.sock.RecvFrom(receiveTimeout)
		if err != nil {
			e.logger.Warn("rttprobe: echo recv failed", zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		if err := e.sock.SendTo(addr, b); err != nil {
			e.logger.Warn("rttprobe: echo send failed", zap.Error(err))
		}
	}
}

// Close releases the underlying socket.
func (e *EchoResponder) Close() error {
	return e.sock.Close()
}
