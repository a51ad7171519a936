// Package transport carries component D's SYSTEM frames between peers
// over a single QUIC stream, giving the control channel the in-order,
// reliable delivery §5's ordering guarantees require.
package transport

import (
	"context"
	"fmt"
	"io"
	"time"

	quic "github.com/quic-go/quic-go"
	"go.uber.org/zap"

	"github.com/twogc/bbr-streamctl/internal/wire"
)

const (
	maxIdleTimeout  = 30 * time.Second
	keepAlivePeriod = 10 * time.Second
)

func quicConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:  maxIdleTimeout,
		KeepAlivePeriod: keepAlivePeriod,
	}
}

// Conn is one peer's end of the control channel: a QUIC connection plus
// the single bidirectional stream SYSTEM frames travel on.
type Conn struct {
	logger *zap.Logger
	conn   quic.Connection
	stream quic.Stream
}

// Listener accepts inbound control connections.
type Listener struct {
	logger   *zap.Logger
	listener *quic.Listener
}

// Listen binds addr and returns a Listener. Bind failures are fatal to the
// caller, mirroring component A's socket failure semantics (§4.A).
func Listen(addr, certPath, keyPath string, logger *zap.Logger) (*Listener, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	tlsConf, err := ServerTLSConfig(certPath, keyPath)
	if err != nil {
		return nil, err
	}
	ln, err := quic.ListenAddr(addr, tlsConf, quicConfig())
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	return &Listener{logger: logger, listener: ln}, nil
}

// Accept blocks for the next inbound connection and opens its stream.
func (l *Listener) Accept(ctx context.Context) (*Conn, error) {
	conn, err := l.listener.Accept(ctx)
	if err != nil {
		return nil, fmt.Errorf("accept connection: %w", err)
	}
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		return nil, fmt.Errorf("accept stream: %w", err)
	}
	l.logger.Info("control channel accepted", zap.String("remote_addr", conn.RemoteAddr().String()))
	return &Conn{logger: l.logger, conn: conn, stream: stream}, nil
}

// Close stops accepting new connections.
func (l *Listener) Close() error {
	return l.listener.Close()
}

// Addr returns the address the listener actually bound to, useful when
// Listen was called with an ephemeral port (":0").
func (l *Listener) Addr() string {
	return l.listener.Addr().String()
}

// Dial connects to a peer's control channel and opens its single stream.
func Dial(ctx context.Context, addr string, logger *zap.Logger) (*Conn, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := quic.DialAddr(ctx, addr, ClientTLSConfig(), quicConfig())
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("open stream to %s: %w", addr, err)
	}
	logger.Info("control channel dialed", zap.String("addr", addr))
	return &Conn{logger: logger, conn: conn, stream: stream}, nil
}

// Send writes one already-encoded frame to the stream. The transport
// guarantees in-order delivery of SYSTEM frames (§5 Ordering guarantees
// (iii)); QUIC stream semantics provide this directly.
func (c *Conn) Send(frame wire.Frame) error {
	_, err := c.stream.Write(frame)
	if err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReceiveLoop reads frames from the stream until ctx is cancelled or the
// stream closes, dispatching each through registry. Malformed frames are
// logged and do not terminate the loop (§7 non-fatal protocol errors).
func (c *Conn) ReceiveLoop(ctx context.Context, registry *wire.Registry) error {
	header := make([]byte, wire.HeaderSize)
	buf := make([]byte, wire.MaxFrameSize)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if _, err := io.ReadFull(c.stream, header); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read frame header: %w", err)
		}

		hdr, err := wire.ParseHeader(header)
		if err != nil {
			c.logger.Warn("dropping frame with unparsable header", zap.Error(err))
			continue
		}
		if int(hdr.MsgSize) < wire.HeaderSize || int(hdr.MsgSize) > wire.MaxFrameSize {
			c.logger.Warn("dropping frame with out-of-range size", zap.Uint16("msgsize", hdr.MsgSize))
			continue
		}

		copy(buf, header)
		payloadLen := int(hdr.MsgSize) - wire.HeaderSize
		if payloadLen > 0 {
			if _, err := io.ReadFull(c.stream, buf[wire.HeaderSize:hdr.MsgSize]); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("read frame payload: %w", err)
			}
		}

		if _, err := registry.Handle(buf, int(hdr.MsgSize)); err != nil {
			c.logger.Warn("frame dispatch error", zap.Error(err))
		}
	}
}

// Close closes the stream and underlying connection.
func (c *Conn) Close() error {
	if c.stream != nil {
		_ = c.stream.Close()
	}
	if c.conn != nil {
		return c.conn.CloseWithError(0, "control channel closed")
	}
	return nil
}
