package wire

import (
	"fmt"

	"go.uber.org/zap"
)

// HandlerFunc receives a decoded frame's raw payload (header stripped).
type HandlerFunc func(payload []byte)

// Registry is the fixed-size handler table indexed by subtype. Registration
// is expected to happen once at startup, before any goroutine calls Handle
// concurrently — the registry itself does not synchronize reads against
// writes, matching §5's "written only before threads start" contract.
type Registry struct {
	handlers [MaxSubtype + 1]HandlerFunc
	logger   *zap.Logger
}

// NewRegistry creates an empty handler registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{logger: logger}
}

// SetHandler installs fn as the handler for subtype st, returning whatever
// handler was previously registered (nil if none), so callers can chain or
// later restore it.
func (r *Registry) SetHandler(st Subtype, fn HandlerFunc) HandlerFunc {
	prev := r.handlers[st]
	r.handlers[st] = fn
	return prev
}

// Handle validates and dispatches one SYSTEM frame. It returns true if the
// frame was consumed (valid header, whether or not a handler was registered
// for its subtype) and an error describing why the frame was rejected
// otherwise. Per §7, protocol errors are not fatal — callers log and move
// on; Handle never tears down the connection itself.
func (r *Registry) Handle(buffer []byte, size int) (bool, error) {
	if size < HeaderSize || size > len(buffer) {
		return false, fmt.Errorf("wire: short frame: size=%d have=%d", size, len(buffer))
	}
	hdr, err := ParseHeader(buffer[:size])
	if err != nil {
		return false, err
	}
	if hdr.MsgType != MsgTypeSystem {
		return false, fmt.Errorf("wire: unexpected msgtype 0x%02x", hdr.MsgType)
	}
	if hdr.Subtype > MaxSubtype {
		return false, fmt.Errorf("wire: unknown subtype %d", hdr.Subtype)
	}
	if int(hdr.MsgSize) != size {
		return false, fmt.Errorf("wire: msgsize mismatch: header=%d actual=%d", hdr.MsgSize, size)
	}
	wantPayload := payloadSize(hdr.Subtype)
	gotPayload := size - HeaderSize
	if wantPayload != gotPayload {
		return false, fmt.Errorf("wire: subtype %d expects %d payload bytes, got %d", hdr.Subtype, wantPayload, gotPayload)
	}

	fn := r.handlers[hdr.Subtype]
	if fn == nil {
		r.logger.Debug("wire: no handler registered for subtype, discarding",
			zap.Uint8("subtype", uint8(hdr.Subtype)))
		return true, nil
	}
	fn(buffer[HeaderSize:size])
	return true, nil
}
