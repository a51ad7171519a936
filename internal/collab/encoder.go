// Package collab holds the interfaces for the two external collaborators
// named in the spec but left out of scope: the media encoder the
// controller reconfigures, and the packet source the delivery-rate
// estimator observes. Production deployments supply real
// implementations; this package only ships a logging stub and a
// synthetic generator for demos and tests.
package collab

import (
	"go.uber.org/zap"

	"github.com/twogc/bbr-streamctl/internal/bbr"
)

// Encoder is an encoder's reconfiguration surface. The session applies
// each bitrate change twice: it sends a RECONFIGURE control message
// (component D) to the peer, which forwards it to the peer's Encoder,
// and it calls its own local Encoder directly.
type Encoder interface {
	Reconfigure(bitrateKbps int32) error
}

// LoggingEncoder just logs the commands it receives; it never fails.
type LoggingEncoder struct {
	logger *zap.Logger
}

// NewLoggingEncoder constructs a LoggingEncoder. logger may be nil.
func NewLoggingEncoder(logger *zap.Logger) *LoggingEncoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingEncoder{logger: logger}
}

// Reconfigure logs the requested bitrate and always succeeds.
func (e *LoggingEncoder) Reconfigure(bitrateKbps int32) error {
	e.logger.Info("encoder reconfigured", zap.Int32("bitrate_kbps", bitrateKbps))
	return nil
}

// reconfigurerAdapter lets an Encoder satisfy bbr.Reconfigurer, the
// narrower surface component C actually calls.
type reconfigurerAdapter struct {
	encoder Encoder
}

// AsReconfigurer adapts an Encoder to bbr.Reconfigurer.
func AsReconfigurer(e Encoder) bbr.Reconfigurer {
	return reconfigurerAdapter{encoder: e}
}

func (a reconfigurerAdapter) EmitReconfigure(r bbr.Reconfigure) error {
	return a.encoder.Reconfigure(r.BitrateKbps)
}
