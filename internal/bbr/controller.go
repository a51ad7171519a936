package bbr

import (
	"context"
	"time"

	"github.com/twogc/bbr-streamctl/internal/xtime"
	"go.uber.org/zap"
)

// SnapshotSource supplies the most recently published throughput/RTT
// snapshot. throughput.Estimator does not implement it directly (its
// Snapshot returns a throughput.ReportSnapshot); the session adapts it.
type SnapshotSource interface {
	Snapshot() Snapshot
}

// Controller owns a State and drives it on CYCLE_PERIOD, the "control
// tick" task of §5.
type Controller struct {
	state   *State
	source  SnapshotSource
	logger  *zap.Logger
	onTick  func(stage Stage, gain float64, bitrateKbps int32)
}

// NewController wires a State to its snapshot source. onTick, when
// non-nil, is invoked after every cycle for metrics/tracing; it must not
// block.
func NewController(state *State, source SnapshotSource, logger *zap.Logger, onTick func(Stage, float64, int32)) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{state: state, source: source, logger: logger, onTick: onTick}
}

// Run blocks, ticking the state machine every CyclePeriod until ctx is
// cancelled (§5 cancellation: the loop exits at the next iteration
// boundary).
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(CyclePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := c.source.Snapshot()
			gain := c.state.Tick(xtime.Now(), snap)
			c.logger.Debug("bbr tick",
				zap.String("stage", c.state.Stage().String()),
				zap.Float64("gain", gain),
				zap.Int32("bitrate_kbps", c.state.BitrateKbps()),
				zap.Uint32("cycles_elapsed", c.state.CyclesElapsed()),
			)
			if c.onTick != nil {
				c.onTick(c.state.Stage(), gain, c.state.BitrateKbps())
			}
		}
	}
}

// State exposes the underlying BbrState for tests and diagnostics.
func (c *Controller) State() *State { return c.state }
