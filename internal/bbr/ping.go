package bbr

import (
	"context"
	"time"
)

// PingDelay is the cadence of the out-of-band ping scheduler, independent
// of component A's UDP probes (§4.C "Out-of-band tick").
const PingDelay = 20 * time.Millisecond

// PingSender emits one ping carrying a fresh id/timestamp over the
// reliable control channel.
type PingSender interface {
	SendPing(id uint32) error
}

// PingScheduler runs the out-of-band ping loop on its own goroutine,
// separate from the control-tick loop and independent of the RTT probe
// channel's own UDP probes. It exists
// so the peer has a second, transport-layer timestamp source for its own
// diagnostics.
type PingScheduler struct {
	sender PingSender
	onErr  func(error)
	nextID uint32
}

// NewPingScheduler creates a scheduler. onErr may be nil; send errors are
// otherwise swallowed after being reported (the scheduler never stops on a
// transient send failure, mirroring A's probe loop).
func NewPingScheduler(sender PingSender, onErr func(error)) *PingScheduler {
	return &PingScheduler{sender: sender, onErr: onErr}
}

// Run blocks, sending a ping every PingDelay until ctx is cancelled.
func (p *PingScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(PingDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.sender.SendPing(p.nextID); err != nil && p.onErr != nil {
				p.onErr(err)
			}
			p.nextID++
		}
	}
}
