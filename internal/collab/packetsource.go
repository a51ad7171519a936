package collab

import (
	"context"
	"math/rand"
	"time"

	"github.com/twogc/bbr-streamctl/internal/throughput"
	"github.com/twogc/bbr-streamctl/internal/xtime"
)

// PacketArrivalSink is the subset of throughput.Estimator the synthetic
// source drives.
type PacketArrivalSink interface {
	OnPacket(ssrc, seq uint32, recvTime xtime.Instant, senderTS uint32, size uint32)
}

// PacketSource generates synthetic frame arrivals at a fixed frame rate
// and packet size, for the sender role's demo traffic and for tests that
// need a packet stream without a real media pipeline.
type PacketSource struct {
	sink       PacketArrivalSink
	ssrc       uint32
	frameRate  int // frames per second
	packetSize uint32
	rng        *rand.Rand
}

// NewPacketSource creates a generator. seed makes the jitter
// reproducible across test runs.
func NewPacketSource(sink PacketArrivalSink, ssrc uint32, frameRate int, packetSize uint32, seed int64) *PacketSource {
	return &PacketSource{
		sink:       sink,
		ssrc:       ssrc,
		frameRate:  frameRate,
		packetSize: packetSize,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

// Run blocks, emitting one frame every 1/frameRate seconds until ctx is
// cancelled.
func (p *PacketSource) Run(ctx context.Context) {
	if p.frameRate <= 0 {
		p.frameRate = 30
	}
	period := time.Second / time.Duration(p.frameRate)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var seq uint32
	var senderTS uint32

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Every frame is carried by a single packet with its own sender
			// timestamp, so each call starts a new frame in the
			// delivery-rate estimator (§4.B).
			jitterUs := xtime.Instant(p.rng.Int63n(int64(2 * time.Millisecond / time.Microsecond)))
			now := xtime.Now() + jitterUs
			p.sink.OnPacket(p.ssrc, seq, now, senderTS, p.packetSize)
			seq++
			senderTS += uint32(period.Microseconds())
		}
	}
}
