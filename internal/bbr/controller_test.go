package bbr

import (
	"context"
	"testing"
	"time"
)

type fixedSource struct{ snap Snapshot }

func (f fixedSource) Snapshot() Snapshot { return f.snap }

func TestControllerRunStopsOnContextCancel(t *testing.T) {
	state := New(1000, nil)
	var ticks int
	c := NewController(state, fixedSource{snap: Snapshot{RTPropUs: UintMax}}, nil, func(Stage, float64, int32) {
		ticks++
	})

	ctx, cancel := context.WithTimeout(context.Background(), CyclePeriod*2+100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	<-done
	if ticks < 2 {
		t.Fatalf("onTick called %d times, want at least 2 within the test window", ticks)
	}
}

type countingPinger struct{ ids []uint32 }

func (c *countingPinger) SendPing(id uint32) error {
	c.ids = append(c.ids, id)
	return nil
}

func TestPingSchedulerSendsAtCadence(t *testing.T) {
	p := &countingPinger{}
	sched := NewPingScheduler(p, nil)

	ctx, cancel := context.WithTimeout(context.Background(), PingDelay*3+50*time.Millisecond)
	defer cancel()
	sched.Run(ctx)

	if len(p.ids) < 2 {
		t.Fatalf("sent %d pings, want at least 2", len(p.ids))
	}
	for i, id := range p.ids {
		if id != uint32(i) {
			t.Fatalf("ping id[%d] = %d, want %d (monotonic)", i, id, i)
		}
	}
}
