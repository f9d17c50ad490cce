package clock

import (
	"sync"
	"time"

	"github.com/onchess/client-go/internal/chain"
	"github.com/onchess/client-go/pkg/gamedto"
)

// MoveClock derives the per-move countdown from the chain's last-move
// timestamp and time budget. It never declares a timeout outcome itself; the
// authoritative expiry check runs on-chain. The ticker only exists to nudge
// consumers into re-reading the computed fields once per second.
type MoveClock struct {
	mu      sync.Mutex
	now     func() time.Time
	stop    chan struct{}
	running bool
}

func NewMoveClock() *MoveClock {
	return &MoveClock{now: time.Now}
}

// SetNow overrides the time source. Test hook.
func (c *MoveClock) SetNow(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if now != nil {
		c.now = now
	}
}

// Start launches the one-second tick loop. Starting a running clock is a
// no-op.
func (c *MoveClock) Start(onTick func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.running = true
	c.stop = make(chan struct{})
	go func(stop chan struct{}) {
		t := time.NewTicker(time.Second)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				if onTick != nil {
					onTick()
				}
			}
		}
	}(c.stop)
}

// Stop halts the tick loop. Stopping a stopped clock is a no-op.
func (c *MoveClock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	close(c.stop)
	c.running = false
}

func (c *MoveClock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// TimeOfExpiry is the epoch second at which the side to move runs out.
func TimeOfExpiry(meta *chain.GameMetadata) int64 {
	return meta.TimeOfLastMove + meta.TimePerMove
}

// TimeUntilExpiry counts down to zero and never goes negative.
func (c *MoveClock) TimeUntilExpiry(meta *chain.GameMetadata) int64 {
	c.mu.Lock()
	now := c.now().Unix()
	c.mu.Unlock()
	remaining := TimeOfExpiry(meta) - now
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (c *MoveClock) Expired(meta *chain.GameMetadata) bool {
	return c.TimeUntilExpiry(meta) == 0
}

// Fields assembles the display snapshot. isCurrentMove gates which side the
// expiry is charged against.
func (c *MoveClock) Fields(meta *chain.GameMetadata, isCurrentMove bool) gamedto.ClockView {
	until := c.TimeUntilExpiry(meta)
	expired := until == 0
	return gamedto.ClockView{
		TimeOfExpiry:        TimeOfExpiry(meta),
		TimeUntilExpiry:     until,
		TimerExpired:        expired,
		PlayerTimeExpired:   isCurrentMove && expired,
		OpponentTimeExpired: !isCurrentMove && expired,
	}
}
