package timer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/talentsim/backend/pkg/logger"
)

// TimeAuthority is the slice of Authority the clock consumes.
type TimeAuthority interface {
	RemainingSeconds(ctx context.Context, sessionID string) (int, error)
}

// ClockConfig carries the tuning constants for a session clock. The
// values are heuristics, not derived invariants, so they stay
// configurable.
type ClockConfig struct {
	TickInterval     time.Duration
	ResyncInterval   time.Duration
	MinResyncSpacing time.Duration
	DriftTolerance   time.Duration
	GracePad         time.Duration
}

// DefaultClockConfig returns the production tuning.
func DefaultClockConfig() ClockConfig {
	return ClockConfig{
		TickInterval:     time.Second,
		ResyncInterval:   30 * time.Second,
		MinResyncSpacing: 10 * time.Second,
		DriftTolerance:   3 * time.Second,
		GracePad:         time.Second,
	}
}

func (c ClockConfig) withDefaults() ClockConfig {
	def := DefaultClockConfig()
	if c.TickInterval <= 0 {
		c.TickInterval = def.TickInterval
	}
	if c.ResyncInterval <= 0 {
		c.ResyncInterval = def.ResyncInterval
	}
	if c.MinResyncSpacing <= 0 {
		c.MinResyncSpacing = def.MinResyncSpacing
	}
	if c.DriftTolerance <= 0 {
		c.DriftTolerance = def.DriftTolerance
	}
	if c.GracePad <= 0 {
		c.GracePad = def.GracePad
	}
	return c
}

// ClockCallbacks connect a clock to its surroundings. OnTick receives the
// displayed seconds once per tick. OnExpire fires exactly once when
// remaining hits zero with no active grace. Composing reports whether a
// counterpart response is currently being typed; while true, the clock
// refuses to expire and extends in GracePad steps instead.
type ClockCallbacks struct {
	OnTick    func(secondsLeft int)
	OnExpire  func()
	Composing func() bool
}

// Clock presents a smoothly decrementing countdown for one session,
// resynchronizing with the time authority and applying the grace policy.
// Each active session owns its instance; Stop tears it down with no
// orphaned timers.
type Clock struct {
	sessionID string
	authority TimeAuthority
	cfg       ClockConfig
	callbacks ClockCallbacks
	log       *logger.Logger
	now       func() time.Time

	mu         sync.Mutex
	endAt      time.Time
	lastResync time.Time
	expired    bool
	started    bool

	resyncInFlight atomic.Bool
	cancel         context.CancelFunc
	stopOnce       sync.Once
	done           chan struct{}
}

// NewClock builds a clock for the session. now is injectable for tests.
func NewClock(sessionID string, authority TimeAuthority, cfg ClockConfig, callbacks ClockCallbacks, log *logger.Logger) *Clock {
	return &Clock{
		sessionID: sessionID,
		authority: authority,
		cfg:       cfg.withDefaults(),
		callbacks: callbacks,
		log:       log.With("service", "SessionClock", "session_id", sessionID),
		now:       func() time.Time { return time.Now().UTC() },
		done:      make(chan struct{}),
	}
}

// Start fetches the authoritative remaining time, derives the local end
// instant and begins ticking. It returns immediately; ticks and resyncs
// run on the clock's own goroutine until expiry or Stop.
func (c *Clock) Start(ctx context.Context) error {
	remaining, err := c.authority.RemainingSeconds(ctx, c.sessionID)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		cancel()
		return nil
	}
	c.started = true
	c.cancel = cancel
	now := c.now()
	c.endAt = now.Add(time.Duration(remaining) * time.Second)
	c.lastResync = now
	c.mu.Unlock()

	go c.run(runCtx)
	return nil
}

// Stop cancels the tick and resync schedulers. Idempotent; no tick fires
// after Stop returns.
func (c *Clock) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		cancel := c.cancel
		started := c.started
		c.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		if started {
			<-c.done
		} else {
			close(c.done)
		}
	})
}

// Expired reports whether the clock has already fired its expiry.
func (c *Clock) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expired
}

func (c *Clock) run(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.tick() {
				return
			}
			if c.resyncDue() {
				// Fire and forget: an overlapping resync is dropped by
				// the in-flight guard, the next tick retries naturally.
				go c.resync(ctx)
			}
		}
	}
}

// tick recomputes the displayed seconds and returns true once the clock
// has expired.
func (c *Clock) tick() bool {
	c.mu.Lock()
	if c.expired {
		c.mu.Unlock()
		return true
	}

	now := c.now()
	left := c.endAt.Sub(now)
	if left <= 0 && c.callbacks.Composing != nil && c.callbacks.Composing() {
		// Grace: never cut off an in-flight exchange. Re-evaluated every
		// tick, lapses the instant composing clears.
		c.endAt = now.Add(c.cfg.GracePad)
		left = c.cfg.GracePad
	}

	seconds := int((left + time.Second - 1) / time.Second)
	if seconds < 0 {
		seconds = 0
	}
	expired := left <= 0
	if expired {
		c.expired = true
	}
	onTick := c.callbacks.OnTick
	onExpire := c.callbacks.OnExpire
	c.mu.Unlock()

	if onTick != nil {
		onTick(seconds)
	}
	if expired && onExpire != nil {
		onExpire()
	}
	return expired
}

func (c *Clock) resyncDue() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now().Sub(c.lastResync) >= c.cfg.ResyncInterval
}

// resync snaps the local end instant to the authoritative value when the
// drift exceeds tolerance. Correction is instantaneous; smoothing the
// display is the tick's job.
func (c *Clock) resync(ctx context.Context) {
	if !c.resyncInFlight.CompareAndSwap(false, true) {
		return
	}
	defer c.resyncInFlight.Store(false)

	c.mu.Lock()
	tooSoon := c.now().Sub(c.lastResync) < c.cfg.MinResyncSpacing
	expired := c.expired
	c.mu.Unlock()
	if tooSoon || expired {
		return
	}

	remaining, err := c.authority.RemainingSeconds(ctx, c.sessionID)
	if err != nil {
		// Best effort: keep counting down locally, reconcile on the next
		// successful contact.
		c.log.Warn("resync failed, continuing on local clock", "error", err)
		return
	}

	c.mu.Lock()
	now := c.now()
	c.lastResync = now
	serverEnd := now.Add(time.Duration(remaining) * time.Second)
	drift := serverEnd.Sub(c.endAt)
	if drift < 0 {
		drift = -drift
	}
	if drift > c.cfg.DriftTolerance {
		c.log.Debug("drift correction", "drift", drift.String(), "server_remaining", remaining)
		c.endAt = serverEnd
	}
	c.mu.Unlock()
}
