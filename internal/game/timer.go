package game

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	TimerCheckInterval = 500 * time.Millisecond
	CountdownInterval  = time.Second
	WarningThreshold   = 10 * time.Second
)

// Expired reports whether the current turn ran out of time. Only local timed
// modes expire, and never while a submitted turn is still being resolved.
func Expired(s *GameSession, now time.Time, resolving bool) bool {
	if s == nil || s.TurnEndsAt == nil || resolving || !s.GameMode.Timed() {
		return false
	}
	return !s.TurnEndsAt.After(now)
}

// SecondsLeft rounds the remaining turn time up to whole seconds.
func SecondsLeft(s *GameSession, now time.Time) int {
	if s == nil || s.TurnEndsAt == nil {
		return 0
	}
	remaining := s.TurnEndsAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int((remaining + time.Second - 1) / time.Second)
}

// WarningLatch fires once per deadline when the countdown enters the final
// seconds window. A new deadline re-arms it.
type WarningLatch struct {
	deadline time.Time
	fired    bool
}

func (w *WarningLatch) Observe(s *GameSession, now time.Time, resolving bool) bool {
	if s == nil || s.TurnEndsAt == nil || !s.GameMode.Timed() {
		return false
	}
	if !s.TurnEndsAt.Equal(w.deadline) {
		w.deadline = *s.TurnEndsAt
		w.fired = false
	}
	if w.fired || resolving {
		return false
	}
	secs := SecondsLeft(s, now)
	if secs > 0 && time.Duration(secs)*time.Second <= WarningThreshold {
		w.fired = true
		return true
	}
	return false
}

func (w *WarningLatch) Reset() {
	*w = WarningLatch{}
}

func (c *Controller) checkTimer(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil || c.state != StateGame {
		return
	}
	if Expired(c.session, c.clock.Now(), c.busy) {
		log.Info().Str("player", string(c.session.CurrentPlayer)).Msg("turn timed out")
		c.enterGameOverLocked(TimeUpReason)
	}
}

func (c *Controller) countdown(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil || c.state != StateGame {
		return
	}
	if c.warning.Observe(c.session, c.clock.Now(), c.busy) {
		c.signals.TimerWarning()
	}
}
