package game

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Reconcile maps the authority's status onto the local state machine. The
// second result reports whether polling should go on.
func Reconcile(local GameState, remote Status) (GameState, bool) {
	if local != StateLobby && local != StateGame {
		return local, false
	}
	switch remote {
	case StatusActive:
		return StateGame, true
	case StatusFinished:
		return StateGameOver, false
	default:
		return local, true
	}
}

func pollKey(code string, state GameState) string {
	return fmt.Sprintf("%s/%s", code, state)
}

// poll fetches the canonical online state once. A result that arrives after
// the game was reset or replaced is dropped.
func (c *Controller) poll(ctx context.Context) {
	c.mu.Lock()
	if c.session == nil || c.session.GameCode == "" || c.disconnected {
		c.mu.Unlock()
		return
	}
	code, gen, key := c.session.GameCode, c.generation, pollKey(c.session.GameCode, c.state)
	c.mu.Unlock()

	remote, status, err := c.authority.GameState(ctx, code)

	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil || gen != c.generation || pollKey(code, c.state) != key {
		return
	}
	if err != nil {
		log.Error().Err(err).Str("code", code).Msg("lost connection to game server")
		c.disconnected = true
		c.err = ConnectionLost
		c.tasks.Stop(taskPoll)
		return
	}
	c.applyRemoteLocked(remote, status)
}

func (c *Controller) applyRemoteLocked(remote *GameSession, status Status) {
	if remote == nil {
		return
	}
	next, _ := Reconcile(c.state, status)
	c.session = remote.Clone()
	switch {
	case next == StateGameOver:
		reason := remote.GameOverReason
		if reason == "" {
			reason = "The game has ended."
		}
		c.enterGameOverLocked(reason)
	case next != c.state:
		c.warning.Reset()
		c.transitionLocked(next)
	}
}
