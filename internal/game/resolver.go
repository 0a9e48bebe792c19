package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

const DefaultTurnDuration = 60 * time.Second

var (
	ErrEmptyItem    = errors.New("new item is empty")
	ErrDelegated    = errors.New("online turns are resolved by the game server")
	ErrAITurnFailed = errors.New("AI turn failed")
	ErrNoAITurn     = errors.New("no AI turn to resolve")
	ErrUnknownMode  = errors.New("unknown game mode")
	ErrEmptyAIIdea  = errors.New("AI came up with an empty idea")
)

// Outcome is the result of one resolved turn. On game over Session is the
// unchanged input. Correct is set when a non-trivial memory check passed.
// AIPending is set when the player's item landed but the AI's did not;
// Session then holds the post-player state and ResolveAITurn finishes the turn.
type Outcome struct {
	Session   *GameSession
	GameOver  bool
	Reason    string
	Correct   bool
	AIPending bool
}

type Resolver struct {
	images       ImageService
	ideas        IdeaService
	validator    *Validator
	clock        clockwork.Clock
	turnDuration time.Duration
}

func NewResolver(images ImageService, ideas IdeaService, validator *Validator, clock clockwork.Clock) *Resolver {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Resolver{images: images, ideas: ideas, validator: validator, clock: clock, turnDuration: DefaultTurnDuration}
}

func (r *Resolver) SetTurnDuration(d time.Duration) {
	if d > 0 {
		r.turnDuration = d
	}
}

// ResolveTurn applies one local turn to s and returns the next session. s is
// never modified.
func (r *Resolver) ResolveTurn(ctx context.Context, s *GameSession, recalledText, newItem string) (Outcome, error) {
	newItem = strings.TrimSpace(newItem)
	if newItem == "" {
		return Outcome{}, ErrEmptyItem
	}
	switch s.GameMode {
	case ModeOnline:
		return Outcome{}, ErrDelegated
	case ModeSinglePlayer, ModeTwoPlayer, ModeThreePlayer, ModeFourPlayer, ModeSolo:
	default:
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownMode, s.GameMode)
	}

	correct := false
	if s.GameMode != ModeSolo {
		ok, err := r.validator.Validate(ctx, ParseRecalled(recalledText), s.ItemTexts())
		if err != nil {
			return Outcome{}, err
		}
		if !ok {
			return Outcome{Session: s, GameOver: true, Reason: MemoryFailedReason(s)}, nil
		}
		correct = len(s.Items) > 0
	}

	img, err := r.images.EditImage(ctx, s.Image(), newItem)
	if err != nil {
		return Outcome{}, fmt.Errorf("add %q to the scene: %w", newItem, err)
	}
	next := s.AppendTurn(newItem, s.CurrentPlayer, img)
	out := Outcome{Session: next, Correct: correct}

	switch s.GameMode {
	case ModeSinglePlayer:
		// the player is not on the clock while the AI takes its turn
		next.TurnEndsAt = nil
		final, err := r.aiTurn(ctx, next)
		if err != nil {
			out.AIPending = true
			return out, fmt.Errorf("%w: %w", ErrAITurnFailed, err)
		}
		out.Session = final
	case ModeTwoPlayer, ModeThreePlayer, ModeFourPlayer:
		next.CurrentPlayer = NextPlayer(s.GameMode, s.CurrentPlayer)
		next.TurnEndsAt = r.deadline()
	case ModeSolo:
	}
	return out, nil
}

// ResolveAITurn runs only the AI half of a single player turn, for sessions
// left behind by a failed AI step.
func (r *Resolver) ResolveAITurn(ctx context.Context, s *GameSession) (*GameSession, error) {
	if s.GameMode != ModeSinglePlayer {
		return nil, ErrNoAITurn
	}
	next, err := r.aiTurn(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAITurnFailed, err)
	}
	return next, nil
}

func (r *Resolver) aiTurn(ctx context.Context, s *GameSession) (*GameSession, error) {
	idea, err := r.ideas.AIIdea(ctx, s.AIPersona, s.BasePrompt, s.ItemTexts())
	if err != nil {
		return nil, err
	}
	idea = strings.TrimSpace(idea)
	if idea == "" {
		return nil, ErrEmptyAIIdea
	}
	img, err := r.images.EditImage(ctx, s.Image(), idea)
	if err != nil {
		return nil, fmt.Errorf("add %q to the scene: %w", idea, err)
	}
	next := s.AppendTurn(idea, AI, img)
	next.TurnEndsAt = r.deadline()
	return next, nil
}

func (r *Resolver) deadline() *time.Time {
	t := r.clock.Now().Add(r.turnDuration)
	return &t
}

// NextPlayer advances the hotseat rotation. A player outside the rotation
// hands over to the first seat.
func NextPlayer(mode GameMode, current AddedBy) AddedBy {
	order := TurnOrder(mode)
	for i, p := range order {
		if p == current {
			return order[(i+1)%len(order)]
		}
	}
	return order[0]
}

func MemoryFailedReason(s *GameSession) string {
	if s.GameMode == ModeSinglePlayer {
		return "Your memory failed!"
	}
	return fmt.Sprintf("%s's memory failed!", s.CurrentPlayer.Label())
}
