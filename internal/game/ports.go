package game

import (
	"context"

	"github.com/kiliankoe/memorytrip/internal/gallery"
)

// ImageService renders the cumulative scene.
type ImageService interface {
	GenerateInitialImage(ctx context.Context, destination string) (Image, error)
	EditImage(ctx context.Context, current Image, item string) (Image, error)
}

// IdeaService picks the AI opponent's next item.
type IdeaService interface {
	AIIdea(ctx context.Context, persona, location string, items []string) (string, error)
}

type SummaryService interface {
	TripSummary(ctx context.Context, location string, items []string) (string, error)
}

// MemoryChecker decides whether recalled items match the actual ones,
// tolerating paraphrases and typos.
type MemoryChecker interface {
	ValidateMemory(ctx context.Context, recalled, actual []string) (bool, error)
}

// Services bundles every call the local game needs from the scene backend.
type Services interface {
	ImageService
	IdeaService
	SummaryService
	MemoryChecker
}

// Joined is what the authority hands back after creating or joining a game.
type Joined struct {
	GameCode string
	PlayerID string
	Session  *GameSession
}

// Authority owns the canonical state of online games.
type Authority interface {
	CreateGame(ctx context.Context, destination, playerName string) (Joined, error)
	JoinGame(ctx context.Context, code, playerName string) (Joined, error)
	GameState(ctx context.Context, code string) (*GameSession, Status, error)
	StartGame(ctx context.Context, code, playerID string) (*GameSession, error)
	SubmitTurn(ctx context.Context, code, playerID string, recalled []string, newItem string) error
}

// TripStore keeps finished trips.
type TripStore interface {
	Save(ctx context.Context, trip gallery.Trip) (gallery.Trip, error)
}

// Signals are the game's audible cues. Presentation decides how to play them.
type Signals interface {
	Correct()
	TurnSuccess()
	GameOver()
	TimerWarning()
}

type NopSignals struct{}

func (NopSignals) Correct()      {}
func (NopSignals) TurnSuccess()  {}
func (NopSignals) GameOver()     {}
func (NopSignals) TimerWarning() {}
