package game

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/kiliankoe/memorytrip/internal/gallery"
)

var errBoom = errors.New("boom")

// fakeServices renders scenes as strings so tests can read them back.
type fakeServices struct {
	mu          sync.Mutex
	invalid     bool
	validateErr error
	initialErr  error
	editErr     error
	idea        string
	ideaErr     error
	summary     string
	summaryErr  error

	// editGate, when set, holds every EditImage call until it is closed.
	editGate chan struct{}

	edits       int
	ideas       int
	validations int
	summaries   int
}

func newFakeServices() *fakeServices {
	return &fakeServices{idea: "a rubber duck", summary: "What a trip."}
}

func (f *fakeServices) GenerateInitialImage(ctx context.Context, destination string) (Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.initialErr != nil {
		return Image{}, f.initialErr
	}
	return Image{Base64: "scene:" + destination, MimeType: "image/png"}, nil
}

func (f *fakeServices) EditImage(ctx context.Context, current Image, item string) (Image, error) {
	f.mu.Lock()
	gate := f.editGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits++
	if f.editErr != nil {
		return Image{}, f.editErr
	}
	return Image{Base64: current.Base64 + "+" + item, MimeType: "image/png"}, nil
}

func (f *fakeServices) AIIdea(ctx context.Context, persona, location string, items []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ideas++
	return f.idea, f.ideaErr
}

func (f *fakeServices) TripSummary(ctx context.Context, location string, items []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaries++
	return f.summary, f.summaryErr
}

func (f *fakeServices) ValidateMemory(ctx context.Context, recalled, actual []string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.validations++
	if f.validateErr != nil {
		return false, f.validateErr
	}
	return !f.invalid, nil
}

func (f *fakeServices) set(fn func(f *fakeServices)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeServices) counts() (edits, ideas, validations, summaries int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.edits, f.ideas, f.validations, f.summaries
}

// fakeAuthority serves one online game whose state the test drives.
type fakeAuthority struct {
	mu       sync.Mutex
	session  *GameSession
	status   Status
	stateErr error
	startErr error
	submits  []string
	polls    int
	// pollGate, when set, holds GameState until it is closed.
	pollGate chan struct{}
	// submitGate holds SubmitTurn the same way; submitErr is returned after.
	submitGate chan struct{}
	submitErr  error
}

func newFakeAuthority() *fakeAuthority {
	return &fakeAuthority{status: StatusLobby}
}

func (a *fakeAuthority) lobby(destination string, players ...Player) *GameSession {
	s := NewSession(destination, ModeOnline, Image{Base64: "scene:" + destination, MimeType: "image/png"})
	s.GameCode = "ABCDE"
	s.Players = players
	s.HostID = players[0].ID
	s.CurrentPlayerID = players[0].ID
	s.GameStatus = StatusLobby
	return s
}

func (a *fakeAuthority) CreateGame(ctx context.Context, destination, playerName string) (Joined, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.session = a.lobby(destination, Player{ID: "p1", Name: playerName})
	a.status = StatusLobby
	return Joined{GameCode: "ABCDE", PlayerID: "p1", Session: a.session.Clone()}, nil
}

func (a *fakeAuthority) JoinGame(ctx context.Context, code, playerName string) (Joined, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil || code != a.session.GameCode {
		return Joined{}, errors.New("game not found")
	}
	id := "p" + string(rune('1'+len(a.session.Players)))
	a.session.Players = append(a.session.Players, Player{ID: id, Name: playerName})
	return Joined{GameCode: code, PlayerID: id, Session: a.session.Clone()}, nil
}

func (a *fakeAuthority) GameState(ctx context.Context, code string) (*GameSession, Status, error) {
	a.mu.Lock()
	gate := a.pollGate
	a.polls++
	a.mu.Unlock()
	if gate != nil {
		<-gate
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stateErr != nil {
		return nil, "", a.stateErr
	}
	return a.session.Clone(), a.status, nil
}

func (a *fakeAuthority) StartGame(ctx context.Context, code, playerID string) (*GameSession, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.startErr != nil {
		return nil, a.startErr
	}
	a.status = StatusActive
	a.session.GameStatus = StatusActive
	return a.session.Clone(), nil
}

func (a *fakeAuthority) SubmitTurn(ctx context.Context, code, playerID string, recalled []string, newItem string) error {
	a.mu.Lock()
	gate := a.submitGate
	a.submits = append(a.submits, newItem)
	a.mu.Unlock()
	if gate != nil {
		<-gate
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.submitErr
}

func (a *fakeAuthority) set(fn func(a *fakeAuthority)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(a)
}

func (a *fakeAuthority) pollCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.polls
}

type fakeTrips struct {
	mu    sync.Mutex
	saved []gallery.Trip
	err   error
}

func (f *fakeTrips) Save(ctx context.Context, trip gallery.Trip) (gallery.Trip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return gallery.Trip{}, f.err
	}
	trip.ID = "trip-test"
	f.saved = append(f.saved, trip)
	return trip, nil
}

func (f *fakeTrips) all() []gallery.Trip {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]gallery.Trip(nil), f.saved...)
}

type countSignals struct {
	correct, success, over, warning atomic.Int32
}

func (s *countSignals) Correct()      { s.correct.Add(1) }
func (s *countSignals) TurnSuccess()  { s.success.Add(1) }
func (s *countSignals) GameOver()     { s.over.Add(1) }
func (s *countSignals) TimerWarning() { s.warning.Add(1) }
