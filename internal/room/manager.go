package room

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/kiliankoe/memorytrip/internal/game"
	"github.com/kiliankoe/memorytrip/internal/metrics"
)

var (
	ErrGameNotFound     = errors.New("game not found")
	ErrGameFull         = errors.New("game is full")
	ErrGameFinished     = errors.New("game has already finished")
	ErrNotHost          = errors.New("only the host can start the game")
	ErrNotEnoughPlayers = errors.New("at least 2 players are needed to start")
	ErrNotActive        = errors.New("game is not active")
	ErrNotYourTurn      = errors.New("it is not your turn")
	ErrTurnInProgress   = errors.New("a turn is already being resolved")
	ErrUnknownPlayer    = errors.New("player is not part of this game")
	ErrEmptyName        = errors.New("player name is empty")
	ErrEmptyPrompt      = errors.New("prompt is empty")
	ErrEmptyItem        = errors.New("new item is empty")
)

const (
	CodeLength  = 5
	MaxPlayers  = 4
	MinPlayers  = 2
	codeLetters = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// Room is one online game held by the server.
type Room struct {
	Code      string
	CreatedAt time.Time

	mu         sync.Mutex
	session    *game.GameSession
	turnEndsAt time.Time
	resolving  bool
	updatedAt  time.Time
}

// Manager is the authority for online games. Every read and write of a
// room goes through it; clients only ever see snapshots.
type Manager struct {
	images       game.ImageService
	validator    *game.Validator
	clock        clockwork.Clock
	turnDuration time.Duration

	mu       sync.RWMutex
	rooms    map[string]*Room
	onChange func(*game.GameSession)
}

func NewManager(images game.ImageService, checker game.MemoryChecker, clock clockwork.Clock) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Manager{
		images:       images,
		validator:    game.NewValidator(checker),
		clock:        clock,
		turnDuration: game.DefaultTurnDuration,
		rooms:        make(map[string]*Room),
	}
}

func (m *Manager) SetTurnDuration(d time.Duration) {
	if d > 0 {
		m.turnDuration = d
	}
}

// OnChange registers a hook that receives a snapshot after every change.
func (m *Manager) OnChange(fn func(*game.GameSession)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// CreateGame renders the opening scene and opens a lobby hosted by playerName.
func (m *Manager) CreateGame(ctx context.Context, prompt, playerName string) (game.Joined, error) {
	prompt = strings.TrimSpace(prompt)
	playerName = strings.TrimSpace(playerName)
	if prompt == "" {
		return game.Joined{}, ErrEmptyPrompt
	}
	if playerName == "" {
		return game.Joined{}, ErrEmptyName
	}

	img, err := m.images.GenerateInitialImage(ctx, prompt)
	if err != nil {
		return game.Joined{}, fmt.Errorf("generate the scene: %w", err)
	}

	host := game.Player{ID: uuid.NewString(), Name: playerName}
	s := game.NewSession(prompt, game.ModeOnline, img)
	s.Players = []game.Player{host}
	s.HostID = host.ID
	s.CurrentPlayerID = host.ID
	s.GameStatus = game.StatusLobby

	now := m.clock.Now().UTC()
	m.mu.Lock()
	code := randomCode(CodeLength)
	for m.rooms[code] != nil {
		code = randomCode(CodeLength)
	}
	s.GameCode = code
	r := &Room{Code: code, CreatedAt: now, session: s, updatedAt: now}
	m.rooms[code] = r
	count := len(m.rooms)
	m.mu.Unlock()

	metrics.GameCreated()
	metrics.SetRooms(count)
	log.Info().Str("code", code).Str("playerId", host.ID).Msg("online game created")
	snap := s.Clone()
	m.notify(snap)
	return game.Joined{GameCode: code, PlayerID: host.ID, Session: snap}, nil
}

// JoinGame adds a player to a lobby or a running game.
func (m *Manager) JoinGame(ctx context.Context, code, playerName string) (game.Joined, error) {
	playerName = strings.TrimSpace(playerName)
	if playerName == "" {
		return game.Joined{}, ErrEmptyName
	}
	r, err := m.get(code)
	if err != nil {
		return game.Joined{}, err
	}

	r.mu.Lock()
	m.expireLocked(r)
	s := r.session
	switch {
	case s.GameStatus == game.StatusFinished:
		r.mu.Unlock()
		return game.Joined{}, ErrGameFinished
	case len(s.Players) >= MaxPlayers:
		r.mu.Unlock()
		return game.Joined{}, ErrGameFull
	}
	p := game.Player{ID: uuid.NewString(), Name: playerName}
	next := s.Clone()
	next.Players = append(next.Players, p)
	m.commitLocked(r, next)
	snap := next.Clone()
	r.mu.Unlock()

	metrics.PlayerJoined()
	log.Info().Str("code", r.Code).Str("playerId", p.ID).Int("players", len(snap.Players)).Msg("player joined")
	m.notify(snap)
	return game.Joined{GameCode: r.Code, PlayerID: p.ID, Session: snap}, nil
}

// GameState returns the current snapshot, finishing the game first if the
// active turn ran out of time.
func (m *Manager) GameState(ctx context.Context, code string) (*game.GameSession, game.Status, error) {
	r, err := m.get(code)
	if err != nil {
		return nil, "", err
	}
	r.mu.Lock()
	expired := m.expireLocked(r)
	snap := r.session.Clone()
	r.mu.Unlock()
	if expired {
		m.notify(snap)
	}
	return snap, snap.GameStatus, nil
}

func (m *Manager) StartGame(ctx context.Context, code, playerID string) (*game.GameSession, error) {
	r, err := m.get(code)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	s := r.session
	switch {
	case s.HostID != playerID:
		r.mu.Unlock()
		return nil, ErrNotHost
	case s.GameStatus != game.StatusLobby:
		r.mu.Unlock()
		return nil, ErrNotActive
	case len(s.Players) < MinPlayers:
		r.mu.Unlock()
		return nil, ErrNotEnoughPlayers
	}
	next := s.Clone()
	next.GameStatus = game.StatusActive
	next.CurrentPlayerID = next.Players[0].ID
	next.CurrentPlayer = game.Seat(0)
	m.commitLocked(r, next)
	r.turnEndsAt = m.clock.Now().Add(m.turnDuration)
	snap := next.Clone()
	r.mu.Unlock()

	log.Info().Str("code", code).Int("players", len(snap.Players)).Msg("online game started")
	m.notify(snap)
	return snap, nil
}

// SubmitTurn validates the caller's recall, renders the new item and hands
// the turn to the next player. Only one turn per room resolves at a time.
func (m *Manager) SubmitTurn(ctx context.Context, code, playerID string, recalled []string, newItem string) (*game.GameSession, error) {
	newItem = strings.TrimSpace(newItem)
	if newItem == "" {
		return nil, ErrEmptyItem
	}
	r, err := m.get(code)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if m.expireLocked(r) {
		snap := r.session.Clone()
		r.mu.Unlock()
		m.notify(snap)
		return nil, ErrGameFinished
	}
	s := r.session
	switch {
	case s.GameStatus != game.StatusActive:
		r.mu.Unlock()
		return nil, ErrNotActive
	case s.PlayerIndex(playerID) < 0:
		r.mu.Unlock()
		return nil, ErrUnknownPlayer
	case s.CurrentPlayerID != playerID:
		r.mu.Unlock()
		return nil, ErrNotYourTurn
	case r.resolving:
		r.mu.Unlock()
		return nil, ErrTurnInProgress
	}
	r.resolving = true
	r.mu.Unlock()

	out, err := m.resolve(ctx, s, recalled, newItem)

	r.mu.Lock()
	r.resolving = false
	if err != nil {
		r.mu.Unlock()
		metrics.TurnResolved("error")
		return nil, err
	}
	// Players may have joined while the turn resolved, so the outcome is
	// applied to the room as it is now.
	next := out.apply(r.session, playerID, newItem)
	if next.GameStatus == game.StatusFinished {
		metrics.TurnResolved("memory_failed")
		metrics.GameFinished("memory")
	} else {
		metrics.TurnResolved("ok")
		r.turnEndsAt = m.clock.Now().Add(m.turnDuration)
	}
	m.commitLocked(r, next)
	snap := next.Clone()
	r.mu.Unlock()

	log.Info().Str("code", code).Str("playerId", playerID).Str("status", string(snap.GameStatus)).Int("items", len(snap.Items)).Msg("turn resolved")
	m.notify(snap)
	return snap, nil
}

type turnOutcome struct {
	failed bool
	image  game.Image
}

// apply folds the outcome into cur and rotates over cur's players.
func (o turnOutcome) apply(cur *game.GameSession, playerID, newItem string) *game.GameSession {
	if o.failed {
		next := cur.Clone()
		next.GameStatus = game.StatusFinished
		next.GameOverReason = fmt.Sprintf("%s's memory failed!", cur.PlayerName(playerID))
		return next
	}
	ix := cur.PlayerIndex(playerID)
	next := cur.AppendTurn(newItem, game.Seat(ix), o.image)
	nextIx := (ix + 1) % len(cur.Players)
	next.CurrentPlayerID = cur.Players[nextIx].ID
	next.CurrentPlayer = game.Seat(nextIx)
	return next
}

// resolve runs without the room lock; s is a published snapshot and is not
// modified.
func (m *Manager) resolve(ctx context.Context, s *game.GameSession, recalled []string, newItem string) (turnOutcome, error) {
	ok, err := m.validator.Validate(ctx, recalled, s.ItemTexts())
	if err != nil {
		return turnOutcome{}, err
	}
	if !ok {
		return turnOutcome{failed: true}, nil
	}
	img, err := m.images.EditImage(ctx, s.Image(), newItem)
	if err != nil {
		return turnOutcome{}, fmt.Errorf("add %q to the scene: %w", newItem, err)
	}
	return turnOutcome{image: img}, nil
}

// expireLocked finishes an active game whose turn deadline passed. A turn
// that is being resolved is never expired.
func (m *Manager) expireLocked(r *Room) bool {
	s := r.session
	if s.GameStatus != game.StatusActive || r.resolving || r.turnEndsAt.IsZero() {
		return false
	}
	if m.clock.Now().Before(r.turnEndsAt) {
		return false
	}
	next := s.Clone()
	next.GameStatus = game.StatusFinished
	next.GameOverReason = game.TimeUpReason
	m.commitLocked(r, next)
	metrics.GameFinished("timeout")
	log.Info().Str("code", r.Code).Str("playerId", s.CurrentPlayerID).Msg("turn timed out")
	return true
}

func (m *Manager) commitLocked(r *Room, s *game.GameSession) {
	r.session = s
	r.updatedAt = m.clock.Now().UTC()
}

func (m *Manager) get(code string) (*Room, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	m.mu.RLock()
	defer m.mu.RUnlock()
	r := m.rooms[code]
	if r == nil {
		return nil, ErrGameNotFound
	}
	return r, nil
}

func (m *Manager) notify(s *game.GameSession) {
	m.mu.RLock()
	fn := m.onChange
	m.mu.RUnlock()
	if fn != nil {
		fn(s)
	}
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// Prune drops rooms that have not changed for maxAge and returns how many
// were removed.
func (m *Manager) Prune(maxAge time.Duration) int {
	cutoff := m.clock.Now().UTC().Add(-maxAge)
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for code, r := range m.rooms {
		r.mu.Lock()
		stale := !r.resolving && r.updatedAt.Before(cutoff)
		r.mu.Unlock()
		if stale {
			delete(m.rooms, code)
			removed++
		}
	}
	metrics.SetRooms(len(m.rooms))
	if removed > 0 {
		log.Info().Int("removed", removed).Int("remaining", len(m.rooms)).Msg("pruned idle rooms")
	}
	return removed
}

func randomCode(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = codeLetters[rand.Intn(len(codeLetters))]
	}
	return string(b)
}
