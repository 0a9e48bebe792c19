package game

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/kiliankoe/memorytrip/internal/gallery"
)

var (
	ErrBusy             = errors.New("another request is still in progress")
	ErrInvalidState     = errors.New("action not available right now")
	ErrNotHost          = errors.New("only the host can start the game")
	ErrNotEnoughPlayers = errors.New("at least 2 players are needed to start")
	ErrNotYourTurn      = errors.New("it is not your turn")
	ErrAITurnPending    = errors.New("the AI still has to take its turn")
	ErrDisconnected     = errors.New("lost connection to the game server")
	ErrSessionChanged   = errors.New("the game changed while the request was in flight")
	ErrNoDestination    = errors.New("destination is empty")
	ErrNoGameCode       = errors.New("game code is empty")
	ErrHintUnavailable  = errors.New("no hint available")
)

const (
	DefaultPollInterval   = 3 * time.Second
	DefaultSummaryTimeout = 45 * time.Second
	MinOnlinePlayers      = 2

	TimeUpReason       = "Time's up!"
	FinishedTripReason = "Your creative journey is complete!"
	FallbackSummary    = "The AI traveler was too tired to write a journal entry for this trip."
	ConnectionLost     = "Lost connection to the game server."
)

const (
	taskPoll      = "poll"
	taskTimer     = "timer"
	taskCountdown = "countdown"
)

type Settings struct {
	TurnDuration   time.Duration
	PollInterval   time.Duration
	SummaryTimeout time.Duration
}

type Deps struct {
	Services  Services
	Authority Authority
	Trips     TripStore
	Signals   Signals
	Clock     clockwork.Clock
}

// View is a read-only snapshot of the controller for presentation.
type View struct {
	State          GameState
	Session        *GameSession
	PlayerID       string
	Busy           bool
	AIPending      bool
	Disconnected   bool
	Error          string
	GameOverReason string
	Summary        string
	SummaryLoading bool
	SecondsLeft    int
	MyTurn         bool
	TurnTitle      string
}

// Controller owns the one session of a player's device and every transition
// of it. Remote calls never run under the lock; results are committed only
// if the session generation they were started for is still current.
type Controller struct {
	services  Services
	authority Authority
	trips     TripStore
	signals   Signals
	clock     clockwork.Clock
	resolver  *Resolver
	tasks     *Tasks
	settings  Settings

	mu             sync.Mutex
	state          GameState
	session        *GameSession
	playerID       string
	generation     uint64
	busy           bool
	aiPending      bool
	disconnected   bool
	err            string
	gameOverReason string
	summary        string
	summaryLoading bool
	hintKey        string
	warning        WarningLatch

	bg sync.WaitGroup
}

func NewController(deps Deps, settings Settings) *Controller {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Signals == nil {
		deps.Signals = NopSignals{}
	}
	if settings.TurnDuration <= 0 {
		settings.TurnDuration = DefaultTurnDuration
	}
	if settings.PollInterval <= 0 {
		settings.PollInterval = DefaultPollInterval
	}
	if settings.SummaryTimeout <= 0 {
		settings.SummaryTimeout = DefaultSummaryTimeout
	}
	resolver := NewResolver(deps.Services, deps.Services, NewValidator(deps.Services), deps.Clock)
	resolver.SetTurnDuration(settings.TurnDuration)
	return &Controller{
		services:  deps.Services,
		authority: deps.Authority,
		trips:     deps.Trips,
		signals:   deps.Signals,
		clock:     deps.Clock,
		resolver:  resolver,
		tasks:     NewTasks(deps.Clock),
		settings:  settings,
		state:     StateStart,
	}
}

func (c *Controller) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := View{
		State:          c.state,
		Session:        c.session.Clone(),
		PlayerID:       c.playerID,
		Busy:           c.busy,
		AIPending:      c.aiPending,
		Disconnected:   c.disconnected,
		Error:          c.err,
		GameOverReason: c.gameOverReason,
		Summary:        c.summary,
		SummaryLoading: c.summaryLoading,
	}
	if c.session != nil {
		v.SecondsLeft = SecondsLeft(c.session, c.clock.Now())
		v.MyTurn = IsMyTurn(c.session, c.playerID)
		v.TurnTitle = TurnTitle(c.session, c.playerID)
	}
	return v
}

// StartLocal generates the opening scene and starts a game on this device.
func (c *Controller) StartLocal(ctx context.Context, destination string, mode GameMode, persona string) error {
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return ErrNoDestination
	}
	if !mode.Local() {
		return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	c.mu.Lock()
	if c.state != StateStart {
		c.mu.Unlock()
		return ErrInvalidState
	}
	gen, err := c.beginLocked()
	c.mu.Unlock()
	if err != nil {
		return err
	}

	img, err := c.services.GenerateInitialImage(ctx, destination)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.endLocked(gen) {
		return ErrSessionChanged
	}
	if err != nil {
		return c.failLocked(fmt.Errorf("generate the scene: %w", err))
	}

	s := NewSession(destination, mode, img)
	if mode == ModeSinglePlayer {
		if persona = strings.TrimSpace(persona); persona == "" {
			persona = DefaultPersona
		}
		s.AIPersona = persona
	}
	if mode.Timed() {
		t := c.clock.Now().Add(c.settings.TurnDuration)
		s.TurnEndsAt = &t
	}
	c.newSessionLocked(s, "", StateGame)
	log.Info().Str("mode", string(mode)).Str("destination", destination).Msg("local game started")
	return nil
}

// CreateOnline hosts a new online game and waits in the lobby.
func (c *Controller) CreateOnline(ctx context.Context, destination, playerName string) error {
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return ErrNoDestination
	}
	return c.enterOnline(ctx, func(ctx context.Context) (Joined, error) {
		return c.authority.CreateGame(ctx, destination, nameOrRandom(playerName))
	})
}

// JoinOnline joins an existing game by code. Late joiners of a running game
// go straight to the game.
func (c *Controller) JoinOnline(ctx context.Context, code, playerName string) error {
	code = ParseJoinCode(code)
	if code == "" {
		return ErrNoGameCode
	}
	return c.enterOnline(ctx, func(ctx context.Context) (Joined, error) {
		return c.authority.JoinGame(ctx, code, nameOrRandom(playerName))
	})
}

func (c *Controller) enterOnline(ctx context.Context, call func(context.Context) (Joined, error)) error {
	c.mu.Lock()
	if c.state != StateStart {
		c.mu.Unlock()
		return ErrInvalidState
	}
	gen, err := c.beginLocked()
	c.mu.Unlock()
	if err != nil {
		return err
	}

	joined, err := call(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.endLocked(gen) {
		return ErrSessionChanged
	}
	if err != nil {
		return c.failLocked(err)
	}
	s := joined.Session
	if s == nil {
		return c.failLocked(errors.New("game server returned no game state"))
	}
	if s.GameCode == "" {
		s.GameCode = joined.GameCode
	}
	next := StateLobby
	if s.GameStatus == StatusActive {
		next = StateGame
	}
	c.newSessionLocked(s, joined.PlayerID, next)
	log.Info().Str("code", s.GameCode).Str("playerId", joined.PlayerID).Str("state", string(next)).Msg("joined online game")
	return nil
}

// StartOnline asks the authority to start the lobby. Only the host may do
// this and only with enough players; the next poll picks up the change if
// the authority does not confirm it right away.
func (c *Controller) StartOnline(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateLobby || c.session == nil {
		c.mu.Unlock()
		return ErrInvalidState
	}
	if c.disconnected {
		c.mu.Unlock()
		return ErrDisconnected
	}
	if c.session.HostID != c.playerID {
		c.mu.Unlock()
		return ErrNotHost
	}
	if len(c.session.Players) < MinOnlinePlayers {
		c.mu.Unlock()
		return ErrNotEnoughPlayers
	}
	code, playerID := c.session.GameCode, c.playerID
	gen, err := c.beginLocked()
	c.mu.Unlock()
	if err != nil {
		return err
	}

	remote, err := c.authority.StartGame(ctx, code, playerID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.endLocked(gen) {
		return ErrSessionChanged
	}
	if err != nil {
		return c.failLocked(fmt.Errorf("start the game: %w", err))
	}
	if remote != nil && remote.GameStatus == StatusActive && c.state == StateLobby {
		c.applyRemoteLocked(remote, StatusActive)
	}
	return nil
}

// SubmitTurn resolves a local turn or forwards an online one to the
// authority. Only one submission may be in flight.
func (c *Controller) SubmitTurn(ctx context.Context, recalledText, newItem string) error {
	if strings.TrimSpace(newItem) == "" {
		return ErrEmptyItem
	}

	c.mu.Lock()
	if c.state != StateGame || c.session == nil {
		c.mu.Unlock()
		return ErrInvalidState
	}
	if c.aiPending {
		c.mu.Unlock()
		return ErrAITurnPending
	}
	s := c.session
	if s.GameMode == ModeOnline {
		if c.disconnected {
			c.mu.Unlock()
			return ErrDisconnected
		}
		if !IsMyTurn(s, c.playerID) {
			c.mu.Unlock()
			return ErrNotYourTurn
		}
	}
	playerID := c.playerID
	gen, err := c.beginLocked()
	c.mu.Unlock()
	if err != nil {
		return err
	}

	if s.GameMode == ModeOnline {
		err := c.authority.SubmitTurn(ctx, s.GameCode, playerID, ParseRecalled(recalledText), strings.TrimSpace(newItem))
		c.mu.Lock()
		defer c.mu.Unlock()
		if !c.endLocked(gen) || c.state != StateGame {
			return ErrSessionChanged
		}
		if err != nil {
			return c.failLocked(fmt.Errorf("submit your turn: %w", err))
		}
		return nil
	}

	out, err := c.resolver.ResolveTurn(ctx, s, recalledText, newItem)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.endLocked(gen) || c.state != StateGame {
		return ErrSessionChanged
	}
	if out.AIPending {
		// keep the player's committed item; RetryAITurn finishes the turn
		c.session = out.Session
		c.aiPending = true
	}
	if err != nil {
		return c.failLocked(err)
	}
	if out.GameOver {
		c.enterGameOverLocked(out.Reason)
		return nil
	}
	if out.Correct {
		c.signals.Correct()
	}
	c.session = out.Session
	c.signals.TurnSuccess()
	return nil
}

// RetryAITurn finishes a single player turn whose AI step failed.
func (c *Controller) RetryAITurn(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateGame || !c.aiPending {
		c.mu.Unlock()
		return ErrNoAITurn
	}
	s := c.session
	gen, err := c.beginLocked()
	c.mu.Unlock()
	if err != nil {
		return err
	}

	next, err := c.resolver.ResolveAITurn(ctx, s)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.endLocked(gen) || c.state != StateGame {
		return ErrSessionChanged
	}
	if err != nil {
		return c.failLocked(err)
	}
	c.session = next
	c.aiPending = false
	c.signals.TurnSuccess()
	return nil
}

// FinishTrip ends a solo game on the player's request.
func (c *Controller) FinishTrip() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateGame || c.session == nil || c.session.GameMode != ModeSolo {
		return ErrInvalidState
	}
	if c.busy {
		return ErrBusy
	}
	c.enterGameOverLocked(FinishedTripReason)
	return nil
}

// RequestHint reveals the first letter of the next item to recall, once per turn.
func (c *Controller) RequestHint(recalledText string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateGame || c.session == nil {
		return "", ErrInvalidState
	}
	key := turnKey(c.session)
	if c.hintKey == key {
		return "", ErrHintUnavailable
	}
	hint, ok := Hint(c.session, recalledText)
	if !ok {
		return "", ErrHintUnavailable
	}
	c.hintKey = key
	return hint, nil
}

func (c *Controller) ShowGallery() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateStart {
		return ErrInvalidState
	}
	c.state = StateGallery
	return nil
}

// DismissError clears the last error unless the connection is gone, which
// only a reset clears.
func (c *Controller) DismissError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.disconnected {
		c.err = ""
	}
}

// Reset returns to the start screen from any state and forgets everything
// about the current game, including requests still in flight.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks.StopAll()
	c.generation++
	c.state = StateStart
	c.session = nil
	c.playerID = ""
	c.busy = false
	c.aiPending = false
	c.disconnected = false
	c.err = ""
	c.gameOverReason = ""
	c.summary = ""
	c.summaryLoading = false
	c.hintKey = ""
	c.warning.Reset()
}

// Close stops background checks and waits for pending summaries.
func (c *Controller) Close() {
	c.tasks.StopAll()
	c.bg.Wait()
}

func (c *Controller) beginLocked() (uint64, error) {
	if c.busy {
		return 0, ErrBusy
	}
	c.busy = true
	c.err = ""
	return c.generation, nil
}

// endLocked clears the busy flag and reports whether the request still
// belongs to the current game.
func (c *Controller) endLocked(gen uint64) bool {
	if gen != c.generation {
		return false
	}
	c.busy = false
	return true
}

func (c *Controller) failLocked(err error) error {
	c.err = err.Error()
	log.Error().Err(err).Str("state", string(c.state)).Msg("request failed")
	return err
}

func (c *Controller) newSessionLocked(s *GameSession, playerID string, state GameState) {
	c.generation++
	c.session = s
	c.playerID = playerID
	c.hintKey = ""
	c.aiPending = false
	c.warning.Reset()
	c.transitionLocked(state)
}

func (c *Controller) transitionLocked(to GameState) {
	if c.state != to {
		log.Debug().Str("from", string(c.state)).Str("to", string(to)).Msg("state transition")
	}
	c.state = to
	c.scheduleLocked()
}

func (c *Controller) enterGameOverLocked(reason string) {
	c.gameOverReason = reason
	c.signals.GameOver()
	c.transitionLocked(StateGameOver)
	log.Info().Str("reason", reason).Int("items", len(c.session.Items)).Msg("game over")
	c.requestSummaryLocked()
}

// scheduleLocked starts exactly the background checks the current state
// needs and stops the rest.
func (c *Controller) scheduleLocked() {
	s := c.session
	if s != nil && s.GameCode != "" && !c.disconnected &&
		(c.state == StateLobby || (c.state == StateGame && s.GameMode == ModeOnline)) {
		c.tasks.Start(taskPoll, pollKey(s.GameCode, c.state), c.settings.PollInterval, c.poll)
	} else {
		c.tasks.Stop(taskPoll)
	}

	if s != nil && c.state == StateGame && s.GameMode.Timed() {
		key := fmt.Sprint(c.generation)
		c.tasks.Start(taskTimer, key, TimerCheckInterval, c.checkTimer)
		c.tasks.Start(taskCountdown, key, CountdownInterval, c.countdown)
	} else {
		c.tasks.Stop(taskTimer)
		c.tasks.Stop(taskCountdown)
	}
}

// requestSummaryLocked fetches the trip journal once per game over and then
// saves the trip. Neither step can hold up the game over screen.
func (c *Controller) requestSummaryLocked() {
	if c.session == nil || c.summary != "" || c.summaryLoading {
		return
	}
	c.summaryLoading = true
	gen := c.generation
	s := c.session.Clone()

	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.settings.SummaryTimeout)
		summary, err := c.services.TripSummary(ctx, s.BasePrompt, s.ItemTexts())
		cancel()
		if err != nil || strings.TrimSpace(summary) == "" {
			log.Warn().Err(err).Msg("trip summary unavailable, using fallback")
			summary = FallbackSummary
		}

		c.mu.Lock()
		if gen != c.generation || c.state != StateGameOver {
			c.mu.Unlock()
			return
		}
		c.summary = summary
		c.summaryLoading = false
		c.mu.Unlock()

		if len(s.Items) == 0 || c.trips == nil {
			return
		}
		trip := gallery.Trip{
			Location:   s.BasePrompt,
			FinalImage: s.CurrentImage,
			MimeType:   s.MimeType,
			Items:      s.ItemTexts(),
			Summary:    summary,
		}
		saved, err := c.trips.Save(context.Background(), trip)
		if err != nil {
			log.Error().Err(err).Msg("failed to save trip")
			return
		}
		log.Info().Str("trip", saved.ID).Msg("trip saved to gallery")
	}()
}

func turnKey(s *GameSession) string {
	return fmt.Sprintf("%d/%s/%s", len(s.Items), s.CurrentPlayer, s.CurrentPlayerID)
}

func nameOrRandom(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return fmt.Sprintf("Player %d", rand.Intn(900)+100)
}
