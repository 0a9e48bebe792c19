package game

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	c       *Controller
	clock   *clockwork.FakeClock
	svc     *fakeServices
	auth    *fakeAuthority
	trips   *fakeTrips
	signals *countSignals
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:   clockwork.NewFakeClock(),
		svc:     newFakeServices(),
		auth:    newFakeAuthority(),
		trips:   &fakeTrips{},
		signals: &countSignals{},
	}
	h.c = NewController(Deps{
		Services:  h.svc,
		Authority: h.auth,
		Trips:     h.trips,
		Signals:   h.signals,
		Clock:     h.clock,
	}, Settings{TurnDuration: 30 * time.Second, PollInterval: 3 * time.Second})
	t.Cleanup(h.c.Close)
	return h
}

func (h *harness) waitSummary(t *testing.T) View {
	t.Helper()
	require.Eventually(t, func() bool {
		v := h.c.Snapshot()
		return v.Summary != "" && !v.SummaryLoading
	}, time.Second, 5*time.Millisecond)
	return h.c.Snapshot()
}

func TestStartLocalRejects(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	assert.ErrorIs(t, h.c.StartLocal(ctx, "  ", ModeTwoPlayer, ""), ErrNoDestination)
	assert.ErrorIs(t, h.c.StartLocal(ctx, "Rome", ModeOnline, ""), ErrUnknownMode)

	h.svc.set(func(f *fakeServices) { f.initialErr = errBoom })
	assert.ErrorIs(t, h.c.StartLocal(ctx, "Rome", ModeTwoPlayer, ""), errBoom)
	v := h.c.Snapshot()
	assert.Equal(t, StateStart, v.State)
	assert.False(t, v.Busy)
	assert.NotEmpty(t, v.Error)

	h.svc.set(func(f *fakeServices) { f.initialErr = nil })
	require.NoError(t, h.c.StartLocal(ctx, "Rome", ModeTwoPlayer, ""))
	assert.Empty(t, h.c.Snapshot().Error, "a new request clears the last error")
	assert.ErrorIs(t, h.c.StartLocal(ctx, "Rome", ModeTwoPlayer, ""), ErrInvalidState)
}

func TestStartLocalPersona(t *testing.T) {
	ctx := context.Background()

	h := newHarness(t)
	require.NoError(t, h.c.StartLocal(ctx, "Rome", ModeSinglePlayer, ""))
	v := h.c.Snapshot()
	assert.Equal(t, DefaultPersona, v.Session.AIPersona)
	assert.Equal(t, "Your Turn", v.TurnTitle)
	assert.Equal(t, 30, v.SecondsLeft)

	h = newHarness(t)
	require.NoError(t, h.c.StartLocal(ctx, "Rome", ModeSinglePlayer, "A Grumpy Pigeon"))
	assert.Equal(t, "A Grumpy Pigeon", h.c.Snapshot().Session.AIPersona)

	h = newHarness(t)
	require.NoError(t, h.c.StartLocal(ctx, "Rome", ModeFourPlayer, "ignored"))
	v = h.c.Snapshot()
	assert.Empty(t, v.Session.AIPersona)
	assert.Equal(t, "Player 1's Turn", v.TurnTitle)
	assert.Equal(t, []string{"scene:Rome"}, v.Session.ImageHistory)
}

func TestSinglePlayerRounds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.c.StartLocal(ctx, "Kyoto", ModeSinglePlayer, ""))

	require.NoError(t, h.c.SubmitTurn(ctx, "", "paper lantern"))
	v := h.c.Snapshot()
	assert.Equal(t, []string{"paper lantern", "a rubber duck"}, v.Session.ItemTexts())
	assert.Equal(t, int32(0), h.signals.correct.Load())
	assert.Equal(t, int32(1), h.signals.success.Load())

	require.NoError(t, h.c.SubmitTurn(ctx, "paper lantern\na rubber duck", "matcha"))
	v = h.c.Snapshot()
	assert.Len(t, v.Session.Items, 4)
	assert.Equal(t, int32(1), h.signals.correct.Load())
	assert.Equal(t, StateGame, v.State)
}

func TestMemoryFailureEndsGameAndSavesTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.c.StartLocal(ctx, "Lisbon", ModeTwoPlayer, ""))
	require.NoError(t, h.c.SubmitTurn(ctx, "", "kite"))

	h.svc.set(func(f *fakeServices) { f.invalid = true })
	require.NoError(t, h.c.SubmitTurn(ctx, "kit", "compass"))

	v := h.c.Snapshot()
	assert.Equal(t, StateGameOver, v.State)
	assert.Equal(t, "Player 2's memory failed!", v.GameOverReason)
	assert.Equal(t, int32(1), h.signals.over.Load())
	assert.Equal(t, "Congratulations, Player 1!", WinnerText(v.Session))

	v = h.waitSummary(t)
	assert.Equal(t, "What a trip.", v.Summary)
	require.Eventually(t, func() bool { return len(h.trips.all()) == 1 }, time.Second, 5*time.Millisecond)

	h.c.Close()
	trip := h.trips.all()[0]
	assert.Equal(t, "Lisbon", trip.Location)
	assert.Equal(t, []string{"kite"}, trip.Items)
	assert.Equal(t, "scene:Lisbon+kite", trip.FinalImage)
	assert.Equal(t, "What a trip.", trip.Summary)
	_, _, _, summaries := h.svc.counts()
	assert.Equal(t, 1, summaries)
	assert.Len(t, h.trips.all(), 1)
}

func TestSummaryFallback(t *testing.T) {
	h := newHarness(t)
	h.svc.summaryErr = errBoom
	ctx := context.Background()
	require.NoError(t, h.c.StartLocal(ctx, "Lima", ModeSolo, ""))
	require.NoError(t, h.c.SubmitTurn(ctx, "", "alpaca"))
	require.NoError(t, h.c.FinishTrip())

	v := h.waitSummary(t)
	assert.Equal(t, FallbackSummary, v.Summary)
	assert.Equal(t, FinishedTripReason, v.GameOverReason)
	assert.Empty(t, WinnerText(v.Session))
	require.Eventually(t, func() bool { return len(h.trips.all()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, FallbackSummary, h.trips.all()[0].Summary)
}

func TestEmptyTripIsNotSaved(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.c.StartLocal(context.Background(), "Lima", ModeSolo, ""))
	require.NoError(t, h.c.FinishTrip())

	h.waitSummary(t)
	h.c.Close()
	assert.Empty(t, h.trips.all())
}

func TestFinishTripOnlySolo(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.c.FinishTrip(), ErrInvalidState)
	require.NoError(t, h.c.StartLocal(context.Background(), "Lima", ModeTwoPlayer, ""))
	assert.ErrorIs(t, h.c.FinishTrip(), ErrInvalidState)
}

func TestBusyRejectsSecondRequest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.c.StartLocal(ctx, "Cairo", ModeSolo, ""))

	gate := make(chan struct{})
	h.svc.set(func(f *fakeServices) { f.editGate = gate })
	done := make(chan error, 1)
	go func() { done <- h.c.SubmitTurn(ctx, "", "camel") }()
	require.Eventually(t, func() bool { return h.c.Snapshot().Busy }, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, h.c.SubmitTurn(ctx, "", "pyramid"), ErrBusy)
	assert.ErrorIs(t, h.c.FinishTrip(), ErrBusy)

	close(gate)
	require.NoError(t, <-done)
	v := h.c.Snapshot()
	assert.False(t, v.Busy)
	assert.Equal(t, []string{"camel"}, v.Session.ItemTexts())
}

func TestResetDiscardsInFlightResult(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.c.StartLocal(ctx, "Cairo", ModeTwoPlayer, ""))

	gate := make(chan struct{})
	h.svc.set(func(f *fakeServices) { f.editGate = gate })
	done := make(chan error, 1)
	go func() { done <- h.c.SubmitTurn(ctx, "", "camel") }()
	require.Eventually(t, func() bool { return h.c.Snapshot().Busy }, time.Second, 5*time.Millisecond)

	h.c.Reset()
	close(gate)
	assert.ErrorIs(t, <-done, ErrSessionChanged)

	v := h.c.Snapshot()
	assert.Equal(t, StateStart, v.State)
	assert.Nil(t, v.Session)
	assert.False(t, v.Busy)
	assert.Zero(t, h.c.tasks.Len())

	h.c.Reset()
	assert.Equal(t, v, h.c.Snapshot(), "reset is idempotent")
	assert.Zero(t, h.signals.success.Load())
}

func TestResetFromEveryState(t *testing.T) {
	ctx := context.Background()
	start := func(h *harness) {}
	tests := map[string]func(h *harness){
		"start":   start,
		"gallery": func(h *harness) { require.NoError(t, h.c.ShowGallery()) },
		"game":    func(h *harness) { require.NoError(t, h.c.StartLocal(ctx, "Rome", ModeTwoPlayer, "")) },
		"lobby":   func(h *harness) { require.NoError(t, h.c.CreateOnline(ctx, "Rome", "Ann")) },
		"game over": func(h *harness) {
			require.NoError(t, h.c.StartLocal(ctx, "Rome", ModeSolo, ""))
			require.NoError(t, h.c.FinishTrip())
		},
	}
	for name, setup := range tests {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			setup(h)
			h.c.Reset()
			v := h.c.Snapshot()
			assert.Equal(t, StateStart, v.State)
			assert.Nil(t, v.Session)
			assert.Empty(t, v.PlayerID)
			assert.Empty(t, v.GameOverReason)
			assert.Zero(t, h.c.tasks.Len())
		})
	}
}

func TestAITurnFailureAndRetry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.c.StartLocal(ctx, "Nairobi", ModeSinglePlayer, ""))

	h.svc.set(func(f *fakeServices) { f.ideaErr = errBoom })
	assert.ErrorIs(t, h.c.SubmitTurn(ctx, "", "binoculars"), ErrAITurnFailed)
	v := h.c.Snapshot()
	assert.True(t, v.AIPending)
	assert.NotEmpty(t, v.Error)
	assert.Equal(t, []string{"binoculars"}, v.Session.ItemTexts())
	assert.Nil(t, v.Session.TurnEndsAt)

	assert.ErrorIs(t, h.c.SubmitTurn(ctx, "binoculars", "hat"), ErrAITurnPending)
	assert.ErrorIs(t, h.c.RetryAITurn(ctx), ErrAITurnFailed)
	assert.True(t, h.c.Snapshot().AIPending)

	h.svc.set(func(f *fakeServices) { f.ideaErr = nil })
	require.NoError(t, h.c.RetryAITurn(ctx))
	v = h.c.Snapshot()
	assert.False(t, v.AIPending)
	assert.Empty(t, v.Error)
	assert.Equal(t, []string{"binoculars", "a rubber duck"}, v.Session.ItemTexts())
	assert.Equal(t, 30, v.SecondsLeft)

	assert.ErrorIs(t, h.c.RetryAITurn(ctx), ErrNoAITurn)
}

func TestHintOncePerTurn(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.c.StartLocal(ctx, "Oslo", ModeTwoPlayer, ""))

	_, err := h.c.RequestHint("")
	assert.ErrorIs(t, err, ErrHintUnavailable, "nothing to recall yet")

	require.NoError(t, h.c.SubmitTurn(ctx, "", "knitted hat"))
	hint, err := h.c.RequestHint("")
	require.NoError(t, err)
	assert.Equal(t, "The next item starts with: K", hint)

	_, err = h.c.RequestHint("")
	assert.ErrorIs(t, err, ErrHintUnavailable)

	require.NoError(t, h.c.SubmitTurn(ctx, "knitted hat", "salmon"))
	hint, err = h.c.RequestHint("knitted hat")
	require.NoError(t, err)
	assert.Equal(t, "The next item starts with: S", hint)
}

func TestGalleryOnlyFromStart(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.c.ShowGallery())
	assert.Equal(t, StateGallery, h.c.Snapshot().State)
	assert.ErrorIs(t, h.c.ShowGallery(), ErrInvalidState)
	assert.ErrorIs(t, h.c.StartLocal(context.Background(), "Rome", ModeSolo, ""), ErrInvalidState)

	h.c.Reset()
	require.NoError(t, h.c.StartLocal(context.Background(), "Rome", ModeSolo, ""))
	assert.ErrorIs(t, h.c.ShowGallery(), ErrInvalidState)
}

func TestActionsOutsideTheirState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	assert.ErrorIs(t, h.c.SubmitTurn(ctx, "", "kite"), ErrInvalidState)
	assert.ErrorIs(t, h.c.SubmitTurn(ctx, "", " "), ErrEmptyItem)
	assert.ErrorIs(t, h.c.StartOnline(ctx), ErrInvalidState)
	_, err := h.c.RequestHint("")
	assert.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, h.c.StartLocal(ctx, "Rome", ModeTwoPlayer, ""))
	assert.ErrorIs(t, h.c.CreateOnline(ctx, "Rome", "Ann"), ErrInvalidState)
	assert.ErrorIs(t, h.c.JoinOnline(ctx, "ABCDE", "Ann"), ErrInvalidState)
}
