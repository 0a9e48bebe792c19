package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aimock "github.com/kiliankoe/memorytrip/internal/ai/mock"
	"github.com/kiliankoe/memorytrip/internal/api"
	"github.com/kiliankoe/memorytrip/internal/gallery"
	"github.com/kiliankoe/memorytrip/internal/game"
	"github.com/kiliankoe/memorytrip/internal/room"
	"github.com/kiliankoe/memorytrip/internal/scene"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	p := aimock.New()
	scenes := scene.New(p, p, "mock", "mock")
	rooms := room.NewManager(scenes, scenes, clockwork.NewFakeClock())
	r := gin.New()
	api.New(scenes, rooms, gallery.NewFileStore(filepath.Join(t.TempDir(), "gallery.json"))).Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestOnlineGameOverHTTP(t *testing.T) {
	c := New(newTestServer(t).URL)
	ctx := context.Background()

	host, err := c.CreateGame(ctx, "Reykjavik", "Alice")
	require.NoError(t, err)
	require.NotNil(t, host.Session)
	assert.Equal(t, game.StatusLobby, host.Session.GameStatus)

	guest, err := c.JoinGame(ctx, host.GameCode, "Bob")
	require.NoError(t, err)
	assert.Equal(t, host.GameCode, guest.GameCode)

	s, err := c.StartGame(ctx, host.GameCode, host.PlayerID)
	require.NoError(t, err)
	assert.Equal(t, game.StatusActive, s.GameStatus)

	require.NoError(t, c.SubmitTurn(ctx, host.GameCode, host.PlayerID, nil, "puffin"))

	s, status, err := c.GameState(ctx, host.GameCode)
	require.NoError(t, err)
	assert.Equal(t, game.StatusActive, status)
	assert.Equal(t, guest.PlayerID, s.CurrentPlayerID)
	assert.Equal(t, []string{"puffin"}, s.ItemTexts())
}

func TestRejectedError(t *testing.T) {
	c := New(newTestServer(t).URL)

	_, err := c.JoinGame(context.Background(), "NOPE1", "Bob")
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, http.StatusNotFound, rejected.Status)
	assert.Equal(t, "Game not found.", rejected.Message)
	assert.False(t, errors.Is(err, ErrTransport))
}

func TestRejectedWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := New(srv.URL).AIIdea(context.Background(), "p", "Paris", nil)
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "Request to backend failed with status: 500", rejected.Message)
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, _, err := New(url).GameState(context.Background(), "ABCDE")
	assert.ErrorIs(t, err, ErrTransport)
}

func TestUndecodableReplyIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>"))
	}))
	defer srv.Close()

	_, err := New(srv.URL).ValidateMemory(context.Background(), []string{"a"}, []string{"a"})
	assert.ErrorIs(t, err, ErrTransport)
}

func TestSceneCallsAndGallery(t *testing.T) {
	c := New(newTestServer(t).URL)
	ctx := context.Background()

	img, err := c.GenerateInitialImage(ctx, "Hanoi")
	require.NoError(t, err)
	assert.NotEmpty(t, img.Base64)

	next, err := c.EditImage(ctx, img, "a bowl of pho")
	require.NoError(t, err)
	assert.NotEqual(t, img.Base64, next.Base64)

	ok, err := c.ValidateMemory(ctx, []string{"Bowl of pho"}, []string{"bowl of pho"})
	require.NoError(t, err)
	assert.True(t, ok)

	saved, err := c.Save(ctx, gallery.Trip{Location: "Hanoi", Items: []string{"a bowl of pho"}, FinalImage: next.Base64, MimeType: next.MimeType})
	require.NoError(t, err)
	trips, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, trips, 1)
	assert.Equal(t, saved.ID, trips[0].ID)
	require.NoError(t, c.Delete(ctx, saved.ID))
}
