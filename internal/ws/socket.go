package ws

import (
	"context"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	socketio "github.com/googollee/go-socket.io"
	"github.com/rs/zerolog/log"

	"github.com/kiliankoe/memorytrip/internal/game"
)

type ConnCtx struct {
	Code     string
	PlayerID string
}

// StateSource reads the canonical state of an online game.
type StateSource interface {
	GameState(ctx context.Context, code string) (*game.GameSession, game.Status, error)
}

// Server pushes online game snapshots to watching sockets so clients need
// not wait for their next poll.
type Server struct {
	rooms StateSource

	mu       sync.Mutex
	io       *socketio.Server
	watchers map[string]map[string]socketio.Conn // gameCode -> socketID -> Conn
}

type statePayload struct {
	GameState  *game.GameSession `json:"gameState"`
	GameStatus game.Status       `json:"gameStatus"`
}

func New(rooms StateSource) *Server {
	return &Server{rooms: rooms, watchers: make(map[string]map[string]socketio.Conn)}
}

// Mount attaches the Socket.IO server to the given Gin engine.
func (srv *Server) Mount(r *gin.Engine) *socketio.Server {
	io := socketio.NewServer(nil)

	io.OnConnect("/", func(s socketio.Conn) error {
		s.SetContext(&ConnCtx{})
		log.Debug().Str("sid", s.ID()).Msg("socket connected")
		return nil
	})

	// game:watch subscribes the socket to a game and sends the current state
	io.OnEvent("/", "game:watch", func(s socketio.Conn, payload struct {
		GameCode string `json:"gameCode"`
		PlayerID string `json:"playerId"`
	}) map[string]any {
		code := strings.ToUpper(strings.TrimSpace(payload.GameCode))
		state, status, err := srv.rooms.GameState(context.Background(), code)
		if err != nil {
			return srv.err(s, "game_not_found", "Game not found")
		}
		if prev, ok := s.Context().(*ConnCtx); ok && prev.Code != "" && prev.Code != code {
			s.Leave(prev.Code)
			srv.removeWatcher(prev.Code, s)
		}
		s.SetContext(&ConnCtx{Code: code, PlayerID: payload.PlayerID})
		s.Join(code)
		srv.addWatcher(code, s)
		log.Info().Str("sid", s.ID()).Str("code", code).Str("playerId", payload.PlayerID).Msg("game:watch")
		s.Emit("game:state", statePayload{GameState: state, GameStatus: status})
		return map[string]any{"ok": true}
	})

	io.OnEvent("/", "game:unwatch", func(s socketio.Conn) map[string]any {
		if ctx, ok := s.Context().(*ConnCtx); ok && ctx.Code != "" {
			s.Leave(ctx.Code)
			srv.removeWatcher(ctx.Code, s)
			s.SetContext(&ConnCtx{})
		}
		return map[string]any{"ok": true}
	})

	io.OnError("/", func(s socketio.Conn, e error) {
		if s == nil {
			log.Error().Err(e).Msg("socket error")
			return
		}
		log.Error().Str("sid", s.ID()).Err(e).Msg("socket error")
	})
	io.OnDisconnect("/", func(s socketio.Conn, reason string) {
		if ctx, ok := s.Context().(*ConnCtx); ok && ctx.Code != "" {
			srv.removeWatcher(ctx.Code, s)
		}
		log.Debug().Str("sid", s.ID()).Str("reason", reason).Msg("socket disconnected")
	})

	go func() {
		if err := io.Serve(); err != nil {
			log.Error().Err(err).Msg("socket server stopped")
		}
	}()

	r.GET("/socket.io/*any", gin.WrapH(io))
	r.POST("/socket.io/*any", gin.WrapH(io))

	srv.mu.Lock()
	srv.io = io
	srv.mu.Unlock()
	return io
}

// Publish broadcasts a snapshot to everyone watching its game.
func (srv *Server) Publish(s *game.GameSession) {
	if s == nil || s.GameCode == "" {
		return
	}
	srv.mu.Lock()
	io := srv.io
	watching := len(srv.watchers[s.GameCode])
	srv.mu.Unlock()
	if io == nil || watching == 0 {
		return
	}
	io.BroadcastToRoom("/", s.GameCode, "game:state", statePayload{GameState: s, GameStatus: s.GameStatus})
}

// Watchers reports how many sockets follow a game.
func (srv *Server) Watchers(code string) int {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return len(srv.watchers[code])
}

func (srv *Server) addWatcher(code string, c socketio.Conn) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.watchers[code] == nil {
		srv.watchers[code] = make(map[string]socketio.Conn)
	}
	srv.watchers[code][c.ID()] = c
}

func (srv *Server) removeWatcher(code string, c socketio.Conn) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if m := srv.watchers[code]; m != nil {
		delete(m, c.ID())
		if len(m) == 0 {
			delete(srv.watchers, code)
		}
	}
}

func (srv *Server) err(s socketio.Conn, code, message string) map[string]any {
	s.Emit("error", map[string]any{"code": code, "message": message})
	return map[string]any{"error": message}
}
