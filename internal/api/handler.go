package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/kiliankoe/memorytrip/internal/gallery"
	"github.com/kiliankoe/memorytrip/internal/game"
	"github.com/kiliankoe/memorytrip/internal/metrics"
	"github.com/kiliankoe/memorytrip/internal/room"
	"github.com/kiliankoe/memorytrip/internal/scene"
)

// Rooms is the part of the room manager the API serves.
type Rooms interface {
	CreateGame(ctx context.Context, prompt, playerName string) (game.Joined, error)
	JoinGame(ctx context.Context, code, playerName string) (game.Joined, error)
	GameState(ctx context.Context, code string) (*game.GameSession, game.Status, error)
	StartGame(ctx context.Context, code, playerID string) (*game.GameSession, error)
	SubmitTurn(ctx context.Context, code, playerID string, recalled []string, newItem string) (*game.GameSession, error)
}

type Handler struct {
	scenes game.Services
	rooms  Rooms
	trips  gallery.Store
}

func New(scenes game.Services, rooms Rooms, trips gallery.Store) *Handler {
	return &Handler{scenes: scenes, rooms: rooms, trips: trips}
}

// Register mounts every endpoint under /api. aiLimit runs in front of the
// endpoints that call the AI backend.
func (h *Handler) Register(r gin.IRouter, aiLimit ...gin.HandlerFunc) {
	api := r.Group("/api")
	ai := api.Group("", aiLimit...)
	ai.POST("/generate-initial-image", h.generateInitialImage)
	ai.POST("/edit-image", h.editImage)
	ai.POST("/get-ai-idea", h.aiIdea)
	ai.POST("/get-trip-summary", h.tripSummary)
	ai.POST("/validate-memory", h.validateMemory)
	ai.POST("/create-online-game", h.createOnlineGame)
	ai.POST("/submit-turn", h.submitTurn)

	api.POST("/join-online-game", h.joinOnlineGame)
	api.POST("/get-game-state", h.gameState)
	api.POST("/start-game", h.startGame)

	if h.trips != nil {
		api.GET("/gallery", h.listTrips)
		api.POST("/gallery", h.saveTrip)
		api.DELETE("/gallery/:id", h.deleteTrip)
	}
}

type imageResponse struct {
	Base64Image string `json:"base64Image"`
	MimeType    string `json:"mimeType"`
}

func (h *Handler) generateInitialImage(c *gin.Context) {
	var req struct {
		Prompt string `json:"prompt"`
	}
	if !bind(c, &req) {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		badRequest(c, "Prompt is required.")
		return
	}
	img, err := h.scenes.GenerateInitialImage(c.Request.Context(), req.Prompt)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, imageResponse{Base64Image: img.Base64, MimeType: img.MimeType})
}

func (h *Handler) editImage(c *gin.Context) {
	var req struct {
		CurrentImageBase64 string `json:"currentImageBase64"`
		MimeType           string `json:"mimeType"`
		ItemPrompt         string `json:"itemPrompt"`
	}
	if !bind(c, &req) {
		return
	}
	if req.CurrentImageBase64 == "" || strings.TrimSpace(req.ItemPrompt) == "" {
		badRequest(c, "Current image and item are required.")
		return
	}
	img, err := h.scenes.EditImage(c.Request.Context(), game.Image{Base64: req.CurrentImageBase64, MimeType: req.MimeType}, req.ItemPrompt)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, imageResponse{Base64Image: img.Base64, MimeType: img.MimeType})
}

func (h *Handler) aiIdea(c *gin.Context) {
	var req struct {
		Persona  string   `json:"persona"`
		Location string   `json:"location"`
		Items    []string `json:"items"`
	}
	if !bind(c, &req) {
		return
	}
	idea, err := h.scenes.AIIdea(c.Request.Context(), req.Persona, req.Location, req.Items)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"idea": idea})
}

func (h *Handler) tripSummary(c *gin.Context) {
	var req struct {
		Location string   `json:"location"`
		Items    []string `json:"items"`
	}
	if !bind(c, &req) {
		return
	}
	summary, err := h.scenes.TripSummary(c.Request.Context(), req.Location, req.Items)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

func (h *Handler) validateMemory(c *gin.Context) {
	var req struct {
		RecalledItems []string `json:"recalledItems"`
		ActualItems   []string `json:"actualItems"`
	}
	if !bind(c, &req) {
		return
	}
	ok, err := h.scenes.ValidateMemory(c.Request.Context(), req.RecalledItems, req.ActualItems)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"correct": ok})
}

func (h *Handler) createOnlineGame(c *gin.Context) {
	var req struct {
		Prompt     string `json:"prompt"`
		PlayerName string `json:"playerName"`
	}
	if !bind(c, &req) {
		return
	}
	joined, err := h.rooms.CreateGame(c.Request.Context(), req.Prompt, req.PlayerName)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"gameCode": joined.GameCode, "playerId": joined.PlayerID, "gameState": joined.Session})
}

func (h *Handler) joinOnlineGame(c *gin.Context) {
	var req struct {
		GameCode   string `json:"gameCode"`
		PlayerName string `json:"playerName"`
	}
	if !bind(c, &req) {
		return
	}
	joined, err := h.rooms.JoinGame(c.Request.Context(), req.GameCode, req.PlayerName)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"playerId": joined.PlayerID, "gameState": joined.Session})
}

func (h *Handler) gameState(c *gin.Context) {
	var req struct {
		GameCode string `json:"gameCode"`
	}
	if !bind(c, &req) {
		return
	}
	s, status, err := h.rooms.GameState(c.Request.Context(), req.GameCode)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"gameState": s, "gameStatus": status})
}

func (h *Handler) startGame(c *gin.Context) {
	var req struct {
		GameCode string `json:"gameCode"`
		PlayerID string `json:"playerId"`
	}
	if !bind(c, &req) {
		return
	}
	s, err := h.rooms.StartGame(c.Request.Context(), req.GameCode, req.PlayerID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"gameState": s})
}

func (h *Handler) submitTurn(c *gin.Context) {
	var req struct {
		GameCode      string   `json:"gameCode"`
		PlayerID      string   `json:"playerId"`
		RecalledItems []string `json:"recalledItems"`
		NewItem       string   `json:"newItem"`
	}
	if !bind(c, &req) {
		return
	}
	s, err := h.rooms.SubmitTurn(c.Request.Context(), req.GameCode, req.PlayerID, req.RecalledItems, req.NewItem)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"gameState": s})
}

func (h *Handler) listTrips(c *gin.Context) {
	trips, err := h.trips.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trips": trips})
}

func (h *Handler) saveTrip(c *gin.Context) {
	var trip gallery.Trip
	if !bind(c, &trip) {
		return
	}
	saved, err := h.trips.Save(c.Request.Context(), trip)
	if err != nil {
		fail(c, err)
		return
	}
	metrics.TripSaved()
	c.JSON(http.StatusOK, gin.H{"trip": saved})
}

func (h *Handler) deleteTrip(c *gin.Context) {
	if err := h.trips.Delete(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		badRequest(c, "Invalid request body.")
		return false
	}
	return true
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": message(err, status)})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, room.ErrGameNotFound), errors.Is(err, gallery.ErrTripNotFound):
		return http.StatusNotFound
	case errors.Is(err, room.ErrNotHost), errors.Is(err, room.ErrNotYourTurn), errors.Is(err, room.ErrUnknownPlayer):
		return http.StatusForbidden
	case errors.Is(err, room.ErrGameFull), errors.Is(err, room.ErrGameFinished),
		errors.Is(err, room.ErrNotActive), errors.Is(err, room.ErrTurnInProgress),
		errors.Is(err, room.ErrNotEnoughPlayers):
		return http.StatusConflict
	case errors.Is(err, room.ErrEmptyName), errors.Is(err, room.ErrEmptyPrompt), errors.Is(err, room.ErrEmptyItem),
		errors.Is(err, scene.ErrEmptyPrompt), errors.Is(err, scene.ErrBadImage), errors.Is(err, gallery.ErrEmptyTrip):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

// message keeps upstream details out of responses; rule violations are
// reported as they are.
func message(err error, status int) string {
	if status == http.StatusBadGateway {
		return "The AI service could not complete the request. Please try again."
	}
	msg := err.Error()
	if msg == "" {
		return http.StatusText(status)
	}
	return strings.ToUpper(msg[:1]) + msg[1:] + "."
}
