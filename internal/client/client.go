package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kiliankoe/memorytrip/internal/gallery"
	"github.com/kiliankoe/memorytrip/internal/game"
)

// ErrTransport wraps every failure to reach the server or read its reply.
var ErrTransport = errors.New("game server unreachable")

// RejectedError is an explicit refusal by the server.
type RejectedError struct {
	Status  int
	Message string
}

func (e *RejectedError) Error() string {
	return e.Message
}

var (
	_ game.Services  = (*Client)(nil)
	_ game.Authority = (*Client)(nil)
	_ game.TripStore = (*Client)(nil)
	_ gallery.Store  = (*Client)(nil)
)

// Client calls the game server's JSON API.
type Client struct {
	BaseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), http: &http.Client{Timeout: 2 * time.Minute}}
}

func (c *Client) GenerateInitialImage(ctx context.Context, destination string) (game.Image, error) {
	var out game.Image
	err := c.do(ctx, http.MethodPost, "/api/generate-initial-image", map[string]any{"prompt": destination}, &out)
	return out, err
}

func (c *Client) EditImage(ctx context.Context, current game.Image, item string) (game.Image, error) {
	var out game.Image
	err := c.do(ctx, http.MethodPost, "/api/edit-image", map[string]any{
		"currentImageBase64": current.Base64,
		"mimeType":           current.MimeType,
		"itemPrompt":         item,
	}, &out)
	return out, err
}

func (c *Client) AIIdea(ctx context.Context, persona, location string, items []string) (string, error) {
	var out struct {
		Idea string `json:"idea"`
	}
	err := c.do(ctx, http.MethodPost, "/api/get-ai-idea", map[string]any{"persona": persona, "location": location, "items": items}, &out)
	return out.Idea, err
}

func (c *Client) TripSummary(ctx context.Context, location string, items []string) (string, error) {
	var out struct {
		Summary string `json:"summary"`
	}
	err := c.do(ctx, http.MethodPost, "/api/get-trip-summary", map[string]any{"location": location, "items": items}, &out)
	return out.Summary, err
}

func (c *Client) ValidateMemory(ctx context.Context, recalled, actual []string) (bool, error) {
	var out struct {
		Correct bool `json:"correct"`
	}
	err := c.do(ctx, http.MethodPost, "/api/validate-memory", map[string]any{"recalledItems": recalled, "actualItems": actual}, &out)
	return out.Correct, err
}

func (c *Client) CreateGame(ctx context.Context, destination, playerName string) (game.Joined, error) {
	var out struct {
		GameCode  string            `json:"gameCode"`
		PlayerID  string            `json:"playerId"`
		GameState *game.GameSession `json:"gameState"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/create-online-game", map[string]any{"prompt": destination, "playerName": playerName}, &out); err != nil {
		return game.Joined{}, err
	}
	return game.Joined{GameCode: out.GameCode, PlayerID: out.PlayerID, Session: out.GameState}, nil
}

func (c *Client) JoinGame(ctx context.Context, code, playerName string) (game.Joined, error) {
	var out struct {
		PlayerID  string            `json:"playerId"`
		GameState *game.GameSession `json:"gameState"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/join-online-game", map[string]any{"gameCode": code, "playerName": playerName}, &out); err != nil {
		return game.Joined{}, err
	}
	return game.Joined{GameCode: code, PlayerID: out.PlayerID, Session: out.GameState}, nil
}

func (c *Client) GameState(ctx context.Context, code string) (*game.GameSession, game.Status, error) {
	var out struct {
		GameState  *game.GameSession `json:"gameState"`
		GameStatus game.Status       `json:"gameStatus"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/get-game-state", map[string]any{"gameCode": code}, &out); err != nil {
		return nil, "", err
	}
	return out.GameState, out.GameStatus, nil
}

func (c *Client) StartGame(ctx context.Context, code, playerID string) (*game.GameSession, error) {
	var out struct {
		GameState *game.GameSession `json:"gameState"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/start-game", map[string]any{"gameCode": code, "playerId": playerID}, &out); err != nil {
		return nil, err
	}
	return out.GameState, nil
}

// SubmitTurn forwards a turn. The resulting state reaches the caller through
// the next poll, like everyone else's.
func (c *Client) SubmitTurn(ctx context.Context, code, playerID string, recalled []string, newItem string) error {
	if recalled == nil {
		recalled = []string{}
	}
	return c.do(ctx, http.MethodPost, "/api/submit-turn", map[string]any{
		"gameCode":      code,
		"playerId":      playerID,
		"recalledItems": recalled,
		"newItem":       newItem,
	}, nil)
}

func (c *Client) Save(ctx context.Context, trip gallery.Trip) (gallery.Trip, error) {
	var out struct {
		Trip gallery.Trip `json:"trip"`
	}
	err := c.do(ctx, http.MethodPost, "/api/gallery", trip, &out)
	return out.Trip, err
}

func (c *Client) List(ctx context.Context) ([]gallery.Trip, error) {
	var out struct {
		Trips []gallery.Trip `json:"trips"`
	}
	err := c.do(ctx, http.MethodGet, "/api/gallery", nil, &out)
	return out.Trips, err
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/gallery/"+url.PathEscape(id), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body *bytes.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var e struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error == "" {
			e.Error = fmt.Sprintf("Request to backend failed with status: %d", resp.StatusCode)
		}
		return &RejectedError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %w", ErrTransport, path, err)
	}
	return nil
}
