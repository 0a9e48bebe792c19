package game

import (
	"fmt"
	"time"
)

type GameState string

const (
	StateStart    GameState = "START"
	StateLobby    GameState = "LOBBY"
	StateGame     GameState = "GAME"
	StateGameOver GameState = "GAME_OVER"
	StateGallery  GameState = "GALLERY"
)

type GameMode string

const (
	ModeSinglePlayer GameMode = "SINGLE_PLAYER" // player vs AI
	ModeTwoPlayer    GameMode = "TWO_PLAYER"    // local hotseat
	ModeThreePlayer  GameMode = "THREE_PLAYER"  // local hotseat
	ModeFourPlayer   GameMode = "FOUR_PLAYER"   // local hotseat
	ModeSolo         GameMode = "SOLO_MODE"     // untimed, no memory check
	ModeOnline       GameMode = "ONLINE"
)

// Timed reports whether turns in this mode run against a local deadline.
func (m GameMode) Timed() bool {
	switch m {
	case ModeSinglePlayer, ModeTwoPlayer, ModeThreePlayer, ModeFourPlayer:
		return true
	}
	return false
}

func (m GameMode) Local() bool {
	return m.Timed() || m == ModeSolo
}

func (m GameMode) Valid() bool {
	return m.Local() || m == ModeOnline
}

type AddedBy string

const (
	Player1 AddedBy = "PLAYER_1"
	Player2 AddedBy = "PLAYER_2"
	Player3 AddedBy = "PLAYER_3"
	Player4 AddedBy = "PLAYER_4"
	AI      AddedBy = "AI"
)

var seats = []AddedBy{Player1, Player2, Player3, Player4}

// TurnOrder is the fixed rotation for a local mode. Single player and solo
// games only ever have PLAYER_1 at the keyboard.
func TurnOrder(mode GameMode) []AddedBy {
	switch mode {
	case ModeTwoPlayer:
		return seats[:2]
	case ModeThreePlayer:
		return seats[:3]
	case ModeFourPlayer:
		return seats[:4]
	default:
		return seats[:1]
	}
}

// Seat returns the player slot for a zero-based position in an online
// player list.
func Seat(ix int) AddedBy {
	if ix < 0 || ix >= len(seats) {
		return ""
	}
	return seats[ix]
}

// Label is the display name of a slot, e.g. "Player 2".
func (a AddedBy) Label() string {
	for i, s := range seats {
		if s == a {
			return fmt.Sprintf("Player %d", i+1)
		}
	}
	if a == AI {
		return "AI"
	}
	return string(a)
}

// Status is the authority's view of an online game.
type Status string

const (
	StatusLobby    Status = "lobby"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

type MemoryItem struct {
	Text    string  `json:"text"`
	AddedBy AddedBy `json:"addedBy"`
}

type Player struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Image struct {
	Base64   string `json:"base64Image"`
	MimeType string `json:"mimeType"`
}

type GameSession struct {
	BasePrompt    string       `json:"basePrompt"`
	Items         []MemoryItem `json:"items"`
	CurrentImage  string       `json:"currentImage"`
	MimeType      string       `json:"mimeType"`
	ImageHistory  []string     `json:"imageHistory"`
	CurrentPlayer AddedBy      `json:"currentPlayer"`
	GameMode      GameMode     `json:"gameMode"`
	AIPersona     string       `json:"aiPersona,omitempty"`
	TurnEndsAt    *time.Time   `json:"turnEndsAt,omitempty"`

	// online only
	GameCode        string   `json:"gameCode,omitempty"`
	Players         []Player `json:"players,omitempty"`
	HostID          string   `json:"hostId,omitempty"`
	CurrentPlayerID string   `json:"currentPlayerId,omitempty"`
	GameStatus      Status   `json:"gameStatus,omitempty"`
	GameOverReason  string   `json:"gameOverReason,omitempty"`
}

// NewSession seeds a game from its initial rendered scene.
func NewSession(destination string, mode GameMode, img Image) *GameSession {
	return &GameSession{
		BasePrompt:    destination,
		Items:         []MemoryItem{},
		CurrentImage:  img.Base64,
		MimeType:      img.MimeType,
		ImageHistory:  []string{img.Base64},
		CurrentPlayer: Player1,
		GameMode:      mode,
	}
}

// Clone returns a deep copy. Published sessions are never mutated in place;
// every transition works on a clone.
func (s *GameSession) Clone() *GameSession {
	if s == nil {
		return nil
	}
	out := *s
	out.Items = make([]MemoryItem, len(s.Items))
	copy(out.Items, s.Items)
	out.ImageHistory = make([]string, len(s.ImageHistory))
	copy(out.ImageHistory, s.ImageHistory)
	if s.Players != nil {
		out.Players = append([]Player(nil), s.Players...)
	}
	if s.TurnEndsAt != nil {
		t := *s.TurnEndsAt
		out.TurnEndsAt = &t
	}
	return &out
}

func (s *GameSession) ItemTexts() []string {
	out := make([]string, len(s.Items))
	for i, it := range s.Items {
		out[i] = it.Text
	}
	return out
}

func (s *GameSession) Image() Image {
	return Image{Base64: s.CurrentImage, MimeType: s.MimeType}
}

// AppendTurn returns a copy of s with an item and its rendered scene appended.
func (s *GameSession) AppendTurn(text string, by AddedBy, img Image) *GameSession {
	next := s.Clone()
	next.Items = append(next.Items, MemoryItem{Text: text, AddedBy: by})
	next.ImageHistory = append(next.ImageHistory, img.Base64)
	next.CurrentImage = img.Base64
	next.MimeType = img.MimeType
	return next
}

func (s *GameSession) PlayerIndex(id string) int {
	for i, p := range s.Players {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (s *GameSession) PlayerName(id string) string {
	if ix := s.PlayerIndex(id); ix >= 0 {
		return s.Players[ix].Name
	}
	return ""
}
