package game

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

const (
	DefaultPersona = "The Whimsical Artist"
	CustomPersona  = "Custom..."
)

// Personas offered for the AI opponent. CustomPersona asks for free text.
var Personas = []string{
	DefaultPersona,
	"The Chaos Agent",
	"The Gloomy Poet",
	"The Sci-Fi Nerd",
	"The Culinary Enthusiast",
	CustomPersona,
}

// Hint reveals the first letter of the next item the player has not
// recalled yet.
func Hint(s *GameSession, recalledText string) (string, bool) {
	if s == nil || s.GameMode == ModeSolo {
		return "", false
	}
	n := len(ParseRecalled(recalledText))
	if n >= len(s.Items) {
		return "", false
	}
	r, _ := utf8.DecodeRuneInString(s.Items[n].Text)
	return fmt.Sprintf("The next item starts with: %s", strings.ToUpper(string(r))), true
}

// IsMyTurn is always true for local games; the hotseat passes the keyboard.
func IsMyTurn(s *GameSession, playerID string) bool {
	if s == nil {
		return false
	}
	if s.GameMode == ModeOnline {
		return s.CurrentPlayerID != "" && s.CurrentPlayerID == playerID
	}
	return true
}

func TurnTitle(s *GameSession, playerID string) string {
	switch {
	case s == nil:
		return ""
	case s.GameMode == ModeSolo:
		return "Solo Mode"
	case s.GameMode == ModeOnline:
		if IsMyTurn(s, playerID) {
			return "It's Your Turn!"
		}
		name := s.PlayerName(s.CurrentPlayerID)
		if name == "" {
			name = "..."
		}
		return fmt.Sprintf("Waiting for %s...", name)
	case s.GameMode == ModeSinglePlayer:
		return "Your Turn"
	default:
		return fmt.Sprintf("%s's Turn", s.CurrentPlayer.Label())
	}
}

// WinnerText congratulates everyone except the player whose memory failed.
func WinnerText(s *GameSession) string {
	switch s.GameMode {
	case ModeSolo:
		return ""
	case ModeSinglePlayer:
		persona := s.AIPersona
		if persona == "" {
			persona = "Opponent"
		}
		return fmt.Sprintf("The AI (%s) wins!", persona)
	}

	var winners []string
	if s.GameMode == ModeOnline {
		for _, p := range s.Players {
			if p.ID != s.CurrentPlayerID {
				winners = append(winners, p.Name)
			}
		}
	} else {
		for _, p := range TurnOrder(s.GameMode) {
			if p != s.CurrentPlayer {
				winners = append(winners, p.Label())
			}
		}
	}
	if len(winners) == 0 {
		return ""
	}
	return fmt.Sprintf("Congratulations, %s!", joinNames(winners))
}

func joinNames(names []string) string {
	if len(names) == 1 {
		return names[0]
	}
	return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
}

// ParseJoinCode accepts a bare game code or a share link carrying it in the
// joinGame query parameter.
func ParseJoinCode(input string) string {
	input = strings.TrimSpace(input)
	if strings.Contains(input, "joinGame=") {
		if u, err := url.Parse(input); err == nil {
			if code := u.Query().Get("joinGame"); code != "" {
				input = code
			}
		}
	}
	return strings.ToUpper(strings.TrimSpace(input))
}

// ShareLink builds the link other players open to join a game.
func ShareLink(base, code string) string {
	u, err := url.Parse(base)
	if err != nil || base == "" {
		return code
	}
	q := u.Query()
	q.Set("joinGame", code)
	u.RawQuery = q.Encode()
	return u.String()
}
