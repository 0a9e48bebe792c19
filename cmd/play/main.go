package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/kiliankoe/memorytrip/internal/client"
	"github.com/kiliankoe/memorytrip/internal/config"
	"github.com/kiliankoe/memorytrip/internal/gallery"
	"github.com/kiliankoe/memorytrip/internal/game"
)

const usage = `Commands:
  /local MODE DESTINATION   start a local game, MODE is single, two, three, four or solo
  /persona NAME             AI persona for single player games (default: The Whimsical Artist)
  /create DESTINATION       host an online game
  /join CODE                join an online game by code or share link
  /start                    start the online game (host only)
  /turn                     recall the items and add a new one
  /retry                    retry a failed AI turn
  /finish                   end a solo trip
  /image FILE               write the current scene to FILE
  /gallery                  list saved trips
  /dismiss                  clear the error message
  /reset                    back to the start screen
  /quit                     leave
  (empty line)              refresh
`

var modes = map[string]game.GameMode{
	"single": game.ModeSinglePlayer,
	"two":    game.ModeTwoPlayer,
	"three":  game.ModeThreePlayer,
	"four":   game.ModeFourPlayer,
	"solo":   game.ModeSolo,
}

// bell plays the game's cues as terminal output.
type bell struct{ w io.Writer }

func (b bell) Correct()      { fmt.Fprintln(b.w, "\a* correct!") }
func (b bell) TurnSuccess()  { fmt.Fprintln(b.w, "* the scene grows") }
func (b bell) GameOver()     { fmt.Fprintln(b.w, "\a* game over") }
func (b bell) TimerWarning() { fmt.Fprintln(b.w, "\a* hurry, 10 seconds left!") }

type app struct {
	ctrl    *game.Controller
	gallery gallery.Store
	in      *bufio.Scanner
	out     io.Writer
	name    string
	persona string
	share   string
}

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var (
		serverURL    = flag.String("server", cfg.ServerURL, "Game server URL")
		name         = flag.String("name", "", "Your name in online games (random if empty)")
		localGallery = flag.String("gallery", "", "Keep finished trips in this file instead of on the server")
		verbose      = flag.Bool("verbose", false, "Log requests and state changes")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	backend := client.New(*serverURL)
	var trips gallery.Store = backend
	if *localGallery != "" {
		trips = gallery.NewFileStore(*localGallery)
	}
	var signals game.Signals = game.NopSignals{}
	if cfg.SoundEnabled {
		signals = bell{w: os.Stdout}
	}

	ctrl := game.NewController(game.Deps{
		Services:  backend,
		Authority: backend,
		Trips:     trips,
		Signals:   signals,
	}, game.Settings{
		TurnDuration: cfg.TurnDuration,
		PollInterval: cfg.PollInterval,
	})
	defer ctrl.Close()

	a := &app{
		ctrl:    ctrl,
		gallery: trips,
		in:      bufio.NewScanner(os.Stdin),
		out:     os.Stdout,
		name:    *name,
		persona: game.DefaultPersona,
		share:   cfg.ServerURL,
	}
	fmt.Fprintf(a.out, "Memory Trip, playing against %s\n\n%s\n", *serverURL, usage)
	a.run(context.Background())
}

func (a *app) run(ctx context.Context) {
	a.render()
	for {
		fmt.Fprint(a.out, "> ")
		if !a.in.Scan() {
			return
		}
		line := strings.TrimSpace(a.in.Text())
		if line == "/quit" {
			return
		}
		if err := a.handle(ctx, line); err != nil {
			fmt.Fprintf(a.out, "! %s\n", err)
		}
		a.render()
	}
}

func (a *app) handle(ctx context.Context, line string) error {
	if line == "" {
		return nil
	}
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/help":
		fmt.Fprint(a.out, usage)
		return nil
	case "/local":
		modeName, destination, _ := strings.Cut(arg, " ")
		mode, ok := modes[strings.ToLower(modeName)]
		if !ok {
			return fmt.Errorf("unknown mode %q", modeName)
		}
		fmt.Fprintln(a.out, "Painting the scene...")
		return a.ctrl.StartLocal(ctx, destination, mode, a.persona)
	case "/persona":
		if arg == "" || arg == game.CustomPersona {
			fmt.Fprintf(a.out, "Personas: %s, or any name you like\n", strings.Join(game.Personas[:len(game.Personas)-1], ", "))
			return nil
		}
		a.persona = arg
		return nil
	case "/create":
		fmt.Fprintln(a.out, "Painting the scene...")
		return a.ctrl.CreateOnline(ctx, arg, a.name)
	case "/join":
		return a.ctrl.JoinOnline(ctx, arg, a.name)
	case "/start":
		return a.ctrl.StartOnline(ctx)
	case "/turn":
		return a.turn(ctx)
	case "/retry":
		return a.ctrl.RetryAITurn(ctx)
	case "/finish":
		return a.ctrl.FinishTrip()
	case "/image":
		return a.saveImage(arg)
	case "/gallery":
		return a.showGallery(ctx)
	case "/dismiss":
		a.ctrl.DismissError()
		return nil
	case "/reset":
		a.ctrl.Reset()
		return nil
	}
	return fmt.Errorf("unknown command %q, try /help", cmd)
}

// turn asks for the recalled items first, one per line, then the new item.
// Typing ? while recalling asks for a hint.
func (a *app) turn(ctx context.Context) error {
	v := a.ctrl.Snapshot()
	if v.State != game.StateGame || v.Session == nil {
		return game.ErrInvalidState
	}
	if !v.MyTurn {
		return game.ErrNotYourTurn
	}

	var recalled []string
	if n := len(v.Session.Items); n > 0 && v.Session.GameMode != game.ModeSolo {
		fmt.Fprintf(a.out, "Recall all %d items in order, one per line (? for a hint):\n", n)
		for len(recalled) < n {
			fmt.Fprintf(a.out, "%d. ", len(recalled)+1)
			if !a.in.Scan() {
				return io.EOF
			}
			line := strings.TrimSpace(a.in.Text())
			if line == "?" {
				hint, err := a.ctrl.RequestHint(strings.Join(recalled, "\n"))
				if err != nil {
					fmt.Fprintf(a.out, "! %s\n", err)
				} else {
					fmt.Fprintln(a.out, hint)
				}
				continue
			}
			if line != "" {
				recalled = append(recalled, line)
			}
		}
	}

	fmt.Fprint(a.out, "New item: ")
	if !a.in.Scan() {
		return io.EOF
	}
	fmt.Fprintln(a.out, "Checking and painting...")
	return a.ctrl.SubmitTurn(ctx, strings.Join(recalled, "\n"), a.in.Text())
}

func (a *app) saveImage(path string) error {
	if path == "" {
		return errors.New("usage: /image FILE")
	}
	v := a.ctrl.Snapshot()
	if v.Session == nil || v.Session.CurrentImage == "" {
		return errors.New("there is no scene yet")
	}
	data, err := base64.StdEncoding.DecodeString(v.Session.CurrentImage)
	if err != nil {
		return fmt.Errorf("decode scene: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Saved %s (%s)\n", path, v.Session.MimeType)
	return nil
}

func (a *app) showGallery(ctx context.Context) error {
	if err := a.ctrl.ShowGallery(); err != nil {
		return err
	}
	trips, err := a.gallery.List(ctx)
	if err != nil {
		return fmt.Errorf("load the gallery: %w", err)
	}
	if len(trips) == 0 {
		fmt.Fprintln(a.out, "No trips yet. Finish a game to fill the gallery.")
	}
	for _, t := range trips {
		fmt.Fprintf(a.out, "\n%s  %s\n  %s\n  %s\n", t.CreatedAt.Local().Format("2006-01-02 15:04"), t.Location, strings.Join(t.Items, ", "), t.Summary)
	}
	fmt.Fprintln(a.out, "\n/reset to go back")
	return nil
}

func (a *app) render() {
	v := a.ctrl.Snapshot()
	w := a.out
	fmt.Fprintln(w)
	switch v.State {
	case game.StateStart:
		fmt.Fprintln(w, "Where to? /local, /create or /join")
	case game.StateLobby:
		s := v.Session
		fmt.Fprintf(w, "Lobby %s, trip to %s\n", s.GameCode, s.BasePrompt)
		fmt.Fprintf(w, "Share: %s\n", game.ShareLink(a.share, s.GameCode))
		for _, p := range s.Players {
			marker := ""
			if p.ID == s.HostID {
				marker = " (host)"
			}
			if p.ID == v.PlayerID {
				marker += " (you)"
			}
			fmt.Fprintf(w, "  %s%s\n", p.Name, marker)
		}
		if s.HostID == v.PlayerID {
			fmt.Fprintf(w, "/start once at least %d players are here\n", game.MinOnlinePlayers)
		} else {
			fmt.Fprintln(w, "Waiting for the host to start...")
		}
	case game.StateGame:
		s := v.Session
		fmt.Fprintf(w, "%s, trip to %s, %d items packed\n", v.TurnTitle, s.BasePrompt, len(s.Items))
		if n := len(s.Items); n > 0 {
			last := s.Items[n-1]
			fmt.Fprintf(w, "Just added: %s (%s)\n", last.Text, a.addedBy(s, last.AddedBy))
		}
		if s.TurnEndsAt != nil {
			fmt.Fprintf(w, "%ds left\n", v.SecondsLeft)
		}
		switch {
		case v.AIPending:
			fmt.Fprintln(w, "The AI could not take its turn. /retry")
		case v.MyTurn && s.GameMode == game.ModeSolo:
			fmt.Fprintln(w, "/turn to add an item, /finish to end the trip")
		case v.MyTurn:
			fmt.Fprintln(w, "/turn")
		}
	case game.StateGameOver:
		s := v.Session
		fmt.Fprintf(w, "%s\n", v.GameOverReason)
		if winner := game.WinnerText(s); winner != "" {
			fmt.Fprintln(w, winner)
		}
		fmt.Fprintf(w, "Your trip to %s:\n", s.BasePrompt)
		for i, it := range s.Items {
			fmt.Fprintf(w, "  %d. %s (%s)\n", i+1, it.Text, a.addedBy(s, it.AddedBy))
		}
		if v.SummaryLoading {
			fmt.Fprintln(w, "Writing the travel journal... (enter to refresh)")
		} else {
			fmt.Fprintf(w, "\n%s\n", v.Summary)
		}
		fmt.Fprintln(w, "/reset to play again")
	case game.StateGallery:
		fmt.Fprintln(w, "Gallery")
	}
	if v.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", v.Error)
	}
}

func (a *app) addedBy(s *game.GameSession, by game.AddedBy) string {
	if s.GameMode == game.ModeSinglePlayer && by == game.Player1 {
		return "you"
	}
	return by.Label()
}
