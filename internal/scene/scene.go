package scene

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/rs/zerolog/log"

	"github.com/kiliankoe/memorytrip/internal/ai"
	"github.com/kiliankoe/memorytrip/internal/game"
	"github.com/kiliankoe/memorytrip/internal/metrics"
)

var (
	ErrBadImage     = errors.New("image is not valid base64")
	ErrEmptyPrompt  = errors.New("prompt is empty")
	ErrBadVerdict   = errors.New("could not read the memory verdict")
	ErrNoImageModel = errors.New("no image provider configured")
)

const (
	initialImagePrompt = "A vibrant, whimsical, detailed illustration of a travel destination: %s. " +
		"Wide establishing shot, storybook style, no text or lettering."
	editImagePrompt = "Add %s to this scene. Keep everything that is already in the picture " +
		"and match the existing illustration style. Do not add text."

	ideaSystemPrompt = "You are %s, playing a memory game about packing for a trip. " +
		"Every turn you add one new item to the trip. Reply with the item only: " +
		"a short noun phrase of at most five words, no quotes, no explanation."
	ideaPrompt = "The trip goes to %s. Items already packed: %s. What do you add next?"

	summarySystemPrompt = "You write short, funny travel journal entries in the first person."
	summaryPrompt       = "Write a journal entry of three to four sentences about a trip to %s " +
		"that somehow involved all of these items: %s."

	validateSystemPrompt = "You judge a memory game. Decide whether the recalled list matches the " +
		"actual list item by item, in order. Accept typos, synonyms, plural or singular and " +
		"small wording differences. Reject missing, extra or swapped items. " +
		`Answer with JSON only: {"correct": true} or {"correct": false}.`
	validatePrompt = "Actual items:\n%s\nRecalled items:\n%s"
)

var (
	_ game.Services = (*Service)(nil)
)

// Service implements the game's scene calls on top of AI providers.
type Service struct {
	text       ai.Provider
	images     ai.ImageProvider
	model      string
	imageModel string
}

func New(text ai.Provider, images ai.ImageProvider, model, imageModel string) *Service {
	return &Service{text: text, images: images, model: model, imageModel: imageModel}
}

func (s *Service) GenerateInitialImage(ctx context.Context, destination string) (game.Image, error) {
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return game.Image{}, ErrEmptyPrompt
	}
	if s.images == nil {
		return game.Image{}, ErrNoImageModel
	}
	img, err := s.images.GenerateImage(ctx, s.imageModel, fmt.Sprintf(initialImagePrompt, destination))
	metrics.AIRequest("generate_image", err)
	if err != nil {
		return game.Image{}, err
	}
	return encode(img), nil
}

func (s *Service) EditImage(ctx context.Context, current game.Image, item string) (game.Image, error) {
	item = strings.TrimSpace(item)
	if item == "" {
		return game.Image{}, ErrEmptyPrompt
	}
	if s.images == nil {
		return game.Image{}, ErrNoImageModel
	}
	data, err := base64.StdEncoding.DecodeString(current.Base64)
	if err != nil {
		return game.Image{}, fmt.Errorf("%w: %w", ErrBadImage, err)
	}
	img, err := s.images.EditImage(ctx, s.imageModel, ai.Image{Data: data, MimeType: current.MimeType}, fmt.Sprintf(editImagePrompt, item))
	metrics.AIRequest("edit_image", err)
	if err != nil {
		return game.Image{}, err
	}
	return encode(img), nil
}

func (s *Service) AIIdea(ctx context.Context, persona, location string, items []string) (string, error) {
	if persona = strings.TrimSpace(persona); persona == "" {
		persona = game.DefaultPersona
	}
	packed := "nothing yet"
	if len(items) > 0 {
		packed = strings.Join(items, ", ")
	}
	text, err := s.text.CompleteWithSystem(ctx, s.model,
		fmt.Sprintf(ideaSystemPrompt, persona),
		fmt.Sprintf(ideaPrompt, location, packed))
	metrics.AIRequest("ai_idea", err)
	if err != nil {
		return "", err
	}
	return cleanIdea(text), nil
}

func (s *Service) TripSummary(ctx context.Context, location string, items []string) (string, error) {
	text, err := s.text.CompleteWithSystem(ctx, s.model, summarySystemPrompt,
		fmt.Sprintf(summaryPrompt, location, strings.Join(items, ", ")))
	metrics.AIRequest("trip_summary", err)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// ValidateMemory accepts lists that match after normalisation without asking
// the model; anything else is judged by it.
func (s *Service) ValidateMemory(ctx context.Context, recalled, actual []string) (bool, error) {
	if len(recalled) != len(actual) {
		return false, nil
	}
	if sameItems(recalled, actual) {
		return true, nil
	}
	text, err := s.text.CompleteWithSystem(ctx, s.model, validateSystemPrompt,
		fmt.Sprintf(validatePrompt, numbered(actual), numbered(recalled)))
	metrics.AIRequest("validate_memory", err)
	if err != nil {
		return false, err
	}
	ok, err := parseVerdict(text)
	if err != nil {
		log.Warn().Str("reply", text).Msg("unreadable memory verdict")
		return false, err
	}
	return ok, nil
}

func encode(img ai.Image) game.Image {
	mime := img.MimeType
	if mime == "" {
		mime = "image/png"
	}
	return game.Image{Base64: base64.StdEncoding.EncodeToString(img.Data), MimeType: mime}
}

// cleanIdea keeps the first line of a model reply and strips decoration.
func cleanIdea(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	text = strings.TrimLeft(text, "-*• ")
	text = strings.Trim(text, "\"'` ")
	return strings.TrimRight(text, ".!")
}

func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func sameItems(a, b []string) bool {
	for i := range a {
		if normalize(a[i]) != normalize(b[i]) {
			return false
		}
	}
	return true
}

func numbered(items []string) string {
	var sb strings.Builder
	for i, it := range items {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, it))
	}
	return sb.String()
}

// parseVerdict reads {"correct": bool} from a reply, tolerating surrounding
// prose, and falls back to a plain yes or no.
func parseVerdict(text string) (bool, error) {
	if start, end := strings.IndexByte(text, '{'), strings.LastIndexByte(text, '}'); start >= 0 && end > start {
		var v struct {
			Correct *bool `json:"correct"`
		}
		if err := json.Unmarshal([]byte(text[start:end+1]), &v); err == nil && v.Correct != nil {
			return *v.Correct, nil
		}
	}
	switch word := strings.ToLower(strings.Trim(strings.TrimSpace(text), ".!\"'")); word {
	case "yes", "true", "correct":
		return true, nil
	case "no", "false", "incorrect":
		return false, nil
	}
	return false, ErrBadVerdict
}
