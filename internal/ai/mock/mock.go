package mock

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"strings"

	"github.com/kiliankoe/memorytrip/internal/ai"
)

var (
	_ ai.Provider      = (*Provider)(nil)
	_ ai.ImageProvider = (*Provider)(nil)
)

var ideas = []string{
	"a rubber duck",
	"a tiny violin",
	"a jar of pickles",
	"a glowing lantern",
	"a striped umbrella",
	"a paper crane",
	"a brass compass",
	"a sleepy cat",
}

// Provider answers without any backend so the game can be played offline.
// Judgement prompts are always answered negatively; callers decide exact
// matches themselves.
type Provider struct{}

func New() *Provider {
	return &Provider{}
}

func (p *Provider) Complete(ctx context.Context, model string, prompt string) (string, error) {
	return p.CompleteWithSystem(ctx, model, "", prompt)
}

func (p *Provider) CompleteWithSystem(ctx context.Context, model string, systemPrompt string, prompt string) (string, error) {
	lower := strings.ToLower(systemPrompt + " " + prompt)
	switch {
	case strings.Contains(lower, "json"):
		return `{"correct": false}`, nil
	case strings.Contains(lower, "journal"):
		return "What a trip! Every corner held a surprise, and the bags came home heavier than they left.", nil
	default:
		return ideas[hash(prompt)%uint32(len(ideas))], nil
	}
}

func (p *Provider) GenerateImage(ctx context.Context, model string, prompt string) (ai.Image, error) {
	return render(prompt)
}

func (p *Provider) EditImage(ctx context.Context, model string, src ai.Image, prompt string) (ai.Image, error) {
	return render(fmt.Sprintf("%x/%s", hash(string(src.Data)), prompt))
}

// render paints a small swatch whose colour depends on the prompt.
func render(prompt string) (ai.Image, error) {
	h := hash(prompt)
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	c := color.RGBA{R: uint8(h), G: uint8(h >> 8), B: uint8(h >> 16), A: 0xff}
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return ai.Image{}, err
	}
	return ai.Image{Data: buf.Bytes(), MimeType: "image/png"}, nil
}

func hash(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}
