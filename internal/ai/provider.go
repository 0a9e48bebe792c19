package ai

import (
	"context"
	"errors"
)

var ErrEmptyResponse = errors.New("provider returned an empty response")

type Provider interface {
	Complete(ctx context.Context, model string, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, model string, systemPrompt string, prompt string) (string, error)
}

// ImageProvider renders and edits scenes. Image data is raw bytes; callers
// handle any transport encoding.
type ImageProvider interface {
	GenerateImage(ctx context.Context, model string, prompt string) (Image, error)
	EditImage(ctx context.Context, model string, src Image, prompt string) (Image, error)
}

type Image struct {
	Data     []byte
	MimeType string
}
