package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/kiliankoe/memorytrip/internal/ai"
)

const defaultSystemPrompt = "You are a concise, imaginative assistant for a travel memory game. Answer briefly."

var (
	_ ai.Provider      = (*Client)(nil)
	_ ai.ImageProvider = (*Client)(nil)
)

type Client struct {
	APIKey string
	api    *goopenai.Client
}

func New(apiKey, baseURL string) *Client {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		baseURL = strings.TrimRight(baseURL, "/")
		if !strings.HasSuffix(baseURL, "/v1") {
			baseURL += "/v1"
		}
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: 90 * time.Second}
	return &Client{APIKey: apiKey, api: goopenai.NewClientWithConfig(cfg)}
}

func (c *Client) Complete(ctx context.Context, model string, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, model, "", prompt)
}

func (c *Client) CompleteWithSystem(ctx context.Context, model string, systemPrompt string, prompt string) (string, error) {
	if c.APIKey == "" {
		return "", errors.New("missing OPENAI_API_KEY")
	}
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}
	resp, err := c.api.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.8,
		MaxTokens:   400,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ai.ErrEmptyResponse
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (c *Client) GenerateImage(ctx context.Context, model string, prompt string) (ai.Image, error) {
	if c.APIKey == "" {
		return ai.Image{}, errors.New("missing OPENAI_API_KEY")
	}
	resp, err := c.api.CreateImage(ctx, goopenai.ImageRequest{
		Prompt:         prompt,
		Model:          model,
		N:              1,
		Size:           goopenai.CreateImageSize1024x1024,
		ResponseFormat: goopenai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return ai.Image{}, fmt.Errorf("openai image: %w", err)
	}
	return decodeImage(resp)
}

// EditImage sends src to the edits endpoint. The client library only uploads
// from files, so the image is staged in a temp file first.
func (c *Client) EditImage(ctx context.Context, model string, src ai.Image, prompt string) (ai.Image, error) {
	if c.APIKey == "" {
		return ai.Image{}, errors.New("missing OPENAI_API_KEY")
	}
	f, err := os.CreateTemp("", "memorytrip-*"+extension(src.MimeType))
	if err != nil {
		return ai.Image{}, fmt.Errorf("stage image: %w", err)
	}
	defer os.Remove(f.Name())
	defer f.Close()
	if _, err := f.Write(src.Data); err != nil {
		return ai.Image{}, fmt.Errorf("stage image: %w", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return ai.Image{}, fmt.Errorf("stage image: %w", err)
	}

	resp, err := c.api.CreateEditImage(ctx, goopenai.ImageEditRequest{
		Image:          f,
		Prompt:         prompt,
		Model:          model,
		N:              1,
		Size:           goopenai.CreateImageSize1024x1024,
		ResponseFormat: goopenai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return ai.Image{}, fmt.Errorf("openai image edit: %w", err)
	}
	return decodeImage(resp)
}

func decodeImage(resp goopenai.ImageResponse) (ai.Image, error) {
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return ai.Image{}, ai.ErrEmptyResponse
	}
	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return ai.Image{}, fmt.Errorf("decode image: %w", err)
	}
	return ai.Image{Data: data, MimeType: http.DetectContentType(data)}, nil
}

func extension(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
