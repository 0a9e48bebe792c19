package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kiliankoe/memorytrip/internal/game"
)

type Config struct {
	Port            string
	ServerURL       string
	DefaultProvider string
	DefaultModel    string
	ImageModel      string
	OpenAIKey       string
	OpenAIBaseURL   string
	OllamaHost      string
	TurnDuration    time.Duration
	PollInterval    time.Duration
	RoomTTL         time.Duration
	RateLimit       int // AI requests per client and minute, 0 disables
	GalleryBackend  string
	GalleryFile     string
	RedisAddr       string
	RedisPassword   string
	ExportEnabled   bool
	ExportFile      string
	SoundEnabled    bool
	LogLevel        string
	CORSOrigins     []string
	Personas        []string
}

// File is the optional YAML overlay. Only keys present in the file replace
// values from the environment.
type File struct {
	TurnSeconds    int      `yaml:"turn_seconds"`
	PollIntervalMS int      `yaml:"poll_interval_ms"`
	RoomTTLMinutes int      `yaml:"room_ttl_minutes"`
	DefaultModel   string   `yaml:"default_model"`
	ImageModel     string   `yaml:"image_model"`
	CORSOrigins    []string `yaml:"cors_origins"`
	Personas       []string `yaml:"personas"`
}

func FromEnv() Config {
	c := Config{}
	c.Port = getenv("PORT", "8080")
	c.ServerURL = getenv("SERVER_URL", "http://localhost:8080")
	c.DefaultProvider = strings.ToLower(getenv("DEFAULT_PROVIDER", "openai"))
	c.DefaultModel = getenv("DEFAULT_MODEL", "gpt-4o-mini")
	c.ImageModel = getenv("IMAGE_MODEL", "dall-e-2")
	c.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	c.OpenAIBaseURL = os.Getenv("OPENAI_BASE_URL")
	c.OllamaHost = getenv("OLLAMA_HOST", "http://localhost:11434")
	c.TurnDuration = time.Duration(getenvInt("TURN_SECONDS", 60)) * time.Second
	c.PollInterval = time.Duration(getenvInt("POLL_INTERVAL_MS", 3000)) * time.Millisecond
	c.RoomTTL = time.Duration(getenvInt("ROOM_TTL_MINUTES", 360)) * time.Minute
	c.RateLimit = getenvInt("RATE_LIMIT_PER_MINUTE", 30)
	c.GalleryBackend = strings.ToLower(getenv("GALLERY_BACKEND", "file"))
	c.GalleryFile = getenv("GALLERY_FILE", "./memorytrip-gallery.json")
	c.RedisAddr = getenv("REDIS_ADDR", "localhost:6379")
	c.RedisPassword = os.Getenv("REDIS_PASSWORD")
	c.ExportEnabled = getenv("EXPORT_ENABLED", "true") == "true"
	c.ExportFile = getenv("EXPORT_FILE", "./memorytrip-journal.txt")
	c.SoundEnabled = getenv("SOUND_ENABLED", "true") == "true"
	c.LogLevel = getenv("LOG_LEVEL", "info")
	c.CORSOrigins = splitList(getenv("CORS_ORIGINS", "*"))
	c.Personas = append([]string(nil), game.Personas...)
	return c
}

// Load reads the environment and applies the YAML file at path, if any.
func Load(path string) (Config, error) {
	c := FromEnv()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("failed to read config file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return c, fmt.Errorf("failed to parse config: %w", err)
	}
	c.apply(f)
	return c, nil
}

func (c *Config) apply(f File) {
	if f.TurnSeconds > 0 {
		c.TurnDuration = time.Duration(f.TurnSeconds) * time.Second
	}
	if f.PollIntervalMS > 0 {
		c.PollInterval = time.Duration(f.PollIntervalMS) * time.Millisecond
	}
	if f.RoomTTLMinutes > 0 {
		c.RoomTTL = time.Duration(f.RoomTTLMinutes) * time.Minute
	}
	if f.DefaultModel != "" {
		c.DefaultModel = f.DefaultModel
	}
	if f.ImageModel != "" {
		c.ImageModel = f.ImageModel
	}
	if len(f.CORSOrigins) > 0 {
		c.CORSOrigins = f.CORSOrigins
	}
	if len(f.Personas) > 0 {
		c.Personas = withCustom(f.Personas)
	}
}

// withCustom makes sure the free text option stays last.
func withCustom(personas []string) []string {
	out := make([]string, 0, len(personas)+1)
	for _, p := range personas {
		if p = strings.TrimSpace(p); p != "" && p != game.CustomPersona {
			out = append(out, p)
		}
	}
	return append(out, game.CustomPersona)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
