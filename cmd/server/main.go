package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	ginprometheus "github.com/zsais/go-gin-prometheus"

	"github.com/kiliankoe/memorytrip/internal/ai"
	aimock "github.com/kiliankoe/memorytrip/internal/ai/mock"
	"github.com/kiliankoe/memorytrip/internal/ai/ollama"
	"github.com/kiliankoe/memorytrip/internal/ai/openai"
	"github.com/kiliankoe/memorytrip/internal/api"
	"github.com/kiliankoe/memorytrip/internal/config"
	"github.com/kiliankoe/memorytrip/internal/gallery"
	"github.com/kiliankoe/memorytrip/internal/room"
	"github.com/kiliankoe/memorytrip/internal/scene"
	"github.com/kiliankoe/memorytrip/internal/ws"
)

const version = "v1.0.0-dev"

func main() {
	var (
		showHelp    = flag.Bool("help", false, "Show help message")
		showVersion = flag.Bool("version", false, "Show version information")
		portFlag    = flag.String("port", "", "Port to listen on (overrides PORT env var)")
		configFlag  = flag.String("config", "", "Path to a YAML config file (overrides CONFIG_FILE env var)")
	)
	flag.BoolVar(showHelp, "h", false, "Show help message (shorthand)")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	flag.Parse()

	if *showHelp {
		fmt.Printf(`Memory Trip - AI illustrated memory game server

Usage: %s [options]

Options:
  -h, --help        Show this help message
  -v, --version     Show version information
  --port PORT       Port to listen on (default: 8080 or PORT env var)
  --config FILE     YAML file with turn timing, models, CORS origins and personas

Environment Variables:
  PORT                   Port to listen on (default: 8080)
  DEFAULT_PROVIDER       Text provider: "openai", "ollama" or "mock" (default: openai)
  DEFAULT_MODEL          Text model (default: gpt-4o-mini)
  IMAGE_MODEL            Image model (default: dall-e-2)
  OPENAI_API_KEY         OpenAI API key (required for images unless the provider is mock)
  OPENAI_BASE_URL        Custom OpenAI API base URL (optional)
  OLLAMA_HOST            Ollama host URL (default: http://localhost:11434)
  TURN_SECONDS           Seconds per online turn (default: 60)
  ROOM_TTL_MINUTES       Drop idle online games after this long (default: 360)
  RATE_LIMIT_PER_MINUTE  AI requests per client and minute, 0 disables (default: 30)
  GALLERY_BACKEND        "file" or "redis" (default: file)
  GALLERY_FILE           Gallery file for the file backend (default: ./memorytrip-gallery.json)
  REDIS_ADDR             Redis address for the redis backend (default: localhost:6379)
  REDIS_PASSWORD         Redis password (optional)
  EXPORT_ENABLED         Append saved trips to a text journal (default: true)
  EXPORT_FILE            Path of the journal (default: ./memorytrip-journal.txt)
  CORS_ORIGINS           Comma separated allowed origins (default: *)
  LOG_LEVEL              zerolog level (default: info)

Examples:
  %s                           Start server with default settings
  %s --port 3000               Start server on port 3000
  DEFAULT_PROVIDER=mock %s     Start an offline server with placeholder images
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0])
		return
	}

	if *showVersion {
		fmt.Printf("Memory Trip %s\n", version)
		return
	}

	_ = godotenv.Load()

	// zerolog setup (human-friendly console)
	zerolog.TimeFieldFormat = time.RFC3339
	cw := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	log.Logger = log.Output(cw)

	configPath := *configFlag
	if configPath == "" {
		configPath = os.Getenv("CONFIG_FILE")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	port := *portFlag
	if port == "" {
		port = cfg.Port
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Gin setup with custom logger (skip /socket.io noise)
	gin.SetMode(gin.ReleaseMode)
	r := newRouter()

	// Providers and scene service
	text, images := providers(cfg)
	scenes := scene.New(text, images, cfg.DefaultModel, cfg.ImageModel)

	// Rooms + socket push
	rooms := room.NewManager(scenes, scenes, clockwork.NewRealClock())
	rooms.SetTurnDuration(cfg.TurnDuration)
	sock := ws.New(rooms)
	io := sock.Mount(r)
	defer io.Close()
	rooms.OnChange(sock.Publish)

	// Gallery
	var rdb *redis.Client
	var trips gallery.Store
	switch cfg.GalleryBackend {
	case "redis":
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("redis")
		}
		defer rdb.Close()
		trips = gallery.NewRedisStore(rdb, gallery.DefaultRedisKey)
	default:
		trips = gallery.NewFileStore(cfg.GalleryFile)
	}
	if cfg.ExportEnabled {
		trips = gallery.WithExport(trips, cfg.ExportFile)
	}

	var aiLimit []gin.HandlerFunc
	if cfg.RateLimit > 0 {
		aiLimit = append(aiLimit, rateLimiter(cfg.RateLimit, rdb))
	}
	api.New(scenes, rooms, trips).Register(r, aiLimit...)

	go pruneRooms(ctx, rooms, cfg.RoomTTL)

	handler := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(r)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("port", port).Str("provider", cfg.DefaultProvider).Str("gallery", cfg.GalleryBackend).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
}

// newRouter sets up the middleware every route shares. Gin copies the
// middleware into a route when it is registered, so this runs before any
// route is added.
func newRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	p := ginprometheus.NewPrometheus("gin")
	p.ReqCntURLLabelMappingFn = func(c *gin.Context) string {
		if route := c.FullPath(); route != "" {
			return route
		}
		return "unmatched"
	}
	p.Use(r)

	// custom logger (skip /socket.io noise)
	r.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/socket.io") {
			return
		}
		status := c.Writer.Status()
		dur := time.Since(start)
		log.Info().Str("path", path).Int("status", status).Dur("dur", dur).Msg("http")
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "time": time.Now().UTC()})
	})
	return r
}

// providers picks the text and image backends. Ollama has no image API, so
// images come from OpenAI when a key is set and from the mock otherwise.
func providers(cfg config.Config) (ai.Provider, ai.ImageProvider) {
	switch cfg.DefaultProvider {
	case "mock":
		m := aimock.New()
		return m, m
	case "ollama":
		ol := ollama.New(cfg.OllamaHost)
		if cfg.OpenAIKey == "" {
			log.Warn().Msg("OPENAI_API_KEY not set, using placeholder images")
			return ol, aimock.New()
		}
		return ol, openai.New(cfg.OpenAIKey, cfg.OpenAIBaseURL)
	default:
		if cfg.OpenAIKey == "" {
			log.Warn().Msg("OPENAI_API_KEY not set, AI requests will fail")
		}
		oa := openai.New(cfg.OpenAIKey, cfg.OpenAIBaseURL)
		return oa, oa
	}
}

// rateLimiter keys on the client IP. Counters live in Redis when the gallery
// already uses it, in memory otherwise.
func rateLimiter(perMinute int, rdb *redis.Client) gin.HandlerFunc {
	var store ratelimit.Store
	if rdb != nil {
		store = ratelimit.RedisStore(&ratelimit.RedisOptions{
			RedisClient: rdb,
			Rate:        time.Minute,
			Limit:       uint(perMinute),
		})
	} else {
		store = ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
			Rate:  time.Minute,
			Limit: uint(perMinute),
		})
	}
	return ratelimit.RateLimiter(store, &ratelimit.Options{
		ErrorHandler: func(c *gin.Context, info ratelimit.Info) {
			log.Warn().Str("ip", c.ClientIP()).Str("path", c.Request.URL.Path).Time("reset", info.ResetTime).Msg("rate limited")
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many requests. Try again in " + time.Until(info.ResetTime).Round(time.Second).String() + ".",
			})
		},
		KeyFunc: func(c *gin.Context) string {
			return c.ClientIP()
		},
	})
}

func pruneRooms(ctx context.Context, rooms *room.Manager, ttl time.Duration) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			rooms.Prune(ttl)
		}
	}
}
