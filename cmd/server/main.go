// Charla - conversational Spanish practice server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/charlalabs/charla/internal/annotate"
	"github.com/charlalabs/charla/internal/api"
	"github.com/charlalabs/charla/internal/chat"
	"github.com/charlalabs/charla/internal/config"
	"github.com/charlalabs/charla/internal/identity"
	"github.com/charlalabs/charla/internal/llm"
	"github.com/charlalabs/charla/internal/middleware"
	"github.com/charlalabs/charla/internal/store"
	"github.com/charlalabs/charla/internal/ws"
	"github.com/charlalabs/charla/web"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	// Reply generation runs on Gemini; the generator is required.
	if cfg.GeminiAPIKey == "" {
		slog.Error("GEMINI_API_KEY is required")
		os.Exit(1)
	}
	generator, err := llm.NewGeminiClient(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		slog.Error("Failed to initialize Gemini client", "error", err)
		os.Exit(1)
	}
	slog.Info("Generator ready", "model", cfg.GeminiModel)

	// Summarization and fact extraction run on cheaper OpenRouter models.
	// Without a key they fall back to the generator model.
	var summaryCompleter, extractCompleter llm.Completer = generator, generator
	if cfg.OpenRouterAPIKey != "" {
		sc, err := llm.NewOpenRouterClient(cfg.OpenRouterAPIKey, cfg.OpenRouterBase, cfg.SummarizerModel)
		if err != nil {
			slog.Error("Failed to initialize summarizer client", "error", err)
			os.Exit(1)
		}
		summaryCompleter = sc

		ec, err := llm.NewOpenRouterClient(cfg.OpenRouterAPIKey, cfg.OpenRouterBase, cfg.ExtractorModel)
		if err != nil {
			slog.Error("Failed to initialize extractor client", "error", err)
			os.Exit(1)
		}
		extractCompleter = ec
		slog.Info("OpenRouter clients ready", "summarizer_model", cfg.SummarizerModel, "extractor_model", cfg.ExtractorModel)
	} else {
		slog.Info("OPENROUTER_API_KEY not set, summarizer and extractor use the generator model")
	}

	// Annotation is optional: without a tokenizer sidecar, replies go out
	// unannotated.
	var annotator chat.Annotator
	if cfg.TokenizerAddr != "" {
		glossary, err := annotate.LoadGlossary(cfg.GlossaryPath)
		if err != nil {
			slog.Warn("Failed to load slang glossary, annotating without it", "error", err, "path", cfg.GlossaryPath)
			glossary = annotate.EmptyGlossary()
		} else {
			slog.Info("Slang glossary loaded", "entries", glossary.Len())
		}

		tokenizer, err := annotate.NewHTTPTokenizer(cfg.TokenizerAddr)
		if err != nil {
			slog.Error("Failed to initialize tokenizer client", "error", err)
			os.Exit(1)
		}
		annotator = annotate.NewService(tokenizer, glossary, logger)
		slog.Info("Annotator ready", "tokenizer_addr", cfg.TokenizerAddr)
	} else {
		slog.Info("Annotation disabled (TOKENIZER_ADDR not set)")
	}

	convLog, err := chat.NewConversationLogger(chat.ConversationLogConfig{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := convLog.Close(); closeErr != nil {
			slog.Error("Failed to close conversation logger", "error", closeErr)
		}
	}()

	hub := ws.NewHub(logger)

	svc, err := chat.NewService(chat.ServiceConfig{
		Repo:      repo,
		Generator: llm.WithTimeout(generator, cfg.LLMTimeout),
		Assembler: chat.NewAssembler(chat.NewLLMSummarizer(llm.WithTimeout(summaryCompleter, cfg.LLMTimeout))),
		Extractor: chat.NewExtractor(llm.WithTimeout(extractCompleter, cfg.LLMTimeout), logger),
		Annotator: annotator,
		Publisher: hub,
		ConvLog:   convLog,
		Logger:    logger,
	})
	if err != nil {
		slog.Error("Failed to initialize chat service", "error", err)
		os.Exit(1)
	}

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, svc)
	wsHandler := ws.NewHandler(repo, hub, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	// Public routes.
	api.NewHealthHandler(repo).RegisterRoutes(r)

	// Authenticated routes.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo))

		api.NewSessionHandler(baseHandler).RegisterRoutes(r)
		api.NewMessageHandler(baseHandler).RegisterRoutes(r)
		api.NewProfileHandler(baseHandler).RegisterRoutes(r)

		r.Get("/ws/sessions/{sessionID}", wsHandler.ServeHTTP)
	})

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// WebSocket streams stay open indefinitely, so no write timeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
