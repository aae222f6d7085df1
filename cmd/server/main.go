package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"storyforge.io/server/internal/api"
	"storyforge.io/server/internal/auth"
	"storyforge.io/server/internal/config"
	"storyforge.io/server/internal/core"
	"storyforge.io/server/internal/logging"
	"storyforge.io/server/internal/store"
)

func main() {
	reindexFlag := flag.Bool("reindex", false, "Rebuild the similarity index from stored stories and messages, then exit")
	issueToken := flag.Int64("issue-token", 0, "Print a signed token for the given user id, then exit")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogEncoding)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if *issueToken > 0 {
		token, err := auth.GenerateJWT(cfg.JWTSecret, *issueToken)
		if err != nil {
			logger.Fatal("Failed to sign token", zap.Error(err))
		}
		fmt.Println(token)
		return
	}

	dbStore, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbStore.Close()

	llmService, err := core.NewLLMService(context.Background(), cfg.GeminiAPIKey, core.LLMConfig{
		ChatModel:      cfg.ChatModel,
		EmbeddingModel: cfg.EmbeddingModel,
		Temperature:    cfg.Temperature,
		MaxRetries:     cfg.MaxRetries,
		RetryDelay:     cfg.RetryDelay,
		Timeout:        cfg.LLMTimeout,
	}, logger.Named("llm"))
	if err != nil {
		logger.Fatal("Failed to initialize LLM service", zap.Error(err))
	}
	defer llmService.Close()

	index := store.NewVectorIndex(dbStore, logger.Named("index"))
	ragService := core.NewRAGService(index, llmService, logger.Named("rag"))

	scheduler := core.NewBackgroundScheduler(cfg.ArchiveWorkers, cfg.ArchiveQueueSize, logger.Named("scheduler"))
	archiver := core.NewMemoryArchiver(dbStore, ragService, scheduler, cfg.MemoryThreshold, logger.Named("archiver"))

	if *reindexFlag {
		start := time.Now()
		stories, messages, err := reindex(context.Background(), dbStore, ragService, archiver, cfg.MemoryThreshold, logger)
		scheduler.Close()
		if err != nil {
			logger.Fatal("Reindex failed", zap.Error(err))
		}
		logger.Info("Reindex complete",
			zap.Int("stories", stories), zap.Int("messages", messages), zap.Duration("took", time.Since(start)))
		return
	}

	pipeline := core.NewGenerationPipeline(llmService, cfg.ParallelStages, logger.Named("pipeline"))
	assembler := core.NewWorldAssembler(dbStore, logger.Named("assembler"))
	storyService := core.NewStoryService(pipeline, assembler, dbStore, ragService, logger.Named("stories"))
	chatService := core.NewChatService(dbStore, llmService, ragService, archiver, core.ChatConfig{
		HistorySize:     cfg.ChatHistorySize,
		HistoryResults:  cfg.HistoryResults,
		SettingsResults: cfg.SettingsResults,
	}, logger.Named("chat"))

	apiHandler := api.NewAPIHandler(storyService, chatService, cfg.JWTSecret, logger.Named("api"))
	router := api.NewRouter(apiHandler)

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 3 * time.Minute, // world generation runs several model calls
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("Starting server", zap.String("addr", serverAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Could not listen", zap.String("addr", serverAddr), zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	// Let scheduled archival finish before the store closes.
	scheduler.Close()
	logger.Info("Server exiting gracefully")
}

// reindex re-adds every story's settings and every message that belongs to a
// complete archival window. Entries are keyed, so running it twice leaves the
// index unchanged.
func reindex(ctx context.Context, dbStore *store.SQLiteStore, memory *core.RAGService, archiver *core.MemoryArchiver, threshold int, logger *zap.Logger) (int, int, error) {
	stories, err := dbStore.ListStories(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, s := range stories {
		settings, err := dbStore.GetStory(ctx, s.ID)
		if err != nil {
			return 0, 0, fmt.Errorf("story %d: %w", s.ID, err)
		}
		if err := memory.IndexStorySettings(ctx, settings); err != nil {
			return 0, 0, fmt.Errorf("story %d: %w", s.ID, err)
		}
	}

	sessionIDs, err := dbStore.ListSessionIDs(ctx)
	if err != nil {
		return len(stories), 0, err
	}
	total := 0
	for _, id := range sessionIDs {
		count, err := dbStore.CountMessages(ctx, id)
		if err != nil {
			return len(stories), total, err
		}
		n, err := archiver.ArchiveWindow(ctx, id, 0, count-count%threshold)
		total += n
		if err != nil {
			return len(stories), total, fmt.Errorf("session %s: %w", id, err)
		}
		logger.Debug("reindexed session", zap.String("session_id", id), zap.Int("messages", n))
	}
	return len(stories), total, nil
}
