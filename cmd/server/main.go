package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/soaringjerry/Previsit/internal/ai"
	"github.com/soaringjerry/Previsit/internal/api"
	"github.com/soaringjerry/Previsit/internal/archive"
	"github.com/soaringjerry/Previsit/internal/config"
	dbstore "github.com/soaringjerry/Previsit/internal/db"
	"github.com/soaringjerry/Previsit/internal/logger"
	"github.com/soaringjerry/Previsit/internal/metrics"
	"github.com/soaringjerry/Previsit/internal/middleware"
	"github.com/soaringjerry/Previsit/internal/rag"
	"github.com/soaringjerry/Previsit/internal/report"
	"github.com/soaringjerry/Previsit/internal/services"
)

// Set with -ldflags "-X main.commit=... -X main.buildTime=...".
var (
	commit    string
	buildTime string
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "previsit: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Build.Commit == "" {
		cfg.Build.Commit = commit
	}
	if cfg.Build.BuildTime == "" {
		cfg.Build.BuildTime = buildTime
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pack, err := services.LoadPack(cfg.Survey.PackPath)
	if err != nil {
		return fmt.Errorf("load survey pack: %w", err)
	}
	log.Info("survey pack loaded",
		zap.String("path", cfg.Survey.PackPath),
		zap.Int("questions", len(pack.Questions)),
		zap.Strings("age_groups", services.AgeGroups(pack)),
	)

	arch := archive.New(cfg.Survey.ResponseDir)
	existed, err := indexExists(cfg.Survey.IndexDBPath)
	if err != nil {
		return err
	}
	idx, err := dbstore.Open(ctx, cfg.Survey.IndexDBPath, cfg.Survey.MigrationsDir, log)
	if err != nil {
		return fmt.Errorf("open submission index: %w", err)
	}
	defer func() {
		if cerr := idx.Close(); cerr != nil {
			log.Warn("close submission index", zap.Error(cerr))
		}
	}()
	if _, err := ReindexIfNeeded(ctx, existed, arch, idx, log); err != nil {
		return err
	}

	m := metrics.NewCollector()

	aiClient := ai.New(ai.Config{
		APIKey:         cfg.AI.APIKey,
		BaseURL:        cfg.AI.BaseURL,
		Model:          cfg.AI.Model,
		EmbeddingModel: cfg.AI.EmbeddingModel,
	}, nil)
	aiClient.OnStateChange(func(name string, from, to gobreaker.State) {
		log.Warn("ai circuit breaker state changed", zap.String("endpoint", name), zap.String("from", from.String()), zap.String("to", to.String()))
		m.AdvisorBreakerState.WithLabelValues(name).Set(float64(to))
	})

	var advisor services.Advisor
	var chat *services.ChatService
	if aiClient.Enabled() {
		advisor = services.NewModelAdvisor(aiClient)
		retriever := api.NewDeferredRetriever()
		go loadDocuments(ctx, aiClient, rag.Options{
			DocsDir:      cfg.RAG.DocsDir,
			IndexDir:     cfg.RAG.IndexDir,
			Model:        cfg.AI.EmbeddingModel,
			ChunkSize:    cfg.RAG.ChunkSize,
			ChunkOverlap: cfg.RAG.ChunkOverlap,
		}, retriever, log)
		chat = services.NewChatService(aiClient, retriever, 2*cfg.AI.Timeout, log)
	} else {
		log.Info("OPENAI_API_KEY not set, AI feedback, summary and chat are disabled")
	}
	advisorSvc := services.NewAdvisorService(advisor, cfg.AI.Timeout, log)

	submissions := services.NewSubmissionService(arch, api.NewSubmissionIndex(idx), advisorSvc, log)
	submissions.Observe(func(outcome string) {
		m.SubmissionsTotal.WithLabelValues(outcome).Inc()
	})

	clinician, err := services.NewClinician(cfg.Auth.ClinicianEmail, cfg.Auth.ClinicianPassword)
	if err != nil {
		return fmt.Errorf("hash clinician password: %w", err)
	}
	authn := middleware.NewAuthenticator(cfg.Auth.JWTSecret)
	var signer services.TokenSigner
	if cfg.Auth.JWTSecret != "" {
		signer = authn.SignToken
	}
	auth := services.NewAuthService(clinician, signer, cfg.Auth.TokenTTL)
	if !auth.Enabled() {
		log.Info("clinician login disabled")
	}

	renderer, err := report.New(cfg.Report.FontPath)
	if err != nil {
		return err
	}
	reader := api.NewArchiveReader(idx, arch)

	store := api.NewStore(cfg.Session.TTL)
	rt := api.NewRouter(api.Options{
		Store:          store,
		Survey:         services.NewSurveyService(pack, store, advisorSvc, submissions, chat, log),
		Auth:           auth,
		Export:         services.NewExportService(renderer, reader),
		Analytics:      services.NewAnalyticsService(reader),
		Authn:          authn,
		Metrics:        m,
		ChatLimiter:    middleware.NewRateLimiter(cfg.Chat.RequestsPerSecond, cfg.Chat.Burst),
		Log:            log,
		Build:          cfg.Build,
		Ping:           idx.Ping,
		StaticDir:      cfg.Server.StaticDir,
		DevFrontendURL: cfg.Server.DevFrontendURL,
		CORSOrigins:    cfg.Server.CORSOrigins,
	})
	go rt.RunJanitor(ctx, time.Minute)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           rt.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("previsit server listening", zap.String("addr", cfg.Server.Addr), zap.String("commit", cfg.Build.Commit))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

// loadDocuments builds the document index off the startup path and attaches
// it to retriever when done. Until then, or on failure, chat answers from
// the model alone.
func loadDocuments(ctx context.Context, embedder rag.Embedder, opts rag.Options, retriever *api.DeferredRetriever, log *zap.Logger) {
	index, err := rag.LoadOrBuild(ctx, embedder, opts, log)
	if err != nil {
		log.Warn("document index unavailable, chat answers from the model only", zap.Error(err))
		return
	}
	retriever.Ready(index)
}
