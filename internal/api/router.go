package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/Harshitk-cp/credence/internal/api/handlers"
	mw "github.com/Harshitk-cp/credence/internal/api/middleware"
	"github.com/Harshitk-cp/credence/internal/buildconfig"
	"github.com/Harshitk-cp/credence/internal/config"
	"github.com/Harshitk-cp/credence/internal/domain"
	"github.com/Harshitk-cp/credence/internal/embedding"
	"github.com/Harshitk-cp/credence/internal/llm"
	"github.com/Harshitk-cp/credence/internal/service"
	"github.com/Harshitk-cp/credence/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// App holds the router and background services for lifecycle management.
type App struct {
	Router       *chi.Mux
	Sweep        *service.SweepService
	startTime    time.Time
	requestCount atomic.Int64
	errorCount   atomic.Int64
}

func NewApp(db *pgxpool.Pool, logger *zap.Logger) *App {
	// Stores
	propStore := store.NewPropositionStore(db)

	var historyStore domain.HistoryStore
	switch backend := config.HistoryBackend(); backend {
	case "redis":
		redisStore, err := store.NewRedisHistoryStore(config.RedisURL())
		if err != nil {
			logger.Warn("redis history store unavailable, falling back to postgres", zap.Error(err))
			historyStore = store.NewHistoryStore(db)
		} else {
			logger.Info("history store initialized", zap.String("backend", "redis"))
			historyStore = redisStore
		}
	default:
		historyStore = store.NewHistoryStore(db)
	}

	// External clients via provider factory
	llmProvider := config.LLMProvider()
	embeddingProvider := config.EmbeddingProvider()

	llmClient, err := llm.NewClient(llmProvider, config.LLMAPIKey())
	if err != nil {
		logger.Warn("LLM client initialization failed, using mock", zap.String("provider", llmProvider), zap.Error(err))
		llmClient = llm.NewMockClient()
	} else {
		logger.Info("LLM client initialized", zap.String("provider", llmProvider))
	}

	embeddingClient, err := embedding.NewClient(embeddingProvider, config.EmbeddingAPIKey())
	if err != nil {
		logger.Warn("embedding client initialization failed, using mock", zap.String("provider", embeddingProvider), zap.Error(err))
		embeddingClient = embedding.NewMockClient()
	} else {
		logger.Info("embedding client initialized", zap.String("provider", embeddingProvider))
	}

	// Services
	revisionEngine := service.NewRevisionEngine(propStore, embeddingClient, llmClient, logger)
	revisionEngine.SetRetrieval(config.RevisionTopK(), config.SimilarityThreshold())
	revisionEngine.SetDecayK(config.DecayK())

	clusterEngine := service.NewClusterEngine(propStore, logger)

	sweepSvc := service.NewSweepService(propStore, clusterEngine, logger)
	sweepSvc.SetInterval(config.SweepInterval())

	extractionProcessor := service.NewExtractionProcessor(llmClient, revisionEngine, logger)
	windowCfg := service.WindowConfig{
		WindowSize:      config.WindowSize(),
		OverlapSize:     config.OverlapSize(),
		TriggerInterval: config.TriggerInterval(),
	}
	incremental := service.NewIncrementalProcessor(historyStore, service.TranscriptFormatter{}, extractionProcessor, windowCfg, logger)

	// Handlers
	propHandler := handlers.NewPropositionHandler(propStore)
	revisionHandler := handlers.NewRevisionHandler(revisionEngine)
	clusterHandler := handlers.NewClusterHandler(clusterEngine, sweepSvc)
	sourceHandler := handlers.NewSourceHandler(incremental)

	r := chi.NewRouter()

	// Initialize app with metrics tracking
	app := &App{
		Router:    r,
		Sweep:     sweepSvc,
		startTime: time.Now(),
	}

	// Metrics collector for middleware
	metricsCollector := mw.NewMetricsCollector(&app.requestCount, &app.errorCount)

	// Global middleware (order matters)
	r.Use(mw.RequestID)                                                 // Generate/extract request ID first
	r.Use(middleware.RealIP)                                            // Extract real IP
	r.Use(metricsCollector.Middleware)                                  // Collect metrics
	r.Use(mw.Logging(logger))                                           // Log all requests
	r.Use(middleware.Recoverer)                                         // Recover from panics
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst())) // Rate limiting

	// Health
	r.Get("/health", healthHandler(db))

	// Metrics
	r.Get("/metrics", app.metricsHandler())

	r.Route("/v1", func(r chi.Router) {
		// Propositions
		r.Route("/propositions", func(r chi.Router) {
			r.Post("/", propHandler.Create)
			r.Get("/", propHandler.List)
			r.Get("/{id}", propHandler.GetByID)
		})

		// Revision pipeline
		r.Post("/revise", revisionHandler.Revise)
		r.Post("/revise/batch", revisionHandler.ReviseBatch)

		// Deduplication clusters
		r.Post("/clusters", clusterHandler.FindClusters)
		r.Post("/clusters/sweep", clusterHandler.TriggerSweep)

		// Incremental source analysis
		r.Post("/sources/{id}/analyze", sourceHandler.Analyze)
	})

	return app
}

// NewRouter returns just the chi.Mux for callers that manage lifecycle themselves.
func NewRouter(db *pgxpool.Pool, logger *zap.Logger) *chi.Mux {
	return NewApp(db, logger).Router
}

func healthHandler(db *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		response := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"request_count":  app.requestCount.Load(),
			"error_count":    app.errorCount.Load(),
			"goroutines":     runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
			"build":      buildconfig.VersionInfo(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

// Ensure stores and clients satisfy interfaces at compile time.
var (
	_ domain.PropositionStore   = (*store.PropositionStore)(nil)
	_ domain.HistoryStore       = (*store.HistoryStore)(nil)
	_ domain.HistoryStore       = (*store.RedisHistoryStore)(nil)
	_ domain.EmbeddingClient    = (*embedding.OpenAIClient)(nil)
	_ domain.EmbeddingClient    = (*embedding.MockClient)(nil)
	_ domain.RelationClassifier = (*llm.OpenAIClient)(nil)
	_ domain.RelationClassifier = (*llm.AnthropicClient)(nil)
	_ domain.RelationClassifier = (*llm.MockClient)(nil)
	_ domain.Extractor          = (*llm.OpenAIClient)(nil)
	_ domain.Extractor          = (*llm.AnthropicClient)(nil)
	_ domain.Extractor          = (*llm.MockClient)(nil)
	_ domain.WindowProcessor    = (*service.ExtractionProcessor)(nil)
	_ domain.WindowFormatter    = service.TranscriptFormatter{}
	_ domain.WindowSource       = (*service.SliceSource)(nil)
)
