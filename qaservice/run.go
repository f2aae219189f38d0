// Package qaservice boots the Q&A HTTP service: store, search index,
// notification fan-out, and all route handlers.
package qaservice

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/askloop/askloop/server/internal/accept"
	"github.com/askloop/askloop/server/internal/api"
	"github.com/askloop/askloop/server/internal/api/recovery"
	"github.com/askloop/askloop/server/internal/auth"
	"github.com/askloop/askloop/server/internal/config"
	"github.com/askloop/askloop/server/internal/health"
	"github.com/askloop/askloop/server/internal/logger"
	"github.com/askloop/askloop/server/internal/notify"
	"github.com/askloop/askloop/server/internal/search"
	"github.com/askloop/askloop/server/internal/searchindex"
	"github.com/askloop/askloop/server/internal/services"
	"github.com/askloop/askloop/server/internal/store"
	"github.com/askloop/askloop/server/internal/store/postgres"
	"github.com/askloop/askloop/server/internal/store/sqlite"
	"github.com/askloop/askloop/server/internal/votes"
)

// Run starts the Q&A service HTTP server and blocks until shutdown or error.
func Run() error {
	log := logger.New("qa-service")

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return err
	}

	log.Info().
		Str("build_target", cfg.BuildTarget).
		Str("db_driver", cfg.DBDriver).
		Int("http_port", cfg.HTTPPort).
		Str("search_index_url", cfg.SearchIndexURL).
		Str("vectorizer", cfg.Vectorizer).
		Msg("Q&A service starting")

	// Create cancellable root context bound to SIGINT/SIGTERM
	ctx, stop := newServerContext()
	defer stop()

	st, idx, err := initDependencies(ctx, cfg, log)
	if err != nil {
		return err
	}

	// Start health checkers before routing so the health handler can
	// report aggregate status from the first request.
	svcHealth := startHealthCheckers(ctx, cfg, log, st, idx)

	router := buildRouter(st, idx, svcHealth, cfg, log)

	// Block startup until dependencies report healthy; fail fast otherwise
	if err := waitUntilHealthy(ctx, cfg, svcHealth); err != nil {
		log.Error().Stack().Err(err).Msg("startup health check failed")
		return err
	}

	server := newHTTPServer(ctx, cfg, router)
	errCh := serveHTTP(server, log, cfg)

	// Graceful shutdown on context cancel or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			log.Error().Stack().Err(err).Msg("Server forced to shutdown")
			return err
		}
		log.Info().Msg("Server exited")
		return nil
	case err := <-errCh:
		log.Error().Stack().Err(err).Msg("HTTP server failed")
		return err
	}
}

// NewStore opens the configured database driver, applies the schema and
// returns the store adapter. Shared with the index worker binary.
func NewStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store.Store, error) {
	switch cfg.DBDriver {
	case "sqlite":
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		if err := sqlite.EnsureSchema(db); err != nil {
			closeQuietly(db, log)
			return nil, fmt.Errorf("apply sqlite schema: %w", err)
		}
		log.Info().Str("path", cfg.SQLitePath).Msg("SQLite store ready")
		return sqlite.New(db), nil
	case "postgres":
		db, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres database: %w", err)
		}
		if err := postgres.EnsureSchema(db); err != nil {
			closeQuietly(db, log)
			return nil, fmt.Errorf("apply postgres schema: %w", err)
		}
		log.Info().Msg("Postgres store ready")
		return postgres.New(db), nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER: %s", cfg.DBDriver)
	}
}

// NewSearchIndex builds the Weaviate adapter and ensures the post class
// exists with the configured vectorizer.
func NewSearchIndex(ctx context.Context, cfg *config.Config, log zerolog.Logger) (searchindex.Index, error) {
	if err := searchindex.BootstrapWeaviate(ctx, cfg.SearchIndexURL, cfg.Vectorizer); err != nil {
		// The outbox worker backfills documents once the index comes up,
		// so a cold index is not fatal in dev mode.
		if !cfg.IsDevMode() {
			return nil, fmt.Errorf("bootstrap search index: %w", err)
		}
		log.Warn().Err(err).Msg("Search index bootstrap failed, continuing in dev mode")
	}
	return searchindex.NewWeaviateIndex(cfg.SearchIndexURL)
}

func initDependencies(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store.Store, searchindex.Index, error) {
	st, err := NewStore(ctx, cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Store adapter unavailable")
		return nil, nil, err
	}

	idx, err := NewSearchIndex(ctx, cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Search index adapter unavailable")
		return nil, nil, err
	}
	return st, idx, nil
}

// buildRouter wires HTTP routes to handlers. Health stays outside the
// authenticated subrouter.
func buildRouter(st store.Store, idx searchindex.Index, svcHealth *health.ServiceHealthChecker, cfg *config.Config, log zerolog.Logger) *mux.Router {
	root := mux.NewRouter()
	root.Use(recovery.Middleware)

	healthHandler := api.NewHealthHandler(svcHealth)
	root.HandleFunc("/v0/health", healthHandler.Check).Methods("GET")

	fanout := newFanout(st, cfg, log)
	ledger := votes.NewLedger(st, log)
	aggregator := votes.NewAggregator(st)
	coordinator := accept.NewCoordinator(st, fanout, log)
	searcher := search.NewSearcher(st, idx, log)

	v0 := root.PathPrefix("/v0").Subrouter()
	v0.Use(api.AuthMiddleware(auth.NewStaticAuthorizer()))

	// Questions
	questionSvc := services.NewQuestionService(st, idx, log)
	question := api.NewQuestionHandler(questionSvc)
	v0.HandleFunc("/questions", question.Create).Methods("POST")
	v0.HandleFunc("/questions", question.List).Methods("GET")
	v0.HandleFunc("/questions/{questionId}", question.Get).Methods("GET")
	v0.HandleFunc("/questions/{questionId}", question.Update).Methods("PATCH")
	v0.HandleFunc("/questions/{questionId}", question.Delete).Methods("DELETE")
	v0.HandleFunc("/tags", question.PopularTags).Methods("GET")

	// Answers and comments
	answerSvc := services.NewAnswerService(st, idx, fanout, log)
	answer := api.NewAnswerHandler(answerSvc, coordinator)
	v0.HandleFunc("/questions/{questionId}/answers", answer.Create).Methods("POST")
	v0.HandleFunc("/questions/{questionId}/accept", answer.Accept).Methods("POST")
	v0.HandleFunc("/questions/{questionId}/accept", answer.Unaccept).Methods("DELETE")
	v0.HandleFunc("/answers/{answerId}", answer.Update).Methods("PATCH")
	v0.HandleFunc("/answers/{answerId}", answer.Delete).Methods("DELETE")
	v0.HandleFunc("/answers/{answerId}/comments", answer.CreateComment).Methods("POST")
	v0.HandleFunc("/comments/{commentId}", answer.DeleteComment).Methods("DELETE")

	// Votes
	voteSvc := services.NewVoteService(ledger, aggregator)
	vote := api.NewVoteHandler(voteSvc)
	v0.HandleFunc("/votes/{targetKind}/{targetId}", vote.Cast).Methods("POST")
	v0.HandleFunc("/votes/{targetKind}/{targetId}", vote.Remove).Methods("DELETE")
	v0.HandleFunc("/votes/{targetKind}/{targetId}", vote.Get).Methods("GET")

	// Search
	searchHandler := api.NewSearchHandler(searcher)
	v0.HandleFunc("/search", searchHandler.Search).Methods("GET")
	v0.HandleFunc("/questions/{questionId}/similar", searchHandler.Similar).Methods("GET")

	// Notifications
	notificationSvc := services.NewNotificationService(st)
	notification := api.NewNotificationHandler(notificationSvc)
	v0.HandleFunc("/notifications", notification.List).Methods("GET")
	v0.HandleFunc("/notifications/counts", notification.Counts).Methods("GET")
	v0.HandleFunc("/notifications/read", notification.MarkAllRead).Methods("POST")
	v0.HandleFunc("/notifications/{notificationId}/read", notification.MarkRead).Methods("POST")
	v0.HandleFunc("/notifications/{notificationId}", notification.Delete).Methods("DELETE")

	return root
}

func newFanout(st store.Store, cfg *config.Config, log zerolog.Logger) *notify.Fanout {
	sinks := []notify.Sink{notify.NewInboxSink(st)}
	if cfg.NotifyWebhookURL != "" {
		timeout := time.Duration(cfg.NotifyTimeoutSeconds) * time.Second
		sinks = append(sinks, notify.NewWebhookSink(cfg.NotifyWebhookURL, timeout))
		log.Info().Str("url", cfg.NotifyWebhookURL).Msg("Webhook notification sink enabled")
	}
	return notify.NewFanout(log, sinks...)
}

// startHealthCheckers starts component checkers and the service-level
// aggregate.
func startHealthCheckers(ctx context.Context, cfg *config.Config, log zerolog.Logger, st store.Store, idx searchindex.Index) *health.ServiceHealthChecker {
	probeTimeout := time.Duration(cfg.HealthProbeTimeoutSeconds) * time.Second
	interval := time.Duration(cfg.HealthIntervalSeconds) * time.Second

	storeChecker := store.NewStoreHealthChecker(st, log, probeTimeout)
	go storeChecker.Start(ctx, interval)

	idxChecker := searchindex.NewIndexHealthChecker(idx, log, probeTimeout)
	go idxChecker.Start(ctx, interval)

	svcHealth := health.NewServiceHealthChecker(log, storeChecker, idxChecker)
	go svcHealth.Start(ctx, interval)
	return svcHealth
}

func newHTTPServer(ctx context.Context, cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}

func serveHTTP(server *http.Server, log zerolog.Logger, cfg *config.Config) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

// calculateStartupHealthTimeout returns the startup health timeout in
// seconds, interval*2 with a minimum of 60 seconds.
func calculateStartupHealthTimeout(healthIntervalSeconds int) int {
	timeout := healthIntervalSeconds * 2
	if timeout < 60 {
		return 60
	}
	return timeout
}

// waitUntilHealthy blocks until service health is healthy or the startup
// window expires. Checkers start unhealthy and need one probe cycle.
func waitUntilHealthy(ctx context.Context, cfg *config.Config, svcHealth *health.ServiceHealthChecker) error {
	timeoutSeconds := calculateStartupHealthTimeout(cfg.HealthIntervalSeconds)
	deadline := time.Now().Add(time.Duration(timeoutSeconds) * time.Second)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		if svcHealth.IsHealthy() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("startup aborted: dependencies not healthy within %d seconds", timeoutSeconds)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func closeQuietly(db *sql.DB, log zerolog.Logger) {
	if err := db.Close(); err != nil {
		log.Warn().Err(err).Msg("closing database failed")
	}
}

// newServerContext returns a cancellable context that is cancelled on
// SIGINT/SIGTERM.
func newServerContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
