package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"neurosig/adapters/api"
	"neurosig/adapters/postgres"
	"neurosig/adapters/rng"
	"neurosig/app"
	"neurosig/domain/session"
	"neurosig/internal"
	"neurosig/internal/config"
	"neurosig/internal/engine"
	"neurosig/internal/errors"
	"neurosig/ports"
)

// initDatabase connects to PostgreSQL when DATABASE_URL is set. A missing URL
// runs the service without persistence.
func initDatabase(appConfig *config.Config, logger *internal.Logger) (*sqlx.DB, error) {
	if appConfig.Database.URL == "" {
		logger.Info("DATABASE_URL not set, running without persistence")
		return nil, nil
	}

	db, err := sqlx.Connect("postgres", appConfig.Database.URL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}
	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping database")
	}
	return db, nil
}

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	logger := internal.NewDefaultLogger()

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	db, err := initDatabase(appConfig, logger)
	if err != nil {
		log.Fatalf("database initialization failed: %v", err)
	}

	var repo ports.ResultRepository
	if db != nil {
		defer db.Close()
		pgRepo := postgres.NewResultRepository(db)
		if impl, ok := pgRepo.(*postgres.ResultRepositoryImpl); ok {
			if err := impl.EnsureSchema(context.Background()); err != nil {
				log.Fatalf("schema setup failed: %v", err)
			}
		}
		repo = pgRepo
	}

	if err := os.MkdirAll(appConfig.Paths.ExportDir, 0o755); err != nil {
		log.Fatalf("failed to create export directory: %v", err)
	}

	recorder := session.NewRecorder()
	eng := engine.New(appConfig.Analysis, recorder, rng.New(), nil, logger)
	service := app.NewAnalysisService(eng, repo, logger)
	server := api.NewServer(service, recorder, appConfig.Paths.ExportDir, logger)

	httpServer := &http.Server{
		Addr:         ":" + appConfig.Server.Port,
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting API server on :%s (session %s, seed %d)",
			appConfig.Server.Port, service.SessionID(), eng.Seed())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
