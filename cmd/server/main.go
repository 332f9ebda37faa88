package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/oggyb/muzz-matchmaking/internal/app"
	"github.com/oggyb/muzz-matchmaking/internal/cache"
	"github.com/oggyb/muzz-matchmaking/internal/config"
	"github.com/oggyb/muzz-matchmaking/internal/db"
	"github.com/oggyb/muzz-matchmaking/internal/jobs"
	"github.com/oggyb/muzz-matchmaking/internal/logger"
	"github.com/oggyb/muzz-matchmaking/internal/server"
	"github.com/oggyb/muzz-matchmaking/internal/service/introductions"
	"github.com/oggyb/muzz-matchmaking/internal/service/matches"
	"github.com/oggyb/muzz-matchmaking/internal/service/matchmaking"
	"github.com/oggyb/muzz-matchmaking/internal/service/questionnaire"
)

func main() {
	// .env is optional; real environment wins
	_ = godotenv.Load()
	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Init DB
	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		return
	}

	// Init Redis
	redisCache := cache.NewRedisCache(cfg)
	if err := redisCache.Ping(ctx); err != nil {
		log.Error("failed to connect to redis", "err", err)
		return
	}
	defer redisCache.Close()

	appCtx := app.New(database, redisCache, log, cfg)

	if cfg.App.ENV == "development" {
		if err := db.SeedTestData(database); err != nil {
			log.Error("failed to seed", "err", err)
		}
	}

	catalog := questionnaire.NewQuestionnaireService(appCtx)
	intros := introductions.NewIntroductionsService(appCtx, introductions.WithCatalog(catalog))
	svcs := server.Services{
		Matchmaking:   matchmaking.NewMatchmakingService(appCtx),
		Introductions: intros,
		Questionnaire: catalog,
		Matches:       matches.NewMatchesService(appCtx),
	}

	if cfg.Jobs.Enabled {
		job, err := jobs.NewIntroductionsJob(appCtx, intros)
		if err != nil {
			log.Error("failed to create introductions job", "err", err)
			return
		}
		if err := job.Start(ctx); err != nil {
			log.Error("failed to start introductions job", "err", err)
			return
		}
		defer func() { _ = job.Stop() }()
	}

	registrars := []server.Registrar{
		matchmaking.NewRegistrar(svcs.Matchmaking),
		introductions.NewRegistrar(svcs.Introductions),
		questionnaire.NewRegistrar(svcs.Questionnaire),
		matches.NewRegistrar(svcs.Matches),
	}

	errCh := make(chan error, 2)

	grpcServer, grpcAddr, grpcDone, err := server.StartGRPCServer(cfg, log, registrars...)
	if err != nil {
		log.Error("failed to start gRPC server", "err", err)
		return
	}
	log.Info("started gRPC server", "addr", grpcAddr.String())
	go func() {
		if err := <-grpcDone; err != nil {
			errCh <- err
		}
	}()

	httpServer := server.NewHTTPServer(cfg, log, svcs)
	go func() {
		log.Info("starting HTTP server", "addr", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		log.Error("server stopped", "err", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to shut down HTTP server", "err", err)
	}
	grpcServer.GracefulStop()
	log.Info("servers stopped")
}
