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

	"github.com/hibiken/asynq"

	"github.com/nurpe/rto-permits/internal/auth"
	"github.com/nurpe/rto-permits/internal/config"
	"github.com/nurpe/rto-permits/internal/db"
	"github.com/nurpe/rto-permits/internal/excel"
	httphandler "github.com/nurpe/rto-permits/internal/http"
	"github.com/nurpe/rto-permits/internal/http/middleware"
	"github.com/nurpe/rto-permits/internal/logger"
	"github.com/nurpe/rto-permits/internal/pdf"
	"github.com/nurpe/rto-permits/internal/repository"
	"github.com/nurpe/rto-permits/internal/service"
	"github.com/nurpe/rto-permits/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Environment)

	database, err := db.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}

	store := repository.NewStore(database)

	taskClient := asynq.NewClient(worker.RedisOpt(cfg.Redis))
	defer taskClient.Close()

	permitService := service.NewPermitService(store, worker.NewQueue(taskClient), excel.NewGenerator(), cfg, log)
	billService := service.NewBillService(store.Bills(), pdf.NewGenerator(cfg.Permits.OfficeName), cfg, log)

	taskServer := worker.NewServer(cfg, log)
	processor := worker.NewProcessor(billService, permitService, log)
	if err := taskServer.Start(processor.Mux()); err != nil {
		log.Fatal().Err(err).Msg("failed to start task server")
	}

	scheduler, err := worker.NewScheduler(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init scheduler")
	}
	if err := scheduler.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}

	tokenParser := auth.NewParser(cfg.Auth.AccessSecret)
	handler := httphandler.NewHandler(permitService, log)
	authMiddleware := middleware.Auth(tokenParser)
	router := httphandler.NewRouter(handler, authMiddleware, cfg.Environment, cfg.HTTP.AllowedOrigins)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	srv := &http.Server{Addr: addr, Handler: router}

	go func() {
		log.Info().Str("addr", addr).Msg("starting national permit service")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	scheduler.Shutdown()
	taskServer.Shutdown()
}
