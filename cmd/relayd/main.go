package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/flightdrop/flightdrop/internal/config"
	"github.com/flightdrop/flightdrop/internal/logging"
	"github.com/flightdrop/flightdrop/internal/relay"
)

func main() {
	logging.InitServer()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(config.Options{})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	hub := relay.NewHub(cfg.MemberCap, cfg.OwnerDisconnect)
	go hub.Run()

	srv := &http.Server{
		Addr:    cfg.RelayAddr,
		Handler: relay.SetupRouter(hub),
	}

	go func() {
		log.Info().Str("addr", cfg.RelayAddr).Msg("signaling relay started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
}
