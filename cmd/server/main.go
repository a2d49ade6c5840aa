package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nchirkov/relay/internal/adapters/auth"
	router "github.com/nchirkov/relay/internal/adapters/http"
	"github.com/nchirkov/relay/internal/adapters/store"
	"github.com/nchirkov/relay/internal/app"
	"github.com/nchirkov/relay/internal/config"
	"github.com/nchirkov/relay/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	verifier := auth.NewJWTVerifier(cfg.Secret)
	policies := store.NewPolicyStore()
	profiles := store.NewProfileStore()
	chats := store.NewChatStore()

	hub := app.NewHub(verifier, policies, profiles, chats)
	hub.HistoryLimit = cfg.HistoryLimit
	unsubscribe := hub.Start(ctx)
	defer unsubscribe()

	if cfg.Mode == "debug" {
		// A public lobby so a fresh dev instance is joinable.
		policies.Put(&domain.ChannelPolicy{ID: "lobby", Name: "Lobby", Public: true})
	}

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Hub:      hub,
		Verifier: verifier,
		Policies: policies,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("relay server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
