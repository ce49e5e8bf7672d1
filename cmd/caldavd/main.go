package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hearthdav/caldavd/internal/acl"
	"github.com/hearthdav/caldavd/internal/auth"
	"github.com/hearthdav/caldavd/internal/config"
	"github.com/hearthdav/caldavd/internal/dav"
	"github.com/hearthdav/caldavd/internal/httpglue"
	"github.com/hearthdav/caldavd/internal/logging"
	"github.com/hearthdav/caldavd/internal/metrics"
	"github.com/hearthdav/caldavd/internal/push"
	"github.com/hearthdav/caldavd/internal/store"
	"github.com/hearthdav/caldavd/internal/syncengine"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.LogLevel)

	s := store.NewMemoryStore()
	aclProv := acl.NewOwnershipACL()
	authn := auth.NewAuthenticator(s, cfg.Auth, logger)
	dispatcher := push.NewDispatcher(s, cfg.Push, logger, metrics.PushDropCounter{})
	sync := syncengine.New(s, dispatcher)

	handlers := dav.NewHandlers(s, aclProv, authn, sync, cfg.HTTP, logger)
	router := httpglue.NewRouter(cfg, s, handlers, logger)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server stopped with error")
		}
	}()
	logger.Info().Msgf("listening on %s", cfg.HTTP.Addr)

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
	logger.Info().Msg("bye")
}
