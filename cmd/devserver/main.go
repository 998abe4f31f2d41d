package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vblinov/daybook/internal/devserver"
	"github.com/vblinov/daybook/internal/logging"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8080", "listen address")
	secret := flag.String("secret", "dev-secret", "JWT signing secret")
	username := flag.String("user", "dev", "accepted username")
	password := flag.String("pass", "dev", "accepted password")
	flag.Parse()

	log := logging.NewSlogLogger(slog.Default())
	ctx := context.Background()

	srv := devserver.NewServer([]byte(*secret), *username, *password, log)
	httpServer := &http.Server{Addr: *addr, Handler: srv.Router()}

	go func() {
		log.Info(ctx, "dev server listening", "addr", *addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "server failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "shutdown failed", "error", err)
	}
	log.Info(ctx, "dev server stopped")
}
