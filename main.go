package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"geargrid/api"
)

func main() {
	args := ParseArgs()
	if !args.Validate() {
		panic("missing arguments")
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: args.LogLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := api.NewServer(ctx, args.ServerConfig)
	if err != nil {
		panic(err)
	}
	server.Start()
	defer server.Close()

	router := gin.Default()
	server.RegisterHandlers(router)
	httpServer := &http.Server{
		Addr:    args.ServerURL,
		Handler: router,
	}
	go func() {
		slog.Info("Start HTTP server", slog.String("addr", args.ServerURL))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped unexpectedly", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Fail to shutdown HTTP server", slog.Any("error", err))
	}
}
