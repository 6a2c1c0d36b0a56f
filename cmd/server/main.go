package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/questline/core/internal/app"
	"github.com/questline/core/internal/config"
	"github.com/questline/core/internal/pkg/prettylog"
	"github.com/questline/core/internal/pkg/proctitle"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	configPath := flag.String("config", config.DefaultConfigPath, "Path to YAML config file")
	flag.Parse()

	logger := newLogger()
	defer logger.Sync()
	_ = proctitle.Set("questline-core")

	application, err := app.New(logger, *configPath)
	if err != nil {
		logger.Fatal("failed to initialize app", zap.Error(err))
	}

	srv := &http.Server{
		Addr:    application.Addr(),
		Handler: application.Router(),
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), prettylog.StartField())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	application.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("forced shutdown", zap.Error(err))
	}
	logger.Info("server exited", prettylog.SuccessField())
}

// newLogger builds a console logger with the pretty encoder in development
// and a JSON production logger otherwise. APP_ENV decides before config is
// loaded so startup failures still log somewhere sensible.
func newLogger() *zap.Logger {
	env := strings.ToLower(strings.TrimSpace(os.Getenv("APP_ENV")))
	if env == "" || env == "development" || env == "dev" {
		core := zapcore.NewCore(
			prettylog.NewEncoder(prettylog.ShouldColor()),
			zapcore.Lock(os.Stderr),
			zapcore.DebugLevel,
		)
		return zap.New(core, zap.AddCaller())
	}
	logger, err := zap.NewProduction()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
