package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Hussein-Mazeh/SolarDashboard/auth"
	"github.com/Hussein-Mazeh/SolarDashboard/internal/config"
	"github.com/Hussein-Mazeh/SolarDashboard/internal/db"
	"github.com/Hussein-Mazeh/SolarDashboard/internal/server"
	"github.com/Hussein-Mazeh/SolarDashboard/internal/service"
	"github.com/Hussein-Mazeh/SolarDashboard/internal/session"
)

func main() {
	var dir string
	var staticDir string
	flag.StringVar(&dir, "dir", ".", "data directory (vault, config.json, readings cache)")
	flag.StringVar(&staticDir, "static", "web", "directory with the dashboard HTML/CSS/JS")
	flag.Parse()

	// Optional .env next to the binary; real env always wins.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(dir, staticDir, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(dir, staticDir string, logger *slog.Logger) error {
	cfg, err := config.Load(dir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	readings, err := db.Open(db.Config{FilePath: filepath.Join(dir, cfg.Output.DataDir, "readings.db")})
	if err != nil {
		return fmt.Errorf("open readings cache: %w", err)
	}
	defer readings.Close()

	sessions := session.NewCache()
	vaultSvc := service.New(dir, sessions, logger)

	st, err := vaultSvc.Status("")
	if err != nil {
		return fmt.Errorf("vault status: %w", err)
	}
	logger.Info("vault status at startup",
		"state", st.State, "migration_available", st.MigrationAvailable)

	srv := server.New(server.Options{
		Vault:          vaultSvc,
		Readings:       readings,
		Logger:         logger,
		AllowedOrigins: allowedOrigins(),
		StaticDir:      staticDir,
		HIBP:           hibpClient(logger),
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("dashboard listening", "url", "http://"+addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}

	return nil
}

// hibpClient enables the passphrase breach lookup when SOLARDASH_HIBP_CHECK
// is set. Off by default; the check phones the HIBP range API on setup.
func hibpClient(logger *slog.Logger) *auth.HIBPClient {
	if os.Getenv("SOLARDASH_HIBP_CHECK") == "" {
		return nil
	}
	logger.Info("HIBP passphrase breach check enabled")
	return auth.NewHIBPClient()
}

func allowedOrigins() []string {
	v := os.Getenv("SOLARDASH_CORS_ORIGINS")
	if v == "" {
		return nil
	}
	return strings.Split(v, ",")
}
