package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/basket/chatclaw/internal/agent"
	"github.com/basket/chatclaw/internal/bus"
	"github.com/basket/chatclaw/internal/channels"
	"github.com/basket/chatclaw/internal/config"
	"github.com/basket/chatclaw/internal/engine"
	"github.com/basket/chatclaw/internal/executor"
	otelPkg "github.com/basket/chatclaw/internal/otel"
	"github.com/basket/chatclaw/internal/persistence"
	"github.com/basket/chatclaw/internal/tasks"
	"github.com/basket/chatclaw/internal/telemetry"
)

// Version is set via ldflags at build time: -ldflags "-X main.Version=..."
var Version = "v0.3-dev"

func main() {
	loadDotEnv(".env")

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "chatclaw:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Mirror logs to stdout only when attached to a terminal; services
	// read the JSONL file.
	quiet := !isatty.IsTerminal(os.Stdout.Fd())
	logger, logCloser, err := telemetry.NewLogger(cfg.HomeDir, cfg.LogLevel, quiet)
	if err != nil {
		return err
	}
	defer logCloser.Close()
	logger.Info("chatclaw starting", "version", Version, "home", cfg.HomeDir)

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("no Telegram token: set telegram.token in config.yaml or TELEGRAM_TOKEN")
	}
	if len(cfg.Telegram.AllowedIDs) == 0 {
		return fmt.Errorf("no allowed users: set telegram.allowed_ids in config.yaml or CHATCLAW_ALLOWED_USERS")
	}

	otelProvider, err := otelPkg.Init(ctx, cfg.Otel)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelProvider.Shutdown(shutdownCtx)
	}()

	var metrics *otelPkg.Metrics
	if cfg.Otel.Enabled {
		metrics, err = otelPkg.NewMetrics(otelProvider.Meter)
		if err != nil {
			return fmt.Errorf("init metrics: %w", err)
		}
	}

	store, err := persistence.Open(filepath.Join(cfg.HomeDir, "chatclaw.db"), cfg.MaxStateBytes)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	eventBus := bus.New()
	registry := tasks.NewRegistry()

	exe := executor.New(executor.Config{
		Logger:            logger,
		Bus:               eventBus,
		Registry:          registry,
		Metrics:           metrics,
		Tracer:            otelProvider.Tracer,
		Timeout:           time.Duration(cfg.Executor.TimeoutSeconds) * time.Second,
		BackgroundTimeout: time.Duration(cfg.Executor.BackgroundTimeoutSeconds) * time.Second,
	})

	provider := cfg.LLM.Provider
	llm := agent.New(ctx, agent.Config{
		Provider: provider,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLMProviderAPIKey(provider),
		Logger:   logger,
		Tracer:   otelProvider.Tracer,
		Metrics:  metrics,
	})

	orch := engine.New(engine.Config{
		Store:         store,
		Agent:         llm,
		Executor:      exe,
		Logger:        logger,
		Tracer:        otelProvider.Tracer,
		Metrics:       metrics,
		HistoryWindow: cfg.HistoryWindow,
	})

	channel := channels.NewTelegramChannel(channels.Config{
		Token:      cfg.Telegram.Token,
		AllowedIDs: cfg.Telegram.AllowedIDs,
		Orch:       orch,
		Store:      store,
		Registry:   registry,
		Bus:        eventBus,
		Logger:     logger,
		Tracer:     otelProvider.Tracer,
		Metrics:    metrics,
	})

	if cfg.Tasks.RetentionMinutes > 0 {
		janitor, err := tasks.NewJanitor(tasks.JanitorConfig{
			Registry:  registry,
			Logger:    logger,
			Retention: time.Duration(cfg.Tasks.RetentionMinutes) * time.Minute,
		})
		if err != nil {
			return fmt.Errorf("init task janitor: %w", err)
		}
		janitor.Start(ctx)
		defer janitor.Stop()
	}

	watcher := config.NewWatcher(cfg.HomeDir, logger)
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("config watcher unavailable", "error", err)
	} else {
		go func() {
			for range watcher.Events() {
				newCfg, err := config.Load()
				if err != nil {
					logger.Error("config reload rejected; retaining previous settings", "error", err)
					continue
				}
				channel.SetAllowedIDs(newCfg.Telegram.AllowedIDs)
				// Token, provider, and storage settings stay pinned to
				// the values the process started with.
				logger.Info("config.yaml reloaded", "allowed_id_count", len(newCfg.Telegram.AllowedIDs))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- channel.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("telegram channel: %w", err)
		}
	}

	// Let in-flight background tasks write their results before exit.
	done := make(chan struct{})
	go func() {
		exe.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logger.Warn("background tasks still running at shutdown")
	}

	logger.Info("chatclaw stopped")
	return nil
}

// loadDotEnv loads KEY=VALUE pairs from path without overriding
// variables already present in the environment.
func loadDotEnv(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		eq := strings.Index(line, "=")
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		if key == "" || os.Getenv(key) != "" {
			continue
		}
		_ = os.Setenv(key, val)
	}
}
