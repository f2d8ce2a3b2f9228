package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/voslund/vigil/internal/agent"
	"github.com/voslund/vigil/internal/config"
	"github.com/voslund/vigil/internal/dashboard"
	"github.com/voslund/vigil/internal/memory"
	"github.com/voslund/vigil/internal/model"
	"github.com/voslund/vigil/internal/models"
	"github.com/voslund/vigil/internal/store"
)

var (
	configPath string
	debugLogs  bool
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the vigil daemon",
	Long:  `Starts the agent loop and the dashboard HTTP API. Runs until interrupted.`,
	RunE:  runDaemon,
}

func init() {
	daemonCmd.Flags().StringVar(&configPath, "config", "", "Path to config file (default: vigil.yaml on the search path)")
	daemonCmd.Flags().BoolVar(&debugLogs, "debug", false, "Enable debug logging")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	// .env is optional; real env vars win either way.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := newLogger(debugLogs)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	s, err := store.New(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer s.Close()

	mem, err := memory.NewManager(memory.Config{
		Path:      cfg.Memory.Path,
		MaxTokens: cfg.Memory.MaxTokens,
		Structure: cfg.Memory.Structure,
	}, logger.Named("memory"))
	if err != nil {
		return err
	}

	client, err := newModelClient(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	iface := model.New(client, model.Config{
		AgentName:         cfg.Agent.Name,
		MaxPromptTokens:   cfg.Model.MaxPromptTokens,
		MaxResponseTokens: cfg.Model.MaxResponseTokens,
	}, logger.Named("model"))

	var tuner agent.TuneRunner
	var tuneEvery time.Duration
	if ft := cfg.Model.FineTuning; ft.Enabled {
		dataPath := ft.DataPath
		if dataPath == "" {
			dataPath = filepath.Join(filepath.Dir(cfg.Store.Path), "finetune_data.jsonl")
		}
		tuner = model.NewFineTuner(client, s, dataPath, ft.ExamplesToKeep, logger.Named("finetune"))
		tuneEvery = ft.Interval
	}

	sched, err := agent.New(agent.Options{
		Agent:         cfg.Agent,
		FineTuneEvery: tuneEvery,
		SearchEnabled: cfg.Model.Search.Enabled,
		Memory:        mem,
		Model:         iface,
		Tuner:         tuner,
		Store:         s,
		Logger:        logger.Named("agent"),
	})
	if err != nil {
		return err
	}

	info := models.AgentInfo{
		Name:      cfg.Agent.Name,
		Goal:      cfg.Agent.Goal,
		Model:     iface.ModelID(),
		StartTime: time.Now(),
	}
	server := dashboard.NewServer(s, mem, info, cfg.Server.Listen, cfg.Server.AllowedOrigins, logger.Named("dashboard"))

	sched.Start()
	defer sched.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		err := server.Start()
		if err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	logger.Info("daemon started",
		zap.String("agent", cfg.Agent.Name),
		zap.String("model", iface.ModelID()),
		zap.String("listen", cfg.Server.Listen))

	var runErr error
	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", zap.Stringer("signal", sig))
	case err := <-serverErr:
		if err != nil {
			logger.Error("dashboard server failed", zap.Error(err))
			runErr = err
		}
	case err := <-sched.Fatal():
		logger.Error("unrecoverable agent error", zap.Error(err))
		runErr = err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("dashboard shutdown error", zap.Error(err))
	}

	return runErr
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func newModelClient(ctx context.Context, cfg *config.Config) (model.Client, error) {
	keyEnv := cfg.APIKeyEnv()
	apiKey := os.Getenv(keyEnv)
	if apiKey == "" {
		return nil, &config.Error{Reason: keyEnv + " is not set"}
	}

	switch cfg.Model.Provider {
	case "gemini":
		client, err := model.NewGeminiClient(ctx, model.GeminiConfig{
			APIKey:  apiKey,
			Model:   cfg.Model.ModelID,
			BaseURL: cfg.Model.BaseURL,
			Timeout: cfg.Model.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return model.NewOpenAIClient(model.OpenAIConfig{
			APIKey:  apiKey,
			BaseURL: cfg.Model.BaseURL,
			Model:   cfg.Model.ModelID,
			Timeout: cfg.Model.Timeout,
		}), nil
	}
}
