package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/JineeshTS/GanakysPortal-sub004/internal/engine"
	"github.com/JineeshTS/GanakysPortal-sub004/internal/logging"
	"github.com/JineeshTS/GanakysPortal-sub004/internal/store"
)

var rootCmd = &cobra.Command{
	Use:           "flowengine",
	Short:         "Workflow engine for approval-style business processes",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
	Long: `flowengine stores versioned process definitions, runs instances of them
against business entities and tracks the human tasks each instance creates.

Configuration is read from ~/.flowengine/settings.json and FLOWENGINE_* environment
variables; see "flowengine serve --help".`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app bundles what one-shot commands need.
type app struct {
	cfg    Config
	logger *slog.Logger
	store  *store.LibSQLStore
	engine *engine.Engine
}

// openApp loads config, opens and migrates the database and builds an engine
// with no notification sinks.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := logging.New(os.Stderr, cfg.LogLevel)

	s, err := openStore(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	eng, err := engine.New(s, engine.Config{Logger: logger})
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, store: s, engine: eng}, nil
}

func (a *app) Close() error { return a.store.Close() }

func openStore(ctx context.Context, dbPath string) (*store.LibSQLStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	s, err := store.NewLibSQLStore("file:" + dbPath)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate %s: %w", dbPath, err)
	}
	return s, nil
}
