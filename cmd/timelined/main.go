// timelined is a personal timeline assistant: it stores summaries of a user's
// emails and documents and answers questions about them with an LLM that is
// only allowed to speak from those stored, numbered sources.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"timelined/internal/config"
	"timelined/internal/engine"
	"timelined/internal/llm"
	"timelined/internal/logging"
	"timelined/internal/store"
)

var (
	cfgPath string
	debug   bool

	logger *zap.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "timelined",
	Short: "timelined - grounded timeline assistant over your stored summaries",
	Long: `timelined answers questions about your stored email and document summaries.

Every answer is grounded: the model only sees a numbered pack of your own
summaries, and every claim it makes must cite one of those numbers. Claims
that do not are dropped before you ever see them.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(debug)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		if cfg.Debug {
			logger, err = logging.New(true)
			if err != nil {
				return err
			}
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "timelined.yaml", "path to the config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// app bundles the wired collaborators behind the engine.
type app struct {
	engine  *engine.Engine
	store   *store.LocalStore
	watcher *config.Watcher
}

func (a *app) Close() {
	if a.watcher != nil {
		_ = a.watcher.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}

// resolveStores interprets the configured store path. A directory means a
// plain folder of YAML artifacts with no precomputed index: summaries are
// listed by DirStore, and the SQLite store lives alongside it for metadata
// and originals. A file path is the SQLite store outright.
func resolveStores(storePath string) (dbPath string, dir *store.DirStore) {
	if info, err := os.Stat(storePath); err == nil && info.IsDir() {
		return filepath.Join(storePath, "timelined.db"), store.NewDirStore(storePath)
	}
	return storePath, nil
}

// buildApp wires the stores, the settings watcher and the provider registry
// into an engine.
func buildApp(ctx context.Context) (*app, error) {
	dbPath, dir := resolveStores(cfg.StorePath)
	st, err := store.NewLocalStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	var artifacts store.ArtifactStore = st
	if dir != nil {
		logger.Info("store path is a directory, using the YAML listing fallback",
			zap.String("root", cfg.StorePath))
		artifacts = dir
	}

	watcher, err := config.NewWatcher(cfg.SettingsPath, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	callTimeout := 60 * time.Second
	if d, err := time.ParseDuration(cfg.CallTimeout); err == nil && d > 0 {
		callTimeout = d
	}

	clients := []llm.Client{llm.NewStubClient()}
	if gemini, err := llm.NewGeminiClient(ctx, os.Getenv("GEMINI_API_KEY")); err == nil {
		clients = append(clients, gemini)
	} else {
		logger.Debug("gemini provider unavailable", zap.Error(err))
	}

	eng, err := engine.New(engine.Deps{
		Artifacts: artifacts,
		Metadata:  st,
		Originals: st,
		Gateway:   llm.NewRegistry(callTimeout, clients...),
		Settings:  watcher,
		Folder:    cfg.Folder,
		Logger:    logger,
	})
	if err != nil {
		watcher.Close()
		st.Close()
		return nil, err
	}

	return &app{engine: eng, store: st, watcher: watcher}, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
