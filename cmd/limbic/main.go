// Package main is the entry point for the limbic CLI: a cognitive state
// engine that tracks emotion, boredom and emotionally tagged memory, and
// starts self-directed action chains when idle.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/normanking/limbic/internal/config"
	"github.com/normanking/limbic/internal/dispatch"
	"github.com/normanking/limbic/internal/engine"
	"github.com/normanking/limbic/internal/logging"
	"github.com/normanking/limbic/internal/persistence"
)

var (
	version  = "0.1.0"
	cfgPath  string
	logLevel string

	cfg       *config.Config
	log       zerolog.Logger
	logCloser io.Closer
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "limbic",
		Short: "limbic - cognitive state engine",
		Long: `limbic keeps an assistant's affective state between turns:
emotions that rise with stimuli and decay with time, boredom that grows while
idle, memories tagged with the emotion they were formed under, and action
chains it starts on its own.

Run the engine loop:   limbic run < events.jsonl
Feed one stimulus:     limbic stimulus --tags joy --length 400
Inspect the state:     limbic status`,
		SilenceUsage:       true,
		PersistentPreRunE:  initLogging,
		PersistentPostRunE: closeLogging,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ~/.limbic/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("limbic v%s\n", version)
		},
	})
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(stimulusCmd())
	rootCmd.AddCommand(activityCmd())
	rootCmd.AddCommand(recallCmd())
	rootCmd.AddCommand(interruptCmd())
	rootCmd.AddCommand(triggerCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func initLogging(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = loadConfig()
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	log, logCloser, err = logging.Setup(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	log.Debug().Str("config", configPath()).Str("command", cmd.Name()).Msg("limbic started")
	return nil
}

func closeLogging(cmd *cobra.Command, args []string) error {
	if logCloser != nil {
		return logCloser.Close()
	}
	return nil
}

func configPath() string {
	if cfgPath != "" {
		return cfgPath
	}
	path, err := config.DefaultPath()
	if err != nil {
		return ".limbic/config.yaml"
	}
	return path
}

func loadConfig() (*config.Config, error) {
	c, err := config.LoadFromPath(configPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return c, nil
}

// buildSink returns the log sink, fanned out to Redis when configured. The
// returned func releases the Redis connection.
func buildSink() (dispatch.Sink, func(), error) {
	logSink := dispatch.NewLogSink(log)
	if !cfg.Dispatch.Enabled() {
		return logSink, func() {}, nil
	}
	redisSink, err := dispatch.NewRedisSink(cfg.Dispatch)
	if err != nil {
		return nil, nil, err
	}
	log.Info().Str("addr", cfg.Dispatch.Addr).Str("stream", cfg.Dispatch.Stream).Msg("publishing chain descriptors to redis")
	return dispatch.MultiSink{logSink, redisSink}, func() { _ = redisSink.Close() }, nil
}

// session is an engine restored from the last snapshot.
type session struct {
	engine    *engine.Engine
	snapshots *persistence.Manager
	release   func()
}

// openSession builds the engine and warm-starts it from the snapshot if one
// is usable. A missing or unusable snapshot gives a cold start.
func openSession(ctx context.Context, now time.Time) (*session, error) {
	sink, release, err := buildSink()
	if err != nil {
		return nil, err
	}

	e, err := engine.New(ctx, cfg.Config, now, log, engine.WithSink(sink))
	if err != nil {
		release()
		return nil, fmt.Errorf("failed to start engine: %w", err)
	}

	snaps := persistence.NewManager(cfg.Snapshot, log)
	snap, mode, err := snaps.Load()
	switch {
	case mode == persistence.WarmStart:
		e.Restore(ctx, snap, now)
	case err != nil:
		log.Warn().Err(err).Msg("cold start")
	default:
		log.Info().Msg("cold start, no snapshot yet")
	}

	return &session{engine: e, snapshots: snaps, release: release}, nil
}

// close saves the state and releases everything.
func (s *session) close(ctx context.Context, now time.Time) error {
	saveErr := s.engine.Snapshot(ctx, s.snapshots, now)
	closeErr := s.engine.Close()
	s.release()
	if saveErr != nil {
		return fmt.Errorf("failed to save snapshot: %w", saveErr)
	}
	return closeErr
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
