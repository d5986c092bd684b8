package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/limbic/internal/logging"
)

var (
	// ErrSnapshotTimeout is returned when a write outlives its deadline. The
	// write keeps going in the background and the next interval retries.
	ErrSnapshotTimeout = errors.New("persistence: snapshot timed out")

	// ErrSnapshotBusy is returned when a previous write is still running.
	ErrSnapshotBusy = errors.New("persistence: snapshot already in progress")

	// ErrSchemaMismatch is returned by Load for another schema or version.
	ErrSchemaMismatch = errors.New("persistence: snapshot schema mismatch")

	// ErrCorruptSnapshot is returned by Load when the file does not decode.
	ErrCorruptSnapshot = errors.New("persistence: corrupt snapshot")
)

// Config controls where and how often snapshots are written.
type Config struct {
	Path     string        `mapstructure:"path" yaml:"path"`
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// DefaultConfig returns the default snapshot settings.
func DefaultConfig() Config {
	return Config{
		Path:     "~/.limbic/snapshot.json",
		Interval: 5 * time.Minute,
		Timeout:  2 * time.Second,
	}
}

// Validate checks the settings.
func (c Config) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("persistence: path is required")
	}
	if c.Interval <= 0 || c.Timeout <= 0 {
		return fmt.Errorf("persistence: interval and timeout must be positive")
	}
	return nil
}

// Manager is the PersistenceManager.
type Manager struct {
	path    string
	timeout time.Duration
	log     zerolog.Logger
	busy    atomic.Bool

	writeFile func(path string, data []byte) error
}

// NewManager creates a manager for cfg.Path.
func NewManager(cfg Config, log zerolog.Logger) *Manager {
	return &Manager{
		path:      expandHome(cfg.Path),
		timeout:   cfg.Timeout,
		log:       log.With().Str("component", "persistence").Logger(),
		writeFile: atomicWrite,
	}
}

// Path returns the resolved snapshot path.
func (m *Manager) Path() string { return m.path }

// Save writes snap atomically. It returns ErrSnapshotBusy if a previous write
// has not finished and ErrSnapshotTimeout if this one misses its deadline.
// Cancellation of ctx does not cut the write short; only the timeout does.
func (m *Manager) Save(ctx context.Context, snap Snapshot) error {
	if !m.busy.CompareAndSwap(false, true) {
		m.log.Warn().Msg("snapshot skipped, previous write still running")
		return ErrSnapshotBusy
	}

	snap.Schema = SchemaName
	snap.Version = SchemaVersion
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		m.busy.Store(false)
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	saveCtx, cancel := logging.DetachContextWithTimeout(ctx, m.timeout)
	defer cancel()

	write, path := m.writeFile, m.path
	done := make(chan error, 1)
	go func() {
		defer m.busy.Store(false)
		done <- write(path, data)
	}()

	select {
	case err := <-done:
		if err != nil {
			m.log.Error().Err(err).Str("path", m.path).Msg("snapshot write failed")
			return fmt.Errorf("write snapshot: %w", err)
		}
		m.log.Debug().Str("path", m.path).Int("bytes", len(data)).Msg("snapshot saved")
		return nil
	case <-saveCtx.Done():
		m.log.Warn().Dur("timeout", m.timeout).Msg("snapshot timed out, will retry next interval")
		return ErrSnapshotTimeout
	}
}

// Load reads the snapshot. It never fails hard: when it returns ColdStart,
// a non-nil error explains why the snapshot could not be used. A file that
// does not decode is moved aside to <path>.corrupt.
func (m *Manager) Load() (Snapshot, StartMode, error) {
	data, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		m.log.Info().Str("path", m.path).Msg("no snapshot, cold start")
		return Snapshot{}, ColdStart, nil
	}
	if err != nil {
		m.log.Warn().Err(err).Str("path", m.path).Msg("snapshot unreadable, cold start")
		return Snapshot{}, ColdStart, fmt.Errorf("read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		m.quarantine()
		m.log.Warn().Err(err).Str("path", m.path).Msg("snapshot corrupt, cold start")
		return Snapshot{}, ColdStart, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if snap.Schema != SchemaName || snap.Version != SchemaVersion {
		m.log.Warn().
			Str("schema", snap.Schema).
			Int("version", snap.Version).
			Msg("snapshot schema mismatch, cold start")
		return Snapshot{}, ColdStart, fmt.Errorf("%w: %s v%d", ErrSchemaMismatch, snap.Schema, snap.Version)
	}

	m.log.Info().Time("saved_at", snap.SavedAt).Msg("snapshot loaded, warm start")
	return snap, WarmStart, nil
}

func (m *Manager) quarantine() {
	if err := os.Rename(m.path, m.path+".corrupt"); err != nil {
		m.log.Warn().Err(err).Msg("could not move corrupt snapshot aside")
	}
}

// atomicWrite writes data to a temp file in the target directory, syncs it
// and renames it over path.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
