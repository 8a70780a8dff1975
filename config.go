package modguard

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// DefaultLocalModThreshold is the lowest id the workshop hands out.
// Anything below it was installed by hand.
const DefaultLocalModThreshold ModID = 2500000000

const currentConfigVersion = 1

// Settings is the hot-reloadable moderation policy.
// A *Settings is an immutable snapshot once published.
type Settings struct {
	ConfigVersion int `yaml:"config_version"`

	// Enabled switches the whole blacklist system.
	Enabled bool `yaml:"enabled"`

	BlacklistedModIDs []ModID `yaml:"blacklisted_mod_ids"`

	// BroadcastKicks announces a kick in chat before it happens.
	BroadcastKicks bool `yaml:"broadcast_kicks"`

	KickPlayersWithLocalMods bool `yaml:"kick_players_with_local_mods"`

	// KickOnTeamJoin defers kicks until the player tries to join Blue or Red.
	// If false, players are kicked on connection.
	KickOnTeamJoin bool `yaml:"kick_on_team_join"`

	DebugLogging bool `yaml:"debug_logging"`

	// AnnounceMods lists each player's mods in chat once metadata resolved.
	AnnounceMods bool `yaml:"announce_mods"`

	LocalModThreshold ModID `yaml:"local_mod_threshold"`

	blacklist map[ModID]struct{}
}

// DefaultSettings returns the settings written to a fresh config file.
func DefaultSettings() *Settings {
	s := &Settings{
		ConfigVersion:     currentConfigVersion,
		Enabled:           true,
		BlacklistedModIDs: []ModID{},
		BroadcastKicks:    true,
		KickOnTeamJoin:    true,
		LocalModThreshold: DefaultLocalModThreshold,
	}
	s.prepare()
	return s
}

func (s *Settings) prepare() {
	s.blacklist = make(map[ModID]struct{}, len(s.BlacklistedModIDs))
	for _, id := range s.BlacklistedModIDs {
		s.blacklist[id] = struct{}{}
	}
}

func (s *Settings) isBlacklisted(id ModID) bool {
	if s.blacklist == nil {
		return slices.Contains(s.BlacklistedModIDs, id)
	}
	_, ok := s.blacklist[id]
	return ok
}

func (s *Settings) validate() error {
	if s.ConfigVersion > currentConfigVersion {
		return fmt.Errorf("unsupported config_version %d", s.ConfigVersion)
	}
	return nil
}

// ParseSettings decodes a YAML (or JSON) settings document.
// Keys missing from the document keep their default values.
func ParseSettings(data []byte) (*Settings, error) {
	s := DefaultSettings()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	if s.BlacklistedModIDs == nil {
		s.BlacklistedModIDs = []ModID{}
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	s.prepare()
	return s, nil
}

// SettingsSource hands out the current settings snapshot.
// Callers must re-read it for every evaluation.
type SettingsSource interface {
	Settings() *Settings
}

type staticSettings struct{ s *Settings }

func (s staticSettings) Settings() *Settings { return s.s }

// StaticSettings wraps a fixed snapshot.
func StaticSettings(s *Settings) SettingsSource {
	s.prepare()
	return staticSettings{s}
}

// ConfigStore owns the settings file and the live snapshot.
type ConfigStore struct {
	path   string
	cur    atomic.Pointer[Settings]
	level  *slog.LevelVar
	logger *slog.Logger
}

// ConfigStoreOption configures a ConfigStore.
type ConfigStoreOption struct {
	// Level is set to Debug or Info following debug_logging.
	// Share it with the slog handler.
	Level *slog.LevelVar

	Logger *slog.Logger
}

// NewConfigStore creates a store holding default settings.
// Call Load to read path.
func NewConfigStore(path string, opt *ConfigStoreOption) *ConfigStore {
	if opt == nil {
		opt = &ConfigStoreOption{}
	}
	s := &ConfigStore{path: path, level: opt.Level, logger: opt.Logger}
	if s.level == nil {
		s.level = new(slog.LevelVar)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.Store(DefaultSettings())
	return s
}

// Settings implements SettingsSource.
func (s *ConfigStore) Settings() *Settings {
	return s.cur.Load()
}

// Level follows debug_logging.
func (s *ConfigStore) Level() *slog.LevelVar {
	return s.level
}

// Path returns the settings file path.
func (s *ConfigStore) Path() string {
	return s.path
}

// Store publishes a new snapshot.
func (s *ConfigStore) Store(settings *Settings) {
	settings.prepare()
	s.cur.Store(settings)
	if settings.DebugLogging {
		s.level.Set(slog.LevelDebug)
	} else {
		s.level.Set(slog.LevelInfo)
	}
}

// Load reads the settings file. A missing file is created with defaults.
func (s *ConfigStore) Load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.Store(DefaultSettings())
		if err := s.Save(); err != nil {
			return err
		}
		s.logger.Info("created new config", "path", s.path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	settings, err := ParseSettings(data)
	if err != nil {
		return fmt.Errorf("failed to load config %s: %w", s.path, err)
	}
	s.Store(settings)
	s.logger.Info("config loaded",
		"path", s.path,
		"enabled", settings.Enabled,
		"blacklisted", len(settings.BlacklistedModIDs))
	return nil
}

// Reload re-reads the settings file. On error the previous snapshot stays.
func (s *ConfigStore) Reload() error {
	if err := s.Load(); err != nil {
		return err
	}
	s.logger.Info("config reloaded")
	return nil
}

// Save writes the current snapshot to the settings file.
func (s *ConfigStore) Save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	data, err := yaml.Marshal(s.Settings())
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ConfigWatcher reloads the store whenever the file's mtime moves forward.
type ConfigWatcher struct {
	store    *ConfigStore
	interval time.Duration
	logger   *slog.Logger
	lastMod  time.Time
}

// NewConfigWatcher creates a watcher polling every interval.
func NewConfigWatcher(store *ConfigStore, interval time.Duration, logger *slog.Logger) *ConfigWatcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &ConfigWatcher{store: store, interval: interval, logger: logger}
	if info, err := os.Stat(store.Path()); err == nil {
		w.lastMod = info.ModTime()
	}
	return w
}

// Watch blocks until ctx is done.
func (w *ConfigWatcher) Watch(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

func (w *ConfigWatcher) poll() {
	info, err := os.Stat(w.store.Path())
	if err != nil {
		w.logger.Warn("config stat failed", "path", w.store.Path(), "error", err)
		return
	}
	if !info.ModTime().After(w.lastMod) {
		return
	}
	w.lastMod = info.ModTime()

	if err := w.store.Reload(); err != nil {
		w.logger.Error("config reload failed", "path", w.store.Path(), "error", err)
	}
}

// ServerConfig holds process settings read from the environment.
type ServerConfig struct {
	Addr               string        `env:"MODGUARD_ADDR" envDefault:"0.0.0.0:8234"`
	ConfigFile         string        `env:"MODGUARD_CONFIG_FILE" envDefault:"./config/mod_blacklist.yaml"`
	ConfigPollInterval time.Duration `env:"MODGUARD_CONFIG_POLL_INTERVAL" envDefault:"5s"`
	TickInterval       time.Duration `env:"MODGUARD_TICK_INTERVAL" envDefault:"100ms"`

	// Descriptor persistence and search. Empty paths keep them in memory
	// (bleve) or off (pebble).
	PebblePath string `env:"MODGUARD_PEBBLE_PATH"`
	BlevePath  string `env:"MODGUARD_BLEVE_PATH"`

	// Audit stream. Disabled when no brokers are set.
	KafkaBrokers []string `env:"MODGUARD_KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"MODGUARD_KAFKA_TOPIC" envDefault:"modguard.audit"`

	PrometheusEnabled bool   `env:"MODGUARD_PROMETHEUS_ENABLED" envDefault:"true"`
	LogFormat         string `env:"MODGUARD_LOG_FORMAT" envDefault:"text"`
}

// LoadServerConfig parses ServerConfig from the environment.
func LoadServerConfig() (*ServerConfig, error) {
	var cfg ServerConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return nil, fmt.Errorf("invalid MODGUARD_LOG_FORMAT %q", cfg.LogFormat)
	}
	if cfg.TickInterval <= 0 {
		return nil, fmt.Errorf("invalid MODGUARD_TICK_INTERVAL %s", cfg.TickInterval)
	}
	return &cfg, nil
}
