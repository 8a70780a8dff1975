package modguard

import (
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestParseSettings(t *testing.T) {
	s, err := ParseSettings([]byte(`
enabled: true
blacklisted_mod_ids: [3000000001, 3000000002]
kick_on_team_join: false
`))
	if err != nil {
		t.Fatalf("ParseSettings failed: %v", err)
	}

	if !slices.Equal(s.BlacklistedModIDs, []ModID{modA, modB}) {
		t.Errorf("BlacklistedModIDs = %v", s.BlacklistedModIDs)
	}
	if s.KickOnTeamJoin {
		t.Errorf("Expected KickOnTeamJoin to be false")
	}
	// keys missing from the document keep their defaults
	if !s.BroadcastKicks {
		t.Errorf("Expected BroadcastKicks to default to true")
	}
	if s.LocalModThreshold != DefaultLocalModThreshold {
		t.Errorf("LocalModThreshold = %d, want %d", s.LocalModThreshold, DefaultLocalModThreshold)
	}
	if !s.isBlacklisted(modB) || s.isBlacklisted(modC) {
		t.Errorf("blacklist lookup does not match BlacklistedModIDs")
	}
}

func TestParseSettings_Empty(t *testing.T) {
	s, err := ParseSettings(nil)
	if err != nil {
		t.Fatalf("ParseSettings failed: %v", err)
	}
	if !s.Enabled || !s.KickOnTeamJoin || s.KickPlayersWithLocalMods || s.AnnounceMods {
		t.Errorf("unexpected defaults: %+v", s)
	}
	if s.BlacklistedModIDs == nil {
		t.Errorf("Expected an empty blacklist, got nil")
	}
}

func TestParseSettings_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"syntax", "enabled: [true"},
		{"type", "blacklisted_mod_ids: hello"},
		{"future version", "config_version: 99"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseSettings([]byte(tt.data)); err == nil {
				t.Errorf("Expected an error for %q", tt.data)
			}
		})
	}
}

func TestConfigStore_LoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "mod_blacklist.yaml")
	store := NewConfigStore(path, nil)

	if err := store.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file was not created: %v", err)
	}

	// the written file parses back to the defaults
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	s, err := ParseSettings(data)
	if err != nil {
		t.Fatalf("ParseSettings failed: %v", err)
	}
	want := DefaultSettings()
	if s.Enabled != want.Enabled || s.KickOnTeamJoin != want.KickOnTeamJoin || s.LocalModThreshold != want.LocalModThreshold {
		t.Errorf("round trip = %+v, want %+v", s, want)
	}
}

func TestConfigStore_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mod_blacklist.yaml")
	writeFile(t, path, "blacklisted_mod_ids: [3000000001]\n")

	level := new(slog.LevelVar)
	store := NewConfigStore(path, &ConfigStoreOption{Level: level})
	if err := store.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := store.Settings().BlacklistedModIDs; !slices.Equal(got, []ModID{modA}) {
		t.Fatalf("BlacklistedModIDs = %v", got)
	}
	if level.Level() != slog.LevelInfo {
		t.Errorf("level = %v, want info", level.Level())
	}

	writeFile(t, path, "blacklisted_mod_ids: [3000000002]\ndebug_logging: true\n")
	if err := store.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if got := store.Settings().BlacklistedModIDs; !slices.Equal(got, []ModID{modB}) {
		t.Errorf("BlacklistedModIDs = %v after reload", got)
	}
	if level.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", level.Level())
	}

	// a broken file keeps the last good snapshot
	before := store.Settings()
	writeFile(t, path, "blacklisted_mod_ids: [oops\n")
	if err := store.Reload(); err == nil {
		t.Fatalf("Expected Reload to fail")
	}
	if store.Settings() != before {
		t.Errorf("snapshot changed after a failed reload")
	}
}

func TestConfigWatcher_Poll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mod_blacklist.yaml")
	writeFile(t, path, "enabled: true\n")

	store := NewConfigStore(path, nil)
	if err := store.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	w := NewConfigWatcher(store, time.Second, slog.New(slog.DiscardHandler))

	w.poll()
	if !store.Settings().Enabled {
		t.Fatalf("unchanged file should not reload")
	}

	writeFile(t, path, "enabled: false\n")
	future := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}
	w.poll()
	if store.Settings().Enabled {
		t.Errorf("Expected the watcher to pick up enabled: false")
	}
}

func TestLoadServerConfig(t *testing.T) {
	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("LoadServerConfig failed: %v", err)
	}
	if cfg.Addr != "0.0.0.0:8234" {
		t.Errorf("Expected Addr to be '0.0.0.0:8234', got '%s'", cfg.Addr)
	}
	if cfg.TickInterval != 100*time.Millisecond {
		t.Errorf("Expected TickInterval to be 100ms, got %v", cfg.TickInterval)
	}
	if len(cfg.KafkaBrokers) != 0 {
		t.Errorf("Expected no Kafka brokers, got %v", cfg.KafkaBrokers)
	}
}

func TestLoadServerConfigWithEnvOverride(t *testing.T) {
	t.Setenv("MODGUARD_ADDR", "127.0.0.1:9999")
	t.Setenv("MODGUARD_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("MODGUARD_LOG_FORMAT", "json")

	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("LoadServerConfig failed: %v", err)
	}
	if cfg.Addr != "127.0.0.1:9999" {
		t.Errorf("Expected Addr to be '127.0.0.1:9999', got '%s'", cfg.Addr)
	}
	if !slices.Equal(cfg.KafkaBrokers, []string{"k1:9092", "k2:9092"}) {
		t.Errorf("KafkaBrokers = %v", cfg.KafkaBrokers)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("Expected LogFormat to be 'json', got '%s'", cfg.LogFormat)
	}
}

func TestLoadServerConfig_Invalid(t *testing.T) {
	t.Setenv("MODGUARD_LOG_FORMAT", "xml")
	if _, err := LoadServerConfig(); err == nil {
		t.Errorf("Expected an error for an unknown log format")
	}
}

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
}
