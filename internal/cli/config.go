package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/persist/pkg/cache"
	"github.com/matzehuels/persist/pkg/store"
)

// Config is the user configuration read from config.toml. Every field is
// optional; flags override it.
//
//	format = "yaml"
//	indent = "  "
//
//	[cache]
//	dir = "/tmp/persist-cache"
//	redis = { addr = "localhost:6379", prefix = "persist:" }
//
//	[store]
//	backend = "sqlite"
//	dsn = "/var/lib/persist/assets.db"
//
//	[server]
//	addr = ":8080"
type Config struct {
	Format string       `toml:"format"`
	Indent string       `toml:"indent"`
	Cache  CacheConfig  `toml:"cache"`
	Store  store.Config `toml:"store"`
	Server ServerConfig `toml:"server"`
}

// CacheConfig selects the conversion cache. Redis wins when an address is set.
type CacheConfig struct {
	Dir   string            `toml:"dir"`
	Redis cache.RedisConfig `toml:"redis"`
}

// ServerConfig configures `persist serve`.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// defaultConfig returns the configuration used when no file exists.
func defaultConfig() Config {
	return Config{
		Format: "yaml",
		Store:  store.Config{Backend: "file"},
		Server: ServerConfig{Addr: ":8080"},
	}
}

// loadConfig reads path over the defaults. A missing file is not an error.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	md, err := toml.DecodeFile(path, &cfg)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return cfg, fmt.Errorf("read config %s: unknown key %q", path, undecoded[0].String())
	}
	return cfg, nil
}

// configPath returns the config file location ($XDG_CONFIG_HOME/persist/config.toml).
func configPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, appName, "config.toml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appName, "config.toml"), nil
}

// cacheDir returns the cache directory using XDG standard (~/.cache/persist/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}

// dataDir returns where the file store keeps assets by default
// ($XDG_DATA_HOME/persist/assets).
func dataDir() (string, error) {
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		return filepath.Join(dataHome, appName, "assets"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", appName, "assets"), nil
}
