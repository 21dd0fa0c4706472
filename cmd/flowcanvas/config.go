package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/rendis/flowcanvas/internal/diagram"
	"github.com/rendis/flowcanvas/internal/scheduler"
	"github.com/rendis/flowcanvas/internal/store"
)

// Hub backends.
const (
	hubMemory = "memory"
	hubRedis  = "redis"
)

// Config holds all flowcanvas server configuration.
// Priority: env vars > settings file > defaults.
type Config struct {
	ListenAddr    string               `json:"listen_addr" toml:"listen_addr"`
	Store         string               `json:"store" toml:"store"`
	DBPath        string               `json:"db_path" toml:"db_path"`
	MongoURI      string               `json:"mongo_uri" toml:"mongo_uri"`
	MongoDatabase string               `json:"mongo_database" toml:"mongo_database"`
	Hub           string               `json:"hub" toml:"hub"`
	RedisURL      string               `json:"redis_url" toml:"redis_url"`
	RedisChannel  string               `json:"redis_channel" toml:"redis_channel"`
	Schedule      scheduler.Specs      `json:"schedule" toml:"schedule"`
	LogLevel      string               `json:"log_level" toml:"log_level"`
	Layout        diagram.LayoutConfig `json:"layout" toml:"layout"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr:    ":4200",
		Store:         store.BackendLibSQL,
		DBPath:        filepath.Join(flowcanvasDir(), "flowcanvas.db"),
		MongoDatabase: "flowcanvas",
		Hub:           hubMemory,
		RedisChannel:  "flowcanvas:events",
		Schedule:      scheduler.DefaultSpecs(),
		LogLevel:      "info",
		Layout:        diagram.DefaultLayout(),
	}
}

func flowcanvasDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".flowcanvas"
	}
	return filepath.Join(home, ".flowcanvas")
}

func binDir() string {
	return filepath.Join(flowcanvasDir(), "bin")
}

// settingsPath returns the settings file to read: settings.toml when present,
// settings.json otherwise.
func settingsPath() string {
	tomlPath := filepath.Join(flowcanvasDir(), "settings.toml")
	if _, err := os.Stat(tomlPath); err == nil {
		return tomlPath
	}
	return filepath.Join(flowcanvasDir(), "settings.json")
}

// loadDotEnv loads a .env file from the working directory into the process
// environment. A missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// loadConfig layers the settings file at path (or the default location when
// path is empty) and FLOWCANVAS_* variables over the defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	explicit := path != ""
	if !explicit {
		path = settingsPath()
	}
	if err := decodeSettings(path, &cfg); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return cfg, err
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decodeSettings(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		return nil
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	for _, v := range []struct {
		key string
		dst *string
	}{
		{"FLOWCANVAS_LISTEN_ADDR", &cfg.ListenAddr},
		{"FLOWCANVAS_STORE", &cfg.Store},
		{"FLOWCANVAS_DB_PATH", &cfg.DBPath},
		{"FLOWCANVAS_MONGO_URI", &cfg.MongoURI},
		{"FLOWCANVAS_MONGO_DATABASE", &cfg.MongoDatabase},
		{"FLOWCANVAS_HUB", &cfg.Hub},
		{"FLOWCANVAS_REDIS_URL", &cfg.RedisURL},
		{"FLOWCANVAS_REDIS_CHANNEL", &cfg.RedisChannel},
		{"FLOWCANVAS_HEARTBEAT", &cfg.Schedule.Heartbeat},
		{"FLOWCANVAS_VACUUM", &cfg.Schedule.Vacuum},
		{"FLOWCANVAS_LOG_LEVEL", &cfg.LogLevel},
	} {
		if val, ok := os.LookupEnv(v.key); ok {
			*v.dst = val
		}
	}
}

func (c Config) validate() error {
	switch c.Store {
	case store.BackendLibSQL, store.BackendMemory:
	case store.BackendMongo:
		if c.MongoURI == "" {
			return errors.New("store \"mongo\" requires mongo_uri")
		}
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	switch c.Hub {
	case hubMemory:
	case hubRedis:
		if c.RedisURL == "" {
			return errors.New("hub \"redis\" requires redis_url")
		}
	default:
		return fmt.Errorf("unknown hub %q", c.Hub)
	}
	return c.Layout.Validate()
}

// storeOptions maps the config onto store.Options. Plain db paths become
// libsql file URIs.
func (c Config) storeOptions() store.Options {
	path := c.DBPath
	if !strings.Contains(path, ":") {
		path = "file:" + path
	}
	return store.Options{
		Backend:       c.Store,
		Path:          path,
		MongoURI:      c.MongoURI,
		MongoDatabase: c.MongoDatabase,
	}
}
