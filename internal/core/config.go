package core

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/gookit/config/v2"
	"github.com/gookit/config/v2/yaml"
	"github.com/joho/godotenv"
)

type Backend struct {
	URL         string `config:"url"`
	AnonKey     string `config:"anon_key"`
	JwksURL     string `config:"jwks_url"`
	RedirectURL string `config:"redirect_url"`
}

type Storage struct {
	Bucket       string `config:"bucket"`
	CacheControl string `config:"cache_control"`
}

type Session struct {
	// Store is "keyring", which falls back to the file when the host has no
	// credential store, or "file".
	Store string `config:"store"`
	File  string `config:"file"`
	// RefreshMargin is the number of seconds before expiry at which the access
	// token gets refreshed.
	RefreshMargin int `config:"refresh_margin"`
}

type Broker struct {
	URL   string `config:"url"`
	Topic string `config:"topic"`
}

type Log struct {
	Level  string `config:"level"`
	Format string `config:"format"`
	// File receives the log lines instead of stderr when set.
	File string `config:"file"`
}

type Config struct {
	Addr           string   `config:"addr"`
	AllowedOrigins []string `config:"allowed_origins"`
	Backend        Backend  `config:"backend"`
	Storage        Storage  `config:"storage"`
	Session        Session  `config:"session"`
	Broker         Broker   `config:"broker"`
	Log            Log      `config:"log"`
}

// NewConfig reads path, then path with ".yml" replaced by ".local.yml" when it
// exists. A .env file next to the working directory is loaded first so that
// ${VAR} references resolve.
func NewConfig(path string) (*Config, error) {
	var appConfig Config

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	c := config.New("todobase")
	c.WithOptions(func(opt *config.Options) {
		opt.ParseEnv = true
		opt.DecoderConfig.TagName = "config"
	})

	c.AddDriver(yaml.Driver)

	if err := c.LoadFiles(path); err != nil {
		return nil, err
	}

	if err := c.LoadExists(strings.Replace(path, ".yml", ".local.yml", 1)); err != nil {
		return nil, err
	}

	if err := c.BindStruct("", &appConfig); err != nil {
		return nil, err
	}

	appConfig.setDefaults()

	if err := appConfig.Validate(); err != nil {
		return nil, err
	}

	return &appConfig, nil
}

func (c *Config) setDefaults() {
	if c.Addr == "" {
		c.Addr = "127.0.0.1:5173"
	}

	if c.Storage.Bucket == "" {
		c.Storage.Bucket = "todo-images"
	}

	if c.Storage.CacheControl == "" {
		c.Storage.CacheControl = "3600"
	}

	if c.Session.RefreshMargin <= 0 {
		c.Session.RefreshMargin = 60
	}

	if c.Session.Store == "" {
		c.Session.Store = "keyring"
	}

	if c.Session.File == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.Session.File = filepath.Join(home, ".todobase", "session.json")
		} else {
			c.Session.File = ".todobase-session.json"
		}
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) Validate() error {
	if c.Backend.URL == "" {
		return errors.New("config: backend.url is required")
	}

	if c.Backend.AnonKey == "" {
		return errors.New("config: backend.anon_key is required")
	}

	if c.Session.Store != "keyring" && c.Session.Store != "file" {
		return errors.New(`config: session.store must be "keyring" or "file"`)
	}

	return nil
}
