// Package config loads chatserve configuration from defaults, a TOML file,
// CHATSERVE_* environment variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// Engine types.
const (
	EngineEcho   = "echo"
	EngineOllama = "ollama"
	EngineOpenAI = "openai"
)

// Name is the config file base name and environment variable prefix.
const Name = "chatserve"

type Config struct {
	Listen            string        `mapstructure:"listen"`
	Debug             bool          `mapstructure:"debug"`
	Engine            EngineConfig  `mapstructure:"engine"`
	ServedModel       string        `mapstructure:"served_model"`
	Stream            StreamConfig  `mapstructure:"stream"`
	GenerationTimeout time.Duration `mapstructure:"generation_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

type EngineConfig struct {
	Type    string        `mapstructure:"type"`
	URL     string        `mapstructure:"url"`
	Model   string        `mapstructure:"model"` // Empty uses the model named by each request
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type StreamConfig struct {
	Buffer int `mapstructure:"buffer"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Listen: ":8000",
		Engine: EngineConfig{
			Type:    EngineEcho,
			URL:     "http://localhost:11434",
			Timeout: 5 * time.Minute,
		},
		ServedModel:     Name,
		Stream:          StreamConfig{Buffer: 16},
		ShutdownTimeout: 10 * time.Second,
	}
}

// SetDefaults registers every default on v so that environment variables
// and Unmarshal see the full key set.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("listen", d.Listen)
	v.SetDefault("debug", d.Debug)
	v.SetDefault("engine.type", d.Engine.Type)
	v.SetDefault("engine.url", d.Engine.URL)
	v.SetDefault("engine.model", d.Engine.Model)
	v.SetDefault("engine.api_key", d.Engine.APIKey)
	v.SetDefault("engine.timeout", d.Engine.Timeout)
	v.SetDefault("served_model", d.ServedModel)
	v.SetDefault("stream.buffer", d.Stream.Buffer)
	v.SetDefault("generation_timeout", d.GenerationTimeout)
	v.SetDefault("shutdown_timeout", d.ShutdownTimeout)
}

// NewViper returns a viper instance reading configFile, or chatserve.toml
// from the working directory or $HOME/.config/chatserve when configFile is
// empty. A missing default config file is not an error.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetConfigType("toml")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(Name)
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/" + Name)
	}

	v.SetEnvPrefix(strings.ToUpper(Name))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	return v, nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Engine.Type {
	case EngineEcho, EngineOllama, EngineOpenAI:
	default:
		return fmt.Errorf("invalid engine.type: %q", c.Engine.Type)
	}

	if c.Engine.Type != EngineEcho && c.Engine.URL == "" {
		return fmt.Errorf("engine.url is required for engine %q", c.Engine.Type)
	}
	if c.Listen == "" {
		return errors.New("listen is required")
	}
	if c.Stream.Buffer < 1 {
		return fmt.Errorf("stream.buffer must be positive, got %d", c.Stream.Buffer)
	}
	if c.GenerationTimeout < 0 {
		return fmt.Errorf("generation_timeout must not be negative, got %s", c.GenerationTimeout)
	}
	return nil
}

// file is the on-disk TOML layout. Durations are written as strings such
// as "5m0s", which viper decodes back into time.Duration.
type file struct {
	Listen            string     `toml:"listen"`
	Debug             bool       `toml:"debug"`
	Engine            engineFile `toml:"engine"`
	ServedModel       string     `toml:"served_model"`
	Stream            streamFile `toml:"stream"`
	GenerationTimeout string     `toml:"generation_timeout"`
	ShutdownTimeout   string     `toml:"shutdown_timeout"`
}

type engineFile struct {
	Type    string `toml:"type"`
	URL     string `toml:"url"`
	Model   string `toml:"model"`
	APIKey  string `toml:"api_key"`
	Timeout string `toml:"timeout"`
}

type streamFile struct {
	Buffer int `toml:"buffer"`
}

func (c Config) toFile() file {
	return file{
		Listen: c.Listen,
		Debug:  c.Debug,
		Engine: engineFile{
			Type:    c.Engine.Type,
			URL:     c.Engine.URL,
			Model:   c.Engine.Model,
			APIKey:  c.Engine.APIKey,
			Timeout: c.Engine.Timeout.String(),
		},
		ServedModel:       c.ServedModel,
		Stream:            streamFile{Buffer: c.Stream.Buffer},
		GenerationTimeout: c.GenerationTimeout.String(),
		ShutdownTimeout:   c.ShutdownTimeout.String(),
	}
}

// Write writes c as TOML to path, creating parent directories. It refuses
// to overwrite an existing file unless force is set.
func Write(path string, c Config, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists: %s", path)
		}
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	return Encode(f, c)
}

// Encode writes c to w in the config file format.
func Encode(w io.Writer, c Config) error {
	if err := toml.NewEncoder(w).Encode(c.toFile()); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return nil
}
