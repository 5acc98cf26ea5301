package servecmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/chatserve/pkg/config"
	"github.com/papercomputeco/chatserve/pkg/engine"
	"github.com/papercomputeco/chatserve/pkg/engine/echo"
	"github.com/papercomputeco/chatserve/pkg/engine/ollama"
	"github.com/papercomputeco/chatserve/pkg/engine/openai"
	"github.com/papercomputeco/chatserve/pkg/logger"
	"github.com/papercomputeco/chatserve/server"
)

const serveLongDesc string = `Serve OpenAI-compatible chat completions.

Requests to POST /v1/chat/completions are answered by a single shared
generation engine, either as one JSON body or as a server-sent event
stream when "stream": true is set.

Configuration is read from the --config file (or chatserve.toml in the
working directory or $HOME/.config/chatserve), then CHATSERVE_* environment
variables, then flags.

Examples:
  chatserve serve
  chatserve serve --engine ollama --engine-model llama3.2
  chatserve serve --engine openai --engine-url http://localhost:8080 --listen :9000`

const serveShortDesc string = "Run the chat completion server"

type serveCommander struct {
	configFile  string
	watchConfig bool
}

// flagKeys maps flags onto the config keys they override.
var flagKeys = map[string]string{
	"listen":       "listen",
	"debug":        "debug",
	"engine":       "engine.type",
	"engine-url":   "engine.url",
	"engine-model": "engine.model",
}

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd)
		},
	}

	defaults := config.Default()
	cmd.Flags().StringVarP(&cmder.configFile, "config", "c", "", "Path to a TOML config file")
	cmd.Flags().BoolVar(&cmder.watchConfig, "watch-config", false, "Reload the log level when the config file changes")
	cmd.Flags().StringP("listen", "l", defaults.Listen, "Address to listen on")
	cmd.Flags().Bool("debug", defaults.Debug, "Enable debug logging")
	cmd.Flags().StringP("engine", "e", defaults.Engine.Type, "Generation engine: echo, ollama or openai")
	cmd.Flags().String("engine-url", defaults.Engine.URL, "Upstream engine URL")
	cmd.Flags().String("engine-model", defaults.Engine.Model, "Upstream model (default: the model named by each request)")

	return cmd
}

func (c *serveCommander) run(ctx context.Context, cmd *cobra.Command) error {
	v, err := config.NewViper(c.configFile)
	if err != nil {
		return err
	}
	for flag, key := range flagKeys {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("binding flag %s: %w", flag, err)
		}
	}

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	level := logger.Level(cfg.Debug)
	log := logger.New(level)
	defer func() { _ = log.Sync() }()

	if c.watchConfig {
		watch(v, level, log)
	}

	eng, err := NewEngine(cfg, log)
	if err != nil {
		return fmt.Errorf("could not create engine: %w", err)
	}

	srv, err := server.New(server.Config{
		ListenAddr:        cfg.Listen,
		ServedModel:       cfg.ServedModel,
		StreamBuffer:      cfg.Stream.Buffer,
		GenerationTimeout: cfg.GenerationTimeout,
	}, eng, log)
	if err != nil {
		return fmt.Errorf("could not create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Run)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down", zap.Duration("grace_period", cfg.ShutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.ShutdownWithContext(shutdownCtx)
	})

	return g.Wait()
}

// NewEngine builds the generation engine selected by cfg.
func NewEngine(cfg config.Config, log *zap.Logger) (engine.Engine, error) {
	switch cfg.Engine.Type {
	case config.EngineEcho:
		return echo.New(0), nil
	case config.EngineOllama:
		return ollama.New(ollama.Config{
			URL:     cfg.Engine.URL,
			Model:   cfg.Engine.Model,
			Timeout: cfg.Engine.Timeout,
		}, log)
	case config.EngineOpenAI:
		return openai.New(openai.Config{
			URL:     cfg.Engine.URL,
			APIKey:  cfg.Engine.APIKey,
			Model:   cfg.Engine.Model,
			Timeout: cfg.Engine.Timeout,
		}, log)
	default:
		return nil, fmt.Errorf("unknown engine type %q", cfg.Engine.Type)
	}
}

// watch applies debug changes in the config file to level while serving.
// Other settings take effect on restart.
func watch(v *viper.Viper, level zap.AtomicLevel, log *zap.Logger) {
	if v.ConfigFileUsed() == "" {
		log.Warn("--watch-config set but no config file is in use")
		return
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		reloadLevel(v, level)
		log.Info("config file changed",
			zap.String("file", e.Name),
			zap.Stringer("level", level.Level()),
		)
	})
	v.WatchConfig()
}

func reloadLevel(v *viper.Viper, level zap.AtomicLevel) {
	if v.GetBool("debug") {
		level.SetLevel(zap.DebugLevel)
	} else {
		level.SetLevel(zap.InfoLevel)
	}
}
