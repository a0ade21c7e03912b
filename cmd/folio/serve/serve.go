// Package servecmder provides the serve command that runs the folio API
// server and its MCP endpoint.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/folio/api"
	"github.com/papercomputeco/folio/api/mcp"
	"github.com/papercomputeco/folio/pkg/config"
	"github.com/papercomputeco/folio/pkg/dotdir"
	"github.com/papercomputeco/folio/pkg/logger"
	"github.com/papercomputeco/folio/pkg/pipeline"
)

type serveCommander struct {
	configDir string
	debug     bool
	watch     bool
	noMCP     bool
	logJSON   bool
	logFile   string

	// flag targets, bound to viper in PreRunE
	listen          string
	apiKey          string
	vectorStoreProv string
	vectorStoreTgt  string
	collection      string
	embeddingProv   string
	embeddingTgt    string
	embeddingModel  string
	embeddingDims   uint
	memoryProv      string
	memoryTgt       string
	imagesEndpoint  string
	eventsProv      string
	eventsTopic     string

	cmd    *cobra.Command
	cfg    *config.Config
	logger *slog.Logger
}

const serveLongDesc string = `Run the folio answering service.

Serves the HTTP API (POST /v1/answer, POST /v1/transform, GET /v1/stats,
GET /health) and an MCP endpoint at /mcp exposing the same operations as
tools.

Settings come from flags, FOLIO_* environment variables and config.toml in
the .folio/ directory, in that order of precedence. With --watch, changes
to the [pipeline] section of config.toml are applied without a restart.

Examples:
  folio serve
  folio serve --listen :9000 --vector-store-provider qdrant --vector-store-target localhost:6334
  folio serve --memory-provider redis --memory-target redis://localhost:6379/0
  folio serve --watch`

const serveShortDesc string = "Run the folio answering service"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.cmd = cmd
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			cfg, err := cmder.loadConfig()
			if err != nil {
				return err
			}
			cmder.cfg = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, config.ServeFlags, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagAPIKey, &cmder.apiKey)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagVectorStoreProv, &cmder.vectorStoreProv)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagVectorStoreTgt, &cmder.vectorStoreTgt)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagCollection, &cmder.collection)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagEmbeddingProv, &cmder.embeddingProv)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagEmbeddingTgt, &cmder.embeddingTgt)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagEmbeddingModel, &cmder.embeddingModel)
	config.AddUintFlag(cmd, config.ServeFlags, config.FlagEmbeddingDims, &cmder.embeddingDims)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagMemoryProv, &cmder.memoryProv)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagMemoryTgt, &cmder.memoryTgt)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagImagesEndpoint, &cmder.imagesEndpoint)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagEventsProv, &cmder.eventsProv)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagEventsTopic, &cmder.eventsTopic)

	cmd.Flags().BoolVarP(&cmder.watch, "watch", "w", false, "Reload [pipeline] settings when config.toml changes")
	cmd.Flags().BoolVar(&cmder.noMCP, "no-mcp", false, "Serve /mcp without tools")
	cmd.Flags().BoolVar(&cmder.logJSON, "log-json", false, "Write JSON logs instead of colorized text")
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also append JSON logs to this file")

	return cmd
}

// loadConfig merges flags, environment and config.toml and validates the
// result.
func (c *serveCommander) loadConfig() (*config.Config, error) {
	v, err := config.InitViper(c.configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if c.cmd != nil {
		config.BindRegisteredFlags(v, c.cmd, config.ServeFlags, config.ServeFlagKeys())
	}
	return configFromViper(v)
}

func configFromViper(v *viper.Viper) (*config.Config, error) {
	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *serveCommander) run(ctx context.Context) error {
	if c.cfg == nil {
		return errNoConfig
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var closeLog func() error
	var err error
	c.logger, closeLog, err = c.newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	st, err := buildStack(ctx, c.cfg, c.configDir, c.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			c.logger.Error("shutdown_failed", "error", err)
		}
	}()

	mcpServer, err := mcp.NewServer(mcp.Config{
		Answerer:    st.orchestrator,
		Transformer: st.transformer,
		Memory:      st.memory,
		Noop:        c.noMCP,
		Logger:      c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	apiServer, err := api.NewServer(api.Config{
		ListenAddr:  c.cfg.API.Listen,
		Answerer:    st.orchestrator,
		Transformer: st.transformer,
		Memory:      st.memory,
		MCP:         mcpServer.Handler(),
		APIKey:      c.cfg.API.APIKey,
		RateLimit:   c.cfg.API.RateLimit,
		Burst:       c.cfg.API.Burst,
		Logger:      c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	errChan := make(chan error, 2)

	go func() {
		if err := apiServer.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	if c.watch {
		w, err := c.newWatcher(st.orchestrator)
		if err != nil {
			return err
		}
		go func() {
			if err := w.run(ctx); err != nil {
				c.logger.Error("config_watch_stopped", "error", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
	}

	cancel()
	if err := apiServer.Shutdown(); err != nil {
		c.logger.Error("api_shutdown_failed", "error", err)
	}
	return nil
}

// newLogger builds the service logger. With --log-file records also go to
// the file as JSON, with file:line attached under --debug.
func (c *serveCommander) newLogger() (*slog.Logger, func() error, error) {
	console := logger.New(
		logger.WithDebug(c.debug),
		logger.WithPretty(!c.logJSON),
		logger.WithJSON(c.logJSON),
	)
	if c.logFile == "" {
		return console, func() error { return nil }, nil
	}

	f, err := os.OpenFile(c.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	file := logger.New(
		logger.WithDebug(c.debug),
		logger.WithJSON(true),
		logger.WithSource(c.debug),
		logger.WithWriter(f),
	)
	return logger.Multi(console, file), f.Close, nil
}

func (c *serveCommander) newWatcher(target configTarget) (*configWatcher, error) {
	dir, err := dotdir.NewManager().Target(c.configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	return &configWatcher{
		path: filepath.Join(dir, "config.toml"),
		load: func() (pipeline.Config, error) {
			cfg, err := c.loadConfig()
			if err != nil {
				return pipeline.Config{}, err
			}
			return cfg.PipelineSettings(), nil
		},
		target: target,
		logger: c.logger,
	}, nil
}

// errNoConfig is returned when run is reached without PreRunE.
var errNoConfig = errors.New("serve: config not loaded")
