package main

import (
	_ "embed"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/tinywideclouds/go-pushrelay-service/pushrelay/config"
)

//go:embed local.yaml
var configFile []byte

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	logger     *slog.Logger
	logCloser  io.Closer
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

// ensureConfig loads the configuration once and builds the logger from it.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		bootstrap := newLogger(os.Stdout)

		raw := configFile
		if c.configFlag != nil && strings.TrimSpace(*c.configFlag) != "" {
			data, err := os.ReadFile(strings.TrimSpace(*c.configFlag))
			if err != nil {
				c.configErr = fmt.Errorf("read config file: %w", err)
				return
			}
			raw = data
		}

		cfg, err := loadConfig(raw, bootstrap)
		if err != nil {
			c.configErr = err
			return
		}

		logger, closer, err := openLogger(cfg.LogFile)
		if err != nil {
			c.configErr = err
			return
		}
		slog.SetDefault(logger)

		c.config = cfg
		c.logger = logger
		c.logCloser = closer
	})
	return c.config, c.configErr
}

func (c *commandContext) close() {
	if c.logCloser != nil {
		_ = c.logCloser.Close()
	}
}

func loadConfig(raw []byte, logger *slog.Logger) (*config.Config, error) {
	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(raw, &yamlCfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml config: %w", err)
	}
	baseCfg, err := config.NewConfigFromYaml(&yamlCfg, logger)
	if err != nil {
		return nil, err
	}
	return config.UpdateConfigWithEnvOverrides(baseCfg, logger)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: parseLevel(os.Getenv("LOG_LEVEL")),
	})).With("service", "go-pushrelay-service")
}

// openLogger writes to stdout and, when path is set, appends to that file too.
func openLogger(path string) (*slog.Logger, io.Closer, error) {
	if path == "" {
		return newLogger(os.Stdout), nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return newLogger(io.MultiWriter(os.Stdout, f)), f, nil
}
