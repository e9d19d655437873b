package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/gitter-badger/deployer-1/internal/logger"
)

// Config holds the settings shared by the deployer binaries.
type Config struct {
	// ServerAddress is the gRPC listen address of the server and the dial target of the CLI.
	ServerAddress string `mapstructure:"server_addr" yaml:"server_addr"`
	// HTTPAddress is the REST listen address; REST is disabled when empty.
	HTTPAddress string `mapstructure:"http_addr" yaml:"http_addr,omitempty"`
	// Repository is the artifact repository.
	Repository RepositoryConfig `mapstructure:"repository" yaml:"repository,omitempty"`
	// Container is the application container's management interface.
	Container ContainerConfig `mapstructure:"container" yaml:"container,omitempty"`
	// DeploymentsFile is the YAML file keeping the last known deployments.
	DeploymentsFile string `mapstructure:"deployments_file" yaml:"deployments_file,omitempty"`
	// LogLevel is one of debug, info, warn or error.
	LogLevel string `mapstructure:"log_level" yaml:"log_level,omitempty"`
	// LogFormat is console or json.
	LogFormat string `mapstructure:"log_format" yaml:"log_format,omitempty"`
	// Timeout bounds RPC calls and metadata requests.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout,omitempty"`
}

// RepositoryConfig locates the artifact repository.
type RepositoryConfig struct {
	URL      string        `mapstructure:"url" yaml:"url,omitempty"`
	Username string        `mapstructure:"username" yaml:"username,omitempty"`
	Password string        `mapstructure:"password" yaml:"password,omitempty"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout,omitempty"`
}

// ContainerConfig locates the container's HTTP management interface.
type ContainerConfig struct {
	URL      string `mapstructure:"url" yaml:"url,omitempty"`
	Username string `mapstructure:"username" yaml:"username,omitempty"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
	// PlanTimeout bounds the wait for one deployment plan.
	PlanTimeout time.Duration `mapstructure:"plan_timeout" yaml:"plan_timeout,omitempty"`
}

const (
	// DefaultConfigFilename is the default filename for settings.
	DefaultConfigFilename = "deployer-settings.yaml"

	// DefaultDeploymentsFilename is the default filename for known deployments.
	DefaultDeploymentsFilename = "deployer-deployments.yaml"

	// DefaultTimeout is the default duration for network operations.
	DefaultTimeout = 5 * time.Second

	// DefaultPlanTimeout is the default bound for one deployment plan.
	DefaultPlanTimeout = 30 * time.Second

	// DefaultFilePermissions is the default file permission for written files.
	DefaultFilePermissions = 0o600

	// EnvPrefix prefixes environment overrides, e.g. DEPLOYER_CONTAINER_URL.
	EnvPrefix = "DEPLOYER"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errServerSocketRequired is returned when server address is missing.
	errServerSocketRequired = errors.New("server address must be provided")
	// errURLRequired is returned when the server lacks a repository or container URL.
	errURLRequired = errors.New("url must be provided")
)

// Load reads settings from path, applies DEPLOYER_* environment overrides and
// validates the result. A missing file is an error only when path was given.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server_addr", "")
	v.SetDefault("http_addr", "")
	v.SetDefault("repository.url", "")
	v.SetDefault("repository.username", "")
	v.SetDefault("repository.password", "")
	v.SetDefault("repository.timeout", DefaultTimeout.String())
	v.SetDefault("container.url", "")
	v.SetDefault("container.username", "")
	v.SetDefault("container.password", "")
	v.SetDefault("container.plan_timeout", DefaultPlanTimeout.String())
	v.SetDefault("deployments_file", DefaultDeploymentsFilename)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", string(logger.FormatConsole))
	v.SetDefault("timeout", DefaultTimeout.String())

	explicit := path != ""
	if !explicit {
		path = DefaultConfigFilename
	}

	v.SetConfigFile(filepath.Clean(path))
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read settings: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the settings to path as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Settings may hold passwords.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the fields every binary needs and fills in defaults.
func Validate(settings *Config) error {
	if settings.ServerAddress == "" {
		return errServerSocketRequired
	}

	if _, err := net.ResolveTCPAddr("tcp", settings.ServerAddress); err != nil {
		return fmt.Errorf("invalid server socket: %w", err)
	}

	if settings.HTTPAddress != "" {
		if _, err := net.ResolveTCPAddr("tcp", settings.HTTPAddress); err != nil {
			return fmt.Errorf("invalid http socket: %w", err)
		}
	}

	if _, ok := logger.ParseLogLevel(settings.LogLevel); !ok {
		return fmt.Errorf("invalid log level %q", settings.LogLevel)
	}

	if _, ok := logger.ParseFormat(settings.LogFormat); !ok {
		return fmt.Errorf("invalid log format %q", settings.LogFormat)
	}

	if settings.Timeout <= 0 {
		settings.Timeout = DefaultTimeout
	}

	if settings.Repository.Timeout <= 0 {
		settings.Repository.Timeout = DefaultTimeout
	}

	if settings.Container.PlanTimeout <= 0 {
		settings.Container.PlanTimeout = DefaultPlanTimeout
	}

	if settings.DeploymentsFile == "" {
		settings.DeploymentsFile = DefaultDeploymentsFilename
	}

	for name, raw := range map[string]string{
		"repository": settings.Repository.URL,
		"container":  settings.Container.URL,
	} {
		if raw == "" {
			continue
		}

		if err := validateURL(raw); err != nil {
			return fmt.Errorf("invalid %s url: %w", name, err)
		}
	}

	return nil
}

// ValidateServer additionally requires the repository and container URLs.
func ValidateServer(settings *Config) error {
	if err := Validate(settings); err != nil {
		return err
	}

	if settings.Repository.URL == "" {
		return fmt.Errorf("repository %w", errURLRequired)
	}

	if settings.Container.URL == "" {
		return fmt.Errorf("container %w", errURLRequired)
	}

	return nil
}

func validateURL(raw string) error {
	parsed, err := url.ParseRequestURI(raw)
	if err != nil {
		return err
	}

	if !parsed.IsAbs() || parsed.Host == "" {
		return fmt.Errorf("%q is not absolute", raw)
	}

	return nil
}
