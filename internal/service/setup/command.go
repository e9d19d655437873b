package setup

import (
	"context"
	"fmt"
	"strings"

	"github.com/gitter-badger/deployer-1/internal/config"
	"github.com/gitter-badger/deployer-1/internal/logger"
	"github.com/gitter-badger/deployer-1/internal/service/client"
)

// Options contains inputs for the setup entry point.
type Options struct {
	// ConfigPath is where the settings are written (defaults to deployer-settings.yaml).
	ConfigPath string
	// ServerAddress is the gRPC address of the deployer server.
	ServerAddress string
	// HTTPAddress is the optional REST address of the server.
	HTTPAddress string
	// RepositoryURL and ContainerURL are only needed on the server host.
	RepositoryURL string
	ContainerURL  string
	// Verify probes the server health before saving.
	Verify bool
}

// Run validates, optionally verifies and saves the settings.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "deployer-init")

	path := opts.ConfigPath
	if path == "" {
		path = config.DefaultConfigFilename
	}

	cfg := &config.Config{
		ServerAddress: opts.ServerAddress,
		HTTPAddress:   opts.HTTPAddress,
		Repository:    config.RepositoryConfig{URL: opts.RepositoryURL},
		Container:     config.ContainerConfig{URL: opts.ContainerURL},
	}

	if err := config.Validate(cfg); err != nil {
		return err
	}

	if opts.Verify {
		if err := ensureServerReachable(ctx, cfg); err != nil {
			return fmt.Errorf("verify server: %w", err)
		}
	}

	if err := config.Save(path, cfg); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}

	logger.Info(ctx, nextSteps(path, cfg))

	return nil
}

// nextSteps tells the operator which binaries can use the written file.
func nextSteps(path string, cfg *config.Config) string {
	var builder strings.Builder

	builder.WriteString("Settings written to ")
	builder.WriteString(path)
	builder.WriteString(".\nClients can now run: deployer list --config ")
	builder.WriteString(path)

	if cfg.Repository.URL != "" && cfg.Container.URL != "" {
		builder.WriteString("\nThe server can now run: deployer-server --config ")
		builder.WriteString(path)
	} else {
		builder.WriteString("\nThe server additionally needs repository.url and container.url, ")
		builder.WriteString("set in the file or as DEPLOYER_REPOSITORY_URL and DEPLOYER_CONTAINER_URL.")
	}

	return builder.String()
}

// ensureServerReachable checks the server health endpoint.
func ensureServerReachable(ctx context.Context, cfg *config.Config) error {
	c, err := client.Dial(ctx, cfg.ServerAddress, client.WithCallTimeout(cfg.Timeout))
	if err != nil {
		return err
	}

	// Best-effort cleanup.
	defer func() {
		_ = c.Close()
	}()

	if err = c.Health(ctx); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Verified connection to deployer server", "server_address", cfg.ServerAddress)

	return nil
}
