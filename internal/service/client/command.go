package client

import (
	"context"
	"fmt"

	"github.com/gitter-badger/deployer-1/internal/config"
	"github.com/gitter-badger/deployer-1/internal/domain/deployment"
	"github.com/gitter-badger/deployer-1/internal/logger"
)

// Options configures how the CLI reaches the deployer server.
type Options struct {
	// ConfigPath to YAML settings file, defaults to standard filename if empty.
	ConfigPath string
	// ServerAddress overrides server address from config when specified.
	ServerAddress string
}

// Connect loads settings, identifies the local actor and dials the server.
func Connect(ctx context.Context, opts *Options) (*Client, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	serverAddress := cfg.ServerAddress
	if opts.ServerAddress != "" {
		serverAddress = opts.ServerAddress
	}

	// Identify current user and hostname for the server audit trail.
	actor, err := deployment.DetectActor()
	if err != nil {
		return nil, err
	}

	client, err := Dial(ctx, serverAddress, WithCallTimeout(cfg.Timeout), WithActor(actor))
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", serverAddress, err)
	}

	logger.DebugKV(ctx, "Connected to deployer server", "server_address", serverAddress, "actor", actor.String())

	return client, nil
}
