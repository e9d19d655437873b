package watcher

import (
	"context"
	"fmt"
	"time"

	"github.com/gitter-badger/deployer-1/internal/domain/deployment"
	"github.com/gitter-badger/deployer-1/internal/logger"
	"github.com/gitter-badger/deployer-1/internal/service/client"
)

// Options controls the watcher polling behavior and configuration.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// ServerAddress provides an optional gRPC server address override.
	ServerAddress string
	// PollInterval defines the interval between checks.
	PollInterval time.Duration
}

// DefaultPollInterval is used when Options.PollInterval is not set.
const DefaultPollInterval = 5 * time.Second

// Lister reads the deployed units.
type Lister interface {
	ListDeployments(ctx context.Context) ([]deployment.DeployedUnit, error)
}

// Run polls the server until ctx is canceled.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "deployer-watch")

	c, err := client.Connect(ctx, &client.Options{
		ConfigPath:    opts.ConfigPath,
		ServerAddress: opts.ServerAddress,
	})
	if err != nil {
		return fmt.Errorf("dial server: %w", err)
	}

	defer func() {
		_ = c.Close()
	}()

	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	logger.InfoKV(ctx, "Watching deployments", "interval", interval.String())

	Watch(ctx, c, interval)

	return nil
}

// Watch lists deployments every interval and logs what changed between polls.
// The first successful poll is the baseline. It returns when ctx is canceled.
func Watch(ctx context.Context, lister Lister, interval time.Duration) {
	var (
		previous []deployment.DeployedUnit
		baseline bool
	)

	poll := func() {
		current, err := lister.ListDeployments(ctx)
		if err != nil {
			logger.ErrorKV(ctx, "List deployments failed", "error", err)

			return
		}

		if !baseline {
			baseline = true
			previous = current

			logger.InfoKV(ctx, "Deployments observed", "count", len(current))

			return
		}

		if drift := deployment.Compare(previous, current); !drift.Empty() {
			logger.WarnKV(ctx, "Deployments changed",
				"added", drift.Added,
				"removed", drift.Removed,
				"changed", drift.Changed,
			)
		}

		previous = current
	}

	poll()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Context canceled, exiting")

			return
		case <-ticker.C:
			poll()
		}
	}
}
