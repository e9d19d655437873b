package server

import (
	"context"
	"errors"

	"github.com/gitter-badger/deployer-1/internal/domain/deployment"
	"github.com/gitter-badger/deployer-1/internal/logger"
	"github.com/gitter-badger/deployer-1/internal/repository/deployments"
)

// knownLoader reads the deployments recorded by the last run.
type knownLoader interface {
	Load(ctx context.Context) (*deployments.Snapshot, error)
}

// deploymentLister reads what the container runs now.
type deploymentLister interface {
	ListAll(ctx context.Context) ([]deployment.DeployedUnit, error)
}

// reportDrift logs deployments changed outside this server since the last run.
// Failures are logged and never stop the server.
func reportDrift(ctx context.Context, known knownLoader, directory deploymentLister) {
	snapshot, err := known.Load(ctx)

	switch {
	case errors.Is(err, deployments.ErrNotFound):
		logger.Info(ctx, "No known deployments recorded yet")

		return
	case err != nil:
		logger.WarnKV(ctx, "Known deployments unreadable", "error", err)

		return
	}

	current, err := directory.ListAll(ctx)
	if err != nil {
		logger.WarnKV(ctx, "Container unavailable at startup", "error", err)

		return
	}

	result := deployment.Compare(snapshot.Deployments, current)
	if result.Empty() {
		logger.InfoKV(ctx, "Deployments match the last run", "count", len(current))

		return
	}

	logger.WarnKV(ctx, "Deployments changed since the last run",
		"recorded_at", snapshot.UpdatedAt,
		"added", result.Added,
		"removed", result.Removed,
		"changed", result.Changed,
	)
}
