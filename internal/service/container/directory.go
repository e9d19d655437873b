package container

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/samber/lo"

	"github.com/gitter-badger/deployer-1/internal/domain/deployment"
	"github.com/gitter-badger/deployer-1/internal/management"
)

// VersionResolver looks up the repository version of deployed content.
type VersionResolver interface {
	GetVersionByChecksum(ctx context.Context, cs deployment.Checksum) (deployment.Version, error)
}

// Directory answers what is currently deployed in the container.
type Directory struct {
	channel  management.Channel
	versions VersionResolver
}

// deploymentEntry is one element of a wildcard read.
type deploymentEntry struct {
	Outcome            management.Outcome `json:"outcome"`
	FailureDescription json.RawMessage    `json:"failure-description"`
	Result             deploymentResource `json:"result"`
}

type deploymentResource struct {
	Name      string            `json:"name"`
	Content   []deploymentBytes `json:"content"`
	Subsystem *struct {
		Web      *webSubsystem `json:"web"`
		Undertow *webSubsystem `json:"undertow"`
	} `json:"subsystem"`
}

type deploymentBytes struct {
	Hash *struct {
		Bytes string `json:"BYTES_VALUE"`
	} `json:"hash"`
}

type webSubsystem struct {
	ContextRoot *string `json:"context-root"`
}

// NewDirectory creates a directory. versions may be nil, leaving versions empty.
func NewDirectory(channel management.Channel, versions VersionResolver) *Directory {
	return &Directory{
		channel:  channel,
		versions: versions,
	}
}

// ListAll reads every deployment of the container.
func (d *Directory) ListAll(ctx context.Context) ([]deployment.DeployedUnit, error) {
	response, err := d.channel.Execute(ctx, &management.Request{
		Operation: management.OpReadResource,
		Address:   management.DeploymentAddress(management.Wildcard),
		Recursive: true,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("read deployments: %w", err)
	}

	if !response.Succeeded() {
		return nil, fmt.Errorf("read deployments: %s: %w", response.Failure(), deployment.ErrContainer)
	}

	var entries []deploymentEntry
	if err = response.DecodeResult(&entries); err != nil {
		return nil, fmt.Errorf("read deployments: %w: %w", deployment.ErrContainer, err)
	}

	units := make([]deployment.DeployedUnit, 0, len(entries))

	for _, entry := range entries {
		if entry.Outcome != "" && entry.Outcome != management.OutcomeSuccess {
			failure := (&management.Response{FailureDescription: entry.FailureDescription}).Failure()

			return nil, fmt.Errorf("read deployment: %s: %w", failure, deployment.ErrContainer)
		}

		unit, err := d.toUnit(ctx, entry.Result)
		if err != nil {
			return nil, err
		}

		units = append(units, unit)
	}

	return units, nil
}

// FindByContextRoot returns the unit mounted at root.
func (d *Directory) FindByContextRoot(ctx context.Context, root deployment.ContextRoot) (deployment.DeployedUnit, error) {
	units, err := d.ListAll(ctx)
	if err != nil {
		return deployment.DeployedUnit{}, err
	}

	unit, found := lo.Find(units, func(unit deployment.DeployedUnit) bool {
		return unit.ContextRoot == root
	})
	if !found {
		return deployment.DeployedUnit{}, fmt.Errorf("context root %q: %w", root, deployment.ErrNotFound)
	}

	return unit, nil
}

func (d *Directory) toUnit(ctx context.Context, resource deploymentResource) (deployment.DeployedUnit, error) {
	unit := deployment.DeployedUnit{
		Name:        resource.Name,
		ContextRoot: contextRoot(resource),
	}

	if len(resource.Content) > 0 && resource.Content[0].Hash != nil {
		checksum, err := deployment.ParseChecksum(resource.Content[0].Hash.Bytes)
		if err != nil {
			return deployment.DeployedUnit{}, fmt.Errorf("deployment %s hash: %w: %w", resource.Name, deployment.ErrContainer, err)
		}

		unit.Checksum = checksum
	}

	if d.versions == nil || unit.Checksum.IsZero() {
		return unit, nil
	}

	version, err := d.versions.GetVersionByChecksum(ctx, unit.Checksum)

	switch {
	case err == nil:
		unit.Version = version
	case errors.Is(err, deployment.ErrNotFound):
	default:
		return deployment.DeployedUnit{}, fmt.Errorf("version of %s: %w", unit, err)
	}

	return unit, nil
}

// contextRoot prefers the web subsystem and falls back to undertow.
func contextRoot(resource deploymentResource) deployment.ContextRoot {
	if resource.Subsystem == nil {
		return deployment.UnknownContextRoot
	}

	for _, web := range []*webSubsystem{resource.Subsystem.Web, resource.Subsystem.Undertow} {
		if web != nil && web.ContextRoot != nil {
			return deployment.NormalizeContextRoot(*web.ContextRoot)
		}
	}

	return deployment.UnknownContextRoot
}
