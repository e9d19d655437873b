package deployer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/gitter-badger/deployer-1/internal/domain/deployment"
	"github.com/gitter-badger/deployer-1/internal/logger"
	"github.com/gitter-badger/deployer-1/internal/management"
)

// Repository resolves artifacts by checksum.
type Repository interface {
	ResolveByChecksum(ctx context.Context, cs deployment.Checksum) (deployment.ArtifactLocation, error)
	OpenArtifactStream(ctx context.Context, cs deployment.Checksum) (io.ReadCloser, error)
	ListVersions(ctx context.Context, loc deployment.ArtifactLocation) ([]deployment.Version, error)
	ChecksumForVersion(
		ctx context.Context,
		loc deployment.ArtifactLocation,
		version deployment.Version,
		algorithm string,
	) (deployment.Checksum, error)
}

// Executor runs plans against the container.
type Executor interface {
	Execute(ctx context.Context, plan *deployment.Plan, handler management.MessageHandler) (deployment.RawResults, error)
}

// Directory reads what the container currently runs.
type Directory interface {
	ListAll(ctx context.Context) ([]deployment.DeployedUnit, error)
	FindByContextRoot(ctx context.Context, root deployment.ContextRoot) (deployment.DeployedUnit, error)
}

// KnownDeployments stores the last observed deployments.
type KnownDeployments interface {
	Save(ctx context.Context, units []deployment.DeployedUnit) error
}

// Options wire a Service. Repository, Executor and Directory are required.
type Options struct {
	Repository Repository
	Executor   Executor
	Directory  Directory
	// Known is optional; nothing is stored when nil.
	Known KnownDeployments
	// Auditor is optional; a LogAuditor without actor is used when nil.
	Auditor Auditor
	// Handler receives container progress messages; they are logged when nil.
	Handler management.MessageHandler
}

// Service is the entry point for every deployment use case.
type Service struct {
	repository Repository
	executor   Executor
	directory  Directory
	known      KnownDeployments
	auditor    Auditor
	handler    management.MessageHandler
	locks      *rootLocks
}

// New creates a service.
func New(opts Options) *Service {
	auditor := opts.Auditor
	if auditor == nil {
		auditor = NewLogAuditor(deployment.Actor{})
	}

	return &Service{
		repository: opts.Repository,
		executor:   opts.Executor,
		directory:  opts.Directory,
		known:      opts.Known,
		auditor:    auditor,
		handler:    opts.Handler,
		locks:      newRootLocks(),
	}
}

// ResolveChecksum finds the artifact with the given checksum.
func (s *Service) ResolveChecksum(ctx context.Context, cs deployment.Checksum) (deployment.ArtifactLocation, error) {
	loc, err := s.repository.ResolveByChecksum(ctx, cs)
	if err != nil {
		return deployment.ArtifactLocation{}, fmt.Errorf("resolve checksum: %w", err)
	}

	return loc, nil
}

// ListVersions lists every version of the artifact with the given checksum.
func (s *Service) ListVersions(ctx context.Context, cs deployment.Checksum) ([]deployment.Version, error) {
	loc, err := s.ResolveChecksum(ctx, cs)
	if err != nil {
		return nil, err
	}

	versions, err := s.repository.ListVersions(ctx, loc)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}

	return versions, nil
}

// ListAll returns the units currently deployed.
func (s *Service) ListAll(ctx context.Context) ([]deployment.DeployedUnit, error) {
	return s.directory.ListAll(ctx)
}

// FindByContextRoot returns the unit mounted at root.
func (s *Service) FindByContextRoot(ctx context.Context, root deployment.ContextRoot) (deployment.DeployedUnit, error) {
	return s.directory.FindByContextRoot(ctx, root)
}

// Deploy adds and deploys new content. The stream is closed before returning.
func (s *Service) Deploy(ctx context.Context, unit deployment.DeployedUnit, stream io.ReadCloser) (deployment.PlanResult, error) {
	defer s.locks.lock(unit.ContextRoot)()

	return s.transition(ctx, deployment.OperationDeploy, unit, deployment.BuildDeployPlan(unit, stream), stream)
}

// Replace swaps the content of a deployed unit. The stream is closed before returning.
func (s *Service) Replace(ctx context.Context, unit deployment.DeployedUnit, stream io.ReadCloser) (deployment.PlanResult, error) {
	defer s.locks.lock(unit.ContextRoot)()

	return s.transition(ctx, deployment.OperationRedeploy, unit, deployment.BuildReplacePlan(unit, stream), stream)
}

// Undeploy undeploys a unit and removes its content.
func (s *Service) Undeploy(ctx context.Context, unit deployment.DeployedUnit) (deployment.PlanResult, error) {
	defer s.locks.lock(unit.ContextRoot)()

	return s.transition(ctx, deployment.OperationUndeploy, unit, deployment.BuildUndeployPlan(unit), nil)
}

// DeployChecksum deploys the artifact with the given checksum as a new unit.
// The name defaults to the artifact file name without its version; its
// context root must not be deployed yet.
func (s *Service) DeployChecksum(ctx context.Context, cs deployment.Checksum, name string) (deployment.DeployedUnit, error) {
	unit, err := s.unitForChecksum(ctx, cs)
	if err != nil {
		return deployment.DeployedUnit{}, err
	}

	if name != "" {
		unit = unit.WithName(name)
	}

	defer s.locks.lock(unit.ContextRoot)()

	return s.deployNew(ctx, unit)
}

// RedeployChecksum replaces the content at root with the artifact with the given checksum.
func (s *Service) RedeployChecksum(
	ctx context.Context,
	root deployment.ContextRoot,
	cs deployment.Checksum,
) (deployment.DeployedUnit, error) {
	defer s.locks.lock(root)()

	current, err := s.directory.FindByContextRoot(ctx, root)
	if err != nil {
		return deployment.DeployedUnit{}, err
	}

	return s.redeploy(ctx, current, cs)
}

// Upsert redeploys root when it is deployed and deploys it otherwise.
// It reports whether a new unit was created.
func (s *Service) Upsert(
	ctx context.Context,
	root deployment.ContextRoot,
	cs deployment.Checksum,
) (deployment.DeployedUnit, bool, error) {
	defer s.locks.lock(root)()

	current, err := s.directory.FindByContextRoot(ctx, root)

	switch {
	case err == nil:
		unit, err := s.redeploy(ctx, current, cs)

		return unit, false, err
	case !errors.Is(err, deployment.ErrNotFound):
		return deployment.DeployedUnit{}, false, err
	}

	unit, err := s.unitForChecksum(ctx, cs)
	if err != nil {
		return deployment.DeployedUnit{}, false, err
	}

	unit = unit.WithName(string(root) + path.Ext(unit.Name))

	unit, err = s.deployNew(ctx, unit)

	return unit, err == nil, err
}

// RedeployVersion replaces the content at root with another version of the same artifact.
func (s *Service) RedeployVersion(
	ctx context.Context,
	root deployment.ContextRoot,
	version deployment.Version,
) (deployment.DeployedUnit, error) {
	defer s.locks.lock(root)()

	current, err := s.directory.FindByContextRoot(ctx, root)
	if err != nil {
		return deployment.DeployedUnit{}, err
	}

	if current.Version == version {
		logger.InfoKV(ctx, "Version already deployed", "context_root", root, "version", version)

		return current, nil
	}

	loc, err := s.ResolveChecksum(ctx, current.Checksum)
	if err != nil {
		return deployment.DeployedUnit{}, err
	}

	cs, err := s.repository.ChecksumForVersion(ctx, loc, version, current.Checksum.Algorithm())
	if err != nil {
		return deployment.DeployedUnit{}, fmt.Errorf("checksum of version %s: %w", version, err)
	}

	return s.redeploy(ctx, current, cs)
}

// AvailableVersions lists the versions the unit at root could be switched to.
func (s *Service) AvailableVersions(ctx context.Context, root deployment.ContextRoot) ([]deployment.Version, error) {
	unit, err := s.directory.FindByContextRoot(ctx, root)
	if err != nil {
		return nil, err
	}

	return s.ListVersions(ctx, unit.Checksum)
}

// UndeployContextRoot undeploys the unit at root.
func (s *Service) UndeployContextRoot(ctx context.Context, root deployment.ContextRoot) (deployment.DeployedUnit, error) {
	defer s.locks.lock(root)()

	unit, err := s.directory.FindByContextRoot(ctx, root)
	if err != nil {
		return deployment.DeployedUnit{}, err
	}

	if _, err = s.transition(ctx, deployment.OperationUndeploy, unit, deployment.BuildUndeployPlan(unit), nil); err != nil {
		return deployment.DeployedUnit{}, err
	}

	return unit, nil
}

// CheckContextRoot rejects a request whose body names another context root than its target.
func CheckContextRoot(expected, actual deployment.ContextRoot) error {
	if expected != actual {
		return fmt.Errorf("context root %q does not match %q: %w", actual, expected, deployment.ErrValidation)
	}

	return nil
}

// unitForChecksum derives the unit an artifact deploys as.
func (s *Service) unitForChecksum(ctx context.Context, cs deployment.Checksum) (deployment.DeployedUnit, error) {
	loc, err := s.ResolveChecksum(ctx, cs)
	if err != nil {
		return deployment.DeployedUnit{}, err
	}

	return deployment.UnitFromLocation(loc, cs)
}

// deployNew deploys unit unless its context root is taken. Callers hold the root lock.
func (s *Service) deployNew(ctx context.Context, unit deployment.DeployedUnit) (deployment.DeployedUnit, error) {
	_, err := s.directory.FindByContextRoot(ctx, unit.ContextRoot)

	switch {
	case err == nil:
		return deployment.DeployedUnit{}, fmt.Errorf("context root %q is already deployed: %w",
			unit.ContextRoot, deployment.ErrValidation)
	case !errors.Is(err, deployment.ErrNotFound):
		return deployment.DeployedUnit{}, err
	}

	stream, err := s.repository.OpenArtifactStream(ctx, unit.Checksum)
	if err != nil {
		return deployment.DeployedUnit{}, fmt.Errorf("open artifact: %w", err)
	}

	if _, err = s.transition(ctx, deployment.OperationDeploy, unit, deployment.BuildDeployPlan(unit, stream), stream); err != nil {
		return deployment.DeployedUnit{}, err
	}

	return unit, nil
}

// redeploy replaces the content of current. Callers hold the root lock.
func (s *Service) redeploy(
	ctx context.Context,
	current deployment.DeployedUnit,
	cs deployment.Checksum,
) (deployment.DeployedUnit, error) {
	loc, err := s.ResolveChecksum(ctx, cs)
	if err != nil {
		return deployment.DeployedUnit{}, err
	}

	version, err := loc.Version()
	if err != nil {
		return deployment.DeployedUnit{}, err
	}

	stream, err := s.repository.OpenArtifactStream(ctx, cs)
	if err != nil {
		return deployment.DeployedUnit{}, fmt.Errorf("open artifact: %w", err)
	}

	unit := current
	unit.Checksum = cs
	unit.Version = version

	if _, err = s.transition(ctx, deployment.OperationRedeploy, unit, deployment.BuildReplacePlan(unit, stream), stream); err != nil {
		return deployment.DeployedUnit{}, err
	}

	return unit, nil
}

// transition executes and classifies a plan, then audits and records a success.
// stream, when set, is closed in every case.
func (s *Service) transition(
	ctx context.Context,
	operation deployment.Operation,
	unit deployment.DeployedUnit,
	plan *deployment.Plan,
	stream io.Closer,
) (deployment.PlanResult, error) {
	if stream != nil {
		defer func() {
			if err := stream.Close(); err != nil {
				logger.WarnKV(ctx, "Failed to close artifact stream", "error", err)
			}
		}()
	}

	ctx = logger.WithFields(ctx, "operation", operation, "context_root", unit.ContextRoot, "plan_id", plan.ID())

	logger.InfoKV(ctx, "Executing plan", "unit", unit, "version", unit.Version)

	raw, err := s.executor.Execute(ctx, plan, s.handler)
	if err != nil {
		return deployment.PlanResult{}, fmt.Errorf("%s %s: %w", operation, unit, err)
	}

	result := deployment.Classify(plan, raw)
	if err = result.Err(); err != nil {
		logger.ErrorKV(ctx, "Plan failed", "error", err)

		return result, fmt.Errorf("%s %s: %w", operation, unit, err)
	}

	if result.Status == deployment.StatusSuccessRequiresRestart {
		logger.WarnKV(ctx, "Plan succeeded, the container needs a restart")
	} else {
		logger.Info(ctx, "Plan succeeded")
	}

	s.auditor.Allow(ctx, operation, unit.ContextRoot, unit.Version)
	s.recordKnown(ctx)

	return result, nil
}

// recordKnown refreshes the known deployments; failures are only logged.
func (s *Service) recordKnown(ctx context.Context) {
	if s.known == nil {
		return
	}

	units, err := s.directory.ListAll(ctx)
	if err != nil {
		logger.WarnKV(ctx, "Failed to read deployments after change", "error", err)
		return
	}

	if err = s.known.Save(ctx, units); err != nil {
		logger.WarnKV(ctx, "Failed to store known deployments", "error", err)
	}
}
