package deployer

import (
	"context"

	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/gitter-badger/deployer-1/internal/domain/deployment"
	"github.com/gitter-badger/deployer-1/internal/logger"
)

// ActorMetadataKey carries the calling user as "user@host".
const ActorMetadataKey = "x-deployer-actor"

// Service abstracts the business operations the transport layer depends on.
type Service interface {
	ListAll(ctx context.Context) ([]deployment.DeployedUnit, error)
	FindByContextRoot(ctx context.Context, root deployment.ContextRoot) (deployment.DeployedUnit, error)
	AvailableVersions(ctx context.Context, root deployment.ContextRoot) ([]deployment.Version, error)
	ListVersions(ctx context.Context, cs deployment.Checksum) ([]deployment.Version, error)
	DeployChecksum(ctx context.Context, cs deployment.Checksum, name string) (deployment.DeployedUnit, error)
	RedeployChecksum(ctx context.Context, root deployment.ContextRoot, cs deployment.Checksum) (deployment.DeployedUnit, error)
	RedeployVersion(ctx context.Context, root deployment.ContextRoot, version deployment.Version) (deployment.DeployedUnit, error)
	UndeployContextRoot(ctx context.Context, root deployment.ContextRoot) (deployment.DeployedUnit, error)
}

// DeployerServer is the server API of DeployerService.
type DeployerServer interface {
	ListDeployments(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetDeployment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Deploy(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Redeploy(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Undeploy(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListVersions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// Server implements DeployerService.
type Server struct {
	// service provides the business logic for deployments.
	service Service
}

// NewServer wires the provided service implementation into a gRPC handler.
func NewServer(service Service) *Server {
	return &Server{
		service: service,
	}
}

// ListDeployments returns every deployed unit.
func (s *Server) ListDeployments(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	units, err := s.service.ListAll(ctx)
	if err != nil {
		return nil, toStatus(err)
	}

	list := make([]any, 0, len(units))
	for _, unit := range units {
		list = append(list, UnitToMap(unit))
	}

	return newStruct(map[string]any{FieldDeployments: list})
}

// GetDeployment returns one unit and the versions it can switch to.
func (s *Server) GetDeployment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	root, err := requireString(req, FieldContextRoot)
	if err != nil {
		return nil, toStatus(err)
	}

	unit, err := s.service.FindByContextRoot(ctx, deployment.NormalizeContextRoot(root))
	if err != nil {
		return nil, toStatus(err)
	}

	versions, err := s.service.AvailableVersions(ctx, unit.ContextRoot)
	if err != nil {
		logger.WarnKV(ctx, "Versions unavailable", "context_root", unit.ContextRoot, "error", err)
	}

	return newStruct(map[string]any{
		FieldDeployment: UnitToMap(unit),
		FieldVersions:   VersionsToList(versions),
	})
}

// Deploy deploys the artifact with the requested checksum as a new unit.
func (s *Server) Deploy(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	cs, err := checksumField(req)
	if err != nil {
		return nil, toStatus(err)
	}

	unit, err := s.service.DeployChecksum(withRequester(ctx), cs, stringField(req, FieldName))
	if err != nil {
		return nil, toStatus(err)
	}

	return newStruct(map[string]any{FieldDeployment: UnitToMap(unit)})
}

// Redeploy replaces a unit's content by checksum or by version.
func (s *Server) Redeploy(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	rawRoot, err := requireString(req, FieldContextRoot)
	if err != nil {
		return nil, toStatus(err)
	}

	var (
		root = deployment.NormalizeContextRoot(rawRoot)
		unit deployment.DeployedUnit
	)

	ctx = withRequester(ctx)

	if version := stringField(req, FieldVersion); version != "" {
		unit, err = s.service.RedeployVersion(ctx, root, deployment.Version(version))
	} else {
		var cs deployment.Checksum

		if cs, err = checksumField(req); err != nil {
			return nil, toStatus(err)
		}

		unit, err = s.service.RedeployChecksum(ctx, root, cs)
	}

	if err != nil {
		return nil, toStatus(err)
	}

	return newStruct(map[string]any{FieldDeployment: UnitToMap(unit)})
}

// Undeploy removes the unit at the requested context root.
func (s *Server) Undeploy(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	root, err := requireString(req, FieldContextRoot)
	if err != nil {
		return nil, toStatus(err)
	}

	unit, err := s.service.UndeployContextRoot(withRequester(ctx), deployment.NormalizeContextRoot(root))
	if err != nil {
		return nil, toStatus(err)
	}

	return newStruct(map[string]any{FieldDeployment: UnitToMap(unit)})
}

// ListVersions lists the versions of the artifact with the requested checksum.
func (s *Server) ListVersions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	cs, err := checksumField(req)
	if err != nil {
		return nil, toStatus(err)
	}

	versions, err := s.service.ListVersions(ctx, cs)
	if err != nil {
		return nil, toStatus(err)
	}

	return newStruct(map[string]any{FieldVersions: VersionsToList(versions)})
}

// withRequester records the caller's actor metadata and address for auditing.
func withRequester(ctx context.Context) context.Context {
	var requester deployment.Requester

	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(ActorMetadataKey); len(values) > 0 {
			requester.Principal = values[0]
		}
	}

	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		requester.ClientIP = p.Addr.String()
	}

	return deployment.WithRequester(ctx, requester)
}
