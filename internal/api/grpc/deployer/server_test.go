package deployer

import (
	"context"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/gitter-badger/deployer-1/internal/domain/deployment"
)

const appSHA1 = "da39a3ee5e6b4b0d3255bfef95601890afd80709"

// fakeService implements Service with a single deployed unit.
type fakeService struct {
	unit      deployment.DeployedUnit
	requester deployment.Requester
	err       error
}

func (f *fakeService) ListAll(context.Context) ([]deployment.DeployedUnit, error) {
	return []deployment.DeployedUnit{f.unit}, f.err
}

func (f *fakeService) FindByContextRoot(_ context.Context, root deployment.ContextRoot) (deployment.DeployedUnit, error) {
	if root != f.unit.ContextRoot {
		return deployment.DeployedUnit{}, fmt.Errorf("context root %q: %w", root, deployment.ErrNotFound)
	}

	return f.unit, nil
}

func (f *fakeService) AvailableVersions(context.Context, deployment.ContextRoot) ([]deployment.Version, error) {
	return []deployment.Version{"1.0", "1.3.1"}, nil
}

func (f *fakeService) ListVersions(context.Context, deployment.Checksum) ([]deployment.Version, error) {
	return []deployment.Version{"1.0"}, f.err
}

func (f *fakeService) DeployChecksum(ctx context.Context, cs deployment.Checksum, name string) (deployment.DeployedUnit, error) {
	f.requester, _ = deployment.RequesterFromContext(ctx)

	if f.err != nil {
		return deployment.DeployedUnit{}, f.err
	}

	return deployment.DeployedUnit{Name: name, ContextRoot: "shop", Checksum: cs}, nil
}

func (f *fakeService) RedeployChecksum(_ context.Context, root deployment.ContextRoot, cs deployment.Checksum) (deployment.DeployedUnit, error) {
	unit := f.unit
	unit.ContextRoot = root
	unit.Checksum = cs

	return unit, f.err
}

func (f *fakeService) RedeployVersion(_ context.Context, root deployment.ContextRoot, version deployment.Version) (deployment.DeployedUnit, error) {
	unit := f.unit
	unit.ContextRoot = root
	unit.Version = version

	return unit, f.err
}

func (f *fakeService) UndeployContextRoot(ctx context.Context, root deployment.ContextRoot) (deployment.DeployedUnit, error) {
	return f.FindByContextRoot(ctx, root)
}

func newFakeService() *fakeService {
	return &fakeService{unit: deployment.DeployedUnit{
		Name:        "app.war",
		ContextRoot: "app",
		Checksum:    deployment.MustParseChecksum(appSHA1),
		Version:     "1.3.1",
	}}
}

func mustStruct(t *testing.T, fields map[string]any) *structpb.Struct {
	t.Helper()

	s, err := structpb.NewStruct(fields)
	require.NoError(t, err)

	return s
}

// TestServer_Validation rejects requests without required fields.
func TestServer_Validation(t *testing.T) {
	t.Parallel()

	s := NewServer(newFakeService())
	empty := mustStruct(t, nil)

	_, err := s.GetDeployment(context.Background(), empty)
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = s.Deploy(context.Background(), mustStruct(t, map[string]any{FieldChecksum: "nope"}))
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = s.Redeploy(context.Background(), mustStruct(t, map[string]any{FieldContextRoot: "app"}))
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

// TestServer_GetDeployment returns the unit with its versions.
func TestServer_GetDeployment(t *testing.T) {
	t.Parallel()

	s := NewServer(newFakeService())

	resp, err := s.GetDeployment(context.Background(), mustStruct(t, map[string]any{FieldContextRoot: "/app"}))
	require.NoError(t, err)

	unit, err := UnitFromStruct(resp.GetFields()[FieldDeployment].GetStructValue())
	require.NoError(t, err)
	require.Equal(t, newFakeService().unit, unit)
	require.Equal(t, []deployment.Version{"1.0", "1.3.1"}, VersionsFromList(resp.GetFields()[FieldVersions].GetListValue()))

	_, err = s.GetDeployment(context.Background(), mustStruct(t, map[string]any{FieldContextRoot: "missing"}))
	require.Equal(t, codes.NotFound, status.Code(err))
}

// TestServer_RedeployByVersion prefers the version over a checksum.
func TestServer_RedeployByVersion(t *testing.T) {
	t.Parallel()

	s := NewServer(newFakeService())

	resp, err := s.Redeploy(context.Background(), mustStruct(t, map[string]any{FieldContextRoot: "app", FieldVersion: "1.0"}))
	require.NoError(t, err)

	unit, err := UnitFromStruct(resp.GetFields()[FieldDeployment].GetStructValue())
	require.NoError(t, err)
	require.Equal(t, deployment.Version("1.0"), unit.Version)
}

// TestCode maps domain errors onto gRPC codes.
func TestCode(t *testing.T) {
	t.Parallel()

	for err, want := range map[error]codes.Code{
		nil:                                codes.OK,
		deployment.ErrNotFound:             codes.NotFound,
		deployment.ErrValidation:           codes.InvalidArgument,
		deployment.ErrAmbiguousResult:      codes.FailedPrecondition,
		deployment.ErrExecutionTimeout:     codes.DeadlineExceeded,
		deployment.ErrExecutionInterrupted: codes.Canceled,
		deployment.ErrExecutionFailed:      codes.Internal,
		deployment.ErrRepositoryProtocol:   codes.Internal,
	} {
		require.Equal(t, want, Code(err), "%v", err)
	}

	require.Equal(t, codes.NotFound, Code(fmt.Errorf("resolve checksum: %w", deployment.ErrNotFound)))
}

// TestServiceDesc_OverTheWire calls the service through a real gRPC server.
func TestServiceDesc_OverTheWire(t *testing.T) {
	t.Parallel()

	var (
		service  = newFakeService()
		listener = bufconn.Listen(1 << 20)
		server   = grpc.NewServer()
	)

	Register(server, NewServer(service))

	go func() {
		_ = server.Serve(listener)
	}()

	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
	})

	ctx := metadata.AppendToOutgoingContext(context.Background(), ActorMetadataKey, "alice@workstation")

	out := new(structpb.Struct)
	require.NoError(t, conn.Invoke(ctx, MethodDeploy, mustStruct(t, map[string]any{
		FieldChecksum: appSHA1,
		FieldName:     "shop.war",
	}), out))

	unit, err := UnitFromStruct(out.GetFields()[FieldDeployment].GetStructValue())
	require.NoError(t, err)
	require.Equal(t, "shop.war", unit.Name)
	require.Equal(t, "alice@workstation", service.requester.Principal)
	require.NotEmpty(t, service.requester.ClientIP)

	list := new(structpb.Struct)
	require.NoError(t, conn.Invoke(ctx, MethodListDeployments, mustStruct(t, nil), list))
	require.Len(t, list.GetFields()[FieldDeployments].GetListValue().GetValues(), 1)

	err = conn.Invoke(ctx, MethodUndeploy, mustStruct(t, map[string]any{FieldContextRoot: "missing"}), new(structpb.Struct))
	require.Equal(t, codes.NotFound, status.Code(err))
}
