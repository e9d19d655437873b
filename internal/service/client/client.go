package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	api "github.com/gitter-badger/deployer-1/internal/api/grpc/deployer"
	"github.com/gitter-badger/deployer-1/internal/config"
	"github.com/gitter-badger/deployer-1/internal/domain/deployment"
)

// Client wraps DeployerService calls with convenience helpers.
type Client struct {
	// conn is the underlying gRPC connection to the deployer server.
	conn *grpc.ClientConn
	// health checks the server status.
	health healthpb.HealthClient

	// actor is sent with every call.
	actor deployment.Actor
	// callTimeout is the default timeout for individual RPC calls.
	callTimeout time.Duration
	// dialOptions are appended to the defaults.
	dialOptions []grpc.DialOption
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a default timeout for service calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// WithActor sets the actor reported to the server.
func WithActor(actor deployment.Actor) Option {
	return func(c *Client) {
		c.actor = actor
	}
}

// WithDialOptions adds gRPC dial options, e.g. a custom dialer.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(c *Client) {
		c.dialOptions = append(c.dialOptions, opts...)
	}
}

// errAddressRequired is returned when a required address value is missing.
var errAddressRequired = errors.New("address must be provided")

// ErrNotServing is returned by Health when the server reports a non-serving status.
var ErrNotServing = errors.New("deployer server is not serving")

// Dial creates a client for the deployer server at address.
// Note: this uses insecure transport credentials; deploy on a trusted network
// or terminate TLS in a proxy.
func Dial(_ context.Context, address string, opts ...Option) (*Client, error) {
	if address == "" {
		return nil, errAddressRequired
	}

	client := &Client{
		callTimeout: config.DefaultTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	dialOptions := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, client.dialOptions...)

	conn, err := grpc.NewClient(address, dialOptions...)
	if err != nil {
		return nil, fmt.Errorf("dial deployer server: %w", err)
	}

	client.conn = conn
	client.health = healthpb.NewHealthClient(conn)

	return client, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}

	return c.conn.Close()
}

// Health checks that the server is serving DeployerService.
func (c *Client) Health(ctx context.Context) error {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.health.Check(callCtx, &healthpb.HealthCheckRequest{Service: api.ServiceName})
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}

	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%w: %s", ErrNotServing, resp.GetStatus())
	}

	return nil
}

// ListDeployments returns every deployed unit.
func (c *Client) ListDeployments(ctx context.Context) ([]deployment.DeployedUnit, error) {
	resp, err := c.invoke(ctx, api.MethodListDeployments, nil)
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}

	values := resp.GetFields()[api.FieldDeployments].GetListValue().GetValues()
	units := make([]deployment.DeployedUnit, 0, len(values))

	for _, value := range values {
		unit, err := api.UnitFromStruct(value.GetStructValue())
		if err != nil {
			return nil, fmt.Errorf("list deployments: %w", err)
		}

		units = append(units, unit)
	}

	return units, nil
}

// GetDeployment returns the unit at root and the versions it can switch to.
func (c *Client) GetDeployment(
	ctx context.Context,
	root deployment.ContextRoot,
) (deployment.DeployedUnit, []deployment.Version, error) {
	resp, err := c.invoke(ctx, api.MethodGetDeployment, map[string]any{
		api.FieldContextRoot: root.String(),
	})
	if err != nil {
		return deployment.DeployedUnit{}, nil, fmt.Errorf("get deployment: %w", err)
	}

	unit, err := unitField(resp)
	if err != nil {
		return deployment.DeployedUnit{}, nil, fmt.Errorf("get deployment: %w", err)
	}

	return unit, api.VersionsFromList(resp.GetFields()[api.FieldVersions].GetListValue()), nil
}

// Deploy deploys the artifact with checksum cs, optionally under name.
func (c *Client) Deploy(ctx context.Context, cs deployment.Checksum, name string) (deployment.DeployedUnit, error) {
	fields := map[string]any{api.FieldChecksum: cs.Hex()}
	if name != "" {
		fields[api.FieldName] = name
	}

	return c.transition(ctx, "deploy", api.MethodDeploy, fields)
}

// RedeployChecksum replaces the content at root with the artifact with checksum cs.
func (c *Client) RedeployChecksum(
	ctx context.Context,
	root deployment.ContextRoot,
	cs deployment.Checksum,
) (deployment.DeployedUnit, error) {
	return c.transition(ctx, "redeploy", api.MethodRedeploy, map[string]any{
		api.FieldContextRoot: root.String(),
		api.FieldChecksum:    cs.Hex(),
	})
}

// RedeployVersion switches the unit at root to another version.
func (c *Client) RedeployVersion(
	ctx context.Context,
	root deployment.ContextRoot,
	version deployment.Version,
) (deployment.DeployedUnit, error) {
	return c.transition(ctx, "redeploy", api.MethodRedeploy, map[string]any{
		api.FieldContextRoot: root.String(),
		api.FieldVersion:     version.String(),
	})
}

// Undeploy removes the unit at root.
func (c *Client) Undeploy(ctx context.Context, root deployment.ContextRoot) (deployment.DeployedUnit, error) {
	return c.transition(ctx, "undeploy", api.MethodUndeploy, map[string]any{
		api.FieldContextRoot: root.String(),
	})
}

// ListVersions lists the versions of the artifact with checksum cs.
func (c *Client) ListVersions(ctx context.Context, cs deployment.Checksum) ([]deployment.Version, error) {
	resp, err := c.invoke(ctx, api.MethodListVersions, map[string]any{api.FieldChecksum: cs.Hex()})
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}

	return api.VersionsFromList(resp.GetFields()[api.FieldVersions].GetListValue()), nil
}

func (c *Client) transition(
	ctx context.Context,
	name string,
	method string,
	fields map[string]any,
) (deployment.DeployedUnit, error) {
	resp, err := c.invoke(ctx, method, fields)
	if err != nil {
		return deployment.DeployedUnit{}, fmt.Errorf("%s: %w", name, err)
	}

	unit, err := unitField(resp)
	if err != nil {
		return deployment.DeployedUnit{}, fmt.Errorf("%s: %w", name, err)
	}

	return unit, nil
}

func (c *Client) invoke(ctx context.Context, method string, fields map[string]any) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	if c.actor != (deployment.Actor{}) {
		callCtx = metadata.AppendToOutgoingContext(callCtx, api.ActorMetadataKey, c.actor.String())
	}

	resp := new(structpb.Struct)
	if err := c.conn.Invoke(callCtx, method, req, resp); err != nil {
		return nil, err
	}

	return resp, nil
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}

func unitField(resp *structpb.Struct) (deployment.DeployedUnit, error) {
	return api.UnitFromStruct(resp.GetFields()[api.FieldDeployment].GetStructValue())
}
