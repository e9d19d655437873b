package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	api "github.com/gitter-badger/deployer-1/internal/api/grpc/deployer"
	rest "github.com/gitter-badger/deployer-1/internal/api/http/deployments"
	"github.com/gitter-badger/deployer-1/internal/config"
	"github.com/gitter-badger/deployer-1/internal/domain/deployment"
	"github.com/gitter-badger/deployer-1/internal/logger"
	"github.com/gitter-badger/deployer-1/internal/management"
	"github.com/gitter-badger/deployer-1/internal/repository/artifactory"
	"github.com/gitter-badger/deployer-1/internal/repository/deployments"
	"github.com/gitter-badger/deployer-1/internal/service/container"
	"github.com/gitter-badger/deployer-1/internal/service/deployer"
)

// Options controls the deployer-server process and configuration.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// ListenAddress overrides the gRPC listen address.
	ListenAddress string
	// HTTPAddress overrides the REST listen address.
	HTTPAddress string
	// DeploymentsFile overrides the known deployments file.
	DeploymentsFile string
}

// ErrNoServerAddress indicates missing server configuration.
var ErrNoServerAddress = errors.New("no server address configured")

// shutdownTimeout bounds the graceful stop of the HTTP server.
const shutdownTimeout = 10 * time.Second

// Run starts the gRPC and REST servers and blocks until ctx is canceled or a server fails.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "deployer-server")

	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	if err = config.ValidateServer(settings); err != nil {
		return fmt.Errorf("validate settings: %w", err)
	}

	if err = logger.Configure(settings.LogLevel, settings.LogFormat); err != nil {
		return err
	}

	if opts.DeploymentsFile != "" {
		settings.DeploymentsFile = opts.DeploymentsFile
	}

	if opts.HTTPAddress != "" {
		settings.HTTPAddress = opts.HTTPAddress
	}

	listenAddress, err := resolveListenAddress(settings.ServerAddress, opts.ListenAddress)
	if err != nil {
		return fmt.Errorf("resolve listen address: %w", err)
	}

	app, err := newApplication(settings)
	if err != nil {
		return fmt.Errorf("initialise service: %w", err)
	}

	// The container channel is closed after both servers have drained.
	defer func() {
		_ = app.channel.Close()
	}()

	reportDrift(ctx, app.known, app.directory)

	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", listenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", listenAddress, err)
	}

	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(unaryLogger(ctx)))
	healthServer := health.NewServer()

	api.Register(grpcServer, api.NewServer(app.service))
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(api.ServiceName, healthpb.HealthCheckResponse_SERVING)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.InfoKV(ctx, "gRPC server listening", "listen_address", listenAddress)

		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve gRPC: %w", err)
		}

		return nil
	})

	var httpServer *http.Server

	if settings.HTTPAddress != "" {
		httpServer = &http.Server{
			Addr:              settings.HTTPAddress,
			Handler:           rest.New(app.service).Routes(rest.Options{}),
			ReadHeaderTimeout: settings.Timeout,
			BaseContext: func(net.Listener) context.Context {
				return logger.WithName(ctx, "http")
			},
		}

		group.Go(func() error {
			logger.InfoKV(ctx, "HTTP server listening", "listen_address", settings.HTTPAddress)

			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve HTTP: %w", err)
			}

			return nil
		})
	}

	group.Go(func() error {
		<-groupCtx.Done()

		logger.Info(ctx, "Shutting down servers")
		healthServer.Shutdown()

		if httpServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.ErrorKV(ctx, "HTTP shutdown failed", "error", err)
			}
		}

		grpcServer.GracefulStop()

		return nil
	})

	if err = group.Wait(); err != nil {
		return err
	}

	logger.Info(ctx, "Deployer server stopped")

	return nil
}

// application holds the wired components of one server process.
type application struct {
	channel   *management.HTTPChannel
	directory *container.Directory
	known     *deployments.FileRepository
	service   *deployer.Service
}

func newApplication(settings *config.Config) (*application, error) {
	repository, err := artifactory.New(artifactory.Options{
		URL:      settings.Repository.URL,
		Username: settings.Repository.Username,
		Password: settings.Repository.Password,
		Timeout:  settings.Repository.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("repository client: %w", err)
	}

	channel, err := management.NewHTTPChannel(management.HTTPOptions{
		URL:      settings.Container.URL,
		Username: settings.Container.Username,
		Password: settings.Container.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("management channel: %w", err)
	}

	actor, err := deployment.DetectActor()
	if err != nil {
		_ = channel.Close()

		return nil, err
	}

	var (
		directory = container.NewDirectory(channel, repository)
		known     = deployments.NewFileRepository(settings.DeploymentsFile)
	)

	service := deployer.New(deployer.Options{
		Repository: repository,
		Executor:   container.NewExecutor(channel, settings.Container.PlanTimeout),
		Directory:  directory,
		Known:      known,
		Auditor:    deployer.NewLogAuditor(actor),
	})

	return &application{
		channel:   channel,
		directory: directory,
		known:     known,
		service:   service,
	}, nil
}

// unaryLogger scopes each call's logger to its method and logs failures.
func unaryLogger(base context.Context) grpc.UnaryServerInterceptor {
	log := logger.FromContext(base).Named("grpc")

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		ctx = logger.WithKV(logger.ToContext(ctx, log), "method", info.FullMethod)

		start := time.Now()
		resp, err := next(ctx, req)

		if err != nil {
			logger.WarnKV(ctx, "Call failed", "error", err, "duration", time.Since(start))
		} else {
			logger.DebugKV(ctx, "Call served", "duration", time.Since(start))
		}

		return resp, err
	}
}

// resolveListenAddress determines the listen address for the gRPC server.
// If override is provided, uses it directly. Otherwise extracts port from configAddr.
func resolveListenAddress(configAddr, override string) (string, error) {
	if override != "" {
		return override, nil
	}

	if configAddr == "" {
		return "", ErrNoServerAddress
	}

	_, port, err := net.SplitHostPort(configAddr)
	if err != nil {
		return "", fmt.Errorf("invalid server address format %q: %w", configAddr, err)
	}

	// Port-only binding listens on all interfaces.
	return ":" + port, nil
}
