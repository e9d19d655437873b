package deployer

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "deployer.v1.DeployerService"

// Full method names for clients.
const (
	MethodListDeployments = "/" + ServiceName + "/ListDeployments"
	MethodGetDeployment   = "/" + ServiceName + "/GetDeployment"
	MethodDeploy          = "/" + ServiceName + "/Deploy"
	MethodRedeploy        = "/" + ServiceName + "/Redeploy"
	MethodUndeploy        = "/" + ServiceName + "/Undeploy"
	MethodListVersions    = "/" + ServiceName + "/ListVersions"
)

type unaryMethod func(s *Server, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

// ServiceDesc describes DeployerService for grpc.Server.RegisterService.
//
//nolint:gochecknoglobals // Mirrors generated service descriptors.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DeployerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListDeployments", Handler: handler(MethodListDeployments, (*Server).ListDeployments)},
		{MethodName: "GetDeployment", Handler: handler(MethodGetDeployment, (*Server).GetDeployment)},
		{MethodName: "Deploy", Handler: handler(MethodDeploy, (*Server).Deploy)},
		{MethodName: "Redeploy", Handler: handler(MethodRedeploy, (*Server).Redeploy)},
		{MethodName: "Undeploy", Handler: handler(MethodUndeploy, (*Server).Undeploy)},
		{MethodName: "ListVersions", Handler: handler(MethodListVersions, (*Server).ListVersions)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "deployer/v1/deployer.proto",
}

// Register adds the service to a gRPC server.
func Register(registrar grpc.ServiceRegistrar, server *Server) {
	registrar.RegisterService(&ServiceDesc, server)
}

// handler adapts a Server method to grpc.MethodHandler the way generated code does.
func handler(fullMethod string, method unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}

		server, _ := srv.(*Server)

		if interceptor == nil {
			return method(server, ctx, in)
		}

		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}

		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			request, _ := req.(*structpb.Struct)

			return method(server, ctx, request)
		})
	}
}
