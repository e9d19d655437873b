// Package deployer exposes the deployment service over gRPC.
//
// The service is described by a hand-written grpc.ServiceDesc whose requests
// and responses are google.protobuf.Struct messages, so any gRPC client can
// call it without generated stubs.
package deployer
