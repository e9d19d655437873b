// Package server runs the deployer server process.
//
// It wires the repository client, the container management channel and the
// deployment service, then serves them over gRPC and, when configured, REST.
package server
