// Package client is the gRPC client of the deployer server.
//
// Every call carries the local user and host as actor metadata so the server
// can audit who requested a transition.
package client
