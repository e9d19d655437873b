// Package deployer orchestrates deployments: it resolves artifacts in the
// repository, builds and executes plans against the container and reports the
// classified result.
//
// Mutating operations are serialized per context root within the process.
// Every successful transition is audited and followed by a refresh of the
// known deployments file.
package deployer
