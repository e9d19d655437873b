// Package deployment contains the core domain types of the deployer.
//
// It defines the identity of deployed units (Checksum, Version, ContextRoot,
// DeployedUnit), the deployment plan built for each transition, and the
// classification of per-action outcomes into an overall plan result.
// Everything here is pure data and pure functions; talking to the artifact
// repository or the container lives in other packages.
package deployment
