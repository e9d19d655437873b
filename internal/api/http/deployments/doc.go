// Package deployments is the REST API over the deployment service.
//
// Resources are addressed by context root: /deployments/{contextRoot}. Artifacts
// are addressed by checksum: /checksums/{checksum}. Errors are JSON objects with
// an "error" field and a status derived from the domain error.
package deployments
