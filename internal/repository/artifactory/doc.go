// Package artifactory is the HTTP client for an Artifactory-compatible
// artifact repository.
//
// Artifacts are looked up by content checksum. The repository path of the hit
// encodes the version as its folder, so versions are listed by reading the
// folder above it. Artifact content is streamed, never buffered.
package artifactory
