// Package fetcher downloads artifacts by checksum into local files.
//
// The target is replaced atomically and only after the downloaded content
// matches the requested digest.
package fetcher
