package deployment

import (
	"fmt"
	"strings"
)

// Repository paths encode the version as the folder holding the artifact file:
//
//	.../<group>/<artifact>/<version>/<artifact>-<version>.<ext>
//
// The two helpers below are the only place that slices such paths.

// DropSegments removes the last n segments of a slash-separated path.
// A leading slash is preserved. Paths with fewer than n segments are rejected
// with ErrRepositoryProtocol rather than silently yielding a wrong root.
func DropSegments(p string, n int) (string, error) {
	segments := splitSegments(p)
	if n < 0 || len(segments) < n {
		return "", fmt.Errorf("path %q has fewer than %d segments: %w", p, n, ErrRepositoryProtocol)
	}

	kept := strings.Join(segments[:len(segments)-n], "/")
	if strings.HasPrefix(p, "/") {
		return "/" + kept, nil
	}

	return kept, nil
}

// SegmentFromEnd returns the n-th segment counted from the end, 1 being the last.
// Paths with fewer than n segments are rejected with ErrRepositoryProtocol.
func SegmentFromEnd(p string, n int) (string, error) {
	segments := splitSegments(p)
	if n < 1 || len(segments) < n {
		return "", fmt.Errorf("path %q has fewer than %d segments: %w", p, n, ErrRepositoryProtocol)
	}

	return segments[len(segments)-n], nil
}

// splitSegments splits on "/" and ignores empty segments.
func splitSegments(p string) []string {
	return strings.FieldsFunc(p, func(r rune) bool { return r == '/' })
}
