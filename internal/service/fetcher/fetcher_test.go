package fetcher

import (
	"bytes"
	"context"
	"crypto/sha1" //nolint:gosec // Test digests.
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gitter-badger/deployer-1/internal/domain/deployment"
)

// staticRepository serves one artifact.
type staticRepository struct {
	path    string
	content []byte
}

func (r *staticRepository) ResolveByChecksum(context.Context, deployment.Checksum) (deployment.ArtifactLocation, error) {
	return deployment.ArtifactLocation{Path: r.path, DownloadURI: "http://repo" + r.path}, nil
}

func (r *staticRepository) OpenArtifactStream(context.Context, deployment.Checksum) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(r.content)), nil
}

func sha1Of(content []byte) deployment.Checksum {
	sum := sha1.Sum(content) //nolint:gosec // Test digests.

	return deployment.Checksum(sum[:])
}

// TestFetch_IntoDirectory names the file after the artifact.
func TestFetch_IntoDirectory(t *testing.T) {
	t.Parallel()

	var (
		dir     = t.TempDir()
		content = []byte("war content")
		repo    = &staticRepository{path: "/libs-release/com/acme/app/1.3.1/app-1.3.1.war", content: content}
	)

	path, err := Fetch(context.Background(), repo, sha1Of(content), dir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "app-1.3.1.war"), path)

	written, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, content, written)
}

// TestFetch_ReplacesFile overwrites an existing target.
func TestFetch_ReplacesFile(t *testing.T) {
	t.Parallel()

	var (
		target  = filepath.Join(t.TempDir(), "app.war")
		content = []byte("new content")
		repo    = &staticRepository{path: "/libs-release/app/2.0/app-2.0.war", content: content}
	)

	require.NoError(t, os.WriteFile(target, []byte("old content"), DefaultFileMode))

	path, err := Fetch(context.Background(), repo, sha1Of(content), target)
	require.NoError(t, err)
	require.Equal(t, target, path)

	written, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, content, written)
}

// TestFetch_DigestMismatch keeps the existing target untouched.
func TestFetch_DigestMismatch(t *testing.T) {
	t.Parallel()

	var (
		target = filepath.Join(t.TempDir(), "app.war")
		repo   = &staticRepository{path: "/libs-release/app/2.0/app-2.0.war", content: []byte("tampered")}
	)

	require.NoError(t, os.WriteFile(target, []byte("old content"), DefaultFileMode))

	_, err := Fetch(context.Background(), repo, sha1Of([]byte("expected")), target)
	require.Error(t, err)

	written, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, []byte("old content"), written)
}

// TestFetch_DigestMismatchNewFile removes the placeholder it created.
func TestFetch_DigestMismatchNewFile(t *testing.T) {
	t.Parallel()

	var (
		target = filepath.Join(t.TempDir(), "app.war")
		repo   = &staticRepository{path: "/libs-release/app/2.0/app-2.0.war", content: []byte("tampered")}
	)

	_, err := Fetch(context.Background(), repo, sha1Of([]byte("expected")), target)
	require.Error(t, err)
	require.NoFileExists(t, target)
}

// TestFetch_RejectsUnknownDigest refuses checksums of unknown length.
func TestFetch_RejectsUnknownDigest(t *testing.T) {
	t.Parallel()

	_, err := Fetch(context.Background(), &staticRepository{}, deployment.Checksum{1, 2, 3}, t.TempDir())
	require.ErrorIs(t, err, errHashUnavailable)
}
