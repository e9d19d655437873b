package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/gitter-badger/deployer-1/internal/domain/deployment"
	"github.com/gitter-badger/deployer-1/internal/logger"

	// Digests a repository checksum can use.
	_ "crypto/md5"  //nolint:gosec // Artifact checksums, not security.
	_ "crypto/sha1" //nolint:gosec // Artifact checksums, not security.
	_ "crypto/sha256"
)

// DefaultFileMode is applied to fetched files.
const DefaultFileMode os.FileMode = 0o644

var errHashUnavailable = errors.New("hash function unavailable")

// Repository opens artifact content by checksum.
type Repository interface {
	ResolveByChecksum(ctx context.Context, cs deployment.Checksum) (deployment.ArtifactLocation, error)
	OpenArtifactStream(ctx context.Context, cs deployment.Checksum) (io.ReadCloser, error)
}

// Fetch downloads the artifact with checksum cs and writes it to target.
// When target is a directory the repository file name is used inside it.
// It returns the path written.
func Fetch(ctx context.Context, repo Repository, cs deployment.Checksum, target string) (string, error) {
	hash, ok := cs.Hash()
	if !ok || !hash.Available() {
		return "", fmt.Errorf("checksum %q: %w", cs, errHashUnavailable)
	}

	path, err := targetPath(ctx, repo, cs, target)
	if err != nil {
		return "", err
	}

	ctx = logger.WithKV(ctx, "path", path)

	stream, err := repo.OpenArtifactStream(ctx, cs)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}

	defer func() {
		_ = stream.Close()
	}()

	// go-update swaps an existing file, so an empty one is created first.
	created := false

	if _, err = os.Stat(path); errors.Is(err, os.ErrNotExist) {
		file, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_WRONLY, DefaultFileMode)
		if err != nil {
			return "", fmt.Errorf("create %s: %w", path, err)
		}

		_ = file.Close()
		created = true
	}

	logger.DebugKV(ctx, "Applying artifact", "checksum", cs, "algorithm", cs.Algorithm())

	err = goupdate.Apply(stream, goupdate.Options{
		TargetPath: path,
		TargetMode: DefaultFileMode,
		Checksum:   cs,
		Hash:       hash,
	})
	if err != nil {
		if created {
			_ = os.Remove(path)
		}

		return "", fmt.Errorf("write %s: %w", path, err)
	}

	logger.InfoKV(ctx, "Artifact fetched", "checksum", cs)

	return path, nil
}

func targetPath(ctx context.Context, repo Repository, cs deployment.Checksum, target string) (string, error) {
	if target == "" {
		target = "."
	}

	info, err := os.Stat(target)
	if err != nil || !info.IsDir() {
		return target, nil
	}

	loc, err := repo.ResolveByChecksum(ctx, cs)
	if err != nil {
		return "", fmt.Errorf("resolve checksum: %w", err)
	}

	name, err := loc.FileName()
	if err != nil {
		return "", err
	}

	return filepath.Join(target, name), nil
}
