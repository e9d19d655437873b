package deployments

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gitter-badger/deployer-1/internal/config"
	"github.com/gitter-badger/deployer-1/internal/domain/deployment"
)

// ErrNotFound is returned when nothing was stored yet.
var ErrNotFound = errors.New("known deployments not found")

// Snapshot is the stored list with the time it was taken.
type Snapshot struct {
	UpdatedAt   time.Time                 `yaml:"updated_at"`
	Deployments []deployment.DeployedUnit `yaml:"deployments"`
}

// FileRepository persists the known deployments to a YAML file.
type FileRepository struct {
	// path is the filesystem location of the YAML file.
	path string
	// now stamps snapshots; replaced in tests.
	now func() time.Time
	// mu protects concurrent access to the file.
	mu sync.Mutex
}

// NewFileRepository creates a repository that reads and writes YAML at path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
		now:  time.Now,
	}
}

// Load reads the last snapshot.
func (r *FileRepository) Load(_ context.Context) (*Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read known deployments: %w", err)
	}

	var snapshot Snapshot
	if err = yaml.Unmarshal(contents, &snapshot); err != nil {
		return nil, fmt.Errorf("decode known deployments: %w", err)
	}

	return &snapshot, nil
}

// Save replaces the stored snapshot. The file is swapped in with a rename so
// readers never see a partial write.
func (r *FileRepository) Save(_ context.Context, units []deployment.DeployedUnit) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := yaml.Marshal(&Snapshot{
		UpdatedAt:   r.now().UTC(),
		Deployments: units,
	})
	if err != nil {
		return fmt.Errorf("encode known deployments: %w", err)
	}

	temporary := r.path + ".tmp"
	if err = os.WriteFile(temporary, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write known deployments: %w", err)
	}

	if err = os.Rename(temporary, r.path); err != nil {
		return fmt.Errorf("replace known deployments: %w", err)
	}

	return nil
}
