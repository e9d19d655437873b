package deployer

import (
	"context"
	"crypto/sha1" //nolint:gosec // The container identifies content by sha1.
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"path"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gitter-badger/deployer-1/internal/domain/deployment"
	"github.com/gitter-badger/deployer-1/internal/management"
)

const storageRoot = "/artifactory/api/storage/libs-release/org/example/app"

func sha1Checksum(content string) deployment.Checksum {
	sum := sha1.Sum([]byte(content)) //nolint:gosec // See import.

	return deployment.Checksum(sum[:])
}

// fakeArtifact is an artifact stored in fakeRepository; its content is its path.
type fakeArtifact struct {
	path     string
	checksum deployment.Checksum
}

// fakeRepository serves artifacts from memory and tracks open streams.
type fakeRepository struct {
	mu        sync.Mutex
	artifacts []fakeArtifact
	opened    int
	closed    int
}

func newFakeRepository(versions ...string) *fakeRepository {
	repo := &fakeRepository{}

	for _, version := range versions {
		artifactPath := fmt.Sprintf("%s/%s/app-%s.war", storageRoot, version, version)
		repo.artifacts = append(repo.artifacts, fakeArtifact{path: artifactPath, checksum: sha1Checksum(artifactPath)})
	}

	return repo
}

func (r *fakeRepository) checksum(version string) deployment.Checksum {
	return sha1Checksum(fmt.Sprintf("%s/%s/app-%s.war", storageRoot, version, version))
}

func (r *fakeRepository) ResolveByChecksum(_ context.Context, cs deployment.Checksum) (deployment.ArtifactLocation, error) {
	for _, artifact := range r.artifacts {
		if artifact.checksum.Equal(cs) {
			return deployment.ArtifactLocation{Path: artifact.path, DownloadURI: "http://repo" + artifact.path}, nil
		}
	}

	return deployment.ArtifactLocation{}, fmt.Errorf("checksum %s: %w", cs, deployment.ErrNotFound)
}

func (r *fakeRepository) OpenArtifactStream(ctx context.Context, cs deployment.Checksum) (io.ReadCloser, error) {
	loc, err := r.ResolveByChecksum(ctx, cs)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.opened++

	return &trackedStream{Reader: strings.NewReader(loc.Path), repo: r}, nil
}

func (r *fakeRepository) ListVersions(_ context.Context, loc deployment.ArtifactLocation) ([]deployment.Version, error) {
	root, err := loc.VersionsRoot()
	if err != nil {
		return nil, err
	}

	var versions []deployment.Version

	for _, artifact := range r.artifacts {
		other := deployment.ArtifactLocation{Path: artifact.path}
		if otherRoot, _ := other.VersionsRoot(); otherRoot == root {
			version, _ := other.Version()
			versions = append(versions, version)
		}
	}

	return versions, nil
}

func (r *fakeRepository) ChecksumForVersion(
	_ context.Context,
	loc deployment.ArtifactLocation,
	version deployment.Version,
	algorithm string,
) (deployment.Checksum, error) {
	if algorithm != "sha1" {
		return nil, fmt.Errorf("algorithm %s: %w", algorithm, deployment.ErrNotFound)
	}

	root, err := loc.VersionsRoot()
	if err != nil {
		return nil, err
	}

	for _, artifact := range r.artifacts {
		if strings.HasPrefix(artifact.path, root+"/"+string(version)+"/") && path.Ext(artifact.path) == path.Ext(loc.Path) {
			return artifact.checksum, nil
		}
	}

	return nil, fmt.Errorf("version %s: %w", version, deployment.ErrNotFound)
}

func (r *fakeRepository) GetVersionByChecksum(ctx context.Context, cs deployment.Checksum) (deployment.Version, error) {
	loc, err := r.ResolveByChecksum(ctx, cs)
	if err != nil {
		return "", err
	}

	return loc.Version()
}

func (r *fakeRepository) streams() (opened, closed int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.opened, r.closed
}

type trackedStream struct {
	io.Reader

	repo *fakeRepository
}

func (s *trackedStream) Close() error {
	s.repo.mu.Lock()
	defer s.repo.mu.Unlock()

	s.repo.closed++

	return nil
}

// fakeContainer keeps deployments in memory and applies composites atomically.
type fakeContainer struct {
	mu          sync.Mutex
	deployments map[string]deployment.Checksum
	failOn      string
}

func newFakeContainer() *fakeContainer {
	return &fakeContainer{deployments: make(map[string]deployment.Checksum)}
}

func (c *fakeContainer) Execute(
	_ context.Context,
	req *management.Request,
	_ management.MessageHandler,
) (*management.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch req.Operation {
	case management.OpReadResource:
		return c.read()
	case management.OpComposite:
		return c.composite(req)
	default:
		return nil, fmt.Errorf("unsupported operation %s", req.Operation)
	}
}

func (c *fakeContainer) read() (*management.Response, error) {
	entries := make([]map[string]any, 0, len(c.deployments))

	for _, name := range slices.Sorted(maps.Keys(c.deployments)) {
		entries = append(entries, map[string]any{
			"outcome": "success",
			"result": map[string]any{
				"name":      name,
				"content":   []map[string]any{{"hash": map[string]string{"BYTES_VALUE": c.deployments[name].Base64()}}},
				"subsystem": map[string]any{"undertow": map[string]string{"context-root": "/" + strings.TrimSuffix(name, path.Ext(name))}},
			},
		})
	}

	return encodeResponse(map[string]any{"outcome": "success", "result": entries})
}

func (c *fakeContainer) composite(req *management.Request) (*management.Response, error) {
	var (
		staged  = maps.Clone(c.deployments)
		results = make(map[string]any, len(req.Steps))
	)

	for i, step := range req.Steps {
		id := fmt.Sprintf("step-%d", i+1)

		if err := c.apply(staged, step, req.Streams); err != nil {
			results[id] = map[string]any{"outcome": "failed", "failure-description": err.Error()}

			return encodeResponse(map[string]any{
				"outcome":             "failed",
				"rolled-back":         true,
				"failure-description": "composite failed at " + id,
				"result":              results,
			})
		}

		results[id] = map[string]any{"outcome": "success"}
	}

	c.deployments = staged

	return encodeResponse(map[string]any{"outcome": "success", "result": results})
}

func (c *fakeContainer) apply(staged map[string]deployment.Checksum, step *management.Request, streams []io.Reader) error {
	if step.Operation == c.failOn {
		return errors.New("injected failure")
	}

	name, _ := step.Params["name"].(string)
	if len(step.Address) > 0 {
		name = step.Address[0].Name
	}

	_, exists := staged[name]

	switch step.Operation {
	case management.OpAdd:
		if exists {
			return errors.New("WFLYCTL0212: Duplicate resource")
		}

		return readContent(staged, name, step, streams)
	case management.OpFullReplaceDeployment:
		if !exists {
			return errors.New("WFLYSRV0205: no deployment " + name)
		}

		return readContent(staged, name, step, streams)
	case management.OpDeploy, management.OpUndeploy:
		if !exists {
			return errors.New("WFLYCTL0216: not found " + name)
		}
	case management.OpRemove:
		if !exists {
			return errors.New("WFLYCTL0216: not found " + name)
		}

		delete(staged, name)
	}

	return nil
}

func readContent(staged map[string]deployment.Checksum, name string, step *management.Request, streams []io.Reader) error {
	refs, _ := step.Params["content"].([]map[string]any)
	if len(refs) != 1 {
		return errors.New("content missing")
	}

	index, _ := refs[0]["input-stream-index"].(int)

	content, err := io.ReadAll(streams[index])
	if err != nil {
		return err
	}

	staged[name] = sha1Checksum(string(content))

	return nil
}

func encodeResponse(body map[string]any) (*management.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	var response management.Response
	if err = json.Unmarshal(data, &response); err != nil {
		return nil, err
	}

	return &response, nil
}

// recordingAuditor remembers every allowed transition.
type recordingAuditor struct {
	mu      sync.Mutex
	records []string
}

func (a *recordingAuditor) Allow(
	_ context.Context,
	operation deployment.Operation,
	root deployment.ContextRoot,
	version deployment.Version,
) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.records = append(a.records, fmt.Sprintf("%s %s %s", operation, root, version))
}

func (a *recordingAuditor) all() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	return slices.Clone(a.records)
}

// recordingKnown keeps the last saved deployments.
type recordingKnown struct {
	mu    sync.Mutex
	saved [][]deployment.DeployedUnit
}

func (k *recordingKnown) Save(_ context.Context, units []deployment.DeployedUnit) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.saved = append(k.saved, units)

	return nil
}

func (k *recordingKnown) last(t *testing.T) []deployment.DeployedUnit {
	t.Helper()

	k.mu.Lock()
	defer k.mu.Unlock()

	require.NotEmpty(t, k.saved)

	return k.saved[len(k.saved)-1]
}

// planRecorder wraps an executor and remembers the action kinds of each plan.
type planRecorder struct {
	Executor

	mu    sync.Mutex
	plans [][]deployment.ActionKind
}

func (p *planRecorder) Execute(
	ctx context.Context,
	plan *deployment.Plan,
	handler management.MessageHandler,
) (deployment.RawResults, error) {
	kinds := make([]deployment.ActionKind, 0, len(plan.Actions()))
	for _, action := range plan.Actions() {
		kinds = append(kinds, action.Kind)
	}

	p.mu.Lock()
	p.plans = append(p.plans, kinds)
	p.mu.Unlock()

	return p.Executor.Execute(ctx, plan, handler)
}

func (p *planRecorder) all() [][]deployment.ActionKind {
	p.mu.Lock()
	defer p.mu.Unlock()

	return slices.Clone(p.plans)
}
