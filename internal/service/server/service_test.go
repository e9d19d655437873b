package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/gitter-badger/deployer-1/internal/domain/deployment"
	"github.com/gitter-badger/deployer-1/internal/logger"
	"github.com/gitter-badger/deployer-1/internal/repository/deployments"
)

var errTestLoad = errors.New("test load error")

// memoryKnown returns a fixed snapshot.
type memoryKnown struct {
	snapshot *deployments.Snapshot
	err      error
}

func (m *memoryKnown) Load(context.Context) (*deployments.Snapshot, error) {
	return m.snapshot, m.err
}

// memoryLister returns a fixed deployment list.
type memoryLister struct {
	units []deployment.DeployedUnit
	err   error
}

func (m *memoryLister) ListAll(context.Context) ([]deployment.DeployedUnit, error) {
	return m.units, m.err
}

func unit(root, hex string) deployment.DeployedUnit {
	return deployment.DeployedUnit{
		Name:        root + ".war",
		ContextRoot: deployment.ContextRoot(root),
		Checksum:    deployment.MustParseChecksum(hex),
	}
}

const (
	sha1Empty = "da39a3ee5e6b4b0d3255bfef95601890afd80709"
	sha1Other = "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d"
)

// TestReportDrift logs the outcome of each startup case.
func TestReportDrift(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		known   *memoryKnown
		lister  *memoryLister
		message string
	}{
		"first run": {
			known:   &memoryKnown{err: deployments.ErrNotFound},
			lister:  &memoryLister{},
			message: "No known deployments recorded yet",
		},
		"unreadable file": {
			known:   &memoryKnown{err: errTestLoad},
			lister:  &memoryLister{},
			message: "Known deployments unreadable",
		},
		"container down": {
			known:   &memoryKnown{snapshot: &deployments.Snapshot{}},
			lister:  &memoryLister{err: errTestLoad},
			message: "Container unavailable at startup",
		},
		"unchanged": {
			known:   &memoryKnown{snapshot: &deployments.Snapshot{Deployments: []deployment.DeployedUnit{unit("app", sha1Empty)}}},
			lister:  &memoryLister{units: []deployment.DeployedUnit{unit("app", sha1Empty)}},
			message: "Deployments match the last run",
		},
		"changed": {
			known: &memoryKnown{snapshot: &deployments.Snapshot{
				UpdatedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
				Deployments: []deployment.DeployedUnit{unit("app", sha1Empty)},
			}},
			lister:  &memoryLister{units: []deployment.DeployedUnit{unit("app", sha1Other)}},
			message: "Deployments changed since the last run",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zapcore.DebugLevel)
			ctx := logger.ToContext(context.Background(), zap.New(core).Sugar())

			reportDrift(ctx, tc.known, tc.lister)

			entries := logs.All()
			require.Len(t, entries, 1)
			require.Equal(t, tc.message, entries[0].Message)
		})
	}
}
