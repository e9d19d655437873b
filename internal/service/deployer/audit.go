package deployer

import (
	"context"

	"go.uber.org/zap/zapcore"

	"github.com/gitter-badger/deployer-1/internal/domain/deployment"
	"github.com/gitter-badger/deployer-1/internal/logger"
)

// Auditor records successful transitions.
type Auditor interface {
	Allow(ctx context.Context, operation deployment.Operation, root deployment.ContextRoot, version deployment.Version)
}

// LogAuditor writes one structured audit record per transition.
type LogAuditor struct {
	actor deployment.Actor
}

// NewLogAuditor creates an auditor for the given local actor.
func NewLogAuditor(actor deployment.Actor) *LogAuditor {
	return &LogAuditor{actor: actor}
}

// Allow implements Auditor.
func (a *LogAuditor) Allow(
	ctx context.Context,
	operation deployment.Operation,
	root deployment.ContextRoot,
	version deployment.Version,
) {
	requester, _ := deployment.RequesterFromContext(ctx)

	principal := requester.Principal
	if principal == "" {
		principal = "anonymous"
	}

	// Audit records are kept even when the configured level hides info.
	ctx = logger.WithFixedLevel(logger.WithName(ctx, "audit"), zapcore.InfoLevel)

	logger.InfoKV(ctx, "Deployment changed",
		"principal", principal,
		"client_ip", requester.ClientIP,
		"operation", operation,
		"context_root", root,
		"version", version,
		"host", a.actor.Hostname,
		"user", a.actor.Username,
	)
}
