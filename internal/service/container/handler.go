package container

import (
	"context"

	"github.com/gitter-badger/deployer-1/internal/logger"
	"github.com/gitter-badger/deployer-1/internal/management"
)

// LogHandler writes container progress messages to the log at the matching level.
type LogHandler struct {
	ctx context.Context //nolint:containedctx // The handler is bound to one plan's log fields.
}

// NewLogHandler returns a handler that logs through the logger carried by ctx.
func NewLogHandler(ctx context.Context) *LogHandler {
	return &LogHandler{ctx: ctx}
}

// HandleMessage implements management.MessageHandler.
func (h *LogHandler) HandleMessage(severity management.Severity, text string) {
	switch severity {
	case management.SeverityError:
		logger.ErrorKV(h.ctx, "Container reported an error", "message", text)
	case management.SeverityWarning:
		logger.WarnKV(h.ctx, "Container reported a warning", "message", text)
	default:
		logger.InfoKV(h.ctx, "Container message", "message", text)
	}
}
