package substack

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"

	"ReaderSync/internal/ports"
)

// CommandHook runs an operator-provided command when the session has expired, e.g. a
// script that requests a new magic link. The run that triggered it still fails.
type CommandHook struct {
	argv   []string
	logger *slog.Logger
}

var _ ports.Reauthenticator = (*CommandHook)(nil)

// NewCommandHook returns nil when argv is empty.
func NewCommandHook(argv []string, logger *slog.Logger) *CommandHook {
	if len(argv) == 0 {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandHook{argv: argv, logger: logger}
}

// Reauthenticate runs the hook command.
func (h *CommandHook) Reauthenticate(ctx context.Context) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, h.argv[0], h.argv[1:]...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("reauth hook %s: %w: %s", h.argv[0], err, bytes.TrimSpace(stderr.Bytes()))
	}
	h.logger.Info("re-authentication hook finished", "command", h.argv[0])
	return nil
}
