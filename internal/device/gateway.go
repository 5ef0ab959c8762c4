// Package device executes commands against the pump.
package device

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/colthorp/pumpcache-go/internal/core"
	"github.com/rs/zerolog"
)

// Gateway runs a named device command and returns its raw stdout.
// Implementations must be safe for concurrent use.
type Gateway interface {
	Invoke(ctx context.Context, command string, args ...string) ([]byte, error)
}

// CommandGateway invokes the device through an external program,
// `openaps use pump <command> [args...]` by default.
type CommandGateway struct {
	program  string
	baseArgs []string
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewCommandGateway creates a gateway from device configuration.
func NewCommandGateway(cfg core.DeviceConfig, logger zerolog.Logger) *CommandGateway {
	program := cfg.Command
	if program == "" {
		program = core.DefaultDeviceCommand
	}
	baseArgs := cfg.Args
	if baseArgs == nil {
		baseArgs = core.DefaultDeviceArgs
	}
	return &CommandGateway{
		program:  program,
		baseArgs: append([]string(nil), baseArgs...),
		timeout:  cfg.Timeout,
		logger:   logger.With().Str("component", "device").Logger(),
	}
}

// Invoke executes the command and returns stdout. A non-zero exit, a failure to
// start, or a cancelled context yields *Error carrying the captured stderr.
func (g *CommandGateway) Invoke(ctx context.Context, command string, args ...string) ([]byte, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	argv := make([]string, 0, len(g.baseArgs)+1+len(args))
	argv = append(argv, g.baseArgs...)
	argv = append(argv, command)
	argv = append(argv, args...)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, g.program, argv...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		cause := err
		if ctx.Err() != nil {
			cause = ctx.Err()
		}
		g.logger.Warn().
			Str("command", command).
			Strs("args", args).
			Dur("duration", elapsed).
			Err(cause).
			Msg("device command failed")
		return nil, &Error{
			Command: command,
			Args:    append([]string(nil), args...),
			Stderr:  strings.TrimSpace(stderr.String()),
			Cause:   cause,
		}
	}

	g.logger.Debug().
		Str("command", command).
		Strs("args", args).
		Dur("duration", elapsed).
		Int("bytes", stdout.Len()).
		Msg("device command")

	return stdout.Bytes(), nil
}
