package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Runner executes one storage CLI invocation. It never returns an error:
// a missing executable, timeout or non-zero exit yields ok=false with a
// diagnostic in output; success yields the trimmed stdout.
type Runner interface {
	Run(ctx context.Context, args ...string) (ok bool, output string)
}

// ExecRunner runs Binary with a per-call timeout.
type ExecRunner struct {
	Binary  string
	Timeout time.Duration
	// Env, when non-nil, replaces the inherited environment.
	Env []string
}

// NewExecRunner returns a runner for binary ("aws" when empty).
func NewExecRunner(binary string, timeout time.Duration) ExecRunner {
	if strings.TrimSpace(binary) == "" {
		binary = "aws"
	}
	return ExecRunner{Binary: binary, Timeout: timeout}
}

func (r ExecRunner) Run(ctx context.Context, args ...string) (bool, string) {
	binary := strings.TrimSpace(r.Binary)
	if binary == "" {
		binary = "aws"
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return false, fmt.Sprintf("%s CLI not installed", strings.ToUpper(filepath.Base(binary)))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, path, args...)
	if r.Env != nil {
		cmd.Env = r.Env
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				return false, fmt.Sprintf("%s %s timed out after %s", filepath.Base(binary), firstArg(args), r.Timeout)
			}
			return false, fmt.Sprintf("%s %s cancelled", filepath.Base(binary), firstArg(args))
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return false, msg
		}
		return false, err.Error()
	}
	return true, strings.TrimSpace(stdout.String())
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
