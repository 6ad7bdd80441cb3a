package media

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/muhammadegaa/reely/internal/domain"
)

// Runner executes external media tools with an explicit wall-clock timeout.
type Runner struct {
	log *zap.SugaredLogger
}

// NewRunner creates a new Runner.
func NewRunner(log *zap.SugaredLogger) *Runner {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Runner{log: log}
}

// Run executes name with args, killing the process when timeout elapses.
// Timeouts surface as domain.ErrTimeout so the caller can distinguish them
// from ordinary non-zero exits.
func (r *Runner) Run(ctx context.Context, timeout time.Duration, name string, args ...string) (string, error) {
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return "", errors.Mark(
				errors.Newf("%s timed out after %s", name, timeout), domain.ErrTimeout)
		}
		if ctx.Err() != nil {
			return "", errors.Wrapf(ctx.Err(), "%s interrupted", name)
		}
		return "", errors.Wrapf(err, "%s failed: %s", name, tail(stderr.String(), 400))
	}

	r.log.Debugw("command finished", "cmd", name, "elapsed", elapsed.Truncate(time.Millisecond))
	return stdout.String(), nil
}

// tail returns the last n runes of s, where the useful part of tool output
// (the actual error line) usually lives.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
