package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	execute "github.com/alexellis/go-execute/v2"
)

// DefaultTimeout bounds a single engine run when none is configured.
const DefaultTimeout = 2 * time.Minute

// probeTimeout bounds the version probe, which should return immediately.
const probeTimeout = 10 * time.Second

// Runner executes a prepared task. Tests substitute a fake to avoid
// spawning processes.
type Runner func(ctx context.Context, task execute.ExecTask) (execute.ExecResult, error)

// ExecRunner runs the task as a real child process.
func ExecRunner(ctx context.Context, task execute.ExecTask) (execute.ExecResult, error) {
	return task.Execute(ctx)
}

// ClamScan invokes the clamscan binary once per file.
type ClamScan struct {
	bin     string
	timeout time.Duration
	run     Runner
	logger  *slog.Logger
}

// NewClamScan creates an adapter for the given binary. A nil runner means
// ExecRunner; a non-positive timeout means DefaultTimeout.
func NewClamScan(bin string, timeout time.Duration, run Runner, logger *slog.Logger) *ClamScan {
	if run == nil {
		run = ExecRunner
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ClamScan{bin: bin, timeout: timeout, run: run, logger: logger}
}

// Probe asks the engine for its version. Any failure means the engine is
// unavailable and is reported as ErrEngineUnavailable.
func (c *ClamScan) Probe(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	res, err := c.run(ctx, execute.ExecTask{
		Command: c.bin,
		Args:    []string{"-V"},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("%w: version probe exited with status %d", ErrEngineUnavailable, res.ExitCode)
	}
	version := strings.TrimSpace(res.Stdout)
	if version == "" {
		return "", fmt.Errorf("%w: empty version output", ErrEngineUnavailable)
	}
	return version, nil
}

// Scan probes the engine and then scans path. Engine misbehaviour
// (crash, timeout, unexpected exit) is folded into a StatusError verdict;
// the only error returned is ErrEngineUnavailable.
func (c *ClamScan) Scan(ctx context.Context, path string) (Verdict, error) {
	version, err := c.Probe(ctx)
	if err != nil {
		return Verdict{}, err
	}

	scanCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	res, err := c.run(scanCtx, execute.ExecTask{
		Command: c.bin,
		Args:    []string{"--no-summary", path},
	})
	elapsed := time.Since(start)

	switch {
	case errors.Is(scanCtx.Err(), context.DeadlineExceeded):
		c.logger.Warn("scan timed out",
			slog.String("path", path),
			slog.Duration("timeout", c.timeout),
		)
		return ErrorVerdict(version, fmt.Errorf("scan timed out after %s", c.timeout)), nil
	case ctx.Err() != nil:
		return ErrorVerdict(version, fmt.Errorf("scan cancelled: %w", ctx.Err())), nil
	case res.Cancelled:
		return ErrorVerdict(version, errors.New("scan cancelled")), nil
	case err != nil:
		c.logger.Error("scan process failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return ErrorVerdict(version, fmt.Errorf("engine fault: %w", err)), nil
	}

	v := ParseOutput(res.ExitCode, combine(res.Stdout, res.Stderr))
	v.Version = version

	c.logger.Debug("scan finished",
		slog.String("path", path),
		slog.String("status", string(v.Status)),
		slog.Int("exit_code", res.ExitCode),
		slog.Duration("latency", elapsed),
	)
	return v, nil
}

func combine(stdout, stderr string) string {
	switch {
	case stderr == "":
		return stdout
	case stdout == "":
		return stderr
	}
	return strings.TrimRight(stdout, "\n") + "\n" + stderr
}
