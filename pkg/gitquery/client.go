package gitquery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/contextforge/contextforge/pkg/log"
	"github.com/contextforge/contextforge/pkg/types"
)

// DefaultTimeout bounds every git subprocess invocation.
const DefaultTimeout = 30 * time.Second

// Client runs git in a repository root and parses its output.
type Client struct {
	timeout time.Duration
	logger  zerolog.Logger
}

// New creates a Client. A non-positive timeout uses DefaultTimeout.
func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		timeout: timeout,
		logger:  log.WithComponent("gitquery"),
	}
}

// run executes git with args in repoPath and returns stdout.
func (c *Client) run(ctx context.Context, repoPath string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = repoPath
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("%w: git %s exceeded %s", types.ErrTimeout, args[0], c.timeout)
	}
	if err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return "", fmt.Errorf("git binary not available: %w", err)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("git %s failed: %s", args[0], msg)
	}
	return stdout.String(), nil
}

// checkRepository validates that repoPath is a git repository with at
// least one commit.
func (c *Client) checkRepository(ctx context.Context, repoPath string) error {
	if _, err := c.run(ctx, repoPath, "rev-parse", "--git-dir"); err != nil {
		if errors.Is(err, types.ErrTimeout) {
			return err
		}
		return fmt.Errorf("%w: %s", types.ErrNotARepository, repoPath)
	}
	if _, err := c.run(ctx, repoPath, "rev-parse", "--verify", "HEAD"); err != nil {
		if errors.Is(err, types.ErrTimeout) {
			return err
		}
		return fmt.Errorf("%w: repository has no commits", types.ErrNoCommits)
	}
	return nil
}
