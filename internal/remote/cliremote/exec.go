package cliremote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/mschirtzinger/workq/internal/remote"
	"github.com/mschirtzinger/workq/internal/types"
)

// execContext runs a client command with timeout and context support,
// feeding stdin when non-nil. Stderr is folded into the returned error.
//
// Example:
//
//	output, err := execContext(ctx, 30*time.Second, dir, nil, "tracker", "list")
func execContext(ctx context.Context, timeout time.Duration, workDir string, stdin io.Reader, name string, args ...string) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = workDir
	cmd.Stdin = stdin

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		return nil, classify(ctx, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// classify maps a failed run onto the remote error taxonomy.
func classify(ctx context.Context, err error, stderr string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", remote.ErrTimeout, err)
	}
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%w: %v", remote.ErrUnavailable, err)
	}

	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "not found") || strings.Contains(lower, "no such item"):
		return fmt.Errorf("%w: %s", types.ErrNotFound, stderr)
	case strings.Contains(lower, "invalid") || strings.Contains(lower, "rejected"):
		return fmt.Errorf("%w: %s", remote.ErrRejected, stderr)
	}

	if stderr != "" {
		return fmt.Errorf("%w: %s", err, stderr)
	}
	return err
}

// parseLines splits command output into non-empty lines.
func parseLines(output []byte) []string {
	if len(output) == 0 {
		return nil
	}

	lines := strings.Split(string(output), "\n")
	result := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			result = append(result, line)
		}
	}
	return result
}
