// Package gitutil shells out to git for the handful of read-only queries
// the hooks need: change metrics for phase validation and the committer
// identity for audit records. Every call carries a deadline; a repo in a
// bad state must never hang a hook.
package gitutil

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const commandTimeout = 30 * time.Second

type CommandError struct {
	Args   []string
	Stdout string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("git %s: %v", strings.Join(e.Args, " "), e.Err)
	if e.Stderr != "" {
		msg += ": " + strings.TrimSpace(e.Stderr)
	}
	return msg
}

func runGit(ctx context.Context, dir string, args ...string) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	// Background auto-maintenance would outlive the hook process.
	base := []string{
		"-C", dir,
		"-c", "maintenance.auto=0",
		"-c", "gc.auto=0",
	}
	cmd := exec.CommandContext(ctx, "git", append(base, args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	outStr := stdout.String()
	errStr := stderr.String()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return outStr, errStr, &CommandError{Args: args, Stdout: outStr, Stderr: errStr, Err: err}
	}
	return outStr, errStr, nil
}

func IsRepo(ctx context.Context, dir string) bool {
	out, _, err := runGit(ctx, dir, "rev-parse", "--is-inside-work-tree")
	if err != nil {
		return false
	}
	return strings.TrimSpace(out) == "true"
}

// FileStat is one row of diff --numstat. Binary files report zero counts.
type FileStat struct {
	Path    string
	Added   int
	Deleted int
	Binary  bool
}

// DiffNumstat returns per-file added/deleted line counts for the working
// tree against baseRef (HEAD when empty).
func DiffNumstat(ctx context.Context, dir, baseRef string) ([]FileStat, error) {
	args := []string{"diff", "--numstat"}
	if baseRef != "" {
		args = append(args, baseRef)
	}
	out, _, err := runGit(ctx, dir, args...)
	if err != nil {
		return nil, err
	}
	var stats []FileStat
	for _, line := range strings.Split(out, "\n") {
		fields := strings.SplitN(strings.TrimSpace(line), "\t", 3)
		if len(fields) != 3 {
			continue
		}
		st := FileStat{Path: fields[2]}
		if fields[0] == "-" || fields[1] == "-" {
			st.Binary = true
		} else {
			st.Added, _ = strconv.Atoi(fields[0])
			st.Deleted, _ = strconv.Atoi(fields[1])
		}
		stats = append(stats, st)
	}
	return stats, nil
}

// DiffNameOnly returns paths changed in the working tree against baseRef
// (HEAD when empty).
func DiffNameOnly(ctx context.Context, dir, baseRef string) ([]string, error) {
	args := []string{"diff", "--name-only"}
	if baseRef != "" {
		args = append(args, baseRef)
	}
	out, _, err := runGit(ctx, dir, args...)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, line := range strings.Split(out, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			files = append(files, trimmed)
		}
	}
	return files, nil
}

// UntrackedFiles lists files git does not know about yet; new code counts
// toward change metrics too.
func UntrackedFiles(ctx context.Context, dir string) ([]string, error) {
	out, _, err := runGit(ctx, dir, "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil, err
	}
	var files []string
	for _, line := range strings.Split(out, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			files = append(files, trimmed)
		}
	}
	return files, nil
}

// UserName returns the configured committer name, empty when unset.
func UserName(ctx context.Context, dir string) string {
	out, _, err := runGit(ctx, dir, "config", "--get", "user.name")
	if err != nil {
		// config --get exits 1 when the key is missing.
		return ""
	}
	return strings.TrimSpace(out)
}

// UserEmail returns the configured committer email, empty when unset.
func UserEmail(ctx context.Context, dir string) string {
	out, _, err := runGit(ctx, dir, "config", "--get", "user.email")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}
