package shell

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"knowshowgo/internal/config"
	"knowshowgo/internal/logging"
	"knowshowgo/internal/types"
)

// Result is the structured outcome of one shell invocation.
type Result struct {
	Status   string `json:"status"` // success, error, blocked, staged
	Output   string `json:"output,omitempty"`
	Error    string `json:"error,omitempty"`
	ExitCode int    `json:"exit_code"`

	// Dry-run metadata.
	WouldSandbox      bool `json:"would_sandbox,omitempty"`
	ModifiesFiles     bool `json:"modifies_files,omitempty"`
	RollbackAvailable bool `json:"rollback_available,omitempty"`

	Sandboxed  bool          `json:"sandboxed,omitempty"`
	SandboxDir string        `json:"sandbox_dir,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
}

// SafeExecutor runs commands under the policy.
type SafeExecutor struct {
	policy     *Policy
	workdir    string
	timeout    time.Duration
	ignoreDirs []string
	tracker    *FileTracker
}

// NewSafeExecutor builds an executor from the execution config.
func NewSafeExecutor(cfg config.ExecutionConfig) (*SafeExecutor, error) {
	timeout, err := time.ParseDuration(cfg.DefaultTimeout)
	if err != nil || timeout <= 0 {
		timeout = 30 * time.Second
	}
	workdir := cfg.WorkingDirectory
	if workdir == "" {
		workdir = "."
	}
	abs, err := filepath.Abs(workdir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve working directory: %w", err)
	}
	return &SafeExecutor{
		policy:     NewPolicy(cfg),
		workdir:    abs,
		timeout:    timeout,
		ignoreDirs: cfg.SandboxIgnore,
		tracker:    NewFileTracker(),
	}, nil
}

// Tracker exposes the file tracker for rollback.
func (e *SafeExecutor) Tracker() *FileTracker {
	return e.tracker
}

// Run executes a command. dryRun stages the decision without executing.
func (e *SafeExecutor) Run(ctx context.Context, command string, dryRun bool) *Result {
	verdict := e.policy.Check(command)
	if !verdict.Allowed {
		logging.Shell("blocked: %q (%s)", command, verdict.Reason)
		return &Result{Status: types.StatusBlocked, Error: verdict.Reason}
	}

	if dryRun {
		return &Result{
			Status:            types.StatusStaged,
			WouldSandbox:      verdict.NeedsSandbox,
			ModifiesFiles:     verdict.ModifiesFiles,
			RollbackAvailable: e.tracker.Count() > 0,
		}
	}

	if verdict.NeedsSandbox {
		return e.runSandboxed(ctx, command)
	}
	return e.runDirect(ctx, command, e.workdir, nil)
}

// runDirect executes in the configured working directory.
func (e *SafeExecutor) runDirect(ctx context.Context, command, dir string, extraEnv []string) *Result {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	if extraEnv != nil {
		cmd.Env = append(os.Environ(), extraEnv...)
	}

	output, err := cmd.CombinedOutput()
	result := &Result{
		Output:   string(output),
		Duration: time.Since(start),
	}
	if err != nil {
		result.Status = types.StatusError
		result.Error = err.Error()
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
		}
		if ctx.Err() == context.DeadlineExceeded {
			result.Error = fmt.Sprintf("timed out after %s", e.timeout)
		}
		logging.Shell("command failed: %q -> %s", command, result.Error)
		return result
	}
	result.Status = types.StatusSuccess
	logging.ShellDebug("command ok: %q in %s", command, result.Duration)
	return result
}

// runSandboxed copies the working directory into a temp dir and executes
// there with HOME and TMPDIR overridden.
func (e *SafeExecutor) runSandboxed(ctx context.Context, command string) *Result {
	sandbox, err := os.MkdirTemp("", "ksg-sandbox-")
	if err != nil {
		return &Result{Status: types.StatusError, Error: fmt.Sprintf("sandbox setup failed: %v", err)}
	}
	defer os.RemoveAll(sandbox)

	if err := e.copyTree(e.workdir, sandbox); err != nil {
		return &Result{Status: types.StatusError, Error: fmt.Sprintf("sandbox copy failed: %v", err)}
	}

	env := []string{"HOME=" + sandbox, "TMPDIR=" + sandbox}
	result := e.runDirect(ctx, command, sandbox, env)
	result.Sandboxed = true
	result.SandboxDir = sandbox
	logging.Shell("sandboxed %q -> %s", command, result.Status)
	return result
}

// copyTree copies src into dst, skipping the configured ignore dirs.
func (e *SafeExecutor) copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		for _, ignore := range e.ignoreDirs {
			if d.IsDir() && d.Name() == ignore {
				return filepath.SkipDir
			}
		}

		target := filepath.Join(dst, rel)
		if d.IsDir() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			return os.MkdirAll(target, info.Mode())
		}
		if !d.Type().IsRegular() {
			// Symlinks and devices stay out of the sandbox.
			return nil
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// DescribeVerdict renders a policy decision for dry-run output.
func DescribeVerdict(v Verdict) string {
	if !v.Allowed {
		return "blocked: " + v.Reason
	}
	parts := []string{"allowed"}
	if v.ModifiesFiles {
		parts = append(parts, "modifies files")
	}
	if v.NeedsSandbox {
		parts = append(parts, "sandboxed")
	}
	return strings.Join(parts, ", ")
}
