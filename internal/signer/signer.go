// Package signer runs the external signing tool against a staged video and
// classifies how the invocation ended.
package signer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// DefaultTimeout bounds a single signing invocation's wall-clock time.
const DefaultTimeout = 300 * time.Second

// Outcome tags how an invocation ended. Exactly one applies per Result.
type Outcome int

const (
	// Success: the tool exited zero and wrote the signed artifact.
	Success Outcome = iota
	// SignerFailure: the tool ran but exited nonzero.
	SignerFailure
	// Timeout: the tool exceeded the wall-clock limit and was killed.
	Timeout
	// InvocationError: the tool could not be started or communicated with.
	InvocationError
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case SignerFailure:
		return "signer_failure"
	case Timeout:
		return "timeout"
	case InvocationError:
		return "invocation_error"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Result is the classified outcome of one invocation. Only the fields
// relevant to the Outcome are set.
type Result struct {
	Outcome    Outcome
	OutputPath string // Success: where the signed artifact was written
	ExitCode   int    // SignerFailure: the tool's exit code
	Err        error  // InvocationError: why the tool could not run
	Stdout     string // captured diagnostics, may be set for any outcome
	Stderr     string
}

// ErrorDetail renders a human-readable cause for a non-success Result,
// suitable for storing on the job record.
func (r Result) ErrorDetail() string {
	switch r.Outcome {
	case SignerFailure:
		detail := fmt.Sprintf("signing failed with code %d", r.ExitCode)
		if msg := lastLine(r.Stderr); msg != "" {
			detail += ": " + msg
		}
		return detail
	case Timeout:
		return "signing process timed out"
	case InvocationError:
		return fmt.Sprintf("signing process could not be started: %v", r.Err)
	}
	return ""
}

// lastLine extracts the final non-empty line of the tool's stderr, which is
// where the signer reports its failure reason.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}

// Invoker executes the signing tool. It is safe for concurrent use; each
// Sign call runs an independent process.
type Invoker struct {
	Executable    string        // path to the signer binary
	KeyPath       string        // private key for signing
	KeyPassphrase string        // optional; never logged
	PluginPath    string        // optional GST_PLUGIN_PATH override for the tool
	Timeout       time.Duration // 0 means DefaultTimeout
	Logger        *slog.Logger  // nil means slog.Default()
}

// Sign runs the tool to read inputPath and write the signed artifact to
// outputPath. The process is killed once the timeout elapses; no child
// process survives a Timeout result.
func (inv *Invoker) Sign(ctx context.Context, inputPath, outputPath string) Result {
	timeout := inv.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{"--input", inputPath, "--output", outputPath, "--key", inv.KeyPath}
	if inv.KeyPassphrase != "" {
		args = append(args, "--key-password", inv.KeyPassphrase)
	}
	args = append(args, "--verbose")

	cmd := exec.CommandContext(ctx, inv.Executable, args...)
	if inv.PluginPath != "" {
		cmd.Env = append(os.Environ(), "GST_PLUGIN_PATH="+inv.PluginPath)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Run the tool in its own process group and kill the whole group on
	// timeout, so helpers it spawns (GStreamer pipelines) don't outlive it.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	// Don't let a stuck pipe hold Wait open after the kill.
	cmd.WaitDelay = 5 * time.Second

	inv.logger().Info("invoking signer", "command", redactCommand(inv.Executable, args), "timeout", timeout)

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}

	switch {
	case err == nil:
		res.Outcome = Success
		res.OutputPath = outputPath
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.Outcome = Timeout
	case ctx.Err() != nil:
		// Cancelled from outside (shutdown), not a signer fault.
		res.Outcome = InvocationError
		res.Err = ctx.Err()
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.Outcome = SignerFailure
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.Outcome = InvocationError
			res.Err = err
		}
	}

	inv.logger().Info("signer finished", "outcome", res.Outcome.String(), "exit_code", res.ExitCode)
	return res
}

func (inv *Invoker) logger() *slog.Logger {
	if inv.Logger != nil {
		return inv.Logger
	}
	return slog.Default()
}

// redactCommand renders the invocation for logging with the passphrase
// value elided.
func redactCommand(exe string, args []string) string {
	parts := append([]string{exe}, args...)
	for i := 0; i < len(parts)-1; i++ {
		if parts[i] == "--key-password" {
			parts[i+1] = "[hidden]"
		}
	}
	return strings.Join(parts, " ")
}
