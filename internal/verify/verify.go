// Package verify runs the post-install smoke test: one short synthesis
// through the installed engine binary and an available voice model.
package verify

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/example/piper-provision/internal/provision"
)

// DefaultSampleText is the fixed sentence piped into the engine.
const DefaultSampleText = "This is a short synthesis check."

// RunFunc invokes the engine binary with stdin text and arguments.
// Injectable so tests can simulate the binary without spawning it.
type RunFunc func(ctx context.Context, binaryPath string, stdin string, args ...string) error

// Verifier checks an installed binary/voice combination end to end.
type Verifier struct {
	Timeout    time.Duration
	SampleText string
	Run        RunFunc
	Log        *slog.Logger
}

// New returns a Verifier with defaults filled in.
func New(log *slog.Logger) *Verifier {
	if log == nil {
		log = slog.Default()
	}
	return &Verifier{
		Timeout:    30 * time.Second,
		SampleText: DefaultSampleText,
		Run:        runBinary,
		Log:        log,
	}
}

// Verify synthesizes the sample text to a throwaway output file.
// Passed means the output file was created and is non-empty; any
// invocation error, timeout, or empty output means Failed; a missing
// binary means Skipped. The output file is removed on every path, and
// a failure never reverts installed assets.
func (v *Verifier) Verify(ctx context.Context, binaryPath, voiceModelPath string) provision.Verification {
	if _, err := os.Stat(binaryPath); err != nil {
		v.Log.Info("smoke test skipped: binary not present", "path", binaryPath)
		return provision.VerificationSkipped
	}

	out, err := os.CreateTemp("", "piperprov-smoke-*.wav")
	if err != nil {
		v.Log.Error("smoke test failed: cannot create output file", "error", err)
		return provision.VerificationFailed
	}
	outPath := out.Name()
	_ = out.Close()
	defer os.Remove(outPath)

	runCtx, cancel := context.WithTimeout(ctx, v.Timeout)
	defer cancel()

	err = v.Run(runCtx, binaryPath, v.SampleText,
		"--model", voiceModelPath,
		"--output_file", outPath,
	)
	if err != nil {
		v.Log.Error("smoke test failed", "binary", binaryPath, "model", voiceModelPath, "error", err)
		return provision.VerificationFailed
	}

	fi, err := os.Stat(outPath)
	if err != nil || fi.Size() == 0 {
		v.Log.Error("smoke test failed: empty or missing output", "path", outPath)
		return provision.VerificationFailed
	}

	v.Log.Info("smoke test passed", "binary", binaryPath, "model", voiceModelPath, "bytes", fi.Size())
	return provision.VerificationPassed
}

func runBinary(ctx context.Context, binaryPath string, stdin string, args ...string) error {
	cmd := exec.CommandContext(ctx, binaryPath, args...)
	cmd.Stdin = strings.NewReader(stdin)
	cmd.Stdout = nil
	cmd.Stderr = nil
	return cmd.Run()
}
