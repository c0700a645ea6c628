// Package doctor provides offline preflight checks for a provisioned
// Piper installation: no network access, filesystem inspection only.
package doctor

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// Config holds the installation layout to check.
type Config struct {
	// BinaryPath is the engine executable location.
	BinaryPath string
	// VoicesDir holds <voice>.model / <voice>.config pairs.
	VoicesDir string
	// Voices is the list of voice identities expected on disk.
	Voices []string
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output
// to w. Each check line is prefixed with PassMark or FailMark.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	// ---- engine binary ----------------------------------------------------
	fi, err := os.Stat(cfg.BinaryPath)
	switch {
	case err != nil:
		res.fail(fmt.Sprintf("engine binary %q: %v", cfg.BinaryPath, err))
		fmt.Fprintf(w, "%s engine binary: not found (%v)\n", FailMark, err)
	case fi.Size() == 0:
		res.fail(fmt.Sprintf("engine binary %q: empty file", cfg.BinaryPath))
		fmt.Fprintf(w, "%s engine binary %s: empty file\n", FailMark, cfg.BinaryPath)
	case fi.Mode().Perm()&0o111 == 0:
		res.fail(fmt.Sprintf("engine binary %q: not executable", cfg.BinaryPath))
		fmt.Fprintf(w, "%s engine binary %s: not executable\n", FailMark, cfg.BinaryPath)
	default:
		fmt.Fprintf(w, "%s engine binary: %s\n", PassMark, cfg.BinaryPath)
	}

	// ---- voice pairs ------------------------------------------------------
	for _, voice := range cfg.Voices {
		model := filepath.Join(cfg.VoicesDir, voice+".model")
		config := filepath.Join(cfg.VoicesDir, voice+".config")

		missing := missingHalves(model, config)
		if len(missing) == 0 {
			fmt.Fprintf(w, "%s voice %s: model and config present\n", PassMark, voice)
			continue
		}
		res.fail(fmt.Sprintf("voice %q: missing %v", voice, missing))
		fmt.Fprintf(w, "%s voice %s: missing %v\n", FailMark, voice, missing)
	}

	return res
}

func missingHalves(paths ...string) []string {
	var missing []string
	for _, p := range paths {
		fi, err := os.Stat(p)
		if err != nil || fi.IsDir() || fi.Size() == 0 {
			missing = append(missing, filepath.Base(p))
		}
	}
	return missing
}
