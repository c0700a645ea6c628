package provision

import (
	"github.com/example/piper-provision/internal/acquire"
	"github.com/example/piper-provision/internal/platform"
)

// Verification is the outcome of the post-install smoke test.
type Verification string

const (
	VerificationPassed  Verification = "passed"
	VerificationFailed  Verification = "failed"
	VerificationSkipped Verification = "skipped"
)

// Report is the sole artifact a run returns to callers. It must be
// enough, on its own, to tell exactly which assets are usable.
type Report struct {
	Platform       platform.Platform
	Results        []acquire.Result
	Verification   Verification
	BinaryPresent  bool     // binary on disk, whether installed this run or by other means
	CompleteVoices []string // voice identities with both pair halves on disk
}

// Result returns the recorded result for an asset id.
func (r Report) Result(assetID string) (acquire.Result, bool) {
	for _, res := range r.Results {
		if res.AssetID == assetID {
			return res, true
		}
	}
	return acquire.Result{}, false
}

// Success reports overall pipeline success: the engine binary is
// present and at least one voice identity is fully installed.
func (r Report) Success() bool {
	return r.BinaryPresent && len(r.CompleteVoices) > 0
}
