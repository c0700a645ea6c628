// Package provision drives the asset manifest through the acquisition
// engine, enforces voice pair atomicity, and aggregates the run into a
// single report.
package provision

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/example/piper-provision/internal/acquire"
	"github.com/example/piper-provision/internal/manifest"
	"github.com/example/piper-provision/internal/platform"
)

// Acquirer installs a single asset. Satisfied by *acquire.Engine.
type Acquirer interface {
	Acquire(ctx context.Context, spec manifest.AssetSpec) acquire.Result
}

// Verifier runs the post-install smoke test. Satisfied by *verify.Verifier.
type Verifier interface {
	Verify(ctx context.Context, binaryPath, voiceModelPath string) Verification
}

// Orchestrator owns one provisioning run.
type Orchestrator struct {
	engine   Acquirer
	verifier Verifier
	workers  int
	log      *slog.Logger
}

// New builds an Orchestrator. workers bounds how many independent asset
// units are acquired concurrently; values below 1 mean serial. verifier
// may be nil, in which case verification is skipped.
func New(engine Acquirer, verifier Verifier, workers int, log *slog.Logger) *Orchestrator {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{engine: engine, verifier: verifier, workers: workers, log: log}
}

// unit is one independently schedulable piece of work: the binary on
// its own, or a model/config pair that commits or rolls back together.
type unit struct {
	specs []manifest.AssetSpec
}

// Run acquires every manifest entry, fail-soft: a failed unit never
// stops the others. Cancellation is honored between units; committed
// assets are left intact.
func (o *Orchestrator) Run(ctx context.Context, p platform.Platform, specs []manifest.AssetSpec) Report {
	units := groupUnits(specs)

	results := make([][]acquire.Result, len(units))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < o.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = o.runUnit(ctx, units[i])
			}
		}()
	}
	for i := range units {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	report := Report{Platform: p, Verification: VerificationSkipped}
	for _, rs := range results {
		report.Results = append(report.Results, rs...)
	}

	o.summarize(specs, &report)
	o.runVerification(ctx, specs, &report)

	return report
}

// runUnit acquires one unit's assets sequentially. When the unit is a
// voice pair, the commit/rollback decision waits until both legs have
// resolved: on any failure every file written this run is removed, and
// its result rewritten as failed, so a half-installed voice is never
// reported as usable. Files that predate this run are never touched.
func (o *Orchestrator) runUnit(ctx context.Context, u unit) []acquire.Result {
	if err := ctx.Err(); err != nil {
		out := make([]acquire.Result, 0, len(u.specs))
		for _, spec := range u.specs {
			out = append(out, acquire.Result{
				AssetID: spec.ID,
				Kind:    spec.Kind,
				Outcome: acquire.OutcomeFailed,
				Err:     err,
			})
		}
		return out
	}

	out := make([]acquire.Result, 0, len(u.specs))
	for _, spec := range u.specs {
		out = append(out, o.engine.Acquire(ctx, spec))
	}

	if len(u.specs) < 2 {
		return out
	}

	failed := ""
	for _, res := range out {
		if res.Outcome == acquire.OutcomeFailed {
			failed = res.AssetID
			break
		}
	}
	if failed == "" {
		return out
	}

	for i, res := range out {
		if res.Outcome != acquire.OutcomeDownloaded {
			continue
		}
		path := u.specs[i].DestinationPath
		if err := os.Remove(path); err != nil {
			o.log.Error("rollback failed", "asset", res.AssetID, "path", path, "error", err)
		} else {
			o.log.Info("rolled back asset", "asset", res.AssetID, "sibling", failed)
		}
		out[i] = acquire.Result{
			AssetID: res.AssetID,
			Kind:    res.Kind,
			Outcome: acquire.OutcomeFailed,
			Err:     fmt.Errorf("rolled back: sibling %s failed", failed),
		}
	}
	return out
}

// summarize derives the binary-present and complete-voice facts from
// the filesystem, so assets installed by other channels still count.
func (o *Orchestrator) summarize(specs []manifest.AssetSpec, report *Report) {
	pairs := map[string][]manifest.AssetSpec{}
	for _, spec := range specs {
		switch spec.Kind {
		case manifest.KindBinary:
			if fi, err := os.Stat(spec.DestinationPath); err == nil && !fi.IsDir() && fi.Size() > 0 {
				report.BinaryPresent = true
			}
		case manifest.KindVoiceModel, manifest.KindVoiceConfig:
			voice := voiceIdentity(spec.ID)
			pairs[voice] = append(pairs[voice], spec)
		}
	}

	if !report.BinaryPresent {
		o.log.Warn("engine binary not present; synthesis will be unavailable unless installed elsewhere")
	}

	for _, spec := range specs {
		if spec.Kind != manifest.KindVoiceModel {
			continue
		}
		voice := voiceIdentity(spec.ID)
		if pairOnDisk(pairs[voice]) {
			report.CompleteVoices = append(report.CompleteVoices, voice)
		}
	}
}

func (o *Orchestrator) runVerification(ctx context.Context, specs []manifest.AssetSpec, report *Report) {
	if o.verifier == nil {
		return
	}

	var binaryPath string
	for _, spec := range specs {
		if spec.Kind == manifest.KindBinary {
			binaryPath = spec.DestinationPath
			break
		}
	}
	if !report.BinaryPresent || binaryPath == "" {
		report.Verification = VerificationSkipped
		return
	}

	var modelPath string
	for _, spec := range specs {
		if spec.Kind != manifest.KindVoiceModel {
			continue
		}
		if containsVoice(report.CompleteVoices, voiceIdentity(spec.ID)) {
			modelPath = spec.DestinationPath
			break
		}
	}
	if modelPath == "" {
		report.Verification = VerificationSkipped
		return
	}

	report.Verification = o.verifier.Verify(ctx, binaryPath, modelPath)
}

func groupUnits(specs []manifest.AssetSpec) []unit {
	var units []unit
	byID := map[string]manifest.AssetSpec{}
	for _, spec := range specs {
		byID[spec.ID] = spec
	}

	seen := map[string]bool{}
	for _, spec := range specs {
		if seen[spec.ID] {
			continue
		}
		seen[spec.ID] = true

		if spec.RequiredSibling == "" {
			units = append(units, unit{specs: []manifest.AssetSpec{spec}})
			continue
		}
		sibling, ok := byID[spec.RequiredSibling]
		if !ok {
			units = append(units, unit{specs: []manifest.AssetSpec{spec}})
			continue
		}
		seen[sibling.ID] = true
		units = append(units, unit{specs: []manifest.AssetSpec{spec, sibling}})
	}
	return units
}

func pairOnDisk(specs []manifest.AssetSpec) bool {
	if len(specs) < 2 {
		return false
	}
	for _, spec := range specs {
		fi, err := os.Stat(spec.DestinationPath)
		if err != nil || fi.IsDir() || fi.Size() == 0 {
			return false
		}
	}
	return true
}

func voiceIdentity(assetID string) string {
	id := strings.TrimSuffix(assetID, ".model")
	return strings.TrimSuffix(id, ".config")
}

func containsVoice(voices []string, voice string) bool {
	for _, v := range voices {
		if v == voice {
			return true
		}
	}
	return false
}
