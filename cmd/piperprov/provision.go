package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/piper-provision/internal/acquire"
	"github.com/example/piper-provision/internal/config"
	"github.com/example/piper-provision/internal/doctor"
	"github.com/example/piper-provision/internal/manifest"
	"github.com/example/piper-provision/internal/platform"
	"github.com/example/piper-provision/internal/provision"
	"github.com/example/piper-provision/internal/verify"
)

func newProvisionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "provision",
		Short: "Acquire the engine binary and voice models, then smoke-test the install",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := activeCfg
			log := slog.Default()

			p, err := resolvePlatform(cfg, log)
			if err != nil {
				return err
			}

			catalog := catalogFromConfig(cfg)
			specs, err := manifest.Build(p, catalog)
			if err != nil {
				return fmt.Errorf("build manifest: %w", err)
			}

			engine := acquire.NewEngine(acquire.Options{
				AttemptTimeout: time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second,
				Retries:        cfg.Fetch.Retries,
				Logger:         log,
			})
			verifier := verify.New(log)
			orch := provision.New(engine, verifier, cfg.Fetch.Concurrency, log)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			report := orch.Run(ctx, p, specs)
			printReport(report)

			if !report.Success() {
				return fmt.Errorf("provisioning incomplete: binary present=%v, complete voices=%d",
					report.BinaryPresent, len(report.CompleteVoices))
			}
			return nil
		},
	}
}

// resolvePlatform applies the configured unsupported-architecture
// policy: fatal, or an explicit logged fallback to a default tag.
func resolvePlatform(cfg config.Config, log *slog.Logger) (platform.Platform, error) {
	machine := cfg.Platform.Machine
	var p platform.Platform
	if machine != "" {
		p = platform.Resolve(machine)
	} else {
		p = platform.Detect()
	}

	if p.Supported() {
		log.Info("platform resolved", "machine", p.Machine, "arch", p.Tag())
		return p, nil
	}

	if cfg.Platform.FailOnUnsupported {
		return p, &platform.UnsupportedError{Machine: p.Machine}
	}

	fallback, err := p.WithArch(cfg.Platform.FallbackTag)
	if err != nil {
		return p, fmt.Errorf("unsupported machine %q and invalid fallback tag: %w", p.Machine, err)
	}
	log.Warn("unsupported architecture, falling back to default tag",
		"machine", p.Machine, "fallback", fallback.Tag())
	return fallback, nil
}

func catalogFromConfig(cfg config.Config) manifest.Catalog {
	return manifest.Catalog{
		Root:             cfg.Paths.Root,
		EngineVersion:    cfg.Engine.Version,
		ReleaseTemplates: cfg.Engine.ReleaseTemplates,
		HubURLs:          cfg.Voices.HubURLs,
		Voices:           cfg.Voices.IDs,
	}
}

// printReport writes the human-readable per-asset summary. A caller
// must be able to tell which voices are usable from this alone.
func printReport(report provision.Report) {
	fmt.Printf("platform: %s (%s)\n", report.Platform.Tag(), report.Platform.Machine)

	for _, res := range report.Results {
		mark := doctor.PassMark
		detail := string(res.Outcome)
		switch res.Outcome {
		case acquire.OutcomeDownloaded:
			detail = fmt.Sprintf("downloaded (%d bytes from %s)", res.BytesWritten, res.SourceUsed)
		case acquire.OutcomeFailed:
			mark = doctor.FailMark
			if res.Err != nil {
				detail = fmt.Sprintf("failed: %v", res.Err)
			}
		}
		fmt.Printf("%s %s: %s\n", mark, res.AssetID, detail)
	}

	fmt.Printf("usable voices: %d %v\n", len(report.CompleteVoices), report.CompleteVoices)
	fmt.Printf("verification: %s\n", report.Verification)
}
