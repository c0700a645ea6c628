package doctor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func healthyTree(t *testing.T, voices ...string) Config {
	t.Helper()
	root := t.TempDir()

	binDir := filepath.Join(root, "bin")
	voicesDir := filepath.Join(root, "voices")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(voicesDir, 0o755); err != nil {
		t.Fatal(err)
	}

	binary := filepath.Join(binDir, "piper")
	if err := os.WriteFile(binary, []byte("#!/bin/true\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	for _, voice := range voices {
		for _, ext := range []string{".model", ".config"} {
			if err := os.WriteFile(filepath.Join(voicesDir, voice+ext), []byte("x"), 0o644); err != nil {
				t.Fatal(err)
			}
		}
	}

	return Config{BinaryPath: binary, VoicesDir: voicesDir, Voices: voices}
}

func TestRun_Healthy(t *testing.T) {
	cfg := healthyTree(t, "ru_RU-dmitri-medium", "ru_RU-ruslan-medium")

	var out strings.Builder
	res := Run(cfg, &out)

	if res.Failed() {
		t.Fatalf("Failed() = true; failures = %v", res.Failures())
	}
	if !strings.Contains(out.String(), PassMark+" engine binary") {
		t.Errorf("output missing binary pass line:\n%s", out.String())
	}
	if strings.Contains(out.String(), FailMark) {
		t.Errorf("healthy tree produced fail marks:\n%s", out.String())
	}
}

func TestRun_MissingBinary(t *testing.T) {
	cfg := healthyTree(t, "ru_RU-dmitri-medium")
	cfg.BinaryPath = filepath.Join(t.TempDir(), "absent")

	var out strings.Builder
	res := Run(cfg, &out)

	if !res.Failed() {
		t.Fatal("Failed() = false with missing binary")
	}
	if !strings.Contains(out.String(), FailMark+" engine binary") {
		t.Errorf("output missing binary fail line:\n%s", out.String())
	}
}

func TestRun_NonExecutableBinary(t *testing.T) {
	cfg := healthyTree(t, "ru_RU-dmitri-medium")
	if err := os.Chmod(cfg.BinaryPath, 0o644); err != nil {
		t.Fatal(err)
	}

	var out strings.Builder
	res := Run(cfg, &out)

	if !res.Failed() {
		t.Fatal("Failed() = false with non-executable binary")
	}
	if !strings.Contains(out.String(), "not executable") {
		t.Errorf("output does not name the problem:\n%s", out.String())
	}
}

func TestRun_HalfVoicePair(t *testing.T) {
	cfg := healthyTree(t, "ru_RU-dmitri-medium")
	if err := os.Remove(filepath.Join(cfg.VoicesDir, "ru_RU-dmitri-medium.config")); err != nil {
		t.Fatal(err)
	}

	var out strings.Builder
	res := Run(cfg, &out)

	if !res.Failed() {
		t.Fatal("Failed() = false with a half-installed voice")
	}
	if len(res.Failures()) != 1 {
		t.Errorf("Failures() = %v; want exactly the voice failure", res.Failures())
	}
	if !strings.Contains(out.String(), "ru_RU-dmitri-medium.config") {
		t.Errorf("output does not name the missing half:\n%s", out.String())
	}
}

func TestRun_EmptyModelFileCountsAsMissing(t *testing.T) {
	cfg := healthyTree(t, "ru_RU-dmitri-medium")
	if err := os.WriteFile(filepath.Join(cfg.VoicesDir, "ru_RU-dmitri-medium.model"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	var out strings.Builder
	res := Run(cfg, &out)

	if !res.Failed() {
		t.Fatal("Failed() = false with an empty model file")
	}
}
