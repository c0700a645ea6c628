package provision

import (
	"archive/tar"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/example/piper-provision/internal/acquire"
	"github.com/example/piper-provision/internal/manifest"
	"github.com/example/piper-provision/internal/platform"
)

// pipelineServer serves a release archive plus voice files, returning
// 404 for every v1 model revision while letting everything else
// succeed. It mirrors the partial-failure scenario a flaky model hub
// produces in practice.
func pipelineServer(t *testing.T, hits *atomic.Int64) *httptest.Server {
	t.Helper()

	archive := func() []byte {
		var buf bytes.Buffer
		gzw := gzip.NewWriter(&buf)
		tw := tar.NewWriter(gzw)
		content := "#!/bin/true\n"
		if err := tw.WriteHeader(&tar.Header{Name: "piper/piper", Mode: 0o755, Size: int64(len(content))}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
		if err := tw.Close(); err != nil {
			t.Fatal(err)
		}
		if err := gzw.Close(); err != nil {
			t.Fatal(err)
		}
		return buf.Bytes()
	}()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch {
		case strings.HasSuffix(r.URL.Path, ".tar.gz"):
			_, _ = w.Write(archive)
		case strings.Contains(r.URL.Path, "ru_RU-v1-medium.onnx") && !strings.HasSuffix(r.URL.Path, ".json"):
			w.WriteHeader(http.StatusNotFound)
		case strings.HasSuffix(r.URL.Path, ".onnx.json"):
			_, _ = w.Write([]byte(`{"audio":{"sample_rate":22050}}`))
		default:
			_, _ = w.Write([]byte("onnx-model-bytes"))
		}
	}))
}

func pipelineRun(t *testing.T, srv *httptest.Server, root string) Report {
	t.Helper()

	specs, err := manifest.Build(platform.Resolve("x86_64"), manifest.Catalog{
		Root:             root,
		EngineVersion:    "1.2.0",
		ReleaseTemplates: []string{srv.URL + "/release/v{version}/piper_linux_{arch}.tar.gz"},
		HubURLs:          []string{srv.URL + "/hub/main", srv.URL + "/hub/v1.0.0"},
		Voices:           []string{"ru_RU-v1-medium", "ru_RU-v2-medium"},
	})
	if err != nil {
		t.Fatalf("build manifest: %v", err)
	}

	engine := acquire.NewEngine(acquire.Options{
		AttemptTimeout: 5 * time.Second,
		Retries:        1,
	})
	return New(engine, nil, 3, nil).Run(context.Background(), platform.Resolve("x86_64"), specs)
}

func TestPipeline_PartialFailureThenIdempotentRerun(t *testing.T) {
	var hits atomic.Int64
	srv := pipelineServer(t, &hits)
	defer srv.Close()

	root := t.TempDir()

	// ---- first run: v1 model 404s everywhere, everything else lands ----
	report := pipelineRun(t, srv, root)

	binRes, _ := report.Result(manifest.BinaryID)
	if binRes.Outcome != acquire.OutcomeDownloaded {
		t.Fatalf("binary outcome = %s (err=%v); want downloaded", binRes.Outcome, binRes.Err)
	}

	v1Model, _ := report.Result("ru_RU-v1-medium.model")
	if v1Model.Outcome != acquire.OutcomeFailed {
		t.Errorf("v1 model outcome = %s; want failed", v1Model.Outcome)
	}
	for _, name := range []string{"ru_RU-v1-medium.model", "ru_RU-v1-medium.config"} {
		if _, err := os.Stat(filepath.Join(root, "voices", name)); !os.IsNotExist(err) {
			t.Errorf("%s on disk after v1 failed; pair must roll back together", name)
		}
	}

	v2Model, _ := report.Result("ru_RU-v2-medium.model")
	if v2Model.Outcome != acquire.OutcomeDownloaded {
		t.Errorf("v2 model outcome = %s (err=%v); want downloaded", v2Model.Outcome, v2Model.Err)
	}
	if len(report.CompleteVoices) != 1 || report.CompleteVoices[0] != "ru_RU-v2-medium" {
		t.Errorf("CompleteVoices = %v; want [ru_RU-v2-medium]", report.CompleteVoices)
	}
	if !report.Success() {
		t.Error("Success() = false; binary present and one full voice installed")
	}

	// ---- second run: installed assets must produce no network I/O ----
	hits.Store(0)
	rerun := pipelineRun(t, srv, root)

	for _, id := range []string{manifest.BinaryID, "ru_RU-v2-medium.model", "ru_RU-v2-medium.config"} {
		res, _ := rerun.Result(id)
		if res.Outcome != acquire.OutcomeAlreadyPresent {
			t.Errorf("rerun %s outcome = %s; want already-present", id, res.Outcome)
		}
	}

	// v1 is still absent, so only its candidates are retried: two hub
	// revisions for the model, plus a rolled-back config fetch.
	v1Rerun, _ := rerun.Result("ru_RU-v1-medium.model")
	if v1Rerun.Outcome != acquire.OutcomeFailed {
		t.Errorf("rerun v1 model outcome = %s; want failed again", v1Rerun.Outcome)
	}
	if !rerun.Success() {
		t.Error("rerun Success() = false; installed state unchanged")
	}

	// Every request of the second run must belong to the still-missing
	// v1 pair; already-present assets are served from disk.
	if hits.Load() == 0 {
		t.Error("expected rerun to retry the missing v1 pair")
	}
	if hits.Load() > 4 {
		t.Errorf("rerun made %d requests; want at most the v1 pair's candidates", hits.Load())
	}
}
