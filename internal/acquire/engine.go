// Package acquire performs idempotent fetch-verify-install of single
// assets from ordered source candidate lists.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/example/piper-provision/internal/manifest"
)

// Outcome is the final state of one asset after a run.
type Outcome string

const (
	OutcomeAlreadyPresent Outcome = "already-present"
	OutcomeDownloaded     Outcome = "downloaded"
	OutcomeFailed         Outcome = "failed"
)

// Result records what happened to one asset. Created once per asset
// per run and never mutated after the engine returns it.
type Result struct {
	AssetID      string
	Kind         manifest.Kind
	Outcome      Outcome
	BytesWritten int64
	SourceUsed   string
	Err          error
}

// Options configures an Engine.
type Options struct {
	Client         *http.Client
	AttemptTimeout time.Duration // per-fetch-attempt deadline
	Retries        int           // attempts per candidate before moving on
	Logger         *slog.Logger
}

// Engine downloads assets into place. Safe for concurrent use: all
// temporary names are scoped to the asset being acquired.
type Engine struct {
	client         *http.Client
	attemptTimeout time.Duration
	retries        int
	log            *slog.Logger
}

// NewEngine builds an Engine, filling in defaults for zero options.
func NewEngine(opts Options) *Engine {
	e := &Engine{
		client:         opts.Client,
		attemptTimeout: opts.AttemptTimeout,
		retries:        opts.Retries,
		log:            opts.Logger,
	}
	if e.client == nil {
		e.client = &http.Client{}
	}
	if e.attemptTimeout <= 0 {
		e.attemptTimeout = 60 * time.Second
	}
	if e.retries <= 0 {
		e.retries = 3
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	return e
}

// Acquire installs one asset. It returns AlreadyPresent without any
// network I/O when the destination is already complete, otherwise it
// walks the source candidates in order, each with bounded retries, and
// commits the first complete payload atomically into place. Partial
// temporary artifacts never survive a failure.
func (e *Engine) Acquire(ctx context.Context, spec manifest.AssetSpec) Result {
	res := Result{AssetID: spec.ID, Kind: spec.Kind}

	if installed(spec) {
		e.log.Debug("asset already present", "asset", spec.ID, "path", spec.DestinationPath)
		res.Outcome = OutcomeAlreadyPresent
		return res
	}

	if err := os.MkdirAll(filepath.Dir(spec.DestinationPath), 0o755); err != nil {
		res.Outcome = OutcomeFailed
		res.Err = &FilesystemError{Path: filepath.Dir(spec.DestinationPath), Err: err}
		return res
	}

	var lastErr error
	for _, url := range spec.SourceCandidates {
		if err := ctx.Err(); err != nil {
			res.Outcome = OutcomeFailed
			res.Err = err
			return res
		}

		written, err := e.fetchCandidate(ctx, spec, url)
		if err == nil {
			res.Outcome = OutcomeDownloaded
			res.BytesWritten = written
			res.SourceUsed = url
			e.log.Info("asset downloaded", "asset", spec.ID, "source", url, "bytes", written)
			return res
		}

		lastErr = err
		e.log.Warn("source candidate exhausted", "asset", spec.ID, "source", url, "error", err)

		// Filesystem and extraction problems will not improve with
		// a different source.
		var fsErr *FilesystemError
		var exErr *ExtractionError
		if errors.As(err, &fsErr) || errors.As(err, &exErr) {
			res.Outcome = OutcomeFailed
			res.Err = err
			return res
		}
	}

	res.Outcome = OutcomeFailed
	res.Err = &SourceExhaustedError{AssetID: spec.ID, Last: lastErr}
	return res
}

// fetchCandidate retries one candidate URL with exponential backoff,
// then installs the payload (extracting archives when required).
func (e *Engine) fetchCandidate(ctx context.Context, spec manifest.AssetSpec, url string) (int64, error) {
	tmp := spec.DestinationPath + ".tmp"

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(e.retries-1)),
		ctx,
	)

	var written int64
	err := backoff.Retry(func() error {
		n, err := e.download(ctx, url, tmp)
		if err != nil {
			return err
		}
		written = n
		return nil
	}, bo)
	if err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}

	if spec.Archived() {
		if err := e.installFromArchive(spec, tmp); err != nil {
			_ = os.Remove(tmp)
			return 0, err
		}
		_ = os.Remove(tmp)
		return written, nil
	}

	if err := os.Rename(tmp, spec.DestinationPath); err != nil {
		_ = os.Remove(tmp)
		return 0, &FilesystemError{Path: spec.DestinationPath, Err: err}
	}
	return written, nil
}

// download fetches url into tmpPath with a bounded deadline. The temp
// file is removed on every error path.
func (e *Engine) download(ctx context.Context, url, tmpPath string) (int64, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, e.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		return 0, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("fetch %s: %s", url, resp.Status)
		if resp.StatusCode == http.StatusNotFound ||
			resp.StatusCode == http.StatusUnauthorized ||
			resp.StatusCode == http.StatusForbidden {
			// Retrying the same URL will not change these.
			return 0, backoff.Permanent(err)
		}
		return 0, err
	}

	fh, err := os.Create(tmpPath)
	if err != nil {
		return 0, backoff.Permanent(&FilesystemError{Path: tmpPath, Err: err})
	}

	written, err := io.Copy(fh, resp.Body)
	if cerr := fh.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("write %s: %w", tmpPath, err)
	}
	if written == 0 {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("fetch %s: empty payload", url)
	}
	if resp.ContentLength > 0 && written != resp.ContentLength {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("fetch %s: short read (%d of %d bytes)", url, written, resp.ContentLength)
	}

	return written, nil
}

// installed reports whether the destination already holds a complete
// asset: non-empty, and executable for archive-packaged binaries.
func installed(spec manifest.AssetSpec) bool {
	fi, err := os.Stat(spec.DestinationPath)
	if err != nil || fi.IsDir() || fi.Size() == 0 {
		return false
	}
	if spec.Archived() && fi.Mode().Perm()&0o111 == 0 {
		return false
	}
	return true
}
