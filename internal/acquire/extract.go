package acquire

import (
	"archive/tar"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/example/piper-provision/internal/manifest"
)

// installFromArchive unpacks a downloaded tar.gz into an asset-scoped
// staging directory, locates the expected executable (release archives
// nest it at varying depths), marks it executable, and renames only
// that file into the destination. The staging tree is always removed.
func (e *Engine) installFromArchive(spec manifest.AssetSpec, archivePath string) error {
	staging := spec.DestinationPath + ".extract"
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return &FilesystemError{Path: staging, Err: err}
	}
	defer os.RemoveAll(staging)

	if err := extractTarGz(archivePath, staging); err != nil {
		return &ExtractionError{AssetID: spec.ID, Executable: spec.ArchiveExecutable, Reason: err.Error()}
	}

	found, err := findExecutable(staging, spec.ArchiveExecutable)
	if err != nil {
		return &ExtractionError{AssetID: spec.ID, Executable: spec.ArchiveExecutable, Reason: err.Error()}
	}
	if found == "" {
		return &ExtractionError{AssetID: spec.ID, Executable: spec.ArchiveExecutable, Reason: "not found in archive"}
	}

	if err := os.Chmod(found, 0o755); err != nil {
		return &FilesystemError{Path: found, Err: err}
	}
	if err := os.Rename(found, spec.DestinationPath); err != nil {
		return &FilesystemError{Path: spec.DestinationPath, Err: err}
	}
	return nil
}

func extractTarGz(archivePath, destDir string) error {
	fh, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer fh.Close()

	gzr, err := gzip.NewReader(fh)
	if err != nil {
		return err
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		name := filepath.Clean(header.Name)
		if strings.HasPrefix(name, "..") || filepath.IsAbs(name) {
			continue
		}
		target := filepath.Join(destDir, name)

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fs.FileMode(header.Mode).Perm())
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				_ = out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
		}
		// Symlinks and other entry types are skipped: only regular
		// files can hold the executable we are after.
	}
}

// findExecutable walks the extracted tree for a regular file with the
// given base name, wherever the archive nested it.
func findExecutable(root, name string) (string, error) {
	var found string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if found == "" && !d.IsDir() && d.Name() == name {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return found, nil
}
