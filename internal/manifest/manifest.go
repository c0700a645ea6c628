// Package manifest describes the static catalog of assets the
// provisioner is responsible for: the engine binary and one
// model/config pair per configured voice identity.
package manifest

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/example/piper-provision/internal/platform"
)

// Kind classifies an asset.
type Kind string

const (
	KindBinary      Kind = "binary"
	KindVoiceModel  Kind = "voice-model"
	KindVoiceConfig Kind = "voice-config"
)

// BinaryID is the manifest id of the engine binary entry.
const BinaryID = "engine-binary"

// AssetSpec describes one file to provision. SourceCandidates are tried
// in order; the first is preferred, the rest are fallbacks.
type AssetSpec struct {
	ID                string
	Kind              Kind
	SourceCandidates  []string
	DestinationPath   string
	RequiredSibling   string // asset id that must also succeed, "" for none
	ArchiveExecutable string // for archive-packaged assets: executable to extract
}

// Archived reports whether the asset arrives packaged in a tar.gz
// archive rather than as a flat file.
func (s AssetSpec) Archived() bool {
	return s.ArchiveExecutable != ""
}

// Catalog is the static configuration a manifest is built from.
type Catalog struct {
	Root             string   // provisioning root directory
	EngineVersion    string   // pinned engine release version
	ReleaseTemplates []string // ordered URL templates with {version}, {arch}, {uname_arch}
	HubURLs          []string // ordered model hub base URLs (revision fallbacks)
	Voices           []string // voice identities, e.g. ru_RU-dmitri-medium
}

// BinDir returns the directory holding the engine executable.
func (c Catalog) BinDir() string { return filepath.Join(c.Root, "bin") }

// VoicesDir returns the directory holding voice model/config pairs.
func (c Catalog) VoicesDir() string { return filepath.Join(c.Root, "voices") }

// BinaryPath returns the destination path of the engine executable.
func (c Catalog) BinaryPath() string { return filepath.Join(c.BinDir(), "piper") }

// Build expands the catalog into the ordered asset list for the
// resolved platform. The binary entry comes first, then the voice
// pairs in configuration order (model before config). Build touches
// no network or filesystem state.
func Build(p platform.Platform, c Catalog) ([]AssetSpec, error) {
	if len(c.Voices) == 0 {
		return nil, fmt.Errorf("no voice identities configured")
	}

	specs := make([]AssetSpec, 0, 1+2*len(c.Voices))

	binary := AssetSpec{
		ID:                BinaryID,
		Kind:              KindBinary,
		DestinationPath:   c.BinaryPath(),
		ArchiveExecutable: "piper",
	}
	for _, tpl := range c.ReleaseTemplates {
		binary.SourceCandidates = append(binary.SourceCandidates, renderRelease(tpl, c.EngineVersion, p))
	}
	if len(binary.SourceCandidates) == 0 {
		return nil, fmt.Errorf("no release URL templates configured")
	}
	specs = append(specs, binary)

	for _, voice := range c.Voices {
		hubPath, err := hubPath(voice)
		if err != nil {
			return nil, err
		}

		modelID := voice + ".model"
		configID := voice + ".config"

		model := AssetSpec{
			ID:              modelID,
			Kind:            KindVoiceModel,
			DestinationPath: filepath.Join(c.VoicesDir(), voice+".model"),
			RequiredSibling: configID,
		}
		config := AssetSpec{
			ID:              configID,
			Kind:            KindVoiceConfig,
			DestinationPath: filepath.Join(c.VoicesDir(), voice+".config"),
			RequiredSibling: modelID,
		}
		for _, base := range c.HubURLs {
			base = strings.TrimRight(base, "/")
			model.SourceCandidates = append(model.SourceCandidates, base+"/"+hubPath+".onnx")
			config.SourceCandidates = append(config.SourceCandidates, base+"/"+hubPath+".onnx.json")
		}
		if len(model.SourceCandidates) == 0 {
			return nil, fmt.Errorf("no hub URLs configured")
		}

		specs = append(specs, model, config)
	}

	return specs, nil
}

func renderRelease(tpl, version string, p platform.Platform) string {
	r := strings.NewReplacer(
		"{version}", version,
		"{arch}", p.Tag(),
		"{uname_arch}", p.UnameTag(),
	)
	return r.Replace(tpl)
}

// hubPath derives the hub directory path for a voice identity of the
// form ll_CC-name-quality, e.g. ru_RU-dmitri-medium ->
// ru/ru_RU/dmitri/medium/ru_RU-dmitri-medium.
func hubPath(voice string) (string, error) {
	parts := strings.Split(voice, "-")
	if len(parts) < 3 {
		return "", fmt.Errorf("voice identity %q: want ll_CC-name-quality", voice)
	}
	locale := parts[0]
	quality := parts[len(parts)-1]
	name := strings.Join(parts[1:len(parts)-1], "-")

	lang, _, ok := strings.Cut(locale, "_")
	if !ok || lang == "" || name == "" || quality == "" {
		return "", fmt.Errorf("voice identity %q: want ll_CC-name-quality", voice)
	}

	return strings.Join([]string{lang, locale, name, quality, voice}, "/"), nil
}
