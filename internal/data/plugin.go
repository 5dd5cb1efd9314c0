package data

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2b"
	"gopkg.in/yaml.v3"
)

var (
	ErrDuplicatePlugin  = errors.New("duplicate plugin id")
	ErrChecksumMismatch = errors.New("plugin checksum mismatch")
)

// PluginEntry is one plugin declared in the manifest.
type PluginEntry struct {
	ID       string `yaml:"id"`
	Script   string `yaml:"script"`   // relative to the scripts dir
	Enabled  *bool  `yaml:"enabled"`  // nil = enabled
	Checksum string `yaml:"checksum"` // optional hex BLAKE2b-256 of the script
}

type pluginListFile struct {
	Plugins []PluginEntry `yaml:"plugins"`
}

// Plugin is a resolved, verified plugin ready to load.
type Plugin struct {
	ID     string
	Path   string
	Source []byte
	Digest string // hex BLAKE2b-256 of Source
}

// PluginTable holds enabled plugins in manifest order. Load order decides
// callback registration order, so it is preserved as written.
type PluginTable struct {
	plugins []Plugin
	skipped int
}

// All returns the enabled plugins in manifest order.
func (t *PluginTable) All() []Plugin {
	return t.plugins
}

// Count returns the number of enabled plugins.
func (t *PluginTable) Count() int {
	return len(t.plugins)
}

// Skipped returns the number of disabled plugins.
func (t *PluginTable) Skipped() int {
	return t.skipped
}

// LoadPluginTable reads the manifest, resolves scripts against scriptsDir
// and verifies pinned checksums.
func LoadPluginTable(manifestPath, scriptsDir string) (*PluginTable, error) {
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("read plugin manifest: %w", err)
	}
	var f pluginListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse plugin manifest: %w", err)
	}

	t := &PluginTable{plugins: make([]Plugin, 0, len(f.Plugins))}
	seen := make(map[string]bool, len(f.Plugins))
	for i, entry := range f.Plugins {
		if entry.ID == "" {
			return nil, fmt.Errorf("plugin #%d: missing id", i+1)
		}
		if entry.Script == "" {
			return nil, fmt.Errorf("plugin %s: missing script", entry.ID)
		}
		if seen[entry.ID] {
			return nil, fmt.Errorf("plugin %s: %w", entry.ID, ErrDuplicatePlugin)
		}
		seen[entry.ID] = true

		if entry.Enabled != nil && !*entry.Enabled {
			t.skipped++
			continue
		}

		path := filepath.Join(scriptsDir, entry.Script)
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("plugin %s: read script: %w", entry.ID, err)
		}
		digest := ScriptDigest(src)
		if entry.Checksum != "" && !strings.EqualFold(entry.Checksum, digest) {
			return nil, fmt.Errorf("plugin %s: %w (want %s, got %s)", entry.ID, ErrChecksumMismatch, entry.Checksum, digest)
		}
		t.plugins = append(t.plugins, Plugin{
			ID:     entry.ID,
			Path:   path,
			Source: src,
			Digest: digest,
		})
	}
	return t, nil
}

// ScriptDigest returns the hex BLAKE2b-256 digest used for manifest checksums.
func ScriptDigest(src []byte) string {
	sum := blake2b.Sum256(src)
	return hex.EncodeToString(sum[:])
}
