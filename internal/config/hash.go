package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// checksumFilename sits next to the config file it protects.
const checksumFilename = ".checksums"

// ChecksumManifest records the expected hash of a locked config file.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// Lock writes a .checksums manifest for the config file, pinning its
// current content. Subsequent loads fail if the file changes without a
// re-lock.
func Lock(configPath string) error {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}

	hash, err := ComputeBlake3Hash(absPath)
	if err != nil {
		return fmt.Errorf("failed to hash %s: %w", absPath, err)
	}

	manifest := ChecksumManifest{
		Version:     1,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Hashes: map[string]string{
			filepath.Base(absPath): hash,
		},
	}

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("failed to marshal checksums: %w", err)
	}

	checksumPath := filepath.Join(filepath.Dir(absPath), checksumFilename)
	// Restrictive permissions: the manifest is trusted input.
	if err := os.WriteFile(checksumPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write checksums: %w", err)
	}
	return nil
}

// verifyChecksumIfLocked verifies absPath against an adjacent .checksums
// manifest. No manifest, or a manifest that does not cover this file, means
// locking is not in use and verification is skipped.
func verifyChecksumIfLocked(absPath string) error {
	checksumPath := filepath.Join(filepath.Dir(absPath), checksumFilename)
	data, err := os.ReadFile(checksumPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read checksums: %w", err)
	}

	var manifest ChecksumManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("failed to parse checksums: %w", err)
	}

	expected, ok := manifest.Hashes[filepath.Base(absPath)]
	if !ok {
		return nil
	}

	actual, err := ComputeBlake3Hash(absPath)
	if err != nil {
		return fmt.Errorf("failed to hash config: %w", err)
	}
	if actual != expected {
		return fmt.Errorf("config integrity check failed for %s: expected %s, got %s\n"+
			"Hint: run 'formsedge config lock' after intentional edits", absPath, expected, actual)
	}
	return nil
}
