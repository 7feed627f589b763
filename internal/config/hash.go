package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/mattjoyce/goon/internal/errs"
)

// ChecksumSuffix is appended to a config path to name its integrity sidecar.
const ChecksumSuffix = ".blake3"

// ErrChecksumMismatch is returned when a config no longer matches its sidecar.
var ErrChecksumMismatch = errors.New("config checksum mismatch")

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// VerifyFileHash verifies a file against an expected BLAKE3 hash.
func VerifyFileHash(filePath, expectedHash string) error {
	actualHash, err := ComputeBlake3Hash(filePath)
	if err != nil {
		return fmt.Errorf("failed to compute hash: %w", err)
	}

	if actualHash != expectedHash {
		return fmt.Errorf("%w for %s: expected %s, got %s",
			ErrChecksumMismatch, filepath.Base(filePath), expectedHash, actualHash)
	}

	return nil
}

// ChecksumPath returns the sidecar path for a config file.
func ChecksumPath(configPath string) string {
	return configPath + ChecksumSuffix
}

// WriteChecksum hashes configPath and writes "<hash>  <basename>" to its
// sidecar, returning the hash.
func WriteChecksum(configPath string) (string, error) {
	sum, err := ComputeBlake3Hash(configPath)
	if err != nil {
		return "", err
	}
	line := fmt.Sprintf("%s  %s\n", sum, filepath.Base(configPath))
	if err := os.WriteFile(ChecksumPath(configPath), []byte(line), 0o600); err != nil {
		return "", fmt.Errorf("failed to write checksum: %w", err)
	}
	return sum, nil
}

// VerifyChecksum checks configPath against its sidecar. A missing sidecar is
// not an error and yields an empty hash.
func VerifyChecksum(configPath string) (string, error) {
	data, err := os.ReadFile(ChecksumPath(configPath))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read checksum: %w", err)
	}

	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return "", fmt.Errorf("empty checksum file %s: %w", ChecksumPath(configPath), errs.ErrInvalidParam)
	}
	expected := fields[0]
	if err := VerifyFileHash(configPath, expected); err != nil {
		return "", err
	}
	return expected, nil
}

// Fingerprint returns a short, stable identifier for a config file: the
// first 12 hex characters of its BLAKE3 hash.
func Fingerprint(configPath string) (string, error) {
	sum, err := ComputeBlake3Hash(configPath)
	if err != nil {
		return "", err
	}
	return sum[:12], nil
}
