// Package validation provides input validation for shipyard.
package validation

import (
	"errors"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"
)

// Network name validation
// Simple names: lowercase alphanumeric with hyphens, 2-64 chars
var networkNameRegex = regexp.MustCompile(`^[a-z][a-z0-9-]{0,62}[a-z0-9]$`)

// Solc versions look like "0.8.20" or "v0.8.20+commit.a1b2c3d4"
var solcCommitSuffix = regexp.MustCompile(`\+commit\.[0-9a-f]{8}$`)

// ValidateNetworkName validates a network name
func ValidateNetworkName(name string) error {
	if len(name) < 2 {
		return errors.New("network name too short (min 2 chars)")
	}
	if len(name) > 64 {
		return errors.New("network name too long (max 64 chars)")
	}
	if !networkNameRegex.MatchString(name) {
		return errors.New("invalid network name: must be lowercase alphanumeric with hyphens, starting with a letter")
	}
	if strings.Contains(name, "--") {
		return errors.New("invalid characters in network name")
	}
	return nil
}

// ValidateRPCURL validates an RPC endpoint URL
func ValidateRPCURL(raw string) error {
	if raw == "" {
		return errors.New("RPC URL cannot be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return errors.New("malformed RPC URL")
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return errors.New("RPC URL must use http(s) or ws(s) scheme")
	}
	if u.Host == "" {
		return errors.New("RPC URL is missing a host")
	}
	return nil
}

// ValidateAddress validates an Ethereum address
func ValidateAddress(addr string) error {
	if len(addr) != 42 {
		return errors.New("invalid address length: must be 42 characters (0x + 40 hex)")
	}
	if !strings.HasPrefix(addr, "0x") {
		return errors.New("invalid address: must start with 0x")
	}
	for _, c := range addr[2:] {
		isDigit := c >= '0' && c <= '9'
		isLowerHex := c >= 'a' && c <= 'f'
		isUpperHex := c >= 'A' && c <= 'F'
		if !isDigit && !isLowerHex && !isUpperHex {
			return errors.New("invalid address: contains non-hex characters")
		}
	}
	return nil
}

// ValidateTxHash validates a transaction hash
func ValidateTxHash(hash string) error {
	if len(hash) != 66 {
		return errors.New("invalid tx hash length: must be 66 characters (0x + 64 hex)")
	}
	if !strings.HasPrefix(hash, "0x") {
		return errors.New("invalid tx hash: must start with 0x")
	}
	for _, c := range hash[2:] {
		isDigit := c >= '0' && c <= '9'
		isLowerHex := c >= 'a' && c <= 'f'
		isUpperHex := c >= 'A' && c <= 'F'
		if !isDigit && !isLowerHex && !isUpperHex {
			return errors.New("invalid tx hash: contains non-hex characters")
		}
	}
	return nil
}

// ValidateChainID validates a chain ID
func ValidateChainID(chainID int64) error {
	if chainID <= 0 {
		return errors.New("chain ID must be positive")
	}
	return nil
}

// ValidateHexKey validates a hex-encoded secp256k1 private key (no 0x prefix required)
func ValidateHexKey(key string) error {
	k := strings.TrimPrefix(key, "0x")
	if len(k) != 64 {
		return errors.New("invalid key length: must be 64 hex characters")
	}
	for _, c := range k {
		isDigit := c >= '0' && c <= '9'
		isLowerHex := c >= 'a' && c <= 'f'
		isUpperHex := c >= 'A' && c <= 'F'
		if !isDigit && !isLowerHex && !isUpperHex {
			return errors.New("invalid key: contains non-hex characters")
		}
	}
	return nil
}

// NormalizeSolcVersion normalizes a compiler version to bare X.Y.Z form,
// dropping any leading 'v' and trailing commit suffix.
func NormalizeSolcVersion(v string) string {
	v = strings.TrimPrefix(v, "v")
	return solcCommitSuffix.ReplaceAllString(v, "")
}

// ValidateSolcVersion validates a Solidity compiler version string
func ValidateSolcVersion(v string) error {
	normalized := NormalizeSolcVersion(v)
	if normalized == "" {
		return errors.New("compiler version cannot be empty")
	}

	versionWithV := "v" + normalized
	if !semver.IsValid(versionWithV) {
		return errors.New("invalid compiler version: must be in format X.Y.Z")
	}

	// Require full major.minor.patch; solc is always released that way
	if strings.Count(normalized, ".") < 2 {
		return errors.New("invalid compiler version: must be in format X.Y.Z (major.minor.patch)")
	}

	return nil
}

// CompareSolcVersions compares two compiler versions.
// Returns -1 if v1 < v2, 0 if v1 == v2, 1 if v1 > v2
func CompareSolcVersions(v1, v2 string) int {
	n1 := "v" + NormalizeSolcVersion(v1)
	n2 := "v" + NormalizeSolcVersion(v2)
	return semver.Compare(n1, n2)
}
