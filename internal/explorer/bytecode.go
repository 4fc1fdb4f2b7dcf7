package explorer

import (
	"bytes"
	"encoding/hex"
	"regexp"
)

// CBOR metadata marker (Solidity >=0.6.0) - "ipfs" in CBOR
var metadataMarker = []byte{0xa2, 0x64, 0x69, 0x70, 0x66, 0x73}

// Library placeholder pattern: __$<34 hex chars>$__
var libraryPlaceholder = regexp.MustCompile(`__\$[a-f0-9]{34}\$__`)

// StripMetadata removes the CBOR metadata appended to bytecode
func StripMetadata(bytecode []byte) []byte {
	idx := bytes.LastIndex(bytecode, metadataMarker)
	if idx == -1 {
		return bytecode
	}
	// Back up over the 2-byte length prefix before the marker
	if idx >= 2 {
		return bytecode[:idx-2]
	}
	return bytecode
}

// MatchType classifies how closely on-chain bytecode matches an artifact.
type MatchType string

const (
	MatchFull    MatchType = "full"    // byte-for-byte including metadata
	MatchPartial MatchType = "partial" // executable code matches, metadata differs
	MatchNone    MatchType = "none"
)

// BytecodeMatch is the outcome of a local bytecode comparison.
type BytecodeMatch struct {
	Match     bool
	MatchType MatchType
	Message   string
}

// CompareBytecode compares on-chain runtime bytecode against the artifact's
// deployed bytecode. A partial match means the compiled code is identical
// but was built from a different path or environment.
func CompareBytecode(onchain, artifact []byte) *BytecodeMatch {
	// Tolerate hex-encoded artifact bytecode
	if len(artifact) > 2 && artifact[0] == '0' && artifact[1] == 'x' {
		if decoded, err := hex.DecodeString(string(artifact[2:])); err == nil {
			artifact = decoded
		}
	}

	if bytes.Equal(onchain, artifact) {
		return &BytecodeMatch{
			Match:     true,
			MatchType: MatchFull,
			Message:   "Bytecode matches exactly including metadata",
		}
	}

	if bytes.Equal(StripMetadata(onchain), StripMetadata(artifact)) {
		return &BytecodeMatch{
			Match:     true,
			MatchType: MatchPartial,
			Message:   "Executable code matches, metadata differs (different source paths, comments, or build environment)",
		}
	}

	return &BytecodeMatch{
		Match:     false,
		MatchType: MatchNone,
		Message:   "Bytecode does not match",
	}
}

// HasLibraryPlaceholders checks if bytecode contains unlinked library
// placeholders; such bytecode cannot be compared or deployed as-is.
func HasLibraryPlaceholders(bytecode []byte) bool {
	return libraryPlaceholder.Match(bytecode) ||
		libraryPlaceholder.MatchString(string(bytecode))
}
