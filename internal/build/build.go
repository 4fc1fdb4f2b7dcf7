// Package build provides the build step of the deployment pipeline: it
// turns contract sources into deployable artifacts, either by parsing the
// output of an external build tool (Foundry) or by invoking the Solidity
// compiler directly.
package build

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Artifact is a compiled contract: bytecode plus ABI, keyed by name. It is
// immutable once produced and owned by the orchestrator for the duration of
// one deployment run.
type Artifact struct {
	Name             string          `json:"name"`
	SourcePath       string          `json:"sourcePath,omitempty"`
	License          string          `json:"license,omitempty"`
	ABI              json.RawMessage `json:"abi"`
	Bytecode         string          `json:"bytecode"`
	DeployedBytecode string          `json:"deployedBytecode,omitempty"`
	Compiler         CompilerMeta    `json:"compiler"`
}

// CompilerMeta records how an artifact was compiled. The explorer
// verification payload is derived from it.
type CompilerMeta struct {
	Version    string          `json:"version"` // "0.8.20" or "v0.8.20+commit.a1b2c3d4"
	Optimizer  OptimizerConfig `json:"optimizer"`
	EVMVersion string          `json:"evmVersion,omitempty"`
	ViaIR      bool            `json:"viaIR,omitempty"`
}

// OptimizerConfig contains optimizer settings
type OptimizerConfig struct {
	Enabled bool `json:"enabled"`
	Runs    int  `json:"runs"`
}

// ParsedABI parses the artifact's ABI.
func (a *Artifact) ParsedABI() (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(string(a.ABI)))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parsing ABI for %s: %w", a.Name, err)
	}
	return parsed, nil
}

// BytecodeBytes decodes the creation bytecode.
func (a *Artifact) BytecodeBytes() ([]byte, error) {
	return decodeHexBytecode(a.Bytecode)
}

// DeployedBytecodeBytes decodes the runtime bytecode.
func (a *Artifact) DeployedBytecodeBytes() ([]byte, error) {
	return decodeHexBytecode(a.DeployedBytecode)
}

// HasBytecode reports whether the artifact is deployable (interfaces and
// abstract contracts compile to empty bytecode).
func (a *Artifact) HasBytecode() bool {
	return a.Bytecode != "" && a.Bytecode != "0x"
}

func decodeHexBytecode(s string) ([]byte, error) {
	trimmed := strings.TrimPrefix(s, "0x")
	if trimmed == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("decoding bytecode: %w", err)
	}
	return b, nil
}

// VerificationInput is the standard JSON compiler input plus the exact
// compiler release, as required by explorer verification services.
type VerificationInput struct {
	StandardJSON    json.RawMessage
	SolcLongVersion string // "0.8.28+commit.7893614a"
}

// DiscoverOptions configures artifact discovery
type DiscoverOptions struct {
	// Contracts to include (empty = all)
	Contracts []string
	// Patterns to exclude (e.g., "Test*", "Mock*")
	Exclude []string
}

// Builder produces artifacts from a specific build tool
type Builder interface {
	// Metadata
	Name() string        // "foundry", "solc"
	DisplayName() string // "Foundry", "Solidity compiler"

	// Detection
	Detect(dir string) (bool, error)
	ConfigFile() string // "foundry.toml", ""

	// Artifact handling
	Discover(dir string, opts DiscoverOptions) ([]string, error)
	Parse(artifactPath string) (*Artifact, error)
	VerificationInput(dir string, contractName string) (*VerificationInput, error)
}

// Registry holds all registered builders
type Registry struct {
	builders []Builder
}

// NewRegistry creates an empty builder registry
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a builder to the registry
func (r *Registry) Register(b Builder) {
	r.builders = append(r.builders, b)
}

// Get retrieves a builder by name
func (r *Registry) Get(name string) (Builder, bool) {
	for _, b := range r.builders {
		if b.Name() == name {
			return b, true
		}
	}
	return nil, false
}

// List returns all registered builders
func (r *Registry) List() []Builder {
	return r.builders
}

// DetectBuilder detects which builder matches a project directory
func (r *Registry) DetectBuilder(dir string) (Builder, error) {
	for _, b := range r.builders {
		detected, err := b.Detect(dir)
		if err != nil {
			continue
		}
		if detected {
			return b, nil
		}
	}
	return nil, fmt.Errorf("no supported builder detected in %s", dir)
}

// FindArtifact discovers and parses the artifact for a single contract.
func FindArtifact(b Builder, dir, contractName string) (*Artifact, error) {
	paths, err := b.Discover(dir, DiscoverOptions{Contracts: []string{contractName}})
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no artifact found for contract %s in %s", contractName, dir)
	}

	return b.Parse(paths[0])
}
