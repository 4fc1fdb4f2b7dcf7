// Package foundry provides the Foundry builder for EVM contracts.
package foundry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/pendergraft/shipyard/internal/build"
)

// Builder implements build.Builder for Foundry projects
type Builder struct {
	forgePath string
}

// New creates a new Foundry builder
func New() *Builder {
	return &Builder{forgePath: "forge"}
}

// NewWithForge creates a Foundry builder using a specific forge binary
func NewWithForge(path string) *Builder {
	return &Builder{forgePath: path}
}

// Name returns the builder identifier
func (b *Builder) Name() string {
	return "foundry"
}

// DisplayName returns a human-readable name
func (b *Builder) DisplayName() string {
	return "Foundry"
}

// ConfigFile returns the config file name
func (b *Builder) ConfigFile() string {
	return "foundry.toml"
}

// Detect checks if a directory is a Foundry project
func (b *Builder) Detect(dir string) (bool, error) {
	configPath := filepath.Join(dir, b.ConfigFile())
	_, err := os.Stat(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// forge error output looks like:
//
//	Error (2314): Expected ';' but got identifier
//	  --> src/Token.sol:12:5:
var forgeDiagnosticRe = regexp.MustCompile(`(?m)^(Error|Warning)(?: \(\d+\))?: (.+)\n\s+--> ([^:]+):(\d+):(\d+)`)

// Build runs the Foundry compiler in the project directory. On compiler
// failure the returned error is a *build.CompileError carrying parsed
// diagnostics with file and line positions.
func (b *Builder) Build(ctx context.Context, dir string) error {
	cmd := exec.CommandContext(ctx, b.forgePath, "build", "--build-info")
	cmd.Dir = dir

	out, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	diags := parseForgeDiagnostics(string(out))
	if len(diags) == 0 {
		return fmt.Errorf("forge build failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return &build.CompileError{Diagnostics: diags}
}

func parseForgeDiagnostics(out string) []build.Diagnostic {
	var diags []build.Diagnostic
	for _, m := range forgeDiagnosticRe.FindAllStringSubmatch(out, -1) {
		line, _ := strconv.Atoi(m[4])
		col, _ := strconv.Atoi(m[5])
		diags = append(diags, build.Diagnostic{
			File:     m[3],
			Line:     line,
			Column:   col,
			Severity: strings.ToLower(m[1]),
			Message:  m[2],
		})
	}
	return diags
}

// Discover finds contract artifacts under out/
func (b *Builder) Discover(dir string, opts build.DiscoverOptions) ([]string, error) {
	outDir := filepath.Join(dir, "out")

	if _, err := os.Stat(outDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("out directory not found - run 'forge build' first")
	}

	var artifacts []string
	seen := make(map[string]bool)

	err := filepath.Walk(outDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() || !strings.HasSuffix(info.Name(), ".json") {
			return nil
		}

		// Skip build-info files
		if strings.Contains(path, "build-info") {
			return nil
		}

		// Contract artifacts live at out/{Source}.sol/{Contract}.json
		parentDir := filepath.Dir(path)
		if !strings.HasSuffix(parentDir, ".sol") {
			return nil
		}

		contractName := strings.TrimSuffix(info.Name(), ".json")
		if seen[contractName] {
			return nil
		}

		if len(opts.Contracts) > 0 {
			included := false
			for _, c := range opts.Contracts {
				if c == contractName {
					included = true
					break
				}
			}
			if !included {
				return nil
			}
		}

		for _, pattern := range opts.Exclude {
			if strings.HasSuffix(contractName, pattern) || strings.HasPrefix(contractName, pattern) {
				return nil
			}
			if matched, _ := filepath.Match(pattern, contractName); matched {
				return nil
			}
		}

		seen[contractName] = true
		artifacts = append(artifacts, path)
		return nil
	})

	return artifacts, err
}

// Parse parses a Foundry artifact file
func (b *Builder) Parse(artifactPath string) (*build.Artifact, error) {
	data, err := os.ReadFile(artifactPath)
	if err != nil {
		return nil, fmt.Errorf("reading artifact: %w", err)
	}

	var raw foundryArtifact
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing artifact JSON: %w", err)
	}

	// Metadata is best-effort; an artifact without it still deploys
	var metadata foundryMetadata
	if raw.RawMetadata != "" {
		_ = json.Unmarshal([]byte(raw.RawMetadata), &metadata)
	}

	contractName := strings.TrimSuffix(filepath.Base(artifactPath), ".json")

	return &build.Artifact{
		Name:             contractName,
		SourcePath:       firstKey(metadata.Settings.CompilationTarget),
		License:          metadata.Sources.firstLicense(),
		ABI:              raw.ABI,
		Bytecode:         raw.Bytecode.Object,
		DeployedBytecode: raw.DeployedBytecode.Object,
		Compiler: build.CompilerMeta{
			Version:    metadata.Compiler.Version,
			EVMVersion: metadata.Settings.EVMVersion,
			ViaIR:      metadata.Settings.ViaIR,
			Optimizer: build.OptimizerConfig{
				Enabled: metadata.Settings.Optimizer.Enabled,
				Runs:    metadata.Settings.Optimizer.Runs,
			},
		},
	}, nil
}

// VerificationInput extracts the standard JSON input and full solc version
// from the build-info file that produced the named contract.
func (b *Builder) VerificationInput(dir string, contractName string) (*build.VerificationInput, error) {
	buildInfoDir := filepath.Join(dir, "out", "build-info")

	entries, err := os.ReadDir(buildInfoDir)
	if err != nil {
		return nil, fmt.Errorf("reading build-info directory (run 'forge build --build-info'): %w", err)
	}

	var firstMatch *build.VerificationInput

	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(buildInfoDir, entry.Name()))
		if err != nil {
			continue
		}

		var info buildInfo
		if err := json.Unmarshal(data, &info); err != nil {
			continue
		}

		stdJSON, err := stripFoundryInputKeys(info.Input)
		if err != nil {
			continue
		}

		vi := &build.VerificationInput{
			StandardJSON:    stdJSON,
			SolcLongVersion: info.SolcLongVersion,
		}

		// Prefer the build-info whose output actually contains the contract
		if buildInfoContains(info.Output, contractName) {
			return vi, nil
		}
		if firstMatch == nil {
			firstMatch = vi
		}
	}

	if firstMatch != nil {
		return firstMatch, nil
	}
	return nil, fmt.Errorf("build-info not found for contract %s", contractName)
}

func buildInfoContains(output json.RawMessage, contractName string) bool {
	var parsed struct {
		Contracts map[string]map[string]json.RawMessage `json:"contracts"`
	}
	if err := json.Unmarshal(output, &parsed); err != nil {
		return false
	}
	for _, contracts := range parsed.Contracts {
		if _, ok := contracts[contractName]; ok {
			return true
		}
	}
	return false
}

// foundryInputKeysToStrip are top-level keys Foundry adds that the Solidity
// compiler rejects. The standard JSON input spec only allows language,
// sources and settings.
var foundryInputKeysToStrip = []string{"allowPaths", "basePath", "includePaths", "version"}

func stripFoundryInputKeys(input json.RawMessage) ([]byte, error) {
	var m map[string]any
	if err := json.Unmarshal(input, &m); err != nil {
		return nil, err
	}
	for _, key := range foundryInputKeysToStrip {
		delete(m, key)
	}
	return json.Marshal(m)
}

// foundryArtifact is the on-disk shape of out/{Source}.sol/{Contract}.json
type foundryArtifact struct {
	ABI              json.RawMessage `json:"abi"`
	Bytecode         bytecodeObject  `json:"bytecode"`
	DeployedBytecode bytecodeObject  `json:"deployedBytecode"`
	RawMetadata      string          `json:"rawMetadata"`
}

type bytecodeObject struct {
	Object string `json:"object"`
}

// foundryMetadata is the parsed rawMetadata field
type foundryMetadata struct {
	Compiler struct {
		Version string `json:"version"`
	} `json:"compiler"`
	Language string       `json:"language"`
	Settings settingsMeta `json:"settings"`
	Sources  sourcesMeta  `json:"sources"`
}

type settingsMeta struct {
	CompilationTarget map[string]string `json:"compilationTarget"`
	EVMVersion        string            `json:"evmVersion"`
	Optimizer         struct {
		Enabled bool `json:"enabled"`
		Runs    int  `json:"runs"`
	} `json:"optimizer"`
	Remappings []string `json:"remappings"`
	ViaIR      bool     `json:"viaIR"`
}

type sourcesMeta map[string]struct {
	Keccak256 string `json:"keccak256"`
	License   string `json:"license"`
}

func (s sourcesMeta) firstLicense() string {
	for _, src := range s {
		if src.License != "" {
			return src.License
		}
	}
	return ""
}

// buildInfo is a Foundry build-info file (hh-sol-build-info-1 format)
type buildInfo struct {
	ID              string          `json:"id"`
	SolcVersion     string          `json:"solcVersion"`
	SolcLongVersion string          `json:"solcLongVersion"`
	Input           json.RawMessage `json:"input"`
	Output          json.RawMessage `json:"output"`
}

func firstKey(m map[string]string) string {
	for k := range m {
		return k
	}
	return ""
}
