// Package solc compiles Solidity sources directly through the solc
// standard JSON interface, for projects that do not use a build tool.
package solc

import (
	"bytes"
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
	"github.com/pendergraft/shipyard/internal/validation"
)

// Settings are the compiler settings applied to every source in a run.
type Settings struct {
	OptimizerEnabled bool   `json:"optimizerEnabled"`
	OptimizerRuns    int    `json:"optimizerRuns"`
	EVMVersion       string `json:"evmVersion,omitempty"`
	ViaIR            bool   `json:"viaIR,omitempty"`
}

// Compiler invokes a local solc binary. A non-nil cache short-circuits
// recompilation of unchanged sources.
type Compiler struct {
	solcPath string
	settings Settings
	cache    *Cache
	sources  []string

	// overridable in tests
	run func(ctx context.Context, input []byte) ([]byte, error)
}

// New creates a Compiler using the given solc binary
func New(solcPath string, settings Settings, cache *Cache) *Compiler {
	c := &Compiler{
		solcPath: solcPath,
		settings: settings,
		cache:    cache,
	}
	c.run = c.execSolc
	return c
}

// Name returns the builder identifier
func (c *Compiler) Name() string {
	return "solc"
}

// DisplayName returns a human-readable name
func (c *Compiler) DisplayName() string {
	return "Solidity compiler"
}

// ConfigFile returns the config file name; solc projects have none
func (c *Compiler) ConfigFile() string {
	return ""
}

// Detect reports whether a directory can be compiled directly: it has .sol
// files but no build tool config.
func (c *Compiler) Detect(dir string) (bool, error) {
	if _, err := os.Stat(filepath.Join(dir, "foundry.toml")); err == nil {
		return false, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sol") {
			return true, nil
		}
	}
	return false, nil
}

// Version returns the normalized version of the solc binary ("0.8.28").
func (c *Compiler) Version(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, c.solcPath, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("running %s --version: %w", c.solcPath, err)
	}
	version := parseSolcVersion(string(out))
	if version == "" {
		return "", fmt.Errorf("could not parse solc version from %q", strings.TrimSpace(string(out)))
	}
	if err := validation.ValidateSolcVersion(version); err != nil {
		return "", err
	}
	return version, nil
}

var solcVersionRe = regexp.MustCompile(`Version: (\d+\.\d+\.\d+)`)

func parseSolcVersion(out string) string {
	m := solcVersionRe.FindStringSubmatch(out)
	if m == nil {
		return ""
	}
	return m[1]
}

// Compile compiles the given source files and returns one artifact per
// contract. On compiler errors the returned error is a *build.CompileError.
func (c *Compiler) Compile(ctx context.Context, dir string, sources []string) ([]*build.Artifact, error) {
	input, err := c.buildInput(dir, sources)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if artifacts, ok := c.cache.Get(input); ok {
			return artifacts, nil
		}
	}

	out, err := c.run(ctx, input)
	if err != nil {
		return nil, err
	}

	artifacts, err := parseOutput(out)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Put(input, artifacts); err != nil {
			return nil, fmt.Errorf("writing artifact cache: %w", err)
		}
	}
	return artifacts, nil
}

func (c *Compiler) buildInput(dir string, sources []string) ([]byte, error) {
	srcMap := make(map[string]map[string]string, len(sources))
	for _, src := range sources {
		content, err := os.ReadFile(filepath.Join(dir, src))
		if err != nil {
			return nil, fmt.Errorf("reading source %s: %w", src, err)
		}
		srcMap[src] = map[string]string{"content": string(content)}
	}

	input := map[string]any{
		"language": "Solidity",
		"sources":  srcMap,
		"settings": map[string]any{
			"optimizer": map[string]any{
				"enabled": c.settings.OptimizerEnabled,
				"runs":    c.settings.OptimizerRuns,
			},
			"outputSelection": map[string]any{
				"*": map[string]any{
					"*": []string{"abi", "evm.bytecode.object", "evm.deployedBytecode.object", "metadata"},
				},
			},
		},
	}
	settings := input["settings"].(map[string]any)
	if c.settings.EVMVersion != "" {
		settings["evmVersion"] = c.settings.EVMVersion
	}
	if c.settings.ViaIR {
		settings["viaIR"] = true
	}
	return json.Marshal(input)
}

func (c *Compiler) execSolc(ctx context.Context, input []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.solcPath, "--standard-json")
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("running solc: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// solcOutput is the standard JSON output shape
type solcOutput struct {
	Errors    []solcDiagnostic                      `json:"errors"`
	Contracts map[string]map[string]solcContractOut `json:"contracts"`
}

type solcDiagnostic struct {
	Severity         string `json:"severity"`
	Message          string `json:"message"`
	FormattedMessage string `json:"formattedMessage"`
	SourceLocation   *struct {
		File string `json:"file"`
	} `json:"sourceLocation"`
}

type solcContractOut struct {
	ABI      json.RawMessage `json:"abi"`
	Metadata string          `json:"metadata"`
	EVM      struct {
		Bytecode         bytecodeOut `json:"bytecode"`
		DeployedBytecode bytecodeOut `json:"deployedBytecode"`
	} `json:"evm"`
}

type bytecodeOut struct {
	Object string `json:"object"`
}

// formattedMessage location looks like "  --> contracts/Token.sol:12:5:"
var solcLocationRe = regexp.MustCompile(`--> ([^:\s]+):(\d+):(\d+)`)

func parseOutput(out []byte) ([]*build.Artifact, error) {
	var parsed solcOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("parsing solc output: %w", err)
	}

	var diags []build.Diagnostic
	hasErrors := false
	for _, e := range parsed.Errors {
		d := build.Diagnostic{
			Severity: e.Severity,
			Message:  e.Message,
		}
		if e.SourceLocation != nil {
			d.File = e.SourceLocation.File
		}
		if m := solcLocationRe.FindStringSubmatch(e.FormattedMessage); m != nil {
			d.File = m[1]
			d.Line, _ = strconv.Atoi(m[2])
			d.Column, _ = strconv.Atoi(m[3])
		}
		if d.Severity == "error" {
			hasErrors = true
		}
		diags = append(diags, d)
	}
	if hasErrors {
		return nil, &build.CompileError{Diagnostics: diags}
	}

	var artifacts []*build.Artifact
	for sourcePath, contracts := range parsed.Contracts {
		for name, contract := range contracts {
			meta := parseMetadata(contract.Metadata)
			artifacts = append(artifacts, &build.Artifact{
				Name:             name,
				SourcePath:       sourcePath,
				ABI:              contract.ABI,
				Bytecode:         ensureHexPrefix(contract.EVM.Bytecode.Object),
				DeployedBytecode: ensureHexPrefix(contract.EVM.DeployedBytecode.Object),
				Compiler:         meta,
			})
		}
	}
	return artifacts, nil
}

func parseMetadata(raw string) build.CompilerMeta {
	var meta struct {
		Compiler struct {
			Version string `json:"version"`
		} `json:"compiler"`
		Settings struct {
			EVMVersion string `json:"evmVersion"`
			ViaIR      bool   `json:"viaIR"`
			Optimizer  struct {
				Enabled bool `json:"enabled"`
				Runs    int  `json:"runs"`
			} `json:"optimizer"`
		} `json:"settings"`
	}
	if raw == "" || json.Unmarshal([]byte(raw), &meta) != nil {
		return build.CompilerMeta{}
	}
	return build.CompilerMeta{
		Version:    meta.Compiler.Version,
		EVMVersion: meta.Settings.EVMVersion,
		ViaIR:      meta.Settings.ViaIR,
		Optimizer: build.OptimizerConfig{
			Enabled: meta.Settings.Optimizer.Enabled,
			Runs:    meta.Settings.Optimizer.Runs,
		},
	}
}

func ensureHexPrefix(s string) string {
	if s == "" || strings.HasPrefix(s, "0x") {
		return s
	}
	return "0x" + s
}
