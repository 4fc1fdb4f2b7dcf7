package solc

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pendergraft/shipyard/internal/build"
)

var _ build.Builder = (*Compiler)(nil)

// WithSources restricts compilation to an explicit source list instead of
// walking the project for .sol files.
func (c *Compiler) WithSources(sources []string) *Compiler {
	c.sources = sources
	return c
}

// artifactsDir is where compiled artifacts land, one JSON file per contract.
func artifactsDir(dir string) string {
	return filepath.Join(dir, ".shipyard", "artifacts")
}

// Discover compiles the project and returns one artifact path per contract.
// Compilation is cheap on repeat runs because Compile consults the input
// hash cache.
func (c *Compiler) Discover(dir string, opts build.DiscoverOptions) ([]string, error) {
	sources, err := c.resolveSources(dir)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no Solidity sources found in %s", dir)
	}

	artifacts, err := c.Compile(context.Background(), dir, sources)
	if err != nil {
		return nil, err
	}

	outDir := artifactsDir(dir)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("creating artifacts directory: %w", err)
	}

	var paths []string
	for _, artifact := range artifacts {
		if !includeContract(artifact.Name, opts) {
			continue
		}
		data, err := json.MarshalIndent(artifact, "", "  ")
		if err != nil {
			return nil, err
		}
		path := filepath.Join(outDir, artifact.Name+".json")
		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, fmt.Errorf("writing artifact %s: %w", artifact.Name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// Parse reads an artifact previously written by Discover.
func (c *Compiler) Parse(artifactPath string) (*build.Artifact, error) {
	data, err := os.ReadFile(artifactPath)
	if err != nil {
		return nil, fmt.Errorf("reading artifact: %w", err)
	}
	var artifact build.Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("parsing artifact JSON: %w", err)
	}
	return &artifact, nil
}

// VerificationInput reconstructs the standard JSON input for the explorer.
// The long compiler version comes from the artifact's embedded metadata.
func (c *Compiler) VerificationInput(dir string, contractName string) (*build.VerificationInput, error) {
	artifact, err := c.Parse(filepath.Join(artifactsDir(dir), contractName+".json"))
	if err != nil {
		return nil, fmt.Errorf("artifact for %s not found (run 'shipyard build' first): %w", contractName, err)
	}

	sources, err := c.resolveSources(dir)
	if err != nil {
		return nil, err
	}
	input, err := c.buildInput(dir, sources)
	if err != nil {
		return nil, err
	}

	return &build.VerificationInput{
		StandardJSON:    input,
		SolcLongVersion: artifact.Compiler.Version,
	}, nil
}

// resolveSources returns the configured source list, or walks the project
// for .sol files when none is configured.
func (c *Compiler) resolveSources(dir string) ([]string, error) {
	if len(c.sources) > 0 {
		return c.sources, nil
	}

	var sources []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			name := info.Name()
			if name == "node_modules" || name == "lib" || strings.HasPrefix(name, ".") && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(info.Name(), ".sol") {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		sources = append(sources, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sources, nil
}

func includeContract(name string, opts build.DiscoverOptions) bool {
	if len(opts.Contracts) > 0 {
		found := false
		for _, c := range opts.Contracts {
			if c == name {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, pattern := range opts.Exclude {
		if strings.HasPrefix(name, pattern) || strings.HasSuffix(name, pattern) {
			return false
		}
		if matched, _ := filepath.Match(pattern, name); matched {
			return false
		}
	}
	return true
}
