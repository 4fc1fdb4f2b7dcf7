package solc

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/shipyard/internal/build"
)

const tokenMetadata = `{"compiler":{"version":"0.8.28"},"settings":{"evmVersion":"cancun","optimizer":{"enabled":true,"runs":200}}}`

func successOutput(t *testing.T) []byte {
	t.Helper()
	out := map[string]any{
		"contracts": map[string]any{
			"Token.sol": map[string]any{
				"Token": map[string]any{
					"abi":      []map[string]any{{"type": "constructor"}},
					"metadata": tokenMetadata,
					"evm": map[string]any{
						"bytecode":         map[string]any{"object": "6080604052"},
						"deployedBytecode": map[string]any{"object": "6001"},
					},
				},
			},
		},
	}
	data, err := json.Marshal(out)
	require.NoError(t, err)
	return data
}

func errorOutput(t *testing.T) []byte {
	t.Helper()
	out := map[string]any{
		"errors": []map[string]any{
			{
				"severity":         "error",
				"message":          "Expected ';' but got identifier",
				"formattedMessage": "ParserError: Expected ';' but got identifier\n  --> Token.sol:12:5:\n",
				"sourceLocation":   map[string]any{"file": "Token.sol"},
			},
			{
				"severity":         "warning",
				"message":          "Unused local variable.",
				"formattedMessage": "Warning: Unused local variable.\n  --> Token.sol:30:9:\n",
			},
		},
	}
	data, err := json.Marshal(out)
	require.NoError(t, err)
	return data
}

func newTestCompiler(t *testing.T, output []byte, cache *Cache) (*Compiler, *int) {
	t.Helper()
	calls := 0
	c := New("solc", Settings{OptimizerEnabled: true, OptimizerRuns: 200}, cache)
	c.run = func(ctx context.Context, input []byte) ([]byte, error) {
		calls++
		return output, nil
	}
	return c, &calls
}

func writeSource(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestCompiler_Compile(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "Token.sol", "contract Token {}")

	c, _ := newTestCompiler(t, successOutput(t), nil)

	artifacts, err := c.Compile(context.Background(), dir, []string{"Token.sol"})
	require.NoError(t, err)
	require.Len(t, artifacts, 1)

	a := artifacts[0]
	assert.Equal(t, "Token", a.Name)
	assert.Equal(t, "Token.sol", a.SourcePath)
	assert.Equal(t, "0x6080604052", a.Bytecode)
	assert.Equal(t, "0x6001", a.DeployedBytecode)
	assert.Equal(t, "0.8.28", a.Compiler.Version)
	assert.Equal(t, "cancun", a.Compiler.EVMVersion)
	assert.True(t, a.Compiler.Optimizer.Enabled)
}

func TestCompiler_CompileError(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "Token.sol", "contract Token { uint256 supply }")

	c, _ := newTestCompiler(t, errorOutput(t), nil)

	_, err := c.Compile(context.Background(), dir, []string{"Token.sol"})
	require.Error(t, err)

	var cerr *build.CompileError
	require.True(t, errors.As(err, &cerr))
	require.Len(t, cerr.Diagnostics, 2)

	assert.Equal(t, "error", cerr.Diagnostics[0].Severity)
	assert.Equal(t, "Token.sol", cerr.Diagnostics[0].File)
	assert.Equal(t, 12, cerr.Diagnostics[0].Line)
	assert.Equal(t, 5, cerr.Diagnostics[0].Column)

	assert.Equal(t, "warning", cerr.Diagnostics[1].Severity)
	assert.Equal(t, 30, cerr.Diagnostics[1].Line)

	assert.Contains(t, cerr.Error(), "Token.sol:12:5")
}

func TestCompiler_WarningsDoNotFail(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "Token.sol", "contract Token {}")

	out := map[string]any{
		"errors": []map[string]any{
			{"severity": "warning", "message": "Unused local variable."},
		},
		"contracts": map[string]any{
			"Token.sol": map[string]any{
				"Token": map[string]any{
					"abi": []map[string]any{},
					"evm": map[string]any{"bytecode": map[string]any{"object": "6080"}},
				},
			},
		},
	}
	data, err := json.Marshal(out)
	require.NoError(t, err)

	c, _ := newTestCompiler(t, data, nil)

	artifacts, err := c.Compile(context.Background(), dir, []string{"Token.sol"})
	require.NoError(t, err)
	assert.Len(t, artifacts, 1)
}

func TestCompiler_MissingSource(t *testing.T) {
	dir := t.TempDir()
	c, _ := newTestCompiler(t, successOutput(t), nil)

	_, err := c.Compile(context.Background(), dir, []string{"Nope.sol"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Nope.sol")
}

func TestCompiler_Cache(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "Token.sol", "contract Token {}")

	cache, err := NewCache(filepath.Join(dir, ".cache"))
	require.NoError(t, err)

	c, calls := newTestCompiler(t, successOutput(t), cache)

	first, err := c.Compile(context.Background(), dir, []string{"Token.sol"})
	require.NoError(t, err)
	assert.Equal(t, 1, *calls)

	second, err := c.Compile(context.Background(), dir, []string{"Token.sol"})
	require.NoError(t, err)
	assert.Equal(t, 1, *calls, "second compile should hit the cache")
	assert.Equal(t, first[0].Bytecode, second[0].Bytecode)

	// Changing the source invalidates the cache
	writeSource(t, dir, "Token.sol", "contract Token { uint256 x; }")
	_, err = c.Compile(context.Background(), dir, []string{"Token.sol"})
	require.NoError(t, err)
	assert.Equal(t, 2, *calls)
}

func TestCache_Clear(t *testing.T) {
	dir := t.TempDir()
	cache, err := NewCache(dir)
	require.NoError(t, err)

	input := []byte(`{"language":"Solidity"}`)
	require.NoError(t, cache.Put(input, []*build.Artifact{{Name: "Token"}}))

	_, ok := cache.Get(input)
	require.True(t, ok)

	require.NoError(t, cache.Clear())

	_, ok = cache.Get(input)
	assert.False(t, ok)
}

func TestParseSolcVersion(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want string
	}{
		{
			name: "standard output",
			out:  "solc, the solidity compiler commandline interface\nVersion: 0.8.28+commit.7893614a.Linux.g++\n",
			want: "0.8.28",
		},
		{
			name: "garbage",
			out:  "not a compiler",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseSolcVersion(tt.out))
		})
	}
}
