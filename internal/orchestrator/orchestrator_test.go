package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/shipyard/internal/broadcast"
	"github.com/pendergraft/shipyard/internal/build"
	"github.com/pendergraft/shipyard/internal/build/foundry"
	"github.com/pendergraft/shipyard/internal/config"
	"github.com/pendergraft/shipyard/internal/deployments/domain"
	"github.com/pendergraft/shipyard/internal/explorer"
	"github.com/pendergraft/shipyard/internal/networks"
	"github.com/pendergraft/shipyard/internal/storage"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

// mockRPC is a minimal Ethereum node double safe for concurrent use.
type mockRPC struct {
	mu           sync.Mutex
	nonce        uint64
	receiptState uint64 // types.ReceiptStatusSuccessful unless overridden
	failReceipt  bool
	code         []byte

	sentTxs []*types.Transaction
}

func newMockRPC() *mockRPC {
	return &mockRPC{receiptState: types.ReceiptStatusSuccessful, code: common.FromHex("0x6080c0de")}
}

func (m *mockRPC) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nonce, nil
}

func (m *mockRPC) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return 100000, nil
}

func (m *mockRPC) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(2_000_000_000), nil
}

func (m *mockRPC) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{BaseFee: big.NewInt(10_000_000_000)}, nil
}

func (m *mockRPC) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sentTxs = append(m.sentTxs, tx)
	return nil
}

func (m *mockRPC) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := m.receiptState
	if m.failReceipt {
		status = types.ReceiptStatusFailed
	}
	return &types.Receipt{
		Status:            status,
		BlockNumber:       big.NewInt(100),
		GasUsed:           90000,
		EffectiveGasPrice: big.NewInt(11_000_000_000),
		ContractAddress:   common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
	}, nil
}

func (m *mockRPC) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return nil, nil
}

func (m *mockRPC) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return m.code, nil
}

// mockRecorder captures deployment records in memory.
type mockRecorder struct {
	mu      sync.Mutex
	records []domain.RecordRequest
	marks   []markCall
}

type markCall struct {
	id       string
	verified bool
	guid     string
	detail   string
}

func (m *mockRecorder) Record(ctx context.Context, req domain.RecordRequest) (*domain.Deployment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, req)
	return &domain.Deployment{ID: "dep-" + req.Contract, Contract: req.Contract, Status: req.Status}, nil
}

func (m *mockRecorder) MarkVerified(ctx context.Context, id string, verified bool, guid, detail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marks = append(m.marks, markCall{id: id, verified: verified, guid: guid, detail: detail})
	return nil
}

type mockVerifier struct {
	job *explorer.Job
	err error

	gotReq explorer.SubmitRequest
}

func (m *mockVerifier) Verify(ctx context.Context, req explorer.SubmitRequest) (*explorer.Job, error) {
	m.gotReq = req
	return m.job, m.err
}

// writeFoundryProject creates a minimal built Foundry project on disk.
func writeFoundryProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "foundry.toml"), []byte("[profile.default]\n"), 0644))

	rawMetadata := `{"compiler":{"version":"0.8.28+commit.7893614a"},"settings":{"compilationTarget":{"src/Token.sol":"Token"},"optimizer":{"enabled":true,"runs":200}},"sources":{"src/Token.sol":{"license":"MIT"}}}`
	artifact := map[string]any{
		"abi":              []map[string]any{},
		"bytecode":         map[string]any{"object": "0x60806040"},
		"deployedBytecode": map[string]any{"object": "0x6080c0de"},
		"rawMetadata":      rawMetadata,
	}
	writeArtifactFile(t, dir, "Token.sol", "Token", artifact)

	// An interface artifact with no creation bytecode.
	writeArtifactFile(t, dir, "IToken.sol", "IToken", map[string]any{
		"abi":      []map[string]any{{"type": "function", "name": "balanceOf"}},
		"bytecode": map[string]any{"object": "0x"},
	})

	buildInfo := map[string]any{
		"id":              "abc123",
		"solcVersion":     "0.8.28",
		"solcLongVersion": "0.8.28+commit.7893614a",
		"input": map[string]any{
			"language": "Solidity",
			"sources":  map[string]any{"src/Token.sol": map[string]any{"content": "contract Token {}"}},
			"settings": map[string]any{"optimizer": map[string]any{"enabled": true, "runs": 200}},
		},
		"output": map[string]any{
			"contracts": map[string]any{"src/Token.sol": map[string]any{"Token": map[string]any{}}},
		},
	}
	infoDir := filepath.Join(dir, "out", "build-info")
	require.NoError(t, os.MkdirAll(infoDir, 0755))
	data, err := json.Marshal(buildInfo)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(infoDir, "abc123.json"), data, 0644))

	return dir
}

func writeArtifactFile(t *testing.T, dir, source, contract string, artifact map[string]any) {
	t.Helper()
	solDir := filepath.Join(dir, "out", source)
	require.NoError(t, os.MkdirAll(solDir, 0755))
	data, err := json.Marshal(artifact)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(solDir, contract+".json"), data, 0644))
}

type testHarness struct {
	orch     *Orchestrator
	rpc      *mockRPC
	recorder *mockRecorder
	verifier *mockVerifier
	dir      string
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	t.Setenv("SY_TEST_DEPLOY_KEY", testKeyHex)

	cfg := &config.Config{
		Networks: map[string]config.Network{
			"local": {
				RPCURL:         "http://127.0.0.1:8545",
				ChainID:        31337,
				KeyEnv:         "SY_TEST_DEPLOY_KEY",
				ExplorerURL:    "https://api.example.io/api",
				ExplorerKeyEnv: "SY_TEST_EXPLORER_KEY",
			},
		},
	}
	t.Setenv("SY_TEST_EXPLORER_KEY", "test-key")

	registry := build.NewRegistry()
	registry.Register(foundry.New())

	h := &testHarness{
		rpc:      newMockRPC(),
		recorder: &mockRecorder{},
		verifier: &mockVerifier{job: &explorer.Job{State: explorer.JobVerified, GUID: "guid-1"}},
		dir:      writeFoundryProject(t),
	}

	orch := New(cfg, registry, networks.NewResolver(cfg.Networks), h.recorder, slog.New(slog.DiscardHandler))
	orch.dial = func(ctx context.Context, rpcURL string) (broadcast.Client, error) {
		return h.rpc, nil
	}
	orch.newVerifier = func(net *networks.Network) verifier {
		return h.verifier
	}
	h.orch = orch
	return h
}

func TestOrchestrator_RunSuccess(t *testing.T) {
	h := newTestHarness(t)

	outcome, err := h.orch.Run(context.Background(), DeployRequest{
		Dir:      h.dir,
		Network:  "local",
		Contract: "Token",
	})
	require.NoError(t, err)
	require.NotNil(t, outcome.Result)
	assert.True(t, outcome.Result.Success)
	assert.Equal(t, "Token", outcome.Artifact.Name)

	require.Len(t, h.recorder.records, 1)
	rec := h.recorder.records[0]
	assert.Equal(t, "Token", rec.Contract)
	assert.Equal(t, "local", rec.Network)
	assert.Equal(t, int64(31337), rec.ChainID)
	assert.Equal(t, storage.StatusSuccess, rec.Status)
	assert.NotEmpty(t, rec.Address)
	assert.NotEmpty(t, rec.TxHash)
	assert.Equal(t, "0.8.28+commit.7893614a", rec.CompilerVersion)

	// No --verify flag, so the explorer was never touched.
	assert.Nil(t, outcome.Job)
	assert.Empty(t, h.recorder.marks)
}

func TestOrchestrator_RunUnknownNetwork(t *testing.T) {
	h := newTestHarness(t)

	_, err := h.orch.Run(context.Background(), DeployRequest{
		Dir:      h.dir,
		Network:  "mainnet",
		Contract: "Token",
	})
	require.Error(t, err)

	var cfgErr *networks.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
	assert.Empty(t, h.recorder.records)
}

func TestOrchestrator_RunUnknownContract(t *testing.T) {
	h := newTestHarness(t)

	_, err := h.orch.Run(context.Background(), DeployRequest{
		Dir:      h.dir,
		Network:  "local",
		Contract: "Missing",
	})
	require.Error(t, err)
	assert.Empty(t, h.rpc.sentTxs)
}

func TestOrchestrator_RunInterfaceNotDeployable(t *testing.T) {
	h := newTestHarness(t)

	_, err := h.orch.Run(context.Background(), DeployRequest{
		Dir:      h.dir,
		Network:  "local",
		Contract: "IToken",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotDeployable)
	assert.Empty(t, h.rpc.sentTxs)
}

func TestOrchestrator_RunRevertedIsRecorded(t *testing.T) {
	h := newTestHarness(t)
	h.rpc.failReceipt = true

	outcome, err := h.orch.Run(context.Background(), DeployRequest{
		Dir:      h.dir,
		Network:  "local",
		Contract: "Token",
	})
	require.Error(t, err)

	var bErr *broadcast.BroadcastError
	require.ErrorAs(t, err, &bErr)
	assert.Equal(t, broadcast.KindReverted, bErr.Kind)

	require.NotNil(t, outcome)
	require.Len(t, h.recorder.records, 1)
	assert.Equal(t, storage.StatusReverted, h.recorder.records[0].Status)
}

func TestOrchestrator_RunWithVerify(t *testing.T) {
	h := newTestHarness(t)

	outcome, err := h.orch.Run(context.Background(), DeployRequest{
		Dir:      h.dir,
		Network:  "local",
		Contract: "Token",
		Verify:   true,
	})
	require.NoError(t, err)
	require.NotNil(t, outcome.Job)
	assert.Equal(t, explorer.JobVerified, outcome.Job.State)

	// The submit request carries the fully qualified name and the long
	// compiler version from build-info.
	assert.Equal(t, "src/Token.sol:Token", h.verifier.gotReq.ContractName)
	assert.Equal(t, "0.8.28+commit.7893614a", h.verifier.gotReq.CompilerVersion)
	assert.NotEmpty(t, h.verifier.gotReq.StandardJSON)
	assert.True(t, h.verifier.gotReq.OptimizationUsed)
	assert.Equal(t, 200, h.verifier.gotReq.Runs)

	require.Len(t, h.recorder.marks, 1)
	assert.True(t, h.recorder.marks[0].verified)
	assert.Equal(t, "guid-1", h.recorder.marks[0].guid)
}

func TestOrchestrator_VerifySkippedOnBytecodeMismatch(t *testing.T) {
	h := newTestHarness(t)
	h.rpc.code = common.FromHex("0xdeadbeef")

	outcome, err := h.orch.Run(context.Background(), DeployRequest{
		Dir:      h.dir,
		Network:  "local",
		Contract: "Token",
		Verify:   true,
	})
	require.NoError(t, err)

	require.NotNil(t, outcome.Job)
	assert.Equal(t, explorer.JobFailed, outcome.Job.State)
	assert.Contains(t, outcome.Job.Detail, "does not match")

	// The explorer was never contacted.
	assert.Empty(t, h.verifier.gotReq.ContractName)
}

func TestOrchestrator_VerifyExisting(t *testing.T) {
	h := newTestHarness(t)

	job, err := h.orch.Verify(context.Background(), VerifyRequest{
		Dir:      h.dir,
		Network:  "local",
		Contract: "Token",
		Address:  "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		RecordID: "dep-Token",
	})
	require.NoError(t, err)
	assert.Equal(t, explorer.JobVerified, job.State)

	require.Len(t, h.recorder.marks, 1)
	assert.Equal(t, "dep-Token", h.recorder.marks[0].id)
	assert.True(t, h.recorder.marks[0].verified)

	// Nothing was broadcast.
	assert.Empty(t, h.rpc.sentTxs)
}

func TestOrchestrator_VerifyExistingBadAddress(t *testing.T) {
	h := newTestHarness(t)

	_, err := h.orch.Verify(context.Background(), VerifyRequest{
		Dir:      h.dir,
		Network:  "local",
		Contract: "Token",
		Address:  "not-an-address",
	})
	assert.ErrorContains(t, err, "invalid contract address")
}

func TestOrchestrator_VerifyFailureDoesNotFailRun(t *testing.T) {
	h := newTestHarness(t)
	h.verifier.job = &explorer.Job{State: explorer.JobFailed, GUID: "guid-2", Detail: "Fail - Unable to verify"}
	h.verifier.err = errors.New("verification rejected")

	outcome, err := h.orch.Run(context.Background(), DeployRequest{
		Dir:      h.dir,
		Network:  "local",
		Contract: "Token",
		Verify:   true,
	})
	require.NoError(t, err)
	require.NotNil(t, outcome.Job)
	assert.Equal(t, explorer.JobFailed, outcome.Job.State)

	require.Len(t, h.recorder.marks, 1)
	assert.False(t, h.recorder.marks[0].verified)
}
