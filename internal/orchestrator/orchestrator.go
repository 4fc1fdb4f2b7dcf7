// Package orchestrator wires the deployment pipeline: artifact lookup,
// network resolution, broadcast, record keeping and optional explorer
// verification.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/pendergraft/shipyard/internal/broadcast"
	"github.com/pendergraft/shipyard/internal/build"
	"github.com/pendergraft/shipyard/internal/config"
	"github.com/pendergraft/shipyard/internal/deployments/domain"
	"github.com/pendergraft/shipyard/internal/explorer"
	"github.com/pendergraft/shipyard/internal/networks"
	"github.com/pendergraft/shipyard/internal/observability/metrics"
	"github.com/pendergraft/shipyard/internal/storage"
)

// ErrNotDeployable is returned when the requested artifact has no creation
// bytecode, typically an interface or abstract contract.
var ErrNotDeployable = errors.New("artifact has no creation bytecode")

// Recorder persists deployment outcomes. Implemented by the deployments
// domain service.
type Recorder interface {
	Record(ctx context.Context, req domain.RecordRequest) (*domain.Deployment, error)
	MarkVerified(ctx context.Context, id string, verified bool, guid, detail string) error
}

// DeployRequest describes one contract deployment.
type DeployRequest struct {
	Dir      string
	Network  string
	Contract string
	Args     []string
	Value    *big.Int
	Verify   bool
}

// DeployOutcome collects everything the pipeline produced for one contract.
type DeployOutcome struct {
	Artifact *build.Artifact
	Result   *broadcast.Result
	Record   *domain.Deployment
	Job      *explorer.Job
}

// Orchestrator runs the build, broadcast, record and verify pipeline.
type Orchestrator struct {
	cfg      *config.Config
	registry *build.Registry
	resolver *networks.Resolver
	recorder Recorder
	logger   *slog.Logger

	// Overridable in tests.
	dial        func(ctx context.Context, rpcURL string) (broadcast.Client, error)
	newVerifier func(net *networks.Network) verifier
}

type verifier interface {
	Verify(ctx context.Context, req explorer.SubmitRequest) (*explorer.Job, error)
}

// New creates an orchestrator.
func New(cfg *config.Config, registry *build.Registry, resolver *networks.Resolver, recorder Recorder, logger *slog.Logger) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		registry: registry,
		resolver: resolver,
		recorder: recorder,
		logger:   logger,
	}

	o.dial = func(ctx context.Context, rpcURL string) (broadcast.Client, error) {
		client, err := ethclient.DialContext(ctx, rpcURL)
		if err != nil {
			return nil, fmt.Errorf("connecting to %s: %w", rpcURL, err)
		}
		return client, nil
	}

	o.newVerifier = func(net *networks.Network) verifier {
		client := explorer.NewClient(net.ExplorerURL, net.ExplorerAPIKey, net.ChainID)
		opts := explorer.DefaultVerifyOptions()
		if cfg.Verify.PollIntervalSeconds > 0 {
			opts.PollInterval = time.Duration(cfg.Verify.PollIntervalSeconds) * time.Second
		}
		if cfg.Verify.MaxAttempts > 0 {
			opts.MaxAttempts = cfg.Verify.MaxAttempts
		}
		return explorer.NewVerifier(client, opts, logger)
	}

	return o
}

// Run executes the full pipeline for a single contract. The deployment
// record is written for every transaction that reached the chain, including
// reverted and timed out ones. Verification failures do not fail the run;
// the outcome carries the job state.
func (o *Orchestrator) Run(ctx context.Context, req DeployRequest) (*DeployOutcome, error) {
	net, err := o.resolver.Resolve(req.Network)
	if err != nil {
		return nil, err
	}

	builder, artifact, err := o.lookupArtifact(req.Dir, req.Contract)
	if err != nil {
		return nil, err
	}

	client, err := o.dial(ctx, net.RPCURL)
	if err != nil {
		return nil, err
	}
	b := o.newBroadcaster(client, net)

	outcome, err := o.deployOne(ctx, b, builder, net, req, artifact)
	if err != nil {
		return outcome, err
	}
	return outcome, nil
}

func (o *Orchestrator) lookupArtifact(dir, contract string) (build.Builder, *build.Artifact, error) {
	var builder build.Builder
	var err error
	if o.cfg.Build.Builder != "" {
		var ok bool
		builder, ok = o.registry.Get(o.cfg.Build.Builder)
		if !ok {
			return nil, nil, fmt.Errorf("unknown builder %q", o.cfg.Build.Builder)
		}
	} else {
		builder, err = o.registry.DetectBuilder(dir)
		if err != nil {
			return nil, nil, err
		}
	}

	artifact, err := build.FindArtifact(builder, dir, contract)
	if err != nil {
		return nil, nil, err
	}
	if !artifact.HasBytecode() {
		return nil, nil, fmt.Errorf("%s: %w", contract, ErrNotDeployable)
	}
	return builder, artifact, nil
}

func (o *Orchestrator) newBroadcaster(client broadcast.Client, net *networks.Network) *broadcast.Broadcaster {
	opts := broadcast.DefaultOptions()
	if o.cfg.Broadcast.ReceiptTimeoutSeconds > 0 {
		opts.ReceiptTimeout = time.Duration(o.cfg.Broadcast.ReceiptTimeoutSeconds) * time.Second
	}
	if o.cfg.Broadcast.GasLimitMultiplier > 0 {
		opts.GasLimitMultiplier = o.cfg.Broadcast.GasLimitMultiplier
	}
	return broadcast.New(client, net, broadcast.NewNonceManager(client), opts, o.logger)
}

// deployOne broadcasts one deployment and records its outcome.
func (o *Orchestrator) deployOne(ctx context.Context, b *broadcast.Broadcaster, builder build.Builder, net *networks.Network, req DeployRequest, artifact *build.Artifact) (*DeployOutcome, error) {
	outcome := &DeployOutcome{Artifact: artifact}

	result, deployErr := b.Deploy(ctx, artifact, req.Args, req.Value)
	outcome.Result = result

	status := classifyOutcome(deployErr)
	metrics.Deploy(net.Name, status)

	// Encoding and simulation failures never reach the chain; there is
	// nothing to record.
	if result == nil {
		return outcome, deployErr
	}
	metrics.DeployGas(net.Name, result.GasUsed)

	argsHex, _ := encodeArgsHex(artifact, req.Args)

	record, recErr := o.recorder.Record(ctx, domain.RecordRequest{
		Contract:        artifact.Name,
		Network:         net.Name,
		ChainID:         net.ChainID,
		Address:         addressString(result.ContractAddress),
		DeployerAddress: net.Address.Hex(),
		TxHash:          result.TxHash.Hex(),
		BlockNumber:     int64(result.BlockNumber),
		GasUsed:         int64(result.GasUsed),
		Status:          status,
		CompilerVersion: artifact.Compiler.Version,
		ConstructorArgs: argsHex,
	})
	if recErr != nil {
		o.logger.Error("recording deployment failed", "contract", artifact.Name, "tx", result.TxHash.Hex(), "error", recErr)
	}
	outcome.Record = record

	if deployErr != nil {
		return outcome, deployErr
	}

	o.logger.Info("deployed",
		"contract", artifact.Name,
		"network", net.Name,
		"address", result.ContractAddress.Hex(),
		"tx", result.TxHash.Hex(),
		"gas_used", result.GasUsed,
	)

	if req.Verify {
		outcome.Job = o.verifyDeployment(ctx, b, builder, net, req, artifact, result, record)
	}

	return outcome, nil
}

// verifyDeployment runs explorer verification after a successful deployment.
// Failures are logged and reflected in the returned job; they never fail the
// deployment itself.
func (o *Orchestrator) verifyDeployment(ctx context.Context, b *broadcast.Broadcaster, builder build.Builder, net *networks.Network, req DeployRequest, artifact *build.Artifact, result *broadcast.Result, record *domain.Deployment) *explorer.Job {
	job, _ := o.submitVerification(ctx, b, builder, net, req.Dir, artifact, result.ContractAddress, req.Args)

	if record != nil {
		isVerified := job.State == explorer.JobVerified
		if markErr := o.recorder.MarkVerified(ctx, record.ID, isVerified, job.GUID, job.Detail); markErr != nil {
			o.logger.Error("updating verification state failed", "id", record.ID, "error", markErr)
		}
	}
	return job
}

// VerifyRequest describes standalone verification of an already deployed
// contract.
type VerifyRequest struct {
	Dir      string
	Network  string
	Contract string
	Address  string
	Args     []string
	RecordID string // optional deployment record to update
}

// Verify runs explorer verification for a contract that is already on chain.
func (o *Orchestrator) Verify(ctx context.Context, req VerifyRequest) (*explorer.Job, error) {
	net, err := o.resolver.Resolve(req.Network)
	if err != nil {
		return nil, err
	}
	builder, artifact, err := o.findCallArtifact(req.Dir, req.Contract)
	if err != nil {
		return nil, err
	}
	if !common.IsHexAddress(req.Address) {
		return nil, fmt.Errorf("invalid contract address %q", req.Address)
	}

	client, err := o.dial(ctx, net.RPCURL)
	if err != nil {
		return nil, err
	}
	b := o.newBroadcaster(client, net)

	job, err := o.submitVerification(ctx, b, builder, net, req.Dir, artifact, common.HexToAddress(req.Address), req.Args)

	if req.RecordID != "" {
		isVerified := job.State == explorer.JobVerified
		if markErr := o.recorder.MarkVerified(ctx, req.RecordID, isVerified, job.GUID, job.Detail); markErr != nil {
			o.logger.Error("updating verification state failed", "id", req.RecordID, "error", markErr)
		}
	}
	return job, err
}

// submitVerification runs the bytecode pre-check and the explorer round-trip.
// The returned job is never nil; the error reflects explorer failures only.
func (o *Orchestrator) submitVerification(ctx context.Context, b *broadcast.Broadcaster, builder build.Builder, net *networks.Network, dir string, artifact *build.Artifact, addr common.Address, args []string) (*explorer.Job, error) {
	job := &explorer.Job{Contract: artifact.Name, Address: addr.Hex(), State: explorer.JobFailed}

	if !net.HasExplorer() {
		job.Detail = fmt.Sprintf("network %s has no explorer configured", net.Name)
		o.logger.Warn("skipping verification", "reason", job.Detail)
		return job, nil
	}

	// Cheap sanity check before the explorer round-trip: the code that
	// actually landed on chain must match the artifact.
	onchain, err := retryCodeAt(ctx, b, addr)
	if err == nil {
		match := explorer.CompareBytecode(onchain, []byte(artifact.DeployedBytecode))
		if !match.Match {
			job.Detail = "on-chain bytecode does not match artifact: " + match.Message
			o.logger.Warn("skipping verification", "contract", artifact.Name, "reason", job.Detail)
			metrics.Verification(net.Name, "mismatch")
			return job, nil
		}
	}

	input, err := builder.VerificationInput(dir, artifact.Name)
	if err != nil {
		job.Detail = fmt.Sprintf("assembling verification input: %v", err)
		o.logger.Warn("skipping verification", "contract", artifact.Name, "reason", job.Detail)
		return job, nil
	}

	compilerVersion := input.SolcLongVersion
	if compilerVersion == "" {
		compilerVersion = artifact.Compiler.Version
	}

	argsHex, err := encodeArgsHex(artifact, args)
	if err != nil {
		job.Detail = fmt.Sprintf("encoding constructor args: %v", err)
		return job, nil
	}

	v := o.newVerifier(net)
	verified, err := v.Verify(ctx, explorer.SubmitRequest{
		Address:          addr.Hex(),
		ContractName:     qualifiedName(artifact),
		CompilerVersion:  compilerVersion,
		StandardJSON:     input.StandardJSON,
		ConstructorArgs:  argsHex,
		OptimizationUsed: artifact.Compiler.Optimizer.Enabled,
		Runs:             artifact.Compiler.Optimizer.Runs,
	})
	if verified != nil {
		job = verified
	}
	if err != nil {
		o.logger.Warn("verification failed", "contract", artifact.Name, "error", err)
		metrics.Verification(net.Name, "failed")
	} else {
		o.logger.Info("verified", "contract", artifact.Name, "address", addr.Hex())
		metrics.Verification(net.Name, "verified")
	}
	return job, err
}

// CallRequest describes a state-changing method call on a deployed contract.
type CallRequest struct {
	Dir      string
	Network  string
	Contract string
	Address  string
	Method   string
	Args     []string
	Value    *big.Int
	View     bool
}

// Call executes a method on an already deployed contract. View calls are
// executed via eth_call and return decoded values; everything else goes
// through the full broadcast path.
func (o *Orchestrator) Call(ctx context.Context, req CallRequest) (*broadcast.Result, []any, error) {
	net, err := o.resolver.Resolve(req.Network)
	if err != nil {
		return nil, nil, err
	}

	_, artifact, err := o.findCallArtifact(req.Dir, req.Contract)
	if err != nil {
		return nil, nil, err
	}
	parsed, err := artifact.ParsedABI()
	if err != nil {
		return nil, nil, fmt.Errorf("parsing ABI for %s: %w", artifact.Name, err)
	}

	if !common.IsHexAddress(req.Address) {
		return nil, nil, fmt.Errorf("invalid contract address %q", req.Address)
	}
	to := common.HexToAddress(req.Address)

	client, err := o.dial(ctx, net.RPCURL)
	if err != nil {
		return nil, nil, err
	}
	b := o.newBroadcaster(client, net)

	if req.View {
		values, err := b.View(ctx, artifact.Name, parsed, to, req.Method, req.Args)
		return nil, values, err
	}

	result, err := b.Call(ctx, artifact.Name, parsed, to, req.Method, req.Args, req.Value)
	if err != nil {
		return result, nil, err
	}
	return result, nil, nil
}

// findCallArtifact is lookupArtifact without the bytecode requirement; calls
// only need the ABI, so interfaces are fine.
func (o *Orchestrator) findCallArtifact(dir, contract string) (build.Builder, *build.Artifact, error) {
	var builder build.Builder
	var err error
	if o.cfg.Build.Builder != "" {
		var ok bool
		builder, ok = o.registry.Get(o.cfg.Build.Builder)
		if !ok {
			return nil, nil, fmt.Errorf("unknown builder %q", o.cfg.Build.Builder)
		}
	} else {
		builder, err = o.registry.DetectBuilder(dir)
		if err != nil {
			return nil, nil, err
		}
	}
	artifact, err := build.FindArtifact(builder, dir, contract)
	if err != nil {
		return nil, nil, err
	}
	return builder, artifact, nil
}

func classifyOutcome(err error) string {
	if err == nil {
		return storage.StatusSuccess
	}
	var bErr *broadcast.BroadcastError
	if errors.As(err, &bErr) {
		switch bErr.Kind {
		case broadcast.KindReverted:
			return storage.StatusReverted
		case broadcast.KindTimeout:
			return storage.StatusTimeout
		}
	}
	return "failed"
}

func encodeArgsHex(artifact *build.Artifact, args []string) (string, error) {
	if len(args) == 0 {
		return "", nil
	}
	parsed, err := artifact.ParsedABI()
	if err != nil {
		return "", err
	}
	packed, err := broadcast.EncodeConstructorArgs(artifact.Name, parsed, args)
	if err != nil {
		return "", err
	}
	return common.Bytes2Hex(packed), nil
}

func addressString(addr common.Address) string {
	if addr == (common.Address{}) {
		return ""
	}
	return addr.Hex()
}

// qualifiedName builds the explorer's fully qualified contract name,
// "src/Token.sol:Token".
func qualifiedName(artifact *build.Artifact) string {
	if artifact.SourcePath == "" {
		return artifact.Name
	}
	return artifact.SourcePath + ":" + artifact.Name
}

func retryCodeAt(ctx context.Context, b *broadcast.Broadcaster, addr common.Address) ([]byte, error) {
	// A freshly mined contract can take a moment to show up on lagging
	// RPC nodes.
	var lastErr error
	for i := 0; i < 3; i++ {
		code, err := b.CodeAt(ctx, addr)
		if err == nil && len(code) > 0 {
			return code, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
	if lastErr == nil {
		lastErr = errors.New("no code at address")
	}
	return nil, lastErr
}
