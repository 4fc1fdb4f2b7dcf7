// Package broadcast signs and submits transactions to EVM networks and
// tracks them to inclusion. Each operation submits exactly once; retry
// logic applies only to read-side RPC calls.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/pendergraft/shipyard/internal/build"
	"github.com/pendergraft/shipyard/internal/networks"
	"github.com/pendergraft/shipyard/internal/observability/metrics"
)

// Client is the subset of ethclient.Client the broadcaster needs.
type Client interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

// Options tune gas sizing and receipt polling.
type Options struct {
	GasLimitMultiplier float64       // headroom over the node's estimate
	ReceiptTimeout     time.Duration // how long to wait for inclusion
	PollInterval       time.Duration // initial receipt poll interval
	MaxPollInterval    time.Duration // poll backoff cap
}

// DefaultOptions match typical public-network block times.
func DefaultOptions() Options {
	return Options{
		GasLimitMultiplier: 1.2,
		ReceiptTimeout:     5 * time.Minute,
		PollInterval:       time.Second,
		MaxPollInterval:    15 * time.Second,
	}
}

// Result describes a mined transaction.
type Result struct {
	TxHash            common.Hash
	ContractAddress   common.Address // zero unless a deployment
	BlockNumber       uint64
	GasUsed           uint64
	EffectiveGasPrice *big.Int
	Success           bool
}

// Broadcaster deploys contracts and sends contract calls on one network.
type Broadcaster struct {
	client  Client
	network *networks.Network
	nonces  *NonceManager
	opts    Options
	logger  *slog.Logger
}

// New creates a Broadcaster for a resolved network.
func New(client Client, network *networks.Network, nonces *NonceManager, opts Options, logger *slog.Logger) *Broadcaster {
	if opts.GasLimitMultiplier <= 0 {
		opts.GasLimitMultiplier = DefaultOptions().GasLimitMultiplier
	}
	if opts.ReceiptTimeout <= 0 {
		opts.ReceiptTimeout = DefaultOptions().ReceiptTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultOptions().PollInterval
	}
	if opts.MaxPollInterval <= 0 {
		opts.MaxPollInterval = DefaultOptions().MaxPollInterval
	}
	return &Broadcaster{
		client:  client,
		network: network,
		nonces:  nonces,
		opts:    opts,
		logger:  logger,
	}
}

// Deploy submits a contract creation transaction and waits for inclusion.
// Encoding and simulation failures happen before signing and consume no
// nonce.
func (b *Broadcaster) Deploy(ctx context.Context, artifact *build.Artifact, args []string, value *big.Int) (*Result, error) {
	parsed, err := artifact.ParsedABI()
	if err != nil {
		return nil, &EncodingError{Contract: artifact.Name, Detail: err.Error()}
	}

	encodedArgs, err := EncodeConstructorArgs(artifact.Name, parsed, args)
	if err != nil {
		return nil, err
	}

	bytecode, err := artifact.BytecodeBytes()
	if err != nil {
		return nil, &EncodingError{Contract: artifact.Name, Detail: err.Error()}
	}
	if len(bytecode) == 0 {
		return nil, &EncodingError{Contract: artifact.Name, Detail: "artifact has no bytecode"}
	}

	data := append(bytecode, encodedArgs...)
	return b.submit(ctx, artifact.Name, nil, data, value)
}

// Call submits a state-changing call to a deployed contract.
func (b *Broadcaster) Call(ctx context.Context, contractName string, parsed abi.ABI, to common.Address, method string, args []string, value *big.Int) (*Result, error) {
	data, err := EncodeCallArgs(contractName, parsed, method, args)
	if err != nil {
		return nil, err
	}
	return b.submit(ctx, fmt.Sprintf("%s.%s", contractName, method), &to, data, value)
}

func (b *Broadcaster) submit(ctx context.Context, label string, to *common.Address, data []byte, value *big.Int) (*Result, error) {
	if value == nil {
		value = new(big.Int)
	}
	from := b.network.Address

	// Simulation doubles as gas estimation. A revert here means the
	// transaction would fail, so nothing gets signed or sent.
	msg := ethereum.CallMsg{From: from, To: to, Data: data, Value: value}
	gasEstimate, err := b.client.EstimateGas(ctx, msg)
	if err != nil {
		return nil, &SimulationError{Contract: label, Reason: revertReason(err), Err: err}
	}
	gasLimit := uint64(float64(gasEstimate) * b.opts.GasLimitMultiplier)

	tipCap, feeCap, err := b.suggestFees(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching gas fees: %w", err)
	}

	nonce, err := b.nonces.Reserve(ctx, from)
	if err != nil {
		return nil, err
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(b.network.ChainID),
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        to,
		Value:     value,
		Data:      data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(b.network.ChainID)), b.network.PrivateKey)
	if err != nil {
		b.nonces.Return(from, nonce)
		return nil, fmt.Errorf("signing transaction: %w", err)
	}

	b.logger.Info("broadcasting transaction",
		"target", label,
		"network", b.network.Name,
		"tx_hash", signed.Hash().Hex(),
		"nonce", nonce,
		"gas_limit", gasLimit)

	// One submission per operation. A send failure returns the nonce and
	// resyncs with the node in case our view drifted.
	if err := b.client.SendTransaction(ctx, signed); err != nil {
		b.nonces.Return(from, nonce)
		b.nonces.Reset(from)
		return nil, &BroadcastError{Kind: KindSendFailed, TxHash: signed.Hash(), Err: err}
	}

	receipt, err := b.waitMined(ctx, signed.Hash())
	if err != nil {
		return nil, err
	}

	result := &Result{
		TxHash:            signed.Hash(),
		BlockNumber:       receipt.BlockNumber.Uint64(),
		GasUsed:           receipt.GasUsed,
		EffectiveGasPrice: receipt.EffectiveGasPrice,
		Success:           receipt.Status == types.ReceiptStatusSuccessful,
	}
	if to == nil {
		result.ContractAddress = receipt.ContractAddress
	}

	if !result.Success {
		reason := replayReason(ctx, b.client, signed, from, receipt)
		return result, &BroadcastError{Kind: KindReverted, TxHash: signed.Hash(), Reason: reason}
	}

	b.logger.Info("transaction mined",
		"tx_hash", signed.Hash().Hex(),
		"block", result.BlockNumber,
		"gas_used", result.GasUsed)
	return result, nil
}

// suggestFees computes EIP-1559 fee caps: tip from the node, fee cap at
// twice the current base fee plus tip so the transaction survives base fee
// growth across a few blocks.
func (b *Broadcaster) suggestFees(ctx context.Context) (tipCap, feeCap *big.Int, err error) {
	tipCap, err = retryRead(ctx, func() (*big.Int, error) {
		return b.client.SuggestGasTipCap(ctx)
	})
	if err != nil {
		return nil, nil, err
	}

	head, err := retryRead(ctx, func() (*types.Header, error) {
		return b.client.HeaderByNumber(ctx, nil)
	})
	if err != nil {
		return nil, nil, err
	}

	if head.BaseFee == nil {
		// Pre-1559 network, use the tip as a flat gas price
		return tipCap, tipCap, nil
	}

	feeCap = new(big.Int).Add(
		new(big.Int).Mul(head.BaseFee, big.NewInt(2)),
		tipCap,
	)
	return tipCap, feeCap, nil
}

// waitMined polls for the receipt with exponential backoff until the
// receipt timeout elapses.
func (b *Broadcaster) waitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, b.opts.ReceiptTimeout)
	defer cancel()

	interval := b.opts.PollInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		metrics.ReceiptPoll(b.network.Name)
		receipt, err := b.client.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			b.logger.Debug("receipt poll failed", "tx_hash", txHash.Hex(), "error", err)
		}

		select {
		case <-ctx.Done():
			return nil, &BroadcastError{Kind: KindTimeout, TxHash: txHash, Err: ctx.Err()}
		case <-timer.C:
		}

		interval *= 2
		if interval > b.opts.MaxPollInterval {
			interval = b.opts.MaxPollInterval
		}
		timer.Reset(interval)
	}
}

// View executes a read-only method and returns the decoded outputs.
func (b *Broadcaster) View(ctx context.Context, contractName string, parsed abi.ABI, to common.Address, method string, args []string) ([]any, error) {
	data, err := EncodeCallArgs(contractName, parsed, method, args)
	if err != nil {
		return nil, err
	}

	ret, err := retryRead(ctx, func() ([]byte, error) {
		return b.client.CallContract(ctx, ethereum.CallMsg{From: b.network.Address, To: &to, Data: data}, nil)
	})
	if err != nil {
		return nil, &SimulationError{Contract: contractName, Reason: revertReason(err), Err: err}
	}

	values, err := parsed.Unpack(method, ret)
	if err != nil {
		return nil, fmt.Errorf("decoding return value of %s.%s: %w", contractName, method, err)
	}
	return values, nil
}

// CodeAt returns the runtime bytecode at the given address.
func (b *Broadcaster) CodeAt(ctx context.Context, addr common.Address) ([]byte, error) {
	code, err := retryRead(ctx, func() ([]byte, error) {
		return b.client.CodeAt(ctx, addr, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("fetching code at %s: %w", addr.Hex(), err)
	}
	return code, nil
}

// IsDeployed reports whether code exists at the address.
func (b *Broadcaster) IsDeployed(ctx context.Context, addr common.Address) (bool, error) {
	code, err := retryRead(ctx, func() ([]byte, error) {
		return b.client.CodeAt(ctx, addr, nil)
	})
	if err != nil {
		return false, fmt.Errorf("fetching code at %s: %w", addr.Hex(), err)
	}
	return len(code) > 0, nil
}

// retryRead retries transient failures on read-only RPC calls.
func retryRead[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	return retry.DoWithData(fn,
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.MaxDelay(5*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}
