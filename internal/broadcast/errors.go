package broadcast

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// EncodingError is returned when constructor or call arguments cannot be
// encoded against the contract ABI. Nothing was sent to the network.
type EncodingError struct {
	Contract string
	Method   string // empty for constructors
	Detail   string
}

func (e *EncodingError) Error() string {
	target := e.Contract
	if e.Method != "" {
		target = e.Contract + "." + e.Method
	}
	return fmt.Sprintf("encoding arguments for %s: %s", target, e.Detail)
}

// SimulationError is returned when the pre-flight call or gas estimation
// reverts. No transaction was signed and the signer's nonce is untouched.
type SimulationError struct {
	Contract string
	Reason   string // decoded revert reason, may be empty
	Err      error
}

func (e *SimulationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("simulation reverted for %s: %s", e.Contract, e.Reason)
	}
	return fmt.Sprintf("simulation failed for %s: %v", e.Contract, e.Err)
}

func (e *SimulationError) Unwrap() error {
	return e.Err
}

// BroadcastErrorKind distinguishes on-chain failure modes after submission.
type BroadcastErrorKind int

const (
	// KindReverted means the transaction was mined with a failed status.
	KindReverted BroadcastErrorKind = iota
	// KindTimeout means the receipt never arrived within the configured
	// window. The transaction may still be mined later.
	KindTimeout
	// KindSendFailed means the node rejected the submission outright.
	KindSendFailed
)

func (k BroadcastErrorKind) String() string {
	switch k {
	case KindReverted:
		return "reverted"
	case KindTimeout:
		return "timeout"
	case KindSendFailed:
		return "send failed"
	default:
		return "unknown"
	}
}

// BroadcastError is returned for failures after a transaction was signed.
// TxHash is always populated so callers can track the transaction, even on
// timeout.
type BroadcastError struct {
	Kind   BroadcastErrorKind
	TxHash common.Hash
	Reason string // decoded revert reason, may be empty
	Err    error
}

func (e *BroadcastError) Error() string {
	msg := fmt.Sprintf("transaction %s %s", e.TxHash.Hex(), e.Kind)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BroadcastError) Unwrap() error {
	return e.Err
}
