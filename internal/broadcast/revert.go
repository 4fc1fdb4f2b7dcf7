package broadcast

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// jsonError matches the error type geth's RPC client returns for reverted
// calls; ErrorData carries the ABI-encoded revert payload.
type jsonError interface {
	Error() string
	ErrorCode() int
	ErrorData() interface{}
}

// revertReason extracts a human-readable revert reason from an RPC error,
// if the node attached revert data to it.
func revertReason(err error) string {
	if err == nil {
		return ""
	}

	var jerr jsonError
	if errors.As(err, &jerr) {
		if data, ok := jerr.ErrorData().(string); ok {
			if reason := decodeRevertData(data); reason != "" {
				return reason
			}
		}
	}

	// Some nodes inline the reason into the message
	const marker = "execution reverted: "
	if idx := strings.Index(err.Error(), marker); idx >= 0 {
		return err.Error()[idx+len(marker):]
	}
	return ""
}

// decodeRevertData unpacks a 0x-prefixed Error(string) revert payload
func decodeRevertData(data string) string {
	raw, err := hex.DecodeString(strings.TrimPrefix(data, "0x"))
	if err != nil || len(raw) == 0 {
		return ""
	}
	reason, err := abi.UnpackRevert(raw)
	if err != nil {
		return ""
	}
	return reason
}

// replayReason re-executes a mined transaction as a call at its inclusion
// block to recover the revert reason. Best effort: nodes without archive
// state may refuse.
func replayReason(ctx context.Context, client Client, tx *types.Transaction, from common.Address, receipt *types.Receipt) string {
	msg := ethereum.CallMsg{
		From:     from,
		To:       tx.To(),
		Gas:      tx.Gas(),
		GasPrice: tx.GasPrice(),
		Value:    tx.Value(),
		Data:     tx.Data(),
	}

	ret, err := client.CallContract(ctx, msg, receipt.BlockNumber)
	if err != nil {
		return revertReason(err)
	}
	if len(ret) > 0 {
		if reason, uerr := abi.UnpackRevert(ret); uerr == nil {
			return reason
		}
	}
	return ""
}
