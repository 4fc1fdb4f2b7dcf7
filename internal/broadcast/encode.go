package broadcast

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// EncodeConstructorArgs packs string arguments against the contract's
// constructor. A contract without a constructor accepts no arguments.
func EncodeConstructorArgs(contractName string, parsed abi.ABI, args []string) ([]byte, error) {
	inputs := parsed.Constructor.Inputs
	if len(args) != len(inputs) {
		return nil, &EncodingError{
			Contract: contractName,
			Detail:   fmt.Sprintf("constructor expects %d arguments, got %d", len(inputs), len(args)),
		}
	}

	values, err := convertArgs(inputs, args)
	if err != nil {
		return nil, &EncodingError{Contract: contractName, Detail: err.Error()}
	}

	packed, err := parsed.Pack("", values...)
	if err != nil {
		return nil, &EncodingError{Contract: contractName, Detail: err.Error()}
	}
	return packed, nil
}

// EncodeCallArgs packs string arguments for a named method.
func EncodeCallArgs(contractName string, parsed abi.ABI, method string, args []string) ([]byte, error) {
	m, ok := parsed.Methods[method]
	if !ok {
		return nil, &EncodingError{
			Contract: contractName,
			Method:   method,
			Detail:   "method not found in ABI",
		}
	}
	if len(args) != len(m.Inputs) {
		return nil, &EncodingError{
			Contract: contractName,
			Method:   method,
			Detail:   fmt.Sprintf("expects %d arguments, got %d", len(m.Inputs), len(args)),
		}
	}

	values, err := convertArgs(m.Inputs, args)
	if err != nil {
		return nil, &EncodingError{Contract: contractName, Method: method, Detail: err.Error()}
	}

	packed, err := parsed.Pack(method, values...)
	if err != nil {
		return nil, &EncodingError{Contract: contractName, Method: method, Detail: err.Error()}
	}
	return packed, nil
}

func convertArgs(inputs abi.Arguments, args []string) ([]any, error) {
	values := make([]any, len(inputs))
	for i, input := range inputs {
		v, err := convertArg(input.Type, args[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d (%s %s): %w", i, input.Name, input.Type.String(), err)
		}
		values[i] = v
	}
	return values, nil
}

// convertArg converts a command-line string into the Go value the ABI
// packer expects for the given type.
func convertArg(t abi.Type, s string) (any, error) {
	switch t.T {
	case abi.AddressTy:
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("invalid address %q", s)
		}
		return common.HexToAddress(s), nil

	case abi.UintTy, abi.IntTy:
		return convertInteger(t, s)

	case abi.BoolTy:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("invalid bool %q", s)
		}
		return b, nil

	case abi.StringTy:
		return s, nil

	case abi.BytesTy:
		b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid hex bytes %q", s)
		}
		return b, nil

	case abi.FixedBytesTy:
		b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid hex bytes %q", s)
		}
		if len(b) != t.Size {
			return nil, fmt.Errorf("bytes%d value has %d bytes", t.Size, len(b))
		}
		return toFixedBytes(b, t.Size), nil

	case abi.SliceTy, abi.ArrayTy:
		return convertList(t, s)

	default:
		return nil, fmt.Errorf("unsupported type %s", t.String())
	}
}

func convertInteger(t abi.Type, s string) (any, error) {
	n := new(big.Int)
	var ok bool
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		_, ok = n.SetString(s[2:], 16)
	} else {
		_, ok = n.SetString(s, 10)
	}
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	if t.T == abi.UintTy && n.Sign() < 0 {
		return nil, fmt.Errorf("negative value %q for unsigned type", s)
	}

	if !fitsBits(t, n) {
		return nil, fmt.Errorf("value %q overflows %s", s, t.String())
	}

	// The packer wants native ints for the standard widths and *big.Int for
	// everything else (uint24, int48, uint256, ...).
	if t.T == abi.UintTy {
		switch t.Size {
		case 8:
			return uint8(n.Uint64()), nil
		case 16:
			return uint16(n.Uint64()), nil
		case 32:
			return uint32(n.Uint64()), nil
		case 64:
			return n.Uint64(), nil
		default:
			return n, nil
		}
	}
	switch t.Size {
	case 8:
		return int8(n.Int64()), nil
	case 16:
		return int16(n.Int64()), nil
	case 32:
		return int32(n.Int64()), nil
	case 64:
		return n.Int64(), nil
	default:
		return n, nil
	}
}

// fitsBits reports whether n is representable in the type's bit width.
func fitsBits(t abi.Type, n *big.Int) bool {
	if t.T == abi.UintTy {
		return n.BitLen() <= t.Size
	}
	max := new(big.Int).Lsh(big.NewInt(1), uint(t.Size-1))
	min := new(big.Int).Neg(max)
	return n.Cmp(min) >= 0 && n.Cmp(max) < 0
}

// convertList handles T[] and T[N] arguments given as comma-separated
// values, e.g. "0xabc...,0xdef..." for address[].
func convertList(t abi.Type, s string) (any, error) {
	var parts []string
	if s != "" {
		parts = strings.Split(s, ",")
	}
	if t.T == abi.ArrayTy && len(parts) != t.Size {
		return nil, fmt.Errorf("expected %d elements, got %d", t.Size, len(parts))
	}

	switch t.Elem.T {
	case abi.SliceTy, abi.ArrayTy, abi.TupleTy:
		return nil, fmt.Errorf("unsupported element type %s", t.Elem.String())
	}

	// The packer matches on the concrete Go slice or array type, so the
	// converted elements go into a reflect-built value of the ABI's Go type.
	list := reflect.New(t.GetType()).Elem()
	if t.T == abi.SliceTy {
		list = reflect.MakeSlice(t.GetType(), len(parts), len(parts))
	}
	for i, p := range parts {
		v, err := convertArg(*t.Elem, strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		list.Index(i).Set(reflect.ValueOf(v))
	}
	return list.Interface(), nil
}

// toFixedBytes builds the [N]byte array the packer expects for bytesN
func toFixedBytes(b []byte, size int) any {
	arr := reflect.New(reflect.ArrayOf(size, reflect.TypeOf(byte(0)))).Elem()
	reflect.Copy(arr, reflect.ValueOf(b))
	return arr.Interface()
}
