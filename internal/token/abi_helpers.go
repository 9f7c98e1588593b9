// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package token

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/luxfi/geth/accounts/abi"
	"github.com/luxfi/geth/common/hexutil"
)

// stringsReader adapts a Go string literal to the io.Reader abi.JSON wants.
func stringsReader(s string) io.Reader {
	return strings.NewReader(s)
}

// hexBytes renders an ABI-packed call payload as the 0x-prefixed hex string
// eth_call expects in its "data" field.
func hexBytes(b []byte) string {
	return hexutil.Encode(b)
}

// unpackString decodes a hex-encoded eth_call result for a single string
// output using the given method's ABI definition.
func unpackString(parsed abi.ABI, method, result string) (string, error) {
	raw, err := decodeHexResult(result)
	if err != nil {
		return "", fmt.Errorf("decoding %s result: %w", method, err)
	}
	out, err := parsed.Unpack(method, raw)
	if err != nil {
		return "", fmt.Errorf("unpacking %s: %w", method, err)
	}
	if len(out) != 1 {
		return "", fmt.Errorf("unexpected %s output arity %d", method, len(out))
	}
	s, ok := out[0].(string)
	if !ok {
		return "", fmt.Errorf("%s did not decode to a string", method)
	}
	return s, nil
}

// unpackUint8 decodes a hex-encoded eth_call result for a single uint8
// output using the given method's ABI definition.
func unpackUint8(parsed abi.ABI, method, result string) (uint8, error) {
	raw, err := decodeHexResult(result)
	if err != nil {
		return 0, fmt.Errorf("decoding %s result: %w", method, err)
	}
	out, err := parsed.Unpack(method, raw)
	if err != nil {
		return 0, fmt.Errorf("unpacking %s: %w", method, err)
	}
	if len(out) != 1 {
		return 0, fmt.Errorf("unexpected %s output arity %d", method, len(out))
	}
	v, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("%s did not decode to a uint8", method)
	}
	return v, nil
}

func decodeHexResult(result string) ([]byte, error) {
	trimmed := strings.TrimPrefix(result, "0x")
	if trimmed == "" {
		return nil, nil
	}
	return hex.DecodeString(trimmed)
}
