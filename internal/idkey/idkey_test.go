// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package idkey

import (
	"testing"

	"github.com/luxfi/geth/common"
)

func TestEventKeyDeterministic(t *testing.T) {
	txHash := common.HexToHash("0xabc123")

	a := EventKey(1, txHash, 5)
	b := EventKey(1, txHash, 5)
	if a != b {
		t.Errorf("EventKey not deterministic: %x != %x", a, b)
	}
}

func TestEventKeyDistinguishesInputs(t *testing.T) {
	txHash := common.HexToHash("0xabc123")
	other := common.HexToHash("0xdef456")

	base := EventKey(1, txHash, 5)

	tests := []struct {
		name string
		key  [32]byte
	}{
		{"different chain", EventKey(2, txHash, 5)},
		{"different tx hash", EventKey(1, other, 5)},
		{"different log index", EventKey(1, txHash, 6)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.key == base {
				t.Errorf("expected key to differ from base, got identical %x", tt.key)
			}
		})
	}
}

func TestRouteKeyOrderSensitive(t *testing.T) {
	a := common.HexToAddress("0x1")
	b := common.HexToAddress("0x2")

	forward := RouteKey(1, []common.Address{a, b})
	reverse := RouteKey(1, []common.Address{b, a})

	if forward == reverse {
		t.Error("RouteKey should be sensitive to visit order")
	}

	again := RouteKey(1, []common.Address{a, b})
	if forward != again {
		t.Error("RouteKey should be deterministic for the same prefix")
	}
}

func TestRouteKeySharedPrefix(t *testing.T) {
	a := common.HexToAddress("0x1")
	b := common.HexToAddress("0x2")
	c := common.HexToAddress("0x3")

	prefix := RouteKey(1, []common.Address{a, b})
	extended := RouteKey(1, []common.Address{a, b, c})

	if prefix == extended {
		t.Error("extending the visited set must change the route key")
	}
}
