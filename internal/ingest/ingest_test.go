// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ingest

import (
	"testing"

	"github.com/luxfi/geth/common"
)

func TestAddressesAllCombinesFactoriesAndPools(t *testing.T) {
	factory := common.HexToAddress("0xfactory")
	pool1 := common.HexToAddress("0xpool1")
	pool2 := common.HexToAddress("0xpool2")
	addrs := Addresses{Factories: []common.Address{factory}, Pools: []common.Address{pool1, pool2}}

	got := addrs.All()
	if len(got) != 3 {
		t.Fatalf("All() returned %d addresses, want 3", len(got))
	}
	if got[0] != factory || got[1] != pool1 || got[2] != pool2 {
		t.Errorf("All() = %v, want factories before pools in insertion order", got)
	}
}

func TestAddressesAllEmpty(t *testing.T) {
	var addrs Addresses
	if got := addrs.All(); len(got) != 0 {
		t.Errorf("All() on a zero-value Addresses = %v, want empty", got)
	}
}
