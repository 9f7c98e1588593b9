// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package decode

import (
	"fmt"
	"sort"
	"sync"
)

// registry mirrors the teacher's modules.RegisterModule idiom (sorted,
// collision-checked registration) but keyed by decoded protocol+signature
// instead of EVM address ranges.
var (
	mu         sync.RWMutex
	decoders   []Decoder
	bySig      = map[Signature]Decoder{}
)

// Register adds a Decoder to the package-level registry. It panics on
// startup if two decoders claim the same signature — this is a programming
// error, not a runtime condition, so failing fast at init() time (as the
// teacher's modules.RegisterModule does) is appropriate.
func Register(dec Decoder) {
	mu.Lock()
	defer mu.Unlock()

	for sig := range dec.Signatures() {
		if existing, ok := bySig[sig]; ok {
			panic(fmt.Sprintf("decode: signature %x already claimed by protocol %s", sig, existing.Protocol()))
		}
	}
	for sig := range dec.Signatures() {
		bySig[sig] = dec
	}
	decoders = append(decoders, dec)
	sort.Slice(decoders, func(i, j int) bool {
		return decoders[i].Protocol() < decoders[j].Protocol()
	})
}

func registered() []Decoder {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Decoder, len(decoders))
	copy(out, decoders)
	return out
}
