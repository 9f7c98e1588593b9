// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package decode turns raw EVM logs into DecodedEvent values for the known
// V2/V3/V4-family DEX protocols. It performs no I/O and allocates no pool
// state — a decoded event carries only what the log itself said.
package decode

import (
	"fmt"
	"math/big"

	"github.com/luxfi/geth/common"
)

// Protocol identifies the AMM generation an event belongs to.
type Protocol string

const (
	ProtocolV2 Protocol = "v2"
	ProtocolV3 Protocol = "v3"
	ProtocolV4 Protocol = "v4"
)

// Kind identifies the decoded event's semantic type.
type Kind string

const (
	KindPairCreated      Kind = "pair_created"
	KindPoolCreated      Kind = "pool_created"
	KindInitialize       Kind = "initialize"
	KindSync             Kind = "sync"
	KindSwap             Kind = "swap"
	KindMint             Kind = "mint"
	KindBurn             Kind = "burn"
	KindCollect          Kind = "collect"
	KindModifyLiquidity  Kind = "modify_liquidity"
	KindTransfer         Kind = "transfer"
	KindUnknown          Kind = "unknown"
)

// Locator pinpoints the log a decode error or a decoded event came from.
type Locator struct {
	ChainID     uint64
	BlockNumber uint64
	TxHash      common.Hash
	TxIndex     uint
	LogIndex    uint
}

// DecodeError carries the offending log's locator alongside the underlying
// cause, per spec §4.1.
type DecodeError struct {
	Locator Locator
	Reason  string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode log %s#%d: %s", e.Locator.TxHash, e.Locator.LogIndex, e.Reason)
}

// DecodedEvent is the tagged-variant output of the decoder. Only the fields
// relevant to Kind are populated; the rest are zero values.
type DecodedEvent struct {
	Protocol Protocol
	Kind     Kind
	Locator  Locator

	Pool    common.Address
	Token0  common.Address
	Token1  common.Address
	Factory common.Address

	// Raw, unscaled on-chain integers. Signed where the protocol's ABI
	// encodes them as signed (v3/v4 swap deltas); unsigned otherwise.
	Amount0 *big.Int
	Amount1 *big.Int

	// v2 Swap carries amountIn/Out split by side instead of signed deltas.
	Amount0In  *big.Int
	Amount0Out *big.Int
	Amount1In  *big.Int
	Amount1Out *big.Int

	Reserve0 *big.Int
	Reserve1 *big.Int

	SqrtPriceX96 *big.Int
	Tick         int32
	TickLower    int32
	TickUpper    int32
	Liquidity    *big.Int
	// LiquidityDelta is authoritative for v4 ModifyLiquidity sign — see
	// DESIGN.md Open Question 2. Never infer sign from Kind.
	LiquidityDelta *big.Int

	Fee         uint32
	TickSpacing int32

	Maker common.Address
	Owner common.Address

	// Transfer-only fields.
	From common.Address
	To   common.Address

	Sender    common.Address
	Recipient common.Address
}

// Signature is the keccak256 of an event's canonical form, used as the
// dispatch key into the decoder registry.
type Signature common.Hash

// Decoder decodes one family of events for one protocol generation.
type Decoder interface {
	Protocol() Protocol
	Signatures() map[Signature]Kind
	Decode(sig Signature, address common.Address, topics []common.Hash, data []byte, loc Locator) (DecodedEvent, error)
}

// Decode dispatches topics[0] to the registered decoder that recognizes it,
// returning KindUnknown (not an error) for signatures no decoder knows.
// address is the log's emitting contract — the pool, except for
// PairCreated/PoolCreated where it is the factory.
func Decode(address common.Address, topics []common.Hash, data []byte, loc Locator) (DecodedEvent, error) {
	if len(topics) == 0 {
		return DecodedEvent{Kind: KindUnknown, Locator: loc}, nil
	}
	sig := Signature(topics[0])

	for _, dec := range registered() {
		if kind, ok := dec.Signatures()[sig]; ok {
			ev, err := dec.Decode(sig, address, topics, data, loc)
			if err != nil {
				return DecodedEvent{}, err
			}
			ev.Kind = kind
			ev.Protocol = dec.Protocol()
			ev.Locator = loc
			return ev, nil
		}
	}
	return DecodedEvent{Kind: KindUnknown, Locator: loc}, nil
}

func requireTopics(topics []common.Hash, n int, loc Locator) error {
	if len(topics) < n {
		return &DecodeError{Locator: loc, Reason: fmt.Sprintf("expected at least %d topics, got %d", n, len(topics))}
	}
	return nil
}

func requireData(data []byte, n int, loc Locator) error {
	if len(data) < n {
		return &DecodeError{Locator: loc, Reason: fmt.Sprintf("expected at least %d data bytes, got %d", n, len(data))}
	}
	return nil
}

func addressFromTopic(t common.Hash) common.Address {
	return common.BytesToAddress(t[12:])
}

func wordAt(data []byte, idx int) []byte {
	start := idx * 32
	return data[start : start+32]
}

func bigAt(data []byte, idx int) *big.Int {
	return new(big.Int).SetBytes(wordAt(data, idx))
}

func signedBigAt(data []byte, idx int) *big.Int {
	word := wordAt(data, idx)
	v := new(big.Int).SetBytes(word)
	// Two's complement: if the high bit is set, subtract 2^256.
	if word[0]&0x80 != 0 {
		mod := new(big.Int).Lsh(big.NewInt(1), 256)
		v.Sub(v, mod)
	}
	return v
}

func int32At(data []byte, idx int) int32 {
	word := wordAt(data, idx)
	v := new(big.Int).SetBytes(word)
	if word[0]&0x80 != 0 {
		mod := new(big.Int).Lsh(big.NewInt(1), 256)
		v.Sub(v, mod)
	}
	return int32(v.Int64())
}
