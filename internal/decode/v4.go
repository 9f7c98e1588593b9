// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package decode

import (
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/crypto"
)

// V4 event signatures, matching the singleton PoolManager's event ABI.
var (
	sigInitializeV4      = Signature(crypto.Keccak256Hash([]byte("Initialize(bytes32,address,address,uint24,int24,address,uint160,int24)")))
	sigSwapV4             = Signature(crypto.Keccak256Hash([]byte("Swap(bytes32,address,int128,int128,uint160,uint128,int24,uint24)")))
	sigModifyLiquidityV4 = Signature(crypto.Keccak256Hash([]byte("ModifyLiquidity(bytes32,address,int24,int24,int256,bytes32)")))
)

type v4Decoder struct{}

func init() {
	Register(v4Decoder{})
}

func (v4Decoder) Protocol() Protocol { return ProtocolV4 }

func (v4Decoder) Signatures() map[Signature]Kind {
	return map[Signature]Kind{
		sigInitializeV4:      KindInitialize,
		sigSwapV4:            KindSwap,
		sigModifyLiquidityV4: KindModifyLiquidity,
	}
}

func (v4Decoder) Decode(sig Signature, address common.Address, topics []common.Hash, data []byte, loc Locator) (DecodedEvent, error) {
	switch sig {
	case sigInitializeV4:
		return decodeInitializeV4(address, topics, data, loc)
	case sigSwapV4:
		return decodeSwapV4(address, topics, data, loc)
	case sigModifyLiquidityV4:
		return decodeModifyLiquidityV4(address, topics, data, loc)
	default:
		return DecodedEvent{}, &DecodeError{Locator: loc, Reason: "unhandled v4 signature"}
	}
}

// Initialize(bytes32 indexed id, address indexed currency0, address indexed currency1, uint24 fee, int24 tickSpacing, address hooks, uint160 sqrtPriceX96, int24 tick)
func decodeInitializeV4(manager common.Address, topics []common.Hash, data []byte, loc Locator) (DecodedEvent, error) {
	if err := requireTopics(topics, 4, loc); err != nil {
		return DecodedEvent{}, err
	}
	if err := requireData(data, 160, loc); err != nil {
		return DecodedEvent{}, err
	}
	return DecodedEvent{
		Factory:      manager,
		Pool:         common.BytesToAddress(topics[1][:20]),
		Token0:       addressFromTopic(topics[2]),
		Token1:       addressFromTopic(topics[3]),
		Fee:          uint32(bigAt(data, 0).Uint64()),
		TickSpacing:  int32At(data, 1),
		SqrtPriceX96: bigAt(data, 3),
		Tick:         int32At(data, 4),
	}, nil
}

// Swap(bytes32 indexed id, address indexed sender, int128 amount0, int128 amount1, uint160 sqrtPriceX96, uint128 liquidity, int24 tick, uint24 fee)
func decodeSwapV4(manager common.Address, topics []common.Hash, data []byte, loc Locator) (DecodedEvent, error) {
	if err := requireTopics(topics, 3, loc); err != nil {
		return DecodedEvent{}, err
	}
	if err := requireData(data, 192, loc); err != nil {
		return DecodedEvent{}, err
	}
	return DecodedEvent{
		Factory:      manager,
		Pool:         common.BytesToAddress(topics[1][:20]),
		Sender:       addressFromTopic(topics[2]),
		Amount0:      signedBigAt(data, 0),
		Amount1:      signedBigAt(data, 1),
		SqrtPriceX96: bigAt(data, 2),
		Liquidity:    bigAt(data, 3),
		Tick:         int32At(data, 4),
		Fee:          uint32(bigAt(data, 5).Uint64()),
	}, nil
}

// ModifyLiquidity(bytes32 indexed id, address indexed sender, int24 tickLower, int24 tickUpper, int256 liquidityDelta, bytes32 salt)
//
// Per DESIGN.md Open Question 2, liquidityDelta's sign is authoritative and
// is never re-derived from anything else about the event.
func decodeModifyLiquidityV4(manager common.Address, topics []common.Hash, data []byte, loc Locator) (DecodedEvent, error) {
	if err := requireTopics(topics, 3, loc); err != nil {
		return DecodedEvent{}, err
	}
	if err := requireData(data, 128, loc); err != nil {
		return DecodedEvent{}, err
	}
	return DecodedEvent{
		Factory:        manager,
		Pool:           common.BytesToAddress(topics[1][:20]),
		Sender:         addressFromTopic(topics[2]),
		TickLower:      int32At(data, 0),
		TickUpper:      int32At(data, 1),
		LiquidityDelta: signedBigAt(data, 2),
	}, nil
}
