// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package decode

import (
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/crypto"
)

// V3 event signatures, matching Uniswap-v3-family factory/pool ABIs.
var (
	sigPoolCreated = Signature(crypto.Keccak256Hash([]byte("PoolCreated(address,address,uint24,int24,address)")))
	sigSwapV3      = Signature(crypto.Keccak256Hash([]byte("Swap(address,address,int256,int256,uint160,uint128,int24)")))
	sigMintV3      = Signature(crypto.Keccak256Hash([]byte("Mint(address,address,int24,int24,uint128,uint256,uint256)")))
	sigBurnV3      = Signature(crypto.Keccak256Hash([]byte("Burn(address,int24,int24,uint128,uint256,uint256)")))
	sigCollectV3   = Signature(crypto.Keccak256Hash([]byte("Collect(address,address,int24,int24,uint128,uint128)")))
)

type v3Decoder struct{}

func init() {
	Register(v3Decoder{})
}

func (v3Decoder) Protocol() Protocol { return ProtocolV3 }

func (v3Decoder) Signatures() map[Signature]Kind {
	return map[Signature]Kind{
		sigPoolCreated: KindPoolCreated,
		sigSwapV3:      KindSwap,
		sigMintV3:      KindMint,
		sigBurnV3:      KindBurn,
		sigCollectV3:   KindCollect,
	}
}

func (v3Decoder) Decode(sig Signature, address common.Address, topics []common.Hash, data []byte, loc Locator) (DecodedEvent, error) {
	switch sig {
	case sigPoolCreated:
		return decodePoolCreatedV3(address, topics, data, loc)
	case sigSwapV3:
		return decodeSwapV3(address, topics, data, loc)
	case sigMintV3:
		return decodeMintV3(address, topics, data, loc)
	case sigBurnV3:
		return decodeBurnV3(address, topics, data, loc)
	case sigCollectV3:
		return decodeCollectV3(address, topics, data, loc)
	default:
		return DecodedEvent{}, &DecodeError{Locator: loc, Reason: "unhandled v3 signature"}
	}
}

// PoolCreated(address indexed token0, address indexed token1, uint24 indexed fee, int24 tickSpacing, address pool)
func decodePoolCreatedV3(factory common.Address, topics []common.Hash, data []byte, loc Locator) (DecodedEvent, error) {
	if err := requireTopics(topics, 4, loc); err != nil {
		return DecodedEvent{}, err
	}
	if err := requireData(data, 64, loc); err != nil {
		return DecodedEvent{}, err
	}
	return DecodedEvent{
		Factory:     factory,
		Token0:      addressFromTopic(topics[1]),
		Token1:      addressFromTopic(topics[2]),
		Fee:         uint32(bigAt(topics[3][:], 0).Uint64()),
		TickSpacing: int32At(data, 0),
		Pool:        common.BytesToAddress(wordAt(data, 1)[12:]),
	}, nil
}

// Swap(address indexed sender, address indexed recipient, int256 amount0, int256 amount1, uint160 sqrtPriceX96, uint128 liquidity, int24 tick)
func decodeSwapV3(pool common.Address, topics []common.Hash, data []byte, loc Locator) (DecodedEvent, error) {
	if err := requireTopics(topics, 3, loc); err != nil {
		return DecodedEvent{}, err
	}
	if err := requireData(data, 160, loc); err != nil {
		return DecodedEvent{}, err
	}
	return DecodedEvent{
		Pool:         pool,
		Sender:       addressFromTopic(topics[1]),
		Recipient:    addressFromTopic(topics[2]),
		Amount0:      signedBigAt(data, 0),
		Amount1:      signedBigAt(data, 1),
		SqrtPriceX96: bigAt(data, 2),
		Liquidity:    bigAt(data, 3),
		Tick:         int32At(data, 4),
	}, nil
}

// Mint(address sender, address indexed owner, int24 indexed tickLower, int24 indexed tickUpper, uint128 amount, uint256 amount0, uint256 amount1)
func decodeMintV3(pool common.Address, topics []common.Hash, data []byte, loc Locator) (DecodedEvent, error) {
	if err := requireTopics(topics, 4, loc); err != nil {
		return DecodedEvent{}, err
	}
	if err := requireData(data, 128, loc); err != nil {
		return DecodedEvent{}, err
	}
	return DecodedEvent{
		Pool:      pool,
		Owner:     addressFromTopic(topics[1]),
		TickLower: int32At(topics[2][:], 0),
		TickUpper: int32At(topics[3][:], 0),
		Sender:    common.BytesToAddress(wordAt(data, 0)[12:]),
		Liquidity: bigAt(data, 1),
		Amount0:   bigAt(data, 2),
		Amount1:   bigAt(data, 3),
	}, nil
}

// Burn(address indexed owner, int24 indexed tickLower, int24 indexed tickUpper, uint128 amount, uint256 amount0, uint256 amount1)
func decodeBurnV3(pool common.Address, topics []common.Hash, data []byte, loc Locator) (DecodedEvent, error) {
	if err := requireTopics(topics, 4, loc); err != nil {
		return DecodedEvent{}, err
	}
	if err := requireData(data, 96, loc); err != nil {
		return DecodedEvent{}, err
	}
	return DecodedEvent{
		Pool:      pool,
		Owner:     addressFromTopic(topics[1]),
		TickLower: int32At(topics[2][:], 0),
		TickUpper: int32At(topics[3][:], 0),
		Liquidity: bigAt(data, 0),
		Amount0:   bigAt(data, 1),
		Amount1:   bigAt(data, 2),
	}, nil
}

// Collect(address indexed owner, address recipient, int24 indexed tickLower, int24 indexed tickUpper, uint128 amount0, uint128 amount1)
func decodeCollectV3(pool common.Address, topics []common.Hash, data []byte, loc Locator) (DecodedEvent, error) {
	if err := requireTopics(topics, 4, loc); err != nil {
		return DecodedEvent{}, err
	}
	if err := requireData(data, 96, loc); err != nil {
		return DecodedEvent{}, err
	}
	return DecodedEvent{
		Pool:      pool,
		Owner:     addressFromTopic(topics[1]),
		TickLower: int32At(topics[2][:], 0),
		TickUpper: int32At(topics[3][:], 0),
		Recipient: common.BytesToAddress(wordAt(data, 0)[12:]),
		Amount0:   bigAt(data, 1),
		Amount1:   bigAt(data, 2),
	}, nil
}
