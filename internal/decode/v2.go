// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package decode

import (
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/crypto"
)

// V2 event signatures, matching Uniswap-v2-family factory/pair ABIs.
var (
	sigPairCreated = Signature(crypto.Keccak256Hash([]byte("PairCreated(address,address,address,uint256)")))
	sigSyncV2      = Signature(crypto.Keccak256Hash([]byte("Sync(uint112,uint112)")))
	sigSwapV2      = Signature(crypto.Keccak256Hash([]byte("Swap(address,uint256,uint256,uint256,uint256,address)")))
	sigMintV2      = Signature(crypto.Keccak256Hash([]byte("Mint(address,uint256,uint256)")))
	sigBurnV2      = Signature(crypto.Keccak256Hash([]byte("Burn(address,uint256,uint256,address)")))
	sigTransfer    = Signature(crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)")))
)

type v2Decoder struct{}

func init() {
	Register(v2Decoder{})
}

func (v2Decoder) Protocol() Protocol { return ProtocolV2 }

func (v2Decoder) Signatures() map[Signature]Kind {
	return map[Signature]Kind{
		sigPairCreated: KindPairCreated,
		sigSyncV2:      KindSync,
		sigSwapV2:      KindSwap,
		sigMintV2:      KindMint,
		sigBurnV2:      KindBurn,
		sigTransfer:    KindTransfer,
	}
}

func (v2Decoder) Decode(sig Signature, address common.Address, topics []common.Hash, data []byte, loc Locator) (DecodedEvent, error) {
	switch sig {
	case sigPairCreated:
		return decodePairCreated(address, topics, data, loc)
	case sigSyncV2:
		return decodeSyncV2(address, topics, data, loc)
	case sigSwapV2:
		return decodeSwapV2(address, topics, data, loc)
	case sigMintV2:
		return decodeMintV2(address, topics, data, loc)
	case sigBurnV2:
		return decodeBurnV2(address, topics, data, loc)
	case sigTransfer:
		return decodeTransfer(address, topics, data, loc)
	default:
		return DecodedEvent{}, &DecodeError{Locator: loc, Reason: "unhandled v2 signature"}
	}
}

// PairCreated(address indexed token0, address indexed token1, address pair, uint256)
func decodePairCreated(factory common.Address, topics []common.Hash, data []byte, loc Locator) (DecodedEvent, error) {
	if err := requireTopics(topics, 3, loc); err != nil {
		return DecodedEvent{}, err
	}
	if err := requireData(data, 32, loc); err != nil {
		return DecodedEvent{}, err
	}
	return DecodedEvent{
		Factory: factory,
		Token0:  addressFromTopic(topics[1]),
		Token1:  addressFromTopic(topics[2]),
		Pool:    common.BytesToAddress(wordAt(data, 0)[12:]),
	}, nil
}

// Sync(uint112 reserve0, uint112 reserve1)
func decodeSyncV2(pool common.Address, topics []common.Hash, data []byte, loc Locator) (DecodedEvent, error) {
	if err := requireTopics(topics, 1, loc); err != nil {
		return DecodedEvent{}, err
	}
	if err := requireData(data, 64, loc); err != nil {
		return DecodedEvent{}, err
	}
	return DecodedEvent{
		Pool:     pool,
		Reserve0: bigAt(data, 0),
		Reserve1: bigAt(data, 1),
	}, nil
}

// Swap(address indexed sender, uint256 amount0In, uint256 amount1In, uint256 amount0Out, uint256 amount1Out, address indexed to)
func decodeSwapV2(pool common.Address, topics []common.Hash, data []byte, loc Locator) (DecodedEvent, error) {
	if err := requireTopics(topics, 3, loc); err != nil {
		return DecodedEvent{}, err
	}
	if err := requireData(data, 128, loc); err != nil {
		return DecodedEvent{}, err
	}
	return DecodedEvent{
		Pool:       pool,
		Sender:     addressFromTopic(topics[1]),
		Recipient:  addressFromTopic(topics[2]),
		Amount0In:  bigAt(data, 0),
		Amount1In:  bigAt(data, 1),
		Amount0Out: bigAt(data, 2),
		Amount1Out: bigAt(data, 3),
	}, nil
}

// Mint(address indexed sender, uint256 amount0, uint256 amount1)
func decodeMintV2(pool common.Address, topics []common.Hash, data []byte, loc Locator) (DecodedEvent, error) {
	if err := requireTopics(topics, 2, loc); err != nil {
		return DecodedEvent{}, err
	}
	if err := requireData(data, 64, loc); err != nil {
		return DecodedEvent{}, err
	}
	return DecodedEvent{
		Pool:    pool,
		Sender:  addressFromTopic(topics[1]),
		Amount0: bigAt(data, 0),
		Amount1: bigAt(data, 1),
	}, nil
}

// Burn(address indexed sender, uint256 amount0, uint256 amount1, address indexed to)
func decodeBurnV2(pool common.Address, topics []common.Hash, data []byte, loc Locator) (DecodedEvent, error) {
	if err := requireTopics(topics, 3, loc); err != nil {
		return DecodedEvent{}, err
	}
	if err := requireData(data, 64, loc); err != nil {
		return DecodedEvent{}, err
	}
	return DecodedEvent{
		Pool:      pool,
		Sender:    addressFromTopic(topics[1]),
		Recipient: addressFromTopic(topics[2]),
		Amount0:   bigAt(data, 0),
		Amount1:   bigAt(data, 1),
	}, nil
}

// Transfer(address indexed from, address indexed to, uint256 value)
func decodeTransfer(token common.Address, topics []common.Hash, data []byte, loc Locator) (DecodedEvent, error) {
	if err := requireTopics(topics, 3, loc); err != nil {
		return DecodedEvent{}, err
	}
	if err := requireData(data, 32, loc); err != nil {
		return DecodedEvent{}, err
	}
	return DecodedEvent{
		Token0:  token,
		From:    addressFromTopic(topics[1]),
		To:      addressFromTopic(topics[2]),
		Amount0: bigAt(data, 0),
	}, nil
}
