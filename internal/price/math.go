// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package price resolves a token's current USD price by walking the pool
// graph from configured stablecoin/native/major-token anchors. The pure
// math here (sqrtPriceX96 <-> price) is adapted from dex/pool_manager.go's
// sqrtPriceX96ToTick/tickToSqrtPriceX96 conversion, generalized from tick
// lookup to a direct decimal-adjusted price computation.
package price

import (
	"math/big"
)

// q96 is 2^96, the fixed-point base for sqrtPriceX96 per spec glossary.
var q96 = new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), 96))

// V2Price returns price as token1 per token0, decimal-adjusted, from raw
// v2 reserves. Returns 0 if either reserve is nil/zero.
func V2Price(reserve0, reserve1 *big.Int, decimals0, decimals1 uint8) float64 {
	if reserve0 == nil || reserve1 == nil || reserve0.Sign() == 0 {
		return 0
	}
	r0 := adjust(reserve0, decimals0)
	r1 := adjust(reserve1, decimals1)
	if r0 == 0 {
		return 0
	}
	return r1 / r0
}

// V3Price returns price as token1 per token0, decimal-adjusted, from a
// sqrtPriceX96 value: price = (sqrtPriceX96 / 2^96)^2, then rescaled by
// 10^(decimals0-decimals1) per spec glossary.
func V3Price(sqrtPriceX96 *big.Int, decimals0, decimals1 uint8) float64 {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() == 0 {
		return 0
	}
	ratio := new(big.Float).Quo(new(big.Float).SetInt(sqrtPriceX96), q96)
	ratio.Mul(ratio, ratio) // (sqrtPriceX96/2^96)^2, token1/token0 in raw units

	scale := new(big.Float).SetFloat64(pow10(int(decimals0) - int(decimals1)))
	ratio.Mul(ratio, scale)

	f, _ := ratio.Float64()
	return f
}

// VirtualReservesV3 approximates the full-range virtual token reserves
// backing a concentrated-liquidity pool at its current price, per the
// standard v3 whitepaper identity reserve0 = L/sqrtP, reserve1 = L*sqrtP.
// This ignores the liquidity's actual tick range and is used only for the
// tvl_usd estimate spec §3/§4.4 calls "a virtualized reserve model", not
// for anything requiring exact on-chain amounts.
func VirtualReservesV3(liquidity, sqrtPriceX96 *big.Int, decimals0, decimals1 uint8) (reserve0, reserve1 float64) {
	if liquidity == nil || liquidity.Sign() == 0 || sqrtPriceX96 == nil || sqrtPriceX96.Sign() == 0 {
		return 0, 0
	}
	l := new(big.Float).SetInt(liquidity)
	sqrtP := new(big.Float).Quo(new(big.Float).SetInt(sqrtPriceX96), q96)

	r0 := new(big.Float).Quo(l, sqrtP)
	r1 := new(big.Float).Mul(l, sqrtP)

	r0f, _ := r0.Float64()
	r1f, _ := r1.Float64()
	return r0f * pow10(-int(decimals0)), r1f * pow10(-int(decimals1))
}

func adjust(raw *big.Int, decimals uint8) float64 {
	f := new(big.Float).SetInt(raw)
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	f.Quo(f, scale)
	out, _ := f.Float64()
	return out
}

func pow10(exp int) float64 {
	result := 1.0
	if exp >= 0 {
		for i := 0; i < exp; i++ {
			result *= 10
		}
		return result
	}
	for i := 0; i < -exp; i++ {
		result /= 10
	}
	return result
}
