/*

Amount helpers shared across the engine. Token amounts are 256-bit unsigned
integers; the all-ones value doubles as the "withdraw everything" sentinel and
as the unlimited allowance.

*/

package types

import "github.com/holiman/uint256"

// MaxAmount returns a fresh copy of the maximum representable amount.
func MaxAmount() *uint256.Int {
	return new(uint256.Int).SetAllOne()
}

// IsMaxAmount reports whether amount is the max sentinel.
func IsMaxAmount(amount *uint256.Int) bool {
	return amount != nil && amount.Eq(new(uint256.Int).SetAllOne())
}

// ZeroAmount returns a fresh zero-valued amount.
func ZeroAmount() *uint256.Int {
	return new(uint256.Int)
}
