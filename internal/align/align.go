// Package align provides the rounding helpers shared by the allocator strategies.
package align

import (
	"math/bits"

	"golang.org/x/exp/constraints"
)

// Word is the alignment, in bytes, of every address handed out by an allocator.
const Word = 8

// Up rounds n up to the next multiple of Word, i.e. ((n+7) & ~7).
func Up[T constraints.Integer](n T) T {
	return (n + Word - 1) &^ (Word - 1)
}

// To rounds n up to a multiple of a, which must be a power of two.
func To[T constraints.Integer](n, a T) T {
	return (n + a - 1) &^ (a - 1)
}

// IsAligned reports whether n is a multiple of Word.
func IsAligned[T constraints.Integer](n T) bool {
	return n&(Word-1) == 0
}

// IsPow2 reports whether n is a positive power of two.
func IsPow2[T constraints.Integer](n T) bool {
	return n > 0 && n&(n-1) == 0
}

// Log2Ceil returns ceil(log2(n)) for n >= 1, and 0 for n <= 1.
func Log2Ceil(n int) int {
	if n <= 1 {
		return 0
	}
	return bits.Len(uint(n - 1))
}
