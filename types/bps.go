package types

import "fmt"

// BPSDenominator is the number of basis points in a whole (100%).
const BPSDenominator = 10000

// BPS is a rate or ratio expressed in basis points (1/10000).
type BPS uint32

// MaxBPS is 100%.
const MaxBPS BPS = BPSDenominator

// String renders the value as a percentage, e.g. BPS(525) == "5.25%".
func (b BPS) String() string {
	whole, frac := b/100, b%100
	if frac == 0 {
		return fmt.Sprintf("%d%%", whole)
	}
	if frac%10 == 0 {
		return fmt.Sprintf("%d.%d%%", whole, frac/10)
	}
	return fmt.Sprintf("%d.%02d%%", whole, frac)
}

// SumBPS adds basis-point values in 64 bits so that out-of-range inputs
// cannot wrap around and pass a sum check.
func SumBPS(values ...BPS) uint64 {
	var total uint64
	for _, v := range values {
		total += uint64(v)
	}
	return total
}
