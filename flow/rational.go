package flow

import "fmt"

// Rational is a fraction, e.g. sample aspect ratio.
type Rational struct {
	Num int64
	Den int64
}

// Simplify returns the irreducible form of the fraction.
func (r Rational) Simplify() Rational {
	if r.Den == 0 {
		return r
	}
	g := gcd(abs(r.Num), abs(r.Den))
	if g > 1 {
		r.Num /= g
		r.Den /= g
	}
	if r.Den < 0 {
		r.Num, r.Den = -r.Num, -r.Den
	}
	return r
}

func (r Rational) String() string {
	return fmt.Sprintf("%d:%d", r.Num, r.Den)
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
