// Package reference produces the public-facing identifiers stamped on
// every ledger record: a YYYYMM prefix followed by a fixed-width random
// digit suffix, e.g. "20260812345678". The suffix is wide enough that
// collisions within a month are vanishingly rare, but the database still
// enforces uniqueness, so callers retry on a collision rather than
// trusting the odds.
package reference

import (
	"crypto/rand"
	"math/big"
	"time"
)

const suffixDigits = 8

// Generator produces reference numbers. The zero value is not usable;
// construct with New.
type Generator struct {
	now func() time.Time
}

func New() *Generator {
	return &Generator{now: time.Now}
}

// NewWithClock is for tests that need a fixed time bucket.
func NewWithClock(now func() time.Time) *Generator {
	return &Generator{now: now}
}

// Generate returns a new reference number. Uniqueness is probabilistic;
// the store's unique constraint is the hard guarantee.
func (g *Generator) Generate() string {
	prefix := g.now().Format("200601")

	bound := big.NewInt(1)
	for i := 0; i < suffixDigits; i++ {
		bound.Mul(bound, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		// crypto/rand only fails if the OS entropy source is broken;
		// fall back to the clock rather than returning an error to
		// every ledger operation.
		n = big.NewInt(g.now().UnixNano() % 100000000)
	}

	suffix := n.String()
	for len(suffix) < suffixDigits {
		suffix = "0" + suffix
	}
	return prefix + suffix
}
