// Package shuffle provides an unbiased permutation over a cryptographically secure source.
package shuffle

import (
	"crypto/rand"
	"math/big"
)

// Source yields uniform integers in [0, n). Implementations must be cryptographically secure.
type Source interface {
	Intn(n int) int
}

type cryptoSource struct{}

func (cryptoSource) Intn(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		// crypto/rand.Reader does not fail on supported platforms
		panic("shuffle: secure random source failed: " + err.Error())
	}
	return int(v.Int64())
}

// Secure is the default process-wide source backed by crypto/rand.
var Secure Source = cryptoSource{}

// Shuffle returns a uniformly random permutation of items. The input is not modified.
func Shuffle[T any](items []T) []T {
	return ShuffleWith(Secure, items)
}

// ShuffleWith is Shuffle drawing from src.
func ShuffleWith[T any](src Source, items []T) []T {
	out := make([]T, len(items))
	copy(out, items)

	for i := len(out) - 1; i > 0; i-- {
		j := src.Intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}

	return out
}
