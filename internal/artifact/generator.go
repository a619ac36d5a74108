package artifact

import (
	"crypto/rand"
	"math/big"
)

// Generator produces a random code.
type Generator func() string

const (
	digits       = "0123456789"
	alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// NumericCode returns a generator for fixed-width random digit strings,
// e.g. NumericCode(5) for 5-digit OTPs.
func NumericCode(width int) Generator {
	return func() string { return randomString(digits, width) }
}

// AlphanumericCode returns a generator for fixed-length uppercase
// alphanumeric strings, e.g. AlphanumericCode(6) for coupon codes.
func AlphanumericCode(length int) Generator {
	return func() string { return randomString(alphanumeric, length) }
}

func randomString(alphabet string, n int) string {
	out := make([]byte, n)
	max := big.NewInt(int64(len(alphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails when the OS entropy source is broken.
			panic(err)
		}
		out[i] = alphabet[idx.Int64()]
	}
	return string(out)
}
