// Package shortcode turns a seed string into a base-62 short code.
//
// A code is derived from the md5 digest of the seed concatenated with a
// nanosecond timestamp, so repeated calls with the same seed yield different
// codes. The digest is read as an unsigned 128-bit integer, expanded into
// base 62 most-significant digit first, and truncated to the requested length.
// Truncation never pads: when the expansion is shorter than the requested
// length the code is shorter too, and callers must check the result.
package shortcode

import (
	"crypto/md5"
	"math/big"
	"strconv"
	"time"
)

// Alphabet is the ordered digit set: digits, lowercase, uppercase.
const Alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

var (
	base = big.NewInt(int64(len(Alphabet)))

	index = func() [256]bool {
		var set [256]bool
		for i := 0; i < len(Alphabet); i++ {
			set[Alphabet[i]] = true
		}
		return set
	}()
)

// Generator produces codes using its clock.
type Generator struct {
	now func() time.Time
}

// New returns a Generator reading the wall clock.
func New() *Generator {
	return &Generator{now: time.Now}
}

// NewWithClock returns a Generator with a caller-supplied clock.
func NewWithClock(now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{now: now}
}

var defaultGenerator = New()

// Generate hashes seed with the current time and returns at most length characters.
func Generate(seed string, length int) string {
	return defaultGenerator.Generate(seed, length)
}

// Generate hashes seed with the generator's clock and returns at most length characters.
func (g *Generator) Generate(seed string, length int) string {
	stamp := strconv.FormatInt(g.now().UnixNano(), 10)
	sum := md5.Sum([]byte(seed + stamp))
	return truncate(Encode(sum[:]), length)
}

// Encode renders digest as a big-endian unsigned integer in base 62.
// A zero value encodes as a single Alphabet[0].
func Encode(digest []byte) string {
	value := new(big.Int).SetBytes(digest)
	if value.Sign() == 0 {
		return Alphabet[:1]
	}

	digits := make([]byte, 0, 22)
	rem := new(big.Int)
	for value.Sign() > 0 {
		value.QuoRem(value, base, rem)
		digits = append(digits, Alphabet[rem.Int64()])
	}

	for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
		digits[i], digits[j] = digits[j], digits[i]
	}
	return string(digits)
}

// Valid reports whether code is non-empty and drawn only from Alphabet.
func Valid(code string) bool {
	if code == "" {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !index[code[i]] {
			return false
		}
	}
	return true
}

func truncate(code string, length int) string {
	if length <= 0 || len(code) <= length {
		return code
	}
	return code[:length]
}
