package order

import (
	"crypto/rand"
	"time"
)

// numberAlphabet avoids ambiguous characters (0/O, 1/I/L) so order numbers
// survive being read over the phone.
const numberAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

const numberSuffixLen = 6

// NewNumber generates a human-readable order number: ORD-YYYYMMDD-XXXXXX
// with a random suffix. A unique index backs it in storage; collisions are
// retried by the caller.
func NewNumber(now time.Time) string {
	buf := make([]byte, numberSuffixLen)
	_, _ = rand.Read(buf)
	for i, b := range buf {
		buf[i] = numberAlphabet[int(b)%len(numberAlphabet)]
	}
	return "ORD-" + now.UTC().Format("20060102") + "-" + string(buf)
}
