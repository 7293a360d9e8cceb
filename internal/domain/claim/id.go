package claim

import (
	"crypto/rand"
	"fmt"
	"io"
	"time"
)

const idAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// IDGenerator issues claim ids of the form CLM-yyyyMMdd-XXXX where XXXX is
// four uppercase base-36 characters. Both the random source and the clock are
// injectable.
type IDGenerator struct {
	rand io.Reader
	now  func() time.Time
}

// NewIDGenerator returns a generator reading from r and stamping with now.
// Nil arguments fall back to crypto/rand and time.Now.
func NewIDGenerator(r io.Reader, now func() time.Time) *IDGenerator {
	if r == nil {
		r = rand.Reader
	}
	if now == nil {
		now = time.Now
	}
	return &IDGenerator{rand: r, now: now}
}

func (g *IDGenerator) Next() (string, error) {
	suffix := make([]byte, 0, 4)
	buf := make([]byte, 1)
	for len(suffix) < 4 {
		if _, err := io.ReadFull(g.rand, buf); err != nil {
			return "", fmt.Errorf("generate claim id: %w", err)
		}
		// Reject the top of the byte range so every character is equally likely.
		if buf[0] >= 252 {
			continue
		}
		suffix = append(suffix, idAlphabet[buf[0]%36])
	}
	return fmt.Sprintf("CLM-%s-%s", g.now().Format("20060102"), suffix), nil
}
