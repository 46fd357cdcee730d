package refid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// New returns a business reference such as "INV-20260901-1a2b3c4d". These
// label sales/purchases/transfers on receipts; entity identifiers are the
// repository's numeric ids.
func New(prefix string) string {
	day := time.Now().UTC().Format("20060102")
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%s-%d", prefix, day, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%s-%s", prefix, day, hex.EncodeToString(buf))
}

func Invoice() string  { return New("INV") }
func Purchase() string { return New("PUR") }
func Transfer() string { return New("TRF") }
