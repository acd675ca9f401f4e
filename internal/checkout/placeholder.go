package checkout

import (
	"fmt"
	"math/rand/v2"
	"time"
)

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// PlaceholderOrderID synthesizes a local order id: order_<unix millis>_<9 base36 chars>.
// It is not known to the backend.
func PlaceholderOrderID(now time.Time) string {
	var b [9]byte
	for i := range b {
		b[i] = base36[rand.IntN(len(base36))]
	}
	return fmt.Sprintf("order_%d_%s", now.UnixMilli(), b[:])
}
