package payment

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// tokenClock issues strictly increasing unix millisecond ticks within a process. Tokens also carry a
// suffix of the transaction id so that processes sharing a database do not collide on the same tick.
type tokenClock struct {
	mu   sync.Mutex
	last int64
}

func (c *tokenClock) next(now time.Time) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	tick := now.UnixNano() / int64(time.Millisecond)
	if tick <= c.last {
		tick = c.last + 1
	}
	c.last = tick
	return tick
}

// tokenSuffix returns the last 8 hex digits of a transaction id (random bits of a v7 UUID).
func tokenSuffix(id string) string {
	hex := strings.ReplaceAll(id, "-", "")
	if len(hex) > 8 {
		hex = hex[len(hex)-8:]
	}
	return strings.ToUpper(hex)
}

func paymentReference(tick int64, id string) string {
	return "PAY-" + strconv.FormatInt(tick, 10) + "-" + tokenSuffix(id)
}

func receiptNumber(tick int64, id string) string {
	return "RCP-" + strconv.FormatInt(tick, 10) + "-" + tokenSuffix(id)
}

// newTransactionID returns a time-ordered (v7) UUID.
func newTransactionID() string {
	return uuid.Must(uuid.NewV7()).String()
}
