// Package snowflake generates the temporary ids carried by optimistic
// messages until the backend acknowledges them.
package snowflake

import (
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/benbjohnson/clock"
)

const (
	nodeBits        = 10
	stepBits        = 12
	nodeMax         = -1 ^ (-1 << nodeBits)
	stepMask        = -1 ^ (-1 << stepBits)
	timeShift       = nodeBits + stepBits
	nodeShift       = stepBits
	epoch     int64 = 1704067200000 // 2024-01-01 00:00:00 UTC

	// TempPrefix marks ids that were never confirmed by the backend.
	TempPrefix = "temp-"
)

var ErrNodeRange = errors.New("node number must be between 0 and 1023")

// Generator hands out ids that are unique for one client process and
// increase with time, so two sends in the same millisecond never collide.
type Generator struct {
	mu    sync.Mutex
	clock clock.Clock
	last  int64
	node  int64
	step  int64
}

func NewGenerator(node int64, c clock.Clock) (*Generator, error) {
	if node < 0 || node > nodeMax {
		return nil, ErrNodeRange
	}
	if c == nil {
		c = clock.New()
	}
	return &Generator{clock: c, node: node}, nil
}

// Next returns the next raw id.
func (g *Generator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now().UnixMilli()
	if now < g.last {
		// Clock went backwards: keep issuing from the last seen millisecond.
		now = g.last
	}

	if now == g.last {
		g.step = (g.step + 1) & stepMask
		if g.step == 0 {
			// Step space exhausted for this millisecond; borrow the next one
			// rather than spinning on the clock.
			now = g.last + 1
		}
	} else {
		g.step = 0
	}
	g.last = now

	return ((now - epoch) << timeShift) | (g.node << nodeShift) | g.step
}

// TempID returns a fresh temporary message id such as "temp-1234".
func (g *Generator) TempID() string {
	return TempPrefix + strconv.FormatInt(g.Next(), 10)
}

// IsTemp reports whether id was produced by TempID.
func IsTemp(id string) bool {
	return strings.HasPrefix(id, TempPrefix)
}
