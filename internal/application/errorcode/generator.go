// Package errorcode issues error codes that let an operator match a failed
// request to its log line.
package errorcode

import (
	"fmt"
	"strings"
	"sync"

	"github.com/bryanwahyu/cbomkit/internal/application"
)

// Generator hands out codes of the form ERR-<KIND>-yyyy-MMdd-NNNN. The
// counter starts over every day.
type Generator struct {
	mu      sync.Mutex
	clock   application.Clock
	day     string
	counter int
}

func New(clock application.Clock) *Generator {
	if clock == nil {
		clock = application.SystemClock{}
	}
	return &Generator{clock: clock}
}

func (g *Generator) Next(kind string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	day := g.clock.Now().Format("2006-0102")
	if day != g.day {
		g.day = day
		g.counter = 0
	}
	g.counter++
	return fmt.Sprintf("ERR-%s-%s-%04d", strings.ToUpper(kind), day, g.counter)
}
