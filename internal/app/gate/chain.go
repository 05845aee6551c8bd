package gate

import (
	"time"

	"github.com/osa030/vibebox/internal/domain/screen"
)

// Chain executes gates in sequence.
type Chain struct {
	gates []Gate
}

// NewChain creates a new gate chain.
func NewChain() *Chain {
	return &Chain{
		gates: make([]Gate, 0),
	}
}

// Add adds a gate to the chain.
func (c *Chain) Add(g Gate) {
	c.gates = append(c.gates, g)
}

// Execute runs all gates in sequence.
// Returns immediately when any gate holds the change back.
func (c *Chain) Execute(ev screen.ChangeEvent, now time.Time) Verdict {
	for _, g := range c.gates {
		verdict := g.Check(ev, now)
		if !verdict.Proceed {
			return verdict
		}
	}
	return Pass()
}

// Gates returns all gates in the chain.
func (c *Chain) Gates() []Gate {
	return c.gates
}
