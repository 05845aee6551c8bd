// Package decision combines change classification and gating into a
// per-tick switch decision.
package decision

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/vibebox/internal/app/gate"
	"github.com/osa030/vibebox/internal/domain/screen"
)

var decisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "vibebox",
		Name:      "decisions_total",
		Help:      "Total per-tick switch decisions by action",
	},
	[]string{"action"},
)

// Action represents the per-tick outcome.
type Action string

const (
	ActionContinue       Action = "continue"
	ActionSwitchWithFade Action = "switch_with_fade"
)

// Decision is the result of combining a change event with the gate chain.
type Decision struct {
	Action   Action
	Change   screen.ChangeEvent
	Current  *screen.Summary // Analyzed description of the new context, if available
	Previous *screen.Summary // Description of the context being left, if any
	Code     string          // Gate code when the action is continue
	At       time.Time
}

// Engine evaluates one decision per sampling tick. It holds no state of its
// own across ticks; the cooldown gate is the only stateful collaborator.
type Engine struct {
	chain    *gate.Chain
	cooldown *gate.CooldownGate
}

// NewEngine creates a decision engine over the given chain. cooldown may be
// nil when the chain carries no cooldown gate.
func NewEngine(chain *gate.Chain, cooldown *gate.CooldownGate) *Engine {
	return &Engine{chain: chain, cooldown: cooldown}
}

// Evaluate produces the decision for one sampling tick. An accepted switch is
// recorded with the cooldown gate exactly once, here. A change held back by a
// gate is not queued; the next tick re-evaluates independently.
//
// A change below the threshold is a continue regardless of the chain; the
// gates are only consulted, and the cooldown only recorded, for significant
// changes.
func (e *Engine) Evaluate(now time.Time, ev screen.ChangeEvent, current, previous *screen.Summary) Decision {
	if !ev.Exceeds {
		decisionsTotal.WithLabelValues(string(ActionContinue)).Inc()
		return Decision{
			Action:   ActionContinue,
			Change:   ev,
			Current:  current,
			Previous: previous,
			Code:     "below_threshold",
			At:       now,
		}
	}

	verdict := e.chain.Execute(ev, now)
	if !verdict.Proceed {
		decisionsTotal.WithLabelValues(string(ActionContinue)).Inc()
		return Decision{
			Action:   ActionContinue,
			Change:   ev,
			Current:  current,
			Previous: previous,
			Code:     verdict.Code,
			At:       now,
		}
	}

	if e.cooldown != nil {
		e.cooldown.RecordSwitch(now)
	}

	zlog.Info().Msgf("switch decision: distance=%.3f previous_tag=%s", ev.Distance, tagOf(previous))
	decisionsTotal.WithLabelValues(string(ActionSwitchWithFade)).Inc()
	return Decision{
		Action:   ActionSwitchWithFade,
		Change:   ev,
		Current:  current,
		Previous: previous,
		At:       now,
	}
}

func tagOf(s *screen.Summary) string {
	if s == nil {
		return ""
	}
	return s.Tag
}
