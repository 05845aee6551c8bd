package gate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/osa030/vibebox/internal/domain/screen"
)

// stubGate is a configurable gate for chain tests.
type stubGate struct {
	name    string
	verdict Verdict
	calls   int
}

func (s *stubGate) Name() string                        { return s.name }
func (s *stubGate) Description() string                 { return "stub" }
func (s *stubGate) ReturnCodes() []string               { return []string{"stubbed"} }
func (s *stubGate) ValidateConfig(map[string]any) error { return nil }
func (s *stubGate) Check(screen.ChangeEvent, time.Time) Verdict {
	s.calls++
	return s.verdict
}

func TestChain_Execute(t *testing.T) {
	t.Run("All gates pass", func(t *testing.T) {
		chain := NewChain()
		a := &stubGate{name: "a", verdict: Pass()}
		b := &stubGate{name: "b", verdict: Pass()}
		chain.Add(a)
		chain.Add(b)

		verdict := chain.Execute(screen.ChangeEvent{}, time.Now())
		assert.True(t, verdict.Proceed)
		assert.Equal(t, 1, a.calls)
		assert.Equal(t, 1, b.calls)
	})

	t.Run("First hold short-circuits", func(t *testing.T) {
		chain := NewChain()
		a := &stubGate{name: "a", verdict: Hold("stubbed")}
		b := &stubGate{name: "b", verdict: Pass()}
		chain.Add(a)
		chain.Add(b)

		verdict := chain.Execute(screen.ChangeEvent{}, time.Now())
		assert.False(t, verdict.Proceed)
		assert.Equal(t, "stubbed", verdict.Code)
		assert.Equal(t, 0, b.calls, "later gates must not run after a hold")
	})

	t.Run("Empty chain passes", func(t *testing.T) {
		verdict := NewChain().Execute(screen.ChangeEvent{}, time.Now())
		assert.True(t, verdict.Proceed)
	})
}

func TestRegisteredGates(t *testing.T) {
	registered := GetRegistered()
	for _, name := range []string{"threshold_gate", "cooldown_gate"} {
		factory, ok := registered[name]
		assert.True(t, ok, "gate %s should be registered", name)
		if ok {
			assert.Equal(t, name, factory().Name())
		}
	}
}
