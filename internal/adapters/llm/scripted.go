package llm

import (
	"context"
	"errors"
	"sync"
)

// Call records one Generate invocation on a ScriptedGenerator.
type Call struct {
	System string
	Prompt string
}

// ScriptedGenerator replays canned responses in order. Used in tests and
// when no model service is configured.
type ScriptedGenerator struct {
	mu        sync.Mutex
	responses []string
	err       error
	calls     []Call
}

func NewScriptedGenerator(responses ...string) *ScriptedGenerator {
	return &ScriptedGenerator{responses: responses}
}

// FailWith makes every subsequent call return err.
func (g *ScriptedGenerator) FailWith(err error) *ScriptedGenerator {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
	return g
}

func (g *ScriptedGenerator) Generate(_ context.Context, system string, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls = append(g.calls, Call{System: system, Prompt: prompt})
	if g.err != nil {
		return "", g.err
	}
	if len(g.responses) == 0 {
		return "", errors.New("scripted generator: no responses left")
	}
	r := g.responses[0]
	g.responses = g.responses[1:]
	return r, nil
}

func (g *ScriptedGenerator) Calls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Call(nil), g.calls...)
}

// Unconfigured is returned for every call when no model service is set up.
var ErrUnconfigured = errors.New("language model service is not configured")

// UnconfiguredGenerator fails every call with ErrUnconfigured.
type UnconfiguredGenerator struct{}

func (UnconfiguredGenerator) Generate(context.Context, string, string) (string, error) {
	return "", ErrUnconfigured
}
