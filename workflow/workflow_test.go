package workflow

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrun/agent"
	"github.com/hupe1980/agentrun/capability"
	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/engine"
	"github.com/hupe1980/agentrun/provider/mock"
	"github.com/hupe1980/agentrun/thread"
)

// fakeClock fires timers immediately while advancing its reading, so polling
// loops resolve without wall-clock waits.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

type fixture struct {
	provider *mock.Provider
	agents   *agent.Registry
	threads  *thread.InMemoryStore
	engine   *engine.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	caps := capability.NewRegistry()
	agents := agent.NewRegistry(caps)
	provider := mock.NewProvider()
	threads := thread.NewInMemoryStore()

	eng := engine.New(provider, agents, caps, threads, func(o *engine.Options) {
		o.Clock = newFakeClock()
		o.Config = engine.Config{
			PollInterval:    10 * time.Millisecond,
			AwaitTimeout:    time.Minute,
			RetryAttempts:   3,
			RetryBackoff:    time.Millisecond,
			MaxToolParallel: 4,
		}
	})

	return &fixture{provider: provider, agents: agents, threads: threads, engine: eng}
}

func (f *fixture) registerAgent(t *testing.T, cfg core.AgentConfig) string {
	t.Helper()
	id, err := f.agents.Register(cfg)
	require.NoError(t, err)
	return id
}

// lastUserContent extracts the most recent user message, the mock scripts'
// usual input.
func lastUserContent(messages []core.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == core.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}
