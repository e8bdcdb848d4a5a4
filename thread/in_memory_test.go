package thread

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrun/core"
)

func TestInMemoryStore_AppendOrder(t *testing.T) {
	s := NewInMemoryStore()
	id, err := s.Create(nil)
	require.NoError(t, err)

	require.NoError(t, s.Append(id, core.NewUserMessage("first")))
	require.NoError(t, s.Append(id, core.NewAgentMessage("second")))
	require.NoError(t, s.Append(id, core.NewUserMessage("third")))

	messages, err := s.Messages(id)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "first", messages[0].Content)
	assert.Equal(t, "second", messages[1].Content)
	assert.Equal(t, "third", messages[2].Content)
	assert.Equal(t, core.RoleAgent, messages[1].Role)
	assert.False(t, messages[0].CreatedAt.IsZero())
}

func TestInMemoryStore_UnknownThread(t *testing.T) {
	s := NewInMemoryStore()
	assert.ErrorIs(t, s.Append("missing", core.NewUserMessage("x")), core.ErrUnknownThread)
	_, err := s.Messages("missing")
	assert.ErrorIs(t, err, core.ErrUnknownThread)
	_, err = s.Metadata("missing")
	assert.ErrorIs(t, err, core.ErrUnknownThread)
}

func TestInMemoryStore_CopiesOnReadAndWrite(t *testing.T) {
	s := NewInMemoryStore()
	id, err := s.Create(map[string]string{"purpose": "test"})
	require.NoError(t, err)

	msg := core.NewUserMessage("original")
	msg.Metadata = map[string]string{"k": "v"}
	require.NoError(t, s.Append(id, msg))

	// Mutating the caller's message after append must not affect the store.
	msg.Metadata["k"] = "mutated"

	got, err := s.Messages(id)
	require.NoError(t, err)
	assert.Equal(t, "v", got[0].Metadata["k"])

	// Mutating returned copies must not affect the store either.
	got[0].Content = "changed"
	again, err := s.Messages(id)
	require.NoError(t, err)
	assert.Equal(t, "original", again[0].Content)

	meta, err := s.Metadata(id)
	require.NoError(t, err)
	meta["purpose"] = "mutated"
	metaAgain, err := s.Metadata(id)
	require.NoError(t, err)
	assert.Equal(t, "test", metaAgain["purpose"])
}

func TestInMemoryStore_DestroyIdempotent(t *testing.T) {
	s := NewInMemoryStore()
	id, err := s.Create(nil)
	require.NoError(t, err)

	require.NoError(t, s.Destroy(id))
	_, err = s.Messages(id)
	assert.ErrorIs(t, err, core.ErrUnknownThread)
	assert.NoError(t, s.Destroy(id))
}

func TestInMemoryStore_ConcurrentAppends(t *testing.T) {
	s := NewInMemoryStore()
	id, err := s.Create(nil)
	require.NoError(t, err)

	const writers = 16
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			assert.NoError(t, s.Append(id, core.NewUserMessage(fmt.Sprintf("msg-%d", n))))
		}(i)
	}
	wg.Wait()

	messages, err := s.Messages(id)
	require.NoError(t, err)
	assert.Len(t, messages, writers)
}
