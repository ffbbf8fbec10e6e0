package conversations

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toolCall(id string) *schema.Message {
	return schema.AssistantMessage("", []schema.ToolCall{{ID: id, Function: schema.FunctionCall{Name: "get_available_loans", Arguments: "{}"}}})
}

func toolResult(id, content string) *schema.Message {
	return schema.ToolMessage(content, id)
}

func TestTrimHistory_KeepsEverythingWithinBudget(t *testing.T) {
	msgs := []*schema.Message{
		schema.UserMessage("hi"),
		schema.AssistantMessage("hello", nil),
		schema.UserMessage("loans?"),
	}
	out := TrimHistory(msgs, 1024)
	assert.Equal(t, msgs, out)
}

func TestTrimHistory_NeverSplitsToolPairs(t *testing.T) {
	big := strings.Repeat("x", 400)
	msgs := []*schema.Message{
		schema.UserMessage("old question"),
		toolCall("c1"),
		toolResult("c1", big),
		schema.AssistantMessage("old answer", nil),
		schema.UserMessage("new question"),
		toolCall("c2"),
		toolResult("c2", "short"),
	}
	// room for the last three messages plus the tail of the first unit
	budget := ApproxTokens(msgs[4]) + ApproxTokens(msgs[5]) + ApproxTokens(msgs[6]) + ApproxTokens(msgs[3])
	out := TrimHistory(msgs, budget)

	require.NotEmpty(t, out)
	assert.Equal(t, schema.User, out[0].Role)
	assert.Equal(t, "new question", out[0].Content)
	assert.Equal(t, "c2", out[len(out)-1].ToolCallID)

	requested := map[string]bool{}
	for _, m := range out {
		for _, tc := range m.ToolCalls {
			requested[tc.ID] = true
		}
		if m.Role == schema.Tool {
			assert.True(t, requested[m.ToolCallID], "orphan tool result %s", m.ToolCallID)
		}
	}
}

func TestTrimHistory_DropsTrailingAssistant(t *testing.T) {
	msgs := []*schema.Message{
		schema.UserMessage("q"),
		schema.AssistantMessage("a", nil),
	}
	out := TrimHistory(msgs, 1024)
	require.Len(t, out, 1)
	assert.Equal(t, "q", out[0].Content)
}

func TestTrimHistory_OversizedLatestMessageIsKept(t *testing.T) {
	msgs := []*schema.Message{
		schema.UserMessage("earlier"),
		schema.UserMessage(strings.Repeat("y", 10_000)),
	}
	out := TrimHistory(msgs, 50)
	require.Len(t, out, 1)
	assert.Equal(t, msgs[1], out[0])
}

func TestTrimHistory_Empty(t *testing.T) {
	assert.Empty(t, TrimHistory(nil, 10))
	assert.Empty(t, TrimHistory([]*schema.Message{schema.AssistantMessage("x", nil)}, 10))
}

func TestLocker_SerializesSameSession(t *testing.T) {
	l := NewLocker(time.Second)
	ctx := context.Background()

	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !assert.NoError(t, l.Lock(ctx, "s1")) {
				return
			}
			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			l.Unlock("s1")
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxActive)
	assert.False(t, l.IsLocked("s1"))
}

func TestLocker_TimeoutAndIndependentSessions(t *testing.T) {
	l := NewLocker(20 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, l.Lock(ctx, "a"))
	assert.True(t, l.IsLocked("a"))
	assert.NoError(t, l.Lock(ctx, "b"))

	err := l.Lock(ctx, "a")
	assert.True(t, errors.Is(err, ErrLockTimeout))

	other := NewLocker(time.Second)
	require.NoError(t, other.Lock(ctx, "x"))
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, other.Lock(cancelled, "x"), context.Canceled)
	other.Unlock("x")

	l.Unlock("a")
	l.Unlock("b")
	assert.NoError(t, l.Lock(ctx, "a"))
	l.Unlock("a")

	assert.Error(t, l.Lock(ctx, " "))
}
