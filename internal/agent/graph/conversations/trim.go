package conversations

import (
	"math"

	"github.com/cloudwego/eino/schema"
)

const (
	charsPerToken     = 4.0
	extraTokensPerMsg = 3
	DefaultMaxTokens  = 1024
)

// ApproxTokens estimates the token count of one message from its character
// length, tool-call payloads included.
func ApproxTokens(m *schema.Message) int {
	if m == nil {
		return 0
	}
	chars := len(m.Content) + len(m.Role)
	for _, tc := range m.ToolCalls {
		chars += len(tc.ID) + len(tc.Function.Name) + len(tc.Function.Arguments)
	}
	if m.ToolCallID != "" {
		chars += len(m.ToolCallID)
	}
	return int(math.Ceil(float64(chars)/charsPerToken)) + extraTokensPerMsg
}

// TrimHistory keeps the most recent messages that fit maxTokens. The result
// ends on a user or tool message and starts on a user message, so a tool
// result is never kept without the request that produced it. When even the
// latest user message does not fit, everything from that message onwards is
// kept anyway.
func TrimHistory(msgs []*schema.Message, maxTokens int) []*schema.Message {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	end := len(msgs)
	for end > 0 && !endsUnit(msgs[end-1]) {
		end--
	}
	if end == 0 {
		return []*schema.Message{}
	}

	start := end
	used := 0
	for start > 0 {
		cost := ApproxTokens(msgs[start-1])
		if used+cost > maxTokens {
			break
		}
		used += cost
		start--
	}
	for start < end && !isUser(msgs[start]) {
		start++
	}

	if start == end {
		// nothing fits: fall back to the latest user unit
		start = lastUserIndex(msgs[:end])
		if start < 0 {
			return []*schema.Message{}
		}
	}

	out := make([]*schema.Message, end-start)
	copy(out, msgs[start:end])
	return out
}

func lastUserIndex(msgs []*schema.Message) int {
	for i := len(msgs) - 1; i >= 0; i-- {
		if isUser(msgs[i]) {
			return i
		}
	}
	return -1
}

func isUser(m *schema.Message) bool {
	return m != nil && m.Role == schema.User
}

func endsUnit(m *schema.Message) bool {
	return m != nil && (m.Role == schema.User || m.Role == schema.Tool)
}
