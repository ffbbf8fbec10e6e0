package prompts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/graph/parsers"
)

//go:embed template/moderation_prompt.txt
var moderationSystemPrompt string

// RenderModeration builds the classifier prompt for one user message. The
// message is passed through a placeholder so its text is never treated as
// template syntax.
func RenderModeration(ctx context.Context, text string) ([]*schema.Message, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(moderationSystemPrompt),
		schema.MessagesPlaceholder("input", false),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"Schema": parsers.DetectionsSchema(),
		"input":  []*schema.Message{schema.UserMessage(text)},
	})
	if err != nil {
		return nil, fmt.Errorf("moderation prompt render: %w", err)
	}
	if len(msgs) != 2 {
		return nil, fmt.Errorf("moderation prompt render: unexpected message count %d", len(msgs))
	}
	return msgs, nil
}
