package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/neboloop/skiff/internal/agent/ai"
	"github.com/neboloop/skiff/internal/agent/config"
	"github.com/neboloop/skiff/internal/agent/hooks"
	"github.com/neboloop/skiff/internal/agent/session"
	"github.com/neboloop/skiff/internal/logging"
)

const (
	summaryUserChars      = 500
	summaryAssistantChars = 500
	summaryToolChars      = 200
	summaryMaxChars       = 4000

	compactMaxTokens   = 1024
	compactTemperature = 0.3

	// keepTurnMessages approximates the messages in one assistant turn
	keepTurnMessages = 3
)

const compactInstruction = "Summarize the following conversation concisely. " +
	"Preserve key decisions, file paths, code changes, and action items. " +
	"Keep the summary under 2000 chars."

// Compactor replaces the older part of a conversation with a single summary message
type Compactor struct {
	Chain *ai.Chain
	Hooks *hooks.Runner
	// Model is passed through to the summarization request; empty uses each provider's default
	Model string
}

// Compact summarizes messages[1:compact_end) when auto-compaction is enabled and the
// estimate reaches ContextTokens-CompactReserveTokens. It never fails: if the
// summarization call errors, a structural summary is used instead.
func (c *Compactor) Compact(ctx context.Context, messages []session.Message, budget config.BudgetConfig) ([]session.Message, bool) {
	if !budget.AutoCompact {
		return messages, false
	}
	total := EstimateMessages(messages)
	if total < budget.ContextTokens-budget.CompactReserveTokens {
		return messages, false
	}
	return c.compact(ctx, messages, budget, total)
}

// Force compacts regardless of the budget trigger
func (c *Compactor) Force(ctx context.Context, messages []session.Message, budget config.BudgetConfig) ([]session.Message, bool) {
	return c.compact(ctx, messages, budget, EstimateMessages(messages))
}

func (c *Compactor) compact(ctx context.Context, messages []session.Message, budget config.BudgetConfig, total int) ([]session.Message, bool) {
	keepCount := budget.KeepRecent * keepTurnMessages
	if keepCount >= len(messages) {
		return messages, false
	}
	compactEnd := len(messages) - keepCount
	if compactEnd <= 1 {
		return messages, false
	}
	count := compactEnd - 1

	c.Hooks.Run(ctx, hooks.PreCompaction, hooks.Data{
		"message_count": count,
		"total_tokens":  total,
	})

	summary := StructuralSummary(messages, 1, compactEnd)

	var compacted string
	resp, err := c.summarize(ctx, summary)
	if err == nil {
		compacted = fmt.Sprintf("[Compacted: %d messages → LLM summary]\n", count) + resp
	} else {
		logging.Warnf("[Runner] LLM compaction failed, using structural summary: %v", err)
		chars := 0
		for _, m := range messages[1:compactEnd] {
			chars += len(m.Content)
		}
		compacted = fmt.Sprintf("[Compacted conversation summary (%d messages, ~%d tokens)]\n", count, chars/CharsPerTokenEstimate) + summary
	}

	out := make([]session.Message, 0, 2+keepCount)
	out = append(out, messages[0])
	out = append(out, session.Message{Role: session.RoleUser, Content: compacted})
	out = append(out, messages[compactEnd:]...)

	logging.Infof("[Runner] Compacted %d messages (~%d tokens → ~%d tokens)", count, total, EstimateMessages(out))
	c.Hooks.Fire(ctx, hooks.PostCompaction, hooks.Data{"compacted_size": len(compacted)})
	return out, true
}

func (c *Compactor) summarize(ctx context.Context, summary string) (string, error) {
	if c.Chain == nil {
		return "", errors.New("no provider chain")
	}
	resp, err := c.Chain.Chat(ctx, &ai.ChatRequest{
		Messages: []session.Message{
			{Role: session.RoleSystem, Content: compactInstruction},
			{Role: session.RoleUser, Content: summary},
		},
		Model:       c.Model,
		MaxTokens:   compactMaxTokens,
		Temperature: compactTemperature,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// StructuralSummary renders messages[start:end) as one labelled line per message
func StructuralSummary(messages []session.Message, start, end int) string {
	var sb strings.Builder
	for _, m := range messages[start:end] {
		switch m.Role {
		case session.RoleUser:
			sb.WriteString("User: " + clip(m.Content, summaryUserChars) + "\n")
		case session.RoleAssistant:
			sb.WriteString("Assistant: " + clip(m.Content, summaryAssistantChars))
			if len(m.ToolCalls) > 0 {
				names := make([]string, len(m.ToolCalls))
				for i, tc := range m.ToolCalls {
					names[i] = tc.Name
				}
				sb.WriteString(" [called tools: " + strings.Join(names, ", ") + "]")
			}
			sb.WriteString("\n")
		case session.RoleTool:
			sb.WriteString("Tool result: " + clip(m.Content, summaryToolChars) + "\n")
		}
	}

	text := sb.String()
	if len(text) > summaryMaxChars {
		text = text[:runeStart(text, summaryMaxChars)] + "\n...[summary truncated]\n"
	}
	return text
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:runeStart(s, n)]
}
