package runner

import (
	"fmt"

	"github.com/neboloop/skiff/internal/agent/config"
	"github.com/neboloop/skiff/internal/agent/session"
	"github.com/neboloop/skiff/internal/logging"
)

const (
	// softTrimSlack is how far past head+tail a tool result may run before soft-trimming
	softTrimSlack = 100
	// hardClearMinChars leaves short tool results alone in the hard phase
	hardClearMinChars = 100
)

// Prune shrinks old tool results in place so the buffer fits the budget.
//
// Two phases, applied only to tool messages older than the last KeepRecent
// assistant turns:
//  1. Soft trim: keep head + tail of oversized results until under SoftRatio
//  2. Hard clear: replace results with a size placeholder when still over HardRatio
//
// The returned slice is messages itself.
func Prune(messages []session.Message, budget config.BudgetConfig) []session.Message {
	softThreshold := int(float64(budget.ContextTokens) * budget.SoftRatio)
	hardThreshold := int(float64(budget.ContextTokens) * budget.HardRatio)

	total := EstimateMessages(messages)
	if total < softThreshold {
		return messages
	}

	protectFrom := protectedFrom(messages, budget.KeepRecent)

	trimmed := 0
	limit := budget.HeadChars + budget.TailChars
	for i := 0; i < protectFrom; i++ {
		if messages[i].Role != session.RoleTool || len(messages[i].Content) <= limit+softTrimSlack {
			continue
		}
		before := EstimateMessage(messages[i])
		messages[i].Content = TruncateAtBoundary(messages[i].Content, limit, budget.HeadChars, budget.TailChars)
		total -= before - EstimateMessage(messages[i])
		trimmed++
		if total < softThreshold {
			logging.Debugf("[Runner] Soft-trimmed %d tool results (~%d tokens, soft limit %d)", trimmed, total, softThreshold)
			return messages
		}
	}
	if trimmed > 0 {
		logging.Debugf("[Runner] Soft-trimmed %d tool results (~%d tokens, soft limit %d)", trimmed, total, softThreshold)
	}

	if total < hardThreshold {
		return messages
	}

	cleared := 0
	for i := 0; i < protectFrom; i++ {
		if messages[i].Role != session.RoleTool || len(messages[i].Content) <= hardClearMinChars {
			continue
		}
		messages[i].Content = fmt.Sprintf("[tool result cleared: %d chars]", len(messages[i].Content))
		cleared++
	}
	if cleared > 0 {
		logging.Infof("[Runner] Hard-cleared %d old tool results (~%d tokens, hard limit %d)", cleared, EstimateMessages(messages), hardThreshold)
	}
	return messages
}

// protectedFrom returns the index of the keepRecent-th assistant message from the end.
// Everything at or after it is left untouched. Fewer assistant turns protect nothing.
func protectedFrom(messages []session.Message, keepRecent int) int {
	count := 0
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != session.RoleAssistant {
			continue
		}
		count++
		if count >= keepRecent {
			return i
		}
	}
	return len(messages)
}

// RepairToolPairing drops tool results without a matching call, then tool calls
// without a matching result. Applying it twice is the same as applying it once.
func RepairToolPairing(messages []session.Message) []session.Message {
	callIDs := make(map[string]bool)
	for _, m := range messages {
		if m.Role != session.RoleAssistant {
			continue
		}
		for _, tc := range m.ToolCalls {
			if tc.ID != "" {
				callIDs[tc.ID] = true
			}
		}
	}

	out := messages[:0]
	dropped := 0
	for _, m := range messages {
		if m.Role == session.RoleTool && m.ToolCallID != "" && !callIDs[m.ToolCallID] {
			dropped++
			continue
		}
		out = append(out, m)
	}

	resultIDs := make(map[string]bool)
	for _, m := range out {
		if m.Role == session.RoleTool && m.ToolCallID != "" {
			resultIDs[m.ToolCallID] = true
		}
	}

	for i := range out {
		if out[i].Role != session.RoleAssistant || len(out[i].ToolCalls) == 0 {
			continue
		}
		var kept []session.ToolCall
		for _, tc := range out[i].ToolCalls {
			if tc.ID != "" && !resultIDs[tc.ID] {
				dropped++
				continue
			}
			kept = append(kept, tc)
		}
		if len(kept) != len(out[i].ToolCalls) {
			out[i].ToolCalls = kept
		}
	}

	if dropped > 0 {
		logging.Debugf("[Runner] Repaired tool pairing: dropped %d orphaned entries", dropped)
	}
	return out
}
