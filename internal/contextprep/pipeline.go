package contextprep

import (
	"fmt"
	"strings"

	"github.com/slashbot/slashbot/pkg/models"
)

// clearedPlaceholder replaces tool-result bodies under hard-clear pressure.
const clearedPlaceholder = "[tool result cleared to free context]"

// toolResultPrefixes mark bodies that look machine-generated.
var toolResultPrefixes = []string{"{", "[", "ERROR [", "OK (", "```"}

// LikelyToolResult is the stock classifier: long bodies or bodies starting
// like structured output.
func LikelyToolResult(msg models.Message) bool {
	text := msg.Content.ToText()
	if len(text) > 2000 {
		return true
	}
	for _, prefix := range toolResultPrefixes {
		if strings.HasPrefix(text, prefix) {
			return true
		}
	}
	return false
}

// Result is the pipeline outcome: the prepared messages plus flags
// recording what the stages did. Pruned means the prune stage rewrote
// message content; Trimmed means messages were dropped or truncated to
// fit the turn limit or the token budget. An already-fitting input
// passes through with both flags false.
type Result struct {
	Messages []models.Message
	Pruned   bool
	Trimmed  bool
}

// Prepare runs the four pipeline stages over the history and returns the
// messages to send. The input slice is never mutated.
func Prepare(msgs []models.Message, cfg PipelineConfig) Result {
	work := make([]models.Message, len(msgs))
	copy(work, msgs)

	work, turnsDropped := limitHistoryTurns(work, cfg.MaxHistoryTurns)
	work, pruned := prune(work, cfg)
	work, fitted := fitTokens(work, cfg)
	work = sanitize(work, cfg.ProviderID)

	return Result{Messages: work, Pruned: pruned, Trimmed: turnsDropped || fitted}
}

// limitHistoryTurns keeps all system messages plus the most recent
// maxTurns user turns together with every intervening non-system message.
// The second return reports whether anything was dropped.
func limitHistoryTurns(msgs []models.Message, maxTurns int) ([]models.Message, bool) {
	if maxTurns <= 0 {
		return msgs, false
	}

	// Find the index of the oldest user message still inside the window.
	cutoff := 0
	seen := 0
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == models.RoleUser {
			seen++
			if seen == maxTurns {
				cutoff = i
				break
			}
		}
	}
	if seen < maxTurns {
		return msgs, false
	}

	out := msgs[:0]
	for i, m := range msgs {
		if m.Role == models.RoleSystem || i >= cutoff {
			out = append(out, m)
		}
	}
	return out, len(out) != len(msgs)
}

// prune shrinks likely tool results once usage crosses the soft-trim
// threshold. The most recent assistant messages are protected. The second
// return reports whether any content was rewritten.
func prune(msgs []models.Message, cfg PipelineConfig) ([]models.Message, bool) {
	budget := Budget(cfg.ContextLimit, cfg.ReserveTokens)
	ratio := float64(TotalTokens(msgs)) / float64(budget)
	if ratio < cfg.SoftTrimThreshold {
		return msgs, false
	}

	protected := make(map[int]bool)
	remaining := cfg.ProtectedRecentMessages
	for i := len(msgs) - 1; i >= 0 && remaining > 0; i-- {
		if msgs[i].Role == models.RoleAssistant {
			protected[i] = true
			remaining--
		}
	}

	changed := false
	classify := cfg.classifier()
	for i, m := range msgs {
		if m.Role == models.RoleSystem || protected[i] || !classify(m) {
			continue
		}
		text := m.Content.ToText()
		switch {
		case ratio >= cfg.HardClearThreshold:
			msgs[i].Content = models.Text(clearedPlaceholder)
			changed = true
		case len(text) > cfg.SoftTrimMinChars:
			msgs[i].Content = models.Text(softTrim(text, cfg.SoftTrimKeepChars))
			changed = true
		}
	}
	return msgs, changed
}

// softTrim keeps the head and tail of a body around an elision marker.
func softTrim(text string, keep int) string {
	if keep*2 >= len(text) {
		return text
	}
	elided := len(text) - 2*keep
	return text[:keep] +
		fmt.Sprintf("\n\n[... %d characters elided ...]\n\n", elided) +
		text[len(text)-keep:]
}

// fitTokens enforces the hard token budget: system content capped at half
// the budget, then conversation filled greedily from the end. The second
// return reports whether anything was dropped or truncated.
func fitTokens(msgs []models.Message, cfg PipelineConfig) ([]models.Message, bool) {
	budget := Budget(cfg.ContextLimit, cfg.ReserveTokens)
	if TotalTokens(msgs) <= budget {
		return msgs, false
	}

	keep := make(map[int]bool)
	systemBudget := budget / 2
	systemUsed := 0
	truncated := false

	for i, m := range msgs {
		if m.Role != models.RoleSystem {
			continue
		}
		cost := EstimateTokens(m)
		if systemUsed+cost <= systemBudget {
			keep[i] = true
			systemUsed += cost
			continue
		}
		// First overflowing system message is truncated to fit; the rest
		// are dropped.
		if trimmed, ok := truncateToTokens(m, systemBudget-systemUsed); ok {
			msgs[i] = trimmed
			keep[i] = true
			systemUsed = systemBudget
			truncated = true
		}
		break
	}

	conversationBudget := budget - systemUsed
	used := 0
	kept := 0
	var lastConversation = -1
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == models.RoleSystem {
			continue
		}
		if lastConversation < 0 {
			lastConversation = i
		}
		cost := EstimateTokens(msgs[i])
		if used+cost > conversationBudget {
			break
		}
		keep[i] = true
		used += cost
		kept++
	}
	// Never send a system-only request.
	if kept == 0 && lastConversation >= 0 {
		keep[lastConversation] = true
	}

	out := msgs[:0]
	for i, m := range msgs {
		if keep[i] {
			out = append(out, m)
		}
	}
	return out, truncated || len(out) != len(msgs)
}

// truncateToTokens character-truncates a message to a token allowance,
// appending a marker. Reports false when the allowance is too small to
// keep anything meaningful.
func truncateToTokens(m models.Message, allowance int) (models.Message, bool) {
	const marker = "\n[... truncated ...]"
	maxChars := (allowance - perMessageOverhead) * 4
	if maxChars <= len(marker) {
		return m, false
	}
	text := m.Content.ToText()
	if len(text) <= maxChars {
		return m, true
	}
	m.Content = models.Text(text[:maxChars-len(marker)] + marker)
	return m, true
}

// sanitize drops empty non-system messages and, for Google models, folds
// consecutive same-role messages into one (their API requires strictly
// alternating turns).
func sanitize(msgs []models.Message, providerID string) []models.Message {
	out := msgs[:0]
	for _, m := range msgs {
		if m.Role != models.RoleSystem && m.Content.Length() == 0 {
			continue
		}
		out = append(out, m)
	}

	if providerID != "google" {
		return out
	}

	folded := out[:0:len(out)]
	for _, m := range out {
		n := len(folded)
		if n > 0 && m.Role != models.RoleSystem && folded[n-1].Role == m.Role {
			folded[n-1].Content = models.Text(folded[n-1].Content.ToText() + "\n\n" + m.Content.ToText())
			continue
		}
		folded = append(folded, m)
	}
	return folded
}
