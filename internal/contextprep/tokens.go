package contextprep

import "github.com/slashbot/slashbot/pkg/models"

// perMessageOverhead approximates role and framing tokens per message.
const perMessageOverhead = 4

// minBudget is the floor on the usable token budget.
const minBudget = 1000

// EstimateTokens approximates one message's token cost: ceil(chars/4)
// plus a fixed per-message overhead.
func EstimateTokens(msg models.Message) int {
	chars := msg.Content.Length()
	return (chars+3)/4 + perMessageOverhead
}

// TotalTokens sums the estimated cost of all messages.
func TotalTokens(msgs []models.Message) int {
	total := 0
	for _, m := range msgs {
		total += EstimateTokens(m)
	}
	return total
}

// Budget returns the usable token budget: contextLimit minus the reserve,
// floored at minBudget.
func Budget(contextLimit, reserveTokens int) int {
	b := contextLimit - reserveTokens
	if b < minBudget {
		return minBudget
	}
	return b
}
