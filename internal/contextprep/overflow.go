package contextprep

import (
	"context"
	"fmt"
	"strings"

	"github.com/slashbot/slashbot/pkg/models"
)

// Recovery strategy names reported to the retry callback.
const (
	StrategyAggressiveTrim   = "aggressive-trim"
	StrategyTruncateOversize = "truncate-oversized"
	StrategyMinimalContext   = "minimal-context"
)

// Oversize bounds for the truncate-oversized strategy.
const (
	oversizeThreshold = 8000
	oversizeKeep      = 4000
)

// minimalRecentMessages is what the last-resort strategy keeps besides
// system messages.
const minimalRecentMessages = 4

// overflowPatterns are matched as lowercase substrings of the error text.
var overflowPatterns = []string{
	"request too large",
	"context length exceeded",
	"maximum context length",
	"prompt is too long",
	"exceeds model context window",
	"context overflow",
}

// IsOverflowError reports whether an error looks like a context-window
// overflow. HTTP 413 counts only when the text also mentions being too
// large.
func IsOverflowError(err error) bool {
	if err == nil {
		return false
	}
	text := strings.ToLower(err.Error())
	for _, p := range overflowPatterns {
		if strings.Contains(text, p) {
			return true
		}
	}
	return strings.Contains(text, "413") && strings.Contains(text, "too large")
}

// ExhaustedError surfaces after every recovery attempt still overflowed.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: %d attempts, last error: %v", models.ErrCodeOverflowExhausted, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// RetryCallback observes each retry before it fires.
type RetryCallback func(attempt int, strategy string)

// CallFunc performs one model call over prepared messages.
type CallFunc func(ctx context.Context, msgs []models.Message) error

// WithOverflowRecovery wraps a model call in the recovery ladder:
// caller-prepared messages first, then an aggressive re-prepare, then
// oversize truncation, then a minimal system-plus-recent context. Only
// overflow-shaped errors trigger the next rung; anything else propagates.
func WithOverflowRecovery(ctx context.Context, cfg PipelineConfig, msgs []models.Message, onRetry RetryCallback, call CallFunc) error {
	attempts := []struct {
		strategy string
		shape    func([]models.Message) []models.Message
	}{
		{"", func(m []models.Message) []models.Message { return m }},
		{StrategyAggressiveTrim, func(m []models.Message) []models.Message {
			tighter := cfg
			tighter.ReserveTokens = cfg.ReserveTokens + cfg.ContextLimit/4
			return Prepare(m, tighter).Messages
		}},
		{StrategyTruncateOversize, truncateOversized},
		{StrategyMinimalContext, minimalContext},
	}

	var last error
	for attempt, a := range attempts {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if a.strategy != "" && onRetry != nil {
			onRetry(attempt, a.strategy)
		}

		err := call(ctx, a.shape(msgs))
		if err == nil {
			return nil
		}
		if !IsOverflowError(err) {
			return err
		}
		last = err
	}
	return &ExhaustedError{Attempts: len(attempts), Last: last}
}

// truncateOversized caps every non-system body over the oversize
// threshold at its leading chunk plus a marker.
func truncateOversized(msgs []models.Message) []models.Message {
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	for i, m := range out {
		if m.Role == models.RoleSystem {
			continue
		}
		text := m.Content.ToText()
		if len(text) > oversizeThreshold {
			out[i].Content = models.Text(
				text[:oversizeKeep] + fmt.Sprintf("\n\n[... truncated %d characters ...]", len(text)-oversizeKeep))
		}
	}
	return out
}

// minimalContext keeps all system messages plus the last few non-system
// messages.
func minimalContext(msgs []models.Message) []models.Message {
	keepFrom := len(msgs)
	seen := 0
	for i := len(msgs) - 1; i >= 0 && seen < minimalRecentMessages; i-- {
		if msgs[i].Role != models.RoleSystem {
			keepFrom = i
			seen++
		}
	}

	var out []models.Message
	for i, m := range msgs {
		if m.Role == models.RoleSystem || i >= keepFrom {
			out = append(out, m)
		}
	}
	return out
}
