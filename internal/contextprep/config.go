// Package contextprep shapes conversation history so the next model call
// fits its context budget while preserving the most recent work. It also
// carries the overflow-recovery retry ladder and tool-result truncation.
package contextprep

import "github.com/slashbot/slashbot/pkg/models"

// Classifier decides whether a message body looks like a tool result and
// is therefore fair game for pruning. LikelyToolResult is the default; a
// richer signal may be injected.
type Classifier func(msg models.Message) bool

// PipelineConfig holds every knob of the preparation pipeline. All fields
// are explicit; DefaultConfig supplies the stock values for a context
// window.
type PipelineConfig struct {
	// ContextLimit is the model's context window in tokens.
	ContextLimit int

	// ReserveTokens is held back from the window for the reply.
	ReserveTokens int

	// Tool-result truncation bounds.
	ToolResultMaxContextShare float64
	ToolResultHardMax         int
	ToolResultMinKeep         int

	// Prune-stage thresholds over usageRatio.
	SoftTrimThreshold  float64
	HardClearThreshold float64
	SoftTrimMinChars   int
	SoftTrimKeepChars  int

	// ProtectedRecentMessages shields the last N assistant messages from
	// pruning.
	ProtectedRecentMessages int

	// MaxHistoryTurns bounds user turns kept; 0 means unlimited.
	MaxHistoryTurns int

	// ProviderID switches on provider-specific sanitize behavior.
	ProviderID string

	// Classify overrides the likely-tool-result heuristic when non-nil.
	Classify Classifier
}

// DefaultConfig returns the stock pipeline settings for a context window.
func DefaultConfig(contextLimit int) PipelineConfig {
	return PipelineConfig{
		ContextLimit:              contextLimit,
		ReserveTokens:             2000,
		ToolResultMaxContextShare: 0.25,
		ToolResultHardMax:         30000,
		ToolResultMinKeep:         1000,
		SoftTrimThreshold:         0.7,
		HardClearThreshold:        0.9,
		SoftTrimMinChars:          1500,
		SoftTrimKeepChars:         400,
		ProtectedRecentMessages:   4,
		MaxHistoryTurns:           0,
	}
}

func (c PipelineConfig) classifier() Classifier {
	if c.Classify != nil {
		return c.Classify
	}
	return LikelyToolResult
}
