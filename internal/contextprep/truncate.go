package contextprep

import (
	"fmt"
	"strings"
)

// newlineSearchWindow bounds the scan for a clean cut point.
const newlineSearchWindow = 200

// TruncateToolResult bounds one tool result's contribution to the context.
// The cap is a share of the context window (in characters) bounded above
// by the hard max and below by the minimum keep. Oversized results are cut
// at the last newline near the limit, with a marker noting what was lost.
func TruncateToolResult(text string, cfg PipelineConfig) string {
	maxChars := int(float64(cfg.ContextLimit) * 4 * cfg.ToolResultMaxContextShare)
	if cfg.ToolResultHardMax > 0 && maxChars > cfg.ToolResultHardMax {
		maxChars = cfg.ToolResultHardMax
	}
	if maxChars < cfg.ToolResultMinKeep {
		maxChars = cfg.ToolResultMinKeep
	}
	if len(text) <= maxChars {
		return text
	}

	cut := maxChars
	windowStart := maxChars - newlineSearchWindow
	if windowStart < 0 {
		windowStart = 0
	}
	if idx := strings.LastIndexByte(text[windowStart:maxChars], '\n'); idx >= 0 {
		cut = windowStart + idx
	}

	return text[:cut] + fmt.Sprintf("\n\n[... truncated %d characters ...]", len(text)-cut)
}
