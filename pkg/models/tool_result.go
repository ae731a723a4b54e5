package models

// Error codes used across kernel operations.
const (
	ErrCodeToolNotFound      = "TOOL_NOT_FOUND"
	ErrCodeToolExecute       = "TOOL_EXECUTE_ERROR"
	ErrCodeAlreadyRegistered = "ALREADY_REGISTERED"
	ErrCodeNoProvider        = "NO_PROVIDER_CONFIGURED"
	ErrCodeOverflowExhausted = "OVERFLOW_RECOVERY_EXHAUSTED"
)

// ToolError describes a tool failure in a form safe to feed back to the model.
type ToolError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// ToolResult is the dual-channel outcome of a tool execution. ForLLM feeds
// the model on the next turn; ForUser feeds the user surface. Silent
// suppresses user emission entirely.
type ToolResult struct {
	OK       bool           `json:"ok"`
	Output   string         `json:"output,omitempty"`
	ForUser  string         `json:"for_user,omitempty"`
	ForLLM   string         `json:"for_llm,omitempty"`
	Silent   bool           `json:"silent,omitempty"`
	Error    *ToolError     `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// LLMText returns the text destined for the model: ForLLM when set,
// otherwise Output, otherwise a rendering of the error.
func (r *ToolResult) LLMText() string {
	if r == nil {
		return ""
	}
	if r.ForLLM != "" {
		return r.ForLLM
	}
	if r.Output != "" {
		return r.Output
	}
	if r.Error != nil {
		return "ERROR [" + r.Error.Code + "]: " + r.Error.Message
	}
	return ""
}

// UserText returns the text destined for the user surface, or empty when
// the result is silent.
func (r *ToolResult) UserText() string {
	if r == nil || r.Silent {
		return ""
	}
	if r.ForUser != "" {
		return r.ForUser
	}
	return r.Output
}

// OKResult builds a successful result with a single shared output channel.
func OKResult(output string) *ToolResult {
	return &ToolResult{OK: true, Output: output}
}

// ErrorResult builds a failed result with the given code and message.
func ErrorResult(code, message string) *ToolResult {
	return &ToolResult{OK: false, Error: &ToolError{Code: code, Message: message}}
}
