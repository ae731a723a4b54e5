package contextprep

import (
	"strings"
	"testing"

	"github.com/slashbot/slashbot/pkg/models"
)

func msg(role models.Role, text string) models.Message {
	return models.NewMessage(role, text)
}

func repeat(c string, n int) string {
	return strings.Repeat(c, n)
}

func TestPrepare_IdentityWhenFitting(t *testing.T) {
	cfg := DefaultConfig(200000)
	in := []models.Message{
		msg(models.RoleSystem, "you are helpful"),
		msg(models.RoleUser, "hi"),
		msg(models.RoleAssistant, "hello"),
	}

	res := Prepare(in, cfg)
	if res.Pruned || res.Trimmed {
		t.Errorf("fitting input flagged pruned=%v trimmed=%v, want both false", res.Pruned, res.Trimmed)
	}
	out := res.Messages
	if len(out) != len(in) {
		t.Fatalf("out = %d messages, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i].Content.ToText() != in[i].Content.ToText() {
			t.Errorf("message %d changed: %q", i, out[i].Content.ToText())
		}
	}
}

func TestPrepare_InputNotMutated(t *testing.T) {
	cfg := DefaultConfig(1200)
	cfg.ReserveTokens = 200
	in := []models.Message{
		msg(models.RoleUser, "{"+repeat("x", 5000)+"}"),
		msg(models.RoleUser, "recent question"),
	}
	original := in[0].Content.ToText()

	Prepare(in, cfg)
	if in[0].Content.ToText() != original {
		t.Error("Prepare mutated its input slice")
	}
}

func TestLimitHistoryTurns(t *testing.T) {
	in := []models.Message{
		msg(models.RoleSystem, "sys"),
		msg(models.RoleUser, "turn1"),
		msg(models.RoleAssistant, "reply1"),
		msg(models.RoleUser, "turn2"),
		msg(models.RoleAssistant, "reply2"),
		msg(models.RoleUser, "turn3"),
	}

	out, dropped := limitHistoryTurns(append([]models.Message(nil), in...), 2)
	if !dropped {
		t.Error("dropped = false after trimming turns")
	}
	want := []string{"sys", "turn2", "reply2", "turn3"}
	if len(out) != len(want) {
		t.Fatalf("out = %d messages, want %v", len(out), want)
	}
	for i, w := range want {
		if out[i].Content.ToText() != w {
			t.Errorf("message %d = %q, want %q", i, out[i].Content.ToText(), w)
		}
	}

	// Zero means unlimited.
	out, dropped = limitHistoryTurns(append([]models.Message(nil), in...), 0)
	if dropped {
		t.Error("dropped = true for unlimited turns")
	}
	if len(out) != len(in) {
		t.Errorf("unlimited trimmed to %d", len(out))
	}
}

func TestLikelyToolResult(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{`{"key":"value"}`, true},
		{`[1,2,3]`, true},
		{"ERROR [TOOL_EXECUTE_ERROR]: boom", true},
		{"OK (3 rows)", true},
		{"```\ncode\n```", true},
		{repeat("a", 2001), true},
		{"plain sentence from the user", false},
	}
	for _, tc := range cases {
		if got := LikelyToolResult(msg(models.RoleUser, tc.text)); got != tc.want {
			t.Errorf("LikelyToolResult(%.20q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestPrune_ProtectsRecentAssistants(t *testing.T) {
	// Budget 1000 tokens; enough bulk to push past the hard threshold.
	cfg := DefaultConfig(1500)
	cfg.ReserveTokens = 1000
	cfg.ProtectedRecentMessages = 3

	big := "{" + repeat("x", 3000) + "}"
	in := []models.Message{
		msg(models.RoleSystem, "sys"),
		msg(models.RoleAssistant, big),
		msg(models.RoleUser, "q"),
		msg(models.RoleAssistant, big),
		msg(models.RoleAssistant, big),
		msg(models.RoleAssistant, big),
	}

	out, changed := prune(append([]models.Message(nil), in...), cfg)
	if !changed {
		t.Error("changed = false after clearing a message")
	}

	// The oldest assistant tool result is cleared; the last three stand.
	if out[1].Content.ToText() != clearedPlaceholder {
		t.Errorf("unprotected message not cleared: %.40q", out[1].Content.ToText())
	}
	for _, i := range []int{3, 4, 5} {
		if out[i].Content.ToText() != big {
			t.Errorf("protected assistant message %d was modified", i)
		}
	}
}

func TestPrune_SoftTrimKeepsHeadAndTail(t *testing.T) {
	cfg := DefaultConfig(3000)
	cfg.ReserveTokens = 2000
	cfg.SoftTrimThreshold = 0.5
	cfg.HardClearThreshold = 10 // out of reach; stay in the soft band
	cfg.ProtectedRecentMessages = 0
	cfg.SoftTrimKeepChars = 100

	body := "{" + repeat("a", 5000) + "tail-end"
	in := []models.Message{
		msg(models.RoleUser, body),
		msg(models.RoleUser, "recent"),
	}

	out, _ := prune(in, cfg)
	got := out[0].Content.ToText()
	if !strings.HasPrefix(got, body[:100]) {
		t.Error("soft trim lost the head")
	}
	if !strings.HasSuffix(got, "tail-end") {
		t.Error("soft trim lost the tail")
	}
	if !strings.Contains(got, "characters elided") {
		t.Error("soft trim missing the elision marker")
	}
	if len(got) >= len(body) {
		t.Error("soft trim did not shrink the body")
	}
}

func TestFitTokens_EndToEnd(t *testing.T) {
	// The fit-trim scenario: ~1K char system message plus 200 user
	// messages of 200 chars against an 8000-token budget.
	cfg := DefaultConfig(10000)
	cfg.ReserveTokens = 2000

	in := []models.Message{msg(models.RoleSystem, repeat("S", 1000))}
	for i := 0; i < 200; i++ {
		in = append(in, msg(models.RoleUser, repeat("u", 200)))
	}

	res := Prepare(in, cfg)
	if !res.Trimmed {
		t.Error("trimmed = false after dropping messages to fit")
	}
	if res.Pruned {
		t.Error("pruned = true though no content was rewritten")
	}
	out := res.Messages

	if out[0].Role != models.RoleSystem {
		t.Fatal("system message dropped")
	}
	users := len(out) - 1
	if users == 0 {
		t.Fatal("no conversation messages kept")
	}
	if users >= 200 {
		t.Error("nothing was trimmed")
	}
	if got := TotalTokens(out); got > Budget(cfg.ContextLimit, cfg.ReserveTokens) {
		t.Errorf("still over budget: %d tokens", got)
	}
}

func TestFitTokens_SystemCappedAtHalfBudget(t *testing.T) {
	cfg := DefaultConfig(5000)
	cfg.ReserveTokens = 1000 // budget 4000, system cap 2000 tokens

	in := []models.Message{
		msg(models.RoleSystem, repeat("S", 20000)), // ~5004 tokens alone
		msg(models.RoleUser, "question"),
	}

	res := Prepare(in, cfg)
	if !res.Trimmed {
		t.Error("trimmed = false after truncating the system message")
	}
	out := res.Messages
	if len(out) != 2 {
		t.Fatalf("out = %d messages", len(out))
	}
	if !strings.HasSuffix(out[0].Content.ToText(), "[... truncated ...]") {
		t.Error("oversized system message missing truncation marker")
	}
	if sys := EstimateTokens(out[0]); sys > 2000 {
		t.Errorf("system tokens = %d, want <= half budget", sys)
	}
	if out[1].Content.ToText() != "question" {
		t.Error("conversation message lost")
	}
}

func TestSanitize_GoogleFoldsSameRole(t *testing.T) {
	in := []models.Message{
		msg(models.RoleUser, "first"),
		msg(models.RoleUser, "second"),
		msg(models.RoleAssistant, "reply"),
	}

	out := sanitize(append([]models.Message(nil), in...), "google")
	if len(out) != 2 {
		t.Fatalf("google fold: %d messages, want 2", len(out))
	}
	if out[0].Content.ToText() != "first\n\nsecond" {
		t.Errorf("folded content = %q", out[0].Content.ToText())
	}
	if out[1].Content.ToText() != "reply" {
		t.Errorf("assistant = %q", out[1].Content.ToText())
	}

	out = sanitize(append([]models.Message(nil), in...), "anthropic")
	if len(out) != 3 {
		t.Errorf("non-google provider folded: %d messages", len(out))
	}
}

func TestSanitize_DropsEmptyNonSystem(t *testing.T) {
	in := []models.Message{
		msg(models.RoleSystem, ""),
		msg(models.RoleUser, ""),
		msg(models.RoleUser, "real"),
	}
	out := sanitize(in, "")
	if len(out) != 2 {
		t.Fatalf("out = %d, want system + real", len(out))
	}
	if out[0].Role != models.RoleSystem || out[1].Content.ToText() != "real" {
		t.Errorf("out = %+v", out)
	}
}

func TestBudgetFloor(t *testing.T) {
	if got := Budget(500, 2000); got != 1000 {
		t.Errorf("budget = %d, want floor 1000", got)
	}
	if got := Budget(10000, 2000); got != 8000 {
		t.Errorf("budget = %d, want 8000", got)
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens(msg(models.RoleUser, repeat("a", 8))); got != 6 {
		t.Errorf("tokens = %d, want ceil(8/4)+4 = 6", got)
	}
	if got := EstimateTokens(msg(models.RoleUser, repeat("a", 9))); got != 7 {
		t.Errorf("tokens = %d, want ceil(9/4)+4 = 7", got)
	}
}

func TestInjectedClassifier(t *testing.T) {
	cfg := DefaultConfig(1500)
	cfg.ReserveTokens = 1000
	cfg.ProtectedRecentMessages = 0
	cfg.Classify = func(m models.Message) bool {
		return strings.HasPrefix(m.Content.ToText(), "RESULT:")
	}

	in := []models.Message{
		msg(models.RoleUser, "RESULT: "+repeat("x", 3000)),
		msg(models.RoleUser, "{"+repeat("y", 3000)+"}"), // default heuristic would hit this
	}

	out, _ := prune(in, cfg)
	if out[0].Content.ToText() != clearedPlaceholder {
		t.Error("injected classifier match was not pruned")
	}
	if out[1].Content.ToText() == clearedPlaceholder {
		t.Error("non-matching message was pruned despite injected classifier")
	}
}
