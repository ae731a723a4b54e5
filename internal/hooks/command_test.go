package hooks

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/slashbot/slashbot/internal/config"
)

func TestRegisterConfigHooks_MatcherShortCircuit(t *testing.T) {
	d := newTestDispatcher()

	marker := filepath.Join(t.TempDir(), "ran")
	cfg := config.HooksConfig{
		Rules: map[string][]config.HookRule{
			EventBeforeToolCall: {
				{
					Matcher: "exec",
					Hooks:   []config.HookAction{{Type: "command", Command: "touch " + marker}},
				},
			},
		},
	}

	ids := RegisterConfigHooks(d, cfg, t.TempDir(), nil)
	if len(ids) != 1 {
		t.Fatalf("registered = %d, want 1", len(ids))
	}

	// Non-matching toolId short-circuits; command never runs.
	report := d.Dispatch(context.Background(), DomainLifecycle, EventBeforeToolCall, Payload{"toolId": "read"})
	if len(report.Failures) != 0 {
		t.Fatalf("failures = %v", report.Failures)
	}
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Error("command ran despite non-matching toolId")
	}

	// Matching toolId runs the command.
	d.Dispatch(context.Background(), DomainLifecycle, EventBeforeToolCall, Payload{"toolId": "exec"})
	if _, err := os.Stat(marker); err != nil {
		t.Errorf("command did not run for matching toolId: %v", err)
	}
}

func TestCommandHandler_Environment(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "env.txt")

	handler := CommandHandler(`echo "$SLASHBOT_HOOK_EVENT:$SLASHBOT_HOOK_PAYLOAD" > `+out, dir, "my_event", nil)

	_, err := handler(context.Background(), Payload{"k": "v"})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	got := string(data)
	if got != "my_event:{\"k\":\"v\"}\n" {
		t.Errorf("env capture = %q", got)
	}
}

func TestCommandHandler_FailurePropagates(t *testing.T) {
	handler := CommandHandler("exit 3", t.TempDir(), "e", nil)
	if _, err := handler(context.Background(), nil); err == nil {
		t.Error("expected error from failing command")
	}
}

func TestDiscoverScripts(t *testing.T) {
	workspace := t.TempDir()
	hooksDir := filepath.Join(workspace, ".slashbot", "hooks")
	if err := os.MkdirAll(hooksDir, 0o755); err != nil {
		t.Fatal(err)
	}

	write := func(name string, mode os.FileMode) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(hooksDir, name), []byte("#!/bin/sh\n"), mode); err != nil {
			t.Fatal(err)
		}
	}
	write("session_start.greet.sh", 0o755)
	write("deploy.notify.sh", 0o755)
	write("not-executable.skip.sh", 0o644)
	write("README.md", 0o644)
	write("noevent.sh", 0o755) // no <event>.<name> split

	scripts, err := DiscoverScripts(workspace)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(scripts) != 2 {
		t.Fatalf("scripts = %+v, want 2", scripts)
	}

	byEvent := map[string]ScriptHook{}
	for _, s := range scripts {
		byEvent[s.Event] = s
	}
	if byEvent["session_start"].Name != "greet" {
		t.Errorf("session_start hook = %+v", byEvent["session_start"])
	}
	if byEvent["deploy"].Name != "notify" {
		t.Errorf("deploy hook = %+v", byEvent["deploy"])
	}
}

func TestScriptWatcher_RegistersAndDispatches(t *testing.T) {
	workspace := t.TempDir()
	hooksDir := filepath.Join(workspace, ".slashbot", "hooks")
	if err := os.MkdirAll(hooksDir, 0o755); err != nil {
		t.Fatal(err)
	}

	marker := filepath.Join(workspace, "marker")
	script := "#!/bin/sh\necho \"$SLASHBOT_HOOK_EVENT\" > " + marker + "\n"
	if err := os.WriteFile(filepath.Join(hooksDir, "deploy.mark.sh"), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	d := newTestDispatcher()
	w := NewScriptWatcher(d, workspace, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Stop()

	if d.HookCount(DomainCustom, "deploy") != 1 {
		t.Fatalf("deploy hooks = %d, want 1", d.HookCount(DomainCustom, "deploy"))
	}

	report := d.Dispatch(context.Background(), DomainCustom, "deploy", Payload{"ref": "main"})
	if len(report.Failures) != 0 {
		t.Fatalf("failures = %v", report.Failures)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if data, err := os.ReadFile(marker); err == nil {
			if string(data) != "deploy\n" {
				t.Errorf("marker = %q", data)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("script never wrote its marker")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
