package providers

import (
	"context"
	"testing"
)

func TestRegisterBuiltins(t *testing.T) {
	reg := NewRegistry()
	if err := RegisterBuiltins(reg); err != nil {
		t.Fatalf("register builtins: %v", err)
	}

	for _, id := range []string{ProviderAnthropic, ProviderOpenAI, ProviderGoogle} {
		def, ok := reg.Get(id)
		if !ok {
			t.Fatalf("provider %s not registered", id)
		}
		if len(def.Models) == 0 {
			t.Errorf("provider %s has no models", id)
		}
		if len(def.PreferredAuthOrder) == 0 {
			t.Errorf("provider %s has no preferred auth order", id)
		}
	}

	// Second registration of the same id fails.
	if err := RegisterBuiltins(reg); err == nil {
		t.Error("duplicate builtin registration should fail")
	}
}

func TestDefaultModel(t *testing.T) {
	def := Definition{
		ID: "p",
		Models: []Model{
			{ID: "fallback", Priority: 10},
			{ID: "primary", Priority: 0},
		},
	}
	m, ok := def.DefaultModel()
	if !ok || m.ID != "primary" {
		t.Errorf("default model = %+v, want primary", m)
	}

	if _, ok := (Definition{}).DefaultModel(); ok {
		t.Error("empty definition should have no default model")
	}
}

func TestConnect_UnknownProvider(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.Connect(context.Background(), "nope", ClientConfig{APIKey: "k"}); err == nil {
		t.Error("connect to unregistered provider should fail")
	}
}

func TestConnect_RequiresAPIKey(t *testing.T) {
	reg := NewRegistry()
	if err := RegisterBuiltins(reg); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{ProviderAnthropic, ProviderOpenAI, ProviderGoogle} {
		if _, err := reg.Connect(context.Background(), id, ClientConfig{}); err == nil {
			t.Errorf("provider %s accepted an empty api key", id)
		}
	}
}
