package auth

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/slashbot/slashbot/internal/config"
	"github.com/slashbot/slashbot/internal/providers"
	"github.com/slashbot/slashbot/pkg/models"
)

func newTestRouter(t *testing.T, cfg *config.Config) (*Router, *Store) {
	t.Helper()

	store := NewStore(t.TempDir(), "", "", nil)
	reg := providers.NewRegistry()
	err := reg.Register(providers.Definition{
		ID:                 "anthropic",
		DisplayName:        "Anthropic",
		Models:             []providers.Model{{ID: "claude-sonnet-4-5", ContextWindow: 200000}},
		PreferredAuthOrder: []string{"oauth_pkce", "setup_token", "api_key"},
	}, func(ctx context.Context, c providers.ClientConfig) (providers.Client, error) {
		return nil, errors.New("not used")
	}, providers.CompletionDefaults{})
	if err != nil {
		t.Fatal(err)
	}
	return NewRouter(store, reg, cfg, nil), store
}

func seedProfiles(t *testing.T, store *Store, profiles ...Profile) {
	t.Helper()
	for _, p := range profiles {
		if err := store.UpsertProfile("default", p); err != nil {
			t.Fatal(err)
		}
	}
}

func TestResolve_NoProviderConfigured(t *testing.T) {
	router, _ := newTestRouter(t, &config.Config{})

	_, err := router.Resolve(ResolveRequest{AgentID: "default", SessionID: "s1"})
	var rerr *ResolveError
	if !errors.As(err, &rerr) || rerr.Code != models.ErrCodeNoProvider {
		t.Fatalf("err = %v, want %s", err, models.ErrCodeNoProvider)
	}
}

func TestResolve_PinnedBeatsConfig(t *testing.T) {
	cfg := &config.Config{Providers: config.ProvidersConfig{
		Active: &config.ActiveProvider{ProviderID: "missing-provider"},
	}}
	router, store := newTestRouter(t, cfg)
	seedProfiles(t, store, Profile{ProfileID: "p1", ProviderID: "anthropic", Method: "api_key"})

	res, err := router.Resolve(ResolveRequest{AgentID: "default", SessionID: "s1", PinnedProviderID: "anthropic"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.ProviderID != "anthropic" || res.Profile.ProfileID != "p1" {
		t.Errorf("resolution = %+v", res)
	}
	if res.ModelID != "claude-sonnet-4-5" {
		t.Errorf("model = %q, want provider default", res.ModelID)
	}
}

func TestResolve_PreferredAuthOrder(t *testing.T) {
	cfg := &config.Config{Providers: config.ProvidersConfig{
		Active: &config.ActiveProvider{ProviderID: "anthropic", ModelID: "claude-sonnet-4-5"},
	}}
	router, store := newTestRouter(t, cfg)
	seedProfiles(t, store,
		Profile{ProfileID: "key", ProviderID: "anthropic", Method: "api_key"},
		Profile{ProfileID: "oauth", ProviderID: "anthropic", Method: "oauth_pkce"},
	)

	res, err := router.Resolve(ResolveRequest{AgentID: "default", SessionID: "s1"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Profile.ProfileID != "oauth" {
		t.Errorf("picked %q, want oauth (preferred method first)", res.Profile.ProfileID)
	}
}

func TestResolve_RotatesAfterFailure(t *testing.T) {
	cfg := &config.Config{Providers: config.ProvidersConfig{
		Active: &config.ActiveProvider{ProviderID: "anthropic"},
	}}
	router, store := newTestRouter(t, cfg)
	seedProfiles(t, store,
		Profile{ProfileID: "oauth", ProviderID: "anthropic", Method: "oauth_pkce"},
		Profile{ProfileID: "key", ProviderID: "anthropic", Method: "api_key"},
	)

	res, err := router.Resolve(ResolveRequest{AgentID: "default", SessionID: "s1"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Profile.ProfileID != "oauth" {
		t.Fatalf("first pick = %q", res.Profile.ProfileID)
	}

	router.ReportFailure("s1", "anthropic", "oauth")

	res, err = router.Resolve(ResolveRequest{AgentID: "default", SessionID: "s1"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Profile.ProfileID != "key" {
		t.Errorf("after failure picked %q, want key", res.Profile.ProfileID)
	}

	// Another session is unaffected.
	res, err = router.Resolve(ResolveRequest{AgentID: "default", SessionID: "s2"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Profile.ProfileID != "oauth" {
		t.Errorf("other session picked %q, want oauth", res.Profile.ProfileID)
	}

	// Exhausting every profile surfaces an error.
	router.ReportFailure("s1", "anthropic", "key")
	if _, err := router.Resolve(ResolveRequest{AgentID: "default", SessionID: "s1"}); err == nil {
		t.Error("resolve with all profiles failed should error")
	}
}

func TestResolve_ConfigAPIKeyFallback(t *testing.T) {
	cfg := &config.Config{Providers: config.ProvidersConfig{
		Active: &config.ActiveProvider{ProviderID: "anthropic", APIKey: "sk-config"},
	}}
	router, _ := newTestRouter(t, cfg)

	res, err := router.Resolve(ResolveRequest{AgentID: "default", SessionID: "s1"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Profile.APIKey() != "sk-config" {
		t.Errorf("profile data = %s", res.Profile.Data)
	}
	var d map[string]any
	if err := json.Unmarshal(res.Profile.Data, &d); err != nil {
		t.Errorf("synthetic profile data is not valid JSON: %v", err)
	}
}

func TestForgetSession(t *testing.T) {
	cfg := &config.Config{Providers: config.ProvidersConfig{
		Active: &config.ActiveProvider{ProviderID: "anthropic"},
	}}
	router, store := newTestRouter(t, cfg)
	seedProfiles(t, store, Profile{ProfileID: "only", ProviderID: "anthropic", Method: "api_key"})

	router.ReportFailure("s1", "anthropic", "only")
	if _, err := router.Resolve(ResolveRequest{AgentID: "default", SessionID: "s1"}); err == nil {
		t.Fatal("expected resolution failure")
	}

	router.ForgetSession("s1")
	if _, err := router.Resolve(ResolveRequest{AgentID: "default", SessionID: "s1"}); err != nil {
		t.Errorf("resolve after ForgetSession: %v", err)
	}
}
