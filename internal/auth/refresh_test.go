package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/slashbot/slashbot/internal/providers"
)

func oauthProfile(t *testing.T, data OAuthData) Profile {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatal(err)
	}
	return Profile{
		ProfileID:  "default",
		ProviderID: "anthropic",
		Method:     providers.AuthOAuthPKCE,
		Data:       raw,
	}
}

func TestRefreshProfile_RotatesExpiredToken(t *testing.T) {
	tokenEndpoint := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.FormValue("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q", got)
		}
		if got := r.FormValue("refresh_token"); got != "old-refresh" {
			t.Errorf("refresh_token = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "new-access",
			"refresh_token": "new-refresh",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	}))
	defer tokenEndpoint.Close()

	store := NewStore(t.TempDir(), "", "", nil)
	profile := oauthProfile(t, OAuthData{
		AccessToken:  "old-access",
		RefreshToken: "old-refresh",
		ExpiresAt:    time.Now().Add(-time.Hour).UnixMilli(),
		ClientID:     "client-1",
		TokenURL:     tokenEndpoint.URL,
	})

	out, err := store.RefreshProfile(context.Background(), "default", profile)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}

	var data OAuthData
	if err := json.Unmarshal(out.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.AccessToken != "new-access" {
		t.Errorf("access token = %q, want new-access", data.AccessToken)
	}
	if data.RefreshToken != "new-refresh" {
		t.Errorf("refresh token = %q, want new-refresh", data.RefreshToken)
	}
	if data.ExpiresAt <= time.Now().UnixMilli() {
		t.Errorf("expiresAt = %d, want a future timestamp", data.ExpiresAt)
	}
	if out.Credential() != "new-access" {
		t.Errorf("credential = %q", out.Credential())
	}

	// The rotation is persisted to the user-global file.
	stored, err := store.ListProfiles("default", "anthropic")
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 1 {
		t.Fatalf("stored profiles = %d, want 1", len(stored))
	}
	if stored[0].Credential() != "new-access" {
		t.Errorf("persisted credential = %q, want new-access", stored[0].Credential())
	}
}

func TestRefreshProfile_SkipsUnexpiredToken(t *testing.T) {
	store := NewStore(t.TempDir(), "", "", nil)
	profile := oauthProfile(t, OAuthData{
		AccessToken:  "live-access",
		RefreshToken: "live-refresh",
		ExpiresAt:    time.Now().Add(time.Hour).UnixMilli(),
		TokenURL:     "http://127.0.0.1:1/token", // must never be called
	})

	out, err := store.RefreshProfile(context.Background(), "default", profile)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if out.Credential() != "live-access" {
		t.Errorf("credential = %q, want the stored token untouched", out.Credential())
	}
}

func TestRefreshProfile_IgnoresOtherMethods(t *testing.T) {
	store := NewStore(t.TempDir(), "", "", nil)
	profile := Profile{
		ProfileID:  "default",
		ProviderID: "openai",
		Method:     providers.AuthAPIKey,
		Data:       json.RawMessage(`{"apiKey":"sk-1"}`),
	}

	out, err := store.RefreshProfile(context.Background(), "default", profile)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if out.Credential() != "sk-1" {
		t.Errorf("credential = %q", out.Credential())
	}
}

func TestProfileCredential_FallsBackToAccessToken(t *testing.T) {
	p := Profile{Data: json.RawMessage(`{"accessToken":"oauth-access"}`)}
	if got := p.Credential(); got != "oauth-access" {
		t.Errorf("credential = %q, want oauth-access", got)
	}
	p = Profile{Data: json.RawMessage(`{"apiKey":"sk-9","accessToken":"oauth-access"}`)}
	if got := p.Credential(); got != "sk-9" {
		t.Errorf("credential = %q, api key should win", got)
	}
}
