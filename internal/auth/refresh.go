package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/slashbot/slashbot/internal/providers"
)

// refreshSkew rotates tokens that expire within this window, so a call
// started just before expiry does not run with a dead token.
const refreshSkew = 2 * time.Minute

// OAuthData is the stored payload of an oauth_pkce profile. ExpiresAt is
// unix milliseconds; zero means no recorded expiry.
type OAuthData struct {
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken,omitempty"`
	ExpiresAt    int64    `json:"expiresAt,omitempty"`
	ClientID     string   `json:"clientId,omitempty"`
	TokenURL     string   `json:"tokenUrl,omitempty"`
	Scopes       []string `json:"scopes,omitempty"`
}

// expired reports whether the access token is past, or within the skew
// window of, its recorded expiry.
func (d OAuthData) expired(now time.Time) bool {
	if d.ExpiresAt == 0 {
		return false
	}
	return now.Add(refreshSkew).UnixMilli() >= d.ExpiresAt
}

// RefreshProfile rotates an oauth_pkce profile's access token when it is
// expired and persists the result under the profile lock. Profiles of
// other methods, unexpired tokens, and profiles without a refresh token
// pass through unchanged.
func (s *Store) RefreshProfile(ctx context.Context, agentID string, profile Profile) (Profile, error) {
	if profile.Method != providers.AuthOAuthPKCE || len(profile.Data) == 0 {
		return profile, nil
	}

	var data OAuthData
	if err := json.Unmarshal(profile.Data, &data); err != nil {
		return profile, fmt.Errorf("parse oauth profile %s/%s: %w", profile.ProviderID, profile.ProfileID, err)
	}
	if data.RefreshToken == "" || data.TokenURL == "" || !data.expired(time.Now()) {
		return profile, nil
	}

	conf := &oauth2.Config{
		ClientID: data.ClientID,
		Scopes:   data.Scopes,
		Endpoint: oauth2.Endpoint{TokenURL: data.TokenURL},
	}

	out := profile
	err := s.WithProfileLock(ctx, agentID, profile.ProviderID, func() error {
		token, err := conf.TokenSource(ctx, &oauth2.Token{
			AccessToken:  data.AccessToken,
			RefreshToken: data.RefreshToken,
			Expiry:       time.UnixMilli(data.ExpiresAt),
		}).Token()
		if err != nil {
			return fmt.Errorf("refresh oauth token %s/%s: %w", profile.ProviderID, profile.ProfileID, err)
		}

		data.AccessToken = token.AccessToken
		if token.RefreshToken != "" {
			data.RefreshToken = token.RefreshToken
		}
		if !token.Expiry.IsZero() {
			data.ExpiresAt = token.Expiry.UnixMilli()
		}

		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("encode oauth profile: %w", err)
		}
		out.Data = raw

		if err := s.UpsertProfile(agentID, out); err != nil {
			return err
		}
		s.logger.Info("oauth token refreshed",
			"agent", agentID, "provider", profile.ProviderID, "profile", profile.ProfileID)
		return nil
	})
	if err != nil {
		return profile, err
	}
	return out, nil
}
