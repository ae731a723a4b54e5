package auth

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/slashbot/slashbot/internal/config"
	"github.com/slashbot/slashbot/internal/providers"
	"github.com/slashbot/slashbot/pkg/models"
)

// ResolveRequest asks the router for a usable provider and profile.
type ResolveRequest struct {
	AgentID          string
	SessionID        string
	PinnedProviderID string
}

// Resolution is a usable (provider, profile, model) triple.
type Resolution struct {
	ProviderID string
	ModelID    string
	Profile    Profile
}

// ResolveError is a typed auth resolution failure.
type ResolveError struct {
	Code    string
	Message string
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Router picks a provider and credential profile per session, rotating
// away from profiles that failed earlier in the same session. Failure
// marks live in memory only; restarts clear them.
type Router struct {
	store     *Store
	providers *providers.Registry
	cfg       *config.Config
	logger    *slog.Logger

	mu     sync.Mutex
	failed map[string]map[string]bool // sessionId -> providerId\x00profileId
}

// NewRouter creates a router over the store and provider registry.
func NewRouter(store *Store, reg *providers.Registry, cfg *config.Config, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		store:     store,
		providers: reg,
		cfg:       cfg,
		logger:    logger.With("component", "auth"),
		failed:    make(map[string]map[string]bool),
	}
}

// Resolve selects the provider (pinned, else config's active provider),
// lists its unfailed profiles ordered by the provider's preferred auth
// order, and returns the first.
func (r *Router) Resolve(req ResolveRequest) (*Resolution, error) {
	providerID := req.PinnedProviderID
	modelID := ""
	var configKey string

	if providerID == "" && r.cfg != nil && r.cfg.Providers.Active != nil {
		providerID = r.cfg.Providers.Active.ProviderID
		modelID = r.cfg.Providers.Active.ModelID
		configKey = r.cfg.Providers.Active.APIKey
	}
	if providerID == "" {
		return nil, &ResolveError{
			Code:    models.ErrCodeNoProvider,
			Message: "no provider pinned and no active provider configured",
		}
	}

	def, known := r.providers.Get(providerID)
	if !known {
		return nil, &ResolveError{
			Code:    models.ErrCodeNoProvider,
			Message: fmt.Sprintf("provider %q is not registered", providerID),
		}
	}
	if modelID == "" {
		if m, ok := def.DefaultModel(); ok {
			modelID = m.ID
		}
	}

	profiles, err := r.store.ListProfiles(req.AgentID, providerID)
	if err != nil {
		return nil, err
	}
	profiles = r.excludeFailed(req.SessionID, providerID, profiles)
	orderByAuthMethod(profiles, def.PreferredAuthOrder)

	if len(profiles) > 0 {
		return &Resolution{ProviderID: providerID, ModelID: modelID, Profile: profiles[0]}, nil
	}

	// A config-level api key stands in when no stored profile is usable.
	if configKey != "" {
		return &Resolution{
			ProviderID: providerID,
			ModelID:    modelID,
			Profile: Profile{
				ProfileID:  "config",
				ProviderID: providerID,
				Method:     providers.AuthAPIKey,
				Data:       []byte(fmt.Sprintf(`{"apiKey":%q}`, configKey)),
			},
		}, nil
	}

	return nil, &ResolveError{
		Code:    models.ErrCodeNoProvider,
		Message: fmt.Sprintf("no usable auth profile for provider %q", providerID),
	}
}

// ReportFailure marks a profile failed for the rest of the session so the
// next Resolve rotates to a different one.
func (r *Router) ReportFailure(sessionID, providerID, profileID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.failed[sessionID]
	if set == nil {
		set = make(map[string]bool)
		r.failed[sessionID] = set
	}
	set[providerID+"\x00"+profileID] = true

	r.logger.Debug("profile marked failed",
		"session", sessionID,
		"provider", providerID,
		"profile", profileID)
}

// ForgetSession drops a session's failure marks.
func (r *Router) ForgetSession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.failed, sessionID)
}

func (r *Router) excludeFailed(sessionID, providerID string, profiles []Profile) []Profile {
	r.mu.Lock()
	set := r.failed[sessionID]
	r.mu.Unlock()

	if len(set) == 0 {
		return profiles
	}
	out := profiles[:0]
	for _, p := range profiles {
		if !set[providerID+"\x00"+p.ProfileID] {
			out = append(out, p)
		}
	}
	return out
}

// orderByAuthMethod stably sorts profiles so methods earlier in preferred
// come first; unknown methods keep their relative order at the end.
func orderByAuthMethod(profiles []Profile, preferred []string) {
	rank := func(method string) int {
		for i, m := range preferred {
			if m == method {
				return i
			}
		}
		return len(preferred)
	}
	sort.SliceStable(profiles, func(i, j int) bool {
		return rank(profiles[i].Method) < rank(profiles[j].Method)
	})
}
