package gateway

import (
	"net/http"

	"github.com/docsmithhq/docsmith-agent/internal/profiles"
)

type profileSummary struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Audience    string   `json:"audience,omitempty"`
	Focus       []string `json:"focus,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Bundled     bool     `json:"bundled"`
	Active      bool     `json:"active"`
}

// handleListProfiles returns all generation profiles, bundled and
// user-defined. Profile authoring happens on disk ('docsmith profiles init'),
// not over the API.
func (gw *Gateway) handleListProfiles(w http.ResponseWriter, _ *http.Request) {
	all := profiles.List(profiles.DefaultDir())
	out := make([]profileSummary, 0, len(all))
	for _, p := range all {
		out = append(out, profileSummary{
			Name:        p.Name,
			Description: p.Description,
			Audience:    p.Audience,
			Focus:       p.Focus,
			Tags:        p.Tags,
			Bundled:     p.Bundled,
			Active:      p.Name == gw.profileName,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGetProfile returns one profile including its prompt body.
func (gw *Gateway) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "profile name is required")
		return
	}
	p, err := profiles.Load(name, profiles.DefaultDir())
	if err != nil || p == nil {
		writeError(w, http.StatusNotFound, "profile not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":        p.Name,
		"version":     p.Version,
		"description": p.Description,
		"audience":    p.Audience,
		"focus":       p.Focus,
		"tags":        p.Tags,
		"body":        p.Body,
		"bundled":     p.Bundled,
		"active":      p.Name == gw.profileName,
	})
}
