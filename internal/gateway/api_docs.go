package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/docsmithhq/docsmith-agent/internal/export"
	"github.com/docsmithhq/docsmith-agent/internal/store"
	"github.com/docsmithhq/docsmith-agent/models"
)

// docResponse is a DocVersion with its content decoded for API consumers.
type docResponse struct {
	RepoID      int64              `json:"repo_id"`
	Version     int                `json:"version"`
	CommitHash  string             `json:"commit_hash,omitempty"`
	Profile     string             `json:"profile,omitempty"`
	FileCount   int                `json:"file_count"`
	LinesOfCode int                `json:"lines_of_code"`
	CreatedAt   time.Time          `json:"created_at"`
	Content     *models.DocContent `json:"content"`
}

func buildDocResponse(v *models.DocVersion) (*docResponse, error) {
	content, err := v.Content()
	if err != nil {
		return nil, err
	}
	return &docResponse{
		RepoID:      v.RepoID,
		Version:     v.Version,
		CommitHash:  v.CommitHash,
		Profile:     v.Profile,
		FileCount:   v.FileCount,
		LinesOfCode: v.LinesOfCode,
		CreatedAt:   v.CreatedAt,
		Content:     content,
	}, nil
}

func (gw *Gateway) handleLatestDocs(w http.ResponseWriter, r *http.Request) {
	repoID, err := pathID(r, "repoID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ver, err := gw.docs.Latest(r.Context(), repoID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no documentation generated yet")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	resp, err := buildDocResponse(ver)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "stored content is unreadable")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (gw *Gateway) handleListDocVersions(w http.ResponseWriter, r *http.Request) {
	repoID, err := pathID(r, "repoID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	versions, err := gw.docs.List(r.Context(), repoID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if versions == nil {
		versions = []models.DocVersion{}
	}
	// ContentJSON is excluded from marshalling, so this is metadata only.
	writeJSON(w, http.StatusOK, versions)
}

func (gw *Gateway) handleGetDocVersion(w http.ResponseWriter, r *http.Request) {
	repoID, err := pathID(r, "repoID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	n, err := pathID(r, "version")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ver, err := gw.docs.Get(r.Context(), repoID, int(n))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "version not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	resp, err := buildDocResponse(ver)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "stored content is unreadable")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleExportDocs renders a stored version as a download. Query params:
// format=markdown|json (default markdown), version=N (default latest).
func (gw *Gateway) handleExportDocs(w http.ResponseWriter, r *http.Request) {
	repoID, err := pathID(r, "repoID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	repo, err := gw.repos.Get(r.Context(), repoID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "repository not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	format := r.URL.Query().Get("format")
	renderer, err := export.For(format)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var ver *models.DocVersion
	if raw := r.URL.Query().Get("version"); raw != "" {
		n, perr := parseVersionParam(raw)
		if perr != nil {
			writeError(w, http.StatusBadRequest, perr.Error())
			return
		}
		ver, err = gw.docs.Get(r.Context(), repoID, n)
	} else {
		ver, err = gw.docs.Latest(r.Context(), repoID)
	}
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no documentation to export")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	out, err := renderer.Render(repo, ver)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "render failed")
		return
	}
	filename := fmt.Sprintf("%s-v%d%s", exportBaseName(repo), ver.Version, renderer.FileExt())
	w.Header().Set("Content-Type", renderer.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func parseVersionParam(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("version must be a positive integer")
	}
	return n, nil
}

func exportBaseName(repo *models.Repo) string {
	if repo.Name != "" {
		return repo.Name
	}
	return fmt.Sprintf("repo-%d", repo.ID)
}
