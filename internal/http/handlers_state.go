package httpx

import (
	"fmt"
	"net/http"

	"github.com/splax/unhazzle/internal/domain"
	"github.com/splax/unhazzle/internal/repository"
	"github.com/splax/unhazzle/internal/service/sizing"
	"github.com/splax/unhazzle/internal/service/state"
)

func (r *Router) handleSignIn(w http.ResponseWriter, req *http.Request) {
	var payload domain.User
	if err := decodeJSON(req, &payload); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	sess, err := r.sessions.SignIn(req.Context(), payload)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"session": sess})
}

func (r *Router) handleSignOut(w http.ResponseWriter, req *http.Request) {
	info, ok := sessionFromContext(req.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	if err := r.sessions.SignOut(req.Context(), info.SessionID); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "signed_out"})
}

func (r *Router) handleState(w http.ResponseWriter, req *http.Request, store *state.Store) {
	writeJSON(w, http.StatusOK, store.Snapshot())
}

func (r *Router) handleQuestionnaire(w http.ResponseWriter, req *http.Request, store *state.Store) {
	var answers domain.QuestionnaireAnswers
	if err := decodeJSON(req, &answers); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	if err := store.SetQuestionnaire(req.Context(), answers); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, r.recommendation(answers))
}

func (r *Router) handleRecommendation(w http.ResponseWriter, req *http.Request, store *state.Store) {
	snap := store.Snapshot()
	if snap.Questionnaire == nil {
		writeError(w, http.StatusNotFound, "questionnaire not answered")
		return
	}
	writeJSON(w, http.StatusOK, r.recommendation(*snap.Questionnaire))
}

func (r *Router) recommendation(answers domain.QuestionnaireAnswers) map[string]any {
	cfg := sizing.Recommend(answers)
	return map[string]any{
		"questionnaire": answers,
		"resources":     cfg,
		"estimate":      r.estimator.Estimate(cfg, answers.Traffic, nil),
	}
}

func (r *Router) handleEstimate(w http.ResponseWriter, req *http.Request) {
	var payload struct {
		Resources domain.ResourceConfig `json:"resources"`
		Traffic   domain.Traffic        `json:"traffic"`
		Volume    *domain.Volume        `json:"volume,omitempty"`
	}
	if err := decodeJSON(req, &payload); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	if payload.Traffic == "" {
		payload.Traffic = domain.TrafficSteady
	}
	writeJSON(w, http.StatusOK, r.estimator.Estimate(payload.Resources, payload.Traffic, payload.Volume))
}

func (r *Router) handleCatalog(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, sizing.Catalog)
}

func (r *Router) handleAddContainer(w http.ResponseWriter, req *http.Request, store *state.Store) {
	var c domain.Container
	if err := decodeJSON(req, &c); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	added, err := store.AddContainer(req.Context(), req.URL.Query().Get("environment"), c)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, added)
}

func (r *Router) handleAddCatalogContainer(w http.ResponseWriter, req *http.Request, store *state.Store) {
	var payload struct {
		CatalogID     string `json:"catalogId"`
		Name          string `json:"name"`
		EnvironmentID string `json:"environmentId"`
	}
	if err := decodeJSON(req, &payload); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	entry, ok := sizing.LookupCatalog(payload.CatalogID)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("catalog entry %q not found", payload.CatalogID))
		return
	}
	var answers domain.QuestionnaireAnswers
	if q := store.Snapshot().Questionnaire; q != nil {
		answers = *q
	}
	c, err := sizing.ContainerFromCatalog(entry, payload.Name, answers)
	if err != nil {
		r.writeServiceError(w, req, fmt.Errorf("%w: %v", repository.ErrInvalidArgument, err))
		return
	}
	added, err := store.AddContainer(req.Context(), payload.EnvironmentID, c)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, added)
}

func (r *Router) handleUpdateContainer(w http.ResponseWriter, req *http.Request, store *state.Store) {
	var in state.UpdateContainerInput
	if err := decodeJSON(req, &in); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	updated, err := store.UpdateContainer(req.Context(), req.PathValue("id"), in)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (r *Router) handleRemoveContainer(w http.ResponseWriter, req *http.Request, store *state.Store) {
	if err := store.RemoveContainer(req.Context(), req.PathValue("id")); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (r *Router) handleServiceAccess(w http.ResponseWriter, req *http.Request, store *state.Store) {
	svc, err := domain.ParseService(req.PathValue("service"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var payload struct {
		Enabled bool `json:"enabled"`
	}
	if err := decodeJSON(req, &payload); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	updated, err := store.SetServiceAccess(req.Context(), req.PathValue("id"), svc, payload.Enabled)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (r *Router) handleSetDatabase(w http.ResponseWriter, req *http.Request, store *state.Store) {
	var cfg domain.DatabaseConfig
	if err := decodeJSON(req, &cfg); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	r.respondState(w, req, store, store.SetDatabase(req.Context(), req.URL.Query().Get("environment"), cfg))
}

func (r *Router) handleRemoveDatabase(w http.ResponseWriter, req *http.Request, store *state.Store) {
	r.respondState(w, req, store, store.RemoveDatabase(req.Context(), req.URL.Query().Get("environment")))
}

func (r *Router) handleSetCache(w http.ResponseWriter, req *http.Request, store *state.Store) {
	var cfg domain.CacheConfig
	if err := decodeJSON(req, &cfg); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	r.respondState(w, req, store, store.SetCache(req.Context(), req.URL.Query().Get("environment"), cfg))
}

func (r *Router) handleRemoveCache(w http.ResponseWriter, req *http.Request, store *state.Store) {
	r.respondState(w, req, store, store.RemoveCache(req.Context(), req.URL.Query().Get("environment")))
}

// respondState reports err or the state snapshot after a successful mutation.
func (r *Router) respondState(w http.ResponseWriter, req *http.Request, store *state.Store, err error) {
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, store.Snapshot())
}
