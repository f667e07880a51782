package httpx

import (
	"net/http"

	"github.com/splax/unhazzle/internal/domain"
	"github.com/splax/unhazzle/internal/service/manifest"
	"github.com/splax/unhazzle/internal/service/state"
)

func (r *Router) handleMarkDeployed(w http.ResponseWriter, req *http.Request, store *state.Store) {
	var payload struct {
		ProjectName string `json:"projectName"`
	}
	if err := decodeJSON(req, &payload); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	project, err := store.MarkDeployed(req.Context(), payload.ProjectName)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusAccepted, project)
}

func (r *Router) handleUpdateProject(w http.ResponseWriter, req *http.Request, store *state.Store) {
	var in state.UpdateProjectInput
	if err := decodeJSON(req, &in); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	project, err := store.UpdateProject(req.Context(), in)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (r *Router) handleCreateEnvironment(w http.ResponseWriter, req *http.Request, store *state.Store) {
	var in state.CreateEnvironmentInput
	if err := decodeJSON(req, &in); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	env, err := store.CreateEnvironment(req.Context(), in)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, env)
}

func (r *Router) handleUpdateEnvironment(w http.ResponseWriter, req *http.Request, store *state.Store) {
	var in state.UpdateEnvironmentInput
	if err := decodeJSON(req, &in); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	env, err := store.UpdateEnvironment(req.Context(), req.PathValue("id"), in)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, env)
}

func (r *Router) handleDeleteEnvironment(w http.ResponseWriter, req *http.Request, store *state.Store) {
	if err := store.DeleteEnvironment(req.Context(), req.PathValue("id")); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (r *Router) handleEnvironmentAction(w http.ResponseWriter, req *http.Request, store *state.Store) {
	ctx := req.Context()
	id := req.PathValue("id")
	var (
		env    domain.Environment
		err    error
		status = http.StatusAccepted
	)
	switch req.PathValue("action") {
	case "clone":
		var in state.CreateEnvironmentInput
		if err := decodeJSON(req, &in); err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		env, err = store.CloneEnvironment(ctx, id, in)
		status = http.StatusCreated
	case "promote":
		var payload struct {
			TargetID string `json:"targetId"`
		}
		if err := decodeJSON(req, &payload); err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		env, err = store.PromoteEnvironment(ctx, id, payload.TargetID)
	case "pause":
		err = store.PauseEnvironment(ctx, id)
	case "resume":
		err = store.ResumeEnvironment(ctx, id)
	case "deploy":
		env, err = store.DeployEnvironment(ctx, id)
	case "apply":
		env, err = store.ApplyEnvironmentChanges(ctx, id)
	case "activate":
		err = store.SetActiveEnvironment(ctx, id)
		status = http.StatusOK
	default:
		r.notFound(w)
		return
	}
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	if env.ID == "" {
		current, ok := store.Snapshot().Environment(id)
		if !ok {
			r.notFound(w)
			return
		}
		env = current
	}
	writeJSON(w, status, env)
}

func (r *Router) handleEnvironmentEstimate(w http.ResponseWriter, req *http.Request, store *state.Store) {
	snap := store.Snapshot()
	env, ok := snap.Environment(req.PathValue("id"))
	if !ok {
		r.writeServiceError(w, req, state.ErrEnvironmentNotFound)
		return
	}
	traffic := domain.TrafficSteady
	if snap.Questionnaire != nil && snap.Questionnaire.Traffic != "" {
		traffic = snap.Questionnaire.Traffic
	}
	writeJSON(w, http.StatusOK, r.estimator.EstimateEnvironment(env, traffic))
}

func (r *Router) handleManifest(w http.ResponseWriter, req *http.Request, store *state.Store) {
	snap := store.Snapshot()
	if snap.Project == nil {
		r.writeServiceError(w, req, state.ErrNoProject)
		return
	}
	id := req.URL.Query().Get("environment")
	if id == "" {
		id = snap.ActiveEnvironmentID
	}
	doc, err := manifest.Render(*snap.Project, id)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}
