package client

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/splax/unhazzle/internal/domain"
)

// Session is the sign-in payload returned by the API.
type Session struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Recommendation is the sizing suggested for questionnaire answers.
type Recommendation struct {
	Questionnaire domain.QuestionnaireAnswers `json:"questionnaire"`
	Resources     domain.ResourceConfig       `json:"resources"`
	Estimate      domain.CostBreakdown        `json:"estimate"`
}

// EstimateRequest prices a resource configuration without a session.
type EstimateRequest struct {
	Resources domain.ResourceConfig `json:"resources"`
	Traffic   domain.Traffic        `json:"traffic"`
	Volume    *domain.Volume        `json:"volume,omitempty"`
}

// CreateEnvironmentInput names a new environment.
type CreateEnvironmentInput struct {
	Name string                 `json:"name"`
	Type domain.EnvironmentType `json:"type,omitempty"`
}

// SignIn opens a session for the named user.
func (c *Client) SignIn(ctx context.Context, name, githubUsername string) (Session, error) {
	var resp struct {
		Session Session `json:"session"`
	}
	body := domain.User{Name: name, GitHubUsername: githubUsername}
	if err := c.do(ctx, call{method: http.MethodPost, path: "/session", body: body}, &resp); err != nil {
		return Session{}, err
	}
	return resp.Session, nil
}

// SignOut discards the session and its persisted state.
func (c *Client) SignOut(ctx context.Context, token string) error {
	return c.do(ctx, call{method: http.MethodDelete, path: "/session", token: token}, nil)
}

// State fetches the session's deployment state.
func (c *Client) State(ctx context.Context, token string) (domain.State, error) {
	var st domain.State
	err := c.do(ctx, call{method: http.MethodGet, path: "/state", token: token}, &st)
	return st, err
}

// SetQuestionnaire stores answers and returns the matching recommendation.
func (c *Client) SetQuestionnaire(ctx context.Context, token string, answers domain.QuestionnaireAnswers) (Recommendation, error) {
	var rec Recommendation
	err := c.do(ctx, call{method: http.MethodPut, path: "/questionnaire", body: answers, token: token}, &rec)
	return rec, err
}

// Estimate prices a configuration.
func (c *Client) Estimate(ctx context.Context, req EstimateRequest) (domain.CostBreakdown, error) {
	var cost domain.CostBreakdown
	err := c.do(ctx, call{method: http.MethodPost, path: "/estimate", body: req}, &cost)
	return cost, err
}

// EnvironmentEstimate prices every container and service of an environment.
func (c *Client) EnvironmentEstimate(ctx context.Context, token, environmentID string) (domain.CostBreakdown, error) {
	var cost domain.CostBreakdown
	err := c.do(ctx, call{method: http.MethodGet, path: "/environments/"+url.PathEscape(environmentID)+"/estimate", token: token}, &cost)
	return cost, err
}

// Manifest downloads the YAML export of an environment. An empty id selects the active one.
func (c *Client) Manifest(ctx context.Context, token, environmentID string) ([]byte, error) {
	return c.raw(ctx, withEnvironment("/manifest", environmentID), token)
}

// Deploy deploys the session, creating the project on first use.
func (c *Client) Deploy(ctx context.Context, token, projectName string) (domain.Project, error) {
	var project domain.Project
	body := map[string]string{"projectName": projectName}
	err := c.do(ctx, call{method: http.MethodPost, path: "/deploy", body: body, token: token}, &project)
	return project, err
}

// CreateEnvironment adds an environment to the project.
func (c *Client) CreateEnvironment(ctx context.Context, token string, input CreateEnvironmentInput) (domain.Environment, error) {
	var env domain.Environment
	err := c.do(ctx, call{method: http.MethodPost, path: "/environments", body: input, token: token}, &env)
	return env, err
}

// DeleteEnvironment soft-deletes an environment.
func (c *Client) DeleteEnvironment(ctx context.Context, token, environmentID string) error {
	return c.do(ctx, call{method: http.MethodDelete, path: "/environments/"+url.PathEscape(environmentID), token: token}, nil)
}

// PauseEnvironment pauses an active environment.
func (c *Client) PauseEnvironment(ctx context.Context, token, environmentID string) (domain.Environment, error) {
	return c.environmentAction(ctx, token, environmentID, "pause", nil)
}

// ResumeEnvironment resumes a paused environment.
func (c *Client) ResumeEnvironment(ctx context.Context, token, environmentID string) (domain.Environment, error) {
	return c.environmentAction(ctx, token, environmentID, "resume", nil)
}

// DeployEnvironment deploys a single environment.
func (c *Client) DeployEnvironment(ctx context.Context, token, environmentID string) (domain.Environment, error) {
	return c.environmentAction(ctx, token, environmentID, "deploy", nil)
}

// PromoteEnvironment copies the source configuration onto target.
func (c *Client) PromoteEnvironment(ctx context.Context, token, sourceID, targetID string) (domain.Environment, error) {
	return c.environmentAction(ctx, token, sourceID, "promote", map[string]string{"targetId": targetID})
}

func (c *Client) environmentAction(ctx context.Context, token, environmentID, action string, body any) (domain.Environment, error) {
	var env domain.Environment
	path := "/environments/" + url.PathEscape(environmentID) + "/" + action
	err := c.do(ctx, call{method: http.MethodPost, path: path, body: body, token: token}, &env)
	return env, err
}
