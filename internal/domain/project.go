package domain

import "time"

// RepositoryIntegration links a project to a source repository.
type RepositoryIntegration struct {
	Provider   string `json:"provider"`
	Owner      string `json:"owner"`
	Name       string `json:"name"`
	Branch     string `json:"branch"`
	AutoDeploy bool   `json:"autoDeploy"`
}

// PREnvironmentPolicy configures preview environments for pull requests.
type PREnvironmentPolicy struct {
	Enabled             bool   `json:"enabled"`
	TTLHours            int    `json:"ttlHours"`
	MaxConcurrent       int    `json:"maxConcurrent"`
	SourceEnvironmentID string `json:"sourceEnvironmentId,omitempty"`
}

// Project owns an ordered set of environments.
type Project struct {
	ID                   string                 `json:"id"`
	Name                 string                 `json:"name"`
	Slug                 string                 `json:"slug"`
	Repository           *RepositoryIntegration `json:"repository,omitempty"`
	PREnvironments       *PREnvironmentPolicy   `json:"prEnvironments,omitempty"`
	Environments         []Environment          `json:"environments"`
	TotalEnvironments    int                    `json:"totalEnvironments"`
	PREnvironmentCount   int                    `json:"prEnvironmentCount"`
	StandardEnvironments int                    `json:"standardEnvironmentCount"`
	CreatedAt            time.Time              `json:"createdAt"`
}

// Clone returns a deep copy.
func (p Project) Clone() Project {
	out := p
	if p.Repository != nil {
		repo := *p.Repository
		out.Repository = &repo
	}
	if p.PREnvironments != nil {
		policy := *p.PREnvironments
		out.PREnvironments = &policy
	}
	if p.Environments != nil {
		out.Environments = make([]Environment, len(p.Environments))
		for i, env := range p.Environments {
			out.Environments[i] = env.Clone()
		}
	}
	return out
}

// RecountEnvironments refreshes the derived counters, ignoring deleted and expired entries.
func (p *Project) RecountEnvironments() {
	total, pr := 0, 0
	for _, env := range p.Environments {
		if !env.Status.Live() {
			continue
		}
		total++
		if env.Type == EnvironmentPullRequest {
			pr++
		}
	}
	p.TotalEnvironments = total
	p.PREnvironmentCount = pr
	p.StandardEnvironments = total - pr
}

// EnvironmentIndex returns the position of an environment or -1.
func (p Project) EnvironmentIndex(id string) int {
	for i, env := range p.Environments {
		if env.ID == id {
			return i
		}
	}
	return -1
}

// HasSlug reports whether a live environment already uses the slug.
func (p Project) HasSlug(slug string) bool {
	for _, env := range p.Environments {
		if env.Slug == slug && env.Status.Live() {
			return true
		}
	}
	return false
}
