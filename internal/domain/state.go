package domain

import "time"

// State is the whole deployment tree of one demo session.
//
// Containers, Database and Cache hold the draft configuration assembled before
// the first deploy. Once a Project exists its environments are authoritative
// and the draft is empty.
type State struct {
	User                *User                 `json:"user,omitempty"`
	Questionnaire       *QuestionnaireAnswers `json:"questionnaire,omitempty"`
	Containers          []Container           `json:"containers"`
	Database            *DatabaseConfig       `json:"database,omitempty"`
	Cache               *CacheConfig          `json:"cache,omitempty"`
	Project             *Project              `json:"project,omitempty"`
	ActiveEnvironmentID string                `json:"activeEnvironmentId,omitempty"`
	Deployed            bool                  `json:"deployed"`
	DeployedAt          *time.Time            `json:"deployedAt,omitempty"`
	Version             uint64                `json:"version"`
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := s
	if s.User != nil {
		u := *s.User
		out.User = &u
	}
	if s.Questionnaire != nil {
		q := *s.Questionnaire
		out.Questionnaire = &q
	}
	out.Containers = cloneContainers(s.Containers)
	out.Database = s.Database.Clone()
	out.Cache = s.Cache.Clone()
	if s.Project != nil {
		p := s.Project.Clone()
		out.Project = &p
	}
	if s.DeployedAt != nil {
		at := *s.DeployedAt
		out.DeployedAt = &at
	}
	return out
}

// ActiveEnvironment returns the environment the active pointer refers to.
func (s State) ActiveEnvironment() (Environment, bool) {
	if s.Project == nil || s.ActiveEnvironmentID == "" {
		return Environment{}, false
	}
	idx := s.Project.EnvironmentIndex(s.ActiveEnvironmentID)
	if idx < 0 {
		return Environment{}, false
	}
	return s.Project.Environments[idx], true
}

// Environment looks up an environment by id.
func (s State) Environment(id string) (Environment, bool) {
	if s.Project == nil {
		return Environment{}, false
	}
	idx := s.Project.EnvironmentIndex(id)
	if idx < 0 {
		return Environment{}, false
	}
	return s.Project.Environments[idx], true
}
