package state

import (
	"context"
	"strings"
	"time"

	"github.com/splax/unhazzle/internal/domain"
)

const (
	defaultProjectName     = "my-app"
	defaultEnvironmentName = "production"
)

// UpdateProjectInput replaces project fields wholesale. Nil fields are left untouched.
type UpdateProjectInput struct {
	Name                *string                       `json:"name,omitempty"`
	Repository          *domain.RepositoryIntegration `json:"repository,omitempty"`
	ClearRepository     bool                          `json:"clearRepository,omitempty"`
	PREnvironments      *domain.PREnvironmentPolicy   `json:"prEnvironments,omitempty"`
	ClearPREnvironments bool                          `json:"clearPrEnvironments,omitempty"`
}

// SetUser replaces the signed-in user.
func (s *Store) SetUser(ctx context.Context, user domain.User) error {
	return s.update(ctx, "set_user", func(st *domain.State) error {
		u := user
		st.User = &u
		return nil
	})
}

// SetQuestionnaire replaces the answers. Existing containers keep their sizing.
func (s *Store) SetQuestionnaire(ctx context.Context, answers domain.QuestionnaireAnswers) error {
	if err := answers.Validate(); err != nil {
		return invalid(err)
	}
	return s.update(ctx, "set_questionnaire", func(st *domain.State) error {
		a := answers
		st.Questionnaire = &a
		return nil
	})
}

// MarkDeployed deploys the session. The first call turns the draft into a
// project with a production environment; later calls redeploy the active
// environment.
func (s *Store) MarkDeployed(ctx context.Context, projectName string) (domain.Project, error) {
	var project domain.Project
	err := s.update(ctx, "mark_deployed", func(st *domain.State) error {
		now := s.stamp()
		if st.Project == nil {
			env := adoptDraft(st, projectName, s.newID, now, s.suffix)
			s.deploy(env)
		} else {
			env, err := targetEnvironment(st, "")
			if err != nil {
				return err
			}
			s.deploy(env)
		}
		st.Deployed = true
		st.DeployedAt = &now
		project = st.Project.Clone()
		return nil
	})
	return project, err
}

// UpdateProject replaces the given project fields. Renaming rederives the
// project slug and every environment's base domain.
func (s *Store) UpdateProject(ctx context.Context, in UpdateProjectInput) (domain.Project, error) {
	var project domain.Project
	err := s.update(ctx, "update_project", func(st *domain.State) error {
		if st.Project == nil {
			return ErrNoProject
		}
		p := st.Project
		if in.Name != nil {
			name := strings.TrimSpace(*in.Name)
			if name == "" {
				return errNameRequired
			}
			p.Name = name
			p.Slug = domain.Slugify(name)
			for i := range p.Environments {
				env := &p.Environments[i]
				env.BaseDomain = domain.BaseDomainFor(env.Slug, p.Slug, s.suffix)
			}
		}
		if in.ClearRepository {
			p.Repository = nil
		} else if in.Repository != nil {
			repo := *in.Repository
			p.Repository = &repo
		}
		if in.ClearPREnvironments {
			p.PREnvironments = nil
		} else if in.PREnvironments != nil {
			policy := *in.PREnvironments
			p.PREnvironments = &policy
		}
		project = p.Clone()
		return nil
	})
	return project, err
}

// Reset clears the whole state and cancels pending transitions.
func (s *Store) Reset(ctx context.Context) error {
	return s.update(ctx, "reset", func(st *domain.State) error {
		for id, t := range s.timers {
			t.Stop()
			delete(s.timers, id)
		}
		*st = domain.State{Containers: []domain.Container{}}
		return nil
	})
}

// adoptDraft creates the project and its default production environment,
// moving the draft containers, database and cache into it. It returns the
// new environment, which is also made active.
func adoptDraft(st *domain.State, projectName string, newID func() string, now time.Time, suffix string) *domain.Environment {
	name := strings.TrimSpace(projectName)
	if name == "" {
		name = defaultProjectName
	}
	p := &domain.Project{
		ID:        newID(),
		Name:      name,
		Slug:      domain.Slugify(name),
		CreatedAt: now,
	}
	slug := domain.Slugify(defaultEnvironmentName)
	env := domain.Environment{
		ID:         newID(),
		Name:       defaultEnvironmentName,
		Slug:       slug,
		Type:       domain.EnvironmentProduction,
		Status:     domain.StatusActive,
		BaseDomain: domain.BaseDomainFor(slug, p.Slug, suffix),
		Containers: cloneOrEmpty(st.Containers),
		Database:   st.Database.Clone(),
		Cache:      st.Cache.Clone(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	env.RefreshPublicContainers()
	p.Environments = []domain.Environment{env}
	p.RecountEnvironments()

	st.Project = p
	st.ActiveEnvironmentID = env.ID
	st.Containers = []domain.Container{}
	st.Database = nil
	st.Cache = nil
	return &p.Environments[0]
}

func cloneOrEmpty(in []domain.Container) []domain.Container {
	out := make([]domain.Container, len(in))
	for i, c := range in {
		out[i] = c.Clone()
	}
	return out
}
