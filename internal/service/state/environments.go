package state

import (
	"context"
	"fmt"
	"strings"

	"github.com/splax/unhazzle/internal/domain"
	"github.com/splax/unhazzle/internal/repository"
)

// CreateEnvironmentInput captures attributes for a new environment.
type CreateEnvironmentInput struct {
	Name string                 `json:"name"`
	Type domain.EnvironmentType `json:"type,omitempty"`
}

// UpdateEnvironmentInput captures mutable environment fields. Nil fields are left untouched.
type UpdateEnvironmentInput struct {
	Name          *string                 `json:"name,omitempty"`
	Type          *domain.EnvironmentType `json:"type,omitempty"`
	Containers    *[]domain.Container     `json:"containers,omitempty"`
	Database      *domain.DatabaseConfig  `json:"database,omitempty"`
	Cache         *domain.CacheConfig     `json:"cache,omitempty"`
	ClearDatabase bool                    `json:"clearDatabase,omitempty"`
	ClearCache    bool                    `json:"clearCache,omitempty"`
}

// CreateEnvironment appends a new empty environment and makes it active.
func (s *Store) CreateEnvironment(ctx context.Context, in CreateEnvironmentInput) (domain.Environment, error) {
	var created domain.Environment
	err := s.update(ctx, "create_environment", func(st *domain.State) error {
		if st.Project == nil {
			return ErrNoProject
		}
		env, err := s.newEnvironment(st.Project, in.Name, in.Type)
		if err != nil {
			return err
		}
		st.Project.Environments = append(st.Project.Environments, env)
		st.Project.RecountEnvironments()
		st.ActiveEnvironmentID = env.ID
		created = env.Clone()
		return nil
	})
	return created, err
}

// UpdateEnvironment merges in into the environment with the id.
func (s *Store) UpdateEnvironment(ctx context.Context, id string, in UpdateEnvironmentInput) (domain.Environment, error) {
	var updated domain.Environment
	err := s.update(ctx, "update_environment", func(st *domain.State) error {
		env, err := liveEnvironmentRef(st, id)
		if err != nil {
			return err
		}
		if in.Name != nil {
			name := strings.TrimSpace(*in.Name)
			if name == "" {
				return errNameRequired
			}
			slug := domain.Slugify(name)
			if slug != env.Slug && st.Project.HasSlug(slug) {
				return errSlugTaken
			}
			env.Name = name
			env.Slug = slug
			env.BaseDomain = domain.BaseDomainFor(slug, st.Project.Slug, s.suffix)
		}
		if in.Type != nil {
			typ, err := domain.ParseEnvironmentType(string(*in.Type))
			if err != nil {
				return invalid(err)
			}
			env.Type = typ
		}
		if in.Containers != nil {
			containers, err := prepareContainers(*in.Containers, containerIDsOutside(st, env), s.newID)
			if err != nil {
				return err
			}
			env.Containers = containers
		}
		slot := &serviceSlot{db: &env.Database, cache: &env.Cache}
		if in.ClearDatabase {
			detachService(env.Containers, slot, domain.ServiceDatabase)
		} else if in.Database != nil {
			env.Database = in.Database.Clone()
		}
		if in.ClearCache {
			detachService(env.Containers, slot, domain.ServiceCache)
		} else if in.Cache != nil {
			env.Cache = in.Cache.Clone()
		}
		s.touch(env)
		st.Project.RecountEnvironments()
		updated = env.Clone()
		return nil
	})
	return updated, err
}

// DeleteEnvironment soft-deletes the environment. Deleting twice is a no-op.
func (s *Store) DeleteEnvironment(ctx context.Context, id string) error {
	return s.update(ctx, "delete_environment", func(st *domain.State) error {
		env, err := environmentRef(st, id)
		if err != nil {
			return err
		}
		if env.Status == domain.StatusDeleted {
			return errNoChange
		}
		env.Status = domain.StatusDeleted
		env.Generation++
		env.UpdatedAt = s.stamp()
		st.Project.RecountEnvironments()
		if st.ActiveEnvironmentID == id {
			st.ActiveEnvironmentID = ""
		}
		return nil
	})
}

// CloneEnvironment creates a new environment holding deep copies of the
// source's containers, database and cache. The copy provisions, then settles.
// The active pointer is left where it was.
func (s *Store) CloneEnvironment(ctx context.Context, sourceID string, in CreateEnvironmentInput) (domain.Environment, error) {
	var created domain.Environment
	err := s.update(ctx, "clone_environment", func(st *domain.State) error {
		src, err := liveEnvironmentRef(st, sourceID)
		if err != nil {
			return err
		}
		if in.Type == "" {
			in.Type = src.Type
		}
		env, err := s.newEnvironment(st.Project, in.Name, in.Type)
		if err != nil {
			return err
		}
		env.Containers = copyContainers(src.Containers, s.newID)
		env.Database = src.Database.Clone()
		env.Cache = src.Cache.Clone()
		env.RefreshPublicContainers()
		s.begin(&env)
		st.Project.Environments = append(st.Project.Environments, env)
		st.Project.RecountEnvironments()
		created = env.Clone()
		return nil
	})
	return created, err
}

// PromoteEnvironment overwrites the target's containers, database and cache
// with deep copies of the source's. The target provisions, then settles; a
// later promote supersedes the pending settle of an earlier one.
func (s *Store) PromoteEnvironment(ctx context.Context, sourceID, targetID string) (domain.Environment, error) {
	var promoted domain.Environment
	err := s.update(ctx, "promote_environment", func(st *domain.State) error {
		if sourceID == targetID {
			return errPromoteSelf
		}
		src, err := liveEnvironmentRef(st, sourceID)
		if err != nil {
			return err
		}
		dst, err := liveEnvironmentRef(st, targetID)
		if err != nil {
			return err
		}
		now := s.stamp()
		dst.Containers = copyContainers(src.Containers, s.newID)
		dst.Database = src.Database.Clone()
		dst.Cache = src.Cache.Clone()
		dst.RefreshPublicContainers()
		dst.Deployed = true
		dst.DeployedAt = &now
		dst.PendingChanges = false
		s.begin(dst)
		promoted = dst.Clone()
		return nil
	})
	return promoted, err
}

// PauseEnvironment moves an active environment to paused. Any other status is left alone.
func (s *Store) PauseEnvironment(ctx context.Context, id string) error {
	return s.update(ctx, "pause_environment", func(st *domain.State) error {
		env, err := liveEnvironmentRef(st, id)
		if err != nil {
			return err
		}
		if env.Status != domain.StatusActive {
			return errNoChange
		}
		env.Status = domain.StatusPaused
		env.Generation++
		env.UpdatedAt = s.stamp()
		return nil
	})
}

// ResumeEnvironment moves a paused environment to provisioning; it settles
// to active after the delay. Any other status is left alone.
func (s *Store) ResumeEnvironment(ctx context.Context, id string) error {
	return s.update(ctx, "resume_environment", func(st *domain.State) error {
		env, err := liveEnvironmentRef(st, id)
		if err != nil {
			return err
		}
		if env.Status != domain.StatusPaused {
			return errNoChange
		}
		s.begin(env)
		return nil
	})
}

// SetActiveEnvironment moves the active pointer.
func (s *Store) SetActiveEnvironment(ctx context.Context, id string) error {
	return s.update(ctx, "set_active_environment", func(st *domain.State) error {
		if _, err := liveEnvironmentRef(st, id); err != nil {
			return err
		}
		if st.ActiveEnvironmentID == id {
			return errNoChange
		}
		st.ActiveEnvironmentID = id
		return nil
	})
}

// DeployEnvironment marks the environment deployed and provisions it.
// An empty id deploys the active environment.
func (s *Store) DeployEnvironment(ctx context.Context, id string) (domain.Environment, error) {
	var deployed domain.Environment
	err := s.update(ctx, "deploy_environment", func(st *domain.State) error {
		env, err := targetEnvironment(st, id)
		if err != nil {
			return err
		}
		if env == nil {
			return ErrNoProject
		}
		s.deploy(env)
		deployed = env.Clone()
		return nil
	})
	return deployed, err
}

// ApplyEnvironmentChanges clears pending changes without a status transition.
func (s *Store) ApplyEnvironmentChanges(ctx context.Context, id string) (domain.Environment, error) {
	var applied domain.Environment
	err := s.update(ctx, "apply_environment_changes", func(st *domain.State) error {
		env, err := targetEnvironment(st, id)
		if err != nil {
			return err
		}
		if env == nil {
			return ErrNoProject
		}
		now := s.stamp()
		env.PendingChanges = false
		env.DeployedAt = &now
		env.UpdatedAt = now
		applied = env.Clone()
		return nil
	})
	return applied, err
}

func (s *Store) deploy(env *domain.Environment) {
	now := s.stamp()
	env.Deployed = true
	env.PendingChanges = false
	env.DeployedAt = &now
	s.begin(env)
}

// newEnvironment builds an environment for p without attaching it.
func (s *Store) newEnvironment(p *domain.Project, name string, typ domain.EnvironmentType) (domain.Environment, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Environment{}, errNameRequired
	}
	parsed, err := domain.ParseEnvironmentType(string(typ))
	if err != nil {
		return domain.Environment{}, invalid(err)
	}
	if parsed == domain.EnvironmentPullRequest && p.PREnvironments != nil {
		policy := p.PREnvironments
		if !policy.Enabled {
			return domain.Environment{}, fmt.Errorf("%w: pull request environments are disabled", repository.ErrInvalidArgument)
		}
		if policy.MaxConcurrent > 0 && p.PREnvironmentCount >= policy.MaxConcurrent {
			return domain.Environment{}, fmt.Errorf("%w: at most %d pull request environments", repository.ErrInvalidArgument, policy.MaxConcurrent)
		}
	}
	slug := domain.Slugify(name)
	if p.HasSlug(slug) {
		return domain.Environment{}, errSlugTaken
	}
	now := s.stamp()
	return domain.Environment{
		ID:               s.newID(),
		Name:             name,
		Slug:             slug,
		Type:             parsed,
		Status:           domain.StatusActive,
		BaseDomain:       domain.BaseDomainFor(slug, p.Slug, s.suffix),
		Containers:       []domain.Container{},
		PublicContainers: []string{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}
