package state

import (
	"context"

	"github.com/splax/unhazzle/internal/domain"
)

// SetDatabase replaces the database of environment envID, of the active
// environment when envID is empty, or of the draft before the first deploy.
func (s *Store) SetDatabase(ctx context.Context, envID string, cfg domain.DatabaseConfig) error {
	if !(domain.QuestionnaireAnswers{Database: cfg.Engine}).WantsDatabase() {
		return errDatabaseEngine
	}
	if cfg.Replication == "" {
		cfg.Replication = domain.ReplicationSingle
	}
	return s.update(ctx, "set_database", func(st *domain.State) error {
		env, err := targetEnvironment(st, envID)
		if err != nil {
			return err
		}
		if env == nil {
			st.Database = cfg.Clone()
			return nil
		}
		env.Database = cfg.Clone()
		s.touch(env)
		return nil
	})
}

// SetCache replaces the cache the same way SetDatabase does.
func (s *Store) SetCache(ctx context.Context, envID string, cfg domain.CacheConfig) error {
	if !(domain.QuestionnaireAnswers{Cache: cfg.Engine}).WantsCache() {
		return errCacheEngine
	}
	return s.update(ctx, "set_cache", func(st *domain.State) error {
		env, err := targetEnvironment(st, envID)
		if err != nil {
			return err
		}
		if env == nil {
			st.Cache = cfg.Clone()
			return nil
		}
		env.Cache = cfg.Clone()
		s.touch(env)
		return nil
	})
}

// RemoveDatabase clears the database and revokes database access from every
// container that had it, stripping all database variables from them.
func (s *Store) RemoveDatabase(ctx context.Context, envID string) error {
	return s.removeService(ctx, "remove_database", envID, domain.ServiceDatabase)
}

// RemoveCache clears the cache and revokes cache access the same way.
func (s *Store) RemoveCache(ctx context.Context, envID string) error {
	return s.removeService(ctx, "remove_cache", envID, domain.ServiceCache)
}

func (s *Store) removeService(ctx context.Context, op, envID string, service domain.Service) error {
	return s.update(ctx, op, func(st *domain.State) error {
		env, err := targetEnvironment(st, envID)
		if err != nil {
			return err
		}
		containers := &st.Containers
		present := &serviceSlot{db: &st.Database, cache: &st.Cache}
		if env != nil {
			containers = &env.Containers
			present = &serviceSlot{db: &env.Database, cache: &env.Cache}
		}
		if !detachService(*containers, present, service) {
			return errNoChange
		}
		if env != nil {
			s.touch(env)
		}
		return nil
	})
}

// detachService clears the service from slot and revokes its access and
// injected keys from every container. It reports whether anything changed.
func detachService(containers []domain.Container, slot *serviceSlot, service domain.Service) bool {
	changed := slot.clear(service)
	for i := range containers {
		c := &containers[i]
		if !c.ServiceAccess.Enabled(service) {
			continue
		}
		c.ServiceAccess = c.ServiceAccess.Set(service, false)
		c.EnvVars = c.WithoutEnvVars(service.ReservedKeys()...)
		changed = true
	}
	return changed
}

type serviceSlot struct {
	db    **domain.DatabaseConfig
	cache **domain.CacheConfig
}

func (s *serviceSlot) clear(service domain.Service) bool {
	if service == domain.ServiceCache {
		had := *s.cache != nil
		*s.cache = nil
		return had
	}
	had := *s.db != nil
	*s.db = nil
	return had
}
