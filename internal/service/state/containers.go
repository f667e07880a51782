package state

import (
	"context"
	"strings"

	"github.com/splax/unhazzle/internal/domain"
)

// UpdateContainerInput carries a partial container update. Nil fields are left untouched.
type UpdateContainerInput struct {
	Name         *string                     `json:"name,omitempty"`
	Image        *string                     `json:"imageUrl,omitempty"`
	Registry     *domain.RegistryCredentials `json:"registry,omitempty"`
	Port         *int                        `json:"port,omitempty"`
	HealthCheck  *domain.HealthCheck         `json:"healthCheck,omitempty"`
	Exposure     *domain.Exposure            `json:"exposure,omitempty"`
	Resources    *domain.Resources           `json:"resources,omitempty"`
	Volume       *domain.Volume              `json:"volume,omitempty"`
	RemoveVolume bool                        `json:"removeVolume,omitempty"`
	EnvVars      *[]domain.EnvVar            `json:"environmentVariables,omitempty"`
}

// AddContainer validates c and appends it to environment envID, to the active
// environment when envID is empty, or to the draft before the first deploy.
func (s *Store) AddContainer(ctx context.Context, envID string, c domain.Container) (domain.Container, error) {
	var added domain.Container
	err := s.update(ctx, "add_container", func(st *domain.State) error {
		prepared, err := prepareContainer(c)
		if err != nil {
			return err
		}
		prepared.ID = s.newID()
		env, err := targetEnvironment(st, envID)
		if err != nil {
			return err
		}
		if env == nil {
			if nameTaken(st.Containers, prepared.Name, "") {
				return errDuplicateContainer
			}
			st.Containers = append(st.Containers, prepared)
		} else {
			if nameTaken(env.Containers, prepared.Name, "") {
				return errDuplicateContainer
			}
			env.Containers = append(env.Containers, prepared)
			s.touch(env)
		}
		added = prepared.Clone()
		return nil
	})
	return added, err
}

// UpdateContainer merges in into the container with the id, wherever it lives.
func (s *Store) UpdateContainer(ctx context.Context, id string, in UpdateContainerInput) (domain.Container, error) {
	var updated domain.Container
	err := s.update(ctx, "update_container", func(st *domain.State) error {
		list, idx, env, err := locateContainer(st, id)
		if err != nil {
			return err
		}
		next := (*list)[idx].Clone()
		applyContainerInput(&next, in)
		prepared, err := prepareContainer(next)
		if err != nil {
			return err
		}
		if nameTaken(*list, prepared.Name, id) {
			return errDuplicateContainer
		}
		(*list)[idx] = prepared
		if env != nil {
			s.touch(env)
		}
		updated = prepared.Clone()
		return nil
	})
	return updated, err
}

// RemoveContainer drops the container with the id. Nothing else cascades.
func (s *Store) RemoveContainer(ctx context.Context, id string) error {
	return s.update(ctx, "remove_container", func(st *domain.State) error {
		list, idx, env, err := locateContainer(st, id)
		if err != nil {
			return err
		}
		*list = append((*list)[:idx:idx], (*list)[idx+1:]...)
		if env != nil {
			s.touch(env)
		}
		return nil
	})
}

// SetServiceAccess grants or revokes a container's access to a backing
// service. Granting adds the service's placeholder variable once; revoking
// removes exactly that variable.
func (s *Store) SetServiceAccess(ctx context.Context, id string, service domain.Service, enabled bool) (domain.Container, error) {
	var updated domain.Container
	err := s.update(ctx, "set_service_access", func(st *domain.State) error {
		if _, err := domain.ParseService(string(service)); err != nil {
			return invalid(err)
		}
		list, idx, env, err := locateContainer(st, id)
		if err != nil {
			return err
		}
		c := &(*list)[idx]
		key := service.AccessKey()
		updated = c.Clone()
		if c.ServiceAccess.Enabled(service) == enabled && c.HasEnvVar(key) == enabled {
			return errNoChange
		}
		c.ServiceAccess = c.ServiceAccess.Set(service, enabled)
		if enabled {
			if !c.HasEnvVar(key) {
				c.EnvVars = append(c.EnvVars, domain.EnvVar{Key: key})
			}
		} else {
			c.EnvVars = c.WithoutEnvVars(key)
		}
		if env != nil {
			s.touch(env)
		}
		updated = c.Clone()
		return nil
	})
	return updated, err
}

// locateContainer finds a container in the draft or in any environment that
// is not deleted. env is nil for draft containers.
// containerIDsOutside collects the ids of containers held anywhere but skip.
func containerIDsOutside(st *domain.State, skip *domain.Environment) map[string]bool {
	ids := make(map[string]bool)
	for _, c := range st.Containers {
		ids[c.ID] = true
	}
	if st.Project == nil {
		return ids
	}
	for e := range st.Project.Environments {
		env := &st.Project.Environments[e]
		if env == skip {
			continue
		}
		for _, c := range env.Containers {
			ids[c.ID] = true
		}
	}
	return ids
}

func locateContainer(st *domain.State, id string) (*[]domain.Container, int, *domain.Environment, error) {
	for i, c := range st.Containers {
		if c.ID == id {
			return &st.Containers, i, nil, nil
		}
	}
	if st.Project != nil {
		for e := range st.Project.Environments {
			env := &st.Project.Environments[e]
			if env.Status == domain.StatusDeleted {
				continue
			}
			if i := env.ContainerIndex(id); i >= 0 {
				return &env.Containers, i, env, nil
			}
		}
	}
	return nil, -1, nil, ErrContainerNotFound
}

func applyContainerInput(c *domain.Container, in UpdateContainerInput) {
	if in.Name != nil {
		c.Name = *in.Name
	}
	if in.Image != nil {
		c.Image = *in.Image
	}
	if in.Registry != nil {
		reg := *in.Registry
		c.Registry = &reg
	}
	if in.Port != nil {
		c.Port = *in.Port
	}
	if in.HealthCheck != nil {
		c.HealthCheck = *in.HealthCheck
	}
	if in.Exposure != nil {
		c.Exposure = *in.Exposure
	}
	if in.Resources != nil {
		c.Resources = *in.Resources
	}
	if in.RemoveVolume {
		c.Volume = nil
	} else if in.Volume != nil {
		vol := *in.Volume
		c.Volume = &vol
	}
	if in.EnvVars != nil {
		c.EnvVars = append([]domain.EnvVar(nil), (*in.EnvVars)...)
	}
}

// prepareContainer fills defaults, normalizes the image and validates.
func prepareContainer(c domain.Container) (domain.Container, error) {
	out := c.Clone()
	out.Name = strings.TrimSpace(out.Name)
	if out.Exposure == "" {
		out.Exposure = domain.ExposurePublic
	}
	if out.HealthCheck.Protocol == "" {
		out.HealthCheck = domain.DefaultHealthCheck(out.Port)
	}
	if out.HealthCheck.Port == 0 {
		out.HealthCheck.Port = out.Port
	}
	if out.EnvVars == nil {
		out.EnvVars = []domain.EnvVar{}
	}
	for i := range out.EnvVars {
		out.EnvVars[i].Key = strings.TrimSpace(out.EnvVars[i].Key)
	}
	for _, svc := range []domain.Service{domain.ServiceDatabase, domain.ServiceCache} {
		if out.ServiceAccess.Enabled(svc) && !out.HasEnvVar(svc.AccessKey()) {
			out.EnvVars = append(out.EnvVars, domain.EnvVar{Key: svc.AccessKey()})
		}
	}
	if err := out.Validate(); err != nil {
		return domain.Container{}, invalid(err)
	}
	image, err := domain.NormalizeImage(out.Image)
	if err != nil {
		return domain.Container{}, invalid(err)
	}
	out.Image = image
	return out, nil
}

// prepareContainers validates a replacement container list. Supplied ids
// survive only when no other container in the state or the list holds them.
func prepareContainers(in []domain.Container, taken map[string]bool, newID func() string) ([]domain.Container, error) {
	out := make([]domain.Container, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, c := range in {
		prepared, err := prepareContainer(c)
		if err != nil {
			return nil, err
		}
		if prepared.ID == "" || taken[prepared.ID] || seen[prepared.ID] {
			prepared.ID = newID()
		}
		seen[prepared.ID] = true
		if nameTaken(out, prepared.Name, "") {
			return nil, errDuplicateContainer
		}
		out = append(out, prepared)
	}
	return out, nil
}

// copyContainers deep-copies containers under fresh ids.
func copyContainers(in []domain.Container, newID func() string) []domain.Container {
	out := make([]domain.Container, len(in))
	for i, c := range in {
		out[i] = c.Clone()
		out[i].ID = newID()
	}
	return out
}

func nameTaken(list []domain.Container, name, exceptID string) bool {
	for _, c := range list {
		if c.Name == name && c.ID != exceptID {
			return true
		}
	}
	return false
}
