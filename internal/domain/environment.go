package domain

import (
	"fmt"
	"time"
)

// EnvironmentType tags the purpose of an environment.
type EnvironmentType string

const (
	EnvironmentStandard      EnvironmentType = "standard"
	EnvironmentPullRequest   EnvironmentType = "pull-request"
	EnvironmentNonProduction EnvironmentType = "non-production"
	EnvironmentProduction    EnvironmentType = "production"
)

// ParseEnvironmentType validates a type tag, defaulting empty input to standard.
func ParseEnvironmentType(value string) (EnvironmentType, error) {
	switch t := EnvironmentType(value); t {
	case "":
		return EnvironmentStandard, nil
	case EnvironmentStandard, EnvironmentPullRequest, EnvironmentNonProduction, EnvironmentProduction:
		return t, nil
	}
	return "", fmt.Errorf("unknown environment type %q", value)
}

// EnvironmentStatus is the lifecycle state of an environment.
type EnvironmentStatus string

const (
	StatusProvisioning EnvironmentStatus = "provisioning"
	StatusActive       EnvironmentStatus = "active"
	StatusPaused       EnvironmentStatus = "paused"
	StatusDeleting     EnvironmentStatus = "deleting"
	StatusDeleted      EnvironmentStatus = "deleted"
	StatusExpired      EnvironmentStatus = "expired"
)

// Live reports whether the status still counts toward project totals.
func (s EnvironmentStatus) Live() bool {
	return s != StatusDeleted && s != StatusExpired
}

// Environment is an independently lifecycled deployment target.
type Environment struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Slug             string            `json:"slug"`
	Type             EnvironmentType   `json:"type"`
	Status           EnvironmentStatus `json:"status"`
	Deployed         bool              `json:"deployed"`
	DeployedAt       *time.Time        `json:"deployedAt,omitempty"`
	PendingChanges   bool              `json:"pendingChanges"`
	BaseDomain       string            `json:"baseDomain"`
	Containers       []Container       `json:"containers"`
	PublicContainers []string          `json:"publicContainers"`
	Database         *DatabaseConfig   `json:"database,omitempty"`
	Cache            *CacheConfig      `json:"cache,omitempty"`
	Generation       uint64            `json:"generation"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// Clone returns a deep copy.
func (e Environment) Clone() Environment {
	out := e
	if e.DeployedAt != nil {
		at := *e.DeployedAt
		out.DeployedAt = &at
	}
	out.Containers = cloneContainers(e.Containers)
	if e.PublicContainers != nil {
		out.PublicContainers = append([]string(nil), e.PublicContainers...)
	}
	out.Database = e.Database.Clone()
	out.Cache = e.Cache.Clone()
	return out
}

// RefreshPublicContainers recomputes the public container name list from exposure flags.
func (e *Environment) RefreshPublicContainers() {
	names := make([]string, 0, len(e.Containers))
	for _, c := range e.Containers {
		if c.Exposure == ExposurePublic {
			names = append(names, c.Name)
		}
	}
	e.PublicContainers = names
}

// ContainerIndex returns the position of a container or -1.
func (e Environment) ContainerIndex(id string) int {
	for i, c := range e.Containers {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// Endpoint returns the public URL of a container in this environment.
func (e Environment) Endpoint(containerName string) string {
	return fmt.Sprintf("https://%s.%s", containerName, e.BaseDomain)
}

// Endpoints lists public URLs in container order.
func (e Environment) Endpoints() []string {
	urls := make([]string, 0, len(e.PublicContainers))
	for _, name := range e.PublicContainers {
		urls = append(urls, e.Endpoint(name))
	}
	return urls
}

// BaseDomainFor derives the base domain of an environment.
func BaseDomainFor(envSlug, projectSlug, suffix string) string {
	return fmt.Sprintf("%s.%s.%s", envSlug, projectSlug, suffix)
}

func cloneContainers(in []Container) []Container {
	if in == nil {
		return nil
	}
	out := make([]Container, len(in))
	for i, c := range in {
		out[i] = c.Clone()
	}
	return out
}
