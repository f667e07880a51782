package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/distribution/reference"
	"github.com/docker/go-connections/nat"
)

// Exposure controls whether a container receives a public endpoint.
type Exposure string

const (
	ExposurePublic  Exposure = "public"
	ExposurePrivate Exposure = "private"
)

// BackupFrequency enumerates volume backup schedules.
type BackupFrequency string

const (
	BackupDisabled BackupFrequency = "disabled"
	BackupHourly   BackupFrequency = "hourly"
	BackupDaily    BackupFrequency = "daily"
	BackupWeekly   BackupFrequency = "weekly"
)

// Enabled reports whether backups run at all. An unset frequency counts as disabled.
func (b BackupFrequency) Enabled() bool {
	return b != "" && b != BackupDisabled
}

// Service names a managed backing service a container can be granted access to.
type Service string

const (
	ServiceDatabase Service = "database"
	ServiceCache    Service = "cache"
)

// Reserved environment variable keys injected for service access.
const (
	DatabaseURLKey = "DATABASE_URL"
	CacheURLKey    = "CACHE_URL"
)

var reservedKeys = map[Service][]string{
	ServiceDatabase: {DatabaseURLKey, "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME"},
	ServiceCache:    {CacheURLKey, "REDIS_URL", "CACHE_HOST", "CACHE_PORT"},
}

// ParseService validates a service name.
func ParseService(value string) (Service, error) {
	switch Service(strings.ToLower(strings.TrimSpace(value))) {
	case ServiceDatabase:
		return ServiceDatabase, nil
	case ServiceCache:
		return ServiceCache, nil
	}
	return "", fmt.Errorf("unknown service %q", value)
}

// AccessKey returns the placeholder variable key added when access is granted.
func (s Service) AccessKey() string {
	if s == ServiceCache {
		return CacheURLKey
	}
	return DatabaseURLKey
}

// ReservedKeys lists every variable key owned by the service.
func (s Service) ReservedKeys() []string {
	return reservedKeys[s]
}

// RegistryCredentials authenticate pulls from a private registry.
type RegistryCredentials struct {
	Username string `json:"username,omitempty"`
	Token    string `json:"token,omitempty"`
}

// HealthCheck describes how the platform probes a container.
type HealthCheck struct {
	Protocol        string `json:"protocol"`
	Port            int    `json:"port"`
	Path            string `json:"path,omitempty"`
	IntervalSeconds int    `json:"interval"`
	TimeoutSeconds  int    `json:"timeout"`
	Retries         int    `json:"retries"`
}

// Replicas bounds horizontal scaling.
type Replicas struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Resources sizes a single replica.
type Resources struct {
	CPU      string   `json:"cpu"`
	Memory   string   `json:"memory"`
	Replicas Replicas `json:"replicas"`
}

// Volume is persistent storage attached to a container.
type Volume struct {
	MountPath       string          `json:"mountPath"`
	SizeGB          int             `json:"size"`
	Autoscale       bool            `json:"autoscale"`
	BackupFrequency BackupFrequency `json:"backupFrequency"`
	DeleteOnRemove  bool            `json:"deleteWithContainer"`
}

// ServiceAccess flags which backing services inject credentials into a container.
type ServiceAccess struct {
	Database bool `json:"database"`
	Cache    bool `json:"cache"`
}

// Enabled reports the flag for a service.
func (a ServiceAccess) Enabled(s Service) bool {
	if s == ServiceCache {
		return a.Cache
	}
	return a.Database
}

// Set returns a copy with the service flag updated.
func (a ServiceAccess) Set(s Service, enabled bool) ServiceAccess {
	if s == ServiceCache {
		a.Cache = enabled
	} else {
		a.Database = enabled
	}
	return a
}

// EnvVar is a single environment variable entry.
type EnvVar struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Masked bool   `json:"masked"`
}

// Container is one deployable unit inside an environment.
type Container struct {
	ID            string               `json:"id"`
	Name          string               `json:"name"`
	Image         string               `json:"imageUrl"`
	Registry      *RegistryCredentials `json:"registry,omitempty"`
	Port          int                  `json:"port"`
	HealthCheck   HealthCheck          `json:"healthCheck"`
	Exposure      Exposure             `json:"exposure"`
	Resources     Resources            `json:"resources"`
	Volume        *Volume              `json:"volume,omitempty"`
	ServiceAccess ServiceAccess        `json:"serviceAccess"`
	EnvVars       []EnvVar             `json:"environmentVariables"`
}

// Clone returns a deep copy.
func (c Container) Clone() Container {
	out := c
	if c.Registry != nil {
		reg := *c.Registry
		out.Registry = &reg
	}
	if c.Volume != nil {
		vol := *c.Volume
		out.Volume = &vol
	}
	if c.EnvVars != nil {
		out.EnvVars = append([]EnvVar(nil), c.EnvVars...)
	}
	return out
}

// HasEnvVar reports whether a variable with the key exists.
func (c Container) HasEnvVar(key string) bool {
	for _, v := range c.EnvVars {
		if v.Key == key {
			return true
		}
	}
	return false
}

// WithoutEnvVars returns the variables minus the given keys.
func (c Container) WithoutEnvVars(keys ...string) []EnvVar {
	if len(c.EnvVars) == 0 {
		return c.EnvVars
	}
	drop := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		drop[k] = struct{}{}
	}
	kept := make([]EnvVar, 0, len(c.EnvVars))
	for _, v := range c.EnvVars {
		if _, ok := drop[v.Key]; ok {
			continue
		}
		kept = append(kept, v)
	}
	return kept
}

var containerNameExpr = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,61}[a-z0-9]$`)

// ValidContainerName reports whether name is a DNS-label-safe container name.
func ValidContainerName(name string) bool {
	return containerNameExpr.MatchString(name)
}

// NormalizeImage validates an image reference and returns its familiar form.
func NormalizeImage(image string) (string, error) {
	trimmed := strings.TrimSpace(image)
	if trimmed == "" {
		return "", fmt.Errorf("image is required")
	}
	named, err := reference.ParseNormalizedNamed(trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid image %q: %w", image, err)
	}
	return reference.FamiliarString(reference.TagNameOnly(named)), nil
}

// PortSpec renders a container port as a protocol-qualified spec such as 8080/tcp.
func PortSpec(port int) (string, error) {
	if port <= 0 {
		return "", fmt.Errorf("port %d out of range", port)
	}
	p, err := nat.NewPort("tcp", strconv.Itoa(port))
	if err != nil {
		return "", fmt.Errorf("invalid port %d: %w", port, err)
	}
	return string(p), nil
}

// Validate checks the invariants a container must hold before it is stored.
func (c Container) Validate() error {
	if !ValidContainerName(c.Name) {
		return fmt.Errorf("container name %q must be 3-63 lowercase letters, digits or hyphens", c.Name)
	}
	if _, err := NormalizeImage(c.Image); err != nil {
		return err
	}
	if _, err := PortSpec(c.Port); err != nil {
		return err
	}
	if c.Exposure != ExposurePublic && c.Exposure != ExposurePrivate {
		return fmt.Errorf("exposure must be public or private")
	}
	r := c.Resources.Replicas
	if r.Min < 0 || r.Max < r.Min {
		return fmt.Errorf("replicas must satisfy 0 <= min <= max")
	}
	if c.Volume != nil && c.Volume.SizeGB < 0 {
		return fmt.Errorf("volume size must not be negative")
	}
	seen := make(map[string]struct{}, len(c.EnvVars))
	for _, v := range c.EnvVars {
		key := strings.TrimSpace(v.Key)
		if key == "" {
			return fmt.Errorf("environment variable key is required")
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate environment variable %q", key)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// DefaultHealthCheck returns the probe used when none is configured.
func DefaultHealthCheck(port int) HealthCheck {
	return HealthCheck{
		Protocol:        "http",
		Port:            port,
		Path:            "/health",
		IntervalSeconds: 30,
		TimeoutSeconds:  5,
		Retries:         3,
	}
}
