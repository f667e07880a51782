package manifest

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/splax/unhazzle/internal/domain"
	"github.com/splax/unhazzle/internal/repository"
)

// MaskedValue replaces masked variable values in exported manifests.
const MaskedValue = "********"

const apiVersion = "unhazzle.app/v1"

type document struct {
	APIVersion   string         `yaml:"apiVersion"`
	Project      projectDoc     `yaml:"project"`
	Environment  environmentDoc `yaml:"environment"`
	Applications []application  `yaml:"applications"`
	Database     *databaseDoc   `yaml:"database,omitempty"`
	Cache        *cacheDoc      `yaml:"cache,omitempty"`
}

type projectDoc struct {
	Name       string         `yaml:"name"`
	Slug       string         `yaml:"slug"`
	Repository *repositoryDoc `yaml:"repository,omitempty"`
}

type repositoryDoc struct {
	Provider   string `yaml:"provider"`
	Name       string `yaml:"name"`
	Branch     string `yaml:"branch"`
	AutoDeploy bool   `yaml:"autoDeploy"`
}

type environmentDoc struct {
	Name   string `yaml:"name"`
	Slug   string `yaml:"slug"`
	Type   string `yaml:"type"`
	Status string `yaml:"status"`
	Domain string `yaml:"domain"`
}

type application struct {
	Name        string       `yaml:"name"`
	Image       string       `yaml:"image"`
	Port        string       `yaml:"port"`
	Exposure    string       `yaml:"exposure"`
	URL         string       `yaml:"url,omitempty"`
	Resources   resourcesDoc `yaml:"resources"`
	HealthCheck healthDoc    `yaml:"healthCheck"`
	Volume      *volumeDoc   `yaml:"volume,omitempty"`
	Access      []string     `yaml:"access,omitempty"`
	Env         []envDoc     `yaml:"env,omitempty"`
}

type resourcesDoc struct {
	CPU      string      `yaml:"cpu"`
	Memory   string      `yaml:"memory"`
	Replicas replicasDoc `yaml:"replicas"`
}

type replicasDoc struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

type healthDoc struct {
	Protocol string `yaml:"protocol"`
	Path     string `yaml:"path,omitempty"`
	Interval string `yaml:"interval"`
	Timeout  string `yaml:"timeout"`
	Retries  int    `yaml:"retries"`
}

type volumeDoc struct {
	MountPath string `yaml:"mountPath"`
	Size      string `yaml:"size"`
	Autoscale bool   `yaml:"autoscale"`
	Backups   string `yaml:"backups"`
}

type envDoc struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

type databaseDoc struct {
	Engine      string `yaml:"engine"`
	Version     string `yaml:"version,omitempty"`
	CPU         string `yaml:"cpu"`
	Memory      string `yaml:"memory"`
	Storage     string `yaml:"storage"`
	Replication string `yaml:"replication"`
	Backups     string `yaml:"backups,omitempty"`
}

type cacheDoc struct {
	Engine         string `yaml:"engine"`
	Version        string `yaml:"version,omitempty"`
	Memory         string `yaml:"memory"`
	EvictionPolicy string `yaml:"evictionPolicy,omitempty"`
	Persistence    bool   `yaml:"persistence"`
}

// Render exports one environment of the project as a YAML manifest.
func Render(project domain.Project, environmentID string) ([]byte, error) {
	idx := project.EnvironmentIndex(environmentID)
	if idx < 0 {
		return nil, fmt.Errorf("%w: environment %s", repository.ErrNotFound, environmentID)
	}
	env := project.Environments[idx]

	doc := document{
		APIVersion: apiVersion,
		Project:    projectDoc{Name: project.Name, Slug: project.Slug},
		Environment: environmentDoc{
			Name:   env.Name,
			Slug:   env.Slug,
			Type:   string(env.Type),
			Status: string(env.Status),
			Domain: env.BaseDomain,
		},
		Applications: make([]application, 0, len(env.Containers)),
	}
	if repo := project.Repository; repo != nil {
		doc.Project.Repository = &repositoryDoc{
			Provider:   repo.Provider,
			Name:       repo.Owner + "/" + repo.Name,
			Branch:     repo.Branch,
			AutoDeploy: repo.AutoDeploy,
		}
	}
	for _, c := range env.Containers {
		app, err := renderApplication(env, c)
		if err != nil {
			return nil, err
		}
		doc.Applications = append(doc.Applications, app)
	}
	if db := env.Database; db != nil {
		doc.Database = &databaseDoc{
			Engine:      string(db.Engine),
			Version:     db.Version,
			CPU:         db.CPU,
			Memory:      db.Memory,
			Storage:     fmt.Sprintf("%dGB", db.StorageGB),
			Replication: string(db.Replication),
			Backups:     string(db.Backups),
		}
	}
	if cache := env.Cache; cache != nil {
		doc.Cache = &cacheDoc{
			Engine:         string(cache.Engine),
			Version:        cache.Version,
			Memory:         cache.Memory,
			EvictionPolicy: cache.EvictionPolicy,
			Persistence:    cache.Persistence,
		}
	}

	var buf bytes.Buffer
	buf.WriteString("# unhazzle manifest for " + project.Slug + "/" + env.Slug + "\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return buf.Bytes(), nil
}

func renderApplication(env domain.Environment, c domain.Container) (application, error) {
	port, err := domain.PortSpec(c.Port)
	if err != nil {
		return application{}, fmt.Errorf("%w: container %s: %v", repository.ErrInvalidArgument, c.Name, err)
	}
	app := application{
		Name:     c.Name,
		Image:    c.Image,
		Port:     port,
		Exposure: string(c.Exposure),
		HealthCheck: healthDoc{
			Protocol: c.HealthCheck.Protocol,
			Path:     c.HealthCheck.Path,
			Interval: fmt.Sprintf("%ds", c.HealthCheck.IntervalSeconds),
			Timeout:  fmt.Sprintf("%ds", c.HealthCheck.TimeoutSeconds),
			Retries:  c.HealthCheck.Retries,
		},
	}
	if c.Exposure == domain.ExposurePublic {
		app.URL = env.Endpoint(c.Name)
	}
	app.Resources = resourcesDoc{
		CPU:      c.Resources.CPU,
		Memory:   c.Resources.Memory,
		Replicas: replicasDoc{Min: c.Resources.Replicas.Min, Max: c.Resources.Replicas.Max},
	}
	if v := c.Volume; v != nil {
		backups := v.BackupFrequency
		if backups == "" {
			backups = domain.BackupDisabled
		}
		app.Volume = &volumeDoc{
			MountPath: v.MountPath,
			Size:      fmt.Sprintf("%dGB", v.SizeGB),
			Autoscale: v.Autoscale,
			Backups:   string(backups),
		}
	}
	for _, svc := range []domain.Service{domain.ServiceDatabase, domain.ServiceCache} {
		if c.ServiceAccess.Enabled(svc) {
			app.Access = append(app.Access, string(svc))
		}
	}
	for _, v := range c.EnvVars {
		value := v.Value
		if v.Masked {
			value = MaskedValue
		}
		app.Env = append(app.Env, envDoc{Key: v.Key, Value: value})
	}
	return app, nil
}
