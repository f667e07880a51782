package sizing

import (
	"fmt"

	"github.com/splax/unhazzle/internal/domain"
)

// CatalogEntry is a curated image offered by the "add container" picker.
type CatalogEntry struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Image       string `json:"image"`
	Port        int    `json:"port"`
	HealthPath  string `json:"healthPath"`
	Description string `json:"description"`
}

// Catalog lists the images available without a manual URL.
var Catalog = []CatalogEntry{
	{ID: "nginx", Name: "web", Image: "nginx:1.27-alpine", Port: 80, HealthPath: "/", Description: "Static files and reverse proxy"},
	{ID: "node", Name: "node-app", Image: "node:22-alpine", Port: 3000, HealthPath: "/health", Description: "Node.js application"},
	{ID: "python", Name: "python-app", Image: "python:3.12-slim", Port: 8000, HealthPath: "/health", Description: "Python web service"},
	{ID: "go", Name: "go-service", Image: "golang:1.24-alpine", Port: 8080, HealthPath: "/healthz", Description: "Go HTTP service"},
	{ID: "adminer", Name: "db-admin", Image: "adminer:4", Port: 8080, HealthPath: "/", Description: "Database administration UI"},
}

// LookupCatalog finds an entry by id.
func LookupCatalog(id string) (CatalogEntry, bool) {
	for _, entry := range Catalog {
		if entry.ID == id {
			return entry, true
		}
	}
	return CatalogEntry{}, false
}

// ContainerFromCatalog builds a container for the entry sized from the answers.
// An empty name falls back to the entry's default name.
func ContainerFromCatalog(entry CatalogEntry, name string, answers domain.QuestionnaireAnswers) (domain.Container, error) {
	if name == "" {
		name = entry.Name
	}
	if !domain.ValidContainerName(name) {
		return domain.Container{}, fmt.Errorf("invalid container name %q", name)
	}
	plan := Recommend(answers)
	exposure := domain.ExposurePublic
	if answers.AppType == domain.AppTypeWorker {
		exposure = domain.ExposurePrivate
	}
	health := domain.DefaultHealthCheck(entry.Port)
	health.Path = entry.HealthPath
	return domain.Container{
		Name:     name,
		Image:    entry.Image,
		Port:     entry.Port,
		Exposure: exposure,
		Resources: domain.Resources{
			CPU:      plan.CPU,
			Memory:   plan.Memory,
			Replicas: plan.Replicas,
		},
		HealthCheck: health,
		EnvVars:     []domain.EnvVar{},
	}, nil
}
