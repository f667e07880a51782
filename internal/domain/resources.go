package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ReplicationMode describes database redundancy.
type ReplicationMode string

const (
	ReplicationSingle      ReplicationMode = "single"
	ReplicationHA          ReplicationMode = "ha"
	ReplicationMultiRegion ReplicationMode = "multi-region"
)

// Redundant reports whether the mode runs a second copy of the database compute.
func (m ReplicationMode) Redundant() bool {
	return m == ReplicationHA || m == ReplicationMultiRegion
}

// ParseReplicationMode accepts canonical values and the free-text descriptions
// older state blobs carry ("Primary + 1 replica (HA)", "Multi-region", ...).
func ParseReplicationMode(value string) ReplicationMode {
	trimmed := strings.TrimSpace(value)
	switch ReplicationMode(strings.ToLower(trimmed)) {
	case ReplicationSingle, "":
		return ReplicationSingle
	case ReplicationHA:
		return ReplicationHA
	case ReplicationMultiRegion:
		return ReplicationMultiRegion
	}
	switch {
	case strings.Contains(trimmed, "Multi-region"):
		return ReplicationMultiRegion
	case strings.Contains(trimmed, "HA"):
		return ReplicationHA
	}
	return ReplicationSingle
}

// UnmarshalJSON decodes both canonical and legacy descriptive values.
func (m *ReplicationMode) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("replication mode: %w", err)
	}
	*m = ParseReplicationMode(raw)
	return nil
}

// DatabaseConfig describes the environment's managed database.
type DatabaseConfig struct {
	Engine      DatabaseEngine  `json:"engine"`
	Version     string          `json:"version,omitempty"`
	CPU         string          `json:"cpu"`
	Memory      string          `json:"memory"`
	StorageGB   int             `json:"storage"`
	Replication ReplicationMode `json:"replicas"`
	Backups     BackupFrequency `json:"backups,omitempty"`
}

// CacheConfig describes the environment's managed cache.
type CacheConfig struct {
	Engine         CacheEngine `json:"engine"`
	Version        string      `json:"version,omitempty"`
	Memory         string      `json:"memory"`
	EvictionPolicy string      `json:"evictionPolicy,omitempty"`
	Persistence    bool        `json:"persistence"`
}

// ResourceConfig is a sizing plan, either recommended or edited.
type ResourceConfig struct {
	Replicas Replicas        `json:"replicas"`
	CPU      string          `json:"cpu"`
	Memory   string          `json:"memory"`
	Database *DatabaseConfig `json:"database,omitempty"`
	Cache    *CacheConfig    `json:"cache,omitempty"`
}

// Clone returns a deep copy.
func (r ResourceConfig) Clone() ResourceConfig {
	out := r
	out.Database = r.Database.Clone()
	out.Cache = r.Cache.Clone()
	return out
}

// Clone returns a copy of the descriptor or nil.
func (d *DatabaseConfig) Clone() *DatabaseConfig {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

// Clone returns a copy of the descriptor or nil.
func (c *CacheConfig) Clone() *CacheConfig {
	if c == nil {
		return nil
	}
	out := *c
	return &out
}

// CostBreakdown is the monthly price of a resource configuration in EUR.
// Component fields are before margin; Total and Hourly include it.
type CostBreakdown struct {
	Application  float64 `json:"application"`
	Database     float64 `json:"database"`
	Cache        float64 `json:"cache"`
	LoadBalancer float64 `json:"loadBalancer"`
	Bandwidth    float64 `json:"bandwidth"`
	Subtotal     float64 `json:"subtotal"`
	Total        float64 `json:"total"`
	Hourly       float64 `json:"hourly"`
	Tier         string  `json:"tier"`
	Servers      int     `json:"servers"`
}
