package domain

import "fmt"

// AppType is the application archetype chosen in the questionnaire.
type AppType string

const (
	AppTypeWebApp     AppType = "web-app"
	AppTypeAPI        AppType = "api"
	AppTypeWorker     AppType = "worker"
	AppTypeStaticSite AppType = "static-site"
)

// Traffic is the expected traffic pattern.
type Traffic string

const (
	TrafficLow    Traffic = "low"
	TrafficSteady Traffic = "steady"
	TrafficBurst  Traffic = "burst"
	TrafficHigh   Traffic = "high"
)

// DatabaseEngine selects the managed database.
type DatabaseEngine string

const (
	DatabaseNone     DatabaseEngine = "none"
	DatabasePostgres DatabaseEngine = "postgres"
	DatabaseMySQL    DatabaseEngine = "mysql"
	DatabaseMongoDB  DatabaseEngine = "mongodb"
)

// CacheEngine selects the managed cache.
type CacheEngine string

const (
	CacheNone      CacheEngine = "none"
	CacheRedis     CacheEngine = "redis"
	CacheValkey    CacheEngine = "valkey"
	CacheMemcached CacheEngine = "memcached"
)

// QuestionnaireAnswers drive the default sizing of a new session.
type QuestionnaireAnswers struct {
	AppType  AppType        `json:"appType"`
	Traffic  Traffic        `json:"traffic"`
	Database DatabaseEngine `json:"database"`
	Cache    CacheEngine    `json:"cache"`
}

// WantsDatabase reports whether a database was requested.
func (q QuestionnaireAnswers) WantsDatabase() bool {
	return q.Database != "" && q.Database != DatabaseNone
}

// WantsCache reports whether a cache was requested.
func (q QuestionnaireAnswers) WantsCache() bool {
	return q.Cache != "" && q.Cache != CacheNone
}

// Validate rejects answers outside the enumerations.
func (q QuestionnaireAnswers) Validate() error {
	switch q.AppType {
	case AppTypeWebApp, AppTypeAPI, AppTypeWorker, AppTypeStaticSite:
	default:
		return fmt.Errorf("unknown app type %q", q.AppType)
	}
	switch q.Traffic {
	case TrafficLow, TrafficSteady, TrafficBurst, TrafficHigh:
	default:
		return fmt.Errorf("unknown traffic pattern %q", q.Traffic)
	}
	switch q.Database {
	case "", DatabaseNone, DatabasePostgres, DatabaseMySQL, DatabaseMongoDB:
	default:
		return fmt.Errorf("unknown database engine %q", q.Database)
	}
	switch q.Cache {
	case "", CacheNone, CacheRedis, CacheValkey, CacheMemcached:
	default:
		return fmt.Errorf("unknown cache engine %q", q.Cache)
	}
	return nil
}

// User is the signed-in demo user.
type User struct {
	Name           string `json:"name"`
	GitHubUsername string `json:"githubUsername,omitempty"`
}
