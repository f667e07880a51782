package sizing

import "github.com/splax/unhazzle/internal/domain"

type appProfile struct {
	replicas domain.Replicas
	cpu      string
	memory   string
}

var appProfiles = map[domain.Traffic]appProfile{
	domain.TrafficLow:    {replicas: domain.Replicas{Min: 1, Max: 2}, cpu: "0.5 vCPU", memory: "1GB"},
	domain.TrafficSteady: {replicas: domain.Replicas{Min: 2, Max: 4}, cpu: "1 vCPU", memory: "2GB"},
	domain.TrafficBurst:  {replicas: domain.Replicas{Min: 2, Max: 10}, cpu: "1 vCPU", memory: "2GB"},
	domain.TrafficHigh:   {replicas: domain.Replicas{Min: 3, Max: 20}, cpu: "2 vCPU", memory: "4GB"},
}

var databaseProfiles = map[domain.Traffic]domain.DatabaseConfig{
	domain.TrafficLow:    {CPU: "0.5 vCPU", Memory: "1GB", StorageGB: 10, Replication: domain.ReplicationSingle, Backups: domain.BackupDaily},
	domain.TrafficSteady: {CPU: "1 vCPU", Memory: "2GB", StorageGB: 25, Replication: domain.ReplicationSingle, Backups: domain.BackupDaily},
	domain.TrafficBurst:  {CPU: "1 vCPU", Memory: "2GB", StorageGB: 50, Replication: domain.ReplicationHA, Backups: domain.BackupDaily},
	domain.TrafficHigh:   {CPU: "2 vCPU", Memory: "4GB", StorageGB: 100, Replication: domain.ReplicationHA, Backups: domain.BackupHourly},
}

var cacheMemory = map[domain.Traffic]string{
	domain.TrafficLow:    "512MB",
	domain.TrafficSteady: "1GB",
	domain.TrafficBurst:  "2GB",
	domain.TrafficHigh:   "4GB",
}

var engineVersions = map[string]string{
	string(domain.DatabasePostgres): "16",
	string(domain.DatabaseMySQL):    "8.4",
	string(domain.DatabaseMongoDB):  "7.0",
	string(domain.CacheRedis):       "7.2",
	string(domain.CacheValkey):      "8.0",
	string(domain.CacheMemcached):   "1.6",
}

// Recommend builds the default resource plan for questionnaire answers.
// Unknown traffic patterns fall back to the steady profile.
func Recommend(answers domain.QuestionnaireAnswers) domain.ResourceConfig {
	profile, ok := appProfiles[answers.Traffic]
	if !ok {
		profile = appProfiles[domain.TrafficSteady]
	}
	cfg := domain.ResourceConfig{
		Replicas: profile.replicas,
		CPU:      profile.cpu,
		Memory:   profile.memory,
	}
	if answers.WantsDatabase() {
		db, ok := databaseProfiles[answers.Traffic]
		if !ok {
			db = databaseProfiles[domain.TrafficSteady]
		}
		db.Engine = answers.Database
		db.Version = engineVersions[string(answers.Database)]
		cfg.Database = &db
	}
	if answers.WantsCache() {
		mem, ok := cacheMemory[answers.Traffic]
		if !ok {
			mem = cacheMemory[domain.TrafficSteady]
		}
		cfg.Cache = &domain.CacheConfig{
			Engine:         answers.Cache,
			Version:        engineVersions[string(answers.Cache)],
			Memory:         mem,
			EvictionPolicy: "allkeys-lru",
			Persistence:    answers.Cache != domain.CacheMemcached,
		}
	}
	return cfg
}
