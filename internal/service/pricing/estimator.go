package pricing

import (
	"log/slog"
	"math"

	"github.com/splax/unhazzle/internal/domain"
)

// Monthly prices in EUR.
const (
	Margin               = 1.30
	HoursPerMonth        = 730
	VolumePerGB          = 0.05
	DatabaseStoragePerGB = 0.10
	BackupSurcharge      = 0.20
	LoadBalancerMonthly  = 6.00
	CacheSmallMonthly    = 8.00
	CacheLargeMonthly    = 16.00
	replicasPerServer    = 2
)

// Tier is one instance price bracket. Limits are exclusive: a replica sitting
// exactly on a limit is priced in the next tier.
type Tier struct {
	Name        string
	MaxCores    float64
	MaxMemoryGB float64
	Monthly     float64
}

// Tiers are ordered by ascending capacity; the last one is unbounded.
var Tiers = []Tier{
	{Name: "A", MaxCores: 1, MaxMemoryGB: 2, Monthly: 6.00},
	{Name: "B", MaxCores: 2, MaxMemoryGB: 4, Monthly: 12.00},
	{Name: "C", MaxCores: 4, MaxMemoryGB: 8, Monthly: 24.00},
	{Name: "D", MaxCores: math.Inf(1), MaxMemoryGB: math.Inf(1), Monthly: 48.00},
}

// Bandwidth is the monthly traffic estimate per pattern.
var Bandwidth = map[domain.Traffic]float64{
	domain.TrafficLow:    2.00,
	domain.TrafficSteady: 5.00,
	domain.TrafficBurst:  10.00,
	domain.TrafficHigh:   25.00,
}

// Estimator prices resource configurations. It holds no state besides its logger.
type Estimator struct {
	logger *slog.Logger
}

// New returns an estimator logging parse failures to logger.
func New(logger *slog.Logger) Estimator {
	if logger == nil {
		logger = slog.Default()
	}
	return Estimator{logger: logger.With("component", "pricing")}
}

// TierFor selects the price bracket for a replica size.
func TierFor(cores, memoryGB float64) Tier {
	for _, t := range Tiers {
		if cores < t.MaxCores && memoryGB < t.MaxMemoryGB {
			return t
		}
	}
	return Tiers[len(Tiers)-1]
}

// ServersFor models two replicas packed per server.
func ServersFor(r domain.Replicas) int {
	if r.Max <= 0 && r.Min <= 0 {
		return 0
	}
	avg := float64(r.Min+r.Max) / 2
	n := int(math.Ceil(avg / replicasPerServer))
	if n < 1 {
		n = 1
	}
	return n
}

// Estimate prices a single application with optional database, cache and volume.
func (e Estimator) Estimate(cfg domain.ResourceConfig, traffic domain.Traffic, volume *domain.Volume) domain.CostBreakdown {
	app, tier, servers := e.application(domain.Resources{CPU: cfg.CPU, Memory: cfg.Memory, Replicas: cfg.Replicas}, volume)
	return e.total(app, tier.Name, servers, cfg.Database, cfg.Cache, traffic)
}

// EstimateEnvironment prices every container of an environment plus its
// database and cache, with one load balancer and one bandwidth charge.
func (e Estimator) EstimateEnvironment(env domain.Environment, traffic domain.Traffic) domain.CostBreakdown {
	var (
		app     float64
		servers int
		top     = -1
	)
	for _, c := range env.Containers {
		cost, tier, n := e.application(c.Resources, c.Volume)
		app += cost
		servers += n
		if idx := tierIndex(tier.Name); idx > top {
			top = idx
		}
	}
	name := ""
	if top >= 0 {
		name = Tiers[top].Name
	}
	return e.total(app, name, servers, env.Database, env.Cache, traffic)
}

func (e Estimator) total(app float64, tier string, servers int, db *domain.DatabaseConfig, cache *domain.CacheConfig, traffic domain.Traffic) domain.CostBreakdown {
	out := domain.CostBreakdown{
		Application:  round2(app),
		Database:     round2(e.database(db)),
		Cache:        round2(e.cache(cache)),
		LoadBalancer: LoadBalancerMonthly,
		Bandwidth:    Bandwidth[traffic],
		Tier:         tier,
		Servers:      servers,
	}
	out.Subtotal = round2(out.Application + out.Database + out.Cache + out.LoadBalancer + out.Bandwidth)
	out.Total = round2(out.Subtotal * Margin)
	out.Hourly = round2(out.Total / HoursPerMonth)
	return out
}

func (e Estimator) application(res domain.Resources, volume *domain.Volume) (float64, Tier, int) {
	cores := e.cpu(res.CPU)
	mem := e.memory(res.Memory)
	tier := TierFor(cores, mem)
	servers := ServersFor(res.Replicas)
	compute := float64(servers) * tier.Monthly
	cost := compute
	if volume != nil {
		cost += float64(max(volume.SizeGB, 0)) * VolumePerGB
		if volume.BackupFrequency.Enabled() {
			cost += compute * BackupSurcharge
		}
	}
	return cost, tier, servers
}

func (e Estimator) database(db *domain.DatabaseConfig) float64 {
	if db == nil {
		return 0
	}
	compute := TierFor(e.cpu(db.CPU), e.memory(db.Memory)).Monthly
	if db.Replication.Redundant() {
		compute *= 2
	}
	return compute + float64(max(db.StorageGB, 0))*DatabaseStoragePerGB
}

func (e Estimator) cache(c *domain.CacheConfig) float64 {
	if c == nil {
		return 0
	}
	mem := e.memory(c.Memory)
	switch {
	case mem < 1:
		return 0
	case mem <= 2:
		return CacheSmallMonthly
	default:
		return CacheLargeMonthly
	}
}

func (e Estimator) cpu(value string) float64 {
	n, err := ParseCPU(value)
	if err != nil {
		e.logger.Warn("cpu value not understood, pricing as zero", "value", value, "error", err)
		return 0
	}
	return n
}

func (e Estimator) memory(value string) float64 {
	n, err := ParseMemoryGB(value)
	if err != nil {
		e.logger.Warn("memory value not understood, pricing as zero", "value", value, "error", err)
		return 0
	}
	return n
}

func tierIndex(name string) int {
	for i, t := range Tiers {
		if t.Name == name {
			return i
		}
	}
	return -1
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
