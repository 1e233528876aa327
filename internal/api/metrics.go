package api

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kurihiro0119/gitingest-pipeline/internal/cache"
)

// RegisterCacheMetrics exposes the gate counters as gauges
func RegisterCacheMetrics(reg prometheus.Registerer, gate *cache.Gate) error {
	gauges := map[string]func(cache.Stats) float64{
		"gitingest_cache_checks":         func(s cache.Stats) float64 { return float64(s.Checks) },
		"gitingest_cache_hits":           func(s cache.Stats) float64 { return float64(s.Hits) },
		"gitingest_cache_misses":         func(s cache.Stats) float64 { return float64(s.Misses) },
		"gitingest_cache_stale":          func(s cache.Stats) float64 { return float64(s.Stale) },
		"gitingest_cache_write_failures": func(s cache.Stats) float64 { return float64(s.WriteFailures) },
	}
	for name, fn := range gauges {
		fn := fn
		g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: name,
			Help: "Cache gate counter served by the proxy.",
		}, func() float64 { return fn(gate.Stats()) })
		if err := reg.Register(g); err != nil {
			return err
		}
	}
	return nil
}
