package workpool

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Gauges holds the in-flight and capacity gauges of a Pool, matching the
// Prometheus gauge style the rest of this codebase uses for saturation
// metrics (infrastructure/metrics.Metrics.RequestsInFlight).
type Gauges struct {
	InFlight prometheus.GaugeFunc
	Capacity prometheus.GaugeFunc
}

// RegisterGauges registers InFlight/Capacity gauges for p against reg and
// returns them. Call once per Pool; reg is typically
// prometheus.DefaultRegisterer or a test-local registry.
func RegisterGauges(reg prometheus.Registerer, p *Pool) Gauges {
	g := Gauges{
		InFlight: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "tee_workpool_in_flight",
			Help: "Number of TEE bridge calls currently holding a work pool slot",
		}, func() float64 { return float64(p.InFlight()) }),
		Capacity: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "tee_workpool_capacity",
			Help: "Configured maximum concurrency of the TEE bridge work pool",
		}, func() float64 { return float64(p.Capacity()) }),
	}
	if reg != nil {
		reg.MustRegister(g.InFlight, g.Capacity)
	}
	return g
}
